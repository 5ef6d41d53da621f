package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/claudebridge/internal/config"
)

// resolveConfigPath prefers the flag, then CLAUDEBRIDGE_CONFIG. An empty
// result means defaults plus environment.
func resolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	return strings.TrimSpace(os.Getenv(config.EnvConfig))
}

// =============================================================================
// Serve Command
// =============================================================================

// buildServeCmd creates the "serve" command that runs the bridge.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to Slack and answer mentions with Claude",
		Long: `Connect to Slack over Socket Mode and run one Claude CLI turn per mention
or follow-up thread reply.

The server will:
1. Load configuration from the specified file (or defaults plus environment)
2. Authenticate with Slack and learn the bot's own user ID
3. Serve /metrics when metrics.addr is set
4. Run until SIGINT/SIGTERM, then wait for in-flight turns`,
		Example: `  # Tokens from the environment, everything else default
  SLACK_BOT_TOKEN=xoxb-... SLACK_APP_TOKEN=xapp-... claudebridge serve

  # Start with a config file and debug logging
  claudebridge serve --config /etc/claudebridge.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath), debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML or JSON5 configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging (verbose output)")
	return cmd
}

// =============================================================================
// Ask Command
// =============================================================================

// buildAskCmd creates the "ask" command that runs one CLI turn locally.
func buildAskCmd() *cobra.Command {
	var (
		configPath string
		session    string
	)

	cmd := &cobra.Command{
		Use:   "ask [--session TOKEN] <prompt>",
		Short: "Run a single Claude turn without Slack",
		Long: `Run the prompt through the same invoker the bridge uses and print the
result followed by the session token, if one was returned. Only the
claude section of the configuration is required.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath(configPath))
			if err != nil {
				return err
			}
			return runAsk(cmd.Context(), cmd.OutOrStdout(), cfg, session, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML or JSON5 configuration file")
	cmd.Flags().StringVarP(&session, "session", "s", "", "Session token to resume")
	return cmd
}

// =============================================================================
// Config Commands
// =============================================================================

func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(buildConfigValidateCmd(), buildConfigShowCmd())
	return cmd
}

func buildConfigValidateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that the configuration can start the bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(cmd.OutOrStdout(), resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML or JSON5 configuration file")
	return cmd
}

func buildConfigShowCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout(), resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML or JSON5 configuration file")
	return cmd
}

// =============================================================================
// Version Command
// =============================================================================

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "claudebridge "+versionString())
		},
	}
}
