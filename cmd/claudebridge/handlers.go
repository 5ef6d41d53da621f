package main

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/claudebridge/internal/claude"
	"github.com/haasonsaas/claudebridge/internal/config"
	"github.com/haasonsaas/claudebridge/internal/observability"
	"github.com/haasonsaas/claudebridge/pkg/models"
)

// runAsk runs one turn and prints the result text, then the session token.
func runAsk(ctx context.Context, out io.Writer, cfg *config.Config, session, prompt string, opts ...claude.Option) error {
	if err := cfg.ValidateClaude(); err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.LogConfig())
	opts = append([]claude.Option{claude.WithLogger(logger)}, opts...)

	invoker, err := claude.NewInvoker(cfg.InvokerConfig(), opts...)
	if err != nil {
		return err
	}
	result, err := invoker.Invoke(ctx, models.InvocationRequest{
		Prompt:       prompt,
		SessionToken: session,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(out, result.Text)
	if result.SessionToken != "" {
		fmt.Fprintf(out, "\nsession: %s\n", result.SessionToken)
	}
	return nil
}

// runConfigValidate loads and validates the configuration at path.
func runConfigValidate(out io.Writer, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	source := path
	if source == "" {
		source = "defaults and environment"
	}
	fmt.Fprintf(out, "configuration OK (%s)\n", source)
	return nil
}

// runConfigShow prints the effective configuration as YAML with tokens
// replaced by their presence.
func runConfigShow(out io.Writer, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	redacted := cfg.Redacted()
	data, err := yaml.Marshal(&redacted)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = out.Write(data)
	return err
}
