// Package config loads the bridge configuration from an optional YAML or
// JSON5 file plus environment secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/haasonsaas/claudebridge/internal/bridge"
	"github.com/haasonsaas/claudebridge/internal/channels/chunk"
	"github.com/haasonsaas/claudebridge/internal/claude"
	"github.com/haasonsaas/claudebridge/internal/markdown"
	"github.com/haasonsaas/claudebridge/internal/observability"
)

// Environment variables read on top of the file.
const (
	EnvBotToken = "SLACK_BOT_TOKEN"
	EnvAppToken = "SLACK_APP_TOKEN"
	EnvConfig   = "CLAUDEBRIDGE_CONFIG"
)

// Config is the main configuration structure for claudebridge.
type Config struct {
	Version int           `yaml:"version"`
	Slack   SlackConfig   `yaml:"slack"`
	Claude  ClaudeConfig  `yaml:"claude"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
	AppToken string `yaml:"app_token"`
	Debug    bool   `yaml:"debug"`
}

type ClaudeConfig struct {
	Command   string        `yaml:"command"`
	ExtraArgs []string      `yaml:"extra_args"`
	Launch    string        `yaml:"launch"`
	Shell     string        `yaml:"shell"`
	Script    string        `yaml:"script"`
	WorkDir   string        `yaml:"workdir"`
	Timeout   time.Duration `yaml:"timeout"`
}

type BridgeConfig struct {
	ReplyMode        string `yaml:"reply_mode"`
	ChunkSize        int    `yaml:"chunk_size"`
	ThinkingText     string `yaml:"thinking_text"`
	EmptyPromptText  string `yaml:"empty_prompt_text"`
	Tables           string `yaml:"tables"`
	SerializeThreads bool   `yaml:"serialize_threads"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables the listener.
	Addr string `yaml:"addr"`
}

type TracingConfig struct {
	// Endpoint is the OTLP/gRPC collector; empty disables export.
	Endpoint     string            `yaml:"endpoint"`
	Insecure     bool              `yaml:"insecure"`
	SamplingRate float64           `yaml:"sampling_rate"`
	Environment  string            `yaml:"environment"`
	Attributes   map[string]string `yaml:"attributes"`
}

// Default returns a configuration with every default applied and no tokens.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads the configuration file at path, if any, and applies the
// process environment. An empty path yields defaults plus environment.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.Getenv)
}

// LoadWithEnv is Load with an explicit environment lookup, used for both
// ${VAR} expansion and the token overrides.
func LoadWithEnv(path string, getenv func(string) string) (*Config, error) {
	cfg := &Config{}
	if strings.TrimSpace(path) != "" {
		raw, err := loadRaw(path, getenv)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if cfg, err = decodeTree(raw); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg, getenv)
	applyDefaults(cfg)
	return cfg, nil
}

// applyEnv lets the environment win over the file for secrets.
func applyEnv(cfg *Config, getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvBotToken)); v != "" {
		cfg.Slack.BotToken = v
	}
	if v := strings.TrimSpace(getenv(EnvAppToken)); v != "" {
		cfg.Slack.AppToken = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Claude.Command == "" {
		cfg.Claude.Command = claude.DefaultCommand
	}
	if cfg.Claude.Launch == "" {
		cfg.Claude.Launch = string(claude.LaunchPTY)
	}
	if cfg.Claude.Shell == "" {
		cfg.Claude.Shell = claude.DefaultShell
	}
	if cfg.Claude.Script == "" {
		cfg.Claude.Script = claude.DefaultScript
	}
	if cfg.Bridge.ReplyMode == "" {
		cfg.Bridge.ReplyMode = string(bridge.ReplyCompose)
	}
	if cfg.Bridge.ChunkSize == 0 {
		cfg.Bridge.ChunkSize = chunk.DefaultLimit
	}
	if cfg.Bridge.ThinkingText == "" {
		cfg.Bridge.ThinkingText = bridge.DefaultThinkingText
	}
	if cfg.Bridge.EmptyPromptText == "" {
		cfg.Bridge.EmptyPromptText = bridge.DefaultEmptyPromptText
	}
	if cfg.Bridge.Tables == "" {
		cfg.Bridge.Tables = string(markdown.TableModeCode)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate reports every problem that would prevent the bridge from
// serving. Missing Slack tokens are included.
func (c *Config) Validate() error {
	var errs []error
	if err := ValidateVersion(c.Version); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Slack.BotToken) == "" {
		errs = append(errs, fmt.Errorf("slack.bot_token is required (or set %s)", EnvBotToken))
	}
	if strings.TrimSpace(c.Slack.AppToken) == "" {
		errs = append(errs, fmt.Errorf("slack.app_token is required (or set %s)", EnvAppToken))
	}
	if err := c.ValidateClaude(); err != nil {
		errs = append(errs, err)
	}
	if !bridge.IsValidReplyMode(c.Bridge.ReplyMode) {
		errs = append(errs, fmt.Errorf("bridge.reply_mode %q must be compose or delegate", c.Bridge.ReplyMode))
	}
	if c.Bridge.ChunkSize <= 0 || c.Bridge.ChunkSize > chunk.SlackLimit {
		errs = append(errs, fmt.Errorf("bridge.chunk_size must be between 1 and %d", chunk.SlackLimit))
	}
	if !markdown.IsValidTableMode(c.Bridge.Tables) {
		errs = append(errs, fmt.Errorf("bridge.tables %q must be code, bullets or off", c.Bridge.Tables))
	}
	if !observability.IsValidLogLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level %q is not a known level", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be json or text", c.Logging.Format))
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("tracing.sampling_rate must be between 0 and 1"))
	}
	return errors.Join(errs...)
}

// ValidateClaude checks only the claude section. The ask command needs no
// Slack tokens and uses this instead of Validate.
func (c *Config) ValidateClaude() error {
	if err := c.InvokerConfig().Validate(); err != nil {
		return fmt.Errorf("claude: %w", err)
	}
	return nil
}

// InvokerConfig converts the claude section for claude.NewInvoker.
func (c *Config) InvokerConfig() claude.Config {
	return claude.Config{
		Command:   c.Claude.Command,
		ExtraArgs: append([]string(nil), c.Claude.ExtraArgs...),
		Launch:    claude.LaunchMode(c.Claude.Launch),
		Shell:     c.Claude.Shell,
		Script:    c.Claude.Script,
		WorkDir:   c.Claude.WorkDir,
		Timeout:   c.Claude.Timeout,
	}
}

// BridgeOptions converts the bridge section for bridge.New.
func (c *Config) BridgeOptions() bridge.Options {
	return bridge.Options{
		ReplyMode:        bridge.ReplyMode(c.Bridge.ReplyMode),
		ChunkSize:        c.Bridge.ChunkSize,
		ThinkingText:     c.Bridge.ThinkingText,
		EmptyPromptText:  c.Bridge.EmptyPromptText,
		Tables:           markdown.ParseTableMode(c.Bridge.Tables, markdown.TableModeCode),
		SerializeThreads: c.Bridge.SerializeThreads,
	}
}

// LogConfig converts the logging section.
func (c *Config) LogConfig() observability.LogConfig {
	return observability.LogConfig{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
	}
}

// TraceConfig converts the tracing section.
func (c *Config) TraceConfig(version string) observability.TraceConfig {
	return observability.TraceConfig{
		ServiceName:    observability.DefaultServiceName,
		ServiceVersion: version,
		Environment:    c.Tracing.Environment,
		Endpoint:       c.Tracing.Endpoint,
		SamplingRate:   c.Tracing.SamplingRate,
		Attributes:     c.Tracing.Attributes,
		Insecure:       c.Tracing.Insecure,
	}
}

// Redacted returns a copy safe to print: tokens are replaced by their
// presence.
func (c *Config) Redacted() Config {
	out := *c
	out.Slack.BotToken = presence(c.Slack.BotToken)
	out.Slack.AppToken = presence(c.Slack.AppToken)
	return out
}

func presence(s string) string {
	if strings.TrimSpace(s) == "" {
		return "missing"
	}
	return "set"
}
