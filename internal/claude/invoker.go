// Package claude runs the Claude CLI as a child process for one chat turn and
// turns its output into an InvocationResult.
package claude

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/claudebridge/internal/exec"
	"github.com/haasonsaas/claudebridge/internal/extract"
	"github.com/haasonsaas/claudebridge/internal/observability"
	"github.com/haasonsaas/claudebridge/pkg/models"
)

// Environment variables exported to the child so it can act on the
// originating Slack thread by itself.
const (
	EnvChannelID = "SLACK_CHANNEL_ID"
	EnvThreadTS  = "SLACK_THREAD_TS"
	EnvMessageTS = "SLACK_MESSAGE_TS"
)

// commandNotFound is the exit status a POSIX shell uses when it cannot find
// the command it was asked to run.
const commandNotFound = 127

// logPreview caps how much stdout is logged at debug level.
const logPreview = 200

// Invoker runs one CLI process per request. It holds no per-request state
// and is safe for concurrent use.
type Invoker struct {
	cfg     Config
	runner  CommandRunner
	logger  *slog.Logger
	tracer  trace.Tracer
	environ func() []string
	goos    string
}

// Option customizes an Invoker.
type Option func(*Invoker)

// WithRunner replaces the process runner, typically with a fake in tests.
func WithRunner(r CommandRunner) Option {
	return func(inv *Invoker) { inv.runner = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(inv *Invoker) { inv.logger = l }
}

// WithTracer sets the tracer used for the invocation span.
func WithTracer(t trace.Tracer) Option {
	return func(inv *Invoker) { inv.tracer = t }
}

// WithEnviron sets the base environment the child inherits.
func WithEnviron(fn func() []string) Option {
	return func(inv *Invoker) { inv.environ = fn }
}

// NewInvoker validates cfg and creates an Invoker.
func NewInvoker(cfg Config, opts ...Option) (*Invoker, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, fmt.Errorf("invalid claude config: %w", err)
	}
	inv := &Invoker{
		cfg:     cfg,
		runner:  ExecRunner{},
		logger:  slog.Default(),
		tracer:  otel.Tracer("github.com/haasonsaas/claudebridge/internal/claude"),
		environ: os.Environ,
		goos:    runtime.GOOS,
	}
	for _, opt := range opts {
		opt(inv)
	}
	inv.logger = inv.logger.With("component", "claude")
	return inv, nil
}

// Config returns the effective configuration after defaults.
func (inv *Invoker) Config() Config {
	return inv.cfg
}

// Invoke runs the CLI for req and waits for it to exit.
//
// A zero exit always resolves to a result: when the output holds no JSON
// record the cleaned text is returned without a token. A non-zero exit yields
// a *ProcessError and a launch failure a *SpawnError. Nothing is retried.
func (inv *Invoker) Invoke(ctx context.Context, req models.InvocationRequest) (result models.InvocationResult, err error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return models.InvocationResult{}, ErrEmptyPrompt
	}

	ctx, span := inv.tracer.Start(ctx, "claude.invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("claude.launch", string(inv.cfg.Launch)),
			attribute.Bool("claude.resume", req.HasSession()),
		),
	)
	defer func() {
		if err != nil {
			span.SetAttributes(attribute.String("claude.error_kind", string(KindOf(err))))
			observability.RecordError(span, err)
		} else {
			span.SetAttributes(attribute.Bool("claude.structured", result.Structured))
		}
		span.End()
	}()

	args := BuildArgs(req.Prompt, req.SessionToken, inv.cfg.ExtraArgs)
	if err := exec.ValidateArguments(args); err != nil {
		return models.InvocationResult{}, err
	}
	cmd := inv.command(args, inv.childEnv(ctx, req))

	if inv.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.cfg.Timeout)
		defer cancel()
	}

	logger := inv.logger.With(
		"channel", req.Channel,
		"thread_ts", req.ThreadTS,
		"resume", req.HasSession(),
	)
	if id := observability.GetTurnID(ctx); id != "" {
		logger = logger.With("turn_id", id)
	}
	logger.Info("invoking claude", "launch", inv.cfg.Launch, "prompt_len", len(req.Prompt))

	start := time.Now()
	res, runErr := inv.runner.Run(ctx, cmd)
	elapsed := time.Since(start)
	observability.SetAttributes(span,
		"claude.exit_code", res.ExitCode,
		"claude.duration_ms", elapsed.Milliseconds(),
	)
	if runErr != nil {
		var spawnErr *SpawnError
		switch {
		case errors.As(runErr, &spawnErr):
			logger.Error("claude failed to start", "error", runErr)
			return models.InvocationResult{}, runErr
		case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
			logger.Warn("claude run interrupted", "error", runErr, "duration", elapsed)
			return models.InvocationResult{}, fmt.Errorf("claude run interrupted after %s: %w", elapsed.Round(time.Millisecond), runErr)
		default:
			logger.Error("claude run failed", "error", runErr)
			return models.InvocationResult{}, fmt.Errorf("claude run failed: %w", runErr)
		}
	}

	logger.Info("claude exited", "exit_code", res.ExitCode, "duration", elapsed)
	logger.Debug("claude output", "stdout", preview(res.Stdout), "stderr", preview(res.Stderr))

	if res.ExitCode != 0 {
		return models.InvocationResult{}, inv.classifyExit(res)
	}

	out := extract.Extract(res.Stdout)
	if !out.Structured {
		logger.Warn("no result record in claude output, using raw text")
	} else {
		logger.Info("claude result", "cost_usd", out.CostUSD, "cli_duration_ms", out.DurationMS)
		observability.SetAttributes(span,
			"claude.cost_usd", out.CostUSD,
			"claude.cli_duration_ms", out.DurationMS,
		)
	}
	if out.IsError {
		logger.Warn("claude reported an error result", "result", preview([]byte(out.Text)))
	}
	return models.InvocationResult{
		Text:         out.Text,
		SessionToken: out.Token,
		Structured:   out.Structured,
		IsError:      out.IsError,
	}, nil
}

// classifyExit maps a non-zero exit to an error. When a shell wrapper could
// not find the CLI the failure is reported as a launch failure.
func (inv *Invoker) classifyExit(res RunResult) error {
	detail := strings.TrimSpace(string(res.Stderr))
	if detail == "" {
		// Under script(1) everything arrives on stdout.
		detail = extract.Clean(res.Stdout)
	}
	detail = excerpt(detail)

	if res.ExitCode == commandNotFound && inv.cfg.Launch != LaunchDirect {
		return &SpawnError{Command: inv.cfg.Command, Err: errors.New(detail)}
	}
	return &ProcessError{ExitCode: res.ExitCode, Stderr: detail}
}

// BuildArgs assembles the CLI arguments: print mode, permission bypass, JSON
// output, any extra flags, the resume flag when token is set, and the prompt.
func BuildArgs(prompt, token string, extra []string) []string {
	args := []string{
		"-p",
		"--dangerously-skip-permissions",
		"--output-format", "json",
	}
	args = append(args, extra...)
	if token != "" {
		args = append(args, "-r", token)
	}
	// A prompt such as "- fix the list" must not be parsed as a flag.
	if strings.HasPrefix(prompt, "-") {
		args = append(args, "--")
	}
	return append(args, prompt)
}

// command wraps the CLI invocation according to the launch mode.
func (inv *Invoker) command(args []string, env []string) Command {
	cmd := Command{Env: env, Dir: inv.cfg.WorkDir}
	cliLine := exec.ShellJoin(append([]string{inv.cfg.Command}, args...)...)

	switch inv.cfg.Launch {
	case LaunchDirect:
		cmd.Name = inv.cfg.Command
		cmd.Args = args
	case LaunchLoginShell:
		cmd.Name = inv.cfg.Shell
		cmd.Args = []string{"-l", "-c", cliLine}
	case LaunchPTY:
		cmd.Name = inv.cfg.Script
		cmd.HoldStdin = true
		if inv.goos == "darwin" || strings.HasSuffix(inv.goos, "bsd") {
			// BSD script takes the command as trailing arguments.
			cmd.Args = []string{"-q", "/dev/null", inv.cfg.Shell, "-l", "-c", cliLine}
		} else {
			// util-linux script exits 0 unless -e passes the child's status through.
			cmd.Args = []string{"-q", "-e", "-c", exec.ShellJoin(inv.cfg.Shell, "-l", "-c", cliLine), "/dev/null"}
		}
	}
	return cmd
}

// childEnv is the inherited environment plus the thread correlation values
// and the W3C trace context of the invocation span.
func (inv *Invoker) childEnv(ctx context.Context, req models.InvocationRequest) []string {
	env := append([]string{}, inv.environ()...)
	env = append(env, observability.TraceEnv(ctx)...)
	for _, kv := range [][2]string{
		{EnvChannelID, req.Channel},
		{EnvThreadTS, req.ThreadTS},
		{EnvMessageTS, req.MessageTS},
	} {
		if kv[1] != "" {
			env = append(env, kv[0]+"="+kv[1])
		}
	}
	return env
}

func preview(b []byte) string {
	if len(b) <= logPreview {
		return string(b)
	}
	return string(b[:logPreview])
}
