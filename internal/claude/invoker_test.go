package claude

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	osexec "os/exec"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/haasonsaas/claudebridge/pkg/models"
)

// fakeRunner records the command it was given and replays a canned result.
type fakeRunner struct {
	RunFunc func(ctx context.Context, cmd Command) (RunResult, error)
	calls   []Command
}

func (f *fakeRunner) Run(ctx context.Context, cmd Command) (RunResult, error) {
	f.calls = append(f.calls, cmd)
	if f.RunFunc != nil {
		return f.RunFunc(ctx, cmd)
	}
	return RunResult{Stdout: []byte(`{"result":"ok","session_id":"s"}`)}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestInvoker(t *testing.T, cfg Config, runner CommandRunner) *Invoker {
	t.Helper()
	inv, err := NewInvoker(cfg,
		WithRunner(runner),
		WithLogger(discardLogger()),
		WithEnviron(func() []string { return []string{"PATH=/usr/bin", "HOME=/home/bot"} }),
	)
	if err != nil {
		t.Fatalf("NewInvoker() error = %v", err)
	}
	return inv
}

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		token  string
		extra  []string
		want   []string
	}{
		{
			name:   "new session",
			prompt: "hello",
			want:   []string{"-p", "--dangerously-skip-permissions", "--output-format", "json", "hello"},
		},
		{
			name:   "resume session",
			prompt: "and then?",
			token:  "abc",
			want:   []string{"-p", "--dangerously-skip-permissions", "--output-format", "json", "-r", "abc", "and then?"},
		},
		{
			name:   "extra args",
			prompt: "hi",
			extra:  []string{"--model", "sonnet"},
			want:   []string{"-p", "--dangerously-skip-permissions", "--output-format", "json", "--model", "sonnet", "hi"},
		},
		{
			name:   "dash prompt terminated",
			prompt: "- item one",
			want:   []string{"-p", "--dangerously-skip-permissions", "--output-format", "json", "--", "- item one"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildArgs(tt.prompt, tt.token, tt.extra)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("BuildArgs() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewInvoker_Defaults(t *testing.T) {
	inv := newTestInvoker(t, Config{}, &fakeRunner{})
	cfg := inv.Config()
	if cfg.Command != DefaultCommand || cfg.Launch != LaunchPTY || cfg.Shell != DefaultShell || cfg.Script != DefaultScript {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestNewInvoker_RejectsUnsafeConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"command injection", Config{Command: "claude; rm -rf /"}},
		{"unknown launch", Config{Launch: "telnet"}},
		{"bad shell", Config{Launch: LaunchLoginShell, Shell: "bash$(id)"}},
		{"negative timeout", Config{Timeout: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewInvoker(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestInvoker_CommandByLaunchMode(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		goos     string
		wantName string
		wantArgs []string
		wantHold bool
	}{
		{
			name:     "direct",
			cfg:      Config{Launch: LaunchDirect},
			wantName: "claude",
			wantArgs: []string{"-p", "--dangerously-skip-permissions", "--output-format", "json", "it's"},
		},
		{
			name:     "login shell",
			cfg:      Config{Launch: LaunchLoginShell},
			wantName: "bash",
			wantArgs: []string{"-l", "-c", `'claude' '-p' '--dangerously-skip-permissions' '--output-format' 'json' 'it'\''s'`},
		},
		{
			name:     "pty on linux",
			cfg:      Config{Launch: LaunchPTY},
			goos:     "linux",
			wantName: "script",
			wantArgs: []string{
				"-q", "-e", "-c",
				`'bash' '-l' '-c' ''\''claude'\'' '\''-p'\'' '\''--dangerously-skip-permissions'\'' '\''--output-format'\'' '\''json'\'' '\''it'\''\'\'''\''s'\'''`,
				"/dev/null",
			},
			wantHold: true,
		},
		{
			name:     "pty on darwin",
			cfg:      Config{Launch: LaunchPTY},
			goos:     "darwin",
			wantName: "script",
			wantArgs: []string{
				"-q", "/dev/null", "bash", "-l", "-c",
				`'claude' '-p' '--dangerously-skip-permissions' '--output-format' 'json' 'it'\''s'`,
			},
			wantHold: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			inv := newTestInvoker(t, tt.cfg, runner)
			if tt.goos != "" {
				inv.goos = tt.goos
			}
			if _, err := inv.Invoke(context.Background(), models.InvocationRequest{Prompt: "it's"}); err != nil {
				t.Fatalf("Invoke() error = %v", err)
			}
			if len(runner.calls) != 1 {
				t.Fatalf("expected 1 run, got %d", len(runner.calls))
			}
			got := runner.calls[0]
			if got.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", got.Name, tt.wantName)
			}
			if !reflect.DeepEqual(got.Args, tt.wantArgs) {
				t.Errorf("Args =\n%q\nwant\n%q", got.Args, tt.wantArgs)
			}
			if got.HoldStdin != tt.wantHold {
				t.Errorf("HoldStdin = %v, want %v", got.HoldStdin, tt.wantHold)
			}
		})
	}
}

func TestInvoker_CorrelationEnv(t *testing.T) {
	runner := &fakeRunner{}
	inv := newTestInvoker(t, Config{Launch: LaunchDirect}, runner)

	_, err := inv.Invoke(context.Background(), models.InvocationRequest{
		Prompt:    "hi",
		Channel:   "C1",
		ThreadTS:  "100.1",
		MessageTS: "200.2",
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	env := runner.calls[0].Env
	for _, want := range []string{"PATH=/usr/bin", "HOME=/home/bot", "SLACK_CHANNEL_ID=C1", "SLACK_THREAD_TS=100.1", "SLACK_MESSAGE_TS=200.2"} {
		found := false
		for _, kv := range env {
			if kv == want {
				found = true
			}
		}
		if !found {
			t.Errorf("env missing %q: %v", want, env)
		}
	}
}

func TestInvoker_TraceSpanAndEnv(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	runner := &fakeRunner{
		RunFunc: func(ctx context.Context, cmd Command) (RunResult, error) {
			return RunResult{ExitCode: 2, Stderr: []byte("nope")}, nil
		},
	}
	inv, err := NewInvoker(Config{Launch: LaunchDirect},
		WithRunner(runner),
		WithLogger(discardLogger()),
		WithTracer(tp.Tracer("test")),
		WithEnviron(func() []string { return nil }),
	)
	if err != nil {
		t.Fatalf("NewInvoker() error = %v", err)
	}

	if _, err := inv.Invoke(context.Background(), models.InvocationRequest{Prompt: "hi"}); err == nil {
		t.Fatal("Invoke() error = nil, want process failure")
	}

	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Name() != "claude.invoke" {
		t.Fatalf("spans = %v, want one claude.invoke", spans)
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("span status = %v, want error", spans[0].Status())
	}

	traceID := spans[0].SpanContext().TraceID().String()
	found := false
	for _, kv := range runner.calls[0].Env {
		if strings.HasPrefix(kv, "TRACEPARENT=00-"+traceID+"-") {
			found = true
		}
	}
	if !found {
		t.Errorf("child env missing TRACEPARENT for trace %s: %v", traceID, runner.calls[0].Env)
	}
}

func TestInvoker_SpanCarriesUsage(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	runner := &fakeRunner{
		RunFunc: func(ctx context.Context, cmd Command) (RunResult, error) {
			return RunResult{Stdout: []byte(`{"result":"ok","total_cost_usd":0.25,"duration_ms":1500}`)}, nil
		},
	}
	inv, err := NewInvoker(Config{Launch: LaunchDirect},
		WithRunner(runner),
		WithLogger(discardLogger()),
		WithTracer(tp.Tracer("test")),
	)
	if err != nil {
		t.Fatalf("NewInvoker() error = %v", err)
	}
	if _, err := inv.Invoke(context.Background(), models.InvocationRequest{Prompt: "hi"}); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	got := map[string]any{}
	for _, kv := range recorder.Ended()[0].Attributes() {
		got[string(kv.Key)] = kv.Value.AsInterface()
	}
	if got["claude.cost_usd"] != 0.25 {
		t.Errorf("claude.cost_usd = %v, want 0.25", got["claude.cost_usd"])
	}
	if got["claude.cli_duration_ms"] != int64(1500) {
		t.Errorf("claude.cli_duration_ms = %v, want 1500", got["claude.cli_duration_ms"])
	}
}

func TestInvoker_Results(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		result     RunResult
		runErr     error
		wantText   string
		wantToken  string
		wantKind   Kind
		wantErrSub string
	}{
		{
			name:      "structured result",
			result:    RunResult{Stdout: []byte("\x1b[2Knoise\n{\"result\":\"hi\",\"session_id\":\"abc\"}\n")},
			wantText:  "hi",
			wantToken: "abc",
		},
		{
			name:     "plain text fallback",
			result:   RunResult{Stdout: []byte("  just text \n")},
			wantText: "just text",
		},
		{
			name:       "non-zero exit",
			result:     RunResult{ExitCode: 1, Stderr: []byte("boom\n")},
			wantKind:   KindProcess,
			wantErrSub: "claude exited with code 1: boom",
		},
		{
			name:       "non-zero exit under pty reports stdout",
			result:     RunResult{ExitCode: 2, Stdout: []byte("\x1b[31mError: bad flag\x1b[0m\r\n")},
			wantKind:   KindProcess,
			wantErrSub: "Error: bad flag",
		},
		{
			name:       "shell cannot find cli",
			cfg:        Config{Launch: LaunchLoginShell},
			result:     RunResult{ExitCode: 127, Stderr: []byte("bash: claude: command not found")},
			wantKind:   KindSpawn,
			wantErrSub: "command not found",
		},
		{
			name:       "exit 127 from direct exec is a process failure",
			cfg:        Config{Launch: LaunchDirect},
			result:     RunResult{ExitCode: 127, Stderr: []byte("x")},
			wantKind:   KindProcess,
			wantErrSub: "code 127",
		},
		{
			name:       "spawn failure",
			runErr:     &SpawnError{Command: "claude", Err: errors.New("executable file not found in $PATH")},
			wantKind:   KindSpawn,
			wantErrSub: "failed to start claude",
		},
		{
			name:       "canceled",
			runErr:     context.Canceled,
			wantKind:   KindCanceled,
			wantErrSub: "interrupted",
		},
		{
			name:       "other runner error",
			runErr:     errors.New("wait: broken pipe"),
			wantKind:   KindInternal,
			wantErrSub: "broken pipe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{RunFunc: func(context.Context, Command) (RunResult, error) {
				return tt.result, tt.runErr
			}}
			inv := newTestInvoker(t, tt.cfg, runner)

			got, err := inv.Invoke(context.Background(), models.InvocationRequest{Prompt: "hello"})
			if tt.wantKind != "" {
				if err == nil {
					t.Fatal("expected error")
				}
				if kind := KindOf(err); kind != tt.wantKind {
					t.Errorf("KindOf() = %q, want %q (err: %v)", kind, tt.wantKind, err)
				}
				if !strings.Contains(err.Error(), tt.wantErrSub) {
					t.Errorf("error %q does not contain %q", err.Error(), tt.wantErrSub)
				}
				return
			}
			if err != nil {
				t.Fatalf("Invoke() error = %v", err)
			}
			if got.Text != tt.wantText || got.SessionToken != tt.wantToken {
				t.Errorf("Invoke() = %+v, want text %q token %q", got, tt.wantText, tt.wantToken)
			}
		})
	}
}

func TestInvoker_EmptyPrompt(t *testing.T) {
	runner := &fakeRunner{}
	inv := newTestInvoker(t, Config{}, runner)
	if _, err := inv.Invoke(context.Background(), models.InvocationRequest{Prompt: "  "}); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("Invoke() error = %v, want ErrEmptyPrompt", err)
	}
	if len(runner.calls) != 0 {
		t.Error("runner called for empty prompt")
	}
}

func TestInvoker_NullByteRejected(t *testing.T) {
	runner := &fakeRunner{}
	inv := newTestInvoker(t, Config{}, runner)
	if _, err := inv.Invoke(context.Background(), models.InvocationRequest{Prompt: "a\x00b"}); err == nil {
		t.Fatal("expected error for null byte")
	}
	if len(runner.calls) != 0 {
		t.Error("runner called for invalid prompt")
	}
}

func TestInvoker_Timeout(t *testing.T) {
	runner := &fakeRunner{RunFunc: func(ctx context.Context, _ Command) (RunResult, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected deadline on run context")
		}
		<-ctx.Done()
		return RunResult{ExitCode: -1}, ctx.Err()
	}}
	inv := newTestInvoker(t, Config{Timeout: 10 * time.Millisecond}, runner)

	_, err := inv.Invoke(context.Background(), models.InvocationRequest{Prompt: "slow"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Invoke() error = %v, want deadline exceeded", err)
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(nil) != "" {
		t.Error("KindOf(nil) should be empty")
	}
	wrapped := errors.Join(errors.New("ctx"), &ProcessError{ExitCode: 3})
	if KindOf(wrapped) != KindProcess {
		t.Errorf("KindOf(wrapped) = %q", KindOf(wrapped))
	}
}

func TestExcerpt(t *testing.T) {
	long := strings.Repeat("é", maxExcerpt+10)
	got := excerpt(long)
	if n := len([]rune(got)); n != maxExcerpt+1 {
		t.Errorf("excerpt rune length = %d, want %d", n, maxExcerpt+1)
	}
	if excerpt("short") != "short" {
		t.Error("short input changed")
	}
}

// writeScript creates an executable fake CLI in a temp dir.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-claude")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
}

const echoScript = `for a; do last=$a; done
printf '\033[2Kstarting\n'
printf '{"type":"result","result":"%s|%s|%s","session_id":"sess-1"}\n' "$last" "$#" "$SLACK_THREAD_TS"
`

func TestExecRunner_Direct(t *testing.T) {
	requireShell(t)
	script := writeScript(t, echoScript)

	inv, err := NewInvoker(Config{Command: script, Launch: LaunchDirect}, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("NewInvoker() error = %v", err)
	}
	got, err := inv.Invoke(context.Background(), models.InvocationRequest{
		Prompt:       "it's $HOME; `id`",
		SessionToken: "tok",
		ThreadTS:     "100.1",
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	// -p --dangerously-skip-permissions --output-format json -r tok <prompt>
	if want := "it's $HOME; `id`|7|100.1"; got.Text != want {
		t.Errorf("Text = %q, want %q", got.Text, want)
	}
	if got.SessionToken != "sess-1" {
		t.Errorf("SessionToken = %q", got.SessionToken)
	}
}

func TestExecRunner_LoginShellQuoting(t *testing.T) {
	requireShell(t)
	script := writeScript(t, echoScript)

	inv, err := NewInvoker(Config{Command: script, Launch: LaunchLoginShell, Shell: "/bin/sh"}, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("NewInvoker() error = %v", err)
	}
	prompt := "don't run $(touch /tmp/pwned) or `id`; ok"
	got, err := inv.Invoke(context.Background(), models.InvocationRequest{Prompt: prompt})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if want := prompt + "|5|"; got.Text != want {
		t.Errorf("Text = %q, want %q", got.Text, want)
	}
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	requireShell(t)
	script := writeScript(t, "echo boom >&2\nexit 1\n")

	inv, err := NewInvoker(Config{Command: script, Launch: LaunchDirect}, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("NewInvoker() error = %v", err)
	}
	_, err = inv.Invoke(context.Background(), models.InvocationRequest{Prompt: "hi"})
	var procErr *ProcessError
	if !errors.As(err, &procErr) {
		t.Fatalf("expected ProcessError, got %v", err)
	}
	if procErr.ExitCode != 1 || procErr.Stderr != "boom" {
		t.Errorf("ProcessError = %+v", procErr)
	}
}

func TestExecRunner_MissingExecutable(t *testing.T) {
	inv, err := NewInvoker(Config{Command: "/nonexistent/claude", Launch: LaunchDirect}, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("NewInvoker() error = %v", err)
	}
	_, err = inv.Invoke(context.Background(), models.InvocationRequest{Prompt: "hi"})
	if KindOf(err) != KindSpawn {
		t.Fatalf("KindOf() = %q, want spawn failure (err: %v)", KindOf(err), err)
	}
}

func TestExecRunner_HoldStdin(t *testing.T) {
	requireShell(t)
	// read returns only on EOF; with a held stdin the timeout fires instead.
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := ExecRunner{}.Run(ctx, Command{Name: "/bin/sh", Args: []string{"-c", "read line; echo eof"}, HoldStdin: true})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want deadline exceeded", err)
	}

	res, err := ExecRunner{}.Run(context.Background(), Command{Name: "/bin/sh", Args: []string{"-c", "read line; echo eof"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if strings.TrimSpace(string(res.Stdout)) != "eof" {
		t.Errorf("stdout = %q", res.Stdout)
	}
}

// newPTYInvoker returns an invoker that runs command under script(1) and
// skips the test when no working pseudo-terminal is available.
func newPTYInvoker(t *testing.T, command string) *Invoker {
	t.Helper()
	requireShell(t)
	if runtime.GOOS != "linux" {
		t.Skip("pty exit status test targets util-linux script")
	}
	if _, err := osexec.LookPath(DefaultScript); err != nil {
		t.Skip("script not available")
	}

	check, err := NewInvoker(Config{Command: writeScript(t, echoScript), Launch: LaunchPTY, Shell: "/bin/sh"}, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("NewInvoker() error = %v", err)
	}
	if _, err := check.Invoke(context.Background(), models.InvocationRequest{Prompt: "ping"}); err != nil {
		t.Skipf("script cannot allocate a pty here: %v", err)
	}

	inv, err := NewInvoker(Config{Command: command, Launch: LaunchPTY, Shell: "/bin/sh"}, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("NewInvoker() error = %v", err)
	}
	return inv
}

func TestExecRunner_PTYReportsFailures(t *testing.T) {
	t.Run("non-zero exit", func(t *testing.T) {
		inv := newPTYInvoker(t, writeScript(t, "echo boom >&2\nexit 1\n"))
		_, err := inv.Invoke(context.Background(), models.InvocationRequest{Prompt: "fail"})
		var procErr *ProcessError
		if !errors.As(err, &procErr) {
			t.Fatalf("expected ProcessError, got %v", err)
		}
		if procErr.ExitCode != 1 || !strings.Contains(procErr.Stderr, "boom") {
			t.Errorf("ProcessError = %+v", procErr)
		}
	})

	t.Run("missing command", func(t *testing.T) {
		inv := newPTYInvoker(t, "/nonexistent/claude")
		_, err := inv.Invoke(context.Background(), models.InvocationRequest{Prompt: "hi"})
		if KindOf(err) != KindSpawn {
			t.Fatalf("KindOf(%v) = %q, want %q", err, KindOf(err), KindSpawn)
		}
	})
}
