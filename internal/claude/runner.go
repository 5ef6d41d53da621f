package claude

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"time"
)

// waitDelay bounds how long Run waits for output pipes after the process is
// killed on context cancellation.
const waitDelay = 5 * time.Second

// Command is one fully resolved child process.
type Command struct {
	Name string
	Args []string
	Env  []string
	Dir  string
	// HoldStdin gives the child an open but silent stdin instead of /dev/null.
	// script(1) exits as soon as it reads EOF on stdin.
	HoldStdin bool
}

// RunResult is the collected output of a finished process.
type RunResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// CommandRunner executes a Command to completion.
//
// Run returns a nil error whenever the process started and exited, whatever
// its exit code. A process that could not be started yields a *SpawnError;
// a context that ended first yields the context's error.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (RunResult, error)
}

// ExecRunner runs commands with os/exec, buffering stdout and stderr fully.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, c Command) (RunResult, error) {
	cmd := osexec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Env = c.Env
	cmd.Dir = c.Dir
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if c.HoldStdin {
		// The write end stays open until Wait returns, so the child never sees EOF.
		r, w, err := os.Pipe()
		if err != nil {
			return RunResult{}, fmt.Errorf("stdin pipe: %w", err)
		}
		defer r.Close()
		defer w.Close()
		cmd.Stdin = r
	}

	if err := cmd.Start(); err != nil {
		return RunResult{}, &SpawnError{Command: c.Name, Err: err}
	}
	err := cmd.Wait()

	result := RunResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if ctxErr := ctx.Err(); ctxErr != nil {
		result.ExitCode = -1
		return result, ctxErr
	}

	var exitErr *osexec.ExitError
	switch {
	case err == nil:
		return result, nil
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	default:
		return result, err
	}
}

var _ CommandRunner = ExecRunner{}
