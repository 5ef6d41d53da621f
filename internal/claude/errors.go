package claude

import (
	"context"
	"errors"
	"fmt"
)

// maxExcerpt caps how much child output is carried in a ProcessError.
const maxExcerpt = 1000

// ErrEmptyPrompt is returned when there is nothing to send.
var ErrEmptyPrompt = errors.New("prompt cannot be empty")

// SpawnError means the CLI could not be started at all.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// ProcessError means the CLI ran and exited non-zero.
type ProcessError struct {
	ExitCode int
	// Stderr is a trimmed excerpt of the child's error output.
	Stderr string
}

func (e *ProcessError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("claude exited with code %d", e.ExitCode)
	}
	return fmt.Sprintf("claude exited with code %d: %s", e.ExitCode, e.Stderr)
}

// Kind classifies invocation failures for reporting and metrics.
type Kind string

const (
	KindSpawn    Kind = "spawn_failure"
	KindProcess  Kind = "process_failure"
	KindCanceled Kind = "canceled"
	KindInternal Kind = "internal"
)

// KindOf returns the Kind of err. A nil error has no kind.
func KindOf(err error) Kind {
	var (
		spawnErr   *SpawnError
		processErr *ProcessError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &spawnErr):
		return KindSpawn
	case errors.As(err, &processErr):
		return KindProcess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}

// excerpt truncates s to maxExcerpt runes.
func excerpt(s string) string {
	runes := []rune(s)
	if len(runes) <= maxExcerpt {
		return s
	}
	return string(runes[:maxExcerpt]) + "…"
}
