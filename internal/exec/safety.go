// Package exec validates and quotes the values the bridge hands to the
// Claude CLI process.
package exec

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var (
	// shellMetachars matches characters that would let a configured command
	// name chain or redirect other commands.
	shellMetachars = regexp.MustCompile("[;&|`$<>]")

	// bareName matches executables resolved through PATH.
	bareName = regexp.MustCompile(`^[A-Za-z0-9._+-]+$`)
)

// Executable validation errors.
var (
	ErrEmptyExecutable    = errors.New("executable is empty")
	ErrExecutableNullByte = errors.New("executable contains null byte")
	ErrExecutableControl  = errors.New("executable contains control characters")
	ErrExecutableMetachar = errors.New("executable contains shell metacharacters")
	ErrExecutableQuote    = errors.New("executable contains quote characters")
	ErrExecutableOption   = errors.New("executable starts with dash (option injection)")
	ErrExecutableBareName = errors.New("executable contains invalid characters for bare name")
)

// ErrArgumentNullByte is returned for arguments the kernel cannot pass.
var ErrArgumentNullByte = errors.New("argument contains null byte")

// isLikelyPath reports whether value names a file rather than a PATH lookup.
func isLikelyPath(value string) bool {
	return strings.HasPrefix(value, ".") ||
		strings.HasPrefix(value, "~") ||
		strings.Contains(value, "/")
}

// SanitizeExecutable checks a configured command name or path and returns it
// trimmed. Paths may contain any printable character except quotes and shell
// metacharacters; bare names are limited to [A-Za-z0-9._+-].
func SanitizeExecutable(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	switch {
	case trimmed == "":
		return "", ErrEmptyExecutable
	case strings.ContainsRune(trimmed, 0):
		return "", ErrExecutableNullByte
	case strings.ContainsAny(trimmed, "\r\n"):
		return "", ErrExecutableControl
	case shellMetachars.MatchString(trimmed):
		return "", ErrExecutableMetachar
	case strings.ContainsAny(trimmed, `"'`):
		return "", ErrExecutableQuote
	}

	if isLikelyPath(trimmed) {
		return trimmed, nil
	}
	if strings.HasPrefix(trimmed, "-") {
		return "", ErrExecutableOption
	}
	if !bareName.MatchString(trimmed) {
		return "", ErrExecutableBareName
	}
	return trimmed, nil
}

// ValidateArguments rejects arguments that cannot be passed to a child
// process. Prompt text is otherwise unrestricted: quoting, not filtering,
// keeps it inert.
func ValidateArguments(args []string) error {
	for i, arg := range args {
		if strings.ContainsRune(arg, 0) {
			return &ArgumentError{Index: i, Err: ErrArgumentNullByte}
		}
	}
	return nil
}

// ArgumentError identifies the argument that failed validation.
type ArgumentError struct {
	Index int
	Err   error
}

func (e *ArgumentError) Error() string {
	return "argument " + strconv.Itoa(e.Index) + " is unsafe: " + e.Err.Error()
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}
