package claude

import (
	"fmt"
	"time"

	"github.com/haasonsaas/claudebridge/internal/exec"
)

// LaunchMode selects how the CLI process is started.
type LaunchMode string

const (
	// LaunchDirect execs the command with an argument vector. No shell is involved.
	LaunchDirect LaunchMode = "direct"
	// LaunchLoginShell runs the command line through `<shell> -l -c` so profile
	// scripts set up PATH and credentials first.
	LaunchLoginShell LaunchMode = "login_shell"
	// LaunchPTY wraps the login shell in script(1) so the CLI sees a terminal.
	LaunchPTY LaunchMode = "pty"
)

const (
	DefaultCommand = "claude"
	DefaultShell   = "bash"
	DefaultScript  = "script"
)

// Config controls how the CLI is invoked.
type Config struct {
	// Command is the CLI executable name or path.
	Command string
	// ExtraArgs are inserted after the fixed flags, before the session flag.
	ExtraArgs []string
	Launch    LaunchMode
	// Shell is the login shell for LaunchLoginShell and LaunchPTY.
	Shell string
	// Script is the script(1) binary for LaunchPTY.
	Script string
	// WorkDir is the child's working directory; empty inherits ours.
	WorkDir string
	// Timeout bounds a single run. Zero means no limit.
	Timeout time.Duration
}

// applyDefaults fills unset fields and validates the executables.
func (c *Config) applyDefaults() error {
	if c.Command == "" {
		c.Command = DefaultCommand
	}
	if c.Launch == "" {
		c.Launch = LaunchPTY
	}
	if c.Shell == "" {
		c.Shell = DefaultShell
	}
	if c.Script == "" {
		c.Script = DefaultScript
	}

	if !IsValidLaunchMode(string(c.Launch)) {
		return fmt.Errorf("unknown launch mode %q", c.Launch)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}

	var err error
	if c.Command, err = exec.SanitizeExecutable(c.Command); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	if c.Launch == LaunchDirect {
		return nil
	}
	if c.Shell, err = exec.SanitizeExecutable(c.Shell); err != nil {
		return fmt.Errorf("shell: %w", err)
	}
	if c.Launch == LaunchPTY {
		if c.Script, err = exec.SanitizeExecutable(c.Script); err != nil {
			return fmt.Errorf("script: %w", err)
		}
	}
	return nil
}

// IsValidLaunchMode reports whether mode names a known launch mode.
func IsValidLaunchMode(mode string) bool {
	switch LaunchMode(mode) {
	case LaunchDirect, LaunchLoginShell, LaunchPTY:
		return true
	default:
		return false
	}
}

// Validate reports whether c would be accepted by NewInvoker.
func (c Config) Validate() error {
	return c.applyDefaults()
}
