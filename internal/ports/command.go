// Package ports defines interfaces for external dependencies.
package ports

import (
	"context"
	"time"
)

// CommandResult represents the result of executing a host command.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success returns true if the command exited with code 0.
func (r CommandResult) Success() bool {
	return r.ExitCode == 0
}

// CommandCall records a command invocation.
type CommandCall struct {
	Command string
	Args    []string
}

// CommandRunner executes privileged host commands. All host mutation and
// inspection goes through this single choke point.
type CommandRunner interface {
	Run(ctx context.Context, command string, args ...string) (CommandResult, error)
}

// RunWithTimeout runs a command under a bounded deadline.
func RunWithTimeout(ctx context.Context, runner CommandRunner, timeout time.Duration, command string, args ...string) (CommandResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return runner.Run(runCtx, command, args...)
}
