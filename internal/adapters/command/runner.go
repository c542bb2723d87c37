// Package command provides command execution adapters.
package command

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/felixgeelhaar/bastion/internal/ports"
)

// RealRunner executes actual host commands, optionally through sudo.
type RealRunner struct {
	sudo bool
}

// NewRealRunner creates a new RealRunner.
func NewRealRunner() *RealRunner {
	return &RealRunner{}
}

// WithSudo returns a runner that prefixes every command with sudo.
// Required when bastion is not run as root but must mutate sshd or ufw.
func (r *RealRunner) WithSudo() *RealRunner {
	return &RealRunner{sudo: true}
}

// Run executes a command and returns the result. A non-zero exit status is
// reported in the result, not as an error; errors mean the command could
// not be started or was cancelled.
func (r *RealRunner) Run(ctx context.Context, command string, args ...string) (ports.CommandResult, error) {
	if r.sudo {
		args = append([]string{"-n", command}, args...)
		command = "sudo"
	}

	cmd := exec.CommandContext(ctx, command, args...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := ports.CommandResult{
		ExitCode: 0,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, err
	}

	return result, nil
}

// Ensure RealRunner implements ports.CommandRunner.
var _ ports.CommandRunner = (*RealRunner)(nil)
