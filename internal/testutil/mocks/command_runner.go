// Package mocks provides test doubles for testing.
package mocks

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/felixgeelhaar/bastion/internal/ports"
)

// CommandRunner is a thread-safe test double for ports.CommandRunner.
//
// Exact command/args pairs can be scripted with AddResult/AddError; a
// fallback handler covers families of commands (ufw rules, certbot runs)
// whose arguments vary across a test.
type CommandRunner struct {
	mu       sync.RWMutex
	results  map[string]ports.CommandResult
	errors   map[string]error
	fallback func(command string, args []string) (ports.CommandResult, error)
	calls    []ports.CommandCall
}

// NewCommandRunner creates a new CommandRunner mock.
func NewCommandRunner() *CommandRunner {
	return &CommandRunner{
		results: make(map[string]ports.CommandResult),
		errors:  make(map[string]error),
		calls:   make([]ports.CommandCall, 0),
	}
}

// AddResult registers an expected command and its result.
func (m *CommandRunner) AddResult(command string, args []string, result ports.CommandResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[buildKey(command, args)] = result
}

// AddSuccess registers an expected command returning exit 0 with the given stdout.
func (m *CommandRunner) AddSuccess(command string, args []string, stdout string) {
	m.AddResult(command, args, ports.CommandResult{ExitCode: 0, Stdout: stdout})
}

// AddError registers an expected command that should return an error.
func (m *CommandRunner) AddError(command string, args []string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[buildKey(command, args)] = err
}

// SetFallback installs a handler for commands with no exact match.
func (m *CommandRunner) SetFallback(fn func(command string, args []string) (ports.CommandResult, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = fn
}

// Run executes a mock command.
func (m *CommandRunner) Run(_ context.Context, command string, args ...string) (ports.CommandResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, ports.CommandCall{
		Command: command,
		Args:    args,
	})
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()

	key := buildKey(command, args)

	if err, ok := m.errors[key]; ok {
		return ports.CommandResult{}, err
	}
	if result, ok := m.results[key]; ok {
		return result, nil
	}
	if m.fallback != nil {
		return m.fallback(command, args)
	}

	return ports.CommandResult{}, fmt.Errorf("no mock result for command: %s %v", command, args)
}

// Calls returns all recorded command invocations.
func (m *CommandRunner) Calls() []ports.CommandCall {
	m.mu.RLock()
	defer m.mu.RUnlock()

	calls := make([]ports.CommandCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// CalledWith reports whether any recorded call matches the command and
// contains every given argument.
func (m *CommandRunner) CalledWith(command string, args ...string) bool {
	for _, call := range m.Calls() {
		if call.Command != command {
			continue
		}
		joined := " " + strings.Join(call.Args, " ") + " "
		all := true
		for _, arg := range args {
			if !strings.Contains(joined, " "+arg+" ") {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// Reset clears all registered results, errors, and recorded calls.
func (m *CommandRunner) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = make(map[string]ports.CommandResult)
	m.errors = make(map[string]error)
	m.fallback = nil
	m.calls = make([]ports.CommandCall, 0)
}

func buildKey(command string, args []string) string {
	return command + ":" + strings.Join(args, ":")
}

// Ensure CommandRunner implements ports.CommandRunner.
var _ ports.CommandRunner = (*CommandRunner)(nil)
