package activation

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/bastion/internal/ports"
)

// Activator issues the activation boundary commands: one teardown of stale
// containers, then one declarative compose invocation with the plan's
// profile set. It does not manage container lifecycles beyond that.
type Activator struct {
	runner      ports.CommandRunner
	logger      ports.Logger
	composeFile string
}

// NewActivator creates an Activator for the given compose file.
func NewActivator(runner ports.CommandRunner, logger ports.Logger, composeFile string) *Activator {
	return &Activator{runner: runner, logger: logger, composeFile: composeFile}
}

// Teardown removes stale containers from a previous activation.
func (a *Activator) Teardown(ctx context.Context) error {
	args := append(a.baseArgs(), "down", "--remove-orphans")
	result, err := a.runner.Run(ctx, "docker", args...)
	if err != nil {
		return fmt.Errorf("teardown stale containers: %w", err)
	}
	if !result.Success() {
		return fmt.Errorf("teardown stale containers: %s", strings.TrimSpace(result.Stderr))
	}
	return nil
}

// Activate starts every service in the plan. An empty plan issues no
// command at all.
func (a *Activator) Activate(ctx context.Context, plan *Plan) error {
	if plan.IsEmpty() {
		a.logger.Info(ctx, "nothing to activate")
		return nil
	}

	args := a.baseArgs()
	for _, profile := range plan.Profiles() {
		args = append(args, "--profile", profile)
	}
	args = append(args, "up", "-d", "--remove-orphans")

	result, err := a.runner.Run(ctx, "docker", args...)
	if err != nil {
		return fmt.Errorf("activate services: %w", err)
	}
	if !result.Success() {
		return fmt.Errorf("activate services: %s", strings.TrimSpace(result.Stderr))
	}

	a.logger.Info(ctx, "services activated", ports.F("profiles", strings.Join(plan.Profiles(), ",")))
	return nil
}

func (a *Activator) baseArgs() []string {
	return []string{"compose", "-f", a.composeFile}
}
