package app

import (
	"context"
	"time"

	"github.com/felixgeelhaar/bastion/internal/domain/activation"
	"github.com/felixgeelhaar/bastion/internal/ports"
)

// ActivateServices brings up the selected services, or the configured set
// when names is empty. Each service's readiness requirements are probed
// first; services with unmet requirements are skipped with a reason and
// the rest proceed. Firewall ports open only for services that activate.
func (e *Engine) ActivateServices(ctx context.Context, names []string) (*activation.Plan, error) {
	release, err := e.acquireLock()
	if err != nil {
		return nil, err
	}
	defer release()

	plan, err := e.planActivation(ctx, names)
	if err != nil {
		return nil, err
	}

	mgr := e.firewallManager()
	for _, entry := range plan.Entries() {
		for _, rule := range entry.Ports {
			if err := mgr.Allow(ctx, rule); err != nil {
				return nil, err
			}
		}
	}

	activator := activation.NewActivator(e.runner, e.logger, e.composeFile)
	if err := activator.Activate(ctx, plan); err != nil {
		return nil, err
	}

	for _, skip := range plan.Skipped() {
		e.logger.Warn(ctx, "service skipped",
			ports.F("service", skip.Name), ports.F("reason", skip.Reason))
	}
	return plan, nil
}

// PlanActivation computes the activation plan without activating anything.
func (e *Engine) PlanActivation(ctx context.Context, names []string) (*activation.Plan, error) {
	return e.planActivation(ctx, names)
}

// Teardown stops the whole service stack. Firewall rules and certificates
// are left in place.
func (e *Engine) Teardown(ctx context.Context) error {
	release, err := e.acquireLock()
	if err != nil {
		return err
	}
	defer release()

	return activation.NewActivator(e.runner, e.logger, e.composeFile).Teardown(ctx)
}

func (e *Engine) planActivation(ctx context.Context, names []string) (*activation.Plan, error) {
	if len(names) == 0 {
		names = e.cfg.Services
	}

	specs, err := e.catalog.Resolve(names, e.resolveOptions())
	if err != nil {
		return nil, err
	}

	planner := activation.NewPlanner(e.prober(), e.logger)
	return planner.Plan(ctx, specs)
}

func (e *Engine) resolveOptions() activation.ResolveOptions {
	return activation.ResolveOptions{
		Domain:       e.cfg.Domain,
		CertRoot:     e.cfg.CertRoot,
		FileAttempts: 3,
		FileInterval: time.Second,
		ProcAttempts: 5,
		ProcInterval: 2 * time.Second,
	}
}
