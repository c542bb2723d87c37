package app

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/bastion/internal/domain/firewall"
	"github.com/felixgeelhaar/bastion/internal/domain/sshconf"
	"github.com/felixgeelhaar/bastion/internal/domain/transition"
)

// HardenSSH transitions the SSH daemon to the configured posture. The old
// and new ports stay open together until the new daemon answers a real
// handshake; any failure restores the captured configuration.
func (e *Engine) HardenSSH(ctx context.Context) (transition.Result, error) {
	release, err := e.acquireLock()
	if err != nil {
		return transition.Result{}, err
	}
	defer release()

	sub := e.sshSubsystem()
	posture := sshconf.Posture{
		Port:              e.cfg.SSH.Port,
		PermitRootLogin:   e.cfg.SSH.PermitRootLogin,
		AllowUsers:        e.cfg.SSH.AllowUsers,
		DisableForwarding: e.cfg.SSH.DisableForwarding,
	}

	plan := transition.NewPlan(transition.FuncStage{
		Desc: fmt.Sprintf("ssh posture (port %d)", posture.Port),
		ApplyFn: func(ctx context.Context) error {
			return sub.StagePosture(ctx, posture)
		},
		ValidateFn: sub.Validate,
		CanReverse: true,
	})

	return e.controller().Apply(ctx, sub, plan)
}

// ConvergeFirewall transitions the firewall to exactly the rules the
// configured services need plus the SSH port. The firewall is enabled
// first if it is not running.
func (e *Engine) ConvergeFirewall(ctx context.Context) (transition.Result, error) {
	release, err := e.acquireLock()
	if err != nil {
		return transition.Result{}, err
	}
	defer release()

	desired, err := e.desiredRules()
	if err != nil {
		return transition.Result{}, err
	}

	mgr := e.firewallManager()
	guard := firewall.Rule{Port: e.cfg.SSH.Port, Proto: firewall.TCP}

	// The access path must be allowed before the firewall comes up.
	if err := mgr.Allow(ctx, guard); err != nil {
		return transition.Result{}, err
	}
	if err := mgr.EnsureActive(ctx); err != nil {
		return transition.Result{}, err
	}

	sub := firewall.NewSubsystem(mgr, e.logger, guard)
	if e.fwDialer != nil {
		sub.WithDialer(e.fwDialer)
	}
	sub.StageRules(desired)

	plan := transition.NewPlan(transition.FuncStage{
		Desc:       fmt.Sprintf("firewall ruleset (%d rules)", len(desired)),
		ValidateFn: sub.Validate,
		CanReverse: true,
	})

	return e.controller().Apply(ctx, sub, plan)
}

// desiredRules computes the target ruleset: the SSH port plus every port
// of every configured service.
func (e *Engine) desiredRules() ([]firewall.Rule, error) {
	specs, err := e.catalog.Resolve(e.cfg.Services, e.resolveOptions())
	if err != nil {
		return nil, err
	}

	rules := []firewall.Rule{{Port: e.cfg.SSH.Port, Proto: firewall.TCP}}
	seen := map[firewall.Rule]bool{rules[0]: true}
	for _, spec := range specs {
		for _, rule := range spec.Ports {
			if !seen[rule] {
				seen[rule] = true
				rules = append(rules, rule)
			}
		}
	}
	return rules, nil
}
