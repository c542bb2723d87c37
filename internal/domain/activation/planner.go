package activation

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/bastion/internal/domain/config"
	"github.com/felixgeelhaar/bastion/internal/domain/firewall"
	"github.com/felixgeelhaar/bastion/internal/domain/readiness"
	"github.com/felixgeelhaar/bastion/internal/ports"
)

// Planner computes an activation plan from the operator's selection.
type Planner struct {
	prober *readiness.Prober
	logger ports.Logger
}

// NewPlanner creates a Planner.
func NewPlanner(prober *readiness.Prober, logger ports.Logger) *Planner {
	return &Planner{prober: prober, logger: logger}
}

// Plan validates the selection and evaluates every service's requirements.
//
// Port collisions are a planning error detected before any probing: nothing
// is activated partially. Services with unmet requirements are excluded
// with a recorded reason, not silently dropped. Activation order is
// selection order; services here are independent endpoints, but the plan
// type supports a general ordering should a future service depend on
// another's activation.
func (p *Planner) Plan(ctx context.Context, selected []ServiceSpec) (*Plan, error) {
	if err := checkPortCollisions(selected); err != nil {
		return &Plan{}, err
	}

	plan := &Plan{}
	for _, spec := range selected {
		if skip, unmet := p.unmetRequirement(ctx, spec); unmet {
			p.logger.Warn(ctx, "service excluded from activation",
				ports.F("service", spec.Name), ports.F("reason", skip.Reason))
			plan.skipped = append(plan.skipped, skip)
			continue
		}
		plan.entries = append(plan.entries, spec)
	}
	return plan, nil
}

func (p *Planner) unmetRequirement(ctx context.Context, spec ServiceSpec) (Skip, bool) {
	for _, req := range spec.Requires {
		result := p.prober.Wait(ctx, req.Condition)
		if result.Status == readiness.Satisfied {
			continue
		}
		reason := req.Reason
		if reason == "" {
			reason = "unmet condition: " + req.Condition.Describe()
		}
		if result.Reason != "" {
			reason += " (" + result.Reason + ")"
		}
		return Skip{Name: spec.Name, Reason: reason}, true
	}
	return Skip{}, false
}

func checkPortCollisions(selected []ServiceSpec) error {
	owner := make(map[firewall.Rule]string)
	for _, spec := range selected {
		for _, port := range spec.Ports {
			if other, taken := owner[port]; taken {
				return config.ErrPortCollision.
					WithContext(fmt.Sprintf("%s and %s both use %s", other, spec.Name, port)).
					WithSuggestion("change one service's port or deselect one of the two")
			}
			owner[port] = spec.Name
		}
	}
	return nil
}
