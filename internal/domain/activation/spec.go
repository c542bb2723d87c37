// Package activation selects which services come up and in what order,
// gated on externally observable readiness conditions.
package activation

import (
	"github.com/felixgeelhaar/bastion/internal/domain/firewall"
	"github.com/felixgeelhaar/bastion/internal/domain/readiness"
)

// Requirement pairs a readiness condition with the label reported when the
// condition is unmet, e.g. "missing certificate".
type Requirement struct {
	Condition readiness.Condition
	Reason    string
}

// ServiceSpec describes one activatable service. Specs are immutable once
// the operator's selection is finalized.
type ServiceSpec struct {
	Name     string
	Profile  string
	Ports    []firewall.Rule
	Requires []Requirement
}

// Skip records a service excluded from the plan and why. Services are
// never silently dropped.
type Skip struct {
	Name   string
	Reason string
}

// Plan is the ordered activation outcome for one run.
type Plan struct {
	entries []ServiceSpec
	skipped []Skip
}

// Entries returns the services to activate, in activation order.
func (p *Plan) Entries() []ServiceSpec {
	return p.entries
}

// Skipped returns the excluded services with reasons.
func (p *Plan) Skipped() []Skip {
	return p.skipped
}

// Profiles returns the profile tags to pass to the activation command.
func (p *Plan) Profiles() []string {
	profiles := make([]string, 0, len(p.entries))
	for _, spec := range p.entries {
		profiles = append(profiles, spec.Profile)
	}
	return profiles
}

// IsEmpty reports whether nothing will be activated.
func (p *Plan) IsEmpty() bool {
	return len(p.entries) == 0
}
