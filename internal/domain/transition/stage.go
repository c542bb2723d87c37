// Package transition moves a subsystem's configuration from a known-good
// state to a new state atomically: snapshot before mutation, validate the
// staged state before commit, verify liveness after commit, and restore the
// snapshot on any failure.
package transition

import "context"

// Stage is one configuration change in a plan. Apply stages the change
// without touching live state; Validate checks the staged result.
type Stage interface {
	Description() string
	Apply(ctx context.Context) error
	Validate(ctx context.Context) error
	Reversible() bool
}

// Plan is an ordered sequence of stages applied as one transition.
type Plan struct {
	stages []Stage
}

// NewPlan creates a plan from the given stages.
func NewPlan(stages ...Stage) *Plan {
	return &Plan{stages: stages}
}

// Add appends a stage.
func (p *Plan) Add(stage Stage) {
	p.stages = append(p.stages, stage)
}

// Stages returns the stages in order.
func (p *Plan) Stages() []Stage {
	return p.stages
}

// Len returns the number of stages.
func (p *Plan) Len() int {
	return len(p.stages)
}

// FuncStage builds a Stage from closures.
type FuncStage struct {
	Desc       string
	ApplyFn    func(ctx context.Context) error
	ValidateFn func(ctx context.Context) error
	CanReverse bool
}

// Description returns the stage description.
func (s FuncStage) Description() string {
	return s.Desc
}

// Apply stages the change.
func (s FuncStage) Apply(ctx context.Context) error {
	if s.ApplyFn == nil {
		return nil
	}
	return s.ApplyFn(ctx)
}

// Validate checks the staged change.
func (s FuncStage) Validate(ctx context.Context) error {
	if s.ValidateFn == nil {
		return nil
	}
	return s.ValidateFn(ctx)
}

// Reversible reports whether the stage can be undone by snapshot restore.
func (s FuncStage) Reversible() bool {
	return s.CanReverse
}

// Subsystem is a unit of access-critical configuration the controller can
// transition: capture its live state, promote a staged state, restore a
// capture verbatim, and probe whether the live state is actually serving.
type Subsystem interface {
	ID() string

	// Capture returns the live configuration bytes.
	Capture(ctx context.Context) ([]byte, error)

	// Commit promotes the staged configuration to live.
	Commit(ctx context.Context) error

	// Discard drops staged artifacts without touching live state.
	Discard(ctx context.Context) error

	// Restore reinstates previously captured bytes as the live
	// configuration and brings the subsystem back up on it.
	Restore(ctx context.Context, content []byte) error

	// Probe verifies the live configuration is serving.
	Probe(ctx context.Context) error
}

// Overlapper is implemented by subsystems whose commit would otherwise cut
// off the operator's own access path. The controller keeps both the prior
// and the new access path open through the probe window and retires the old
// path only after the new one is confirmed reachable.
type Overlapper interface {
	// OpenOverlap opens the new access path alongside the old one.
	OpenOverlap(ctx context.Context) error

	// CloseOverlap closes the new access path again after an abandoned
	// transition, leaving only the old one open.
	CloseOverlap(ctx context.Context) error

	// RetireOld closes the old access path.
	RetireOld(ctx context.Context) error
}
