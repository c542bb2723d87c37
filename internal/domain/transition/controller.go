package transition

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/bastion/internal/domain/config"
	"github.com/felixgeelhaar/bastion/internal/domain/snapshot"
	"github.com/felixgeelhaar/bastion/internal/ports"
)

// Outcome classifies how a transition ended.
type Outcome int

const (
	// Committed means the new configuration is live and verified.
	Committed Outcome = iota
	// RolledBack means the transition failed and the prior configuration
	// was restored and re-verified.
	RolledBack
	// Fatal means rollback itself failed; the host needs out-of-band
	// intervention and no further automated mutation may run.
	Fatal
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled-back"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Result describes a finished transition.
type Result struct {
	Outcome   Outcome
	Subsystem string
	Snapshot  snapshot.Snapshot
}

// ConfirmFunc reports whether the operator confirms the new access path is
// reachable. A nil ConfirmFunc auto-confirms on a successful probe.
type ConfirmFunc func(ctx context.Context) bool

// Controller sequences mutation stages for one subsystem with a pre-commit
// validation gate and post-commit liveness verification.
//
// The engine is the sole mutator of the subsystem for the duration of a
// run; concurrent transitions against the same host are undefined behavior
// and must be prevented by the caller (see the runlock package).
type Controller struct {
	store   snapshot.Store
	logger  ports.Logger
	confirm ConfirmFunc
}

// NewController creates a Controller backed by the given snapshot store.
func NewController(store snapshot.Store, logger ports.Logger) *Controller {
	return &Controller{store: store, logger: logger}
}

// WithConfirm returns a Controller that asks for operator confirmation
// before retiring the old access path.
func (c *Controller) WithConfirm(confirm ConfirmFunc) *Controller {
	return &Controller{store: c.store, logger: c.logger, confirm: confirm}
}

// Apply runs the plan against the subsystem.
//
// Exactly one snapshot exists for the subsystem during the transition. It
// is destroyed once the transition commits and restored verbatim on
// failure; a deferred check enforces this on every exit path.
func (c *Controller) Apply(ctx context.Context, sub Subsystem, plan *Plan) (Result, error) {
	id := sub.ID()
	log := c.logger.With(ports.F("subsystem", id))

	live, err := sub.Capture(ctx)
	if err != nil {
		return Result{Outcome: RolledBack, Subsystem: id},
			fmt.Errorf("capture %s configuration: %w", id, err)
	}

	snap, err := c.store.Save(ctx, id, live)
	if err != nil {
		return Result{Outcome: RolledBack, Subsystem: id},
			fmt.Errorf("save %s snapshot: %w", id, err)
	}
	log.Info(ctx, "snapshot captured", ports.F("snapshot", snap.ID), ports.F("bytes", snap.Size))

	var (
		committed bool
		mutated   bool // live state touched (commit attempted)
		restored  bool // live state known restored to the snapshot
		fatal     bool
	)

	defer func() {
		if committed {
			// Transition done; the snapshot's lifetime ends here.
			if err := c.store.Delete(ctx, snap.ID); err != nil {
				log.Warn(ctx, "stale snapshot left behind", ports.F("snapshot", snap.ID))
			}
			return
		}
		if fatal {
			// No further automated mutation. The snapshot stays for
			// console-level recovery.
			return
		}
		if mutated && !restored {
			// Crash-path safety net: an early return between commit and
			// rollback still restores the capture.
			if err := sub.Restore(ctx, live); err != nil {
				log.Error(ctx, "safety-net restore failed; manual intervention required",
					ports.F("snapshot", snap.ID))
				return
			}
			if overlap, ok := sub.(Overlapper); ok {
				_ = overlap.CloseOverlap(ctx)
			}
		}
		_ = sub.Discard(ctx)
		_ = c.store.Delete(ctx, snap.ID)
	}()

	// Stage every change, then validate the full staged configuration
	// before anything becomes live.
	for _, stage := range plan.Stages() {
		if err := stage.Apply(ctx); err != nil {
			return Result{Outcome: RolledBack, Subsystem: id, Snapshot: snap},
				config.ErrValidationFailed.
					WithContext(id + ": " + stage.Description()).
					WithSuggestion("fix the reported problem and re-run; the live configuration was not changed").
					WithUnderlying(err)
		}
	}
	for _, stage := range plan.Stages() {
		if err := stage.Validate(ctx); err != nil {
			return Result{Outcome: RolledBack, Subsystem: id, Snapshot: snap},
				config.ErrValidationFailed.
					WithContext(id + ": " + stage.Description()).
					WithSuggestion("fix the reported problem and re-run; the live configuration was not changed").
					WithUnderlying(err)
		}
	}
	log.Info(ctx, "staged configuration validated", ports.F("stages", plan.Len()))

	// A subsystem that carries the operator's own access must hold both
	// the old and the new path open through the probe window. A failed
	// commit plus rollback race could otherwise produce the exact lockout
	// it is meant to prevent.
	overlap, hasOverlap := sub.(Overlapper)
	if hasOverlap {
		if err := overlap.OpenOverlap(ctx); err != nil {
			return Result{Outcome: RolledBack, Subsystem: id, Snapshot: snap},
				fmt.Errorf("open dual-path overlap window for %s: %w", id, err)
		}
		log.Info(ctx, "dual-path overlap window open")
	}

	mutated = true
	if err := sub.Commit(ctx); err != nil {
		res, rbErr := c.rollback(ctx, log, sub, snap, live, err)
		if res.Outcome == Fatal {
			fatal = true
		} else {
			restored = true
		}
		return res, rbErr
	}
	log.Info(ctx, "staged configuration committed")

	if err := sub.Probe(ctx); err != nil {
		res, rbErr := c.rollback(ctx, log, sub, snap, live, err)
		if res.Outcome == Fatal {
			fatal = true
		} else {
			restored = true
		}
		return res, rbErr
	}
	log.Info(ctx, "new configuration is live and reachable")

	if hasOverlap {
		if c.confirm != nil && !c.confirm(ctx) {
			res, rbErr := c.rollback(ctx, log, sub, snap, live,
				fmt.Errorf("operator did not confirm the new access path"))
			if res.Outcome == Fatal {
				fatal = true
			} else {
				restored = true
			}
			return res, rbErr
		}
		if err := overlap.RetireOld(ctx); err != nil {
			// The new path is verified live; a lingering old path is safe
			// but must be surfaced.
			log.Warn(ctx, "old access path could not be retired", ports.F("reason", err.Error()))
		} else {
			log.Info(ctx, "old access path retired")
		}
	}

	committed = true
	return Result{Outcome: Committed, Subsystem: id, Snapshot: snap}, nil
}

// rollback restores the snapshot and re-probes the restored configuration.
// A restored configuration that fails its own probe is a fatal lockout
// risk: automation stops and the operator must intervene on the console.
// On a verified rollback the overlap window is closed again so the
// abandoned path does not stay reachable; on a fatal outcome both paths are
// left open for console recovery.
func (c *Controller) rollback(ctx context.Context, log ports.Logger, sub Subsystem, snap snapshot.Snapshot, live []byte, cause error) (Result, error) {
	log.Warn(ctx, "transition failed, restoring snapshot",
		ports.F("snapshot", snap.ID), ports.F("cause", cause.Error()))

	if err := sub.Restore(ctx, live); err != nil {
		return Result{Outcome: Fatal, Subsystem: sub.ID(), Snapshot: snap},
			config.ErrFatalLockoutRisk.
				WithContext(sub.ID()).
				WithSuggestion("do not re-run; restore " + sub.ID() + " from the console using snapshot " + snap.ID).
				WithUnderlying(fmt.Errorf("restore after %v: %w", cause, err))
	}

	if err := sub.Probe(ctx); err != nil {
		return Result{Outcome: Fatal, Subsystem: sub.ID(), Snapshot: snap},
			config.ErrFatalLockoutRisk.
				WithContext(sub.ID()).
				WithSuggestion("the restored configuration did not come back up; fix " + sub.ID() + " from the console before any further runs").
				WithUnderlying(fmt.Errorf("restored configuration probe after %v: %w", cause, err))
	}

	if overlap, ok := sub.(Overlapper); ok {
		if err := overlap.CloseOverlap(ctx); err != nil {
			log.Warn(ctx, "abandoned access path could not be closed", ports.F("reason", err.Error()))
		}
	}

	log.Info(ctx, "snapshot restored and verified", ports.F("snapshot", snap.ID))
	return Result{Outcome: RolledBack, Subsystem: sub.ID(), Snapshot: snap},
		config.ErrLivenessFailed.
			WithContext(sub.ID()).
			WithSuggestion("the previous configuration was restored and verified; inspect the cause and re-run").
			WithUnderlying(cause)
}
