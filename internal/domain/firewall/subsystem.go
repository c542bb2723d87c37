package firewall

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/felixgeelhaar/bastion/internal/ports"
)

// Subsystem transitions the firewall ruleset. The desired ruleset is
// staged in memory, validated against a lockout guard, and committed as an
// allow/delete diff against the live rules.
type Subsystem struct {
	mgr    *Manager
	logger ports.Logger

	// guard is the rule carrying the operator's own access. A staged
	// ruleset that omits it never commits.
	guard Rule

	desired []Rule
	dial    func(ctx context.Context, addr string) error
}

// NewSubsystem creates the firewall subsystem. guard is the rule for the
// operator's own access path, typically the SSH port.
func NewSubsystem(mgr *Manager, logger ports.Logger, guard Rule) *Subsystem {
	return &Subsystem{
		mgr:    mgr,
		logger: logger,
		guard:  guard,
		dial:   dialTCP,
	}
}

// WithDialer replaces the probe dialer. Used by tests.
func (s *Subsystem) WithDialer(dial func(ctx context.Context, addr string) error) *Subsystem {
	s.dial = dial
	return s
}

// ID identifies the subsystem in snapshots and logs.
func (s *Subsystem) ID() string { return "firewall" }

// Capture renders the live ruleset.
func (s *Subsystem) Capture(ctx context.Context) ([]byte, error) {
	rules, err := s.mgr.Status(ctx)
	if err != nil {
		return nil, err
	}
	return Render(rules), nil
}

// StageRules records the desired ruleset. The live rules are not touched.
func (s *Subsystem) StageRules(rules []Rule) {
	s.desired = append([]Rule(nil), rules...)
}

// Validate rejects a staged ruleset that would close the guard rule.
func (s *Subsystem) Validate(_ context.Context) error {
	for _, rule := range s.desired {
		if rule == s.guard {
			return nil
		}
	}
	return fmt.Errorf("staged ruleset does not allow %s; committing it would close the active access path", s.guard)
}

// Commit applies the staged ruleset as a diff against the live rules.
func (s *Subsystem) Commit(ctx context.Context) error {
	return s.converge(ctx, s.desired)
}

// Discard drops the staged ruleset.
func (s *Subsystem) Discard(_ context.Context) error {
	s.desired = nil
	return nil
}

// Restore converges the live rules back to a previously captured ruleset.
func (s *Subsystem) Restore(ctx context.Context, content []byte) error {
	rules, err := ParseRendered(content)
	if err != nil {
		return fmt.Errorf("parse captured ruleset: %w", err)
	}
	return s.converge(ctx, rules)
}

// Probe verifies the guard port still accepts connections.
func (s *Subsystem) Probe(ctx context.Context) error {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(s.guard.Port))
	if err := s.dial(ctx, addr); err != nil {
		return fmt.Errorf("access path %s not reachable: %w", s.guard, err)
	}
	return nil
}

func (s *Subsystem) converge(ctx context.Context, target []Rule) error {
	current, err := s.mgr.Status(ctx)
	if err != nil {
		return err
	}

	add, remove := Diff(current, target)
	for _, rule := range add {
		if err := s.mgr.Allow(ctx, rule); err != nil {
			return err
		}
	}
	for _, rule := range remove {
		if err := s.mgr.Delete(ctx, rule); err != nil {
			return err
		}
	}
	s.logger.Info(ctx, "ruleset converged",
		ports.F("added", len(add)), ports.F("removed", len(remove)))
	return nil
}

func dialTCP(ctx context.Context, addr string) error {
	dialer := net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}
