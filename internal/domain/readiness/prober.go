package readiness

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/felixgeelhaar/bastion/internal/domain/config"
	"github.com/felixgeelhaar/bastion/internal/ports"
)

// Status is the outcome of waiting on a condition.
type Status int

const (
	// Satisfied means the condition was observed true.
	Satisfied Status = iota
	// TimedOut means the attempt budget was exhausted.
	TimedOut
)

// Result reports how a wait ended. On TimedOut, Reason carries the
// distinction the caller needs for guidance: a DNS record pointing at the
// wrong value reads differently from one that does not resolve at all.
type Result struct {
	Status   Status
	Attempts int
	Reason   string
}

// Err converts a timed-out result into a READINESS_TIMEOUT error with the
// reason as remediation context. Satisfied results return nil.
func (r Result) Err(cond Condition) error {
	if r.Status == Satisfied {
		return nil
	}
	return config.ErrReadinessTimeout.
		WithContext(cond.Describe()).
		WithSuggestion(r.Reason).
		WithUnderlying(fmt.Errorf("gave up after %d attempts", r.Attempts))
}

// Prober polls readiness conditions with bounded retries.
type Prober struct {
	resolver ports.Resolver
	runner   ports.CommandRunner
	logger   ports.Logger
	dial     func(ctx context.Context, addr string) error
	stat     func(path string) error
}

// NewProber creates a Prober using the given resolver and runner.
func NewProber(resolver ports.Resolver, runner ports.CommandRunner, logger ports.Logger) *Prober {
	return &Prober{
		resolver: resolver,
		runner:   runner,
		logger:   logger,
		dial:     dialTCP,
		stat:     statFile,
	}
}

// WithDialer overrides the TCP dialer; used by tests.
func (p *Prober) WithDialer(dial func(ctx context.Context, addr string) error) *Prober {
	clone := *p
	clone.dial = dial
	return &clone
}

// WithStat overrides the file presence check; used by tests.
func (p *Prober) WithStat(stat func(path string) error) *Prober {
	clone := *p
	clone.stat = stat
	return &clone
}

// Wait evaluates the condition repeatedly until it is satisfied or the
// attempt budget runs out. Context cancellation aborts the wait and is
// reported as TimedOut, never as a hang.
func (p *Prober) Wait(ctx context.Context, cond Condition) Result {
	attempts := cond.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastReason string
	for attempt := 1; attempt <= attempts; attempt++ {
		ok, reason := p.evaluate(ctx, cond)
		if ok {
			return Result{Status: Satisfied, Attempts: attempt}
		}
		lastReason = reason

		p.logger.Debug(ctx, "condition not yet satisfied",
			ports.F("condition", cond.Describe()),
			ports.F("attempt", attempt),
			ports.F("reason", reason))

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return Result{Status: TimedOut, Attempts: attempt, Reason: "wait cancelled: " + ctx.Err().Error()}
		case <-time.After(cond.Interval):
		}
	}

	return Result{Status: TimedOut, Attempts: attempts, Reason: lastReason}
}

// Evaluate checks the condition exactly once.
func (p *Prober) Evaluate(ctx context.Context, cond Condition) (bool, string) {
	return p.evaluate(ctx, cond)
}

func (p *Prober) evaluate(ctx context.Context, cond Condition) (bool, string) {
	switch cond.Kind {
	case PortOpen:
		if err := p.dial(ctx, cond.Target); err != nil {
			return false, fmt.Sprintf("%s is not accepting connections: %v", cond.Target, err)
		}
		return true, ""

	case DNSMatches:
		addrs, err := p.resolver.LookupHost(ctx, cond.Target)
		if err != nil {
			if ports.IsNotFound(err) {
				return false, fmt.Sprintf("%s does not resolve; create an A record pointing to %s", cond.Target, cond.Expected)
			}
			return false, fmt.Sprintf("lookup of %s failed: %v", cond.Target, err)
		}
		for _, addr := range addrs {
			if addr == cond.Expected {
				return true, ""
			}
		}
		return false, fmt.Sprintf("%s resolves to %s, expected %s; update the A record and wait for propagation",
			cond.Target, strings.Join(addrs, ","), cond.Expected)

	case FileExists:
		if err := p.stat(cond.Target); err != nil {
			return false, fmt.Sprintf("file %s not present", cond.Target)
		}
		return true, ""

	case ProcessRunning:
		result, err := p.runner.Run(ctx, "pgrep", "-x", cond.Target)
		if err != nil {
			return false, fmt.Sprintf("cannot check process %s: %v", cond.Target, err)
		}
		if !result.Success() {
			return false, fmt.Sprintf("process %s is not running", cond.Target)
		}
		return true, ""

	default:
		return false, fmt.Sprintf("unknown condition kind %q", cond.Kind)
	}
}

func dialTCP(ctx context.Context, addr string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

func statFile(path string) error {
	_, err := os.Stat(path)
	return err
}
