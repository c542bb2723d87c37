// Package readiness evaluates externally observable conditions that gate
// dependent operations: open ports, propagated DNS records, certificate
// files, running processes.
package readiness

import (
	"fmt"
	"time"
)

// Kind identifies what a condition observes.
type Kind string

// Condition kinds.
const (
	PortOpen       Kind = "port-open"
	DNSMatches     Kind = "dns-matches"
	FileExists     Kind = "file-exists"
	ProcessRunning Kind = "process-running"
)

// Condition is a stateless descriptor of an external predicate plus its
// retry budget. Call sites choose their own budgets: DNS propagation waits
// minutes, a local port check waits seconds.
type Condition struct {
	Kind        Kind
	Target      string // address, DNS name, file path, or process name
	Expected    string // expected DNS value; unused by other kinds
	MaxAttempts int
	Interval    time.Duration
}

// PortOpenOn describes a TCP port that must accept connections.
func PortOpenOn(addr string, attempts int, interval time.Duration) Condition {
	return Condition{Kind: PortOpen, Target: addr, MaxAttempts: attempts, Interval: interval}
}

// DNSMatchesValue describes a name that must resolve to the expected address.
func DNSMatchesValue(name, expected string, attempts int, interval time.Duration) Condition {
	return Condition{Kind: DNSMatches, Target: name, Expected: expected, MaxAttempts: attempts, Interval: interval}
}

// FileExistsAt describes a file that must be present.
func FileExistsAt(path string, attempts int, interval time.Duration) Condition {
	return Condition{Kind: FileExists, Target: path, MaxAttempts: attempts, Interval: interval}
}

// ProcessRunningNamed describes a process that must be running.
func ProcessRunningNamed(name string, attempts int, interval time.Duration) Condition {
	return Condition{Kind: ProcessRunning, Target: name, MaxAttempts: attempts, Interval: interval}
}

// Describe renders the condition for logs and skip reasons.
func (c Condition) Describe() string {
	switch c.Kind {
	case PortOpen:
		return fmt.Sprintf("port %s open", c.Target)
	case DNSMatches:
		return fmt.Sprintf("%s resolves to %s", c.Target, c.Expected)
	case FileExists:
		return fmt.Sprintf("file %s present", c.Target)
	case ProcessRunning:
		return fmt.Sprintf("process %s running", c.Target)
	default:
		return string(c.Kind) + " " + c.Target
	}
}
