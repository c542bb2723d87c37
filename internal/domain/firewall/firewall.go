// Package firewall manages the host firewall as an ordered list of allow
// rules keyed by (port, protocol), driven through ufw.
package firewall

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/bastion/internal/ports"
)

// Protocol is a transport protocol for a rule.
type Protocol string

// Supported protocols.
const (
	TCP Protocol = "tcp"
	UDP Protocol = "udp"
)

// Rule is one allow rule.
type Rule struct {
	Port  int
	Proto Protocol
}

// String formats the rule the way ufw expects it.
func (r Rule) String() string {
	return fmt.Sprintf("%d/%s", r.Port, r.Proto)
}

// Valid reports whether the rule can be applied.
func (r Rule) Valid() bool {
	return r.Port >= 1 && r.Port <= 65535 && (r.Proto == TCP || r.Proto == UDP)
}

// ParseRule parses "2222/tcp" into a Rule.
func ParseRule(s string) (Rule, error) {
	portPart, protoPart, found := strings.Cut(s, "/")
	if !found {
		return Rule{}, fmt.Errorf("malformed rule %q: want port/proto", s)
	}
	port, err := strconv.Atoi(portPart)
	if err != nil {
		return Rule{}, fmt.Errorf("malformed rule %q: %w", s, err)
	}
	rule := Rule{Port: port, Proto: Protocol(strings.ToLower(protoPart))}
	if !rule.Valid() {
		return Rule{}, fmt.Errorf("invalid rule %q", s)
	}
	return rule, nil
}

// Manager mutates the live firewall through the command runner.
type Manager struct {
	runner ports.CommandRunner
	logger ports.Logger
}

// NewManager creates a firewall Manager.
func NewManager(runner ports.CommandRunner, logger ports.Logger) *Manager {
	return &Manager{runner: runner, logger: logger}
}

// Status lists the current allow rules in their configured order.
func (m *Manager) Status(ctx context.Context) ([]Rule, error) {
	result, err := m.runner.Run(ctx, "ufw", "status")
	if err != nil {
		return nil, fmt.Errorf("query firewall status: %w", err)
	}
	if !result.Success() {
		return nil, fmt.Errorf("ufw status failed: %s", strings.TrimSpace(result.Stderr))
	}
	return parseStatus(result.Stdout), nil
}

// Allow opens a port.
func (m *Manager) Allow(ctx context.Context, rule Rule) error {
	if !rule.Valid() {
		return fmt.Errorf("invalid firewall rule %s", rule)
	}
	result, err := m.runner.Run(ctx, "ufw", "allow", rule.String())
	if err != nil {
		return fmt.Errorf("allow %s: %w", rule, err)
	}
	if !result.Success() {
		return fmt.Errorf("allow %s: %s", rule, strings.TrimSpace(result.Stderr))
	}
	m.logger.Info(ctx, "firewall rule opened", ports.F("rule", rule.String()))
	return nil
}

// EnsureActive enables the firewall if it is not already running. The
// caller must have allowed its own access path first.
func (m *Manager) EnsureActive(ctx context.Context) error {
	result, err := m.runner.Run(ctx, "ufw", "status")
	if err != nil {
		return fmt.Errorf("query firewall status: %w", err)
	}
	if strings.Contains(result.Stdout, "Status: active") {
		return nil
	}

	result, err = m.runner.Run(ctx, "ufw", "--force", "enable")
	if err != nil {
		return fmt.Errorf("enable firewall: %w", err)
	}
	if !result.Success() {
		return fmt.Errorf("enable firewall: %s", strings.TrimSpace(result.Stderr))
	}
	m.logger.Info(ctx, "firewall enabled")
	return nil
}

// Delete closes a previously allowed port.
func (m *Manager) Delete(ctx context.Context, rule Rule) error {
	result, err := m.runner.Run(ctx, "ufw", "delete", "allow", rule.String())
	if err != nil {
		return fmt.Errorf("delete %s: %w", rule, err)
	}
	if !result.Success() {
		return fmt.Errorf("delete %s: %s", rule, strings.TrimSpace(result.Stderr))
	}
	m.logger.Info(ctx, "firewall rule closed", ports.F("rule", rule.String()))
	return nil
}

// WithTemporaryRule opens a rule, runs fn, and closes the rule again on
// every path. The closing error is reported only when fn itself succeeded.
func (m *Manager) WithTemporaryRule(ctx context.Context, rule Rule, fn func(ctx context.Context) error) error {
	if err := m.Allow(ctx, rule); err != nil {
		return err
	}

	fnErr := fn(ctx)

	if err := m.Delete(ctx, rule); err != nil {
		if fnErr != nil {
			m.logger.Warn(ctx, "temporary rule left open after failure",
				ports.F("rule", rule.String()), ports.F("close_error", err.Error()))
			return fnErr
		}
		return err
	}
	return fnErr
}

// parseStatus extracts allow rules from ufw status output:
//
//	Status: active
//
//	To                         Action      From
//	--                         ------      ----
//	22/tcp                     ALLOW       Anywhere
func parseStatus(out string) []Rule {
	var rules []Rule
	seen := make(map[Rule]bool)
	for _, rawLine := range strings.Split(out, "\n") {
		fields := strings.Fields(rawLine)
		// The action column shifts right for "(v6)" rows.
		if len(fields) < 2 || (fields[1] != "ALLOW" && (len(fields) < 3 || fields[2] != "ALLOW")) {
			continue
		}
		rule, err := ParseRule(fields[0])
		if err != nil {
			continue
		}
		if !seen[rule] {
			seen[rule] = true
			rules = append(rules, rule)
		}
	}
	return rules
}

// Render serializes rules one per line, a stable text form used for
// snapshots of the firewall subsystem.
func Render(rules []Rule) []byte {
	var b strings.Builder
	for _, rule := range rules {
		b.WriteString(rule.String())
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// ParseRendered reads the Render form back into rules.
func ParseRendered(content []byte) ([]Rule, error) {
	var rules []Rule
	for _, rawLine := range strings.Split(strings.TrimSpace(string(content)), "\n") {
		if rawLine == "" {
			continue
		}
		rule, err := ParseRule(rawLine)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Diff computes the rules to add and remove to move from current to desired.
// Order is normalized so the result is deterministic.
func Diff(current, desired []Rule) (add, remove []Rule) {
	have := make(map[Rule]bool, len(current))
	for _, rule := range current {
		have[rule] = true
	}
	want := make(map[Rule]bool, len(desired))
	for _, rule := range desired {
		want[rule] = true
	}

	for _, rule := range desired {
		if !have[rule] {
			add = append(add, rule)
		}
	}
	for _, rule := range current {
		if !want[rule] {
			remove = append(remove, rule)
		}
	}
	sortRules(add)
	sortRules(remove)
	return add, remove
}

func sortRules(rules []Rule) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Port != rules[j].Port {
			return rules[i].Port < rules[j].Port
		}
		return rules[i].Proto < rules[j].Proto
	})
}
