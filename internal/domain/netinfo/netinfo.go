// Package netinfo discovers the host's public address.
package netinfo

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/felixgeelhaar/bastion/internal/domain/config"
	"github.com/felixgeelhaar/bastion/internal/ports"
)

// DefaultSources are queried in order; at least two must agree.
var DefaultSources = []string{
	"https://api.ipify.org",
	"https://ifconfig.me/ip",
	"https://icanhazip.com",
}

// Discoverer finds the host's public IP by querying multiple independent
// sources and requiring agreement. A single source can lie or be stale; two
// agreeing sources are treated as ground truth.
type Discoverer struct {
	runner  ports.CommandRunner
	logger  ports.Logger
	sources []string
}

// NewDiscoverer creates a Discoverer using the default sources.
func NewDiscoverer(runner ports.CommandRunner, logger ports.Logger) *Discoverer {
	return &Discoverer{runner: runner, logger: logger, sources: DefaultSources}
}

// WithSources overrides the discovery sources; used by tests.
func (d *Discoverer) WithSources(sources ...string) *Discoverer {
	return &Discoverer{runner: d.runner, logger: d.logger, sources: sources}
}

// PublicIP returns the discovered public address. If override is non-empty
// it is validated and used directly, bypassing discovery; the operator is
// trusted to know addresses the sources cannot see (NAT hairpins, new
// allocations).
func (d *Discoverer) PublicIP(ctx context.Context, override string) (string, error) {
	if override != "" {
		if net.ParseIP(override) == nil {
			return "", config.NewUserError(config.ErrCodeConfigInvalid,
				fmt.Sprintf("override %q is not a valid IP address", override))
		}
		return override, nil
	}

	votes := make(map[string]int)
	var failures []string

	for _, source := range d.sources {
		result, err := d.runner.Run(ctx, "curl", "-fsS", "--max-time", "10", source)
		if err != nil || !result.Success() {
			failures = append(failures, source)
			continue
		}
		addr := strings.TrimSpace(result.Stdout)
		if net.ParseIP(addr) == nil {
			failures = append(failures, source)
			continue
		}
		votes[addr]++
		if votes[addr] >= 2 {
			d.logger.Debug(ctx, "public address agreed", ports.F("address", addr))
			return addr, nil
		}
	}

	// A single responding source is acceptable only when nothing disagrees.
	if len(votes) == 1 {
		for addr := range votes {
			return addr, nil
		}
	}

	if len(votes) == 0 {
		return "", config.NewUserError(config.ErrCodeAddressDisagrees, "could not discover the public address").
			WithContext(strings.Join(failures, ", ")).
			WithSuggestion("check outbound connectivity, or pass the address explicitly with --public-ip")
	}

	var seen []string
	for addr := range votes {
		seen = append(seen, addr)
	}
	return "", config.NewUserError(config.ErrCodeAddressDisagrees,
		fmt.Sprintf("discovery sources disagree about the public address: %s", strings.Join(seen, " vs "))).
		WithSuggestion("pass the address explicitly with --public-ip")
}
