package ports

import (
	"context"
	"errors"
	"net"
)

// Resolver looks up DNS records. Implementations can use the system
// resolver or a test double.
type Resolver interface {
	// LookupHost resolves a name to its current address list.
	// A name that does not resolve returns an error, never an empty slice.
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// SystemResolver resolves names through the operating system.
type SystemResolver struct {
	resolver *net.Resolver
}

// NewSystemResolver creates a Resolver backed by the default net.Resolver.
func NewSystemResolver() *SystemResolver {
	return &SystemResolver{resolver: net.DefaultResolver}
}

// LookupHost resolves host via the system resolver.
func (r *SystemResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	return r.resolver.LookupHost(ctx, host)
}

// IsNotFound reports whether err indicates the name has no record at all,
// as opposed to a transport failure or a record with a different value.
func IsNotFound(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsNotFound
	}
	return false
}

// Ensure SystemResolver implements Resolver.
var _ Resolver = (*SystemResolver)(nil)
