package mocks

import (
	"context"
	"net"
	"sync"

	"github.com/felixgeelhaar/bastion/internal/ports"
)

// Resolver is a test double for ports.Resolver.
type Resolver struct {
	mu      sync.RWMutex
	records map[string][]string
	lookups int
}

// NewResolver creates a Resolver with no records.
func NewResolver() *Resolver {
	return &Resolver{records: make(map[string][]string)}
}

// SetRecord sets the addresses a name resolves to.
func (r *Resolver) SetRecord(host string, addrs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[host] = addrs
}

// RemoveRecord makes a name stop resolving.
func (r *Resolver) RemoveRecord(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, host)
}

// Lookups returns the number of LookupHost calls.
func (r *Resolver) Lookups() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookups
}

// LookupHost resolves from the registered records. Unknown names return a
// *net.DNSError with IsNotFound set, matching the system resolver.
func (r *Resolver) LookupHost(_ context.Context, host string) ([]string, error) {
	r.mu.Lock()
	r.lookups++
	r.mu.Unlock()

	r.mu.RLock()
	defer r.mu.RUnlock()

	addrs, ok := r.records[host]
	if !ok || len(addrs) == 0 {
		return nil, &net.DNSError{
			Err:        "no such host",
			Name:       host,
			IsNotFound: true,
		}
	}

	out := make([]string, len(addrs))
	copy(out, addrs)
	return out, nil
}

// Ensure Resolver implements ports.Resolver.
var _ ports.Resolver = (*Resolver)(nil)
