// Package app wires the domain packages into the operations the CLI
// exposes: hardening, firewall convergence, certificate provisioning, and
// service activation.
package app

import (
	"context"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/bastion/internal/adapters/command"
	"github.com/felixgeelhaar/bastion/internal/adapters/runlock"
	"github.com/felixgeelhaar/bastion/internal/domain/activation"
	"github.com/felixgeelhaar/bastion/internal/domain/certificate"
	"github.com/felixgeelhaar/bastion/internal/domain/config"
	"github.com/felixgeelhaar/bastion/internal/domain/firewall"
	"github.com/felixgeelhaar/bastion/internal/domain/netinfo"
	"github.com/felixgeelhaar/bastion/internal/domain/readiness"
	"github.com/felixgeelhaar/bastion/internal/domain/snapshot"
	"github.com/felixgeelhaar/bastion/internal/domain/sshconf"
	"github.com/felixgeelhaar/bastion/internal/domain/transition"
	"github.com/felixgeelhaar/bastion/internal/ports"
)

// DefaultComposeFile is where the service stack definition lives.
const DefaultComposeFile = "/opt/bastion/docker-compose.yml"

// Engine is the application orchestrator. Every mutating operation holds
// the host run lock for its full duration; two engines against one host
// are an operator error the lock turns into a clean failure.
type Engine struct {
	cfg      *config.Config
	runner   ports.CommandRunner
	resolver ports.Resolver
	logger   ports.Logger
	store    snapshot.Store

	catalog     activation.Catalog
	composeFile string
	confirm     transition.ConfirmFunc
	sshProbe    func(ctx context.Context, addr string) error
	fwDialer    func(ctx context.Context, addr string) error
	noLock      bool

	dnsAttempts int
	dnsInterval time.Duration
}

// New creates an Engine with production collaborators.
func New(cfg *config.Config, logger ports.Logger) *Engine {
	return &Engine{
		cfg:         cfg,
		runner:      command.NewRealRunner().WithSudo(),
		resolver:    ports.NewSystemResolver(),
		logger:      logger,
		store:       snapshot.NewFileStore(filepath.Join(cfg.StateDir, "snapshots")),
		catalog:     activation.DefaultCatalog(),
		composeFile: DefaultComposeFile,
	}
}

// WithRunner replaces the command runner.
func (e *Engine) WithRunner(runner ports.CommandRunner) *Engine {
	e.runner = runner
	return e
}

// WithResolver replaces the DNS resolver.
func (e *Engine) WithResolver(resolver ports.Resolver) *Engine {
	e.resolver = resolver
	return e
}

// WithStore replaces the snapshot store.
func (e *Engine) WithStore(store snapshot.Store) *Engine {
	e.store = store
	return e
}

// WithCatalog replaces the service catalog.
func (e *Engine) WithCatalog(catalog activation.Catalog) *Engine {
	e.catalog = catalog
	return e
}

// WithComposeFile points service activation at a different stack file.
func (e *Engine) WithComposeFile(path string) *Engine {
	e.composeFile = path
	return e
}

// WithConfirm installs an operator confirmation gate for transitions that
// replace the active access path.
func (e *Engine) WithConfirm(confirm transition.ConfirmFunc) *Engine {
	e.confirm = confirm
	return e
}

// WithSSHProbe replaces the SSH liveness probe. Used by tests.
func (e *Engine) WithSSHProbe(probe func(ctx context.Context, addr string) error) *Engine {
	e.sshProbe = probe
	return e
}

// WithFirewallDialer replaces the firewall probe dialer. Used by tests.
func (e *Engine) WithFirewallDialer(dial func(ctx context.Context, addr string) error) *Engine {
	e.fwDialer = dial
	return e
}

// WithDNSBudget overrides how long certificate issuance waits for the
// domain's A record to match this host.
func (e *Engine) WithDNSBudget(attempts int, interval time.Duration) *Engine {
	e.dnsAttempts = attempts
	e.dnsInterval = interval
	return e
}

// WithoutLock disables the run lock. Used by tests.
func (e *Engine) WithoutLock() *Engine {
	e.noLock = true
	return e
}

// acquireLock takes the single-writer lock for a mutating operation.
func (e *Engine) acquireLock() (release func(), err error) {
	if e.noLock {
		return func() {}, nil
	}
	lock, err := runlock.Acquire(e.cfg.StateDir)
	if err != nil {
		return nil, err
	}
	return func() { _ = lock.Release() }, nil
}

func (e *Engine) firewallManager() *firewall.Manager {
	return firewall.NewManager(e.runner, e.logger)
}

func (e *Engine) prober() *readiness.Prober {
	return readiness.NewProber(e.resolver, e.runner, e.logger)
}

func (e *Engine) discoverer() *netinfo.Discoverer {
	return netinfo.NewDiscoverer(e.runner, e.logger)
}

func (e *Engine) controller() *transition.Controller {
	ctrl := transition.NewController(e.store, e.logger)
	if e.confirm != nil {
		ctrl = ctrl.WithConfirm(e.confirm)
	}
	return ctrl
}

func (e *Engine) provisioner() *certificate.Provisioner {
	p := certificate.NewProvisioner(e.runner, e.prober(), e.firewallManager(),
		e.discoverer(), e.logger, e.cfg.CertRoot)
	if e.dnsAttempts > 0 {
		p = p.WithDNSBudget(e.dnsAttempts, e.dnsInterval)
	}
	return p
}

func (e *Engine) sshSubsystem() *sshconf.Subsystem {
	sub := sshconf.NewSubsystem(e.runner, e.logger, e.firewallManager(),
		e.cfg.SSH.ConfigPath, e.cfg.StateDir)
	if e.sshProbe != nil {
		sub.WithProbe(e.sshProbe)
	}
	return sub
}
