package certificate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/bastion/internal/domain/config"
	"github.com/felixgeelhaar/bastion/internal/domain/firewall"
	"github.com/felixgeelhaar/bastion/internal/domain/netinfo"
	"github.com/felixgeelhaar/bastion/internal/domain/readiness"
	"github.com/felixgeelhaar/bastion/internal/ports"
	"github.com/felixgeelhaar/statekit"
)

// State represents the provisioner's current stage.
type State string

// Provisioning states.
const (
	StateUnverified       State = "unverified"
	StateDomainVerifying  State = "domain_verifying"
	StateChallengeServing State = "challenge_serving"
	StateIssued           State = "issued"
	StateFailed           State = "failed"
)

// Event types for the provisioning state machine.
const (
	eventVerify   = "VERIFY"
	eventDomainOK = "DOMAIN_OK"
	eventIssued   = "ISSUED"
	eventFailed   = "FAILED"
)

// machineContext is the statekit context for one issuance.
type machineContext struct {
	Domain   string
	PublicIP string
}

// Provisioner drives the external ACME client. Every stage failure is a
// typed provisioning error with a remediation hint; none are retried
// automatically.
type Provisioner struct {
	runner         ports.CommandRunner
	prober         *readiness.Prober
	fw             *firewall.Manager
	discover       *netinfo.Discoverer
	logger         ports.Logger
	certRoot       string
	acmeConfigRoot string

	challengePort int
	dnsAttempts   int
	dnsInterval   time.Duration

	interp *statekit.Interpreter[machineContext]
}

// NewProvisioner creates a Provisioner.
func NewProvisioner(runner ports.CommandRunner, prober *readiness.Prober, fw *firewall.Manager, discover *netinfo.Discoverer, logger ports.Logger, certRoot string) *Provisioner {
	return &Provisioner{
		runner:         runner,
		prober:         prober,
		fw:             fw,
		discover:       discover,
		logger:         logger,
		certRoot:       certRoot,
		acmeConfigRoot: "/etc/letsencrypt",
		challengePort:  80,
		dnsAttempts:    6,
		dnsInterval:    10 * time.Second,
	}
}

// WithDNSBudget overrides the DNS verification retry budget.
func (p *Provisioner) WithDNSBudget(attempts int, interval time.Duration) *Provisioner {
	clone := *p
	clone.dnsAttempts = attempts
	clone.dnsInterval = interval
	return &clone
}

// WithACMEConfigRoot overrides the ACME client's configuration root.
func (p *Provisioner) WithACMEConfigRoot(root string) *Provisioner {
	clone := *p
	clone.acmeConfigRoot = root
	return &clone
}

// State returns the current provisioning state.
func (p *Provisioner) State() State {
	if p.interp == nil {
		return StateUnverified
	}
	return State(p.interp.State().Value)
}

// buildMachine constructs the issuance state machine. The machine tracks
// which stage the provisioner is in; stage work itself runs in Issue.
func buildMachine(domain string) (*statekit.Interpreter[machineContext], error) {
	machine, err := statekit.NewMachine[machineContext]("cert-issuance").
		WithInitial(statekit.StateID(StateUnverified)).
		WithContext(machineContext{Domain: domain}).
		State(statekit.StateID(StateUnverified)).
		On(eventVerify).Target(statekit.StateID(StateDomainVerifying)).Done().
		State(statekit.StateID(StateDomainVerifying)).
		On(eventDomainOK).Target(statekit.StateID(StateChallengeServing)).
		On(eventFailed).Target(statekit.StateID(StateFailed)).Done().
		State(statekit.StateID(StateChallengeServing)).
		On(eventIssued).Target(statekit.StateID(StateIssued)).
		On(eventFailed).Target(statekit.StateID(StateFailed)).Done().
		State(statekit.StateID(StateIssued)).Done().
		State(statekit.StateID(StateFailed)).Done().
		Build()
	if err != nil {
		return nil, err
	}
	return statekit.NewInterpreter(machine), nil
}

// Issue obtains certificate material for the domain.
//
// The domain must resolve to this host's own public address before the
// challenge is attempted, and the challenge port is opened in the firewall
// only for the duration of the challenge, on success and on failure alike.
func (p *Provisioner) Issue(ctx context.Context, domain, contactEmail, overrideIP string) (*Record, error) {
	interp, err := buildMachine(domain)
	if err != nil {
		return nil, fmt.Errorf("build issuance state machine: %w", err)
	}
	if p.interp != nil {
		p.interp.Stop()
	}
	p.interp = interp
	p.interp.Start()

	p.interp.Send(statekit.Event{Type: eventVerify})

	if err := p.verifyDomain(ctx, domain, overrideIP); err != nil {
		p.interp.Send(statekit.Event{Type: eventFailed})
		return nil, err
	}
	p.interp.Send(statekit.Event{Type: eventDomainOK})

	if err := p.serveChallenge(ctx, domain, contactEmail); err != nil {
		p.interp.Send(statekit.Event{Type: eventFailed})
		return nil, err
	}

	record, err := Load(p.certRoot, domain)
	if err != nil {
		p.interp.Send(statekit.Event{Type: eventFailed})
		return nil, config.ErrProvisionClient.
			WithContext(domain).
			WithSuggestion("the client reported success but left no usable certificate material; inspect its logs").
			WithUnderlying(err)
	}

	if err := p.registerRenewalJob(ctx); err != nil {
		p.logger.Warn(ctx, "renewal job not installed", ports.F("reason", err.Error()))
	}

	p.interp.Send(statekit.Event{Type: eventIssued})
	p.logger.Info(ctx, "certificate issued",
		ports.F("domain", domain), ports.F("not_after", record.NotAfter.Format(time.RFC3339)))
	return record, nil
}

// verifyDomain confirms the domain points at this host before any
// challenge traffic is invited.
func (p *Provisioner) verifyDomain(ctx context.Context, domain, overrideIP string) error {
	publicIP, err := p.discover.PublicIP(ctx, overrideIP)
	if err != nil {
		return err
	}
	p.logger.Info(ctx, "verifying domain ownership",
		ports.F("domain", domain), ports.F("expected", publicIP))

	cond := readiness.DNSMatchesValue(domain, publicIP, p.dnsAttempts, p.dnsInterval)
	result := p.prober.Wait(ctx, cond)
	if result.Status != readiness.Satisfied {
		return config.ErrDNSMismatch.
			WithContext(domain).
			WithSuggestion(fmt.Sprintf("create or update the A record for %s to %s, then re-run; %s",
				domain, publicIP, result.Reason)).
			WithUnderlying(fmt.Errorf("gave up after %d attempts", result.Attempts))
	}
	return nil
}

// serveChallenge runs the ACME HTTP challenge behind a scoped firewall
// rule on the well-known port.
func (p *Provisioner) serveChallenge(ctx context.Context, domain, contactEmail string) error {
	addr := fmt.Sprintf("127.0.0.1:%d", p.challengePort)
	if busy, _ := p.prober.Evaluate(ctx, readiness.PortOpenOn(addr, 1, 0)); busy {
		holder := p.portHolder(ctx)
		return config.ErrPortUnavailable.
			WithContext(fmt.Sprintf("port %d", p.challengePort)).
			WithSuggestion(fmt.Sprintf("stop the process listening on port %d (%s) and re-run", p.challengePort, holder)).
			WithUnderlying(fmt.Errorf("challenge port already has a listener"))
	}

	rule := firewall.Rule{Port: p.challengePort, Proto: firewall.TCP}
	return p.fw.WithTemporaryRule(ctx, rule, func(ctx context.Context) error {
		result, err := p.runner.Run(ctx, "certbot", "certonly",
			"--standalone", "--non-interactive", "--agree-tos",
			"-m", contactEmail, "-d", domain)
		if err != nil {
			return config.ErrProvisionClient.
				WithContext(domain).
				WithSuggestion("check that the acme client is installed and can reach the CA").
				WithUnderlying(err)
		}
		if !result.Success() {
			stderr := strings.TrimSpace(result.Stderr)
			if strings.Contains(stderr, "challenge") || strings.Contains(stderr, "Challenge") ||
				strings.Contains(stderr, "Invalid response") {
				return config.ErrChallengeRejected.
					WithContext(domain).
					WithSuggestion("the CA could not reach this host on the challenge port; check NAT and upstream firewalls").
					WithUnderlying(fmt.Errorf("%s", stderr))
			}
			return config.ErrProvisionClient.
				WithContext(domain).
				WithSuggestion("inspect the client output and re-run").
				WithUnderlying(fmt.Errorf("%s", stderr))
		}
		return nil
	})
}

// portHolder identifies what is listening on the challenge port, best
// effort, for the remediation hint.
func (p *Provisioner) portHolder(ctx context.Context) string {
	result, err := p.runner.Run(ctx, "ss", "-ltnp")
	if err != nil || !result.Success() {
		return "unknown process"
	}
	needle := fmt.Sprintf(":%d ", p.challengePort)
	for _, line := range strings.Split(result.Stdout, "\n") {
		if strings.Contains(line, needle) {
			if i := strings.Index(line, "users:"); i >= 0 {
				return strings.TrimSpace(line[i:])
			}
			return strings.TrimSpace(line)
		}
	}
	return "unknown process"
}
