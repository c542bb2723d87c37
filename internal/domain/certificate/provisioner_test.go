package certificate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/bastion/internal/adapters/logging"
	"github.com/felixgeelhaar/bastion/internal/domain/config"
	"github.com/felixgeelhaar/bastion/internal/domain/firewall"
	"github.com/felixgeelhaar/bastion/internal/domain/netinfo"
	"github.com/felixgeelhaar/bastion/internal/domain/readiness"
	"github.com/felixgeelhaar/bastion/internal/ports"
	"github.com/felixgeelhaar/bastion/internal/testutil/mocks"
)

const (
	testDomain = "vpn.example.com"
	testIP     = "203.0.113.7"
	testEmail  = "admin@example.com"
)

type provisionerFixture struct {
	runner   *mocks.CommandRunner
	resolver *mocks.Resolver
	prov     *Provisioner
}

// newIssueFixture wires a Provisioner with a free challenge port and a
// two-attempt DNS budget. The public address is passed as an override so
// no discovery sources are consulted.
func newIssueFixture(t *testing.T, certRoot string, portBusy bool) *provisionerFixture {
	t.Helper()

	runner := mocks.NewCommandRunner()
	resolver := mocks.NewResolver()
	logger := logging.NewNop()

	dial := func(context.Context, string) error { return errors.New("connection refused") }
	if portBusy {
		dial = func(context.Context, string) error { return nil }
	}
	prober := readiness.NewProber(resolver, runner, logger).WithDialer(dial)

	prov := NewProvisioner(runner, prober, firewall.NewManager(runner, logger),
		netinfo.NewDiscoverer(runner, logger), logger, certRoot).
		WithDNSBudget(2, time.Millisecond)

	return &provisionerFixture{runner: runner, resolver: resolver, prov: prov}
}

func TestIssueSuccess(t *testing.T) {
	t.Parallel()

	certRoot := t.TempDir()
	writeTestCert(t, certRoot, testDomain, time.Now().Add(90*24*time.Hour))

	f := newIssueFixture(t, certRoot, false)
	f.resolver.SetRecord(testDomain, testIP)
	f.runner.SetFallback(func(string, []string) (ports.CommandResult, error) {
		return ports.CommandResult{ExitCode: 0}, nil
	})

	record, err := f.prov.Issue(context.Background(), testDomain, testEmail, testIP)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, testDomain, record.Domain)
	assert.Equal(t, StateIssued, f.prov.State())

	assert.True(t, f.runner.CalledWith("ufw", "allow", "80/tcp"))
	assert.True(t, f.runner.CalledWith("certbot", "certonly", "-d", testDomain, "-m", testEmail))
	assert.True(t, f.runner.CalledWith("ufw", "delete", "allow", "80/tcp"))
}

func TestIssueDNSMismatchNeverOpensChallengePort(t *testing.T) {
	t.Parallel()

	f := newIssueFixture(t, t.TempDir(), false)
	f.resolver.SetRecord(testDomain, "198.51.100.9")

	_, err := f.prov.Issue(context.Background(), testDomain, testEmail, testIP)
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrDNSMismatch))
	assert.Equal(t, StateFailed, f.prov.State())

	var userErr *config.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.Suggestion, testIP)

	// The failure stays in DNS verification; no firewall or client calls.
	assert.False(t, f.runner.CalledWith("ufw"))
	assert.False(t, f.runner.CalledWith("certbot"))
}

func TestIssueNoDNSRecord(t *testing.T) {
	t.Parallel()

	f := newIssueFixture(t, t.TempDir(), false)

	_, err := f.prov.Issue(context.Background(), testDomain, testEmail, testIP)
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrDNSMismatch))

	var userErr *config.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.Suggestion, "A record")
}

func TestIssueChallengePortBusy(t *testing.T) {
	t.Parallel()

	f := newIssueFixture(t, t.TempDir(), true)
	f.resolver.SetRecord(testDomain, testIP)
	f.runner.AddSuccess("ss", []string{"-ltnp"},
		"LISTEN 0 4096 0.0.0.0:80 0.0.0.0:* users:((\"nginx\",pid=812,fd=6))\n")

	_, err := f.prov.Issue(context.Background(), testDomain, testEmail, testIP)
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrPortUnavailable))

	var userErr *config.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.Suggestion, "nginx")
	assert.False(t, f.runner.CalledWith("ufw", "allow"))
}

func TestIssueChallengeRejectedClosesPort(t *testing.T) {
	t.Parallel()

	f := newIssueFixture(t, t.TempDir(), false)
	f.resolver.SetRecord(testDomain, testIP)
	f.runner.SetFallback(func(command string, _ []string) (ports.CommandResult, error) {
		if command == "certbot" {
			return ports.CommandResult{
				ExitCode: 1,
				Stderr:   "Invalid response from http://vpn.example.com/.well-known/acme-challenge",
			}, nil
		}
		return ports.CommandResult{ExitCode: 0}, nil
	})

	_, err := f.prov.Issue(context.Background(), testDomain, testEmail, testIP)
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrChallengeRejected))
	assert.Equal(t, StateFailed, f.prov.State())

	// The temporary rule is removed even though the challenge failed.
	assert.True(t, f.runner.CalledWith("ufw", "delete", "allow", "80/tcp"))
}

func TestIssueClientError(t *testing.T) {
	t.Parallel()

	f := newIssueFixture(t, t.TempDir(), false)
	f.resolver.SetRecord(testDomain, testIP)
	f.runner.SetFallback(func(command string, _ []string) (ports.CommandResult, error) {
		if command == "certbot" {
			return ports.CommandResult{ExitCode: 1, Stderr: "Another instance of Certbot is already running"}, nil
		}
		return ports.CommandResult{ExitCode: 0}, nil
	})

	_, err := f.prov.Issue(context.Background(), testDomain, testEmail, testIP)
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrProvisionClient))
}

func TestIssueClientLeftNoMaterial(t *testing.T) {
	t.Parallel()

	// Client reports success but the cert root stays empty.
	f := newIssueFixture(t, t.TempDir(), false)
	f.resolver.SetRecord(testDomain, testIP)
	f.runner.SetFallback(func(string, []string) (ports.CommandResult, error) {
		return ports.CommandResult{ExitCode: 0}, nil
	})

	_, err := f.prov.Issue(context.Background(), testDomain, testEmail, testIP)
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrProvisionClient))

	var userErr *config.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.Suggestion, "no usable certificate material")
}
