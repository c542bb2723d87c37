package certificate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/bastion/internal/ports"
	"gopkg.in/ini.v1"
)

// DefaultRenewBefore matches the ACME client's own default window.
const DefaultRenewBefore = 30 * 24 * time.Hour

// RenewalPolicy controls when a certificate is considered due.
type RenewalPolicy struct {
	RenewBefore time.Duration
}

// DefaultRenewalPolicy returns the standard 30-day window.
func DefaultRenewalPolicy() RenewalPolicy {
	return RenewalPolicy{RenewBefore: DefaultRenewBefore}
}

// Due reports whether a certificate expiring at notAfter should be renewed.
func (p RenewalPolicy) Due(notAfter time.Time, now time.Time) bool {
	return now.Add(p.RenewBefore).After(notAfter)
}

// LoadRenewalPolicy reads the ACME client's renewal configuration, an INI
// file at <config-root>/renewal/<domain>.conf. A missing file or value
// falls back to the default window.
func LoadRenewalPolicy(configRoot, domain string) RenewalPolicy {
	policy := DefaultRenewalPolicy()

	file, err := ini.Load(configRoot + "/renewal/" + domain + ".conf")
	if err != nil {
		return policy
	}

	value := file.Section("renewalparams").Key("renew_before_expiry").String()
	if d, ok := parseDays(value); ok {
		policy.RenewBefore = d
	}
	return policy
}

// parseDays reads the "N days" form used in renewal configs.
func parseDays(value string) (time.Duration, bool) {
	fields := strings.Fields(strings.TrimSpace(value))
	if len(fields) != 2 || !strings.HasPrefix(fields[1], "day") {
		return 0, false
	}
	days, err := strconv.Atoi(fields[0])
	if err != nil || days < 1 {
		return 0, false
	}
	return time.Duration(days) * 24 * time.Hour, true
}

// Renew runs the ACME client's renewal for a domain if the certificate is
// near expiry. Running it early is a safe no-op: the renewed flag reports
// whether the client was invoked at all.
func (p *Provisioner) Renew(ctx context.Context, domain string) (renewed bool, err error) {
	record, err := Load(p.certRoot, domain)
	if err != nil {
		return false, err
	}

	policy := LoadRenewalPolicy(p.acmeConfigRoot, domain)
	if !policy.Due(record.NotAfter, time.Now()) {
		p.logger.Info(ctx, "certificate not yet due for renewal",
			ports.F("domain", domain), ports.F("not_after", record.NotAfter.Format(time.RFC3339)))
		return false, nil
	}

	result, err := p.runner.Run(ctx, "certbot", "renew", "--cert-name", domain, "--non-interactive", "--quiet")
	if err != nil {
		return false, fmt.Errorf("run renewal: %w", err)
	}
	if !result.Success() {
		return false, fmt.Errorf("renewal failed: %s", strings.TrimSpace(result.Stderr))
	}

	p.logger.Info(ctx, "certificate renewed", ports.F("domain", domain))
	return true, nil
}

// renewalCronPath is the recurring renewal job installed after issuance.
const renewalCronPath = "/etc/cron.d/bastion-cert-renew"

// registerRenewalJob installs the recurring renewal job. Installing it
// twice is a no-op.
func (p *Provisioner) registerRenewalJob(ctx context.Context) error {
	probe, err := p.runner.Run(ctx, "test", "-f", renewalCronPath)
	if err != nil {
		return fmt.Errorf("check renewal job: %w", err)
	}
	if probe.Success() {
		return nil
	}

	line := "17 3 * * * root certbot renew --non-interactive --quiet"
	result, err := p.runner.Run(ctx, "bash", "-c",
		fmt.Sprintf("printf '%%s\\n' '%s' > %s", line, renewalCronPath))
	if err != nil {
		return fmt.Errorf("install renewal job: %w", err)
	}
	if !result.Success() {
		return fmt.Errorf("install renewal job: %s", strings.TrimSpace(result.Stderr))
	}

	p.logger.Info(ctx, "renewal job installed", ports.F("path", renewalCronPath))
	return nil
}
