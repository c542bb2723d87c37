package app

import (
	"context"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/bastion/internal/domain/certificate"
	"github.com/felixgeelhaar/bastion/internal/domain/config"
	"github.com/felixgeelhaar/bastion/internal/domain/firewall"
	"github.com/felixgeelhaar/bastion/internal/domain/sshconf"
)

// StatusReport is a read-only snapshot of the host's configuration.
type StatusReport struct {
	SSHPort         int
	FirewallActive  bool
	FirewallRules   []firewall.Rule
	Certificate     *certificate.Record
	RunningServices []string
}

// Status gathers the current host state. Missing pieces degrade to zero
// values rather than failing the whole report; only an unreadable SSH
// configuration is an error.
func (e *Engine) Status(ctx context.Context) (*StatusReport, error) {
	report := &StatusReport{SSHPort: config.DefaultSSHPort}

	result, err := e.runner.Run(ctx, "cat", e.cfg.SSH.ConfigPath)
	if err != nil {
		return nil, err
	}
	if result.Success() {
		if value, ok := sshconf.Parse([]byte(result.Stdout)).Get("Port"); ok {
			if port, err := strconv.Atoi(value); err == nil {
				report.SSHPort = port
			}
		}
	}

	if result, err := e.runner.Run(ctx, "ufw", "status"); err == nil && result.Success() {
		report.FirewallActive = strings.Contains(result.Stdout, "Status: active")
	}
	if rules, err := e.firewallManager().Status(ctx); err == nil {
		report.FirewallRules = rules
	}

	if e.cfg.Domain != "" {
		if record, err := e.CertificateStatus(ctx); err == nil {
			report.Certificate = record
		}
	}

	if result, err := e.runner.Run(ctx, "docker", "compose", "-f", e.composeFile,
		"ps", "--services", "--filter", "status=running"); err == nil && result.Success() {
		for _, line := range strings.Split(result.Stdout, "\n") {
			if name := strings.TrimSpace(line); name != "" {
				report.RunningServices = append(report.RunningServices, name)
			}
		}
	}

	return report, nil
}
