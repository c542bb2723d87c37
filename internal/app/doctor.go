package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/bastion/internal/domain/readiness"
)

// Check is one doctor finding.
type Check struct {
	Name   string
	OK     bool
	Detail string
}

// requiredBinaries are the host tools every operation shells out to.
var requiredBinaries = []string{"sshd", "ufw", "certbot", "docker", "curl"}

// Doctor inspects the host without mutating it and reports whether each
// precondition for a run holds.
func (e *Engine) Doctor(ctx context.Context) []Check {
	var checks []Check

	for _, bin := range requiredBinaries {
		checks = append(checks, e.checkBinary(ctx, bin))
	}
	checks = append(checks, e.checkStateDir())
	checks = append(checks, e.checkSSHConfig(ctx))
	checks = append(checks, e.checkPublicAddress(ctx))

	if e.cfg.Domain != "" {
		checks = append(checks, e.checkDomain(ctx))
		checks = append(checks, e.checkCertificate(ctx))
	}
	return checks
}

func (e *Engine) checkBinary(ctx context.Context, bin string) Check {
	check := Check{Name: "binary " + bin}
	result, err := e.runner.Run(ctx, "which", bin)
	if err != nil || !result.Success() {
		check.Detail = bin + " not found in PATH"
		return check
	}
	check.OK = true
	check.Detail = strings.TrimSpace(result.Stdout)
	return check
}

func (e *Engine) checkStateDir() Check {
	check := Check{Name: "state dir writable"}
	if err := os.MkdirAll(e.cfg.StateDir, 0o700); err != nil {
		check.Detail = err.Error()
		return check
	}
	probe := filepath.Join(e.cfg.StateDir, ".doctor")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		check.Detail = err.Error()
		return check
	}
	_ = os.Remove(probe)
	check.OK = true
	check.Detail = e.cfg.StateDir
	return check
}

func (e *Engine) checkSSHConfig(ctx context.Context) Check {
	check := Check{Name: "ssh config readable"}
	result, err := e.runner.Run(ctx, "cat", e.cfg.SSH.ConfigPath)
	if err != nil || !result.Success() {
		check.Detail = "cannot read " + e.cfg.SSH.ConfigPath
		return check
	}
	check.OK = true
	check.Detail = e.cfg.SSH.ConfigPath
	return check
}

func (e *Engine) checkPublicAddress(ctx context.Context) Check {
	check := Check{Name: "public address discoverable"}
	ip, err := e.discoverer().PublicIP(ctx, "")
	if err != nil {
		check.Detail = err.Error()
		return check
	}
	check.OK = true
	check.Detail = ip
	return check
}

func (e *Engine) checkDomain(ctx context.Context) Check {
	check := Check{Name: "domain resolves to this host"}
	ip, err := e.discoverer().PublicIP(ctx, "")
	if err != nil {
		check.Detail = "public address unknown: " + err.Error()
		return check
	}

	ok, reason := e.prober().Evaluate(ctx, readiness.DNSMatchesValue(e.cfg.Domain, ip, 1, 0))
	if !ok {
		check.Detail = reason
		return check
	}
	check.OK = true
	check.Detail = fmt.Sprintf("%s -> %s", e.cfg.Domain, ip)
	return check
}

func (e *Engine) checkCertificate(ctx context.Context) Check {
	check := Check{Name: "certificate"}
	record, err := e.CertificateStatus(ctx)
	if err != nil {
		check.Detail = err.Error()
		return check
	}
	check.OK = true
	check.Detail = "valid until " + record.NotAfter.Format("2006-01-02")
	return check
}
