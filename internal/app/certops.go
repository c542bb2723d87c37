package app

import (
	"context"

	"github.com/felixgeelhaar/bastion/internal/domain/certificate"
	"github.com/felixgeelhaar/bastion/internal/domain/config"
)

// IssueCertificate provisions certificate material for the configured
// domain. overrideIP skips public address discovery when set.
func (e *Engine) IssueCertificate(ctx context.Context, overrideIP string) (*certificate.Record, error) {
	if e.cfg.Domain == "" {
		return nil, config.NewUserError(config.ErrCodeConfigInvalid, "no domain configured").
			WithSuggestion("set domain in bastion.yaml")
	}

	release, err := e.acquireLock()
	if err != nil {
		return nil, err
	}
	defer release()

	return e.provisioner().Issue(ctx, e.cfg.Domain, e.cfg.Email, overrideIP)
}

// RenewCertificate renews the configured domain's certificate if it is
// close to expiry. The renewed flag reports whether the client ran.
func (e *Engine) RenewCertificate(ctx context.Context) (bool, error) {
	release, err := e.acquireLock()
	if err != nil {
		return false, err
	}
	defer release()

	return e.provisioner().Renew(ctx, e.cfg.Domain)
}

// CertificateStatus loads and verifies the current certificate material
// without mutating anything.
func (e *Engine) CertificateStatus(_ context.Context) (*certificate.Record, error) {
	return certificate.Load(e.cfg.CertRoot, e.cfg.Domain)
}
