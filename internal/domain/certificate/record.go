// Package certificate drives the external ACME client through domain
// verification, challenge serving, issuance, and renewal.
package certificate

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/bastion/internal/domain/config"
)

// Certificate file names inside <cert-root>/<domain>/.
const (
	FullchainFile = "fullchain.pem"
	PrivkeyFile   = "privkey.pem"
)

// Record describes issued certificate material. The files themselves are
// owned by the certificate store; the engine only reads and verifies them.
type Record struct {
	Domain        string
	IssuedAt      time.Time
	NotAfter      time.Time
	FullchainPath string
	PrivkeyPath   string
	Renewal       RenewalPolicy
}

// Paths returns the expected certificate file paths for a domain.
func Paths(certRoot, domain string) (fullchain, privkey string) {
	dir := filepath.Join(certRoot, domain)
	return filepath.Join(dir, FullchainFile), filepath.Join(dir, PrivkeyFile)
}

// Load reads and verifies the certificate material for a domain. The
// fullchain must be PEM-encoded, parseable, issued for the domain, and not
// expired; the private key file must be present.
func Load(certRoot, domain string) (*Record, error) {
	fullchain, privkey := Paths(certRoot, domain)

	data, err := os.ReadFile(fullchain)
	if err != nil {
		return nil, config.NewUserError(config.ErrCodeCertificateInvalid,
			fmt.Sprintf("no certificate for %s", domain)).
			WithContext(fullchain).
			WithSuggestion("issue one with: bastion cert issue").
			WithUnderlying(err)
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, config.NewUserError(config.ErrCodeCertificateInvalid,
			fmt.Sprintf("certificate for %s is not valid PEM", domain)).
			WithContext(fullchain).
			WithSuggestion("re-issue with: bastion cert issue")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, config.NewUserError(config.ErrCodeCertificateInvalid,
			fmt.Sprintf("certificate for %s cannot be parsed", domain)).
			WithContext(fullchain).
			WithUnderlying(err)
	}

	if err := cert.VerifyHostname(domain); err != nil {
		return nil, config.NewUserError(config.ErrCodeCertificateInvalid,
			fmt.Sprintf("certificate was not issued for %s", domain)).
			WithContext(fullchain).
			WithUnderlying(err)
	}

	if time.Now().After(cert.NotAfter) {
		return nil, config.NewUserError(config.ErrCodeCertificateInvalid,
			fmt.Sprintf("certificate for %s expired %s", domain, cert.NotAfter.Format(time.RFC3339))).
			WithSuggestion("renew with: bastion cert renew")
	}

	if _, err := os.Stat(privkey); err != nil {
		return nil, config.NewUserError(config.ErrCodeCertificateInvalid,
			fmt.Sprintf("private key for %s is missing", domain)).
			WithContext(privkey).
			WithUnderlying(err)
	}

	return &Record{
		Domain:        domain,
		IssuedAt:      cert.NotBefore,
		NotAfter:      cert.NotAfter,
		FullchainPath: fullchain,
		PrivkeyPath:   privkey,
		Renewal:       DefaultRenewalPolicy(),
	}, nil
}
