package activation

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/bastion/internal/domain/config"
	"github.com/felixgeelhaar/bastion/internal/domain/firewall"
	"github.com/felixgeelhaar/bastion/internal/domain/readiness"
	"github.com/pelletier/go-toml/v2"
)

// CatalogEntry declares one installable service in services.toml.
type CatalogEntry struct {
	Name    string   `toml:"name"`
	Profile string   `toml:"profile"`
	Ports   []string `toml:"ports"`   // "7799/tcp"
	TLS     bool     `toml:"tls"`     // requires issued certificate material
	Process string   `toml:"process"` // optional process-running requirement
}

// Catalog is the set of known services.
type Catalog struct {
	Services []CatalogEntry `toml:"service"`
}

// DefaultCatalog returns the built-in service set.
func DefaultCatalog() Catalog {
	return Catalog{Services: []CatalogEntry{
		{Name: "vpn", Profile: "vpn", Ports: []string{"7799/tcp"}},
		{Name: "socks5", Profile: "socks5", Ports: []string{"1080/tcp"}},
		{Name: "wss", Profile: "wss", Ports: []string{"8899/tcp"}, TLS: true},
	}}
}

// LoadCatalog reads a services.toml file.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, config.NewUserError(config.ErrCodeConfigNotFound, "service catalog not found").
			WithContext(path).
			WithUnderlying(err)
	}

	var catalog Catalog
	if err := toml.Unmarshal(data, &catalog); err != nil {
		return Catalog{}, config.NewUserError(config.ErrCodeConfigParse, "service catalog is not valid TOML").
			WithContext(path).
			WithUnderlying(err)
	}
	return catalog, nil
}

// ResolveOptions parameterize catalog resolution.
type ResolveOptions struct {
	Domain       string
	CertRoot     string
	FileAttempts int
	FileInterval time.Duration
	ProcAttempts int
	ProcInterval time.Duration
}

// Resolve turns selected names into finalized ServiceSpecs. Unknown names
// are an error; TLS services gain certificate-presence requirements bound
// to the domain.
func (c Catalog) Resolve(names []string, opts ResolveOptions) ([]ServiceSpec, error) {
	if opts.FileAttempts < 1 {
		opts.FileAttempts = 1
	}
	if opts.ProcAttempts < 1 {
		opts.ProcAttempts = 1
	}

	byName := make(map[string]CatalogEntry, len(c.Services))
	for _, entry := range c.Services {
		byName[entry.Name] = entry
	}

	var specs []ServiceSpec
	for _, name := range names {
		entry, ok := byName[name]
		if !ok {
			return nil, config.NewUserError(config.ErrCodeConfigInvalid, fmt.Sprintf("unknown service %q", name)).
				WithSuggestion("list known services with: bastion plan --list")
		}

		spec := ServiceSpec{Name: entry.Name, Profile: entry.Profile}
		if spec.Profile == "" {
			spec.Profile = entry.Name
		}

		for _, portSpec := range entry.Ports {
			rule, err := firewall.ParseRule(portSpec)
			if err != nil {
				return nil, config.NewUserError(config.ErrCodeConfigInvalid,
					fmt.Sprintf("service %s declares an invalid port", name)).
					WithUnderlying(err)
			}
			spec.Ports = append(spec.Ports, rule)
		}

		if entry.TLS {
			if opts.Domain == "" {
				return nil, config.NewUserError(config.ErrCodeConfigInvalid,
					fmt.Sprintf("service %s needs a certificate but no domain is configured", name)).
					WithSuggestion("set domain in bastion.yaml or deselect " + name)
			}
			certDir := filepath.Join(opts.CertRoot, opts.Domain)
			for _, file := range []string{"fullchain.pem", "privkey.pem"} {
				spec.Requires = append(spec.Requires, Requirement{
					Condition: readiness.FileExistsAt(filepath.Join(certDir, file), opts.FileAttempts, opts.FileInterval),
					Reason:    "missing certificate",
				})
			}
		}

		if entry.Process != "" {
			spec.Requires = append(spec.Requires, Requirement{
				Condition: readiness.ProcessRunningNamed(entry.Process, opts.ProcAttempts, opts.ProcInterval),
			})
		}

		specs = append(specs, spec)
	}
	return specs, nil
}
