// Package config provides the host configuration model and user-facing errors.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for optional configuration values.
const (
	DefaultCertRoot   = "/etc/letsencrypt/live"
	DefaultStateDir   = "/var/lib/bastion"
	DefaultSSHConfig  = "/etc/ssh/sshd_config"
	DefaultSSHPort    = 22
	DefaultProbeWait  = 5 * time.Second
	DefaultProbeTries = 12
)

// SSHConfig holds the desired SSH daemon posture.
type SSHConfig struct {
	Port              int      `yaml:"port"`
	PermitRootLogin   bool     `yaml:"permit_root_login"`
	AllowUsers        []string `yaml:"allow_users"`
	DisableForwarding bool     `yaml:"disable_forwarding"`
	ConfigPath        string   `yaml:"config_path"`
}

// Config is the resolved host configuration (bastion.yaml).
type Config struct {
	Domain   string    `yaml:"domain"`
	Email    string    `yaml:"email"`
	CertRoot string    `yaml:"cert_root"`
	StateDir string    `yaml:"state_dir"`
	SSH      SSHConfig `yaml:"ssh"`
	Services []string  `yaml:"services"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewUserError(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
				WithSuggestion("create bastion.yaml or pass --config with the correct path").
				WithUnderlying(err)
		}
		return nil, NewUserError(ErrCodeConfigInvalid, "cannot read configuration file").
			WithContext(path).
			WithUnderlying(err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, NewUserError(ErrCodeConfigParse, "configuration file is not valid YAML").
			WithContext(path).
			WithSuggestion("check indentation and key names").
			WithUnderlying(err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.CertRoot == "" {
		c.CertRoot = DefaultCertRoot
	}
	if c.StateDir == "" {
		c.StateDir = DefaultStateDir
	}
	if c.SSH.ConfigPath == "" {
		c.SSH.ConfigPath = DefaultSSHConfig
	}
	if c.SSH.Port == 0 {
		c.SSH.Port = DefaultSSHPort
	}
}

// Validate checks the configuration for contradictions before any
// mutation is attempted.
func (c *Config) Validate() error {
	if c.SSH.Port < 1 || c.SSH.Port > 65535 {
		return NewUserError(ErrCodeConfigInvalid, fmt.Sprintf("ssh port %d out of range", c.SSH.Port)).
			WithSuggestion("use a port between 1 and 65535")
	}
	for _, user := range c.SSH.AllowUsers {
		if user == "" {
			return NewUserError(ErrCodeConfigInvalid, "empty user in ssh.allow_users").
				WithSuggestion("remove the empty entry from allow_users")
		}
	}
	if len(c.Services) > 0 && c.Domain == "" {
		for _, svc := range c.Services {
			if svc == "wss" {
				return NewUserError(ErrCodeConfigInvalid, "service wss requires a domain").
					WithSuggestion("set domain in bastion.yaml or deselect wss")
			}
		}
	}
	return nil
}
