package sshconf

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/felixgeelhaar/bastion/internal/domain/firewall"
	"github.com/felixgeelhaar/bastion/internal/ports"
)

// DefaultConfigPath is where the daemon reads its configuration.
const DefaultConfigPath = "/etc/ssh/sshd_config"

const defaultPort = 22

// Subsystem transitions the SSH daemon's configuration. It stages a new
// posture next to the live file, validates it with the daemon's own
// checker, and promotes it only through a snapshot-guarded commit.
//
// When the posture moves the listening port, the subsystem holds both the
// old and the new port open in the firewall until the new one is confirmed
// reachable.
type Subsystem struct {
	runner     ports.CommandRunner
	logger     ports.Logger
	fw         *firewall.Manager
	configPath string
	stagePath  string

	probe     func(ctx context.Context, addr string) error
	probeHost string

	captured []byte
	oldPort  int
	newPort  int
	livePort int
}

// NewSubsystem creates the SSH subsystem. Staged files live under stateDir.
func NewSubsystem(runner ports.CommandRunner, logger ports.Logger, fw *firewall.Manager, configPath, stateDir string) *Subsystem {
	return &Subsystem{
		runner:     runner,
		logger:     logger,
		fw:         fw,
		configPath: configPath,
		stagePath:  filepath.Join(stateDir, "sshd_config.staged"),
		probe:      sshHandshake,
		probeHost:  "127.0.0.1",
	}
}

// WithProbe replaces the liveness probe. Used by tests.
func (s *Subsystem) WithProbe(probe func(ctx context.Context, addr string) error) *Subsystem {
	s.probe = probe
	return s
}

// ID identifies the subsystem in snapshots and logs.
func (s *Subsystem) ID() string { return "sshd" }

// Capture reads the live daemon configuration.
func (s *Subsystem) Capture(ctx context.Context) ([]byte, error) {
	result, err := s.runner.Run(ctx, "cat", s.configPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.configPath, err)
	}
	if !result.Success() {
		return nil, fmt.Errorf("read %s: %s", s.configPath, strings.TrimSpace(result.Stderr))
	}

	s.captured = []byte(result.Stdout)
	s.oldPort = portOf(Parse(s.captured))
	s.livePort = s.oldPort
	return s.captured, nil
}

// StagePosture writes the captured configuration with the posture applied
// to the staged file. The live file is not touched.
func (s *Subsystem) StagePosture(ctx context.Context, p Posture) error {
	if s.captured == nil {
		if _, err := s.Capture(ctx); err != nil {
			return err
		}
	}

	file := Parse(s.captured)
	if err := file.Apply(p); err != nil {
		return err
	}
	s.newPort = p.Port

	if err := os.MkdirAll(filepath.Dir(s.stagePath), 0o700); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	if err := os.WriteFile(s.stagePath, file.Render(), 0o600); err != nil {
		return fmt.Errorf("write staged configuration: %w", err)
	}
	s.logger.Info(ctx, "posture staged",
		ports.F("path", s.stagePath), ports.F("port", s.newPort))
	return nil
}

// Validate runs the daemon's own syntax and semantics check against the
// staged file.
func (s *Subsystem) Validate(ctx context.Context) error {
	result, err := s.runner.Run(ctx, "sshd", "-t", "-f", s.stagePath)
	if err != nil {
		return fmt.Errorf("validate staged configuration: %w", err)
	}
	if !result.Success() {
		return fmt.Errorf("sshd rejected the staged configuration: %s", strings.TrimSpace(result.Stderr))
	}
	return nil
}

// Commit promotes the staged file to live and reloads the daemon.
func (s *Subsystem) Commit(ctx context.Context) error {
	result, err := s.runner.Run(ctx, "install", "-m", "600", s.stagePath, s.configPath)
	if err != nil {
		return fmt.Errorf("install staged configuration: %w", err)
	}
	if !result.Success() {
		return fmt.Errorf("install staged configuration: %s", strings.TrimSpace(result.Stderr))
	}
	if err := s.reload(ctx); err != nil {
		return err
	}
	s.livePort = s.newPort
	return nil
}

// Discard removes the staged file.
func (s *Subsystem) Discard(ctx context.Context) error {
	if err := os.Remove(s.stagePath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Restore reinstates captured configuration bytes as the live file and
// reloads the daemon on it.
func (s *Subsystem) Restore(ctx context.Context, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.stagePath), 0o700); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	restorePath := s.stagePath + ".restore"
	if err := os.WriteFile(restorePath, content, 0o600); err != nil {
		return fmt.Errorf("write restore file: %w", err)
	}

	result, err := s.runner.Run(ctx, "install", "-m", "600", restorePath, s.configPath)
	if err != nil {
		return fmt.Errorf("restore configuration: %w", err)
	}
	if !result.Success() {
		return fmt.Errorf("restore configuration: %s", strings.TrimSpace(result.Stderr))
	}
	if err := s.reload(ctx); err != nil {
		return err
	}
	_ = os.Remove(restorePath)
	s.livePort = portOf(Parse(content))
	return nil
}

// Probe performs a real protocol handshake against the live port. An
// authentication refusal still proves the daemon is up and serving the
// committed configuration.
func (s *Subsystem) Probe(ctx context.Context) error {
	port := s.livePort
	if port == 0 {
		port = defaultPort
	}
	addr := net.JoinHostPort(s.probeHost, strconv.Itoa(port))
	if err := s.probe(ctx, addr); err != nil {
		return fmt.Errorf("ssh daemon not reachable on %s: %w", addr, err)
	}
	return nil
}

// OpenOverlap opens the new listening port in the firewall while the old
// one stays open.
func (s *Subsystem) OpenOverlap(ctx context.Context) error {
	if s.newPort == s.oldPort {
		return nil
	}
	return s.fw.Allow(ctx, firewall.Rule{Port: s.newPort, Proto: firewall.TCP})
}

// CloseOverlap closes the new listening port again after an abandoned
// transition. The old port stays open.
func (s *Subsystem) CloseOverlap(ctx context.Context) error {
	if s.newPort == s.oldPort {
		return nil
	}
	return s.fw.Delete(ctx, firewall.Rule{Port: s.newPort, Proto: firewall.TCP})
}

// RetireOld closes the old listening port once the new one is verified.
func (s *Subsystem) RetireOld(ctx context.Context) error {
	if s.newPort == s.oldPort {
		return nil
	}
	return s.fw.Delete(ctx, firewall.Rule{Port: s.oldPort, Proto: firewall.TCP})
}

func (s *Subsystem) reload(ctx context.Context) error {
	result, err := s.runner.Run(ctx, "systemctl", "reload", "ssh")
	if err != nil {
		return fmt.Errorf("reload ssh daemon: %w", err)
	}
	if !result.Success() {
		return fmt.Errorf("reload ssh daemon: %s", strings.TrimSpace(result.Stderr))
	}
	return nil
}

// portOf reads the effective listening port from a parsed configuration.
func portOf(file *File) int {
	value, ok := file.Get("Port")
	if !ok {
		return defaultPort
	}
	port, err := strconv.Atoi(value)
	if err != nil {
		return defaultPort
	}
	return port
}

// sshHandshake dials the daemon and attempts a protocol handshake with no
// credentials. A rejected authentication is success: the daemon answered.
func sshHandshake(ctx context.Context, addr string) error {
	dialer := net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	cfg := &ssh.ClientConfig{
		User:            "bastion-probe",
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	}
	client, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil
		}
		return err
	}
	ssh.NewClient(client, chans, reqs).Close()
	return nil
}
