package readiness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/felixgeelhaar/bastion/internal/adapters/logging"
	"github.com/felixgeelhaar/bastion/internal/domain/config"
	"github.com/felixgeelhaar/bastion/internal/ports"
	"github.com/felixgeelhaar/bastion/internal/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProber(resolver ports.Resolver, runner ports.CommandRunner) *Prober {
	return NewProber(resolver, runner, logging.NewNop())
}

func TestWait_PortOpen_SatisfiedAfterRetries(t *testing.T) {
	t.Parallel()

	attempts := 0
	prober := newProber(mocks.NewResolver(), mocks.NewCommandRunner()).
		WithDialer(func(_ context.Context, _ string) error {
			attempts++
			if attempts < 3 {
				return errors.New("connection refused")
			}
			return nil
		})

	cond := PortOpenOn("127.0.0.1:2222", 5, time.Millisecond)
	result := prober.Wait(context.Background(), cond)

	assert.Equal(t, Satisfied, result.Status)
	assert.Equal(t, 3, result.Attempts)
	assert.NoError(t, result.Err(cond))
}

func TestWait_PortOpen_TimedOut(t *testing.T) {
	t.Parallel()

	prober := newProber(mocks.NewResolver(), mocks.NewCommandRunner()).
		WithDialer(func(_ context.Context, _ string) error {
			return errors.New("connection refused")
		})

	cond := PortOpenOn("127.0.0.1:2222", 3, time.Millisecond)
	result := prober.Wait(context.Background(), cond)

	assert.Equal(t, TimedOut, result.Status)
	assert.Equal(t, 3, result.Attempts)

	err := result.Err(cond)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrReadinessTimeout)
}

func TestWait_DNSMatches_WrongValueNeverSatisfied(t *testing.T) {
	t.Parallel()

	resolver := mocks.NewResolver()
	resolver.SetRecord("vpn.example.com", "5.6.7.8")

	prober := newProber(resolver, mocks.NewCommandRunner())
	cond := DNSMatchesValue("vpn.example.com", "1.2.3.4", 4, time.Millisecond)

	result := prober.Wait(context.Background(), cond)

	assert.Equal(t, TimedOut, result.Status)
	assert.Equal(t, 4, result.Attempts)
	assert.Equal(t, 4, resolver.Lookups())
	assert.Contains(t, result.Reason, "resolves to 5.6.7.8")
	assert.Contains(t, result.Reason, "expected 1.2.3.4")
}

func TestWait_DNSMatches_NoRecordDistinctReason(t *testing.T) {
	t.Parallel()

	prober := newProber(mocks.NewResolver(), mocks.NewCommandRunner())
	cond := DNSMatchesValue("vpn.example.com", "1.2.3.4", 2, time.Millisecond)

	result := prober.Wait(context.Background(), cond)

	assert.Equal(t, TimedOut, result.Status)
	assert.Contains(t, result.Reason, "does not resolve")
	assert.Contains(t, result.Reason, "1.2.3.4")
}

func TestWait_DNSMatches_Satisfied(t *testing.T) {
	t.Parallel()

	resolver := mocks.NewResolver()
	resolver.SetRecord("vpn.example.com", "10.0.0.9", "1.2.3.4")

	prober := newProber(resolver, mocks.NewCommandRunner())
	result := prober.Wait(context.Background(), DNSMatchesValue("vpn.example.com", "1.2.3.4", 3, time.Millisecond))

	assert.Equal(t, Satisfied, result.Status)
	assert.Equal(t, 1, result.Attempts)
}

func TestWait_FileExists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "fullchain.pem")

	prober := newProber(mocks.NewResolver(), mocks.NewCommandRunner())

	result := prober.Wait(context.Background(), FileExistsAt(path, 1, time.Millisecond))
	assert.Equal(t, TimedOut, result.Status)

	require.NoError(t, os.WriteFile(path, []byte("cert"), 0o600))

	result = prober.Wait(context.Background(), FileExistsAt(path, 1, time.Millisecond))
	assert.Equal(t, Satisfied, result.Status)
}

func TestWait_ProcessRunning(t *testing.T) {
	t.Parallel()

	runner := mocks.NewCommandRunner()
	runner.AddResult("pgrep", []string{"-x", "sshd"}, ports.CommandResult{ExitCode: 0, Stdout: "712\n"})
	runner.AddResult("pgrep", []string{"-x", "xray"}, ports.CommandResult{ExitCode: 1})

	prober := newProber(mocks.NewResolver(), runner)

	result := prober.Wait(context.Background(), ProcessRunningNamed("sshd", 1, time.Millisecond))
	assert.Equal(t, Satisfied, result.Status)

	result = prober.Wait(context.Background(), ProcessRunningNamed("xray", 1, time.Millisecond))
	assert.Equal(t, TimedOut, result.Status)
	assert.Contains(t, result.Reason, "xray is not running")
}

func TestWait_CancelledContextAborts(t *testing.T) {
	t.Parallel()

	prober := newProber(mocks.NewResolver(), mocks.NewCommandRunner()).
		WithDialer(func(_ context.Context, _ string) error {
			return errors.New("connection refused")
		})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	result := prober.Wait(ctx, PortOpenOn("127.0.0.1:2222", 100, time.Hour))
	assert.Equal(t, TimedOut, result.Status)
	assert.Less(t, time.Since(start), time.Second)
	assert.Contains(t, result.Reason, "cancelled")
}

func TestEvaluate_SingleShot(t *testing.T) {
	t.Parallel()

	prober := newProber(mocks.NewResolver(), mocks.NewCommandRunner()).
		WithDialer(func(_ context.Context, addr string) error {
			if addr == "127.0.0.1:80" {
				return nil
			}
			return fmt.Errorf("refused")
		})

	ok, _ := prober.Evaluate(context.Background(), PortOpenOn("127.0.0.1:80", 1, 0))
	assert.True(t, ok)

	ok, reason := prober.Evaluate(context.Background(), PortOpenOn("127.0.0.1:81", 1, 0))
	assert.False(t, ok)
	assert.Contains(t, reason, "not accepting connections")
}
