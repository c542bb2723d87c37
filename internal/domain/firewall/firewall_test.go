package firewall

import (
	"context"
	"errors"
	"testing"

	"github.com/felixgeelhaar/bastion/internal/adapters/logging"
	"github.com/felixgeelhaar/bastion/internal/ports"
	"github.com/felixgeelhaar/bastion/internal/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ufwStatus = `Status: active

To                         Action      From
--                         ------      ----
22/tcp                     ALLOW       Anywhere
80/tcp                     ALLOW       Anywhere
7799/udp                   ALLOW       Anywhere
22/tcp (v6)                ALLOW       Anywhere (v6)
`

func TestParseRule(t *testing.T) {
	t.Parallel()

	rule, err := ParseRule("2222/tcp")
	require.NoError(t, err)
	assert.Equal(t, Rule{Port: 2222, Proto: TCP}, rule)

	_, err = ParseRule("2222")
	assert.Error(t, err)
	_, err = ParseRule("0/tcp")
	assert.Error(t, err)
	_, err = ParseRule("22/icmp")
	assert.Error(t, err)
}

func TestStatus_ParsesAllowRules(t *testing.T) {
	t.Parallel()

	runner := mocks.NewCommandRunner()
	runner.AddSuccess("ufw", []string{"status"}, ufwStatus)

	mgr := NewManager(runner, logging.NewNop())
	rules, err := mgr.Status(context.Background())
	require.NoError(t, err)

	// The v6 duplicate collapses into the same (port, proto) rule.
	assert.Equal(t, []Rule{
		{Port: 22, Proto: TCP},
		{Port: 80, Proto: TCP},
		{Port: 7799, Proto: UDP},
	}, rules)
}

func TestAllowAndDelete(t *testing.T) {
	t.Parallel()

	runner := mocks.NewCommandRunner()
	runner.AddSuccess("ufw", []string{"allow", "2222/tcp"}, "Rule added")
	runner.AddSuccess("ufw", []string{"delete", "allow", "22/tcp"}, "Rule deleted")

	mgr := NewManager(runner, logging.NewNop())

	require.NoError(t, mgr.Allow(context.Background(), Rule{Port: 2222, Proto: TCP}))
	require.NoError(t, mgr.Delete(context.Background(), Rule{Port: 22, Proto: TCP}))

	assert.True(t, runner.CalledWith("ufw", "allow", "2222/tcp"))
	assert.True(t, runner.CalledWith("ufw", "delete", "allow", "22/tcp"))
}

func TestAllow_InvalidRule(t *testing.T) {
	t.Parallel()

	mgr := NewManager(mocks.NewCommandRunner(), logging.NewNop())
	assert.Error(t, mgr.Allow(context.Background(), Rule{Port: 0, Proto: TCP}))
}

func TestWithTemporaryRule_ClosesOnSuccessAndFailure(t *testing.T) {
	t.Parallel()

	runner := mocks.NewCommandRunner()
	runner.AddSuccess("ufw", []string{"allow", "80/tcp"}, "")
	runner.AddSuccess("ufw", []string{"delete", "allow", "80/tcp"}, "")

	mgr := NewManager(runner, logging.NewNop())
	rule := Rule{Port: 80, Proto: TCP}

	err := mgr.WithTemporaryRule(context.Background(), rule, func(_ context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.True(t, runner.CalledWith("ufw", "delete", "allow", "80/tcp"))

	runner.Reset()
	runner.AddSuccess("ufw", []string{"allow", "80/tcp"}, "")
	runner.AddSuccess("ufw", []string{"delete", "allow", "80/tcp"}, "")

	wantErr := errors.New("challenge rejected")
	err = mgr.WithTemporaryRule(context.Background(), rule, func(_ context.Context) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.True(t, runner.CalledWith("ufw", "delete", "allow", "80/tcp"))
}

func TestWithTemporaryRule_AllowFailureSkipsBody(t *testing.T) {
	t.Parallel()

	runner := mocks.NewCommandRunner()
	runner.AddResult("ufw", []string{"allow", "80/tcp"}, ports.CommandResult{ExitCode: 1, Stderr: "firewall is disabled"})

	mgr := NewManager(runner, logging.NewNop())
	ran := false
	err := mgr.WithTemporaryRule(context.Background(), Rule{Port: 80, Proto: TCP}, func(_ context.Context) error {
		ran = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, ran)
}

func TestRenderParseRendered_RoundTrip(t *testing.T) {
	t.Parallel()

	rules := []Rule{{Port: 22, Proto: TCP}, {Port: 7799, Proto: UDP}}
	parsed, err := ParseRendered(Render(rules))
	require.NoError(t, err)
	assert.Equal(t, rules, parsed)

	parsed, err = ParseRendered([]byte(""))
	require.NoError(t, err)
	assert.Empty(t, parsed)
}

func TestDiff(t *testing.T) {
	t.Parallel()

	current := []Rule{{Port: 22, Proto: TCP}, {Port: 80, Proto: TCP}}
	desired := []Rule{{Port: 22, Proto: TCP}, {Port: 2222, Proto: TCP}, {Port: 1080, Proto: TCP}}

	add, remove := Diff(current, desired)
	assert.Equal(t, []Rule{{Port: 1080, Proto: TCP}, {Port: 2222, Proto: TCP}}, add)
	assert.Equal(t, []Rule{{Port: 80, Proto: TCP}}, remove)
}
