package activation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/felixgeelhaar/bastion/internal/adapters/logging"
	"github.com/felixgeelhaar/bastion/internal/domain/config"
	"github.com/felixgeelhaar/bastion/internal/domain/firewall"
	"github.com/felixgeelhaar/bastion/internal/domain/readiness"
	"github.com/felixgeelhaar/bastion/internal/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPlanner(t *testing.T) *Planner {
	t.Helper()
	prober := readiness.NewProber(mocks.NewResolver(), mocks.NewCommandRunner(), logging.NewNop())
	return NewPlanner(prober, logging.NewNop())
}

func tcp(port int) firewall.Rule {
	return firewall.Rule{Port: port, Proto: firewall.TCP}
}

func TestPlan_AllConditionsMet(t *testing.T) {
	t.Parallel()

	selected := []ServiceSpec{
		{Name: "vpn", Profile: "vpn", Ports: []firewall.Rule{tcp(7799)}},
		{Name: "socks5", Profile: "socks5", Ports: []firewall.Rule{tcp(1080)}},
	}

	plan, err := testPlanner(t).Plan(context.Background(), selected)
	require.NoError(t, err)
	assert.Equal(t, []string{"vpn", "socks5"}, plan.Profiles())
	assert.Empty(t, plan.Skipped())
	assert.False(t, plan.IsEmpty())
}

func TestPlan_PortCollisionFailsFast(t *testing.T) {
	t.Parallel()

	selected := []ServiceSpec{
		{Name: "vpn", Profile: "vpn", Ports: []firewall.Rule{tcp(1080)}},
		{Name: "socks5", Profile: "socks5", Ports: []firewall.Rule{tcp(1080)}},
	}

	plan, err := testPlanner(t).Plan(context.Background(), selected)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrPortCollision)
	assert.True(t, plan.IsEmpty())

	var ue *config.UserError
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, ue.Context, "vpn")
	assert.Contains(t, ue.Context, "socks5")
	assert.Contains(t, ue.Context, "1080/tcp")
}

func TestPlan_SamePortDifferentProtocolIsNoCollision(t *testing.T) {
	t.Parallel()

	selected := []ServiceSpec{
		{Name: "vpn-tcp", Profile: "a", Ports: []firewall.Rule{tcp(7799)}},
		{Name: "vpn-udp", Profile: "b", Ports: []firewall.Rule{{Port: 7799, Proto: firewall.UDP}}},
	}

	plan, err := testPlanner(t).Plan(context.Background(), selected)
	require.NoError(t, err)
	assert.Len(t, plan.Entries(), 2)
}

func TestPlan_UnmetCertificateSkipsWithReason(t *testing.T) {
	t.Parallel()

	certDir := t.TempDir()
	missing := filepath.Join(certDir, "example.com", "fullchain.pem")

	selected := []ServiceSpec{
		{Name: "vpn", Profile: "vpn", Ports: []firewall.Rule{tcp(7799)}},
		{Name: "socks5", Profile: "socks5", Ports: []firewall.Rule{tcp(1080)}},
		{Name: "wss", Profile: "wss", Ports: []firewall.Rule{tcp(8899)}, Requires: []Requirement{{
			Condition: readiness.FileExistsAt(missing, 1, time.Millisecond),
			Reason:    "missing certificate",
		}}},
	}

	plan, err := testPlanner(t).Plan(context.Background(), selected)
	require.NoError(t, err)

	assert.Equal(t, []string{"vpn", "socks5"}, plan.Profiles())
	require.Len(t, plan.Skipped(), 1)
	assert.Equal(t, "wss", plan.Skipped()[0].Name)
	assert.Contains(t, plan.Skipped()[0].Reason, "missing certificate")
}

func TestPlan_RequirementMetIncludesService(t *testing.T) {
	t.Parallel()

	certDir := t.TempDir()
	path := filepath.Join(certDir, "fullchain.pem")
	require.NoError(t, os.WriteFile(path, []byte("cert"), 0o600))

	selected := []ServiceSpec{
		{Name: "wss", Profile: "wss", Ports: []firewall.Rule{tcp(8899)}, Requires: []Requirement{{
			Condition: readiness.FileExistsAt(path, 1, time.Millisecond),
			Reason:    "missing certificate",
		}}},
	}

	plan, err := testPlanner(t).Plan(context.Background(), selected)
	require.NoError(t, err)
	assert.Equal(t, []string{"wss"}, plan.Profiles())
}
