package activation

import (
	"context"
	"testing"

	"github.com/felixgeelhaar/bastion/internal/adapters/logging"
	"github.com/felixgeelhaar/bastion/internal/ports"
	"github.com/felixgeelhaar/bastion/internal/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivate_IssuesOneComposeCommand(t *testing.T) {
	t.Parallel()

	runner := mocks.NewCommandRunner()
	runner.AddSuccess("docker", []string{
		"compose", "-f", "/srv/bastion/docker-compose.yml",
		"--profile", "vpn", "--profile", "socks5",
		"up", "-d", "--remove-orphans",
	}, "")

	activator := NewActivator(runner, logging.NewNop(), "/srv/bastion/docker-compose.yml")
	plan := &Plan{entries: []ServiceSpec{{Name: "vpn", Profile: "vpn"}, {Name: "socks5", Profile: "socks5"}}}

	require.NoError(t, activator.Activate(context.Background(), plan))
	assert.Len(t, runner.Calls(), 1)
}

func TestActivate_EmptyPlanIssuesNothing(t *testing.T) {
	t.Parallel()

	runner := mocks.NewCommandRunner()
	activator := NewActivator(runner, logging.NewNop(), "/srv/bastion/docker-compose.yml")

	require.NoError(t, activator.Activate(context.Background(), &Plan{}))
	assert.Empty(t, runner.Calls())
}

func TestActivate_ComposeFailureSurfaced(t *testing.T) {
	t.Parallel()

	runner := mocks.NewCommandRunner()
	runner.SetFallback(func(_ string, _ []string) (ports.CommandResult, error) {
		return ports.CommandResult{ExitCode: 1, Stderr: "no such image"}, nil
	})

	activator := NewActivator(runner, logging.NewNop(), "/srv/bastion/docker-compose.yml")
	plan := &Plan{entries: []ServiceSpec{{Name: "vpn", Profile: "vpn"}}}

	err := activator.Activate(context.Background(), plan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such image")
}

func TestTeardown(t *testing.T) {
	t.Parallel()

	runner := mocks.NewCommandRunner()
	runner.AddSuccess("docker", []string{
		"compose", "-f", "/srv/bastion/docker-compose.yml",
		"down", "--remove-orphans",
	}, "")

	activator := NewActivator(runner, logging.NewNop(), "/srv/bastion/docker-compose.yml")
	require.NoError(t, activator.Teardown(context.Background()))
	assert.True(t, runner.CalledWith("docker", "down", "--remove-orphans"))
}
