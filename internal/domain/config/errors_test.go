package config

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserErrorRendering(t *testing.T) {
	t.Parallel()

	err := NewUserError(ErrCodeLivenessFailed, "new path never answered").
		WithContext("ssh").
		WithSuggestion("check the firewall rule for the new port")

	assert.Equal(t, "new path never answered (at ssh)", err.Error())

	formatted := err.Format()
	assert.Contains(t, formatted, "[LIVENESS_FAILED]")
	assert.Contains(t, formatted, "Location: ssh")
	assert.Contains(t, formatted, "Suggestion: check the firewall rule")
}

func TestUserErrorIsComparesCodes(t *testing.T) {
	t.Parallel()

	err := ErrLivenessFailed.WithContext("ssh").WithUnderlying(fmt.Errorf("dial refused"))

	assert.True(t, errors.Is(err, ErrLivenessFailed))
	assert.False(t, errors.Is(err, ErrFatalLockoutRisk))
}

func TestUserErrorUnwrap(t *testing.T) {
	t.Parallel()

	underlying := fmt.Errorf("dial refused")
	err := ErrLivenessFailed.WithUnderlying(underlying)

	require.ErrorIs(t, err, underlying)
}

func TestWithSettersDoNotMutateOriginal(t *testing.T) {
	t.Parallel()

	base := NewUserError(ErrCodeDNSMismatch, "dns mismatch")
	derived := base.WithContext("vpn.example.com").WithSuggestion("fix the A record")

	assert.Empty(t, base.Context)
	assert.Empty(t, base.Suggestion)
	assert.Equal(t, "vpn.example.com", derived.Context)
	assert.Equal(t, "fix the A record", derived.Suggestion)
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(fmt.Errorf("plain failure")))
	assert.Equal(t, 1, ExitCode(ErrLivenessFailed.WithContext("ssh")))
	assert.Equal(t, 2, ExitCode(ErrFatalLockoutRisk.WithContext("ssh")))
	assert.Equal(t, 2, ExitCode(fmt.Errorf("wrapped: %w", ErrFatalLockoutRisk)))
}
