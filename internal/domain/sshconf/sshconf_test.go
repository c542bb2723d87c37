package sshconf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `# OpenSSH server configuration
Include /etc/ssh/sshd_config.d/*.conf

Port 22
PermitRootLogin yes
#MaxAuthTries 6
UseDNS no

# Subsystems
Subsystem sftp /usr/lib/openssh/sftp-server
`

func TestParseRender_RoundTripsUnchanged(t *testing.T) {
	t.Parallel()

	f := Parse([]byte(sample))
	assert.Equal(t, []byte(sample), f.Render())
}

func TestParseRender_NoTrailingNewline(t *testing.T) {
	t.Parallel()

	// A file whose last line is unterminated must not gain a newline.
	input := []byte("Port 22\nUseDNS no")
	f := Parse(input)
	assert.Equal(t, input, f.Render())
}

func TestParseRender_EmptyFile(t *testing.T) {
	t.Parallel()

	f := Parse([]byte{})
	assert.Equal(t, []byte{}, f.Render())
}

func TestGet(t *testing.T) {
	t.Parallel()

	f := Parse([]byte(sample))

	port, ok := f.Get("Port")
	require.True(t, ok)
	assert.Equal(t, "22", port)

	// Directive lookup is case-insensitive, as in sshd.
	root, ok := f.Get("permitrootlogin")
	require.True(t, ok)
	assert.Equal(t, "yes", root)

	_, ok = f.Get("MaxAuthTries") // commented out
	assert.False(t, ok)
}

func TestSet_RewritesInPlace(t *testing.T) {
	t.Parallel()

	f := Parse([]byte(sample))
	require.NoError(t, f.Set("Port", "2222"))

	rendered := string(f.Render())
	assert.Contains(t, rendered, "Port 2222\n")
	assert.NotContains(t, rendered, "Port 22\n")

	// Non-owned directives are untouched.
	assert.Contains(t, rendered, "UseDNS no\n")
	assert.Contains(t, rendered, "Subsystem sftp /usr/lib/openssh/sftp-server\n")
}

func TestSet_AppendsWhenAbsent(t *testing.T) {
	t.Parallel()

	f := Parse([]byte("Port 22\n"))
	require.NoError(t, f.Set("AllowUsers", "admin"))

	assert.Equal(t, "Port 22\nAllowUsers admin\n", string(f.Render()))
}

func TestSet_CommentsOutDuplicates(t *testing.T) {
	t.Parallel()

	f := Parse([]byte("Port 22\nPort 2200\n"))
	require.NoError(t, f.Set("Port", "2222"))

	assert.Equal(t, "Port 2222\n#Port 2200\n", string(f.Render()))
}

func TestSet_RejectsUnownedKey(t *testing.T) {
	t.Parallel()

	f := Parse([]byte(sample))
	assert.Error(t, f.Set("UseDNS", "yes"))
}

func TestApply_Posture(t *testing.T) {
	t.Parallel()

	f := Parse([]byte(sample))
	err := f.Apply(Posture{
		Port:              2222,
		PermitRootLogin:   false,
		AllowUsers:        []string{"ops", "admin"},
		DisableForwarding: true,
	})
	require.NoError(t, err)

	rendered := string(f.Render())
	assert.Contains(t, rendered, "Port 2222\n")
	assert.Contains(t, rendered, "PermitRootLogin no\n")
	assert.Contains(t, rendered, "AllowUsers admin ops\n")
	assert.Contains(t, rendered, "AllowTcpForwarding no\n")
	assert.Contains(t, rendered, "X11Forwarding no\n")
	assert.Contains(t, rendered, "# OpenSSH server configuration\n")
}

func TestApply_PortOutOfRange(t *testing.T) {
	t.Parallel()

	f := Parse([]byte(sample))
	assert.Error(t, f.Apply(Posture{Port: 0}))
	assert.Error(t, f.Apply(Posture{Port: 70000}))
}
