package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveSecret_Deterministic(t *testing.T) {
	d := Descriptor{
		Platform: "linux",
		Arch:     "amd64",
		HostID:   "abc-123",
		Hostname: "workstation",
		OSBuild:  "go1.24.0",
	}

	s1 := DeriveSecret(d)
	s2 := DeriveSecret(d)

	assert.Equal(t, s1, s2)
	assert.Len(t, s1, 64) // sha256 hex
}

func TestDeriveSecret_ChangesWithDescriptor(t *testing.T) {
	d := Descriptor{Platform: "linux", Arch: "amd64", HostID: "abc", Hostname: "h", OSBuild: "b"}
	other := d
	other.HostID = "def"

	assert.NotEqual(t, DeriveSecret(d), DeriveSecret(other))
}

func TestOSProvider_Describe(t *testing.T) {
	p := NewOSProvider()

	d1, err := p.Describe()
	require.NoError(t, err)
	d2, err := p.Describe()
	require.NoError(t, err)

	// Stable within a process run.
	assert.Equal(t, d1, d2)
	assert.NotEmpty(t, d1.Platform)
	assert.NotEmpty(t, d1.HostID)
}
