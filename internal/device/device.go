// Package device produces a stable, device-bound secret used as key
// material by the credential vault and token issuer.
//
// The secret is deterministic for a given device/OS image. Changing the
// machine (or reinstalling the OS) changes the secret and invalidates all
// previously stored credentials; that is the security boundary.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Descriptor is an opaque bundle of platform and host identifiers. It is
// recomputed each process start and never persisted.
type Descriptor struct {
	Platform string
	Arch     string
	HostID   string
	Hostname string
	OSBuild  string
}

// canonical returns a fixed-order serialization of the descriptor. The
// field order is part of the on-disk compatibility contract: reordering
// changes every derived secret.
func (d Descriptor) canonical() string {
	return fmt.Sprintf("platform=%s;arch=%s;hostid=%s;hostname=%s;osbuild=%s",
		d.Platform, d.Arch, d.HostID, d.Hostname, d.OSBuild)
}

// Provider supplies the descriptor of the machine the process runs on.
type Provider interface {
	Describe() (Descriptor, error)
}

// OSProvider reads identifiers from the running operating system.
type OSProvider struct{}

func NewOSProvider() *OSProvider {
	return &OSProvider{}
}

func (p *OSProvider) Describe() (Descriptor, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return Descriptor{}, fmt.Errorf("failed to read hostname: %w", err)
	}

	return Descriptor{
		Platform: runtime.GOOS,
		Arch:     runtime.GOARCH,
		HostID:   machineID(hostname),
		Hostname: hostname,
		OSBuild:  runtime.Version(),
	}, nil
}

// machineID returns the most stable hardware/OS identifier available for
// the current platform, falling back to the hostname when none is found.
func machineID(fallback string) string {
	switch runtime.GOOS {
	case "linux":
		for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id", "/sys/class/dmi/id/product_uuid"} {
			if data, err := os.ReadFile(path); err == nil {
				if id := strings.TrimSpace(string(data)); id != "" {
					return id
				}
			}
		}
	case "darwin":
		if out, err := exec.Command("ioreg", "-rd1", "-c", "IOPlatformExpertDevice").Output(); err == nil {
			for _, line := range strings.Split(string(out), "\n") {
				if !strings.Contains(line, "IOPlatformUUID") {
					continue
				}
				parts := strings.Split(line, "\"")
				if len(parts) >= 4 {
					return parts[3]
				}
			}
		}
	}
	return fallback
}

// DeriveSecret deterministically hashes the canonical serialization of d
// and returns a fixed-length hex-encoded secret.
func DeriveSecret(d Descriptor) string {
	sum := sha256.Sum256([]byte(d.canonical()))
	return hex.EncodeToString(sum[:])
}
