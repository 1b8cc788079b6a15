// Package device derives a stable, non-secret fingerprint for the local
// installation.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"runtime"
	"strings"

	"budgetsync/internal/budget"
)

// fingerprintLen is the number of hex characters kept from the digest.
const fingerprintLen = 16

// Fingerprinter hashes the device ID together with host characteristics.
// The result is stable for one installation and differs between machines
// that happen to share a device ID.
type Fingerprinter struct {
	fingerprint string
}

var _ budget.Fingerprinter = (*Fingerprinter)(nil)

// NewFingerprinter computes the fingerprint for deviceID on this host.
func NewFingerprinter(deviceID string) *Fingerprinter {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	return &Fingerprinter{fingerprint: Compute(deviceID, host, runtime.GOOS, runtime.GOARCH)}
}

// Fingerprint returns the precomputed fingerprint.
func (f *Fingerprinter) Fingerprint() string {
	return f.fingerprint
}

// Compute hashes the given components into a fingerprint.
func Compute(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}
