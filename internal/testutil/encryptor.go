package testutil

import (
	"budgetsync/internal/budget"
	"budgetsync/internal/encryption"
)

// TestKeyMaterial keys NewTestEncryptor. Devices in a test that share it can
// read each other's payloads.
var TestKeyMaterial = []byte("test-budget-key")

// NewTestEncryptor returns a deterministic encryptor keyed by TestKeyMaterial.
func NewTestEncryptor() budget.Encryptor {
	return encryption.NewTestEncryptor(TestKeyMaterial)
}
