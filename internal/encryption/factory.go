package encryption

import (
	"fmt"

	"budgetsync/internal/budget"
	"budgetsync/internal/config"
)

// NewEncryptorFromConfig builds the payload encryptor for one budget identity.
func NewEncryptorFromConfig(cfg config.EncryptionConfig, keyMaterial []byte) (budget.Encryptor, error) {
	switch cfg.Type {
	case "", "age":
		return NewAgeEncryptor(keyMaterial, cfg.ScryptWorkFactor)
	case "test":
		return NewTestEncryptor(keyMaterial), nil
	}
	return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
}
