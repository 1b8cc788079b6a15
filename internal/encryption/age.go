package encryption

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"

	"budgetsync/internal/budget"
)

// AgeEncryptor seals sync payloads with filippo.io/age using a scrypt
// passphrase recipient. The passphrase is the hex form of the budget
// identity's key material: nothing is stored on disk, and any device that
// derives the same identity can open what another wrote.
type AgeEncryptor struct {
	passphrase string
	workFactor int
}

var _ budget.Encryptor = (*AgeEncryptor)(nil)

// NewAgeEncryptor keys an AgeEncryptor with keyMaterial. workFactor is the
// log2 scrypt cost; values <= 0 leave age's default.
func NewAgeEncryptor(keyMaterial []byte, workFactor int) (*AgeEncryptor, error) {
	if len(keyMaterial) == 0 {
		return nil, budget.NewInvalidInput("keyMaterial", "key material is required")
	}
	return &AgeEncryptor{passphrase: hex.EncodeToString(keyMaterial), workFactor: workFactor}, nil
}

func (e *AgeEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	recipient, err := age.NewScryptRecipient(e.passphrase)
	if err != nil {
		return fmt.Errorf("age recipient: %w", err)
	}
	if e.workFactor > 0 {
		recipient.SetWorkFactor(e.workFactor)
	}

	sealed, err := age.Encrypt(w, recipient)
	if err != nil {
		return fmt.Errorf("starting age payload: %w", err)
	}
	if _, err := io.Copy(sealed, r); err != nil {
		return fmt.Errorf("sealing payload: %w", err)
	}
	return sealed.Close()
}

// Decrypt opens an age payload. A payload sealed for another budget fails
// with budget.ErrWrongKey.
func (e *AgeEncryptor) Decrypt(r io.Reader, w io.Writer) error {
	identity, err := age.NewScryptIdentity(e.passphrase)
	if err != nil {
		return fmt.Errorf("age identity: %w", err)
	}
	if e.workFactor > 0 {
		identity.SetMaxWorkFactor(e.workFactor)
	}

	opened, err := age.Decrypt(r, identity)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return fmt.Errorf("%w: %w", budget.ErrWrongKey, err)
		}
		return fmt.Errorf("opening age payload: %w", err)
	}
	if _, err := io.Copy(w, opened); err != nil {
		return fmt.Errorf("reading payload: %w", err)
	}
	return nil
}
