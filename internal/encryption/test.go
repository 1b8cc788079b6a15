package encryption

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"

	"budgetsync/internal/budget"
)

// testMagic opens every TestEncryptor payload. It is followed by an 8-byte
// tag of the key material.
var testMagic = []byte("BSENC1")

const testTagLen = 8

// TestEncryptor is a deterministic, reversible stand-in for AgeEncryptor.
// It does not hide the plaintext. The header carries a tag derived from the
// key material so payloads written for one budget fail to open under another,
// the same way age payloads do.
type TestEncryptor struct {
	header []byte
}

var _ budget.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor creates a TestEncryptor for keyMaterial. Empty key
// material is allowed.
func NewTestEncryptor(keyMaterial []byte) *TestEncryptor {
	sum := sha256.Sum256(keyMaterial)
	header := make([]byte, 0, len(testMagic)+testTagLen)
	header = append(header, testMagic...)
	header = append(header, sum[:testTagLen]...)
	return &TestEncryptor{header: header}
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(e.header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying payload: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Decrypt(r io.Reader, w io.Writer) error {
	got := make([]byte, len(e.header))
	if _, err := io.ReadFull(r, got); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	if !bytes.HasPrefix(got, testMagic) {
		return fmt.Errorf("not a test-encrypted payload")
	}
	if !bytes.Equal(got, e.header) {
		return budget.ErrWrongKey
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying payload: %w", err)
	}
	return nil
}
