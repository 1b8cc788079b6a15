package budget

import "io"

// Encryptor encrypts sync payloads before they leave the device and decrypts
// them on the way back. Implementations are keyed by the budget identity's
// key material, so every device that derives the same identity can read
// payloads written by any other.
type Encryptor interface {
	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Decrypt reads ciphertext from r and writes plaintext to w.
	// Returns an error if the data was not produced with the same key.
	Decrypt(r io.Reader, w io.Writer) error
}
