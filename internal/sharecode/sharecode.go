// Package sharecode turns a human-memorable share code plus a secret password
// into a deterministic budget identity.
//
// The share code is drawn from the public BIP39 English word list and carries
// no secret on its own: it is safe to show on screen or in a QR code. Only
// the combination with the password yields the budget ID and the key material
// used to encrypt cloud payloads, which lets two devices agree on a shared
// remote location without any server-side registry.
package sharecode

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tyler-smith/go-bip39/wordlists"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"

	"budgetsync/internal/budget"
)

const (
	// WordCount is the number of words in a share code.
	WordCount = 4

	// BudgetIDPrefix prefixes every derived budget ID.
	BudgetIDPrefix = "budget_"

	// budgetIDHexLen is the number of digest hex characters kept in a budget ID.
	budgetIDHexLen = 16

	derivationPrefix = "budgetsync:budget-id:v1:"
	derivationSalt   = "budgetsync-share-salt-7f3a9c"
	keyDomain        = "budgetsync/key/v1"
	keyIterations    = 100_000
	keyLength        = 32

	// MinPasswordLength is the shortest password CheckPassword accepts.
	MinPasswordLength = 8
)

var wordSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(wordlists.English))
	for _, w := range wordlists.English {
		set[w] = struct{}{}
	}
	return set
}()

// Identity is the derived identity of a shared budget. It is computed on
// demand and never persisted.
type Identity struct {
	ShareCode   string
	BudgetID    string
	KeyMaterial []byte
}

// Generate returns a new random share code of four lowercase words.
func Generate() (string, error) {
	words := make([]string, WordCount)
	var buf [2]byte
	for i := range words {
		if _, err := rand.Read(buf[:]); err != nil {
			return "", fmt.Errorf("reading random bytes: %w", err)
		}
		// The list has exactly 2048 = 2^11 entries, so masking is unbiased.
		idx := binary.BigEndian.Uint16(buf[:]) & 0x07ff
		words[i] = wordlists.English[idx]
	}
	return strings.Join(words, " "), nil
}

// Normalize lowercases code, trims it, and collapses whitespace runs to a single space.
func Normalize(code string) string {
	return strings.ToLower(strings.Join(strings.Fields(code), " "))
}

// Validate reports whether code normalizes to exactly four words from the list.
func Validate(code string) bool {
	words := strings.Split(Normalize(code), " ")
	if len(words) != WordCount {
		return false
	}
	for _, w := range words {
		if w == "" || !IsWord(w) {
			return false
		}
	}
	return true
}

// IsWord reports whether w (after lowercasing) is in the word list.
func IsWord(w string) bool {
	_, ok := wordSet[strings.ToLower(w)]
	return ok
}

// UnknownWords returns the words of code that are not in the word list, in
// order.
func UnknownWords(code string) []string {
	var unknown []string
	for _, w := range strings.Fields(Normalize(code)) {
		if !IsWord(w) {
			unknown = append(unknown, w)
		}
	}
	return unknown
}

// DeriveBudgetID computes the deterministic budget ID for a password and share code.
func DeriveBudgetID(password, code string) (string, error) {
	normalized, err := checkInputs(password, code)
	if err != nil {
		return "", err
	}
	return budgetID(password, normalized), nil
}

// DeriveIdentity computes the budget ID and the encryption key material for a
// password and share code.
func DeriveIdentity(password, code string) (*Identity, error) {
	normalized, err := checkInputs(password, code)
	if err != nil {
		return nil, err
	}

	salt := sha256.Sum256([]byte(keyDomain + "\x00" + normalized))
	key := pbkdf2.Key([]byte(norm.NFC.String(password)), salt[:], keyIterations, keyLength, sha256.New)

	return &Identity{
		ShareCode:   normalized,
		BudgetID:    budgetID(password, normalized),
		KeyMaterial: key,
	}, nil
}

// CheckPassword rejects passwords too weak to protect a shared budget.
func CheckPassword(password string) error {
	if strings.TrimSpace(password) == "" {
		return budget.NewInvalidInput("password", "is required")
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return budget.NewInvalidInput("password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	return nil
}

// FormatForDisplay capitalizes each word of a valid code. Invalid input is returned unchanged.
func FormatForDisplay(code string) string {
	if !Validate(code) {
		return code
	}
	words := strings.Split(Normalize(code), " ")
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func checkInputs(password, code string) (string, error) {
	if password == "" || strings.TrimSpace(code) == "" {
		return "", budget.NewInvalidInput("", "Both password and share code are required")
	}
	normalized := Normalize(code)
	if !Validate(normalized) {
		return "", budget.NewInvalidFormat("", "Invalid share code format")
	}
	return normalized, nil
}

func budgetID(password, normalized string) string {
	sum := sha256.Sum256([]byte(derivationPrefix + norm.NFC.String(password) + ":" + normalized + ":" + derivationSalt))
	return BudgetIDPrefix + hex.EncodeToString(sum[:])[:budgetIDHexLen]
}
