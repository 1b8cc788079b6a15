package cloudsync

import (
	"context"
	"errors"
	"net"
	"strings"

	"budgetsync/internal/budget"
)

// ErrEncryption marks a payload that could not be encrypted or decrypted.
var ErrEncryption = errors.New("encryption failed")

// Category groups sync failures for reporting.
type Category string

const (
	CategoryNone           Category = ""
	CategoryNetwork        Category = "network"
	CategoryEncryption     Category = "encryption"
	CategoryRemote         Category = "remote"
	CategoryValidation     Category = "validation"
	CategoryStorage        Category = "storage"
	CategoryAuthentication Category = "authentication"
	CategoryUnknown        Category = "unknown"
)

var keywords = []struct {
	cat   Category
	words []string
}{
	{CategoryNetwork, []string{"network", "timeout", "connection", "dial", "no such host", "unexpected eof"}},
	{CategoryEncryption, []string{"decrypt", "encrypt", "cipher", "invalid key", "no identity matched"}},
	{CategoryRemote, []string{"permission", "quota", "rate limit", "throttl", "slowdown"}},
	{CategoryValidation, []string{"validation", "invalid data", "checksum", "corrupt", "malformed"}},
	{CategoryStorage, []string{"storage", "database", "sqlite", "transaction"}},
	{CategoryAuthentication, []string{"auth", "unauthorized", "forbidden", "token", "credential", "access denied"}},
}

// Categorize classifies err. Typed errors are matched first; anything else
// falls back to keywords in the message.
func Categorize(err error) Category {
	if err == nil {
		return CategoryNone
	}

	var netErr net.Error
	var integrity *budget.IntegrityError
	switch {
	case errors.Is(err, ErrEncryption), errors.Is(err, budget.ErrWrongKey):
		return CategoryEncryption
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		return CategoryNetwork
	case errors.Is(err, budget.ErrStorage):
		return CategoryStorage
	case errors.As(err, &integrity), errors.Is(err, budget.ErrInvalidInput), errors.Is(err, budget.ErrInvalidFormat):
		return CategoryValidation
	}

	msg := strings.ToLower(err.Error())
	for _, k := range keywords {
		for _, w := range k.words {
			if strings.Contains(msg, w) {
				return k.cat
			}
		}
	}
	return CategoryUnknown
}
