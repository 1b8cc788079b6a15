package sharecode

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"budgetsync/internal/budget"
)

const (
	// QRType identifies the JSON share envelope.
	QRType = "app_share"

	// QRVersion is written into new envelopes.
	QRVersion = "2.0"

	// LegacyVersion is reported for dash-delimited codes.
	LegacyVersion = "1.0"
)

// CreatorInfo optionally identifies who created a share code.
type CreatorInfo struct {
	UserName  string
	UserColor string
}

// ShareCodeData is the parsed content of a QR payload.
type ShareCodeData struct {
	ShareCode    string `json:"shareCode"`
	Version      string `json:"version"`
	CreatedBy    string `json:"createdBy,omitempty"`
	CreatorColor string `json:"creatorColor,omitempty"`
	CreatedAt    int64  `json:"createdAt,omitempty"`
}

type qrEnvelope struct {
	Type         string `json:"type"`
	ShareCode    string `json:"shareCode"`
	Version      string `json:"version,omitempty"`
	CreatedBy    string `json:"createdBy,omitempty"`
	CreatorColor string `json:"creatorColor,omitempty"`
	CreatedAt    int64  `json:"createdAt,omitempty"`
}

// GenerateQRData encodes code (and optional creator details) as a versioned JSON envelope.
func GenerateQRData(code string, creator *CreatorInfo) (string, error) {
	normalized := Normalize(code)
	if !Validate(normalized) {
		return "", budget.NewInvalidFormat("shareCode", "Invalid share code for QR generation")
	}

	env := qrEnvelope{
		Type:      QRType,
		ShareCode: normalized,
		Version:   QRVersion,
	}
	if creator != nil && creator.UserName != "" {
		env.CreatedBy = creator.UserName
		env.CreatorColor = creator.UserColor
		env.CreatedAt = time.Now().UnixMilli()
	}

	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encoding QR data: %w", err)
	}
	return string(data), nil
}

// ParseQRData decodes a JSON envelope or a legacy "PREFIX-w1-w2-w3-w4" string.
// It returns nil for anything malformed, of the wrong type, or carrying an invalid code.
func ParseQRData(raw string) *ShareCodeData {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if strings.HasPrefix(raw, "{") {
		var env qrEnvelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			return nil
		}
		if env.Type != QRType || env.ShareCode == "" {
			return nil
		}
		normalized := Normalize(env.ShareCode)
		if !Validate(normalized) {
			return nil
		}
		version := env.Version
		if version == "" {
			version = QRVersion
		}
		return &ShareCodeData{
			ShareCode:    normalized,
			Version:      version,
			CreatedBy:    env.CreatedBy,
			CreatorColor: env.CreatorColor,
			CreatedAt:    env.CreatedAt,
		}
	}

	parts := strings.Split(raw, "-")
	if len(parts) <= WordCount {
		return nil
	}
	prefix := strings.Join(parts[:len(parts)-WordCount], "-")
	if strings.TrimSpace(prefix) == "" {
		return nil
	}
	code := Normalize(strings.Join(parts[len(parts)-WordCount:], " "))
	if !Validate(code) {
		return nil
	}
	return &ShareCodeData{ShareCode: code, Version: LegacyVersion}
}
