package budget

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so business logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts unique ID generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }

// Fingerprinter identifies the device a change originates from.
// It is a soft signal for anomaly detection, not an authentication factor.
type Fingerprinter interface {
	Fingerprint() string
}

// Millis converts t to unix milliseconds, the resolution used for all stored timestamps.
func Millis(t time.Time) int64 { return t.UnixMilli() }
