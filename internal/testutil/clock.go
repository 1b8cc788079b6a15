package testutil

import (
	"fmt"
	"sync"
	"time"
)

// StubClock returns a fixed time. Safe for concurrent use.
type StubClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewStubClock creates a StubClock set to the given time.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock set to 2024-01-15 10:30:00 UTC.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
}

// SteppingClock returns a clock starting at FixedClock's time that moves
// forward by step after every call to Now, so successive records get
// distinct, increasing timestamps.
func SteppingClock(step time.Duration) *StubClock {
	c := FixedClock()
	c.step = step
	return c
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *StubClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// StubIDGenerator returns sequential IDs: "id-1", "id-2", etc.
type StubIDGenerator struct {
	mu      sync.Mutex
	counter int
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return fmt.Sprintf("id-%d", g.counter)
}

// StubFingerprinter returns a settable device fingerprint.
type StubFingerprinter struct {
	mu sync.Mutex
	fp string
}

func NewStubFingerprinter(fp string) *StubFingerprinter {
	return &StubFingerprinter{fp: fp}
}

func (f *StubFingerprinter) Fingerprint() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fp
}

// Set changes the fingerprint returned from now on, simulating a new device.
func (f *StubFingerprinter) Set(fp string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fp = fp
}
