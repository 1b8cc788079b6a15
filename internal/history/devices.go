package history

import (
	"context"
	"slices"
	"time"

	"budgetsync/internal/budget"
)

// VerifyDeviceConsistency reports whether fingerprint is plausible for
// author. An author with no history is trusted. Otherwise the fingerprint
// must be among those seen in the author's recent commits, unless the author
// has not yet reached the device cap. Storage failures report false.
//
// The result is a soft signal for display; nothing blocks on it.
func (s *Service) VerifyDeviceConsistency(ctx context.Context, author, fingerprint string) bool {
	recent, err := s.store.ListCommitsByAuthor(ctx, author, s.limits.DeviceLookback)
	if err != nil {
		s.logger.Error("failed to verify device consistency", "author", author, "error", err)
		return false
	}
	if len(recent) == 0 {
		return true
	}

	var known []string
	for _, c := range recent {
		if c.DeviceFingerprint != "" && !slices.Contains(known, c.DeviceFingerprint) {
			known = append(known, c.DeviceFingerprint)
		}
	}

	seen := slices.Contains(known, fingerprint)
	if len(known) <= s.limits.MaxDevicesPerAuthor {
		return seen || len(known) < s.limits.MaxDevicesPerAuthor
	}
	return seen
}

// SignRequest is the commit content to sign.
type SignRequest struct {
	Hash              string         `json:"hash,omitempty"`
	Message           string         `json:"message,omitempty"`
	Author            string         `json:"author"`
	Data              map[string]any `json:"data,omitempty"`
	DeviceFingerprint string         `json:"deviceFingerprint"`
}

// Signature binds commit content to the signing device.
type Signature struct {
	Signature          string `json:"signature"`
	DeviceFingerprint  string `json:"deviceFingerprint"`
	IsDeviceConsistent bool   `json:"isDeviceConsistent"`
	SignedAt           int64  `json:"signedAt"`
}

// SignCommit digests the request with the signing time and device
// fingerprint, and flags whether the device is consistent for the author.
// The digest is tamper evidence, not a cryptographic signature.
func (s *Service) SignCommit(ctx context.Context, req SignRequest) (*Signature, error) {
	if req.DeviceFingerprint == "" && s.fp != nil {
		req.DeviceFingerprint = s.fp.Fingerprint()
	}
	if req.Author == "" {
		req.Author = DefaultAuthor
	}
	signedAt := budget.Millis(s.clock.Now())

	sig, err := digest(signatureDomain, map[string]any{
		"commit":            req,
		"deviceFingerprint": req.DeviceFingerprint,
		"timestamp":         signedAt,
	})
	if err != nil {
		s.logger.Error("failed to sign commit", "error", err)
		return nil, err
	}

	return &Signature{
		Signature:          sig,
		DeviceFingerprint:  req.DeviceFingerprint,
		IsDeviceConsistent: s.VerifyDeviceConsistency(ctx, req.Author, req.DeviceFingerprint),
		SignedAt:           signedAt,
	}, nil
}

// ChangePatterns summarizes ledger activity within a time window.
// Days and hours are UTC.
type ChangePatterns struct {
	TotalChanges         int            `json:"totalChanges" yaml:"totalChanges"`
	ChangesByType        map[string]int `json:"changesByType" yaml:"changesByType"`
	ChangesByEntity      map[string]int `json:"changesByEntity" yaml:"changesByEntity"`
	AuthorActivity       map[string]int `json:"authorActivity" yaml:"authorActivity"`
	DailyActivity        map[string]int `json:"dailyActivity" yaml:"dailyActivity"`
	MostActiveHour       *int           `json:"mostActiveHour" yaml:"mostActiveHour"`
	AverageChangesPerDay float64        `json:"averageChangesPerDay" yaml:"averageChangesPerDay"`
}

// GetChangePatterns aggregates commits newer than window (default
// AnalysisRange) and their changes. Returns nil on storage failure.
func (s *Service) GetChangePatterns(ctx context.Context, window time.Duration) *ChangePatterns {
	if window <= 0 {
		window = s.limits.AnalysisRange
	}
	cutoff := budget.Millis(s.clock.Now().Add(-window))

	commits, err := s.store.ListCommitsSince(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to analyze change patterns", "error", err)
		return nil
	}
	hashes := make([]string, len(commits))
	for i, c := range commits {
		hashes[i] = c.Hash
	}
	changes, err := s.store.ListChangesForCommits(ctx, hashes)
	if err != nil {
		s.logger.Error("failed to analyze change patterns", "error", err)
		return nil
	}

	p := &ChangePatterns{
		TotalChanges:    len(changes),
		ChangesByType:   map[string]int{},
		ChangesByEntity: map[string]int{},
		AuthorActivity:  map[string]int{},
		DailyActivity:   map[string]int{},
	}
	for _, ch := range changes {
		p.ChangesByType[string(ch.ChangeType)]++
		p.ChangesByEntity[ch.EntityType]++
	}

	var hours [24]int
	for _, c := range commits {
		t := time.UnixMilli(c.Timestamp).UTC()
		p.AuthorActivity[c.Author]++
		p.DailyActivity[t.Format(time.DateOnly)]++
		hours[t.Hour()]++
	}

	if days := len(p.DailyActivity); days > 0 {
		p.AverageChangesPerDay = float64(len(changes)) / float64(days)
	}

	best := -1
	for h, n := range hours {
		if n > 0 && (best < 0 || n > hours[best]) {
			best = h
		}
	}
	if best >= 0 {
		p.MostActiveHour = &best
	}
	return p
}
