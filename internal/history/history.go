// Package history records budget mutations as content-addressed commits and
// maintains the branch and tag pointers into that history.
package history

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"

	"budgetsync/internal/budget"
	"budgetsync/internal/model"
)

const (
	// DefaultAuthor is recorded when a caller does not name one.
	DefaultAuthor = "Unknown User"

	// DefaultEntityID stands in for singleton entities such as unassigned cash.
	DefaultEntityID = "main"

	commitDomain    = "budgetsync/commit/v1"
	signatureDomain = "budgetsync/signature/v1"
)

// Limits bounds the ledger's retention and analysis.
type Limits struct {
	MaxRecentCommits    int
	MaxDevicesPerAuthor int
	DeviceLookback      int
	AnalysisRange       time.Duration
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxRecentCommits:    1000,
		MaxDevicesPerAuthor: 3,
		DeviceLookback:      10,
		AnalysisRange:       30 * 24 * time.Hour,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxRecentCommits <= 0 {
		l.MaxRecentCommits = d.MaxRecentCommits
	}
	if l.MaxDevicesPerAuthor <= 0 {
		l.MaxDevicesPerAuthor = d.MaxDevicesPerAuthor
	}
	if l.DeviceLookback <= 0 {
		l.DeviceLookback = d.DeviceLookback
	}
	if l.AnalysisRange <= 0 {
		l.AnalysisRange = d.AnalysisRange
	}
	return l
}

// Service is the change-history ledger. Construct one per process with
// NewService and share it.
type Service struct {
	store  budget.Store
	clock  budget.Clock
	fp     budget.Fingerprinter
	logger budget.Logger
	limits Limits
}

// NewService creates a ledger over store. Zero fields in limits take their defaults.
func NewService(store budget.Store, clock budget.Clock, fp budget.Fingerprinter, logger budget.Logger, limits Limits) *Service {
	return &Service{
		store:  store,
		clock:  clock,
		fp:     fp,
		logger: logger,
		limits: limits.withDefaults(),
	}
}

// CommitOptions describes one tracked mutation.
type CommitOptions struct {
	EntityType  string
	EntityID    string // defaults to DefaultEntityID
	ChangeType  model.ChangeType
	Description string
	BeforeData  any
	AfterData   any
	Author      string // defaults to DefaultAuthor

	// DeviceFingerprint defaults to the service's Fingerprinter.
	DeviceFingerprint string
	ParentHash        string

	// Timestamp in unix millis; zero means now.
	Timestamp int64
}

// CommitResult is the outcome of CreateCommit.
type CommitResult struct {
	Commit  model.Commit
	Changes []model.Change

	// Created is false when an identical commit was already stored.
	Created bool
}

// CreateCommit hashes the mutation, then stores the commit and its change in
// one transaction, advancing the active branch. Storing a commit whose hash
// already exists is a no-op.
func (s *Service) CreateCommit(ctx context.Context, opts CommitOptions) (*CommitResult, error) {
	if opts.EntityType == "" {
		return nil, budget.NewInvalidInput("entityType", "entity type is required")
	}
	if !opts.ChangeType.Valid() {
		return nil, budget.NewInvalidInput("changeType", fmt.Sprintf("unknown change type %q", opts.ChangeType))
	}
	if opts.EntityID == "" {
		opts.EntityID = DefaultEntityID
	}
	if opts.Author == "" {
		opts.Author = DefaultAuthor
	}
	if opts.DeviceFingerprint == "" && s.fp != nil {
		opts.DeviceFingerprint = s.fp.Fingerprint()
	}
	if opts.Timestamp == 0 {
		opts.Timestamp = budget.Millis(s.clock.Now())
	}

	hash, err := CommitHash(opts)
	if err != nil {
		return nil, err
	}
	before, err := rawJSON(opts.BeforeData)
	if err != nil {
		return nil, err
	}
	after, err := rawJSON(opts.AfterData)
	if err != nil {
		return nil, err
	}

	commit := model.Commit{
		Hash:              hash,
		Timestamp:         opts.Timestamp,
		Message:           opts.Description,
		Author:            opts.Author,
		ParentHash:        opts.ParentHash,
		DeviceFingerprint: opts.DeviceFingerprint,
	}
	change := model.Change{
		CommitHash:  hash,
		Timestamp:   opts.Timestamp,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		ChangeType:  opts.ChangeType,
		Description: opts.Description,
		OldValue:    before,
		NewValue:    after,
	}

	var created bool
	err = s.store.Update(ctx, func(tx budget.Store) error {
		var err error
		created, err = tx.InsertCommit(ctx, &commit, []model.Change{change})
		if err != nil {
			return err
		}
		if !created {
			return nil
		}
		return tx.AdvanceActiveBranch(ctx, hash)
	})
	if err != nil {
		s.logger.Error("failed to create history commit", "entityType", opts.EntityType, "error", err)
		return nil, fmt.Errorf("creating commit: %w", err)
	}

	if created {
		s.logger.Info("history commit created",
			"hash", short(hash), "entityType", opts.EntityType, "changeType", string(opts.ChangeType), "author", opts.Author)
	} else {
		s.logger.Debug("history commit already recorded", "hash", short(hash))
	}

	return &CommitResult{Commit: commit, Changes: []model.Change{change}, Created: created}, nil
}

// CommitHash computes the content address of a commit. opts must already
// carry the defaults CreateCommit applies.
func CommitHash(opts CommitOptions) (string, error) {
	fields := map[string]any{
		"entityType":        opts.EntityType,
		"entityId":          opts.EntityID,
		"changeType":        string(opts.ChangeType),
		"description":       opts.Description,
		"beforeData":        opts.BeforeData,
		"afterData":         opts.AfterData,
		"author":            opts.Author,
		"timestamp":         opts.Timestamp,
		"deviceFingerprint": opts.DeviceFingerprint,
	}
	if opts.ParentHash != "" {
		fields["parentHash"] = opts.ParentHash
	}
	return digest(commitDomain, fields)
}

// digest hashes the canonical JSON form of v under a domain prefix.
func digest(domain string, v any) (string, error) {
	canon, err := canonicalJSON(v)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0})
	h.Write(canon)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// canonicalJSON encodes v with sorted object keys and NFC-normalized strings,
// so equal logical values hash equally regardless of struct layout or the
// platform that produced their text.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, &budget.IntegrityError{Kind: budget.ErrSerialization, Err: err}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, &budget.IntegrityError{Kind: budget.ErrSerialization, Err: err}
	}
	out, err := json.Marshal(normalizeStrings(generic))
	if err != nil {
		return nil, &budget.IntegrityError{Kind: budget.ErrSerialization, Err: err}
	}
	return out, nil
}

func normalizeStrings(v any) any {
	switch t := v.(type) {
	case string:
		return norm.NFC.String(t)
	case []any:
		for i := range t {
			t[i] = normalizeStrings(t[i])
		}
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[norm.NFC.String(k)] = normalizeStrings(val)
		}
		return out
	default:
		return v
	}
}

func rawJSON(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, &budget.IntegrityError{Kind: budget.ErrSerialization, Err: err}
	}
	return b, nil
}

func short(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

// Status reports the configured limits.
type Status struct {
	MaxRecentCommits     int           `json:"maxRecentCommits" yaml:"maxRecentCommits"`
	MaxDevicesPerAuthor  int           `json:"maxDevicesPerAuthor" yaml:"maxDevicesPerAuthor"`
	DeviceLookback       int           `json:"deviceLookback" yaml:"deviceLookback"`
	DefaultAnalysisRange time.Duration `json:"defaultAnalysisRange" yaml:"defaultAnalysisRange"`
}

func (s *Service) Status() Status {
	return Status{
		MaxRecentCommits:     s.limits.MaxRecentCommits,
		MaxDevicesPerAuthor:  s.limits.MaxDevicesPerAuthor,
		DeviceLookback:       s.limits.DeviceLookback,
		DefaultAnalysisRange: s.limits.AnalysisRange,
	}
}

// Cleanup deletes the oldest commits, and their changes, beyond
// MaxRecentCommits. Failures are logged. Returns the number of commits removed.
func (s *Service) Cleanup(ctx context.Context) int {
	removed := 0
	err := s.store.Update(ctx, func(tx budget.Store) error {
		total, err := tx.CountCommits(ctx)
		if err != nil {
			return err
		}
		excess := total - s.limits.MaxRecentCommits
		if excess <= 0 {
			return nil
		}
		oldest, err := tx.ListOldestCommits(ctx, excess)
		if err != nil {
			return err
		}
		hashes := make([]string, len(oldest))
		for i, c := range oldest {
			hashes[i] = c.Hash
		}
		if err := tx.DeleteCommits(ctx, hashes); err != nil {
			return err
		}
		removed = len(hashes)
		return nil
	})
	if err != nil {
		s.logger.Error("failed to clean up old commits", "error", err)
		return 0
	}
	if removed > 0 {
		s.logger.Info("cleaned up old commits", "count", removed)
	}
	return removed
}
