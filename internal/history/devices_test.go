package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetsync/internal/budget"
	"budgetsync/internal/database"
	"budgetsync/internal/model"
	"budgetsync/internal/testutil"
)

func commitFrom(t *testing.T, f *fixture, author, fp string) {
	t.Helper()
	_, err := f.svc.CreateCommit(context.Background(), CommitOptions{
		EntityType:        EntityUnassignedCash,
		ChangeType:        model.ChangeUpdate,
		Description:       "edit",
		Author:            author,
		DeviceFingerprint: fp,
	})
	require.NoError(t, err)
}

func TestVerifyDeviceConsistency(t *testing.T) {
	ctx := context.Background()

	t.Run("first-time author is trusted", func(t *testing.T) {
		f := newMemoryFixture(t)
		assert.True(t, f.svc.VerifyDeviceConsistency(ctx, "Sam", "anything"))
	})

	t.Run("known device", func(t *testing.T) {
		f := newMemoryFixture(t)
		commitFrom(t, f, "Sam", "fp-a")
		assert.True(t, f.svc.VerifyDeviceConsistency(ctx, "Sam", "fp-a"))
	})

	t.Run("new device below the cap", func(t *testing.T) {
		f := newMemoryFixture(t)
		commitFrom(t, f, "Sam", "fp-a")
		commitFrom(t, f, "Sam", "fp-b")
		assert.True(t, f.svc.VerifyDeviceConsistency(ctx, "Sam", "fp-c"))
	})

	t.Run("new device at the cap", func(t *testing.T) {
		f := newMemoryFixture(t)
		commitFrom(t, f, "Sam", "fp-a")
		commitFrom(t, f, "Sam", "fp-b")
		commitFrom(t, f, "Sam", "fp-c")
		assert.False(t, f.svc.VerifyDeviceConsistency(ctx, "Sam", "fp-d"))
		assert.True(t, f.svc.VerifyDeviceConsistency(ctx, "Sam", "fp-b"))
	})

	t.Run("beyond the cap only known devices pass", func(t *testing.T) {
		f := newMemoryFixture(t)
		for _, fp := range []string{"fp-a", "fp-b", "fp-c", "fp-d"} {
			commitFrom(t, f, "Sam", fp)
		}
		assert.True(t, f.svc.VerifyDeviceConsistency(ctx, "Sam", "fp-d"))
		assert.False(t, f.svc.VerifyDeviceConsistency(ctx, "Sam", "fp-e"))
	})

	t.Run("other authors do not count", func(t *testing.T) {
		f := newMemoryFixture(t)
		for _, fp := range []string{"fp-a", "fp-b", "fp-c"} {
			commitFrom(t, f, "Alex", fp)
		}
		commitFrom(t, f, "Sam", "fp-a")
		assert.True(t, f.svc.VerifyDeviceConsistency(ctx, "Sam", "fp-z"))
	})

	t.Run("only the lookback window counts", func(t *testing.T) {
		f := newMemoryFixture(t)
		for _, fp := range []string{"fp-a", "fp-b"} {
			commitFrom(t, f, "Sam", fp)
		}
		for range 10 {
			commitFrom(t, f, "Sam", "fp-c")
		}
		// fp-a and fp-b fell out of the last 10 commits; one known device remains.
		assert.True(t, f.svc.VerifyDeviceConsistency(ctx, "Sam", "fp-new"))
	})

	t.Run("empty fingerprints are ignored", func(t *testing.T) {
		f := newFixture(t, database.NewMemoryStore(), Limits{MaxDevicesPerAuthor: 1})
		f.fp.Set("")
		commitFrom(t, f, "Sam", "")
		assert.True(t, f.svc.VerifyDeviceConsistency(ctx, "Sam", "fp-a"))
	})

	t.Run("storage failure reports false", func(t *testing.T) {
		f := newFixture(t, testutil.NewFailingStore(database.NewMemoryStore(), "ListCommitsByAuthor"), Limits{})
		assert.False(t, f.svc.VerifyDeviceConsistency(ctx, "Sam", "fp-a"))
	})
}

func TestSignCommit(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	clock := testutil.FixedClock()
	svc := NewService(store, clock, testutil.NewStubFingerprinter("fp-laptop"), budget.NewNopLogger(), Limits{})

	req := SignRequest{Hash: "abc", Message: "Updated debt", Author: "Sam", Data: map[string]any{"amount": 5}}

	sig, err := svc.SignCommit(ctx, req)
	require.NoError(t, err)
	assert.Len(t, sig.Signature, 64)
	assert.Equal(t, "fp-laptop", sig.DeviceFingerprint)
	assert.True(t, sig.IsDeviceConsistent)
	assert.Equal(t, budget.Millis(clock.Now()), sig.SignedAt)

	again, err := svc.SignCommit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, sig.Signature, again.Signature, "same content at the same instant")

	other := req
	other.DeviceFingerprint = "fp-phone"
	moved, err := svc.SignCommit(ctx, other)
	require.NoError(t, err)
	assert.NotEqual(t, sig.Signature, moved.Signature)

	clock.Advance(time.Millisecond)
	later, err := svc.SignCommit(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, sig.Signature, later.Signature)
}

func TestSignCommit_FlagsUnknownDevice(t *testing.T) {
	ctx := context.Background()
	f := newMemoryFixture(t)
	for _, fp := range []string{"fp-a", "fp-b", "fp-c"} {
		commitFrom(t, f, "Sam", fp)
	}

	sig, err := f.svc.SignCommit(ctx, SignRequest{Author: "Sam", DeviceFingerprint: "fp-stolen"})
	require.NoError(t, err)
	assert.False(t, sig.IsDeviceConsistent)
}

func TestGetChangePatterns(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	clock := testutil.FixedClock() // 2024-01-15 10:30 UTC
	svc := NewService(store, clock, testutil.NewStubFingerprinter("fp"), budget.NewNopLogger(), Limits{})

	at := func(s string) int64 {
		ts, err := time.Parse(time.RFC3339, s)
		require.NoError(t, err)
		return ts.UnixMilli()
	}

	entries := []struct {
		when, author, entity string
		change               model.ChangeType
	}{
		{"2024-01-15T09:30:00Z", "Sam", EntityDebt, model.ChangeCreate},
		{"2024-01-15T09:45:00Z", "Sam", EntityDebt, model.ChangeUpdate},
		{"2024-01-15T08:00:00Z", "Alex", EntityUnassignedCash, model.ChangeUpdate},
		{"2024-01-14T23:00:00Z", "Alex", EntityActualBalance, model.ChangeUpdate},
		{"2023-11-01T12:00:00Z", "Sam", EntityDebt, model.ChangeDelete}, // outside 30 days
	}
	for i, e := range entries {
		_, err := svc.CreateCommit(ctx, CommitOptions{
			EntityType:  e.entity,
			EntityID:    fmt.Sprintf("e-%d", i),
			ChangeType:  e.change,
			Description: "change",
			Author:      e.author,
			Timestamp:   at(e.when),
		})
		require.NoError(t, err)
	}

	p := svc.GetChangePatterns(ctx, 0)
	require.NotNil(t, p)

	assert.Equal(t, 4, p.TotalChanges)
	assert.Equal(t, map[string]int{"create": 1, "update": 3}, p.ChangesByType)
	assert.Equal(t, map[string]int{EntityDebt: 2, EntityUnassignedCash: 1, EntityActualBalance: 1}, p.ChangesByEntity)
	assert.Equal(t, map[string]int{"Sam": 2, "Alex": 2}, p.AuthorActivity)
	assert.Equal(t, map[string]int{"2024-01-15": 3, "2024-01-14": 1}, p.DailyActivity)
	assert.InDelta(t, 2.0, p.AverageChangesPerDay, 1e-9)
	require.NotNil(t, p.MostActiveHour)
	assert.Equal(t, 9, *p.MostActiveHour)

	narrow := svc.GetChangePatterns(ctx, 2*time.Hour)
	require.NotNil(t, narrow)
	assert.Equal(t, 2, narrow.TotalChanges)

	empty := svc.GetChangePatterns(ctx, time.Minute)
	require.NotNil(t, empty)
	assert.Zero(t, empty.TotalChanges)
	assert.Nil(t, empty.MostActiveHour)
	assert.Zero(t, empty.AverageChangesPerDay)
}
