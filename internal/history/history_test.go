package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetsync/internal/budget"
	"budgetsync/internal/database"
	"budgetsync/internal/model"
	"budgetsync/internal/testutil"
)

type fixture struct {
	svc   *Service
	store budget.Store
	clock *testutil.StubClock
	fp    *testutil.StubFingerprinter
}

func newFixture(t *testing.T, store budget.Store, limits Limits) *fixture {
	t.Helper()
	clock := testutil.SteppingClock(time.Second)
	fp := testutil.NewStubFingerprinter("fp-laptop")
	return &fixture{
		svc:   NewService(store, clock, fp, budget.NewNopLogger(), limits),
		store: store,
		clock: clock,
		fp:    fp,
	}
}

func newMemoryFixture(t *testing.T) *fixture {
	return newFixture(t, database.NewMemoryStore(), Limits{})
}

func baseOptions() CommitOptions {
	return CommitOptions{
		EntityType:  EntityDebt,
		EntityID:    "debt-1",
		ChangeType:  model.ChangeUpdate,
		Description: "Updated debt: Visa",
		BeforeData:  map[string]any{"balance": "100.00"},
		AfterData:   map[string]any{"balance": "80.00"},
		Author:      "Sam",
		Timestamp:   1705314600000,
	}
}

func TestCreateCommit_PersistsCommitAndChange(t *testing.T) {
	ctx := context.Background()
	for name, store := range map[string]budget.Store{
		"memory": database.NewMemoryStore(),
		"sqlite": testutil.NewTestStore(t),
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, store, Limits{})

			res, err := f.svc.CreateCommit(ctx, baseOptions())
			require.NoError(t, err)
			assert.True(t, res.Created)
			assert.Len(t, res.Commit.Hash, 64)
			assert.Equal(t, "fp-laptop", res.Commit.DeviceFingerprint)
			assert.Equal(t, "Updated debt: Visa", res.Commit.Message)

			stored, err := store.GetCommit(ctx, res.Commit.Hash)
			require.NoError(t, err)
			require.NotNil(t, stored)
			assert.Equal(t, res.Commit.Author, stored.Author)

			changes := f.svc.GetEntityHistory(ctx, EntityDebt, "debt-1")
			require.Len(t, changes, 1)
			assert.Equal(t, res.Commit.Hash, changes[0].CommitHash)
			assert.JSONEq(t, `{"balance":"80.00"}`, string(changes[0].NewValue))
			assert.JSONEq(t, `{"balance":"100.00"}`, string(changes[0].OldValue))
		})
	}
}

func TestCreateCommit_Defaults(t *testing.T) {
	f := newMemoryFixture(t)

	res, err := f.svc.CreateCommit(context.Background(), CommitOptions{
		EntityType:  EntityUnassignedCash,
		ChangeType:  model.ChangeUpdate,
		Description: "x",
	})
	require.NoError(t, err)

	assert.Equal(t, DefaultAuthor, res.Commit.Author)
	assert.Equal(t, DefaultEntityID, res.Changes[0].EntityID)
	assert.Equal(t, "fp-laptop", res.Commit.DeviceFingerprint)
	assert.Equal(t, budget.Millis(testutil.FixedClock().Now()), res.Commit.Timestamp)
}

func TestCreateCommit_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newMemoryFixture(t)

	first, err := f.svc.CreateCommit(ctx, baseOptions())
	require.NoError(t, err)
	second, err := f.svc.CreateCommit(ctx, baseOptions())
	require.NoError(t, err)

	assert.Equal(t, first.Commit.Hash, second.Commit.Hash)
	assert.False(t, second.Created)

	n, err := f.store.CountCommits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, f.svc.GetEntityHistory(ctx, EntityDebt, ""), 1)
}

func TestCommitHash_EveryFieldMatters(t *testing.T) {
	base := baseOptions()
	base.DeviceFingerprint = "fp"
	baseHash, err := CommitHash(base)
	require.NoError(t, err)

	mutations := map[string]func(o *CommitOptions){
		"entityType":        func(o *CommitOptions) { o.EntityType = EntityActualBalance },
		"entityId":          func(o *CommitOptions) { o.EntityID = "debt-2" },
		"changeType":        func(o *CommitOptions) { o.ChangeType = model.ChangeDelete },
		"description":       func(o *CommitOptions) { o.Description = "other" },
		"beforeData":        func(o *CommitOptions) { o.BeforeData = map[string]any{"balance": "101.00"} },
		"afterData":         func(o *CommitOptions) { o.AfterData = nil },
		"author":            func(o *CommitOptions) { o.Author = "Alex" },
		"timestamp":         func(o *CommitOptions) { o.Timestamp++ },
		"deviceFingerprint": func(o *CommitOptions) { o.DeviceFingerprint = "fp2" },
		"parentHash":        func(o *CommitOptions) { o.ParentHash = "abc" },
	}
	for field, mutate := range mutations {
		t.Run(field, func(t *testing.T) {
			o := base
			mutate(&o)
			h, err := CommitHash(o)
			require.NoError(t, err)
			assert.NotEqual(t, baseHash, h)
		})
	}
}

func TestCommitHash_Canonical(t *testing.T) {
	type payload struct {
		B string `json:"b"`
		A string `json:"a"`
	}
	o1 := baseOptions()
	o1.AfterData = payload{B: "cafe\u0301", A: "x"}
	o2 := baseOptions()
	o2.AfterData = map[string]any{"a": "x", "b": "caf\u00e9"}

	h1, err := CommitHash(o1)
	require.NoError(t, err)
	h2, err := CommitHash(o2)
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "key order and unicode normalization must not change the hash")
}

func TestCreateCommit_Validation(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateCommit(ctx, CommitOptions{ChangeType: model.ChangeCreate})
	assert.ErrorIs(t, err, budget.ErrInvalidInput)

	_, err = f.svc.CreateCommit(ctx, CommitOptions{EntityType: EntityDebt, ChangeType: "modify"})
	assert.ErrorIs(t, err, budget.ErrInvalidInput)

	_, err = f.svc.CreateCommit(ctx, CommitOptions{EntityType: EntityDebt, ChangeType: model.ChangeCreate, AfterData: make(chan int)})
	assert.ErrorIs(t, err, budget.ErrSerialization)
}

func TestCreateCommit_StorageFailure(t *testing.T) {
	ctx := context.Background()
	inner := database.NewMemoryStore()
	f := newFixture(t, testutil.NewFailingStore(inner, "InsertCommit"), Limits{})

	_, err := f.svc.CreateCommit(ctx, baseOptions())
	assert.ErrorIs(t, err, budget.ErrStorage)

	n, _ := inner.CountCommits(ctx)
	assert.Zero(t, n)
}

func TestCreateCommit_AdvancesActiveBranch(t *testing.T) {
	ctx := context.Background()
	f := newMemoryFixture(t)

	root, err := f.svc.CreateCommit(ctx, baseOptions())
	require.NoError(t, err)
	_, err = f.svc.CreateBranch(ctx, BranchOptions{FromCommitHash: root.Commit.Hash, Name: "what-if"})
	require.NoError(t, err)
	require.NoError(t, f.svc.SwitchBranch(ctx, "what-if"))

	next := baseOptions()
	next.Timestamp++
	next.ParentHash = root.Commit.Hash
	child, err := f.svc.CreateCommit(ctx, next)
	require.NoError(t, err)

	b, err := f.store.GetBranch(ctx, "what-if")
	require.NoError(t, err)
	assert.Equal(t, child.Commit.Hash, b.HeadCommitHash)
	assert.Equal(t, root.Commit.Hash, b.SourceCommitHash)
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, database.NewMemoryStore(), Limits{MaxRecentCommits: 3})

	var hashes []string
	for i := range 5 {
		o := baseOptions()
		o.Timestamp = int64(1000 + i)
		res, err := f.svc.CreateCommit(ctx, o)
		require.NoError(t, err)
		hashes = append(hashes, res.Commit.Hash)
	}

	assert.Equal(t, 2, f.svc.Cleanup(ctx))

	for i, h := range hashes {
		c := f.svc.GetCommit(ctx, h)
		if i < 2 {
			assert.Nil(t, c, "commit %d should be pruned", i)
		} else {
			assert.NotNil(t, c, "commit %d should be kept", i)
		}
	}
	assert.Len(t, f.svc.GetEntityHistory(ctx, EntityDebt, ""), 3)

	assert.Zero(t, f.svc.Cleanup(ctx), "nothing beyond the limit")
}

func TestCleanup_StorageFailureIsLogged(t *testing.T) {
	f := newFixture(t, testutil.NewFailingStore(database.NewMemoryStore(), "CountCommits"), Limits{})
	assert.Zero(t, f.svc.Cleanup(context.Background()))
}

func TestStatus(t *testing.T) {
	f := newFixture(t, database.NewMemoryStore(), Limits{MaxRecentCommits: 50})

	st := f.svc.Status()
	assert.Equal(t, 50, st.MaxRecentCommits)
	assert.Equal(t, 3, st.MaxDevicesPerAuthor)
	assert.Equal(t, 10, st.DeviceLookback)
	assert.Equal(t, 30*24*time.Hour, st.DefaultAnalysisRange)
}

func TestTrackers(t *testing.T) {
	ctx := context.Background()
	f := newMemoryFixture(t)
	d := decimal.RequireFromString

	t.Run("unassigned cash manual", func(t *testing.T) {
		res, err := f.svc.TrackUnassignedCashChange(ctx, UnassignedCashChange{Previous: d("100"), New: d("75.5"), Author: "Sam"})
		require.NoError(t, err)
		assert.Equal(t, "Updated unassigned cash from $100.00 to $75.50", res.Commit.Message)
		assert.Equal(t, EntityUnassignedCash, res.Changes[0].EntityType)
		assert.Equal(t, DefaultEntityID, res.Changes[0].EntityID)
		assert.JSONEq(t, `{"amount":"75.5"}`, string(res.Changes[0].NewValue))
	})

	t.Run("unassigned cash distribution", func(t *testing.T) {
		res, err := f.svc.TrackUnassignedCashChange(ctx, UnassignedCashChange{Previous: d("1500"), New: d("250"), Source: SourceDistribution})
		require.NoError(t, err)
		assert.Equal(t, "Distributed $1,250.00 to envelopes", res.Commit.Message)
	})

	t.Run("actual balance", func(t *testing.T) {
		res, err := f.svc.TrackActualBalanceChange(ctx, ActualBalanceChange{Previous: d("10"), New: d("20"), IsManual: true})
		require.NoError(t, err)
		assert.Equal(t, "Updated actual balance via manual entry from $10.00 to $20.00", res.Commit.Message)
		assert.JSONEq(t, `{"balance":"10","isManual":false}`, string(res.Changes[0].OldValue))
		assert.JSONEq(t, `{"balance":"20","isManual":true}`, string(res.Changes[0].NewValue))

		res, err = f.svc.TrackActualBalanceChange(ctx, ActualBalanceChange{Previous: d("20"), New: d("19.99")})
		require.NoError(t, err)
		assert.Equal(t, "Updated actual balance via automatic calculation from $20.00 to $19.99", res.Commit.Message)
	})

	visa := &model.Debt{ID: "debt-1", Name: "Visa", CurrentBalance: d("1200")}
	paid := &model.Debt{ID: "debt-1", Name: "Visa", CurrentBalance: d("950.25")}
	renamed := &model.Debt{ID: "debt-1", Name: "Visa", CurrentBalance: d("1200"), Creditor: "Bank"}

	debtTests := []struct {
		name string
		in   DebtChange
		want string
	}{
		{"add", DebtChange{DebtID: "debt-1", ChangeType: model.ChangeCreate, New: visa}, "Added new debt: Visa ($1,200.00)"},
		{"balance change", DebtChange{DebtID: "debt-1", ChangeType: model.ChangeUpdate, Previous: visa, New: paid}, "Updated Visa balance from $1,200.00 to $950.25"},
		{"other change", DebtChange{DebtID: "debt-1", ChangeType: model.ChangeUpdate, Previous: visa, New: renamed}, "Updated debt: Visa"},
		{"delete", DebtChange{DebtID: "debt-1", ChangeType: model.ChangeDelete, Previous: visa}, "Deleted debt: Visa"},
	}
	for _, tt := range debtTests {
		t.Run("debt "+tt.name, func(t *testing.T) {
			res, err := f.svc.TrackDebtChange(ctx, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Commit.Message)
			assert.Equal(t, "debt-1", res.Changes[0].EntityID)
		})
	}

	t.Run("debt delete stores no new value", func(t *testing.T) {
		res, err := f.svc.TrackDebtChange(ctx, DebtChange{DebtID: "debt-9", ChangeType: model.ChangeDelete, Previous: visa})
		require.NoError(t, err)
		assert.Nil(t, res.Changes[0].NewValue)
	})

	t.Run("debt invalid", func(t *testing.T) {
		_, err := f.svc.TrackDebtChange(ctx, DebtChange{DebtID: "debt-1", ChangeType: model.ChangeUpdate, New: visa})
		assert.ErrorIs(t, err, budget.ErrInvalidInput)
		_, err = f.svc.TrackDebtChange(ctx, DebtChange{ChangeType: model.ChangeCreate, New: visa})
		assert.ErrorIs(t, err, budget.ErrInvalidInput)
		_, err = f.svc.TrackDebtChange(ctx, DebtChange{DebtID: "debt-1", ChangeType: "merge", New: visa})
		assert.ErrorIs(t, err, budget.ErrInvalidInput)
	})
}

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "$0.00"},
		{"5", "$5.00"},
		{"999.999", "$1,000.00"},
		{"1234.5", "$1,234.50"},
		{"1234567.891", "$1,234,567.89"},
		{"-3", "-$3.00"},
		{"-0.001", "$0.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatUSD(decimal.RequireFromString(tt.in)), tt.in)
	}
}

func TestQueries_NewestFirstAndLimits(t *testing.T) {
	ctx := context.Background()
	f := newMemoryFixture(t)
	d := decimal.RequireFromString

	for i := range 12 {
		_, err := f.svc.TrackUnassignedCashChange(ctx, UnassignedCashChange{Previous: d("0"), New: decimal.NewFromInt(int64(i))})
		require.NoError(t, err)
	}
	_, err := f.svc.TrackDebtChange(ctx, DebtChange{DebtID: "debt-1", ChangeType: model.ChangeCreate, New: &model.Debt{Name: "Car"}})
	require.NoError(t, err)
	_, err = f.svc.CreateCommit(ctx, CommitOptions{EntityType: "sync", ChangeType: model.ChangeUpdate, Description: "Synced"})
	require.NoError(t, err)

	recent := f.svc.GetRecentChanges(ctx, EntityUnassignedCash, 0)
	require.Len(t, recent, 10)
	assert.JSONEq(t, `{"amount":"11"}`, string(recent[0].NewValue))
	for i := 1; i < len(recent); i++ {
		assert.GreaterOrEqual(t, recent[i-1].Timestamp, recent[i].Timestamp)
	}

	activity := f.svc.GetRecentActivity(ctx, 0)
	require.Len(t, activity, 13)
	assert.Equal(t, EntityDebt, activity[0].EntityType)
	for _, c := range activity {
		assert.NotEqual(t, "sync", c.EntityType)
	}

	assert.Len(t, f.svc.GetRecentActivity(ctx, 5), 5)
	assert.Len(t, f.svc.GetEntityHistory(ctx, EntityDebt, "debt-1"), 1)
	assert.Empty(t, f.svc.GetEntityHistory(ctx, EntityDebt, "debt-2"))

	commits := f.svc.GetRecentCommits(ctx, 3)
	require.Len(t, commits, 3)
	assert.Equal(t, "Synced", commits[0].Message)
}

func TestQueries_StorageFailureReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewFailingStore(database.NewMemoryStore(), "ListChanges", "ListBranches", "ListTags", "ListCommitsSince")
	f := newFixture(t, store, Limits{})

	assert.NotNil(t, f.svc.GetRecentChanges(ctx, EntityDebt, 5))
	assert.Empty(t, f.svc.GetRecentChanges(ctx, EntityDebt, 5))
	assert.Empty(t, f.svc.GetEntityHistory(ctx, EntityDebt, ""))
	assert.Empty(t, f.svc.GetRecentActivity(ctx, 5))
	assert.Empty(t, f.svc.GetBranches(ctx))
	assert.Empty(t, f.svc.GetTags(ctx))
	assert.Empty(t, f.svc.GetRecentCommits(ctx, 5))
	assert.Nil(t, f.svc.GetChangePatterns(ctx, 0))
}

func TestBranches(t *testing.T) {
	ctx := context.Background()
	f := newMemoryFixture(t)

	root, err := f.svc.CreateCommit(ctx, baseOptions())
	require.NoError(t, err)

	b, err := f.svc.CreateBranch(ctx, BranchOptions{FromCommitHash: root.Commit.Hash, Name: "main", Author: "Sam"})
	require.NoError(t, err)
	assert.False(t, b.IsActive)
	assert.Equal(t, root.Commit.Hash, b.HeadCommitHash)

	_, err = f.svc.CreateBranch(ctx, BranchOptions{FromCommitHash: root.Commit.Hash, Name: "main"})
	var conflict *budget.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.ErrorIs(t, err, budget.ErrAlreadyExists)
	assert.Contains(t, err.Error(), "Branch 'main' already exists")

	_, err = f.svc.CreateBranch(ctx, BranchOptions{FromCommitHash: "nope", Name: "other"})
	assert.ErrorIs(t, err, budget.ErrNotFound)
	assert.Contains(t, err.Error(), "Source commit 'nope' not found")

	_, err = f.svc.CreateBranch(ctx, BranchOptions{FromCommitHash: root.Commit.Hash})
	assert.ErrorIs(t, err, budget.ErrInvalidInput)

	_, err = f.svc.CreateBranch(ctx, BranchOptions{FromCommitHash: root.Commit.Hash, Name: "experiment"})
	require.NoError(t, err)

	activeNames := func() []string {
		var names []string
		for _, b := range f.svc.GetBranches(ctx) {
			if b.IsActive {
				names = append(names, b.Name)
			}
		}
		return names
	}

	require.NoError(t, f.svc.SwitchBranch(ctx, "main"))
	assert.Equal(t, []string{"main"}, activeNames())

	require.NoError(t, f.svc.SwitchBranch(ctx, "experiment"))
	assert.Equal(t, []string{"experiment"}, activeNames())

	err = f.svc.SwitchBranch(ctx, "ghost")
	assert.ErrorIs(t, err, budget.ErrNotFound)
	assert.Contains(t, err.Error(), "Branch 'ghost' not found")
	assert.Equal(t, []string{"experiment"}, activeNames(), "failed switch must not lose the active branch")

	branches := f.svc.GetBranches(ctx)
	require.Len(t, branches, 2)
	assert.Equal(t, "main", branches[0].Name)
}

func TestTags(t *testing.T) {
	ctx := context.Background()
	f := newMemoryFixture(t)

	root, err := f.svc.CreateCommit(ctx, baseOptions())
	require.NoError(t, err)

	tag, err := f.svc.CreateTag(ctx, TagOptions{CommitHash: root.Commit.Hash, Name: "year-end"})
	require.NoError(t, err)
	assert.Equal(t, model.TagMilestone, tag.TagType)
	assert.Equal(t, DefaultAuthor, tag.Author)

	_, err = f.svc.CreateTag(ctx, TagOptions{CommitHash: root.Commit.Hash, Name: "year-end"})
	assert.ErrorIs(t, err, budget.ErrAlreadyExists)
	assert.Contains(t, err.Error(), "Tag 'year-end' already exists")

	_, err = f.svc.CreateTag(ctx, TagOptions{CommitHash: "missing", Name: "v2"})
	assert.ErrorIs(t, err, budget.ErrNotFound)
	assert.Contains(t, err.Error(), "Commit 'missing' not found")

	_, err = f.svc.CreateTag(ctx, TagOptions{CommitHash: root.Commit.Hash, Name: "v3", TagType: "snapshot"})
	assert.ErrorIs(t, err, budget.ErrInvalidInput)

	_, err = f.svc.CreateTag(ctx, TagOptions{CommitHash: root.Commit.Hash, Name: "pre-sync", TagType: model.TagBackup})
	require.NoError(t, err)

	tags := f.svc.GetTags(ctx)
	require.Len(t, tags, 2)
	assert.Equal(t, "pre-sync", tags[0].Name, "newest first")
}

func TestNotFoundErrorIsTyped(t *testing.T) {
	f := newMemoryFixture(t)
	_, err := f.svc.CreateTag(context.Background(), TagOptions{CommitHash: "x", Name: "t"})

	var nf *budget.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "x", nf.Name)
}
