package database

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"

	"budgetsync/internal/budget"
	"budgetsync/internal/model"
)

// MemoryStore implements budget.Store in process memory. Update works on a
// copy of the state that replaces the live state only when fn succeeds.
// Writers (including transactions) are serialized; readers never block on a
// running transaction and see the last committed state.
type MemoryStore struct {
	writeMu *sync.Mutex
	mu      sync.RWMutex
	st      *memState
	inTx    bool
}

var _ budget.Store = (*MemoryStore)(nil)

type memState struct {
	seq int64

	envelopes    ordered[model.Envelope]
	transactions ordered[model.Transaction]
	bills        ordered[model.Bill]
	debts        ordered[model.Debt]
	metadata     *model.Metadata

	commits  map[string]seqd[model.Commit]
	changes  []model.Change
	changeID int64
	branches map[string]seqd[model.Branch]
	tags     map[string]seqd[model.Tag]
	backups  map[string]seqd[model.AutoBackup]
	audit    map[string]seqd[model.AuditLogEntry]
}

// seqd tags a record with its insertion sequence, the tie-breaker for equal timestamps.
type seqd[T any] struct {
	seq int64
	v   T
}

// ordered is an id-keyed collection that remembers first-insertion order.
type ordered[T any] struct {
	ids  []string
	byID map[string]T
}

func (o *ordered[T]) put(id string, v T) {
	if o.byID == nil {
		o.byID = make(map[string]T)
	}
	if _, ok := o.byID[id]; !ok {
		o.ids = append(o.ids, id)
	}
	o.byID[id] = v
}

func (o *ordered[T]) list() []T {
	out := make([]T, 0, len(o.ids))
	for _, id := range o.ids {
		out = append(out, o.byID[id])
	}
	return out
}

func (o ordered[T]) clone() ordered[T] {
	return ordered[T]{ids: slices.Clone(o.ids), byID: maps.Clone(o.byID)}
}

func newMemState() *memState {
	return &memState{
		commits:  make(map[string]seqd[model.Commit]),
		branches: make(map[string]seqd[model.Branch]),
		tags:     make(map[string]seqd[model.Tag]),
		backups:  make(map[string]seqd[model.AutoBackup]),
		audit:    make(map[string]seqd[model.AuditLogEntry]),
	}
}

func (st *memState) clone() *memState {
	c := *st
	c.envelopes = st.envelopes.clone()
	c.transactions = st.transactions.clone()
	c.bills = st.bills.clone()
	c.debts = st.debts.clone()
	if st.metadata != nil {
		m := *st.metadata
		c.metadata = &m
	}
	c.commits = maps.Clone(st.commits)
	c.changes = slices.Clone(st.changes)
	c.branches = maps.Clone(st.branches)
	c.tags = maps.Clone(st.tags)
	c.backups = maps.Clone(st.backups)
	c.audit = maps.Clone(st.audit)
	return &c
}

func (st *memState) next() int64 {
	st.seq++
	return st.seq
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{writeMu: &sync.Mutex{}, st: newMemState()}
}

// read runs fn with the state locked for reading.
func (s *MemoryStore) read(fn func(st *memState)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.st)
}

// write runs fn with the state locked for writing. Outside a transaction it
// also takes the writer lock so it cannot interleave with an Update.
func (s *MemoryStore) write(fn func(st *memState)) {
	if !s.inTx {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.st)
}

func (s *MemoryStore) Update(ctx context.Context, fn func(tx budget.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	draft := s.st.clone()
	s.mu.RUnlock()

	tx := &MemoryStore{writeMu: s.writeMu, st: draft, inTx: true}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return storageErr("committing transaction", err)
	}

	s.mu.Lock()
	s.st = tx.st
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Entity collections

func (s *MemoryStore) ListEnvelopes(ctx context.Context) (out []model.Envelope, err error) {
	s.read(func(st *memState) { out = st.envelopes.list() })
	return out, nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context) (out []model.Transaction, err error) {
	s.read(func(st *memState) { out = st.transactions.list() })
	return out, nil
}

func (s *MemoryStore) ListBills(ctx context.Context) (out []model.Bill, err error) {
	s.read(func(st *memState) { out = st.bills.list() })
	return out, nil
}

func (s *MemoryStore) ListDebts(ctx context.Context) (out []model.Debt, err error) {
	s.read(func(st *memState) { out = st.debts.list() })
	return out, nil
}

func (s *MemoryStore) BulkAddEnvelopes(ctx context.Context, envelopes []model.Envelope) error {
	s.write(func(st *memState) {
		for _, e := range envelopes {
			st.envelopes.put(e.ID, e)
		}
	})
	return nil
}

func (s *MemoryStore) BulkAddTransactions(ctx context.Context, transactions []model.Transaction) error {
	s.write(func(st *memState) {
		for _, t := range transactions {
			st.transactions.put(t.ID, t)
		}
	})
	return nil
}

func (s *MemoryStore) BulkAddBills(ctx context.Context, bills []model.Bill) error {
	s.write(func(st *memState) {
		for _, b := range bills {
			st.bills.put(b.ID, b)
		}
	})
	return nil
}

func (s *MemoryStore) BulkAddDebts(ctx context.Context, debts []model.Debt) error {
	s.write(func(st *memState) {
		for _, d := range debts {
			st.debts.put(d.ID, d)
		}
	})
	return nil
}

func (s *MemoryStore) ClearEntities(ctx context.Context) error {
	s.write(func(st *memState) {
		st.envelopes = ordered[model.Envelope]{}
		st.transactions = ordered[model.Transaction]{}
		st.bills = ordered[model.Bill]{}
		st.debts = ordered[model.Debt]{}
	})
	return nil
}

func (s *MemoryStore) GetMetadata(ctx context.Context) (*model.Metadata, error) {
	var out *model.Metadata
	s.read(func(st *memState) {
		if st.metadata != nil {
			m := *st.metadata
			out = &m
		}
	})
	return out, nil
}

func (s *MemoryStore) PutMetadata(ctx context.Context, metadata *model.Metadata) error {
	if metadata == nil {
		return budget.NewInvalidInput("metadata", "is required")
	}
	m := *metadata
	s.write(func(st *memState) { st.metadata = &m })
	return nil
}

// Commits and changes

func (s *MemoryStore) InsertCommit(ctx context.Context, commit *model.Commit, changes []model.Change) (bool, error) {
	inserted := false
	s.write(func(st *memState) {
		if _, ok := st.commits[commit.Hash]; ok {
			return
		}
		inserted = true
		st.commits[commit.Hash] = seqd[model.Commit]{seq: st.next(), v: *commit}
		for i := range changes {
			st.changeID++
			changes[i].ID = st.changeID
			changes[i].CommitHash = commit.Hash
			changes[i].Timestamp = commit.Timestamp
			st.changes = append(st.changes, changes[i])
		}
	})
	return inserted, nil
}

func (s *MemoryStore) GetCommit(ctx context.Context, hash string) (*model.Commit, error) {
	var out *model.Commit
	s.read(func(st *memState) {
		if c, ok := st.commits[hash]; ok {
			v := c.v
			out = &v
		}
	})
	return out, nil
}

func (s *MemoryStore) ListCommitsByAuthor(ctx context.Context, author string, limit int) ([]model.Commit, error) {
	var out []model.Commit
	s.read(func(st *memState) {
		all := sortedCommits(st, true)
		for _, c := range all {
			if c.Author == author {
				out = append(out, c)
			}
		}
	})
	return truncate(out, limit), nil
}

func (s *MemoryStore) ListCommitsSince(ctx context.Context, since int64) ([]model.Commit, error) {
	out := []model.Commit{}
	s.read(func(st *memState) {
		for _, c := range sortedCommits(st, false) {
			if c.Timestamp > since {
				out = append(out, c)
			}
		}
	})
	return out, nil
}

func (s *MemoryStore) ListOldestCommits(ctx context.Context, limit int) ([]model.Commit, error) {
	var out []model.Commit
	s.read(func(st *memState) { out = sortedCommits(st, false) })
	return truncate(out, limit), nil
}

func (s *MemoryStore) CountCommits(ctx context.Context) (n int, err error) {
	s.read(func(st *memState) { n = len(st.commits) })
	return n, nil
}

func (s *MemoryStore) DeleteCommits(ctx context.Context, hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}
	drop := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		drop[h] = true
	}
	s.write(func(st *memState) {
		for h := range drop {
			delete(st.commits, h)
		}
		st.changes = slices.DeleteFunc(st.changes, func(c model.Change) bool { return drop[c.CommitHash] })
	})
	return nil
}

func (s *MemoryStore) ListChanges(ctx context.Context, q budget.ChangeQuery) ([]model.Change, error) {
	types := make(map[string]bool, len(q.EntityTypes))
	for _, t := range q.EntityTypes {
		types[t] = true
	}
	out := []model.Change{}
	s.read(func(st *memState) {
		for _, c := range st.changes {
			if len(types) > 0 && !types[c.EntityType] {
				continue
			}
			if q.EntityID != "" && c.EntityID != q.EntityID {
				continue
			}
			out = append(out, c)
		}
	})
	slices.SortStableFunc(out, newestChangeFirst)
	return truncate(out, q.Limit), nil
}

func (s *MemoryStore) ListChangesForCommits(ctx context.Context, hashes []string) ([]model.Change, error) {
	want := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		want[h] = true
	}
	out := []model.Change{}
	s.read(func(st *memState) {
		for _, c := range st.changes {
			if want[c.CommitHash] {
				out = append(out, c)
			}
		}
	})
	slices.SortStableFunc(out, newestChangeFirst)
	return out, nil
}

// Branches

func (s *MemoryStore) GetBranch(ctx context.Context, name string) (*model.Branch, error) {
	var out *model.Branch
	s.read(func(st *memState) {
		if b, ok := st.branches[name]; ok {
			v := b.v
			out = &v
		}
	})
	return out, nil
}

func (s *MemoryStore) InsertBranch(ctx context.Context, b *model.Branch) error {
	var err error
	s.write(func(st *memState) {
		if _, ok := st.branches[b.Name]; ok {
			err = &budget.ConflictError{Entity: "Branch", Name: b.Name}
			return
		}
		st.branches[b.Name] = seqd[model.Branch]{seq: st.next(), v: *b}
	})
	return err
}

func (s *MemoryStore) ListBranches(ctx context.Context) ([]model.Branch, error) {
	var all []seqd[model.Branch]
	s.read(func(st *memState) { all = slices.Collect(maps.Values(st.branches)) })
	slices.SortFunc(all, func(a, b seqd[model.Branch]) int {
		return cmp.Or(cmp.Compare(a.v.Created, b.v.Created), cmp.Compare(a.seq, b.seq))
	})
	return values(all), nil
}

func (s *MemoryStore) DeactivateBranches(ctx context.Context) error {
	s.write(func(st *memState) {
		for name, b := range st.branches {
			if b.v.IsActive {
				b.v.IsActive = false
				st.branches[name] = b
			}
		}
	})
	return nil
}

func (s *MemoryStore) ActivateBranch(ctx context.Context, name string) (bool, error) {
	found := false
	s.write(func(st *memState) {
		b, ok := st.branches[name]
		if !ok {
			return
		}
		found = true
		b.v.IsActive = true
		st.branches[name] = b
	})
	return found, nil
}

func (s *MemoryStore) AdvanceActiveBranch(ctx context.Context, hash string) error {
	s.write(func(st *memState) {
		for name, b := range st.branches {
			if b.v.IsActive {
				b.v.HeadCommitHash = hash
				st.branches[name] = b
			}
		}
	})
	return nil
}

// Tags

func (s *MemoryStore) GetTag(ctx context.Context, name string) (*model.Tag, error) {
	var out *model.Tag
	s.read(func(st *memState) {
		if t, ok := st.tags[name]; ok {
			v := t.v
			out = &v
		}
	})
	return out, nil
}

func (s *MemoryStore) InsertTag(ctx context.Context, t *model.Tag) error {
	var err error
	s.write(func(st *memState) {
		if _, ok := st.tags[t.Name]; ok {
			err = &budget.ConflictError{Entity: "Tag", Name: t.Name}
			return
		}
		st.tags[t.Name] = seqd[model.Tag]{seq: st.next(), v: *t}
	})
	return err
}

func (s *MemoryStore) ListTags(ctx context.Context) ([]model.Tag, error) {
	var all []seqd[model.Tag]
	s.read(func(st *memState) { all = slices.Collect(maps.Values(st.tags)) })
	slices.SortFunc(all, func(a, b seqd[model.Tag]) int {
		return cmp.Or(cmp.Compare(b.v.Created, a.v.Created), cmp.Compare(b.seq, a.seq))
	})
	return values(all), nil
}

// Backups

func (s *MemoryStore) PutBackup(ctx context.Context, b *model.AutoBackup) error {
	s.write(func(st *memState) {
		seq := st.next()
		if prev, ok := st.backups[b.ID]; ok {
			seq = prev.seq
		}
		st.backups[b.ID] = seqd[model.AutoBackup]{seq: seq, v: *b}
	})
	return nil
}

func (s *MemoryStore) GetBackup(ctx context.Context, id string) (*model.AutoBackup, error) {
	var out *model.AutoBackup
	s.read(func(st *memState) {
		if b, ok := st.backups[id]; ok {
			v := b.v
			out = &v
		}
	})
	return out, nil
}

func (s *MemoryStore) ListBackups(ctx context.Context) ([]model.AutoBackup, error) {
	var all []seqd[model.AutoBackup]
	s.read(func(st *memState) { all = slices.Collect(maps.Values(st.backups)) })
	slices.SortFunc(all, func(a, b seqd[model.AutoBackup]) int {
		return cmp.Or(cmp.Compare(b.v.Timestamp, a.v.Timestamp), cmp.Compare(b.seq, a.seq))
	})
	return values(all), nil
}

func (s *MemoryStore) DeleteBackups(ctx context.Context, ids []string) error {
	s.write(func(st *memState) {
		for _, id := range ids {
			delete(st.backups, id)
		}
	})
	return nil
}

func (s *MemoryStore) DeleteAllBackups(ctx context.Context) error {
	s.write(func(st *memState) { clear(st.backups) })
	return nil
}

// Audit log

func (s *MemoryStore) AddAuditEntry(ctx context.Context, e *model.AuditLogEntry) error {
	var err error
	s.write(func(st *memState) {
		if _, ok := st.audit[e.ID]; ok {
			err = &budget.ConflictError{Entity: "Audit entry", Name: e.ID}
			return
		}
		st.audit[e.ID] = seqd[model.AuditLogEntry]{seq: st.next(), v: *e}
	})
	return err
}

func (s *MemoryStore) CountAuditEntries(ctx context.Context) (n int, err error) {
	s.read(func(st *memState) { n = len(st.audit) })
	return n, nil
}

func (s *MemoryStore) ListAuditEntries(ctx context.Context, limit int) ([]model.AuditLogEntry, error) {
	all := s.sortedAudit()
	slices.Reverse(all)
	return truncate(values(all), limit), nil
}

func (s *MemoryStore) DeleteOldestAuditEntries(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	s.write(func(st *memState) {
		all := slices.Collect(maps.Values(st.audit))
		slices.SortFunc(all, oldestAuditFirst)
		for _, e := range all[:min(n, len(all))] {
			delete(st.audit, e.v.ID)
		}
	})
	return nil
}

func (s *MemoryStore) sortedAudit() []seqd[model.AuditLogEntry] {
	var all []seqd[model.AuditLogEntry]
	s.read(func(st *memState) { all = slices.Collect(maps.Values(st.audit)) })
	slices.SortFunc(all, oldestAuditFirst)
	return all
}

func oldestAuditFirst(a, b seqd[model.AuditLogEntry]) int {
	return cmp.Or(cmp.Compare(a.v.Timestamp, b.v.Timestamp), cmp.Compare(a.seq, b.seq))
}

// sortedCommits returns every commit ordered by timestamp, newest first if desc.
func sortedCommits(st *memState, desc bool) []model.Commit {
	all := slices.Collect(maps.Values(st.commits))
	slices.SortFunc(all, func(a, b seqd[model.Commit]) int {
		return cmp.Or(cmp.Compare(a.v.Timestamp, b.v.Timestamp), cmp.Compare(a.seq, b.seq))
	})
	if desc {
		slices.Reverse(all)
	}
	return values(all)
}

func values[T any](in []seqd[T]) []T {
	out := make([]T, len(in))
	for i, v := range in {
		out[i] = v.v
	}
	return out
}

func truncate[T any](in []T, limit int) []T {
	if in == nil {
		in = []T{}
	}
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}
