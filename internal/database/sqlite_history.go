package database

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"strings"

	"budgetsync/internal/budget"
	"budgetsync/internal/model"
)

const maxInClause = 500

const commitColumns = "hash, timestamp, message, author, parent_hash, device_fingerprint"

const changeColumns = "id, commit_hash, timestamp, entity_type, entity_id, change_type, description, old_value, new_value"

const branchColumns = "name, description, source_commit_hash, head_commit_hash, author, created, is_active, is_merged"

const tagColumns = "name, description, commit_hash, tag_type, author, created"

// InsertCommit stores commit and its changes atomically. Change IDs are
// assigned in place.
func (s *SQLiteStore) InsertCommit(ctx context.Context, commit *model.Commit, changes []model.Change) (bool, error) {
	inserted := false
	err := s.atomic(ctx, func(q querier) error {
		res, err := q.ExecContext(ctx,
			`INSERT OR IGNORE INTO budget_commits (`+commitColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
			commit.Hash, commit.Timestamp, commit.Message, commit.Author, commit.ParentHash, commit.DeviceFingerprint)
		if err != nil {
			return storageErr("inserting commit", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return storageErr("inserting commit", err)
		}
		if n == 0 {
			return nil
		}
		inserted = true

		for i := range changes {
			c := &changes[i]
			c.CommitHash = commit.Hash
			c.Timestamp = commit.Timestamp
			res, err := q.ExecContext(ctx,
				`INSERT INTO budget_changes (commit_hash, timestamp, entity_type, entity_id, change_type, description, old_value, new_value)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				c.CommitHash, c.Timestamp, c.EntityType, c.EntityID, string(c.ChangeType), c.Description,
				nullJSON(c.OldValue), nullJSON(c.NewValue))
			if err != nil {
				return storageErr("inserting change", err)
			}
			if id, err := res.LastInsertId(); err == nil {
				c.ID = id
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (s *SQLiteStore) GetCommit(ctx context.Context, hash string) (*model.Commit, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+commitColumns+` FROM budget_commits WHERE hash = ?`, hash)
	c, err := scanCommit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("reading commit", err)
	}
	return c, nil
}

func (s *SQLiteStore) ListCommitsByAuthor(ctx context.Context, author string, limit int) ([]model.Commit, error) {
	return s.queryCommits(ctx, "listing commits by author",
		`SELECT `+commitColumns+` FROM budget_commits WHERE author = ? ORDER BY timestamp DESC, rowid DESC LIMIT ?`,
		author, sqlLimit(limit))
}

func (s *SQLiteStore) ListCommitsSince(ctx context.Context, since int64) ([]model.Commit, error) {
	return s.queryCommits(ctx, "listing recent commits",
		`SELECT `+commitColumns+` FROM budget_commits WHERE timestamp > ? ORDER BY timestamp ASC, rowid ASC`,
		since)
}

func (s *SQLiteStore) ListOldestCommits(ctx context.Context, limit int) ([]model.Commit, error) {
	return s.queryCommits(ctx, "listing oldest commits",
		`SELECT `+commitColumns+` FROM budget_commits ORDER BY timestamp ASC, rowid ASC LIMIT ?`,
		sqlLimit(limit))
}

func (s *SQLiteStore) CountCommits(ctx context.Context) (int, error) {
	var n int
	if err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM budget_commits").Scan(&n); err != nil {
		return 0, storageErr("counting commits", err)
	}
	return n, nil
}

func (s *SQLiteStore) DeleteCommits(ctx context.Context, hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}
	return s.atomic(ctx, func(q querier) error {
		for _, part := range chunk(hashes, maxInClause) {
			in := placeholders(len(part))
			args := toArgs(part)
			if _, err := q.ExecContext(ctx, "DELETE FROM budget_changes WHERE commit_hash IN ("+in+")", args...); err != nil {
				return storageErr("deleting changes", err)
			}
			if _, err := q.ExecContext(ctx, "DELETE FROM budget_commits WHERE hash IN ("+in+")", args...); err != nil {
				return storageErr("deleting commits", err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ListChanges(ctx context.Context, cq budget.ChangeQuery) ([]model.Change, error) {
	var (
		where []string
		args  []any
	)
	if len(cq.EntityTypes) > 0 {
		where = append(where, "entity_type IN ("+placeholders(len(cq.EntityTypes))+")")
		args = append(args, toArgs(cq.EntityTypes)...)
	}
	if cq.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, cq.EntityID)
	}

	query := `SELECT ` + changeColumns + ` FROM budget_changes`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, sqlLimit(cq.Limit))

	return s.queryChanges(ctx, "listing changes", query, args...)
}

func (s *SQLiteStore) ListChangesForCommits(ctx context.Context, hashes []string) ([]model.Change, error) {
	out := []model.Change{}
	for _, part := range chunk(hashes, maxInClause) {
		changes, err := s.queryChanges(ctx, "listing changes for commits",
			`SELECT `+changeColumns+` FROM budget_changes WHERE commit_hash IN (`+placeholders(len(part))+`)`,
			toArgs(part)...)
		if err != nil {
			return nil, err
		}
		out = append(out, changes...)
	}
	slices.SortStableFunc(out, newestChangeFirst)
	return out, nil
}

// Branches

func (s *SQLiteStore) GetBranch(ctx context.Context, name string) (*model.Branch, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+branchColumns+` FROM budget_branches WHERE name = ?`, name)
	b, err := scanBranch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("reading branch", err)
	}
	return b, nil
}

func (s *SQLiteStore) InsertBranch(ctx context.Context, b *model.Branch) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO budget_branches (`+branchColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Name, b.Description, b.SourceCommitHash, b.HeadCommitHash, b.Author, b.Created,
		boolInt(b.IsActive), boolInt(b.IsMerged))
	if isConstraint(err) {
		return &budget.ConflictError{Entity: "Branch", Name: b.Name}
	}
	if err != nil {
		return storageErr("inserting branch", err)
	}
	return nil
}

func (s *SQLiteStore) ListBranches(ctx context.Context) ([]model.Branch, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+branchColumns+` FROM budget_branches ORDER BY created ASC, rowid ASC`)
	if err != nil {
		return nil, storageErr("listing branches", err)
	}
	defer rows.Close()

	out := []model.Branch{}
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, storageErr("listing branches", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("listing branches", err)
	}
	return out, nil
}

func (s *SQLiteStore) DeactivateBranches(ctx context.Context) error {
	if _, err := s.q.ExecContext(ctx, "UPDATE budget_branches SET is_active = 0 WHERE is_active = 1"); err != nil {
		return storageErr("deactivating branches", err)
	}
	return nil
}

func (s *SQLiteStore) ActivateBranch(ctx context.Context, name string) (bool, error) {
	res, err := s.q.ExecContext(ctx, "UPDATE budget_branches SET is_active = 1 WHERE name = ?", name)
	if err != nil {
		return false, storageErr("activating branch", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("activating branch", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) AdvanceActiveBranch(ctx context.Context, hash string) error {
	if _, err := s.q.ExecContext(ctx, "UPDATE budget_branches SET head_commit_hash = ? WHERE is_active = 1", hash); err != nil {
		return storageErr("advancing branch head", err)
	}
	return nil
}

// Tags

func (s *SQLiteStore) GetTag(ctx context.Context, name string) (*model.Tag, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+tagColumns+` FROM budget_tags WHERE name = ?`, name)
	t, err := scanTag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("reading tag", err)
	}
	return t, nil
}

func (s *SQLiteStore) InsertTag(ctx context.Context, t *model.Tag) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO budget_tags (`+tagColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		t.Name, t.Description, t.CommitHash, string(t.TagType), t.Author, t.Created)
	if isConstraint(err) {
		return &budget.ConflictError{Entity: "Tag", Name: t.Name}
	}
	if err != nil {
		return storageErr("inserting tag", err)
	}
	return nil
}

func (s *SQLiteStore) ListTags(ctx context.Context) ([]model.Tag, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+tagColumns+` FROM budget_tags ORDER BY created DESC, rowid DESC`)
	if err != nil {
		return nil, storageErr("listing tags", err)
	}
	defer rows.Close()

	out := []model.Tag{}
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, storageErr("listing tags", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("listing tags", err)
	}
	return out, nil
}

// scanning

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) queryCommits(ctx context.Context, op, query string, args ...any) ([]model.Commit, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	out := []model.Commit{}
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

func (s *SQLiteStore) queryChanges(ctx context.Context, op, query string, args ...any) ([]model.Change, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	out := []model.Change{}
	for rows.Next() {
		var (
			c          model.Change
			changeType string
			oldValue   sql.NullString
			newValue   sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.CommitHash, &c.Timestamp, &c.EntityType, &c.EntityID,
			&changeType, &c.Description, &oldValue, &newValue); err != nil {
			return nil, storageErr(op, err)
		}
		c.ChangeType = model.ChangeType(changeType)
		if oldValue.Valid {
			c.OldValue = []byte(oldValue.String)
		}
		if newValue.Valid {
			c.NewValue = []byte(newValue.String)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

func scanCommit(row scanner) (*model.Commit, error) {
	var c model.Commit
	if err := row.Scan(&c.Hash, &c.Timestamp, &c.Message, &c.Author, &c.ParentHash, &c.DeviceFingerprint); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanBranch(row scanner) (*model.Branch, error) {
	var (
		b              model.Branch
		active, merged int
	)
	if err := row.Scan(&b.Name, &b.Description, &b.SourceCommitHash, &b.HeadCommitHash,
		&b.Author, &b.Created, &active, &merged); err != nil {
		return nil, err
	}
	b.IsActive = active != 0
	b.IsMerged = merged != 0
	return &b, nil
}

func scanTag(row scanner) (*model.Tag, error) {
	var (
		t       model.Tag
		tagType string
	)
	if err := row.Scan(&t.Name, &t.Description, &t.CommitHash, &tagType, &t.Author, &t.Created); err != nil {
		return nil, err
	}
	t.TagType = model.TagType(tagType)
	return &t, nil
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func newestChangeFirst(a, b model.Change) int {
	switch {
	case a.Timestamp != b.Timestamp:
		if a.Timestamp > b.Timestamp {
			return -1
		}
		return 1
	case a.ID > b.ID:
		return -1
	case a.ID < b.ID:
		return 1
	}
	return 0
}
