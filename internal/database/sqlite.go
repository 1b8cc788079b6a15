package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"budgetsync/internal/budget"
	"budgetsync/internal/database/migrations"
	"budgetsync/internal/model"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements budget.Store on SQLite. Entity records are stored as
// JSON documents; history, backup and audit records use typed columns.
type SQLiteStore struct {
	db   *sql.DB
	q    querier
	path string
	inTx bool
}

var _ budget.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path and applies any
// pending migrations. path can be ":memory:".
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return &SQLiteStore{db: db, q: db, path: path}, nil
}

// OpenConnection opens a SQLite connection configured for a single writer.
// path can be a file path or ":memory:".
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite serializes writers anyway, and every pooled
	// connection to :memory: would otherwise be a different database.
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA busy_timeout = 5000"}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}
	return db, nil
}

// Update runs fn inside a database transaction. Nested calls reuse the
// enclosing transaction.
func (s *SQLiteStore) Update(ctx context.Context, fn func(tx budget.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("starting transaction", err)
	}
	defer tx.Rollback()

	if err := fn(&SQLiteStore{db: s.db, q: tx, path: s.path, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("committing transaction", err)
	}
	return nil
}

// atomic runs fn in the current transaction, or a new one if there is none.
func (s *SQLiteStore) atomic(ctx context.Context, fn func(q querier) error) error {
	if s.inTx {
		return fn(s.q)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("starting transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("committing transaction", err)
	}
	return nil
}

// Entity collections

func (s *SQLiteStore) ListEnvelopes(ctx context.Context) ([]model.Envelope, error) {
	return listDocuments[model.Envelope](ctx, s.q, "envelopes")
}

func (s *SQLiteStore) ListTransactions(ctx context.Context) ([]model.Transaction, error) {
	return listDocuments[model.Transaction](ctx, s.q, "transactions")
}

func (s *SQLiteStore) ListBills(ctx context.Context) ([]model.Bill, error) {
	return listDocuments[model.Bill](ctx, s.q, "bills")
}

func (s *SQLiteStore) ListDebts(ctx context.Context) ([]model.Debt, error) {
	return listDocuments[model.Debt](ctx, s.q, "debts")
}

func (s *SQLiteStore) BulkAddEnvelopes(ctx context.Context, envelopes []model.Envelope) error {
	return s.atomic(ctx, func(q querier) error {
		for _, e := range envelopes {
			if err := putDocument(ctx, q, "envelopes", e.ID, e.LastModified, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) BulkAddTransactions(ctx context.Context, transactions []model.Transaction) error {
	return s.atomic(ctx, func(q querier) error {
		for _, t := range transactions {
			data, err := json.Marshal(t)
			if err != nil {
				return storageErr("encoding transaction "+t.ID, err)
			}
			_, err = q.ExecContext(ctx,
				`INSERT OR REPLACE INTO transactions (id, envelope_id, date, last_modified, data) VALUES (?, ?, ?, ?, ?)`,
				t.ID, t.EnvelopeID, t.Date, t.LastModified, string(data))
			if err != nil {
				return storageErr("inserting transaction "+t.ID, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) BulkAddBills(ctx context.Context, bills []model.Bill) error {
	return s.atomic(ctx, func(q querier) error {
		for _, b := range bills {
			if err := putDocument(ctx, q, "bills", b.ID, b.LastModified, b); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) BulkAddDebts(ctx context.Context, debts []model.Debt) error {
	return s.atomic(ctx, func(q querier) error {
		for _, d := range debts {
			if err := putDocument(ctx, q, "debts", d.ID, d.LastModified, d); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ClearEntities(ctx context.Context) error {
	return s.atomic(ctx, func(q querier) error {
		for _, table := range []string{"envelopes", "transactions", "bills", "debts"} {
			if _, err := q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return storageErr("clearing "+table, err)
			}
		}
		return nil
	})
}

// Metadata

func (s *SQLiteStore) GetMetadata(ctx context.Context) (*model.Metadata, error) {
	var data string
	err := s.q.QueryRowContext(ctx, "SELECT data FROM budget_metadata WHERE id = 1").Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("reading metadata", err)
	}
	var m model.Metadata
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, storageErr("decoding metadata", err)
	}
	return &m, nil
}

func (s *SQLiteStore) PutMetadata(ctx context.Context, metadata *model.Metadata) error {
	if metadata == nil {
		return budget.NewInvalidInput("metadata", "is required")
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return storageErr("encoding metadata", err)
	}
	if _, err := s.q.ExecContext(ctx, "INSERT OR REPLACE INTO budget_metadata (id, data) VALUES (1, ?)", string(data)); err != nil {
		return storageErr("writing metadata", err)
	}
	return nil
}

// Maintenance

// Path returns the database file path (or ":memory:").
func (s *SQLiteStore) Path() string {
	return s.path
}

// MigrationStatus reports the schema version of the open database.
func (s *SQLiteStore) MigrationStatus() (*migrations.Status, error) {
	return migrations.ReadStatus(s.db)
}

// BackupTo writes a complete copy of the database to destPath using VACUUM INTO.
func (s *SQLiteStore) BackupTo(ctx context.Context, destPath string) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return storageErr("backing up database", err)
	}
	return nil
}

// Schema returns the CREATE statements of the application tables and indexes.
func (s *SQLiteStore) Schema(ctx context.Context) (string, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT sql || ';'
		FROM sqlite_master
		WHERE type IN ('table', 'index')
		  AND sql IS NOT NULL
		  AND name NOT LIKE 'sqlite_%'
		  AND tbl_name != 'schema_migrations'
		ORDER BY CASE type WHEN 'table' THEN 0 ELSE 1 END, name`)
	if err != nil {
		return "", storageErr("reading schema", err)
	}
	defer rows.Close()

	var stmts []string
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return "", storageErr("reading schema", err)
		}
		stmts = append(stmts, stmt)
	}
	if err := rows.Err(); err != nil {
		return "", storageErr("reading schema", err)
	}
	return strings.Join(stmts, "\n\n") + "\n", nil
}

// Close closes the database. Transaction-bound stores do not own the connection.
func (s *SQLiteStore) Close() error {
	if s.inTx || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// helpers

func listDocuments[T any](ctx context.Context, q querier, table string) ([]T, error) {
	rows, err := q.QueryContext(ctx, "SELECT data FROM "+table+" ORDER BY rowid")
	if err != nil {
		return nil, storageErr("listing "+table, err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, storageErr("listing "+table, err)
		}
		var v T
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, storageErr("decoding "+table, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("listing "+table, err)
	}
	return out, nil
}

func putDocument(ctx context.Context, q querier, table, id string, lastModified int64, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return storageErr("encoding "+table+" "+id, err)
	}
	_, err = q.ExecContext(ctx,
		"INSERT OR REPLACE INTO "+table+" (id, last_modified, data) VALUES (?, ?, ?)",
		id, lastModified, string(data))
	if err != nil {
		return storageErr("inserting into "+table, err)
	}
	return nil
}

func storageErr(op string, err error) error {
	return &budget.StorageError{Op: op, Err: err}
}

// isConstraint reports whether err is a SQLite constraint violation.
func isConstraint(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// chunk splits ids so IN clauses stay below SQLite's bound-parameter limit.
func chunk(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// sqlLimit maps "no limit" (<= 0) to SQLite's -1.
func sqlLimit(n int) int {
	if n <= 0 {
		return -1
	}
	return n
}
