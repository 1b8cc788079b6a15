package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"budgetsync/internal/budget"
	"budgetsync/internal/model"
)

// Auto backups

func (s *SQLiteStore) PutBackup(ctx context.Context, b *model.AutoBackup) error {
	data, err := json.Marshal(b.Data)
	if err != nil {
		return storageErr("encoding backup data", err)
	}
	meta, err := json.Marshal(b.Metadata)
	if err != nil {
		return storageErr("encoding backup metadata", err)
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT OR REPLACE INTO auto_backups (id, type, sync_type, timestamp, data, metadata) VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, string(b.Type), b.SyncType, b.Timestamp, string(data), string(meta))
	if err != nil {
		return storageErr("writing backup", err)
	}
	return nil
}

func (s *SQLiteStore) GetBackup(ctx context.Context, id string) (*model.AutoBackup, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, type, sync_type, timestamp, data, metadata FROM auto_backups WHERE id = ?`, id)
	b, err := scanBackup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("reading backup", err)
	}
	return b, nil
}

func (s *SQLiteStore) ListBackups(ctx context.Context) ([]model.AutoBackup, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, type, sync_type, timestamp, data, metadata FROM auto_backups ORDER BY timestamp DESC, rowid DESC`)
	if err != nil {
		return nil, storageErr("listing backups", err)
	}
	defer rows.Close()

	out := []model.AutoBackup{}
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, storageErr("listing backups", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("listing backups", err)
	}
	return out, nil
}

func (s *SQLiteStore) DeleteBackups(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.atomic(ctx, func(q querier) error {
		for _, part := range chunk(ids, maxInClause) {
			if _, err := q.ExecContext(ctx, "DELETE FROM auto_backups WHERE id IN ("+placeholders(len(part))+")", toArgs(part)...); err != nil {
				return storageErr("deleting backups", err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) DeleteAllBackups(ctx context.Context) error {
	if _, err := s.q.ExecContext(ctx, "DELETE FROM auto_backups"); err != nil {
		return storageErr("deleting backups", err)
	}
	return nil
}

func scanBackup(row scanner) (*model.AutoBackup, error) {
	var (
		b          model.AutoBackup
		backupType string
		data, meta string
	)
	if err := row.Scan(&b.ID, &backupType, &b.SyncType, &b.Timestamp, &data, &meta); err != nil {
		return nil, err
	}
	b.Type = model.BackupType(backupType)
	if err := json.Unmarshal([]byte(data), &b.Data); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(meta), &b.Metadata); err != nil {
		return nil, err
	}
	return &b, nil
}

// Audit log

func (s *SQLiteStore) AddAuditEntry(ctx context.Context, e *model.AuditLogEntry) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO audit_log (id, timestamp, endpoint, method, encrypted_payload_size, response_time_ms, success, encrypted, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp, e.Endpoint, e.Method, e.EncryptedPayloadSize, e.ResponseTimeMs,
		boolInt(e.Success), boolInt(e.Encrypted), e.ErrorMessage)
	if isConstraint(err) {
		return &budget.ConflictError{Entity: "Audit entry", Name: e.ID}
	}
	if err != nil {
		return storageErr("writing audit entry", err)
	}
	return nil
}

func (s *SQLiteStore) CountAuditEntries(ctx context.Context) (int, error) {
	var n int
	if err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log").Scan(&n); err != nil {
		return 0, storageErr("counting audit entries", err)
	}
	return n, nil
}

func (s *SQLiteStore) ListAuditEntries(ctx context.Context, limit int) ([]model.AuditLogEntry, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, timestamp, endpoint, method, encrypted_payload_size, response_time_ms, success, encrypted, error_message
		 FROM audit_log ORDER BY timestamp DESC, rowid DESC LIMIT ?`, sqlLimit(limit))
	if err != nil {
		return nil, storageErr("listing audit entries", err)
	}
	defer rows.Close()

	out := []model.AuditLogEntry{}
	for rows.Next() {
		var (
			e                  model.AuditLogEntry
			success, encrypted int
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Endpoint, &e.Method, &e.EncryptedPayloadSize,
			&e.ResponseTimeMs, &success, &encrypted, &e.ErrorMessage); err != nil {
			return nil, storageErr("listing audit entries", err)
		}
		e.Success = success != 0
		e.Encrypted = encrypted != 0
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("listing audit entries", err)
	}
	return out, nil
}

func (s *SQLiteStore) DeleteOldestAuditEntries(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	_, err := s.q.ExecContext(ctx,
		`DELETE FROM audit_log WHERE rowid IN (SELECT rowid FROM audit_log ORDER BY timestamp ASC, rowid ASC LIMIT ?)`, n)
	if err != nil {
		return storageErr("evicting audit entries", err)
	}
	return nil
}
