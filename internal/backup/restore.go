package backup

import (
	"context"
	"fmt"

	"budgetsync/internal/budget"
	"budgetsync/internal/model"
)

// RestoreSummary reports what a restore wrote and what it skipped.
type RestoreSummary struct {
	BackupID             string `json:"backupId" yaml:"backupId"`
	BackupTimestamp      int64  `json:"backupTimestamp" yaml:"backupTimestamp"`
	EnvelopesRestored    int    `json:"envelopesRestored" yaml:"envelopesRestored"`
	EnvelopesSkipped     int    `json:"envelopesSkipped" yaml:"envelopesSkipped"`
	TransactionsRestored int    `json:"transactionsRestored" yaml:"transactionsRestored"`
	TransactionsSkipped  int    `json:"transactionsSkipped" yaml:"transactionsSkipped"`
	BillsRestored        int    `json:"billsRestored" yaml:"billsRestored"`
	BillsSkipped         int    `json:"billsSkipped" yaml:"billsSkipped"`
	DebtsRestored        int    `json:"debtsRestored" yaml:"debtsRestored"`
	DebtsSkipped         int    `json:"debtsSkipped" yaml:"debtsSkipped"`
	MetadataRestored     bool   `json:"metadataRestored" yaml:"metadataRestored"`
}

// Restored is the total number of records written.
func (r *RestoreSummary) Restored() int {
	return r.EnvelopesRestored + r.TransactionsRestored + r.BillsRestored + r.DebtsRestored
}

// Skipped is the total number of invalid records left out.
func (r *RestoreSummary) Skipped() int {
	return r.EnvelopesSkipped + r.TransactionsSkipped + r.BillsSkipped + r.DebtsSkipped
}

// validatable is satisfied by pointers to the entity records.
type validatable[T any] interface {
	*T
	Validate() error
}

// keepValid returns the records of in that pass validation. Invalid ones
// are logged with their id and dropped, as are later records repeating an
// id already kept.
func keepValid[T any, P validatable[T]](logger budget.Logger, kind string, in []T, id func(T) string) ([]T, int) {
	out := make([]T, 0, len(in))
	seen := make(map[string]bool, len(in))
	for i := range in {
		if err := P(&in[i]).Validate(); err != nil {
			logger.Warn("skipping invalid record during restore", "kind", kind, "id", id(in[i]), "error", err)
			continue
		}
		key := id(in[i])
		if seen[key] {
			logger.Warn("skipping duplicate record during restore", "kind", kind, "id", key)
			continue
		}
		seen[key] = true
		out = append(out, in[i])
	}
	return out, len(in) - len(out)
}

// RestoreFromBackup replaces every entity collection and the metadata record
// with the contents of backup id. Records failing validation are skipped.
// Clearing and writing happen in one transaction, so a storage failure
// leaves local state untouched and is returned.
func (s *Service) RestoreFromBackup(ctx context.Context, id string) (*RestoreSummary, error) {
	s.logger.Warn("restoring from backup", "backupId", id)

	b, err := s.store.GetBackup(ctx, id)
	if err != nil {
		s.logger.Error("failed to restore from backup", "backupId", id, "error", err)
		return nil, fmt.Errorf("loading backup: %w", err)
	}
	if b == nil {
		return nil, &budget.NotFoundError{Entity: "Backup", Name: id}
	}

	data := b.Data
	sum := &RestoreSummary{BackupID: id, BackupTimestamp: b.Timestamp}

	envelopes, skipped := keepValid(s.logger, "envelope", data.Envelopes, func(e model.Envelope) string { return e.ID })
	sum.EnvelopesRestored, sum.EnvelopesSkipped = len(envelopes), skipped
	transactions, skipped := keepValid(s.logger, "transaction", data.Transactions, func(t model.Transaction) string { return t.ID })
	sum.TransactionsRestored, sum.TransactionsSkipped = len(transactions), skipped
	bills, skipped := keepValid(s.logger, "bill", data.Bills, func(b model.Bill) string { return b.ID })
	sum.BillsRestored, sum.BillsSkipped = len(bills), skipped
	debts, skipped := keepValid(s.logger, "debt", data.Debts, func(d model.Debt) string { return d.ID })
	sum.DebtsRestored, sum.DebtsSkipped = len(debts), skipped

	var metadata *model.Metadata
	if data.Metadata != nil {
		m := *data.Metadata
		m.LastModified = budget.Millis(s.clock.Now())
		metadata = &m
	}

	err = s.store.Update(ctx, func(tx budget.Store) error {
		if err := tx.ClearEntities(ctx); err != nil {
			return err
		}
		if len(envelopes) > 0 {
			if err := tx.BulkAddEnvelopes(ctx, envelopes); err != nil {
				return err
			}
		}
		if len(transactions) > 0 {
			if err := tx.BulkAddTransactions(ctx, transactions); err != nil {
				return err
			}
		}
		if len(bills) > 0 {
			if err := tx.BulkAddBills(ctx, bills); err != nil {
				return err
			}
		}
		if len(debts) > 0 {
			if err := tx.BulkAddDebts(ctx, debts); err != nil {
				return err
			}
		}
		if metadata != nil {
			return tx.PutMetadata(ctx, metadata)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to restore from backup", "backupId", id, "error", err)
		return nil, fmt.Errorf("restoring backup %s: %w", id, err)
	}
	sum.MetadataRestored = metadata != nil

	s.logger.Info("restored from backup",
		"backupId", id, "restored", sum.Restored(), "skipped", sum.Skipped())
	return sum, nil
}
