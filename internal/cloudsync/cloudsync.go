// Package cloudsync reconciles local budget state with the encrypted
// snapshot held by the remote store.
//
// A sync takes a pre-sync backup, loads local state, fetches and decrypts the
// cloud snapshot, picks a direction and then either replaces local entities
// with the cloud copy or uploads the local copy. Every remote call is written
// to the audit trail and every completed sync is recorded in the history
// ledger.
package cloudsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetsync/internal/audit"
	"budgetsync/internal/backup"
	"budgetsync/internal/budget"
	"budgetsync/internal/history"
	"budgetsync/internal/model"
	"budgetsync/internal/pipeline"
)

const (
	// ReasonInProgress is reported when a sync is requested while one runs.
	ReasonInProgress = "Sync in progress"

	// EntitySync is the history entity type of sync commits.
	EntitySync = "sync"

	backupSyncType = "cloud_sync"

	endpointGet = "snapshot/get"
	endpointPut = "snapshot/put"
)

// Options configures an Orchestrator.
type Options struct {
	BudgetID     string
	Author       string
	SharedBudget bool

	DebounceNormal time.Duration
	DebounceHigh   time.Duration
}

// Result is the outcome of one sync.
type Result struct {
	Success    bool      `json:"success" yaml:"success"`
	Direction  Direction `json:"direction,omitempty" yaml:"direction,omitempty"`
	BackupID   string    `json:"backupId,omitempty" yaml:"backupId,omitempty"`
	Records    int       `json:"records" yaml:"records"`
	Reason     string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	Category   Category  `json:"category,omitempty" yaml:"category,omitempty"`
	CommitHash string    `json:"commitHash,omitempty" yaml:"commitHash,omitempty"`
}

// Orchestrator runs syncs for one budget. ForceSync may be called directly;
// Start adds a background loop that runs debounced syncs.
type Orchestrator struct {
	store   budget.Store
	remote  budget.Remote
	enc     budget.Encryptor
	backups *backup.Service
	history *history.Service
	audit   *audit.Log
	clock   budget.Clock
	logger  budget.Logger
	opts    Options

	syncing atomic.Bool

	mu         sync.Mutex
	running    bool
	timer      *time.Timer
	queue      chan struct{}
	cancel     context.CancelFunc
	done       chan struct{}
	lastResult *Result
	lastSync   time.Time
}

// New creates an Orchestrator. The budget id and encryptor are the
// encryption context; without them no sync can run.
func New(store budget.Store, remote budget.Remote, enc budget.Encryptor, backups *backup.Service, hist *history.Service, auditLog *audit.Log, clock budget.Clock, logger budget.Logger, opts Options) (*Orchestrator, error) {
	if opts.BudgetID == "" {
		return nil, budget.NewInvalidInput("budgetId", "budget id is required")
	}
	if enc == nil {
		return nil, budget.NewInvalidInput("encryptor", "encryptor is required")
	}
	if store == nil || remote == nil || backups == nil || auditLog == nil {
		return nil, budget.NewInvalidInput("dependencies", "store, remote, backups and audit log are required")
	}
	if opts.DebounceNormal <= 0 {
		opts.DebounceNormal = 10 * time.Second
	}
	if opts.DebounceHigh <= 0 {
		opts.DebounceHigh = 2 * time.Second
	}
	return &Orchestrator{
		store:   store,
		remote:  remote,
		enc:     enc,
		backups: backups,
		history: hist,
		audit:   auditLog,
		clock:   clock,
		logger:  logger,
		opts:    opts,
		queue:   make(chan struct{}, 1),
	}, nil
}

// ForceSync runs one sync now. A second call while a sync is running returns
// immediately with ReasonInProgress. Failures are reported both in the
// Result and as the returned error.
func (o *Orchestrator) ForceSync(ctx context.Context) (*Result, error) {
	if !o.syncing.CompareAndSwap(false, true) {
		o.logger.Warn("sync already in progress, skipping")
		return &Result{Reason: ReasonInProgress}, nil
	}
	defer o.syncing.Store(false)

	o.logger.Info("starting sync", "budgetId", short(o.opts.BudgetID))
	res := &Result{BackupID: o.backups.CreatePreSyncBackup(ctx, backupSyncType)}

	local, err := o.loadLocal(ctx)
	if err != nil {
		return o.fail(res, "fetching_local_data", err)
	}

	cloud, err := o.fetchCloud(ctx)
	if err != nil {
		return o.fail(res, "fetching_cloud_data", err)
	}

	decision := Decide(local, cloud, o.opts.SharedBudget)
	res.Direction = decision.Direction
	o.logger.Info("sync direction determined",
		"direction", string(decision.Direction), "reason", decision.Reason,
		"localItems", local.ItemCount(), "cloudItems", cloud.ItemCount(),
		"localLastModified", local.LastModified, "cloudLastModified", cloudLastModified(cloud))

	switch decision.Direction {
	case DirectionDownload:
		if cloud == nil {
			return o.fail(res, "sync_execution", errors.New("no cloud data found"))
		}
		if err := o.applyCloud(ctx, cloud); err != nil {
			return o.fail(res, "sync_execution", err)
		}
		res.Records = cloud.ItemCount()
	default:
		if err := o.upload(ctx, local); err != nil {
			return o.fail(res, "sync_execution", err)
		}
		res.Records = local.ItemCount()
	}

	return o.succeed(ctx, res), nil
}

// ForcePush uploads local state without reading the cloud snapshot first,
// overwriting whatever the remote holds. Used after a restore so the
// restored state wins on every device.
func (o *Orchestrator) ForcePush(ctx context.Context) (*Result, error) {
	if !o.syncing.CompareAndSwap(false, true) {
		o.logger.Warn("sync in progress, skipping force push")
		return &Result{Reason: ReasonInProgress}, nil
	}
	defer o.syncing.Store(false)

	o.logger.Info("force pushing local state", "budgetId", short(o.opts.BudgetID))
	res := &Result{Direction: DirectionUpload}

	local, err := o.loadLocal(ctx)
	if err != nil {
		return o.fail(res, "fetching_local_data", err)
	}
	if err := o.upload(ctx, local); err != nil {
		return o.fail(res, "sync_execution", err)
	}
	res.Records = local.ItemCount()
	return o.succeed(ctx, res), nil
}

func (o *Orchestrator) fail(res *Result, stage string, err error) (*Result, error) {
	res.Success = false
	res.Reason = err.Error()
	res.Category = Categorize(err)
	o.logger.Error("sync failed", "stage", stage, "category", string(res.Category), "backupId", res.BackupID, "error", err)
	o.remember(res, false)
	return res, fmt.Errorf("sync %s: %w", stage, err)
}

func (o *Orchestrator) succeed(ctx context.Context, res *Result) *Result {
	res.Success = true
	o.updateLastSyncTime(ctx)
	res.CommitHash = o.recordCommit(ctx, res)
	o.remember(res, true)
	o.logger.Info("sync completed", "direction", string(res.Direction), "records", res.Records, "backupId", res.BackupID)
	return res
}

func (o *Orchestrator) remember(res *Result, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastResult = res
	if ok {
		o.lastSync = o.clock.Now()
	}
}

// loadLocal reads the entity collections and metadata concurrently. The
// payload's LastModified is the metadata record's.
func (o *Orchestrator) loadLocal(ctx context.Context) (*model.SyncPayload, error) {
	p := &model.SyncPayload{Author: o.opts.Author}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		p.Envelopes, err = o.store.ListEnvelopes(gctx)
		return err
	})
	g.Go(func() (err error) {
		p.Transactions, err = o.store.ListTransactions(gctx)
		return err
	})
	g.Go(func() (err error) {
		p.Bills, err = o.store.ListBills(gctx)
		return err
	})
	g.Go(func() (err error) {
		p.Debts, err = o.store.ListDebts(gctx)
		return err
	})
	g.Go(func() (err error) {
		p.Metadata, err = o.store.GetMetadata(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading local state: %w", err)
	}
	if p.Metadata != nil {
		p.LastModified = p.Metadata.LastModified
	}
	return p, nil
}

// fetchCloud returns the decoded cloud snapshot, or nil when there is none.
// A snapshot that cannot be decrypted or decoded counts as none. Transport
// failures are returned.
func (o *Orchestrator) fetchCloud(ctx context.Context) (*model.SyncPayload, error) {
	var ciphertext bytes.Buffer
	err := o.audit.Time(ctx, endpointGet, "GET", func() int64 { return int64(ciphertext.Len()) }, func() error {
		return o.remote.GetSnapshot(ctx, o.opts.BudgetID, &ciphertext)
	})
	var nf *budget.NotFoundError
	if errors.As(err, &nf) {
		o.logger.Debug("no cloud snapshot yet", "budgetId", short(o.opts.BudgetID))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching cloud snapshot: %w", err)
	}

	var plaintext bytes.Buffer
	if err := o.enc.Decrypt(&ciphertext, &plaintext); err != nil {
		o.logger.Warn("decryption failed during sync, treating as no cloud data",
			"budgetId", short(o.opts.BudgetID), "wrongKey", errors.Is(err, budget.ErrWrongKey), "error", err)
		return nil, nil
	}

	var p model.SyncPayload
	if err := pipeline.RestoreFromCloudInto(plaintext.String(), &p); err != nil {
		o.logger.Warn("cloud snapshot could not be decoded, treating as no cloud data", "error", err)
		return nil, nil
	}
	return &p, nil
}

// applyCloud replaces every local entity collection and the metadata record
// with the cloud copy in one transaction. Local LastModified becomes the
// cloud's so the next sync sees both sides as equal.
func (o *Orchestrator) applyCloud(ctx context.Context, cloud *model.SyncPayload) error {
	meta := &model.Metadata{}
	if cloud.Metadata != nil {
		*meta = *cloud.Metadata
	}
	meta.BudgetID = o.opts.BudgetID
	meta.LastModified = cloud.LastModified

	err := o.store.Update(ctx, func(tx budget.Store) error {
		if err := tx.ClearEntities(ctx); err != nil {
			return err
		}
		if len(cloud.Envelopes) > 0 {
			if err := tx.BulkAddEnvelopes(ctx, cloud.Envelopes); err != nil {
				return err
			}
		}
		if len(cloud.Transactions) > 0 {
			if err := tx.BulkAddTransactions(ctx, cloud.Transactions); err != nil {
				return err
			}
		}
		if len(cloud.Bills) > 0 {
			if err := tx.BulkAddBills(ctx, cloud.Bills); err != nil {
				return err
			}
		}
		if len(cloud.Debts) > 0 {
			if err := tx.BulkAddDebts(ctx, cloud.Debts); err != nil {
				return err
			}
		}
		return tx.PutMetadata(ctx, meta)
	})
	if err != nil {
		return fmt.Errorf("saving cloud data locally: %w", err)
	}
	return nil
}

// upload encodes, encrypts and stores local. The snapshot version is the
// payload's LastModified, or now when local state has never been stamped.
func (o *Orchestrator) upload(ctx context.Context, local *model.SyncPayload) error {
	if local.LastModified == 0 {
		local.LastModified = budget.Millis(o.clock.Now())
	}

	encoded, err := pipeline.PrepareForCloud(local)
	if err != nil {
		return fmt.Errorf("encoding local state: %w", err)
	}

	var ciphertext bytes.Buffer
	if err := o.enc.Encrypt(bytes.NewReader([]byte(encoded)), &ciphertext); err != nil {
		return fmt.Errorf("%w: %w", ErrEncryption, err)
	}

	size := int64(ciphertext.Len())
	err = o.audit.Time(ctx, endpointPut, "PUT", func() int64 { return size }, func() error {
		return o.remote.PutSnapshot(ctx, o.opts.BudgetID, &ciphertext, size, local.LastModified)
	})
	if err != nil {
		return fmt.Errorf("uploading snapshot: %w", err)
	}
	return nil
}

// updateLastSyncTime stamps the metadata record. Failures are logged.
func (o *Orchestrator) updateLastSyncTime(ctx context.Context) {
	err := o.store.Update(ctx, func(tx budget.Store) error {
		meta, err := tx.GetMetadata(ctx)
		if err != nil {
			return err
		}
		if meta == nil {
			meta = &model.Metadata{BudgetID: o.opts.BudgetID}
		}
		meta.LastSyncTime = budget.Millis(o.clock.Now())
		return tx.PutMetadata(ctx, meta)
	})
	if err != nil {
		o.logger.Error("failed to update last sync time", "error", err)
	}
}

// recordCommit adds the sync to the history ledger. Failures are logged.
func (o *Orchestrator) recordCommit(ctx context.Context, res *Result) string {
	if o.history == nil {
		return ""
	}
	r, err := o.history.CreateCommit(ctx, history.CommitOptions{
		EntityType:  EntitySync,
		EntityID:    o.opts.BudgetID,
		ChangeType:  model.ChangeUpdate,
		Description: fmt.Sprintf("Synced %d records (%s)", res.Records, res.Direction),
		AfterData: map[string]any{
			"direction": string(res.Direction),
			"records":   res.Records,
			"backupId":  res.BackupID,
		},
		Author: o.opts.Author,
	})
	if err != nil {
		o.logger.Error("failed to record sync commit", "error", err)
		return ""
	}
	return r.Commit.Hash
}

func cloudLastModified(p *model.SyncPayload) int64 {
	if p == nil {
		return 0
	}
	return p.LastModified
}

// short truncates a budget id for logs.
func short(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}
