package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Envelope is a budgeting bucket. Savings goals and supplemental accounts are
// envelopes distinguished by EnvelopeType.
type Envelope struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	EnvelopeType   string          `json:"envelopeType"` // "standard", "savings", "supplemental", "sinking_fund"
	CurrentBalance decimal.Decimal `json:"currentBalance"`
	MonthlyAmount  decimal.Decimal `json:"monthlyAmount"`
	TargetAmount   decimal.Decimal `json:"targetAmount"`
	Archived       bool            `json:"archived"`
	LastModified   int64           `json:"lastModified"` // unix millis
}

// Transaction is a single money movement against an envelope.
type Transaction struct {
	ID           string          `json:"id"`
	Date         string          `json:"date"` // YYYY-MM-DD
	Amount       decimal.Decimal `json:"amount"`
	EnvelopeID   string          `json:"envelopeId"`
	Category     string          `json:"category"`
	Type         string          `json:"type"` // "income", "expense", "transfer"
	Description  string          `json:"description"`
	LastModified int64           `json:"lastModified"`
}

// Bill is a recurring obligation.
type Bill struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Amount       decimal.Decimal `json:"amount"`
	DueDate      string          `json:"dueDate"`
	Frequency    string          `json:"frequency"`
	EnvelopeID   string          `json:"envelopeId,omitempty"`
	IsPaid       bool            `json:"isPaid"`
	LastModified int64           `json:"lastModified"`
}

// Debt is an outstanding balance owed.
type Debt struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Creditor       string          `json:"creditor"`
	CurrentBalance decimal.Decimal `json:"currentBalance"`
	MinimumPayment decimal.Decimal `json:"minimumPayment"`
	InterestRate   decimal.Decimal `json:"interestRate"`
	Status         string          `json:"status"` // "active", "paid_off"
	LastModified   int64           `json:"lastModified"`
}

// Metadata is the singleton budget record.
type Metadata struct {
	BudgetID              string          `json:"budgetId,omitempty"`
	UnassignedCash        decimal.Decimal `json:"unassignedCash"`
	ActualBalance         decimal.Decimal `json:"actualBalance"`
	IsActualBalanceManual bool            `json:"isActualBalanceManual"`
	LastModified          int64           `json:"lastModified"`
	LastSyncTime          int64           `json:"lastSyncTime,omitempty"`
}

// ChangeType classifies a Change.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Valid reports whether c is one of the known change types.
func (c ChangeType) Valid() bool {
	switch c {
	case ChangeCreate, ChangeUpdate, ChangeDelete:
		return true
	}
	return false
}

// Commit is an immutable, content-addressed history record.
type Commit struct {
	Hash              string `json:"hash"`
	Timestamp         int64  `json:"timestamp"` // unix millis
	Message           string `json:"message"`
	Author            string `json:"author"`
	ParentHash        string `json:"parentHash,omitempty"`
	DeviceFingerprint string `json:"deviceFingerprint"`
}

// Change is one semantic diff belonging to a Commit.
type Change struct {
	ID          int64           `json:"id,omitempty"` // store-assigned sequence
	CommitHash  string          `json:"commitHash"`
	Timestamp   int64           `json:"timestamp"` // copied from the owning commit
	EntityType  string          `json:"entityType"`
	EntityID    string          `json:"entityId"`
	ChangeType  ChangeType      `json:"changeType"`
	Description string          `json:"description"`
	OldValue    json.RawMessage `json:"oldValue,omitempty"`
	NewValue    json.RawMessage `json:"newValue,omitempty"`
}

// Branch is a named pointer into commit history.
type Branch struct {
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	SourceCommitHash string `json:"sourceCommitHash"`
	HeadCommitHash   string `json:"headCommitHash"`
	Author           string `json:"author"`
	Created          int64  `json:"created"`
	IsActive         bool   `json:"isActive"`
	IsMerged         bool   `json:"isMerged"`
}

// TagType classifies a Tag.
type TagType string

const (
	TagRelease   TagType = "release"
	TagMilestone TagType = "milestone"
	TagBackup    TagType = "backup"
)

// Valid reports whether t is one of the known tag types.
func (t TagType) Valid() bool {
	switch t {
	case TagRelease, TagMilestone, TagBackup:
		return true
	}
	return false
}

// Tag is a named, immutable pointer to one commit.
type Tag struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	CommitHash  string  `json:"commitHash"`
	TagType     TagType `json:"tagType"`
	Author      string  `json:"author"`
	Created     int64   `json:"created"`
}

// BackupType classifies an AutoBackup.
type BackupType string

const (
	BackupManual        BackupType = "manual"
	BackupScheduled     BackupType = "scheduled"
	BackupSyncTriggered BackupType = "sync_triggered"
)

// BackupData is a full snapshot of local state.
type BackupData struct {
	Envelopes    []Envelope      `json:"envelopes"`
	Transactions []Transaction   `json:"transactions"`
	Bills        []Bill          `json:"bills"`
	Debts        []Debt          `json:"debts"`
	AuditLog     []AuditLogEntry `json:"auditLog"`
	Metadata     *Metadata       `json:"metadata,omitempty"`
	Timestamp    int64           `json:"timestamp"`
}

// BackupMetadata holds statistics computed when a backup is taken.
type BackupMetadata struct {
	TotalRecords int    `json:"totalRecords"`
	SizeEstimate int64  `json:"sizeEstimate"`
	DurationMs   int64  `json:"duration"`
	Version      string `json:"version"`
}

// AutoBackup is a stored snapshot.
type AutoBackup struct {
	ID        string         `json:"id"`
	Type      BackupType     `json:"type"`
	SyncType  string         `json:"syncType,omitempty"`
	Timestamp int64          `json:"timestamp"`
	Data      BackupData     `json:"data"`
	Metadata  BackupMetadata `json:"metadata"`
}

// AuditLogEntry records one external API call.
type AuditLogEntry struct {
	ID                   string `json:"id"`
	Timestamp            int64  `json:"timestamp"`
	Endpoint             string `json:"endpoint"`
	Method               string `json:"method"`
	EncryptedPayloadSize int64  `json:"encryptedPayloadSize"`
	ResponseTimeMs       int64  `json:"responseTimeMs"`
	Success              bool   `json:"success"`
	Encrypted            bool   `json:"encrypted"`
	ErrorMessage         string `json:"errorMessage,omitempty"`
}

// SyncPayload is the logical state exchanged with the remote store.
type SyncPayload struct {
	Envelopes    []Envelope    `json:"envelopes"`
	Transactions []Transaction `json:"transactions"`
	Bills        []Bill        `json:"bills"`
	Debts        []Debt        `json:"debts"`
	Metadata     *Metadata     `json:"metadata,omitempty"`
	LastModified int64         `json:"lastModified"`
	Author       string        `json:"author,omitempty"`
}

// ItemCount is the number of entity records in the payload.
func (p *SyncPayload) ItemCount() int {
	if p == nil {
		return 0
	}
	return len(p.Envelopes) + len(p.Transactions) + len(p.Bills) + len(p.Debts)
}
