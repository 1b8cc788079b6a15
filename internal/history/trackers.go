package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"budgetsync/internal/budget"
	"budgetsync/internal/model"
)

// Entity types recorded by the trackers.
const (
	EntityUnassignedCash = "unassignedCash"
	EntityActualBalance  = "actualBalance"
	EntityDebt           = "debt"
)

// trackedEntities are the entity types GetRecentActivity reports.
var trackedEntities = []string{EntityUnassignedCash, EntityActualBalance, EntityDebt}

// SourceDistribution marks an unassigned cash change caused by funding envelopes.
const SourceDistribution = "distribution"

// UnassignedCashChange describes a change to the budget's unassigned cash.
type UnassignedCashChange struct {
	Previous decimal.Decimal
	New      decimal.Decimal
	Author   string
	Source   string // "manual" (default) or SourceDistribution
}

// TrackUnassignedCashChange records an unassigned cash change.
func (s *Service) TrackUnassignedCashChange(ctx context.Context, c UnassignedCashChange) (*CommitResult, error) {
	description := fmt.Sprintf("Updated unassigned cash from %s to %s", FormatUSD(c.Previous), FormatUSD(c.New))
	if c.Source == SourceDistribution {
		description = fmt.Sprintf("Distributed %s to envelopes", FormatUSD(c.Previous.Sub(c.New)))
	}

	return s.CreateCommit(ctx, CommitOptions{
		EntityType:  EntityUnassignedCash,
		ChangeType:  model.ChangeUpdate,
		Description: description,
		BeforeData:  map[string]any{"amount": c.Previous},
		AfterData:   map[string]any{"amount": c.New},
		Author:      c.Author,
	})
}

// ActualBalanceChange describes a change to the reconciled bank balance.
type ActualBalanceChange struct {
	Previous decimal.Decimal
	New      decimal.Decimal
	IsManual bool
	Author   string
}

// TrackActualBalanceChange records an actual balance change.
func (s *Service) TrackActualBalanceChange(ctx context.Context, c ActualBalanceChange) (*CommitResult, error) {
	source := "automatic calculation"
	if c.IsManual {
		source = "manual entry"
	}
	description := fmt.Sprintf("Updated actual balance via %s from %s to %s", source, FormatUSD(c.Previous), FormatUSD(c.New))

	return s.CreateCommit(ctx, CommitOptions{
		EntityType:  EntityActualBalance,
		ChangeType:  model.ChangeUpdate,
		Description: description,
		BeforeData:  map[string]any{"balance": c.Previous, "isManual": !c.IsManual},
		AfterData:   map[string]any{"balance": c.New, "isManual": c.IsManual},
		Author:      c.Author,
	})
}

// DebtChange describes a debt being added, modified or deleted.
// Previous is required for updates and deletes, New for creates and updates.
type DebtChange struct {
	DebtID     string
	ChangeType model.ChangeType
	Previous   *model.Debt
	New        *model.Debt
	Author     string
}

// TrackDebtChange records a debt change.
func (s *Service) TrackDebtChange(ctx context.Context, c DebtChange) (*CommitResult, error) {
	if c.DebtID == "" {
		return nil, budget.NewInvalidInput("debtId", "debt id is required")
	}

	var description string
	switch c.ChangeType {
	case model.ChangeCreate:
		if c.New == nil {
			return nil, budget.NewInvalidInput("newData", "new debt data is required")
		}
		description = fmt.Sprintf("Added new debt: %s (%s)", c.New.Name, FormatUSD(c.New.CurrentBalance))
	case model.ChangeUpdate:
		if c.Previous == nil || c.New == nil {
			return nil, budget.NewInvalidInput("debt", "previous and new debt data are required")
		}
		if !c.Previous.CurrentBalance.Equal(c.New.CurrentBalance) {
			description = fmt.Sprintf("Updated %s balance from %s to %s",
				c.New.Name, FormatUSD(c.Previous.CurrentBalance), FormatUSD(c.New.CurrentBalance))
		} else {
			description = fmt.Sprintf("Updated debt: %s", c.New.Name)
		}
	case model.ChangeDelete:
		if c.Previous == nil {
			return nil, budget.NewInvalidInput("previousData", "previous debt data is required")
		}
		description = fmt.Sprintf("Deleted debt: %s", c.Previous.Name)
	default:
		return nil, budget.NewInvalidInput("changeType", fmt.Sprintf("unknown change type %q", c.ChangeType))
	}

	opts := CommitOptions{
		EntityType:  EntityDebt,
		EntityID:    c.DebtID,
		ChangeType:  c.ChangeType,
		Description: description,
		Author:      c.Author,
	}
	// A nil *model.Debt stored in an interface is not nil; leave the side unset.
	if c.Previous != nil {
		opts.BeforeData = c.Previous
	}
	if c.New != nil {
		opts.AfterData = c.New
	}
	return s.CreateCommit(ctx, opts)
}

// FormatUSD renders d as US dollars: "$1,234.50", "-$3.00".
func FormatUSD(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if d.Round(2).IsNegative() {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}
