package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var envelopeTypes = map[string]bool{
	"":             true, // treated as "standard"
	"standard":     true,
	"savings":      true,
	"supplemental": true,
	"sinking_fund": true,
}

var transactionTypes = map[string]bool{
	"income":   true,
	"expense":  true,
	"transfer": true,
}

var debtStatuses = map[string]bool{
	"":         true,
	"active":   true,
	"paid_off": true,
}

// Validate checks the structural schema of an envelope record.
func (e *Envelope) Validate() error {
	var errs []error
	if strings.TrimSpace(e.ID) == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if strings.TrimSpace(e.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if !envelopeTypes[e.EnvelopeType] {
		errs = append(errs, fmt.Errorf("unknown envelope type %q", e.EnvelopeType))
	}
	if e.MonthlyAmount.IsNegative() {
		errs = append(errs, errors.New("monthly amount must not be negative"))
	}
	if e.TargetAmount.IsNegative() {
		errs = append(errs, errors.New("target amount must not be negative"))
	}
	return errors.Join(errs...)
}

// Validate checks the structural schema of a transaction record.
func (t *Transaction) Validate() error {
	var errs []error
	if strings.TrimSpace(t.ID) == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if _, err := time.Parse(time.DateOnly, t.Date); err != nil {
		errs = append(errs, fmt.Errorf("invalid date %q", t.Date))
	}
	if !transactionTypes[t.Type] {
		errs = append(errs, fmt.Errorf("unknown transaction type %q", t.Type))
	}
	return errors.Join(errs...)
}

// Validate checks the structural schema of a bill record.
func (b *Bill) Validate() error {
	var errs []error
	if strings.TrimSpace(b.ID) == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if strings.TrimSpace(b.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if b.Amount.IsNegative() {
		errs = append(errs, errors.New("amount must not be negative"))
	}
	return errors.Join(errs...)
}

// Validate checks the structural schema of a debt record.
func (d *Debt) Validate() error {
	var errs []error
	if strings.TrimSpace(d.ID) == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if strings.TrimSpace(d.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if !debtStatuses[d.Status] {
		errs = append(errs, fmt.Errorf("unknown debt status %q", d.Status))
	}
	if d.InterestRate.IsNegative() {
		errs = append(errs, errors.New("interest rate must not be negative"))
	}
	return errors.Join(errs...)
}
