package app

import "time"

// Operation tracks one CLI command. Its ID tags every log line the command
// writes, so one run can be picked out of budgetsync.log.
type Operation struct {
	ID         string
	Name       string
	Parameters string
	Started    time.Time
	Status     string // "success" or "error"
}

// NewOperation creates an operation that has not failed yet.
func NewOperation(name, parameters string, started time.Time) *Operation {
	return &Operation{
		ID:         name + "-" + started.UTC().Format("20060102T150405Z"),
		Name:       name,
		Parameters: parameters,
		Started:    started,
		Status:     "success",
	}
}

// Fail marks the operation as failed.
func (op *Operation) Fail() {
	op.Status = "error"
}

// Failed reports whether Fail was called.
func (op *Operation) Failed() bool {
	return op.Status == "error"
}
