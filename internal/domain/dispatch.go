package domain

import (
	"context"
	"errors"
	"time"
)

// ErrRunInProgress is returned when runs are exclusive and another one holds
// the queue.
var ErrRunInProgress = errors.New("dispatch run already in progress")

// RunConcurrencyPolicy defines whether dispatch runs on the same queue may overlap.
type RunConcurrencyPolicy string

const (
	RunConcurrencyAllow  RunConcurrencyPolicy = "Allow"
	RunConcurrencyForbid RunConcurrencyPolicy = "Forbid"
)

// IdentifierSource produces the identifiers of one dispatch run, in order.
// Duplicates and blank entries are returned as they appear.
type IdentifierSource interface {
	Fetch(ctx context.Context) ([]string, error)
}

// DispatchRunner performs a complete dispatch run.
type DispatchRunner interface {
	Run(ctx context.Context) (*DispatchReport, error)
}

// DispatchFailure records one identifier whose task could not be submitted.
type DispatchFailure struct {
	Identifier string `json:"identifier"`
	TaskName   string `json:"task_name"`
	Message    string `json:"error"`
	Err        error  `json:"-"`
}

// DispatchReport is the outcome log of one dispatch run. It is never persisted.
type DispatchReport struct {
	RunID     string            `json:"run_id"`
	Queue     string            `json:"queue"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time"`
	Attempted int               `json:"attempted"`
	Succeeded int               `json:"succeeded"`
	Failures  []DispatchFailure `json:"-"`
}

// Failed returns the number of identifiers whose submission failed.
func (r *DispatchReport) Failed() int {
	return len(r.Failures)
}

// RecordSuccess counts a submitted task.
func (r *DispatchReport) RecordSuccess() {
	r.Attempted++
	r.Succeeded++
}

// RecordFailure counts a failed submission and keeps it for the caller.
func (r *DispatchReport) RecordFailure(identifier, taskName string, err error) {
	r.Attempted++
	r.Failures = append(r.Failures, DispatchFailure{
		Identifier: identifier,
		TaskName:   taskName,
		Message:    err.Error(),
		Err:        err,
	})
}
