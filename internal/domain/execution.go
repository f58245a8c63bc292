// internal/domain/execution.go
package domain

import (
	"context"
	"fmt"
	"time"
)

// ExecutionStatus defines the status of a task execution.
type ExecutionStatus string

const (
	ExecutionStatusRunning ExecutionStatus = "running"
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusFailed  ExecutionStatus = "failed"
)

// ExecutionRecord represents a worker running one leased task.
type ExecutionRecord struct {
	ID        string          `json:"id"`        // Unique ID for this execution
	TaskName  string          `json:"task_name"` // Fully-qualified task name
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
	Status    ExecutionStatus `json:"status"`
	Output    string          `json:"output,omitempty"` // First KB of the response body
	Error     string          `json:"error,omitempty"`
	Attempts  int             `json:"attempts"`
	WorkerID  string          `json:"worker_id,omitempty"`
}

// Validate checks if the execution record is valid.
func (r *ExecutionRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("execution record ID cannot be empty")
	}
	if r.TaskName == "" {
		return fmt.Errorf("execution record task name cannot be empty")
	}
	if r.StartTime.IsZero() {
		return fmt.Errorf("execution record start time cannot be zero")
	}
	if r.Status == "" {
		return fmt.Errorf("execution record status cannot be empty")
	}
	return nil
}

// ExecutionRepository defines the interface for persisting and retrieving execution records.
type ExecutionRepository interface {
	// Save persists a single execution record.
	Save(ctx context.Context, record *ExecutionRecord) error
	// ListByTaskName retrieves the execution records of a task, newest first, with pagination.
	ListByTaskName(ctx context.Context, taskName string, page, pageSize int) ([]*ExecutionRecord, error)
}
