package domain

import "context"

// TaskExecutor performs the HTTP request of a task, retrying as policy allows.
type TaskExecutor interface {
	Execute(ctx context.Context, task *Task, policy RetryConfig) (output string, attempts int, err error)
}
