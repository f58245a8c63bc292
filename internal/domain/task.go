package domain

import (
	"context"
	"errors"
	"net/http"
	"path"
	"time"
)

var (
	// ErrTaskAlreadyExists is returned when a task name is still reserved by a
	// task created within the retention window.
	ErrTaskAlreadyExists = errors.New("task already exists")
	// ErrNoTask is returned by a TaskConsumer when nothing is pending.
	ErrNoTask = errors.New("no task available")
)

// DefaultTaskRetention is how long a task name stays reserved after the task
// completes or is deleted.
const DefaultTaskRetention = 24 * time.Hour

// HTTPRequest is the request a queue performs when it runs a task.
type HTTPRequest struct {
	Method string `json:"http_method"`
	URL    string `json:"url"`
}

// Task is one unit of work held by a queue.
type Task struct {
	// Name is the fully-qualified task path. It doubles as the dedupe key.
	Name          string      `json:"name"`
	HTTPRequest   HTTPRequest `json:"http_request"`
	CreateTime    time.Time   `json:"create_time"`
	DispatchCount int         `json:"dispatch_count"`
}

// NewHTTPTask builds a GET task named name targeting url.
func NewHTTPTask(name, url string) *Task {
	return &Task{
		Name: name,
		HTTPRequest: HTTPRequest{
			Method: http.MethodGet,
			URL:    url,
		},
	}
}

// ID returns the last segment of the task path.
func (t *Task) ID() string {
	return path.Base(t.Name)
}

// QueuePath returns the path of the queue holding the task.
func (t *Task) QueuePath() string {
	return path.Dir(path.Dir(t.Name))
}

// TaskLease is a task handed to exactly one consumer until it is completed or
// released.
type TaskLease interface {
	Task() *Task
	// Complete removes the task from the queue and keeps its name reserved for
	// the retention window.
	Complete(ctx context.Context) error
	// Release gives the task back to the queue untouched.
	Release(ctx context.Context) error
}

// TaskConsumer hands out pending tasks in submission order.
type TaskConsumer interface {
	// LeaseTask returns ErrNoTask when the queue has nothing pending.
	LeaseTask(ctx context.Context, queuePath string) (TaskLease, error)
}
