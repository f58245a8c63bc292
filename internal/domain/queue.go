package domain

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"
)

var (
	// ErrQueueNotFound is returned when the queue addressed by a path does not exist.
	ErrQueueNotFound = errors.New("queue not found")
	// ErrQueueAlreadyExists is returned when creating a queue under a path that is taken.
	ErrQueueAlreadyExists = errors.New("queue already exists")
)

// QueueRef addresses a queue by project, location and queue name.
type QueueRef struct {
	Project  string
	Location string
	Queue    string
}

// LocationPath returns "projects/{project}/locations/{location}".
func (r QueueRef) LocationPath() string {
	return fmt.Sprintf("projects/%s/locations/%s", r.Project, r.Location)
}

// QueuePath returns the fully-qualified queue name.
func (r QueueRef) QueuePath() string {
	return r.LocationPath() + "/queues/" + r.Queue
}

// TaskPath returns the fully-qualified name of task id within the queue.
func (r QueueRef) TaskPath(id string) string {
	return r.QueuePath() + "/tasks/" + id
}

// WithQueue returns a copy of r addressing another queue in the same location.
func (r QueueRef) WithQueue(name string) QueueRef {
	r.Queue = name
	return r
}

// RateLimits bounds how fast a queue hands out tasks. Zero values leave the
// decision to the queue implementation.
type RateLimits struct {
	MaxDispatchesPerSecond  float64 `json:"max_dispatches_per_second,omitempty"`
	MaxConcurrentDispatches int     `json:"max_concurrent_dispatches,omitempty"`
}

// RetryConfig controls how a queue retries failed tasks. Zero values leave the
// decision to the queue implementation.
type RetryConfig struct {
	MaxAttempts int           `json:"max_attempts,omitempty"`
	MinBackoff  time.Duration `json:"min_backoff,omitempty"`
	MaxBackoff  time.Duration `json:"max_backoff,omitempty"`
}

// Queue is a named, durable holder of pending tasks.
type Queue struct {
	Name        string      `json:"name"`
	RateLimits  RateLimits  `json:"rate_limits"`
	RetryConfig RetryConfig `json:"retry_config"`
	CreateTime  time.Time   `json:"create_time"`
}

// TaskQueue is the queue service the dispatcher talks to. Names are the
// fully-qualified paths built by QueueRef.
type TaskQueue interface {
	// GetQueue returns ErrQueueNotFound when nothing exists at queuePath.
	GetQueue(ctx context.Context, queuePath string) (*Queue, error)
	// CreateQueue creates queue under the location path parent.
	CreateQueue(ctx context.Context, parent string, queue *Queue) (*Queue, error)
	// CreateTask submits task to the queue at parent. A task name that was used
	// within the queue's retention window yields ErrTaskAlreadyExists.
	CreateTask(ctx context.Context, parent string, task *Task) (*Task, error)
}

// CheckQueueName verifies that name is a queue path directly under the
// location path parent.
func CheckQueueName(parent, name string) error {
	if name == "" {
		return fmt.Errorf("queue name cannot be empty")
	}
	if path.Dir(path.Dir(name)) != parent || path.Base(path.Dir(name)) != "queues" {
		return fmt.Errorf("queue %s is not under %s", name, parent)
	}
	return nil
}

// CheckTaskName verifies that name is a task path directly under the queue
// path parent.
func CheckTaskName(parent, name string) error {
	if name == "" {
		return fmt.Errorf("task name cannot be empty")
	}
	if path.Dir(path.Dir(name)) != parent || path.Base(path.Dir(name)) != "tasks" {
		return fmt.Errorf("task %s is not under queue %s", name, parent)
	}
	return nil
}
