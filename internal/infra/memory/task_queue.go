// Package memory holds process-local implementations of the queue and store
// interfaces, used for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tasks-pizza/internal/domain"
)

var (
	_ domain.TaskQueue    = (*TaskQueue)(nil)
	_ domain.TaskConsumer = (*TaskQueue)(nil)
)

// TaskQueue keeps queues and tasks in memory. Task names stay reserved while
// the task is pending or leased and for the retention window after it
// completes.
type TaskQueue struct {
	mu        sync.Mutex
	queues    map[string]*domain.Queue
	pending   map[string][]*domain.Task // queue path -> FIFO
	live      map[string]struct{}       // names of pending or leased tasks
	reserved  map[string]time.Time      // name -> reserved until
	retention time.Duration
	now       func() time.Time
}

// NewTaskQueue creates an empty in-memory queue service.
func NewTaskQueue(retention time.Duration) *TaskQueue {
	return &TaskQueue{
		queues:    make(map[string]*domain.Queue),
		pending:   make(map[string][]*domain.Task),
		live:      make(map[string]struct{}),
		reserved:  make(map[string]time.Time),
		retention: retention,
		now:       time.Now,
	}
}

// WithClock replaces the clock used for create times and retention.
func (q *TaskQueue) WithClock(now func() time.Time) *TaskQueue {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
	return q
}

func (q *TaskQueue) GetQueue(ctx context.Context, queuePath string) (*domain.Queue, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	queue, ok := q.queues[queuePath]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrQueueNotFound, queuePath)
	}
	cp := *queue
	return &cp, nil
}

func (q *TaskQueue) CreateQueue(ctx context.Context, parent string, queue *domain.Queue) (*domain.Queue, error) {
	if err := domain.CheckQueueName(parent, queue.Name); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.queues[queue.Name]; ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrQueueAlreadyExists, queue.Name)
	}
	created := *queue
	created.CreateTime = q.now()
	q.queues[queue.Name] = &created

	cp := created
	return &cp, nil
}

func (q *TaskQueue) CreateTask(ctx context.Context, parent string, task *domain.Task) (*domain.Task, error) {
	if err := domain.CheckTaskName(parent, task.Name); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.queues[parent]; !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrQueueNotFound, parent)
	}
	if _, ok := q.live[task.Name]; ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTaskAlreadyExists, task.Name)
	}
	if until, ok := q.reserved[task.Name]; ok && q.now().Before(until) {
		return nil, fmt.Errorf("%w: %s", domain.ErrTaskAlreadyExists, task.Name)
	}

	created := *task
	created.CreateTime = q.now()
	created.DispatchCount = 0
	q.pending[parent] = append(q.pending[parent], &created)
	q.live[task.Name] = struct{}{}
	delete(q.reserved, task.Name)

	cp := created
	return &cp, nil
}

// Tasks returns a snapshot of the pending tasks of a queue in FIFO order.
func (q *TaskQueue) Tasks(queuePath string) []domain.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	tasks := make([]domain.Task, 0, len(q.pending[queuePath]))
	for _, t := range q.pending[queuePath] {
		tasks = append(tasks, *t)
	}
	return tasks
}

func (q *TaskQueue) LeaseTask(ctx context.Context, queuePath string) (domain.TaskLease, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := q.pending[queuePath]
	if len(pending) == 0 {
		return nil, domain.ErrNoTask
	}
	task := pending[0]
	q.pending[queuePath] = pending[1:]
	task.DispatchCount++

	cp := *task
	return &taskLease{queue: q, task: &cp}, nil
}

type taskLease struct {
	queue *TaskQueue
	task  *domain.Task
}

func (l *taskLease) Task() *domain.Task {
	return l.task
}

func (l *taskLease) Complete(ctx context.Context) error {
	q := l.queue
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.live, l.task.Name)
	q.reserved[l.task.Name] = q.now().Add(q.retention)
	return nil
}

func (l *taskLease) Release(ctx context.Context) error {
	q := l.queue
	q.mu.Lock()
	defer q.mu.Unlock()

	queuePath := l.task.QueuePath()
	cp := *l.task
	q.pending[queuePath] = append([]*domain.Task{&cp}, q.pending[queuePath]...)
	return nil
}
