package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"tasks-pizza/internal/domain"
	"tasks-pizza/internal/infra/memory"
)

var testRef = domain.QueueRef{Project: "serverless-com-demo", Location: "us-central1", Queue: "my-queue"}

const testCallback = "https://us-central1-serverless-com-demo.cloudfunctions.net/tasks-pizza/target"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingQueue wraps the memory queue, counts calls and fails the chosen ones.
type countingQueue struct {
	*memory.TaskQueue

	mu           sync.Mutex
	getCalls     int
	createCalls  int
	taskCalls    []string
	getErr       error
	createErr    error
	failTaskName map[string]error
}

func newCountingQueue() *countingQueue {
	return &countingQueue{
		TaskQueue:    memory.NewTaskQueue(domain.DefaultTaskRetention),
		failTaskName: make(map[string]error),
	}
}

func (q *countingQueue) GetQueue(ctx context.Context, queuePath string) (*domain.Queue, error) {
	q.mu.Lock()
	q.getCalls++
	err := q.getErr
	q.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return q.TaskQueue.GetQueue(ctx, queuePath)
}

func (q *countingQueue) CreateQueue(ctx context.Context, parent string, queue *domain.Queue) (*domain.Queue, error) {
	q.mu.Lock()
	q.createCalls++
	err := q.createErr
	q.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return q.TaskQueue.CreateQueue(ctx, parent, queue)
}

func (q *countingQueue) CreateTask(ctx context.Context, parent string, task *domain.Task) (*domain.Task, error) {
	q.mu.Lock()
	q.taskCalls = append(q.taskCalls, task.Name)
	err := q.failTaskName[task.ID()]
	q.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return q.TaskQueue.CreateTask(ctx, parent, task)
}

type staticSource struct {
	identifiers []string
	err         error
	calls       int
}

func (s *staticSource) Fetch(ctx context.Context) ([]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.identifiers, nil
}

var errUnavailable = errors.New("service unavailable")

// slowQueue delays task creation so concurrent runs overlap.
type slowQueue struct {
	*memory.TaskQueue
	delay time.Duration
}

func (q *slowQueue) CreateTask(ctx context.Context, parent string, task *domain.Task) (*domain.Task, error) {
	time.Sleep(q.delay)
	return q.TaskQueue.CreateTask(ctx, parent, task)
}
