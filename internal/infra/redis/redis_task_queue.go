// internal/infra/redis/redis_task_queue.go
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"tasks-pizza/internal/domain"

	"github.com/go-redis/redis"
)

const (
	queuesKey  = "tasks-pizza:queues"
	namePrefix = "tasks-pizza:names:"
)

var (
	_ domain.TaskQueue    = (*RedisTaskQueue)(nil)
	_ domain.TaskConsumer = (*RedisTaskQueue)(nil)
)

// RedisTaskQueue keeps queues in a hash and tasks in one list per queue.
// A task name is a key without expiry while the task is pending and expires
// after the retention window once the task completes.
type RedisTaskQueue struct {
	client    *redis.Client
	retention time.Duration
	logger    *slog.Logger
}

func NewRedisTaskQueue(client *redis.Client, retention time.Duration, logger *slog.Logger) *RedisTaskQueue {
	return &RedisTaskQueue{
		client:    client,
		retention: retention,
		logger:    logger.With("component", "redis-task-queue"),
	}
}

func pendingKey(queuePath string) string    { return "tasks-pizza:pending:" + queuePath }
func processingKey(queuePath string) string { return "tasks-pizza:processing:" + queuePath }

func (q *RedisTaskQueue) GetQueue(ctx context.Context, queuePath string) (*domain.Queue, error) {
	data, err := q.client.HGet(queuesKey, queuePath).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrQueueNotFound, queuePath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue %s from redis: %w", queuePath, err)
	}

	var queue domain.Queue
	if err := json.Unmarshal([]byte(data), &queue); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue %s from JSON: %w", queuePath, err)
	}
	return &queue, nil
}

func (q *RedisTaskQueue) CreateQueue(ctx context.Context, parent string, queue *domain.Queue) (*domain.Queue, error) {
	if err := domain.CheckQueueName(parent, queue.Name); err != nil {
		return nil, err
	}

	created := *queue
	created.CreateTime = time.Now().UTC()
	data, err := json.Marshal(&created)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal queue to JSON: %w", err)
	}

	ok, err := q.client.HSetNX(queuesKey, queue.Name, data).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to create queue %s in redis: %w", queue.Name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrQueueAlreadyExists, queue.Name)
	}

	q.logger.Info("created queue", "queue", queue.Name)
	return &created, nil
}

func (q *RedisTaskQueue) CreateTask(ctx context.Context, parent string, task *domain.Task) (*domain.Task, error) {
	if err := domain.CheckTaskName(parent, task.Name); err != nil {
		return nil, err
	}

	exists, err := q.client.HExists(queuesKey, parent).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check queue %s in redis: %w", parent, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrQueueNotFound, parent)
	}

	created := *task
	created.CreateTime = time.Now().UTC()
	created.DispatchCount = 0
	data, err := json.Marshal(&created)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task to JSON: %w", err)
	}

	reserved, err := q.client.SetNX(namePrefix+task.Name, "pending", 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to reserve task name %s: %w", task.Name, err)
	}
	if !reserved {
		return nil, fmt.Errorf("%w: %s", domain.ErrTaskAlreadyExists, task.Name)
	}

	if err := q.client.LPush(pendingKey(parent), data).Err(); err != nil {
		q.client.Del(namePrefix + task.Name)
		return nil, fmt.Errorf("failed to push task %s: %w", task.Name, err)
	}
	return &created, nil
}

// LeaseTask moves the oldest pending task to the processing list.
func (q *RedisTaskQueue) LeaseTask(ctx context.Context, queuePath string) (domain.TaskLease, error) {
	raw, err := q.client.RPopLPush(pendingKey(queuePath), processingKey(queuePath)).Result()
	if err == redis.Nil {
		return nil, domain.ErrNoTask
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lease task from %s: %w", queuePath, err)
	}

	var task domain.Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		q.client.LRem(processingKey(queuePath), 1, raw)
		return nil, fmt.Errorf("failed to unmarshal task from JSON: %w", err)
	}
	task.DispatchCount++

	return &redisTaskLease{queue: q, task: &task, raw: raw}, nil
}

type redisTaskLease struct {
	queue *RedisTaskQueue
	task  *domain.Task
	raw   string
}

func (l *redisTaskLease) Task() *domain.Task {
	return l.task
}

func (l *redisTaskLease) Complete(ctx context.Context) error {
	q := l.queue
	queuePath := l.task.QueuePath()
	_, err := q.client.TxPipelined(func(pipe redis.Pipeliner) error {
		pipe.LRem(processingKey(queuePath), 1, l.raw)
		pipe.Set(namePrefix+l.task.Name, "done", q.retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to complete task %s: %w", l.task.Name, err)
	}
	return nil
}

// Release puts the task back at the head of the queue.
func (l *redisTaskLease) Release(ctx context.Context) error {
	q := l.queue
	queuePath := l.task.QueuePath()
	data, err := json.Marshal(l.task)
	if err != nil {
		return fmt.Errorf("failed to marshal task to JSON: %w", err)
	}

	_, err = q.client.TxPipelined(func(pipe redis.Pipeliner) error {
		pipe.LRem(processingKey(queuePath), 1, l.raw)
		pipe.RPush(pendingKey(queuePath), data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to release task %s: %w", l.task.Name, err)
	}
	return nil
}
