// internal/infra/etcd/etcd_task_queue.go
package etcd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"tasks-pizza/internal/domain"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	QueueDir   = KeyRoot + "queues/"
	PendingDir = KeyRoot + "pending/"
	// NameDir holds one key per reserved task name, attached to a lease that
	// lasts the retention window.
	NameDir = KeyRoot + "names/"

	leaseScanLimit = 64
)

var (
	_ domain.TaskQueue    = (*EtcdTaskQueue)(nil)
	_ domain.TaskConsumer = (*EtcdTaskQueue)(nil)
)

// EtcdTaskQueue stores queues and tasks in etcd. Task creation is a single
// transaction that checks the queue exists and the name is free, then writes
// the pending task together with its name reservation.
type EtcdTaskQueue struct {
	client    *clientv3.Client
	locker    domain.Locker
	retention time.Duration
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewEtcdTaskQueue creates a queue service backed by etcd. locker guards task
// leases between workers.
func NewEtcdTaskQueue(client *clientv3.Client, locker domain.Locker, retention time.Duration, logger *slog.Logger) *EtcdTaskQueue {
	return &EtcdTaskQueue{
		client:    client,
		locker:    locker,
		retention: retention,
		logger:    logger.With("component", "etcd-task-queue"),
		tracer:    otel.Tracer("tasks-pizza-etcd-queue"),
	}
}

func queueKey(queuePath string) string { return path.Join(QueueDir, queuePath) }
func pendingKey(taskName string) string { return path.Join(PendingDir, taskName) }
func nameKey(taskName string) string    { return path.Join(NameDir, taskName) }

func pendingPrefix(queuePath string) string {
	return path.Join(PendingDir, queuePath, "tasks") + "/"
}

// GetQueue reads the queue stored at queuePath.
func (q *EtcdTaskQueue) GetQueue(ctx context.Context, queuePath string) (*domain.Queue, error) {
	ctx, span := q.tracer.Start(ctx, "repo.etcd.GetQueue")
	defer span.End()
	span.SetAttributes(attribute.String("queue.name", queuePath))

	resp, err := q.client.Get(ctx, queueKey(queuePath))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get queue from etcd")
		return nil, fmt.Errorf("failed to get queue %s from etcd: %w", queuePath, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrQueueNotFound, queuePath)
	}

	var queue domain.Queue
	if err := json.Unmarshal(resp.Kvs[0].Value, &queue); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue %s from JSON: %w", queuePath, err)
	}
	return &queue, nil
}

// CreateQueue writes queue if its name is free.
func (q *EtcdTaskQueue) CreateQueue(ctx context.Context, parent string, queue *domain.Queue) (*domain.Queue, error) {
	ctx, span := q.tracer.Start(ctx, "repo.etcd.CreateQueue")
	defer span.End()
	span.SetAttributes(attribute.String("queue.name", queue.Name))

	if err := domain.CheckQueueName(parent, queue.Name); err != nil {
		return nil, err
	}

	created := *queue
	created.CreateTime = time.Now().UTC()
	data, err := json.Marshal(&created)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal queue to JSON: %w", err)
	}

	key := queueKey(queue.Name)
	resp, err := q.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, string(data))).
		Commit()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put queue to etcd")
		return nil, fmt.Errorf("failed to create queue %s in etcd: %w", queue.Name, err)
	}
	if !resp.Succeeded {
		return nil, fmt.Errorf("%w: %s", domain.ErrQueueAlreadyExists, queue.Name)
	}

	q.logger.Info("created queue", "queue", queue.Name)
	return &created, nil
}

// CreateTask submits task to the queue at parent.
func (q *EtcdTaskQueue) CreateTask(ctx context.Context, parent string, task *domain.Task) (*domain.Task, error) {
	ctx, span := q.tracer.Start(ctx, "repo.etcd.CreateTask")
	defer span.End()
	span.SetAttributes(attribute.String("task.name", task.Name))

	if err := domain.CheckTaskName(parent, task.Name); err != nil {
		return nil, err
	}

	created := *task
	created.CreateTime = time.Now().UTC()
	created.DispatchCount = 0
	data, err := json.Marshal(&created)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task to JSON: %w", err)
	}

	lease, err := q.client.Grant(ctx, q.retentionSeconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to grant retention lease")
		return nil, fmt.Errorf("failed to grant retention lease for task %s: %w", task.Name, err)
	}

	qKey, nKey, pKey := queueKey(parent), nameKey(task.Name), pendingKey(task.Name)
	resp, err := q.client.Txn(ctx).
		If(
			clientv3.Compare(clientv3.CreateRevision(qKey), ">", 0),
			clientv3.Compare(clientv3.CreateRevision(nKey), "=", 0),
			clientv3.Compare(clientv3.CreateRevision(pKey), "=", 0),
		).
		Then(
			clientv3.OpPut(nKey, task.Name, clientv3.WithLease(lease.ID)),
			clientv3.OpPut(pKey, string(data)),
		).
		Else(clientv3.OpGet(qKey, clientv3.WithCountOnly())).
		Commit()
	if err != nil {
		q.revoke(lease.ID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to commit task transaction")
		return nil, fmt.Errorf("failed to create task %s in etcd: %w", task.Name, err)
	}
	if !resp.Succeeded {
		q.revoke(lease.ID)
		if resp.Responses[0].GetResponseRange().Count == 0 {
			return nil, fmt.Errorf("%w: %s", domain.ErrQueueNotFound, parent)
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrTaskAlreadyExists, task.Name)
	}

	return &created, nil
}

// LeaseTask locks the oldest pending task no other worker holds. Pending tasks
// are scanned in pages of leaseScanLimit, oldest first.
func (q *EtcdTaskQueue) LeaseTask(ctx context.Context, queuePath string) (domain.TaskLease, error) {
	ctx, span := q.tracer.Start(ctx, "repo.etcd.LeaseTask")
	defer span.End()
	span.SetAttributes(attribute.String("queue.name", queuePath))

	var minRev int64
	for {
		resp, err := q.client.Get(ctx, pendingPrefix(queuePath),
			clientv3.WithPrefix(),
			clientv3.WithSort(clientv3.SortByCreateRevision, clientv3.SortAscend),
			clientv3.WithMinCreateRev(minRev),
			clientv3.WithLimit(leaseScanLimit),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to list pending tasks")
			return nil, fmt.Errorf("failed to list pending tasks of %s: %w", queuePath, err)
		}

		for _, kv := range resp.Kvs {
			lease, err := q.tryLease(ctx, kv)
			if err != nil {
				return nil, err
			}
			if lease != nil {
				span.SetAttributes(attribute.String("task.name", lease.task.Name))
				return lease, nil
			}
		}

		if !resp.More || len(resp.Kvs) == 0 {
			return nil, domain.ErrNoTask
		}
		// Claims rewrite tasks in place, so create revisions stay a stable cursor.
		minRev = resp.Kvs[len(resp.Kvs)-1].CreateRevision + 1
	}
}

// tryLease locks and claims one pending task. It returns nil when another
// worker holds the task or it was completed meanwhile.
func (q *EtcdTaskQueue) tryLease(ctx context.Context, kv *mvccpb.KeyValue) (*etcdTaskLease, error) {
	var task domain.Task
	if err := json.Unmarshal(kv.Value, &task); err != nil {
		q.logger.Warn("failed to unmarshal task from etcd", "key", string(kv.Key), "error", err)
		return nil, nil
	}

	lock, err := q.locker.Lock(ctx, "tasks/"+task.Name)
	if errors.Is(err, domain.ErrLockNotAcquired) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	leased, err := q.claim(ctx, string(kv.Key))
	if err != nil || leased == nil {
		_ = lock.Unlock(context.WithoutCancel(ctx))
		return nil, err
	}
	return &etcdTaskLease{queue: q, task: leased, lock: lock}, nil
}

// claim re-reads a pending task under its lock and bumps its dispatch count.
// It returns nil when the task was completed in the meantime.
func (q *EtcdTaskQueue) claim(ctx context.Context, key string) (*domain.Task, error) {
	resp, err := q.client.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending task %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}

	var task domain.Task
	if err := json.Unmarshal(resp.Kvs[0].Value, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task %s from JSON: %w", key, err)
	}
	task.DispatchCount++

	data, err := json.Marshal(&task)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task to JSON: %w", err)
	}
	// Updating keeps the create revision, so FIFO order is unchanged.
	if _, err := q.client.Put(ctx, key, string(data)); err != nil {
		return nil, fmt.Errorf("failed to update task %s: %w", key, err)
	}
	return &task, nil
}

func (q *EtcdTaskQueue) retentionSeconds() int64 {
	secs := int64(q.retention / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (q *EtcdTaskQueue) revoke(id clientv3.LeaseID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := q.client.Revoke(ctx, id); err != nil {
		q.logger.Warn("failed to revoke retention lease", "lease_id", id, "error", err)
	}
}

type etcdTaskLease struct {
	queue *EtcdTaskQueue
	task  *domain.Task
	lock  domain.Lock
}

func (l *etcdTaskLease) Task() *domain.Task {
	return l.task
}

// Complete deletes the pending task and restarts the retention window of its name.
func (l *etcdTaskLease) Complete(ctx context.Context) error {
	q := l.queue
	defer func() {
		if err := l.lock.Unlock(context.WithoutCancel(ctx)); err != nil {
			q.logger.Warn("failed to release task lock", "task_name", l.task.Name, "error", err)
		}
	}()

	lease, err := q.client.Grant(ctx, q.retentionSeconds())
	if err != nil {
		return fmt.Errorf("failed to grant retention lease for task %s: %w", l.task.Name, err)
	}

	_, err = q.client.Txn(ctx).
		Then(
			clientv3.OpDelete(pendingKey(l.task.Name)),
			clientv3.OpPut(nameKey(l.task.Name), l.task.Name, clientv3.WithLease(lease.ID)),
		).
		Commit()
	if err != nil {
		q.revoke(lease.ID)
		return fmt.Errorf("failed to complete task %s: %w", l.task.Name, err)
	}
	return nil
}

// Release leaves the task pending for the next lease.
func (l *etcdTaskLease) Release(ctx context.Context) error {
	return l.lock.Unlock(ctx)
}
