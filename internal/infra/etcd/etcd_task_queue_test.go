package etcd_test

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"tasks-pizza/internal/domain"
	"tasks-pizza/internal/infra/etcd"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueue(t *testing.T) (*etcd.EtcdTaskQueue, domain.QueueRef) {
	t.Helper()
	c := requireEtcd(t)
	q := etcd.NewEtcdTaskQueue(c, etcd.NewEtcdLocker(c, 0), time.Hour, slog.Default())
	// A fresh project per test keeps keys apart.
	ref := domain.QueueRef{Project: uuid.NewString(), Location: "us-central1", Queue: "my-queue"}
	return q, ref
}

func TestEtcdTaskQueue_Queues(t *testing.T) {
	q, ref := newQueue(t)
	ctx := context.Background()

	_, err := q.GetQueue(ctx, ref.QueuePath())
	require.ErrorIs(t, err, domain.ErrQueueNotFound)

	created, err := q.CreateQueue(ctx, ref.LocationPath(), &domain.Queue{Name: ref.QueuePath()})
	require.NoError(t, err)
	assert.False(t, created.CreateTime.IsZero())

	got, err := q.GetQueue(ctx, ref.QueuePath())
	require.NoError(t, err)
	assert.Equal(t, ref.QueuePath(), got.Name)

	_, err = q.CreateQueue(ctx, ref.LocationPath(), &domain.Queue{Name: ref.QueuePath()})
	require.ErrorIs(t, err, domain.ErrQueueAlreadyExists)
}

func TestEtcdTaskQueue_CreateTask(t *testing.T) {
	q, ref := newQueue(t)
	ctx := context.Background()
	task := domain.NewHTTPTask(ref.TaskPath("Brooklyn"), "http://localhost/target?id=Brooklyn")

	_, err := q.CreateTask(ctx, ref.QueuePath(), task)
	require.ErrorIs(t, err, domain.ErrQueueNotFound)

	_, err = q.CreateQueue(ctx, ref.LocationPath(), &domain.Queue{Name: ref.QueuePath()})
	require.NoError(t, err)

	created, err := q.CreateTask(ctx, ref.QueuePath(), task)
	require.NoError(t, err)
	assert.Equal(t, task.Name, created.Name)

	_, err = q.CreateTask(ctx, ref.QueuePath(), task)
	require.ErrorIs(t, err, domain.ErrTaskAlreadyExists)

	lease, err := q.LeaseTask(ctx, ref.QueuePath())
	require.NoError(t, err)
	assert.Equal(t, task.Name, lease.Task().Name)
	assert.Equal(t, 1, lease.Task().DispatchCount)
	require.NoError(t, lease.Complete(ctx))

	_, err = q.LeaseTask(ctx, ref.QueuePath())
	require.ErrorIs(t, err, domain.ErrNoTask)

	_, err = q.CreateTask(ctx, ref.QueuePath(), task)
	require.ErrorIs(t, err, domain.ErrTaskAlreadyExists, "completed task keeps its name for the retention window")
}

func TestEtcdTaskQueue_LeaseOrder(t *testing.T) {
	q, ref := newQueue(t)
	ctx := context.Background()

	_, err := q.CreateQueue(ctx, ref.LocationPath(), &domain.Queue{Name: ref.QueuePath()})
	require.NoError(t, err)
	for _, id := range []string{"Brooklyn", "Cafe-de-Paris", "-"} {
		_, err := q.CreateTask(ctx, ref.QueuePath(), domain.NewHTTPTask(ref.TaskPath(id), "http://localhost/target"))
		require.NoError(t, err)
	}

	first, err := q.LeaseTask(ctx, ref.QueuePath())
	require.NoError(t, err)
	assert.Equal(t, "Brooklyn", first.Task().ID())

	second, err := q.LeaseTask(ctx, ref.QueuePath())
	require.NoError(t, err)
	assert.Equal(t, "Cafe-de-Paris", second.Task().ID(), "a leased task is skipped")

	require.NoError(t, first.Release(ctx))
	again, err := q.LeaseTask(ctx, ref.QueuePath())
	require.NoError(t, err)
	assert.Equal(t, "Brooklyn", again.Task().ID())
	assert.Equal(t, 2, again.Task().DispatchCount)

	require.NoError(t, again.Complete(ctx))
	require.NoError(t, second.Complete(ctx))
}

// heldLocker reports the tasks in held as locked by another worker.
type heldLocker struct {
	domain.Locker
	held map[string]bool
}

func (l heldLocker) Lock(ctx context.Context, name string) (domain.Lock, error) {
	if l.held[name] {
		return nil, domain.ErrLockNotAcquired
	}
	return l.Locker.Lock(ctx, name)
}

func TestEtcdTaskQueue_LeaseSkipsLockedPage(t *testing.T) {
	c := requireEtcd(t)
	ctx := context.Background()
	ref := domain.QueueRef{Project: uuid.NewString(), Location: "us-central1", Queue: "my-queue"}

	// More held tasks than one scan page, then one free task.
	const total = 150
	held := make(map[string]bool)
	q := etcd.NewEtcdTaskQueue(c, heldLocker{Locker: etcd.NewEtcdLocker(c, 0), held: held}, time.Hour, slog.Default())
	_, err := q.CreateQueue(ctx, ref.LocationPath(), &domain.Queue{Name: ref.QueuePath()})
	require.NoError(t, err)

	for i := 0; i < total; i++ {
		name := ref.TaskPath(fmt.Sprintf("city-%03d", i))
		_, err := q.CreateTask(ctx, ref.QueuePath(), domain.NewHTTPTask(name, "http://localhost/target"))
		require.NoError(t, err)
		if i < total-1 {
			held["tasks/"+name] = true
		}
	}

	lease, err := q.LeaseTask(ctx, ref.QueuePath())
	require.NoError(t, err)
	assert.Equal(t, ref.TaskPath(fmt.Sprintf("city-%03d", total-1)), lease.Task().Name)
	require.NoError(t, lease.Complete(ctx))

	_, err = q.LeaseTask(ctx, ref.QueuePath())
	require.ErrorIs(t, err, domain.ErrNoTask)
}

func TestEtcdLocationRepository(t *testing.T) {
	c := requireEtcd(t)
	repo := etcd.NewEtcdLocationRepository(c, slog.Default())
	ctx := context.Background()

	id := "Café de Paris " + uuid.NewString()
	_, err := repo.Get(ctx, id)
	require.ErrorIs(t, err, domain.ErrLocationNotFound)

	loc := &domain.Location{ID: id, TaskName: "Cafe-de-Paris", StoredAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, repo.Save(ctx, loc))

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, loc.TaskName, got.TaskName)
	assert.True(t, loc.StoredAt.Equal(got.StoredAt))

	names, err := repo.ListNames(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, id)
}

func TestEtcdExecutionRepository(t *testing.T) {
	c := requireEtcd(t)
	repo := etcd.NewEtcdExecutionRepository(c, slog.Default())
	ctx := context.Background()
	taskName := "projects/" + uuid.NewString() + "/locations/l/queues/q/tasks/Brooklyn"

	for _, id := range []string{"first", "second", "third"} {
		require.NoError(t, repo.Save(ctx, &domain.ExecutionRecord{
			ID:        id,
			TaskName:  taskName,
			StartTime: time.Now(),
			Status:    domain.ExecutionStatusRunning,
		}))
	}
	// Rewriting a record keeps its place in the history.
	require.NoError(t, repo.Save(ctx, &domain.ExecutionRecord{
		ID:        "first",
		TaskName:  taskName,
		StartTime: time.Now(),
		Status:    domain.ExecutionStatusSuccess,
	}))

	page, err := repo.ListByTaskName(ctx, taskName, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "third", page[0].ID)
	assert.Equal(t, "second", page[1].ID)

	page, err = repo.ListByTaskName(ctx, taskName, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "first", page[0].ID)
	assert.Equal(t, domain.ExecutionStatusSuccess, page[0].Status)
}
