package memory

import (
	"context"
	"testing"
	"time"

	"tasks-pizza/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ref = domain.QueueRef{Project: "p", Location: "l", Queue: "q"}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newQueue(t *testing.T) (*TaskQueue, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	q := NewTaskQueue(24 * time.Hour).WithClock(clock.now)
	_, err := q.CreateQueue(context.Background(), ref.LocationPath(), &domain.Queue{Name: ref.QueuePath()})
	require.NoError(t, err)
	return q, clock
}

func TestCreateQueue(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()

	_, err := q.GetQueue(ctx, ref.QueuePath())
	require.NoError(t, err)

	_, err = q.CreateQueue(ctx, ref.LocationPath(), &domain.Queue{Name: ref.QueuePath()})
	require.ErrorIs(t, err, domain.ErrQueueAlreadyExists)

	_, err = q.GetQueue(ctx, ref.WithQueue("other").QueuePath())
	require.ErrorIs(t, err, domain.ErrQueueNotFound)

	_, err = q.CreateQueue(ctx, "projects/x/locations/y", &domain.Queue{Name: ref.WithQueue("other").QueuePath()})
	require.Error(t, err)
}

func TestCreateTask_RequiresQueue(t *testing.T) {
	q := NewTaskQueue(time.Hour)
	other := ref.WithQueue("missing")

	_, err := q.CreateTask(context.Background(), other.QueuePath(), domain.NewHTTPTask(other.TaskPath("a"), "http://x"))
	require.ErrorIs(t, err, domain.ErrQueueNotFound)
}

func TestCreateTask_Retention(t *testing.T) {
	q, clock := newQueue(t)
	ctx := context.Background()
	name := ref.TaskPath("Brooklyn")

	created, err := q.CreateTask(ctx, ref.QueuePath(), domain.NewHTTPTask(name, "http://x?id=Brooklyn"))
	require.NoError(t, err)
	assert.Equal(t, clock.t, created.CreateTime)

	_, err = q.CreateTask(ctx, ref.QueuePath(), domain.NewHTTPTask(name, "http://x?id=Brooklyn"))
	require.ErrorIs(t, err, domain.ErrTaskAlreadyExists, "pending task keeps its name")

	lease, err := q.LeaseTask(ctx, ref.QueuePath())
	require.NoError(t, err)
	require.NoError(t, lease.Complete(ctx))

	clock.advance(23 * time.Hour)
	_, err = q.CreateTask(ctx, ref.QueuePath(), domain.NewHTTPTask(name, "http://x?id=Brooklyn"))
	require.ErrorIs(t, err, domain.ErrTaskAlreadyExists, "name reserved within retention")

	clock.advance(2 * time.Hour)
	_, err = q.CreateTask(ctx, ref.QueuePath(), domain.NewHTTPTask(name, "http://x?id=Brooklyn"))
	require.NoError(t, err, "name free after retention")
}

func TestLeaseTask_FIFOAndRelease(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := q.CreateTask(ctx, ref.QueuePath(), domain.NewHTTPTask(ref.TaskPath(id), "http://x"))
		require.NoError(t, err)
	}

	first, err := q.LeaseTask(ctx, ref.QueuePath())
	require.NoError(t, err)
	assert.Equal(t, "a", first.Task().ID())
	assert.Equal(t, 1, first.Task().DispatchCount)

	require.NoError(t, first.Release(ctx))

	again, err := q.LeaseTask(ctx, ref.QueuePath())
	require.NoError(t, err)
	assert.Equal(t, "a", again.Task().ID())
	assert.Equal(t, 2, again.Task().DispatchCount)
	require.NoError(t, again.Complete(ctx))

	assert.Len(t, q.Tasks(ref.QueuePath()), 2)

	for range 2 {
		l, err := q.LeaseTask(ctx, ref.QueuePath())
		require.NoError(t, err)
		require.NoError(t, l.Complete(ctx))
	}
	_, err = q.LeaseTask(ctx, ref.QueuePath())
	require.ErrorIs(t, err, domain.ErrNoTask)
}
