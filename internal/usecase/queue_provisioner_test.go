package usecase

import (
	"context"
	"testing"

	"tasks-pizza/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureQueue_CreatesOnce(t *testing.T) {
	ctx := context.Background()
	q := newCountingQueue()
	p := NewQueueProvisioner(q, testRef, discardLogger())

	exists, err := p.Exists(ctx, "my-queue")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, p.EnsureQueue(ctx, "my-queue"))
	require.NoError(t, p.EnsureQueue(ctx, "my-queue"))
	assert.Equal(t, 1, q.createCalls)

	queue, err := q.GetQueue(ctx, testRef.QueuePath())
	require.NoError(t, err)
	assert.Equal(t, "projects/serverless-com-demo/locations/us-central1/queues/my-queue", queue.Name)
	assert.Equal(t, domain.RateLimits{}, queue.RateLimits)
	assert.Equal(t, domain.RetryConfig{}, queue.RetryConfig)
}

func TestEnsureQueue_SurfacesErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("existence check", func(t *testing.T) {
		q := newCountingQueue()
		q.getErr = errUnavailable
		p := NewQueueProvisioner(q, testRef, discardLogger())

		err := p.EnsureQueue(ctx, "my-queue")
		assert.ErrorIs(t, err, errUnavailable)
		assert.Equal(t, 1, q.getCalls)
		assert.Zero(t, q.createCalls)
	})

	t.Run("creation", func(t *testing.T) {
		q := newCountingQueue()
		q.createErr = errUnavailable
		p := NewQueueProvisioner(q, testRef, discardLogger())

		err := p.EnsureQueue(ctx, "my-queue")
		assert.ErrorIs(t, err, errUnavailable)
		assert.Equal(t, 1, q.createCalls)
	})
}
