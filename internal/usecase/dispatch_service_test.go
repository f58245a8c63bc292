package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tasks-pizza/internal/domain"
	"tasks-pizza/internal/infra/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, q domain.TaskQueue, source domain.IdentifierSource, policy domain.RunConcurrencyPolicy) *DispatchService {
	t.Helper()
	return NewDispatchService(
		NewQueueProvisioner(q, testRef, discardLogger()),
		source,
		newDispatcher(t, q, 1),
		memory.NewExecutionRepository(),
		memory.NewLocker(),
		policy,
		testRef.Queue,
		discardLogger(),
	)
}

func TestRun_EnsuresQueueThenDispatches(t *testing.T) {
	q := newCountingQueue()
	source := &staticSource{identifiers: []string{"Brooklyn", "Café de Paris", ""}}
	s := newService(t, q, source, domain.RunConcurrencyAllow)

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 1, q.createCalls)

	tasks := q.Tasks(testRef.QueuePath())
	require.Len(t, tasks, 3)
	assert.Equal(t, "Cafe-de-Paris", tasks[1].ID())
}

func TestRun_RetentionConflict(t *testing.T) {
	ctx := context.Background()
	q := newCountingQueue()
	source := &staticSource{identifiers: []string{"Brooklyn", "Queens"}}
	s := newService(t, q, source, domain.RunConcurrencyAllow)

	first, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Succeeded)

	// The worker ran Brooklyn; its name stays reserved after completion.
	lease, err := q.LeaseTask(ctx, testRef.QueuePath())
	require.NoError(t, err)
	require.Equal(t, "Brooklyn", lease.Task().ID())
	require.NoError(t, lease.Complete(ctx))

	second, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Attempted)
	assert.Zero(t, second.Succeeded)
	require.Len(t, second.Failures, 2)
	for _, f := range second.Failures {
		assert.ErrorIs(t, f.Err, domain.ErrTaskAlreadyExists)
	}
	assert.Equal(t, 1, q.createCalls)
}

func TestRun_RetentionConflictLeavesOtherIdentifiers(t *testing.T) {
	ctx := context.Background()
	q := newCountingQueue()
	source := &staticSource{identifiers: []string{"Brooklyn"}}
	s := newService(t, q, source, domain.RunConcurrencyAllow)

	first, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Succeeded)

	source.identifiers = []string{"Queens", "Bronx"}
	between, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, between.Attempted)
	assert.Equal(t, 2, between.Succeeded)
	assert.Empty(t, between.Failures)

	source.identifiers = []string{"Brooklyn"}
	again, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Succeeded)
	require.Len(t, again.Failures, 1)
	assert.Equal(t, "Brooklyn", again.Failures[0].Identifier)
	assert.ErrorIs(t, again.Failures[0].Err, domain.ErrTaskAlreadyExists)

	assert.Equal(t, []string{
		testRef.TaskPath("Brooklyn"),
		testRef.TaskPath("Queens"),
		testRef.TaskPath("Bronx"),
		testRef.TaskPath("Brooklyn"),
	}, q.taskCalls)
}

func TestRun_FatalErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("fetch", func(t *testing.T) {
		q := newCountingQueue()
		source := &staticSource{err: errUnavailable}
		s := newService(t, q, source, domain.RunConcurrencyAllow)

		report, err := s.Run(ctx)
		assert.Nil(t, report)
		assert.ErrorIs(t, err, errUnavailable)
		assert.Empty(t, q.taskCalls)
	})

	t.Run("ensure queue", func(t *testing.T) {
		q := newCountingQueue()
		q.getErr = errUnavailable
		source := &staticSource{identifiers: []string{"Brooklyn"}}
		s := newService(t, q, source, domain.RunConcurrencyAllow)

		report, err := s.Run(ctx)
		assert.Nil(t, report)
		assert.ErrorIs(t, err, errUnavailable)
		assert.Zero(t, source.calls)
		assert.Empty(t, q.taskCalls)
	})
}

func TestRun_ForbidOverlappingRuns(t *testing.T) {
	ctx := context.Background()
	q := &slowQueue{TaskQueue: memory.NewTaskQueue(domain.DefaultTaskRetention), delay: 50 * time.Millisecond}
	source := &staticSource{identifiers: []string{"a", "b", "c", "d"}}
	s := newService(t, q, source, domain.RunConcurrencyForbid)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i == 1 {
				time.Sleep(20 * time.Millisecond)
			}
			_, errs[i] = s.Run(ctx)
		}()
	}
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.True(t, errors.Is(errs[1], domain.ErrRunInProgress))

	// The lock is released once the run ends.
	report, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Attempted)
}

func TestListIdentifiers(t *testing.T) {
	source := &staticSource{identifiers: []string{"b", "a", "", "a"}}
	s := newService(t, newCountingQueue(), source, domain.RunConcurrencyAllow)

	ids, err := s.ListIdentifiers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "", "a"}, ids)
}

func TestListHistory(t *testing.T) {
	ctx := context.Background()
	execRepo := memory.NewExecutionRepository()
	q := newCountingQueue()
	s := NewDispatchService(
		NewQueueProvisioner(q, testRef, discardLogger()),
		&staticSource{},
		newDispatcher(t, q, 1),
		execRepo,
		nil,
		domain.RunConcurrencyAllow,
		testRef.Queue,
		discardLogger(),
	)

	require.NoError(t, execRepo.Save(ctx, &domain.ExecutionRecord{
		ID:        "run-1",
		TaskName:  testRef.TaskPath("Cafe-de-Paris"),
		StartTime: time.Now(),
		Status:    domain.ExecutionStatusSuccess,
	}))

	records, err := s.ListHistory(ctx, "Café de Paris", 1, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "run-1", records[0].ID)
}
