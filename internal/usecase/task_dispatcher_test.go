package usecase

import (
	"context"
	"fmt"
	"net/url"
	"testing"

	"tasks-pizza/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatcher(t *testing.T, q domain.TaskQueue, concurrency int) *TaskDispatcher {
	t.Helper()
	d, err := NewTaskDispatcher(q, testRef, testCallback, concurrency, discardLogger())
	require.NoError(t, err)
	return d
}

func provisioned(t *testing.T) *countingQueue {
	t.Helper()
	q := newCountingQueue()
	require.NoError(t, NewQueueProvisioner(q, testRef, discardLogger()).EnsureQueue(context.Background(), testRef.Queue))
	return q
}

func TestNewTaskDispatcher_RejectsRelativeCallback(t *testing.T) {
	_, err := NewTaskDispatcher(newCountingQueue(), testRef, "/target", 1, discardLogger())
	assert.Error(t, err)
}

func TestBuildTask(t *testing.T) {
	d := newDispatcher(t, newCountingQueue(), 1)

	tests := []struct {
		identifier string
		taskID     string
	}{
		{"Brooklyn", "Brooklyn"},
		{"Café de Paris", "Cafe-de-Paris"},
		{"", "-"},
		{"São Paulo & Co.", "Sao-Paulo-Co-"},
	}
	for _, tt := range tests {
		t.Run(tt.identifier, func(t *testing.T) {
			task := d.BuildTask(tt.identifier)
			assert.Equal(t, testRef.TaskPath(tt.taskID), task.Name)
			assert.Equal(t, "GET", task.HTTPRequest.Method)

			u, err := url.Parse(task.HTTPRequest.URL)
			require.NoError(t, err)
			assert.Equal(t, "us-central1-serverless-com-demo.cloudfunctions.net", u.Host)
			assert.Equal(t, "/tasks-pizza/target", u.Path)
			assert.Equal(t, tt.identifier, u.Query().Get("id"))
			assert.True(t, u.Query().Has("id"))
		})
	}
}

func TestBuildTask_KeepsCallbackQuery(t *testing.T) {
	d, err := NewTaskDispatcher(newCountingQueue(), testRef, "http://localhost:8080/target?lang=en", 1, discardLogger())
	require.NoError(t, err)

	u, err := url.Parse(d.BuildTask("Café de Paris").HTTPRequest.URL)
	require.NoError(t, err)
	assert.Equal(t, "en", u.Query().Get("lang"))
	assert.Equal(t, "Café de Paris", u.Query().Get("id"))
	assert.Contains(t, u.RawQuery, "id=Caf%C3%A9+de+Paris")
}

func TestDispatch_EndToEnd(t *testing.T) {
	q := provisioned(t)
	d := newDispatcher(t, q, 1)

	report := d.Dispatch(context.Background(), []string{"Brooklyn", "Café de Paris", ""})
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 3, report.Succeeded)
	assert.Zero(t, report.Failed())
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, testRef.QueuePath(), report.Queue)

	tasks := q.Tasks(testRef.QueuePath())
	require.Len(t, tasks, 3)
	wantIDs := []string{"Brooklyn", "Cafe-de-Paris", "-"}
	wantQuery := []string{"Brooklyn", "Café de Paris", ""}
	for i, task := range tasks {
		assert.Equal(t, wantIDs[i], task.ID())
		u, err := url.Parse(task.HTTPRequest.URL)
		require.NoError(t, err)
		assert.Equal(t, wantQuery[i], u.Query().Get("id"))
	}
}

func TestDispatch_FailureIsolation(t *testing.T) {
	identifiers := []string{"Brooklyn", "Queens", "Bronx", "Harlem", "Soho"}

	for k := range identifiers {
		t.Run(fmt.Sprintf("fail at %d", k), func(t *testing.T) {
			q := provisioned(t)
			q.failTaskName[identifiers[k]] = errUnavailable
			d := newDispatcher(t, q, 1)

			report := d.Dispatch(context.Background(), identifiers)
			assert.Equal(t, len(identifiers), report.Attempted)
			assert.Equal(t, len(identifiers)-1, report.Succeeded)
			require.Len(t, report.Failures, 1)
			assert.Equal(t, identifiers[k], report.Failures[0].Identifier)
			assert.Equal(t, testRef.TaskPath(identifiers[k]), report.Failures[0].TaskName)
			assert.ErrorIs(t, report.Failures[0].Err, errUnavailable)

			// Every identifier was submitted once, in input order.
			want := make([]string, len(identifiers))
			for i, id := range identifiers {
				want[i] = testRef.TaskPath(id)
			}
			assert.Equal(t, want, q.taskCalls)
			assert.Len(t, q.Tasks(testRef.QueuePath()), len(identifiers)-1)
		})
	}
}

func TestDispatch_DuplicatesWithinRun(t *testing.T) {
	q := provisioned(t)
	d := newDispatcher(t, q, 1)

	report := d.Dispatch(context.Background(), []string{"Paris", "Paris!", "Paris"})
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 2, report.Succeeded)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "Paris", report.Failures[0].Identifier)
	assert.ErrorIs(t, report.Failures[0].Err, domain.ErrTaskAlreadyExists)
}

func TestDispatch_Concurrent(t *testing.T) {
	q := provisioned(t)
	q.failTaskName["c"] = errUnavailable
	d := newDispatcher(t, q, 4)

	identifiers := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	report := d.Dispatch(context.Background(), identifiers)
	assert.Equal(t, len(identifiers), report.Attempted)
	assert.Equal(t, len(identifiers)-1, report.Succeeded)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "c", report.Failures[0].Identifier)

	assert.Len(t, q.taskCalls, len(identifiers))
	assert.ElementsMatch(t, []string{
		testRef.TaskPath("a"), testRef.TaskPath("b"), testRef.TaskPath("c"), testRef.TaskPath("d"),
		testRef.TaskPath("e"), testRef.TaskPath("f"), testRef.TaskPath("g"), testRef.TaskPath("h"),
	}, q.taskCalls)
}
