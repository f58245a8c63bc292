package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"tasks-pizza/internal/domain"
)

// errRetriable marks failures worth another attempt: transport errors, 429 and 5xx.
var errRetriable = errors.New("retriable")

type httpTaskExecutor struct {
	client *http.Client
}

// NewHttpTaskExecutor runs task requests with client.
func NewHttpTaskExecutor(client *http.Client) domain.TaskExecutor {
	return &httpTaskExecutor{client: client}
}

// Execute performs the task request, retrying retriable failures up to
// policy.MaxAttempts with an exponential backoff starting at policy.MinBackoff.
func (e *httpTaskExecutor) Execute(ctx context.Context, task *domain.Task, policy domain.RetryConfig) (string, int, error) {
	maxAttempts := max(policy.MaxAttempts, 1)
	backoff := policy.MinBackoff

	var (
		output string
		err    error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		output, err = e.doExecute(ctx, task)
		if err == nil {
			return output, attempt, nil
		}
		if !errors.Is(err, errRetriable) {
			return output, attempt, fmt.Errorf("non-retriable error on attempt %d: %w", attempt, err)
		}
		if attempt == maxAttempts {
			break
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return output, attempt, ctx.Err()
		}
		backoff *= 2
		if policy.MaxBackoff > 0 && backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}

	return output, maxAttempts, fmt.Errorf("task failed after %d attempts: %w", maxAttempts, err)
}

// doExecute performs a single HTTP request.
func (e *httpTaskExecutor) doExecute(ctx context.Context, task *domain.Task) (string, error) {
	req, err := http.NewRequestWithContext(ctx, task.HTTPRequest.Method, task.HTTPRequest.URL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("failed to create http request: %w", err)
	}
	req.Header.Set("X-CloudTasks-TaskName", task.ID())
	req.Header.Set("X-CloudTasks-QueueName", task.QueuePath())
	req.Header.Set("X-CloudTasks-TaskRetryCount", fmt.Sprint(task.DispatchCount-1))

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: http request failed: %w", errRetriable, err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return string(bodyBytes), fmt.Errorf("%w: http request returned %s", errRetriable, resp.Status)
	}
	if resp.StatusCode >= 400 {
		return string(bodyBytes), fmt.Errorf("http request returned client error: %s", resp.Status)
	}

	return string(bodyBytes), nil
}
