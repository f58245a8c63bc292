package http

import (
	"time"

	"tasks-pizza/internal/domain"
)

// IDRequest is the query of /target and /locations/get.
type IDRequest struct {
	ID string `validate:"required"`
}

// HistoryRequest is the query of /tasks/history.
type HistoryRequest struct {
	ID       string `validate:"required"`
	Page     int    `validate:"gte=0"`
	PageSize int    `validate:"gte=0,lte=100"`
}

// FailureResponse describes one identifier whose task was not created.
type FailureResponse struct {
	Identifier string `json:"identifier"`
	TaskName   string `json:"task_name"`
	Error      string `json:"error"`
}

// StartResponse is the body of a finished /tasks/start call.
type StartResponse struct {
	RunID     string            `json:"run_id"`
	Queue     string            `json:"queue"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time"`
	Attempted int               `json:"attempted"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Failures  []FailureResponse `json:"failures"`
}

// NewStartResponse converts a dispatch report to its wire form.
func NewStartResponse(report *domain.DispatchReport) *StartResponse {
	resp := &StartResponse{
		RunID:     report.RunID,
		Queue:     report.Queue,
		StartTime: report.StartTime,
		EndTime:   report.EndTime,
		Attempted: report.Attempted,
		Succeeded: report.Succeeded,
		Failed:    report.Failed(),
		Failures:  make([]FailureResponse, 0, len(report.Failures)),
	}
	for _, f := range report.Failures {
		resp.Failures = append(resp.Failures, FailureResponse{
			Identifier: f.Identifier,
			TaskName:   f.TaskName,
			Error:      f.Message,
		})
	}
	return resp
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}
