package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/jobpool/internal/job"
	"github.com/shaiso/jobpool/internal/submission"
)

// SubmitJobRequest is the body of POST /api/v1/pools/{pool}/jobs.
type SubmitJobRequest struct {
	Task  job.Task `json:"task"`
	Owner string   `json:"owner,omitempty"`
	Reply bool     `json:"reply"`
}

// JobResponse is the DTO returned for a submitted or filtered job.
type JobResponse struct {
	ID         uuid.UUID           `json:"id"`
	Pool       string              `json:"pool"`
	Task       job.Task            `json:"task"`
	From       *job.ReplyAddress   `json:"from,omitempty"`
	Result     *ResultResponse     `json:"result,omitempty"`
	By         string              `json:"by,omitempty"`
	EnqueuedAt time.Time           `json:"enqueued_at"`
}

// ResultResponse is the DTO for a job's outcome.
type ResultResponse struct {
	Value any    `json:"value,omitempty"`
	Err   string `json:"err,omitempty"`
}

// JobFromDomain converts job.Job to its wire representation.
func JobFromDomain(j job.Job) JobResponse {
	resp := JobResponse{
		ID:         j.ID,
		Pool:       j.Pool,
		Task:       j.Task,
		From:       j.From,
		By:         j.By,
		EnqueuedAt: j.EnqueuedAt,
	}
	if j.Result != nil {
		resp.Result = &ResultResponse{Value: j.Result.Value, Err: j.Result.Err}
	}
	return resp
}

// YieldRequest is the body of POST /api/v1/pools/{pool}/yield.
type YieldRequest struct {
	Owner     string `json:"owner"`
	RequestID string `json:"request_id"`
	TimeoutMS int64  `json:"timeout_ms,omitempty"`
}

// YieldResponse reports whether a result arrived before the timeout.
type YieldResponse struct {
	Ready  bool            `json:"ready"`
	Result *ResultResponse `json:"result,omitempty"`
}

// StatusResponse is the DTO for submission.Status.
type StatusResponse struct {
	QueueDepth     int  `json:"queue_depth"`
	QueueSuspended bool `json:"queue_suspended"`
	Outstanding    int  `json:"outstanding"`
	WorkersTotal   int  `json:"workers_total"`
	WorkersBusy    int  `json:"workers_busy"`
}

// StatusFromDomain converts submission.Status to its wire representation.
func StatusFromDomain(s submission.Status) StatusResponse {
	return StatusResponse{
		QueueDepth:     s.Queue.Depth,
		QueueSuspended: s.Queue.Suspended,
		Outstanding:    s.Queue.Outstanding,
		WorkersTotal:   s.Workers.Total,
		WorkersBusy:    s.Workers.Busy,
	}
}
