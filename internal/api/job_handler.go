package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shaiso/jobpool/internal/job"
)

// SubmitJob enqueues a job on pool.
// POST /api/v1/pools/{pool}/jobs
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	pool := r.PathValue("pool")

	var req SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	var j job.Job
	var err error
	if req.Reply {
		if req.Owner == "" {
			BadRequest(w, "owner is required when reply is true")
			return
		}
		j, err = h.client.Async(r.Context(), pool, req.Task, req.Owner)
	} else {
		j, err = h.client.AsyncNoReply(r.Context(), pool, req.Task)
	}
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Created(w, JobFromDomain(j))
}

// YieldJob waits for a previously submitted job's result.
// POST /api/v1/pools/{pool}/yield
func (h *Handler) YieldJob(w http.ResponseWriter, r *http.Request) {
	pool := r.PathValue("pool")

	var req YieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Owner == "" || req.RequestID == "" {
		BadRequest(w, "owner and request_id are required")
		return
	}

	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	j := job.Job{Pool: pool, From: &job.ReplyAddress{Owner: req.Owner, RequestID: req.RequestID}}

	result, err := h.client.Yield(r.Context(), req.Owner, j, timeout)
	if HandleSubmissionError(w, h.logger, err) {
		return
	}

	resp := YieldResponse{Ready: result != nil}
	if result != nil {
		resp.Result = &ResultResponse{Value: result.Value, Err: result.Err}
	}
	Success(w, resp)
}

// FilterJobs returns up to limit jobs on pool matching the optional
// method query parameter.
// GET /api/v1/pools/{pool}/jobs?method=...&limit=...
func (h *Handler) FilterJobs(w http.ResponseWriter, r *http.Request) {
	pool := r.PathValue("pool")
	method := r.URL.Query().Get("method")

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	predicate := func(j job.Job) bool {
		return method == "" || j.Task.Method == method
	}

	jobs, err := h.client.Filter(r.Context(), pool, limit, predicate)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	result := make([]JobResponse, len(jobs))
	for i, j := range jobs {
		result[i] = JobFromDomain(j)
	}
	Success(w, result)
}

// PoolStatus reports a pool's queue depth, suspension, and worker counts.
// GET /api/v1/pools/{pool}/status
func (h *Handler) PoolStatus(w http.ResponseWriter, r *http.Request) {
	pool := r.PathValue("pool")

	status, err := h.client.StatusOf(r.Context(), pool)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Success(w, StatusFromDomain(status))
}

// SuspendPool suspends every queue producer on pool.
// POST /api/v1/pools/{pool}/suspend
func (h *Handler) SuspendPool(w http.ResponseWriter, r *http.Request) {
	h.client.Suspend(r.PathValue("pool"))
	w.WriteHeader(http.StatusNoContent)
}

// ResumePool resumes every queue producer on pool.
// POST /api/v1/pools/{pool}/resume
func (h *Handler) ResumePool(w http.ResponseWriter, r *http.Request) {
	h.client.Resume(r.PathValue("pool"))
	w.WriteHeader(http.StatusNoContent)
}
