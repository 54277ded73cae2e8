package api

import (
	"net/http"
)

// RegisterRoutes registers every admin endpoint.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	mux.Handle("POST /api/v1/pools/{pool}/jobs", chain(http.HandlerFunc(h.SubmitJob)))
	mux.Handle("GET /api/v1/pools/{pool}/jobs", chain(http.HandlerFunc(h.FilterJobs)))
	mux.Handle("POST /api/v1/pools/{pool}/yield", chain(http.HandlerFunc(h.YieldJob)))
	mux.Handle("GET /api/v1/pools/{pool}/status", chain(http.HandlerFunc(h.PoolStatus)))
	mux.Handle("POST /api/v1/pools/{pool}/suspend", chain(http.HandlerFunc(h.SuspendPool)))
	mux.Handle("POST /api/v1/pools/{pool}/resume", chain(http.HandlerFunc(h.ResumePool)))
}
