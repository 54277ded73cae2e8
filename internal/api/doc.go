// Package api serves the Submission API (§4.E) over HTTP, so the admin
// CLI (cmd/jobpool-cli) and other out-of-process callers can submit,
// yield, suspend, resume, and inspect a pool without linking against
// internal/submission directly.
//
// Structure:
//   - handler.go    — Handler with its one dependency, submission.Client
//   - routes.go     — route registration
//   - middleware.go — logging, panic recovery
//   - response.go   — uniform JSON responses and error mapping
//   - dto.go        — request/response DTOs
//   - job_handler.go — handlers for /api/v1/pools/{pool}/jobs and friends
package api
