// Package worker executes one job at a time on behalf of a worker
// monitor.
//
// A Worker wraps a user-supplied Module. Init runs once at startup and
// returns the state threaded into every subsequent task plus a
// MethodRegistry mapping method names to handlers. Execute then runs a
// single job: it dispatches to the method named by the job's task,
// acks the job against the pool's nearest queue producer, and, if the
// job carries a reply address, delivers the result to the caller
// waiting on yield.
//
// Execute recovers a panicking task body itself, but treats the
// recovery as a worker crash rather than a handled error: it reports
// the held job back to its caller instead of an ordinary nil error,
// so the caller — the worker monitor — can invoke the configured
// failure mode exactly as if the worker process had died outright.
package worker
