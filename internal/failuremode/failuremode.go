// Package failuremode implements §4.F: the pluggable reaction to a
// worker dying while it holds a job.
package failuremode

import (
	"context"

	"github.com/shaiso/jobpool/internal/job"
)

// FailureMode handles a job that was in flight when its worker died. It
// runs in a detached goroutine spawned by the worker monitor's
// termination path, never awaited — the monitor does not block on it,
// and must not assume it runs before the monitor's own shutdown
// completes.
//
// Implementations must be idempotent: at-least-once delivery plus a
// detached invocation means HandleFailure can run more than once for
// the same job (e.g. a broker redeliver racing a local nack).
type FailureMode interface {
	HandleFailure(ctx context.Context, pool string, j job.Job, args any) error
}
