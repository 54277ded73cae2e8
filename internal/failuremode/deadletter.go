package failuremode

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/jobpool/internal/job"
	"github.com/shaiso/jobpool/internal/repo"
)

// acker is the subset of a queue producer's API DeadLetter needs: a
// Nack. The queue producer's Nack rejects with redeliver=true, so the
// broker requeues the job rather than routing it to the pool's DLQ.
type acker interface {
	Nack(ctx context.Context, j job.Job) error
}

// DeadLetter is the example FailureMode this repo ships (§4.F): it
// nacks the job through the pool's queue producer, which requeues it
// (redeliver=true), and writes an audit row keyed by job id so operators
// can inspect what failed. The nack does not move the job to the pool's
// DLQ queue; a requeued job that crashes its worker again is redelivered
// again.
//
// It is idempotent: the audit write is an INSERT ... ON CONFLICT DO
// NOTHING, so a duplicate invocation for the same job — expected under
// at-least-once delivery — never double-records or errors.
type DeadLetter struct {
	queue  acker
	audit  *repo.DeadLetterRepo
	logger *slog.Logger
}

// NewDeadLetter constructs a DeadLetter failure mode bound to queue for
// nacking and audit for the audit trail.
func NewDeadLetter(queue acker, audit *repo.DeadLetterRepo, logger *slog.Logger) *DeadLetter {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeadLetter{queue: queue, audit: audit, logger: logger}
}

// HandleFailure implements FailureMode.
func (d *DeadLetter) HandleFailure(ctx context.Context, pool string, j job.Job, args any) error {
	if err := d.queue.Nack(ctx, j); err != nil {
		d.logger.Error("dead-letter nack failed", "pool", pool, "job_id", j.ID, "error", err)
		return fmt.Errorf("nack job %s: %w", j.ID, err)
	}

	if d.audit == nil {
		return nil
	}

	payload, err := job.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job %s for audit: %w", j.ID, err)
	}

	rec := repo.DeadLetterRecord{
		JobID:     j.ID,
		Pool:      pool,
		Payload:   payload,
		Reason:    "worker_died",
		CreatedAt: time.Now(),
	}
	if err := d.audit.Record(ctx, rec); err != nil {
		d.logger.Error("dead-letter audit write failed", "pool", pool, "job_id", j.ID, "error", err)
		return err
	}

	d.logger.Warn("job failure recorded", "pool", pool, "job_id", j.ID)
	return nil
}
