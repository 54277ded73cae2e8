package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DeadLetterRepo persists an audit trail of jobs a failure mode handled
// after their worker died holding them.
type DeadLetterRepo struct {
	pool *pgxpool.Pool
}

// NewDeadLetterRepo creates a new DeadLetterRepo.
func NewDeadLetterRepo(pool *pgxpool.Pool) *DeadLetterRepo {
	return &DeadLetterRepo{pool: pool}
}

// DeadLetterRecord is one audited dead-letter event.
type DeadLetterRecord struct {
	JobID     uuid.UUID
	Pool      string
	Payload   json.RawMessage
	Reason    string
	CreatedAt time.Time
}

// Record inserts an audit row for jobID, ignoring duplicates. The
// ON CONFLICT DO NOTHING is what makes failuremode.DeadLetter idempotent
// under at-least-once redelivery: a second invocation for the same job
// id is a silent no-op rather than a duplicate row or an error.
func (r *DeadLetterRepo) Record(ctx context.Context, rec DeadLetterRecord) error {
	query := `
		INSERT INTO dead_letters (job_id, pool, payload, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		rec.JobID,
		rec.Pool,
		rec.Payload,
		rec.Reason,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record dead letter: %w", err)
	}
	return nil
}

// ListByPool returns dead-letter audit rows for pool, most recent first.
// No admin API route or CLI command calls it.
func (r *DeadLetterRepo) ListByPool(ctx context.Context, pool string, limit int) ([]DeadLetterRecord, error) {
	query := `
		SELECT job_id, pool, payload, reason, created_at
		FROM dead_letters
		WHERE pool = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, pool, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var records []DeadLetterRecord
	for rows.Next() {
		var rec DeadLetterRecord
		if err := rows.Scan(&rec.JobID, &rec.Pool, &rec.Payload, &rec.Reason, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
