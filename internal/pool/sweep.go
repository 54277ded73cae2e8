package pool

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
)

// sweepLockKey is the Postgres advisory lock every process in a
// multi-process deployment contends for; whichever process holds it
// runs the housekeeping sweep, per §4.G.
const sweepLockKey int64 = 737373

// sweepSchedule is a robfig/cron/v3 spec: the sweep runs once a minute
// rather than on a hand-rolled ticker.
const sweepSchedule = "@every 1m"

// staleThreshold is how many consecutive sweeps a producer may show
// outstanding demand alongside a non-empty queue before the sweep
// concludes its connection has drifted and restarts it. A producer
// legitimately in this state briefly (mid-poll, mid-reconnect) clears
// it within one or two ticks; only a genuinely stuck producer survives
// staleThreshold ticks in a row.
const staleThreshold = 3

// Supervisor runs the cluster-wide housekeeping sweep of §4.G across a
// fixed set of pools: leader election via a Postgres advisory lock,
// scheduling via robfig/cron/v3.
type Supervisor struct {
	db      *pgxpool.Pool
	pools   []*Pool
	logger  *slog.Logger
	cron    *cron.Cron
	hasLock bool
}

// NewSupervisor constructs a Supervisor watching pools.
func NewSupervisor(db *pgxpool.Pool, pools []*Pool, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{db: db, pools: pools, logger: logger}
}

// Start schedules the sweep. It does not block.
func (s *Supervisor) Start(ctx context.Context) error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(sweepSchedule, func() { s.tick(ctx) })
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron schedule and releases the advisory lock if held.
func (s *Supervisor) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	if s.hasLock {
		_, _ = s.db.Exec(context.Background(), "select pg_advisory_unlock($1)", sweepLockKey)
		s.hasLock = false
	}
}

func (s *Supervisor) tick(ctx context.Context) {
	if !s.hasLock {
		var ok bool
		if err := s.db.QueryRow(ctx, "select pg_try_advisory_lock($1)", sweepLockKey).Scan(&ok); err != nil {
			s.logger.Error("sweep lock query failed", "error", err)
			return
		}
		s.hasLock = ok
	}
	if !s.hasLock {
		return
	}

	for _, p := range s.pools {
		p.sweepDrift(ctx)
	}
}

// sweepDrift restarts any queue producer whose outstanding demand has
// sat alongside a non-empty queue for staleThreshold consecutive
// sweeps — the mirror image of §4.D's worker-crash case: here the
// producer itself has stopped making progress without its monitor
// noticing, since the monitor only ever sees "no delivery yet," not
// "the producer died."
func (p *Pool) sweepDrift(ctx context.Context) {
	for _, qm := range p.producers {
		status := qm.Producer.Status(ctx)
		if status.Outstanding > 0 && status.Depth > 0 {
			qm.staleTicks++
		} else {
			qm.staleTicks = 0
		}

		if qm.staleTicks < staleThreshold {
			continue
		}

		p.logger.Warn("queue producer drifted, restarting connection",
			"producer", qm.ID(), "outstanding", status.Outstanding, "depth", status.Depth)
		qm.staleTicks = 0
		qm.Producer.Stop()
		if err := qm.Producer.Start(ctx); err != nil {
			p.logger.Error("producer restart failed", "producer", qm.ID(), "error", err)
		}
	}
}
