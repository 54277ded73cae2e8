// Package pool wires one named job pool together: its queue producers,
// its worker monitors (each owning one worker), the failure mode they
// fall back to, and the metrics they report. It is the concrete home
// for the per-pool configuration options described in §6 — num_queues,
// num_workers, prefetch, init_retry_secs, failure_mode — that the
// distilled spec leaves as "a Go struct constructed by the embedding
// process."
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/jobpool/internal/failuremode"
	"github.com/shaiso/jobpool/internal/job"
	"github.com/shaiso/jobpool/internal/metrics"
	"github.com/shaiso/jobpool/internal/monitor"
	"github.com/shaiso/jobpool/internal/queueproducer"
	"github.com/shaiso/jobpool/internal/registry"
	"github.com/shaiso/jobpool/internal/worker"
)

// reportInterval is how often a running Pool refreshes its gauge
// metrics (queue depth, worker counts) from the registry and its
// producers.
const reportInterval = 15 * time.Second

// Config configures one pool. Name must be unique within Registry.
type Config struct {
	Name     string
	Registry *registry.Registry

	// Backends holds one queue-backend implementation per queue
	// producer the pool should run; its length is num_queues.
	Backends []queueproducer.Backend
	Prefetch int // default 10, forwarded to every producer

	// NumWorkers is the pool's num_workers: one worker monitor, each
	// owning its own Module instance, is started per worker.
	NumWorkers int
	Module     func() worker.Module // factory so each worker gets its own instance
	InitArgs   any
	InitRetry  time.Duration

	FailureMode failuremode.FailureMode
	FailureArgs any

	Replies worker.ReplyDeliverer
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Pool is a running job pool: its queue producers and worker monitors,
// joined into Registry under Config.Name.
type Pool struct {
	name     string
	registry *registry.Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger

	producers []*queueMember
	monitors  []*monitor.Monitor
	initArgs  any

	cancel   context.CancelFunc
	reportWg sync.WaitGroup
}

// New validates cfg and constructs a Pool. Call Start to bring it up.
//
// NumWorkers may be 0: the pool then runs its queue producers with no
// worker monitors at all, which is what a process that only watches
// queue depth — the housekeeping sweep's own host process, for
// instance — wants instead of competing for jobs against the pool's
// real workers.
func New(cfg Config) (*Pool, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("pool: Name is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("pool: Registry is required")
	}
	if len(cfg.Backends) == 0 {
		return nil, fmt.Errorf("pool %s: at least one backend is required", cfg.Name)
	}
	if cfg.NumWorkers < 0 {
		return nil, fmt.Errorf("pool %s: NumWorkers must not be negative", cfg.Name)
	}
	if cfg.NumWorkers > 0 {
		if cfg.Module == nil {
			return nil, fmt.Errorf("pool %s: Module factory is required", cfg.Name)
		}
		if cfg.FailureMode == nil {
			return nil, fmt.Errorf("pool %s: FailureMode is required", cfg.Name)
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("pool", cfg.Name)

	failureMode := cfg.FailureMode
	if failureMode != nil && cfg.Metrics != nil {
		failureMode = &countingFailureMode{inner: failureMode, metrics: cfg.Metrics, pool: cfg.Name}
	}

	p := &Pool{
		name:     cfg.Name,
		registry: cfg.Registry,
		metrics:  cfg.Metrics,
		logger:   logger,
		initArgs: cfg.InitArgs,
	}

	for i, backend := range cfg.Backends {
		prod := queueproducer.New(queueproducer.Config{
			ID:       fmt.Sprintf("queue-%s-%d", cfg.Name, i),
			Pool:     cfg.Name,
			Backend:  backend,
			Prefetch: cfg.Prefetch,
			Logger:   logger,
		})
		p.producers = append(p.producers, &queueMember{Producer: prod, metrics: cfg.Metrics, pool: cfg.Name})
	}

	for i := 0; i < cfg.NumWorkers; i++ {
		w := worker.New(worker.Config{
			Module:   cfg.Module(),
			Registry: cfg.Registry,
			Replies:  cfg.Replies,
			Logger:   logger,
		})
		p.monitors = append(p.monitors, monitor.New(monitor.Config{
			ID:          fmt.Sprintf("monitor-%s-%d", cfg.Name, i),
			Pool:        cfg.Name,
			Registry:    cfg.Registry,
			Worker:      w,
			FailureMode: failureMode,
			FailureArgs: cfg.FailureArgs,
			InitRetry:   cfg.InitRetry,
			Logger:      logger,
		}))
	}

	return p, nil
}

// Start declares every producer's topology, joins them into the
// registry, and kicks off every worker monitor's bootstrap+run loop.
// Start returns once every producer's Start call has returned; worker
// init failures do not block Start, per §4.D's init_retry_secs path.
func (p *Pool) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.registry.Create(p.name)

	for _, qm := range p.producers {
		if err := qm.Producer.Start(runCtx); err != nil {
			return fmt.Errorf("start queue producer %s: %w", qm.ID(), err)
		}
		p.registry.Join(p.name, registry.RoleQueues, qm)
	}

	for _, m := range p.monitors {
		m.Start(runCtx, p.initArgs)
	}

	p.reportWg.Add(1)
	go p.reportLoop(runCtx)

	p.logger.Info("pool started", "queues", len(p.producers), "workers", len(p.monitors))
	return nil
}

// Stop tears the pool down: cancels every producer and monitor's
// context, waits for the metrics reporter to exit, and deletes the
// pool's registry groups last, per §7's "group deletion is fatal to
// the pool."
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	for _, qm := range p.producers {
		qm.Producer.Stop()
		p.registry.Leave(p.name, registry.RoleQueues, qm.ID())
	}
	p.reportWg.Wait()
	p.registry.Delete(p.name)
	p.logger.Info("pool stopped")
}

func (p *Pool) reportLoop(ctx context.Context) {
	defer p.reportWg.Done()
	if p.metrics == nil {
		return
	}

	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.report(ctx)
		}
	}
}

func (p *Pool) report(ctx context.Context) {
	var depth int
	for _, qm := range p.producers {
		depth += qm.Producer.Status(ctx).Depth
	}
	p.metrics.QueueDepth.WithLabelValues(p.name).Set(float64(depth))

	monitors := p.registry.Members(p.name, registry.RoleWorkerMonitors, registry.ScopeLocal)
	p.metrics.WorkersTotal.WithLabelValues(p.name).Set(float64(len(monitors)))

	var busy int
	for _, m := range monitors {
		if mm, ok := m.(*monitor.Monitor); ok && mm.Busy() {
			busy++
		}
	}
	p.metrics.WorkersBusy.WithLabelValues(p.name).Set(float64(busy))
}

// queueMember decorates a *queueproducer.Producer with ack/nack
// counters. It embeds Producer so it still satisfies every interface
// the rest of the codebase type-asserts a registry.Member against
// (enqueuer, suspendResumer, statuser, filterer, requestOner,
// worker's queueAcker) without redeclaring their methods.
type queueMember struct {
	*queueproducer.Producer
	metrics *metrics.Metrics
	pool    string

	// staleTicks is owned exclusively by the housekeeping sweep's own
	// goroutine (see sweep.go); nothing else reads or writes it.
	staleTicks int
}

func (q *queueMember) Ack(ctx context.Context, j job.Job) error {
	err := q.Producer.Ack(ctx, j)
	if err == nil && q.metrics != nil {
		q.metrics.JobsAckedTotal.WithLabelValues(q.pool).Inc()
	}
	return err
}

func (q *queueMember) Nack(ctx context.Context, j job.Job) error {
	err := q.Producer.Nack(ctx, j)
	if err == nil && q.metrics != nil {
		q.metrics.JobsNackedTotal.WithLabelValues(q.pool, "worker_died").Inc()
	}
	return err
}

// countingFailureMode decorates a FailureMode with the invocation
// counter, keeping the counting concern out of failuremode.DeadLetter
// itself (which has no metrics dependency of its own).
type countingFailureMode struct {
	inner   failuremode.FailureMode
	metrics *metrics.Metrics
	pool    string
}

func (c *countingFailureMode) HandleFailure(ctx context.Context, pool string, j job.Job, args any) error {
	err := c.inner.HandleFailure(ctx, pool, j, args)
	c.metrics.FailureModeInvocations.WithLabelValues(pool).Inc()
	return err
}

// RegistryAcker adapts a *registry.Registry into the Nack-only acker a
// FailureMode needs, looking the pool's current queue producer up at
// call time rather than binding to one up front — useful because a
// FailureMode is constructed before the Pool that will own the
// producers it eventually nacks against.
type RegistryAcker struct {
	Registry *registry.Registry
	Pool     string
}

func (a RegistryAcker) Nack(ctx context.Context, j job.Job) error {
	member, ok := a.Registry.Closest(a.Pool, registry.RoleQueues)
	if !ok {
		return fmt.Errorf("registry acker: no queue producer available for pool %s", a.Pool)
	}
	n, ok := member.(interface {
		Nack(ctx context.Context, j job.Job) error
	})
	if !ok {
		return fmt.Errorf("registry acker: queue member for pool %s cannot nack", a.Pool)
	}
	return n.Nack(ctx, j)
}
