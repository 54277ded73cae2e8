// Package monitor implements the Worker Monitor (§4.D): the process
// that owns exactly one worker, subscribes it to every local queue
// producer with demand, and turns "the worker died while holding job X"
// into a call to the configured failure mode.
package monitor

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/shaiso/jobpool/internal/failuremode"
	"github.com/shaiso/jobpool/internal/job"
	"github.com/shaiso/jobpool/internal/queueproducer"
	"github.com/shaiso/jobpool/internal/registry"
	"github.com/shaiso/jobpool/internal/worker"
)

const defaultInitRetry = 5 * time.Second

// localNode is this process's node identity, stamped into Job.By.
var localNode = func() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "localhost"
}()

// requestOner is the subset of queueproducer.Producer's API the monitor
// needs to ask for one job. Declared locally so this package talks to
// the registry only in terms of registry.Member plus this interface,
// never a concrete queueproducer import for the member value itself.
type requestOner interface {
	RequestOne(sub queueproducer.Subscription)
}

type labeledJob struct {
	producer requestOner
	job      job.Job
}

// Config configures a Monitor.
type Config struct {
	ID            string // registry member id; defaults to "monitor-<pool>"
	Pool          string
	Registry      *registry.Registry
	Worker        *worker.Worker
	FailureMode   failuremode.FailureMode
	FailureArgs   any
	InitRetry     time.Duration // default 5s, §4.D's init_retry_secs
	Logger        *slog.Logger
}

// Monitor is the Worker Monitor of §4.D.
type Monitor struct {
	id          string
	pool        string
	registry    *registry.Registry
	worker      *worker.Worker
	failureMode failuremode.FailureMode
	failureArgs any
	initRetry   time.Duration
	logger      *slog.Logger

	inbound    chan labeledJob
	workerDone chan *job.Job

	busy atomic.Bool
}

// New constructs a Monitor. Call Start to bring it up.
func New(cfg Config) *Monitor {
	id := cfg.ID
	if id == "" {
		id = "monitor-" + cfg.Pool
	}
	initRetry := cfg.InitRetry
	if initRetry <= 0 {
		initRetry = defaultInitRetry
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		id:          id,
		pool:        cfg.Pool,
		registry:    cfg.Registry,
		worker:      cfg.Worker,
		failureMode: cfg.FailureMode,
		failureArgs: cfg.FailureArgs,
		initRetry:   initRetry,
		logger:      logger,
		inbound:     make(chan labeledJob, 16),
		workerDone:  make(chan *job.Job, 1),
	}
}

// ID implements registry.Member.
func (m *Monitor) ID() string { return m.id }

// IsLocal implements registry.Member.
func (m *Monitor) IsLocal() bool { return true }

// Busy reports whether the monitor currently holds a job, for §4.E's
// status() workers.busy count.
func (m *Monitor) Busy() bool { return m.busy.Load() }

// Start brings up the worker and, once it initializes, joins the pool's
// worker_monitors group and starts routing jobs to it. Start itself
// never blocks on worker init failing — per §4.D, an init failure
// schedules a retry after initRetry and "yields the monitor without
// error."
func (m *Monitor) Start(ctx context.Context, initArgs any) {
	go m.bootstrap(ctx, initArgs)
}

func (m *Monitor) bootstrap(ctx context.Context, initArgs any) {
	if err := m.worker.Init(ctx, initArgs); err != nil {
		m.logger.Error("worker init failed, scheduling retry",
			"pool", m.pool, "retry_in", m.initRetry, "error", err)
		select {
		case <-time.After(m.initRetry):
			m.bootstrap(ctx, initArgs)
		case <-ctx.Done():
		}
		return
	}

	m.registry.Join(m.pool, registry.RoleWorkerMonitors, m)
	m.run(ctx)
}

// run is the monitor's event loop: subscribe to every local queue
// producer, then forward jobs to the worker one at a time.
func (m *Monitor) run(ctx context.Context) {
	var current *job.Job
	var currentProducer requestOner

	defer func() {
		m.registry.Leave(m.pool, registry.RoleWorkerMonitors, m.id)
		if current != nil {
			j := *current
			go m.failureMode.HandleFailure(context.Background(), m.pool, j, m.failureArgs)
		}
	}()

	m.subscribeToQueues(ctx)

	for {
		var inbound chan labeledJob
		var workerDone chan *job.Job
		if current == nil {
			inbound = m.inbound
		} else {
			workerDone = m.workerDone
		}

		select {
		case <-ctx.Done():
			return

		case lj := <-inbound:
			j := lj.job
			j.By = localNode
			current = &j
			currentProducer = lj.producer
			m.busy.Store(true)
			go m.worker.Execute(ctx, j, m.workerDone)

		case held := <-workerDone:
			if held != nil {
				// The worker crashed holding this job: stop the monitor
				// with reason worker_died. current stays set so the
				// deferred termination callback invokes the failure mode.
				m.logger.Error("worker died holding job", "pool", m.pool, "job_id", held.ID)
				return
			}

			// Clean job_done: replenish demand from whichever producer
			// delivered the job that just finished.
			finishedFrom := currentProducer
			current = nil
			currentProducer = nil
			m.busy.Store(false)
			if finishedFrom != nil {
				m.requestFrom(ctx, finishedFrom)
			}
		}
	}
}

// subscribeToQueues asks every local queue producer in the pool for one
// job, per §4.D's max_demand=1, min_demand=0 subscription.
func (m *Monitor) subscribeToQueues(ctx context.Context) {
	members := m.registry.Members(m.pool, registry.RoleQueues, registry.ScopeLocal)
	for _, member := range members {
		if p, ok := member.(requestOner); ok {
			m.requestFrom(ctx, p)
		}
	}
}

// requestFrom asks producer for exactly one job and forwards it onto
// m.inbound, tagging it with producer so run can re-request once the
// worker finishes.
func (m *Monitor) requestFrom(ctx context.Context, producer requestOner) {
	ch := make(chan job.Job, 1)
	producer.RequestOne(queueproducer.Subscription{ID: m.id, Jobs: ch})

	go func() {
		select {
		case j := <-ch:
			select {
			case m.inbound <- labeledJob{producer: producer, job: j}:
			case <-ctx.Done():
			}
		case <-ctx.Done():
		}
	}()
}
