package worker

import (
	"context"
	"log/slog"

	"github.com/shaiso/jobpool/internal/job"
	"github.com/shaiso/jobpool/internal/registry"
)

// queueAcker is the subset of queueproducer.Producer's API the worker
// needs to finish a job. Declared locally so this package does not
// import queueproducer — the registry hands back a registry.Member, and
// the worker only cares that it also knows how to Ack/Nack.
type queueAcker interface {
	Ack(ctx context.Context, j job.Job) error
	Nack(ctx context.Context, j job.Job) error
}

// ReplyDeliverer hands a finished job's result to whoever is waiting on
// it via yield (§4.E). Implemented by internal/submission.
type ReplyDeliverer interface {
	Deliver(from job.ReplyAddress, result job.Result)
}

// Worker executes one job at a time on behalf of a Worker Monitor (§4.C).
// It holds no queue-consumption state of its own — the monitor decides
// when a job arrives and spawns the goroutine that calls Execute.
type Worker struct {
	module   Module
	state    any
	methods  *MethodRegistry
	registry *registry.Registry
	replies  ReplyDeliverer
	logger   *slog.Logger
}

// Config configures a Worker.
type Config struct {
	Module   Module
	Registry *registry.Registry
	Replies  ReplyDeliverer
	Logger   *slog.Logger
}

// New constructs a Worker. Call Init before Execute.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		module:   cfg.Module,
		registry: cfg.Registry,
		replies:  cfg.Replies,
		logger:   logger,
	}
}

// Init runs the module's startup hook once. A non-nil error here is a
// worker startup failure, handled by the monitor's init_retry_secs path
// (§4.D), not retried inside Worker itself.
func (w *Worker) Init(ctx context.Context, args any) error {
	state, methods, err := w.module.Init(ctx, args)
	if err != nil {
		return err
	}
	if methods == nil {
		methods = NewMethodRegistry()
	}
	w.state = state
	w.methods = methods
	return nil
}

// Execute runs one job to completion and reports the outcome on done
// exactly once: nil for a clean job_done, or the job itself if the task
// body panicked. The caller (the monitor) runs this in its own
// goroutine — that goroutine *is* "the worker's per-job goroutine" from
// §4.C, and a panic recovered here is the crash signal the monitor
// reacts to, not a swallowed error.
func (w *Worker) Execute(ctx context.Context, j job.Job, done chan<- *job.Job) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("task panicked, worker treated as crashed",
				"pool", j.Pool, "job_id", j.ID, "panic", r)
			done <- &j
		}
	}()

	value, err := w.dispatch(ctx, j)
	result := j.WithResult(value, err)

	w.finish(ctx, result)
	done <- nil
}

func (w *Worker) dispatch(ctx context.Context, j job.Job) (any, error) {
	method, err := w.methods.Lookup(j.Task.Method)
	if err != nil {
		return nil, err
	}
	return method(ctx, w.state, j.Task.Args)
}

// finish acks the job against the nearest local queue producer for its
// pool and, if it carries a reply address, delivers the result to the
// caller waiting on yield (§4.C, §4.E).
func (w *Worker) finish(ctx context.Context, j job.Job) {
	if member, ok := w.registry.Closest(j.Pool, registry.RoleQueues); ok {
		if acker, ok := member.(queueAcker); ok {
			if err := acker.Ack(ctx, j); err != nil {
				w.logger.Warn("ack failed", "pool", j.Pool, "job_id", j.ID, "error", err)
			}
		}
	}

	if j.From != nil && w.replies != nil && j.Result != nil {
		w.replies.Deliver(*j.From, *j.Result)
	}
}
