// Package submission implements the Submission API (§4.E): async job
// creation, yield-for-reply, suspend/resume, status, and filter.
package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/jobpool/internal/job"
	"github.com/shaiso/jobpool/internal/monitor"
	"github.com/shaiso/jobpool/internal/queueproducer"
	"github.com/shaiso/jobpool/internal/registry"
)

// DefaultYieldTimeout is §4.E's default yield timeout.
const DefaultYieldTimeout = 5 * time.Second

// replyTableSweepInterval bounds how long an abandoned yield
// registration (the caller never came back to collect it, e.g. it gave
// up after its own timeout logic elsewhere) can sit in the reply table.
const replyTableSweepInterval = time.Minute

// replyEntryTTL is how stale a reply registration must be before the
// sweep prunes it.
const replyEntryTTL = 5 * time.Minute

// ErrOwnerMismatch is returned by Yield when the caller does not own
// the job's reply address.
var ErrOwnerMismatch = errors.New("submission: caller does not own this job's reply address")

// ErrNoReplyAddress is returned by Yield for a job submitted with
// reply=false.
var ErrNoReplyAddress = errors.New("submission: job has no reply address")

type enqueuer interface {
	Enqueue(ctx context.Context, j job.Job) error
}

type suspendResumer interface {
	Suspend()
	Resume()
}

type statuser interface {
	Status(ctx context.Context) queueproducer.Status
}

type filterer interface {
	Filter(ctx context.Context, limit int, predicate func(job.Job) bool) []job.Job
}

// Status is the record returned by Status(pool), per §4.E.
type Status struct {
	Queue   queueproducer.Status
	Workers WorkerCounts
}

// WorkerCounts reports how many worker monitors are registered for a
// pool and how many currently hold a job.
type WorkerCounts struct {
	Total int
	Busy  int
}

type replyEntry struct {
	ch           chan job.Result
	registeredAt time.Time
}

// Client is the Submission API surface a caller (the admin CLI, an
// embedding service, or another pool's worker) talks to.
type Client struct {
	registry *registry.Registry
	logger   *slog.Logger

	mu      sync.Mutex
	replies map[string]replyEntry

	stopSweep chan struct{}
}

// New constructs a Client bound to reg.
func New(reg *registry.Registry, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		registry:  reg,
		logger:    logger,
		replies:   make(map[string]replyEntry),
		stopSweep: make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Close stops the client's background sweep goroutine.
func (c *Client) Close() {
	close(c.stopSweep)
}

func replyKey(owner, requestID string) string {
	return owner + "|" + requestID
}

// Async enqueues task on pool with a reply address owned by owner and
// returns the constructed Job. Use Yield with the same owner to collect
// the result.
func (c *Client) Async(ctx context.Context, pool string, task job.Task, owner string) (job.Job, error) {
	from := &job.ReplyAddress{Owner: owner, RequestID: newRequestID()}
	j := job.New(pool, task, from)
	return c.enqueue(ctx, pool, j)
}

// AsyncNoReply enqueues task on pool without a reply address. The
// caller has no way to collect a result; it returns as soon as the job
// is durably enqueued.
func (c *Client) AsyncNoReply(ctx context.Context, pool string, task job.Task) (job.Job, error) {
	j := job.New(pool, task, nil)
	return c.enqueue(ctx, pool, j)
}

func (c *Client) enqueue(ctx context.Context, pool string, j job.Job) (job.Job, error) {
	member, ok := c.registry.Closest(pool, registry.RoleQueues)
	if !ok {
		return job.Job{}, fmt.Errorf("submission: no queue producer available for pool %s", pool)
	}
	q, ok := member.(enqueuer)
	if !ok {
		return job.Job{}, fmt.Errorf("submission: queue member for pool %s cannot enqueue", pool)
	}

	if j.From != nil {
		c.register(j.From.Owner, j.From.RequestID)
	}
	if err := q.Enqueue(ctx, j); err != nil {
		if j.From != nil {
			c.unregister(j.From.Owner, j.From.RequestID)
		}
		return job.Job{}, fmt.Errorf("enqueue job %s: %w", j.ID, err)
	}
	return j, nil
}

func (c *Client) register(owner, requestID string) chan job.Result {
	ch := make(chan job.Result, 1)
	c.mu.Lock()
	c.replies[replyKey(owner, requestID)] = replyEntry{ch: ch, registeredAt: time.Now()}
	c.mu.Unlock()
	return ch
}

func (c *Client) unregister(owner, requestID string) {
	c.mu.Lock()
	delete(c.replies, replyKey(owner, requestID))
	c.mu.Unlock()
}

// Deliver implements worker.ReplyDeliverer. It is called by the worker
// that finished the job, on whatever goroutine the worker is running
// on — the send is non-blocking so a timed-out, already-abandoned yield
// never stalls the worker.
func (c *Client) Deliver(from job.ReplyAddress, result job.Result) {
	key := replyKey(from.Owner, from.RequestID)

	c.mu.Lock()
	entry, ok := c.replies[key]
	c.mu.Unlock()
	if !ok {
		return
	}

	select {
	case entry.ch <- result:
	default:
	}
}

// Yield waits up to timeout for job's result. owner must equal
// job.From.Owner, matching "owner identity may only read the result."
// A zero timeout uses DefaultYieldTimeout.
func (c *Client) Yield(ctx context.Context, owner string, j job.Job, timeout time.Duration) (*job.Result, error) {
	if j.From == nil {
		return nil, ErrNoReplyAddress
	}
	if j.From.Owner != owner {
		return nil, ErrOwnerMismatch
	}
	if timeout <= 0 {
		timeout = DefaultYieldTimeout
	}

	key := replyKey(j.From.Owner, j.From.RequestID)
	c.mu.Lock()
	entry, ok := c.replies[key]
	c.mu.Unlock()
	if !ok {
		entry = replyEntry{ch: c.register(j.From.Owner, j.From.RequestID), registeredAt: time.Now()}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// On timeout or cancellation the registration is deliberately left
	// in place: a genuinely-late result still has somewhere to land
	// (§5's non-blocking Deliver send), and the periodic sweep reclaims
	// it after replyEntryTTL rather than this call racing a delivery
	// that is already in flight.
	select {
	case result := <-entry.ch:
		c.unregister(j.From.Owner, j.From.RequestID)
		return &result, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Suspend broadcasts suspension to every queue producer in pool.
func (c *Client) Suspend(pool string) {
	for _, member := range c.registry.Members(pool, registry.RoleQueues, registry.ScopeCluster) {
		if s, ok := member.(suspendResumer); ok {
			s.Suspend()
		}
	}
}

// Resume broadcasts resumption to every queue producer in pool.
func (c *Client) Resume(pool string) {
	for _, member := range c.registry.Members(pool, registry.RoleQueues, registry.ScopeCluster) {
		if s, ok := member.(suspendResumer); ok {
			s.Resume()
		}
	}
}

// StatusOf returns pool's queue status plus worker monitor counts.
func (c *Client) StatusOf(ctx context.Context, pool string) (Status, error) {
	var st Status

	if member, ok := c.registry.Closest(pool, registry.RoleQueues); ok {
		if s, ok := member.(statuser); ok {
			st.Queue = s.Status(ctx)
		}
	}

	monitors := c.registry.Members(pool, registry.RoleWorkerMonitors, registry.ScopeCluster)
	st.Workers.Total = len(monitors)
	for _, m := range monitors {
		if mm, ok := m.(*monitor.Monitor); ok && mm.Busy() {
			st.Workers.Busy++
		}
	}

	return st, nil
}

// Filter delegates to any one queue producer in pool.
func (c *Client) Filter(ctx context.Context, pool string, limit int, predicate func(job.Job) bool) ([]job.Job, error) {
	member, ok := c.registry.Closest(pool, registry.RoleQueues)
	if !ok {
		return nil, fmt.Errorf("submission: no queue producer available for pool %s", pool)
	}
	f, ok := member.(filterer)
	if !ok {
		return nil, fmt.Errorf("submission: queue member for pool %s cannot filter", pool)
	}
	return f.Filter(ctx, limit, predicate), nil
}

func (c *Client) sweepLoop() {
	ticker := time.NewTicker(replyTableSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopSweep:
			return
		case <-ticker.C:
			c.sweepOnce()
		}
	}
}

func (c *Client) sweepOnce() {
	cutoff := time.Now().Add(-replyEntryTTL)

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.replies {
		if entry.registeredAt.Before(cutoff) {
			delete(c.replies, key)
		}
	}
}
