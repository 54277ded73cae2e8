package queueproducer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/jobpool/internal/job"
)

// Subscription is a downstream demand unit: a worker monitor asking the
// producer for exactly one job. Jobs is buffered (capacity 1 is enough,
// since the monitor never registers more than one outstanding
// subscription, per §4.D's max_demand=1).
type Subscription struct {
	ID   string
	Jobs chan<- job.Job
}

// Status is the synchronous snapshot returned by Status().
type Status struct {
	Depth       int
	Suspended   bool
	Outstanding int
}

type cmdRequestOne struct{ sub Subscription }
type cmdSuspend struct{}
type cmdResume struct{}
type cmdStatus struct{ reply chan Status }
type cmdFilter struct {
	predicate func(job.Job) bool
	limit     int
	reply     chan []job.Job
}
type cmdStop struct{}

// Producer implements §4.B: it owns the durable backend connection for
// one pool and only emits jobs downstream in response to demand, via the
// Idle / Subscribed / Over-delivery state machine.
//
// Producer is a single-threaded event handler serializing its own
// mailbox (the cmds channel plus the current subscription's delivery
// channel) — no field below is touched from any goroutine but run's.
type Producer struct {
	id       string
	pool     string
	backend  Backend
	prefetch int
	logger   *slog.Logger

	cmds chan any

	wg       sync.WaitGroup
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// Config configures a Producer.
type Config struct {
	ID       string // registry member id; defaults to "queue-<pool>"
	Pool     string
	Backend  Backend
	Prefetch int // default 10, per §4.B
	Logger   *slog.Logger
}

// New constructs a Producer. Call Start to bring it up.
func New(cfg Config) *Producer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 10
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := cfg.ID
	if id == "" {
		id = "queue-" + cfg.Pool
	}
	return &Producer{
		id:       id,
		pool:     cfg.Pool,
		backend:  cfg.Backend,
		prefetch: prefetch,
		logger:   logger,
		cmds:     make(chan any, 16),
	}
}

// ID implements registry.Member.
func (p *Producer) ID() string { return p.id }

// IsLocal implements registry.Member. Every queue producer in this
// single-node implementation is local, per the registry's ScopeCluster
// note.
func (p *Producer) IsLocal() bool { return true }

// Start declares the pool's topology, sets prefetch, and runs the event
// loop until ctx is cancelled or Stop is called.
func (p *Producer) Start(ctx context.Context) error {
	if err := p.backend.Declare(ctx, p.pool); err != nil {
		return fmt.Errorf("declare pool %s: %w", p.pool, err)
	}
	if err := p.backend.Qos(p.prefetch); err != nil {
		return fmt.Errorf("set qos for pool %s: %w", p.pool, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.stopOnce = sync.Once{}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(runCtx)
	}()
	return nil
}

// Stop terminates the event loop and waits for it to exit.
func (p *Producer) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
	})
	p.wg.Wait()
}

// Enqueue serializes and publishes job to the backend with persistence
// enabled. Fire-and-forget, per §4.B — it does not go through the event
// loop because it never touches outstanding/subscription state.
func (p *Producer) Enqueue(ctx context.Context, j job.Job) error {
	payload, err := job.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return p.backend.Publish(ctx, p.pool, payload)
}

// Ack acknowledges j's completion to the backend using j.Private.
func (p *Producer) Ack(ctx context.Context, j job.Job) error {
	return p.backend.Ack(ctx, Delivery{DeliveryTag: j.Private.DeliveryTag})
}

// Nack negative-acknowledges j with redeliver=true.
func (p *Producer) Nack(ctx context.Context, j job.Job) error {
	return p.backend.Reject(ctx, Delivery{DeliveryTag: j.Private.DeliveryTag}, true)
}

// RequestOne registers one unit of demand on behalf of sub. Call it again
// after the subscriber finishes a job to keep asking for the next one —
// this is how a monitor's max_demand=1, min_demand=0 subscription is
// realized without a separate "subscribe" call.
func (p *Producer) RequestOne(sub Subscription) {
	select {
	case p.cmds <- cmdRequestOne{sub: sub}:
	default:
		// Mailbox full under pathological backlog; block rather than
		// silently drop demand, since a dropped demand unit would leave
		// the monitor waiting forever.
		p.cmds <- cmdRequestOne{sub: sub}
	}
}

// Suspend flips the suspension flag so the producer neither polls nor
// forwards deliveries until Resume.
func (p *Producer) Suspend() { p.cmds <- cmdSuspend{} }

// Resume clears the suspension flag and resumes dispatch against any
// held demand.
func (p *Producer) Resume() { p.cmds <- cmdResume{} }

// Status returns the backend-reported queue depth plus the suspension
// flag and current outstanding-demand count.
func (p *Producer) Status(ctx context.Context) Status {
	reply := make(chan Status, 1)
	select {
	case p.cmds <- cmdStatus{reply: reply}:
	case <-ctx.Done():
		return Status{}
	}
	select {
	case s := <-reply:
		return s
	case <-ctx.Done():
		return Status{}
	}
}

// Filter returns up to limit jobs currently in the backend matching
// predicate. Best-effort: it peeks by poll-and-requeue, so it may return
// a stale or partial snapshot under concurrent activity, per §4.B.
func (p *Producer) Filter(ctx context.Context, limit int, predicate func(job.Job) bool) []job.Job {
	reply := make(chan []job.Job, 1)
	select {
	case p.cmds <- cmdFilter{predicate: predicate, limit: limit, reply: reply}:
	case <-ctx.Done():
		return nil
	}
	select {
	case jobs := <-reply:
		return jobs
	case <-ctx.Done():
		return nil
	}
}

// run is the event loop. It owns every mutable field from here down.
func (p *Producer) run(ctx context.Context) {
	var (
		outstanding int
		suspended   bool
		subscribers []Subscription
		deliveries  <-chan Delivery
		consumerTag string
	)

	emit := func(d Delivery) {
		if len(subscribers) == 0 {
			// Should not happen: dispatch is only called while
			// outstanding > 0, which implies a waiting subscriber.
			p.backend.Reject(ctx, d, true)
			return
		}
		sub := subscribers[0]
		subscribers = subscribers[1:]
		outstanding--

		j, err := job.Unmarshal(d.Payload)
		if err != nil {
			p.logger.Error("malformed job payload, dead-lettering", "pool", p.pool, "error", err)
			p.backend.Reject(ctx, d, false)
			return
		}
		j.Private.DeliveryTag = d.DeliveryTag
		j.Private.ConsumerTag = d.ConsumerTag
		j.Private.Redelivered = d.Redelivered

		select {
		case sub.Jobs <- j:
		case <-ctx.Done():
		}
	}

	tick := func() {
		if suspended || deliveries != nil {
			return
		}
		for outstanding > 0 {
			d, ok, err := p.backend.Get(ctx, p.pool)
			if err != nil {
				p.logger.Error("poll failed", "pool", p.pool, "error", err)
				return
			}
			if !ok {
				ch, tag, err := p.backend.Consume(ctx, p.pool)
				if err != nil {
					p.logger.Error("subscribe failed", "pool", p.pool, "error", err)
					return
				}
				deliveries = ch
				consumerTag = tag
				return
			}
			emit(d)
		}
	}

	onDelivery := func(d Delivery) {
		if suspended {
			p.backend.Reject(ctx, d, true)
			return
		}
		if outstanding == 0 {
			// Over-delivery race (§4.B state 3): a cancel was in flight
			// when the broker had already dispatched this delivery.
			p.backend.Reject(ctx, d, true)
			return
		}
		if outstanding == 1 {
			if err := p.backend.Cancel(ctx, consumerTag); err != nil {
				p.logger.Warn("cancel failed", "pool", p.pool, "error", err)
			}
			deliveries = nil
			consumerTag = ""
		}
		emit(d)
	}

	defer func() {
		if consumerTag != "" {
			p.backend.Cancel(context.Background(), consumerTag)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case d, ok := <-deliveries:
			if !ok {
				deliveries = nil
				continue
			}
			onDelivery(d)

		case raw := <-p.cmds:
			switch cmd := raw.(type) {
			case cmdRequestOne:
				subscribers = append(subscribers, cmd.sub)
				outstanding++
				tick()

			case cmdSuspend:
				suspended = true

			case cmdResume:
				suspended = false
				tick()

			case cmdStatus:
				depth, err := p.backend.Depth(ctx, p.pool)
				if err != nil {
					p.logger.Warn("depth query failed", "pool", p.pool, "error", err)
				}
				cmd.reply <- Status{Depth: depth, Suspended: suspended, Outstanding: outstanding}

			case cmdFilter:
				cmd.reply <- p.peekFilter(ctx, cmd.limit, cmd.predicate)

			case cmdStop:
				return
			}
		}
	}
}

// peekFilter collects up to limit jobs from the backend matching
// predicate by polling and immediately requeuing (redeliver=true) each
// one — a best-effort, order-disturbing snapshot, acceptable per §4.B's
// "backend-permitting; may be a best-effort snapshot."
func (p *Producer) peekFilter(ctx context.Context, limit int, predicate func(job.Job) bool) []job.Job {
	if limit <= 0 {
		limit = 100
	}

	var matched []job.Job
	var seen int

	for seen < limit {
		d, ok, err := p.backend.Get(ctx, p.pool)
		if err != nil || !ok {
			break
		}
		seen++

		j, err := job.Unmarshal(d.Payload)
		if err == nil && predicate(j) {
			matched = append(matched, j)
		}
		p.backend.Reject(ctx, d, true)
	}

	return matched
}
