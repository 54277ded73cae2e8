package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/jobpool/internal/job"
	"github.com/shaiso/jobpool/internal/metrics"
	"github.com/shaiso/jobpool/internal/queueproducer"
	"github.com/shaiso/jobpool/internal/registry"
)

func newTestMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

// fakeBackend is a minimal in-memory queueproducer.Backend, just enough
// for a Pool to Start and Stop against without a live broker.
type fakeBackend struct {
	mu    sync.Mutex
	depth int
}

func (f *fakeBackend) Declare(ctx context.Context, pool string) error { return nil }
func (f *fakeBackend) Qos(prefetch int) error                         { return nil }
func (f *fakeBackend) Publish(ctx context.Context, pool string, payload []byte) error {
	return nil
}
func (f *fakeBackend) Get(ctx context.Context, pool string) (queueproducer.Delivery, bool, error) {
	return queueproducer.Delivery{}, false, nil
}
func (f *fakeBackend) Consume(ctx context.Context, pool string) (<-chan queueproducer.Delivery, string, error) {
	ch := make(chan queueproducer.Delivery)
	return ch, "fake-consumer", nil
}
func (f *fakeBackend) Cancel(ctx context.Context, consumerTag string) error { return nil }
func (f *fakeBackend) Ack(ctx context.Context, d queueproducer.Delivery) error {
	return nil
}
func (f *fakeBackend) Reject(ctx context.Context, d queueproducer.Delivery, redeliver bool) error {
	return nil
}
func (f *fakeBackend) Depth(ctx context.Context, pool string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.depth, nil
}

func TestNew_Validation(t *testing.T) {
	reg := registry.New()
	backends := []queueproducer.Backend{&fakeBackend{}}

	cases := []struct {
		name string
		cfg  Config
	}{
		{"missing name", Config{Registry: reg, Backends: backends}},
		{"missing registry", Config{Name: "p", Backends: backends}},
		{"missing backends", Config{Name: "p", Registry: reg}},
		{"negative workers", Config{Name: "p", Registry: reg, Backends: backends, NumWorkers: -1}},
		{"workers without module", Config{Name: "p", Registry: reg, Backends: backends, NumWorkers: 1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.cfg); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestNew_ZeroWorkersIsValid(t *testing.T) {
	p, err := New(Config{
		Name:     "producers-only",
		Registry: registry.New(),
		Backends: []queueproducer.Backend{&fakeBackend{}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(p.monitors) != 0 {
		t.Fatalf("expected no monitors, got %d", len(p.monitors))
	}
	if len(p.producers) != 1 {
		t.Fatalf("expected one producer, got %d", len(p.producers))
	}
}

func TestPool_StartJoinsRegistryAndStopLeaves(t *testing.T) {
	reg := registry.New()
	p, err := New(Config{
		Name:     "sweep-only",
		Registry: reg,
		Backends: []queueproducer.Backend{&fakeBackend{}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	members := reg.Members("sweep-only", registry.RoleQueues, registry.ScopeLocal)
	if len(members) != 1 {
		t.Fatalf("expected 1 queue member joined, got %d", len(members))
	}

	p.Stop()

	members = reg.Members("sweep-only", registry.RoleQueues, registry.ScopeLocal)
	if len(members) != 0 {
		t.Fatalf("expected queue member to leave on Stop, got %d", len(members))
	}
}

// stubAcker is a fake registry.Member that also satisfies the Nack
// interface RegistryAcker type-asserts against.
type stubAcker struct {
	id      string
	nacked  []job.Job
	nackErr error
}

func (s *stubAcker) ID() string      { return s.id }
func (s *stubAcker) IsLocal() bool   { return true }
func (s *stubAcker) Nack(ctx context.Context, j job.Job) error {
	s.nacked = append(s.nacked, j)
	return s.nackErr
}

func TestRegistryAcker_Nack(t *testing.T) {
	reg := registry.New()
	reg.Create("p1")

	acker := RegistryAcker{Registry: reg, Pool: "p1"}
	j := job.Job{Pool: "p1"}

	if err := acker.Nack(context.Background(), j); err == nil {
		t.Fatal("expected error when no queue member is registered")
	}

	stub := &stubAcker{id: "queue-p1-0"}
	reg.Join("p1", registry.RoleQueues, stub)

	if err := acker.Nack(context.Background(), j); err != nil {
		t.Fatalf("Nack: %v", err)
	}
	if len(stub.nacked) != 1 {
		t.Fatalf("expected 1 nack recorded, got %d", len(stub.nacked))
	}
}

func TestRegistryAcker_PropagatesUnderlyingError(t *testing.T) {
	reg := registry.New()
	reg.Create("p1")
	stub := &stubAcker{id: "queue-p1-0", nackErr: errors.New("broker down")}
	reg.Join("p1", registry.RoleQueues, stub)

	acker := RegistryAcker{Registry: reg, Pool: "p1"}
	err := acker.Nack(context.Background(), job.Job{Pool: "p1"})
	if err == nil || err.Error() != "broker down" {
		t.Fatalf("expected underlying error to propagate, got %v", err)
	}
}

func TestCountingFailureMode_DelegatesAndCounts(t *testing.T) {
	inner := &recordingFailureMode{}
	promReg := prometheus.NewRegistry()
	cfm := &countingFailureMode{inner: inner, metrics: metrics.New(promReg), pool: "p1"}

	if err := cfm.HandleFailure(context.Background(), "p1", job.Job{}, nil); err != nil {
		t.Fatalf("HandleFailure: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected inner FailureMode to be invoked once, got %d", inner.calls)
	}

	mfs, err := promReg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var count float64
	for _, mf := range mfs {
		if mf.GetName() == "jobpool_failure_mode_invocations_total" {
			for _, m := range mf.GetMetric() {
				count += m.GetCounter().GetValue()
			}
		}
	}
	if count != 1 {
		t.Fatalf("expected failure mode invocation counter to be 1, got %v", count)
	}
}

type recordingFailureMode struct {
	calls int
}

func (r *recordingFailureMode) HandleFailure(ctx context.Context, pool string, j job.Job, args any) error {
	r.calls++
	return nil
}

// TestQueueMember_NackHandlesUnstartedProducer confirms the decorator forwards to the
// embedded Producer without needing a live broker connection: an
// un-started Producer's Nack call against a job with no delivery tag
// returns quickly rather than blocking.
func TestQueueMember_NackHandlesUnstartedProducer(t *testing.T) {
	prod := queueproducer.New(queueproducer.Config{
		ID:      "queue-p1-0",
		Pool:    "p1",
		Backend: &fakeBackend{},
	})
	qm := &queueMember{Producer: prod, metrics: newTestMetrics(), pool: "p1"}

	done := make(chan error, 1)
	go func() { done <- qm.Nack(context.Background(), job.Job{Pool: "p1"}) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Nack on an unstarted producer should not block")
	}
}
