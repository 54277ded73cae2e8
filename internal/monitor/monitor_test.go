package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/jobpool/internal/job"
	"github.com/shaiso/jobpool/internal/queueproducer"
	"github.com/shaiso/jobpool/internal/registry"
	"github.com/shaiso/jobpool/internal/worker"
)

// fakeProducer is a minimal requestOner used to drive the monitor
// without a live queueproducer.Producer.
type fakeProducer struct {
	id       string
	requests chan queueproducer.Subscription
}

func newFakeProducer(id string) *fakeProducer {
	return &fakeProducer{id: id, requests: make(chan queueproducer.Subscription, 8)}
}

func (f *fakeProducer) ID() string    { return f.id }
func (f *fakeProducer) IsLocal() bool { return true }
func (f *fakeProducer) RequestOne(sub queueproducer.Subscription) {
	f.requests <- sub
}

func (f *fakeProducer) deliver(t *testing.T, j job.Job) {
	select {
	case sub := <-f.requests:
		sub.Jobs <- j
	case <-time.After(time.Second):
		t.Fatal("no pending request on fake producer")
	}
}

type echoModule struct{}

func (echoModule) Init(ctx context.Context, args any) (any, *worker.MethodRegistry, error) {
	reg := worker.NewMethodRegistry()
	reg.Register("", func(ctx context.Context, state any, args []any) (any, error) {
		return "ok", nil
	})
	reg.Register("boom", func(ctx context.Context, state any, args []any) (any, error) {
		panic("crash")
	})
	return nil, reg, nil
}

type failingInitModule struct {
	attempts int
}

func (m *failingInitModule) Init(ctx context.Context, args any) (any, *worker.MethodRegistry, error) {
	m.attempts++
	if m.attempts < 2 {
		return nil, nil, errors.New("not ready yet")
	}
	reg := worker.NewMethodRegistry()
	reg.Register("", func(ctx context.Context, state any, args []any) (any, error) {
		return "ok", nil
	})
	return nil, reg, nil
}

type fakeFailureMode struct {
	calls chan job.Job
}

func newFakeFailureMode() *fakeFailureMode {
	return &fakeFailureMode{calls: make(chan job.Job, 4)}
}

func (f *fakeFailureMode) HandleFailure(ctx context.Context, pool string, j job.Job, args any) error {
	f.calls <- j
	return nil
}

func TestMonitorRoutesJobToWorker(t *testing.T) {
	reg := registry.New()
	reg.Create("pool-a")
	qp := newFakeProducer("q1")
	reg.Join("pool-a", registry.RoleQueues, qp)

	w := worker.New(worker.Config{Module: echoModule{}, Registry: reg})
	fm := newFakeFailureMode()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mon := New(Config{Pool: "pool-a", Registry: reg, Worker: w, FailureMode: fm})
	mon.Start(ctx, nil)

	j := job.New("pool-a", job.NullaryTask(), nil)
	qp.deliver(t, j)

	// the fake producer should be re-asked for another job once this one
	// finishes cleanly.
	select {
	case <-qp.requests:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor never re-requested demand after clean completion")
	}

	if mon.Busy() {
		t.Fatal("monitor should be idle after clean completion")
	}
}

func TestMonitorStopsOnWorkerCrash(t *testing.T) {
	reg := registry.New()
	reg.Create("pool-a")
	qp := newFakeProducer("q1")
	reg.Join("pool-a", registry.RoleQueues, qp)

	w := worker.New(worker.Config{Module: echoModule{}, Registry: reg})
	fm := newFakeFailureMode()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mon := New(Config{Pool: "pool-a", Registry: reg, Worker: w, FailureMode: fm})
	mon.Start(ctx, nil)

	j := job.New("pool-a", job.MethodTask("boom"), nil)
	qp.deliver(t, j)

	select {
	case held := <-fm.calls:
		if held.ID != j.ID {
			t.Fatal("failure mode invoked with wrong job")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("failure mode was never invoked after worker crash")
	}
}

func TestMonitorRetriesFailedInit(t *testing.T) {
	reg := registry.New()
	reg.Create("pool-a")

	mod := &failingInitModule{}
	w := worker.New(worker.Config{Module: mod, Registry: reg})
	fm := newFakeFailureMode()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mon := New(Config{Pool: "pool-a", Registry: reg, Worker: w, FailureMode: fm, InitRetry: 20 * time.Millisecond})
	mon.Start(ctx, nil)

	deadline := time.After(2 * time.Second)
	for {
		members := reg.Members("pool-a", registry.RoleWorkerMonitors, registry.ScopeLocal)
		if len(members) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("monitor never joined registry after init retry succeeded")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if mod.attempts < 2 {
		t.Fatalf("expected at least 2 init attempts, got %d", mod.attempts)
	}
}
