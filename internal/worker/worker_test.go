package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/jobpool/internal/job"
	"github.com/shaiso/jobpool/internal/registry"
)

type echoModule struct{}

func (echoModule) Init(ctx context.Context, args any) (any, *MethodRegistry, error) {
	reg := NewMethodRegistry()
	reg.Register("", func(ctx context.Context, state any, args []any) (any, error) {
		return "nullary-ok", nil
	})
	reg.Register("echo", func(ctx context.Context, state any, args []any) (any, error) {
		if len(args) == 0 {
			return nil, errors.New("echo requires an argument")
		}
		return args[0], nil
	})
	reg.Register("boom", func(ctx context.Context, state any, args []any) (any, error) {
		panic("task exploded")
	})
	return "state", reg, nil
}

type failingModule struct{}

func (failingModule) Init(ctx context.Context, args any) (any, *MethodRegistry, error) {
	return nil, nil, errors.New("init failed")
}

type fakeQueue struct {
	id     string
	acked  []job.Job
	nacked []job.Job
}

func (f *fakeQueue) ID() string      { return f.id }
func (f *fakeQueue) IsLocal() bool   { return true }
func (f *fakeQueue) Ack(ctx context.Context, j job.Job) error {
	f.acked = append(f.acked, j)
	return nil
}
func (f *fakeQueue) Nack(ctx context.Context, j job.Job) error {
	f.nacked = append(f.nacked, j)
	return nil
}

type fakeReplies struct {
	delivered []job.Result
}

func (f *fakeReplies) Deliver(from job.ReplyAddress, result job.Result) {
	f.delivered = append(f.delivered, result)
}

func newTestWorker(t *testing.T, module Module, reg *registry.Registry, replies ReplyDeliverer) *Worker {
	w := New(Config{Module: module, Registry: reg, Replies: replies})
	if err := w.Init(context.Background(), nil); err != nil {
		t.Fatalf("init: %v", err)
	}
	return w
}

func TestExecuteNullaryTask(t *testing.T) {
	reg := registry.New()
	reg.Create("pool-a")
	q := &fakeQueue{id: "q1"}
	reg.Join("pool-a", registry.RoleQueues, q)

	w := newTestWorker(t, echoModule{}, reg, nil)

	j := job.New("pool-a", job.NullaryTask(), nil)
	done := make(chan *job.Job, 1)
	w.Execute(context.Background(), j, done)

	select {
	case held := <-done:
		if held != nil {
			t.Fatalf("expected clean job_done, got held job")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}

	if len(q.acked) != 1 {
		t.Fatalf("expected 1 ack, got %d", len(q.acked))
	}
	if q.acked[0].Result.Value != "nullary-ok" {
		t.Fatalf("unexpected result: %v", q.acked[0].Result.Value)
	}
}

func TestExecuteMethodArgsTask(t *testing.T) {
	reg := registry.New()
	reg.Create("pool-a")
	q := &fakeQueue{id: "q1"}
	reg.Join("pool-a", registry.RoleQueues, q)

	w := newTestWorker(t, echoModule{}, reg, nil)

	j := job.New("pool-a", job.MethodArgsTask("echo", "hello"), nil)
	done := make(chan *job.Job, 1)
	w.Execute(context.Background(), j, done)

	<-done
	if q.acked[0].Result.Value != "hello" {
		t.Fatalf("expected echoed value, got %v", q.acked[0].Result.Value)
	}
}

func TestExecuteUnknownMethodAcksWithError(t *testing.T) {
	reg := registry.New()
	reg.Create("pool-a")
	q := &fakeQueue{id: "q1"}
	reg.Join("pool-a", registry.RoleQueues, q)

	w := newTestWorker(t, echoModule{}, reg, nil)

	j := job.New("pool-a", job.MethodTask("does-not-exist"), nil)
	done := make(chan *job.Job, 1)
	w.Execute(context.Background(), j, done)

	<-done
	if q.acked[0].Succeeded() {
		t.Fatal("expected failure result for unknown method")
	}
}

func TestExecutePanicReportsHeldJob(t *testing.T) {
	reg := registry.New()
	reg.Create("pool-a")
	q := &fakeQueue{id: "q1"}
	reg.Join("pool-a", registry.RoleQueues, q)

	w := newTestWorker(t, echoModule{}, reg, nil)

	j := job.New("pool-a", job.MethodTask("boom"), nil)
	done := make(chan *job.Job, 1)

	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("panic escaped Execute: %v", r)
			}
		}()
		w.Execute(context.Background(), j, done)
	}()

	select {
	case held := <-done:
		if held == nil {
			t.Fatal("expected held job on crash, got nil")
		}
		if held.ID != j.ID {
			t.Fatal("held job should be the crashing job")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}

	if len(q.acked) != 0 {
		t.Fatal("a crashed job must not be acked")
	}
}

func TestExecuteDeliversReply(t *testing.T) {
	reg := registry.New()
	reg.Create("pool-a")
	q := &fakeQueue{id: "q1"}
	reg.Join("pool-a", registry.RoleQueues, q)
	replies := &fakeReplies{}

	w := newTestWorker(t, echoModule{}, reg, replies)

	from := job.ReplyAddress{Owner: "caller-1", RequestID: "req-1"}
	j := job.New("pool-a", job.MethodArgsTask("echo", 42), &from)
	done := make(chan *job.Job, 1)
	w.Execute(context.Background(), j, done)
	<-done

	if len(replies.delivered) != 1 {
		t.Fatalf("expected 1 delivered reply, got %d", len(replies.delivered))
	}
	if replies.delivered[0].Value != 42 {
		t.Fatalf("unexpected delivered value: %v", replies.delivered[0].Value)
	}
}

func TestInitPropagatesModuleFailure(t *testing.T) {
	w := New(Config{Module: failingModule{}, Registry: registry.New()})
	if err := w.Init(context.Background(), nil); err == nil {
		t.Fatal("expected init error to propagate")
	}
}
