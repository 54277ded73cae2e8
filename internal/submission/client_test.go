package submission

import (
	"context"
	"testing"
	"time"

	"github.com/shaiso/jobpool/internal/job"
	"github.com/shaiso/jobpool/internal/queueproducer"
	"github.com/shaiso/jobpool/internal/registry"
)

type fakeQueueMember struct {
	id        string
	enqueued  []job.Job
	suspended bool
	status    queueproducer.Status
}

func (f *fakeQueueMember) ID() string    { return f.id }
func (f *fakeQueueMember) IsLocal() bool { return true }
func (f *fakeQueueMember) Enqueue(ctx context.Context, j job.Job) error {
	f.enqueued = append(f.enqueued, j)
	return nil
}
func (f *fakeQueueMember) Suspend() { f.suspended = true }
func (f *fakeQueueMember) Resume()  { f.suspended = false }
func (f *fakeQueueMember) Status(ctx context.Context) queueproducer.Status {
	return f.status
}
func (f *fakeQueueMember) Filter(ctx context.Context, limit int, predicate func(job.Job) bool) []job.Job {
	var out []job.Job
	for _, j := range f.enqueued {
		if predicate(j) {
			out = append(out, j)
		}
	}
	return out
}

func TestAsyncThenYieldDeliversResult(t *testing.T) {
	reg := registry.New()
	reg.Create("pool-a")
	q := &fakeQueueMember{id: "q1"}
	reg.Join("pool-a", registry.RoleQueues, q)

	c := New(reg, nil)
	defer c.Close()

	j, err := c.Async(context.Background(), "pool-a", job.NullaryTask(), "caller-1")
	if err != nil {
		t.Fatalf("async: %v", err)
	}
	if len(q.enqueued) != 1 {
		t.Fatalf("expected 1 enqueued job, got %d", len(q.enqueued))
	}

	go c.Deliver(*j.From, job.Result{Value: "done"})

	result, err := c.Yield(context.Background(), "caller-1", j, 2*time.Second)
	if err != nil {
		t.Fatalf("yield: %v", err)
	}
	if result == nil || result.Value != "done" {
		t.Fatalf("unexpected yield result: %+v", result)
	}
}

func TestYieldOwnerMismatch(t *testing.T) {
	reg := registry.New()
	reg.Create("pool-a")
	q := &fakeQueueMember{id: "q1"}
	reg.Join("pool-a", registry.RoleQueues, q)

	c := New(reg, nil)
	defer c.Close()

	j, err := c.Async(context.Background(), "pool-a", job.NullaryTask(), "caller-1")
	if err != nil {
		t.Fatalf("async: %v", err)
	}

	_, err = c.Yield(context.Background(), "someone-else", j, time.Second)
	if err != ErrOwnerMismatch {
		t.Fatalf("expected ErrOwnerMismatch, got %v", err)
	}
}

func TestYieldTimesOutWithoutError(t *testing.T) {
	reg := registry.New()
	reg.Create("pool-a")
	q := &fakeQueueMember{id: "q1"}
	reg.Join("pool-a", registry.RoleQueues, q)

	c := New(reg, nil)
	defer c.Close()

	j, err := c.Async(context.Background(), "pool-a", job.NullaryTask(), "caller-1")
	if err != nil {
		t.Fatalf("async: %v", err)
	}

	result, err := c.Yield(context.Background(), "caller-1", j, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error on timeout: %v", err)
	}
	if result != nil {
		t.Fatalf("expected nil result on timeout, got %+v", result)
	}
}

func TestAsyncNoReplyHasNoReplyAddress(t *testing.T) {
	reg := registry.New()
	reg.Create("pool-a")
	q := &fakeQueueMember{id: "q1"}
	reg.Join("pool-a", registry.RoleQueues, q)

	c := New(reg, nil)
	defer c.Close()

	j, err := c.AsyncNoReply(context.Background(), "pool-a", job.NullaryTask())
	if err != nil {
		t.Fatalf("async: %v", err)
	}
	if j.From != nil {
		t.Fatal("expected nil reply address")
	}

	_, err = c.Yield(context.Background(), "caller-1", j, time.Second)
	if err != ErrNoReplyAddress {
		t.Fatalf("expected ErrNoReplyAddress, got %v", err)
	}
}

func TestSuspendResumeBroadcast(t *testing.T) {
	reg := registry.New()
	reg.Create("pool-a")
	q1 := &fakeQueueMember{id: "q1"}
	q2 := &fakeQueueMember{id: "q2"}
	reg.Join("pool-a", registry.RoleQueues, q1)
	reg.Join("pool-a", registry.RoleQueues, q2)

	c := New(reg, nil)
	defer c.Close()

	c.Suspend("pool-a")
	if !q1.suspended || !q2.suspended {
		t.Fatal("expected both queue members suspended")
	}

	c.Resume("pool-a")
	if q1.suspended || q2.suspended {
		t.Fatal("expected both queue members resumed")
	}
}

func TestFilterDelegatesToQueue(t *testing.T) {
	reg := registry.New()
	reg.Create("pool-a")
	q := &fakeQueueMember{id: "q1"}
	reg.Join("pool-a", registry.RoleQueues, q)

	c := New(reg, nil)
	defer c.Close()

	if _, err := c.Async(context.Background(), "pool-a", job.MethodTask("a"), "caller-1"); err != nil {
		t.Fatalf("async: %v", err)
	}
	if _, err := c.Async(context.Background(), "pool-a", job.MethodTask("b"), "caller-1"); err != nil {
		t.Fatalf("async: %v", err)
	}

	matched, err := c.Filter(context.Background(), "pool-a", 10, func(j job.Job) bool {
		return j.Task.Method == "a"
	})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(matched) != 1 || matched[0].Task.Method != "a" {
		t.Fatalf("unexpected filter result: %+v", matched)
	}
}
