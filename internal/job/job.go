// Package job defines the Job record that flows between the queue
// producer, the worker monitor, and the worker.
package job

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaskKind discriminates the shape of a Job's Task, per §3 of the
// job-pool data model.
type TaskKind string

const (
	// TaskNullary carries no method name or args; the worker module's
	// default entry point is invoked with only the user state.
	TaskNullary TaskKind = "nullary"
	// TaskMethod invokes a named method on the worker module with only
	// the user state.
	TaskMethod TaskKind = "method"
	// TaskMethodArgs invokes a named method with positional args ahead
	// of the user state.
	TaskMethodArgs TaskKind = "method_args"
)

// Task is the opaque unit of work carried by a Job.
type Task struct {
	Kind   TaskKind `json:"kind"`
	Method string   `json:"method,omitempty"`
	Args   []any    `json:"args,omitempty"`
}

// NullaryTask builds a Task with no method name.
func NullaryTask() Task {
	return Task{Kind: TaskNullary}
}

// MethodTask builds a Task addressing a named method with no args.
func MethodTask(method string) Task {
	return Task{Kind: TaskMethod, Method: method}
}

// MethodArgsTask builds a Task addressing a named method with positional args.
func MethodArgsTask(method string, args ...any) Task {
	return Task{Kind: TaskMethodArgs, Method: method, Args: args}
}

// ReplyAddress is the opaque (owner, request-id) pair a Job carries when
// the submitter expects a reply. Only Owner may yield on the Job.
type ReplyAddress struct {
	Owner     string `json:"owner"`
	RequestID string `json:"request_id"`
}

// Private carries backend-specific ack credentials. For the RabbitMQ
// binding this is a delivery tag plus the consumer tag that received it.
type Private struct {
	DeliveryTag  uint64 `json:"delivery_tag"`
	ConsumerTag  string `json:"consumer_tag,omitempty"`
	Redelivered  bool   `json:"redelivered,omitempty"`
}

// Job is the record exchanged between the Submission API, the queue
// producer, the worker monitor, and the worker.
type Job struct {
	ID uuid.UUID `json:"id"`

	Pool string `json:"pool"`
	Task Task   `json:"task"`

	// From is nil when the submitter requested reply=false.
	From *ReplyAddress `json:"from,omitempty"`

	// Result is filled in once the worker has executed Task. It is nil
	// until then.
	Result *Result `json:"result,omitempty"`

	// By is stamped with the local node identity by the monitor that
	// accepts the job, per §4.D.
	By string `json:"by,omitempty"`

	// Private is never serialized across the wire to a peer node; it is
	// only meaningful to the queue producer that owns the delivery.
	Private Private `json:"-"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Result is the outcome of executing a Job's Task.
type Result struct {
	Value any    `json:"value,omitempty"`
	Err   string `json:"err,omitempty"`
}

// New constructs a Job ready for enqueue. from may be nil for reply=false
// submissions.
func New(pool string, task Task, from *ReplyAddress) Job {
	return Job{
		ID:         uuid.New(),
		Pool:       pool,
		Task:       task,
		From:       from,
		EnqueuedAt: time.Now(),
	}
}

// WithResult returns a copy of j with Result set, matching the spec's
// "job'.result is set" wording for the object acked back to the backend.
func (j Job) WithResult(value any, err error) Job {
	r := &Result{}
	if err != nil {
		r.Err = err.Error()
	} else {
		r.Value = value
	}
	j.Result = r
	return j
}

// Succeeded reports whether the job's result, if any, carries no error.
func (j Job) Succeeded() bool {
	return j.Result != nil && j.Result.Err == ""
}

// Marshal serializes a Job for the wire/audit-table payload format (§6:
// opaque serialization, no cross-version compatibility required).
func Marshal(j Job) ([]byte, error) {
	return json.Marshal(j)
}

// Unmarshal is the inverse of Marshal.
func Unmarshal(data []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return Job{}, err
	}
	return j, nil
}
