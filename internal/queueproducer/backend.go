// Package queueproducer implements §4.B: a demand-driven queue producer
// that owns a durable backend connection and only emits jobs downstream
// in response to demand, using the Idle/Subscribed/Over-delivery state
// machine described there.
package queueproducer

import "context"

// Delivery is one message pulled from the backend, either via a
// poll-once Get or pushed through a Consume subscription. It mirrors
// mq.Delivery so this package does not force a hard dependency on the
// RabbitMQ binding — the state machine is tested against an in-memory
// fake implementing Backend.
type Delivery struct {
	Payload     []byte
	DeliveryTag uint64
	ConsumerTag string
	Redelivered bool
}

// Backend is the queue-backend contract from §6, translated into a Go
// interface: declare, publish-persistent, poll-once, cancellable
// push-subscribe, ack, reject-with-requeue, an optional prefetch bound,
// and a depth query for status(). internal/mq.Backend implements this
// against RabbitMQ; tests use an in-memory fake.
type Backend interface {
	Declare(ctx context.Context, pool string) error
	Qos(prefetch int) error
	Publish(ctx context.Context, pool string, payload []byte) error
	Get(ctx context.Context, pool string) (Delivery, bool, error)
	Consume(ctx context.Context, pool string) (<-chan Delivery, string, error)
	Cancel(ctx context.Context, consumerTag string) error
	Ack(ctx context.Context, d Delivery) error
	Reject(ctx context.Context, d Delivery, redeliver bool) error
	Depth(ctx context.Context, pool string) (int, error)
}
