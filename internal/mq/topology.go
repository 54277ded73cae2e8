package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RoutingKey is fixed per pool; a pool's exchange carries exactly one
// queue, so routing is a formality rather than a fan-out mechanism.
const RoutingKey = "job"

// DLQRoutingKey is the routing key jobs are dead-lettered under.
const DLQRoutingKey = "dead"

// ExchangeName returns the durable direct exchange backing pool.
func ExchangeName(pool string) string {
	return fmt.Sprintf("jobpool.%s", pool)
}

// QueueName returns the durable queue backing pool.
func QueueName(pool string) string {
	return fmt.Sprintf("%s.jobs", pool)
}

// DLQExchangeName returns the dead-letter exchange for pool.
func DLQExchangeName(pool string) string {
	return fmt.Sprintf("jobpool.%s.dlq", pool)
}

// DLQQueueName returns the dead-letter queue for pool.
func DLQQueueName(pool string) string {
	return fmt.Sprintf("%s.jobs.dlq", pool)
}

// DeclarePool declares the exchange, queue, DLQ exchange/queue, and
// bindings for one pool. Safe to call repeatedly: AMQP declare is
// idempotent for identical arguments.
func DeclarePool(ctx context.Context, conn *Connection, pool string) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareDLQ(ch, pool); err != nil {
			return err
		}
		return declareMain(ch, pool)
	})
}

func declareDLQ(ch *amqp.Channel, pool string) error {
	if err := ch.ExchangeDeclare(DLQExchangeName(pool), "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlq exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(DLQQueueName(pool), true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlq queue: %w", err)
	}
	if err := ch.QueueBind(DLQQueueName(pool), DLQRoutingKey, DLQExchangeName(pool), false, nil); err != nil {
		return fmt.Errorf("bind dlq queue: %w", err)
	}
	return nil
}

func declareMain(ch *amqp.Channel, pool string) error {
	if err := ch.ExchangeDeclare(ExchangeName(pool), "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	// Deliveries rejected with redeliver=false (the queue producer does
	// this for malformed payloads) fall through to the pool's DLQ via
	// these queue arguments.
	args := amqp.Table{
		"x-dead-letter-exchange":    DLQExchangeName(pool),
		"x-dead-letter-routing-key": DLQRoutingKey,
	}
	if _, err := ch.QueueDeclare(QueueName(pool), true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(QueueName(pool), RoutingKey, ExchangeName(pool), false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// TeardownPool deletes pool's exchanges and queues, mirroring §3's
// "groups are created at pool startup and deleted at teardown" on the
// broker side of a pool's lifecycle.
func TeardownPool(ctx context.Context, conn *Connection, pool string) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if _, err := ch.QueueDelete(QueueName(pool), false, false, false); err != nil {
			return fmt.Errorf("delete queue: %w", err)
		}
		if _, err := ch.QueueDelete(DLQQueueName(pool), false, false, false); err != nil {
			return fmt.Errorf("delete dlq queue: %w", err)
		}
		if err := ch.ExchangeDelete(ExchangeName(pool), false, false); err != nil {
			return fmt.Errorf("delete exchange: %w", err)
		}
		if err := ch.ExchangeDelete(DLQExchangeName(pool), false, false); err != nil {
			return fmt.Errorf("delete dlq exchange: %w", err)
		}
		return nil
	})
}
