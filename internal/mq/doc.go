// Package mq provides the RabbitMQ binding for the queue-backend contract
// in §6.
//
// Structure:
//   - connection.go — connection lifecycle (reconnect, graceful shutdown)
//   - topology.go    — per-pool exchange, queue, and DLQ declaration
//   - backend.go     — publish/get/consume/cancel/ack/reject/depth,
//     implementing queueproducer.Backend
//
// Per pool <name>:
//   - jobpool.<name>       — direct exchange
//   - <name>.jobs          — durable queue, dead-letters to the DLQ pair
//   - jobpool.<name>.dlq   — dead-letter exchange
//   - <name>.jobs.dlq      — dead-letter queue
package mq
