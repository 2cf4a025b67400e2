// Package queue provides the ordered work queue the order/payment pipeline
// runs on: per-key FIFO delivery, content-based deduplication, visibility
// leases and a dead-letter sibling for poison messages.
package queue

import "context"

// Message is a unit of work admitted to a queue.
type Message struct {
	// GroupID is the partition key: messages sharing a GroupID are
	// delivered in submission order.
	GroupID string
	// Fingerprint is the content-based dedup id; two enqueues with the
	// same fingerprint within the dedup window collapse into one.
	Fingerprint string
	Body        []byte
}

// Delivery is a leased message handed to a consumer. The lease is exclusive
// until Ack/Nack or lease expiry.
type Delivery struct {
	Message
	// ReceiveCount counts deliveries of this message including this one.
	ReceiveCount int

	// receipt identifies the lease to the backing queue.
	receipt string
}

// Queue is at-least-once: dedup suppresses duplicate admission, not
// duplicate delivery after a lease expiry. Consumers must be idempotent
// with respect to Fingerprint.
type Queue interface {
	// Enqueue admits a message. Duplicate fingerprints inside the dedup
	// window are a no-op that still returns nil.
	Enqueue(ctx context.Context, msg Message) error
	// Dequeue leases the next visible message. Returns (nil, nil) when no
	// message is available.
	Dequeue(ctx context.Context) (*Delivery, error)
	// Ack completes the delivery and removes the message.
	Ack(ctx context.Context, d *Delivery) error
	// Nack releases the lease so the message becomes visible again.
	Nack(ctx context.Context, d *Delivery) error
}
