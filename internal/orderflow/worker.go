// Package orderflow consumes order events from the order queue, applies
// the order mutation and pushes a confirmation to connected clients.
package orderflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/events"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/database"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/metrics"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/notify"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/queue"
)

// OrderStore is the slice of the domain store the worker mutates.
type OrderStore interface {
	UpsertOrder(ctx context.Context, o database.Order) (applied bool, err error)
}

// Notifier is the push-delivery surface. Delivery failures never fail the
// worker's unit of work.
type Notifier interface {
	Unicast(ctx context.Context, connectionID string, data []byte) error
	Broadcast(ctx context.Context, data []byte) notify.BroadcastReport
}

// Worker processes order events one at a time. It holds no state across
// invocations; everything flows through the queue and the store.
type Worker struct {
	store    OrderStore
	notifier Notifier
	emitter  *metrics.Emitter
	validate *validatorv10.Validate
}

// NewWorker wires a worker. emitter may be nil.
func NewWorker(store OrderStore, notifier Notifier, emitter *metrics.Emitter) *Worker {
	return &Worker{
		store:    store,
		notifier: notifier,
		emitter:  emitter,
		validate: validatorv10.New(),
	}
}

// Handle is the SQS batch entry point (batch size 1 in production).
// Returning an error leaves the message on the queue for redelivery and,
// past the receive threshold, the dead-letter queue.
func (w *Worker) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := w.Process(ctx, []byte(rec.Body)); err != nil {
			log.Printf("[orderworker] %v", err)
			return err
		}
	}
	return nil
}

// Process applies one order event: validate, mutate, notify, then let the
// caller ack. A crash before ack yields redelivery, never silent loss.
func (w *Worker) Process(ctx context.Context, body []byte) error {
	var event OrderEvent
	if err := json.Unmarshal(body, &event); err != nil {
		w.emitter.Count(ctx, metrics.ValidationFailures, 1)
		return fmt.Errorf("malformed order event: %w", err)
	}
	if err := w.validate.Struct(event); err != nil {
		w.emitter.Count(ctx, metrics.ValidationFailures, 1)
		return fmt.Errorf("invalid order event %s: %w", event.OrderID, err)
	}

	applied, err := w.store.UpsertOrder(ctx, database.Order{
		ID:          event.OrderID,
		CustomerID:  event.CustomerID,
		EventID:     event.EventID,
		Quantity:    event.Quantity,
		Amount:      event.Amount,
		Fingerprint: event.Fingerprint,
	})
	if errors.Is(err, database.ErrFingerprintMismatch) {
		// same order id, different content: not a redelivery, and not
		// curable by one either. Ack it out of the queue without
		// advertising state that was never persisted.
		log.Printf("[orderworker] conflicting resubmission of order %s dropped", event.OrderID)
		w.emitter.Count(ctx, metrics.OrderConflicts, 1)
		return nil
	}
	if err != nil {
		// transient store failure: redeliver
		return fmt.Errorf("order mutation %s: %w", event.OrderID, err)
	}
	if !applied {
		log.Printf("[orderworker] order %s already applied, redelivery", event.OrderID)
	}

	w.notifyConfirmed(ctx, event)
	w.emitter.Count(ctx, metrics.OrdersProcessed, 1)
	log.Printf("[orderworker] confirmed order %s for %s", event.OrderID, event.CustomerID)
	return nil
}

func (w *Worker) notifyConfirmed(ctx context.Context, event OrderEvent) {
	data, _ := json.Marshal(OrderNotification{
		Type:       "orderConfirmed",
		OrderID:    event.OrderID,
		CustomerID: event.CustomerID,
		Status:     database.OrderStatusConfirmed,
		Amount:     event.Amount,
	})
	if event.ConnectionID != "" {
		if err := w.notifier.Unicast(ctx, event.ConnectionID, data); err != nil {
			log.Printf("[orderworker] notify %s: %v", event.ConnectionID, err)
		}
		return
	}
	report := w.notifier.Broadcast(ctx, data)
	if report.Pruned > 0 {
		w.emitter.Count(ctx, metrics.NotificationsPruned, float64(report.Pruned))
	}
}

// Run drains q until ctx is cancelled, acking successes and nacking
// failures. This is the RUN_LOCAL consumption path; in production the
// lambda event source drives Handle instead.
func (w *Worker) Run(ctx context.Context, q queue.Queue) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		d, err := q.Dequeue(ctx)
		if err != nil {
			return fmt.Errorf("dequeue: %w", err)
		}
		if d == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}
		if err := w.Process(ctx, d.Body); err != nil {
			log.Printf("[orderworker] %v", err)
			if nerr := q.Nack(ctx, d); nerr != nil {
				log.Printf("[orderworker] nack: %v", nerr)
			}
			continue
		}
		if aerr := q.Ack(ctx, d); aerr != nil {
			log.Printf("[orderworker] ack: %v", aerr)
		}
	}
}
