// Package payment contains the payment side of the pipeline: the ingestion
// trigger producing payment events and the worker consuming them.
package payment

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

// PaymentStore is the slice of the domain store the worker mutates.
type PaymentStore interface {
	MarkOrderPaid(ctx context.Context, orderID, proofObjectKey, paymentFingerprint string) (applied bool, err error)
}

// Notifier mirrors the order worker's push surface.
type Notifier interface {
	Unicast(ctx context.Context, connectionID string, data []byte) error
	Broadcast(ctx context.Context, data []byte) notify.BroadcastReport
}

// Worker processes payment events one at a time.
type Worker struct {
	store    PaymentStore
	notifier Notifier
	emitter  *metrics.Emitter
	validate *validatorv10.Validate
}

// NewWorker wires a worker. emitter may be nil.
func NewWorker(store PaymentStore, notifier Notifier, emitter *metrics.Emitter) *Worker {
	return &Worker{
		store:    store,
		notifier: notifier,
		emitter:  emitter,
		validate: validatorv10.New(),
	}
}

// Handle is the SQS batch entry point (batch size 1 in production).
func (w *Worker) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := w.Process(ctx, []byte(rec.Body)); err != nil {
			log.Printf("[paymentworker] %v", err)
			return err
		}
	}
	return nil
}

// Process applies one payment event: validate, record the payment, then
// broadcast. The payment-fingerprint guard in the store makes redelivery
// a no-op mutation, and only an applied mutation broadcasts. An event
// arriving before its order row errors out for redelivery.
func (w *Worker) Process(ctx context.Context, body []byte) error {
	var event PaymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		w.emitter.Count(ctx, metrics.ValidationFailures, 1)
		return fmt.Errorf("malformed payment event: %w", err)
	}
	if err := w.validate.Struct(event); err != nil {
		w.emitter.Count(ctx, metrics.ValidationFailures, 1)
		return fmt.Errorf("invalid payment event %s: %w", event.OrderID, err)
	}

	applied, err := w.store.MarkOrderPaid(ctx, event.OrderID, event.ProofObjectKey, event.Fingerprint)
	if errors.Is(err, database.ErrNotFound) {
		// the order event has not landed yet; redeliver until it does or
		// the receive threshold dead-letters this event
		return fmt.Errorf("payment for order %s before its order row: %w", event.OrderID, err)
	}
	if err != nil {
		return fmt.Errorf("payment mutation %s: %w", event.OrderID, err)
	}
	if !applied {
		log.Printf("[paymentworker] payment for %s already recorded, redelivery", event.OrderID)
		return nil
	}

	data, _ := json.Marshal(PaymentNotification{
		Type:    "paymentReceived",
		OrderID: event.OrderID,
		Status:  database.PaymentStatusPaid,
	})
	report := w.notifier.Broadcast(ctx, data)
	if report.Pruned > 0 {
		w.emitter.Count(ctx, metrics.NotificationsPruned, float64(report.Pruned))
	}

	w.emitter.Count(ctx, metrics.PaymentsProcessed, 1)
	log.Printf("[paymentworker] recorded payment for order %s (source=%s)", event.OrderID, event.Source)
	return nil
}

// Run drains q until ctx is cancelled. RUN_LOCAL consumption path.
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
			log.Printf("[paymentworker] %v", err)
			if nerr := q.Nack(ctx, d); nerr != nil {
				log.Printf("[paymentworker] nack: %v", nerr)
			}
			continue
		}
		if aerr := q.Ack(ctx, d); aerr != nil {
			log.Printf("[paymentworker] ack: %v", aerr)
		}
	}
}
