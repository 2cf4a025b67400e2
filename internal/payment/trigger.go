package payment

import (
	"context"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/fingerprint"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/queue"
)

// Trigger turns object-created notifications from the payment bucket into
// payment events. It is the second producer into the payment queue,
// parallel to the REST upload path, and derives fingerprints through the
// same shared function.
type Trigger struct {
	queue   queue.Queue
	nowFunc func() time.Time
}

// NewTrigger returns a trigger producing into q.
func NewTrigger(q queue.Queue) *Trigger {
	return &Trigger{queue: q, nowFunc: time.Now}
}

// HandleS3 processes an object-created batch. Keys outside the proof
// namespace are ignored. An overwrite with identical bytes carries the
// same ETag and therefore dedups to a no-op.
func (t *Trigger) HandleS3(ctx context.Context, ev events.S3Event) error {
	for _, rec := range ev.Records {
		// event keys are URL-encoded
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			key = rec.S3.Object.Key
		}
		if !strings.HasPrefix(key, ProofPrefix) {
			log.Printf("[paymenttrigger] ignoring object outside proof namespace: %s", key)
			continue
		}

		event := PaymentEvent{
			OrderID:        OrderIDFromKey(key),
			ProofObjectKey: key,
			Fingerprint:    fingerprint.Payment(key, rec.S3.Object.ETag),
			Source:         SourceObjectTrigger,
			EnqueuedAt:     t.nowFunc(),
		}
		msg, err := NewMessage(event)
		if err != nil {
			return err
		}
		if err := t.queue.Enqueue(ctx, msg); err != nil {
			return err
		}
		log.Printf("[paymenttrigger] enqueued payment for order %s (%s)", event.OrderID, key)
	}
	return nil
}
