package payment

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/queue"
)

// ProofPrefix is the object-storage namespace for payment proofs. Only
// objects under this prefix feed the payment queue.
const ProofPrefix = "proofOfPayment/"

// Event sources. Fingerprints are shared across sources, so the same
// proof admitted by both producers still collapses to one logical event.
const (
	SourceAPI           = "api-submitted"
	SourceObjectTrigger = "object-trigger"
)

// PaymentEvent is the payload carried on the payment queue.
type PaymentEvent struct {
	OrderID        string    `json:"orderId" validate:"required"`
	ProofObjectKey string    `json:"proofObjectKey" validate:"required"`
	Fingerprint    string    `json:"fingerprint" validate:"required"`
	Source         string    `json:"source" validate:"required,oneof=api-submitted object-trigger"`
	EnqueuedAt     time.Time `json:"enqueuedAt"`
}

// PaymentNotification is broadcast once a payment is recorded.
type PaymentNotification struct {
	Type    string `json:"type"`
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

// NewMessage packs a payment event into its queue message. The order id is
// the partition key so payments for one order stay ordered.
func NewMessage(event PaymentEvent) (queue.Message, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return queue.Message{}, fmt.Errorf("marshal payment event: %w", err)
	}
	return queue.Message{
		GroupID:     event.OrderID,
		Fingerprint: event.Fingerprint,
		Body:        body,
	}, nil
}

// OrderIDFromKey derives the order id from a proof object key:
// proofOfPayment/INV-42.png -> INV-42.
func OrderIDFromKey(objectKey string) string {
	base := path.Base(objectKey)
	return strings.TrimSuffix(base, path.Ext(base))
}
