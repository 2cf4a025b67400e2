package orderflow

import "time"

// OrderEvent is the payload carried on the order queue from the API
// producer to the order worker.
type OrderEvent struct {
	OrderID      string    `json:"orderId" validate:"required"`
	CustomerID   string    `json:"customerId" validate:"required"`
	EventID      string    `json:"eventId,omitempty"`
	Quantity     int       `json:"quantity" validate:"required,min=1"`
	Amount       float64   `json:"amount" validate:"required,gt=0"`
	ConnectionID string    `json:"connectionId,omitempty"` // unicast target when set
	Fingerprint  string    `json:"fingerprint" validate:"required"`
	EnqueuedAt   time.Time `json:"enqueuedAt"`
}

// OrderNotification is pushed to clients once an order is confirmed.
type OrderNotification struct {
	Type       string  `json:"type"`
	OrderID    string  `json:"orderId"`
	CustomerID string  `json:"customerId"`
	Status     string  `json:"status"`
	Amount     float64 `json:"amount"`
}
