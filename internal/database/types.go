package database

import "time"

// Order statuses
const (
	OrderStatusPending   = "PENDING"
	OrderStatusConfirmed = "CONFIRMED"

	PaymentStatusUnpaid = "UNPAID"
	PaymentStatusPaid   = "PAID"
)

// Event is a show/performance row.
type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Venue     string    `json:"venue"`
	StartsAt  time.Time `json:"startsAt"`
	Capacity  int       `json:"capacity"`
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Ticket is an issued ticket row.
type Ticket struct {
	ID        string    `json:"id"`
	EventID   string    `json:"eventId"`
	OrderID   string    `json:"orderId,omitempty"`
	Seat      string    `json:"seat,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Order is a customer order row. Fingerprint guards the order worker's
// insert against redelivery; PaymentFingerprint does the same for the
// payment worker's mutation.
type Order struct {
	ID                 string    `json:"id"`
	CustomerID         string    `json:"customerId"`
	EventID            string    `json:"eventId,omitempty"`
	Quantity           int       `json:"quantity"`
	Amount             float64   `json:"amount"`
	Status             string    `json:"status"`
	PaymentStatus      string    `json:"paymentStatus"`
	Fingerprint        string    `json:"-"`
	PaymentFingerprint string    `json:"-"`
	ProofObjectKey     string    `json:"proofObjectKey,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}
