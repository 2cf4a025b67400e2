package validation

import "time"

// Item represents a single order line item.
type Item struct {
	SKU      string  `json:"sku" validate:"required"`            // stock keeping unit
	Quantity int     `json:"quantity" validate:"required,min=1"` // must be >= 1
	Price    float64 `json:"price" validate:"required,gt=0"`     // price per unit
}

// CreateOrderRequest is the payload for POST /order. The client supplies
// the order id; identical resubmissions dedup on content in the queue.
type CreateOrderRequest struct {
	OrderID      string  `json:"orderId" validate:"required"`
	CustomerID   string  `json:"customerId" validate:"required"`       // business id for customer
	EventID      string  `json:"eventId,omitempty"`                    // optional show reference
	Items        []Item  `json:"items" validate:"required,min=1,dive"` // at least one item
	Amount       float64 `json:"amount" validate:"required,gt=0"`      // total amount client claims
	ConnectionID string  `json:"connectionId,omitempty"`               // push target for the confirmation
}

// CreateEventRequest is the payload for POST /event and PUT /event/{id}.
type CreateEventRequest struct {
	Name     string    `json:"name" validate:"required"`
	Venue    string    `json:"venue" validate:"required"`
	StartsAt time.Time `json:"startsAt" validate:"required"`
	Capacity int       `json:"capacity" validate:"required,min=1"`
	Price    float64   `json:"price" validate:"required,gt=0"`
}

// CreateTicketRequest is the payload for POST /ticket.
type CreateTicketRequest struct {
	EventID string `json:"eventId" validate:"required"`
	OrderID string `json:"orderId,omitempty"`
	Seat    string `json:"seat,omitempty"`
}

// TokenRequest is the payload for POST /token.
type TokenRequest struct {
	DeviceID string `json:"deviceId" validate:"required"`
}
