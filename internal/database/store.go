package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// ErrFingerprintMismatch is returned when an order id already exists with
// different content. That is a conflicting resubmission, not a redelivery,
// and redelivering it can never succeed.
var ErrFingerprintMismatch = errors.New("order exists with different fingerprint")

// Store wraps the Postgres handle with the domain operations the handlers
// and workers need. Worker-facing mutations are idempotent with respect to
// their fingerprint so queue redelivery is safe.
type Store struct {
	db      *sql.DB
	nowFunc func() time.Time
}

// NewStore returns a store over db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, nowFunc: time.Now}
}

// --- events ---

func (s *Store) CreateEvent(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, name, venue, starts_at, capacity, price) VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.Name, e.Venue, e.StartsAt, e.Capacity, e.Price)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (*Event, error) {
	var e Event
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, venue, starts_at, capacity, price, created_at, updated_at FROM events WHERE id = $1`, id).
		Scan(&e.ID, &e.Name, &e.Venue, &e.StartsAt, &e.Capacity, &e.Price, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select event: %w", err)
	}
	return &e, nil
}

func (s *Store) ListEvents(ctx context.Context) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, venue, starts_at, capacity, price, created_at, updated_at FROM events ORDER BY starts_at`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Name, &e.Venue, &e.StartsAt, &e.Capacity, &e.Price, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) UpdateEvent(ctx context.Context, e Event) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET name = $2, venue = $3, starts_at = $4, capacity = $5, price = $6, updated_at = $7 WHERE id = $1`,
		e.ID, e.Name, e.Venue, e.StartsAt, e.Capacity, e.Price, s.nowFunc())
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return requireRow(res)
}

func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return requireRow(res)
}

// --- tickets ---

func (s *Store) CreateTicket(ctx context.Context, t Ticket) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tickets (id, event_id, order_id, seat) VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))`,
		t.ID, t.EventID, t.OrderID, t.Seat)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

func (s *Store) DeleteTicket(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tickets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}
	return requireRow(res)
}

// --- orders ---

// UpsertOrder inserts the order row for a consumed order event. A conflict
// on id with the same fingerprint means the event was already processed
// (queue redelivery) and is reported as applied=false. A conflict with a
// different fingerprint is a conflicting resubmission and surfaces as
// ErrFingerprintMismatch.
func (s *Store) UpsertOrder(ctx context.Context, o Order) (applied bool, err error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (id, customer_id, event_id, quantity, amount, status, fingerprint)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		o.ID, o.CustomerID, o.EventID, o.Quantity, o.Amount, OrderStatusConfirmed, o.Fingerprint)
	if err != nil {
		return false, fmt.Errorf("upsert order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	var existing string
	err = s.db.QueryRowContext(ctx,
		`SELECT fingerprint FROM orders WHERE id = $1`, o.ID).Scan(&existing)
	if err != nil {
		return false, fmt.Errorf("select order fingerprint: %w", err)
	}
	if existing != o.Fingerprint {
		return false, fmt.Errorf("order %s: %w", o.ID, ErrFingerprintMismatch)
	}
	return false, nil
}

// MarkOrderPaid records the payment mutation. The payment_fingerprint
// guard makes redelivered payment events no-ops: a second call with the
// same fingerprint reports applied=false. A missing order row returns
// ErrNotFound so the caller can nack and wait for the order event to land
// (the order and payment queues race, and the payment can arrive first).
func (s *Store) MarkOrderPaid(ctx context.Context, orderID, proofObjectKey, paymentFingerprint string) (applied bool, err error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders
		 SET payment_status = $2, payment_fingerprint = $3, proof_object_key = $4, updated_at = $5
		 WHERE id = $1 AND (payment_fingerprint IS NULL OR payment_fingerprint <> $3)`,
		orderID, PaymentStatusPaid, paymentFingerprint, proofObjectKey, s.nowFunc())
	if err != nil {
		return false, fmt.Errorf("mark order paid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	// zero rows is ambiguous: already-paid guard, or no such order
	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check order exists: %w", err)
	}
	if !exists {
		return false, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return false, nil
}

// ListOrders returns orders, optionally filtered by customer.
func (s *Store) ListOrders(ctx context.Context, customerID string) ([]Order, error) {
	query := `SELECT id, customer_id, COALESCE(event_id, ''), quantity, amount, status, payment_status,
	                 COALESCE(proof_object_key, ''), created_at, updated_at
	          FROM orders`
	args := []any{}
	if customerID != "" {
		query += ` WHERE customer_id = $1`
		args = append(args, customerID)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.EventID, &o.Quantity, &o.Amount, &o.Status,
			&o.PaymentStatus, &o.ProofObjectKey, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
