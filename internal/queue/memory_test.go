package queue

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// fakeClock lets tests drive lease expiry and the dedup window.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestQueue() (*MemoryQueue, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	q := NewMemoryQueue()
	q.nowFunc = clock.Now
	return q, clock
}

func TestEnqueue_DuplicateFingerprintCollapses(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	msg := Message{GroupID: "cust-1", Fingerprint: "fp-1", Body: []byte(`{"orderId":"A1","item":"X"}`)}
	if err := q.Enqueue(ctx, msg); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, msg); err != nil {
		t.Fatalf("duplicate enqueue should still ack: %v", err)
	}

	d1, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if d1 == nil {
		t.Fatal("expected one delivery")
	}
	if err := q.Ack(ctx, d1); err != nil {
		t.Fatalf("ack: %v", err)
	}

	d2, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("second dequeue: %v", err)
	}
	if d2 != nil {
		t.Fatalf("duplicate fingerprint produced a second delivery: %+v", d2)
	}
}

func TestEnqueue_SameFingerprintAfterWindowReadmits(t *testing.T) {
	q, clock := newTestQueue()
	ctx := context.Background()

	msg := Message{GroupID: "g", Fingerprint: "fp", Body: []byte("a")}
	if err := q.Enqueue(ctx, msg); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	d, _ := q.Dequeue(ctx)
	if err := q.Ack(ctx, d); err != nil {
		t.Fatalf("ack: %v", err)
	}

	clock.Advance(q.dedupWindow + time.Second)
	if err := q.Enqueue(ctx, msg); err != nil {
		t.Fatalf("re-enqueue after window: %v", err)
	}
	d2, _ := q.Dequeue(ctx)
	if d2 == nil {
		t.Fatal("fingerprint outside the window should be admitted again")
	}
}

func TestDequeue_SameGroupInSubmissionOrder(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := q.Enqueue(ctx, Message{
			GroupID:     "cust-1",
			Fingerprint: fmt.Sprintf("fp-%d", i),
			Body:        []byte(fmt.Sprintf("event-%d", i)),
		})
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	for i := 0; i < 5; i++ {
		d, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("dequeue %d: %v", i, err)
		}
		if d == nil {
			t.Fatalf("expected delivery %d, queue empty", i)
		}
		if got, want := string(d.Body), fmt.Sprintf("event-%d", i); got != want {
			t.Fatalf("out of order: got %s want %s", got, want)
		}
		if err := q.Ack(ctx, d); err != nil {
			t.Fatalf("ack %d: %v", i, err)
		}
	}
}

func TestDequeue_LeasedHeadBlocksGroupNotOthers(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	_ = q.Enqueue(ctx, Message{GroupID: "a", Fingerprint: "a-1", Body: []byte("a1")})
	_ = q.Enqueue(ctx, Message{GroupID: "a", Fingerprint: "a-2", Body: []byte("a2")})
	_ = q.Enqueue(ctx, Message{GroupID: "b", Fingerprint: "b-1", Body: []byte("b1")})

	d1, _ := q.Dequeue(ctx)
	if d1 == nil || string(d1.Body) != "a1" {
		t.Fatalf("expected a1 first, got %+v", d1)
	}

	// a2 must not be delivered while a1 is in flight, but b1 may be.
	d2, _ := q.Dequeue(ctx)
	if d2 == nil || string(d2.Body) != "b1" {
		t.Fatalf("expected b1 while group a is leased, got %+v", d2)
	}
	d3, _ := q.Dequeue(ctx)
	if d3 != nil {
		t.Fatalf("expected empty while both group heads leased, got %+v", d3)
	}

	if err := q.Ack(ctx, d1); err != nil {
		t.Fatalf("ack a1: %v", err)
	}
	d4, _ := q.Dequeue(ctx)
	if d4 == nil || string(d4.Body) != "a2" {
		t.Fatalf("expected a2 after a1 acked, got %+v", d4)
	}
}

func TestLeaseExpiry_Redelivers(t *testing.T) {
	q, clock := newTestQueue()
	ctx := context.Background()

	_ = q.Enqueue(ctx, Message{GroupID: "g", Fingerprint: "fp", Body: []byte("x")})

	d1, _ := q.Dequeue(ctx)
	if d1 == nil {
		t.Fatal("expected delivery")
	}
	if d1.ReceiveCount != 1 {
		t.Fatalf("first receive count = %d", d1.ReceiveCount)
	}

	// lease not yet expired: nothing visible
	clock.Advance(q.leaseDuration - time.Second)
	if d, _ := q.Dequeue(ctx); d != nil {
		t.Fatalf("message visible before lease expiry: %+v", d)
	}

	clock.Advance(2 * time.Second)
	d2, _ := q.Dequeue(ctx)
	if d2 == nil {
		t.Fatal("expected redelivery after lease expiry")
	}
	if d2.ReceiveCount != 2 {
		t.Fatalf("redelivery receive count = %d", d2.ReceiveCount)
	}

	// the expired receipt can no longer ack
	if err := q.Ack(ctx, d1); err == nil {
		t.Fatal("expected error acking with an expired receipt")
	}
	if err := q.Ack(ctx, d2); err != nil {
		t.Fatalf("ack with live receipt: %v", err)
	}
}

func TestNack_RedeliversImmediately(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	_ = q.Enqueue(ctx, Message{GroupID: "g", Fingerprint: "fp", Body: []byte("x")})

	d1, _ := q.Dequeue(ctx)
	if err := q.Nack(ctx, d1); err != nil {
		t.Fatalf("nack: %v", err)
	}
	d2, _ := q.Dequeue(ctx)
	if d2 == nil {
		t.Fatal("expected immediate redelivery after nack")
	}
	if d2.ReceiveCount != 2 {
		t.Fatalf("receive count after nack = %d", d2.ReceiveCount)
	}
}

func TestReceiveThreshold_MovesToDeadLetter(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	poison := Message{GroupID: "g", Fingerprint: "fp-poison", Body: []byte("bad")}
	_ = q.Enqueue(ctx, poison)
	_ = q.Enqueue(ctx, Message{GroupID: "g", Fingerprint: "fp-next", Body: []byte("good")})

	for i := 0; i < q.maxReceive; i++ {
		d, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("dequeue %d: %v", i, err)
		}
		if d == nil || string(d.Body) != "bad" {
			t.Fatalf("attempt %d expected poison message, got %+v", i, d)
		}
		if err := q.Nack(ctx, d); err != nil {
			t.Fatalf("nack %d: %v", i, err)
		}
	}

	// next dequeue moves the poison message aside and unblocks the group
	d, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue after threshold: %v", err)
	}
	if d == nil || string(d.Body) != "good" {
		t.Fatalf("expected next message after dead-letter move, got %+v", d)
	}

	dead := q.DeadLetters()
	if len(dead) != 1 {
		t.Fatalf("dead letters = %d, want 1", len(dead))
	}
	if dead[0].Fingerprint != "fp-poison" {
		t.Fatalf("dead letter fingerprint = %s", dead[0].Fingerprint)
	}
}
