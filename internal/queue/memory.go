package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Defaults mirror the production queue configuration: 30s visibility,
// content dedup over a trailing window, three receives before dead-letter.
const (
	DefaultLeaseDuration = 30 * time.Second
	DefaultDedupWindow   = 5 * time.Minute
	DefaultMaxReceive    = 3
)

type memMessage struct {
	msg          Message
	receiveCount int
	leased       bool
	leaseExpiry  time.Time
	receipt      string
}

// MemoryQueue implements the full Queue semantics in process: per-group
// FIFO with head-of-line lease exclusivity, fingerprint dedup over a
// trailing window, lease expiry with redelivery, and a dead-letter sibling
// once the receive count passes the threshold. It backs RUN_LOCAL worker
// loops and the pipeline tests.
type MemoryQueue struct {
	mu sync.Mutex

	nowFunc       func() time.Time
	leaseDuration time.Duration
	dedupWindow   time.Duration
	maxReceive    int

	groups     map[string][]*memMessage
	groupOrder []string
	dedup      map[string]time.Time
	receipts   map[string]*memMessage
	dead       []Message
	seq        int
}

// NewMemoryQueue returns a queue with the default lease, dedup window and
// receive-count threshold.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		nowFunc:       time.Now,
		leaseDuration: DefaultLeaseDuration,
		dedupWindow:   DefaultDedupWindow,
		maxReceive:    DefaultMaxReceive,
		groups:        map[string][]*memMessage{},
		dedup:         map[string]time.Time{},
		receipts:      map[string]*memMessage{},
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.nowFunc()
	q.pruneDedup(now)

	if _, seen := q.dedup[msg.Fingerprint]; seen {
		// duplicate admission inside the window: no-op, still an ack
		return nil
	}
	q.dedup[msg.Fingerprint] = now

	if _, ok := q.groups[msg.GroupID]; !ok {
		q.groupOrder = append(q.groupOrder, msg.GroupID)
	}
	q.groups[msg.GroupID] = append(q.groups[msg.GroupID], &memMessage{msg: msg})
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.nowFunc()
	q.reapExpiredLeases(now)

	for _, g := range q.groupOrder {
		for len(q.groups[g]) > 0 {
			head := q.groups[g][0]
			if head.leased {
				// one in-flight lease blocks the whole group
				break
			}
			if head.receiveCount >= q.maxReceive {
				// poison: consumed its deliveries, move to the dead-letter
				// sibling instead of delivering again
				q.dead = append(q.dead, head.msg)
				q.groups[g] = q.groups[g][1:]
				continue
			}

			head.receiveCount++
			head.leased = true
			head.leaseExpiry = now.Add(q.leaseDuration)
			q.seq++
			head.receipt = fmt.Sprintf("r-%d", q.seq)
			q.receipts[head.receipt] = head

			d := &Delivery{
				Message:      head.msg,
				ReceiveCount: head.receiveCount,
				receipt:      head.receipt,
			}
			return d, nil
		}
	}
	return nil, nil
}

func (q *MemoryQueue) Ack(ctx context.Context, d *Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	m, ok := q.receipts[d.receipt]
	if !ok {
		return fmt.Errorf("unknown or expired receipt %q", d.receipt)
	}
	delete(q.receipts, d.receipt)

	g := q.groups[m.msg.GroupID]
	for i, cand := range g {
		if cand == m {
			q.groups[m.msg.GroupID] = append(g[:i], g[i+1:]...)
			break
		}
	}
	return nil
}

func (q *MemoryQueue) Nack(ctx context.Context, d *Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	m, ok := q.receipts[d.receipt]
	if !ok {
		return fmt.Errorf("unknown or expired receipt %q", d.receipt)
	}
	delete(q.receipts, d.receipt)
	m.leased = false
	return nil
}

// DeadLetters returns a snapshot of the dead-letter sibling. Dead letters
// are never replayed automatically; this is the manual inspection path.
func (q *MemoryQueue) DeadLetters() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Message, len(q.dead))
	copy(out, q.dead)
	return out
}

// reapExpiredLeases makes timed-out in-flight messages visible again. The
// message keeps its place at the head of its group.
func (q *MemoryQueue) reapExpiredLeases(now time.Time) {
	for receipt, m := range q.receipts {
		if m.leased && !m.leaseExpiry.After(now) {
			m.leased = false
			delete(q.receipts, receipt)
		}
	}
}

func (q *MemoryQueue) pruneDedup(now time.Time) {
	for fp, at := range q.dedup {
		if now.Sub(at) > q.dedupWindow {
			delete(q.dedup, fp)
		}
	}
}
