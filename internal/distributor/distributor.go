// Package distributor is a bounded single-producer, multi-subscriber
// broadcast channel. The producer never blocks: when the ring is full the
// oldest entry is overwritten, and subscribers that had not read it get a
// lag error on their next Recv before resuming from the oldest entry still
// held.
package distributor

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultCapacity is the ring size used when none is configured.
const DefaultCapacity = 16

var (
	// ErrLagged is matched by *LagError.
	ErrLagged = errors.New("distributor: subscriber lagged")
	// ErrClosed is returned by Recv after the sentinel has been consumed.
	ErrClosed = errors.New("distributor: closed")
)

// LagError reports how many entries a subscriber missed.
type LagError struct {
	Skipped uint64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("distributor: subscriber lagged, skipped %d frames", e.Skipped)
}

func (e *LagError) Is(target error) bool { return target == ErrLagged }

// Distributor fans payloads out to subscriptions. Payloads are shared, not
// copied: publishers must not mutate a slice after publishing it.
type Distributor struct {
	mu          sync.Mutex
	ring        [][]byte
	head        uint64 // sequence number of the next publish
	notify      chan struct{}
	closed      bool
	subscribers int
}

// New creates a distributor holding at most capacity unread entries.
func New(capacity int) *Distributor {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Distributor{
		ring:   make([][]byte, capacity),
		notify: make(chan struct{}),
	}
}

// Publish appends payload and wakes waiting subscribers. It returns the
// number of subscribers at the time of publishing. Publishing after Close
// is a no-op.
func (d *Distributor) Publish(payload []byte) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0
	}
	d.publishLocked(payload)
	return d.subscribers
}

func (d *Distributor) publishLocked(payload []byte) {
	d.ring[d.head%uint64(len(d.ring))] = payload
	d.head++
	close(d.notify)
	d.notify = make(chan struct{})
}

// Close publishes the zero-length sentinel and stops accepting payloads.
// Every subscriber observes the sentinel as its last entry, then ErrClosed.
func (d *Distributor) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.publishLocked([]byte{})
	d.closed = true
}

// Subscribers returns the number of open subscriptions.
func (d *Distributor) Subscribers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.subscribers
}

// Subscribe returns a subscription that receives entries published from
// now on.
func (d *Distributor) Subscribe() *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers++
	return &Subscription{d: d, next: d.head}
}

// Subscription is one consumer's cursor into the ring. It is not safe for
// concurrent use by multiple goroutines.
type Subscription struct {
	d      *Distributor
	next   uint64
	closed bool
}

// Recv returns the next payload. A zero-length payload is the end-of-stream
// sentinel. If entries were overwritten before being read, Recv returns a
// *LagError and moves the cursor to the oldest retained entry.
func (s *Subscription) Recv(ctx context.Context) ([]byte, error) {
	d := s.d
	for {
		d.mu.Lock()
		size := uint64(len(d.ring))
		var oldest uint64
		if d.head > size {
			oldest = d.head - size
		}
		if s.next < oldest {
			skipped := oldest - s.next
			s.next = oldest
			d.mu.Unlock()
			return nil, &LagError{Skipped: skipped}
		}
		if s.next < d.head {
			payload := d.ring[s.next%size]
			s.next++
			d.mu.Unlock()
			return payload, nil
		}
		if d.closed {
			d.mu.Unlock()
			return nil, ErrClosed
		}
		wait := d.notify
		d.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close releases the subscription.
func (s *Subscription) Close() {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.d.subscribers--
}
