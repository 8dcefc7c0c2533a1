package distributor

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"
)

func seqPayload(i uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, i)
	return b
}

func TestPublishWithoutSubscribers(t *testing.T) {
	d := New(4)
	for i := uint64(0); i < 10_000; i++ {
		if n := d.Publish(seqPayload(i)); n != 0 {
			t.Fatalf("Publish reported %d subscribers", n)
		}
	}
	if len(d.ring) != 4 {
		t.Errorf("ring grew to %d entries", len(d.ring))
	}
}

func TestSentinelIsLast(t *testing.T) {
	d := New(8)
	sub := d.Subscribe()
	defer sub.Close()

	d.Publish([]byte("A"))
	d.Publish([]byte("B"))
	d.Close()
	d.Publish([]byte("C"))

	ctx := context.Background()
	for _, want := range []string{"A", "B"} {
		got, err := sub.Recv(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != want {
			t.Fatalf("Recv = %q, want %q", got, want)
		}
	}
	got, err := sub.Recv(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("Recv = %q, want sentinel", got)
	}
	if _, err := sub.Recv(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Recv after sentinel = %v, want ErrClosed", err)
	}
}

func TestSlowSubscriberLags(t *testing.T) {
	d := New(4)
	sub := d.Subscribe()
	defer sub.Close()

	for i := uint64(0); i < 10; i++ {
		d.Publish(seqPayload(i))
	}

	_, err := sub.Recv(context.Background())
	var lag *LagError
	if !errors.As(err, &lag) {
		t.Fatalf("Recv = %v, want *LagError", err)
	}
	if !errors.Is(err, ErrLagged) {
		t.Error("LagError does not match ErrLagged")
	}
	if lag.Skipped != 6 {
		t.Errorf("Skipped = %d, want 6", lag.Skipped)
	}

	for want := uint64(6); want < 10; want++ {
		got, err := sub.Recv(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if seq := binary.BigEndian.Uint64(got); seq != want {
			t.Fatalf("Recv seq = %d, want %d", seq, want)
		}
	}
}

func TestSubscribeSeesOnlyFuture(t *testing.T) {
	d := New(4)
	d.Publish([]byte("old"))
	sub := d.Subscribe()
	defer sub.Close()
	d.Publish([]byte("new"))

	got, err := sub.Recv(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new" {
		t.Errorf("Recv = %q, want new", got)
	}
}

func TestRecvHonorsContext(t *testing.T) {
	d := New(4)
	sub := d.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := sub.Recv(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Recv = %v, want deadline exceeded", err)
	}
}

func TestSubscriberCount(t *testing.T) {
	d := New(4)
	a := d.Subscribe()
	b := d.Subscribe()
	if n := d.Subscribers(); n != 2 {
		t.Fatalf("Subscribers() = %d, want 2", n)
	}
	a.Close()
	a.Close()
	if n := d.Publish(nil); n != 1 {
		t.Errorf("Publish reported %d subscribers, want 1", n)
	}
	b.Close()
}

// Concurrent readers must see strictly increasing sequence numbers, with
// gaps allowed, and must never block the publisher.
func TestConcurrentOrdering(t *testing.T) {
	d := New(8)
	const total = 2000
	const readers = 4

	var wg sync.WaitGroup
	errs := make(chan error, readers)
	for r := 0; r < readers; r++ {
		sub := d.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sub.Close()
			var last uint64
			seen := false
			for {
				got, err := sub.Recv(context.Background())
				if errors.Is(err, ErrLagged) {
					continue
				}
				if err != nil {
					errs <- err
					return
				}
				if len(got) == 0 {
					return
				}
				seq := binary.BigEndian.Uint64(got)
				if seen && seq <= last {
					errs <- errors.New("out of order delivery")
					return
				}
				last, seen = seq, true
			}
		}()
	}

	for i := uint64(0); i < total; i++ {
		d.Publish(seqPayload(i))
	}
	d.Close()
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
