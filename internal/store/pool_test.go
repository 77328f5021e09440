package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
)

// bare builds a pool whose slot mechanics can be exercised without a
// database; acquire/release never touch the connection handle.
func bare(size int) *Pool {
	return newPool(make([]*pgx.Conn, size))
}

func TestPool_RoundRobinOrder(t *testing.T) {
	p := bare(3)

	for round := 0; round < 2; round++ {
		for i := 0; i < 3; i++ {
			s := p.acquire()
			if s != p.slots[i] {
				t.Fatalf("round %d: expected slot %d, got a different slot", round, i)
			}
			s.release()
		}
	}
}

func TestPool_AcquireBlocksOnSelectedSlot(t *testing.T) {
	p := bare(2)

	s0 := p.acquire() // slot 0
	s1 := p.acquire() // slot 1

	// Third acquisition targets slot 0 again and must block while it is held.
	acquired := make(chan *slot)
	go func() {
		acquired <- p.acquire()
	}()

	select {
	case <-acquired:
		t.Fatalf("acquire returned while all slots were held")
	case <-time.After(50 * time.Millisecond):
	}

	// Freeing the non-selected slot must not unblock the waiter: round-robin
	// selection ignores availability.
	s1.release()
	select {
	case <-acquired:
		t.Fatalf("acquire unblocked by a slot it did not select")
	case <-time.After(50 * time.Millisecond):
	}

	s0.release()
	select {
	case s := <-acquired:
		if s != p.slots[0] {
			t.Fatalf("waiter acquired the wrong slot")
		}
		s.release()
	case <-time.After(time.Second):
		t.Fatalf("acquire did not unblock after its slot freed")
	}
}

func TestPool_SizeAndClose(t *testing.T) {
	p := bare(4)
	if p.Size() != 4 {
		t.Fatalf("expected size 4, got %d", p.Size())
	}
	// No live connections; Close must still complete cleanly.
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestNewPool_RejectsBadArguments(t *testing.T) {
	ctx := context.Background()

	if _, err := NewPool(ctx, "", 2); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
	if _, err := NewPool(ctx, "postgres://localhost/db", 0); err == nil {
		t.Fatalf("expected error for zero pool size")
	}
	if _, err := NewPool(ctx, "postgres://localhost/db", -3); err == nil {
		t.Fatalf("expected error for negative pool size")
	}
	if _, err := NewPool(ctx, "://not-a-dsn", 1); err == nil {
		t.Fatalf("expected error for malformed dsn")
	}
}
