package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5"

	"github.com/oriys/quartz/internal/logging"
)

// Pool is a fixed set of long-lived Postgres connections, each guarded by
// its own mutex. Acquisition is round-robin: a monotonically increasing
// counter selects slot counter mod N and the caller blocks on that slot's
// lock until it frees, even if another slot is idle. Selection ignores
// availability, so effective concurrency tops out at N and a request can
// wait behind a busy slot while an idle one exists.
type Pool struct {
	slots []*slot
	next  atomic.Uint64
}

type slot struct {
	mu   sync.Mutex
	conn *pgx.Conn
}

// NewPool opens size connections to dsn eagerly. Initialization is
// all-or-nothing: if any connection fails to open, every connection opened
// so far is closed and the whole pool reports failure.
func NewPool(ctx context.Context, dsn string, size int) (*Pool, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store: dsn is required")
	}
	if size <= 0 {
		return nil, fmt.Errorf("store: pool size must be positive, got %d", size)
	}

	conns := make([]*pgx.Conn, 0, size)
	for i := 0; i < size; i++ {
		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			for _, c := range conns {
				_ = c.Close(context.Background())
			}
			return nil, fmt.Errorf("store: open connection %d/%d: %w", i+1, size, err)
		}
		conns = append(conns, conn)
	}
	logging.Op().Info("store pool initialized", "size", size)
	return newPool(conns), nil
}

func newPool(conns []*pgx.Conn) *Pool {
	slots := make([]*slot, len(conns))
	for i, conn := range conns {
		slots[i] = &slot{conn: conn}
	}
	return &Pool{slots: slots}
}

// Size returns the fixed number of connections in the pool.
func (p *Pool) Size() int {
	return len(p.slots)
}

// acquire selects the next slot round-robin and locks it. The returned
// slot must be released exactly once. The slot's lock stays held across
// the caller's full store operation, network round trip included.
func (p *Pool) acquire() *slot {
	idx := (p.next.Add(1) - 1) % uint64(len(p.slots))
	s := p.slots[idx]
	s.mu.Lock()
	return s
}

func (s *slot) release() {
	s.mu.Unlock()
}

// Close waits for in-flight operations to finish slot by slot and closes
// every connection.
func (p *Pool) Close(ctx context.Context) error {
	var errs []error
	for i, s := range p.slots {
		s.mu.Lock()
		if s.conn != nil {
			if err := s.conn.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("store: close connection %d: %w", i, err))
			}
			s.conn = nil
		}
		s.mu.Unlock()
	}
	return errors.Join(errs...)
}
