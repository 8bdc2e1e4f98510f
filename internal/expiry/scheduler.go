// Package expiry arms per-hold timers so that a hold's quantity returns to
// the pool promptly when its TTL lapses.  The holds table is the durable
// schedule: on startup every ACTIVE hold is re-armed from the database, and
// a periodic sweep re-arms anything a crash or missed timer left behind.
// Firing twice is harmless because the downstream expiry is a conditional
// state transition.
package expiry

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/iliyamo/truck-allocation/internal/repository"
)

// HoldSource lists the holds that still need an expiry timer.
type HoldSource interface {
	ListActive(ctx context.Context) ([]repository.PendingExpiry, error)
}

// ExpireFunc performs the actual expiry of one hold.  It must be safe to
// call for holds that already left the ACTIVE state.
type ExpireFunc func(ctx context.Context, holdID uint64) error

// expireTimeout bounds the database work of a single fired timer.
const expireTimeout = 10 * time.Second

// Scheduler keeps one in-memory timer per active hold.
type Scheduler struct {
	mu     sync.Mutex
	timers map[uint64]*time.Timer
	source HoldSource
	expire ExpireFunc
	sweep  time.Duration
}

// New builds a scheduler that reloads its timer set from source every sweep
// interval and calls expire when a timer fires.
func New(source HoldSource, expire ExpireFunc, sweep time.Duration) *Scheduler {
	return &Scheduler{
		timers: make(map[uint64]*time.Timer),
		source: source,
		expire: expire,
		sweep:  sweep,
	}
}

// Schedule arms (or re-arms) the timer for a hold.  Deadlines already in
// the past fire immediately.
func (s *Scheduler) Schedule(holdID uint64, at time.Time) {
	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[holdID]; ok {
		t.Stop()
	}
	s.timers[holdID] = time.AfterFunc(d, func() { s.fire(holdID) })
}

// Cancel disarms the timer for a hold.  Unknown IDs are a no-op.
func (s *Scheduler) Cancel(holdID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[holdID]; ok {
		t.Stop()
		delete(s.timers, holdID)
	}
}

func (s *Scheduler) fire(holdID uint64) {
	s.mu.Lock()
	delete(s.timers, holdID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), expireTimeout)
	defer cancel()
	if err := s.expire(ctx, holdID); err != nil {
		// The sweep will pick the hold up again as long as it stays ACTIVE.
		log.Printf("[expiry] hold %d: %v", holdID, err)
	}
}

// Run rehydrates the timer set from the database, then keeps it fresh with
// a periodic sweep until ctx is cancelled.  Meant to run in its own
// goroutine for the lifetime of the process.
func (s *Scheduler) Run(ctx context.Context) {
	s.rehydrate(ctx)

	ticker := time.NewTicker(s.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.stopAll()
			return
		case <-ticker.C:
			s.rehydrate(ctx)
		}
	}
}

// rehydrate arms a timer for every ACTIVE hold.  Re-arming a hold that is
// already scheduled resets its timer to the same stored deadline, so the
// sweep is idempotent.
func (s *Scheduler) rehydrate(ctx context.Context) {
	pending, err := s.source.ListActive(ctx)
	if err != nil {
		log.Printf("[expiry] list active holds: %v", err)
		return
	}
	for _, p := range pending {
		s.Schedule(p.HoldID, p.ExpiresAt)
	}
}

func (s *Scheduler) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
