package expiry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/truck-allocation/internal/repository"
)

// fakeSource is an in-memory stand-in for the holds table.
type fakeSource struct {
	mu      sync.Mutex
	pending []repository.PendingExpiry
}

func (f *fakeSource) ListActive(ctx context.Context) ([]repository.PendingExpiry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]repository.PendingExpiry, len(f.pending))
	copy(out, f.pending)
	return out, nil
}

// recorder counts expirations per hold.
type recorder struct {
	mu    sync.Mutex
	fired map[uint64]int
	done  chan uint64
}

func newRecorder() *recorder {
	return &recorder{fired: make(map[uint64]int), done: make(chan uint64, 16)}
}

func (r *recorder) expire(ctx context.Context, holdID uint64) error {
	r.mu.Lock()
	r.fired[holdID]++
	r.mu.Unlock()
	r.done <- holdID
	return nil
}

func (r *recorder) count(holdID uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fired[holdID]
}

func waitFired(t *testing.T, r *recorder, want uint64) {
	t.Helper()
	select {
	case got := <-r.done:
		if got != want {
			t.Fatalf("expected hold %d to fire, got %d", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("hold %d did not fire in time", want)
	}
}

func TestScheduleFiresAtDeadline(t *testing.T) {
	rec := newRecorder()
	s := New(&fakeSource{}, rec.expire, time.Hour)

	s.Schedule(1, time.Now().Add(30*time.Millisecond))
	waitFired(t, rec, 1)
	if got := rec.count(1); got != 1 {
		t.Fatalf("expected 1 firing, got %d", got)
	}
}

func TestCancelDisarmsTimer(t *testing.T) {
	rec := newRecorder()
	s := New(&fakeSource{}, rec.expire, time.Hour)

	s.Schedule(2, time.Now().Add(50*time.Millisecond))
	s.Cancel(2)

	time.Sleep(150 * time.Millisecond)
	if got := rec.count(2); got != 0 {
		t.Fatalf("cancelled timer fired %d times", got)
	}
}

func TestRescheduleReplacesTimer(t *testing.T) {
	rec := newRecorder()
	s := New(&fakeSource{}, rec.expire, time.Hour)

	s.Schedule(3, time.Now().Add(time.Hour))
	s.Schedule(3, time.Now().Add(30*time.Millisecond))
	waitFired(t, rec, 3)

	time.Sleep(100 * time.Millisecond)
	if got := rec.count(3); got != 1 {
		t.Fatalf("expected exactly 1 firing after reschedule, got %d", got)
	}
}

func TestRunRehydratesFromSource(t *testing.T) {
	rec := newRecorder()
	src := &fakeSource{pending: []repository.PendingExpiry{
		// Already past due: a hold whose deadline lapsed while the process
		// was down must fire immediately on startup.
		{HoldID: 4, ExpiresAt: time.Now().Add(-time.Minute)},
		{HoldID: 5, ExpiresAt: time.Now().Add(40 * time.Millisecond)},
	}}
	s := New(src, rec.expire, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	fired := map[uint64]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-rec.done:
			fired[id] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("rehydrated holds did not fire, got %v", fired)
		}
	}
	if !fired[4] || !fired[5] {
		t.Fatalf("expected holds 4 and 5 to fire, got %v", fired)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	rec := newRecorder()
	s := New(&fakeSource{}, rec.expire, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	s.Schedule(6, time.Now().Add(time.Hour))
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	s.mu.Lock()
	remaining := len(s.timers)
	s.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected all timers stopped, %d remain", remaining)
	}
}
