// Package allocation implements the capacity engine: holds against truck
// requests, confirmation of holds into assignments, and the assignment
// delivery lifecycle.  All capacity arithmetic happens inside database
// transactions with conditional updates, so concurrent callers can never
// reserve or assign more units than a request asked for.
package allocation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/iliyamo/truck-allocation/internal/lock"
	"github.com/iliyamo/truck-allocation/internal/model"
	"github.com/iliyamo/truck-allocation/internal/queue"
	"github.com/iliyamo/truck-allocation/internal/repository"
)

// holdLockTTL bounds how long the advisory Redis lock around a request's
// capacity check may live if a release is lost.  The lock only narrows the
// race window between competing transporters; the conditional UPDATE inside
// the transaction is what actually guarantees correctness.
const holdLockTTL = 3 * time.Second

// eventTimeout bounds each fire-and-forget publish after a commit.
const eventTimeout = 5 * time.Second

// EventPublisher sends domain events to the message broker.  Publishing is
// best-effort: the engine logs failures and moves on, it never rolls back a
// committed allocation because a broker was down.
type EventPublisher interface {
	PublishAssigned(ctx context.Context, ev queue.AssignedEvent) error
	PublishTripAssigned(ctx context.Context, ev queue.TripAssignedEvent) error
	PublishStatusChanged(ctx context.Context, ev queue.StatusChangedEvent) error
}

// ExpiryScheduler arms and disarms in-memory expiry timers for holds.  The
// holds table remains the durable schedule; the scheduler is only the prompt
// delivery mechanism on a live process.
type ExpiryScheduler interface {
	Schedule(holdID uint64, at time.Time)
	Cancel(holdID uint64)
}

// Service is the allocation engine.  It owns every state transition of
// truck requests, holds and assignments.
type Service struct {
	db          *sql.DB
	requests    *repository.TruckRequestRepo
	holds       *repository.HoldRepo
	assignments *repository.AssignmentRepo
	vehicles    *repository.VehicleRepo
	drivers     *repository.DriverRepo
	locks       lock.Locker
	events      EventPublisher
	scheduler   ExpiryScheduler
}

// New builds the allocation engine over the given repositories.  events may
// be nil when no broker is configured.
func New(
	db *sql.DB,
	requests *repository.TruckRequestRepo,
	holds *repository.HoldRepo,
	assignments *repository.AssignmentRepo,
	vehicles *repository.VehicleRepo,
	drivers *repository.DriverRepo,
	locks lock.Locker,
	events EventPublisher,
) *Service {
	return &Service{
		db:          db,
		requests:    requests,
		holds:       holds,
		assignments: assignments,
		vehicles:    vehicles,
		drivers:     drivers,
		locks:       locks,
		events:      events,
	}
}

// AttachScheduler wires the expiry scheduler.  Called once at startup; the
// scheduler needs the service's ExpireHold and the service needs the
// scheduler's timers, so the loop is closed here rather than in New.
func (s *Service) AttachScheduler(sch ExpiryScheduler) { s.scheduler = sch }

// HoldResult is what a successful CreateHold returns to the caller.
type HoldResult struct {
	HoldID    uint64
	Quantity  uint32
	ExpiresAt time.Time
}

func holdLockKey(requestID uint64) string {
	return fmt.Sprintf("hold:request:%d", requestID)
}

// CreateHold reserves quantity units of a truck request for the transporter
// until ttl elapses.  The check-and-reserve is a single conditional UPDATE,
// so two transporters racing for the last units can never both succeed.  On
// insufficient capacity the caller learns how much is still available.
func (s *Service) CreateHold(ctx context.Context, requestID, transporterID uint64, quantity uint32, ttl time.Duration) (*HoldResult, error) {
	if quantity < 1 {
		return nil, Validation("quantity must be at least 1")
	}
	if ttl <= 0 {
		return nil, Validation("ttl must be positive")
	}

	// Advisory lock to keep concurrent holds on a hot request from piling
	// up on the same row lock.  Correctness does not depend on it.
	if ok, err := s.locks.TryAcquire(ctx, holdLockKey(requestID), holdLockTTL); err == nil && ok {
		defer s.locks.Release(context.Background(), holdLockKey(requestID))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	req, err := s.requests.GetTx(ctx, tx, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if req.Status != model.RequestOpen {
		return nil, ErrInvalidState
	}

	ok, err := s.requests.ReserveTx(ctx, tx, requestID, quantity)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Re-read inside the same tx so the reported availability is the
		// value the reservation actually lost to.
		fresh, rerr := s.requests.GetTx(ctx, tx, requestID)
		if rerr != nil {
			return nil, &CapacityError{Available: 0}
		}
		return nil, &CapacityError{Available: fresh.Available()}
	}

	h := &model.Hold{
		TruckRequestID: requestID,
		TransporterID:  transporterID,
		VehicleType:    req.VehicleType,
		VehicleSubtype: req.VehicleSubtype,
		Quantity:       quantity,
		Status:         model.HoldActive,
		ExpiresAt:      time.Now().UTC().Add(ttl),
	}
	if err := s.holds.CreateTx(ctx, tx, h); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	committed = true

	if s.scheduler != nil {
		s.scheduler.Schedule(h.ID, h.ExpiresAt)
	}
	return &HoldResult{HoldID: h.ID, Quantity: h.Quantity, ExpiresAt: h.ExpiresAt}, nil
}

// ReleaseHold returns a hold's quantity to the pool.  Releasing a hold that
// already left the ACTIVE state is a successful no-op, so clients and retry
// loops can call it blindly.
func (s *Service) ReleaseHold(ctx context.Context, holdID, transporterID uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	h, err := s.holds.GetForUpdateTx(ctx, tx, holdID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if h.TransporterID != transporterID {
		// Masked so callers cannot probe which hold IDs exist.
		return ErrNotFound
	}
	if h.Status != model.HoldActive {
		return nil
	}

	if s.scheduler != nil {
		s.scheduler.Cancel(holdID)
	}
	ok, err := s.holds.TransitionTx(ctx, tx, holdID, model.HoldActive, model.HoldReleased)
	if err != nil {
		return err
	}
	if ok {
		if err := s.requests.ReleaseHeldTx(ctx, tx, h.TruckRequestID, h.Quantity); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// ExpireHold is called by the expiry scheduler when a hold's TTL lapses.
// It is the scheduler's counterpart of ReleaseHold: same capacity return,
// no ownership check, and a silent no-op when the hold was confirmed or
// released in the meantime (a fired timer may always lose that race).
func (s *Service) ExpireHold(ctx context.Context, holdID uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	h, err := s.holds.GetForUpdateTx(ctx, tx, holdID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if h.Status != model.HoldActive {
		return nil
	}

	ok, err := s.holds.TransitionTx(ctx, tx, holdID, model.HoldActive, model.HoldExpired)
	if err != nil {
		return err
	}
	if ok {
		if err := s.requests.ReleaseHeldTx(ctx, tx, h.TruckRequestID, h.Quantity); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	log.Printf("[allocation] hold %d expired, %d unit(s) returned to request %d", holdID, h.Quantity, h.TruckRequestID)
	return nil
}

// emitStatusChanged publishes an assignment status event after a commit.
// Runs in its own goroutine; failures are logged and dropped.
func (s *Service) emitStatusChanged(a *model.Assignment, status model.AssignmentStatus) {
	if s.events == nil {
		return
	}
	ev := queue.StatusChangedEvent{
		AssignmentID:   a.ID,
		TripID:         a.TripID,
		TruckRequestID: a.TruckRequestID,
		Status:         string(status),
		VehicleNumber:  a.VehicleNumber,
		ChangedAt:      time.Now().UTC().Format(time.RFC3339),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		if err := s.events.PublishStatusChanged(ctx, ev); err != nil {
			log.Printf("[allocation] publish status change for assignment %d: %v", a.ID, err)
		}
	}()
}
