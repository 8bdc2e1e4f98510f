package allocation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/truck-allocation/internal/model"
)

// AcceptAssignment moves a PENDING assignment to DRIVER_ACCEPTED for the
// driver it was assigned to.  Acceptance re-checks that the driver is not
// already on another active trip: assignments created before the driver
// accepted a competing one are rejected here rather than at confirm time.
func (s *Service) AcceptAssignment(ctx context.Context, assignmentID, driverID uint64) (*model.Assignment, error) {
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

	a, err := s.assignments.GetForUpdateTx(ctx, tx, assignmentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if a.DriverID != driverID {
		return nil, ErrNotFound
	}
	if a.Status != model.AssignmentPending {
		return nil, ErrInvalidState
	}

	busy, err := s.assignments.DriverBusyTx(ctx, tx, driverID, a.ID)
	if err != nil {
		return nil, err
	}
	if busy {
		return nil, ErrDriverBusy
	}

	ok, err := s.assignments.UpdateStatusTx(ctx, tx, a.ID, model.AssignmentPending, model.AssignmentDriverAccepted)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidState
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	committed = true

	a.Status = model.AssignmentDriverAccepted
	s.emitStatusChanged(a, a.Status)
	return a, nil
}

// UpdateAssignmentStatus advances an accepted assignment one step along the
// delivery lifecycle.  Only the assigned driver may call it, stages cannot
// be skipped, and acceptance must go through AcceptAssignment so its busy
// re-check cannot be bypassed.
func (s *Service) UpdateAssignmentStatus(ctx context.Context, assignmentID, driverID uint64, next model.AssignmentStatus) (*model.Assignment, error) {
	switch next {
	case model.AssignmentEnRoutePickup, model.AssignmentAtPickup, model.AssignmentInTransit, model.AssignmentCompleted:
	default:
		return nil, Validation("status must be one of EN_ROUTE_PICKUP, AT_PICKUP, IN_TRANSIT, COMPLETED")
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

	a, err := s.assignments.GetForUpdateTx(ctx, tx, assignmentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if a.DriverID != driverID {
		return nil, ErrNotFound
	}
	if !model.CanAdvance(a.Status, next) {
		return nil, ErrInvalidState
	}

	ok, err := s.assignments.UpdateStatusTx(ctx, tx, a.ID, a.Status, next)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidState
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	committed = true

	a.Status = next
	s.emitStatusChanged(a, next)
	return a, nil
}

// CancelAssignment cancels a non-terminal assignment and returns its unit
// of capacity to the truck request.  Either the owning transporter or the
// assigned driver may cancel; anyone else sees not-found.  Pass zero for
// the role the caller does not hold.
func (s *Service) CancelAssignment(ctx context.Context, assignmentID, transporterID, driverID uint64) (*model.Assignment, error) {
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

	a, err := s.assignments.GetForUpdateTx(ctx, tx, assignmentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	owns := transporterID != 0 && a.TransporterID == transporterID
	drives := driverID != 0 && a.DriverID == driverID
	if !owns && !drives {
		return nil, ErrNotFound
	}
	if a.Status.IsTerminal() {
		return nil, ErrInvalidState
	}

	ok, err := s.assignments.UpdateStatusTx(ctx, tx, a.ID, a.Status, model.AssignmentCancelled)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidState
	}
	if err := s.requests.ReleaseAssignedTx(ctx, tx, a.TruckRequestID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	committed = true

	a.Status = model.AssignmentCancelled
	s.emitStatusChanged(a, a.Status)
	return a, nil
}
