package allocation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/truck-allocation/internal/model"
	"github.com/iliyamo/truck-allocation/internal/queue"
	"github.com/iliyamo/truck-allocation/internal/utils"
)

// ConfirmHold converts an active hold into concrete assignments, one per
// (vehicle, driver) pairing.  The batch is all-or-nothing: every pairing is
// validated and locked inside one transaction, and if any of them fails the
// whole transaction rolls back and the hold stays active so the transporter
// can swap out only the failing resources.  On success the hold flips to
// CONFIRMED, the request's held quantity becomes assigned quantity, and the
// assignment and trip events are published after the commit.
func (s *Service) ConfirmHold(ctx context.Context, holdID, transporterID uint64, pairs []Pairing) ([]*model.Assignment, error) {
	if len(pairs) == 0 {
		return nil, Validation("assignments list must not be empty")
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

	h, err := s.holds.GetForUpdateTx(ctx, tx, holdID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if h.TransporterID != transporterID {
		return nil, ErrNotFound
	}
	if h.Status != model.HoldActive {
		return nil, ErrInvalidState
	}
	if !time.Now().UTC().Before(h.ExpiresAt) {
		// Past the deadline but the timer has not fired yet.  Treat it the
		// same as an already-expired hold rather than racing the scheduler.
		return nil, ErrInvalidState
	}
	if verr := ValidatePairings(h.Quantity, pairs); verr != nil {
		return nil, verr
	}

	req, err := s.requests.GetTx(ctx, tx, h.TruckRequestID)
	if err != nil {
		return nil, err
	}
	if req.Status == model.RequestCancelled {
		// The order was cancelled in the window between hold creation and
		// this confirm.  The hold's units were already returned by the
		// cancel path, so confirming would resurrect dead capacity.
		return nil, ErrInvalidState
	}

	recs, failures, err := s.lockAndCheckPairings(ctx, tx, h, transporterID, pairs)
	if err != nil {
		return nil, lockConflict(err)
	}
	if len(failures) > 0 {
		return nil, &BatchError{Failures: failures}
	}

	if err := s.assignments.CreateBatchTx(ctx, tx, recs); err != nil {
		return nil, lockConflict(err)
	}
	ok, err := s.holds.TransitionTx(ctx, tx, holdID, model.HoldActive, model.HoldConfirmed)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidState
	}
	ok, err = s.requests.ConvertHeldTx(ctx, tx, h.TruckRequestID, h.Quantity)
	if err != nil {
		return nil, err
	}
	if !ok {
		// The conditional UPDATE re-checks that the request is not
		// CANCELLED and still carries the held units; losing either race
		// means the hold can no longer be converted.
		return nil, ErrInvalidState
	}

	// Disarm before the commit so the timer cannot fire against a hold
	// that is about to be confirmed.
	if s.scheduler != nil {
		s.scheduler.Cancel(holdID)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	committed = true

	s.emitConfirmed(req, recs)
	return recs, nil
}

// lockAndCheckPairings locks and validates the batch in two strictly
// ordered phases: every vehicle row in ascending vehicle ID order, then
// every driver row in ascending driver ID order.  Two confirms touching
// overlapping resources therefore acquire their row locks in the same
// global order and block instead of deadlocking; interleaving the driver
// lock of one pairing between the vehicle locks of the next would reopen
// that window.  Busy checks and record building run only after all rows
// are held.  Validation failures come back per pairing so the caller can
// report the whole batch; infrastructure errors abort the confirm.
func (s *Service) lockAndCheckPairings(ctx context.Context, tx *sql.Tx, h *model.Hold, transporterID uint64, pairs []Pairing) ([]*model.Assignment, []PairingFailure, error) {
	byVehicle := make([]Pairing, len(pairs))
	copy(byVehicle, pairs)
	sort.Slice(byVehicle, func(i, j int) bool { return byVehicle[i].VehicleID < byVehicle[j].VehicleID })
	byDriver := make([]Pairing, len(pairs))
	copy(byDriver, pairs)
	sort.Slice(byDriver, func(i, j int) bool { return byDriver[i].DriverID < byDriver[j].DriverID })

	// ValidatePairings guarantees unique vehicle and driver IDs, so each
	// map is keyed per pairing.
	vehicles := make(map[uint64]*model.Vehicle, len(pairs))
	drivers := make(map[uint64]*model.Driver, len(pairs))
	vehicleFail := make(map[uint64]Code)
	driverFail := make(map[uint64]Code)

	for _, p := range byVehicle {
		v, err := s.vehicles.GetForUpdateTx(ctx, tx, p.VehicleID)
		if errors.Is(err, sql.ErrNoRows) {
			vehicleFail[p.VehicleID] = CodeNotFound
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		switch {
		case v.TransporterID != transporterID:
			vehicleFail[p.VehicleID] = CodeNotFound
		case !v.IsActive:
			vehicleFail[p.VehicleID] = CodeInvalidState
		case v.VehicleType != h.VehicleType:
			vehicleFail[p.VehicleID] = CodeValidation
		case h.VehicleSubtype != "" && v.VehicleSubtype != h.VehicleSubtype:
			vehicleFail[p.VehicleID] = CodeValidation
		default:
			vehicles[p.VehicleID] = v
		}
	}
	for _, p := range byDriver {
		d, err := s.drivers.GetForUpdateTx(ctx, tx, p.DriverID)
		if errors.Is(err, sql.ErrNoRows) {
			driverFail[p.DriverID] = CodeNotFound
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		switch {
		case d.TransporterID != transporterID:
			driverFail[p.DriverID] = CodeNotFound
		case !d.IsActive:
			driverFail[p.DriverID] = CodeInvalidState
		default:
			drivers[p.DriverID] = d
		}
	}

	var failures []PairingFailure
	var recs []*model.Assignment
	for _, p := range byVehicle {
		if reason, bad := vehicleFail[p.VehicleID]; bad {
			failures = append(failures, PairingFailure{VehicleID: p.VehicleID, DriverID: p.DriverID, Reason: reason})
			continue
		}
		if reason, bad := driverFail[p.DriverID]; bad {
			failures = append(failures, PairingFailure{VehicleID: p.VehicleID, DriverID: p.DriverID, Reason: reason})
			continue
		}
		busy, err := s.assignments.VehicleBusyTx(ctx, tx, p.VehicleID)
		if err != nil {
			return nil, nil, err
		}
		if !busy {
			busy, err = s.assignments.DriverBusyTx(ctx, tx, p.DriverID, 0)
			if err != nil {
				return nil, nil, err
			}
		}
		if busy {
			failures = append(failures, PairingFailure{VehicleID: p.VehicleID, DriverID: p.DriverID, Reason: CodeResourceBusy})
			continue
		}
		tripID, err := utils.RandomHex(16)
		if err != nil {
			return nil, nil, err
		}
		recs = append(recs, &model.Assignment{
			TruckRequestID: h.TruckRequestID,
			HoldID:         h.ID,
			TransporterID:  transporterID,
			VehicleID:      p.VehicleID,
			DriverID:       p.DriverID,
			TripID:         tripID,
			Status:         model.AssignmentPending,
			VehicleNumber:  vehicles[p.VehicleID].VehicleNumber,
			DriverName:     drivers[p.DriverID].Name,
		})
	}
	return recs, failures, nil
}

// lockConflict maps InnoDB lock-conflict errors onto the busy code.  The
// ordered locking above prevents row-lock deadlocks, but the busy checks
// scan the assignments index under REPEATABLE READ and can still collide
// on gap locks with a concurrent confirm's insert; InnoDB then rolls one
// transaction back with error 1213.  Losing that race means another
// confirm is mid-flight over the same resources, which to the caller is
// RESOURCE_BUSY, not an internal error.
func lockConflict(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && (me.Number == 1213 || me.Number == 1205) {
		return &Error{Code: CodeResourceBusy, Message: "resources are being confirmed concurrently, retry"}
	}
	return err
}

// emitConfirmed publishes the customer-facing assigned event and one trip
// event per driver.  Fire-and-forget: a broker outage never unwinds the
// committed confirmation.
func (s *Service) emitConfirmed(req *model.TruckRequest, recs []*model.Assignment) {
	if s.events == nil {
		return
	}
	assigned := queue.AssignedEvent{
		TruckRequestID: req.ID,
		OrderID:        req.OrderID,
		ConfirmedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	for _, a := range recs {
		assigned.Assignments = append(assigned.Assignments, queue.AssignedPairing{
			VehicleNumber: a.VehicleNumber,
			DriverName:    a.DriverName,
			Status:        string(a.Status),
		})
	}
	trips := make([]queue.TripAssignedEvent, 0, len(recs))
	for _, a := range recs {
		trips = append(trips, queue.TripAssignedEvent{
			AssignmentID:   a.ID,
			TripID:         a.TripID,
			TruckRequestID: a.TruckRequestID,
			DriverID:       a.DriverID,
			Status:         string(a.Status),
		})
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		if err := s.events.PublishAssigned(ctx, assigned); err != nil {
			log.Printf("[allocation] publish assigned for request %d: %v", req.ID, err)
		}
		for _, ev := range trips {
			if err := s.events.PublishTripAssigned(ctx, ev); err != nil {
				log.Printf("[allocation] publish trip %s: %v", ev.TripID, err)
			}
		}
	}()
}
