// Tests for batch confirmation and the assignment lifecycle (run with -race).
package allocation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/truck-allocation/internal/model"
)

// confirmFixture bundles the rows most confirm tests need: one customer
// request, one transporter with a fleet sized to the request, and an active
// hold covering the full quantity.
type confirmFixture struct {
	transporter uint64
	requestID   uint64
	holdID      uint64
	vehicles    []uint64
	drivers     []uint64
}

func newConfirmFixture(t *testing.T, e *testEnv, qty uint32) *confirmFixture {
	t.Helper()
	customer := e.seedUser(t, "CUSTOMER")
	transporter := e.seedUser(t, "TRANSPORTER")
	reqID := e.seedRequest(t, customer, "FLATBED", qty)

	f := &confirmFixture{transporter: transporter, requestID: reqID}
	for i := uint32(0); i < qty; i++ {
		f.vehicles = append(f.vehicles, e.seedVehicle(t, transporter, "FLATBED"))
		f.drivers = append(f.drivers, e.seedDriver(t, transporter))
	}

	res, err := e.svc.CreateHold(context.Background(), reqID, transporter, qty, time.Minute)
	if err != nil {
		t.Fatalf("create hold: %v", err)
	}
	f.holdID = res.HoldID
	return f
}

func (f *confirmFixture) pairings() []Pairing {
	out := make([]Pairing, 0, len(f.vehicles))
	for i := range f.vehicles {
		out = append(out, Pairing{VehicleID: f.vehicles[i], DriverID: f.drivers[i]})
	}
	return out
}

func TestConfirmHoldCreatesAssignments(t *testing.T) {
	e := setupTest(t)
	ctx := context.Background()
	f := newConfirmFixture(t, e, 2)

	recs, err := e.svc.ConfirmHold(ctx, f.holdID, f.transporter, f.pairings())
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(recs))
	}
	seen := map[string]bool{}
	for _, a := range recs {
		if a.Status != model.AssignmentPending {
			t.Fatalf("expected PENDING, got %s", a.Status)
		}
		if a.TripID == "" || seen[a.TripID] {
			t.Fatalf("trip IDs must be unique and non-empty, got %q", a.TripID)
		}
		seen[a.TripID] = true
		if a.VehicleNumber == "" || a.DriverName == "" {
			t.Fatal("assignments must carry denormalized vehicle number and driver name")
		}
	}

	if got := e.holdState(t, f.holdID).Status; got != model.HoldConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", got)
	}
	req := e.requestState(t, f.requestID)
	if req.QuantityHeld != 0 || req.QuantityAssigned != 2 {
		t.Fatalf("expected held=0 assigned=2, got held=%d assigned=%d", req.QuantityHeld, req.QuantityAssigned)
	}
	if req.Status != model.RequestFulfilled {
		t.Fatalf("fully assigned request should be FULFILLED, got %s", req.Status)
	}
}

func TestConfirmHoldWrongCount(t *testing.T) {
	e := setupTest(t)
	ctx := context.Background()
	f := newConfirmFixture(t, e, 2)

	_, err := e.svc.ConfirmHold(ctx, f.holdID, f.transporter, f.pairings()[:1])
	var aerr *Error
	if !errors.As(err, &aerr) || aerr.Code != CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := e.holdState(t, f.holdID).Status; got != model.HoldActive {
		t.Fatalf("hold must stay active after a rejected confirm, got %s", got)
	}
}

func TestConfirmHoldAllOrNothing(t *testing.T) {
	e := setupTest(t)
	ctx := context.Background()

	// First confirm occupies one vehicle and driver.
	busy := newConfirmFixture(t, e, 1)
	if _, err := e.svc.ConfirmHold(ctx, busy.holdID, busy.transporter, busy.pairings()); err != nil {
		t.Fatalf("confirm busy fixture: %v", err)
	}

	// Second request by the same transporter: one fresh pairing and one
	// pairing reusing the occupied resources.
	customer := e.seedUser(t, "CUSTOMER")
	reqID := e.seedRequest(t, customer, "FLATBED", 2)
	freshVehicle := e.seedVehicle(t, busy.transporter, "FLATBED")
	freshDriver := e.seedDriver(t, busy.transporter)

	res, err := e.svc.CreateHold(ctx, reqID, busy.transporter, 2, time.Minute)
	if err != nil {
		t.Fatalf("create hold: %v", err)
	}
	pairs := []Pairing{
		{VehicleID: freshVehicle, DriverID: freshDriver},
		{VehicleID: busy.vehicles[0], DriverID: busy.drivers[0]},
	}

	_, err = e.svc.ConfirmHold(ctx, res.HoldID, busy.transporter, pairs)
	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("expected BatchError, got %v", err)
	}
	if len(batchErr.Failures) != 1 {
		t.Fatalf("expected exactly one failing pairing, got %d", len(batchErr.Failures))
	}
	fail := batchErr.Failures[0]
	if fail.VehicleID != busy.vehicles[0] || fail.Reason != CodeResourceBusy {
		t.Fatalf("unexpected failure %+v", fail)
	}

	// Nothing moved: the hold survives and the fresh pairing was not
	// partially assigned.
	if got := e.holdState(t, res.HoldID).Status; got != model.HoldActive {
		t.Fatalf("hold must stay active, got %s", got)
	}
	req := e.requestState(t, reqID)
	if req.QuantityAssigned != 0 || req.QuantityHeld != 2 {
		t.Fatalf("expected held=2 assigned=0, got held=%d assigned=%d", req.QuantityHeld, req.QuantityAssigned)
	}
}

func TestConcurrentConfirmsShareOneDriver(t *testing.T) {
	e := setupTest(t)
	ctx := context.Background()

	customer := e.seedUser(t, "CUSTOMER")
	transporter := e.seedUser(t, "TRANSPORTER")
	vehicleA := e.seedVehicle(t, transporter, "FLATBED")
	vehicleB := e.seedVehicle(t, transporter, "FLATBED")
	driver := e.seedDriver(t, transporter)

	req1 := e.seedRequest(t, customer, "FLATBED", 1)
	req2 := e.seedRequest(t, customer, "FLATBED", 1)
	h1, err := e.svc.CreateHold(ctx, req1, transporter, 1, time.Minute)
	if err != nil {
		t.Fatalf("hold 1: %v", err)
	}
	h2, err := e.svc.CreateHold(ctx, req2, transporter, 1, time.Minute)
	if err != nil {
		t.Fatalf("hold 2: %v", err)
	}

	start := make(chan struct{})
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	confirm := func(holdID, vehicleID uint64) {
		defer wg.Done()
		<-start
		_, err := e.svc.ConfirmHold(ctx, holdID, transporter, []Pairing{{VehicleID: vehicleID, DriverID: driver}})
		errs <- err
	}
	wg.Add(2)
	go confirm(h1.HoldID, vehicleA)
	go confirm(h2.HoldID, vehicleB)
	close(start)
	wg.Wait()
	close(errs)

	success, busy := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			success++
		default:
			var batchErr *BatchError
			if !errors.As(err, &batchErr) {
				t.Fatalf("unexpected error: %v", err)
			}
			busy++
		}
	}
	if success != 1 || busy != 1 {
		t.Fatalf("driver double-booked: %d successes, %d busy rejections", success, busy)
	}

	var active int
	err = e.db.QueryRow(
		`SELECT COUNT(*) FROM assignments WHERE driver_id = ? AND status NOT IN ('COMPLETED','CANCELLED')`,
		driver).Scan(&active)
	if err != nil {
		t.Fatalf("count assignments: %v", err)
	}
	if active != 1 {
		t.Fatalf("expected exactly 1 active assignment for the driver, got %d", active)
	}
}

func TestConcurrentConfirmsCrossedDrivers(t *testing.T) {
	e := setupTest(t)
	ctx := context.Background()

	// Two batches share both drivers but pair them with vehicles in inverse
	// order, so naive per-pairing locking would acquire the driver rows in
	// opposite order.  Exactly one confirm may win; the other must come back
	// busy, never a lock error.
	customer := e.seedUser(t, "CUSTOMER")
	transporter := e.seedUser(t, "TRANSPORTER")
	var vehicles []uint64
	for i := 0; i < 4; i++ {
		vehicles = append(vehicles, e.seedVehicle(t, transporter, "FLATBED"))
	}
	driverA := e.seedDriver(t, transporter)
	driverB := e.seedDriver(t, transporter)

	req1 := e.seedRequest(t, customer, "FLATBED", 2)
	req2 := e.seedRequest(t, customer, "FLATBED", 2)
	h1, err := e.svc.CreateHold(ctx, req1, transporter, 2, time.Minute)
	if err != nil {
		t.Fatalf("hold 1: %v", err)
	}
	h2, err := e.svc.CreateHold(ctx, req2, transporter, 2, time.Minute)
	if err != nil {
		t.Fatalf("hold 2: %v", err)
	}

	start := make(chan struct{})
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	confirm := func(holdID uint64, pairs []Pairing) {
		defer wg.Done()
		<-start
		_, err := e.svc.ConfirmHold(ctx, holdID, transporter, pairs)
		errs <- err
	}
	wg.Add(2)
	go confirm(h1.HoldID, []Pairing{
		{VehicleID: vehicles[0], DriverID: driverB},
		{VehicleID: vehicles[1], DriverID: driverA},
	})
	go confirm(h2.HoldID, []Pairing{
		{VehicleID: vehicles[2], DriverID: driverA},
		{VehicleID: vehicles[3], DriverID: driverB},
	})
	close(start)
	wg.Wait()
	close(errs)

	success, busy := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			success++
		default:
			// The loser surfaces as per-pairing busy failures, or as a
			// plain busy error when the transactions collided on the
			// assignments index and the database rolled one back.
			var batchErr *BatchError
			var aerr *Error
			if errors.As(err, &batchErr) || (errors.As(err, &aerr) && aerr.Code == CodeResourceBusy) {
				busy++
				continue
			}
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 || busy != 1 {
		t.Fatalf("expected 1 success and 1 busy rejection, got %d/%d", success, busy)
	}
	for _, d := range []uint64{driverA, driverB} {
		var active int
		err := e.db.QueryRow(
			`SELECT COUNT(*) FROM assignments WHERE driver_id = ? AND status NOT IN ('COMPLETED','CANCELLED')`,
			d).Scan(&active)
		if err != nil {
			t.Fatalf("count assignments: %v", err)
		}
		if active != 1 {
			t.Fatalf("expected exactly 1 active assignment for driver %d, got %d", d, active)
		}
	}
}

func TestConfirmCancelledRequestRejected(t *testing.T) {
	e := setupTest(t)
	ctx := context.Background()
	f := newConfirmFixture(t, e, 1)

	// The customer's cancellation lands between hold creation and confirm.
	if _, err := e.db.Exec(`UPDATE truck_requests SET status = 'CANCELLED' WHERE id = ?`, f.requestID); err != nil {
		t.Fatalf("cancel request: %v", err)
	}

	_, err := e.svc.ConfirmHold(ctx, f.holdID, f.transporter, f.pairings())
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	var n int
	if err := e.db.QueryRow(`SELECT COUNT(*) FROM assignments WHERE hold_id = ?`, f.holdID).Scan(&n); err != nil {
		t.Fatalf("count assignments: %v", err)
	}
	if n != 0 {
		t.Fatalf("no assignments may exist against a cancelled request, got %d", n)
	}
	if got := e.requestState(t, f.requestID).QuantityAssigned; got != 0 {
		t.Fatalf("expected assigned=0, got %d", got)
	}
}

func TestLockConflictMapping(t *testing.T) {
	for _, number := range []uint16{1213, 1205} {
		err := lockConflict(fmt.Errorf("exec: %w", &mysql.MySQLError{Number: number, Message: "lock conflict"}))
		var aerr *Error
		if !errors.As(err, &aerr) || aerr.Code != CodeResourceBusy {
			t.Fatalf("error %d should map to RESOURCE_BUSY, got %v", number, err)
		}
	}

	plain := errors.New("connection reset")
	if got := lockConflict(plain); got != plain {
		t.Fatalf("unrelated errors must pass through, got %v", got)
	}
	dup := &mysql.MySQLError{Number: 1062, Message: "duplicate entry"}
	if got := lockConflict(dup); got != error(dup) {
		t.Fatalf("non-lock database errors must pass through, got %v", got)
	}
}

func TestConfirmLapsedHoldRejected(t *testing.T) {
	e := setupTest(t)
	ctx := context.Background()
	f := newConfirmFixture(t, e, 1)

	// Push the stored deadline into the past, simulating a hold whose TTL
	// lapsed before the timer fired.
	if _, err := e.db.Exec(`UPDATE holds SET expires_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-time.Minute).Format("2006-01-02 15:04:05"), f.holdID); err != nil {
		t.Fatalf("age hold: %v", err)
	}

	_, err := e.svc.ConfirmHold(ctx, f.holdID, f.transporter, f.pairings())
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestCancelAssignmentFreesCapacity(t *testing.T) {
	e := setupTest(t)
	ctx := context.Background()
	f := newConfirmFixture(t, e, 1)

	recs, err := e.svc.ConfirmHold(ctx, f.holdID, f.transporter, f.pairings())
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if got := e.requestState(t, f.requestID).Status; got != model.RequestFulfilled {
		t.Fatalf("expected FULFILLED, got %s", got)
	}

	a, err := e.svc.CancelAssignment(ctx, recs[0].ID, f.transporter, 0)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if a.Status != model.AssignmentCancelled {
		t.Fatalf("expected CANCELLED, got %s", a.Status)
	}
	req := e.requestState(t, f.requestID)
	if req.QuantityAssigned != 0 {
		t.Fatalf("expected assigned=0 after cancel, got %d", req.QuantityAssigned)
	}
	if req.Status != model.RequestOpen {
		t.Fatalf("request should reopen after cancel, got %s", req.Status)
	}

	// The freed capacity is immediately holdable again.
	if _, err := e.svc.CreateHold(ctx, f.requestID, f.transporter, 1, time.Minute); err != nil {
		t.Fatalf("hold after cancel: %v", err)
	}
}

func TestAssignmentLifecycle(t *testing.T) {
	e := setupTest(t)
	ctx := context.Background()
	f := newConfirmFixture(t, e, 1)

	recs, err := e.svc.ConfirmHold(ctx, f.holdID, f.transporter, f.pairings())
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	id, driver := recs[0].ID, f.drivers[0]

	// Skipping ahead before acceptance is rejected.
	if _, err := e.svc.UpdateAssignmentStatus(ctx, id, driver, model.AssignmentInTransit); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for skipped stage, got %v", err)
	}

	if _, err := e.svc.AcceptAssignment(ctx, id, driver); err != nil {
		t.Fatalf("accept: %v", err)
	}
	// Accepting twice is rejected.
	if _, err := e.svc.AcceptAssignment(ctx, id, driver); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on second accept, got %v", err)
	}

	for _, next := range []model.AssignmentStatus{
		model.AssignmentEnRoutePickup,
		model.AssignmentAtPickup,
		model.AssignmentInTransit,
		model.AssignmentCompleted,
	} {
		a, err := e.svc.UpdateAssignmentStatus(ctx, id, driver, next)
		if err != nil {
			t.Fatalf("advance to %s: %v", next, err)
		}
		if a.Status != next {
			t.Fatalf("expected %s, got %s", next, a.Status)
		}
	}

	// Terminal assignments cannot be cancelled.
	if _, err := e.svc.CancelAssignment(ctx, id, f.transporter, 0); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState cancelling a completed trip, got %v", err)
	}
	// Completion keeps the assigned quantity: the request was served.
	if got := e.requestState(t, f.requestID).QuantityAssigned; got != 1 {
		t.Fatalf("expected assigned=1 after completion, got %d", got)
	}
}

func TestAcceptRechecksDriverAvailability(t *testing.T) {
	e := setupTest(t)
	ctx := context.Background()
	f := newConfirmFixture(t, e, 1)

	recs, err := e.svc.ConfirmHold(ctx, f.holdID, f.transporter, f.pairings())
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// A second pending assignment for the same driver, as might exist
	// after an import or a manual dispatch correction.
	customer := e.seedUser(t, "CUSTOMER")
	otherReq := e.seedRequest(t, customer, "FLATBED", 1)
	otherVehicle := e.seedVehicle(t, f.transporter, "FLATBED")
	stray := e.exec(t,
		`INSERT INTO assignments
		   (truck_request_id, hold_id, transporter_id, vehicle_id, driver_id, trip_id, vehicle_number, driver_name)
		 VALUES (?, ?, ?, ?, ?, 'stray0000000000000000000000trip0', 'TRK-STRAY', 'Stray Driver')`,
		otherReq, f.holdID, f.transporter, otherVehicle, f.drivers[0])

	if _, err := e.svc.AcceptAssignment(ctx, recs[0].ID, f.drivers[0]); !errors.Is(err, ErrDriverBusy) {
		t.Fatalf("expected ErrDriverBusy, got %v", err)
	}

	// Once the stray assignment is cancelled the original can proceed.
	if _, err := e.svc.CancelAssignment(ctx, stray, f.transporter, 0); err != nil {
		t.Fatalf("cancel stray: %v", err)
	}
	if _, err := e.svc.AcceptAssignment(ctx, recs[0].ID, f.drivers[0]); err != nil {
		t.Fatalf("accept after stray cancelled: %v", err)
	}
}

func TestAcceptByWrongDriverMasked(t *testing.T) {
	e := setupTest(t)
	ctx := context.Background()
	f := newConfirmFixture(t, e, 1)

	recs, err := e.svc.ConfirmHold(ctx, f.holdID, f.transporter, f.pairings())
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	other := e.seedDriver(t, f.transporter)

	if _, err := e.svc.AcceptAssignment(ctx, recs[0].ID, other); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign assignment, got %v", err)
	}
}
