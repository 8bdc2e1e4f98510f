package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/truck-allocation/internal/model"
)

// TruckRequestRepo provides data access to the truck_requests table.  The
// quantity counters on each row are the shared state the whole allocation
// engine hinges on, so every mutation here is a conditional UPDATE whose
// WHERE clause re-checks the invariant; a zero rows-affected result means
// the precondition no longer held and the caller must treat the operation
// as failed.  No method ever writes counters unconditionally.
type TruckRequestRepo struct {
	db *sql.DB
}

// NewTruckRequestRepo returns a new TruckRequestRepo bound to the database.
func NewTruckRequestRepo(db *sql.DB) *TruckRequestRepo { return &TruckRequestRepo{db: db} }

const truckRequestCols = `id, order_id, vehicle_type, vehicle_subtype,
       quantity_requested, quantity_held, quantity_assigned, status, created_at, updated_at`

func scanTruckRequest(row *sql.Row) (*model.TruckRequest, error) {
	var t model.TruckRequest
	err := row.Scan(&t.ID, &t.OrderID, &t.VehicleType, &t.VehicleSubtype,
		&t.QuantityRequested, &t.QuantityHeld, &t.QuantityAssigned, &t.Status,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTx inserts a truck request within an existing transaction and
// populates the generated ID.  Used by order creation.
func (r *TruckRequestRepo) CreateTx(ctx context.Context, tx *sql.Tx, t *model.TruckRequest) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO truck_requests (order_id, vehicle_type, vehicle_subtype, quantity_requested)
         VALUES (?, ?, ?, ?)`,
		t.OrderID, t.VehicleType, t.VehicleSubtype, t.QuantityRequested)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	t.Status = model.RequestOpen
	return nil
}

// Get returns a truck request by ID or sql.ErrNoRows.
func (r *TruckRequestRepo) Get(ctx context.Context, id uint64) (*model.TruckRequest, error) {
	return scanTruckRequest(r.db.QueryRowContext(ctx,
		`SELECT `+truckRequestCols+` FROM truck_requests WHERE id = ?`, id))
}

// GetTx is Get within an existing transaction.
func (r *TruckRequestRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.TruckRequest, error) {
	return scanTruckRequest(tx.QueryRowContext(ctx,
		`SELECT `+truckRequestCols+` FROM truck_requests WHERE id = ?`, id))
}

// ReserveTx atomically increments quantity_held by qty, but only while the
// request is OPEN and has at least qty units unreserved.  It returns false
// when the precondition failed (insufficient capacity, missing row or
// non-open status); callers then inspect the row to report why.  Two
// concurrent reservations against the same row are linearized by the
// database: whichever commits first shrinks availability for the other.
func (r *TruckRequestRepo) ReserveTx(ctx context.Context, tx *sql.Tx, id uint64, qty uint32) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE truck_requests
            SET quantity_held = quantity_held + ?
          WHERE id = ?
            AND status = 'OPEN'
            AND quantity_requested - quantity_held - quantity_assigned >= ?`,
		qty, id, qty)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseHeldTx returns qty units from quantity_held back to availability.
// The guard against underflow protects the invariant if a caller ever
// double-releases; the hold status CAS upstream should already prevent it.
func (r *TruckRequestRepo) ReleaseHeldTx(ctx context.Context, tx *sql.Tx, id uint64, qty uint32) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE truck_requests
            SET quantity_held = quantity_held - ?
          WHERE id = ? AND quantity_held >= ?`,
		qty, id, qty)
	return err
}

// ConvertHeldTx moves qty units from held to assigned in one statement and
// flips the request to FULFILLED when assignment reaches the requested
// quantity.  MySQL applies SET clauses left to right, so the status
// expression sees the already-incremented quantity_assigned.  The status
// guard in the WHERE clause refuses to convert units on a request that was
// cancelled after the hold was taken; callers treat false as invalid state.
func (r *TruckRequestRepo) ConvertHeldTx(ctx context.Context, tx *sql.Tx, id uint64, qty uint32) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE truck_requests
            SET quantity_held = quantity_held - ?,
                quantity_assigned = quantity_assigned + ?,
                status = IF(quantity_assigned >= quantity_requested, 'FULFILLED', status)
          WHERE id = ? AND status <> 'CANCELLED' AND quantity_held >= ?`,
		qty, qty, id, qty)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseAssignedTx returns one assigned unit to availability after an
// assignment is cancelled, reopening a FULFILLED request so the unit can go
// through a fresh hold cycle.  Capacity is never lost.
func (r *TruckRequestRepo) ReleaseAssignedTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE truck_requests
            SET quantity_assigned = quantity_assigned - 1,
                status = IF(status = 'FULFILLED', 'OPEN', status)
          WHERE id = ? AND quantity_assigned >= 1`,
		id)
	return err
}

// ListOpen returns all OPEN truck requests, optionally filtered by vehicle
// type, newest first.  Transporters browse this list to decide what to hold.
func (r *TruckRequestRepo) ListOpen(ctx context.Context, vehicleType string) ([]model.TruckRequest, error) {
	q := `SELECT ` + truckRequestCols + ` FROM truck_requests WHERE status = 'OPEN'`
	args := []interface{}{}
	if vehicleType != "" {
		q += ` AND vehicle_type = ?`
		args = append(args, vehicleType)
	}
	q += ` ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.TruckRequest, 0)
	for rows.Next() {
		var t model.TruckRequest
		if err := rows.Scan(&t.ID, &t.OrderID, &t.VehicleType, &t.VehicleSubtype,
			&t.QuantityRequested, &t.QuantityHeld, &t.QuantityAssigned, &t.Status,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListByOrder returns the truck requests belonging to an order.
func (r *TruckRequestRepo) ListByOrder(ctx context.Context, orderID uint64) ([]model.TruckRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+truckRequestCols+` FROM truck_requests WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.TruckRequest, 0)
	for rows.Next() {
		var t model.TruckRequest
		if err := rows.Scan(&t.ID, &t.OrderID, &t.VehicleType, &t.VehicleSubtype,
			&t.QuantityRequested, &t.QuantityHeld, &t.QuantityAssigned, &t.Status,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CancelByOrderTx marks every truck request of an order CANCELLED.  The
// caller is responsible for verifying that no request carries held or
// assigned quantity before invoking this.
func (r *TruckRequestRepo) CancelByOrderTx(ctx context.Context, tx *sql.Tx, orderID uint64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE truck_requests SET status = 'CANCELLED' WHERE order_id = ? AND status = 'OPEN'`,
		orderID)
	return err
}
