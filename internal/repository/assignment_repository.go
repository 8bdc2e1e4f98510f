package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/truck-allocation/internal/model"
)

// nonTerminalStatuses is the SQL set of assignment states that keep a
// vehicle or driver busy.  COMPLETED and CANCELLED free the resources.
const nonTerminalStatuses = `('PENDING','DRIVER_ACCEPTED','EN_ROUTE_PICKUP','AT_PICKUP','IN_TRANSIT')`

// AssignmentRepo provides data access to the assignments table and the
// derived busy-state of vehicles and drivers.  The busy checks must run
// inside the same transaction that already holds FOR UPDATE locks on the
// vehicle and driver rows; that lock ordering is what linearizes two
// confirms competing for the same resource.
type AssignmentRepo struct {
	db *sql.DB
}

// NewAssignmentRepo returns a new AssignmentRepo bound to the database.
func NewAssignmentRepo(db *sql.DB) *AssignmentRepo { return &AssignmentRepo{db: db} }

const assignmentCols = `id, truck_request_id, hold_id, transporter_id, vehicle_id, driver_id,
       trip_id, status, vehicle_number, driver_name, created_at, updated_at`

func scanAssignment(scan func(dest ...interface{}) error) (*model.Assignment, error) {
	var a model.Assignment
	err := scan(&a.ID, &a.TruckRequestID, &a.HoldID, &a.TransporterID, &a.VehicleID,
		&a.DriverID, &a.TripID, &a.Status, &a.VehicleNumber, &a.DriverName,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateBatchTx inserts all assignments of one confirmed hold in a single
// statement and backfills the generated IDs.  MySQL allocates consecutive
// IDs for a multi-row insert, so LastInsertId plus the offset is exact.
// Passing an empty slice has no effect and returns nil.
func (r *AssignmentRepo) CreateBatchTx(ctx context.Context, tx *sql.Tx, recs []*model.Assignment) error {
	if len(recs) == 0 {
		return nil
	}
	query := `INSERT INTO assignments
        (truck_request_id, hold_id, transporter_id, vehicle_id, driver_id, trip_id, status, vehicle_number, driver_name)
        VALUES `
	args := make([]interface{}, 0, len(recs)*9)
	for i, a := range recs {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?, 'PENDING', ?, ?)"
		args = append(args, a.TruckRequestID, a.HoldID, a.TransporterID,
			a.VehicleID, a.DriverID, a.TripID, a.VehicleNumber, a.DriverName)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	first, err := res.LastInsertId()
	if err != nil {
		return err
	}
	for i, a := range recs {
		a.ID = uint64(first) + uint64(i)
		a.Status = model.AssignmentPending
	}
	return nil
}

// Get returns an assignment by ID or sql.ErrNoRows.
func (r *AssignmentRepo) Get(ctx context.Context, id uint64) (*model.Assignment, error) {
	return scanAssignment(r.db.QueryRowContext(ctx,
		`SELECT `+assignmentCols+` FROM assignments WHERE id = ?`, id).Scan)
}

// GetForUpdateTx loads an assignment under a row lock for status changes.
func (r *AssignmentRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Assignment, error) {
	return scanAssignment(tx.QueryRowContext(ctx,
		`SELECT `+assignmentCols+` FROM assignments WHERE id = ? FOR UPDATE`, id).Scan)
}

// UpdateStatusTx moves an assignment from one status to another as a
// compare-and-set.  False means the assignment was no longer in the
// expected state.
func (r *AssignmentRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, from, to model.AssignmentStatus) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE assignments SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// VehicleBusyTx reports whether the vehicle is referenced by any
// non-terminal assignment.  Must run with the vehicle row already locked.
// The locking read sees the latest committed rows instead of the
// transaction's snapshot, so an assignment committed by a concurrent
// confirm after this transaction began is still counted.
func (r *AssignmentRepo) VehicleBusyTx(ctx context.Context, tx *sql.Tx, vehicleID uint64) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assignments WHERE vehicle_id = ? AND status IN `+nonTerminalStatuses+` FOR UPDATE`,
		vehicleID).Scan(&n)
	return n > 0, err
}

// DriverBusyTx reports whether the driver is on any non-terminal assignment
// other than the one identified by exclude (pass 0 to exclude nothing).
// The exclusion lets accept-time re-checks ignore the assignment being
// accepted itself.  Locking read, same reasoning as VehicleBusyTx.
func (r *AssignmentRepo) DriverBusyTx(ctx context.Context, tx *sql.Tx, driverID, exclude uint64) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assignments WHERE driver_id = ? AND id <> ? AND status IN `+nonTerminalStatuses+` FOR UPDATE`,
		driverID, exclude).Scan(&n)
	return n > 0, err
}

// ListByDriver returns a driver's assignments, newest first.
func (r *AssignmentRepo) ListByDriver(ctx context.Context, driverID uint64) ([]model.Assignment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+assignmentCols+` FROM assignments WHERE driver_id = ? ORDER BY created_at DESC`,
		driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAssignments(rows)
}

// ListByTruckRequest returns all assignments created against a request.
func (r *AssignmentRepo) ListByTruckRequest(ctx context.Context, requestID uint64) ([]model.Assignment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+assignmentCols+` FROM assignments WHERE truck_request_id = ? ORDER BY id`,
		requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAssignments(rows)
}

// CountByOrder reports how many non-cancelled assignments exist across all
// truck requests of an order.  Orders with assignments cannot be cancelled.
func (r *AssignmentRepo) CountByOrder(ctx context.Context, orderID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*)
           FROM assignments a
           JOIN truck_requests t ON t.id = a.truck_request_id
          WHERE t.order_id = ? AND a.status <> 'CANCELLED'`,
		orderID).Scan(&n)
	return n, err
}

func collectAssignments(rows *sql.Rows) ([]model.Assignment, error) {
	out := make([]model.Assignment, 0)
	for rows.Next() {
		var a model.Assignment
		if err := rows.Scan(&a.ID, &a.TruckRequestID, &a.HoldID, &a.TransporterID,
			&a.VehicleID, &a.DriverID, &a.TripID, &a.Status, &a.VehicleNumber,
			&a.DriverName, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
