package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/truck-allocation/internal/model"
)

// HoldRepo provides data access to the holds table.  All timestamps are
// stored and compared in UTC.  Status changes go exclusively through
// TransitionTx, a compare-and-set on the current status, so a hold can
// leave ACTIVE exactly once no matter how many callers race on it.
type HoldRepo struct {
	db *sql.DB
}

// NewHoldRepo returns a new HoldRepo bound to the provided database.
func NewHoldRepo(db *sql.DB) *HoldRepo { return &HoldRepo{db: db} }

const holdCols = `id, truck_request_id, transporter_id, vehicle_type, vehicle_subtype,
       quantity, status, created_at, expires_at`

func scanHold(scan func(dest ...interface{}) error) (*model.Hold, error) {
	var h model.Hold
	err := scan(&h.ID, &h.TruckRequestID, &h.TransporterID, &h.VehicleType,
		&h.VehicleSubtype, &h.Quantity, &h.Status, &h.CreatedAt, &h.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// CreateTx inserts a new ACTIVE hold within the provided transaction and
// populates the generated ID on the model.
func (r *HoldRepo) CreateTx(ctx context.Context, tx *sql.Tx, h *model.Hold) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO holds (truck_request_id, transporter_id, vehicle_type, vehicle_subtype, quantity, status, expires_at)
         VALUES (?, ?, ?, ?, ?, 'ACTIVE', ?)`,
		h.TruckRequestID, h.TransporterID, h.VehicleType, h.VehicleSubtype,
		h.Quantity, h.ExpiresAt.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	h.ID = uint64(id)
	h.Status = model.HoldActive
	return nil
}

// Get returns a hold by ID or sql.ErrNoRows.
func (r *HoldRepo) Get(ctx context.Context, id uint64) (*model.Hold, error) {
	return scanHold(r.db.QueryRowContext(ctx,
		`SELECT `+holdCols+` FROM holds WHERE id = ?`, id).Scan)
}

// GetForUpdateTx loads a hold under a row lock so that concurrent confirm,
// release and expiry attempts against the same hold serialize on the row.
func (r *HoldRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Hold, error) {
	return scanHold(tx.QueryRowContext(ctx,
		`SELECT `+holdCols+` FROM holds WHERE id = ? FOR UPDATE`, id).Scan)
}

// TransitionTx moves a hold from one status to another, returning whether
// the write happened.  False means the hold already left the expected
// status; callers treat that as an idempotent no-op.
func (r *HoldRepo) TransitionTx(ctx context.Context, tx *sql.Tx, id uint64, from, to model.HoldStatus) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE holds SET status = ? WHERE id = ? AND status = ?`,
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

// PendingExpiry pairs a hold ID with its expiry deadline.  The expiry
// scheduler rehydrates its timers from these rows at startup and during
// periodic sweeps.
type PendingExpiry struct {
	HoldID    uint64
	ExpiresAt time.Time
}

// ListActive returns the ID and deadline of every ACTIVE hold.  Past-due
// rows are included on purpose: the scheduler fires them immediately so
// that holds whose timers were lost to a crash never stay reserved.
func (r *HoldRepo) ListActive(ctx context.Context) ([]PendingExpiry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, expires_at FROM holds WHERE status = 'ACTIVE' ORDER BY expires_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PendingExpiry
	for rows.Next() {
		var p PendingExpiry
		if err := rows.Scan(&p.HoldID, &p.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListByTransporter returns a transporter's holds, newest first.
func (r *HoldRepo) ListByTransporter(ctx context.Context, transporterID uint64) ([]model.Hold, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+holdCols+` FROM holds WHERE transporter_id = ? ORDER BY created_at DESC`,
		transporterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Hold, 0)
	for rows.Next() {
		var h model.Hold
		if err := rows.Scan(&h.ID, &h.TruckRequestID, &h.TransporterID, &h.VehicleType,
			&h.VehicleSubtype, &h.Quantity, &h.Status, &h.CreatedAt, &h.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// CountActiveByRequest reports active holds against one truck request.
// Used when deciding whether an order can still be cancelled.
func (r *HoldRepo) CountActiveByRequest(ctx context.Context, requestID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM holds WHERE truck_request_id = ? AND status = 'ACTIVE'`,
		requestID).Scan(&n)
	return n, err
}
