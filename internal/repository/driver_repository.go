package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/truck-allocation/internal/model"
)

// DriverRepo provides data access to the drivers table.
type DriverRepo struct {
	db *sql.DB
}

// NewDriverRepo returns a new DriverRepo bound to the database.
func NewDriverRepo(db *sql.DB) *DriverRepo { return &DriverRepo{db: db} }

const driverCols = `id, transporter_id, user_id, name, phone, is_active, created_at`

func scanDriver(scan func(dest ...interface{}) error) (*model.Driver, error) {
	var d model.Driver
	var userID sql.NullInt64
	err := scan(&d.ID, &d.TransporterID, &userID, &d.Name, &d.Phone, &d.IsActive, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		uid := uint64(userID.Int64)
		d.UserID = &uid
	}
	return &d, nil
}

// Create adds a driver to a transporter's fleet and returns its ID.
func (r *DriverRepo) Create(ctx context.Context, d *model.Driver) error {
	var userID interface{}
	if d.UserID != nil {
		userID = *d.UserID
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO drivers (transporter_id, user_id, name, phone) VALUES (?, ?, ?, ?)`,
		d.TransporterID, userID, d.Name, d.Phone)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	d.ID = uint64(id)
	d.IsActive = true
	return nil
}

// GetForUpdateTx loads a driver under a row lock, mirroring
// VehicleRepo.GetForUpdateTx; see the lock-ordering note there.
func (r *DriverRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Driver, error) {
	return scanDriver(tx.QueryRowContext(ctx,
		`SELECT `+driverCols+` FROM drivers WHERE id = ? FOR UPDATE`, id).Scan)
}

// GetByUserID resolves the driver record behind a DRIVER-role login.
func (r *DriverRepo) GetByUserID(ctx context.Context, userID uint64) (*model.Driver, error) {
	return scanDriver(r.db.QueryRowContext(ctx,
		`SELECT `+driverCols+` FROM drivers WHERE user_id = ?`, userID).Scan)
}

// ListByTransporter returns a transporter's drivers ordered by name.
func (r *DriverRepo) ListByTransporter(ctx context.Context, transporterID uint64) ([]model.Driver, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+driverCols+` FROM drivers WHERE transporter_id = ? ORDER BY name`,
		transporterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Driver, 0)
	for rows.Next() {
		var d model.Driver
		var userID sql.NullInt64
		if err := rows.Scan(&d.ID, &d.TransporterID, &userID, &d.Name, &d.Phone,
			&d.IsActive, &d.CreatedAt); err != nil {
			return nil, err
		}
		if userID.Valid {
			uid := uint64(userID.Int64)
			d.UserID = &uid
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
