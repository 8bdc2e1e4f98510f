package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/truck-allocation/internal/model"
)

// VehicleRepo provides data access to the vehicles table.
type VehicleRepo struct {
	db *sql.DB
}

// NewVehicleRepo returns a new VehicleRepo bound to the database.
func NewVehicleRepo(db *sql.DB) *VehicleRepo { return &VehicleRepo{db: db} }

const vehicleCols = `id, transporter_id, vehicle_number, vehicle_type, vehicle_subtype, is_active, created_at`

// Create registers a vehicle for a transporter and returns its ID.
func (r *VehicleRepo) Create(ctx context.Context, v *model.Vehicle) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO vehicles (transporter_id, vehicle_number, vehicle_type, vehicle_subtype)
         VALUES (?, ?, ?, ?)`,
		v.TransporterID, v.VehicleNumber, v.VehicleType, v.VehicleSubtype)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return ErrVehicleNumberExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	v.ID = uint64(id)
	v.IsActive = true
	return nil
}

// GetForUpdateTx loads a vehicle under a row lock.  The allocator locks the
// vehicle row before checking its busy-state so that two confirms targeting
// the same vehicle queue up instead of both passing the check.
func (r *VehicleRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Vehicle, error) {
	var v model.Vehicle
	err := tx.QueryRowContext(ctx,
		`SELECT `+vehicleCols+` FROM vehicles WHERE id = ? FOR UPDATE`, id).
		Scan(&v.ID, &v.TransporterID, &v.VehicleNumber, &v.VehicleType,
			&v.VehicleSubtype, &v.IsActive, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListByTransporter returns a transporter's vehicles ordered by number.
func (r *VehicleRepo) ListByTransporter(ctx context.Context, transporterID uint64) ([]model.Vehicle, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+vehicleCols+` FROM vehicles WHERE transporter_id = ? ORDER BY vehicle_number`,
		transporterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Vehicle, 0)
	for rows.Next() {
		var v model.Vehicle
		if err := rows.Scan(&v.ID, &v.TransporterID, &v.VehicleNumber, &v.VehicleType,
			&v.VehicleSubtype, &v.IsActive, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
