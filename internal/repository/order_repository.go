package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/truck-allocation/internal/model"
)

// OrderRepo provides data access to the orders table.  Orders are glue
// around truck requests; only cancellation interacts with the allocation
// engine, and then only through the guard checks in the handler layer.
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo returns a new OrderRepo bound to the database.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions that
// span orders and truck requests.
func (r *OrderRepo) DB() *sql.DB { return r.db }

const orderCols = `id, customer_id, pickup_city, dropoff_city, pickup_at, status, created_at, updated_at`

// CreateTx inserts a new order within the provided transaction and
// populates the generated ID.
func (r *OrderRepo) CreateTx(ctx context.Context, tx *sql.Tx, o *model.Order) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO orders (customer_id, pickup_city, dropoff_city, pickup_at)
         VALUES (?, ?, ?, ?)`,
		o.CustomerID, o.PickupCity, o.DropoffCity, o.PickupAt.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = uint64(id)
	o.Status = model.OrderOpen
	return nil
}

// GetForCustomer returns an order if it belongs to the given customer.
// A foreign order is reported as sql.ErrNoRows, not ErrForbidden, to avoid
// leaking that the ID exists.
func (r *OrderRepo) GetForCustomer(ctx context.Context, orderID, customerID uint64) (*model.Order, error) {
	var o model.Order
	err := r.db.QueryRowContext(ctx,
		`SELECT `+orderCols+` FROM orders WHERE id = ? AND customer_id = ?`,
		orderID, customerID).
		Scan(&o.ID, &o.CustomerID, &o.PickupCity, &o.DropoffCity, &o.PickupAt,
			&o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListByCustomer returns a customer's orders, newest first.
func (r *OrderRepo) ListByCustomer(ctx context.Context, customerID uint64) ([]model.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderCols+` FROM orders WHERE customer_id = ? ORDER BY created_at DESC`,
		customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Order, 0)
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.PickupCity, &o.DropoffCity,
			&o.PickupAt, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CancelTx marks an OPEN order CANCELLED.  Returns false when the order was
// not OPEN anymore.
func (r *OrderRepo) CancelTx(ctx context.Context, tx *sql.Tx, orderID uint64) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = 'CANCELLED' WHERE id = ? AND status = 'OPEN'`, orderID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
