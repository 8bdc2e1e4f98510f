package model

import "time"

// OrderStatus enumerates the lifecycle of a customer order.
type OrderStatus string

const (
	OrderOpen      OrderStatus = "OPEN"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderCompleted OrderStatus = "COMPLETED"
)

// Order groups the truck requests a customer posted for a single shipment.
// The allocation engine never mutates orders directly; it operates on the
// truck requests underneath.
type Order struct {
	ID          uint64      // orders.id
	CustomerID  uint64      // orders.customer_id
	PickupCity  string      // orders.pickup_city
	DropoffCity string      // orders.dropoff_city
	PickupAt    time.Time   // orders.pickup_at
	Status      OrderStatus // orders.status
	CreatedAt   time.Time   // orders.created_at
	UpdatedAt   time.Time   // orders.updated_at
}
