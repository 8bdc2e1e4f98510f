package model

import "time"

// TruckRequestStatus enumerates the lifecycle of a truck request.
type TruckRequestStatus string

const (
	RequestOpen      TruckRequestStatus = "OPEN"
	RequestFulfilled TruckRequestStatus = "FULFILLED"
	RequestCancelled TruckRequestStatus = "CANCELLED"
)

// TruckRequest is one line item of a customer order: a demand for a number
// of trucks of a given type.  QuantityHeld and QuantityAssigned are the only
// mutable shared counters in the system and are updated exclusively through
// conditional UPDATEs so that QuantityHeld + QuantityAssigned never exceeds
// QuantityRequested for any observer.
//
// Fields:
//
//	ID                – primary key identifier.
//	OrderID           – owning order.
//	VehicleType       – required vehicle type (e.g. "FLATBED").
//	VehicleSubtype    – optional subtype refinement.
//	QuantityRequested – number of trucks needed.
//	QuantityHeld      – units currently reserved by active holds.
//	QuantityAssigned  – units covered by non-cancelled assignments.
//	Status            – OPEN until fully assigned or cancelled.
type TruckRequest struct {
	ID                uint64             // truck_requests.id
	OrderID           uint64             // truck_requests.order_id
	VehicleType       string             // truck_requests.vehicle_type
	VehicleSubtype    string             // truck_requests.vehicle_subtype
	QuantityRequested uint32             // truck_requests.quantity_requested
	QuantityHeld      uint32             // truck_requests.quantity_held
	QuantityAssigned  uint32             // truck_requests.quantity_assigned
	Status            TruckRequestStatus // truck_requests.status
	CreatedAt         time.Time          // truck_requests.created_at
	UpdatedAt         time.Time          // truck_requests.updated_at
}

// Available returns the remaining quantity a new hold could reserve.
func (t TruckRequest) Available() uint32 {
	used := t.QuantityHeld + t.QuantityAssigned
	if used >= t.QuantityRequested {
		return 0
	}
	return t.QuantityRequested - used
}
