// Package queue defines message payloads exchanged over the message broker.
package queue

// Queue names used by the publisher and the notification consumer.
const (
	QueueAssigned         = "allocation.assigned"
	QueueTripAssigned     = "trip.assigned"
	QueueAssignmentStatus = "assignment.status"
)

// AssignedPairing is one confirmed pairing inside an AssignedEvent.
type AssignedPairing struct {
	VehicleNumber string `json:"vehicle_number"`
	DriverName    string `json:"driver_name"`
	Status        string `json:"status"`
}

// AssignedEvent is published to the customer-facing channel when a hold is
// confirmed into assignments.  It carries enough denormalized detail for
// downstream consumers to notify the customer without querying the primary
// database.
type AssignedEvent struct {
	TruckRequestID uint64            `json:"truck_request_id"`
	OrderID        uint64            `json:"order_id"`
	Assignments    []AssignedPairing `json:"assignments"`
	ConfirmedAt    string            `json:"confirmed_at"`
}

// TripAssignedEvent is published per driver when a new trip lands on them.
type TripAssignedEvent struct {
	AssignmentID   uint64 `json:"assignment_id"`
	TripID         string `json:"trip_id"`
	TruckRequestID uint64 `json:"truck_request_id"`
	DriverID       uint64 `json:"driver_id"`
	Status         string `json:"status"`
}

// StatusChangedEvent is published to the customer-facing channel whenever
// an assignment advances through its delivery lifecycle or is cancelled.
type StatusChangedEvent struct {
	AssignmentID   uint64 `json:"assignment_id"`
	TripID         string `json:"trip_id"`
	TruckRequestID uint64 `json:"truck_request_id"`
	Status         string `json:"status"`
	VehicleNumber  string `json:"vehicle_number"`
	ChangedAt      string `json:"changed_at"`
}
