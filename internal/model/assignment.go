package model

import "time"

// AssignmentStatus enumerates the delivery lifecycle of an assignment.
// The flow is strictly linear: PENDING → DRIVER_ACCEPTED → EN_ROUTE_PICKUP →
// AT_PICKUP → IN_TRANSIT → COMPLETED, with CANCELLED reachable from any
// non-terminal state.  COMPLETED and CANCELLED are terminal; reaching either
// frees the assignment's driver and vehicle for new work.
type AssignmentStatus string

const (
	AssignmentPending        AssignmentStatus = "PENDING"
	AssignmentDriverAccepted AssignmentStatus = "DRIVER_ACCEPTED"
	AssignmentEnRoutePickup  AssignmentStatus = "EN_ROUTE_PICKUP"
	AssignmentAtPickup       AssignmentStatus = "AT_PICKUP"
	AssignmentInTransit      AssignmentStatus = "IN_TRANSIT"
	AssignmentCompleted      AssignmentStatus = "COMPLETED"
	AssignmentCancelled      AssignmentStatus = "CANCELLED"
)

// assignmentTransitions maps each status to the set of statuses a driver may
// advance it to.  Cancellation is handled separately because both the driver
// and the owning transporter may cancel.
var assignmentTransitions = map[AssignmentStatus][]AssignmentStatus{
	AssignmentPending:        {AssignmentDriverAccepted},
	AssignmentDriverAccepted: {AssignmentEnRoutePickup},
	AssignmentEnRoutePickup:  {AssignmentAtPickup},
	AssignmentAtPickup:       {AssignmentInTransit},
	AssignmentInTransit:      {AssignmentCompleted},
}

// CanAdvance reports whether a driver may move an assignment from one status
// directly to another.  Skipping stages is never allowed.
func CanAdvance(from, to AssignmentStatus) bool {
	for _, next := range assignmentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the assignment's lifecycle.
func (s AssignmentStatus) IsTerminal() bool {
	return s == AssignmentCompleted || s == AssignmentCancelled
}

// Assignment is a confirmed pairing of one vehicle and one driver to one
// unit of a truck request's quantity.  It is created only by confirming a
// valid hold.  The transporter retains administrative control (cancel) while
// the driver owns operational status updates.  VehicleNumber and DriverName
// are denormalized at creation time for event payloads and never updated.
type Assignment struct {
	ID             uint64           // assignments.id
	TruckRequestID uint64           // assignments.truck_request_id
	HoldID         uint64           // assignments.hold_id
	TransporterID  uint64           // assignments.transporter_id
	VehicleID      uint64           // assignments.vehicle_id
	DriverID       uint64           // assignments.driver_id
	TripID         string           // assignments.trip_id (random hex token)
	Status         AssignmentStatus // assignments.status
	VehicleNumber  string           // assignments.vehicle_number (copy-once)
	DriverName     string           // assignments.driver_name (copy-once)
	CreatedAt      time.Time        // assignments.created_at
	UpdatedAt      time.Time        // assignments.updated_at
}
