package model

import "time"

// HoldStatus enumerates the lifecycle of a hold.  A hold starts ACTIVE and
// moves exactly once to CONFIRMED (successful confirm), RELEASED (explicit
// release) or EXPIRED (timer fired).  Once it leaves ACTIVE it is immutable.
type HoldStatus string

const (
	HoldActive    HoldStatus = "ACTIVE"
	HoldConfirmed HoldStatus = "CONFIRMED"
	HoldReleased  HoldStatus = "RELEASED"
	HoldExpired   HoldStatus = "EXPIRED"
)

// Hold represents a time-bounded soft reservation of quantity against a
// truck request.  It is owned exclusively by the transporter who created
// it; no other party may confirm or release it.  The vehicle type and
// subtype are copied from the truck request at creation time so that
// confirm-time validation does not depend on the request row.
//
// Fields:
//
//	ID             – primary key identifier.
//	TruckRequestID – truck request the quantity is reserved against.
//	TransporterID  – owning transporter.
//	VehicleType    – required vehicle type, copied from the request.
//	VehicleSubtype – required vehicle subtype, copied from the request.
//	Quantity       – number of units reserved.
//	Status         – current lifecycle state.
//	CreatedAt      – when the hold was created.
//	ExpiresAt      – when the reservation lapses unless confirmed.
type Hold struct {
	ID             uint64     // holds.id
	TruckRequestID uint64     // holds.truck_request_id
	TransporterID  uint64     // holds.transporter_id
	VehicleType    string     // holds.vehicle_type
	VehicleSubtype string     // holds.vehicle_subtype
	Quantity       uint32     // holds.quantity
	Status         HoldStatus // holds.status
	CreatedAt      time.Time  // holds.created_at
	ExpiresAt      time.Time  // holds.expires_at
}
