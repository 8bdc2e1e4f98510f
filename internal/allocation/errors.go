package allocation

import "fmt"

// Code classifies an operational failure of the allocation engine.  Every
// error surfaced to a caller carries exactly one code so that the HTTP
// layer can map it to a status and clients can decide whether to retry.
type Code string

const (
	// CodeInsufficientCapacity – the hold asked for more than the request
	// has left.  Recoverable: retry with a smaller quantity.
	CodeInsufficientCapacity Code = "INSUFFICIENT_CAPACITY"
	// CodeNotFound – unknown entity, or an ownership mismatch deliberately
	// masked as not-found to avoid leaking that the ID exists.
	CodeNotFound Code = "NOT_FOUND"
	// CodeForbidden – the actor exists and the entity exists, but the actor
	// lacks rights for this operation.
	CodeForbidden Code = "FORBIDDEN"
	// CodeInvalidState – the entity is not in the state the operation
	// requires, e.g. confirming an expired hold.
	CodeInvalidState Code = "INVALID_STATE"
	// CodeResourceBusy – the vehicle or driver is already on a non-terminal
	// assignment.  Recoverable: substitute a different resource.
	CodeResourceBusy Code = "RESOURCE_BUSY"
	// CodeDriverBusy – accept-time re-check found the driver on another
	// active trip.
	CodeDriverBusy Code = "DRIVER_BUSY"
	// CodeValidation – malformed input.
	CodeValidation Code = "VALIDATION_ERROR"
)

// Error is a coded operational error.  None of these should ever crash the
// process; they are part of the API contract.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	ErrNotFound     = &Error{Code: CodeNotFound, Message: "not found"}
	ErrForbidden    = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrInvalidState = &Error{Code: CodeInvalidState, Message: "invalid state for this operation"}
	ErrDriverBusy   = &Error{Code: CodeDriverBusy, Message: "driver is already on an active trip"}
)

// Validation returns a VALIDATION_ERROR with the given message.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// CapacityError reports a failed hold along with how much quantity is still
// available, so the caller can immediately retry with a smaller amount.
type CapacityError struct {
	Available uint32
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("insufficient capacity: %d unit(s) available", e.Available)
}

// PairingFailure identifies one (vehicle, driver) pairing that blocked a
// batch confirm, with the reason it failed.
type PairingFailure struct {
	VehicleID uint64 `json:"vehicle_id"`
	DriverID  uint64 `json:"driver_id"`
	Reason    Code   `json:"reason"`
}

// BatchError reports a confirm that failed per-pairing.  The batch is
// all-or-nothing: when this error is returned, no state was changed and
// the hold is still active, so the caller can fix only the failing rows
// and confirm again without re-requesting a hold.
type BatchError struct {
	Failures []PairingFailure
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("confirm rejected: %d pairing(s) failed", len(e.Failures))
}
