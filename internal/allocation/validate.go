package allocation

// Pairing is one (vehicle, driver) combination submitted for confirmation.
type Pairing struct {
	VehicleID uint64 `json:"vehicle_id"`
	DriverID  uint64 `json:"driver_id"`
}

// ValidatePairings checks the shape of a confirm batch before any database
// work happens.  The batch must contain exactly quantity pairings, and no
// vehicle or driver may appear twice within it.
func ValidatePairings(quantity uint32, pairs []Pairing) *Error {
	if len(pairs) == 0 {
		return Validation("assignments list must not be empty")
	}
	if uint32(len(pairs)) != quantity {
		return Validation("assignments count must equal the hold quantity")
	}
	seenVehicles := make(map[uint64]struct{}, len(pairs))
	seenDrivers := make(map[uint64]struct{}, len(pairs))
	for _, p := range pairs {
		if p.VehicleID == 0 || p.DriverID == 0 {
			return Validation("vehicle_id and driver_id are required for every assignment")
		}
		if _, dup := seenVehicles[p.VehicleID]; dup {
			return Validation("duplicate vehicle in assignments")
		}
		if _, dup := seenDrivers[p.DriverID]; dup {
			return Validation("duplicate driver in assignments")
		}
		seenVehicles[p.VehicleID] = struct{}{}
		seenDrivers[p.DriverID] = struct{}{}
	}
	return nil
}
