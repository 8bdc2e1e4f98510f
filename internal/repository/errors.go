// Package repository implements the MySQL persistence layer.  This file
// defines sentinel errors reused across repositories so that higher layers
// can distinguish failure scenarios without string matching.  For example,
// ErrEmailExists lets the auth handler answer 409 on a duplicate
// registration while every other insert failure stays a 500.
package repository

import "errors"

// ErrEmailExists is returned by UserRepo.Create when the email column's
// unique index rejects the insert.
var ErrEmailExists = errors.New("email already exists")

// ErrVehicleNumberExists is returned by VehicleRepo.Create when the
// registration plate is already registered to some fleet.
var ErrVehicleNumberExists = errors.New("vehicle number already exists")
