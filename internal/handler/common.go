package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/truck-allocation/internal/allocation"
)

// getUserID extracts the authenticated user's ID from the Echo context.
// JWT claims decode numbers as float64 and the subject is issued as a
// string, so every plausible representation is accepted.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// pathID parses a numeric path parameter, returning 0 when it is absent or
// not a positive integer.
func pathID(c echo.Context, name string) uint64 {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// codeStatus maps allocation error codes to HTTP statuses.
var codeStatus = map[allocation.Code]int{
	allocation.CodeInsufficientCapacity: http.StatusConflict,
	allocation.CodeNotFound:             http.StatusNotFound,
	allocation.CodeForbidden:            http.StatusForbidden,
	allocation.CodeInvalidState:         http.StatusConflict,
	allocation.CodeResourceBusy:         http.StatusConflict,
	allocation.CodeDriverBusy:           http.StatusConflict,
	allocation.CodeValidation:           http.StatusBadRequest,
}

// allocationError translates an allocation engine error into the JSON shape
// clients consume.  Capacity failures include the remaining availability
// and batch failures include the per-pairing breakdown, so a client can
// react without a follow-up query.
func allocationError(c echo.Context, err error) error {
	var capErr *allocation.CapacityError
	if errors.As(err, &capErr) {
		return c.JSON(http.StatusConflict, echo.Map{
			"error":     "insufficient capacity",
			"code":      allocation.CodeInsufficientCapacity,
			"available": capErr.Available,
		})
	}
	var batchErr *allocation.BatchError
	if errors.As(err, &batchErr) {
		return c.JSON(http.StatusConflict, echo.Map{
			"error":    "one or more assignments could not be created",
			"code":     allocation.CodeResourceBusy,
			"failures": batchErr.Failures,
		})
	}
	var aerr *allocation.Error
	if errors.As(err, &aerr) {
		status, ok := codeStatus[aerr.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		return c.JSON(status, echo.Map{"error": aerr.Message, "code": aerr.Code})
	}
	if errors.Is(err, sql.ErrNoRows) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found", "code": allocation.CodeNotFound})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
