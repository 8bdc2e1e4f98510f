package handler

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/truck-allocation/internal/allocation"
	"github.com/iliyamo/truck-allocation/internal/model"
	"github.com/iliyamo/truck-allocation/internal/repository"
)

// DriverHandler serves the driver's trip surface.  A driver account maps to
// a driver record via drivers.user_id; drivers without a linked account
// have no API access and are dispatched out of band.
type DriverHandler struct {
	Alloc       *allocation.Service
	Drivers     *repository.DriverRepo
	Assignments *repository.AssignmentRepo
}

func NewDriverHandler(alloc *allocation.Service, d *repository.DriverRepo, a *repository.AssignmentRepo) *DriverHandler {
	return &DriverHandler{Alloc: alloc, Drivers: d, Assignments: a}
}

type updateTripStatusReq struct {
	Status string `json:"status"`
}

// driverFor resolves the authenticated user to their driver record.
func (h *DriverHandler) driverFor(ctx context.Context, c echo.Context) (*model.Driver, error) {
	uid, err := getUserID(c)
	if err != nil {
		return nil, err
	}
	return h.Drivers.GetByUserID(ctx, uid)
}

// ListTrips returns the driver's assignments, newest first.
func (h *DriverHandler) ListTrips(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	d, err := h.driverFor(ctx, c)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "no driver profile linked to this account"})
		}
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	trips, err := h.Assignments.ListByDriver(ctx, d.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]echo.Map, 0, len(trips))
	for _, a := range trips {
		out = append(out, echo.Map{
			"id":               a.ID,
			"trip_id":          a.TripID,
			"truck_request_id": a.TruckRequestID,
			"vehicle_number":   a.VehicleNumber,
			"status":           a.Status,
			"created_at":       a.CreatedAt.Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"trips": out})
}

// AcceptTrip moves a pending assignment to DRIVER_ACCEPTED, re-checking
// that the driver is not already committed elsewhere.
func (h *DriverHandler) AcceptTrip(c echo.Context) error {
	assignmentID := pathID(c, "id")
	if assignmentID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid assignment id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	d, err := h.driverFor(ctx, c)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "no driver profile linked to this account"})
		}
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	a, err := h.Alloc.AcceptAssignment(ctx, assignmentID, d.ID)
	if err != nil {
		return allocationError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":      a.ID,
		"trip_id": a.TripID,
		"status":  a.Status,
	})
}

// UpdateTripStatus advances an assignment one stage along the lifecycle.
func (h *DriverHandler) UpdateTripStatus(c echo.Context) error {
	assignmentID := pathID(c, "id")
	if assignmentID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid assignment id"})
	}
	var req updateTripStatusReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	next := model.AssignmentStatus(strings.ToUpper(strings.TrimSpace(req.Status)))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	d, err := h.driverFor(ctx, c)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "no driver profile linked to this account"})
		}
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	a, err := h.Alloc.UpdateAssignmentStatus(ctx, assignmentID, d.ID, next)
	if err != nil {
		return allocationError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":      a.ID,
		"trip_id": a.TripID,
		"status":  a.Status,
	})
}

// CancelTrip lets the assigned driver cancel a non-terminal assignment.
func (h *DriverHandler) CancelTrip(c echo.Context) error {
	assignmentID := pathID(c, "id")
	if assignmentID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid assignment id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	d, err := h.driverFor(ctx, c)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "no driver profile linked to this account"})
		}
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	a, err := h.Alloc.CancelAssignment(ctx, assignmentID, 0, d.ID)
	if err != nil {
		return allocationError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":      a.ID,
		"trip_id": a.TripID,
		"status":  a.Status,
	})
}
