package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/truck-allocation/internal/allocation"
	"github.com/iliyamo/truck-allocation/internal/config"
	"github.com/iliyamo/truck-allocation/internal/repository"
)

// TransporterHandler serves the allocation surface for transporters:
// browsing open truck requests, holding quantity, confirming holds into
// assignments and cancelling assignments.  All capacity rules live in the
// allocation service; this layer only binds HTTP to it.
type TransporterHandler struct {
	Cfg      config.Config
	Alloc    *allocation.Service
	Requests *repository.TruckRequestRepo
	Holds    *repository.HoldRepo
}

func NewTransporterHandler(cfg config.Config, alloc *allocation.Service, r *repository.TruckRequestRepo, h *repository.HoldRepo) *TransporterHandler {
	return &TransporterHandler{Cfg: cfg, Alloc: alloc, Requests: r, Holds: h}
}

type createHoldReq struct {
	TruckRequestID uint64 `json:"truck_request_id"`
	Quantity       uint32 `json:"quantity"`
	// TTLSeconds overrides the default hold lifetime, clamped to the
	// configured maximum.  Zero means use the default.
	TTLSeconds int `json:"ttl_seconds"`
}

type confirmHoldReq struct {
	Assignments []allocation.Pairing `json:"assignments"`
}

// ListOpenRequests returns truck requests with remaining capacity, filtered
// by ?vehicle_type= when given.
func (h *TransporterHandler) ListOpenRequests(c echo.Context) error {
	if _, err := getUserID(c); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	vehicleType := strings.ToUpper(strings.TrimSpace(c.QueryParam("vehicle_type")))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	requests, err := h.Requests.ListOpen(ctx, vehicleType)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]echo.Map, 0, len(requests))
	for _, t := range requests {
		m := echo.Map{
			"id":                 t.ID,
			"vehicle_type":       t.VehicleType,
			"quantity_requested": t.QuantityRequested,
			"available":          t.Available(),
		}
		if t.VehicleSubtype != "" {
			m["vehicle_subtype"] = t.VehicleSubtype
		}
		out = append(out, m)
	}
	return c.JSON(http.StatusOK, echo.Map{"truck_requests": out})
}

// CreateHold reserves quantity on a truck request for this transporter.
func (h *TransporterHandler) CreateHold(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createHoldReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.TruckRequestID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "truck_request_id required"})
	}

	ttl := h.Cfg.HoldTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
		if ttl > h.Cfg.HoldTTLMax {
			ttl = h.Cfg.HoldTTLMax
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	res, err := h.Alloc.CreateHold(ctx, req.TruckRequestID, uid, req.Quantity, ttl)
	if err != nil {
		return allocationError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"hold_id":    res.HoldID,
		"quantity":   res.Quantity,
		"expires_at": res.ExpiresAt.Format(time.RFC3339),
	})
}

// ReleaseHold gives a hold's quantity back.  Safe to retry.
func (h *TransporterHandler) ReleaseHold(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	holdID := pathID(c, "id")
	if holdID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid hold id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Alloc.ReleaseHold(ctx, holdID, uid); err != nil {
		return allocationError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "hold released"})
}

// ConfirmHold turns a hold into assignments, one per (vehicle, driver)
// pairing in the body.  All-or-nothing: on a 409 with failures the hold is
// still active and the transporter can resubmit with different resources.
func (h *TransporterHandler) ConfirmHold(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	holdID := pathID(c, "id")
	if holdID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid hold id"})
	}
	var req confirmHoldReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	recs, err := h.Alloc.ConfirmHold(ctx, holdID, uid, req.Assignments)
	if err != nil {
		return allocationError(c, err)
	}
	out := make([]echo.Map, 0, len(recs))
	for _, a := range recs {
		out = append(out, echo.Map{
			"id":             a.ID,
			"trip_id":        a.TripID,
			"vehicle_id":     a.VehicleID,
			"driver_id":      a.DriverID,
			"vehicle_number": a.VehicleNumber,
			"driver_name":    a.DriverName,
			"status":         a.Status,
		})
	}
	return c.JSON(http.StatusCreated, echo.Map{"assignments": out})
}

// ListHolds returns the transporter's holds, newest first.
func (h *TransporterHandler) ListHolds(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	holds, err := h.Holds.ListByTransporter(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]echo.Map, 0, len(holds))
	for _, hld := range holds {
		out = append(out, echo.Map{
			"id":               hld.ID,
			"truck_request_id": hld.TruckRequestID,
			"quantity":         hld.Quantity,
			"status":           hld.Status,
			"expires_at":       hld.ExpiresAt.Format(time.RFC3339),
			"created_at":       hld.CreatedAt.Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"holds": out})
}

// CancelAssignment lets the transporter cancel one of its assignments and
// free that unit of the truck request.
func (h *TransporterHandler) CancelAssignment(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	assignmentID := pathID(c, "id")
	if assignmentID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid assignment id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	a, err := h.Alloc.CancelAssignment(ctx, assignmentID, uid, 0)
	if err != nil {
		return allocationError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":      a.ID,
		"trip_id": a.TripID,
		"status":  a.Status,
	})
}
