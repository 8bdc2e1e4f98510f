package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/truck-allocation/internal/model"
	"github.com/iliyamo/truck-allocation/internal/repository"
)

// CustomerHandler serves the customer-facing order surface.  Customers post
// orders made of truck requests and watch assignments appear as
// transporters confirm holds; they never touch holds directly.
type CustomerHandler struct {
	Orders      *repository.OrderRepo
	Requests    *repository.TruckRequestRepo
	Holds       *repository.HoldRepo
	Assignments *repository.AssignmentRepo
}

func NewCustomerHandler(o *repository.OrderRepo, r *repository.TruckRequestRepo, h *repository.HoldRepo, a *repository.AssignmentRepo) *CustomerHandler {
	return &CustomerHandler{Orders: o, Requests: r, Holds: h, Assignments: a}
}

type truckRequestReq struct {
	VehicleType    string `json:"vehicle_type"`
	VehicleSubtype string `json:"vehicle_subtype"`
	Quantity       uint32 `json:"quantity"`
}

type createOrderReq struct {
	PickupCity    string            `json:"pickup_city"`
	DropoffCity   string            `json:"dropoff_city"`
	PickupAt      string            `json:"pickup_at"` // RFC3339
	TruckRequests []truckRequestReq `json:"truck_requests"`
}

type truckRequestResp struct {
	ID                uint64 `json:"id"`
	VehicleType       string `json:"vehicle_type"`
	VehicleSubtype    string `json:"vehicle_subtype,omitempty"`
	QuantityRequested uint32 `json:"quantity_requested"`
	QuantityHeld      uint32 `json:"quantity_held"`
	QuantityAssigned  uint32 `json:"quantity_assigned"`
	Status            string `json:"status"`
}

type assignmentResp struct {
	ID            uint64 `json:"id"`
	TripID        string `json:"trip_id"`
	Status        string `json:"status"`
	VehicleNumber string `json:"vehicle_number"`
	DriverName    string `json:"driver_name"`
}

func toTruckRequestResp(t model.TruckRequest) truckRequestResp {
	return truckRequestResp{
		ID:                t.ID,
		VehicleType:       t.VehicleType,
		VehicleSubtype:    t.VehicleSubtype,
		QuantityRequested: t.QuantityRequested,
		QuantityHeld:      t.QuantityHeld,
		QuantityAssigned:  t.QuantityAssigned,
		Status:            string(t.Status),
	}
}

func toAssignmentResp(a model.Assignment) assignmentResp {
	return assignmentResp{
		ID:            a.ID,
		TripID:        a.TripID,
		Status:        string(a.Status),
		VehicleNumber: a.VehicleNumber,
		DriverName:    a.DriverName,
	}
}

// CreateOrder creates an order together with all its truck requests in one
// transaction; an order with zero requests cannot exist.
func (h *CustomerHandler) CreateOrder(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createOrderReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.PickupCity = strings.TrimSpace(req.PickupCity)
	req.DropoffCity = strings.TrimSpace(req.DropoffCity)
	if req.PickupCity == "" || req.DropoffCity == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "pickup_city and dropoff_city required"})
	}
	pickupAt, err := time.Parse(time.RFC3339, req.PickupAt)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "pickup_at must be RFC3339"})
	}
	if len(req.TruckRequests) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "at least one truck request required"})
	}
	for _, t := range req.TruckRequests {
		if strings.TrimSpace(t.VehicleType) == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "vehicle_type required for every truck request"})
		}
		if t.Quantity < 1 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "quantity must be at least 1"})
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	tx, err := h.Orders.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "begin tx failed"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	order := &model.Order{
		CustomerID:  uid,
		PickupCity:  req.PickupCity,
		DropoffCity: req.DropoffCity,
		PickupAt:    pickupAt.UTC(),
		Status:      model.OrderOpen,
	}
	if err := h.Orders.CreateTx(ctx, tx, order); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create order failed"})
	}

	out := make([]truckRequestResp, 0, len(req.TruckRequests))
	for _, t := range req.TruckRequests {
		tr := &model.TruckRequest{
			OrderID:           order.ID,
			VehicleType:       strings.ToUpper(strings.TrimSpace(t.VehicleType)),
			VehicleSubtype:    strings.ToUpper(strings.TrimSpace(t.VehicleSubtype)),
			QuantityRequested: t.Quantity,
			Status:            model.RequestOpen,
		}
		if err := h.Requests.CreateTx(ctx, tx, tr); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create truck request failed"})
		}
		out = append(out, toTruckRequestResp(*tr))
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
	}
	committed = true

	return c.JSON(http.StatusCreated, echo.Map{
		"id":             order.ID,
		"pickup_city":    order.PickupCity,
		"dropoff_city":   order.DropoffCity,
		"pickup_at":      order.PickupAt.Format(time.RFC3339),
		"status":         order.Status,
		"truck_requests": out,
	})
}

// ListOrders returns the customer's orders, newest first.
func (h *CustomerHandler) ListOrders(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	orders, err := h.Orders.ListByCustomer(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]echo.Map, 0, len(orders))
	for _, o := range orders {
		out = append(out, echo.Map{
			"id":           o.ID,
			"pickup_city":  o.PickupCity,
			"dropoff_city": o.DropoffCity,
			"pickup_at":    o.PickupAt.Format(time.RFC3339),
			"status":       o.Status,
			"created_at":   o.CreatedAt.Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"orders": out})
}

// GetOrder returns one order with its truck requests and the assignments
// fulfilling them, so the customer sees allocation progress in one call.
func (h *CustomerHandler) GetOrder(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID := pathID(c, "id")
	if orderID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	order, err := h.Orders.GetForCustomer(ctx, orderID, uid)
	if err != nil {
		return allocationError(c, err)
	}
	requests, err := h.Requests.ListByOrder(ctx, orderID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	reqOut := make([]echo.Map, 0, len(requests))
	for _, t := range requests {
		assignments, err := h.Assignments.ListByTruckRequest(ctx, t.ID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
		}
		asgOut := make([]assignmentResp, 0, len(assignments))
		for _, a := range assignments {
			asgOut = append(asgOut, toAssignmentResp(a))
		}
		m := echo.Map{
			"id":                 t.ID,
			"vehicle_type":       t.VehicleType,
			"quantity_requested": t.QuantityRequested,
			"quantity_held":      t.QuantityHeld,
			"quantity_assigned":  t.QuantityAssigned,
			"status":             t.Status,
			"assignments":        asgOut,
		}
		if t.VehicleSubtype != "" {
			m["vehicle_subtype"] = t.VehicleSubtype
		}
		reqOut = append(reqOut, m)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"id":             order.ID,
		"pickup_city":    order.PickupCity,
		"dropoff_city":   order.DropoffCity,
		"pickup_at":      order.PickupAt.Format(time.RFC3339),
		"status":         order.Status,
		"truck_requests": reqOut,
	})
}

// CancelOrder cancels an open order and all its truck requests.  Orders
// with assignments or active holds cannot be cancelled wholesale; the
// customer has to wait for holds to lapse or ask the transporter to cancel
// the assignments first.
func (h *CustomerHandler) CancelOrder(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID := pathID(c, "id")
	if orderID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	order, err := h.Orders.GetForCustomer(ctx, orderID, uid)
	if err != nil {
		return allocationError(c, err)
	}
	if order.Status != model.OrderOpen {
		return c.JSON(http.StatusConflict, echo.Map{"error": "order is not open"})
	}

	n, err := h.Assignments.CountByOrder(ctx, orderID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if n > 0 {
		return c.JSON(http.StatusConflict, echo.Map{"error": "order has assignments; cancel them first"})
	}
	requests, err := h.Requests.ListByOrder(ctx, orderID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	for _, t := range requests {
		active, err := h.Holds.CountActiveByRequest(ctx, t.ID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
		}
		if active > 0 {
			return c.JSON(http.StatusConflict, echo.Map{"error": "order has active holds; wait for them to lapse"})
		}
	}

	tx, err := h.Orders.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "begin tx failed"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	ok, err := h.Orders.CancelTx(ctx, tx, orderID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cancel failed"})
	}
	if !ok {
		return c.JSON(http.StatusConflict, echo.Map{"error": "order is not open"})
	}
	if err := h.Requests.CancelByOrderTx(ctx, tx, orderID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cancel failed"})
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
	}
	committed = true

	return c.JSON(http.StatusOK, echo.Map{"message": "order cancelled"})
}
