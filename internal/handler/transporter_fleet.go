package handler

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/truck-allocation/internal/model"
	"github.com/iliyamo/truck-allocation/internal/repository"
)

// FleetHandler manages a transporter's vehicles and drivers.  These are the
// resources confirmed holds draw from, so registration happens here before
// any allocation can succeed.
type FleetHandler struct {
	Vehicles *repository.VehicleRepo
	Drivers  *repository.DriverRepo
	Users    *repository.UserRepo
}

func NewFleetHandler(v *repository.VehicleRepo, d *repository.DriverRepo, u *repository.UserRepo) *FleetHandler {
	return &FleetHandler{Vehicles: v, Drivers: d, Users: u}
}

type createVehicleReq struct {
	VehicleNumber  string `json:"vehicle_number"`
	VehicleType    string `json:"vehicle_type"`
	VehicleSubtype string `json:"vehicle_subtype"`
}

type createDriverReq struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	// Email of an existing DRIVER account to link, so the driver can sign
	// in and operate trips.  Optional: drivers without app access are
	// dispatched by phone.
	UserEmail string `json:"user_email"`
}

// CreateVehicle registers a truck under the transporter's fleet.
func (h *FleetHandler) CreateVehicle(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createVehicleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.VehicleNumber = strings.ToUpper(strings.TrimSpace(req.VehicleNumber))
	req.VehicleType = strings.ToUpper(strings.TrimSpace(req.VehicleType))
	req.VehicleSubtype = strings.ToUpper(strings.TrimSpace(req.VehicleSubtype))
	if req.VehicleNumber == "" || req.VehicleType == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "vehicle_number and vehicle_type required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	v := &model.Vehicle{
		TransporterID:  uid,
		VehicleNumber:  req.VehicleNumber,
		VehicleType:    req.VehicleType,
		VehicleSubtype: req.VehicleSubtype,
		IsActive:       true,
	}
	if err := h.Vehicles.Create(ctx, v); err != nil {
		if err == repository.ErrVehicleNumberExists {
			return c.JSON(http.StatusConflict, echo.Map{"error": "vehicle number already registered"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create vehicle failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"id":              v.ID,
		"vehicle_number":  v.VehicleNumber,
		"vehicle_type":    v.VehicleType,
		"vehicle_subtype": v.VehicleSubtype,
		"is_active":       v.IsActive,
	})
}

// ListVehicles returns the transporter's fleet.
func (h *FleetHandler) ListVehicles(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	vehicles, err := h.Vehicles.ListByTransporter(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]echo.Map, 0, len(vehicles))
	for _, v := range vehicles {
		out = append(out, echo.Map{
			"id":              v.ID,
			"vehicle_number":  v.VehicleNumber,
			"vehicle_type":    v.VehicleType,
			"vehicle_subtype": v.VehicleSubtype,
			"is_active":       v.IsActive,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"vehicles": out})
}

// CreateDriver registers a driver, optionally linked to a DRIVER login.
func (h *FleetHandler) CreateDriver(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createDriverReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	d := &model.Driver{
		TransporterID: uid,
		Name:          req.Name,
		Phone:         strings.TrimSpace(req.Phone),
		IsActive:      true,
	}
	if email := strings.ToLower(strings.TrimSpace(req.UserEmail)); email != "" {
		u, err := h.Users.GetByEmail(ctx, email)
		if err != nil {
			if err == sql.ErrNoRows {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "no account with that email"})
			}
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
		}
		if u.Role != model.RoleDriver {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "linked account must have the DRIVER role"})
		}
		d.UserID = &u.ID
	}

	if err := h.Drivers.Create(ctx, d); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create driver failed"})
	}
	resp := echo.Map{
		"id":        d.ID,
		"name":      d.Name,
		"phone":     d.Phone,
		"is_active": d.IsActive,
	}
	if d.UserID != nil {
		resp["user_id"] = *d.UserID
	}
	return c.JSON(http.StatusCreated, resp)
}

// ListDrivers returns the transporter's drivers.
func (h *FleetHandler) ListDrivers(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	drivers, err := h.Drivers.ListByTransporter(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]echo.Map, 0, len(drivers))
	for _, d := range drivers {
		m := echo.Map{
			"id":        d.ID,
			"name":      d.Name,
			"phone":     d.Phone,
			"is_active": d.IsActive,
		}
		if d.UserID != nil {
			m["user_id"] = *d.UserID
		}
		out = append(out, m)
	}
	return c.JSON(http.StatusOK, echo.Map{"drivers": out})
}
