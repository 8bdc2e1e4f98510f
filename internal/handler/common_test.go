package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/truck-allocation/internal/allocation"
)

func record(t *testing.T, err error) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := allocationError(c, err); err != nil {
		t.Fatalf("allocationError returned %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	return rec, body
}

func TestAllocationErrorStatuses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"not found", allocation.ErrNotFound, http.StatusNotFound},
		{"forbidden", allocation.ErrForbidden, http.StatusForbidden},
		{"invalid state", allocation.ErrInvalidState, http.StatusConflict},
		{"driver busy", allocation.ErrDriverBusy, http.StatusConflict},
		{"validation", allocation.Validation("bad input"), http.StatusBadRequest},
		{"sql no rows", sql.ErrNoRows, http.StatusNotFound},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, _ := record(t, tc.err)
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rec.Code)
			}
		})
	}
}

func TestAllocationErrorCapacityPayload(t *testing.T) {
	rec, body := record(t, &allocation.CapacityError{Available: 4})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if body["code"] != string(allocation.CodeInsufficientCapacity) {
		t.Fatalf("expected capacity code, got %v", body["code"])
	}
	if body["available"] != float64(4) {
		t.Fatalf("expected available=4, got %v", body["available"])
	}
}

func TestAllocationErrorBatchPayload(t *testing.T) {
	err := &allocation.BatchError{Failures: []allocation.PairingFailure{
		{VehicleID: 7, DriverID: 9, Reason: allocation.CodeResourceBusy},
	}}
	rec, body := record(t, err)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	failures, ok := body["failures"].([]interface{})
	if !ok || len(failures) != 1 {
		t.Fatalf("expected one failure entry, got %v", body["failures"])
	}
	f := failures[0].(map[string]interface{})
	if f["vehicle_id"] != float64(7) || f["reason"] != string(allocation.CodeResourceBusy) {
		t.Fatalf("unexpected failure payload %v", f)
	}
}
