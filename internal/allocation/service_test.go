// Concurrency-sensitive tests for the hold lifecycle (run with -race).
package allocation

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/iliyamo/truck-allocation/internal/lock"
	"github.com/iliyamo/truck-allocation/internal/model"
	"github.com/iliyamo/truck-allocation/internal/repository"
)

type testEnv struct {
	db          *sql.DB
	svc         *Service
	requests    *repository.TruckRequestRepo
	holds       *repository.HoldRepo
	assignments *repository.AssignmentRepo
}

func setupTest(t *testing.T) *testEnv {
	t.Helper()

	dsn := os.Getenv("TRUCKALLOC_TEST_DSN")
	if dsn == "" {
		t.Skip("TRUCKALLOC_TEST_DSN not set; skipping DB-backed tests")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping db: %v", err)
	}
	if err := applyMigration(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}

	// Child tables first so the foreign keys do not get in the way.
	for _, table := range []string{
		"assignments", "holds", "truck_requests", "orders",
		"drivers", "vehicles", "refresh_tokens", "users",
	} {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("clean table %s: %v", table, err)
		}
	}

	requests := repository.NewTruckRequestRepo(db)
	holds := repository.NewHoldRepo(db)
	assignments := repository.NewAssignmentRepo(db)
	vehicles := repository.NewVehicleRepo(db)
	drivers := repository.NewDriverRepo(db)
	svc := New(db, requests, holds, assignments, vehicles, drivers, lock.NewRedisLocker(nil), nil)

	return &testEnv{db: db, svc: svc, requests: requests, holds: holds, assignments: assignments}
}

func applyMigration(ctx context.Context, db *sql.DB) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	content, err := os.ReadFile(filepath.Join(root, "migrations", "0001_init.sql"))
	if err != nil {
		return err
	}
	cleaned := stripSQLComments(string(content))
	for _, stmt := range splitSQL(cleaned) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

func stripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func splitSQL(input string) []string {
	var out []string
	for _, stmt := range strings.Split(input, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// ----- fixtures -----

var fixtureSeq int

func (e *testEnv) exec(t *testing.T, query string, args ...interface{}) uint64 {
	t.Helper()
	res, err := e.db.Exec(query, args...)
	if err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("last insert id: %v", err)
	}
	return uint64(id)
}

func (e *testEnv) seedUser(t *testing.T, role string) uint64 {
	fixtureSeq++
	email := fmt.Sprintf("%s-%d@test.local", strings.ToLower(role), fixtureSeq)
	return e.exec(t, `INSERT INTO users (email, password_hash, role) VALUES (?, 'x', ?)`, email, role)
}

// seedRequest creates an order with a single truck request and returns the
// request's ID.
func (e *testEnv) seedRequest(t *testing.T, customerID uint64, vehicleType string, qty uint32) uint64 {
	orderID := e.exec(t,
		`INSERT INTO orders (customer_id, pickup_city, dropoff_city, pickup_at) VALUES (?, 'Mashhad', 'Tehran', ?)`,
		customerID, time.Now().UTC().Add(24*time.Hour).Format("2006-01-02 15:04:05"))
	return e.exec(t,
		`INSERT INTO truck_requests (order_id, vehicle_type, quantity_requested) VALUES (?, ?, ?)`,
		orderID, vehicleType, qty)
}

func (e *testEnv) seedVehicle(t *testing.T, transporterID uint64, vehicleType string) uint64 {
	fixtureSeq++
	return e.exec(t,
		`INSERT INTO vehicles (transporter_id, vehicle_number, vehicle_type) VALUES (?, ?, ?)`,
		transporterID, fmt.Sprintf("TRK-%d", fixtureSeq), vehicleType)
}

func (e *testEnv) seedDriver(t *testing.T, transporterID uint64) uint64 {
	fixtureSeq++
	return e.exec(t,
		`INSERT INTO drivers (transporter_id, name) VALUES (?, ?)`,
		transporterID, fmt.Sprintf("Driver %d", fixtureSeq))
}

func (e *testEnv) requestState(t *testing.T, id uint64) *model.TruckRequest {
	t.Helper()
	req, err := e.requests.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get request %d: %v", id, err)
	}
	return req
}

func (e *testEnv) holdState(t *testing.T, id uint64) *model.Hold {
	t.Helper()
	h, err := e.holds.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get hold %d: %v", id, err)
	}
	return h
}

// ----- hold lifecycle -----

func TestCreateHoldReportsAvailability(t *testing.T) {
	e := setupTest(t)
	ctx := context.Background()

	customer := e.seedUser(t, "CUSTOMER")
	transporter := e.seedUser(t, "TRANSPORTER")
	reqID := e.seedRequest(t, customer, "FLATBED", 5)

	res, err := e.svc.CreateHold(ctx, reqID, transporter, 3, time.Minute)
	if err != nil {
		t.Fatalf("first hold: %v", err)
	}
	if res.Quantity != 3 {
		t.Fatalf("expected quantity 3, got %d", res.Quantity)
	}
	if got := e.requestState(t, reqID).QuantityHeld; got != 3 {
		t.Fatalf("expected 3 held, got %d", got)
	}

	_, err = e.svc.CreateHold(ctx, reqID, transporter, 3, time.Minute)
	var capErr *CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CapacityError, got %v", err)
	}
	if capErr.Available != 2 {
		t.Fatalf("expected 2 available, got %d", capErr.Available)
	}

	if _, err := e.svc.CreateHold(ctx, reqID, transporter, 2, time.Minute); err != nil {
		t.Fatalf("hold for remaining capacity: %v", err)
	}
	if got := e.requestState(t, reqID).Available(); got != 0 {
		t.Fatalf("expected 0 available, got %d", got)
	}
}

func TestCreateHoldUnknownRequest(t *testing.T) {
	e := setupTest(t)
	transporter := e.seedUser(t, "TRANSPORTER")

	_, err := e.svc.CreateHold(context.Background(), 999999, transporter, 1, time.Minute)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentHoldsLastUnit(t *testing.T) {
	e := setupTest(t)
	ctx := context.Background()

	customer := e.seedUser(t, "CUSTOMER")
	t1 := e.seedUser(t, "TRANSPORTER")
	t2 := e.seedUser(t, "TRANSPORTER")
	reqID := e.seedRequest(t, customer, "REEFER", 1)

	start := make(chan struct{})
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, tid := range []uint64{t1, t2} {
		wg.Add(1)
		go func(transporter uint64) {
			defer wg.Done()
			<-start
			_, err := e.svc.CreateHold(ctx, reqID, transporter, 1, time.Minute)
			errs <- err
		}(tid)
	}
	close(start)
	wg.Wait()
	close(errs)

	success, capacity := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			success++
		default:
			var capErr *CapacityError
			if !errors.As(err, &capErr) {
				t.Fatalf("unexpected error: %v", err)
			}
			capacity++
		}
	}
	if success != 1 || capacity != 1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d capacity errors", success, capacity)
	}
	if got := e.requestState(t, reqID).QuantityHeld; got != 1 {
		t.Fatalf("expected 1 held, got %d", got)
	}
}

func TestReleaseHoldIdempotent(t *testing.T) {
	e := setupTest(t)
	ctx := context.Background()

	customer := e.seedUser(t, "CUSTOMER")
	transporter := e.seedUser(t, "TRANSPORTER")
	reqID := e.seedRequest(t, customer, "FLATBED", 4)

	res, err := e.svc.CreateHold(ctx, reqID, transporter, 2, time.Minute)
	if err != nil {
		t.Fatalf("create hold: %v", err)
	}

	if err := e.svc.ReleaseHold(ctx, res.HoldID, transporter); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := e.svc.ReleaseHold(ctx, res.HoldID, transporter); err != nil {
		t.Fatalf("second release should be a no-op: %v", err)
	}

	if got := e.requestState(t, reqID).QuantityHeld; got != 0 {
		t.Fatalf("expected 0 held after release, got %d", got)
	}
	if got := e.holdState(t, res.HoldID).Status; got != model.HoldReleased {
		t.Fatalf("expected RELEASED, got %s", got)
	}
}

func TestReleaseHoldOwnershipMasked(t *testing.T) {
	e := setupTest(t)
	ctx := context.Background()

	customer := e.seedUser(t, "CUSTOMER")
	owner := e.seedUser(t, "TRANSPORTER")
	other := e.seedUser(t, "TRANSPORTER")
	reqID := e.seedRequest(t, customer, "FLATBED", 2)

	res, err := e.svc.CreateHold(ctx, reqID, owner, 1, time.Minute)
	if err != nil {
		t.Fatalf("create hold: %v", err)
	}
	if err := e.svc.ReleaseHold(ctx, res.HoldID, other); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign hold, got %v", err)
	}
	if got := e.holdState(t, res.HoldID).Status; got != model.HoldActive {
		t.Fatalf("hold should still be active, got %s", got)
	}
}

func TestExpireHoldReturnsQuantity(t *testing.T) {
	e := setupTest(t)
	ctx := context.Background()

	customer := e.seedUser(t, "CUSTOMER")
	transporter := e.seedUser(t, "TRANSPORTER")
	reqID := e.seedRequest(t, customer, "TANKER", 3)

	res, err := e.svc.CreateHold(ctx, reqID, transporter, 2, time.Minute)
	if err != nil {
		t.Fatalf("create hold: %v", err)
	}

	if err := e.svc.ExpireHold(ctx, res.HoldID); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if got := e.requestState(t, reqID).QuantityHeld; got != 0 {
		t.Fatalf("expected 0 held after expiry, got %d", got)
	}
	if got := e.holdState(t, res.HoldID).Status; got != model.HoldExpired {
		t.Fatalf("expected EXPIRED, got %s", got)
	}

	// A late timer firing again, or firing for a released hold, changes
	// nothing.
	if err := e.svc.ExpireHold(ctx, res.HoldID); err != nil {
		t.Fatalf("second expire should be a no-op: %v", err)
	}
	if err := e.svc.ExpireHold(ctx, 424242); err != nil {
		t.Fatalf("expire of unknown hold should be a no-op: %v", err)
	}
	if got := e.requestState(t, reqID).QuantityHeld; got != 0 {
		t.Fatalf("held quantity must not go below zero, got %d", got)
	}
}
