package main // Entry point package

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/truck-allocation/internal/allocation"
	"github.com/iliyamo/truck-allocation/internal/config"
	"github.com/iliyamo/truck-allocation/internal/database"
	"github.com/iliyamo/truck-allocation/internal/expiry"
	"github.com/iliyamo/truck-allocation/internal/handler"
	"github.com/iliyamo/truck-allocation/internal/lock"
	"github.com/iliyamo/truck-allocation/internal/queue"
	"github.com/iliyamo/truck-allocation/internal/repository"
	"github.com/iliyamo/truck-allocation/internal/router"
	queue_publisher "github.com/iliyamo/truck-allocation/internal/service"
)

func main() {
	// Load .env if present; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	rl := config.LoadRateLimitConfig()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	// Redis is optional: without it the advisory hold lock and the rate
	// limiter degrade to no-ops while the engine stays correct.
	rdb := config.NewRedisClient()

	// Repositories.
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	orders := repository.NewOrderRepo(db)
	requests := repository.NewTruckRequestRepo(db)
	holds := repository.NewHoldRepo(db)
	assignments := repository.NewAssignmentRepo(db)
	vehicles := repository.NewVehicleRepo(db)
	drivers := repository.NewDriverRepo(db)

	// Allocation engine with its expiry scheduler.  The scheduler calls
	// back into the engine to expire holds, and the engine arms timers on
	// the scheduler when holds are created.
	alloc := allocation.New(db, requests, holds, assignments, vehicles, drivers,
		lock.NewRedisLocker(rdb), queue_publisher.NewEmitter())
	sched := expiry.New(holds, alloc.ExpireHold, cfg.ExpirySweep)
	alloc.AttachScheduler(sched)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	// Background consumer that turns broker events into notification log
	// lines.  Reconnects on its own; never blocks the API.
	go func() {
		if err := queue.StartNotificationConsumer(); err != nil {
			log.Printf("notification consumer stopped: %v", err)
		}
	}()

	// HTTP server.
	e := echo.New()
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret)
	router.RegisterCustomer(e, handler.NewCustomerHandler(orders, requests, holds, assignments), cfg, rl, rdb)
	router.RegisterTransporter(e,
		handler.NewTransporterHandler(cfg, alloc, requests, holds),
		handler.NewFleetHandler(vehicles, drivers, users),
		cfg, rl, rdb)
	router.RegisterDriver(e, handler.NewDriverHandler(alloc, drivers, assignments), cfg, rl, rdb)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
