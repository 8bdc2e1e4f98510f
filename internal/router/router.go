package router // registers the HTTP routes for the allocation API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/truck-allocation/internal/config"
	"github.com/iliyamo/truck-allocation/internal/handler"
	"github.com/iliyamo/truck-allocation/internal/middleware"
	"github.com/iliyamo/truck-allocation/internal/model"
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the authentication endpoints.  Unauthenticated
// operations live under /v1/auth; /v1/me requires a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	// Logout accepts a refresh token in the body without requiring a JWT,
	// so an expired session can still be terminated.
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
}

// RegisterCustomer registers the customer order surface.  Every endpoint
// requires a CUSTOMER access token.
func RegisterCustomer(e *echo.Echo, h *handler.CustomerHandler, cfg config.Config, rl config.RateLimitConfig, rdb *redis.Client) {
	g := e.Group("/v1/orders")
	g.Use(middleware.JWTAuth(cfg.JWTSecret))
	g.Use(middleware.RequireRole(model.RoleCustomer))
	g.Use(middleware.RateLimit(rl, rdb))

	g.POST("", h.CreateOrder)
	g.GET("", h.ListOrders)
	g.GET("/:id", h.GetOrder)
	g.POST("/:id/cancel", h.CancelOrder)
}

// RegisterTransporter registers the transporter surface: browsing open
// requests, the hold lifecycle, fleet management and assignment cancel.
// Every endpoint requires a TRANSPORTER access token.
func RegisterTransporter(e *echo.Echo, t *handler.TransporterHandler, f *handler.FleetHandler, cfg config.Config, rl config.RateLimitConfig, rdb *redis.Client) {
	g := e.Group("/v1/transporter")
	g.Use(middleware.JWTAuth(cfg.JWTSecret))
	g.Use(middleware.RequireRole(model.RoleTransporter))
	g.Use(middleware.RateLimit(rl, rdb))

	g.GET("/truck-requests", t.ListOpenRequests)
	g.POST("/holds", t.CreateHold)
	g.GET("/holds", t.ListHolds)
	g.POST("/holds/:id/release", t.ReleaseHold)
	g.POST("/holds/:id/confirm", t.ConfirmHold)
	g.POST("/assignments/:id/cancel", t.CancelAssignment)

	g.POST("/vehicles", f.CreateVehicle)
	g.GET("/vehicles", f.ListVehicles)
	g.POST("/drivers", f.CreateDriver)
	g.GET("/drivers", f.ListDrivers)
}

// RegisterDriver registers the driver trip surface.  Every endpoint
// requires a DRIVER access token linked to a driver profile.
func RegisterDriver(e *echo.Echo, d *handler.DriverHandler, cfg config.Config, rl config.RateLimitConfig, rdb *redis.Client) {
	g := e.Group("/v1/trips")
	g.Use(middleware.JWTAuth(cfg.JWTSecret))
	g.Use(middleware.RequireRole(model.RoleDriver))
	g.Use(middleware.RateLimit(rl, rdb))

	g.GET("", d.ListTrips)
	g.POST("/:id/accept", d.AcceptTrip)
	g.POST("/:id/status", d.UpdateTripStatus)
	g.POST("/:id/cancel", d.CancelTrip)
}
