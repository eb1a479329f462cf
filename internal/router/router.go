// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/event-checkin/internal/config"
	"github.com/iliyamo/event-checkin/internal/handler"
	"github.com/iliyamo/event-checkin/internal/middleware"
	"github.com/iliyamo/event-checkin/internal/service"
)

// Deps collects what the routes need.  Redis may be nil, in which case
// the rate limiter and the response cache are disabled.
type Deps struct {
	Service   *service.Registrations
	Log       *zap.Logger
	JWTSecret string
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
}

// New builds the Echo instance with every route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(d.Log))

	events := handler.NewEventHandler(d.Service, d.Log)
	staff := handler.NewStaffHandler(d.Service, d.Log)

	RegisterRoutes(e)
	RegisterPublic(e, events,
		middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log),
		middleware.NewRedisCache(d.Cache, d.Redis, d.Log),
	)
	RegisterStaff(e, staff, d.JWTSecret)
	RegisterAdmin(e, events, staff, d.JWTSecret)
	return e
}

// RegisterRoutes registers routes that do not belong to the API, currently
// only the health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterPublic registers unauthenticated endpoints.  The event page is
// served through the response cache; registrations go through the rate
// limiter.
func RegisterPublic(e *echo.Echo, h *handler.EventHandler, rateLimit, cache echo.MiddlewareFunc) {
	e.GET("/v1/events", h.ListEvents)
	e.GET("/v1/events/:id", h.GetEvent, cache)
	e.POST("/v1/events/:id/registrations", h.Register, rateLimit)
	e.GET("/v1/checkin-codes/:token", h.CheckInCode)
}

// RegisterStaff registers the door endpoints.  They require a JWT with the
// STAFF or ADMIN role.
func RegisterStaff(e *echo.Echo, h *handler.StaffHandler, jwtSecret string) {
	g := e.Group("/v1/events/:id",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleStaff, middleware.RoleAdmin),
	)
	g.POST("/check-in", h.CheckIn)
	g.POST("/check-in/scan", h.CheckInScan)
	g.GET("/registrations", h.ListRegistrations)
	g.GET("/registrations/export", h.Export)
	g.GET("/stats", h.Stats)
}

// RegisterAdmin registers event authoring and the check-in override.  They
// require a JWT with the ADMIN role.
func RegisterAdmin(e *echo.Echo, events *handler.EventHandler, staff *handler.StaffHandler, jwtSecret string) {
	auth := middleware.JWTAuth(jwtSecret)
	admin := middleware.RequireRole(middleware.RoleAdmin)
	e.POST("/v1/events", events.CreateEvent, auth, admin)
	e.PUT("/v1/events/:id/registrations/:rid/check-in", staff.SetCheckIn, auth, admin)
}
