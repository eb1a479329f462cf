package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-checkin/internal/service"
)

// EventHandler serves the public side of the service: browsing events,
// registering and fetching check-in codes.  Event creation is also here,
// mounted behind the admin role by the router.
type EventHandler struct {
	Svc *service.Registrations
	Log *zap.Logger
}

// NewEventHandler panics when svc is nil.
func NewEventHandler(svc *service.Registrations, log *zap.Logger) *EventHandler {
	if svc == nil {
		panic("nil service passed to NewEventHandler")
	}
	return &EventHandler{Svc: svc, Log: log}
}

// ListEvents handles GET /v1/events.
func (h *EventHandler) ListEvents(c echo.Context) error {
	evs, err := h.Svc.ListEvents(c.Request().Context())
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"events": evs, "count": len(evs)})
}

// GetEvent handles GET /v1/events/:id.  Besides the event it returns the
// compiled form, consent field included, and its empty defaults so a
// client can render the registration page without further calls.
func (h *EventHandler) GetEvent(c echo.Context) error {
	ev, schema, err := h.Svc.FormFor(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"event":    ev,
		"form":     schema.Fields(),
		"defaults": schema.Defaults(),
	})
}

// CreateEvent handles POST /v1/events.
func (h *EventHandler) CreateEvent(c echo.Context) error {
	var in service.EventInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	ev, err := h.Svc.CreateEvent(c.Request().Context(), in)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	h.Log.Info("event created via api", zap.String("event_id", ev.ID), zap.String("by", staffID(c)))
	return c.JSON(http.StatusCreated, echo.Map{"event": ev})
}
