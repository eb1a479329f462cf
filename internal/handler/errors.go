package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-checkin/internal/service"
)

// writeError translates service errors into JSON responses.  Unknown
// errors become 500 and are logged; their text is not exposed.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	var (
		verr    *service.ValidationError
		already *service.AlreadyCheckedInError
	)
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": verr.Fields})
	case errors.As(err, &already):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":           "already checked in",
			"registration_id": already.Registration.ID,
			"attendee":        already.Attendee,
			"checked_in_at":   already.CheckedInAt,
		})
	case errors.Is(err, service.ErrEventNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
	case errors.Is(err, service.ErrRegistrationNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "registration not found"})
	case errors.Is(err, service.ErrStorageUnavailable):
		log.Error("storage unavailable", zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "storage unavailable, try again"})
	}
	log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
