package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-checkin/internal/qrcode"
)

// Register handles POST /v1/events/:id/registrations.  It accepts a JSON
// object or a form post keyed by field name and returns 201 with the
// check-in token.  A failed confirmation still returns 201; the outcome is
// in email_status.
func (h *EventHandler) Register(c echo.Context) error {
	raw, err := bindSubmission(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	res, err := h.Svc.Register(c.Request().Context(), c.Param("id"), raw)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	reg := res.Registration
	codeURL := h.Svc.CodeURL(reg.CheckInToken)
	if codeURL == "" {
		codeURL = "/v1/checkin-codes/" + reg.CheckInToken
	}
	body := echo.Map{
		"registration_id":   reg.ID,
		"event_id":          reg.EventID,
		"submitted_at":      reg.SubmittedAt,
		"check_in_token":    reg.CheckInToken,
		"check_in_code_url": codeURL,
		"email_status":      res.EmailStatus,
	}
	if res.EmailError != "" {
		body["email_error"] = res.EmailError
	}
	return c.JSON(http.StatusCreated, body)
}

// CheckInCode handles GET /v1/checkin-codes/:token and returns the QR code
// PNG for a token.  Only UUID-shaped tokens are rendered.
func (h *EventHandler) CheckInCode(c echo.Context) error {
	token := c.Param("token")
	if _, err := uuid.Parse(token); err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown check-in code"})
	}
	png, err := qrcode.Encode(token)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=86400")
	return c.Blob(http.StatusOK, "image/png", png)
}
