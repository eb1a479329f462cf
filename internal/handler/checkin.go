package handler

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-checkin/internal/qrcode"
	"github.com/iliyamo/event-checkin/internal/service"
)

// maxScanBytes caps uploaded photos of QR codes.
const maxScanBytes = 8 << 20

// StaffHandler serves the door: check-in by token or by photo, the
// attendee list and its export.  All routes require a staff token.
type StaffHandler struct {
	Svc *service.Registrations
	Log *zap.Logger
}

// NewStaffHandler panics when svc is nil.
func NewStaffHandler(svc *service.Registrations, log *zap.Logger) *StaffHandler {
	if svc == nil {
		panic("nil service passed to NewStaffHandler")
	}
	return &StaffHandler{Svc: svc, Log: log}
}

// CheckIn handles POST /v1/events/:id/check-in with body {"token": "..."}.
// A repeated scan answers 409 with the original check-in time.
func (h *StaffHandler) CheckIn(c echo.Context) error {
	var body struct {
		Token string `json:"token"`
	}
	if err := c.Bind(&body); err != nil || body.Token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token is required"})
	}
	return h.checkIn(c, body.Token)
}

// CheckInScan handles POST /v1/events/:id/check-in/scan.  The multipart
// field "image" holds a photo of the attendee's QR code.
func (h *StaffHandler) CheckInScan(c echo.Context) error {
	fh, err := c.FormFile("image")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "image is required"})
	}
	if fh.Size > maxScanBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "image too large"})
	}
	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable upload"})
	}
	defer f.Close()

	token, err := qrcode.Decode(f)
	if err != nil {
		if errors.Is(err, qrcode.ErrNoCode) {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "no readable qr code in image"})
		}
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "image must be a png or jpeg"})
	}
	return h.checkIn(c, token)
}

func (h *StaffHandler) checkIn(c echo.Context, token string) error {
	eventID := c.Param("id")
	res, err := h.Svc.CheckIn(c.Request().Context(), eventID, token)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	h.Log.Info("door check-in",
		zap.String("event_id", eventID),
		zap.String("registration_id", res.Registration.ID),
		zap.String("staff", staffID(c)),
	)
	return c.JSON(http.StatusOK, echo.Map{
		"registration":  res.Registration,
		"attendee":      res.Attendee,
		"checked_in_at": res.Registration.CheckInTime,
	})
}

// SetCheckIn handles PUT /v1/events/:id/registrations/:rid/check-in with
// body {"checked_in": bool}.  Admin only.
func (h *StaffHandler) SetCheckIn(c echo.Context) error {
	var body struct {
		CheckedIn *bool `json:"checked_in"`
	}
	if err := c.Bind(&body); err != nil || body.CheckedIn == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "checked_in is required"})
	}
	reg, err := h.Svc.SetCheckIn(c.Request().Context(), c.Param("id"), c.Param("rid"), *body.CheckedIn)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	h.Log.Info("check-in override",
		zap.String("event_id", reg.EventID),
		zap.String("registration_id", reg.ID),
		zap.Bool("checked_in", reg.CheckedIn),
		zap.String("staff", staffID(c)),
	)
	return c.JSON(http.StatusOK, echo.Map{"registration": reg})
}

// ListRegistrations handles GET /v1/events/:id/registrations.
func (h *StaffHandler) ListRegistrations(c echo.Context) error {
	regs, err := h.Svc.ListRegistrations(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"registrations": regs, "count": len(regs)})
}

// Export handles GET /v1/events/:id/registrations/export and returns CSV.
// The file is built in memory so that errors can still be reported as
// JSON.
func (h *StaffHandler) Export(c echo.Context) error {
	eventID := c.Param("id")
	var buf bytes.Buffer
	if err := h.Svc.ExportCSV(c.Request().Context(), eventID, &buf); err != nil {
		return writeError(c, h.Log, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="registrations-`+eventID+`.csv"`)
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// Stats handles GET /v1/events/:id/stats.
func (h *StaffHandler) Stats(c echo.Context) error {
	st, err := h.Svc.Stats(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, st)
}
