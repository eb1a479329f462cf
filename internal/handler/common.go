package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-checkin/internal/middleware"
)

// staffID returns the subject of the staff token that authenticated the
// request, or "" on public routes.
func staffID(c echo.Context) string {
	v, _ := c.Get(middleware.CtxUserID).(string)
	return v
}

// bindSubmission reads a registration form from the request body.  JSON
// objects are decoded as-is.  Form posts become string values, or string
// lists for repeated keys such as multiple_choice checkboxes.  Path and
// query parameters are never mixed in.
func bindSubmission(c echo.Context) (map[string]any, error) {
	req := c.Request()
	ctype := req.Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(ctype, echo.MIMEApplicationForm) || strings.HasPrefix(ctype, echo.MIMEMultipartForm) {
		if err := req.ParseMultipartForm(1 << 20); err != nil && err != http.ErrNotMultipart {
			return nil, err
		}
		raw := make(map[string]any, len(req.PostForm))
		for k, vals := range req.PostForm {
			if len(vals) == 1 {
				raw[k] = vals[0]
			} else {
				raw[k] = vals
			}
		}
		return raw, nil
	}

	raw := map[string]any{}
	if req.ContentLength == 0 {
		return raw, nil
	}
	if err := json.NewDecoder(req.Body).Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}
