package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/event-checkin/internal/middleware"
	"github.com/iliyamo/event-checkin/internal/model"
	"github.com/iliyamo/event-checkin/internal/notify"
	"github.com/iliyamo/event-checkin/internal/qrcode"
	"github.com/iliyamo/event-checkin/internal/repository"
	"github.com/iliyamo/event-checkin/internal/router"
	"github.com/iliyamo/event-checkin/internal/service"
	"github.com/iliyamo/event-checkin/internal/utils"
)

const secret = "handler-test-secret"

type okNotifier struct{}

func (okNotifier) Send(context.Context, notify.Confirmation) notify.Result {
	return notify.Result{Sent: true}
}

type testAPI struct {
	t     *testing.T
	e     *echo.Echo
	admin string
	staff string
}

func newAPI(t *testing.T, store repository.Store, opts ...service.Option) *testAPI {
	t.Helper()
	svc := service.NewRegistrations(store, okNotifier{}, zap.NewNop(), opts...)
	t.Cleanup(svc.Wait)
	e := router.New(router.Deps{Service: svc, Log: zap.NewNop(), JWTSecret: secret})

	admin, err := utils.NewAccessToken(secret, "organizer", middleware.RoleAdmin, time.Hour)
	require.NoError(t, err)
	staff, err := utils.NewAccessToken(secret, "door-1", middleware.RoleStaff, time.Hour)
	require.NoError(t, err)
	return &testAPI{t: t, e: e, admin: admin.Token, staff: staff.Token}
}

func (a *testAPI) do(method, target, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		require.NoError(a.t, err)
		rd = bytes.NewReader(bs)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (a *testAPI) createEvent() string {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/v1/events", a.admin, map[string]any{
		"name":      "Go Meetup",
		"starts_at": "2026-06-01T18:00:00Z",
		"fields": []map[string]any{
			{"name": "firstName", "label": "First name", "kind": "text", "required": true},
			{"name": "email", "label": "Email", "kind": "email", "required": true},
			{"name": "topics", "label": "Topics", "kind": "multiple_choice", "options": []string{"Go", "Rust"}},
		},
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	ev := decode(a.t, rec)["event"].(map[string]any)
	return ev["id"].(string)
}

func (a *testAPI) register(eventID string) map[string]any {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/v1/events/"+eventID+"/registrations", "", map[string]any{
		"firstName": "Jane",
		"email":     "jane@example.com",
		"topics":    []string{"Go"},
		"rodo":      true,
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(a.t, rec)
}

func TestHealth(t *testing.T) {
	api := newAPI(t, repository.NewMemoryStore())
	rec := api.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestCreateEventRequiresAdmin(t *testing.T) {
	api := newAPI(t, repository.NewMemoryStore())
	body := map[string]any{"name": "x", "starts_at": "2026-06-01T18:00:00Z"}

	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodPost, "/v1/events", "", body).Code)
	assert.Equal(t, http.StatusForbidden, api.do(http.MethodPost, "/v1/events", api.staff, body).Code)
	assert.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/v1/events", api.admin, body).Code)
}

func TestCreateEventValidation(t *testing.T) {
	api := newAPI(t, repository.NewMemoryStore())
	rec := api.do(http.MethodPost, "/v1/events", api.admin, map[string]any{
		"name":      "x",
		"starts_at": "2026-06-01T18:00:00Z",
		"fields":    []map[string]any{{"name": "rodo", "kind": "checkbox"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decode(t, rec)["fields"].(map[string]any)
	assert.Contains(t, fields, "fields[0]")
}

func TestGetEventIncludesConsent(t *testing.T) {
	api := newAPI(t, repository.NewMemoryStore())
	id := api.createEvent()

	rec := api.do(http.MethodGet, "/v1/events/"+id, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	form := out["form"].([]any)
	require.Len(t, form, 4)
	assert.Equal(t, model.ConsentField, form[3].(map[string]any)["name"])
	assert.Equal(t, false, out["defaults"].(map[string]any)["rodo"])

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/v1/events/missing", "", nil).Code)

	list := decode(t, api.do(http.MethodGet, "/v1/events", "", nil))
	assert.Equal(t, float64(1), list["count"])
}

func TestRegister(t *testing.T) {
	api := newAPI(t, repository.NewMemoryStore())
	id := api.createEvent()

	out := api.register(id)
	assert.NotEmpty(t, out["check_in_token"])
	assert.Equal(t, "sent", out["email_status"])
	assert.Equal(t, "/v1/checkin-codes/"+out["check_in_token"].(string), out["check_in_code_url"])
}

func TestRegisterCodeURLUsesPublicBase(t *testing.T) {
	api := newAPI(t, repository.NewMemoryStore(), service.WithPublicBaseURL("https://checkin.example.com/"))
	id := api.createEvent()

	out := api.register(id)
	assert.Equal(t, "https://checkin.example.com/v1/checkin-codes/"+out["check_in_token"].(string), out["check_in_code_url"])
}

func TestRegisterValidationError(t *testing.T) {
	api := newAPI(t, repository.NewMemoryStore())
	id := api.createEvent()

	rec := api.do(http.MethodPost, "/v1/events/"+id+"/registrations", "", map[string]any{
		"email": "not-an-email",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decode(t, rec)["fields"].(map[string]any)
	assert.Contains(t, fields, "firstName")
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "rodo")

	assert.Equal(t, http.StatusNotFound,
		api.do(http.MethodPost, "/v1/events/missing/registrations", "", map[string]any{"rodo": true}).Code)
}

func TestRegisterFormPost(t *testing.T) {
	api := newAPI(t, repository.NewMemoryStore())
	id := api.createEvent()

	form := url.Values{}
	form.Set("firstName", "Jane")
	form.Set("email", "jane@example.com")
	form.Add("topics", "Go")
	form.Add("topics", "Rust")
	form.Set("rodo", "on")
	req := httptest.NewRequest(http.MethodPost, "/v1/events/"+id+"/registrations", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	api.e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCheckInFlow(t *testing.T) {
	api := newAPI(t, repository.NewMemoryStore())
	id := api.createEvent()
	token := api.register(id)["check_in_token"].(string)
	path := "/v1/events/" + id + "/check-in"

	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodPost, path, "", map[string]string{"token": token}).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, path, api.staff, map[string]string{}).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodPost, path, api.staff, map[string]string{"token": "nope"}).Code)

	rec := api.do(http.MethodPost, path, api.staff, map[string]string{"token": token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode(t, rec)
	assert.Equal(t, "Jane", first["attendee"])

	rec = api.do(http.MethodPost, path, api.staff, map[string]string{"token": token})
	require.Equal(t, http.StatusConflict, rec.Code)
	second := decode(t, rec)
	assert.Equal(t, first["checked_in_at"], second["checked_in_at"])
	assert.Equal(t, "Jane", second["attendee"])

	stats := decode(t, api.do(http.MethodGet, "/v1/events/"+id+"/stats", api.staff, nil))
	assert.Equal(t, float64(1), stats["checked_in"])
}

func TestAdminOverride(t *testing.T) {
	api := newAPI(t, repository.NewMemoryStore())
	id := api.createEvent()
	reg := api.register(id)
	token := reg["check_in_token"].(string)
	rid := reg["registration_id"].(string)
	checkIn := "/v1/events/" + id + "/check-in"
	override := "/v1/events/" + id + "/registrations/" + rid + "/check-in"

	require.Equal(t, http.StatusOK, api.do(http.MethodPost, checkIn, api.staff, map[string]string{"token": token}).Code)

	assert.Equal(t, http.StatusForbidden, api.do(http.MethodPut, override, api.staff, map[string]bool{"checked_in": false}).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPut, override, api.admin, map[string]string{}).Code)

	rec := api.do(http.MethodPut, override, api.admin, map[string]bool{"checked_in": false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, false, decode(t, rec)["registration"].(map[string]any)["checked_in"])

	assert.Equal(t, http.StatusOK, api.do(http.MethodPost, checkIn, api.staff, map[string]string{"token": token}).Code)
}

func TestCheckInScan(t *testing.T) {
	api := newAPI(t, repository.NewMemoryStore())
	id := api.createEvent()
	token := api.register(id)["check_in_token"].(string)

	png, err := qrcode.Encode(token)
	require.NoError(t, err)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "code.png")
	require.NoError(t, err)
	_, err = part.Write(png)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/events/"+id+"/check-in/scan", &body)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+api.staff)
	rec := httptest.NewRecorder()
	api.e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["registration"].(map[string]any)["checked_in"])
}

func TestExportAndList(t *testing.T) {
	api := newAPI(t, repository.NewMemoryStore())
	id := api.createEvent()
	api.register(id)
	api.register(id)

	rec := api.do(http.MethodGet, "/v1/events/"+id+"/registrations/export", api.staff, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get(echo.HeaderContentType))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 3)

	list := decode(t, api.do(http.MethodGet, "/v1/events/"+id+"/registrations", api.staff, nil))
	assert.Equal(t, float64(2), list["count"])

	missing := api.do(http.MethodGet, "/v1/events/missing/registrations/export", api.staff, nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Contains(t, missing.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
}

func TestCheckInCode(t *testing.T) {
	api := newAPI(t, repository.NewMemoryStore())

	rec := api.do(http.MethodGet, "/v1/checkin-codes/6f1c2a7e-3b7d-4d8e-9f10-1a2b3c4d5e6f", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/v1/checkin-codes/hello", "", nil).Code)
}

// brokenStore fails every event read the way an unreachable database would.
type brokenStore struct {
	*repository.MemoryStore
}

func (brokenStore) GetEvent(context.Context, string) (*model.Event, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestStorageUnavailable(t *testing.T) {
	api := newAPI(t, brokenStore{repository.NewMemoryStore()})

	rec := api.do(http.MethodPost, "/v1/events/ev-1/registrations", "", map[string]any{"rodo": true})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
