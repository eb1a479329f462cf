package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/event-checkin/internal/config"
	"github.com/iliyamo/event-checkin/internal/utils"
)

const secret = "test-secret"

func protectedServer(roles ...string) *echo.Echo {
	e := echo.New()
	g := e.Group("", JWTAuth(secret), RequireRole(roles...))
	g.GET("/door", func(c echo.Context) error {
		return c.String(http.StatusOK, userID(c))
	})
	return e
}

func doGet(e *echo.Echo, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/door", nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthAndRole(t *testing.T) {
	e := protectedServer(RoleStaff, RoleAdmin)

	staff, err := utils.NewAccessToken(secret, "door-1", RoleStaff, time.Hour)
	require.NoError(t, err)
	rec := doGet(e, "Bearer "+staff.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "door-1", rec.Body.String())

	guest, err := utils.NewAccessToken(secret, "visitor", "GUEST", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, doGet(e, "Bearer "+guest.Token).Code)
}

func TestJWTAuthRejects(t *testing.T) {
	e := protectedServer(RoleStaff)

	assert.Equal(t, http.StatusUnauthorized, doGet(e, "").Code)
	assert.Equal(t, http.StatusUnauthorized, doGet(e, "Bearer garbage").Code)

	wrongKey, err := utils.NewAccessToken("other-secret", "door-1", RoleStaff, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, doGet(e, "Bearer "+wrongKey.Token).Code)

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "door-1", "role": RoleStaff})
	raw, err := noExp.SignedString([]byte(secret))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, doGet(e, "Bearer "+raw).Code)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "door-1", "role": RoleStaff, "exp": time.Now().Add(-time.Minute).Unix(),
	})
	raw, err = expired.SignedString([]byte(secret))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, doGet(e, "Bearer "+raw).Code)
}

func newContext(method, target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.7")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/events/:id/registrations")
	c.SetParamNames("id")
	c.SetParamValues("ev-1")
	return c
}

func TestBuildRateKey(t *testing.T) {
	c := newContext(http.MethodPost, "/v1/events/ev-1/registrations")

	tests := []struct {
		strategy string
		want     string
	}{
		{"ip", "rl:ip:10.0.0.7"},
		{"ip_route", "rl:ip:10.0.0.7:route:POST /v1/events/:id/registrations"},
		{"ip_event", "rl:ip:10.0.0.7:event:ev-1"},
		{"user", "rl:user:guest"},
	}
	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: tt.strategy}
			assert.Equal(t, tt.want, buildRateKey(cfg, c))
		})
	}
}

func TestParseLimiterResult(t *testing.T) {
	allowed, remaining, retry, ok := parseLimiterResult([]interface{}{int64(0), int64(0), int64(1500)})
	require.True(t, ok)
	assert.False(t, allowed)
	assert.Equal(t, int64(0), remaining)
	assert.Equal(t, int64(1500), retry)

	_, _, _, ok = parseLimiterResult("nope")
	assert.False(t, ok)
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"id":"ev-1"}`))
	require.NoError(t, err)

	status, gotHdr, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", gotHdr.Get("Content-Type"))
	assert.Equal(t, `{"id":"ev-1"}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 1})
	assert.False(t, ok)
}

func TestCacheKeyPerEvent(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "route_query"}
	a := cacheKeyFrom(cfg, newContext(http.MethodGet, "/v1/events/ev-1"))
	b := cacheKeyFrom(cfg, newContext(http.MethodGet, "/v1/events/ev-2"))
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "cache:")
}

func TestCaptureWriterOverflow(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := &captureWriter{ResponseWriter: rec, status: http.StatusOK, limit: 4}
	_, _ = cw.Write([]byte("abc"))
	assert.False(t, cw.overflow)
	_, _ = cw.Write([]byte("def"))
	assert.True(t, cw.overflow)
	assert.Equal(t, "abcdef", rec.Body.String())
}

func TestDisabledMiddlewarePassesThrough(t *testing.T) {
	e := echo.New()
	e.Use(NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, zap.NewNop()))
	e.Use(NewRedisCache(config.CacheConfig{Enabled: true}, nil, zap.NewNop()))
	e.Use(RequestLogger(zap.NewNop()))
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
	assert.Empty(t, rec.Header().Get("X-Cache"))
}
