package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safety-app/internal/config"
	"safety-app/internal/container"
	"safety-app/pkg/errors"
	"safety-app/pkg/logger"
)

func setupTestRouter(t *testing.T, rateLimit int) (*chi.Mux, *container.Container) {
	t.Helper()

	mr := miniredis.RunT(t)
	cfg := &config.Config{
		AllowedOrigins:    []string{"*"},
		RedisURL:          "redis://" + mr.Addr(),
		AdminJWTSecret:    "test-secret",
		AdminTokenTTL:     time.Hour,
		StatsRateLimit:    rateLimit,
		StatsTotalContent: 10,
		CacheVersion:      "1.0.0",
	}

	c, err := container.New(cfg, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	stats, err := c.StatsService(context.Background())
	require.NoError(t, err)

	return setupRouter(c, stats), c
}

func TestRouter_Preflight(t *testing.T) {
	r, _ := setupTestRouter(t, 60)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
}

func TestRouter_StatsRoundTrip(t *testing.T) {
	r, _ := setupTestRouter(t, 60)

	get := func() map[string]any {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats?userId=u1&range=7d", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body
	}

	assert.Equal(t, false, get()["cached"])
	assert.Equal(t, true, get()["cached"])

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stats", strings.NewReader(`{"userId":"u1","action":"page_view"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, false, get()["cached"], "a new activity invalidates the snapshot")
}

func TestRouter_ErrorsCarryCORS(t *testing.T) {
	r, _ := setupTestRouter(t, 60)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stats", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var body errors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Missing required fields: userId, action", body.Error)
	assert.Equal(t, rec.Header().Get("X-Request-ID"), body.RequestID)
}

func TestRouter_RateLimitsStatsWrites(t *testing.T) {
	r, _ := setupTestRouter(t, 2)

	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/stats", strings.NewReader(`{"userId":"u1","action":"page_view"}`))
		req.RemoteAddr = "192.0.2.10:5000"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, post())
	assert.Equal(t, http.StatusOK, post())
	assert.Equal(t, http.StatusTooManyRequests, post())

	// reads are not limited
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats?userId=u1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_AdminRequiresToken(t *testing.T) {
	r, c := setupTestRouter(t, 60)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/admin/stats/u1", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := c.AuthService().IssueAdminToken("ops")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/activities/u1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_NotFound(t *testing.T) {
	r, _ := setupTestRouter(t, 60)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	r, _ := setupTestRouter(t, 60)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"ok"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
