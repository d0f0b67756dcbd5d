package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icalmerge/internal/config"
	"icalmerge/internal/metrics"
)

const calendarBody = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nEND:VCALENDAR\r\n"

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.URLs = []string{"https://example.com/a.ics"}
	return cfg
}

func serve(t *testing.T, h http.Handler, req *http.Request) (*http.Response, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	res := rec.Result()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(body)
}

func okBuild(context.Context) (string, error) { return calendarBody, nil }

func TestServer_Calendar(t *testing.T) {
	s := NewServer(testConfig(), okBuild, nil)

	res, body := serve(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, calendarContentType, res.Header.Get("Content-Type"))
	assert.Equal(t, calendarBody, body)
}

func TestServer_CalendarFailure(t *testing.T) {
	build := func(context.Context) (string, error) {
		return "", errors.New("fetch https://secret.example.com/token: status 503")
	}
	s := NewServer(testConfig(), build, nil)

	res, body := serve(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Equal(t, failureBody, strings.TrimSpace(body))
	assert.NotContains(t, body, "secret")
}

func TestServer_Routes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.IncCacheLookup(metrics.CacheHit)
	s := NewServer(testConfig(), okBuild, reg)

	res, body := serve(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "OK", body)

	res, body = serve(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, `icalmerge_cache_lookups_total{result="hit"} 1`)

	res, _ = serve(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/other", nil))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, _ = serve(t, s.Handler(), httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)
}

func TestServer_NoMetricsWithoutRegistry(t *testing.T) {
	s := NewServer(testConfig(), okBuild, nil)
	res, _ := serve(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestServer_BasicAuth(t *testing.T) {
	cfg := testConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "alice", Password: "s3cret"}
	h := NewServer(cfg, okBuild, nil).Handler()

	res, _ := serve(t, h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.NotEmpty(t, res.Header.Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("alice", "wrong")
	res, _ = serve(t, h, req)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("alice", "s3cret")
	res, body := serve(t, h, req)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, calendarBody, body)

	res, _ = serve(t, h, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestServer_Run(t *testing.T) {
	cfg := testConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(cfg, okBuild, nil).Run(ctx) }()

	cancel()
	assert.NoError(t, <-done)
}

func TestSecureCompare(t *testing.T) {
	assert.True(t, secureCompare("abc", "abc"))
	assert.False(t, secureCompare("abc", "abd"))
	assert.False(t, secureCompare("abc", "abcd"))
}
