package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"sfcli/internal/observability"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

func TestRequestIDGeneratesWhenMissing(t *testing.T) {
	var captured string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetReqID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, captured)
	assert.Equal(t, captured, rec.Header().Get(RequestIDHeader))
}

func TestRequestIDPreservesHeader(t *testing.T) {
	var captured string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = observability.GetTraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "fixed-id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "fixed-id", captured)
	assert.Equal(t, "fixed-id", rec.Header().Get(RequestIDHeader))
}

func TestStructuredLoggerPassesThrough(t *testing.T) {
	handler := StructuredLogger(testLogger())(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/hierarchy", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRecovererReturnsJSON500(t *testing.T) {
	handler := Recoverer(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "INTERNAL_SERVER_ERROR")
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	rl := NewRateLimiter(1, 2, testLogger())
	handler := rl.Handler(okHandler())

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		statuses = append(statuses, rec.Code)
	}

	assert.Equal(t, http.StatusOK, statuses[0])
	assert.Equal(t, http.StatusOK, statuses[1])
	assert.Equal(t, http.StatusTooManyRequests, statuses[2])
}

func TestRateLimiterSetsRetryAfter(t *testing.T) {
	rl := NewRateLimiter(1, 1, testLogger())
	handler := rl.Handler(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		origins     []string
		origin      string
		method      string
		wantStatus  int
		wantAllowed string
	}{
		{
			name:        "allowed origin",
			origins:     []string{"https://app.example.com"},
			origin:      "https://app.example.com",
			method:      http.MethodGet,
			wantStatus:  http.StatusOK,
			wantAllowed: "https://app.example.com",
		},
		{
			name:        "disallowed origin",
			origins:     []string{"https://app.example.com"},
			origin:      "https://evil.example.com",
			method:      http.MethodGet,
			wantStatus:  http.StatusOK,
			wantAllowed: "",
		},
		{
			name:        "preflight short-circuits",
			origins:     []string{"*"},
			origin:      "https://anywhere.example.com",
			method:      http.MethodOptions,
			wantStatus:  http.StatusNoContent,
			wantAllowed: "https://anywhere.example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := CORS(CORSConfig{AllowedOrigins: tt.origins, Logger: testLogger()})(okHandler())

			req := httptest.NewRequest(tt.method, "/", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantAllowed, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestAdminAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-key"), bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name       string
		keyHash    string
		header     string
		value      string
		wantStatus int
	}{
		{"valid api key header", string(hash), "X-API-Key", "secret-key", http.StatusOK},
		{"valid bearer token", string(hash), "Authorization", "Bearer secret-key", http.StatusOK},
		{"wrong key", string(hash), "X-API-Key", "not-the-key", http.StatusForbidden},
		{"missing key", string(hash), "", "", http.StatusUnauthorized},
		{"no hash configured", "", "X-API-Key", "secret-key", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := AdminAuth(tt.keyHash, testLogger())(okHandler())

			req := httptest.NewRequest(http.MethodPost, "/api/admin/reload", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestMetricsCountsRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	handler := m.Handler(okHandler())

	for i := 0; i < 3; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/accuracy", nil))
	}

	count := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/accuracy", "200"))
	assert.Equal(t, float64(3), count)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "sfcli_http_requests_total")
	assert.Contains(t, names, "sfcli_http_request_duration_seconds")
}
