package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/clock"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/source"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAuth(t *testing.T) {
	h := Auth("s3cret", "/api/health")(ok)

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"missing token", "/api/stats", nil, http.StatusUnauthorized},
		{"bearer", "/api/stats", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
		{"x-api-key", "/api/stats", map[string]string{"X-API-Key": "s3cret"}, http.StatusOK},
		{"wrong key", "/api/stats", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"query key", "/ws?api_key=s3cret", nil, http.StatusOK},
		{"public path", "/api/health", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAuthDisabled(t *testing.T) {
	rec := httptest.NewRecorder()
	Auth("")(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://dash.example.com"})(ok)

	req := httptest.NewRequest(http.MethodOptions, "/api/stats", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
		t.Fatalf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unlisted origin was allowed")
	}
}

func TestCORSWildcard(t *testing.T) {
	h := CORS([]string{"*"})(ok)

	req := httptest.NewRequest(http.MethodGet, "/api/opportunities", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow origin = %q, want *", got)
	}
	if rec.Header().Get("Vary") != "Origin" {
		t.Fatalf("missing Vary: Origin")
	}
}

func TestCORSPreflightRefusals(t *testing.T) {
	h := CORS([]string{"https://Dash.example.com/"})(ok)

	tests := []struct {
		name   string
		origin string
		method string
		want   int
	}{
		{"listed origin reads", "https://dash.example.com", http.MethodGet, http.StatusNoContent},
		{"write method", "https://dash.example.com", http.MethodPost, http.StatusForbidden},
		{"unlisted origin", "https://evil.example.com", http.MethodGet, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", tt.method)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusForbidden && rec.Header().Get("Access-Control-Allow-Methods") != "" {
				t.Fatal("refused preflight advertised methods")
			}
		})
	}
}

func TestLoggingRedactsAPIKey(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Logging(logger)(ok)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws?api_key=s3cret", nil))
	if strings.Contains(buf.String(), "s3cret") {
		t.Fatalf("api key leaked into log: %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"status":200`) {
		t.Fatalf("missing status: %s", buf.String())
	}
}

func TestLoggingQuietPaths(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	h := Logging(logger, "/metrics")(ok)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if buf.Len() != 0 {
		t.Fatalf("quiet path logged at info: %s", buf.String())
	}
}

func TestRateLimit(t *testing.T) {
	limiter := source.NewIntervalLimiter(clock.Real{})
	h := RateLimit(limiter, time.Minute, 10*time.Millisecond)(ok)

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
		req.Header.Set("X-Forwarded-For", ip)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := call("10.0.0.1"); got != http.StatusOK {
		t.Fatalf("first request = %d", got)
	}
	if got := call("10.0.0.1"); got != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", got)
	}
	if got := call("10.0.0.2"); got != http.StatusOK {
		t.Fatalf("other client = %d", got)
	}
}

func TestExtractClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	if got := extractClientIP(req); got != "192.0.2.7" {
		t.Fatalf("remote addr ip = %q", got)
	}
	req.Header.Set("X-Real-IP", "198.51.100.1")
	if got := extractClientIP(req); got != "198.51.100.1" {
		t.Fatalf("x-real-ip = %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := extractClientIP(req); got != "203.0.113.9" {
		t.Fatalf("x-forwarded-for = %q", got)
	}
}
