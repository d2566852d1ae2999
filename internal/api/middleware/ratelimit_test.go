package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func quietConfig(r rate.Limit, burst int) RateLimitConfig {
	return RateLimitConfig{
		Rate:            r,
		Burst:           burst,
		CleanupInterval: time.Hour,
		MaxAge:          time.Hour,
	}
}

func TestAllowEnforcesBurst(t *testing.T) {
	rl := NewIPRateLimiter(quietConfig(rate.Limit(1), 2))
	defer rl.Stop()

	if !rl.Allow("203.0.113.7") {
		t.Fatal("first request should pass")
	}
	if !rl.Allow("203.0.113.7") {
		t.Fatal("second request should still be within the burst")
	}
	if rl.Allow("203.0.113.7") {
		t.Fatal("third request should be over budget")
	}

	// Budgets are tracked per client.
	if !rl.Allow("203.0.113.8") {
		t.Fatal("a fresh client should not inherit the exhausted budget")
	}
}

func TestSweepDropsIdleVisitors(t *testing.T) {
	cfg := quietConfig(rate.Limit(10), 10)
	cfg.MaxAge = 0
	rl := NewIPRateLimiter(cfg)
	defer rl.Stop()

	rl.Allow("198.51.100.1")
	rl.Allow("198.51.100.2")

	rl.sweep()

	rl.mu.Lock()
	tracked := len(rl.visitors)
	rl.mu.Unlock()
	if tracked != 0 {
		t.Fatalf("tracked visitors after sweep = %d, want 0", tracked)
	}
}

func TestRateLimitMiddlewareRejectsWith429(t *testing.T) {
	captureLogs(t)

	rl := NewIPRateLimiter(quietConfig(rate.Limit(1), 1))
	defer rl.Stop()

	handler := RateLimit(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/records", nil)
	req.RemoteAddr = "192.0.2.10:40312"

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want 1", got)
	}

	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parsing reject body: %v", err)
	}
	if body["error"] != "rate limit exceeded" {
		t.Errorf("error = %q, want %q", body["error"], "rate limit exceeded")
	}
}

func TestRateLimitSeparatesClients(t *testing.T) {
	rl := NewIPRateLimiter(quietConfig(rate.Limit(1), 1))
	defer rl.Stop()

	handler := RateLimit(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, addr := range []string{"192.0.2.1:1000", "192.0.2.2:1000"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/bridges", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("request from %s status = %d, want 200", addr, rr.Code)
		}
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{"192.0.2.5:8443", "192.0.2.5"},
		{"[2001:db8::1]:8443", "2001:db8::1"},
		{"192.0.2.5", "192.0.2.5"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = tt.remoteAddr
		if got := clientIP(r); got != tt.want {
			t.Errorf("clientIP(%q) = %q, want %q", tt.remoteAddr, got, tt.want)
		}
	}
}
