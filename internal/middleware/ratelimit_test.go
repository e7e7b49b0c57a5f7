package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/bgmfeed/internal/model"
)

func newTestRateLimiter(t *testing.T, r float64, burst int) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(RateLimiterConfig{
		Rate:            rate.Limit(r),
		Burst:           burst,
		CleanupInterval: time.Minute,
	}, nil)
	t.Cleanup(rl.Stop)
	return rl
}

func requestFrom(remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/bangumi/tv/user/collections/sai", nil)
	req.RemoteAddr = remoteAddr
	return req
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	rl := newTestRateLimiter(t, 2, 5)

	handlerCallCount := 0
	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCallCount++
		w.WriteHeader(http.StatusOK)
	}))

	// バースト内の5リクエストは全て通る
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("192.0.2.1:1234"))

		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Result().StatusCode, http.StatusOK)
		}
	}

	if handlerCallCount != 5 {
		t.Errorf("handler call count = %d, want 5", handlerCallCount)
	}
}

func TestRateLimitMiddleware_Returns429WithRetryAfter(t *testing.T) {
	rl := newTestRateLimiter(t, 0.5, 1)
	handler := rl.Middleware()(okHandler())

	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, requestFrom("192.0.2.1:1234"))
	if w1.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want %d", w1.Code, http.StatusOK)
	}

	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, requestFrom("192.0.2.1:5678"))

	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w2.Code, http.StatusTooManyRequests)
	}

	retryAfter, err := strconv.Atoi(w2.Header().Get("Retry-After"))
	if err != nil {
		t.Fatalf("Retry-After should be a number, got %q", w2.Header().Get("Retry-After"))
	}
	if retryAfter != 2 {
		t.Errorf("Retry-After = %d, want 2", retryAfter)
	}

	if ct := w2.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w2.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != model.ErrCodeRateLimited {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeRateLimited)
	}
	if body.Category != "system" {
		t.Errorf("category = %q, want %q", body.Category, "system")
	}
}

func TestRateLimitMiddleware_IsolatesClients(t *testing.T) {
	rl := newTestRateLimiter(t, 1, 1)
	handler := rl.Middleware()(okHandler())

	wA := httptest.NewRecorder()
	handler.ServeHTTP(wA, requestFrom("192.0.2.1:1000"))
	wA2 := httptest.NewRecorder()
	handler.ServeHTTP(wA2, requestFrom("192.0.2.1:1001"))
	wB := httptest.NewRecorder()
	handler.ServeHTTP(wB, requestFrom("198.51.100.7:1000"))

	if wA.Code != http.StatusOK {
		t.Errorf("client A first: status = %d, want %d", wA.Code, http.StatusOK)
	}
	if wA2.Code != http.StatusTooManyRequests {
		t.Errorf("client A second: status = %d, want %d", wA2.Code, http.StatusTooManyRequests)
	}
	if wB.Code != http.StatusOK {
		t.Errorf("client B first: status = %d, want %d", wB.Code, http.StatusOK)
	}
	if got := rl.LimiterCount(); got != 2 {
		t.Errorf("LimiterCount() = %d, want 2", got)
	}
}

func TestRateLimiter_CleanupRemovesIdleEntries(t *testing.T) {
	rl := newTestRateLimiter(t, 1, 1)
	handler := rl.Middleware()(okHandler())
	handler.ServeHTTP(httptest.NewRecorder(), requestFrom("192.0.2.1:1000"))

	rl.cleanup(time.Now())
	if got := rl.LimiterCount(); got != 1 {
		t.Errorf("LimiterCount() after fresh cleanup = %d, want 1", got)
	}

	rl.cleanup(time.Now().Add(3 * time.Minute))
	if got := rl.LimiterCount(); got != 0 {
		t.Errorf("LimiterCount() after expiry = %d, want 0", got)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig(), nil)
	rl.Stop()
	rl.Stop()
}

func TestPerMinuteRateLimiterConfig(t *testing.T) {
	cfg := PerMinuteRateLimiterConfig(30)
	if cfg.Rate != rate.Limit(0.5) {
		t.Errorf("Rate = %v, want 0.5", cfg.Rate)
	}
	if cfg.Burst != 30 {
		t.Errorf("Burst = %d, want 30", cfg.Burst)
	}

	def := PerMinuteRateLimiterConfig(0)
	if def.Burst != 120 {
		t.Errorf("default Burst = %d, want 120", def.Burst)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{"192.0.2.1:1234", "192.0.2.1"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"192.0.2.9", "192.0.2.9"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remoteAddr
		if got := ClientIP(req); got != tt.want {
			t.Errorf("ClientIP(%q) = %q, want %q", tt.remoteAddr, got, tt.want)
		}
	}
}
