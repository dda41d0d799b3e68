package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func limitedRouter(rl *RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(rl.Handler())
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func TestRateLimiter_BurstThenReject(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := limitedRouter(NewRateLimiter(0, 2, KeyBySessionOrIP())) // no refill, burst 2

	do := func() int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set("X-Session-ID", "S1")
		r.ServeHTTP(w, req)
		return w.Code
	}

	if do() != http.StatusOK || do() != http.StatusOK {
		t.Fatal("burst requests should pass")
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("X-Session-ID", "S1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "1" {
		t.Fatalf("Retry-After = %q", w.Header().Get("Retry-After"))
	}
}

func TestRateLimiter_IndependentBucketsPerSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := limitedRouter(NewRateLimiter(0, 1, KeyBySessionOrIP()))

	do := func(sid string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set("X-Session-ID", sid)
		r.ServeHTTP(w, req)
		return w.Code
	}

	if do("S1") != http.StatusOK {
		t.Fatal("first S1 request should pass")
	}
	if do("S1") != http.StatusTooManyRequests {
		t.Fatal("second S1 request should be limited")
	}
	// A different session has its own bucket.
	if do("S2") != http.StatusOK {
		t.Fatal("S2 should not share S1's bucket")
	}
}

func TestKeyBySessionOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	keyFn := KeyBySessionOrIP()

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set("X-Session-ID", "S1")
	if got := keyFn(c); got != "session:S1" {
		t.Fatalf("key = %q", got)
	}

	c2, _ := gin.CreateTestContext(httptest.NewRecorder())
	c2.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c2.Request.RemoteAddr = "10.1.2.3:5555"
	if got := keyFn(c2); got != "ip:10.1.2.3" {
		t.Fatalf("key = %q", got)
	}
}

func TestNewRateLimiter_CoercesBurst(t *testing.T) {
	rl := NewRateLimiter(1, 0, KeyBySessionOrIP())
	if rl.burst != 1 {
		t.Fatalf("burst = %d, want coerced to 1", rl.burst)
	}
}
