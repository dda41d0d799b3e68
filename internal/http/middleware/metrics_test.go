package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountersAndPathFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/scans/:id", func(c *gin.Context) {
		c.String(http.StatusOK, "hello")
	})

	// Baselines guard against other tests touching the shared registry.
	baseOK := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/scans/:id", "200"))
	base404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/nope", "404"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scans/abc", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /scans/abc status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope status = %d", w.Code)
	}

	// Matched requests are labeled with the route pattern, not the raw URL.
	gotOK := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/scans/:id", "200"))
	if gotOK != baseOK+1 {
		t.Fatalf("counter for /scans/:id 200 = %v, want %v", gotOK, baseOK+1)
	}

	// Unmatched requests fall back to the raw URL path.
	got404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/nope", "404"))
	if got404 != base404+1 {
		t.Fatalf("counter for 404 fallback = %v, want %v", got404, base404+1)
	}

	if inFlight := testutil.ToFloat64(httpInflight); inFlight != 0 {
		t.Fatalf("httpInflight = %v, want 0 after requests complete", inFlight)
	}
}
