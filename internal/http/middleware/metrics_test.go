package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_SurfacesAndUnmatched(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics("/api"))
	r.GET("/api/chats", func(c *gin.Context) { c.JSON(http.StatusOK, []string{}) })
	r.GET("/about", func(c *gin.Context) { c.String(http.StatusOK, "<html></html>") })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	api := httpReqs.WithLabelValues("api", "GET", "/api/chats", "200")
	page := httpReqs.WithLabelValues("page", "GET", "/about", "200")
	ops := httpReqs.WithLabelValues("ops", "GET", "/health", "204")
	miss := httpReqs.WithLabelValues("other", "GET", unmatchedPath, "404")
	base := []float64{testutil.ToFloat64(api), testutil.ToFloat64(page), testutil.ToFloat64(ops), testutil.ToFloat64(miss)}

	for _, p := range []string{"/api/chats", "/about", "/health", "/wp-login.php", "/.env"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	want := []float64{base[0] + 1, base[1] + 1, base[2] + 1, base[3] + 2}
	for i, m := range []float64{testutil.ToFloat64(api), testutil.ToFloat64(page), testutil.ToFloat64(ops), testutil.ToFloat64(miss)} {
		if m != want[i] {
			t.Fatalf("counter %d = %v; want %v", i, m, want[i])
		}
	}
	if v := testutil.ToFloat64(httpInflight); v != 0 {
		t.Fatalf("inflight = %v", v)
	}
}

func TestSurfaceOf(t *testing.T) {
	cases := map[string]string{
		"/api/chats":     "api",
		"/":              "page",
		"/article/:slug": "page",
		"/metrics":       "ops",
		"/swagger/*any":  "ops",
		unmatchedPath:    "other",
	}
	for route, want := range cases {
		if got := surfaceOf(route, "/api"); got != want {
			t.Errorf("surfaceOf(%q) = %q; want %q", route, got, want)
		}
	}
	if got := surfaceOf("/chats", "/"); got != "page" {
		t.Errorf("root-mounted api should not classify as api, got %q", got)
	}
}
