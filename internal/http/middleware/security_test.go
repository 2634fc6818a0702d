package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func secured(opt SecurityOptions, pre ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(pre...)
	r.Use(SecurityHeaders(opt))
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "<html></html>") })
	return r
}

func TestSecurityHeaders_APIBaseline(t *testing.T) {
	r := secured(SecurityOptions{}, RequestID())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	h := w.Header()
	for k, want := range map[string]string{
		"X-Content-Type-Options":        "nosniff",
		"X-Frame-Options":               "DENY",
		"Referrer-Policy":               "no-referrer",
		"Access-Control-Expose-Headers": "X-Request-ID",
	} {
		if got := h.Get(k); got != want {
			t.Errorf("%s = %q; want %q", k, got, want)
		}
	}
	if h.Get("Permissions-Policy") == "" {
		t.Errorf("Permissions-Policy missing")
	}
	for _, k := range []string{"Content-Security-Policy", "Cache-Control", "Strict-Transport-Security"} {
		if h.Get(k) != "" {
			t.Errorf("%s should be unset, got %q", k, h.Get(k))
		}
	}
}

func TestSecurityHeaders_TrackedPage(t *testing.T) {
	r := secured(SecurityOptions{CSP: "default-src 'self'", CacheControl: "no-cache"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Header().Get("Content-Security-Policy") != "default-src 'self'" || w.Header().Get("Cache-Control") != "no-cache" {
		t.Fatalf("headers: %v", w.Header())
	}
	if w.Header().Get("Access-Control-Expose-Headers") != "" {
		t.Fatalf("nothing to expose without a request id")
	}
}

func TestSecurityHeaders_HSTSOnlyOverHTTPS(t *testing.T) {
	r := secured(SecurityOptions{HSTS: true, HSTSMaxAge: time.Hour})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Fatalf("plain HTTP must not get HSTS")
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Strict-Transport-Security"); got != "max-age=3600; includeSubDomains" {
		t.Fatalf("TLS HSTS = %q", got)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "HTTPS")
	secured(SecurityOptions{HSTS: true}).ServeHTTP(w, req)
	if got := w.Header().Get("Strict-Transport-Security"); got != "max-age=15552000; includeSubDomains" {
		t.Fatalf("proxied HSTS = %q", got)
	}
}

func TestExposeHeader_NoDuplicates(t *testing.T) {
	h := http.Header{}
	h.Set("Access-Control-Expose-Headers", "Retry-After, x-request-id")
	exposeHeader(h, "X-Request-ID")
	if got := h.Get("Access-Control-Expose-Headers"); got != "Retry-After, x-request-id" {
		t.Fatalf("duplicate added: %q", got)
	}
	exposeHeader(h, "ETag")
	if got := h.Get("Access-Control-Expose-Headers"); got != "Retry-After, x-request-id, ETag" {
		t.Fatalf("append: %q", got)
	}
}
