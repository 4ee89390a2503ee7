package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecurity(opt SecurityOptions, prep func(*http.Request)) http.Header {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), SecurityHeaders(opt))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if prep != nil {
		prep(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	h := serveSecurity(SecurityOptions{}, nil)
	if h.Get("X-Content-Type-Options") != "nosniff" || h.Get("X-Frame-Options") != "DENY" || h.Get("Referrer-Policy") != "no-referrer" {
		t.Fatalf("baseline headers missing: %v", h)
	}
	if h.Get("Cache-Control") != "" || h.Get("Strict-Transport-Security") != "" || h.Get("Permissions-Policy") != "" {
		t.Fatalf("optional headers should be off: %v", h)
	}
	if h.Get("Access-Control-Expose-Headers") != requestIDHeader {
		t.Fatalf("request id should be exposed: %v", h)
	}
}

func TestSecurityHeaders_Options(t *testing.T) {
	opt := SecurityOptions{EnableHSTS: true, HSTSMaxAge: time.Hour, NoStore: true, EnablePolicy: true}

	h := serveSecurity(opt, nil)
	if h.Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS must not be sent on plain HTTP")
	}
	if h.Get("Cache-Control") != "no-store" || h.Get("Permissions-Policy") == "" {
		t.Fatalf("options not applied: %v", h)
	}

	h = serveSecurity(opt, func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "https") })
	if got := h.Get("Strict-Transport-Security"); got != "max-age=3600; includeSubDomains; preload" {
		t.Fatalf("hsts = %q", got)
	}
	h = serveSecurity(SecurityOptions{EnableHSTS: true}, func(r *http.Request) { r.TLS = &tls.ConnectionState{} })
	if got := h.Get("Strict-Transport-Security"); got != "max-age=15552000; includeSubDomains; preload" {
		t.Fatalf("default hsts = %q", got)
	}
}
