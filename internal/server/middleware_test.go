package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(9007)(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rr.Header().Get("Referrer-Policy"))
}

func TestSecurityHeaders_CORS(t *testing.T) {
	handler := SecurityHeaders(9007)(okHandler())

	tests := []struct {
		name       string
		origin     string
		expectCORS bool
	}{
		{"server port on localhost allowed", "http://localhost:9007", true},
		{"server port on loopback allowed", "http://127.0.0.1:9007", true},
		{"localhost without port allowed", "http://localhost", true},
		{"other local port blocked", "http://localhost:3000", false},
		{"external origin blocked", "http://evil.com", false},
		{"evil-localhost.com bypass attempt blocked", "http://evil-localhost.com", false},
		{"localhost subdomain bypass attempt blocked", "http://localhost.evil.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set("Origin", tt.origin)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if tt.expectCORS {
				assert.Equal(t, tt.origin, rr.Header().Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestSecurityHeaders_Preflight(t *testing.T) {
	called := false
	handler := SecurityHeaders(9007)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("OPTIONS", "/api/hooks/report", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.False(t, called)
}

func TestMaxBodySize(t *testing.T) {
	handler := MaxBodySize(10)(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("x", 100))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("POST", "/", strings.NewReader("small")))
	assert.Equal(t, http.StatusOK, rr.Code)
}
