package server

import (
	"fmt"
	"net/http"
)

// MaxRequestBody bounds hook report payloads.
const MaxRequestBody = 1 << 20

// localOrigins lists the exact origins allowed to call the API from a
// browser. Matching is exact so "evil-localhost.com" never passes.
func localOrigins(port int) map[string]bool {
	origins := map[string]bool{
		"http://localhost": true,
		"http://127.0.0.1": true,
	}
	origins[fmt.Sprintf("http://localhost:%d", port)] = true
	origins[fmt.Sprintf("http://127.0.0.1:%d", port)] = true
	return origins
}

// SecurityHeaders adds security headers to every response and answers CORS
// preflight requests from local origins.
func SecurityHeaders(port int) func(http.Handler) http.Handler {
	allowed := localOrigins(port)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			origin := r.Header.Get("Origin")
			if allowed[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodySize limits the size of incoming request bodies.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
