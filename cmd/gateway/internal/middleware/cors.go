package middleware

import (
	"net/http"
	"sync/atomic"
)

// CORS sets cross-origin headers. The allowed origin can change at runtime.
type CORS struct {
	origin atomic.Value
}

// NewCORS allows origin ("*" for any)
func NewCORS(origin string) *CORS {
	c := &CORS{}
	c.SetOrigin(origin)
	return c
}

// SetOrigin replaces the allowed origin
func (c *CORS) SetOrigin(origin string) {
	if origin == "" {
		origin = "*"
	}
	c.origin.Store(origin)
}

// Middleware answers preflight requests and decorates the rest
func (c *CORS) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", c.origin.Load().(string))
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key, X-Request-ID, traceparent, tracestate")
		w.Header().Set("Access-Control-Expose-Headers", "X-Trace-ID, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
