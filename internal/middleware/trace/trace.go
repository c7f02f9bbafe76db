// Package trace records the route, status and latency of each request.
package trace

import (
	"net/http"
	"sync/atomic"
	"time"
)

// Observer receives one call per completed request.
type Observer interface {
	ObserveRequest(method, route string, status int, d time.Duration)
}

// UnmatchedRoute labels requests no route pattern matched.
const UnmatchedRoute = "unmatched"

// Middleware must wrap the ServeMux directly: the matched pattern is read
// from the request the mux received.
type Middleware struct {
	observer Observer
	total    int64
	errors   int64
}

func NewMiddleware(observer Observer) *Middleware {
	return &Middleware{observer: observer}
}

func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		atomic.AddInt64(&m.total, 1)
		if rw.statusCode >= 500 {
			atomic.AddInt64(&m.errors, 1)
		}
		route := r.Pattern
		if route == "" {
			route = UnmatchedRoute
		}
		if m.observer != nil {
			m.observer.ObserveRequest(r.Method, route, rw.statusCode, time.Since(start))
		}
	})
}

// Totals returns the number of requests and of server errors seen.
func (m *Middleware) Totals() (requests, serverErrors int64) {
	return atomic.LoadInt64(&m.total), atomic.LoadInt64(&m.errors)
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
