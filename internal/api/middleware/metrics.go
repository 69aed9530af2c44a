package middleware

import (
	"net/http"
	"time"
)

// RequestObserver records per-request measurements.
type RequestObserver interface {
	ObserveRequest(method string, status int, d time.Duration)
}

// Metrics returns middleware that reports every request to obs.
func Metrics(obs RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status
			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			obs.ObserveRequest(r.Method, rw.statusCode, time.Since(start))
		})
	}
}
