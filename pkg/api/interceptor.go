package api

import (
	"net/http"
)

// ReadOnlyMiddleware wraps next so that only GET requests pass through.
// Used to bind a HealthServer's mux onto a local, unauthenticated listener
// (e.g. a Unix socket) that an operator's CLI can read from without mTLS,
// while keeping ApplyDesiredState / ReportWorkloadState reachable only over
// the TCP listener bound by HealthServer.Start in health.go.
func ReadOnlyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "write operations not allowed on the local socket - use the TCP listener", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
