package middleware

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RequestIDContextKey carries the request ID assigned to each request.
const RequestIDContextKey ContextKey = "request_id"

// RequestID assigns a UUID to each request, echoes it in the X-Request-ID
// header and logs the request line with timing.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		short := id
		if len(short) > 8 {
			short = short[:8]
		}

		ctx := context.WithValue(r.Context(), RequestIDContextKey, id)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		log.Printf("[HTTP] %s %s %s (%s)", short, r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}

// RequestIDFromContext returns the request ID, empty if absent.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey).(string)
	return id
}
