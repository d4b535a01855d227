package logger

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/vidtube/accounts/internal/errors"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Hijack lets the session WebSocket upgrade through the wrapper.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// LoggingMiddleware logs HTTP requests and responses
func LoggingMiddleware(log *Logger) func(http.Handler) http.Handler {
	log = log.WithComponent("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rw := newResponseWriter(w)

			log.Debug(r.Context(), "request started", map[string]any{
				"method":     r.Method,
				"path":       r.URL.Path,
				"query":      log.redactor.RedactQuery(r.URL.RawQuery),
				"remote_ip":  clientIP(r),
				"user_agent": r.UserAgent(),
			})

			next.ServeHTTP(rw, r)

			fields := map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      rw.status,
				"duration_ms": time.Since(start).Milliseconds(),
			}

			switch {
			case rw.status >= 500:
				log.Error(r.Context(), "request completed with server error", nil, fields)
			case rw.status >= 400:
				log.Warn(r.Context(), "request completed with client error", fields)
			default:
				log.Info(r.Context(), "request completed", fields)
			}
		})
	}
}

// clientIP extracts the client IP from the request
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// RecoveryMiddleware recovers from panics and logs them
func RecoveryMiddleware(log *Logger) func(http.Handler) http.Handler {
	log = log.WithComponent("recovery")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					requestID := apperrors.GetRequestID(r.Context())

					log.Error(r.Context(), "panic recovered", nil, map[string]any{
						"panic":  rec,
						"path":   r.URL.Path,
						"method": r.Method,
					})

					apperrors.WriteError(w, requestID, apperrors.InternalError("an unexpected error occurred"))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
