package middle

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mstgnz/vpos/infra/config"
	"github.com/mstgnz/vpos/infra/logger"
)

const requestIDKey config.CKey = "request_id"

// statusWriter remembers the status code written by the handler. Bodies are
// never captured; they carry card data.
type statusWriter struct {
	http.ResponseWriter
	statusCode int
	written    int
}

func newStatusWriter(w http.ResponseWriter) *statusWriter {
	return &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	n, err := sw.ResponseWriter.Write(b)
	sw.written += n
	return n, err
}

func (sw *statusWriter) WriteHeader(statusCode int) {
	sw.statusCode = statusCode
	sw.ResponseWriter.WriteHeader(statusCode)
}

// RequestLoggingMiddleware assigns every request an id (X-Request-ID is
// honoured when the caller sends one) and logs method, path, status and
// latency once the handler returns
func RequestLoggingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" || len(requestID) > 64 {
				requestID = uuid.New().String()
			}
			w.Header().Set("X-Request-ID", requestID)
			ctx := context.WithValue(r.Context(), requestIDKey, requestID)

			start := time.Now()
			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r.WithContext(ctx))

			lc := logger.LogContext{
				PartnerID: GetPartnerIDFromContext(ctx),
				RequestID: requestID,
				Fields: map[string]any{
					"method":      r.Method,
					"path":        r.URL.Path,
					"status":      sw.statusCode,
					"bytes":       sw.written,
					"duration_ms": time.Since(start).Milliseconds(),
					"client_ip":   GetClientIP(r),
				},
			}
			switch {
			case sw.statusCode >= http.StatusInternalServerError:
				logger.Warn("Request failed", lc)
			case r.URL.Path == "/health" || r.URL.Path == "/metrics":
				logger.Debug("Request served", lc)
			default:
				logger.Info("Request served", lc)
			}
		})
	}
}

// GetRequestIDFromContext returns the id assigned by RequestLoggingMiddleware
func GetRequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}
