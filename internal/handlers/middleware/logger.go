package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/nkiryanov/userdir/internal/logger"
)

type logData struct {
	responseStatus int
	responseSize   int
}

type logWriter struct {
	http.ResponseWriter
	data logData
}

func (w *logWriter) Write(p []byte) (int, error) {
	size, err := w.ResponseWriter.Write(p)
	w.data.responseSize += size
	return size, err
}

func (w *logWriter) WriteHeader(statusCode int) {
	w.ResponseWriter.WriteHeader(statusCode)
	w.data.responseStatus = statusCode
}

// LoggerMiddleware logs every request and puts request scoped logger to the context
// Has to be mounted after chi RequestID middleware to get request_id
func LoggerMiddleware(l logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := chimw.GetReqID(r.Context())

			lw := &logWriter{
				ResponseWriter: w,
				data:           logData{responseStatus: http.StatusOK, responseSize: 0},
			}

			ctx := logger.WithContext(r.Context(), l.With("request_id", reqID))
			next.ServeHTTP(lw, r.WithContext(ctx))

			l.Info(
				"got HTTP request",
				"method", r.Method,
				"uri", r.RequestURI,
				"duration", time.Since(start),
				"status", lw.data.responseStatus,
				"size", lw.data.responseSize,
				"request_id", reqID,
			)
		})

	}
}

// RecovererMiddleware turns panic into generic 500
func RecovererMiddleware(l logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.FromContext(r.Context(), l).Error("panic while serving request", "panic", rec, "uri", r.RequestURI)
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"service_error","message":"Internal server error"}` + "\n"))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
