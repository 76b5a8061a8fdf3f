package observability

import (
	"context"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/orchidmarket/api/internal/platform/auth"
	"github.com/orchidmarket/api/internal/platform/httpx"
	"github.com/orchidmarket/api/internal/platform/requestctx"
)

// InjectLoggerMiddleware seeds the request context with the service logger so
// downstream handlers can retrieve it through requestctx.
func InjectLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestctx.WithLogger(r.Context(), logger)))
		})
	}
}

// RequestLoggerMiddleware logs request start and completion with structured
// fields. Panics are logged as 500 completions and re-raised for the recovery
// middleware to handle.
func RequestLoggerMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := scopedRequestLogger(ctx, r)
			r = r.WithContext(requestctx.WithLogger(ctx, logger))

			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			logger.Info("request started")

			defer func() {
				rec := recover()
				status := ww.status
				if rec != nil && status < http.StatusInternalServerError {
					status = http.StatusInternalServerError
				}

				fields := []zap.Field{
					zap.Int("status", status),
					zap.Duration("latency", time.Since(start)),
					zap.Int64("bytes", ww.bytes),
				}
				switch {
				case rec != nil || status >= http.StatusInternalServerError:
					logger.Error("request completed", fields...)
				case status >= http.StatusBadRequest:
					logger.Warn("request completed", fields...)
				default:
					logger.Info("request completed", fields...)
				}

				if rec != nil {
					panic(rec)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// RecoveryMiddleware converts panics into a JSON 500 response after logging
// the stack trace.
func RecoveryMiddleware(fallback *zap.Logger) func(http.Handler) http.Handler {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}

				ctx := r.Context()
				logger := requestctx.Logger(ctx)
				if logger == requestctx.NoopLogger() {
					logger = fallback
				}
				logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)

				httpx.WriteError(ctx, w, httpx.NewError("internal_server_error", "internal server error", http.StatusInternalServerError))
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func scopedRequestLogger(ctx context.Context, r *http.Request) *zap.Logger {
	logger := WithRequestFields(requestctx.Logger(ctx),
		zap.String("request_id", middleware.GetReqID(ctx)),
		zap.String("method", SanitizeMethod(r.Method)),
		zap.String("route", SanitizeRoute(routePattern(r))),
		zap.String("user_id", callerUID(ctx)),
	)
	if ip := clientIP(r); ip != "" {
		logger = logger.With(zap.String("remote_ip", ip))
	}
	return logger
}

func callerUID(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		return SanitizeUserID(identity.UID)
	}
	return ""
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	if r.URL != nil && r.URL.Path != "" {
		return r.URL.Path
	}
	return "/"
}

func clientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return stripControl(addr, maxUserIDLength)
}

// statusWriter records the response status and byte count for completion logs.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(status int) {
	if status >= 100 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}
