package observability

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cardapio-field/api/internal/platform/auth"
	"github.com/cardapio-field/api/internal/platform/httpx"
	"github.com/cardapio-field/api/internal/platform/requestctx"
)

// Route parameters copied into access logs and spans.
var loggedRouteParams = map[string]string{
	"slug":           "restaurant_slug",
	"orderID":        "order_id",
	"itemID":         "cart_item_id",
	"notificationID": "notification_id",
}

// InjectLoggerMiddleware stores logger on the request context.
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

// RequestLoggerMiddleware writes one access log entry per request and annotates the server
// span. Entries carry the customer session (from sessionHeader, response first so a newly
// minted id is seen), anything added with AnnotateRequest, and the order, cart item or
// notification the route addresses.
func RequestLoggerMiddleware(projectID, sessionHeader string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := WithRequestFields(requestctx.Logger(ctx),
				zap.String("request_id", middleware.GetReqID(ctx)),
				zap.String("method", SanitizeMethod(r.Method)),
			)
			if info, ok := requestctx.Trace(ctx); ok {
				logger = logger.With(zap.String("trace_id", info.TraceID))
				if resource := loggingTraceResource(projectID, info); resource != "" {
					logger = logger.With(zap.String("logging.googleapis.com/trace", resource))
				}
			}
			if ip := realIP(r); ip != "" {
				logger = logger.With(zap.String("remote_ip", ip))
			}
			ex := &exchange{ResponseWriter: w, status: http.StatusOK}
			ctx = context.WithValue(requestctx.WithLogger(ctx, logger), annotationsKey{}, &ex.annotations)
			r = r.WithContext(ctx)

			start := time.Now()
			panicked := true
			defer func() {
				ex.finish(r, logger, sessionHeader, time.Since(start), panicked)
			}()
			next.ServeHTTP(ex, r)
			panicked = false
		})
	}
}

// RecoveryMiddleware turns panics into a logged stack trace and a JSON 500.
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
				logger.Error("panic recovered", zap.Any("panic", rec), zap.ByteString("stack", debug.Stack()))
				httpx.WriteError(ctx, w, httpx.NewError("internal_server_error", "internal server error", http.StatusInternalServerError))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type annotationsKey struct{}

type annotations struct {
	mu     sync.Mutex
	fields []zap.Field
	attrs  []attribute.KeyValue
}

// AnnotateRequest adds a string to the access log entry and server span of the request.
// Middlewares deeper in the chain use it for values the request logger cannot see, such
// as the authenticated admin. It is a no-op outside RequestLoggerMiddleware.
func AnnotateRequest(ctx context.Context, key, value string) {
	holder, ok := ctx.Value(annotationsKey{}).(*annotations)
	if !ok || holder == nil || value == "" {
		return
	}
	value = sanitizeString(value, 64)
	holder.mu.Lock()
	holder.fields = append(holder.fields, zap.String(key, value))
	holder.attrs = append(holder.attrs, attribute.String("app."+key, value))
	holder.mu.Unlock()
}

// IdentityAnnotator records the authenticated admin uid and restaurant. Mount it after
// the authentication middleware.
func IdentityAnnotator() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity != nil {
				AnnotateRequest(r.Context(), "user_id", SanitizeUserID(identity.UID))
				AnnotateRequest(r.Context(), "restaurant_id", identity.RestaurantID)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// exchange records what the handler wrote.
type exchange struct {
	http.ResponseWriter
	status      int
	bytes       int64
	annotations annotations
}

func (e *exchange) WriteHeader(status int) {
	if status < 100 {
		status = http.StatusOK
	}
	e.status = status
	e.ResponseWriter.WriteHeader(status)
}

func (e *exchange) Write(b []byte) (int, error) {
	n, err := e.ResponseWriter.Write(b)
	e.bytes += int64(n)
	return n, err
}

func (e *exchange) finish(r *http.Request, logger *zap.Logger, sessionHeader string, latency time.Duration, panicked bool) {
	status := e.status
	if panicked && status < http.StatusInternalServerError {
		status = http.StatusInternalServerError
	}
	route := SanitizeRoute(routePattern(r))

	fields := []zap.Field{
		zap.String("route", route),
		zap.Int("status", status),
		zap.Duration("latency", latency),
		zap.Int64("bytes", e.bytes),
	}
	attrs := []attribute.KeyValue{semconv.HTTPResponseStatusCode(status), semconv.HTTPRoute(route)}

	if session := e.session(r, sessionHeader); session != "" {
		fields = append(fields, zap.String("session_id", session))
		attrs = append(attrs, attribute.String("app.session_id", session))
	}
	e.annotations.mu.Lock()
	fields = append(fields, e.annotations.fields...)
	attrs = append(attrs, e.annotations.attrs...)
	e.annotations.mu.Unlock()
	for key, value := range routeParams(r) {
		fields = append(fields, zap.String(key, value))
		attrs = append(attrs, attribute.String("app."+key, value))
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attrs...)
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	} else {
		span.SetStatus(codes.Ok, "")
	}

	if ce := logger.Check(accessLogLevel(status), "request completed"); ce != nil {
		ce.Write(fields...)
	}
}

// session prefers the response header, which carries ids minted for this request.
func (e *exchange) session(r *http.Request, header string) string {
	if header == "" {
		return ""
	}
	if id := e.Header().Get(header); id != "" {
		return SanitizeSessionID(id)
	}
	return SanitizeSessionID(r.Header.Get(header))
}

func accessLogLevel(status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status >= http.StatusBadRequest:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

func routeParams(r *http.Request) map[string]string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return nil
	}
	params := map[string]string{}
	for i, key := range rctx.URLParams.Keys {
		field, ok := loggedRouteParams[key]
		if !ok || i >= len(rctx.URLParams.Values) {
			continue
		}
		if value := sanitizeString(rctx.URLParams.Values[i], 64); value != "" {
			params[field] = value
		}
	}
	return params
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

func realIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return sanitizeString(addr, 64)
}

func loggingTraceResource(projectID string, info requestctx.TraceInfo) string {
	project := info.ProjectID
	if project == "" {
		project = projectID
	}
	if project == "" || info.TraceID == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/traces/%s", project, info.TraceID)
}
