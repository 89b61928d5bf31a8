package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/snippets/internal/metrics"
	"github.com/Kocoro-lab/snippets/internal/tracing"
)

// TracingMiddleware opens a server span per request and records HTTP metrics
type TracingMiddleware struct {
	logger *zap.Logger
}

// NewTracingMiddleware creates a new tracing middleware
func NewTracingMiddleware(logger *zap.Logger) *TracingMiddleware {
	return &TracingMiddleware{
		logger: logger,
	}
}

// statusRecorder remembers the status code written by the handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// Middleware returns the HTTP middleware function
func (tm *TracingMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		route := r.Pattern
		if route == "" {
			route = r.Method + " " + r.URL.Path
		}

		ctx, span := tracing.StartHTTPSpan(r.Context(), r.Method, r.URL.Path)
		defer span.End()
		span.SetAttributes(attribute.String("http.route", route))

		parentTraceID := tm.extractTraceID(r)
		if parentTraceID != "" {
			span.SetAttributes(attribute.String("http.request.trace_id", parentTraceID))
		}

		traceID := ""
		if sc := span.SpanContext(); sc.IsValid() {
			traceID = sc.TraceID().String()
			w.Header().Set("traceparent", tracing.W3CTraceparent(ctx))
		} else if parentTraceID != "" {
			traceID = parentTraceID
		} else {
			traceID = strings.ReplaceAll(uuid.New().String(), "-", "")
		}
		w.Header().Set("X-Trace-ID", traceID)

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(ctx))

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}

		elapsed := time.Since(start)
		metrics.RecordHTTPMetrics(r.Method, route, strconv.Itoa(status), elapsed.Seconds())

		tm.logger.Debug("Request completed",
			zap.String("trace_id", traceID),
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", elapsed),
		)
	})
}

// extractTraceID extracts an upstream trace ID from request headers
func (tm *TracingMiddleware) extractTraceID(r *http.Request) string {
	if traceparent := r.Header.Get("traceparent"); traceparent != "" {
		if traceID, _, _, ok := tracing.ParseTraceparent(traceparent); ok {
			return traceID
		}
	}

	if traceID := r.Header.Get("X-Trace-ID"); traceID != "" {
		return traceID
	}

	return ""
}
