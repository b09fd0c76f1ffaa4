// Package middleware provides HTTP middleware for request correlation,
// metrics and tracing.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/cashflow-ai-go/internal/logging"
)

const (
	// RequestIDHeader carries the request correlation ID.
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// HTTPRecorder receives one observation per request. *metrics.Recorder
// satisfies it.
type HTTPRecorder interface {
	RecordHTTPRequest(method, route, status string, d time.Duration)
}

// RequestID reuses the caller's X-Request-ID or assigns a new one, and echoes
// it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the ID assigned by RequestID, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Observability records request metrics, annotates the server span opened by
// otelgin and writes a structured access log line. Health and scrape routes
// are not logged; server errors get an extra error line keyed by request ID.
func Observability(recorder HTTPRecorder, logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		if recorder != nil {
			recorder.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(status), duration)
		}

		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			span.SetAttributes(
				attribute.String("http.request_id", GetRequestID(c)),
				attribute.Int64("http.response.size_bytes", int64(c.Writer.Size())),
			)
			if status >= 500 {
				span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(status))
			}
		}

		if logger == nil {
			return
		}
		if !isHealthRoute(route) {
			logger.LogAPIRequest(c.Request.Method, c.Request.URL.Path, status, duration.Milliseconds(), GetRequestID(c))
		}
		if status >= 500 {
			logger.WithRequestID(GetRequestID(c)).Error("Request failed",
				"method", c.Request.Method,
				"route", route,
				"status_code", status,
				"errors", c.Errors.String(),
			)
		}
	}
}

func isHealthRoute(route string) bool {
	switch route {
	case "/health", "/ready", "/live", "/metrics":
		return true
	}
	return false
}

// RecordError records an error on the current span
func RecordError(c *gin.Context, err error, description string) {
	span := trace.SpanFromContext(c.Request.Context())
	if span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, description)
	}
}
