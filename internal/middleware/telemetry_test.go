package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/irfndi/cashflow-ai-go/internal/logging"
)

type observation struct {
	method, route, status string
}

type fakeRecorder struct {
	mu  sync.Mutex
	obs []observation
}

func (f *fakeRecorder) RecordHTTPRequest(method, route, status string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.obs = append(f.obs, observation{method, route, status})
}

func newRouter(recorder HTTPRecorder, logger logging.Logger, tp *sdktrace.TracerProvider) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	if tp != nil {
		router.Use(otelgin.Middleware("test", otelgin.WithTracerProvider(tp)))
	}
	router.Use(RequestID(), Observability(recorder, logger))
	router.GET("/items/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})
	router.GET("/boom", func(c *gin.Context) {
		err := errors.New("exploded")
		_ = c.Error(err)
		RecordError(c, err, "handler failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "boom"})
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	return router
}

func TestRequestID(t *testing.T) {
	router := newRouter(nil, nil, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/1", nil))
	generated := w.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)

	req := httptest.NewRequest(http.MethodGet, "/items/1", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/items/1", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)
}

func TestObservability_RecordsMetricsAndLogs(t *testing.T) {
	recorder := &fakeRecorder{}
	var buf bytes.Buffer
	logger := logging.NewStandardLoggerWithWriter(&buf, "info", "test")
	router := newRouter(recorder, logger, nil)

	req := httptest.NewRequest(http.MethodGet, "/items/42", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	router.ServeHTTP(httptest.NewRecorder(), req)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Len(t, recorder.obs, 3)
	assert.Equal(t, observation{"GET", "/items/:id", "200"}, recorder.obs[0])
	assert.Equal(t, observation{"GET", "unmatched", "404"}, recorder.obs[1])
	assert.Equal(t, observation{"GET", "/health", "200"}, recorder.obs[2])

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2, "health checks are not logged")
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "/items/42", entry["path"])
	assert.Equal(t, "req-42", entry["request_id"])
}

func TestObservability_LogsServerErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewStandardLoggerWithWriter(&buf, "info", "test")
	router := newRouter(nil, logger, nil)

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(RequestIDHeader, "req-500")
	router.ServeHTTP(httptest.NewRecorder(), req)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, "Request failed", entry["msg"])
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "req-500", entry["request_id"])
	assert.Equal(t, "/boom", entry["route"])
	assert.Equal(t, float64(500), entry["status_code"])
	assert.Contains(t, entry["errors"], "exploded")
}

func TestObservability_AnnotatesSpans(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	router := newRouter(nil, nil, tp)

	req := httptest.NewRequest(http.MethodGet, "/items/7", nil)
	req.Header.Set(RequestIDHeader, "req-7")
	router.ServeHTTP(httptest.NewRecorder(), req)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	ended := spans.Ended()
	require.Len(t, ended, 2)
	assert.Contains(t, ended[0].Attributes(), attribute.String("http.request_id", "req-7"))
	assert.Equal(t, codes.Error, ended[1].Status().Code)
	require.NotEmpty(t, ended[1].Events())
	assert.Equal(t, "exception", ended[1].Events()[0].Name)
}
