package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/irfndi/cashflow-ai-go/internal/api/handlers"
	"github.com/irfndi/cashflow-ai-go/internal/logging"
	"github.com/irfndi/cashflow-ai-go/internal/middleware"
)

// RouterDeps are the collaborators mounted on the router. Only Forecasts is
// required.
type RouterDeps struct {
	Forecasts      handlers.ForecastServiceInterface
	Database       handlers.HealthChecker
	Redis          handlers.HealthChecker
	Generations    handlers.GenerationCounter
	Metrics        middleware.HTTPRecorder
	Gatherer       prometheus.Gatherer
	Logger         logging.Logger
	ServiceName    string
	AllowedOrigins []string
	DefaultDays    int
}

func SetupRoutes(router *gin.Engine, deps RouterDeps) {
	serviceName := deps.ServiceName
	if serviceName == "" {
		serviceName = "cashflow-ai-go"
	}
	router.Use(
		otelgin.Middleware(serviceName),
		middleware.RequestID(),
		middleware.Observability(deps.Metrics, deps.Logger),
		corsMiddleware(deps.AllowedOrigins),
	)

	health := handlers.NewHealthHandler(deps.Database, deps.Redis, deps.Generations)
	router.GET("/health", health.HealthCheck)
	router.GET("/ready", health.ReadinessCheck)
	router.GET("/live", health.LivenessCheck)

	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	forecasts := handlers.NewForecastHandler(deps.Forecasts, deps.DefaultDays, nil)

	// API v1 routes. gin requires one wildcard name per path segment, so the
	// organization and forecast IDs share :id.
	v1 := router.Group("/api/v1")
	{
		f := v1.Group("/forecasts")
		{
			f.POST("/:id/generate", forecasts.GenerateForecast)
			f.GET("/:id", forecasts.GetForecast)
			f.GET("/:id/result", forecasts.GetForecastResult)
		}
	}
}

// corsMiddleware allows the configured browser origins. "*" allows any
// origin; origins without an http(s) scheme are ignored.
func corsMiddleware(allowed []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range allowed {
		switch {
		case o == "*":
			cfg.AllowAllOrigins = true
		case strings.HasPrefix(o, "http://"), strings.HasPrefix(o, "https://"):
			cfg.AllowOrigins = append(cfg.AllowOrigins, o)
		}
	}
	if cfg.AllowAllOrigins {
		cfg.AllowOrigins = nil
	}
	if !cfg.AllowAllOrigins && len(cfg.AllowOrigins) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return cors.New(cfg)
}
