package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/cashflow-ai-go/internal/cache"
	"github.com/irfndi/cashflow-ai-go/internal/config"
	"github.com/irfndi/cashflow-ai-go/internal/forecasting"
	"github.com/irfndi/cashflow-ai-go/internal/logging"
	"github.com/irfndi/cashflow-ai-go/internal/models"
	"github.com/irfndi/cashflow-ai-go/internal/telemetry"
	"github.com/irfndi/cashflow-ai-go/internal/utils"
)

// ModelVersion is stored on every forecast record.
const ModelVersion = "ensemble-v1"

// ErrResultNotCached is returned when a forecast result is not (or no longer)
// in the result cache.
var ErrResultNotCached = errors.New("forecast result not cached")

// SeriesLoader reads an organization's daily cash-flow history.
type SeriesLoader interface {
	DailySeries(ctx context.Context, organizationID uuid.UUID, start, end time.Time) ([]models.DailyCashFlow, error)
}

// ForecastStore persists forecasts and their data points.
type ForecastStore interface {
	Create(ctx context.Context, f *models.Forecast) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Forecast, error)
	MarkActive(ctx context.Context, id uuid.UUID, confidenceScore float64) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause error) error
	InsertDataPoints(ctx context.Context, points []models.ForecastDataPoint) error
	ListDataPoints(ctx context.Context, forecastID uuid.UUID) ([]models.ForecastDataPoint, error)
}

// ResultCache holds finished forecast results.
type ResultCache interface {
	Get(ctx context.Context, forecastID uuid.UUID) (*cache.ForecastCacheEntry, bool)
	Set(ctx context.Context, forecastID, organizationID uuid.UUID, result *forecasting.ForecastResult) error
}

// MetricsRecorder receives generation metrics. *metrics.Recorder satisfies it.
type MetricsRecorder interface {
	RecordForecast(status string, confidence float64)
	ObserveStage(stage string, d time.Duration)
	RecordTraining(success bool)
	SetModelCacheSize(n int)
}

type noopRecorder struct{}

func (noopRecorder) RecordForecast(string, float64) {}
func (noopRecorder) ObserveStage(string, time.Duration) {}
func (noopRecorder) RecordTraining(bool) {}
func (noopRecorder) SetModelCacheSize(int) {}

// ForecastServiceConfig holds the limits the service enforces around the
// pipeline.
type ForecastServiceConfig struct {
	Pipeline          forecasting.Config
	TrainingDays      int
	MaxHorizonDays    int
	ConfidenceLevel   float64
	GenerationTimeout time.Duration
	ModelCacheSize    int
	ModelTTL          time.Duration

	// CacheBreaker guards result cache writes. Zero values take the breaker
	// defaults.
	CacheBreaker CircuitBreakerConfig
}

// NewForecastServiceConfig derives the service settings from application config.
func NewForecastServiceConfig(cfg config.ForecastingConfig) ForecastServiceConfig {
	return ForecastServiceConfig{
		Pipeline:          cfg.ToCoreConfig(),
		TrainingDays:      cfg.TrainingDays,
		MaxHorizonDays:    cfg.MaxHorizonDays,
		ConfidenceLevel:   cfg.ConfidenceLevel,
		GenerationTimeout: config.Duration(cfg.GenerationTimeout, 10*time.Minute),
		ModelCacheSize:    cfg.ModelCacheSize,
		ModelTTL:          config.Duration(cfg.ModelTTL, 24*time.Hour),
	}
}

// ForecastServiceDeps are the collaborators of ForecastService. Cache,
// Metrics, Logger and Events are optional.
type ForecastServiceDeps struct {
	Series  SeriesLoader
	Store   ForecastStore
	Cache   ResultCache
	Metrics MetricsRecorder
	Logger  *logrus.Logger
	Events  logging.Logger
}

// ForecastService generates forecasts in the background and serves them back.
type ForecastService struct {
	cfg     ForecastServiceConfig
	series  SeriesLoader
	store   ForecastStore
	results ResultCache
	metrics MetricsRecorder
	logger  *logrus.Logger
	events  logging.Logger
	tracer  trace.Tracer

	forecasters *cache.ModelCache
	tracker     *GenerationTracker
	now         func() time.Time
}

// NewForecastService wires the service.
func NewForecastService(cfg ForecastServiceConfig, deps ForecastServiceDeps) (*ForecastService, error) {
	if deps.Series == nil || deps.Store == nil {
		return nil, fmt.Errorf("forecast service requires a series loader and a forecast store")
	}
	if cfg.TrainingDays < 1 {
		return nil, fmt.Errorf("training days must be positive, got %d", cfg.TrainingDays)
	}
	if cfg.MaxHorizonDays < 1 {
		return nil, fmt.Errorf("max horizon days must be positive, got %d", cfg.MaxHorizonDays)
	}
	if err := cfg.Pipeline.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline configuration: %w", err)
	}

	forecasters, err := cache.NewModelCache(cfg.ModelCacheSize, cfg.ModelTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create model cache: %w", err)
	}

	if deps.Metrics == nil {
		deps.Metrics = noopRecorder{}
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Events == nil {
		deps.Events = logging.NewStandardLoggerWithWriter(io.Discard, "error", "")
	}
	var results ResultCache
	if deps.Cache != nil {
		results = newGuardedCache(deps.Cache, NewCircuitBreaker("result_cache", cfg.CacheBreaker, deps.Logger))
	}

	return &ForecastService{
		cfg:         cfg,
		series:      deps.Series,
		store:       deps.Store,
		results:     results,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		events:      deps.Events,
		tracer:      telemetry.GetForecastTracer(),
		forecasters: forecasters,
		tracker:     NewGenerationTracker(cfg.GenerationTimeout, deps.Logger),
		now:         time.Now,
	}, nil
}

// Generate records a new forecast in the generating state and starts the
// pipeline in the background. The returned forecast is the stored record.
func (s *ForecastService) Generate(ctx context.Context, organizationID uuid.UUID, days int) (*models.Forecast, error) {
	if days < 1 || days > s.cfg.MaxHorizonDays {
		return nil, utils.NewValidationErrorf("forecast_days must be between 1 and %d, got %d", s.cfg.MaxHorizonDays, days)
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	f := &models.Forecast{
		ID:                uuid.New(),
		OrganizationID:    organizationID,
		Name:              "AI Forecast - " + today.Format("2006-01-02"),
		ForecastStartDate: today,
		ForecastEndDate:   today.AddDate(0, 0, days-1),
		Status:            models.ForecastStatusGenerating,
		ModelVersion:      ModelVersion,
		Confidence:        models.ConfidenceMedium,
	}
	if err := s.store.Create(ctx, f); err != nil {
		return nil, fmt.Errorf("failed to create forecast: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"forecast_id":     f.ID,
		"organization_id": organizationID,
		"forecast_days":   days,
	}).Info("Forecast generation queued")

	s.tracker.Go(ctx, f.ID, func(gc *GenerationContext) {
		s.run(gc.Ctx, f, today, days)
	})
	return f, nil
}

func (s *ForecastService) run(ctx context.Context, f *models.Forecast, today time.Time, days int) {
	ctx, span := s.tracer.Start(ctx, "forecast.generate", trace.WithAttributes(
		attribute.String("forecast.id", f.ID.String()),
		attribute.String("organization.id", f.OrganizationID.String()),
		attribute.Int("forecast.days", days),
	))
	defer span.End()
	started := time.Now()

	result, err := s.generate(ctx, f, today, days)
	if err != nil {
		telemetry.RecordError(span, err)
		s.fail(ctx, f, err)
		return
	}

	span.SetAttributes(attribute.Float64("forecast.confidence_score", result.ConfidenceScore))
	s.metrics.RecordForecast(string(models.ForecastStatusActive), result.ConfidenceScore)
	s.events.WithModel(string(result.ModelType)).Debug("Forecast model metrics",
		"organization_id", f.OrganizationID.String(),
		"forecast_id", f.ID.String(),
		"mae", result.ModelMetrics[forecasting.MetricMAE],
	)
	s.events.LogForecastGenerated(f.OrganizationID.String(), f.ID.String(), days, result.ConfidenceScore, time.Since(started))
}

func (s *ForecastService) generate(ctx context.Context, f *models.Forecast, today time.Time, days int) (*forecasting.ForecastResult, error) {
	stage := time.Now()
	history, err := s.series.DailySeries(ctx, f.OrganizationID, today.AddDate(0, 0, -s.cfg.TrainingDays), today.AddDate(0, 0, -1))
	if err != nil {
		return nil, fmt.Errorf("failed to load cash flow history: %w", err)
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("no cash flow history for organization %s", f.OrganizationID)
	}
	s.metrics.ObserveStage("load", time.Since(stage))

	forecaster, cached, err := s.forecasterFor(f.OrganizationID)
	if err != nil {
		return nil, err
	}
	trained := forecaster.IsTrained()

	stage = time.Now()
	result, err := forecaster.Forecast(ctx, toSeries(history), days, s.cfg.ConfidenceLevel)
	if !trained {
		s.metrics.RecordTraining(forecaster.IsTrained())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to forecast: %w", err)
	}
	s.metrics.ObserveStage("predict", time.Since(stage))
	if !cached {
		s.forecasters.Add(f.OrganizationID, forecaster)
		s.metrics.SetModelCacheSize(s.forecasters.Len())
	}

	stage = time.Now()
	points := BuildDataPoints(f.ID, result, history[len(history)-1].Balance, s.now().UTC())
	if err := s.store.InsertDataPoints(ctx, points); err != nil {
		return nil, fmt.Errorf("failed to store data points: %w", err)
	}
	if err := s.store.MarkActive(ctx, f.ID, result.ConfidenceScore); err != nil {
		return nil, fmt.Errorf("failed to activate forecast: %w", err)
	}
	s.metrics.ObserveStage("persist", time.Since(stage))

	if s.results != nil {
		if err := s.results.Set(ctx, f.ID, f.OrganizationID, result); err != nil {
			s.logger.WithFields(logrus.Fields{
				"forecast_id": f.ID,
				"error":       err.Error(),
			}).Warn("Failed to cache forecast result")
		}
	}
	return result, nil
}

// forecasterFor returns the organization's cached forecaster or a new one.
func (s *ForecastService) forecasterFor(organizationID uuid.UUID) (*forecasting.Forecaster, bool, error) {
	if f, ok := s.forecasters.Get(organizationID); ok {
		return f, true, nil
	}
	f, err := forecasting.NewForecaster(s.cfg.Pipeline, s.logger)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create forecaster: %w", err)
	}
	return f, false, nil
}

func (s *ForecastService) fail(ctx context.Context, f *models.Forecast, cause error) {
	s.logger.WithFields(logrus.Fields{
		"forecast_id":     f.ID,
		"organization_id": f.OrganizationID,
		"error":           cause.Error(),
	}).Error("Forecast generation failed")
	s.events.WithOrganization(f.OrganizationID.String()).Error("Forecast generation failed",
		"event", "forecast_failed",
		"forecast_id", f.ID.String(),
		"error", cause.Error(),
	)
	s.metrics.RecordForecast(string(models.ForecastStatusFailed), 0)

	// The generation context may already be past its deadline.
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.store.MarkFailed(markCtx, f.ID, cause); err != nil {
		s.logger.WithFields(logrus.Fields{
			"forecast_id": f.ID,
			"error":       err.Error(),
		}).Error("Failed to mark forecast as failed")
	}
}

// Get returns a forecast with its data points.
func (s *ForecastService) Get(ctx context.Context, forecastID uuid.UUID) (*models.ForecastResponse, error) {
	f, err := s.store.GetByID(ctx, forecastID)
	if err != nil {
		return nil, err
	}
	points, err := s.store.ListDataPoints(ctx, forecastID)
	if err != nil {
		return nil, err
	}
	if points == nil {
		points = []models.ForecastDataPoint{}
	}
	return &models.ForecastResponse{Forecast: *f, DataPoints: points}, nil
}

// Result returns the full pipeline output of a finished forecast from the
// result cache.
func (s *ForecastService) Result(ctx context.Context, forecastID uuid.UUID) (*cache.ForecastCacheEntry, error) {
	if s.results == nil {
		return nil, ErrResultNotCached
	}
	entry, ok := s.results.Get(ctx, forecastID)
	if !ok {
		return nil, ErrResultNotCached
	}
	return entry, nil
}

// ActiveGenerations returns the number of forecasts still being generated.
func (s *ForecastService) ActiveGenerations() int {
	return s.tracker.ActiveCount()
}

// Shutdown drains background generations, cancelling those still running
// when ctx is done.
func (s *ForecastService) Shutdown(ctx context.Context) error {
	return s.tracker.Shutdown(ctx)
}

func toSeries(history []models.DailyCashFlow) []forecasting.TimeSeriesRow {
	rows := make([]forecasting.TimeSeriesRow, len(history))
	for i, d := range history {
		rows[i] = forecasting.TimeSeriesRow{
			Date:         d.Date,
			NetFlow:      d.NetFlow().InexactFloat64(),
			TotalInflow:  d.Inflow.InexactFloat64(),
			TotalOutflow: d.Outflow.InexactFloat64(),
			TotalBalance: d.Balance.InexactFloat64(),
		}
	}
	return rows
}

// BuildDataPoints turns a forecast result into one data point per day. The
// predicted balance starts from lastBalance and accumulates the predicted net
// flow.
func BuildDataPoints(forecastID uuid.UUID, result *forecasting.ForecastResult, lastBalance decimal.Decimal, createdAt time.Time) []models.ForecastDataPoint {
	points := make([]models.ForecastDataPoint, len(result.Predictions))
	balance := lastBalance
	score := decimal.NewFromFloat(result.ConfidenceScore).Round(4)
	for i, p := range result.Predictions {
		net := decimal.NewFromFloat(p).Round(2)
		balance = balance.Add(net)
		points[i] = models.ForecastDataPoint{
			ID:               uuid.New(),
			ForecastID:       forecastID,
			Date:             result.ForecastDates[i],
			PredictedNetFlow: net,
			LowerBound:       decimal.NewFromFloat(result.ConfidenceIntervals[i].Lower).Round(2),
			UpperBound:       decimal.NewFromFloat(result.ConfidenceIntervals[i].Upper).Round(2),
			PredictedBalance: balance,
			ConfidenceScore:  score,
			CreatedAt:        createdAt,
		}
	}
	return points
}
