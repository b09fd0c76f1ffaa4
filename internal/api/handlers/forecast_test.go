package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/cashflow-ai-go/internal/cache"
	"github.com/irfndi/cashflow-ai-go/internal/database"
	"github.com/irfndi/cashflow-ai-go/internal/forecasting"
	"github.com/irfndi/cashflow-ai-go/internal/models"
	"github.com/irfndi/cashflow-ai-go/internal/services"
	"github.com/irfndi/cashflow-ai-go/internal/utils"
)

type MockForecastService struct {
	mock.Mock
}

func (m *MockForecastService) Generate(ctx context.Context, organizationID uuid.UUID, days int) (*models.Forecast, error) {
	args := m.Called(ctx, organizationID, days)
	if f := args.Get(0); f != nil {
		return f.(*models.Forecast), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockForecastService) Get(ctx context.Context, forecastID uuid.UUID) (*models.ForecastResponse, error) {
	args := m.Called(ctx, forecastID)
	if r := args.Get(0); r != nil {
		return r.(*models.ForecastResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockForecastService) Result(ctx context.Context, forecastID uuid.UUID) (*cache.ForecastCacheEntry, error) {
	args := m.Called(ctx, forecastID)
	if e := args.Get(0); e != nil {
		return e.(*cache.ForecastCacheEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func setupForecastRouter(svc ForecastServiceInterface) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewForecastHandler(svc, 30, nil)
	router.POST("/forecasts/:id/generate", h.GenerateForecast)
	router.GET("/forecasts/:id", h.GetForecast)
	router.GET("/forecasts/:id/result", h.GetForecastResult)
	return router
}

func serve(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestGenerateForecast(t *testing.T) {
	svc := new(MockForecastService)
	router := setupForecastRouter(svc)
	orgID := uuid.New()
	forecastID := uuid.New()

	svc.On("Generate", mock.Anything, orgID, 30).
		Return(&models.Forecast{ID: forecastID, Status: models.ForecastStatusGenerating}, nil).Once()
	svc.On("Generate", mock.Anything, orgID, 90).
		Return(&models.Forecast{ID: forecastID, Status: models.ForecastStatusGenerating}, nil).Once()

	w := serve(router, http.MethodPost, "/forecasts/"+orgID.String()+"/generate")
	assert.Equal(t, http.StatusAccepted, w.Code)
	body := decode(t, w)
	assert.Equal(t, forecastID.String(), body["forecast_id"])
	assert.Equal(t, "generating", body["status"])

	w = serve(router, http.MethodPost, "/forecasts/"+orgID.String()+"/generate?forecast_days=90")
	assert.Equal(t, http.StatusAccepted, w.Code)
	svc.AssertExpectations(t)
}

func TestGenerateForecast_BadRequests(t *testing.T) {
	svc := new(MockForecastService)
	router := setupForecastRouter(svc)
	orgID := uuid.New()

	svc.On("Generate", mock.Anything, orgID, 400).
		Return(nil, utils.NewValidationError("forecast_days must be between 1 and 365, got 400"))

	tests := []struct {
		name    string
		path    string
		message string
	}{
		{"invalid organization", "/forecasts/not-a-uuid/generate", "organization_id: invalid UUID"},
		{"non-numeric days", "/forecasts/" + orgID.String() + "/generate?forecast_days=ten", "forecast_days must be an integer"},
		{"days out of range", "/forecasts/" + orgID.String() + "/generate?forecast_days=400", "between 1 and 365"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, http.MethodPost, tt.path)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, decode(t, w)["error"], tt.message)
		})
	}
}

func TestGenerateForecast_InternalError(t *testing.T) {
	svc := new(MockForecastService)
	router := setupForecastRouter(svc)
	orgID := uuid.New()

	svc.On("Generate", mock.Anything, orgID, 30).Return(nil, errors.New("pool exhausted"))

	w := serve(router, http.MethodPost, "/forecasts/"+orgID.String()+"/generate")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", decode(t, w)["error"])
}

func TestGetForecast(t *testing.T) {
	svc := new(MockForecastService)
	router := setupForecastRouter(svc)
	id := uuid.New()
	missing := uuid.New()
	score := 0.87

	svc.On("Get", mock.Anything, id).Return(&models.ForecastResponse{
		Forecast: models.Forecast{
			ID:              id,
			Status:          models.ForecastStatusActive,
			Confidence:      models.ConfidenceHigh,
			ConfidenceScore: &score,
		},
		DataPoints: []models.ForecastDataPoint{{ForecastID: id, Date: time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)}},
	}, nil)
	svc.On("Get", mock.Anything, missing).Return(nil, database.ErrForecastNotFound)

	w := serve(router, http.MethodGet, "/forecasts/"+id.String())
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	forecast := body["forecast"].(map[string]interface{})
	assert.Equal(t, "active", forecast["status"])
	assert.Equal(t, 0.87, forecast["confidence_score"])
	assert.Len(t, body["data_points"], 1)

	w = serve(router, http.MethodGet, "/forecasts/"+missing.String())
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(router, http.MethodGet, "/forecasts/123")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "forecast_id: invalid UUID")
}

func TestGetForecastResult(t *testing.T) {
	svc := new(MockForecastService)
	router := setupForecastRouter(svc)
	id := uuid.New()
	missing := uuid.New()

	svc.On("Result", mock.Anything, id).Return(&cache.ForecastCacheEntry{
		ForecastID: id,
		Result: &forecasting.ForecastResult{
			Predictions:         []float64{10},
			ConfidenceIntervals: []forecasting.Interval{{Lower: 5, Upper: 15}},
			ModelType:           forecasting.ModelEnsemble,
			ConfidenceScore:     0.5,
		},
	}, nil)
	svc.On("Result", mock.Anything, missing).Return(nil, services.ErrResultNotCached)

	w := serve(router, http.MethodGet, "/forecasts/"+id.String()+"/result")
	assert.Equal(t, http.StatusOK, w.Code)
	result := decode(t, w)["result"].(map[string]interface{})
	assert.Equal(t, "ensemble", result["model_type"])

	w = serve(router, http.MethodGet, "/forecasts/"+missing.String()+"/result")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
