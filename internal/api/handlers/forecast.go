package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/cashflow-ai-go/internal/cache"
	"github.com/irfndi/cashflow-ai-go/internal/database"
	"github.com/irfndi/cashflow-ai-go/internal/middleware"
	"github.com/irfndi/cashflow-ai-go/internal/models"
	"github.com/irfndi/cashflow-ai-go/internal/services"
	"github.com/irfndi/cashflow-ai-go/internal/utils"
)

// ForecastServiceInterface is the part of the forecast service the API uses.
type ForecastServiceInterface interface {
	Generate(ctx context.Context, organizationID uuid.UUID, days int) (*models.Forecast, error)
	Get(ctx context.Context, forecastID uuid.UUID) (*models.ForecastResponse, error)
	Result(ctx context.Context, forecastID uuid.UUID) (*cache.ForecastCacheEntry, error)
}

// ForecastHandler serves forecast generation and retrieval.
type ForecastHandler struct {
	service     ForecastServiceInterface
	defaultDays int
	logger      *logrus.Logger
}

func NewForecastHandler(service ForecastServiceInterface, defaultDays int, logger *logrus.Logger) *ForecastHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ForecastHandler{
		service:     service,
		defaultDays: defaultDays,
		logger:      logger,
	}
}

// GenerateForecast queues a forecast for an organization.
// @Summary Generate a cash-flow forecast
// @Tags forecasts
// @Param organization_id path string true "Organization ID"
// @Param forecast_days query int false "Days to forecast"
// @Produce json
// @Success 202 {object} models.GenerateForecastResponse
// @Router /api/v1/forecasts/{organization_id}/generate [post]
func (h *ForecastHandler) GenerateForecast(c *gin.Context) {
	orgID, err := parseUUID(c, "organization_id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	days := h.defaultDays
	if raw := c.Query("forecast_days"); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil {
			h.respondError(c, utils.NewValidationErrorf("forecast_days must be an integer, got %q", raw))
			return
		}
	}

	forecast, err := h.service.Generate(c.Request.Context(), orgID, days)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, models.GenerateForecastResponse{
		ForecastID: forecast.ID,
		Status:     forecast.Status,
	})
}

// GetForecast returns a forecast with its data points.
// @Router /api/v1/forecasts/{forecast_id} [get]
func (h *ForecastHandler) GetForecast(c *gin.Context) {
	id, err := parseUUID(c, "forecast_id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	forecast, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, forecast)
}

// GetForecastResult returns the full pipeline output, including intervals,
// feature importance and model metrics, while it is cached.
// @Router /api/v1/forecasts/{forecast_id}/result [get]
func (h *ForecastHandler) GetForecastResult(c *gin.Context) {
	id, err := parseUUID(c, "forecast_id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	entry, err := h.service.Result(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// parseUUID reads the :id path parameter, naming it label in errors.
func parseUUID(c *gin.Context, label string) (uuid.UUID, error) {
	raw := c.Param("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, utils.NewFieldError(label, "invalid UUID %q", raw)
	}
	return id, nil
}

func (h *ForecastHandler) respondError(c *gin.Context, err error) {
	if validation, ok := utils.AsValidationError(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error()})
		return
	}
	switch {
	case errors.Is(err, database.ErrForecastNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "forecast not found"})
	case errors.Is(err, services.ErrResultNotCached):
		c.JSON(http.StatusNotFound, gin.H{"error": "forecast result not available"})
	default:
		h.logger.WithFields(logrus.Fields{
			"path":       c.Request.URL.Path,
			"request_id": middleware.GetRequestID(c),
			"error":      err.Error(),
		}).Error("Forecast request failed")
		middleware.RecordError(c, err, "forecast request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
