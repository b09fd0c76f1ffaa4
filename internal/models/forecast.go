package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ForecastStatus tracks a forecast through background generation.
type ForecastStatus string

const (
	ForecastStatusGenerating ForecastStatus = "generating"
	ForecastStatusActive     ForecastStatus = "active"
	ForecastStatusFailed     ForecastStatus = "failed"
)

// Confidence buckets stored on the forecast record.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// Forecast is one generation run for an organization.
type Forecast struct {
	ID                uuid.UUID      `json:"id" db:"id"`
	OrganizationID    uuid.UUID      `json:"organization_id" db:"organization_id"`
	Name              string         `json:"name" db:"name"`
	ForecastStartDate time.Time      `json:"forecast_start_date" db:"forecast_start_date"`
	ForecastEndDate   time.Time      `json:"forecast_end_date" db:"forecast_end_date"`
	Status            ForecastStatus `json:"status" db:"status"`
	ModelVersion      string         `json:"model_version" db:"model_version"`
	Confidence        string         `json:"confidence" db:"confidence"`
	ConfidenceScore   *float64       `json:"confidence_score,omitempty" db:"confidence_score"`
	ErrorMessage      *string        `json:"error_message,omitempty" db:"error_message"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// ForecastDataPoint is one predicted day. Inflow and outflow are nullable
// because only net flow is modelled.
type ForecastDataPoint struct {
	ID               uuid.UUID        `json:"id" db:"id"`
	ForecastID       uuid.UUID        `json:"forecast_id" db:"forecast_id"`
	Date             time.Time        `json:"date" db:"date"`
	PredictedInflow  *decimal.Decimal `json:"predicted_inflow" db:"predicted_inflow"`
	PredictedOutflow *decimal.Decimal `json:"predicted_outflow" db:"predicted_outflow"`
	PredictedNetFlow decimal.Decimal  `json:"predicted_net_flow" db:"predicted_net_flow"`
	LowerBound       decimal.Decimal  `json:"lower_bound" db:"lower_bound"`
	UpperBound       decimal.Decimal  `json:"upper_bound" db:"upper_bound"`
	PredictedBalance decimal.Decimal  `json:"predicted_balance" db:"predicted_balance"`
	ConfidenceScore  decimal.Decimal  `json:"confidence_score" db:"confidence_score"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
}

// ForecastResponse is the API view of a forecast and its data points.
type ForecastResponse struct {
	Forecast   Forecast            `json:"forecast"`
	DataPoints []ForecastDataPoint `json:"data_points"`
}

// GenerateForecastResponse acknowledges a queued generation.
type GenerateForecastResponse struct {
	ForecastID uuid.UUID      `json:"forecast_id"`
	Status     ForecastStatus `json:"status"`
}

// ConfidenceBucket maps a confidence score onto the stored bucket.
func ConfidenceBucket(score float64) string {
	switch {
	case score >= 0.8:
		return ConfidenceHigh
	case score >= 0.5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
