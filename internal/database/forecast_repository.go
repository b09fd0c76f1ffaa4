package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/irfndi/cashflow-ai-go/internal/models"
)

// ErrForecastNotFound is returned when no forecast has the requested ID.
var ErrForecastNotFound = errors.New("forecast not found")

// ForecastRepository persists forecasts and their daily data points.
type ForecastRepository struct {
	pool DatabasePool
}

func NewForecastRepository(pool DatabasePool) *ForecastRepository {
	return &ForecastRepository{pool: pool}
}

// Create inserts f and fills its timestamps from the database.
func (r *ForecastRepository) Create(ctx context.Context, f *models.Forecast) error {
	query := `
		INSERT INTO forecasts (id, organization_id, name, forecast_start_date, forecast_end_date,
			status, model_version, confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		f.ID, f.OrganizationID, f.Name, f.ForecastStartDate, f.ForecastEndDate,
		string(f.Status), f.ModelVersion, f.Confidence,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create forecast: %w", err)
	}
	return nil
}

// GetByID loads one forecast.
func (r *ForecastRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Forecast, error) {
	query := `
		SELECT id, organization_id, name, forecast_start_date, forecast_end_date, status,
			model_version, confidence, confidence_score, error_message, created_at, updated_at
		FROM forecasts
		WHERE id = $1
	`
	var (
		f      models.Forecast
		status string
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&f.ID,
		&f.OrganizationID,
		&f.Name,
		&f.ForecastStartDate,
		&f.ForecastEndDate,
		&status,
		&f.ModelVersion,
		&f.Confidence,
		&f.ConfidenceScore,
		&f.ErrorMessage,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrForecastNotFound
		}
		return nil, fmt.Errorf("failed to get forecast: %w", err)
	}
	f.Status = models.ForecastStatus(status)
	return &f, nil
}

// MarkActive records a successful generation.
func (r *ForecastRepository) MarkActive(ctx context.Context, id uuid.UUID, confidenceScore float64) error {
	query := `
		UPDATE forecasts
		SET status = $2, confidence = $3, confidence_score = $4, error_message = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	return r.update(ctx, query, id, string(models.ForecastStatusActive),
		models.ConfidenceBucket(confidenceScore), confidenceScore)
}

// MarkFailed records a failed generation with its cause.
func (r *ForecastRepository) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	query := `
		UPDATE forecasts
		SET status = $2, error_message = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	return r.update(ctx, query, id, string(models.ForecastStatusFailed), cause.Error())
}

func (r *ForecastRepository) update(ctx context.Context, query string, id uuid.UUID, args ...interface{}) error {
	tag, err := r.pool.Exec(ctx, query, append([]interface{}{id}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to update forecast: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrForecastNotFound
	}
	return nil
}

// InsertDataPoints writes every point in one transaction.
func (r *ForecastRepository) InsertDataPoints(ctx context.Context, points []models.ForecastDataPoint) (err error) {
	if len(points) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := `
		INSERT INTO forecast_data_points (id, forecast_id, date, predicted_inflow, predicted_outflow,
			predicted_net_flow, lower_bound, upper_bound, predicted_balance, confidence_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	for _, p := range points {
		if _, err = tx.Exec(ctx, query,
			p.ID, p.ForecastID, p.Date, p.PredictedInflow, p.PredictedOutflow,
			p.PredictedNetFlow, p.LowerBound, p.UpperBound, p.PredictedBalance, p.ConfidenceScore,
		); err != nil {
			return fmt.Errorf("failed to insert data point for %s: %w", p.Date.Format("2006-01-02"), err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit data points: %w", err)
	}
	return nil
}

// ListDataPoints returns a forecast's points ordered by date.
func (r *ForecastRepository) ListDataPoints(ctx context.Context, forecastID uuid.UUID) ([]models.ForecastDataPoint, error) {
	query := `
		SELECT id, forecast_id, date, predicted_inflow, predicted_outflow, predicted_net_flow,
			lower_bound, upper_bound, predicted_balance, confidence_score, created_at
		FROM forecast_data_points
		WHERE forecast_id = $1
		ORDER BY date
	`
	rows, err := r.pool.Query(ctx, query, forecastID)
	if err != nil {
		return nil, fmt.Errorf("failed to query data points: %w", err)
	}
	defer rows.Close()

	points := []models.ForecastDataPoint{}
	for rows.Next() {
		var p models.ForecastDataPoint
		if err := rows.Scan(
			&p.ID,
			&p.ForecastID,
			&p.Date,
			&p.PredictedInflow,
			&p.PredictedOutflow,
			&p.PredictedNetFlow,
			&p.LowerBound,
			&p.UpperBound,
			&p.PredictedBalance,
			&p.ConfidenceScore,
			&p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan data point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate data points: %w", err)
	}
	return points, nil
}
