package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/cashflow-ai-go/internal/models"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestTransactionRepository_DailySeries(t *testing.T) {
	mock := newMockPool(t)
	repo := NewTransactionRepository(mock)
	orgID := uuid.New()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 2)

	mock.ExpectQuery("WITH days AS").
		WithArgs(orgID, start, end).
		WillReturnRows(pgxmock.NewRows([]string{"day", "total_inflow", "total_outflow"}).
			AddRow(start, decimal.NewFromInt(500), decimal.NewFromInt(200)).
			AddRow(start.AddDate(0, 0, 1), decimal.Zero, decimal.Zero).
			AddRow(end, decimal.NewFromInt(100), decimal.NewFromInt(350)))
	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(current_balance\\), 0\\)").
		WithArgs(orgID).
		WillReturnRows(pgxmock.NewRows([]string{"balance"}).AddRow(decimal.NewFromInt(10000)))

	days, err := repo.DailySeries(context.Background(), orgID, start, end)
	require.NoError(t, err)
	require.Len(t, days, 3)

	assert.Equal(t, start, days[0].Date)
	assert.True(t, decimal.NewFromInt(10000).Equal(days[2].Balance))
	assert.True(t, decimal.NewFromInt(10250).Equal(days[1].Balance))
	assert.True(t, decimal.NewFromInt(10250).Equal(days[0].Balance))
	assert.True(t, decimal.NewFromInt(-250).Equal(days[2].NetFlow()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepository_DailySeriesErrors(t *testing.T) {
	mock := newMockPool(t)
	repo := NewTransactionRepository(mock)
	orgID := uuid.New()
	start := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	_, err := repo.DailySeries(context.Background(), orgID, start, start.AddDate(0, 0, -1))
	assert.Error(t, err)

	mock.ExpectQuery("WITH days AS").
		WithArgs(orgID, start, start).
		WillReturnError(errors.New("connection reset"))

	_, err = repo.DailySeries(context.Background(), orgID, start, start)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query daily cash flow")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestForecastRepository_Create(t *testing.T) {
	mock := newMockPool(t)
	repo := NewForecastRepository(mock)
	now := time.Now().UTC()

	f := &models.Forecast{
		ID:                uuid.New(),
		OrganizationID:    uuid.New(),
		Name:              "AI Forecast - 2024-01-01",
		ForecastStartDate: now,
		ForecastEndDate:   now.AddDate(0, 0, 30),
		Status:            models.ForecastStatusGenerating,
		ModelVersion:      "ensemble-v1",
		Confidence:        models.ConfidenceMedium,
	}

	mock.ExpectQuery("INSERT INTO forecasts").
		WithArgs(f.ID, f.OrganizationID, f.Name, f.ForecastStartDate, f.ForecastEndDate,
			"generating", "ensemble-v1", "medium").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	require.NoError(t, repo.Create(context.Background(), f))
	assert.Equal(t, now, f.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestForecastRepository_GetByID(t *testing.T) {
	mock := newMockPool(t)
	repo := NewForecastRepository(mock)
	id := uuid.New()
	orgID := uuid.New()
	now := time.Now().UTC()
	score := 0.82
	var noError *string

	mock.ExpectQuery("SELECT (.+) FROM forecasts").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "organization_id", "name", "forecast_start_date", "forecast_end_date", "status",
			"model_version", "confidence", "confidence_score", "error_message", "created_at", "updated_at",
		}).AddRow(id, orgID, "AI Forecast", now, now.AddDate(0, 0, 7), "active",
			"ensemble-v1", "high", &score, noError, now, now))

	f, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.ForecastStatusActive, f.Status)
	require.NotNil(t, f.ConfidenceScore)
	assert.Equal(t, 0.82, *f.ConfidenceScore)
	assert.Nil(t, f.ErrorMessage)

	mock.ExpectQuery("SELECT (.+) FROM forecasts").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	_, err = repo.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrForecastNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestForecastRepository_StatusUpdates(t *testing.T) {
	mock := newMockPool(t)
	repo := NewForecastRepository(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE forecasts").
		WithArgs(id, "active", "high", 0.9).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.MarkActive(context.Background(), id, 0.9))

	mock.ExpectExec("UPDATE forecasts").
		WithArgs(id, "failed", "not enough history").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err := repo.MarkFailed(context.Background(), id, errors.New("not enough history"))
	assert.ErrorIs(t, err, ErrForecastNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestForecastRepository_InsertDataPoints(t *testing.T) {
	mock := newMockPool(t)
	repo := NewForecastRepository(mock)
	forecastID := uuid.New()
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	points := make([]models.ForecastDataPoint, 3)
	for i := range points {
		points[i] = models.ForecastDataPoint{
			ID:               uuid.New(),
			ForecastID:       forecastID,
			Date:             start.AddDate(0, 0, i),
			PredictedNetFlow: decimal.NewFromInt(int64(100 * i)),
			PredictedBalance: decimal.NewFromInt(int64(5000 + 100*i)),
			ConfidenceScore:  decimal.NewFromFloat(0.8),
		}
	}

	mock.ExpectBegin()
	for range points {
		mock.ExpectExec("INSERT INTO forecast_data_points").
			WithArgs(pgxmock.AnyArg(), forecastID, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	require.NoError(t, repo.InsertDataPoints(context.Background(), points))
	assert.NoError(t, repo.InsertDataPoints(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestForecastRepository_InsertDataPointsRollsBack(t *testing.T) {
	mock := newMockPool(t)
	repo := NewForecastRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO forecast_data_points").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	err := repo.InsertDataPoints(context.Background(), []models.ForecastDataPoint{{ID: uuid.New()}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unique violation")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestForecastRepository_ListDataPoints(t *testing.T) {
	mock := newMockPool(t)
	repo := NewForecastRepository(mock)
	forecastID := uuid.New()
	day := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	var none *decimal.Decimal

	mock.ExpectQuery("SELECT (.+) FROM forecast_data_points").
		WithArgs(forecastID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "forecast_id", "date", "predicted_inflow", "predicted_outflow", "predicted_net_flow",
			"lower_bound", "upper_bound", "predicted_balance", "confidence_score", "created_at",
		}).AddRow(uuid.New(), forecastID, day, none, none, decimal.NewFromInt(120),
			decimal.NewFromInt(80), decimal.NewFromInt(160), decimal.NewFromInt(5120),
			decimal.NewFromFloat(0.75), day))

	points, err := repo.ListDataPoints(context.Background(), forecastID)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Nil(t, points[0].PredictedInflow)
	assert.True(t, decimal.NewFromInt(5120).Equal(points[0].PredictedBalance))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	mock := newMockPool(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS bank_accounts").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, Migrate(context.Background(), mock))

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))
	assert.Error(t, Migrate(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}
