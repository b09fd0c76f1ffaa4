package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/irfndi/cashflow-ai-go/internal/models"
)

// TransactionRepository reads transaction history as daily cash-flow series.
type TransactionRepository struct {
	pool DatabasePool
}

func NewTransactionRepository(pool DatabasePool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

const dailySeriesQuery = `
	WITH days AS (
		SELECT generate_series($2::date, $3::date, interval '1 day')::date AS day
	)
	SELECT d.day,
		COALESCE(SUM(t.amount) FILTER (WHERE t.amount > 0), 0) AS total_inflow,
		COALESCE(-SUM(t.amount) FILTER (WHERE t.amount < 0), 0) AS total_outflow
	FROM days d
	LEFT JOIN transactions t
		ON t.organization_id = $1 AND t.transaction_date = d.day
	GROUP BY d.day
	ORDER BY d.day
`

const currentBalanceQuery = `
	SELECT COALESCE(SUM(current_balance), 0)
	FROM bank_accounts
	WHERE organization_id = $1 AND is_active = true
`

// DailySeries returns one row per calendar day in [start, end], days without
// transactions included, with balances rolled back from the organization's
// current balance.
func (r *TransactionRepository) DailySeries(ctx context.Context, organizationID uuid.UUID, start, end time.Time) ([]models.DailyCashFlow, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("invalid range: end %s before start %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}

	rows, err := r.pool.Query(ctx, dailySeriesQuery, organizationID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily cash flow: %w", err)
	}
	defer rows.Close()

	var days []models.DailyCashFlow
	for rows.Next() {
		var day models.DailyCashFlow
		if err := rows.Scan(&day.Date, &day.Inflow, &day.Outflow); err != nil {
			return nil, fmt.Errorf("failed to scan daily cash flow: %w", err)
		}
		days = append(days, day)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily cash flow: %w", err)
	}

	balance, err := r.CurrentBalance(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	models.ApplyClosingBalances(days, balance)
	return days, nil
}

// CurrentBalance sums the active bank account balances of an organization.
func (r *TransactionRepository) CurrentBalance(ctx context.Context, organizationID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	if err := r.pool.QueryRow(ctx, currentBalanceQuery, organizationID).Scan(&balance); err != nil {
		return decimal.Zero, fmt.Errorf("failed to query current balance: %w", err)
	}
	return balance, nil
}
