package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestConfidenceBucket(t *testing.T) {
	assert.Equal(t, ConfidenceHigh, ConfidenceBucket(0.95))
	assert.Equal(t, ConfidenceHigh, ConfidenceBucket(0.8))
	assert.Equal(t, ConfidenceMedium, ConfidenceBucket(0.5))
	assert.Equal(t, ConfidenceLow, ConfidenceBucket(0.1))
}

func TestDailyCashFlow_NetFlow(t *testing.T) {
	day := DailyCashFlow{
		Inflow:  decimal.NewFromFloat(1200.50),
		Outflow: decimal.NewFromFloat(800.25),
	}
	assert.True(t, decimal.NewFromFloat(400.25).Equal(day.NetFlow()))
}

func TestApplyClosingBalances(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	days := []DailyCashFlow{
		{Date: start, Inflow: decimal.NewFromInt(100), Outflow: decimal.Zero},
		{Date: start.AddDate(0, 0, 1), Inflow: decimal.Zero, Outflow: decimal.NewFromInt(30)},
		{Date: start.AddDate(0, 0, 2), Inflow: decimal.NewFromInt(50), Outflow: decimal.NewFromInt(10)},
	}

	ApplyClosingBalances(days, decimal.NewFromInt(1000))

	assert.True(t, decimal.NewFromInt(1000).Equal(days[2].Balance))
	assert.True(t, decimal.NewFromInt(960).Equal(days[1].Balance))
	assert.True(t, decimal.NewFromInt(990).Equal(days[0].Balance))

	assert.NotPanics(t, func() { ApplyClosingBalances(nil, decimal.Zero) })
}
