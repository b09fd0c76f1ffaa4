package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyCashFlow is one aggregated day of an organization's transactions.
// Inflows are positive amounts, outflows the absolute value of negative ones.
type DailyCashFlow struct {
	Date    time.Time       `json:"date" db:"day"`
	Inflow  decimal.Decimal `json:"total_inflow" db:"total_inflow"`
	Outflow decimal.Decimal `json:"total_outflow" db:"total_outflow"`
	Balance decimal.Decimal `json:"total_balance" db:"total_balance"`
}

// NetFlow returns inflow minus outflow.
func (d DailyCashFlow) NetFlow() decimal.Decimal {
	return d.Inflow.Sub(d.Outflow)
}

// ApplyClosingBalances fills Balance backwards from the balance at the end of
// the last day.
func ApplyClosingBalances(days []DailyCashFlow, closing decimal.Decimal) {
	balance := closing
	for i := len(days) - 1; i >= 0; i-- {
		days[i].Balance = balance
		balance = balance.Sub(days[i].NetFlow())
	}
}
