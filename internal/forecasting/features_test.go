package forecasting

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

var seriesStart = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

// syntheticSeries returns n daily rows whose net flow follows netFn. Inflow,
// outflow and balance are held constant so only the target carries signal.
func syntheticSeries(n int, netFn func(i int) float64) []TimeSeriesRow {
	rows := make([]TimeSeriesRow, n)
	for i := range rows {
		rows[i] = TimeSeriesRow{
			Date:         seriesStart.AddDate(0, 0, i),
			NetFlow:      netFn(i),
			TotalInflow:  1000,
			TotalOutflow: 1000,
			TotalBalance: 100000,
		}
	}
	return rows
}

// cashSeries returns a series with consistent inflow, outflow and balance.
func cashSeries(n int, seed int64) []TimeSeriesRow {
	rng := rand.New(rand.NewSource(seed))
	rows := make([]TimeSeriesRow, n)
	balance := 50000.0
	for i := range rows {
		in := 1000 + 200*math.Sin(2*math.Pi*float64(i)/7) + rng.Float64()*50
		out := 900 + rng.Float64()*150
		balance += in - out
		rows[i] = TimeSeriesRow{
			Date:         seriesStart.AddDate(0, 0, i),
			NetFlow:      in - out,
			TotalInflow:  in,
			TotalOutflow: out,
			TotalBalance: balance,
		}
	}
	return rows
}

func TestFeatureBuilder_Columns(t *testing.T) {
	b := NewFeatureBuilder(DefaultConfig())
	cols := b.Columns(ColumnNetFlow)

	assert.Len(t, cols, 3+16+3+12+5)
	assert.Equal(t, []string{ColumnTotalInflow, ColumnTotalOutflow, ColumnTotalBalance}, cols[:3])
	assert.Equal(t, "year", cols[3])
	assert.Contains(t, cols, "net_flow_lag_30")
	assert.Contains(t, cols, "net_flow_rolling_std_90")
	assert.Contains(t, cols, "balance_inflow_ratio")
	assert.NotContains(t, cols, ColumnNetFlow)
	assert.NotContains(t, cols, "date")

	cols = b.Columns(ColumnTotalBalance)
	assert.Equal(t, []string{ColumnNetFlow, ColumnTotalInflow, ColumnTotalOutflow}, cols[:3])
	assert.Contains(t, cols, "total_balance_lag_7")
	assert.NotContains(t, cols, ColumnTotalBalance)
}

func TestFeatureBuilder_KeepsRawSeriesColumns(t *testing.T) {
	series := cashSeries(120, 5)
	b := NewFeatureBuilder(DefaultConfig())
	table, _, err := b.Build(series, ColumnNetFlow)
	require.NoError(t, err)

	offset := b.WarmupRows()
	for _, name := range []string{ColumnTotalInflow, ColumnTotalOutflow, ColumnTotalBalance} {
		col, err := table.Column(name)
		require.NoError(t, err, name)
		for i, v := range col {
			want, _ := series[offset+i].Value(name)
			assert.Equal(t, want, v, name)
		}
	}
}

func TestFeatureBuilder_DropsWarmupRows(t *testing.T) {
	series := cashSeries(200, 1)
	b := NewFeatureBuilder(DefaultConfig())
	assert.Equal(t, 89, b.WarmupRows())

	table, y, err := b.Build(series, ColumnNetFlow)
	require.NoError(t, err)
	assert.Equal(t, 200-89, table.Len())
	assert.Len(t, y, table.Len())
	assert.Equal(t, series[89].Date, table.Dates[0])
	assert.Equal(t, series[199].Date, table.Dates[table.Len()-1])
	assert.Equal(t, series[89].NetFlow, y[0])

	cfg := DefaultConfig()
	cfg.LagOffsets = []int{1, 2}
	cfg.RollingWindows = []int{3}
	small := NewFeatureBuilder(cfg)
	table, _, err = small.Build(series, ColumnNetFlow)
	require.NoError(t, err)
	assert.Equal(t, 2, small.WarmupRows())
	assert.Equal(t, 198, table.Len())
}

func TestFeatureBuilder_Idempotent(t *testing.T) {
	series := cashSeries(150, 2)
	f, err := NewForecaster(DefaultConfig(), nil)
	require.NoError(t, err)

	a, ya, err := f.PrepareData(series, ColumnNetFlow)
	require.NoError(t, err)
	b, yb, err := f.PrepareData(series, ColumnNetFlow)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, ya, yb)
}

func TestFeatureBuilder_LagAndRollingValues(t *testing.T) {
	series := cashSeries(120, 3)
	b := NewFeatureBuilder(DefaultConfig())
	table, _, err := b.Build(series, ColumnNetFlow)
	require.NoError(t, err)

	row := table.Len() - 1
	src := len(series) - 1
	get := func(name string) float64 {
		col, err := table.Column(name)
		require.NoError(t, err)
		return col[row]
	}
	net := make([]float64, len(series))
	for i, r := range series {
		net[i] = r.NetFlow
	}

	assert.Equal(t, net[src-1], get("net_flow_lag_1"))
	assert.Equal(t, net[src-30], get("net_flow_lag_30"))

	window := net[src-6 : src+1]
	assert.InDelta(t, stat.Mean(window, nil), get("net_flow_rolling_mean_7"), 1e-9)
	assert.InDelta(t, stat.StdDev(window, nil), get("net_flow_rolling_std_7"), 1e-9)

	window = net[src-89 : src+1]
	lo, hi := window[0], window[0]
	for _, v := range window {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	assert.Equal(t, lo, get("net_flow_rolling_min_90"))
	assert.Equal(t, hi, get("net_flow_rolling_max_90"))

	cur, prev := series[src], series[src-1]
	assert.InDelta(t, cur.NetFlow/prev.TotalBalance, get("cash_velocity"), 1e-12)
	assert.InDelta(t, cur.TotalInflow/prev.TotalInflow-1, get("inflow_growth"), 1e-12)
	assert.InDelta(t, cur.TotalInflow/(cur.TotalOutflow+1e-8), get("inflow_outflow_ratio"), 1e-9)
}

func TestFeatureBuilder_DropsUndefinedRows(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LagOffsets = []int{1}
	cfg.RollingWindows = []int{2}
	b := NewFeatureBuilder(cfg)

	series := syntheticSeries(10, func(i int) float64 { return float64(i) })
	// 0/0 growth on rows 4 and 5 makes them undefined
	series[3].TotalInflow = 0
	series[4].TotalInflow = 0
	series[5].TotalInflow = 0

	table, _, err := b.Build(series, ColumnNetFlow)
	require.NoError(t, err)
	for _, d := range table.Dates {
		assert.NotEqual(t, series[4].Date, d)
		assert.NotEqual(t, series[5].Date, d)
	}
	for _, row := range table.Rows {
		assert.False(t, hasNaN(row))
	}
}

func TestFeatureBuilder_RejectsBadSeries(t *testing.T) {
	b := NewFeatureBuilder(DefaultConfig())

	_, _, err := b.Build(nil, ColumnNetFlow)
	assert.ErrorIs(t, err, ErrInsufficientData)

	series := cashSeries(5, 1)
	series[3].Date = series[1].Date
	_, _, err = b.Build(series, ColumnNetFlow)
	assert.Error(t, err)

	_, _, err = b.Build(cashSeries(5, 1), "amount")
	assert.Error(t, err)
}

func TestCalendarFeatures(t *testing.T) {
	idx := func(name string) int { return indexOf(calendarColumns, name) }

	// Sunday, last day of Q1
	f := calendarFeatures(time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 6.0, f[idx("day_of_week")])
	assert.Equal(t, 1.0, f[idx("is_weekend")])
	assert.Equal(t, 1.0, f[idx("is_month_end")])
	assert.Equal(t, 1.0, f[idx("is_quarter_end")])
	assert.Equal(t, 0.0, f[idx("is_month_start")])
	assert.Equal(t, 1.0, f[idx("quarter")])
	assert.Equal(t, 91.0, f[idx("day_of_year")])

	// Monday, first day of Q2
	f = calendarFeatures(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 0.0, f[idx("day_of_week")])
	assert.Equal(t, 0.0, f[idx("is_weekend")])
	assert.Equal(t, 1.0, f[idx("is_month_start")])
	assert.Equal(t, 1.0, f[idx("is_quarter_start")])
	assert.Equal(t, 2.0, f[idx("quarter")])
	assert.InDelta(t, math.Sin(2*math.Pi*4/12), f[idx("month_sin")], 1e-12)
	assert.InDelta(t, 1.0, f[idx("day_cos")], 1e-12)

	// ISO week wraps into the next year
	f = calendarFeatures(time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 1.0, f[idx("week_of_year")])
	assert.Equal(t, 0.0, f[idx("is_quarter_end")])
}

func TestFutureFeatures_FillPolicy(t *testing.T) {
	series := cashSeries(120, 4)
	b := NewFeatureBuilder(DefaultConfig())
	columns := append(b.Columns(ColumnNetFlow), "total_inflow_lag_3", "unrelated")

	last := series[len(series)-1].Date
	dates := []time.Time{last.AddDate(0, 0, 1), last.AddDate(0, 0, 2)}
	future, err := b.FutureFeatures(series, dates, columns)
	require.NoError(t, err)
	require.Equal(t, columns, future.Columns)
	require.Equal(t, 2, future.Len())

	var netSum, inSum float64
	for _, r := range series[len(series)-10:] {
		netSum += r.NetFlow
		inSum += r.TotalInflow
	}
	for _, row := range future.Rows {
		assert.InDelta(t, netSum/10, row[future.ColumnIndex("net_flow_lag_1")], 1e-9)
		assert.InDelta(t, netSum/10, row[future.ColumnIndex("net_flow_lag_30")], 1e-9)
		assert.InDelta(t, inSum/10, row[future.ColumnIndex("total_inflow_lag_3")], 1e-9)
		assert.Equal(t, 0.0, row[future.ColumnIndex("net_flow_rolling_mean_7")])
		assert.Equal(t, 0.0, row[future.ColumnIndex("cash_velocity")])
		assert.Equal(t, 0.0, row[future.ColumnIndex(ColumnTotalInflow)])
		assert.Equal(t, 0.0, row[future.ColumnIndex(ColumnTotalBalance)])
		assert.Equal(t, 0.0, row[future.ColumnIndex("unrelated")])
	}
	assert.Equal(t, float64(dates[0].Day()), future.Rows[0][future.ColumnIndex("day")])
}

func TestFeatureTable_Reindex(t *testing.T) {
	table := &FeatureTable{
		Columns: []string{"a", "b"},
		Rows:    [][]float64{{1, 2}, {3, 4}},
	}
	out := table.Reindex([]string{"b", "c"}, 0)
	assert.Equal(t, []string{"b", "c"}, out.Columns)
	assert.Equal(t, [][]float64{{2, 0}, {4, 0}}, out.Rows)

	_, err := table.Column("c")
	assert.Error(t, err)

	sel := table.Select([]int{1})
	assert.Equal(t, [][]float64{{3, 4}}, sel.Rows)
	assert.Nil(t, sel.Dates)
}
