package forecasting

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ratioEpsilon keeps ratio denominators away from zero.
const ratioEpsilon = 1e-8

var calendarColumns = []string{
	"year", "month", "day", "day_of_week", "day_of_year", "week_of_year", "quarter",
	"month_sin", "month_cos", "day_sin", "day_cos",
	"is_weekend", "is_month_start", "is_month_end", "is_quarter_start", "is_quarter_end",
}

var ratioColumns = []string{
	"cash_velocity",
	"inflow_growth",
	"outflow_growth",
	"inflow_outflow_ratio",
	"balance_inflow_ratio",
}

// seriesColumns lists the raw series columns in table order.
var seriesColumns = []string{ColumnNetFlow, ColumnTotalInflow, ColumnTotalOutflow, ColumnTotalBalance}

// lagFillBases are the series columns whose lag features are filled from
// recent observations when building future rows.
var lagFillBases = []string{ColumnNetFlow, ColumnTotalInflow, ColumnTotalOutflow}

// FeatureBuilder derives calendar, lag, rolling and ratio features from a daily series.
type FeatureBuilder struct {
	lags         []int
	windows      []int
	recentWindow int
}

// NewFeatureBuilder returns a builder for the configured lags and windows.
func NewFeatureBuilder(cfg Config) *FeatureBuilder {
	return &FeatureBuilder{
		lags:         append([]int(nil), cfg.LagOffsets...),
		windows:      append([]int(nil), cfg.RollingWindows...),
		recentWindow: cfg.RecentWindow,
	}
}

// Columns returns the feature column names for target, in table order. The
// raw series columns other than target lead the table.
func (b *FeatureBuilder) Columns(target string) []string {
	cols := rawColumns(target)
	cols = append(cols, calendarColumns...)
	for _, lag := range b.lags {
		cols = append(cols, fmt.Sprintf("%s_lag_%d", target, lag))
	}
	for _, w := range b.windows {
		cols = append(cols,
			fmt.Sprintf("%s_rolling_mean_%d", target, w),
			fmt.Sprintf("%s_rolling_std_%d", target, w),
			fmt.Sprintf("%s_rolling_min_%d", target, w),
			fmt.Sprintf("%s_rolling_max_%d", target, w),
		)
	}
	return append(cols, ratioColumns...)
}

// WarmupRows is the number of leading rows left undefined by the lags and windows.
func (b *FeatureBuilder) WarmupRows() int {
	warmup := 1 // growth rates and cash velocity need a previous row
	for _, lag := range b.lags {
		if lag > warmup {
			warmup = lag
		}
	}
	for _, w := range b.windows {
		if w-1 > warmup {
			warmup = w - 1
		}
	}
	return warmup
}

// Build derives the feature table and target vector. Rows with any undefined
// value, including the target, are dropped. Input order is preserved.
func (b *FeatureBuilder) Build(series []TimeSeriesRow, target string) (*FeatureTable, []float64, error) {
	if err := validateSeries(series); err != nil {
		return nil, nil, err
	}
	y, err := seriesColumn(series, target)
	if err != nil {
		return nil, nil, err
	}

	columns := b.Columns(target)
	raw := rawColumns(target)
	full := make([][]float64, len(series))
	for i, r := range series {
		row := make([]float64, 0, len(columns))
		for _, col := range raw {
			v, _ := r.Value(col)
			row = append(row, v)
		}
		full[i] = append(row, calendarFeatures(r.Date)...)
	}

	for _, lag := range b.lags {
		for i := range full {
			v := math.NaN()
			if i-lag >= 0 {
				v = y[i-lag]
			}
			full[i] = append(full[i], v)
		}
	}

	for _, w := range b.windows {
		mean, std, lo, hi := rolling(y, w)
		for i := range full {
			full[i] = append(full[i], mean[i], std[i], lo[i], hi[i])
		}
	}

	for i := range full {
		full[i] = append(full[i], ratioFeatures(series, i)...)
	}

	table := &FeatureTable{Columns: columns}
	var targets []float64
	for i, row := range full {
		if hasNaN(row) || math.IsNaN(y[i]) {
			continue
		}
		table.Dates = append(table.Dates, series[i].Date)
		table.Rows = append(table.Rows, row)
		targets = append(targets, y[i])
	}
	return table, targets, nil
}

// FutureFeatures builds rows for dates after the observed series. Calendar
// features are computed; lag features of net flow, inflow and outflow take the
// mean of the last recentWindow observations of their base column; every other
// column, raw series columns included, is 0. The result has exactly the given
// columns.
func (b *FeatureBuilder) FutureFeatures(series []TimeSeriesRow, dates []time.Time, columns []string) (*FeatureTable, error) {
	fill := make(map[string]float64)
	for _, col := range columns {
		if indexOf(calendarColumns, col) >= 0 {
			continue
		}
		base, ok := lagBase(col)
		if !ok {
			continue
		}
		values, err := seriesColumn(series, base)
		if err != nil {
			return nil, err
		}
		if len(values) > b.recentWindow {
			values = values[len(values)-b.recentWindow:]
		}
		if len(values) > 0 {
			fill[col] = stat.Mean(values, nil)
		}
	}

	calendar := &FeatureTable{
		Dates:   append([]time.Time(nil), dates...),
		Columns: calendarColumns,
		Rows:    make([][]float64, len(dates)),
	}
	for i, d := range dates {
		calendar.Rows[i] = calendarFeatures(d)
	}

	out := calendar.Reindex(columns, 0)
	for col, v := range fill {
		idx := out.ColumnIndex(col)
		for _, row := range out.Rows {
			row[idx] = v
		}
	}
	return out, nil
}

// rawColumns returns the series columns used as features alongside target.
func rawColumns(target string) []string {
	cols := make([]string, 0, len(seriesColumns))
	for _, col := range seriesColumns {
		if col != target {
			cols = append(cols, col)
		}
	}
	return cols
}

// lagBase returns the series column of a "<base>_lag..." feature for the bases
// that take the recent-mean fill.
func lagBase(column string) (string, bool) {
	for _, base := range lagFillBases {
		if strings.HasPrefix(column, base+"_lag") {
			return base, true
		}
	}
	return "", false
}

func calendarFeatures(d time.Time) []float64 {
	month := int(d.Month())
	dow := (int(d.Weekday()) + 6) % 7 // Monday = 0
	_, week := d.ISOWeek()
	quarter := (month-1)/3 + 1
	monthStart := d.Day() == 1
	monthEnd := d.AddDate(0, 0, 1).Month() != d.Month()
	quarterMonth := (month-1)%3 == 0

	return []float64{
		float64(d.Year()),
		float64(month),
		float64(d.Day()),
		float64(dow),
		float64(d.YearDay()),
		float64(week),
		float64(quarter),
		math.Sin(2 * math.Pi * float64(month) / 12),
		math.Cos(2 * math.Pi * float64(month) / 12),
		math.Sin(2 * math.Pi * float64(dow) / 7),
		math.Cos(2 * math.Pi * float64(dow) / 7),
		flag(dow >= 5),
		flag(monthStart),
		flag(monthEnd),
		flag(monthStart && quarterMonth),
		flag(monthEnd && month%3 == 0),
	}
}

func ratioFeatures(series []TimeSeriesRow, i int) []float64 {
	r := series[i]
	velocity, inGrowth, outGrowth := math.NaN(), math.NaN(), math.NaN()
	if i > 0 {
		prev := series[i-1]
		velocity = r.NetFlow / prev.TotalBalance
		inGrowth = r.TotalInflow/prev.TotalInflow - 1
		outGrowth = r.TotalOutflow/prev.TotalOutflow - 1
	}
	return []float64{
		velocity,
		inGrowth,
		outGrowth,
		r.TotalInflow / (r.TotalOutflow + ratioEpsilon),
		r.TotalBalance / (r.TotalInflow + ratioEpsilon),
	}
}

// rolling returns trailing mean, sample standard deviation, min and max over
// window w. Positions with fewer than w observations, or a NaN inside the
// window, are NaN.
func rolling(y []float64, w int) (mean, std, lo, hi []float64) {
	n := len(y)
	mean, std, lo, hi = nanSlice(n), nanSlice(n), nanSlice(n), nanSlice(n)
	if w > n {
		return mean, std, lo, hi
	}

	// the SMA is a running computation, so a NaN anywhere would leak forward
	var sma []float64
	if !hasNaN(y) {
		sma = helper.ChanToSlice(trend.NewSmaWithPeriod[float64](w).Compute(helper.SliceToChan(y)))
	}
	for i := w - 1; i < n; i++ {
		window := y[i-w+1 : i+1]
		if hasNaN(window) {
			continue
		}
		if k := i - (w - 1); k < len(sma) {
			mean[i] = sma[k]
		} else {
			mean[i] = stat.Mean(window, nil)
		}
		if w > 1 {
			std[i] = stat.StdDev(window, nil)
		}
		lo[i] = floats.Min(window)
		hi[i] = floats.Max(window)
	}
	return mean, std, lo, hi
}

func validateSeries(series []TimeSeriesRow) error {
	if len(series) == 0 {
		return fmt.Errorf("%w: empty series", ErrInsufficientData)
	}
	for i := 1; i < len(series); i++ {
		if !series[i].Date.After(series[i-1].Date) {
			return fmt.Errorf("forecasting: series dates must be strictly increasing (row %d)", i)
		}
	}
	return nil
}

func seriesColumn(series []TimeSeriesRow, column string) ([]float64, error) {
	out := make([]float64, len(series))
	for i, r := range series {
		v, err := r.Value(column)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func hasNaN(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func indexOf(values []string, v string) int {
	for i, s := range values {
		if s == v {
			return i
		}
	}
	return -1
}
