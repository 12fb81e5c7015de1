package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/analysis"
)

// Dataset is the full time series of one coin with every derived column, ready for export.
// Values are nil where an indicator is not yet defined.
type Dataset struct {
	CoinID  string
	Days    int
	Columns []string
	Rows    []DatasetRow
}

// DatasetRow is one timestamp of a Dataset, aligned with Dataset.Columns.
type DatasetRow struct {
	Time   time.Time
	Values []*float64
}

// Dataset builds the export table: price, volume, daily return, moving averages, rolling
// volatility, RSI, Bollinger bands and MACD.
func (s *AnalyticsService) Dataset(ctx context.Context, coinID string, days int) (*Dataset, error) {
	var ds *Dataset
	err := s.run(ctx, KindDataset, coinID, days, func(ctx context.Context, series analysis.PriceSeries) error {
		var cols []string
		var lookups []map[int64]float64

		add := func(name string, points []analysis.Point) {
			m := make(map[int64]float64, len(points))
			for _, p := range points {
				m[p.Time.UnixNano()] = p.Value
			}
			cols = append(cols, name)
			lookups = append(lookups, m)
		}

		candles := series.Candles()
		prices := make([]analysis.Point, len(candles))
		volumes := make([]analysis.Point, len(candles))
		for i, c := range candles {
			prices[i] = analysis.Point{Time: c.Time, Value: c.Close}
			volumes[i] = analysis.Point{Time: c.Time, Value: c.Volume}
		}
		add("price", prices)
		add("volume", volumes)

		returns := analysis.DailyReturns(series)
		add("daily_return", returns)

		for _, cfg := range s.cfg.MovingAverages {
			ma, err := analysis.MovingAverage(series, cfg)
			if err != nil {
				return fmt.Errorf("moving average %d: %w", cfg.Window, err)
			}
			add(fmt.Sprintf("ma_%d", cfg.Window), ma)
		}

		vol, err := analysis.RollingVolatility(returns, s.cfg.VolatilityWindow)
		if err != nil {
			return fmt.Errorf("rolling volatility: %w", err)
		}
		add("volatility", vol)

		rsi, err := analysis.RSI(series, s.cfg.RSI)
		if err != nil {
			return fmt.Errorf("rsi: %w", err)
		}
		add("rsi", rsi)

		bands, err := analysis.Bollinger(series, s.cfg.Bollinger)
		if err != nil {
			return fmt.Errorf("bollinger bands: %w", err)
		}
		add("bb_upper", bands.Upper)
		add("bb_middle", bands.Middle)
		add("bb_lower", bands.Lower)

		macd, err := analysis.MACD(series, s.cfg.MACD)
		if err != nil {
			return fmt.Errorf("macd: %w", err)
		}
		line := make([]analysis.Point, len(macd))
		signal := make([]analysis.Point, len(macd))
		hist := make([]analysis.Point, len(macd))
		for i, p := range macd {
			line[i] = analysis.Point{Time: p.Time, Value: p.MACD}
			signal[i] = analysis.Point{Time: p.Time, Value: p.Signal}
			hist[i] = analysis.Point{Time: p.Time, Value: p.Histogram}
		}
		add("macd", line)
		add("macd_signal", signal)
		add("macd_hist", hist)

		rows := make([]DatasetRow, len(candles))
		for i, c := range candles {
			key := c.Time.UnixNano()
			values := make([]*float64, len(lookups))
			for j, m := range lookups {
				if v, ok := m[key]; ok {
					values[j] = &v
				}
			}
			rows[i] = DatasetRow{Time: c.Time, Values: values}
		}

		ds = &Dataset{CoinID: coinID, Days: days, Columns: cols, Rows: rows}
		return nil
	})
	return ds, err
}

// FileName is the suggested download name.
func (d *Dataset) FileName() string {
	return fmt.Sprintf("%s_time_series_%dd.csv", d.CoinID, d.Days)
}

// WriteCSV writes the dataset with a date column followed by d.Columns. Undefined values are
// written as empty cells.
func (d *Dataset) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := append([]string{"date"}, d.Columns...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	record := make([]string, len(header))
	for _, row := range d.Rows {
		record[0] = row.Time.UTC().Format(time.RFC3339)
		for i, v := range row.Values {
			if v == nil {
				record[i+1] = ""
				continue
			}
			record[i+1] = strconv.FormatFloat(*v, 'f', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// SummaryFileName is the suggested download name for a summary export.
func SummaryFileName(r *SummaryReport) string {
	return fmt.Sprintf("%s_summary_%dd.csv", r.CoinID, r.Days)
}

// WriteSummaryCSV writes the dashboard metrics as Metric,Value rows with human formatting.
// Undefined metrics are written as "N/A".
func WriteSummaryCSV(w io.Writer, r *SummaryReport, currencySymbol string) error {
	p := message.NewPrinter(language.English)
	na := "N/A"

	money := func(v float64, format string) string {
		return currencySymbol + p.Sprintf(format, v)
	}
	optional := func(v *float64, format string, scale float64) string {
		if v == nil {
			return na
		}
		return p.Sprintf(format, *v*scale)
	}

	rows := [][]string{
		{"Metric", "Value"},
		{"Current Price", money(r.CurrentPrice.InexactFloat64(), "%.2f")},
		{"Period High", money(r.PeriodHigh.InexactFloat64(), "%.2f")},
		{"Period Low", money(r.PeriodLow.InexactFloat64(), "%.2f")},
		{"Total Return", p.Sprintf("%.2f%%", r.TotalReturn*100)},
		{"Sharpe Ratio", optional(r.SharpeRatio, "%.2f", 1)},
		{"Max Drawdown", p.Sprintf("%.2f%%", r.MaxDrawdown*100)},
		{"Avg Volume", money(r.AverageVolume.InexactFloat64(), "%.0f")},
		{"Current RSI", optional(r.CurrentRSI, "%.1f", 1)},
		{"Annualized Volatility", optional(r.AnnualizedVolatility, "%.2f%%", 100)},
	}

	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write summary csv: %w", err)
	}
	return nil
}

// CurrencySymbol maps a quote currency to its display prefix.
func CurrencySymbol(vsCurrency string) string {
	switch vsCurrency {
	case "usd":
		return "$"
	case "eur":
		return "€"
	case "gbp":
		return "£"
	case "jpy":
		return "¥"
	default:
		return ""
	}
}
