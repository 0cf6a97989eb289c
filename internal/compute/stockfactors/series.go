// Package stockfactors computes the technical, fundamental, and
// sentiment/flow factor groups for one stock on one trade date.
package stockfactors

import (
	"math"
	"sort"

	"github.com/eastmoney-sub000/factord/internal/domain/safenum"
	"github.com/eastmoney-sub000/factord/internal/upstream"
)

// bar is one OHLCV observation, oldest-to-newest once sorted.
type bar struct {
	date   string
	open   float64
	high   float64
	low    float64
	close  float64
	volume float64
}

// barsFromTable extracts OHLCV bars from an upstream table, tolerating
// missing cells (an incomplete bar is dropped rather than zero-filled),
// and returns them sorted oldest first.
func barsFromTable(t *upstream.Table) []bar {
	if t == nil {
		return nil
	}
	bars := make([]bar, 0, len(t.Rows))
	for _, row := range t.Rows {
		date := safenum.ToString(row["trade_date"])
		closeP := safenum.ToFloat(row["close"])
		if date == nil || closeP == nil {
			continue
		}
		b := bar{date: *date, close: *closeP}
		if v := safenum.ToFloat(row["open"]); v != nil {
			b.open = *v
		}
		if v := safenum.ToFloat(row["high"]); v != nil {
			b.high = *v
		}
		if v := safenum.ToFloat(row["low"]); v != nil {
			b.low = *v
		}
		if v := safenum.ToFloat(row["volume"]); v != nil {
			b.volume = *v
		}
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].date < bars[j].date })
	return bars
}

func closes(bars []bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.close
	}
	return out
}

func volumes(bars []bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.volume
	}
	return out
}

func sma(series []float64, period int) *float64 {
	if len(series) < period {
		return nil
	}
	tail := series[len(series)-period:]
	var sum float64
	for _, v := range tail {
		sum += v
	}
	avg := sum / float64(period)
	return &avg
}

func stddev(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	var mean float64
	for _, v := range series {
		mean += v
	}
	mean /= float64(len(series))
	var sq float64
	for _, v := range series {
		sq += (v - mean) * (v - mean)
	}
	variance := sq / float64(len(series))
	return math.Sqrt(variance)
}
