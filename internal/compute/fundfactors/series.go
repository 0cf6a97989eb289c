// Package fundfactors computes the performance, risk, and manager
// factor groups for one fund on one trade date.
package fundfactors

import (
	"math"
	"sort"

	"github.com/eastmoney-sub000/factord/internal/domain/safenum"
	"github.com/eastmoney-sub000/factord/internal/upstream"
)

// navPoint is one NAV observation, oldest-to-newest once sorted.
type navPoint struct {
	date string
	nav  float64
}

func navPointsFromTable(t *upstream.Table) []navPoint {
	if t == nil {
		return nil
	}
	points := make([]navPoint, 0, len(t.Rows))
	for _, row := range t.Rows {
		date := safenum.ToString(row["trade_date"])
		nav := safenum.ToFloat(row["nav"])
		if date == nil || nav == nil || *nav <= 0 {
			continue
		}
		points = append(points, navPoint{date: *date, nav: *nav})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].date < points[j].date })
	return points
}

// dailyReturns converts a NAV series into daily simple returns.
func dailyReturns(points []navPoint) []float64 {
	if len(points) < 2 {
		return nil
	}
	out := make([]float64, len(points)-1)
	for i := 1; i < len(points); i++ {
		out[i-1] = points[i].nav/points[i-1].nav - 1
	}
	return out
}

func mean(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	var sum float64
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}

func stddev(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	m := mean(series)
	var sq float64
	for _, v := range series {
		sq += (v - m) * (v - m)
	}
	return math.Sqrt(sq / float64(len(series)))
}

func downsideDeviation(series []float64) float64 {
	var negatives []float64
	for _, v := range series {
		if v < 0 {
			negatives = append(negatives, v)
		}
	}
	if len(negatives) == 0 {
		return 0
	}
	var sq float64
	for _, v := range negatives {
		sq += v * v
	}
	return math.Sqrt(sq / float64(len(negatives)))
}

func lastN(points []navPoint, n int) []navPoint {
	if len(points) <= n {
		return points
	}
	return points[len(points)-n:]
}

// returnOverWindow is the simple return from the first to the last NAV
// point in the trailing n-point window (nil if insufficient history).
func returnOverWindow(points []navPoint, n int) *float64 {
	window := lastN(points, n)
	if len(window) < n {
		return nil
	}
	r := (window[len(window)-1].nav/window[0].nav - 1) * 100
	return &r
}

// maxDrawdown returns the largest peak-to-trough decline, as a negative
// percentage, over the given NAV series.
func maxDrawdown(points []navPoint) *float64 {
	if len(points) < 2 {
		return nil
	}
	peak := points[0].nav
	worst := 0.0
	for _, p := range points {
		if p.nav > peak {
			peak = p.nav
		}
		dd := (p.nav/peak - 1) * 100
		if dd < worst {
			worst = dd
		}
	}
	return &worst
}

// avgRecoveryDays averages the number of trading days each drawdown
// episode took to reclaim its prior peak; episodes still underwater at
// the end of the series are excluded.
func avgRecoveryDays(points []navPoint) *float64 {
	if len(points) < 3 {
		return nil
	}
	var episodes []int
	peak := points[0].nav
	peakIdx := 0
	inDrawdown := false
	for i, p := range points {
		if p.nav >= peak {
			if inDrawdown {
				episodes = append(episodes, i-peakIdx)
				inDrawdown = false
			}
			peak = p.nav
			peakIdx = i
		} else {
			inDrawdown = true
		}
	}
	if len(episodes) == 0 {
		return nil
	}
	var sum int
	for _, e := range episodes {
		sum += e
	}
	v := float64(sum) / float64(len(episodes))
	return &v
}
