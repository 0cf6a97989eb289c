package stockfactors

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/eastmoney-sub000/factord/internal/domain/safenum"
	"github.com/eastmoney-sub000/factord/internal/domain/tradedate"
	"github.com/eastmoney-sub000/factord/internal/upstream"
)

// Fundamental is the partial FactorRow contributed by financial
// statements and the instrument's own trailing valuation history.
type Fundamental struct {
	ROE                  *float64
	ROEYoy               *float64
	GrossMargin          *float64
	GrossMarginStability *float64
	OCFToProfit          *float64
	DebtRatio            *float64
	RevenueGrowthYoy     *float64
	ProfitGrowthYoy      *float64
	RevenueCAGR3y        *float64
	ProfitCAGR3y         *float64
	PEGRatio             *float64
	PEPercentile         *float64
	PBPercentile         *float64
}

// ComputeFundamental pulls the financial-indicator and valuation-history
// tables and derives the fundamental factor group.
func ComputeFundamental(ctx context.Context, sub *upstream.Substrate, provider, code string, date tradedate.TradeDate) (Fundamental, error) {
	indicators, err := sub.Call(ctx, provider, "financial_indicators", upstream.Args{
		"code": code,
		"end":  date.Wire(),
	}, 10*time.Second)
	if err != nil {
		return Fundamental{}, err
	}

	var f Fundamental
	rows := indicatorRowsNewestFirst(indicators)
	if len(rows) > 0 {
		f.ROE = safenum.ToFloat(rows[0]["roe"])
		f.GrossMargin = safenum.ToFloat(rows[0]["gross_margin"])
		f.OCFToProfit = safenum.ToFloat(rows[0]["ocf_to_profit"])
		f.DebtRatio = safenum.ToFloat(rows[0]["debt_ratio"])
		f.RevenueGrowthYoy = safenum.ToFloat(rows[0]["revenue_growth_yoy"])
		f.ProfitGrowthYoy = safenum.ToFloat(rows[0]["profit_growth_yoy"])
	}
	if len(rows) > 4 {
		f.ROEYoy = yoyDelta(rows, "roe")
	}
	f.GrossMarginStability = grossMarginStability(rows)
	f.RevenueCAGR3y = cagr3y(rows, "revenue")
	f.ProfitCAGR3y = cagr3y(rows, "profit")
	f.PEGRatio = pegRatio(f.ProfitGrowthYoy, rows)

	valuation, err := sub.Call(ctx, provider, "valuation_history", upstream.Args{
		"code": code,
		"end":  date.Wire(),
	}, 10*time.Second)
	if err == nil && valuation != nil {
		f.PEPercentile = trailingPercentile(valuation, "pe")
		f.PBPercentile = trailingPercentile(valuation, "pb")
	}

	return f, nil
}

func indicatorRowsNewestFirst(t *upstream.Table) []upstream.Row {
	if t == nil {
		return nil
	}
	rows := append([]upstream.Row(nil), t.Rows...)
	sort.Slice(rows, func(i, j int) bool {
		di := safenum.ToString(rows[i]["report_date"])
		dj := safenum.ToString(rows[j]["report_date"])
		if di == nil || dj == nil {
			return false
		}
		return *di > *dj
	})
	return rows
}

// yoyDelta compares the most recent report to the one four quarters
// prior (index 4 in a quarterly-cadence, newest-first series).
func yoyDelta(rows []upstream.Row, field string) *float64 {
	latest := safenum.ToFloat(rows[0][field])
	prior := safenum.ToFloat(rows[4][field])
	if latest == nil || prior == nil {
		return nil
	}
	d := *latest - *prior
	return &d
}

// grossMarginStability is the inverse coefficient of variation of gross
// margin across the trailing 3 years: stable margins score near 100,
// volatile margins decay toward 0.
func grossMarginStability(rows []upstream.Row) *float64 {
	var series []float64
	for i, r := range rows {
		if i >= 12 {
			break
		}
		if v := safenum.ToFloat(r["gross_margin"]); v != nil {
			series = append(series, *v)
		}
	}
	if len(series) < 4 {
		return nil
	}
	m := mean(series)
	if m == 0 {
		return nil
	}
	cv := stddev(series) / m
	score := safenum.Clamp(100-cv*100, 0, 100)
	return &score
}

// cagr3y computes a 3-year compound annual growth rate for field from
// quarterly reports spaced 12 periods apart (newest-first).
func cagr3y(rows []upstream.Row, field string) *float64 {
	if len(rows) <= 12 {
		return nil
	}
	latest := safenum.ToFloat(rows[0][field])
	base := safenum.ToFloat(rows[12][field])
	if latest == nil || base == nil || *base <= 0 || *latest <= 0 {
		return nil
	}
	cagr := (math.Pow(*latest/(*base), 1.0/3.0) - 1) * 100
	return &cagr
}

// pegRatio is PE / profit_growth_yoy (profit growth expressed as a
// plain percentage number, e.g. 20 for 20%); undefined growth (<=0)
// sets the ratio to a fixed 20, which the scorer's PEG curve maps to
// its 20-point floor.
func pegRatio(profitGrowthYoy *float64, rows []upstream.Row) *float64 {
	if profitGrowthYoy == nil {
		return nil
	}
	if *profitGrowthYoy <= 0 {
		undefined := 20.0
		return &undefined
	}
	if len(rows) == 0 {
		return nil
	}
	pe := safenum.ToFloat(rows[0]["pe"])
	if pe == nil || *pe <= 0 {
		return nil
	}
	peg := *pe / *profitGrowthYoy
	return &peg
}

// trailingPercentile ranks the latest value of field (the first row)
// within the instrument's own trailing history: the share of values at
// or below it, so the highest scores 100 and the lowest 100/n.
func trailingPercentile(t *upstream.Table, field string) *float64 {
	if t == nil || len(t.Rows) == 0 {
		return nil
	}
	var series []float64
	for _, r := range t.Rows {
		if v := safenum.ToFloat(r[field]); v != nil {
			series = append(series, *v)
		}
	}
	if len(series) < 5 {
		return nil
	}
	latest := series[0]
	below := 0
	for _, v := range series {
		if v <= latest {
			below++
		}
	}
	pct := float64(below) / float64(len(series)) * 100
	return &pct
}
