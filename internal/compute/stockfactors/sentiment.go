package stockfactors

import (
	"context"
	"sort"
	"time"

	"github.com/eastmoney-sub000/factord/internal/domain/safenum"
	"github.com/eastmoney-sub000/factord/internal/domain/tradedate"
	"github.com/eastmoney-sub000/factord/internal/upstream"
)

// Sentiment is the partial FactorRow contributed by money-flow data.
type Sentiment struct {
	MainInflow5d       *float64
	MainInflowTrend    *float64
	NorthInflow5d      *float64
	RetailOutflowRatio *float64
}

const (
	flowDays  = 5
	trendDays = 10
)

// ComputeSentiment pulls per-stock money flow and market-wide northbound
// flow and derives the sentiment/flow factor group.
func ComputeSentiment(ctx context.Context, sub *upstream.Substrate, provider, code string, date tradedate.TradeDate) (Sentiment, error) {
	var s Sentiment

	flow, err := sub.Call(ctx, provider, "moneyflow", upstream.Args{
		"code": code,
		"end":  date.Wire(),
	}, 10*time.Second)
	if err != nil {
		return Sentiment{}, err
	}
	rows := newestFirst(flow)
	if len(rows) >= flowDays {
		s.MainInflow5d = mainInflow5d(rows)
	}
	if len(rows) >= trendDays {
		s.MainInflowTrend = mainInflowTrend(rows)
	}
	if len(rows) >= flowDays {
		s.RetailOutflowRatio = retailOutflowRatio(rows)
	}

	north, err := sub.Call(ctx, provider, "moneyflow_hsgt", upstream.Args{
		"end": date.Wire(),
	}, 10*time.Second)
	if err == nil && north != nil {
		s.NorthInflow5d = northInflow5d(newestFirst(north))
	}

	return s, nil
}

func newestFirst(t *upstream.Table) []upstream.Row {
	if t == nil {
		return nil
	}
	rows := append([]upstream.Row(nil), t.Rows...)
	sort.Slice(rows, func(i, j int) bool {
		di := safenum.ToString(rows[i]["trade_date"])
		dj := safenum.ToString(rows[j]["trade_date"])
		if di == nil || dj == nil {
			return false
		}
		return *di > *dj
	})
	return rows
}

func flowOf(r upstream.Row) float64 {
	buyLg := floatOr0(r["buy_lg_vol"])
	sellLg := floatOr0(r["sell_lg_vol"])
	buyElg := floatOr0(r["buy_elg_vol"])
	sellElg := floatOr0(r["sell_elg_vol"])
	return (buyLg + buyElg) - (sellLg + sellElg)
}

func floatOr0(v interface{}) float64 {
	if f := safenum.ToFloat(v); f != nil {
		return *f
	}
	return 0
}

// mainInflow5d sums large+extra-large net buy over 5 days, normalised
// by the average daily large-order buy volume over the same window.
func mainInflow5d(rows []upstream.Row) *float64 {
	recent := rows[:flowDays]
	var total, avgVol float64
	for _, r := range recent {
		total += flowOf(r)
		avgVol += floatOr0(r["buy_lg_vol"]) + floatOr0(r["buy_elg_vol"])
	}
	avgVol /= flowDays
	if avgVol <= 0 {
		zero := 0.0
		return &zero
	}
	v := total / avgVol
	return &v
}

// mainInflowTrend compares the first and second half of a 10-day window:
// 50 + 25*clamp((second-first)/|first|, -2, 2).
func mainInflowTrend(rows []upstream.Row) *float64 {
	window := rows[:trendDays]
	secondHalf := window[:flowDays]
	firstHalf := window[flowDays:trendDays]

	var firstFlow, secondFlow float64
	for _, r := range firstHalf {
		firstFlow += flowOf(r)
	}
	for _, r := range secondHalf {
		secondFlow += flowOf(r)
	}
	if firstFlow == 0 {
		v := 50.0
		if secondFlow < 0 {
			v = 40.0
		}
		return &v
	}
	ratio := (secondFlow - firstFlow) / abs(firstFlow)
	ratio = safenum.Clamp(ratio, -2, 2)
	v := safenum.Clamp(50+ratio*25, 0, 100)
	return &v
}

// retailOutflowRatio is retail sell / (retail buy + retail sell) over
// the 5-day window; a ratio above 0.5 reads as retail distribution
// while larger orders accumulate.
func retailOutflowRatio(rows []upstream.Row) *float64 {
	recent := rows[:flowDays]
	var buy, sell float64
	for _, r := range recent {
		buy += floatOr0(r["buy_sm_vol"])
		sell += floatOr0(r["sell_sm_vol"])
	}
	if buy+sell <= 0 {
		return nil
	}
	v := sell / (buy + sell)
	return &v
}

// northInflow5d maps 5-day northbound net flow (millions CNY) onto
// [0,100] centred at 50: each 1000m moves the score one point, so
// +/-50000m is a full swing either way.
func northInflow5d(rows []upstream.Row) *float64 {
	if len(rows) < flowDays {
		v := 50.0
		return &v
	}
	recent := rows[:flowDays]
	var total float64
	for _, r := range recent {
		total += floatOr0(r["north_money"])
	}
	v := safenum.Clamp(50+total/1000, 0, 100)
	return &v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
