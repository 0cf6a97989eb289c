package fundfactors

import (
	"context"
	"sort"
	"time"

	"github.com/eastmoney-sub000/factord/internal/domain/safenum"
	"github.com/eastmoney-sub000/factord/internal/domain/tradedate"
	"github.com/eastmoney-sub000/factord/internal/upstream"
)

// Performance is the partial FactorRow contributed by windowed NAV
// returns and the instrument's rank against its peer universe.
type Performance struct {
	PrevNAV      *float64
	Return1w     *float64
	Return1m     *float64
	Return3m     *float64
	Return6m     *float64
	Return1y     *float64
	ReturnRank1w *float64
	ReturnRank1m *float64
}

// ComputePerformance fetches NAV history and the peer return ranking
// table and derives the performance factor group.
func ComputePerformance(ctx context.Context, sub *upstream.Substrate, provider, code string, date tradedate.TradeDate) (Performance, []navPoint, error) {
	table, err := sub.Call(ctx, provider, "fund_nav_history", upstream.Args{
		"code": code,
		"end":  date.Wire(),
		"days": 380,
	}, 10*time.Second)
	if err != nil {
		return Performance{}, nil, err
	}
	points := navPointsFromTable(table)
	if len(points) == 0 {
		return Performance{}, nil, nil
	}

	var p Performance
	prev := points[len(points)-1].nav
	p.PrevNAV = &prev
	p.Return1w = returnOverWindow(points, 6)
	p.Return1m = returnOverWindow(points, 22)
	p.Return3m = returnOverWindow(points, 64)
	p.Return6m = returnOverWindow(points, 128)
	p.Return1y = returnOverWindow(points, 245)

	peers, err := sub.Call(ctx, provider, "fund_return_rank", upstream.Args{
		"code": code,
		"end":  date.Wire(),
	}, 10*time.Second)
	if err == nil && peers != nil {
		p.ReturnRank1w = peerPercentile(peers, code, "return_1w")
		p.ReturnRank1m = peerPercentile(peers, code, "return_1m")
	}

	return p, points, nil
}

// peerPercentile ranks code's value for field within the peer table,
// 0 = worst performer, 100 = best.
func peerPercentile(t *upstream.Table, code, field string) *float64 {
	type entry struct {
		code  string
		value float64
	}
	var entries []entry
	for _, r := range t.Rows {
		c := safenum.ToString(r["code"])
		v := safenum.ToFloat(r[field])
		if c == nil || v == nil {
			continue
		}
		entries = append(entries, entry{code: *c, value: *v})
	}
	if len(entries) < 5 {
		return nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].value < entries[j].value })
	for i, e := range entries {
		if e.code == code {
			pct := float64(i) / float64(len(entries)-1) * 100
			return &pct
		}
	}
	return nil
}
