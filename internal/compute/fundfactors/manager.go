package fundfactors

import (
	"context"
	"time"

	"github.com/eastmoney-sub000/factord/internal/domain/safenum"
	"github.com/eastmoney-sub000/factord/internal/domain/tradedate"
	"github.com/eastmoney-sub000/factord/internal/upstream"
)

// Manager is the partial FactorRow contributed by the manager and
// holdings registries.
type Manager struct {
	ManagerTenureYears      *float64
	ManagerAlphaBull        *float64
	ManagerAlphaBear        *float64
	StyleConsistency        *float64
	FundSize                *float64
	HoldingsAvgROE          *float64
	HoldingsDiversification *float64
	TurnoverRate            *float64
}

// ComputeManager fetches the fund-basic/manager registry row and the
// holdings breakdown and derives the manager factor group.
func ComputeManager(ctx context.Context, sub *upstream.Substrate, provider, code string, date tradedate.TradeDate) (Manager, error) {
	var m Manager

	basic, err := sub.Call(ctx, provider, "fund_manager_info", upstream.Args{
		"code": code,
		"end":  date.Wire(),
	}, 10*time.Second)
	if err != nil {
		return Manager{}, err
	}
	if basic != nil && len(basic.Rows) > 0 {
		row := basic.Rows[0]
		m.ManagerTenureYears = safenum.ToFloat(row["tenure_years"])
		m.ManagerAlphaBull = safenum.ToFloat(row["alpha_bull"])
		m.ManagerAlphaBear = safenum.ToFloat(row["alpha_bear"])
		m.StyleConsistency = safenum.ToFloat(row["style_consistency"])
		m.FundSize = safenum.ToFloat(row["fund_size"])
		m.TurnoverRate = safenum.ToFloat(row["turnover_rate"])
	}

	holdings, err := sub.Call(ctx, provider, "fund_holdings", upstream.Args{
		"code": code,
		"end":  date.Wire(),
	}, 10*time.Second)
	if err == nil && holdings != nil && len(holdings.Rows) > 0 {
		m.HoldingsAvgROE = holdingsAvgROE(holdings)
		m.HoldingsDiversification = holdingsDiversification(holdings)
	}

	return m, nil
}

func holdingsAvgROE(t *upstream.Table) *float64 {
	var total float64
	var n int
	for _, r := range t.Rows {
		if v := safenum.ToFloat(r["stock_roe"]); v != nil {
			total += *v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	v := total / float64(n)
	return &v
}

// holdingsDiversification maps the Herfindahl concentration of the top
// holdings onto [0,100]: an evenly spread portfolio scores near 100, a
// portfolio concentrated in one name scores near 0.
func holdingsDiversification(t *upstream.Table) *float64 {
	var weights []float64
	for _, r := range t.Rows {
		if v := safenum.ToFloat(r["weight"]); v != nil {
			weights = append(weights, *v)
		}
	}
	if len(weights) == 0 {
		return nil
	}
	var hhi float64
	for _, w := range weights {
		hhi += (w / 100) * (w / 100)
	}
	score := safenum.Clamp((1-hhi)*100, 0, 100)
	return &score
}
