package scoring

import "github.com/eastmoney-sub000/factord/internal/domain/factors"

// ShortTermFund composites momentum (40%), sector/style (30%), flow
// (20%), and manager (10%) into the short-term fund score.
func ShortTermFund(row factors.FundRow) float64 {
	subs := []WeightedScore{
		{Value: momentumScore(row), Weight: 40, Available: true},
		{Value: styleConsistencyScore(row), Weight: 30, Available: true},
		{Value: flowScore(row), Weight: 20, Available: true},
		{Value: managerRecentScore(row), Weight: 10, Available: true},
	}
	return WeightedComposite(subs)
}

func momentumScore(row factors.FundRow) float64 {
	subs := []WeightedScore{
		available(row.Return1w, 30),
		available(row.Return1m, 40),
		available(row.ReturnRank1w, 15),
		available(row.ReturnRank1m, 15),
	}
	return WeightedComposite(subs)
}

func styleConsistencyScore(row factors.FundRow) float64 {
	subs := []WeightedScore{
		available(row.StyleConsistency, 70),
		available(row.HoldingsDiversification, 30),
	}
	return WeightedComposite(subs)
}

func flowScore(row factors.FundRow) float64 {
	// No dedicated fund money-flow input in this factor set; use
	// turnover rate as a liquidity/flow proxy, capped to [0,100].
	if row.TurnoverRate == nil {
		return 50
	}
	return clamp(*row.TurnoverRate, 0, 100)
}

func managerRecentScore(row factors.FundRow) float64 {
	subs := []WeightedScore{
		available(row.ManagerAlphaBull, 60),
		available(row.ManagerTenureYears, 40),
	}
	return WeightedComposite(subs)
}
