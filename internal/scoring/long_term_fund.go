package scoring

import "github.com/eastmoney-sub000/factord/internal/domain/factors"

// LongTermFund composites risk-adjusted return (35%), drawdown
// resilience (25%), manager (25%), and holdings quality (15%) into the
// long-term fund score.
func LongTermFund(row factors.FundRow) float64 {
	subs := []WeightedScore{
		{Value: riskAdjustedScore(row), Weight: 35, Available: true},
		{Value: drawdownScore(row), Weight: 25, Available: true},
		{Value: managerLongScore(row), Weight: 25, Available: true},
		{Value: holdingsQualityScore(row), Weight: 15, Available: true},
	}
	return WeightedComposite(subs)
}

func riskAdjustedScore(row factors.FundRow) float64 {
	subs := []WeightedScore{
		sharpeScore(row.Sharpe1y, 50),
		sharpeScore(row.Sortino1y, 30),
		calmarScore(row.Calmar1y, 20),
	}
	return WeightedComposite(subs)
}

// sharpeScore maps a Sharpe/Sortino ratio onto [0,100]: 0 at ratio<=0,
// 100 at ratio>=3.
func sharpeScore(ratio *float64, weight float64) WeightedScore {
	if ratio == nil {
		return WeightedScore{Weight: weight, Available: false}
	}
	score := clamp(*ratio/3*100, 0, 100)
	return fixed(score, weight)
}

func calmarScore(ratio *float64, weight float64) WeightedScore {
	if ratio == nil {
		return WeightedScore{Weight: weight, Available: false}
	}
	score := clamp(*ratio/2*100, 0, 100)
	return fixed(score, weight)
}

func drawdownScore(row factors.FundRow) float64 {
	subs := []WeightedScore{
		maxDrawdownScore(row.MaxDrawdown1y, 60),
		recoverySpeedScore(row.AvgRecoveryDays, 40),
	}
	return WeightedComposite(subs)
}

// maxDrawdownScore rewards shallow drawdowns; MaxDrawdown1y is a
// negative percentage (e.g. -15 for -15%).
func maxDrawdownScore(dd *float64, weight float64) WeightedScore {
	if dd == nil {
		return WeightedScore{Weight: weight, Available: false}
	}
	score := clamp(100+(*dd)*2, 0, 100)
	return fixed(score, weight)
}

func recoverySpeedScore(days *float64, weight float64) WeightedScore {
	if days == nil {
		return WeightedScore{Weight: weight, Available: false}
	}
	score := clamp(100-*days/2, 0, 100)
	return fixed(score, weight)
}

func managerLongScore(row factors.FundRow) float64 {
	subs := []WeightedScore{
		available(row.ManagerTenureYears, 30),
		available(row.ManagerAlphaBull, 35),
		available(row.ManagerAlphaBear, 35),
	}
	return WeightedComposite(subs)
}

func holdingsQualityScore(row factors.FundRow) float64 {
	subs := []WeightedScore{
		available(row.HoldingsAvgROE, 60),
		available(row.HoldingsDiversification, 40),
	}
	return WeightedComposite(subs)
}
