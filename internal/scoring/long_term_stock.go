package scoring

import "github.com/eastmoney-sub000/factord/internal/domain/factors"

// LongTermStock composites quality (35%), growth (30%), valuation (25%),
// and moat (10%) into the long-term stock score, then applies the
// quality gate: roe < 10 hard-caps the final score at 30.
func LongTermStock(row factors.StockRow) float64 {
	quality := qualityScore(row)
	growth := growthScore(row)
	valuation := valuationScore(row)
	moat := moatScore(row)

	score := WeightedComposite([]WeightedScore{
		{Value: quality, Weight: 35, Available: true},
		{Value: growth, Weight: 30, Available: true},
		{Value: valuation, Weight: 25, Available: true},
		{Value: moat, Weight: 10, Available: true},
	})

	if row.ROE != nil && *row.ROE < 10 {
		if score > 30 {
			score = 30
		}
	}
	return round2(score)
}

func qualityScore(row factors.StockRow) float64 {
	subs := []WeightedScore{
		roeLevelScore(row.ROE, 40),
		available(row.GrossMargin, 30),
		available(row.GrossMarginStability, 15),
		ocfCoverageScore(row.OCFToProfit, 15),
	}
	return WeightedComposite(subs)
}

func roeLevelScore(roe *float64, weight float64) WeightedScore {
	if roe == nil {
		return WeightedScore{Weight: weight, Available: false}
	}
	// 0 ROE -> 0, 20+ ROE -> 100, linear between.
	score := clamp(*roe*5, 0, 100)
	return fixed(score, weight)
}

func ocfCoverageScore(ocf *float64, weight float64) WeightedScore {
	if ocf == nil {
		return WeightedScore{Weight: weight, Available: false}
	}
	score := clamp(*ocf*100, 0, 100)
	return fixed(score, weight)
}

func growthScore(row factors.StockRow) float64 {
	subs := []WeightedScore{
		available(row.RevenueGrowthYoy, 25),
		available(row.ProfitGrowthYoy, 25),
		available(row.RevenueCAGR3y, 25),
		available(row.ProfitCAGR3y, 25),
	}
	return WeightedComposite(subs)
}

// valuationScore rewards PEG < 1, penalises undefined/negative growth
// (PEG set to a fixed 20 by the factor computer in that case) and low
// PE/PB percentile.
func valuationScore(row factors.StockRow) float64 {
	subs := []WeightedScore{
		pegScore(row.PEGRatio, 50),
		percentileScore(row.PEPercentile, 25),
		percentileScore(row.PBPercentile, 25),
	}
	return WeightedComposite(subs)
}

func pegScore(peg *float64, weight float64) WeightedScore {
	if peg == nil {
		return WeightedScore{Weight: weight, Available: false}
	}
	v := *peg
	var score float64
	switch {
	case v <= 0:
		score = 20
	case v < 0.5:
		score = 95
	case v < 1:
		score = 95 - (v-0.5)*50 // 95 -> 70 over [0.5,1)
	case v < 2:
		score = 70 - (v-1)*30 // 70 -> 40 over [1,2)
	default:
		score = 20
	}
	return fixed(score, weight)
}

// percentileScore rewards a low percentile (cheap relative to history).
func percentileScore(pct *float64, weight float64) WeightedScore {
	if pct == nil {
		return WeightedScore{Weight: weight, Available: false}
	}
	score := clamp(100-*pct, 0, 100)
	return fixed(score, weight)
}

func moatScore(row factors.StockRow) float64 {
	subs := []WeightedScore{
		available(row.GrossMargin, 60),
		available(row.GrossMarginStability, 40),
	}
	return WeightedComposite(subs)
}
