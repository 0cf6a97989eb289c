package scoring

import "github.com/eastmoney-sub000/factord/internal/domain/factors"

// ShortTermStock composites technical (40%), accumulation (25%),
// catalyst (20%, defaults to 50 with no event calendar), and risk
// (15%) into the short-term stock score.
func ShortTermStock(row factors.StockRow) float64 {
	technical := shortTermTechnical(row)
	accumulation := accumulationScore(row)
	catalyst := WeightedScore{Value: 50, Weight: 20, Available: true}
	risk := shortTermRisk(row)

	return WeightedComposite([]WeightedScore{
		{Value: technical, Weight: 40, Available: true},
		{Value: accumulation, Weight: 25, Available: true},
		catalyst,
		{Value: risk, Weight: 15, Available: true},
	})
}

func shortTermTechnical(row factors.StockRow) float64 {
	subs := []WeightedScore{
		available(row.ConsolidationScore, 30),
		available(row.VolumePrecursor, 30),
		available(row.MAConvergence, 25),
		rsiSweetSpotScore(row.RSI, 15),
	}
	return WeightedComposite(subs)
}

func accumulationScore(row factors.StockRow) float64 {
	subs := []WeightedScore{
		available(row.MainInflow5d, 45),
		available(row.MainInflowTrend, 35),
	}
	if row.RetailOutflowRatio != nil {
		// Lower outflow ratio is better: invert onto a 0-100 scale.
		inverted := clamp(100*(1-*row.RetailOutflowRatio), 0, 100)
		subs = append(subs, fixed(inverted, 20))
	} else {
		subs = append(subs, WeightedScore{Weight: 20, Available: false})
	}
	return WeightedComposite(subs)
}

func shortTermRisk(row factors.StockRow) float64 {
	subs := []WeightedScore{
		rsiMidRangeScore(row.RSI, 40),
		bollingerMidZoneScore(row.BollingerPosition, 35),
		lowDebtScore(row.DebtRatio, 25),
	}
	return WeightedComposite(subs)
}

// rsiMidRangeScore rewards RSI in [35,65], penalising extremes.
func rsiMidRangeScore(rsi *float64, weight float64) WeightedScore {
	if rsi == nil {
		return WeightedScore{Weight: weight, Available: false}
	}
	v := *rsi
	var score float64
	switch {
	case v >= 35 && v <= 65:
		score = 100
	case v < 35:
		score = clamp(100-(35-v)*4, 0, 100)
	default:
		score = clamp(100-(v-65)*4, 0, 100)
	}
	return fixed(score, weight)
}

// rsiSweetSpotScore rewards RSI moderately above neutral (trend strength
// without overbought exhaustion), used by the technical sub-score.
func rsiSweetSpotScore(rsi *float64, weight float64) WeightedScore {
	if rsi == nil {
		return WeightedScore{Weight: weight, Available: false}
	}
	v := *rsi
	score := 100 - clamp(abs(v-60)*2, 0, 100)
	return fixed(score, weight)
}

func bollingerMidZoneScore(pos *float64, weight float64) WeightedScore {
	if pos == nil {
		return WeightedScore{Weight: weight, Available: false}
	}
	v := *pos
	var score float64
	switch {
	case v >= 30 && v <= 70:
		score = 100
	case v < 30:
		score = clamp(100-(30-v)*3, 0, 100)
	default:
		score = clamp(100-(v-70)*3, 0, 100)
	}
	return fixed(score, weight)
}

func lowDebtScore(debtRatio *float64, weight float64) WeightedScore {
	if debtRatio == nil {
		return WeightedScore{Weight: weight, Available: false}
	}
	score := clamp(100-*debtRatio, 0, 100)
	return fixed(score, weight)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
