package recommend

import "github.com/eastmoney-sub000/factord/internal/domain/factors"

// PassesLongStockQualityGate is the Recommendation Engine's own
// admission check, ported from long_term.py's passes_quality_gate. It
// is distinct from the scorer's internal hard-cap: the scorer still
// produces a (capped) score for an excluded row, but the engine never
// surfaces that row as a recommendation.
func PassesLongStockQualityGate(row factors.StockRow) bool {
	if row.ROE == nil || *row.ROE < 10 {
		return false
	}
	if row.OCFToProfit != nil && *row.OCFToProfit < 0.5 {
		return false
	}
	if row.DebtRatio != nil && *row.DebtRatio > 80 {
		return false
	}
	return true
}
