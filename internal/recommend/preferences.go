package recommend

import "strings"

// UserPreferences filters and re-weights a candidate list, ported from
// engine_v2.py's _apply_stock_preferences/_apply_fund_preferences.
type UserPreferences struct {
	AvoidSTStocks     bool
	ExcludedSectors   []string
	RequiredSectors   []string
	PreferredSectors  []string
	MinROE            *float64
	MinMarketCap      *float64
	MaxMarketCap      *float64
	LiquidityFloor    *float64
	MaxPE             *float64
	RequireProfitable bool

	PreferredFundTypes []string
	ExcludedFundTypes  []string
	MaxDrawdownTol     *float64
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func isSTName(name string) bool {
	return strings.Contains(name, "ST") || strings.Contains(name, "*ST")
}

// preferredSectorBoost is the multiplicative score boost for an
// instrument in a preferred sector. The Python reference applies this
// without re-clamping the result to [0,100]; this port re-clamps,
// a deliberate correction since a boosted score above 100 would
// otherwise outrank every unboosted perfect score.
const preferredSectorBoost = 1.15

func applyPreferredSectorBoost(score float64, industry string, preferred []string) float64 {
	if len(preferred) == 0 || !containsAny(industry, preferred) {
		return score
	}
	boosted := score * preferredSectorBoost
	if boosted > 100 {
		boosted = 100
	}
	return boosted
}
