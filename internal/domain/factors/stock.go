// Package factors defines the FactorRow shapes persisted by the Daily
// Computer and served by the Factor Store.
package factors

import "time"

// StockRow is the complete factor catalogue for one stock on one trade
// date. All factor fields are nullable; a missing upstream input
// produces nil rather than a zero value, per the safenum boundary rule.
type StockRow struct {
	Code      string
	TradeDate string

	// Technical
	ConsolidationScore *float64
	VolumePrecursor    *float64
	MAConvergence      *float64
	RSI                *float64
	MACDSignal         *float64
	BollingerPosition  *float64

	// Fundamental
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

	// Sentiment / flow
	MainInflow5d       *float64
	MainInflowTrend    *float64
	NorthInflow5d      *float64
	RetailOutflowRatio *float64

	// Composite
	ShortTermScore *float64
	LongTermScore  *float64

	// Auxiliary, not persisted as a ranked factor but needed by the
	// recommendation engine for rec_price and key-factor annotation.
	Price   *float64
	Name    string
	Industry string

	ComputedAt time.Time
}

// Key returns the (code, trade_date) uniqueness key.
func (r StockRow) Key() (string, string) { return r.Code, r.TradeDate }
