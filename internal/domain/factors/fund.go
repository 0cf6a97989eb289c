package factors

import "time"

// FundRow is the complete factor catalogue for one fund on one trade
// date, mirroring StockRow's nullability rules.
type FundRow struct {
	Code      string
	TradeDate string

	// Performance
	Return1w      *float64
	Return1m      *float64
	Return3m      *float64
	Return6m      *float64
	Return1y      *float64
	ReturnRank1w  *float64
	ReturnRank1m  *float64

	// Risk
	Volatility20d  *float64
	Volatility60d  *float64
	Sharpe20d      *float64
	Sharpe1y       *float64
	Sortino1y      *float64
	Calmar1y       *float64
	MaxDrawdown1y  *float64
	AvgRecoveryDays *float64

	// Manager
	ManagerTenureYears *float64
	ManagerAlphaBull   *float64
	ManagerAlphaBear   *float64
	StyleConsistency   *float64
	FundSize           *float64

	// Holdings
	HoldingsAvgROE       *float64
	HoldingsDiversification *float64
	TurnoverRate         *float64

	// Composite
	ShortTermScore *float64
	LongTermScore  *float64

	// Auxiliary
	PrevNAV  *float64
	Name     string
	FundType string

	ComputedAt time.Time
}

func (r FundRow) Key() (string, string) { return r.Code, r.TradeDate }
