package recommend

import (
	"fmt"

	"github.com/eastmoney-sub000/factord/internal/domain/factors"
)

// maxKeyFactors caps the textual tags shown per recommendation; the
// identifier functions below naturally produce at most this many,
// truncated if more qualify.
const maxKeyFactors = 5

func truncateFactors(tags []string) []string {
	if len(tags) > maxKeyFactors {
		return tags[:maxKeyFactors]
	}
	return tags
}

// LongStockKeyFactors ports long_term.py's _identify_key_factors:
// quality, cash-flow, growth, and valuation signals in that order.
func LongStockKeyFactors(row factors.StockRow) []string {
	var tags []string

	if row.ROE != nil {
		switch {
		case *row.ROE >= 20:
			tags = append(tags, fmt.Sprintf("ROE优秀 (%.1f%%)", *row.ROE))
		case *row.ROE >= 15:
			tags = append(tags, fmt.Sprintf("ROE良好 (%.1f%%)", *row.ROE))
		case *row.ROE < 10:
			tags = append(tags, fmt.Sprintf("ROE偏低 (%.1f%%, 风险)", *row.ROE))
		}
	}
	if row.OCFToProfit != nil {
		switch {
		case *row.OCFToProfit >= 1.0:
			tags = append(tags, fmt.Sprintf("现金流质量优秀 (OCF/利润=%.2f)", *row.OCFToProfit))
		case *row.OCFToProfit < 0.5:
			tags = append(tags, fmt.Sprintf("现金流质量较差 (OCF/利润=%.2f, 风险)", *row.OCFToProfit))
		}
	}
	if row.ProfitCAGR3y != nil {
		switch {
		case *row.ProfitCAGR3y >= 20:
			tags = append(tags, fmt.Sprintf("利润高增长 (3年CAGR=%.1f%%)", *row.ProfitCAGR3y))
		case *row.ProfitCAGR3y < 0:
			tags = append(tags, fmt.Sprintf("利润负增长 (3年CAGR=%.1f%%, 风险)", *row.ProfitCAGR3y))
		}
	}
	if row.PEGRatio != nil {
		switch {
		case *row.PEGRatio < 1:
			tags = append(tags, fmt.Sprintf("估值吸引力强 (PEG=%.2f)", *row.PEGRatio))
		case *row.PEGRatio > 2:
			tags = append(tags, fmt.Sprintf("估值偏高 (PEG=%.2f, 风险)", *row.PEGRatio))
		}
	}
	if row.PEPercentile != nil && *row.PEPercentile < 30 {
		tags = append(tags, fmt.Sprintf("PE处于历史低位 (%.0f%%分位)", *row.PEPercentile))
	}
	return truncateFactors(tags)
}

// ShortStockKeyFactors mirrors short_term.py's reasoning: accumulation
// and technical setup signals rather than quality/valuation.
func ShortStockKeyFactors(row factors.StockRow) []string {
	var tags []string

	if row.MainInflow5d != nil && *row.MainInflow5d > 0.1 {
		tags = append(tags, fmt.Sprintf("主力资金持续流入 (5日净流入比率=%.2f)", *row.MainInflow5d))
	}
	if row.MainInflowTrend != nil {
		switch {
		case *row.MainInflowTrend >= 70:
			tags = append(tags, fmt.Sprintf("资金流入加速 (趋势=%.1f)", *row.MainInflowTrend))
		case *row.MainInflowTrend <= 35:
			tags = append(tags, fmt.Sprintf("资金流入放缓 (趋势=%.1f, 风险)", *row.MainInflowTrend))
		}
	}
	if row.ConsolidationScore != nil && *row.ConsolidationScore >= 70 {
		tags = append(tags, fmt.Sprintf("近期窄幅整理 (%.0f分)", *row.ConsolidationScore))
	}
	if row.VolumePrecursor != nil && *row.VolumePrecursor >= 70 {
		tags = append(tags, fmt.Sprintf("缩量蓄势特征明显 (%.0f分)", *row.VolumePrecursor))
	}
	if row.RSI != nil {
		switch {
		case *row.RSI > 70:
			tags = append(tags, fmt.Sprintf("RSI超买 (%.1f, 风险)", *row.RSI))
		case *row.RSI < 30:
			tags = append(tags, fmt.Sprintf("RSI超卖 (%.1f)", *row.RSI))
		}
	}
	return truncateFactors(tags)
}

// ShortFundKeyFactors ports momentum.py's _identify_key_factors.
func ShortFundKeyFactors(row factors.FundRow) []string {
	var tags []string

	if row.Return1m != nil {
		switch {
		case *row.Return1m >= 5:
			tags = append(tags, fmt.Sprintf("近1月收益优秀 (+%.2f%%)", *row.Return1m))
		case *row.Return1m >= 2:
			tags = append(tags, fmt.Sprintf("近1月收益良好 (+%.2f%%)", *row.Return1m))
		case *row.Return1m < -5:
			tags = append(tags, fmt.Sprintf("近1月回撤较大 (%.2f%%, 风险)", *row.Return1m))
		}
	}
	if row.Sharpe20d != nil {
		switch {
		case *row.Sharpe20d >= 1.5:
			tags = append(tags, fmt.Sprintf("短期夏普比率优秀 (%.2f)", *row.Sharpe20d))
		case *row.Sharpe20d < 0:
			tags = append(tags, fmt.Sprintf("短期夏普比率为负 (%.2f, 风险)", *row.Sharpe20d))
		}
	}
	if row.Volatility20d != nil {
		switch {
		case *row.Volatility20d > 30:
			tags = append(tags, fmt.Sprintf("短期波动较大 (%.1f%%)", *row.Volatility20d))
		case *row.Volatility20d < 10:
			tags = append(tags, fmt.Sprintf("短期波动较低 (%.1f%%)", *row.Volatility20d))
		}
	}
	return truncateFactors(tags)
}

// LongFundKeyFactors highlights risk-adjusted return and drawdown
// behaviour, the long-term fund strategy's dominant weights.
func LongFundKeyFactors(row factors.FundRow) []string {
	var tags []string

	if row.Sharpe1y != nil {
		switch {
		case *row.Sharpe1y >= 1.5:
			tags = append(tags, fmt.Sprintf("长期风险调整收益优秀 (夏普=%.2f)", *row.Sharpe1y))
		case *row.Sharpe1y < 0:
			tags = append(tags, fmt.Sprintf("长期风险调整收益为负 (夏普=%.2f, 风险)", *row.Sharpe1y))
		}
	}
	if row.MaxDrawdown1y != nil {
		switch {
		case *row.MaxDrawdown1y > -10:
			tags = append(tags, fmt.Sprintf("最大回撤控制良好 (%.1f%%)", *row.MaxDrawdown1y))
		case *row.MaxDrawdown1y < -30:
			tags = append(tags, fmt.Sprintf("最大回撤较大 (%.1f%%, 风险)", *row.MaxDrawdown1y))
		}
	}
	if row.ManagerTenureYears != nil && *row.ManagerTenureYears >= 5 {
		tags = append(tags, fmt.Sprintf("基金经理任职经验丰富 (%.1f年)", *row.ManagerTenureYears))
	}
	return truncateFactors(tags)
}
