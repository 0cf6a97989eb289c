package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/eastmoney-sub000/factord/internal/domain/factors"
	"github.com/eastmoney-sub000/factord/internal/domain/tradedate"
	"github.com/eastmoney-sub000/factord/internal/persistence"
)

// factorRepo implements persistence.FactorRepo for PostgreSQL.
type factorRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewFactorRepo creates a PostgreSQL-backed factor repository.
func NewFactorRepo(db *sqlx.DB, timeout time.Duration) persistence.FactorRepo {
	return &factorRepo{db: db, timeout: timeout}
}

func (r *factorRepo) UpsertStock(ctx context.Context, rows []factors.StockRow) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(rows)/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin stock upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO stock_factors_daily (
			code, trade_date, name, industry, price,
			consolidation_score, volume_precursor, ma_convergence, rsi, macd_signal, bollinger_position,
			roe, roe_yoy, gross_margin, gross_margin_stability, ocf_to_profit, debt_ratio,
			revenue_growth_yoy, profit_growth_yoy, revenue_cagr_3y, profit_cagr_3y, peg_ratio, pe_percentile, pb_percentile,
			main_inflow_5d, main_inflow_trend, north_inflow_5d, retail_outflow_ratio,
			short_term_score, long_term_score, computed_at
		) VALUES (
			$1,$2,$3,$4,$5, $6,$7,$8,$9,$10,$11, $12,$13,$14,$15,$16,$17, $18,$19,$20,$21,$22,$23,$24,
			$25,$26,$27,$28, $29,$30,$31
		)
		ON CONFLICT (code, trade_date) DO UPDATE SET
			name = EXCLUDED.name, industry = EXCLUDED.industry, price = EXCLUDED.price,
			consolidation_score = EXCLUDED.consolidation_score, volume_precursor = EXCLUDED.volume_precursor,
			ma_convergence = EXCLUDED.ma_convergence, rsi = EXCLUDED.rsi, macd_signal = EXCLUDED.macd_signal,
			bollinger_position = EXCLUDED.bollinger_position,
			roe = EXCLUDED.roe, roe_yoy = EXCLUDED.roe_yoy, gross_margin = EXCLUDED.gross_margin,
			gross_margin_stability = EXCLUDED.gross_margin_stability, ocf_to_profit = EXCLUDED.ocf_to_profit,
			debt_ratio = EXCLUDED.debt_ratio, revenue_growth_yoy = EXCLUDED.revenue_growth_yoy,
			profit_growth_yoy = EXCLUDED.profit_growth_yoy, revenue_cagr_3y = EXCLUDED.revenue_cagr_3y,
			profit_cagr_3y = EXCLUDED.profit_cagr_3y, peg_ratio = EXCLUDED.peg_ratio,
			pe_percentile = EXCLUDED.pe_percentile, pb_percentile = EXCLUDED.pb_percentile,
			main_inflow_5d = EXCLUDED.main_inflow_5d, main_inflow_trend = EXCLUDED.main_inflow_trend,
			north_inflow_5d = EXCLUDED.north_inflow_5d, retail_outflow_ratio = EXCLUDED.retail_outflow_ratio,
			short_term_score = EXCLUDED.short_term_score, long_term_score = EXCLUDED.long_term_score,
			computed_at = EXCLUDED.computed_at`)
	if err != nil {
		return fmt.Errorf("prepare stock upsert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err := stmt.ExecContext(ctx,
			row.Code, row.TradeDate, row.Name, row.Industry, row.Price,
			row.ConsolidationScore, row.VolumePrecursor, row.MAConvergence, row.RSI, row.MACDSignal, row.BollingerPosition,
			row.ROE, row.ROEYoy, row.GrossMargin, row.GrossMarginStability, row.OCFToProfit, row.DebtRatio,
			row.RevenueGrowthYoy, row.ProfitGrowthYoy, row.RevenueCAGR3y, row.ProfitCAGR3y, row.PEGRatio, row.PEPercentile, row.PBPercentile,
			row.MainInflow5d, row.MainInflowTrend, row.NorthInflow5d, row.RetailOutflowRatio,
			row.ShortTermScore, row.LongTermScore, row.ComputedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert stock row %s/%s: %w", row.Code, row.TradeDate, err)
		}
	}
	return tx.Commit()
}

func (r *factorRepo) UpsertFund(ctx context.Context, rows []factors.FundRow) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(rows)/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fund upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fund_factors_daily (
			code, trade_date, name, fund_type, prev_nav,
			return_1w, return_1m, return_3m, return_6m, return_1y, return_rank_1w, return_rank_1m,
			volatility_20d, volatility_60d, sharpe_20d, sharpe_1y, sortino_1y, calmar_1y, max_drawdown_1y, avg_recovery_days,
			manager_tenure_years, manager_alpha_bull, manager_alpha_bear, style_consistency, fund_size,
			holdings_avg_roe, holdings_diversification, turnover_rate,
			short_term_score, long_term_score, computed_at
		) VALUES (
			$1,$2,$3,$4,$5, $6,$7,$8,$9,$10,$11,$12, $13,$14,$15,$16,$17,$18,$19,$20,
			$21,$22,$23,$24,$25, $26,$27,$28, $29,$30,$31
		)
		ON CONFLICT (code, trade_date) DO UPDATE SET
			name = EXCLUDED.name, fund_type = EXCLUDED.fund_type, prev_nav = EXCLUDED.prev_nav,
			return_1w = EXCLUDED.return_1w, return_1m = EXCLUDED.return_1m, return_3m = EXCLUDED.return_3m,
			return_6m = EXCLUDED.return_6m, return_1y = EXCLUDED.return_1y,
			return_rank_1w = EXCLUDED.return_rank_1w, return_rank_1m = EXCLUDED.return_rank_1m,
			volatility_20d = EXCLUDED.volatility_20d, volatility_60d = EXCLUDED.volatility_60d,
			sharpe_20d = EXCLUDED.sharpe_20d, sharpe_1y = EXCLUDED.sharpe_1y, sortino_1y = EXCLUDED.sortino_1y,
			calmar_1y = EXCLUDED.calmar_1y, max_drawdown_1y = EXCLUDED.max_drawdown_1y,
			avg_recovery_days = EXCLUDED.avg_recovery_days,
			manager_tenure_years = EXCLUDED.manager_tenure_years, manager_alpha_bull = EXCLUDED.manager_alpha_bull,
			manager_alpha_bear = EXCLUDED.manager_alpha_bear, style_consistency = EXCLUDED.style_consistency,
			fund_size = EXCLUDED.fund_size,
			holdings_avg_roe = EXCLUDED.holdings_avg_roe, holdings_diversification = EXCLUDED.holdings_diversification,
			turnover_rate = EXCLUDED.turnover_rate,
			short_term_score = EXCLUDED.short_term_score, long_term_score = EXCLUDED.long_term_score,
			computed_at = EXCLUDED.computed_at`)
	if err != nil {
		return fmt.Errorf("prepare fund upsert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err := stmt.ExecContext(ctx,
			row.Code, row.TradeDate, row.Name, row.FundType, row.PrevNAV,
			row.Return1w, row.Return1m, row.Return3m, row.Return6m, row.Return1y, row.ReturnRank1w, row.ReturnRank1m,
			row.Volatility20d, row.Volatility60d, row.Sharpe20d, row.Sharpe1y, row.Sortino1y, row.Calmar1y, row.MaxDrawdown1y, row.AvgRecoveryDays,
			row.ManagerTenureYears, row.ManagerAlphaBull, row.ManagerAlphaBear, row.StyleConsistency, row.FundSize,
			row.HoldingsAvgROE, row.HoldingsDiversification, row.TurnoverRate,
			row.ShortTermScore, row.LongTermScore, row.ComputedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert fund row %s/%s: %w", row.Code, row.TradeDate, err)
		}
	}
	return tx.Commit()
}

func (r *factorRepo) GetStock(ctx context.Context, code string, date tradedate.TradeDate) (*factors.StockRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.db.QueryRowxContext(ctx, `
		SELECT code, trade_date, name, industry, price,
			consolidation_score, volume_precursor, ma_convergence, rsi, macd_signal, bollinger_position,
			roe, roe_yoy, gross_margin, gross_margin_stability, ocf_to_profit, debt_ratio,
			revenue_growth_yoy, profit_growth_yoy, revenue_cagr_3y, profit_cagr_3y, peg_ratio, pe_percentile, pb_percentile,
			main_inflow_5d, main_inflow_trend, north_inflow_5d, retail_outflow_ratio,
			short_term_score, long_term_score, computed_at
		FROM stock_factors_daily WHERE code = $1 AND trade_date = $2`, code, date.Wire())

	out, err := scanStockRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return out, err
}

func (r *factorRepo) GetFund(ctx context.Context, code string, date tradedate.TradeDate) (*factors.FundRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.db.QueryRowxContext(ctx, `
		SELECT code, trade_date, name, fund_type, prev_nav,
			return_1w, return_1m, return_3m, return_6m, return_1y, return_rank_1w, return_rank_1m,
			volatility_20d, volatility_60d, sharpe_20d, sharpe_1y, sortino_1y, calmar_1y, max_drawdown_1y, avg_recovery_days,
			manager_tenure_years, manager_alpha_bull, manager_alpha_bear, style_consistency, fund_size,
			holdings_avg_roe, holdings_diversification, turnover_rate,
			short_term_score, long_term_score, computed_at
		FROM fund_factors_daily WHERE code = $1 AND trade_date = $2`, code, date.Wire())

	out, err := scanFundRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return out, err
}

func (r *factorRepo) LatestStock(ctx context.Context, date tradedate.TradeDate) ([]factors.StockRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT code, trade_date, name, industry, price,
			consolidation_score, volume_precursor, ma_convergence, rsi, macd_signal, bollinger_position,
			roe, roe_yoy, gross_margin, gross_margin_stability, ocf_to_profit, debt_ratio,
			revenue_growth_yoy, profit_growth_yoy, revenue_cagr_3y, profit_cagr_3y, peg_ratio, pe_percentile, pb_percentile,
			main_inflow_5d, main_inflow_trend, north_inflow_5d, retail_outflow_ratio,
			short_term_score, long_term_score, computed_at
		FROM stock_factors_daily WHERE trade_date = $1`, date.Wire())
	if err != nil {
		return nil, fmt.Errorf("query latest stock factors: %w", err)
	}
	defer rows.Close()

	var out []factors.StockRow
	for rows.Next() {
		row, err := scanStockRowFromRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *row)
	}
	return out, rows.Err()
}

func (r *factorRepo) LatestFund(ctx context.Context, date tradedate.TradeDate) ([]factors.FundRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT code, trade_date, name, fund_type, prev_nav,
			return_1w, return_1m, return_3m, return_6m, return_1y, return_rank_1w, return_rank_1m,
			volatility_20d, volatility_60d, sharpe_20d, sharpe_1y, sortino_1y, calmar_1y, max_drawdown_1y, avg_recovery_days,
			manager_tenure_years, manager_alpha_bull, manager_alpha_bear, style_consistency, fund_size,
			holdings_avg_roe, holdings_diversification, turnover_rate,
			short_term_score, long_term_score, computed_at
		FROM fund_factors_daily WHERE trade_date = $1`, date.Wire())
	if err != nil {
		return nil, fmt.Errorf("query latest fund factors: %w", err)
	}
	defer rows.Close()

	var out []factors.FundRow
	for rows.Next() {
		row, err := scanFundRowFromRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *row)
	}
	return out, rows.Err()
}

func (r *factorRepo) StockHistory(ctx context.Context, code string, tr persistence.TimeRange) ([]factors.StockRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT code, trade_date, name, industry, price,
			consolidation_score, volume_precursor, ma_convergence, rsi, macd_signal, bollinger_position,
			roe, roe_yoy, gross_margin, gross_margin_stability, ocf_to_profit, debt_ratio,
			revenue_growth_yoy, profit_growth_yoy, revenue_cagr_3y, profit_cagr_3y, peg_ratio, pe_percentile, pb_percentile,
			main_inflow_5d, main_inflow_trend, north_inflow_5d, retail_outflow_ratio,
			short_term_score, long_term_score, computed_at
		FROM stock_factors_daily WHERE code = $1 AND trade_date BETWEEN $2 AND $3 ORDER BY trade_date ASC`,
		code, tr.From.Wire(), tr.To.Wire())
	if err != nil {
		return nil, fmt.Errorf("query stock history: %w", err)
	}
	defer rows.Close()

	var out []factors.StockRow
	for rows.Next() {
		row, err := scanStockRowFromRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *row)
	}
	return out, rows.Err()
}

func (r *factorRepo) FundHistory(ctx context.Context, code string, tr persistence.TimeRange) ([]factors.FundRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT code, trade_date, name, fund_type, prev_nav,
			return_1w, return_1m, return_3m, return_6m, return_1y, return_rank_1w, return_rank_1m,
			volatility_20d, volatility_60d, sharpe_20d, sharpe_1y, sortino_1y, calmar_1y, max_drawdown_1y, avg_recovery_days,
			manager_tenure_years, manager_alpha_bull, manager_alpha_bear, style_consistency, fund_size,
			holdings_avg_roe, holdings_diversification, turnover_rate,
			short_term_score, long_term_score, computed_at
		FROM fund_factors_daily WHERE code = $1 AND trade_date BETWEEN $2 AND $3 ORDER BY trade_date ASC`,
		code, tr.From.Wire(), tr.To.Wire())
	if err != nil {
		return nil, fmt.Errorf("query fund history: %w", err)
	}
	defer rows.Close()

	var out []factors.FundRow
	for rows.Next() {
		row, err := scanFundRowFromRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *row)
	}
	return out, rows.Err()
}

func (r *factorRepo) PruneOlderThan(ctx context.Context, cutoff tradedate.TradeDate) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune: %w", err)
	}
	defer tx.Rollback()

	var total int64
	res, err := tx.ExecContext(ctx, `DELETE FROM stock_factors_daily WHERE trade_date < $1`, cutoff.Wire())
	if err != nil {
		return 0, fmt.Errorf("prune stock factors: %w", err)
	}
	n, _ := res.RowsAffected()
	total += n

	res, err = tx.ExecContext(ctx, `DELETE FROM fund_factors_daily WHERE trade_date < $1`, cutoff.Wire())
	if err != nil {
		return 0, fmt.Errorf("prune fund factors: %w", err)
	}
	n, _ = res.RowsAffected()
	total += n

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return total, nil
}

func (r *factorRepo) HasComputedOn(ctx context.Context, kind persistence.FactorKind, date tradedate.TradeDate) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	table := "stock_factors_daily"
	if kind == persistence.KindFundFactors {
		table = "fund_factors_daily"
	}
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE trade_date = $1)`, table)
	if err := r.db.QueryRowxContext(ctx, query, date.Wire()).Scan(&exists); err != nil {
		return false, fmt.Errorf("check computed status: %w", err)
	}
	return exists, nil
}

// scanStockRow/scanFundRow and their *Rows variants adapt sqlx's two
// scan surfaces (*sqlx.Row has no Columns(), *sqlx.Rows does) to one
// column list, matching the order the SELECT statements above use.

func scanStockRow(row *sqlx.Row) (*factors.StockRow, error) {
	var out factors.StockRow
	err := row.Scan(
		&out.Code, &out.TradeDate, &out.Name, &out.Industry, &out.Price,
		&out.ConsolidationScore, &out.VolumePrecursor, &out.MAConvergence, &out.RSI, &out.MACDSignal, &out.BollingerPosition,
		&out.ROE, &out.ROEYoy, &out.GrossMargin, &out.GrossMarginStability, &out.OCFToProfit, &out.DebtRatio,
		&out.RevenueGrowthYoy, &out.ProfitGrowthYoy, &out.RevenueCAGR3y, &out.ProfitCAGR3y, &out.PEGRatio, &out.PEPercentile, &out.PBPercentile,
		&out.MainInflow5d, &out.MainInflowTrend, &out.NorthInflow5d, &out.RetailOutflowRatio,
		&out.ShortTermScore, &out.LongTermScore, &out.ComputedAt,
	)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func scanStockRowFromRows(rows *sqlx.Rows) (*factors.StockRow, error) {
	var out factors.StockRow
	err := rows.Scan(
		&out.Code, &out.TradeDate, &out.Name, &out.Industry, &out.Price,
		&out.ConsolidationScore, &out.VolumePrecursor, &out.MAConvergence, &out.RSI, &out.MACDSignal, &out.BollingerPosition,
		&out.ROE, &out.ROEYoy, &out.GrossMargin, &out.GrossMarginStability, &out.OCFToProfit, &out.DebtRatio,
		&out.RevenueGrowthYoy, &out.ProfitGrowthYoy, &out.RevenueCAGR3y, &out.ProfitCAGR3y, &out.PEGRatio, &out.PEPercentile, &out.PBPercentile,
		&out.MainInflow5d, &out.MainInflowTrend, &out.NorthInflow5d, &out.RetailOutflowRatio,
		&out.ShortTermScore, &out.LongTermScore, &out.ComputedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan stock row: %w", err)
	}
	return &out, nil
}

func scanFundRow(row *sqlx.Row) (*factors.FundRow, error) {
	var out factors.FundRow
	err := row.Scan(
		&out.Code, &out.TradeDate, &out.Name, &out.FundType, &out.PrevNAV,
		&out.Return1w, &out.Return1m, &out.Return3m, &out.Return6m, &out.Return1y, &out.ReturnRank1w, &out.ReturnRank1m,
		&out.Volatility20d, &out.Volatility60d, &out.Sharpe20d, &out.Sharpe1y, &out.Sortino1y, &out.Calmar1y, &out.MaxDrawdown1y, &out.AvgRecoveryDays,
		&out.ManagerTenureYears, &out.ManagerAlphaBull, &out.ManagerAlphaBear, &out.StyleConsistency, &out.FundSize,
		&out.HoldingsAvgROE, &out.HoldingsDiversification, &out.TurnoverRate,
		&out.ShortTermScore, &out.LongTermScore, &out.ComputedAt,
	)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func scanFundRowFromRows(rows *sqlx.Rows) (*factors.FundRow, error) {
	var out factors.FundRow
	err := rows.Scan(
		&out.Code, &out.TradeDate, &out.Name, &out.FundType, &out.PrevNAV,
		&out.Return1w, &out.Return1m, &out.Return3m, &out.Return6m, &out.Return1y, &out.ReturnRank1w, &out.ReturnRank1m,
		&out.Volatility20d, &out.Volatility60d, &out.Sharpe20d, &out.Sharpe1y, &out.Sortino1y, &out.Calmar1y, &out.MaxDrawdown1y, &out.AvgRecoveryDays,
		&out.ManagerTenureYears, &out.ManagerAlphaBull, &out.ManagerAlphaBear, &out.StyleConsistency, &out.FundSize,
		&out.HoldingsAvgROE, &out.HoldingsDiversification, &out.TurnoverRate,
		&out.ShortTermScore, &out.LongTermScore, &out.ComputedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan fund row: %w", err)
	}
	return &out, nil
}
