// Package postgres implements the persistence interfaces against
// PostgreSQL, using sqlx/lib/pq exactly as the rest of this codebase
// talks to its primary store.
package postgres

// Schema is the DDL that internal/infrastructure/db.NewManager executes
// when it opens a connection. Column names mirror
// the StockRow / FundRow / recommendation.Record field names (snake
// case), which in turn mirror stock_factors_daily / fund_factors_daily /
// recommendation_performance from the source system.
const Schema = `
CREATE TABLE IF NOT EXISTS stock_factors_daily (
    code                      TEXT NOT NULL,
    trade_date                DATE NOT NULL,
    name                      TEXT,
    industry                  TEXT,
    price                     DOUBLE PRECISION,

    consolidation_score       DOUBLE PRECISION,
    volume_precursor          DOUBLE PRECISION,
    ma_convergence            DOUBLE PRECISION,
    rsi                       DOUBLE PRECISION,
    macd_signal               DOUBLE PRECISION,
    bollinger_position        DOUBLE PRECISION,

    roe                       DOUBLE PRECISION,
    roe_yoy                   DOUBLE PRECISION,
    gross_margin              DOUBLE PRECISION,
    gross_margin_stability    DOUBLE PRECISION,
    ocf_to_profit             DOUBLE PRECISION,
    debt_ratio                DOUBLE PRECISION,
    revenue_growth_yoy        DOUBLE PRECISION,
    profit_growth_yoy         DOUBLE PRECISION,
    revenue_cagr_3y           DOUBLE PRECISION,
    profit_cagr_3y            DOUBLE PRECISION,
    peg_ratio                 DOUBLE PRECISION,
    pe_percentile             DOUBLE PRECISION,
    pb_percentile             DOUBLE PRECISION,

    main_inflow_5d            DOUBLE PRECISION,
    main_inflow_trend         DOUBLE PRECISION,
    north_inflow_5d           DOUBLE PRECISION,
    retail_outflow_ratio      DOUBLE PRECISION,

    short_term_score          DOUBLE PRECISION,
    long_term_score           DOUBLE PRECISION,

    computed_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (code, trade_date)
);
CREATE INDEX IF NOT EXISTS idx_stock_factors_trade_date ON stock_factors_daily (trade_date);
CREATE INDEX IF NOT EXISTS idx_stock_factors_short_score ON stock_factors_daily (trade_date, short_term_score DESC);
CREATE INDEX IF NOT EXISTS idx_stock_factors_long_score ON stock_factors_daily (trade_date, long_term_score DESC);
CREATE INDEX IF NOT EXISTS idx_stock_factors_industry ON stock_factors_daily (industry);

CREATE TABLE IF NOT EXISTS fund_factors_daily (
    code                    TEXT NOT NULL,
    trade_date              DATE NOT NULL,
    name                    TEXT,
    fund_type               TEXT,
    prev_nav                DOUBLE PRECISION,

    return_1w               DOUBLE PRECISION,
    return_1m               DOUBLE PRECISION,
    return_3m               DOUBLE PRECISION,
    return_6m               DOUBLE PRECISION,
    return_1y               DOUBLE PRECISION,
    return_rank_1w          DOUBLE PRECISION,
    return_rank_1m          DOUBLE PRECISION,

    volatility_20d          DOUBLE PRECISION,
    volatility_60d          DOUBLE PRECISION,
    sharpe_20d              DOUBLE PRECISION,
    sharpe_1y               DOUBLE PRECISION,
    sortino_1y              DOUBLE PRECISION,
    calmar_1y               DOUBLE PRECISION,
    max_drawdown_1y         DOUBLE PRECISION,
    avg_recovery_days       DOUBLE PRECISION,

    manager_tenure_years    DOUBLE PRECISION,
    manager_alpha_bull      DOUBLE PRECISION,
    manager_alpha_bear      DOUBLE PRECISION,
    style_consistency       DOUBLE PRECISION,
    fund_size               DOUBLE PRECISION,

    holdings_avg_roe        DOUBLE PRECISION,
    holdings_diversification DOUBLE PRECISION,
    turnover_rate           DOUBLE PRECISION,

    short_term_score        DOUBLE PRECISION,
    long_term_score         DOUBLE PRECISION,

    computed_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (code, trade_date)
);
CREATE INDEX IF NOT EXISTS idx_fund_factors_trade_date ON fund_factors_daily (trade_date);
CREATE INDEX IF NOT EXISTS idx_fund_factors_short_score ON fund_factors_daily (trade_date, short_term_score DESC);
CREATE INDEX IF NOT EXISTS idx_fund_factors_long_score ON fund_factors_daily (trade_date, long_term_score DESC);

CREATE TABLE IF NOT EXISTS recommendation_performance (
    id                 BIGSERIAL PRIMARY KEY,
    code               TEXT NOT NULL,
    rec_type           TEXT NOT NULL,
    rec_date           DATE NOT NULL,
    rec_price          DOUBLE PRECISION,
    rec_score          DOUBLE PRECISION NOT NULL,
    target_return_pct  DOUBLE PRECISION NOT NULL,
    stop_loss_pct      DOUBLE PRECISION NOT NULL,

    check_date_7d      DATE,
    price_7d           DOUBLE PRECISION,
    return_7d          DOUBLE PRECISION,

    check_date_30d     DATE,
    price_30d          DOUBLE PRECISION,
    return_30d         DOUBLE PRECISION,

    hit_target         BOOLEAN NOT NULL DEFAULT false,
    hit_stop           BOOLEAN NOT NULL DEFAULT false,
    final_return       DOUBLE PRECISION,
    evaluation_status  TEXT NOT NULL DEFAULT 'pending',

    created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (code, rec_type, rec_date)
);
CREATE INDEX IF NOT EXISTS idx_rec_perf_status ON recommendation_performance (evaluation_status);
CREATE INDEX IF NOT EXISTS idx_rec_perf_code ON recommendation_performance (code, rec_type);

-- stock_basic / fund_basic / index_valuation_cache are lookup tables
-- created here; no code in this module reads or writes them (the
-- universe comes from the stock_list / fund_list upstream calls).
CREATE TABLE IF NOT EXISTS stock_basic (
    code       TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    industry   TEXT,
    is_st      BOOLEAN NOT NULL DEFAULT false,
    list_date  DATE,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS fund_basic (
    code       TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    fund_type  TEXT,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS index_valuation_cache (
    index_code    TEXT NOT NULL,
    trade_date    DATE NOT NULL,
    pe_ttm        DOUBLE PRECISION,
    pb            DOUBLE PRECISION,
    percentile_5y DOUBLE PRECISION,
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (index_code, trade_date)
);
`
