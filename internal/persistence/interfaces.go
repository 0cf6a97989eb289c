package persistence

import (
	"context"
	"time"

	"github.com/eastmoney-sub000/factord/internal/domain/factors"
	"github.com/eastmoney-sub000/factord/internal/domain/recommendation"
	"github.com/eastmoney-sub000/factord/internal/domain/tradedate"
)

// TimeRange represents a trade-date window for history queries.
type TimeRange struct {
	From tradedate.TradeDate `json:"from"`
	To   tradedate.TradeDate `json:"to"`
}

// FactorRepo persists and retrieves computed stock/fund factor rows,
// one row per (code, trade_date).
type FactorRepo interface {
	// UpsertStock writes a batch of stock factor rows, replacing any
	// existing row for the same (code, trade_date).
	UpsertStock(ctx context.Context, rows []factors.StockRow) error

	// UpsertFund writes a batch of fund factor rows, replacing any
	// existing row for the same (code, trade_date).
	UpsertFund(ctx context.Context, rows []factors.FundRow) error

	// GetStock retrieves a single stock factor row.
	GetStock(ctx context.Context, code string, date tradedate.TradeDate) (*factors.StockRow, error)

	// GetFund retrieves a single fund factor row.
	GetFund(ctx context.Context, code string, date tradedate.TradeDate) (*factors.FundRow, error)

	// LatestStock returns every stock row computed for the given trade
	// date, used as the candidate universe for recommendation.
	LatestStock(ctx context.Context, date tradedate.TradeDate) ([]factors.StockRow, error)

	// LatestFund returns every fund row computed for the given trade date.
	LatestFund(ctx context.Context, date tradedate.TradeDate) ([]factors.FundRow, error)

	// StockHistory returns a code's stock rows within tr, oldest first.
	StockHistory(ctx context.Context, code string, tr TimeRange) ([]factors.StockRow, error)

	// FundHistory returns a code's fund rows within tr, oldest first.
	FundHistory(ctx context.Context, code string, tr TimeRange) ([]factors.FundRow, error)

	// PruneOlderThan deletes factor rows for trade dates strictly before
	// cutoff, keeping only the configured retention window.
	PruneOlderThan(ctx context.Context, cutoff tradedate.TradeDate) (int64, error)

	// HasComputedOn reports whether any row already exists for
	// (kind, trade_date), used for idempotent daily-compute skip checks.
	HasComputedOn(ctx context.Context, kind FactorKind, date tradedate.TradeDate) (bool, error)
}

// FactorKind discriminates which factor table HasComputedOn checks,
// avoiding a dependency on internal/domain/instrument for a two-value
// flag used only at the persistence boundary.
type FactorKind string

const (
	KindStockFactors FactorKind = "stock"
	KindFundFactors  FactorKind = "fund"
)

// RecommendationRepo persists recommendation records and their forward
// performance evaluations.
type RecommendationRepo interface {
	// Insert records a freshly generated recommendation. A duplicate
	// (code, rec_type, rec_date) is rejected by the unique constraint;
	// callers should treat that as "already recommended today".
	Insert(ctx context.Context, rec recommendation.Record) error

	// ListPending returns recommendations whose evaluation_status is not
	// yet Closed, for the performance tracker to sweep.
	ListPending(ctx context.Context, limit int) ([]recommendation.Record, error)

	// UpdateEvaluation writes back the 7d/30d check results and advances
	// evaluation_status; the update is idempotent for a given check_date.
	UpdateEvaluation(ctx context.Context, rec recommendation.Record) error

	// ListByCode returns a code's recommendation history, most recent first.
	ListByCode(ctx context.Context, code string, rt recommendation.RecType, limit int) ([]recommendation.Record, error)

	// ExistsToday reports whether code already has a recommendation of
	// type rt recorded for date, used to dedupe within a run.
	ExistsToday(ctx context.Context, code string, rt recommendation.RecType, date tradedate.TradeDate) (bool, error)

	// AggregateStats returns hit-rate and average-return statistics for
	// closed recommendations within tr, grouped by rec_type.
	AggregateStats(ctx context.Context, tr TimeRange) (map[recommendation.RecType]EvaluationStats, error)
}

// EvaluationStats summarizes closed-out recommendation performance.
type EvaluationStats struct {
	Count        int64   `json:"count"`
	HitTargetPct float64 `json:"hit_target_pct"`
	HitStopPct   float64 `json:"hit_stop_pct"`
	AvgReturn    float64 `json:"avg_return"`
}

// Repository aggregates the persistence interfaces the core depends on.
type Repository struct {
	Factors         FactorRepo
	Recommendations RecommendationRepo
}

// HealthCheck reports persistence-layer liveness for the CLI's health command.
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth is implemented by the concrete storage backend.
type RepositoryHealth interface {
	Health(ctx context.Context) HealthCheck
	Ping(ctx context.Context) error
	Stats(ctx context.Context) map[string]interface{}
}
