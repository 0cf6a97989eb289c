// Package recommend is the query-path component that turns ranked
// Factor Store rows into user-facing recommendations and records them
// for forward grading by the Performance Tracker.
package recommend

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/eastmoney-sub000/factord/internal/domain/factors"
	"github.com/eastmoney-sub000/factord/internal/domain/recommendation"
	"github.com/eastmoney-sub000/factord/internal/domain/tradedate"
	"github.com/eastmoney-sub000/factord/internal/persistence"
	"github.com/eastmoney-sub000/factord/internal/store"
)

// recordLimit caps how many of a query's results get written to the
// Performance Tracker.
const recordLimit = 5

// Annotator is the narrow interface the Explanation Annotator
// (internal/recommend/explain) satisfies. Explain must return exactly
// len(results) strings, best-effort; the engine never blocks on it and
// never lets an annotator error drop or reorder a row.
type Annotator interface {
	Explain(ctx context.Context, results []Result) []string
}

// Engine is the Recommendation Engine: it reads from the Factor Store,
// applies quality gates and user preferences, and records its output
// to the Performance Tracker. It holds no mutable state of its own.
type Engine struct {
	store     *store.Store
	recs      persistence.RecommendationRepo
	annotator Annotator
}

// New builds an Engine. annotator may be nil, in which case
// explanations are always the rule-based fallback built from key
// factors.
func New(st *store.Store, recs persistence.RecommendationRepo, annotator Annotator) *Engine {
	return &Engine{store: st, recs: recs, annotator: annotator}
}

// StockQuery parameterizes a stock recommendation query.
type StockQuery struct {
	RecType   recommendation.RecType // ShortStock or LongStock
	TradeDate tradedate.TradeDate
	MinScore  float64
	TopN      int
	Prefs     UserPreferences
}

// FundQuery parameterizes a fund recommendation query.
type FundQuery struct {
	RecType   recommendation.RecType // ShortFund or LongFund
	TradeDate tradedate.TradeDate
	MinScore  float64
	TopN      int
	Prefs     UserPreferences
}

// RecommendStock runs the full query-path algorithm against the
// stock universe.
func (e *Engine) RecommendStock(ctx context.Context, q StockQuery) ([]Result, error) {
	scoreField := store.ShortTermScore
	if q.RecType == recommendation.LongStock {
		scoreField = store.LongTermScore
	}

	rows, err := e.store.TopNStock(ctx, q.TradeDate, scoreField, q.MinScore, q.TopN*2)
	if err != nil {
		return nil, fmt.Errorf("recommend stock: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		score := scoreOfStockRow(row, q.RecType)
		if score == nil {
			continue
		}
		if q.RecType == recommendation.LongStock && !PassesLongStockQualityGate(row) {
			continue
		}
		if !passesStockPreferences(row, q.Prefs) {
			continue
		}
		adjusted := applyPreferredSectorBoost(*score, row.Industry, q.Prefs.PreferredSectors)

		var keyFactors []string
		if q.RecType == recommendation.LongStock {
			keyFactors = LongStockKeyFactors(row)
		} else {
			keyFactors = ShortStockKeyFactors(row)
		}

		results = append(results, Result{
			Code:       row.Code,
			Name:       row.Name,
			RecType:    q.RecType,
			Score:      adjusted,
			Confidence: bucketConfidence(adjusted),
			KeyFactors: keyFactors,
			Price:      row.Price,
		})
	}

	results = sortAndTruncate(results, q.TopN)
	e.attachExplanations(ctx, results)

	if err := e.record(ctx, results, q.TradeDate); err != nil {
		return results, err
	}
	return results, nil
}

// RecommendFund runs the full query-path algorithm against the fund
// universe.
func (e *Engine) RecommendFund(ctx context.Context, q FundQuery) ([]Result, error) {
	scoreField := store.ShortTermScore
	if q.RecType == recommendation.LongFund {
		scoreField = store.LongTermScore
	}

	rows, err := e.store.TopNFund(ctx, q.TradeDate, scoreField, q.MinScore, q.TopN*2)
	if err != nil {
		return nil, fmt.Errorf("recommend fund: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		score := scoreOfFundRow(row, q.RecType)
		if score == nil {
			continue
		}
		if !passesFundPreferences(row, q.Prefs) {
			continue
		}
		adjusted := applyPreferredSectorBoost(*score, row.FundType, q.Prefs.PreferredFundTypes)

		var keyFactors []string
		if q.RecType == recommendation.LongFund {
			keyFactors = LongFundKeyFactors(row)
		} else {
			keyFactors = ShortFundKeyFactors(row)
		}

		results = append(results, Result{
			Code:       row.Code,
			Name:       row.Name,
			RecType:    q.RecType,
			Score:      adjusted,
			Confidence: bucketConfidence(adjusted),
			KeyFactors: keyFactors,
			Price:      row.PrevNAV,
		})
	}

	results = sortAndTruncate(results, q.TopN)
	e.attachExplanations(ctx, results)

	if err := e.record(ctx, results, q.TradeDate); err != nil {
		return results, err
	}
	return results, nil
}

func scoreOfStockRow(row factors.StockRow, rt recommendation.RecType) *float64 {
	if rt == recommendation.LongStock {
		return row.LongTermScore
	}
	return row.ShortTermScore
}

func scoreOfFundRow(row factors.FundRow, rt recommendation.RecType) *float64 {
	if rt == recommendation.LongFund {
		return row.LongTermScore
	}
	return row.ShortTermScore
}

func passesStockPreferences(row factors.StockRow, p UserPreferences) bool {
	if p.AvoidSTStocks && isSTName(row.Name) {
		return false
	}
	if containsAny(row.Industry, p.ExcludedSectors) {
		return false
	}
	if len(p.RequiredSectors) > 0 && !containsAny(row.Industry, p.RequiredSectors) {
		return false
	}
	if p.MinROE != nil && (row.ROE == nil || *row.ROE < *p.MinROE) {
		return false
	}
	// Raw PE isn't carried in the factor row, so a negative PEG ratio
	// (earnings growth and price moving in opposite directions) stands
	// in as the profitability proxy.
	if p.RequireProfitable && row.PEGRatio != nil && *row.PEGRatio < 0 {
		return false
	}
	return true
}

// passesFundPreferences gates on fund type and drawdown tolerance.
// PreferredFundTypes only boosts score (applyPreferredSectorBoost); it
// never excludes.
func passesFundPreferences(row factors.FundRow, p UserPreferences) bool {
	if len(p.ExcludedFundTypes) > 0 && containsAny(row.FundType, p.ExcludedFundTypes) {
		return false
	}
	if p.MaxDrawdownTol != nil && row.MaxDrawdown1y != nil && *row.MaxDrawdown1y < -(*p.MaxDrawdownTol) {
		return false
	}
	return true
}

func sortAndTruncate(results []Result, topN int) []Result {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Code < results[j].Code
	})
	if topN > 0 && len(results) > topN {
		results = results[:topN]
	}
	return results
}

// attachExplanations fills each result's Explanation best-effort: it
// tries the configured annotator first and falls back to a rule-based
// sentence built from key factors. It never removes or reorders
// results.
func (e *Engine) attachExplanations(ctx context.Context, results []Result) {
	var annotated []string
	if e.annotator != nil {
		annotated = e.annotator.Explain(ctx, results)
	}
	for i := range results {
		if i < len(annotated) && annotated[i] != "" {
			results[i].Explanation = annotated[i]
			continue
		}
		results[i].Explanation = ruleBasedExplanation(results[i])
	}
}

func ruleBasedExplanation(r Result) string {
	if len(r.KeyFactors) == 0 {
		return fmt.Sprintf("%s 综合评分 %.1f", r.Code, r.Score)
	}
	explanation := r.KeyFactors[0]
	for _, tag := range r.KeyFactors[1:] {
		explanation += "; " + tag
	}
	return explanation
}

// record writes up to the first recordLimit results to the
// Performance Tracker. ExistsToday dedupes within a run: a code
// already recommended today under this rec_type is skipped rather
// than erroring.
func (e *Engine) record(ctx context.Context, results []Result, date tradedate.TradeDate) error {
	limit := recordLimit
	if len(results) < limit {
		limit = len(results)
	}
	for _, r := range results[:limit] {
		exists, err := e.recs.ExistsToday(ctx, r.Code, r.RecType, date)
		if err != nil {
			return fmt.Errorf("record recommendation: check exists: %w", err)
		}
		if exists {
			continue
		}
		target, stop := recommendation.TargetsFor(r.RecType)
		rec := recommendation.Record{
			Code:            r.Code,
			RecType:         r.RecType,
			RecDate:         string(date),
			RecPrice:        r.Price,
			RecScore:        r.Score,
			TargetReturnPct: target,
			StopLossPct:     stop,
			Status:          recommendation.Pending,
			CreatedAt:       time.Now().UTC(),
			UpdatedAt:       time.Now().UTC(),
		}
		if err := e.recs.Insert(ctx, rec); err != nil {
			return fmt.Errorf("record recommendation: insert %s: %w", r.Code, err)
		}
	}
	return nil
}
