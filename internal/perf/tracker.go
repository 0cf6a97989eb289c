// Package perf implements the Performance Tracker: a daily pass over
// pending recommendations that fetches forward prices and grades each
// one against its target/stop-loss thresholds.
package perf

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/eastmoney-sub000/factord/internal/domain/recommendation"
	"github.com/eastmoney-sub000/factord/internal/domain/tradedate"
	"github.com/eastmoney-sub000/factord/internal/persistence"
	"github.com/eastmoney-sub000/factord/internal/upstream"
)

// evalHorizon7d and evalHorizon30d are the trade-day horizons at which
// a pending recommendation is graded.
const (
	evalHorizon7d  = 7
	evalHorizon30d = 30

	listBatchLimit = 500
)

// Tracker runs the daily evaluation pass over pending recommendations.
type Tracker struct {
	recs     persistence.RecommendationRepo
	sub      *upstream.Substrate
	provider string
}

// New builds a Tracker.
func New(recs persistence.RecommendationRepo, sub *upstream.Substrate, provider string) *Tracker {
	return &Tracker{recs: recs, sub: sub, provider: provider}
}

// RunOnce sweeps every pending recommendation once, advancing each
// past the 7d and/or 30d evaluation horizon it has crossed. It is
// idempotent: re-running after a record is already evaluated_30d (or
// closed) is a no-op for that record, since ListPending only returns
// records with evaluation_status != closed and each branch below
// checks the record's current status before writing.
func (t *Tracker) RunOnce(ctx context.Context) (evaluated7d, evaluated30d int, err error) {
	today := tradedate.Today()

	pending, err := t.recs.ListPending(ctx, listBatchLimit)
	if err != nil {
		return 0, 0, fmt.Errorf("performance tracker: list pending: %w", err)
	}

	for _, rec := range pending {
		recDate := tradedate.TradeDate(rec.RecDate)
		elapsed, err := tradedate.TradeDaysSince(recDate, today)
		if err != nil {
			log.Warn().Err(err).Str("code", rec.Code).Msg("performance tracker: bad rec_date, skipping")
			continue
		}

		updated := false

		if elapsed >= evalHorizon7d && rec.Status == recommendation.Pending {
			if err := t.evaluateAt(ctx, &rec, recDate, evalHorizon7d, false); err != nil {
				log.Warn().Err(err).Str("code", rec.Code).Msg("performance tracker: 7d evaluation failed")
			} else {
				evaluated7d++
				updated = true
			}
		}

		if elapsed >= evalHorizon30d && rec.Status != recommendation.Evaluated30d && rec.Status != recommendation.Closed {
			if err := t.evaluateAt(ctx, &rec, recDate, evalHorizon30d, true); err != nil {
				log.Warn().Err(err).Str("code", rec.Code).Msg("performance tracker: 30d evaluation failed")
			} else {
				evaluated30d++
				updated = true
			}
		}

		if updated {
			rec.UpdatedAt = time.Now().UTC()
			if err := t.recs.UpdateEvaluation(ctx, rec); err != nil {
				log.Warn().Err(err).Str("code", rec.Code).Msg("performance tracker: persist evaluation failed")
			}
		}
	}

	return evaluated7d, evaluated30d, nil
}

// evaluateAt fetches the close/NAV at recDate+horizon trade-days and
// grades the recommendation, mutating rec in place.
func (t *Tracker) evaluateAt(ctx context.Context, rec *recommendation.Record, recDate tradedate.TradeDate, horizon int, isFinal bool) error {
	if rec.RecPrice == nil {
		return fmt.Errorf("recommendation has no rec_price, cannot grade")
	}
	target, stop := recommendation.TargetsFor(rec.RecType)

	asOf, err := tradedate.AddTradeDays(recDate, horizon)
	if err != nil {
		return fmt.Errorf("advance trade date: %w", err)
	}

	price, err := t.fetchPriceOn(ctx, rec.Code, rec.RecType, asOf)
	if err != nil {
		return err
	}

	returnPct := (*price / *rec.RecPrice - 1) * 100

	dateStr := string(asOf)
	if horizon == evalHorizon7d {
		rec.CheckDate7d = &dateStr
		rec.Price7d = price
		rec.Return7d = &returnPct
		rec.Status = recommendation.NextStatus(rec.Status, recommendation.Evaluated7d)
	} else {
		rec.CheckDate30d = &dateStr
		rec.Price30d = price
		rec.Return30d = &returnPct
		rec.Status = recommendation.NextStatus(rec.Status, recommendation.Evaluated30d)
	}

	if returnPct >= target {
		rec.HitTarget = true
	}
	if returnPct <= stop {
		rec.HitStop = true
	}
	if isFinal {
		rec.FinalReturn = &returnPct
		rec.Status = recommendation.NextStatus(rec.Status, recommendation.Closed)
	}
	return nil
}

// fetchPriceOn resolves the close (stock) or NAV (fund) price for code
// on asOf, using the same history endpoints the factor computers use
// rather than a dedicated point-in-time lookup, since the upstream
// surface exposes history, not arbitrary single-date reads.
func (t *Tracker) fetchPriceOn(ctx context.Context, code string, rt recommendation.RecType, asOf tradedate.TradeDate) (*float64, error) {
	isFund := rt == recommendation.ShortFund || rt == recommendation.LongFund
	fn := "stock_history"
	dateField := "close"
	if isFund {
		fn = "fund_nav_history"
		dateField = "nav"
	}

	table, err := t.sub.Call(ctx, t.provider, fn, upstream.Args{
		"code": code,
		"end":  asOf.Wire(),
		"days": 5,
	}, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("fetch price history for %s: %w", code, err)
	}

	want := asOf.Wire()
	var best *float64
	var bestDate string
	for _, row := range table.Rows {
		d, _ := row["trade_date"].(string)
		if d == "" {
			continue
		}
		if d > want {
			continue
		}
		if d > bestDate {
			if v, ok := numericField(row, dateField); ok {
				best = &v
				bestDate = d
			}
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no price on or before %s for %s", want, code)
	}
	return best, nil
}

func numericField(row upstream.Row, field string) (float64, bool) {
	v, ok := row[field]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
