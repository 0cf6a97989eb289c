package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/eastmoney-sub000/factord/internal/domain/recommendation"
	"github.com/eastmoney-sub000/factord/internal/domain/tradedate"
	"github.com/eastmoney-sub000/factord/internal/persistence"
)

type recommendationRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRecommendationRepo creates a PostgreSQL-backed recommendation repository.
func NewRecommendationRepo(db *sqlx.DB, timeout time.Duration) persistence.RecommendationRepo {
	return &recommendationRepo{db: db, timeout: timeout}
}

func (r *recommendationRepo) Insert(ctx context.Context, rec recommendation.Record) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO recommendation_performance (
			code, rec_type, rec_date, rec_price, rec_score, target_return_pct, stop_loss_pct, evaluation_status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err := r.db.ExecContext(ctx, query,
		rec.Code, string(rec.RecType), rec.RecDate, rec.RecPrice, rec.RecScore,
		rec.TargetReturnPct, rec.StopLossPct, string(recommendation.Pending))
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate recommendation for %s/%s/%s: %w", rec.Code, rec.RecType, rec.RecDate, err)
		}
		return fmt.Errorf("insert recommendation: %w", err)
	}
	return nil
}

func (r *recommendationRepo) ListPending(ctx context.Context, limit int) ([]recommendation.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT code, rec_type, rec_date, rec_price, rec_score, target_return_pct, stop_loss_pct,
			check_date_7d, price_7d, return_7d, check_date_30d, price_30d, return_30d,
			hit_target, hit_stop, final_return, evaluation_status, created_at, updated_at
		FROM recommendation_performance WHERE evaluation_status <> $1 ORDER BY rec_date ASC LIMIT $2`,
		string(recommendation.Closed), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending recommendations: %w", err)
	}
	defer rows.Close()

	var out []recommendation.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (r *recommendationRepo) UpdateEvaluation(ctx context.Context, rec recommendation.Record) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		UPDATE recommendation_performance SET
			check_date_7d = $1, price_7d = $2, return_7d = $3,
			check_date_30d = $4, price_30d = $5, return_30d = $6,
			hit_target = $7, hit_stop = $8, final_return = $9,
			evaluation_status = $10, updated_at = now()
		WHERE code = $11 AND rec_type = $12 AND rec_date = $13`

	res, err := r.db.ExecContext(ctx, query,
		rec.CheckDate7d, rec.Price7d, rec.Return7d,
		rec.CheckDate30d, rec.Price30d, rec.Return30d,
		rec.HitTarget, rec.HitStop, rec.FinalReturn,
		string(rec.Status), rec.Code, string(rec.RecType), rec.RecDate)
	if err != nil {
		return fmt.Errorf("update recommendation evaluation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("no recommendation found for %s/%s/%s", rec.Code, rec.RecType, rec.RecDate)
	}
	return nil
}

func (r *recommendationRepo) ListByCode(ctx context.Context, code string, rt recommendation.RecType, limit int) ([]recommendation.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT code, rec_type, rec_date, rec_price, rec_score, target_return_pct, stop_loss_pct,
			check_date_7d, price_7d, return_7d, check_date_30d, price_30d, return_30d,
			hit_target, hit_stop, final_return, evaluation_status, created_at, updated_at
		FROM recommendation_performance WHERE code = $1 AND rec_type = $2 ORDER BY rec_date DESC LIMIT $3`,
		code, string(rt), limit)
	if err != nil {
		return nil, fmt.Errorf("list recommendations by code: %w", err)
	}
	defer rows.Close()

	var out []recommendation.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (r *recommendationRepo) ExistsToday(ctx context.Context, code string, rt recommendation.RecType, date tradedate.TradeDate) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var exists bool
	err := r.db.QueryRowxContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM recommendation_performance WHERE code = $1 AND rec_type = $2 AND rec_date = $3)`,
		code, string(rt), date.Wire()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check existing recommendation: %w", err)
	}
	return exists, nil
}

func (r *recommendationRepo) AggregateStats(ctx context.Context, tr persistence.TimeRange) (map[recommendation.RecType]persistence.EvaluationStats, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT rec_type,
			COUNT(*) AS cnt,
			AVG(CASE WHEN hit_target THEN 1.0 ELSE 0.0 END) AS hit_target_pct,
			AVG(CASE WHEN hit_stop THEN 1.0 ELSE 0.0 END) AS hit_stop_pct,
			AVG(COALESCE(final_return, 0)) AS avg_return
		FROM recommendation_performance
		WHERE evaluation_status = $1 AND rec_date BETWEEN $2 AND $3
		GROUP BY rec_type`,
		string(recommendation.Closed), tr.From.Wire(), tr.To.Wire())
	if err != nil {
		return nil, fmt.Errorf("aggregate recommendation stats: %w", err)
	}
	defer rows.Close()

	out := make(map[recommendation.RecType]persistence.EvaluationStats)
	for rows.Next() {
		var rt string
		var stats persistence.EvaluationStats
		if err := rows.Scan(&rt, &stats.Count, &stats.HitTargetPct, &stats.HitStopPct, &stats.AvgReturn); err != nil {
			return nil, fmt.Errorf("scan aggregate stats: %w", err)
		}
		out[recommendation.RecType(rt)] = stats
	}
	return out, rows.Err()
}

func scanRecord(rows *sqlx.Rows) (*recommendation.Record, error) {
	var rec recommendation.Record
	var recType string
	var status string
	err := rows.Scan(
		&rec.Code, &recType, &rec.RecDate, &rec.RecPrice, &rec.RecScore, &rec.TargetReturnPct, &rec.StopLossPct,
		&rec.CheckDate7d, &rec.Price7d, &rec.Return7d, &rec.CheckDate30d, &rec.Price30d, &rec.Return30d,
		&rec.HitTarget, &rec.HitStop, &rec.FinalReturn, &status, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan recommendation record: %w", err)
	}
	rec.RecType = recommendation.RecType(recType)
	rec.Status = recommendation.EvaluationStatus(status)
	return &rec, nil
}
