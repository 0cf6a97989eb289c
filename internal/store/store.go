// Package store implements the Factor Store: a cache-through facade
// over internal/persistence.FactorRepo, fronted by an in-process TTL
// cache. A Redis client can be handed to New, but no Store method reads
// or writes through it; caching is in-process only.
package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eastmoney-sub000/factord/internal/domain/factors"
	"github.com/eastmoney-sub000/factord/internal/domain/tradedate"
	"github.com/eastmoney-sub000/factord/internal/persistence"
	"github.com/eastmoney-sub000/factord/internal/store/ttlcache"
)

// Store is the Factor Store: a Postgres-backed repository fronted by
// an in-process TTL cache. The redis field is held but not used.
type Store struct {
	repo  persistence.FactorRepo
	cache *ttlcache.Cache
	redis *redis.Client
}

// New builds a Store over repo with the given cache TTL. redisClient
// may be nil; either way the store caches only in process.
func New(repo persistence.FactorRepo, cacheTTL time.Duration, redisClient *redis.Client) *Store {
	return &Store{repo: repo, cache: ttlcache.New(cacheTTL), redis: redisClient}
}

func stockKey(code string, date tradedate.TradeDate) string {
	return fmt.Sprintf("stock:%s:%s", date.Wire(), code)
}

func fundKey(code string, date tradedate.TradeDate) string {
	return fmt.Sprintf("fund:%s:%s", date.Wire(), code)
}

// PutStock upserts a batch of stock factor rows, last-writer-wins,
// keyed by (code, trade_date). It is safe under concurrent callers.
func (s *Store) PutStock(ctx context.Context, rows []factors.StockRow) error {
	if err := s.repo.UpsertStock(ctx, rows); err != nil {
		return fmt.Errorf("put stock factors: %w", err)
	}
	for _, row := range rows {
		s.cache.Set(stockKey(row.Code, tradedate.TradeDate(row.TradeDate)), row)
	}
	return nil
}

// PutFund upserts a batch of fund factor rows.
func (s *Store) PutFund(ctx context.Context, rows []factors.FundRow) error {
	if err := s.repo.UpsertFund(ctx, rows); err != nil {
		return fmt.Errorf("put fund factors: %w", err)
	}
	for _, row := range rows {
		s.cache.Set(fundKey(row.Code, tradedate.TradeDate(row.TradeDate)), row)
	}
	return nil
}

// GetStock is a cache-through read for a single stock factor row.
func (s *Store) GetStock(ctx context.Context, code string, date tradedate.TradeDate) (*factors.StockRow, error) {
	if v, ok := s.cache.Get(stockKey(code, date)); ok {
		row := v.(factors.StockRow)
		return &row, nil
	}
	row, err := s.repo.GetStock(ctx, code, date)
	if err != nil {
		return nil, fmt.Errorf("get stock factor: %w", err)
	}
	if row != nil {
		s.cache.Set(stockKey(code, date), *row)
	}
	return row, nil
}

// GetFund is a cache-through read for a single fund factor row.
func (s *Store) GetFund(ctx context.Context, code string, date tradedate.TradeDate) (*factors.FundRow, error) {
	if v, ok := s.cache.Get(fundKey(code, date)); ok {
		row := v.(factors.FundRow)
		return &row, nil
	}
	row, err := s.repo.GetFund(ctx, code, date)
	if err != nil {
		return nil, fmt.Errorf("get fund factor: %w", err)
	}
	if row != nil {
		s.cache.Set(fundKey(code, date), *row)
	}
	return row, nil
}

// ScoreField selects which composite score top_n ranks by.
type ScoreField int

const (
	ShortTermScore ScoreField = iota
	LongTermScore
)

// TopNStock returns up to n stock rows for date, ordered by scoreField
// descending (tie-break by code ascending), restricted to
// score >= minScore. It reads only — it never computes.
func (s *Store) TopNStock(ctx context.Context, date tradedate.TradeDate, scoreField ScoreField, minScore float64, n int) ([]factors.StockRow, error) {
	rows, err := s.repo.LatestStock(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("top_n stock: %w", err)
	}
	filtered := rows[:0]
	for _, r := range rows {
		score := scoreOfStock(r, scoreField)
		if score != nil && *score >= minScore {
			filtered = append(filtered, r)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		si, sj := scoreOfStock(filtered[i], scoreField), scoreOfStock(filtered[j], scoreField)
		if *si != *sj {
			return *si > *sj
		}
		return filtered[i].Code < filtered[j].Code
	})
	if n > 0 && len(filtered) > n {
		filtered = filtered[:n]
	}
	return filtered, nil
}

// TopNFund is TopNStock for the fund universe.
func (s *Store) TopNFund(ctx context.Context, date tradedate.TradeDate, scoreField ScoreField, minScore float64, n int) ([]factors.FundRow, error) {
	rows, err := s.repo.LatestFund(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("top_n fund: %w", err)
	}
	filtered := rows[:0]
	for _, r := range rows {
		score := scoreOfFund(r, scoreField)
		if score != nil && *score >= minScore {
			filtered = append(filtered, r)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		si, sj := scoreOfFund(filtered[i], scoreField), scoreOfFund(filtered[j], scoreField)
		if *si != *sj {
			return *si > *sj
		}
		return filtered[i].Code < filtered[j].Code
	})
	if n > 0 && len(filtered) > n {
		filtered = filtered[:n]
	}
	return filtered, nil
}

func scoreOfStock(r factors.StockRow, f ScoreField) *float64 {
	if f == LongTermScore {
		return r.LongTermScore
	}
	return r.ShortTermScore
}

func scoreOfFund(r factors.FundRow, f ScoreField) *float64 {
	if f == LongTermScore {
		return r.LongTermScore
	}
	return r.ShortTermScore
}

// ClearForDate invalidates every cached entry for a (kind, trade_date)
// pair, called by the Daily Computer on completion so the next read
// observes the fresh rows just persisted.
func (s *Store) ClearForDate(kind persistence.FactorKind, date tradedate.TradeDate) {
	prefix := "stock:" + date.Wire() + ":"
	if kind == persistence.KindFundFactors {
		prefix = "fund:" + date.Wire() + ":"
	}
	s.cache.InvalidatePrefix(prefix)
}

// Prune deletes factor rows older than the retention horizon, keeping
// only the most recent keepDates trade dates.
func (s *Store) Prune(ctx context.Context, keepDates int) (int64, error) {
	cutoff, err := tradedate.AddTradeDays(tradedate.Today(), -keepDates)
	if err != nil {
		return 0, fmt.Errorf("prune cutoff: %w", err)
	}
	n, err := s.repo.PruneOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune factors: %w", err)
	}
	return n, nil
}
