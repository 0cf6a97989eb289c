// Package compute implements the Daily Computer: for a given
// (instrument kind, trade date) it ensures every instrument in the
// active universe has a FactorRow, or a recorded failure, in the
// Factor Store.
package compute

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/eastmoney-sub000/factord/internal/compute/fundfactors"
	"github.com/eastmoney-sub000/factord/internal/compute/stockfactors"
	"github.com/eastmoney-sub000/factord/internal/domain/factors"
	"github.com/eastmoney-sub000/factord/internal/domain/tradedate"
	"github.com/eastmoney-sub000/factord/internal/persistence"
	"github.com/eastmoney-sub000/factord/internal/scoring"
	"github.com/eastmoney-sub000/factord/internal/store"
	"github.com/eastmoney-sub000/factord/internal/upstream"
)

// BatchSize and WorkerPoolSize match daily_computer.py's
// BATCH_SIZE/MAX_WORKERS exactly.
const (
	BatchSize      = 100
	WorkerPoolSize = 4
	KeepDates      = 30
)

// ErrAlreadyRunning is returned instead of starting a second concurrent
// run for the same instrument kind.
var ErrAlreadyRunning = errors.New("compute: a run is already in flight for this instrument kind")

// FundUniverse selects which funds the Daily Computer enumerates.
type FundUniverse string

const (
	FundUniverseTracked    FundUniverse = "tracked"
	FundUniverseMarket     FundUniverse = "market"
	FundUniverseMarketOTC  FundUniverse = "market_otc"
	FundUniverseMarketETF  FundUniverse = "market_etf"
)

// Computer runs the Daily Computer for stocks or funds against one
// configured upstream provider.
type Computer struct {
	sub      *upstream.Substrate
	store    *store.Store
	provider string

	stockRunning atomic.Bool
	fundRunning  atomic.Bool
}

// New builds a Computer wired to sub for universe/factor calls and
// store for persistence.
func New(sub *upstream.Substrate, st *store.Store, provider string) *Computer {
	return &Computer{sub: sub, store: st, provider: provider}
}

// RunStock executes the Daily Computer for the stock universe. trade
// is the trade date to compute for; if empty, the latest trade date is
// resolved from upstream, falling back to today's calendar date.
func (c *Computer) RunStock(ctx context.Context, trade tradedate.TradeDate) (*Progress, error) {
	if !c.stockRunning.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer c.stockRunning.Store(false)

	date, err := c.resolveTradeDate(ctx, trade)
	if err != nil {
		return nil, fmt.Errorf("resolve trade date: %w", err)
	}

	codes, err := c.enumerateStocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate stock universe: %w", err)
	}

	progress := newProgress(len(codes))
	batches := chunk(codes, BatchSize)
	for i, batch := range batches {
		progress.startBatch(i + 1)
		rows := c.computeStockBatch(ctx, batch, date, progress)
		if len(rows) > 0 {
			if err := c.store.PutStock(ctx, rows); err != nil {
				progress.finish(StatusFailed)
				return progress, fmt.Errorf("persist stock batch %d: %w", i+1, err)
			}
		}
	}

	c.store.ClearForDate(persistence.KindStockFactors, date)
	if _, err := c.store.Prune(ctx, KeepDates); err != nil {
		log.Warn().Err(err).Msg("stock factor retention prune failed")
	}
	progress.finish(StatusCompleted)
	return progress, nil
}

// RunFund executes the Daily Computer for the given fund universe.
func (c *Computer) RunFund(ctx context.Context, trade tradedate.TradeDate, universe FundUniverse) (*Progress, error) {
	if !c.fundRunning.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer c.fundRunning.Store(false)

	date, err := c.resolveTradeDate(ctx, trade)
	if err != nil {
		return nil, fmt.Errorf("resolve trade date: %w", err)
	}

	codes, err := c.enumerateFunds(ctx, universe)
	if err != nil {
		return nil, fmt.Errorf("enumerate fund universe: %w", err)
	}

	progress := newProgress(len(codes))
	batches := chunk(codes, BatchSize)
	for i, batch := range batches {
		progress.startBatch(i + 1)
		rows := c.computeFundBatch(ctx, batch, date, progress)
		if len(rows) > 0 {
			if err := c.store.PutFund(ctx, rows); err != nil {
				progress.finish(StatusFailed)
				return progress, fmt.Errorf("persist fund batch %d: %w", i+1, err)
			}
		}
	}

	c.store.ClearForDate(persistence.KindFundFactors, date)
	if _, err := c.store.Prune(ctx, KeepDates); err != nil {
		log.Warn().Err(err).Msg("fund factor retention prune failed")
	}
	progress.finish(StatusCompleted)
	return progress, nil
}

func (c *Computer) resolveTradeDate(ctx context.Context, trade tradedate.TradeDate) (tradedate.TradeDate, error) {
	if trade != "" {
		return trade, nil
	}
	table, err := c.sub.Call(ctx, c.provider, "latest_trade_date", upstream.Args{}, 5*time.Second)
	if err != nil || table == nil || len(table.Rows) == 0 {
		return tradedate.Today(), nil
	}
	raw, ok := table.Rows[0]["trade_date"].(string)
	if !ok || raw == "" {
		return tradedate.Today(), nil
	}
	parsed, err := tradedate.FromWire(raw)
	if err != nil {
		return tradedate.Today(), nil
	}
	return parsed, nil
}

func (c *Computer) enumerateStocks(ctx context.Context) ([]string, error) {
	table, err := c.sub.Call(ctx, c.provider, "stock_list", upstream.Args{}, 15*time.Second)
	if err != nil {
		return nil, err
	}
	return codesFromTable(table), nil
}

func (c *Computer) enumerateFunds(ctx context.Context, universe FundUniverse) ([]string, error) {
	table, err := c.sub.Call(ctx, c.provider, "fund_list", upstream.Args{"universe": string(universe)}, 15*time.Second)
	if err != nil {
		return nil, err
	}
	return codesFromTable(table), nil
}

func codesFromTable(t *upstream.Table) []string {
	if t == nil {
		return nil
	}
	codes := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		if code, ok := row["code"].(string); ok && code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}

func chunk(codes []string, size int) [][]string {
	var batches [][]string
	for i := 0; i < len(codes); i += size {
		end := i + size
		if end > len(codes) {
			end = len(codes)
		}
		batches = append(batches, codes[i:end])
	}
	return batches
}

// computeStockBatch runs the per-instrument pipeline with a bounded
// worker pool of size WorkerPoolSize, collecting completed rows; a
// single instrument's failure is recorded in progress and otherwise
// ignored.
func (c *Computer) computeStockBatch(ctx context.Context, codes []string, date tradedate.TradeDate, progress *Progress) []factors.StockRow {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		rows []factors.StockRow
		sem  = make(chan struct{}, WorkerPoolSize)
	)
	for _, code := range codes {
		code := code
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			row, err := c.computeStockRow(ctx, code, date)
			if err != nil {
				progress.recordFailure()
				log.Warn().Str("code", code).Err(err).Msg("stock factor computation failed")
				return
			}
			mu.Lock()
			rows = append(rows, row)
			mu.Unlock()
			progress.recordOK()
		}()
	}
	wg.Wait()
	return rows
}

func (c *Computer) computeFundBatch(ctx context.Context, codes []string, date tradedate.TradeDate, progress *Progress) []factors.FundRow {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		rows []factors.FundRow
		sem  = make(chan struct{}, WorkerPoolSize)
	)
	for _, code := range codes {
		code := code
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			row, err := c.computeFundRow(ctx, code, date)
			if err != nil {
				progress.recordFailure()
				log.Warn().Str("code", code).Err(err).Msg("fund factor computation failed")
				return
			}
			mu.Lock()
			rows = append(rows, row)
			mu.Unlock()
			progress.recordOK()
		}()
	}
	wg.Wait()
	return rows
}

func (c *Computer) computeStockRow(ctx context.Context, code string, date tradedate.TradeDate) (factors.StockRow, error) {
	technical, err := stockfactors.ComputeTechnical(ctx, c.sub, c.provider, code, date)
	if err != nil {
		return factors.StockRow{}, err
	}
	fundamental, err := stockfactors.ComputeFundamental(ctx, c.sub, c.provider, code, date)
	if err != nil {
		return factors.StockRow{}, err
	}
	sentiment, err := stockfactors.ComputeSentiment(ctx, c.sub, c.provider, code, date)
	if err != nil {
		return factors.StockRow{}, err
	}

	row := factors.StockRow{
		Code:                 code,
		TradeDate:            string(date),
		Price:                technical.Price,
		ConsolidationScore:   technical.ConsolidationScore,
		VolumePrecursor:      technical.VolumePrecursor,
		MAConvergence:        technical.MAConvergence,
		RSI:                  technical.RSI,
		MACDSignal:           technical.MACDSignal,
		BollingerPosition:    technical.BollingerPosition,
		ROE:                  fundamental.ROE,
		ROEYoy:               fundamental.ROEYoy,
		GrossMargin:          fundamental.GrossMargin,
		GrossMarginStability: fundamental.GrossMarginStability,
		OCFToProfit:          fundamental.OCFToProfit,
		DebtRatio:            fundamental.DebtRatio,
		RevenueGrowthYoy:     fundamental.RevenueGrowthYoy,
		ProfitGrowthYoy:      fundamental.ProfitGrowthYoy,
		RevenueCAGR3y:        fundamental.RevenueCAGR3y,
		ProfitCAGR3y:         fundamental.ProfitCAGR3y,
		PEGRatio:             fundamental.PEGRatio,
		PEPercentile:         fundamental.PEPercentile,
		PBPercentile:         fundamental.PBPercentile,
		MainInflow5d:         sentiment.MainInflow5d,
		MainInflowTrend:      sentiment.MainInflowTrend,
		NorthInflow5d:        sentiment.NorthInflow5d,
		RetailOutflowRatio:   sentiment.RetailOutflowRatio,
		ComputedAt:           time.Now().UTC(),
	}

	shortScore := scoring.ShortTermStock(row)
	longScore := scoring.LongTermStock(row)
	row.ShortTermScore = &shortScore
	row.LongTermScore = &longScore
	return row, nil
}

func (c *Computer) computeFundRow(ctx context.Context, code string, date tradedate.TradeDate) (factors.FundRow, error) {
	performance, navPoints, err := fundfactors.ComputePerformance(ctx, c.sub, c.provider, code, date)
	if err != nil {
		return factors.FundRow{}, err
	}
	risk := fundfactors.ComputeRisk(navPoints)
	manager, err := fundfactors.ComputeManager(ctx, c.sub, c.provider, code, date)
	if err != nil {
		return factors.FundRow{}, err
	}

	row := factors.FundRow{
		Code:                    code,
		TradeDate:               string(date),
		PrevNAV:                 performance.PrevNAV,
		Return1w:                performance.Return1w,
		Return1m:                performance.Return1m,
		Return3m:                performance.Return3m,
		Return6m:                performance.Return6m,
		Return1y:                performance.Return1y,
		ReturnRank1w:            performance.ReturnRank1w,
		ReturnRank1m:            performance.ReturnRank1m,
		Volatility20d:           risk.Volatility20d,
		Volatility60d:           risk.Volatility60d,
		Sharpe20d:               risk.Sharpe20d,
		Sharpe1y:                risk.Sharpe1y,
		Sortino1y:               risk.Sortino1y,
		Calmar1y:                risk.Calmar1y,
		MaxDrawdown1y:           risk.MaxDrawdown1y,
		AvgRecoveryDays:         risk.AvgRecoveryDays,
		ManagerTenureYears:      manager.ManagerTenureYears,
		ManagerAlphaBull:        manager.ManagerAlphaBull,
		ManagerAlphaBear:        manager.ManagerAlphaBear,
		StyleConsistency:        manager.StyleConsistency,
		FundSize:                manager.FundSize,
		HoldingsAvgROE:          manager.HoldingsAvgROE,
		HoldingsDiversification: manager.HoldingsDiversification,
		TurnoverRate:            manager.TurnoverRate,
		ComputedAt:              time.Now().UTC(),
	}

	shortScore := scoring.ShortTermFund(row)
	longScore := scoring.LongTermFund(row)
	row.ShortTermScore = &shortScore
	row.LongTermScore = &longScore
	return row, nil
}
