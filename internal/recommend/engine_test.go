package recommend

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eastmoney-sub000/factord/internal/domain/factors"
	"github.com/eastmoney-sub000/factord/internal/domain/recommendation"
	"github.com/eastmoney-sub000/factord/internal/domain/tradedate"
	"github.com/eastmoney-sub000/factord/internal/persistence"
	"github.com/eastmoney-sub000/factord/internal/store"
)

type memFactorRepo struct {
	mu    sync.Mutex
	stock map[string][]factors.StockRow
	fund  map[string][]factors.FundRow
}

func newMemFactorRepo() *memFactorRepo {
	return &memFactorRepo{stock: map[string][]factors.StockRow{}, fund: map[string][]factors.FundRow{}}
}

func (m *memFactorRepo) UpsertStock(ctx context.Context, rows []factors.StockRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.stock[r.TradeDate] = append(m.stock[r.TradeDate], r)
	}
	return nil
}
func (m *memFactorRepo) UpsertFund(ctx context.Context, rows []factors.FundRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.fund[r.TradeDate] = append(m.fund[r.TradeDate], r)
	}
	return nil
}
func (m *memFactorRepo) GetStock(ctx context.Context, code string, date tradedate.TradeDate) (*factors.StockRow, error) {
	return nil, nil
}
func (m *memFactorRepo) GetFund(ctx context.Context, code string, date tradedate.TradeDate) (*factors.FundRow, error) {
	return nil, nil
}
func (m *memFactorRepo) LatestStock(ctx context.Context, date tradedate.TradeDate) ([]factors.StockRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]factors.StockRow(nil), m.stock[string(date)]...), nil
}
func (m *memFactorRepo) LatestFund(ctx context.Context, date tradedate.TradeDate) ([]factors.FundRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]factors.FundRow(nil), m.fund[string(date)]...), nil
}
func (m *memFactorRepo) StockHistory(ctx context.Context, code string, tr persistence.TimeRange) ([]factors.StockRow, error) {
	return nil, nil
}
func (m *memFactorRepo) FundHistory(ctx context.Context, code string, tr persistence.TimeRange) ([]factors.FundRow, error) {
	return nil, nil
}
func (m *memFactorRepo) PruneOlderThan(ctx context.Context, cutoff tradedate.TradeDate) (int64, error) {
	return 0, nil
}
func (m *memFactorRepo) HasComputedOn(ctx context.Context, kind persistence.FactorKind, date tradedate.TradeDate) (bool, error) {
	return false, nil
}

var _ persistence.FactorRepo = (*memFactorRepo)(nil)

type mockRecsRepo struct {
	mock.Mock
}

func (m *mockRecsRepo) Insert(ctx context.Context, rec recommendation.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}
func (m *mockRecsRepo) ListPending(ctx context.Context, limit int) ([]recommendation.Record, error) {
	return nil, nil
}
func (m *mockRecsRepo) UpdateEvaluation(ctx context.Context, rec recommendation.Record) error {
	return nil
}
func (m *mockRecsRepo) ListByCode(ctx context.Context, code string, rt recommendation.RecType, limit int) ([]recommendation.Record, error) {
	return nil, nil
}
func (m *mockRecsRepo) ExistsToday(ctx context.Context, code string, rt recommendation.RecType, date tradedate.TradeDate) (bool, error) {
	args := m.Called(ctx, code, rt, date)
	return args.Bool(0), args.Error(1)
}
func (m *mockRecsRepo) AggregateStats(ctx context.Context, tr persistence.TimeRange) (map[recommendation.RecType]persistence.EvaluationStats, error) {
	return nil, nil
}

var _ persistence.RecommendationRepo = (*mockRecsRepo)(nil)

func ptr(v float64) *float64 { return &v }

func TestEngine_RecommendStockLongAppliesGateAndBoostAndRecords(t *testing.T) {
	repo := newMemFactorRepo()
	date := tradedate.TradeDate("2026-07-30")

	rows := []factors.StockRow{
		{
			Code: "600519", Name: "贵州茅台", TradeDate: string(date), Industry: "白酒",
			ROE: ptr(22.0), OCFToProfit: ptr(0.9), DebtRatio: ptr(30.0),
			ProfitCAGR3y: ptr(25.0), PEGRatio: ptr(0.8), PEPercentile: ptr(20.0),
			LongTermScore: ptr(80.0), Price: ptr(1700.0),
		},
		{
			Code: "000002", Name: "*ST某某", TradeDate: string(date), Industry: "地产",
			ROE: ptr(15.0), LongTermScore: ptr(90.0), Price: ptr(5.0),
		},
		{
			Code: "300750", Name: "宁德时代", TradeDate: string(date), Industry: "电池",
			ROE: ptr(5.0), LongTermScore: ptr(70.0), Price: ptr(200.0),
		},
	}
	require.NoError(t, repo.UpsertStock(context.Background(), rows))

	st := store.New(repo, time.Minute, nil)
	recs := &mockRecsRepo{}
	recs.On("ExistsToday", mock.Anything, "600519", recommendation.LongStock, date).Return(false, nil)
	recs.On("Insert", mock.Anything, mock.MatchedBy(func(r recommendation.Record) bool {
		return r.Code == "600519" && r.RecType == recommendation.LongStock
	})).Return(nil)

	eng := New(st, recs, nil)
	results, err := eng.RecommendStock(context.Background(), StockQuery{
		RecType:   recommendation.LongStock,
		TradeDate: date,
		MinScore:  60,
		TopN:      5,
		Prefs:     UserPreferences{AvoidSTStocks: true},
	})
	require.NoError(t, err)

	// 000002 excluded for being ST-named, 300750 excluded by the
	// quality gate (ROE<10) although its score clears MinScore.
	require.Len(t, results, 1)
	assert.Equal(t, "600519", results[0].Code)
	assert.Contains(t, results[0].KeyFactors, "ROE优秀 (22.0%)")
	assert.Equal(t, ConfidenceHigh, results[0].Confidence)
	assert.NotEmpty(t, results[0].Explanation)

	recs.AssertExpectations(t)
}

func TestEngine_RecommendStockReturnsEmptyWithoutComputing(t *testing.T) {
	repo := newMemFactorRepo()
	st := store.New(repo, time.Minute, nil)
	recs := &mockRecsRepo{}
	eng := New(st, recs, nil)

	results, err := eng.RecommendStock(context.Background(), StockQuery{
		RecType:   recommendation.ShortStock,
		TradeDate: "2026-07-30",
		TopN:      5,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
	recs.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestEngine_RecommendFundSkipsDuplicateExistingRecommendation(t *testing.T) {
	repo := newMemFactorRepo()
	date := tradedate.TradeDate("2026-07-30")
	require.NoError(t, repo.UpsertFund(context.Background(), []factors.FundRow{
		{Code: "510300", Name: "沪深300ETF", TradeDate: string(date), FundType: "ETF", ShortTermScore: ptr(85.0), PrevNAV: ptr(4.0)},
	}))

	st := store.New(repo, time.Minute, nil)
	recs := &mockRecsRepo{}
	recs.On("ExistsToday", mock.Anything, "510300", recommendation.ShortFund, date).Return(true, nil)

	eng := New(st, recs, nil)
	results, err := eng.RecommendFund(context.Background(), FundQuery{
		RecType:   recommendation.ShortFund,
		TradeDate: date,
		MinScore:  60,
		TopN:      5,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	recs.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	recs.AssertExpectations(t)
}

type stubAnnotator struct {
	out []string
}

func (s stubAnnotator) Explain(ctx context.Context, results []Result) []string { return s.out }

func TestEngine_AttachExplanationsFallsBackOnShortAnnotatorOutput(t *testing.T) {
	repo := newMemFactorRepo()
	date := tradedate.TradeDate("2026-07-30")
	require.NoError(t, repo.UpsertStock(context.Background(), []factors.StockRow{
		{Code: "600519", Name: "贵州茅台", TradeDate: string(date), ROE: ptr(22.0), ShortTermScore: ptr(80.0)},
		{Code: "000001", Name: "平安银行", TradeDate: string(date), ROE: ptr(18.0), ShortTermScore: ptr(79.0)},
	}))
	st := store.New(repo, time.Minute, nil)
	recs := &mockRecsRepo{}
	recs.On("ExistsToday", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	recs.On("Insert", mock.Anything, mock.Anything).Return(nil)

	eng := New(st, recs, stubAnnotator{out: []string{"overridden"}})
	results, err := eng.RecommendStock(context.Background(), StockQuery{
		RecType: recommendation.ShortStock, TradeDate: date, MinScore: 60, TopN: 5,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "overridden", results[0].Explanation)
	assert.NotEmpty(t, results[1].Explanation)
	assert.NotEqual(t, "overridden", results[1].Explanation)
}
