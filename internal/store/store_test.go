package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/eastmoney-sub000/factord/internal/domain/factors"
	"github.com/eastmoney-sub000/factord/internal/domain/tradedate"
	"github.com/eastmoney-sub000/factord/internal/persistence"
)

type mockFactorRepo struct {
	mock.Mock
}

func (m *mockFactorRepo) UpsertStock(ctx context.Context, rows []factors.StockRow) error {
	args := m.Called(ctx, rows)
	return args.Error(0)
}

func (m *mockFactorRepo) UpsertFund(ctx context.Context, rows []factors.FundRow) error {
	args := m.Called(ctx, rows)
	return args.Error(0)
}

func (m *mockFactorRepo) GetStock(ctx context.Context, code string, date tradedate.TradeDate) (*factors.StockRow, error) {
	args := m.Called(ctx, code, date)
	row, _ := args.Get(0).(*factors.StockRow)
	return row, args.Error(1)
}

func (m *mockFactorRepo) GetFund(ctx context.Context, code string, date tradedate.TradeDate) (*factors.FundRow, error) {
	args := m.Called(ctx, code, date)
	row, _ := args.Get(0).(*factors.FundRow)
	return row, args.Error(1)
}

func (m *mockFactorRepo) LatestStock(ctx context.Context, date tradedate.TradeDate) ([]factors.StockRow, error) {
	args := m.Called(ctx, date)
	rows, _ := args.Get(0).([]factors.StockRow)
	return rows, args.Error(1)
}

func (m *mockFactorRepo) LatestFund(ctx context.Context, date tradedate.TradeDate) ([]factors.FundRow, error) {
	args := m.Called(ctx, date)
	rows, _ := args.Get(0).([]factors.FundRow)
	return rows, args.Error(1)
}

func (m *mockFactorRepo) StockHistory(ctx context.Context, code string, tr persistence.TimeRange) ([]factors.StockRow, error) {
	args := m.Called(ctx, code, tr)
	rows, _ := args.Get(0).([]factors.StockRow)
	return rows, args.Error(1)
}

func (m *mockFactorRepo) FundHistory(ctx context.Context, code string, tr persistence.TimeRange) ([]factors.FundRow, error) {
	args := m.Called(ctx, code, tr)
	rows, _ := args.Get(0).([]factors.FundRow)
	return rows, args.Error(1)
}

func (m *mockFactorRepo) PruneOlderThan(ctx context.Context, cutoff tradedate.TradeDate) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockFactorRepo) HasComputedOn(ctx context.Context, kind persistence.FactorKind, date tradedate.TradeDate) (bool, error) {
	args := m.Called(ctx, kind, date)
	return args.Bool(0), args.Error(1)
}

var _ persistence.FactorRepo = (*mockFactorRepo)(nil)

func scorePtr(v float64) *float64 { return &v }

func TestStore_GetStockCachesAfterRepoMiss(t *testing.T) {
	repo := &mockFactorRepo{}
	date := tradedate.TradeDate("2026-07-30")
	row := factors.StockRow{Code: "600519", TradeDate: string(date), ShortTermScore: scorePtr(72.5)}
	repo.On("GetStock", mock.Anything, "600519", date).Return(&row, nil).Once()

	s := New(repo, time.Minute, nil)
	got, err := s.GetStock(context.Background(), "600519", date)
	assert.NoError(t, err)
	assert.Equal(t, &row, got)

	// Second call must be served from cache, not the repo again.
	got2, err := s.GetStock(context.Background(), "600519", date)
	assert.NoError(t, err)
	assert.Equal(t, &row, got2)
	repo.AssertNumberOfCalls(t, "GetStock", 1)
}

func TestStore_PutStockWarmsCache(t *testing.T) {
	repo := &mockFactorRepo{}
	date := tradedate.TradeDate("2026-07-30")
	rows := []factors.StockRow{{Code: "000001", TradeDate: string(date)}}
	repo.On("UpsertStock", mock.Anything, rows).Return(nil).Once()

	s := New(repo, time.Minute, nil)
	err := s.PutStock(context.Background(), rows)
	assert.NoError(t, err)

	got, err := s.GetStock(context.Background(), "000001", date)
	assert.NoError(t, err)
	assert.Equal(t, "000001", got.Code)
	repo.AssertNotCalled(t, "GetStock", mock.Anything, mock.Anything, mock.Anything)
}

func TestStore_TopNStockOrdersDescendingAndBreaksTiesByCode(t *testing.T) {
	repo := &mockFactorRepo{}
	date := tradedate.TradeDate("2026-07-30")
	rows := []factors.StockRow{
		{Code: "600519", ShortTermScore: scorePtr(80)},
		{Code: "000002", ShortTermScore: scorePtr(90)},
		{Code: "000001", ShortTermScore: scorePtr(90)},
		{Code: "300750", ShortTermScore: nil},
	}
	repo.On("LatestStock", mock.Anything, date).Return(rows, nil).Once()

	s := New(repo, time.Minute, nil)
	top, err := s.TopNStock(context.Background(), date, ShortTermScore, 0, 2)
	assert.NoError(t, err)
	assert.Len(t, top, 2)
	assert.Equal(t, "000001", top[0].Code)
	assert.Equal(t, "000002", top[1].Code)
}

func TestStore_ClearForDateInvalidatesOnlyMatchingKind(t *testing.T) {
	repo := &mockFactorRepo{}
	date := tradedate.TradeDate("2026-07-30")
	stockRows := []factors.StockRow{{Code: "600519", TradeDate: string(date)}}
	fundRows := []factors.FundRow{{Code: "510300", TradeDate: string(date)}}
	repo.On("UpsertStock", mock.Anything, stockRows).Return(nil)
	repo.On("UpsertFund", mock.Anything, fundRows).Return(nil)

	s := New(repo, time.Minute, nil)
	_ = s.PutStock(context.Background(), stockRows)
	_ = s.PutFund(context.Background(), fundRows)
	assert.Equal(t, 2, s.cache.Len())

	s.ClearForDate(persistence.KindStockFactors, date)
	assert.Equal(t, 1, s.cache.Len())
}

func TestStore_PruneDelegatesToRepoWithTradeDayCutoff(t *testing.T) {
	repo := &mockFactorRepo{}
	repo.On("PruneOlderThan", mock.Anything, mock.AnythingOfType("tradedate.TradeDate")).Return(int64(12), nil).Once()

	s := New(repo, time.Minute, nil)
	n, err := s.Prune(context.Background(), 30)
	assert.NoError(t, err)
	assert.Equal(t, int64(12), n)
}
