package perf

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eastmoney-sub000/factord/internal/config"
	"github.com/eastmoney-sub000/factord/internal/domain/recommendation"
	"github.com/eastmoney-sub000/factord/internal/domain/tradedate"
	"github.com/eastmoney-sub000/factord/internal/persistence"
	"github.com/eastmoney-sub000/factord/internal/upstream"
)

type mockRecsRepo struct {
	mock.Mock
}

func (m *mockRecsRepo) Insert(ctx context.Context, rec recommendation.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}
func (m *mockRecsRepo) ListPending(ctx context.Context, limit int) ([]recommendation.Record, error) {
	args := m.Called(ctx, limit)
	recs, _ := args.Get(0).([]recommendation.Record)
	return recs, args.Error(1)
}
func (m *mockRecsRepo) UpdateEvaluation(ctx context.Context, rec recommendation.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}
func (m *mockRecsRepo) ListByCode(ctx context.Context, code string, rt recommendation.RecType, limit int) ([]recommendation.Record, error) {
	return nil, nil
}
func (m *mockRecsRepo) ExistsToday(ctx context.Context, code string, rt recommendation.RecType, date tradedate.TradeDate) (bool, error) {
	return false, nil
}
func (m *mockRecsRepo) AggregateStats(ctx context.Context, tr persistence.TimeRange) (map[recommendation.RecType]persistence.EvaluationStats, error) {
	return nil, nil
}

var _ persistence.RecommendationRepo = (*mockRecsRepo)(nil)

func testProvidersConfig() *config.ProvidersConfig {
	return &config.ProvidersConfig{
		Providers: map[string]config.ProviderConfig{
			"akshare": {
				Host: "akshare", TierRawLimit: 2000, SafetyMargin: 0.85, Burst: 10,
				DailyBudget: 100000, BaseURL: "http://example.invalid", Enabled: true,
				Circuit: config.CircuitConfig{FailureThreshold: 5, WindowSecs: 60, OpenDurationMS: 30000, TimeoutMS: 5000},
			},
		},
		Budget: config.BudgetConfig{WarnThreshold: 0.8, ResetHour: 0},
		Global: config.GlobalConfig{MaxConcurrentPerHost: 4, UserAgent: "factord-test"},
	}
}

func ptr(v float64) *float64 { return &v }

// recDate8DaysAgo returns a trade date 8 trade-days before today, well
// past the 7d evaluation horizon but short of the 30d one.
func recDate8DaysAgo(t *testing.T) tradedate.TradeDate {
	d, err := tradedate.AddTradeDays(tradedate.Today(), -8)
	require.NoError(t, err)
	return d
}

func TestTracker_RunOnceEvaluates7dAndHitsTarget(t *testing.T) {
	cfg := testProvidersConfig()
	sub := upstream.New(cfg)
	sub.RegisterProvider("akshare", map[string]upstream.Fn{
		"stock_history": func(ctx context.Context, args upstream.Args) (*upstream.Table, error) {
			end := args["end"].(string)
			return &upstream.Table{Rows: []upstream.Row{
				{"trade_date": end, "close": 11.0},
			}}, nil
		},
	})

	recDate := recDate8DaysAgo(t)
	rec := recommendation.Record{
		Code: "600519", RecType: recommendation.ShortStock, RecDate: string(recDate),
		RecPrice: ptr(10.0), RecScore: 80, Status: recommendation.Pending,
	}

	recs := &mockRecsRepo{}
	recs.On("ListPending", mock.Anything, listBatchLimit).Return([]recommendation.Record{rec}, nil)
	recs.On("UpdateEvaluation", mock.Anything, mock.MatchedBy(func(r recommendation.Record) bool {
		return r.Code == "600519" && r.Status == recommendation.Evaluated7d && r.HitTarget && r.Return7d != nil
	})).Return(nil)

	tr := New(recs, sub, "akshare")
	n7, n30, err := tr.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n7)
	assert.Equal(t, 0, n30)
	recs.AssertExpectations(t)
}

func TestTracker_RunOnceSkipsRecordsNotYetAtHorizon(t *testing.T) {
	cfg := testProvidersConfig()
	sub := upstream.New(cfg)

	recDate := tradedate.Today()
	rec := recommendation.Record{
		Code: "600519", RecType: recommendation.ShortStock, RecDate: string(recDate),
		RecPrice: ptr(10.0), Status: recommendation.Pending,
	}

	recs := &mockRecsRepo{}
	recs.On("ListPending", mock.Anything, listBatchLimit).Return([]recommendation.Record{rec}, nil)

	tr := New(recs, sub, "akshare")
	n7, n30, err := tr.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n7)
	assert.Equal(t, 0, n30)
	recs.AssertNotCalled(t, "UpdateEvaluation", mock.Anything, mock.Anything)
}

func TestTracker_RunOnce30dClosesAndSetsFinalReturn(t *testing.T) {
	cfg := testProvidersConfig()
	sub := upstream.New(cfg)
	sub.RegisterProvider("akshare", map[string]upstream.Fn{
		"stock_history": func(ctx context.Context, args upstream.Args) (*upstream.Table, error) {
			end := args["end"].(string)
			return &upstream.Table{Rows: []upstream.Row{{"trade_date": end, "close": 9.0}}}, nil
		},
	})

	recDate, err := tradedate.AddTradeDays(tradedate.Today(), -31)
	require.NoError(t, err)
	check7 := "2026-01-01"
	rec := recommendation.Record{
		Code: "600519", RecType: recommendation.ShortStock, RecDate: string(recDate),
		RecPrice: ptr(10.0), Status: recommendation.Evaluated7d,
		CheckDate7d: &check7, Return7d: ptr(1.0),
	}

	recs := &mockRecsRepo{}
	recs.On("ListPending", mock.Anything, listBatchLimit).Return([]recommendation.Record{rec}, nil)
	recs.On("UpdateEvaluation", mock.Anything, mock.MatchedBy(func(r recommendation.Record) bool {
		return r.Status == recommendation.Closed && r.HitStop && r.FinalReturn != nil
	})).Return(nil)

	tr := New(recs, sub, "akshare")
	_, n30, err := tr.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n30)
	recs.AssertExpectations(t)
}
