package compute

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eastmoney-sub000/factord/internal/config"
	"github.com/eastmoney-sub000/factord/internal/domain/factors"
	"github.com/eastmoney-sub000/factord/internal/domain/tradedate"
	"github.com/eastmoney-sub000/factord/internal/persistence"
	"github.com/eastmoney-sub000/factord/internal/store"
	"github.com/eastmoney-sub000/factord/internal/upstream"
)

type memRepo struct {
	mu    sync.Mutex
	stock map[string]factors.StockRow
	fund  map[string]factors.FundRow
}

func newMemRepo() *memRepo {
	return &memRepo{stock: map[string]factors.StockRow{}, fund: map[string]factors.FundRow{}}
}

func (m *memRepo) UpsertStock(ctx context.Context, rows []factors.StockRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.stock[r.Code+"|"+r.TradeDate] = r
	}
	return nil
}

func (m *memRepo) UpsertFund(ctx context.Context, rows []factors.FundRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.fund[r.Code+"|"+r.TradeDate] = r
	}
	return nil
}

func (m *memRepo) GetStock(ctx context.Context, code string, date tradedate.TradeDate) (*factors.StockRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.stock[code+"|"+string(date)]; ok {
		return &r, nil
	}
	return nil, nil
}

func (m *memRepo) GetFund(ctx context.Context, code string, date tradedate.TradeDate) (*factors.FundRow, error) {
	return nil, nil
}

func (m *memRepo) LatestStock(ctx context.Context, date tradedate.TradeDate) ([]factors.StockRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []factors.StockRow
	for _, r := range m.stock {
		if r.TradeDate == string(date) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRepo) LatestFund(ctx context.Context, date tradedate.TradeDate) ([]factors.FundRow, error) {
	return nil, nil
}

func (m *memRepo) StockHistory(ctx context.Context, code string, tr persistence.TimeRange) ([]factors.StockRow, error) {
	return nil, nil
}

func (m *memRepo) FundHistory(ctx context.Context, code string, tr persistence.TimeRange) ([]factors.FundRow, error) {
	return nil, nil
}

func (m *memRepo) PruneOlderThan(ctx context.Context, cutoff tradedate.TradeDate) (int64, error) {
	return 0, nil
}

func (m *memRepo) HasComputedOn(ctx context.Context, kind persistence.FactorKind, date tradedate.TradeDate) (bool, error) {
	return false, nil
}

var _ persistence.FactorRepo = (*memRepo)(nil)

func testProvidersConfig() *config.ProvidersConfig {
	return &config.ProvidersConfig{
		Providers: map[string]config.ProviderConfig{
			"akshare": {
				Host:         "akshare",
				TierRawLimit: 2000,
				SafetyMargin: 0.85,
				Burst:        10,
				DailyBudget:  100000,
				BaseURL:      "http://example.invalid",
				Enabled:      true,
				Circuit: config.CircuitConfig{
					FailureThreshold: 5,
					WindowSecs:       60,
					OpenDurationMS:   30000,
					TimeoutMS:        5000,
				},
			},
		},
		Budget: config.BudgetConfig{WarnThreshold: 0.8, ResetHour: 0},
		Global: config.GlobalConfig{MaxConcurrentPerHost: 4, UserAgent: "factord-test"},
	}
}

func emptyTable() *upstream.Table { return &upstream.Table{} }

func TestComputer_RunStockPersistsBatchAndReportsProgress(t *testing.T) {
	cfg := testProvidersConfig()
	sub := upstream.New(cfg)

	sub.RegisterProvider("akshare", map[string]upstream.Fn{
		"latest_trade_date": func(ctx context.Context, args upstream.Args) (*upstream.Table, error) {
			return &upstream.Table{Rows: []upstream.Row{{"trade_date": "20260730"}}}, nil
		},
		"stock_list": func(ctx context.Context, args upstream.Args) (*upstream.Table, error) {
			return &upstream.Table{Rows: []upstream.Row{
				{"code": "600519"}, {"code": "000001"}, {"code": "300750"},
			}}, nil
		},
		"stock_history": func(ctx context.Context, args upstream.Args) (*upstream.Table, error) {
			rows := make([]upstream.Row, 0, 80)
			for i := 0; i < 80; i++ {
				rows = append(rows, upstream.Row{
					"trade_date": time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i).Format("20060102"),
					"open":       10.0,
					"high":       10.5,
					"low":        9.8,
					"close":      10.0 + float64(i)*0.01,
					"volume":     1000000.0,
				})
			}
			return &upstream.Table{Rows: rows}, nil
		},
		"financial_indicators": func(ctx context.Context, args upstream.Args) (*upstream.Table, error) {
			return &upstream.Table{Rows: []upstream.Row{
				{"report_date": "20260331", "roe": 18.5, "gross_margin": 45.0, "ocf_to_profit": 0.8, "debt_ratio": 40.0, "revenue_growth_yoy": 20.0, "profit_growth_yoy": 22.0, "pe": 25.0},
			}}, nil
		},
		"valuation_history": func(ctx context.Context, args upstream.Args) (*upstream.Table, error) { return emptyTable(), nil },
		"moneyflow": func(ctx context.Context, args upstream.Args) (*upstream.Table, error) {
			rows := make([]upstream.Row, 0, 10)
			for i := 0; i < 10; i++ {
				rows = append(rows, upstream.Row{
					"trade_date":  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i).Format("20060102"),
					"buy_lg_vol":  100.0,
					"sell_lg_vol": 80.0,
					"buy_elg_vol": 50.0,
					"sell_elg_vol": 30.0,
					"buy_sm_vol":  40.0,
					"sell_sm_vol": 60.0,
				})
			}
			return &upstream.Table{Rows: rows}, nil
		},
		"moneyflow_hsgt": func(ctx context.Context, args upstream.Args) (*upstream.Table, error) { return emptyTable(), nil },
	})

	repo := newMemRepo()
	st := store.New(repo, time.Minute, nil)
	c := New(sub, st, "akshare")

	progress, err := c.RunStock(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 3, progress.Total)
	assert.Equal(t, 3, progress.Completed)
	assert.Equal(t, 0, progress.Failed)
	assert.Equal(t, StatusCompleted, progress.Status)

	stored, err := repo.LatestStock(context.Background(), tradedate.TradeDate("2026-07-30"))
	require.NoError(t, err)
	assert.Len(t, stored, 3)
	for _, row := range stored {
		require.NotNil(t, row.ShortTermScore)
		require.NotNil(t, row.LongTermScore)
	}
}

func TestComputer_RunStockRejectsConcurrentRun(t *testing.T) {
	cfg := testProvidersConfig()
	sub := upstream.New(cfg)
	block := make(chan struct{})
	sub.RegisterProvider("akshare", map[string]upstream.Fn{
		"latest_trade_date": func(ctx context.Context, args upstream.Args) (*upstream.Table, error) {
			<-block
			return emptyTable(), nil
		},
		"stock_list": func(ctx context.Context, args upstream.Args) (*upstream.Table, error) { return emptyTable(), nil },
	})

	repo := newMemRepo()
	st := store.New(repo, time.Minute, nil)
	c := New(sub, st, "akshare")

	done := make(chan struct{})
	go func() {
		_, _ = c.RunStock(context.Background(), "")
		close(done)
	}()

	// Give the first run time to flip the in-flight flag before the
	// second call races it.
	time.Sleep(20 * time.Millisecond)
	_, err := c.RunStock(context.Background(), "")
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(block)
	<-done
}
