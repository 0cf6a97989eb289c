package scoring

import (
	"testing"

	"github.com/eastmoney-sub000/factord/internal/domain/factors"
)

func ptr(v float64) *float64 { return &v }

func TestLongTermStockQualityGateHardCaps(t *testing.T) {
	lowROE := 8.0
	row := factors.StockRow{
		ROE:              &lowROE,
		GrossMargin:      ptr(90),
		RevenueGrowthYoy: ptr(90),
		ProfitGrowthYoy:  ptr(90),
		RevenueCAGR3y:    ptr(90),
		ProfitCAGR3y:     ptr(90),
		PEGRatio:         ptr(0.3),
	}
	score := LongTermStock(row)
	if score > 30 {
		t.Fatalf("expected quality-gated score <= 30, got %v", score)
	}
}

func TestLongTermStockHighROENotCapped(t *testing.T) {
	highROE := 22.0
	row := factors.StockRow{
		ROE:              &highROE,
		GrossMargin:      ptr(40),
		RevenueGrowthYoy: ptr(20),
		ProfitGrowthYoy:  ptr(20),
		PEGRatio:         ptr(0.4),
	}
	score := LongTermStock(row)
	if score <= 30 {
		t.Fatalf("expected uncapped score above 30, got %v", score)
	}
}
