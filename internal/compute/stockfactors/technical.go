package stockfactors

import (
	"context"
	"time"

	"github.com/eastmoney-sub000/factord/internal/domain/safenum"
	"github.com/eastmoney-sub000/factord/internal/domain/tradedate"
	"github.com/eastmoney-sub000/factord/internal/upstream"
)

// Technical is the partial FactorRow contributed by price/volume history.
type Technical struct {
	ConsolidationScore *float64
	VolumePrecursor    *float64
	MAConvergence      *float64
	RSI                *float64
	MACDSignal         *float64
	BollingerPosition  *float64
	Price              *float64
}

// ComputeTechnical fetches recent daily bars through the substrate and
// derives the technical factor group. Missing history degrades to a
// partially- or fully-nil result rather than an error — a stock with a
// short listing history simply carries fewer technical factors.
func ComputeTechnical(ctx context.Context, sub *upstream.Substrate, provider, code string, date tradedate.TradeDate) (Technical, error) {
	table, err := sub.Call(ctx, provider, "stock_history", upstream.Args{
		"code": code,
		"end":  date.Wire(),
		"days": 120,
	}, 10*time.Second)
	if err != nil {
		return Technical{}, err
	}
	bars := barsFromTable(table)
	if len(bars) == 0 {
		return Technical{}, nil
	}

	price := bars[len(bars)-1].close
	closeSeries := closes(bars)

	return Technical{
		Price:              &price,
		ConsolidationScore: consolidationScore(bars),
		VolumePrecursor:    volumePrecursorScore(bars),
		MAConvergence:      maConvergenceScore(closeSeries),
		RSI:                rsi14(closeSeries),
		MACDSignal:         macdSignal(closeSeries),
		BollingerPosition:  bollingerPosition(closeSeries),
	}, nil
}

// consolidationScore rewards a narrow, sustained trading range over the
// last 20 sessions: tighter range and lower realized volatility both
// push the score toward 100.
func consolidationScore(bars []bar) *float64 {
	window := lastN(bars, 20)
	if len(window) < 10 {
		return nil
	}
	closeSeries := closes(window)
	hi, lo := closeSeries[0], closeSeries[0]
	for _, c := range closeSeries {
		if c > hi {
			hi = c
		}
		if c < lo {
			lo = c
		}
	}
	if hi <= 0 {
		return nil
	}
	rangePct := (hi - lo) / hi * 100
	volPct := stddev(closeSeries) / mean(closeSeries) * 100
	// A range under 8% and volatility under 3% both map to ~100;
	// wider ranges decay linearly to 0 by 40% range / 15% volatility.
	rangeScore := safenum.Clamp(100-(rangePct-8)/32*100, 0, 100)
	volScore := safenum.Clamp(100-(volPct-3)/12*100, 0, 100)
	score := rangeScore*0.6 + volScore*0.4
	return &score
}

// volumePrecursorScore detects rising volume on small-bodied candles —
// classic pre-breakout accumulation rather than an already-running move.
func volumePrecursorScore(bars []bar) *float64 {
	window := lastN(bars, 20)
	if len(window) < 10 {
		return nil
	}
	recent := lastN(window, 5)
	older := window[:len(window)-len(recent)]
	if len(older) == 0 {
		return nil
	}
	recentVol := mean(volumes(recent))
	olderVol := mean(volumes(older))
	if olderVol <= 0 {
		return nil
	}
	volRatio := recentVol / olderVol

	var bodyPct float64
	for _, b := range recent {
		if b.close <= 0 {
			continue
		}
		body := b.close - b.open
		if body < 0 {
			body = -body
		}
		bodyPct += body / b.close * 100
	}
	bodyPct /= float64(len(recent))

	volumeScore := safenum.Clamp(50+(volRatio-1)*100, 0, 100)
	bodyScore := safenum.Clamp(100-bodyPct/5*100, 0, 100)
	score := volumeScore*0.6 + bodyScore*0.4
	return &score
}

// maConvergenceScore rises as the 5/10/20/60-day moving averages draw
// together, signalling a base forming before a directional move.
func maConvergenceScore(closeSeries []float64) *float64 {
	ma5 := sma(closeSeries, 5)
	ma10 := sma(closeSeries, 10)
	ma20 := sma(closeSeries, 20)
	ma60 := sma(closeSeries, 60)
	if ma5 == nil || ma10 == nil || ma20 == nil {
		return nil
	}
	values := []float64{*ma5, *ma10, *ma20}
	if ma60 != nil {
		values = append(values, *ma60)
	}
	maxV, minV := values[0], values[0]
	for _, v := range values {
		if v > maxV {
			maxV = v
		}
		if v < minV {
			minV = v
		}
	}
	if maxV <= 0 {
		return nil
	}
	spreadPct := (maxV - minV) / maxV * 100
	score := safenum.Clamp(100-spreadPct/10*100, 0, 100)
	return &score
}

// rsi14 is the classic 14-period relative strength index.
func rsi14(closeSeries []float64) *float64 {
	const period = 14
	if len(closeSeries) < period+1 {
		return nil
	}
	tail := closeSeries[len(closeSeries)-period-1:]
	var gains, losses float64
	for i := 1; i < len(tail); i++ {
		delta := tail[i] - tail[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	avgGain := gains / period
	avgLoss := losses / period
	if avgLoss == 0 {
		v := 100.0
		return &v
	}
	rs := avgGain / avgLoss
	v := 100 - 100/(1+rs)
	return &v
}

// macdSignal is the MACD histogram (12/26 EMA difference minus its own
// 9-period EMA), exposed as a raw signed value rather than [0,100]; the
// scorer treats a positive value as bullish.
func macdSignal(closeSeries []float64) *float64 {
	if len(closeSeries) < 35 {
		return nil
	}
	ema12 := ema(closeSeries, 12)
	ema26 := ema(closeSeries, 26)
	if len(ema12) == 0 || len(ema26) == 0 {
		return nil
	}
	offset := len(ema12) - len(ema26)
	macdLine := make([]float64, len(ema26))
	for i := range ema26 {
		macdLine[i] = ema12[i+offset] - ema26[i]
	}
	signalLine := ema(macdLine, 9)
	if len(signalLine) == 0 {
		return nil
	}
	hist := macdLine[len(macdLine)-1] - signalLine[len(signalLine)-1]
	return &hist
}

func ema(series []float64, period int) []float64 {
	if len(series) < period {
		return nil
	}
	k := 2.0 / float64(period+1)
	out := make([]float64, 0, len(series)-period+1)
	seed := mean(series[:period])
	out = append(out, seed)
	prev := seed
	for _, v := range series[period:] {
		cur := v*k + prev*(1-k)
		out = append(out, cur)
		prev = cur
	}
	return out
}

// bollingerPosition places the latest close within a 20-day, 2-sigma
// Bollinger band as a 0-100 position (0 = lower band, 100 = upper band).
func bollingerPosition(closeSeries []float64) *float64 {
	const period = 20
	if len(closeSeries) < period {
		return nil
	}
	tail := closeSeries[len(closeSeries)-period:]
	mid := mean(tail)
	sd := stddev(tail)
	if sd == 0 {
		v := 50.0
		return &v
	}
	upper := mid + 2*sd
	lower := mid - 2*sd
	last := closeSeries[len(closeSeries)-1]
	pos := safenum.Clamp((last-lower)/(upper-lower)*100, 0, 100)
	return &pos
}

func lastN(bars []bar, n int) []bar {
	if len(bars) <= n {
		return bars
	}
	return bars[len(bars)-n:]
}

func mean(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	var sum float64
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}
