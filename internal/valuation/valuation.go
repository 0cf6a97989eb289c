// Package valuation estimates a same-day NAV for a fund, preferring
// the fastest available path before falling back to a slower one.
package valuation

import (
	"context"
	"fmt"
	"time"

	"github.com/eastmoney-sub000/factord/internal/store/ttlcache"
	"github.com/eastmoney-sub000/factord/internal/upstream"
)

// negativeLookupTTL is how long a fund that was absent from the
// vendor-estimate endpoint is skipped on subsequent calls.
const negativeLookupTTL = time.Hour

// maxHoldings bounds the holdings-weighted extrapolation path.
const maxHoldings = 30

// Reason enumerates why a fund could not be estimated or which path
// produced the estimate, surfaced to callers for observability.
type Reason string

const (
	ReasonVendorEstimate   Reason = "vendor_estimate"
	ReasonLinkedETF        Reason = "etf_linkage"
	ReasonHoldingsWeighted Reason = "holdings_weighted"
	ReasonNotAvailable     Reason = "not_available"
)

// Estimate is the Intraday Valuation Estimator's result for one fund.
type Estimate struct {
	Code          string
	EstimatedNAV  *float64
	EstimatedChangePct *float64
	Source        Reason
	Coverage      *float64 // summed weight_pct of covered holdings (percent), holdings_weighted path only
}

// Estimator resolves intraday fund valuations via the vendor /
// linked-ETF / holdings-weighted waterfall.
type Estimator struct {
	sub      *upstream.Substrate
	provider string
	negCache *ttlcache.Cache

	// staticLinkage is an operator-curated fund-code -> ETF-code map
	// for funds known to replicate an ETF one-for-one. LearnLinkage
	// grows it at runtime from observed holdings.
	staticLinkage map[string]string
}

// New builds an Estimator. staticLinkage may be nil.
func New(sub *upstream.Substrate, provider string, staticLinkage map[string]string) *Estimator {
	linkage := make(map[string]string, len(staticLinkage))
	for k, v := range staticLinkage {
		linkage[k] = v
	}
	return &Estimator{
		sub:           sub,
		provider:      provider,
		negCache:      ttlcache.New(negativeLookupTTL),
		staticLinkage: linkage,
	}
}

// LearnLinkage records code as linked to etfCode, promoting a
// holdings-derived observation (top holding is an ETF with weight >
// 80%) into the static map so future calls skip straight to the
// linked-ETF path.
func (e *Estimator) LearnLinkage(code, etfCode string) {
	e.staticLinkage[code] = etfCode
}

// Estimate runs the waterfall for a single fund code.
func (e *Estimator) Estimate(ctx context.Context, code string) (Estimate, error) {
	if est, ok := e.vendorEstimate(ctx, code); ok {
		return est, nil
	}

	if est, ok, err := e.linkedETFEstimate(ctx, code); err != nil {
		return Estimate{}, err
	} else if ok {
		return est, nil
	}

	if est, ok, err := e.holdingsWeightedEstimate(ctx, code); err != nil {
		return Estimate{}, err
	} else if ok {
		return est, nil
	}

	return Estimate{Code: code, Source: ReasonNotAvailable}, nil
}

func (e *Estimator) negKey(code string) string { return "fund_estimate_absent:" + code }

func (e *Estimator) vendorEstimate(ctx context.Context, code string) (Estimate, bool) {
	if _, absent := e.negCache.Get(e.negKey(code)); absent {
		return Estimate{}, false
	}
	table, err := e.sub.Call(ctx, e.provider, "fund_realtime_estimate", upstream.Args{"code": code}, 5*time.Second)
	if err != nil || len(table.Rows) == 0 {
		e.negCache.Set(e.negKey(code), true)
		return Estimate{}, false
	}
	row := table.Rows[0]
	nav, navOK := floatField(row, "estimated_nav")
	change, changeOK := floatField(row, "estimated_change_pct")
	if !navOK || !changeOK {
		e.negCache.Set(e.negKey(code), true)
		return Estimate{}, false
	}
	return Estimate{Code: code, EstimatedNAV: &nav, EstimatedChangePct: &change, Source: ReasonVendorEstimate}, true
}

func (e *Estimator) linkedETFEstimate(ctx context.Context, code string) (Estimate, bool, error) {
	etfCode, known := e.staticLinkage[code]
	if !known {
		etfCode, known = e.detectLinkedETFFromHoldings(ctx, code)
		if !known {
			return Estimate{}, false, nil
		}
	}

	prevNAV, err := e.prevNAV(ctx, code)
	if err != nil {
		return Estimate{}, false, err
	}
	if prevNAV == nil {
		return Estimate{}, false, nil
	}

	quote, err := e.realtimeQuote(ctx, etfCode)
	if err != nil || quote == nil {
		return Estimate{}, false, nil
	}

	nav := *prevNAV * (1 + *quote/100)
	return Estimate{Code: code, EstimatedNAV: &nav, EstimatedChangePct: quote, Source: ReasonLinkedETF}, true, nil
}

// detectLinkedETFFromHoldings implements the dynamic-detection half of
// step 2: if the top holding is itself an ETF code with weight > 80%,
// the fund is treated as linked and the observation is learned for
// future calls.
func (e *Estimator) detectLinkedETFFromHoldings(ctx context.Context, code string) (string, bool) {
	table, err := e.sub.Call(ctx, e.provider, "fund_holdings", upstream.Args{"code": code, "limit": 1}, 5*time.Second)
	if err != nil || len(table.Rows) == 0 {
		return "", false
	}
	row := table.Rows[0]
	holdingCode, _ := row["holding_code"].(string)
	isETF, _ := row["is_etf"].(bool)
	weight, ok := floatField(row, "weight_pct")
	if holdingCode == "" || !isETF || !ok || weight <= 80 {
		return "", false
	}
	e.LearnLinkage(code, holdingCode)
	return holdingCode, true
}

func (e *Estimator) holdingsWeightedEstimate(ctx context.Context, code string) (Estimate, bool, error) {
	prevNAV, err := e.prevNAV(ctx, code)
	if err != nil || prevNAV == nil {
		return Estimate{}, false, err
	}

	table, err := e.sub.Call(ctx, e.provider, "fund_holdings", upstream.Args{"code": code, "limit": maxHoldings}, 10*time.Second)
	if err != nil || len(table.Rows) == 0 {
		return Estimate{}, false, nil
	}

	var weightSum, weightedChange float64
	for _, row := range table.Rows {
		holdingCode, _ := row["holding_code"].(string)
		weight, wOK := floatField(row, "weight_pct")
		if holdingCode == "" || !wOK || weight <= 0 {
			continue
		}
		change, err := e.realtimeQuote(ctx, holdingCode)
		if err != nil || change == nil {
			continue
		}
		weightSum += weight
		weightedChange += weight * *change
	}
	if weightSum <= 0 {
		return Estimate{}, false, nil
	}

	extrapolated := (weightedChange / 100) / (weightSum / 100)
	nav := *prevNAV * (1 + extrapolated/100)
	coverage := weightSum
	return Estimate{
		Code: code, EstimatedNAV: &nav, EstimatedChangePct: &extrapolated,
		Source: ReasonHoldingsWeighted, Coverage: &coverage,
	}, true, nil
}

// prevNAV fetches the most recent settled NAV to apply an estimated
// change percentage against.
func (e *Estimator) prevNAV(ctx context.Context, code string) (*float64, error) {
	table, err := e.sub.Call(ctx, e.provider, "fund_nav_history", upstream.Args{"code": code, "days": 1}, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("fetch previous nav for %s: %w", code, err)
	}
	if len(table.Rows) == 0 {
		return nil, nil
	}
	nav, ok := floatField(table.Rows[len(table.Rows)-1], "nav")
	if !ok {
		return nil, nil
	}
	return &nav, nil
}

// realtimeQuote tries the free endpoint, then the metered one, on every
// call. It keeps no record of which side was unavailable recently: both
// function names go through e.provider's single circuit breaker, so the
// only skipping is that breaker failing both sides while it is open.
func (e *Estimator) realtimeQuote(ctx context.Context, code string) (*float64, error) {
	table, err := e.sub.Call(ctx, e.provider, "realtime_quote_free", upstream.Args{"code": code}, 3*time.Second)
	if err == nil && len(table.Rows) > 0 {
		if change, ok := floatField(table.Rows[0], "change_pct"); ok {
			return &change, nil
		}
	}

	table, err = e.sub.Call(ctx, e.provider, "realtime_quote_metered", upstream.Args{"code": code}, 3*time.Second)
	if err != nil {
		return nil, nil
	}
	if len(table.Rows) == 0 {
		return nil, nil
	}
	change, ok := floatField(table.Rows[0], "change_pct")
	if !ok {
		return nil, nil
	}
	return &change, nil
}

func floatField(row upstream.Row, field string) (float64, bool) {
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
