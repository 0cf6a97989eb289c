// Package tradedate treats the Chinese trading calendar as an opaque
// ordered key. The core never invents trade dates; "latest trade date"
// always comes from an upstream provider. The one piece of date
// arithmetic the core performs itself — advancing a recommendation's
// rec_date by +7/+30 trade-days for forward grading — uses a
// five-weekday approximation: no trading-day-calendar provider is in
// scope, so Saturdays and Sundays are skipped and holidays are not.
package tradedate

import "time"

// TradeDate is the opaque, ordered storage key: YYYY-MM-DD.
type TradeDate string

// Wire returns the YYYYMMDD form used on the wire/in upstream calls.
func (d TradeDate) Wire() string {
	t, err := d.Time()
	if err != nil {
		return string(d)
	}
	return t.Format("20060102")
}

// Time parses the storage form into a time.Time (UTC midnight).
func (d TradeDate) Time() (time.Time, error) {
	return time.Parse("2006-01-02", string(d))
}

// FromWire parses a YYYYMMDD wire string into storage form.
func FromWire(s string) (TradeDate, error) {
	t, err := time.Parse("20060102", s)
	if err != nil {
		return "", err
	}
	return FromTime(t), nil
}

// FromTime converts a time.Time into storage form.
func FromTime(t time.Time) TradeDate {
	return TradeDate(t.Format("2006-01-02"))
}

// Today returns today's calendar date in storage form, the fallback
// used when no upstream "latest trade date" call is available.
func Today() TradeDate {
	return FromTime(time.Now())
}

// AddTradeDays advances d by n trade-days using the five-weekday
// approximation: each step skips Saturdays and Sundays but no holidays.
func AddTradeDays(d TradeDate, n int) (TradeDate, error) {
	t, err := d.Time()
	if err != nil {
		return "", err
	}
	remaining := n
	step := 1
	if n < 0 {
		step = -1
		remaining = -n
	}
	for remaining > 0 {
		t = t.AddDate(0, 0, step)
		if t.Weekday() != time.Saturday && t.Weekday() != time.Sunday {
			remaining--
		}
	}
	return FromTime(t), nil
}

// TradeDaysSince counts five-weekday-approximation trade-days between
// from (exclusive) and to (inclusive), used by the Performance Tracker
// to decide whether a recommendation has crossed the +7d/+30d horizon.
func TradeDaysSince(from, to TradeDate) (int, error) {
	ft, err := from.Time()
	if err != nil {
		return 0, err
	}
	tt, err := to.Time()
	if err != nil {
		return 0, err
	}
	if !tt.After(ft) {
		return 0, nil
	}
	count := 0
	for cur := ft; cur.Before(tt); cur = cur.AddDate(0, 0, 1) {
		next := cur.AddDate(0, 0, 1)
		if next.Weekday() != time.Saturday && next.Weekday() != time.Sunday {
			count++
		}
	}
	return count, nil
}
