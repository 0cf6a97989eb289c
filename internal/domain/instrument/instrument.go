// Package instrument carries the canonical identity of a tradable
// instrument: a kind (stock or fund) and a code. Conversion between the
// bare 6-digit code used at the edges and the exchange-qualified
// canonical form used internally is total and round-trip lossless.
package instrument

import (
	"fmt"
	"strings"
)

// Kind distinguishes the two instrument families the core tracks.
type Kind string

const (
	KindStock Kind = "stock"
	KindFund  Kind = "fund"
)

func (k Kind) Valid() bool {
	return k == KindStock || k == KindFund
}

// Instrument is a (kind, code) pair in bare-code form, as accepted on
// the wire and as stored in the Factor Store's keys.
type Instrument struct {
	Kind Kind
	Code string
}

func New(kind Kind, code string) Instrument {
	return Instrument{Kind: kind, Code: BareCode(code)}
}

// BareCode strips any exchange/.OF/.ETF suffix, leaving the 6-digit code.
func BareCode(code string) string {
	if i := strings.IndexByte(code, '.'); i >= 0 {
		return code[:i]
	}
	return code
}

// Canonical returns the internal canonical form: for stocks, the bare
// code with an exchange suffix; for funds, the bare code with .OF
// (or .ETF when isETF is true).
func Canonical(kind Kind, code string, isETF bool) string {
	bare := BareCode(code)
	switch kind {
	case KindStock:
		return bare + "." + exchangeSuffix(bare)
	case KindFund:
		if isETF {
			return bare + ".ETF"
		}
		return bare + ".OF"
	default:
		return bare
	}
}

// exchangeSuffix derives the Shanghai/Shenzhen/Beijing exchange suffix
// from the leading digits of a 6-digit A-share code. This mirrors the
// convention the original data sources (akshare/tushare) use for
// ts_code construction.
func exchangeSuffix(bare string) string {
	if len(bare) != 6 {
		return "SZ"
	}
	switch {
	case strings.HasPrefix(bare, "6"):
		return "SH"
	case strings.HasPrefix(bare, "8") || strings.HasPrefix(bare, "4"):
		return "BJ"
	default:
		return "SZ"
	}
}

func (i Instrument) String() string {
	return fmt.Sprintf("%s:%s", i.Kind, i.Code)
}

// IsSTName reports whether a Chinese A-share display name marks the
// stock as a special-treatment (ST) name, used by the recommendation
// engine's user-preference filter.
func IsSTName(name string) bool {
	u := strings.ToUpper(name)
	return strings.Contains(u, "ST") || strings.Contains(u, "*ST")
}
