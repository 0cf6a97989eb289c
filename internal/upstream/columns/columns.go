// Package columns resolves dynamically dated upstream column headers,
// e.g. "2026-01-30-估算数据-估算值", by substring match rather than an
// exact name, and extracts the embedded date.
package columns

import (
	"regexp"
	"strings"
	"time"
)

var datePrefix = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})-`)

// Resolve scans headers for one containing every substring in want (all
// must match), preferring the first such header. It returns the header
// name, the date parsed from a leading YYYY-MM-DD- prefix (zero value if
// none), and whether a match was found.
func Resolve(headers []string, want ...string) (col string, date time.Time, ok bool) {
	for _, h := range headers {
		matched := true
		for _, w := range want {
			if !strings.Contains(h, w) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		d := time.Time{}
		if m := datePrefix.FindStringSubmatch(h); m != nil {
			if parsed, err := time.Parse("2006-01-02", m[1]); err == nil {
				d = parsed
			}
		}
		return h, d, true
	}
	return "", time.Time{}, false
}

// ResolveExcluding is Resolve but additionally rejects any header
// containing excl, matching "-单位净值" without
// '公布数据'" rule.
func ResolveExcluding(headers []string, excl string, want ...string) (col string, date time.Time, ok bool) {
	for _, h := range headers {
		if strings.Contains(h, excl) {
			continue
		}
		matched := true
		for _, w := range want {
			if !strings.Contains(h, w) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		d := time.Time{}
		if m := datePrefix.FindStringSubmatch(h); m != nil {
			if parsed, err := time.Parse("2006-01-02", m[1]); err == nil {
				d = parsed
			}
		}
		return h, d, true
	}
	return "", time.Time{}, false
}
