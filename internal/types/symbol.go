package types

import (
	"regexp"
	"strings"
)

var symbolPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,14}$`)

// NormalizeSymbol upper-cases and trims a ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ValidSymbol reports whether s is a normalized ticker.
func ValidSymbol(s string) bool {
	return symbolPattern.MatchString(s)
}

// ParseSymbols splits a comma separated list into distinct normalized
// tickers, dropping invalid entries.
func ParseSymbols(raw string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Split(raw, ",") {
		s := NormalizeSymbol(part)
		if !ValidSymbol(s) {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
