package extract

import (
	"regexp"

	"github.com/JakeFAU/camp-harvester/internal/camp"
)

const careContextRadius = 100

var (
	careNegativeRe = regexp.MustCompile(`(?i)\bno\s+(?:extended|before|after)[- ]?(?:care|day)\b|\bno\s+(?:before|after)[- ]?(?:or|/|and)\s*(?:before|after)[- ]?care\b|\b(?:does|do)\s+not\s+offer\s+(?:extended|before|after)[- ]?care\b|\b(?:extended|before|after)[- ]?care\s+(?:is\s+)?not\s+(?:available|offered)\b`)
	carePositiveRe = regexp.MustCompile(`(?i)\b(?:extended[- ]?(?:care|day|hours)|before[- ]?care|after[- ]?care|aftercare|early\s+drop[- ]?off|late\s+pick[- ]?up|wrap[- ]?around\s+care|before\s+and\s+after\s+care)\b`)
)

// extractCare reports extended-care availability. Negative phrasing wins
// over any positive mention.
func extractCare(text string) camp.ExtendedCare {
	if careNegativeRe.MatchString(text) {
		return camp.ExtendedCare{Available: camp.TriFalse}
	}
	loc := carePositiveRe.FindStringIndex(text)
	if loc == nil {
		return camp.ExtendedCare{}
	}
	ctx := window(text, loc[0], loc[1], careContextRadius)
	trailing := window(text[loc[0]:], 0, loc[1]-loc[0], careContextRadius)
	care := camp.ExtendedCare{
		Available: camp.TriTrue,
		Details:   collapse(ctx),
	}
	// Amounts and times after the care phrase describe the care itself; the
	// surrounding context is the fallback.
	for _, scope := range []string{trailing, ctx} {
		if care.Cost == 0 {
			care.Cost = careCost(scope)
		}
		if care.Times == "" {
			care.Times = careTimes(scope)
		}
	}
	return care
}

func careCost(s string) int {
	m := anyMoneyRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	if n, ok := parseAmount(m[1]); ok && plausiblePrice(n) {
		return n
	}
	return 0
}

func careTimes(s string) string {
	if m := timeRangeRe.FindStringSubmatch(s); m != nil {
		if r, ok := formatRange(m[1], m[2]); ok {
			return r
		}
	}
	if m := untilTimeRe.FindStringSubmatch(s); m != nil {
		if t, ok := normalizeTime(m[1], ""); ok {
			return "until " + t
		}
	}
	return ""
}
