package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/camp-harvester/internal/camp"
)

// Shared regular expression fragments.
const (
	amount   = `(\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{2})?`
	money    = `\$\s?` + amount
	month    = `(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|June?|July?|Aug(?:ust)?|Sep(?:t(?:ember)?)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)\.?`
	day      = `\d{1,2}(?:st|nd|rd|th)?`
	dash     = `\s*(?:-|–|—|to|through|thru)\s*`
	meridiem = `(?:a\.?m|p\.?m)\b\.?`
	clock    = `\d{1,2}(?::\d{2})?\s*` + meridiem
	clockOpt = `\d{1,2}(?::\d{2})?(?:\s*` + meridiem + `)?`
	// dateRange matches "June 16–20", "June 30 - July 3, 2026" and similar.
	dateRange = month + `\s+` + day + dash + `(?:` + month + `\s+)?` + day + `\b(?:,?\s*\d{4})?`
	timeRange = `(` + clockOpt + `)\s*(?:-|–|—|to|until|till)\s*(` + clock + `)`
)

// PricePattern is one entry of the pricing registry. The first capture group
// holds the dollar amount.
type PricePattern struct {
	Name    string
	Pattern *regexp.Regexp
	Tier    camp.PriceTier
	Accept  func(n int) bool
}

func plausiblePrice(n int) bool { return n >= 20 && n <= 3000 }

func pricePattern(name string, tier camp.PriceTier, expr string) PricePattern {
	return PricePattern{
		Name:    name,
		Pattern: regexp.MustCompile(`(?i)` + expr),
		Tier:    tier,
		Accept:  plausiblePrice,
	}
}

// pricePatterns is ordered by priority; within a tier the first accepted
// match wins.
var pricePatterns = []PricePattern{
	pricePattern("weekly-suffix", camp.TierWeekly, money+`\s*(?:/|per|a|each)\s*(?:week|wk)\b`),
	pricePattern("weekly-prefix", camp.TierWeekly, `\b(?:weekly|per\s+week)\s*(?:rate|tuition|fee|cost|price)?\s*(?:is|of)?\s*[:\-–]?\s*`+money),
	pricePattern("weekly-word", camp.TierWeekly, money+`\s+weekly\b`),
	pricePattern("daily-suffix", camp.TierDaily, money+`\s*(?:/|per|a)\s*day\b`),
	pricePattern("daily-prefix", camp.TierDaily, `\b(?:daily|per\s+day|drop[- ]in)\s*(?:rate|fee|cost|price)?\s*[:\-–]?\s*`+money),
	pricePattern("session-suffix", camp.TierSession, money+`\s*(?:/|per)\s*session\b`),
	pricePattern("session-prefix", camp.TierSession, `\b(?:session\s*(?:fee|rate|tuition|cost|price)|per\s+session)\s*[:\-–]?\s*`+money),
	pricePattern("half-day", camp.TierHalfDay, `\bhalf[- ]?day\b[^$\n]{0,30}`+money),
	pricePattern("half-day-suffix", camp.TierHalfDay, money+`[^$\n\d/]{0,6}\bhalf[- ]?day\b`),
	pricePattern("full-day", camp.TierFullDay, `\bfull[- ]?day\b[^$\n]{0,30}`+money),
	pricePattern("full-day-suffix", camp.TierFullDay, money+`[^$\n\d/]{0,6}\bfull[- ]?day\b`),
	pricePattern("early-bird", camp.TierEarlyBird, `\bearly[- ]?bird\b[^$\n]{0,30}`+money),
	pricePattern("non-member", camp.TierNonMember, `\bnon[- ]?members?\b[^$\n]{0,20}`+money),
	pricePattern("member", camp.TierMember, `(?:^|[^\w-])members?\b[^$\n]{0,20}`+money),
	pricePattern("extended-care", camp.TierExtendedCare, `\b(?:extended|before|after)[- ]?care\b[^$\n.]{0,40}`+money),
}

// PricePatterns exposes the registry for inspection and tests.
func PricePatterns() []PricePattern {
	return append([]PricePattern(nil), pricePatterns...)
}

var (
	anyMoneyRe       = regexp.MustCompile(money)
	priceKeywordRe   = regexp.MustCompile(`(?i)\b(?:camp|week|weekly|session)s?\b`)
	sessionKeywordRe = regexp.MustCompile(`(?i)\bsessions?\b`)
	weekKeywordRe    = regexp.MustCompile(`(?i)\bweek(?:ly|s)?\b`)
)

func parseAmount(s string) (int, bool) {
	n, err := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return 0, false
	}
	return n, true
}

// window returns text[start-radius:end+radius] adjusted to rune boundaries.
func window(text string, start, end, radius int) string {
	lo := start - radius
	if lo < 0 {
		lo = 0
	}
	hi := end + radius
	if hi > len(text) {
		hi = len(text)
	}
	for lo > 0 && !isRuneStart(text[lo]) {
		lo--
	}
	for hi < len(text) && !isRuneStart(text[hi]) {
		hi++
	}
	return text[lo:hi]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

var spaceRe = regexp.MustCompile(`\s+`)

func collapse(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
