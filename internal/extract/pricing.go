package extract

import (
	"sort"

	"github.com/JakeFAU/camp-harvester/internal/camp"
)

const (
	contextRadius    = 40
	contextualMinUSD = 100
	contextualMaxUSD = 2000
	fallbackMinUSD   = 150
	fallbackMaxUSD   = 800
)

func extractPricing(text string) camp.Pricing {
	pricing := camp.Pricing{}
	for _, p := range pricePatterns {
		if _, done := pricing[p.Tier]; done {
			continue
		}
		for _, m := range p.Pattern.FindAllStringSubmatch(text, -1) {
			n, ok := parseAmount(m[1])
			if ok && p.Accept(n) {
				pricing[p.Tier] = n
				break
			}
		}
	}
	if hasBaseRate(pricing) {
		return pricing
	}

	if tier, n, ok := contextualPrice(text); ok {
		pricing[tier] = n
		return pricing
	}
	if n, ok := medianFallback(text); ok {
		pricing[camp.TierWeekly] = n
	}
	if len(pricing) == 0 {
		return nil
	}
	return pricing
}

func hasBaseRate(p camp.Pricing) bool {
	_, weekly := p[camp.TierWeekly]
	_, session := p[camp.TierSession]
	return weekly || session
}

// contextualPrice looks for a dollar amount near camp/week/session wording.
func contextualPrice(text string) (camp.PriceTier, int, bool) {
	for _, loc := range anyMoneyRe.FindAllStringSubmatchIndex(text, -1) {
		n, ok := parseAmount(text[loc[2]:loc[3]])
		if !ok || n < contextualMinUSD || n > contextualMaxUSD {
			continue
		}
		ctx := window(text, loc[0], loc[1], contextRadius)
		if !priceKeywordRe.MatchString(ctx) {
			continue
		}
		if sessionKeywordRe.MatchString(ctx) && !weekKeywordRe.MatchString(ctx) {
			return camp.TierSession, n, true
		}
		return camp.TierWeekly, n, true
	}
	return "", 0, false
}

// medianFallback returns the median of all amounts in the typical weekly
// band. With an even count the lower middle element is used.
func medianFallback(text string) (int, bool) {
	var values []int
	for _, m := range anyMoneyRe.FindAllStringSubmatch(text, -1) {
		n, ok := parseAmount(m[1])
		if ok && n >= fallbackMinUSD && n <= fallbackMaxUSD {
			values = append(values, n)
		}
	}
	if len(values) == 0 {
		return 0, false
	}
	sort.Ints(values)
	return values[(len(values)-1)/2], true
}
