// Package quality computes the 0-100 completeness score used to rank
// extractions and to summarize run health.
package quality

import (
	"strconv"
	"strings"

	"github.com/JakeFAU/camp-harvester/internal/camp"
)

// Score groups and their maxima.
const (
	GroupPricing      = "pricing"
	GroupSessions     = "sessions"
	GroupHours        = "hours"
	GroupExtendedCare = "extendedCare"
	GroupAges         = "ages"
	GroupActivities   = "activities"
	GroupRegistration = "registration"
)

// Max is the ceiling for each group.
var Max = map[string]int{
	GroupPricing:      30,
	GroupSessions:     20,
	GroupHours:        15,
	GroupExtendedCare: 15,
	GroupAges:         10,
	GroupActivities:   10,
	GroupRegistration: 5,
}

// Groups lists the score groups in report order.
func Groups() []string {
	return []string{GroupPricing, GroupSessions, GroupHours, GroupExtendedCare, GroupAges, GroupActivities, GroupRegistration}
}

// Scorer is a deterministic weighted-sum scorer. ExpectedYear is the season
// year looked for in session dates; zero disables that credit.
type Scorer struct {
	ExpectedYear int
}

// Score returns the total in [0, 100].
func (s Scorer) Score(f camp.CanonicalFacts) int {
	total := 0
	for _, v := range s.GroupScores(f) {
		total += v
	}
	return total
}

// GroupScores returns the per-group credit.
func (s Scorer) GroupScores(f camp.CanonicalFacts) map[string]int {
	return map[string]int{
		GroupPricing:      pricing(f.Pricing),
		GroupSessions:     s.sessions(f.Sessions),
		GroupHours:        hours(f.Hours),
		GroupExtendedCare: extendedCare(f.ExtendedCare, f.Hours),
		GroupAges:         ages(f.Ages),
		GroupActivities:   activities(f.Activities),
		GroupRegistration: registration(f.Registration),
	}
}

func pricing(p camp.Pricing) int {
	score := 0
	if has(p, camp.TierWeekly) || has(p, camp.TierSession) {
		score += 15
	}
	for _, tier := range []camp.PriceTier{camp.TierDaily, camp.TierEarlyBird, camp.TierMember, camp.TierNonMember, camp.TierExtendedCare} {
		if has(p, tier) {
			score += 8
			break
		}
	}
	if has(p, camp.TierHalfDay) || has(p, camp.TierFullDay) {
		score += 7
	}
	return score
}

func has(p camp.Pricing, tier camp.PriceTier) bool {
	_, ok := p[tier]
	return ok
}

func (s Scorer) sessions(sessions []camp.Session) int {
	if len(sessions) == 0 {
		return 0
	}
	score := 10
	if len(sessions) >= 5 {
		score += 5
	}
	if s.ExpectedYear > 0 {
		year := strconv.Itoa(s.ExpectedYear)
		for _, sess := range sessions {
			if strings.Contains(sess.Dates, year) {
				score += 5
				break
			}
		}
	}
	return score
}

// hours credits the drop-off/pick-up window also when only the extended
// before/after edge is known: "care until 5pm" is the latest pick-up.
func hours(h camp.Hours) int {
	score := 0
	if h.StandardRange != "" {
		score += 10
	}
	if h.DropOff != "" || h.PickUp != "" || h.ExtendedBefore != "" || h.ExtendedAfter != "" {
		score += 5
	}
	return score
}

func extendedCare(c camp.ExtendedCare, h camp.Hours) int {
	score := 0
	switch c.Available {
	case camp.TriTrue:
		score += 8
	case camp.TriFalse:
		score += 5
	}
	if c.Cost > 0 {
		score += 3
	}
	if c.Times != "" || (c.Available == camp.TriTrue && (h.ExtendedBefore != "" || h.ExtendedAfter != "")) {
		score += 4
	}
	return score
}

func ages(a camp.Ages) int {
	if a.IsZero() {
		return 0
	}
	return 10
}

func activities(list []string) int {
	score := 0
	if len(list) > 0 {
		score += 5
	}
	if len(list) >= 5 {
		score += 3
	}
	if len(list) >= 10 {
		score += 2
	}
	return score
}

func registration(r camp.Registration) int {
	score := 0
	if r.Status != "" {
		score += 3
	}
	if r.OpensDate != "" {
		score += 2
	}
	return score
}
