package merge

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/camp-harvester/internal/camp"
	"github.com/JakeFAU/camp-harvester/internal/extract"
	"github.com/JakeFAU/camp-harvester/internal/quality"
	"github.com/JakeFAU/camp-harvester/internal/validate"
)

func result(s camp.Strategy, q int, f camp.CanonicalFacts) camp.StrategyResult {
	return camp.StrategyResult{Strategy: s, Success: true, Quality: q, Extracted: f}
}

func TestMergeNothingUsable(t *testing.T) {
	t.Parallel()

	merged, best := Merge([]camp.StrategyResult{
		{Strategy: camp.StrategyStatic, Success: false},
		result(camp.StrategyRendered, 40, camp.CanonicalFacts{}),
	})
	assert.True(t, merged.IsEmpty())
	assert.Empty(t, best)
}

func TestMergeBestSeedsAndOthersFillGaps(t *testing.T) {
	t.Parallel()

	static := result(camp.StrategyStatic, 30, camp.CanonicalFacts{
		Pricing:      camp.Pricing{camp.TierWeekly: 300, camp.TierDaily: 70},
		Hours:        camp.Hours{StandardRange: "8AM – 2PM", DropOff: "7:45AM"},
		Contact:      camp.Contact{Email: "hi@camp.org"},
		ExtendedCare: camp.ExtendedCare{Available: camp.TriFalse},
		Activities:   []string{"Swimming"},
	})
	rendered := result(camp.StrategyRendered, 60, camp.CanonicalFacts{
		Pricing:    camp.Pricing{camp.TierWeekly: 350},
		Hours:      camp.Hours{StandardRange: "9AM – 3PM"},
		Ages:       camp.Ages{Min: 5, Max: 12},
		Activities: []string{"Animals"},
	})

	merged, best := Merge([]camp.StrategyResult{static, rendered})
	require.Equal(t, camp.StrategyRendered, best)

	assert.Equal(t, 350, merged.Pricing[camp.TierWeekly])
	assert.Equal(t, 70, merged.Pricing[camp.TierDaily])
	assert.Equal(t, "9AM – 3PM", merged.Hours.StandardRange)
	assert.Equal(t, "7:45AM", merged.Hours.DropOff)
	assert.Equal(t, camp.TriFalse, merged.ExtendedCare.Available)
	assert.Equal(t, []string{"Animals", "Swimming"}, merged.Activities)

	assert.Equal(t, camp.StrategyRendered, merged.Sources["pricing"])
	assert.Equal(t, camp.StrategyStatic, merged.Sources["pricing.daily"])
	assert.Equal(t, camp.StrategyStatic, merged.Sources["hours.dropOff"])
	assert.Equal(t, camp.StrategyStatic, merged.Sources["contact"])
	assert.Equal(t, camp.StrategyStatic, merged.Sources["extendedCare"])
	assert.Equal(t, camp.StrategyRendered, merged.Sources["ages"])
	assert.Equal(t, map[camp.Strategy]int{camp.StrategyRendered: 60, camp.StrategyStatic: 30}, merged.QualityScores)
}

func TestMergeSessionsAppendOnlyNewDates(t *testing.T) {
	t.Parallel()

	a := result(camp.StrategyRendered, 50, camp.CanonicalFacts{Sessions: []camp.Session{{Name: "Week 1", Dates: "June 16–20"}}})
	b := result(camp.StrategyStatic, 20, camp.CanonicalFacts{Sessions: []camp.Session{
		{Name: "Session 1", Dates: "June 16–20"},
		{Name: "Session 2", Dates: "June 23–27"},
	}})
	merged, _ := Merge([]camp.StrategyResult{b, a})
	require.Len(t, merged.Sessions, 2)
	assert.Equal(t, "Week 1", merged.Sessions[0].Name)
	assert.Equal(t, "June 23–27", merged.Sessions[1].Dates)
}

func TestMergeSessionsCapped(t *testing.T) {
	t.Parallel()

	var a, b []camp.Session
	for i := 0; i < 10; i++ {
		a = append(a, camp.Session{Dates: fmt.Sprintf("A%d", i)})
		b = append(b, camp.Session{Dates: fmt.Sprintf("B%d", i)})
	}
	merged, _ := Merge([]camp.StrategyResult{
		result(camp.StrategyRendered, 50, camp.CanonicalFacts{Sessions: a}),
		result(camp.StrategyStatic, 40, camp.CanonicalFacts{Sessions: b}),
	})
	assert.Len(t, merged.Sessions, 15)
}

func TestMergeTiesKeepInputOrder(t *testing.T) {
	t.Parallel()

	merged, best := Merge([]camp.StrategyResult{
		result(camp.StrategyStatic, 40, camp.CanonicalFacts{Pricing: camp.Pricing{camp.TierWeekly: 300}}),
		result(camp.StrategyRendered, 40, camp.CanonicalFacts{Pricing: camp.Pricing{camp.TierWeekly: 350}}),
	})
	assert.Equal(t, camp.StrategyStatic, best)
	assert.Equal(t, 300, merged.Pricing[camp.TierWeekly])
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	t.Parallel()

	best := result(camp.StrategyRendered, 60, camp.CanonicalFacts{Pricing: camp.Pricing{camp.TierWeekly: 350}})
	other := result(camp.StrategyStatic, 30, camp.CanonicalFacts{Pricing: camp.Pricing{camp.TierDaily: 70}})
	_, _ = Merge([]camp.StrategyResult{best, other})
	assert.Len(t, best.Extracted.Pricing, 1)
}

// Every field present in the best result survives the merge unchanged.
func TestMergeKeepsBestFields(t *testing.T) {
	t.Parallel()

	facts := []camp.CanonicalFacts{
		{Pricing: camp.Pricing{camp.TierWeekly: 320}, Ages: camp.Ages{Min: 4, Max: 9}},
		{Hours: camp.Hours{StandardRange: "9AM – 4PM"}, Activities: []string{"Music"}},
		{Registration: camp.Registration{Status: "open"}, Contact: camp.Contact{Phone: "(555) 123-4567"}},
	}
	strategies := []camp.Strategy{camp.StrategyStatic, camp.StrategyRendered, camp.StrategyAccessibility}
	for seed := range facts {
		var results []camp.StrategyResult
		for i, f := range facts {
			q := 10
			if i == seed {
				q = 90
			}
			results = append(results, result(strategies[i], q, f))
		}
		merged, best := Merge(results)
		require.Equal(t, strategies[seed], best)
		for _, field := range []string{"pricing", "ages", "hours", "activities", "registration", "contact"} {
			if facts[seed].HasField(field) {
				assert.True(t, merged.HasField(field), field)
				assert.Equal(t, best, merged.Sources[field], field)
			}
		}
	}
}

var pageFragments = []string{
	"$350/week",
	"Weekly tuition $5 per week",
	"$9000/week all inclusive",
	"Daily rate $75/day",
	"Half-day $200",
	"Early bird $325",
	"ages 5–12",
	"ages 1-25",
	"ages 2-7",
	"for 6 to 10 years old",
	"Explorers: ages 6-8",
	"9am – 3pm",
	"Drop-off 8:30am",
	"Pick-up 3pm - 3:30pm",
	"extended care available until 5pm",
	"Sorry, no extended care.",
	"Week 1: June 16–20, 2026",
	"Week 2: June 23–27, 2026",
	"Week 3: June 30–July 3, 2026",
	"swimming, zoo visits, arts and crafts, soccer, coding, chess",
	"Registration is open",
	"Contact info@camp.example or 555-123-4567",
}

// generatedResults builds strategy results from random page text run
// through the heuristic extractor, scored like the runner scores them.
func generatedResults(rng *rand.Rand, scorer quality.Scorer) []camp.StrategyResult {
	strategies := camp.AllStrategies()
	results := make([]camp.StrategyResult, 0, len(strategies))
	for _, s := range strategies {
		var parts []string
		for _, frag := range pageFragments {
			if rng.IntN(3) == 0 {
				parts = append(parts, frag)
			}
		}
		facts := extract.Extract(strings.Join(parts, ". "), camp.Structured{})
		results = append(results, camp.StrategyResult{
			Strategy:  s,
			Success:   rng.IntN(5) != 0,
			Quality:   scorer.Score(facts),
			Extracted: facts,
		})
	}
	return results
}

func TestMergeNeverScoresBelowBestStrategy(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(2026, 6))
	scorer := quality.Scorer{ExpectedYear: 2026}
	for i := 0; i < 200; i++ {
		results := generatedResults(rng, scorer)
		best := 0
		for _, r := range results {
			if r.Success && !r.Extracted.IsEmpty() {
				best = max(best, r.Quality)
			}
		}
		merged, _ := Merge(results)
		require.GreaterOrEqual(t, scorer.Score(merged), best, "case %d", i)
	}
}

func TestMergeKeepsValuesInRange(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))
	scorer := quality.Scorer{ExpectedYear: 2026}
	validator := validate.Validator{}
	for i := 0; i < 200; i++ {
		merged, _ := Merge(generatedResults(rng, scorer))
		validator.Validate(merged)

		for tier, n := range merged.Pricing {
			require.GreaterOrEqual(t, n, 20, "case %d tier %s", i, tier)
			require.LessOrEqual(t, n, 3000, "case %d tier %s", i, tier)
		}
		if merged.Ages.Min != 0 || merged.Ages.Max != 0 {
			require.GreaterOrEqual(t, merged.Ages.Min, 3, "case %d", i)
			require.LessOrEqual(t, merged.Ages.Max, 18, "case %d", i)
			require.LessOrEqual(t, merged.Ages.Min, merged.Ages.Max, "case %d", i)
		}
	}
}
