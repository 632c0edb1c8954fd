// Package merge reconciles the facts produced by competing strategies into
// one CanonicalFacts record with per-field provenance.
package merge

import (
	"sort"

	"dario.cat/mergo"

	"github.com/JakeFAU/camp-harvester/internal/camp"
	"github.com/JakeFAU/camp-harvester/internal/extract"
)

var subfields = map[string][]string{
	"hours":        {"standardRange", "dropOff", "pickUp", "extendedBefore", "extendedAfter"},
	"registration": {"status", "opensDate", "waitlist"},
	"contact":      {"email", "phone", "address"},
}

// Merge folds successful results into one record. The highest-quality
// result seeds the record and lower-quality results only fill gaps; ties keep
// input order. The second return value is the strategy that seeded the
// record, empty when nothing usable was supplied.
func Merge(results []camp.StrategyResult) (camp.CanonicalFacts, camp.Strategy) {
	usable := make([]camp.StrategyResult, 0, len(results))
	for _, r := range results {
		if r.Success && !r.Extracted.IsEmpty() {
			usable = append(usable, r)
		}
	}
	if len(usable) == 0 {
		return camp.CanonicalFacts{}, ""
	}
	sort.SliceStable(usable, func(i, j int) bool { return usable[i].Quality > usable[j].Quality })

	best := usable[0]
	merged := best.Extracted.Clone()
	merged.Sources = make(map[string]camp.Strategy)
	merged.QualityScores = make(map[camp.Strategy]int, len(usable))
	for _, group := range []string{"pricing", "sessions", "hours", "extendedCare", "ages", "activities", "registration", "contact"} {
		if merged.HasField(group) {
			merged.Sources[group] = best.Strategy
		}
	}
	merged.QualityScores[best.Strategy] = best.Quality

	for _, r := range usable[1:] {
		fill(&merged, r.Extracted.Clone(), r.Strategy)
		if _, seen := merged.QualityScores[r.Strategy]; !seen {
			merged.QualityScores[r.Strategy] = r.Quality
		}
	}
	merged.SortActivities()
	return merged, best.Strategy
}

func fill(dst *camp.CanonicalFacts, src camp.CanonicalFacts, from camp.Strategy) {
	if len(dst.Pricing) == 0 && len(src.Pricing) > 0 {
		dst.Pricing = src.Pricing
		dst.Sources["pricing"] = from
	} else {
		for tier, n := range src.Pricing {
			if _, ok := dst.Pricing[tier]; !ok {
				dst.Pricing[tier] = n
				dst.Sources["pricing."+string(tier)] = from
			}
		}
	}

	if len(dst.Sessions) == 0 && len(src.Sessions) > 0 {
		dst.Sessions = src.Sessions
		dst.Sources["sessions"] = from
	} else if appendSessions(dst, src.Sessions) {
		if _, ok := dst.Sources["sessions"]; !ok {
			dst.Sources["sessions"] = from
		}
	}

	fillStruct(dst, src, from, "hours", &dst.Hours, src.Hours)
	fillStruct(dst, src, from, "registration", &dst.Registration, src.Registration)
	fillStruct(dst, src, from, "contact", &dst.Contact, src.Contact)

	if !dst.ExtendedCare.Available.Known() && src.ExtendedCare.Available.Known() {
		dst.ExtendedCare = src.ExtendedCare
		dst.Sources["extendedCare"] = from
	}
	if dst.Ages.IsZero() && !src.Ages.IsZero() {
		dst.Ages = src.Ages
		dst.Sources["ages"] = from
	}

	if len(src.Activities) > 0 {
		if len(dst.Activities) == 0 {
			dst.Sources["activities"] = from
		}
		dst.Activities = append(dst.Activities, src.Activities...)
		dst.SortActivities()
	}

	for k, v := range src.Confidence {
		if dst.Confidence == nil {
			dst.Confidence = make(map[string]int)
		}
		if _, ok := dst.Confidence[k]; !ok {
			dst.Confidence[k] = v
		}
	}
}

// fillStruct copies a whole group when dst lacks it, otherwise fills the
// empty subfields and records each one's source.
func fillStruct[T any](dst *camp.CanonicalFacts, src camp.CanonicalFacts, from camp.Strategy, group string, into *T, value T) {
	if !src.HasField(group) {
		return
	}
	if !dst.HasField(group) {
		*into = value
		dst.Sources[group] = from
		return
	}
	before := make(map[string]bool, len(subfields[group]))
	for _, sub := range subfields[group] {
		before[sub] = dst.HasField(group + "." + sub)
	}
	if err := mergo.Merge(into, value); err != nil {
		return
	}
	for _, sub := range subfields[group] {
		if !before[sub] && dst.HasField(group+"."+sub) {
			dst.Sources[group+"."+sub] = from
		}
	}
}

func appendSessions(dst *camp.CanonicalFacts, extra []camp.Session) bool {
	seen := make(map[string]struct{}, len(dst.Sessions))
	for _, s := range dst.Sessions {
		seen[s.Dates] = struct{}{}
	}
	added := false
	for _, s := range extra {
		if len(dst.Sessions) >= extract.MaxSessions {
			break
		}
		if _, dup := seen[s.Dates]; dup {
			continue
		}
		seen[s.Dates] = struct{}{}
		dst.Sessions = append(dst.Sessions, s)
		added = true
	}
	return added
}
