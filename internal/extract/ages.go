package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/camp-harvester/internal/camp"
)

const (
	minCampAge   = 3
	maxCampAge   = 18
	maxAgeGroups = 10
)

var (
	agesRangeRe  = regexp.MustCompile(`(?i)\bages?\s*:?\s*(\d{1,2})\s*(?:-|–|—|to|through)\s*(\d{1,2})\b`)
	yearsOldRe   = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:-|–|—|to)\s*(\d{1,2})\s*(?:years?|yrs?)(?:[- ]old)?\b`)
	ageGroupRe   = regexp.MustCompile(`\b([A-Z][A-Za-z'&]*(?:\s+[A-Z][A-Za-z'&]*){0,3})\s*(?:\(|:|-|–|—)?\s*(?i:ages?)?\s*:?\s*(\d{1,2})\s*(?:-|–|—|to)\s*(\d{1,2})\b`)
	rejectNameRe = regexp.MustCompile(`(?i)^(?:` + month + `|week|weeks|session|sessions|date|dates|day|days|ages?|summer|camp|grades?|from)$`)
	digitsOnlyRe = regexp.MustCompile(`^[\d\s]+$`)
)

func extractAges(text string) camp.Ages {
	var ages camp.Ages
	for _, re := range []*regexp.Regexp{agesRangeRe, yearsOldRe} {
		if lo, hi, ok := firstAgeRange(re, text); ok {
			ages.Min, ages.Max = lo, hi
			break
		}
	}
	ages.Groups = extractAgeGroups(text)
	if ages.Min == 0 && len(ages.Groups) > 0 {
		lo, hi := maxCampAge+1, 0
		for _, g := range ages.Groups {
			lo = min(lo, g.MinAge)
			hi = max(hi, g.MaxAge)
		}
		if lo >= minCampAge && hi <= maxCampAge && lo <= hi {
			ages.Min, ages.Max = lo, hi
		}
	}
	return ages
}

func firstAgeRange(re *regexp.Regexp, text string) (int, int, bool) {
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		lo, err1 := strconv.Atoi(m[1])
		hi, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			continue
		}
		if lo >= minCampAge && hi <= maxCampAge && lo <= hi {
			return lo, hi, true
		}
	}
	return 0, 0, false
}

// extractAgeGroups finds named groups such as "Explorers: ages 6-8". Names
// that are months, calendar words or bare numbers are rejected.
func extractAgeGroups(text string) []camp.AgeGroup {
	var groups []camp.AgeGroup
	seen := make(map[string]struct{})
	for _, m := range ageGroupRe.FindAllStringSubmatch(text, -1) {
		name := strings.TrimSpace(m[1])
		if !validGroupName(name) {
			continue
		}
		lo, err1 := strconv.Atoi(m[2])
		hi, err2 := strconv.Atoi(m[3])
		if err1 != nil || err2 != nil || lo > hi || hi > maxCampAge {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		groups = append(groups, camp.AgeGroup{Name: name, MinAge: lo, MaxAge: hi})
		if len(groups) == maxAgeGroups {
			break
		}
	}
	return groups
}

func validGroupName(name string) bool {
	if name == "" || digitsOnlyRe.MatchString(name) {
		return false
	}
	for _, word := range strings.Fields(name) {
		if rejectNameRe.MatchString(strings.TrimSuffix(word, ".")) {
			return false
		}
	}
	return true
}
