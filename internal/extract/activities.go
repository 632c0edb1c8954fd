package extract

import "regexp"

type activityRule struct {
	label   string
	pattern *regexp.Regexp
}

func rule(label, expr string) activityRule {
	return activityRule{label: label, pattern: regexp.MustCompile(`(?i)\b(?:` + expr + `)`)}
}

// activityRules is the closed vocabulary of activity labels.
var activityRules = []activityRule{
	// sports
	rule("Swimming", `swim(?:ming)?|pool|aquatics?`),
	rule("Soccer", `soccer|futbol`),
	rule("Basketball", `basketball`),
	rule("Tennis", `tennis`),
	rule("Gymnastics", `gymnastics|tumbling`),
	rule("Martial Arts", `martial\s+arts|karate|taekwondo|judo|jiu[- ]?jitsu`),
	rule("Climbing", `climbing|bouldering|ropes\s+course`),
	rule("Sports", `sports?\b|athletics|games\s+and\s+sports`),
	// arts
	rule("Arts & Crafts", `arts?\s*(?:&|and)\s*crafts|crafts?\b|painting|drawing|pottery|ceramics`),
	rule("Music", `music|singing|choir|band\b|guitar|piano`),
	rule("Dance", `danc(?:e|ing)|ballet|hip[- ]?hop`),
	rule("Theater", `theat(?:er|re)|drama|acting|musical\s+theat`),
	// STEM
	rule("Coding", `coding|programming|computer\s+science|game\s+design`),
	rule("Robotics", `robotics?|lego\s+(?:engineering|robot)`),
	rule("Science", `science|chemistry|experiments?|physics|biology`),
	rule("Engineering", `engineering|maker\s?space|building\s+challenges`),
	rule("Math", `math(?:ematics)?\b`),
	// nature
	rule("Animals", `zoo|animals?|wildlife|farm|horse(?:back)?|equestrian`),
	rule("Nature", `nature|outdoor\s+education|environmental|garden(?:ing)?`),
	rule("Hiking", `hik(?:e|es|ing)|trail\s+walks?`),
	rule("Boating", `kayak(?:ing)?|canoe(?:ing)?|sailing|paddle\s?board`),
	rule("Fishing", `fishing`),
	// other
	rule("Cooking", `cooking|baking|culinary`),
	rule("Field Trips", `field\s+trips?|excursions?`),
	rule("Language", `spanish|french|mandarin|language\s+immersion`),
	rule("Chess", `chess`),
	rule("Leadership", `leadership|counselor[- ]in[- ]training|\bCIT\b`),
}

// extractActivities returns each matching label at most once, in
// vocabulary order.
func extractActivities(text string) []string {
	var out []string
	for _, r := range activityRules {
		if r.pattern.MatchString(text) {
			out = append(out, r.label)
		}
	}
	return out
}

// ActivityLabels lists the vocabulary.
func ActivityLabels() []string {
	labels := make([]string, len(activityRules))
	for i, r := range activityRules {
		labels[i] = r.label
	}
	return labels
}

// Activities maps free text onto the activity vocabulary.
func Activities(text string) []string {
	return extractActivities(text)
}
