// Package extract turns page text and structured page data into
// CanonicalFacts using a fixed set of regular-expression heuristics. No
// extractor returns an error: a field that cannot be found is left empty.
package extract

import (
	"strings"

	"github.com/JakeFAU/camp-harvester/internal/camp"
)

// Extract runs every sub-extractor over text and folds in structured data.
// A page that announces a permanent closure yields empty facts.
func Extract(text string, structured camp.Structured) camp.CanonicalFacts {
	if IsClosed(text) {
		return camp.CanonicalFacts{}
	}
	if len(structured.Accessibility) > 0 {
		text = text + "\n" + strings.Join(structured.Accessibility, "\n")
	}

	sessions, opens := extractSessions(text)
	facts := camp.CanonicalFacts{
		Pricing:      extractPricing(text),
		Sessions:     sessions,
		Hours:        extractHours(text),
		ExtendedCare: extractCare(text),
		Ages:         extractAges(text),
		Activities:   extractActivities(text),
		Registration: extractRegistration(text, opens),
		Contact:      extractContact(text),
	}
	applyStructured(&facts, structured, seasonYear(text))
	if len(facts.Sessions) == 0 {
		facts.Sessions = nil
	}
	return facts
}

// Extractor adapts Extract to the strategy runner.
type Extractor struct{}

// Extract implements the runner's extractor contract.
func (Extractor) Extract(bundle camp.PageBundle) camp.CanonicalFacts {
	if bundle.Facts != nil {
		return bundle.Facts.Clone()
	}
	return Extract(bundle.Text, bundle.Structured)
}
