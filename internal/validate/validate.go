// Package validate sanity-checks merged facts and grades each finding.
package validate

import (
	"fmt"
	"regexp"

	"github.com/JakeFAU/camp-harvester/internal/camp"
)

const (
	minSanePrice = 50
	maxSanePrice = 2000
)

var hoursShapeRe = regexp.MustCompile(`(?i)^\d{1,2}(?::\d{2})?\s*(?:am|pm)?\s*[–-]\s*\d{1,2}(?::\d{2})?\s*(?:am|pm)?$`)

// Validator applies the range checks. Required lists dotted field names that
// must be present, e.g. "pricing.weekly" or "hours".
type Validator struct {
	Required []string
}

// Validate returns the issues found in f. IsValid is false only when an
// error-severity issue is present.
func (v Validator) Validate(f camp.CanonicalFacts) camp.Validation {
	issues := make([]camp.Issue, 0)

	for _, tier := range camp.PriceTiers() {
		n, ok := f.Pricing[tier]
		if !ok {
			continue
		}
		if n < minSanePrice || n > maxSanePrice {
			issues = append(issues, camp.Issue{
				Field:    "pricing." + string(tier),
				Severity: camp.SeverityWarning,
				Message:  fmt.Sprintf("price $%d outside expected range $%d-$%d", n, minSanePrice, maxSanePrice),
			})
		}
	}

	if f.Ages.Min != 0 && (f.Ages.Min < 3 || f.Ages.Min > 14) {
		issues = append(issues, camp.Issue{
			Field:    "ages.min",
			Severity: camp.SeverityWarning,
			Message:  fmt.Sprintf("minimum age %d is unusual", f.Ages.Min),
		})
	}
	if f.Ages.Max != 0 && (f.Ages.Max < 8 || f.Ages.Max > 18) {
		issues = append(issues, camp.Issue{
			Field:    "ages.max",
			Severity: camp.SeverityWarning,
			Message:  fmt.Sprintf("maximum age %d is unusual", f.Ages.Max),
		})
	}

	if r := f.Hours.StandardRange; r != "" && !hoursShapeRe.MatchString(r) {
		issues = append(issues, camp.Issue{
			Field:    "hours.standardRange",
			Severity: camp.SeverityInfo,
			Message:  fmt.Sprintf("hours %q do not look like a time range", r),
		})
	}

	for _, field := range v.Required {
		if !f.HasField(field) {
			issues = append(issues, camp.Issue{
				Field:    field,
				Severity: camp.SeverityError,
				Message:  "required field missing",
			})
		}
	}

	valid := true
	for _, issue := range issues {
		if issue.Severity == camp.SeverityError {
			valid = false
			break
		}
	}
	return camp.Validation{IsValid: valid, Issues: issues}
}
