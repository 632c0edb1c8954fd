package extract

import "regexp"

const closedLeadChars = 600

var closedRe = regexp.MustCompile(`(?i)\bpermanently\s+closed\b|\bclosed\s+permanently\b|\bhas\s+(?:permanently\s+)?closed\s+its\s+doors\b|\bno\s+longer\s+in\s+business\b|\bout\s+of\s+business\b`)

// IsClosed reports whether the top of the page announces that the business
// has shut down.
func IsClosed(text string) bool {
	lead := text
	if len(lead) > closedLeadChars {
		lead = window(text, 0, closedLeadChars, 0)
	}
	return closedRe.MatchString(lead)
}
