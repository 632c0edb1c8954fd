package extract

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/camp-harvester/internal/camp"
)

// Registration statuses.
const (
	StatusOpen       = "open"
	StatusClosed     = "closed"
	StatusSoldOut    = "sold out"
	StatusComingSoon = "coming soon"
	StatusUpcoming   = "upcoming"
)

var (
	regClosedRe     = regexp.MustCompile(`(?i)\bregistration\s+(?:is\s+)?(?:now\s+)?closed\b|\benrollment\s+(?:is\s+)?closed\b`)
	regSoldOutRe    = regexp.MustCompile(`(?i)\bsold\s+out\b|\bfully\s+booked\b|\ball\s+sessions\s+(?:are\s+)?full\b`)
	regOpenRe       = regexp.MustCompile(`(?i)\bregistration\s+(?:is\s+)?(?:now\s+)?open\b|\b(?:register|enroll|sign\s+up)\s+(?:now|today)\b|\bnow\s+enrolling\b`)
	regComingSoonRe = regexp.MustCompile(`(?i)\bregistration\s+(?:coming\s+soon|opens\s+soon)\b|\bcoming\s+soon\b`)
	waitlistRe      = regexp.MustCompile(`(?i)\bwait[- ]?list(?:ed)?\b|\bwaiting\s+list\b`)
)

func extractRegistration(text, opensDate string) camp.Registration {
	reg := camp.Registration{OpensDate: opensDate}
	switch {
	case regClosedRe.MatchString(text):
		reg.Status = StatusClosed
	case regSoldOutRe.MatchString(text):
		reg.Status = StatusSoldOut
	case regOpenRe.MatchString(text):
		reg.Status = StatusOpen
	case regComingSoonRe.MatchString(text):
		reg.Status = StatusComingSoon
	case opensDate != "":
		reg.Status = StatusUpcoming
	}
	if waitlistRe.MatchString(text) {
		yes := true
		reg.Waitlist = &yes
	}
	return reg
}

var (
	emailRe   = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.([a-z]{2,})\b`)
	phoneRe   = regexp.MustCompile(`(?:\+?1[\s.\-]?)?\(?\b(\d{3})\)?[\s.\-]?(\d{3})[\s.\-](\d{4})\b`)
	addressRe = regexp.MustCompile(`\b\d{1,5}\s+(?:[A-Z][A-Za-z0-9.']*\s+){1,4}(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Drive|Dr|Lane|Ln|Way|Court|Ct|Place|Pl|Parkway|Pkwy|Highway|Hwy)\.?(?:,?\s+(?:Suite|Ste\.?|#)\s*\w+)?(?:,\s*[A-Z][A-Za-z .]+)?(?:,\s*[A-Z]{2})?(?:\s+\d{5}(?:-\d{4})?)?`)

	imageTLDs = map[string]struct{}{"png": {}, "jpg": {}, "jpeg": {}, "gif": {}, "svg": {}, "webp": {}}
)

func extractContact(text string) camp.Contact {
	var c camp.Contact
	for _, m := range emailRe.FindAllStringSubmatch(text, -1) {
		if _, image := imageTLDs[strings.ToLower(m[1])]; image {
			continue
		}
		c.Email = strings.ToLower(m[0])
		break
	}
	if m := phoneRe.FindStringSubmatch(text); m != nil {
		c.Phone = FormatPhone(m[1] + m[2] + m[3])
	}
	if m := addressRe.FindString(text); m != "" {
		c.Address = collapse(m)
	}
	return c
}

// FormatPhone renders ten digits as "(555) 123-4567". Other input is
// returned trimmed.
func FormatPhone(raw string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	if len(d) != 10 {
		return strings.TrimSpace(raw)
	}
	return "(" + d[:3] + ") " + d[3:6] + "-" + d[6:]
}
