package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/camp-harvester/internal/camp"
)

// MaxSessions caps the number of sessions kept per entity.
const MaxSessions = 15

var (
	numberedSessionRe = regexp.MustCompile(`(?i)\b(week|session)\s*#?\s*(\d{1,2})\s*[:\-–—]\s*(` + dateRange + `)`)
	summerSessionRe   = regexp.MustCompile(`(?i)\bsummer\s+(20\d{2})\s*[:\-–—]?\s*(` + dateRange + `)`)
	monthRangeRe      = regexp.MustCompile(`(?i)\b` + dateRange)
	numericRangeRe    = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\s*(?:-|–|—|to)\s*(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)
	registrationRe    = regexp.MustCompile(`(?i)\bregistration\s+(?:opens|begins|starts|will\s+open)(?:\s+on)?\s*:?\s*(` + month + `\s+` + day + `\b(?:,?\s*\d{4})?|\d{1,2}/\d{1,2}(?:/\d{2,4})?)`)
	themeRe           = regexp.MustCompile(`^\s*[-–—|:]\s*([A-Z][\w&' ]{2,40})`)
	themeStopRe       = regexp.MustCompile(`(?i)\s+(?:week|session)\s*#?\s*\d.*$`)
	seasonYearRe      = regexp.MustCompile(`(?i)\bsummer\s+(20\d{2})\b|\b(20\d{2})\s+(?:summer|camp|season)\b`)
	hasYearRe         = regexp.MustCompile(`\d{4}`)
	dateDashRe        = regexp.MustCompile(`\s*(?:-|–|—)\s*|\s+(?:to|through|thru)\s+`)
	trailingYearRe    = regexp.MustCompile(`(\w)(?:,\s*|\s+)(\d{4})$`)
)

type sessionSet struct {
	items []camp.Session
	seen  map[string]struct{}
}

func (s *sessionSet) add(sess camp.Session) {
	if len(s.items) >= MaxSessions || sess.Dates == "" {
		return
	}
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, dup := s.seen[sess.Dates]; dup {
		return
	}
	s.seen[sess.Dates] = struct{}{}
	s.items = append(s.items, sess)
}

func (s *sessionSet) nextName() string {
	return fmt.Sprintf("Session %d", len(s.items)+1)
}

// extractSessions returns dated sessions and, if present, the
// registration-opens date.
func extractSessions(text string) ([]camp.Session, string) {
	year := seasonYear(text)
	var set sessionSet

	for _, loc := range numberedSessionRe.FindAllStringSubmatchIndex(text, -1) {
		label := strings.ToUpper(text[loc[2]:loc[2]+1]) + strings.ToLower(text[loc[2]+1:loc[3]])
		sess := camp.Session{
			Name:  label + " " + text[loc[4]:loc[5]],
			Dates: normalizeDates(text[loc[6]:loc[7]], year),
			Kind:  camp.KindSession,
		}
		sess.Theme = themeAfter(text[loc[1]:])
		set.add(sess)
	}

	for _, m := range summerSessionRe.FindAllStringSubmatch(text, -1) {
		set.add(camp.Session{
			Name:  "Summer " + m[1],
			Dates: normalizeDates(m[2], m[1]),
			Kind:  camp.KindSession,
		})
	}

	for _, m := range numericRangeRe.FindAllStringSubmatch(text, -1) {
		if !validMonthDay(m[1], m[2]) || !validMonthDay(m[4], m[5]) {
			continue
		}
		dates := m[1] + "/" + m[2]
		if m[3] != "" {
			dates += "/" + m[3]
		}
		dates += "–" + m[4] + "/" + m[5]
		if m[6] != "" {
			dates += "/" + m[6]
		}
		set.add(camp.Session{Name: set.nextName(), Dates: dates, Kind: camp.KindSession})
	}

	for _, raw := range monthRangeRe.FindAllString(text, -1) {
		set.add(camp.Session{Name: set.nextName(), Dates: normalizeDates(raw, year), Kind: camp.KindSession})
	}

	opens := ""
	if m := registrationRe.FindStringSubmatch(text); m != nil {
		opens = normalizeDates(m[1], "")
		set.add(camp.Session{Name: "Registration Opens", Dates: opens, Kind: camp.KindRegistration})
	}
	return set.items, opens
}

// seasonYear returns the single season year mentioned on the page, if any.
func seasonYear(text string) string {
	found := ""
	for _, m := range seasonYearRe.FindAllStringSubmatch(text, -1) {
		y := m[1]
		if y == "" {
			y = m[2]
		}
		if found != "" && found != y {
			return ""
		}
		found = y
	}
	return found
}

// normalizeDates collapses whitespace, uses an en dash between endpoints,
// capitalizes the month and appends year when the string has none.
func normalizeDates(raw, year string) string {
	s := collapse(raw)
	s = dateDashRe.ReplaceAllString(s, "–")
	s = trailingYearRe.ReplaceAllString(s, "${1}, ${2}")
	if s != "" {
		s = strings.ToUpper(s[:1]) + s[1:]
	}
	if year != "" && !hasYearRe.MatchString(s) {
		s += ", " + year
	}
	return s
}

func themeAfter(rest string) string {
	m := themeRe.FindStringSubmatch(rest)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(themeStopRe.ReplaceAllString(m[1], ""))
}

func validMonthDay(mo, d string) bool {
	m, err1 := strconv.Atoi(mo)
	dd, err2 := strconv.Atoi(d)
	return err1 == nil && err2 == nil && m >= 1 && m <= 12 && dd >= 1 && dd <= 31
}
