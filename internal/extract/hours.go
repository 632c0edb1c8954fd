package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/camp-harvester/internal/camp"
)

var (
	timeRangeRe = regexp.MustCompile(`(?i)\b` + timeRange)
	untilTimeRe = regexp.MustCompile(`(?i)\b(?:until|till|to|through|by)\s+(` + clock + `)`)
	timePartsRe = regexp.MustCompile(`(?i)^(\d{1,2})(?::(\d{2}))?\s*(?:(a)\.?m\.?|(p)\.?m\.?)?$`)

	dropOffRe   = regexp.MustCompile(`(?i)\bdrop[- ]?off\b[^.\n\d]{0,25}?(?:` + timeRange + `|(` + clock + `))`)
	pickUpRe    = regexp.MustCompile(`(?i)\bpick[- ]?up\b[^.\n\d]{0,25}?(?:` + timeRange + `|(` + clock + `))`)
	beforeRe    = regexp.MustCompile(`(?i)\b(?:before[- ]?care|early\s+drop[- ]?off|morning\s+care)\b[^.\n\d]{0,40}?(?:` + timeRange + `|(` + clock + `))`)
	afterUntil  = regexp.MustCompile(`(?i)\b(?:after[- ]?care|aftercare|extended\s+(?:care|day)|late\s+pick[- ]?up)\b[^.\n\d]{0,40}?\b(?:until|till|to|through)\s+(` + clock + `)`)
	afterRange  = regexp.MustCompile(`(?i)\b(?:after[- ]?care|aftercare|extended\s+(?:care|day)|late\s+pick[- ]?up)\b[^.\n\d]{0,40}?` + timeRange)
	notStandard = regexp.MustCompile(`(?i)drop|pick|before|after|extended|care|early|late|office|lunch`)
)

const standardLookback = 30

func extractHours(text string) camp.Hours {
	var h camp.Hours
	for _, loc := range timeRangeRe.FindAllStringSubmatchIndex(text, -1) {
		lo := loc[0] - standardLookback
		if lo < 0 {
			lo = 0
		}
		if notStandard.MatchString(window(text, lo, loc[0], 0)) {
			continue
		}
		if r, ok := formatRange(text[loc[2]:loc[3]], text[loc[4]:loc[5]]); ok {
			h.StandardRange = r
			break
		}
	}
	h.DropOff = windowTime(dropOffRe, text)
	h.PickUp = windowTime(pickUpRe, text)
	if m := beforeRe.FindStringSubmatch(text); m != nil {
		switch {
		case m[1] != "":
			h.ExtendedBefore, _ = normalizeTime(m[1], m[2])
		case m[3] != "":
			h.ExtendedBefore, _ = normalizeTime(m[3], "")
		}
	}
	if m := afterUntil.FindStringSubmatch(text); m != nil {
		h.ExtendedAfter, _ = normalizeTime(m[1], "")
	} else if m := afterRange.FindStringSubmatch(text); m != nil {
		h.ExtendedAfter, _ = normalizeTime(m[2], "")
	}
	return h
}

// windowTime returns a normalized range or single time from a pattern built
// as keyword + (timeRange | clock).
func windowTime(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		r, _ := formatRange(m[1], m[2])
		return r
	}
	t, _ := normalizeTime(m[3], "")
	return t
}

// formatRange renders "9AM – 3PM". A start without a meridiem borrows one
// from the end: the opposite half-day when the start hour is later.
func formatRange(start, end string) (string, bool) {
	e, ok := normalizeTime(end, "")
	if !ok {
		return "", false
	}
	s, ok := normalizeTime(start, e[len(e)-2:])
	if !ok {
		return "", false
	}
	return s + " – " + e, true
}

// normalizeTime renders "9am" as "9AM" and "9:30 p.m." as "9:30PM". When
// the input has no meridiem, endMeridiem ("AM"/"PM") is used to infer one.
func normalizeTime(raw, endMeridiem string) (string, bool) {
	m := timePartsRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return "", false
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil || hour < 1 || hour > 12 {
		return "", false
	}
	if m[2] != "" {
		if minute, err := strconv.Atoi(m[2]); err != nil || minute > 59 {
			return "", false
		}
	}
	var mer string
	switch {
	case m[3] != "":
		mer = "AM"
	case m[4] != "":
		mer = "PM"
	case endMeridiem == "":
		return "", false
	default:
		mer = inferMeridiem(hour, endMeridiem)
	}
	out := m[1]
	if m[2] != "" {
		out += ":" + m[2]
	}
	return out + mer, true
}

func inferMeridiem(startHour int, endMeridiem string) string {
	if endMeridiem == "PM" && startHour >= 7 && startHour != 12 {
		return "AM"
	}
	return endMeridiem
}

// NormalizeHours renders a free-form time or time range in the canonical
// "9AM – 3PM" form. It returns "" when nothing recognizable is found.
func NormalizeHours(s string) string {
	if m := timeRangeRe.FindStringSubmatch(s); m != nil {
		if r, ok := formatRange(m[1], m[2]); ok {
			return r
		}
	}
	t, _ := normalizeTime(s, "")
	return t
}
