package extract

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/camp-harvester/internal/camp"
)

var (
	weekUnitRe = regexp.MustCompile(`(?i)week|wk`)
	isoDateRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	tableDates = regexp.MustCompile(`(?i)` + dateRange + `|\b\d{1,2}/\d{1,2}\s*(?:-|–|—|to)\s*\d{1,2}/\d{1,2}\b`)
)

// applyStructured folds JSON-LD and table data into facts. It only fills
// fields the text pass left empty.
func applyStructured(f *camp.CanonicalFacts, s camp.Structured, year string) {
	var sessions sessionSet
	for _, sess := range f.Sessions {
		sessions.add(sess)
	}

	for _, node := range flattenJSONLD(s.JSONLD) {
		applyOffers(f, node["offers"])
		if f.Contact.Email == "" {
			f.Contact.Email = strings.TrimPrefix(strings.ToLower(stringField(node, "email")), "mailto:")
		}
		if f.Contact.Phone == "" {
			if tel := stringField(node, "telephone"); tel != "" {
				f.Contact.Phone = FormatPhone(tel)
			}
		}
		if f.Contact.Address == "" {
			f.Contact.Address = postalAddress(node["address"])
		}
		if f.Ages.Min == 0 {
			if lo, hi, ok := firstAgeRange(yearsOldRe, stringField(node, "typicalAgeRange")+" years"); ok {
				f.Ages.Min, f.Ages.Max = lo, hi
			}
		}
		if dates := eventDates(node); dates != "" {
			name := stringField(node, "name")
			if name == "" {
				name = sessions.nextName()
			}
			sessions.add(camp.Session{Name: name, Dates: dates, Kind: camp.KindSession})
		}
	}

	for _, table := range s.Tables {
		for _, row := range table {
			joined := strings.Join(row, " | ")
			raw := tableDates.FindString(joined)
			if raw == "" {
				continue
			}
			sessions.add(camp.Session{Name: tableRowName(row, raw, sessions.nextName()), Dates: normalizeDates(raw, year), Kind: camp.KindSession})
			if _, ok := f.Pricing[camp.TierWeekly]; ok {
				continue
			}
			if m := anyMoneyRe.FindStringSubmatch(joined); m != nil {
				if n, ok := parseAmount(m[1]); ok && plausiblePrice(n) {
					if f.Pricing == nil {
						f.Pricing = camp.Pricing{}
					}
					f.Pricing[camp.TierWeekly] = n
				}
			}
		}
	}
	f.Sessions = sessions.items
}

// flattenJSONLD expands @graph containers into a flat node list.
func flattenJSONLD(docs []map[string]any) []map[string]any {
	var out []map[string]any
	var walk func(any)
	walk = func(v any) {
		switch t := v.(type) {
		case map[string]any:
			out = append(out, t)
			if g, ok := t["@graph"]; ok {
				walk(g)
			}
		case []any:
			for _, item := range t {
				walk(item)
			}
		}
	}
	for _, d := range docs {
		walk(d)
	}
	return out
}

func applyOffers(f *camp.CanonicalFacts, offers any) {
	var list []any
	switch t := offers.(type) {
	case nil:
		return
	case []any:
		list = t
	default:
		list = []any{t}
	}
	for _, item := range list {
		offer, ok := item.(map[string]any)
		if !ok {
			continue
		}
		price, ok := numberField(offer, "price")
		unit := stringField(offer, "name") + " " + stringField(offer, "description")
		if spec, isMap := offer["priceSpecification"].(map[string]any); isMap {
			if !ok {
				price, ok = numberField(spec, "price")
			}
			unit += " " + stringField(spec, "unitText") + " " + stringField(spec, "unitCode")
		}
		if !ok || !plausiblePrice(price) {
			continue
		}
		tier := camp.TierSession
		if weekUnitRe.MatchString(unit) {
			tier = camp.TierWeekly
		}
		if _, exists := f.Pricing[tier]; exists {
			continue
		}
		if f.Pricing == nil {
			f.Pricing = camp.Pricing{}
		}
		f.Pricing[tier] = price
	}
}

func stringField(node map[string]any, key string) string {
	switch v := node[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func numberField(node map[string]any, key string) (int, bool) {
	switch v := node[key].(type) {
	case float64:
		return int(math.Round(v)), true
	case string:
		s := strings.TrimPrefix(strings.TrimSpace(v), "$")
		f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
		if err != nil {
			return 0, false
		}
		return int(math.Round(f)), true
	}
	return 0, false
}

func postalAddress(v any) string {
	switch t := v.(type) {
	case string:
		return collapse(t)
	case map[string]any:
		var parts []string
		for _, key := range []string{"streetAddress", "addressLocality", "addressRegion", "postalCode"} {
			if s := stringField(t, key); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

// eventDates renders startDate/endDate ISO values as "June 16–20, 2026".
func eventDates(node map[string]any) string {
	start, end := stringField(node, "startDate"), stringField(node, "endDate")
	if !isoDateRe.MatchString(start) {
		return ""
	}
	s, err := time.Parse("2006-01-02", start[:10])
	if err != nil {
		return ""
	}
	if !isoDateRe.MatchString(end) {
		return s.Format("January 2, 2006")
	}
	e, err := time.Parse("2006-01-02", end[:10])
	if err != nil || e.Before(s) {
		return s.Format("January 2, 2006")
	}
	switch {
	case s.Year() != e.Year():
		return s.Format("January 2, 2006") + "–" + e.Format("January 2, 2006")
	case s.Month() != e.Month():
		return fmt.Sprintf("%s–%s, %d", s.Format("January 2"), e.Format("January 2"), e.Year())
	default:
		return fmt.Sprintf("%s %d–%d, %d", s.Format("January"), s.Day(), e.Day(), e.Year())
	}
}

// tableRowName uses the first cell that is neither the dates nor a price.
func tableRowName(row []string, dates, fallback string) string {
	for _, cell := range row {
		c := collapse(cell)
		if c == "" || strings.Contains(c, dates) || strings.Contains(dates, c) || anyMoneyRe.MatchString(c) {
			continue
		}
		if len(c) > 60 {
			continue
		}
		return c
	}
	return fallback
}
