package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/titanous/json5"
	"go.uber.org/zap"

	"github.com/JakeFAU/camp-harvester/internal/camp"
	"github.com/JakeFAU/camp-harvester/internal/extract"
)

// Response is the JSON object the model is asked to return. Unknown keys
// are ignored and absent keys leave the field unset.
type Response struct {
	Pricing         map[string]Number `json:"pricing"`
	Schedule        Schedule          `json:"schedule"`
	Hours           HoursBlock        `json:"hours"`
	AgeGroups       AgeBlock          `json:"age_groups"`
	Activities      []string          `json:"activities"`
	Policies        Policies          `json:"policies"`
	Registration    RegistrationBlock `json:"registration"`
	Contact         ContactBlock      `json:"contact"`
	Confidence      map[string]Number `json:"confidence"`
	ExtractionNotes any               `json:"extraction_notes"`
}

// ScheduleEntry is one session as reported by the model.
type ScheduleEntry struct {
	Name  string `json:"name"`
	Dates string `json:"dates"`
	Theme string `json:"theme"`
}

// Schedule accepts either a list of sessions or {"sessions": [...]}.
type Schedule []ScheduleEntry

// HoursBlock holds free-form times.
type HoursBlock struct {
	Standard       string `json:"standard"`
	StandardRange  string `json:"standard_range"`
	DropOff        string `json:"drop_off"`
	PickUp         string `json:"pick_up"`
	ExtendedBefore string `json:"extended_before"`
	ExtendedAfter  string `json:"extended_after"`
}

// AgeGroupEntry is a named age band.
type AgeGroupEntry struct {
	Name   string `json:"name"`
	MinAge Number `json:"min_age"`
	MaxAge Number `json:"max_age"`
}

// AgeBlock accepts {"min_age", "max_age", "groups"} or a bare list of groups.
type AgeBlock struct {
	MinAge Number          `json:"min_age"`
	MaxAge Number          `json:"max_age"`
	Groups []AgeGroupEntry `json:"groups"`
}

// CareBlock describes extended care.
type CareBlock struct {
	Available Availability `json:"available"`
	Details   string       `json:"details"`
	Cost      Number       `json:"cost"`
	Times     string       `json:"times"`
}

// Policies groups policy answers; only extended care is mapped.
type Policies struct {
	ExtendedCare CareBlock `json:"extended_care"`
}

// RegistrationBlock is the registration answer.
type RegistrationBlock struct {
	Status    string       `json:"status"`
	OpensDate string       `json:"opens_date"`
	Waitlist  Availability `json:"waitlist"`
}

// ContactBlock is the contact answer.
type ContactBlock struct {
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

var numberRe = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// Number decodes numbers, numeric strings such as "$1,200" and null. Any
// other shape decodes as zero.
type Number int

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(data []byte) error {
	*n = 0
	s := strings.TrimSpace(string(data))
	if s == "" || s[0] == '{' || s[0] == '[' {
		return nil
	}
	m := numberRe.FindString(s)
	if m == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return nil
	}
	*n = Number(math.Round(f))
	return nil
}

// Availability is a lenient tri-state: booleans, "yes"/"no" and friends.
type Availability camp.Tri

// UnmarshalJSON implements json.Unmarshaler.
func (a *Availability) UnmarshalJSON(data []byte) error {
	switch strings.ToLower(strings.Trim(strings.TrimSpace(string(data)), `"'`)) {
	case "true", "yes", "y", "available", "offered":
		*a = Availability(camp.TriTrue)
	case "false", "no", "n", "none", "not available", "not offered":
		*a = Availability(camp.TriFalse)
	default:
		*a = Availability(camp.TriUnknown)
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Schedule) UnmarshalJSON(data []byte) error {
	*s = nil
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '[':
		var entries []ScheduleEntry
		if err := decode(data, &entries); err == nil {
			*s = entries
		}
	case '{':
		var wrapped struct {
			Sessions []ScheduleEntry `json:"sessions"`
		}
		if err := decode(data, &wrapped); err == nil {
			*s = wrapped.Sessions
		}
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *AgeBlock) UnmarshalJSON(data []byte) error {
	*b = AgeBlock{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '[':
		var groups []AgeGroupEntry
		if err := decode(data, &groups); err == nil {
			b.Groups = groups
		}
	case '{':
		type plain AgeBlock
		var p plain
		if err := decode(data, &p); err == nil {
			*b = AgeBlock(p)
		}
	}
	return nil
}

// decode parses strict JSON first and falls back to JSON5 for the trailing
// commas, comments and single quotes models sometimes produce.
func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err == nil {
		return nil
	}
	if err := json5.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode json5: %w", err)
	}
	return nil
}

var fenceRe = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\\s*\n?(.*?)```")

// StripFences removes a markdown code fence around the answer and trims
// anything outside the outermost braces.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

// ParseResponse decodes the model's answer. Each top-level key is decoded on
// its own; a key with the wrong shape is dropped and logged at debug while the
// rest of the answer survives.
func ParseResponse(text string, logger *zap.Logger) (Response, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cleaned := StripFences(text)
	if !strings.HasPrefix(cleaned, "{") {
		return Response{}, fmt.Errorf("llm response has no json object: %w", camp.ErrParse)
	}
	var raw map[string]json.RawMessage
	if err := decode([]byte(cleaned), &raw); err != nil {
		return Response{}, fmt.Errorf("llm response: %w: %w", camp.ErrParse, err)
	}

	var resp Response
	fields := map[string]any{
		"pricing":          &resp.Pricing,
		"schedule":         &resp.Schedule,
		"hours":            &resp.Hours,
		"age_groups":       &resp.AgeGroups,
		"activities":       &resp.Activities,
		"policies":         &resp.Policies,
		"registration":     &resp.Registration,
		"contact":          &resp.Contact,
		"confidence":       &resp.Confidence,
		"extraction_notes": &resp.ExtractionNotes,
	}
	for key, value := range raw {
		dst, known := fields[key]
		if !known {
			continue
		}
		if err := decode(value, dst); err != nil {
			logger.Debug("dropping malformed llm response key", zap.String("key", key), zap.Error(err))
		}
	}
	return resp, nil
}

var pricingKeys = map[string]camp.PriceTier{
	"weekly":        camp.TierWeekly,
	"week":          camp.TierWeekly,
	"daily":         camp.TierDaily,
	"day":           camp.TierDaily,
	"session":       camp.TierSession,
	"per_session":   camp.TierSession,
	"half_day":      camp.TierHalfDay,
	"halfday":       camp.TierHalfDay,
	"full_day":      camp.TierFullDay,
	"fullday":       camp.TierFullDay,
	"early_bird":    camp.TierEarlyBird,
	"earlybird":     camp.TierEarlyBird,
	"member":        camp.TierMember,
	"non_member":    camp.TierNonMember,
	"nonmember":     camp.TierNonMember,
	"extended_care": camp.TierExtendedCare,
	"extendedcare":  camp.TierExtendedCare,
}

func tierFor(key string) (camp.PriceTier, bool) {
	k := strings.ToLower(strings.TrimSpace(key))
	k = strings.NewReplacer("-", "_", " ", "_").Replace(k)
	for _, suffix := range []string{"_rate", "_price", "_cost", "_fee"} {
		k = strings.TrimSuffix(k, suffix)
	}
	tier, ok := pricingKeys[k]
	return tier, ok
}

// Facts maps the response onto canonical facts, dropping implausible values.
func (r Response) Facts() camp.CanonicalFacts {
	var f camp.CanonicalFacts

	for key, n := range r.Pricing {
		tier, ok := tierFor(key)
		if !ok || n < 20 || n > 3000 {
			continue
		}
		if f.Pricing == nil {
			f.Pricing = camp.Pricing{}
		}
		f.Pricing[tier] = int(n)
	}

	seen := make(map[string]struct{})
	for _, s := range r.Schedule {
		dates := strings.TrimSpace(s.Dates)
		if dates == "" {
			continue
		}
		if _, dup := seen[dates]; dup {
			continue
		}
		seen[dates] = struct{}{}
		name := strings.TrimSpace(s.Name)
		if name == "" {
			name = fmt.Sprintf("Session %d", len(f.Sessions)+1)
		}
		f.Sessions = append(f.Sessions, camp.Session{Name: name, Dates: dates, Theme: strings.TrimSpace(s.Theme), Kind: camp.KindSession})
		if len(f.Sessions) >= extract.MaxSessions {
			break
		}
	}

	standard := r.Hours.Standard
	if standard == "" {
		standard = r.Hours.StandardRange
	}
	f.Hours = camp.Hours{
		StandardRange:  extract.NormalizeHours(standard),
		DropOff:        extract.NormalizeHours(r.Hours.DropOff),
		PickUp:         extract.NormalizeHours(r.Hours.PickUp),
		ExtendedBefore: extract.NormalizeHours(r.Hours.ExtendedBefore),
		ExtendedAfter:  extract.NormalizeHours(r.Hours.ExtendedAfter),
	}

	care := r.Policies.ExtendedCare
	f.ExtendedCare.Available = camp.Tri(care.Available)
	if f.ExtendedCare.Available == camp.TriTrue {
		f.ExtendedCare.Details = strings.TrimSpace(care.Details)
		if care.Cost >= 20 && care.Cost <= 3000 {
			f.ExtendedCare.Cost = int(care.Cost)
		}
		f.ExtendedCare.Times = extract.NormalizeHours(care.Times)
	}

	f.Ages = r.AgeGroups.ages()

	for _, a := range r.Activities {
		f.Activities = append(f.Activities, extract.Activities(a)...)
	}
	f.SortActivities()

	f.Registration = camp.Registration{
		Status:    strings.ToLower(strings.TrimSpace(r.Registration.Status)),
		OpensDate: strings.TrimSpace(r.Registration.OpensDate),
	}
	if w := camp.Tri(r.Registration.Waitlist); w.Known() {
		b := w == camp.TriTrue
		f.Registration.Waitlist = &b
	}

	f.Contact = camp.Contact{
		Email:   strings.ToLower(strings.TrimSpace(r.Contact.Email)),
		Phone:   extract.FormatPhone(r.Contact.Phone),
		Address: strings.TrimSpace(r.Contact.Address),
	}

	for group, n := range r.Confidence {
		if f.Confidence == nil {
			f.Confidence = map[string]int{}
		}
		f.Confidence[group] = int(max(0, min(100, n)))
	}
	return f
}

func validAge(n Number) bool { return n >= 3 && n <= 18 }

func (b AgeBlock) ages() camp.Ages {
	var a camp.Ages
	for _, g := range b.Groups {
		if !validAge(g.MinAge) || !validAge(g.MaxAge) || g.MinAge > g.MaxAge {
			continue
		}
		a.Groups = append(a.Groups, camp.AgeGroup{Name: strings.TrimSpace(g.Name), MinAge: int(g.MinAge), MaxAge: int(g.MaxAge)})
		if len(a.Groups) >= 10 {
			break
		}
	}
	lo, hi := b.MinAge, b.MaxAge
	if lo == 0 && hi == 0 {
		for _, g := range a.Groups {
			if lo == 0 || Number(g.MinAge) < lo {
				lo = Number(g.MinAge)
			}
			if Number(g.MaxAge) > hi {
				hi = Number(g.MaxAge)
			}
		}
	}
	if validAge(lo) && validAge(hi) && lo <= hi {
		a.Min, a.Max = int(lo), int(hi)
	}
	return a
}
