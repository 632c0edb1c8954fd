// Package camp defines the shared domain types that flow through the harvest
// pipeline: tracked entities, canonical facts, strategy outcomes and reports.
package camp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Strategy names an acquisition mode. Strategies are tried in a configured
// order and their results merged.
type Strategy string

// Supported strategies.
const (
	StrategyStatic        Strategy = "static-fetch"
	StrategyRendered      Strategy = "rendered"
	StrategyAccessibility Strategy = "accessibility"
	StrategyScreenshot    Strategy = "screenshot"
	StrategyLLM           Strategy = "llm"
)

// AllStrategies returns the default strategy order.
func AllStrategies() []Strategy {
	return []Strategy{
		StrategyStatic,
		StrategyRendered,
		StrategyAccessibility,
		StrategyScreenshot,
		StrategyLLM,
	}
}

// ParseStrategy validates a strategy name.
func ParseStrategy(name string) (Strategy, error) {
	for _, s := range AllStrategies() {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown strategy %q", name)
}

// Tri is a tri-state boolean. The zero value is TriUnknown.
type Tri int8

// Tri values.
const (
	TriUnknown Tri = iota
	TriTrue
	TriFalse
)

// TriOf converts a bool.
func TriOf(b bool) Tri {
	if b {
		return TriTrue
	}
	return TriFalse
}

// Known reports whether the value is true or false.
func (t Tri) Known() bool { return t == TriTrue || t == TriFalse }

func (t Tri) String() string {
	switch t {
	case TriTrue:
		return "true"
	case TriFalse:
		return "false"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes true/false as JSON booleans and unknown as a string.
func (t Tri) MarshalJSON() ([]byte, error) {
	switch t {
	case TriTrue:
		return []byte("true"), nil
	case TriFalse:
		return []byte("false"), nil
	default:
		return []byte(`"unknown"`), nil
	}
}

// UnmarshalJSON accepts booleans, "true"/"false"/"unknown" strings and null.
func (t *Tri) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true", `"true"`:
		*t = TriTrue
	case "false", `"false"`:
		*t = TriFalse
	case "null", `"unknown"`, `""`:
		*t = TriUnknown
	default:
		return fmt.Errorf("invalid tri-state value %s", data)
	}
	return nil
}

// PriceTier names one pricing bucket.
type PriceTier string

// Pricing tiers.
const (
	TierWeekly       PriceTier = "weekly"
	TierDaily        PriceTier = "daily"
	TierSession      PriceTier = "session"
	TierHalfDay      PriceTier = "halfDay"
	TierFullDay      PriceTier = "fullDay"
	TierEarlyBird    PriceTier = "earlyBird"
	TierMember       PriceTier = "member"
	TierNonMember    PriceTier = "nonMember"
	TierExtendedCare PriceTier = "extendedCare"
)

// PriceTiers lists tiers in canonical order.
func PriceTiers() []PriceTier {
	return []PriceTier{
		TierWeekly, TierDaily, TierSession, TierHalfDay, TierFullDay,
		TierEarlyBird, TierMember, TierNonMember, TierExtendedCare,
	}
}

// Pricing maps tiers to whole-dollar amounts.
type Pricing map[PriceTier]int

// SessionKind distinguishes camp sessions from registration milestones.
type SessionKind string

// Session kinds.
const (
	KindSession      SessionKind = "session"
	KindRegistration SessionKind = "registration"
)

// Session is one dated camp offering.
type Session struct {
	Name  string      `json:"name"`
	Dates string      `json:"dates"`
	Theme string      `json:"theme,omitempty"`
	Kind  SessionKind `json:"kind"`
}

// Hours holds normalized time strings such as "9AM – 3PM".
type Hours struct {
	StandardRange  string `json:"standardRange,omitempty"`
	DropOff        string `json:"dropOff,omitempty"`
	PickUp         string `json:"pickUp,omitempty"`
	ExtendedBefore string `json:"extendedBefore,omitempty"`
	ExtendedAfter  string `json:"extendedAfter,omitempty"`
}

// IsZero reports whether no hours were found.
func (h Hours) IsZero() bool { return h == Hours{} }

// ExtendedCare describes before/after care availability.
type ExtendedCare struct {
	Available Tri    `json:"available"`
	Details   string `json:"details,omitempty"`
	Cost      int    `json:"cost,omitempty"`
	Times     string `json:"times,omitempty"`
}

// AgeGroup is a named age band such as "Explorers: ages 6-8".
type AgeGroup struct {
	Name   string `json:"name"`
	MinAge int    `json:"minAge"`
	MaxAge int    `json:"maxAge"`
}

// Ages captures the accepted age range and any named groups.
type Ages struct {
	Min    int        `json:"min,omitempty"`
	Max    int        `json:"max,omitempty"`
	Groups []AgeGroup `json:"groups,omitempty"`
}

// IsZero reports whether no age information was found.
func (a Ages) IsZero() bool { return a.Min == 0 && a.Max == 0 && len(a.Groups) == 0 }

// Registration summarizes enrollment state.
type Registration struct {
	Status    string `json:"status,omitempty"`
	OpensDate string `json:"opensDate,omitempty"`
	Waitlist  *bool  `json:"waitlist,omitempty"`
}

// IsZero reports whether no registration information was found.
func (r Registration) IsZero() bool {
	return r.Status == "" && r.OpensDate == "" && r.Waitlist == nil
}

// Contact holds contact details found on the page.
type Contact struct {
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// IsZero reports whether no contact details were found.
func (c Contact) IsZero() bool { return c == Contact{} }

// CanonicalFacts is the normalized extraction output for one entity.
type CanonicalFacts struct {
	Pricing       Pricing             `json:"pricing,omitempty"`
	Sessions      []Session           `json:"sessions,omitempty"`
	Hours         Hours               `json:"hours"`
	ExtendedCare  ExtendedCare        `json:"extendedCare"`
	Ages          Ages                `json:"ages"`
	Activities    []string            `json:"activities,omitempty"`
	Registration  Registration        `json:"registration"`
	Contact       Contact             `json:"contact"`
	Sources       map[string]Strategy `json:"sources,omitempty"`
	Confidence    map[string]int      `json:"confidence,omitempty"`
	// QualityScores records the score of every strategy that fed a merge.
	QualityScores map[Strategy]int    `json:"qualityScores,omitempty"`
}

// IsEmpty reports whether the record carries no facts at all.
func (f CanonicalFacts) IsEmpty() bool {
	return len(f.Pricing) == 0 &&
		len(f.Sessions) == 0 &&
		f.Hours.IsZero() &&
		!f.ExtendedCare.Available.Known() &&
		f.Ages.IsZero() &&
		len(f.Activities) == 0 &&
		f.Registration.IsZero() &&
		f.Contact.IsZero()
}

// Clone returns a deep copy.
func (f CanonicalFacts) Clone() CanonicalFacts {
	out := f
	if f.Pricing != nil {
		out.Pricing = make(Pricing, len(f.Pricing))
		for k, v := range f.Pricing {
			out.Pricing[k] = v
		}
	}
	out.Sessions = append([]Session(nil), f.Sessions...)
	out.Activities = append([]string(nil), f.Activities...)
	out.Ages.Groups = append([]AgeGroup(nil), f.Ages.Groups...)
	if f.Registration.Waitlist != nil {
		w := *f.Registration.Waitlist
		out.Registration.Waitlist = &w
	}
	if f.Sources != nil {
		out.Sources = make(map[string]Strategy, len(f.Sources))
		for k, v := range f.Sources {
			out.Sources[k] = v
		}
	}
	if f.Confidence != nil {
		out.Confidence = make(map[string]int, len(f.Confidence))
		for k, v := range f.Confidence {
			out.Confidence[k] = v
		}
	}
	if f.QualityScores != nil {
		out.QualityScores = make(map[Strategy]int, len(f.QualityScores))
		for k, v := range f.QualityScores {
			out.QualityScores[k] = v
		}
	}
	return out
}

// SortActivities sorts and dedupes the activity labels in place.
func (f *CanonicalFacts) SortActivities() {
	if len(f.Activities) == 0 {
		return
	}
	sort.Strings(f.Activities)
	out := f.Activities[:1]
	for _, a := range f.Activities[1:] {
		if a != out[len(out)-1] {
			out = append(out, a)
		}
	}
	f.Activities = out
}

// Baseline carries the facts imported from the spreadsheet.
type Baseline struct {
	MinAge       int    `json:"minAge,omitempty"`
	MaxAge       int    `json:"maxAge,omitempty"`
	PriceMin     int    `json:"priceMin,omitempty"`
	PriceMax     int    `json:"priceMax,omitempty"`
	Hours        string `json:"hours,omitempty"`
	ExtendedCare string `json:"extendedCare,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Address      string `json:"address,omitempty"`
	Category     string `json:"category,omitempty"`
}

// Record is one tracked camp.
type Record struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	BaseURL      string          `json:"baseUrl"`
	Baseline     Baseline        `json:"baseline"`
	Extracted    *CanonicalFacts `json:"extracted,omitempty"`
	LastQuality  int             `json:"lastQuality"`
	LastStrategy Strategy        `json:"lastStrategy,omitempty"`
	LastRunAt    time.Time       `json:"lastRunAt,omitempty"`
	ContentHash  string          `json:"contentHash,omitempty"`
	URLs         []string        `json:"urls,omitempty"`
}

// StrategyResult is the outcome of a single strategy for one entity.
type StrategyResult struct {
	Strategy    Strategy       `json:"strategy"`
	Success     bool           `json:"success"`
	Error       string         `json:"error,omitempty"`
	TextLength  int            `json:"textLength"`
	Extracted   CanonicalFacts `json:"extracted"`
	Quality     int            `json:"quality"`
	Attempts    int            `json:"attempts"`
	URLs        []string       `json:"urls,omitempty"`
	Artifacts   []string       `json:"artifacts,omitempty"`
	ContentHash string         `json:"contentHash,omitempty"`
	NeedsRender bool           `json:"needsRender,omitempty"`
	DurationMs  int64          `json:"durationMs"`
}

// Severity grades a validation issue.
type Severity string

// Severities.
const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Issue is one validation finding.
type Issue struct {
	Field    string   `json:"field"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Validation is the validator output.
type Validation struct {
	IsValid bool    `json:"isValid"`
	Issues  []Issue `json:"issues"`
}

// Significance grades a detected change.
type Significance string

// Significance levels.
const (
	SignificanceLow    Significance = "low"
	SignificanceMedium Significance = "medium"
	SignificanceHigh   Significance = "high"
)

// Change is a single field difference between two snapshots.
type Change struct {
	Field        string       `json:"field"`
	Old          any          `json:"old"`
	New          any          `json:"new"`
	Significance Significance `json:"significance"`
}

// ChangeSet groups the changes detected for one entity.
type ChangeSet struct {
	EntityID   string    `json:"entityId"`
	Name       string    `json:"name,omitempty"`
	HasChanges bool      `json:"hasChanges"`
	Changes    []Change  `json:"changes"`
	DetectedAt time.Time `json:"detectedAt"`
}

// RunResult is the full per-entity outcome of one pipeline run.
type RunResult struct {
	EntityID     string           `json:"entityId"`
	Name         string           `json:"name"`
	Success      bool             `json:"success"`
	Quality      int              `json:"quality"`
	BestStrategy Strategy         `json:"bestStrategy,omitempty"`
	Strategies   []StrategyResult `json:"strategies"`
	Merged       CanonicalFacts   `json:"merged"`
	Validation   Validation       `json:"validation"`
	Changes      ChangeSet        `json:"changes"`
	URLs         []string         `json:"urls,omitempty"`
	ContentHash  string           `json:"contentHash,omitempty"`
	FromCache    bool             `json:"fromCache,omitempty"`
	Error        string           `json:"error,omitempty"`
	FinishedAt   time.Time        `json:"finishedAt"`
}

// StrategyStats aggregates strategy effectiveness.
type StrategyStats struct {
	Attempts   int     `json:"attempts"`
	Successes  int     `json:"successes"`
	AvgQuality float64 `json:"avgQuality"`
}

// AttentionEntry is an entity surfaced in the weekly report.
type AttentionEntry struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Quality      int      `json:"quality"`
	BestStrategy Strategy `json:"bestStrategy,omitempty"`
}

// ReportSummary holds the headline numbers of a WeeklyReport.
type ReportSummary struct {
	TotalEntities int     `json:"totalEntities"`
	Successful    int     `json:"successful"`
	NeedsReview   int     `json:"needsReview"`
	Failed        int     `json:"failed"`
	AvgQuality    float64 `json:"avgQuality"`
}

// ChangeSummary counts changes in a WeeklyReport.
type ChangeSummary struct {
	Total               int `json:"total"`
	PriceChanges        int `json:"priceChanges"`
	RegistrationChanges int `json:"registrationChanges"`
}

// WeeklyReport is the run-level summary artifact.
type WeeklyReport struct {
	RunID                    string                     `json:"runId,omitempty"`
	GeneratedAt              time.Time                  `json:"generatedAt"`
	Summary                  ReportSummary              `json:"summary"`
	Changes                  ChangeSummary              `json:"changes"`
	StrategyEffectiveness    map[Strategy]StrategyStats `json:"strategyEffectiveness"`
	EntitiesNeedingAttention []AttentionEntry           `json:"entitiesNeedingAttention"`
}

// MarshalIndent is a small helper shared by the JSON stores.
func MarshalIndent(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	return data, nil
}

// PipelineRun is one entry of the pipeline log.
type PipelineRun struct {
	RunID       string     `json:"runId"`
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  time.Time  `json:"finishedAt"`
	DurationMs  int64      `json:"durationMs"`
	Entities    int        `json:"entities"`
	Successful  int        `json:"successful"`
	NeedsReview int        `json:"needsReview"`
	Failed      int        `json:"failed"`
	FromCache   int        `json:"fromCache"`
	AvgQuality  float64    `json:"avgQuality"`
	Strategies  []Strategy `json:"strategies"`
	Force       bool       `json:"force,omitempty"`
	Deadline    bool       `json:"deadlineReached,omitempty"`
	Errors      []string   `json:"errors,omitempty"`
}
