// Package report builds the run summary and renders it for the terminal.
package report

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/JakeFAU/camp-harvester/internal/camp"
	"github.com/JakeFAU/camp-harvester/internal/change"
)

// Defaults.
const (
	DefaultAttentionLimit = 10
	SuccessThreshold      = 60
)

// Entity is the per-camp input to a report.
type Entity struct {
	ID           string
	Name         string
	Quality      int
	BestStrategy camp.Strategy
}

// FromResults adapts run results.
func FromResults(results []camp.RunResult) []Entity {
	out := make([]Entity, 0, len(results))
	for _, r := range results {
		out = append(out, Entity{ID: r.EntityID, Name: r.Name, Quality: r.Quality, BestStrategy: r.BestStrategy})
	}
	return out
}

// FromRecords adapts snapshot records, used when regenerating a report
// without scraping.
func FromRecords(records []camp.Record) []Entity {
	out := make([]Entity, 0, len(records))
	for _, r := range records {
		out = append(out, Entity{ID: r.ID, Name: r.Name, Quality: r.LastQuality, BestStrategy: r.LastStrategy})
	}
	return out
}

// Input gathers everything Build needs.
type Input struct {
	RunID          string
	GeneratedAt    time.Time
	Entities       []Entity
	Changes        []camp.ChangeSet
	Effectiveness  map[camp.Strategy]camp.StrategyStats
	AttentionLimit int
}

// Build assembles the weekly report.
func Build(in Input) camp.WeeklyReport {
	limit := in.AttentionLimit
	if limit <= 0 {
		limit = DefaultAttentionLimit
	}
	eff := make(map[camp.Strategy]camp.StrategyStats, len(in.Effectiveness))
	for k, v := range in.Effectiveness {
		v.AvgQuality = round1(v.AvgQuality)
		eff[k] = v
	}
	return camp.WeeklyReport{
		RunID:                    in.RunID,
		GeneratedAt:              in.GeneratedAt,
		Summary:                  Summarize(in.Entities),
		Changes:                  CountChanges(in.Changes),
		StrategyEffectiveness:    eff,
		EntitiesNeedingAttention: Attention(in.Entities, limit),
	}
}

// Summarize classifies entities: successful at 60 or above, needs review
// between 1 and 59, failed at 0.
func Summarize(entities []Entity) camp.ReportSummary {
	s := camp.ReportSummary{TotalEntities: len(entities)}
	total := 0
	for _, e := range entities {
		total += e.Quality
		switch {
		case e.Quality >= SuccessThreshold:
			s.Successful++
		case e.Quality > 0:
			s.NeedsReview++
		default:
			s.Failed++
		}
	}
	if len(entities) > 0 {
		s.AvgQuality = round1(float64(total) / float64(len(entities)))
	}
	return s
}

// CountChanges tallies individual field changes across change sets.
func CountChanges(sets []camp.ChangeSet) camp.ChangeSummary {
	var s camp.ChangeSummary
	for _, set := range sets {
		if !set.HasChanges {
			continue
		}
		for _, c := range set.Changes {
			s.Total++
			switch c.Field {
			case change.FieldPrice:
				s.PriceChanges++
			case change.FieldRegistrationOpen:
				s.RegistrationChanges++
			}
		}
	}
	return s
}

// Attention returns up to limit entities ordered by ascending quality. Ties
// keep name order.
func Attention(entities []Entity, limit int) []camp.AttentionEntry {
	sorted := append([]Entity(nil), entities...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Quality != sorted[j].Quality {
			return sorted[i].Quality < sorted[j].Quality
		}
		return strings.ToLower(sorted[i].Name) < strings.ToLower(sorted[j].Name)
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	out := make([]camp.AttentionEntry, 0, len(sorted))
	for _, e := range sorted {
		out = append(out, camp.AttentionEntry{ID: e.ID, Name: e.Name, Quality: e.Quality, BestStrategy: e.BestStrategy})
	}
	return out
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
