package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/JakeFAU/camp-harvester/internal/camp"
)

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	t.SetTitle(title)
	return t
}

// Render prints the totals, strategy effectiveness and attention tables.
func Render(w io.Writer, r camp.WeeklyReport) {
	totals := newTable(w, "Run summary "+r.GeneratedAt.UTC().Format("2006-01-02"))
	totals.AppendHeader(table.Row{"Total", "Successful", "Needs review", "Failed", "Avg quality", "Changes", "Price", "Registration"})
	totals.AppendRow(table.Row{
		r.Summary.TotalEntities, r.Summary.Successful, r.Summary.NeedsReview, r.Summary.Failed,
		fmt.Sprintf("%.1f", r.Summary.AvgQuality),
		r.Changes.Total, r.Changes.PriceChanges, r.Changes.RegistrationChanges,
	})
	totals.Render()

	if len(r.StrategyEffectiveness) > 0 {
		eff := newTable(w, "Strategy effectiveness")
		eff.AppendHeader(table.Row{"Strategy", "Attempts", "Successes", "Avg quality"})
		for _, s := range orderedStrategies(r.StrategyEffectiveness) {
			st := r.StrategyEffectiveness[s]
			eff.AppendRow(table.Row{s, st.Attempts, st.Successes, fmt.Sprintf("%.1f", st.AvgQuality)})
		}
		eff.SetColumnConfigs([]table.ColumnConfig{
			{Number: 2, Align: text.AlignRight},
			{Number: 3, Align: text.AlignRight},
			{Number: 4, Align: text.AlignRight},
		})
		eff.Render()
	}

	if len(r.EntitiesNeedingAttention) > 0 {
		att := newTable(w, "Needs attention")
		att.AppendHeader(table.Row{"#", "Camp", "Quality", "Best strategy"})
		for i, e := range r.EntitiesNeedingAttention {
			best := string(e.BestStrategy)
			if best == "" {
				best = "-"
			}
			att.AppendRow(table.Row{i + 1, e.Name, e.Quality, best})
		}
		att.Render()
	}
}

// orderedStrategies lists known strategies in pipeline order, then any
// others alphabetically.
func orderedStrategies(m map[camp.Strategy]camp.StrategyStats) []camp.Strategy {
	out := make([]camp.Strategy, 0, len(m))
	seen := make(map[camp.Strategy]bool, len(m))
	for _, s := range camp.AllStrategies() {
		if _, ok := m[s]; ok {
			out = append(out, s)
			seen[s] = true
		}
	}
	var rest []camp.Strategy
	for s := range m {
		if !seen[s] {
			rest = append(rest, s)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	return append(out, rest...)
}
