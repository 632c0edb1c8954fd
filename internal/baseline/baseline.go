// Package baseline imports the tracked-camp spreadsheet and reconciles it with
// the previous run's snapshot.
package baseline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/camp-harvester/internal/camp"
)

// Column names understood by Parse. Headers match case-insensitively and
// spaces are treated as underscores.
const (
	ColName         = "camp_name"
	ColWebsite      = "website"
	ColMinAge       = "min_age"
	ColMaxAge       = "max_age"
	ColPriceMin     = "price_min"
	ColPriceMax     = "price_max"
	ColHours        = "hours"
	ColExtendedCare = "extended_care"
	ColEmail        = "contact_email"
	ColPhone        = "contact_phone"
	ColAddress      = "address"
	ColCategory     = "category"
)

// Columns lists the expected columns in file order.
func Columns() []string {
	return []string{
		ColName, ColWebsite, ColMinAge, ColMaxAge, ColPriceMin, ColPriceMax,
		ColHours, ColExtendedCare, ColEmail, ColPhone,
	}
}

var (
	numberRe = regexp.MustCompile(`\d+(?:\.\d+)?`)
	slugRe   = regexp.MustCompile(`[^a-z0-9]+`)
)

// Load reads the baseline file at path.
func Load(path string, logger *zap.Logger) ([]camp.Record, error) {
	f, err := os.Open(path) // #nosec G304 -- operator-supplied input file.
	if err != nil {
		return nil, fmt.Errorf("open baseline %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f, logger)
}

// Parse reads baseline rows. Quoting is lenient and rows may be short;
// malformed rows are logged and kept with whatever fields parsed. Rows with
// a blank camp name are skipped.
func Parse(r io.Reader, logger *zap.Logger) ([]camp.Record, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("baseline has no header row: %w", camp.ErrParse)
		}
		return nil, fmt.Errorf("read baseline header: %w: %w", camp.ErrParse, err)
	}
	colIdx := make(map[string]int, len(header))
	for i, col := range header {
		colIdx[normalizeHeader(col)] = i
	}
	for _, col := range []string{ColName, ColWebsite} {
		if _, ok := colIdx[col]; !ok {
			return nil, fmt.Errorf("baseline missing required column %q: %w", col, camp.ErrParse)
		}
	}
	for _, col := range Columns() {
		if _, ok := colIdx[col]; !ok {
			logger.Warn("baseline column missing", zap.String("column", col))
		}
	}

	var (
		records []camp.Record
		ids     = make(map[string]int)
		line    = 1
	)
	for {
		row, err := reader.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return nil, fmt.Errorf("read baseline: %w", err)
			}
			logger.Warn("malformed baseline row", zap.Int("line", line), zap.Error(err))
			if row == nil {
				continue
			}
		}
		get := func(col string) string { return getCol(row, colIdx, col) }
		name := get(ColName)
		if name == "" {
			continue
		}
		rec := camp.Record{
			ID:      uniqueID(ids, Slug(name)),
			Name:    name,
			BaseURL: NormalizeWebsite(get(ColWebsite)),
			Baseline: camp.Baseline{
				MinAge:       parseInt(get(ColMinAge)),
				MaxAge:       parseInt(get(ColMaxAge)),
				PriceMin:     parseInt(get(ColPriceMin)),
				PriceMax:     parseInt(get(ColPriceMax)),
				Hours:        get(ColHours),
				ExtendedCare: get(ColExtendedCare),
				Email:        strings.ToLower(get(ColEmail)),
				Phone:        get(ColPhone),
				Address:      get(ColAddress),
				Category:     get(ColCategory),
			},
		}
		records = append(records, rec)
	}
	return records, nil
}

func normalizeHeader(col string) string {
	col = strings.TrimPrefix(col, "\ufeff")
	col = strings.ToLower(strings.TrimSpace(col))
	return strings.Join(strings.Fields(col), "_")
}

func getCol(row []string, colIdx map[string]int, col string) string {
	i, ok := colIdx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseInt reads the first number in s ("$1,250" -> 1250, "5 yrs" -> 5).
func parseInt(s string) int {
	m := numberRe.FindString(strings.ReplaceAll(s, ",", ""))
	if m == "" {
		return 0
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return int(f + 0.5)
}

// Slug derives a stable entity id from a camp name.
func Slug(name string) string {
	s := slugRe.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "camp"
	}
	return s
}

func uniqueID(seen map[string]int, id string) string {
	seen[id]++
	if n := seen[id]; n > 1 {
		candidate := fmt.Sprintf("%s-%d", id, n)
		for seen[candidate] > 0 {
			n++
			candidate = fmt.Sprintf("%s-%d", id, n)
		}
		seen[candidate]++
		return candidate
	}
	return id
}

// NormalizeWebsite adds a scheme to bare domains. Blank input stays blank.
func NormalizeWebsite(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return raw
	}
	return "https://" + strings.TrimPrefix(raw, "//")
}

// Merge overlays freshly imported baseline records on the prior snapshot.
// Baseline columns come from the import; extraction state (extracted facts,
// quality, strategy, hash, URLs, last run) carries over by id. Records that
// are no longer in the baseline are dropped.
func Merge(imported, prior []camp.Record) []camp.Record {
	byID := make(map[string]camp.Record, len(prior))
	for _, rec := range prior {
		byID[rec.ID] = rec
	}
	out := make([]camp.Record, 0, len(imported))
	for _, rec := range imported {
		if old, ok := byID[rec.ID]; ok {
			rec.Extracted = old.Extracted
			rec.LastQuality = old.LastQuality
			rec.LastStrategy = old.LastStrategy
			rec.LastRunAt = old.LastRunAt
			rec.ContentHash = old.ContentHash
			rec.URLs = old.URLs
		}
		out = append(out, rec)
	}
	return out
}

// Filter narrows records by case-insensitive name substring and then caps
// the count. Zero limit means no cap.
func Filter(records []camp.Record, nameSubstring string, limit int) []camp.Record {
	needle := strings.ToLower(strings.TrimSpace(nameSubstring))
	out := make([]camp.Record, 0, len(records))
	for _, rec := range records {
		if needle != "" && !strings.Contains(strings.ToLower(rec.Name), needle) {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
