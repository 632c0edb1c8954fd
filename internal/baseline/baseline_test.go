package baseline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/camp-harvester/internal/camp"
)

const sheet = `Camp Name,Website,Min_Age,Max_Age,Price_Min,Price_Max,Hours,Extended_Care,Contact_Email,Contact_Phone
Zoo Camp,zoo.example,5,12,$350,"$1,250",9am-3pm,yes,Info@Zoo.example,555-123-4567
,ignored.example,,,,,,,,
"Art ""Studio"" Camp",https://art.example/summer,6,,300.5,,,no,,
Zoo Camp,zoo2.example,,,,,,,,
Short Row Camp,short.example
`

func TestParse(t *testing.T) {
	t.Parallel()

	records, err := Parse(strings.NewReader(sheet), nil)
	require.NoError(t, err)
	require.Len(t, records, 4)

	zoo := records[0]
	assert.Equal(t, "zoo-camp", zoo.ID)
	assert.Equal(t, "Zoo Camp", zoo.Name)
	assert.Equal(t, "https://zoo.example", zoo.BaseURL)
	assert.Equal(t, camp.Baseline{
		MinAge: 5, MaxAge: 12, PriceMin: 350, PriceMax: 1250,
		Hours: "9am-3pm", ExtendedCare: "yes", Email: "info@zoo.example", Phone: "555-123-4567",
	}, zoo.Baseline)

	art := records[1]
	assert.Equal(t, "art-studio-camp", art.ID)
	assert.Equal(t, `Art "Studio" Camp`, art.Name)
	assert.Equal(t, "https://art.example/summer", art.BaseURL)
	assert.Equal(t, 301, art.Baseline.PriceMin)
	assert.Zero(t, art.Baseline.MaxAge)

	assert.Equal(t, "zoo-camp-2", records[2].ID)
	assert.Equal(t, "short-row-camp", records[3].ID)
	assert.Empty(t, records[3].Baseline.Hours)
}

func TestParseMissingRequiredColumn(t *testing.T) {
	t.Parallel()

	_, err := Parse(strings.NewReader("name,url\nZoo,zoo.example\n"), nil)
	require.ErrorIs(t, err, camp.ErrParse)

	_, err = Parse(strings.NewReader(""), nil)
	require.ErrorIs(t, err, camp.ErrParse)
}

func TestParseWarnsOnMissingOptionalColumns(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	records, err := Parse(strings.NewReader("CAMP_NAME,WEBSITE\nZoo Camp,zoo.example\n"), zap.New(core))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, len(Columns())-2, logs.FilterMessage("baseline column missing").Len())
}

func TestParseLenientQuotes(t *testing.T) {
	t.Parallel()

	input := "camp_name,website,hours\nBob's \"Best\" Camp,bob.example,9am\n"
	records, err := Parse(strings.NewReader(input), nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, `Bob's "Best" Camp`, records[0].Name)
	assert.Equal(t, "9am", records[0].Baseline.Hours)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "camps.csv")
	require.NoError(t, os.WriteFile(path, []byte("\ufeffcamp_name,website\nZoo Camp,zoo.example\n"), 0o600))
	records, err := Load(path, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "zoo-camp", records[0].ID)

	_, err = Load(filepath.Join(t.TempDir(), "missing.csv"), nil)
	require.Error(t, err)
}

func TestSlug(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ymca-camp-kern-2026", Slug("  YMCA Camp Kern (2026)!"))
	assert.Equal(t, "camp", Slug("!!!"))
}

func TestNormalizeWebsite(t *testing.T) {
	t.Parallel()

	assert.Empty(t, NormalizeWebsite(" "))
	assert.Equal(t, "https://zoo.example", NormalizeWebsite("zoo.example"))
	assert.Equal(t, "HTTP://zoo.example", NormalizeWebsite("HTTP://zoo.example"))
	assert.Equal(t, "https://zoo.example/x", NormalizeWebsite("//zoo.example/x"))
}

func TestMerge(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	facts := camp.CanonicalFacts{Pricing: camp.Pricing{camp.TierWeekly: 350}}
	prior := []camp.Record{
		{ID: "zoo-camp", Name: "Old Name", Extracted: &facts, LastQuality: 75, LastStrategy: camp.StrategyRendered,
			LastRunAt: at, ContentHash: "abc", URLs: []string{"https://zoo.example"}},
		{ID: "gone", Name: "Gone Camp"},
	}
	imported := []camp.Record{
		{ID: "zoo-camp", Name: "Zoo Camp", Baseline: camp.Baseline{MinAge: 5}},
		{ID: "new-camp", Name: "New Camp"},
	}

	merged := Merge(imported, prior)
	require.Len(t, merged, 2)
	assert.Equal(t, "Zoo Camp", merged[0].Name)
	assert.Equal(t, 5, merged[0].Baseline.MinAge)
	assert.Same(t, &facts, merged[0].Extracted)
	assert.Equal(t, 75, merged[0].LastQuality)
	assert.Equal(t, camp.StrategyRendered, merged[0].LastStrategy)
	assert.Equal(t, at, merged[0].LastRunAt)
	assert.Equal(t, "abc", merged[0].ContentHash)
	assert.Nil(t, merged[1].Extracted)
}

func TestFilter(t *testing.T) {
	t.Parallel()

	records := []camp.Record{{Name: "Zoo Camp"}, {Name: "Art Camp"}, {Name: "Zoo Explorers"}}
	assert.Len(t, Filter(records, "", 0), 3)
	assert.Len(t, Filter(records, "zoo", 0), 2)
	got := Filter(records, "ZOO", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "Zoo Camp", got[0].Name)
	assert.Empty(t, Filter(records, "gym", 0))
}
