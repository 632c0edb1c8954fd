package cmd

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/camp-harvester/internal/app"
	"github.com/JakeFAU/camp-harvester/internal/camp"
	internalconfig "github.com/JakeFAU/camp-harvester/internal/config"
	"github.com/JakeFAU/camp-harvester/internal/pipeline"
)

type fakeHarvester struct {
	input       pipeline.Input
	ran         bool
	regenerated bool
	runErr      error
}

func (h *fakeHarvester) Run(_ context.Context, in pipeline.Input) (pipeline.Summary, error) {
	h.ran = true
	h.input = in
	if h.runErr != nil {
		return pipeline.Summary{}, h.runErr
	}
	return pipeline.Summary{
		Run: camp.PipelineRun{RunID: "run-1", Entities: 1},
		Report: camp.WeeklyReport{
			GeneratedAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
			Summary:     camp.ReportSummary{TotalEntities: 1, Successful: 1, AvgQuality: 82},
		},
	}, nil
}

func (h *fakeHarvester) Regenerate(context.Context) (camp.WeeklyReport, string, error) {
	h.regenerated = true
	return camp.WeeklyReport{GeneratedAt: time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC)}, "reports/report-2026-06-02.json", nil
}

type fakeApp struct {
	harvester *fakeHarvester
	records   []camp.Record
	closed    bool
	served    bool
}

func (a *fakeApp) Close(context.Context) { a.closed = true }
func (a *fakeApp) GetLogger() *zap.Logger { return zap.NewNop() }
func (a *fakeApp) LoadBaseline() ([]camp.Record, error) { return a.records, nil }
func (a *fakeApp) Harvester() Harvester { return a.harvester }

func (a *fakeApp) StatusHandler() (http.Handler, error) {
	a.served = true
	return http.NotFoundHandler(), nil
}

// runRoot executes the root command against a fake app and returns stdout.
func runRoot(t *testing.T, fake *fakeApp, args ...string) (string, app.Options, error) {
	t.Helper()
	return runRootContext(context.Background(), t, fake, args...)
}

func runRootContext(ctx context.Context, t *testing.T, fake *fakeApp, args ...string) (string, app.Options, error) {
	t.Helper()
	viper.Reset()
	var captured app.Options
	original := newApp
	newApp = func(_ context.Context, _ internalconfig.Config, opts app.Options, _ *zap.Logger) (App, error) {
		captured = opts
		return fake, nil
	}
	t.Cleanup(func() { newApp = original })

	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return stdout.String(), captured, err
}

func TestRootHarvestsWithFilters(t *testing.T) {
	fake := &fakeApp{
		harvester: &fakeHarvester{},
		records:   []camp.Record{{ID: "zoo-camp", Name: "Zoo Camp"}},
	}
	out, opts, err := runRoot(t, fake,
		"--camp", "zoo", "--limit", "2", "--strategy", "static-fetch,llm",
		"--dry-run", "--force", "--concurrency", "5", "--deadline", "45m")
	require.NoError(t, err)

	assert.True(t, fake.harvester.ran)
	assert.False(t, fake.harvester.regenerated)
	assert.Equal(t, "zoo", fake.harvester.input.NameFilter)
	assert.Equal(t, 2, fake.harvester.input.Limit)
	assert.Equal(t, fake.records, fake.harvester.input.Imported)
	assert.True(t, fake.closed)

	assert.True(t, opts.DryRun)
	assert.True(t, opts.Force)
	assert.Equal(t, 5, opts.Concurrency)
	assert.Equal(t, 45*time.Minute, opts.Deadline)
	assert.Equal(t, []camp.Strategy{camp.StrategyStatic, camp.StrategyLLM}, opts.Strategies)

	assert.Contains(t, out, "Run summary 2026-06-01")
}

func TestRootReportRegenerates(t *testing.T) {
	fake := &fakeApp{harvester: &fakeHarvester{}}
	out, _, err := runRoot(t, fake, "--report")
	require.NoError(t, err)

	assert.True(t, fake.harvester.regenerated)
	assert.False(t, fake.harvester.ran)
	assert.Contains(t, out, "Run summary 2026-06-02")
}

func TestRootRunFailureClosesApp(t *testing.T) {
	fake := &fakeApp{harvester: &fakeHarvester{runErr: camp.ErrPersistence}}
	_, _, err := runRoot(t, fake)
	require.Error(t, err)
	assert.True(t, errors.Is(err, camp.ErrPersistence))
	assert.True(t, fake.closed)
}

func TestRootRejectsBadFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"strategy", []string{"--strategy", "ocr"}, "--strategy"},
		{"deadline", []string{"--deadline", "soon"}, "--deadline"},
		{"negative deadline", []string{"--deadline", "-5m"}, "--deadline must be positive"},
		{"limit", []string{"--limit", "-1"}, "--limit"},
		{"args", []string{"extra"}, "unknown command"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeApp{harvester: &fakeHarvester{}}
			_, _, err := runRoot(t, fake, tc.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
			assert.False(t, fake.harvester.ran)
		})
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fake := &fakeApp{harvester: &fakeHarvester{}}
	_, opts, err := runRootContext(ctx, t, fake, "serve", "--addr", "127.0.0.1:0")
	require.NoError(t, err)

	assert.True(t, opts.StatusOnly)
	assert.True(t, fake.served)
	assert.True(t, fake.closed)
	assert.False(t, fake.harvester.ran)
}

func TestParseDeadline(t *testing.T) {
	d, err := parseDeadline("90m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	_, err = parseDeadline("0s")
	require.Error(t, err)
}
