// Package app_test contains unit tests for the app package.
package app_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/camp-harvester/internal/app"
	"github.com/JakeFAU/camp-harvester/internal/camp"
	"github.com/JakeFAU/camp-harvester/internal/config"
	"github.com/JakeFAU/camp-harvester/internal/pipeline"
	"github.com/JakeFAU/camp-harvester/internal/storage/local"
	"github.com/JakeFAU/camp-harvester/internal/storage/memory"
)

const zooPage = `<!doctype html>
<html><head><title>Zoo Camp</title></head>
<body><main>
<h1>Zoo Camp Summer</h1>
<p>Ages 5-12. Camp runs 9am - 3pm, Monday through Friday.</p>
<p>Tuition: $350 per week.</p>
<p>Registration is open now.</p>
</main></body></html>`

// testConfig returns defaults with every external backend switched off.
func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.LoadFile("")
	require.NoError(t, err)
	cfg.Storage.Provider = "memory"
	cfg.Headless.Enabled = false
	cfg.Metrics.Enabled = false
	cfg.LLM.APIKey = ""
	cfg.PubSub.ProjectID = ""
	cfg.DB.DSN = ""
	cfg.RateLimit.BaseDelayMs = 10
	cfg.RateLimit.MaxDelayMs = 100
	cfg.HTTP.BackoffMs = 1
	cfg.Paths.Baseline = filepath.Join(t.TempDir(), "camps.csv")
	return cfg
}

func TestNewMemoryBackends(t *testing.T) {
	ctx := context.Background()
	a, err := app.New(ctx, testConfig(t), app.Options{DryRun: true}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(ctx) })

	require.NotNil(t, a.GetOrchestrator())
	require.NotNil(t, a.GetLogger())
	assert.IsType(t, &memory.BlobStore{}, a.GetStorage())
	assert.Equal(t, "memory", a.GetConfig().Storage.Provider)

	weekly, uri, err := a.GetOrchestrator().Regenerate(ctx)
	require.NoError(t, err)
	assert.Empty(t, uri)
	assert.Zero(t, weekly.Summary.TotalEntities)
}

func TestNewLocalStorage(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Storage.Provider = "local"
	cfg.Paths.DataDir = filepath.Join(t.TempDir(), "data")

	a, err := app.New(ctx, cfg, app.Options{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(ctx) })

	store, ok := a.GetStorage().(*local.BlobStore)
	require.True(t, ok)
	assert.Equal(t, cfg.Paths.DataDir, store.BaseDir())
	info, err := os.Stat(filepath.Join(cfg.Paths.DataDir, cfg.Paths.ScreenshotDir))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewRejectsBadRunLogDSN(t *testing.T) {
	cfg := testConfig(t)
	cfg.DB.DSN = "://not-a-dsn"

	_, err := app.New(context.Background(), cfg, app.Options{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize run log")
}

func TestStatusHandlerServesStores(t *testing.T) {
	ctx := context.Background()
	a, err := app.New(ctx, testConfig(t), app.Options{StatusOnly: true}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(ctx) })
	assert.Nil(t, a.GetOrchestrator())

	handler, err := a.StatusHandler()
	require.NoError(t, err)

	for _, target := range []string{"/healthz", "/readyz", "/v1/camps", "/v1/runs", "/v1/review"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusOK, rec.Code, target)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/reports/latest", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoadBaseline(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	a, err := app.New(ctx, cfg, app.Options{DryRun: true}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(ctx) })

	records, err := a.LoadBaseline()
	require.NoError(t, err)
	assert.Nil(t, records)

	csv := "camp_name,website,min_age,max_age,price_min,price_max,hours,extended_care,contact_email,contact_phone\n" +
		"Zoo Camp,zoo.example.org,5,12,300,350,9-3,yes,info@zoo.example.org,555-0100\n"
	require.NoError(t, os.WriteFile(cfg.Paths.Baseline, []byte(csv), 0o600))

	records, err = a.LoadBaseline()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "zoo-camp", records[0].ID)
	assert.Equal(t, "https://zoo.example.org", records[0].BaseURL)
}

func TestHarvestStaticFetchEndToEnd(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, zooPage)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Metrics.Enabled = true
	var progressOut bytes.Buffer
	a, err := app.New(ctx, cfg, app.Options{
		Strategies: []camp.Strategy{camp.StrategyStatic},
		Progress:   &progressOut,
		Registerer: prometheus.NewRegistry(),
	}, nil)
	require.NoError(t, err)

	sum, err := a.GetOrchestrator().Run(ctx, pipeline.Input{
		Imported: []camp.Record{{ID: "zoo-camp", Name: "Zoo Camp", BaseURL: srv.URL + "/"}},
	})
	require.NoError(t, err)
	a.Close(ctx)

	require.Len(t, sum.Results, 1)
	res := sum.Results[0]
	assert.True(t, res.Success, res.Error)
	assert.Equal(t, camp.StrategyStatic, res.BestStrategy)
	assert.Positive(t, res.Quality)
	require.Len(t, sum.Records, 1)
	require.NotNil(t, sum.Records[0].Extracted)
	assert.NotEmpty(t, sum.ReportURI)
	assert.Equal(t, 1, sum.Report.Summary.TotalEntities)

	snapshot, err := a.GetStorage().GetObject(ctx, cfg.Paths.Snapshot)
	require.NoError(t, err)
	assert.Contains(t, string(snapshot), "zoo-camp")
	assert.Contains(t, progressOut.String(), "Zoo Camp")
}
