// Package app builds the long-lived harvester services from configuration
// and hands the CLI a ready orchestrator. It is the only place that knows
// which concrete storage, browser, publisher and run store are in use.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/camp-harvester/internal/acquire"
	"github.com/JakeFAU/camp-harvester/internal/api"
	"github.com/JakeFAU/camp-harvester/internal/baseline"
	"github.com/JakeFAU/camp-harvester/internal/cache"
	"github.com/JakeFAU/camp-harvester/internal/camp"
	"github.com/JakeFAU/camp-harvester/internal/change"
	"github.com/JakeFAU/camp-harvester/internal/clock/system"
	"github.com/JakeFAU/camp-harvester/internal/config"
	"github.com/JakeFAU/camp-harvester/internal/discover"
	"github.com/JakeFAU/camp-harvester/internal/extract"
	collyfetcher "github.com/JakeFAU/camp-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/camp-harvester/internal/fetcher/headless"
	"github.com/JakeFAU/camp-harvester/internal/id/uuid"
	"github.com/JakeFAU/camp-harvester/internal/llm"
	"github.com/JakeFAU/camp-harvester/internal/metrics"
	"github.com/JakeFAU/camp-harvester/internal/pipeline"
	"github.com/JakeFAU/camp-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/camp-harvester/internal/progress"
	"github.com/JakeFAU/camp-harvester/internal/progress/sinks"
	memorypub "github.com/JakeFAU/camp-harvester/internal/publisher/memory"
	pubsubpub "github.com/JakeFAU/camp-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/camp-harvester/internal/quality"
	"github.com/JakeFAU/camp-harvester/internal/review"
	"github.com/JakeFAU/camp-harvester/internal/storage"
	gcsstore "github.com/JakeFAU/camp-harvester/internal/storage/gcs"
	"github.com/JakeFAU/camp-harvester/internal/storage/local"
	"github.com/JakeFAU/camp-harvester/internal/storage/memory"
	"github.com/JakeFAU/camp-harvester/internal/storage/postgres"
	"github.com/JakeFAU/camp-harvester/internal/store"
	"github.com/JakeFAU/camp-harvester/internal/strategy"
	"github.com/JakeFAU/camp-harvester/internal/validate"
)

// Options are per-invocation overrides from the command line. Zero values
// keep the configured behavior.
type Options struct {
	DryRun      bool
	Force       bool
	Strategies  []camp.Strategy
	Concurrency int
	Deadline    time.Duration

	// Progress receives one line per finished camp; nil disables the
	// console sink.
	Progress io.Writer

	// Registerer receives the progress collectors; nil means the default
	// Prometheus registry.
	Registerer prometheus.Registerer

	// StatusOnly builds storage and the stores but no harvester, for the
	// status API.
	StatusOnly bool
}

// App holds the services shared by one CLI invocation.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	blobs        storage.BlobStore
	browser      headless.Browser
	runs         *postgres.RunStore
	gcsClient    *gcs.Client
	pubsubClient *pubsub.Client
	topic        *pubsub.Topic
	hub          *progress.Hub
	orchestrator *pipeline.Orchestrator

	snapshots   *store.SnapshotStore
	changeLog   *store.ChangeLog
	pipelineLog *store.PipelineLog
	reports     *store.ReportWriter
	review      *review.Queue
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetConfig returns the resolved configuration.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// GetOrchestrator returns the wired run orchestrator.
func (a *App) GetOrchestrator() *pipeline.Orchestrator {
	return a.orchestrator
}

// GetStorage exposes the blob store that holds run artifacts.
func (a *App) GetStorage() storage.BlobStore {
	return a.blobs
}

// New builds every service named by cfg. It fails fast when a configured
// backend cannot be reached; optional backends that are not configured are
// simply left out.
func New(ctx context.Context, cfg config.Config, opts Options, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("Initializing harvester services...")
	a := &App{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close(ctx)
		}
	}()

	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	blobs, artifacts, pruner, err := a.buildStorage(ctx)
	if err != nil {
		return nil, err
	}
	a.blobs = blobs
	a.snapshots = store.NewSnapshotStore(blobs, cfg.Paths.Snapshot)
	a.changeLog = store.NewChangeLog(blobs, cfg.Paths.ChangeLog, store.ChangeLogRetention)
	a.pipelineLog = store.NewPipelineLog(blobs, cfg.Paths.PipelineLog, store.PipelineLogRetention)
	a.reports = store.NewReportWriter(blobs, cfg.Paths.ReportDir)
	a.review = review.New(review.Config{Threshold: cfg.Review.Threshold, Path: cfg.Paths.ReviewQueue}, blobs, logger.Named("review"))
	if opts.StatusOnly {
		logger.Info("Status services initialized.", zap.String("storage", cfg.Storage.Provider))
		ok = true
		return a, nil
	}

	clock := system.New()
	limiter := ratelimit.New(ratelimit.Config{
		BaseDelay: time.Duration(cfg.RateLimit.BaseDelayMs) * time.Millisecond,
		MaxDelay:  time.Duration(cfg.RateLimit.MaxDelayMs) * time.Millisecond,
	}, clock, logger.Named("ratelimit"))

	static := collyfetcher.New(collyfetcher.Config{
		UserAgent:      cfg.HTTP.UserAgent,
		RespectRobots:  cfg.HTTP.RespectRobots,
		Timeout:        cfg.HTTPTimeout(),
		MaxSitemapURLs: cfg.HTTP.MaxSitemapURLs,
	}, logger.Named("static"))

	browser, err := a.buildBrowser()
	if err != nil {
		return nil, err
	}
	a.browser = browser

	var semantic acquire.SemanticExtractor
	if cfg.LLM.APIKey != "" {
		semantic = llm.NewExtractor(llm.NewClient(cfg.LLM.APIKey), llm.Config{
			Model:             cfg.LLM.Model,
			MaxTokens:         int64(cfg.LLM.MaxTokens),
			RequestsPerMinute: cfg.LLM.RequestsPerMinute,
			MaxPageBytes:      cfg.LLM.MaxPageBytes,
		}, logger.Named("llm"))
	} else {
		logger.Info("No semantic extractor key configured; llm strategy unavailable")
	}

	discoverer := discover.New(discover.Config{
		MaxLinks:       cfg.Run.MaxLinks,
		MaxSitemapURLs: cfg.HTTP.MaxSitemapURLs,
		BlockedHosts:   cfg.Run.BlockedHosts,
	}, static, logger.Named("discover"))
	deps := acquire.Deps{
		Static:     static,
		Browser:    browser,
		Discoverer: discoverer,
		Limiter:    limiter,
		Artifacts:  artifacts,
	}
	if semantic != nil {
		deps.LLM = semantic
	}
	acquirer := acquire.New(acquire.Config{MaxPages: cfg.Run.MaxPages}, deps, logger.Named("acquire"))

	seasonYear := cfg.Run.SeasonYear
	if seasonYear == 0 {
		seasonYear = clock.Now().Year()
	}
	scorer := quality.Scorer{ExpectedYear: seasonYear}
	extractionLog := strategy.NewLog(blobs, cfg.Paths.ExtractionLog, logger.Named("extraction_log"))
	runner, err := strategy.NewRunner(strategy.Config{
		StaticRetries: cfg.HTTP.StaticRetries,
		Retries:       cfg.HTTP.Retries,
		Backoff:       cfg.Backoff(),
	}, strategy.Deps{
		Acquirer:  acquirer,
		Extractor: extract.Extractor{},
		Scorer:    scorer,
		Feedback:  limiter,
		Clock:     clock,
		Log:       extractionLog,
	}, logger.Named("strategy"))
	if err != nil {
		return nil, err
	}

	var contentCache *cache.Cache
	if !cfg.Cache.Disabled {
		contentCache = cache.New(cache.Config{TTL: cfg.CacheTTL(), Path: cfg.Paths.ContentCache}, blobs, clock, logger.Named("cache"))
	}

	publisher, err := a.buildPublisher(ctx)
	if err != nil {
		return nil, err
	}

	var runs pipeline.RunRecorder
	if cfg.DB.DSN != "" {
		logger.Info("Connecting to PostgreSQL run log...")
		runStore, err := postgres.NewRunStore(ctx, postgres.Config{
			DSN:          cfg.DB.DSN,
			RunsTable:    cfg.DB.RunsTable,
			ResultsTable: cfg.DB.ResultsTable,
			MaxConns:     cfg.DB.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize run log: %w", err)
		}
		a.runs = runStore
		runs = runStore
	}

	a.hub = a.buildProgress(ctx, opts)

	pcfg := pipeline.Config{
		Concurrency:    cfg.Run.Concurrency,
		DryRun:         opts.DryRun,
		Force:          opts.Force,
		Deadline:       cfg.Deadline(),
		ChangeTopic:    cfg.PubSub.TopicName,
		ArtifactMaxAge: cfg.ArtifactMaxAge(),
	}
	if pcfg.Strategies, err = cfg.StrategyList(); err != nil {
		return nil, err
	}
	if len(opts.Strategies) > 0 {
		pcfg.Strategies = opts.Strategies
	}
	if opts.Concurrency > 0 {
		pcfg.Concurrency = opts.Concurrency
	}
	if opts.Deadline > 0 {
		pcfg.Deadline = opts.Deadline
	}

	pdeps := pipeline.Deps{
		Runner:      runner,
		Scorer:      scorer,
		Validator:   validate.Validator{Required: cfg.Run.RequiredFields},
		Detector:    change.NewDetector(clock),
		Clock:       clock,
		IDs:         uuid.New(),
		Cache:       contentCache,
		Log:         extractionLog,
		Review:      a.review,
		Snapshots:   a.snapshots,
		ChangeLog:   a.changeLog,
		PipelineLog: a.pipelineLog,
		Reports:     a.reports,
		Publisher:   publisher,
		Runs:        runs,
		Progress:    a.hub,
	}
	if pruner != nil {
		pdeps.Artifacts = pruner
	}
	a.orchestrator, err = pipeline.New(pcfg, pdeps, logger.Named("pipeline"))
	if err != nil {
		return nil, err
	}

	logger.Info("Harvester services initialized.",
		zap.String("storage", cfg.Storage.Provider),
		zap.Bool("headless", cfg.Headless.Enabled),
		zap.Bool("llm", semantic != nil),
		zap.Bool("pubsub", a.topic != nil),
		zap.Bool("run_log", a.runs != nil))
	ok = true
	return a, nil
}

// buildStorage returns the main blob store, the store screenshots go to and,
// when the backend can delete files, the pruner for old screenshots.
func (a *App) buildStorage(ctx context.Context) (storage.BlobStore, storage.BlobStore, store.Pruner, error) {
	cfg := a.cfg
	switch cfg.Storage.Provider {
	case "gcs":
		a.logger.Info("Using GCS storage", zap.String("bucket", cfg.Storage.GCSBucket))
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		a.gcsClient = client
		blobs, err := gcsstore.New(client, gcsstore.Config{Bucket: cfg.Storage.GCSBucket, Prefix: cfg.Storage.Prefix})
		if err != nil {
			return nil, nil, nil, err
		}
		shots, err := gcsstore.New(client, gcsstore.Config{
			Bucket: cfg.Storage.GCSBucket,
			Prefix: filepath.ToSlash(filepath.Join(cfg.Storage.Prefix, cfg.Paths.ScreenshotDir)),
		})
		if err != nil {
			return nil, nil, nil, err
		}
		// Bucket lifecycle rules age out screenshots.
		return blobs, shots, nil, nil
	case "memory":
		a.logger.Info("Using in-memory storage; nothing outlives the process")
		return memory.NewBlobStore(), memory.NewBlobStore(), nil, nil
	default:
		blobs, err := local.New(local.Config{BaseDir: cfg.Paths.DataDir})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		shots, err := local.New(local.Config{BaseDir: filepath.Join(cfg.Paths.DataDir, cfg.Paths.ScreenshotDir)})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to initialize screenshot storage: %w", err)
		}
		a.logger.Info("Using local storage", zap.String("dir", blobs.BaseDir()))
		return blobs, shots, shots, nil
	}
}

func (a *App) buildBrowser() (headless.Browser, error) {
	cfg := a.cfg
	if !cfg.Headless.Enabled {
		a.logger.Info("Headless browser disabled; rendered strategies will fail fast")
		return headless.NewNoop(), nil
	}
	browser, err := headless.NewChromedp(headless.Config{
		MaxParallel:       cfg.Headless.MaxParallel,
		UserAgent:         cfg.Headless.UserAgent,
		NavigationTimeout: cfg.NavTimeout(),
		Settle:            time.Duration(cfg.Headless.SettleMs) * time.Millisecond,
		Scrolls:           cfg.Headless.Scrolls,
		ViewportWidth:     int64(cfg.Headless.ViewportWidth),
		ViewportHeight:    int64(cfg.Headless.ViewportHeight),
	}, a.logger.Named("headless"))
	if err != nil {
		return nil, fmt.Errorf("failed to start headless browser: %w", err)
	}
	return browser, nil
}

func (a *App) buildPublisher(ctx context.Context) (camp.Publisher, error) {
	cfg := a.cfg.PubSub
	if cfg.ProjectID == "" {
		return memorypub.New(), nil
	}
	a.logger.Info("Connecting to GCP Pub/Sub", zap.String("topic", cfg.TopicName))
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize pubsub: %w", err)
	}
	a.pubsubClient = client
	a.topic = client.Topic(cfg.TopicName)
	return pubsubpub.New(a.topic), nil
}

func (a *App) buildProgress(ctx context.Context, opts Options) *progress.Hub {
	var out []progress.Sink
	if opts.Progress != nil {
		out = append(out, sinks.NewConsoleSink(opts.Progress))
	}
	out = append(out, sinks.NewLogSink(a.logger.Named("progress")))
	if a.cfg.Metrics.Enabled {
		prom, err := sinks.NewPrometheusSink(opts.Registerer)
		if err != nil {
			a.logger.Warn("Progress metrics unavailable", zap.Error(err))
		} else {
			out = append(out, prom)
		}
	}
	return progress.NewHub(progress.Config{BaseContext: ctx, Logger: a.logger.Named("progress")}, out...)
}

// StatusHandler returns the read-only status API over this App's stores.
func (a *App) StatusHandler() (http.Handler, error) {
	srv, err := api.NewServer(api.Config{
		APIKey:  a.cfg.Server.APIKey,
		Timeout: a.cfg.ServerTimeout(),
	}, api.Deps{
		Snapshots:   a.snapshots,
		ChangeLog:   a.changeLog,
		PipelineLog: a.pipelineLog,
		Reports:     a.reports,
		Review:      a.review,
		Logger:      a.logger.Named("api"),
	})
	if err != nil {
		return nil, err
	}
	return srv.Handler(), nil
}

// LoadBaseline reads the configured baseline file. A missing file yields nil
// records so the run harvests the prior snapshot as is.
func (a *App) LoadBaseline() ([]camp.Record, error) {
	path := a.cfg.Paths.Baseline
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		a.logger.Info("No baseline file; harvesting the stored snapshot", zap.String("path", path))
		return nil, nil
	}
	return baseline.Load(path, a.logger.Named("baseline"))
}

// Close shuts down every service in the container. Metrics are pushed first
// so the final run is captured.
func (a *App) Close(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("Error flushing progress events", zap.Error(err))
		}
	}
	if a.cfg.Metrics.Enabled && a.cfg.Metrics.PushURL != "" {
		if err := metrics.Push(ctx, a.cfg.Metrics.PushURL, a.cfg.Metrics.Job); err != nil {
			a.logger.Warn("Error pushing metrics", zap.Error(err))
		}
	}
	if a.browser != nil {
		a.browser.Close()
	}
	if a.topic != nil {
		a.topic.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("Error closing pubsub client", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("Error closing storage client", zap.Error(err))
		}
	}
	if a.runs != nil {
		a.runs.Close()
	}
	// Flushing the logger is best effort; stderr sync fails on some platforms.
	_ = a.logger.Sync()
}
