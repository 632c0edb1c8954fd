// Package pipeline runs a harvest: it fans camps out to the strategy runner
// with bounded concurrency, merges and scores the results, detects changes
// against the prior snapshot and writes every run artifact in a fixed order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/camp-harvester/internal/baseline"
	"github.com/JakeFAU/camp-harvester/internal/cache"
	"github.com/JakeFAU/camp-harvester/internal/camp"
	"github.com/JakeFAU/camp-harvester/internal/progress"
	"github.com/JakeFAU/camp-harvester/internal/quality"
	"github.com/JakeFAU/camp-harvester/internal/report"
	"github.com/JakeFAU/camp-harvester/internal/review"
	"github.com/JakeFAU/camp-harvester/internal/store"
	"github.com/JakeFAU/camp-harvester/internal/strategy"
)

// Defaults.
const (
	DefaultConcurrency = 3
	DefaultChangeTopic = "camp-changes"
)

// StrategyRunner runs the selected modes for one camp.
type StrategyRunner interface {
	RunAll(ctx context.Context, rec camp.Record, modes []camp.Strategy) []camp.StrategyResult
}

// Validator checks merged facts.
type Validator interface {
	Validate(f camp.CanonicalFacts) camp.Validation
}

// ChangeDetector diffs merged facts against the prior snapshot.
type ChangeDetector interface {
	Detect(entityID string, prior *camp.CanonicalFacts, current camp.CanonicalFacts) camp.ChangeSet
}

// RunRecorder mirrors run summaries to an external store.
type RunRecorder interface {
	RecordRun(ctx context.Context, run camp.PipelineRun, results []camp.RunResult) error
}

// Config controls one run.
type Config struct {
	Concurrency int
	Strategies  []camp.Strategy
	DryRun      bool
	Force       bool
	// Deadline stops dispatching new camps once this much time has passed.
	// Camps already started run to completion. Zero disables it.
	Deadline       time.Duration
	ChangeTopic    string
	ArtifactDir    string
	ArtifactMaxAge time.Duration
}

// Deps are the orchestrator's collaborators. Cache, Progress, Publisher,
// Runs and Artifacts are optional.
type Deps struct {
	Runner      StrategyRunner
	Scorer      quality.Scorer
	Validator   Validator
	Detector    ChangeDetector
	Clock       camp.Clock
	IDs         camp.IDGenerator
	Cache       *cache.Cache
	Log         *strategy.Log
	Review      *review.Queue
	Snapshots   *store.SnapshotStore
	ChangeLog   *store.ChangeLog
	PipelineLog *store.PipelineLog
	Reports     *store.ReportWriter
	Artifacts   store.Pruner
	Publisher   camp.Publisher
	Runs        RunRecorder
	Progress    progress.Emitter
}

// Input selects the camps for a run. A nil Imported list harvests the prior
// snapshot as is.
type Input struct {
	Imported   []camp.Record
	NameFilter string
	Limit      int
}

// Summary is what a run produced.
type Summary struct {
	Run       camp.PipelineRun
	Results   []camp.RunResult
	Records   []camp.Record
	Report    camp.WeeklyReport
	ReportURI string
	Published int
	Pruned    int
}

// Orchestrator coordinates a harvest run.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// New validates deps and applies defaults.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Orchestrator, error) {
	if deps.Runner == nil || deps.Validator == nil || deps.Detector == nil || deps.Clock == nil || deps.IDs == nil {
		return nil, fmt.Errorf("orchestrator requires runner, validator, detector, clock and id generator: %w", camp.ErrInvariant)
	}
	if deps.Log == nil || deps.Review == nil || deps.Snapshots == nil || deps.ChangeLog == nil || deps.PipelineLog == nil || deps.Reports == nil {
		return nil, fmt.Errorf("orchestrator requires extraction log, review queue and stores: %w", camp.ErrInvariant)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = camp.AllStrategies()
	}
	if cfg.ChangeTopic == "" {
		cfg.ChangeTopic = DefaultChangeTopic
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{cfg: cfg, deps: deps, logger: logger}, nil
}

type runState struct {
	id      string
	eventID [16]byte
	started time.Time
}

// Run harvests the selected camps and, unless in dry-run mode, writes the
// snapshot, change log, pipeline log, report and review queue in that
// order, then prunes old screenshots. A canceled ctx stops dispatch, saves
// the cache and review queue and returns the context error.
func (o *Orchestrator) Run(ctx context.Context, in Input) (Summary, error) {
	run, err := o.startRun()
	if err != nil {
		return Summary{}, err
	}
	logger := o.logger.With(zap.String("run_id", run.id))

	records, err := o.load(ctx, in)
	if err != nil {
		return Summary{}, err
	}
	selected := baseline.Filter(records, in.NameFilter, in.Limit)
	logger.Info("harvest starting",
		zap.Int("camps", len(selected)),
		zap.Int("tracked", len(records)),
		zap.Int("concurrency", o.cfg.Concurrency),
		zap.Bool("dry_run", o.cfg.DryRun),
		zap.Bool("force", o.cfg.Force))
	o.emit(progress.Event{RunID: run.eventID, Stage: progress.StageRunStart, Count: len(selected)})

	outcomes, deadlineHit := o.dispatch(ctx, run, selected)

	if ctx.Err() != nil {
		logger.Warn("harvest interrupted; saving cache and review queue", zap.Error(ctx.Err()))
		o.shutdown(logger)
		return Summary{}, fmt.Errorf("harvest interrupted: %w", ctx.Err())
	}

	sum := o.collect(run, records, outcomes, deadlineHit)
	if !o.cfg.DryRun {
		if err := o.persist(ctx, &sum, logger); err != nil {
			o.emitRunDone(run, sum, err.Error())
			return sum, err
		}
	}
	o.emitRunDone(run, sum, "")
	logger.Info("harvest complete",
		zap.Int("camps", sum.Run.Entities),
		zap.Int("successful", sum.Run.Successful),
		zap.Int("needs_review", sum.Run.NeedsReview),
		zap.Int("failed", sum.Run.Failed),
		zap.Float64("avg_quality", sum.Run.AvgQuality),
		zap.Bool("deadline_reached", deadlineHit))
	return sum, nil
}

func (o *Orchestrator) startRun() (runState, error) {
	id, err := o.deps.IDs.NewID()
	if err != nil {
		return runState{}, fmt.Errorf("start run: %w", err)
	}
	eventID, err := progress.ParseRunID(id)
	if err != nil {
		return runState{}, fmt.Errorf("start run: %w: %w", camp.ErrInvariant, err)
	}
	return runState{id: id, eventID: eventID, started: o.deps.Clock.Now()}, nil
}

// load reads the prior snapshot and the persistent collaborators, then
// overlays imported baseline rows when present.
func (o *Orchestrator) load(ctx context.Context, in Input) ([]camp.Record, error) {
	prior, err := o.deps.Snapshots.Load(ctx)
	if err != nil {
		return nil, err
	}
	if o.deps.Cache != nil {
		if err := o.deps.Cache.Load(ctx); err != nil {
			return nil, err
		}
	}
	if err := o.deps.Log.Load(ctx); err != nil {
		return nil, err
	}
	if err := o.deps.Review.Load(ctx); err != nil {
		return nil, err
	}
	if in.Imported == nil {
		return prior, nil
	}
	return baseline.Merge(in.Imported, prior), nil
}

type outcome struct {
	result camp.RunResult
	record camp.Record
	done   bool
}

// dispatch runs one task per camp with at most Concurrency in flight. It
// stops handing out camps once the deadline passes or ctx ends.
func (o *Orchestrator) dispatch(ctx context.Context, run runState, selected []camp.Record) ([]outcome, bool) {
	outcomes := make([]outcome, len(selected))
	var (
		deadline    time.Time
		deadlineHit bool
		mu          sync.Mutex
	)
	if o.cfg.Deadline > 0 {
		deadline = run.started.Add(o.cfg.Deadline)
	}

	expired := func() bool {
		if deadline.IsZero() || o.deps.Clock.Now().Before(deadline) {
			return false
		}
		mu.Lock()
		deadlineHit = true
		mu.Unlock()
		return true
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	for i := range selected {
		if ctx.Err() != nil || expired() {
			break
		}
		rec := selected[i]
		g.Go(func() error {
			// A slot may free up only after the deadline has passed.
			if gctx.Err() != nil || expired() {
				return nil
			}
			res, updated := o.processEntity(gctx, run, rec)
			mu.Lock()
			outcomes[i] = outcome{result: res, record: updated, done: true}
			mu.Unlock()
			return nil // one camp failing never aborts the run
		})
	}
	_ = g.Wait()
	if deadlineHit {
		skipped := 0
		for _, oc := range outcomes {
			if !oc.done {
				skipped++
			}
		}
		o.logger.Warn("run deadline reached; remaining camps not started", zap.Int("skipped", skipped))
	}
	return outcomes, deadlineHit
}

// collect folds finished outcomes into the snapshot and the run summary.
func (o *Orchestrator) collect(run runState, records []camp.Record, outcomes []outcome, deadlineHit bool) Summary {
	finished := o.deps.Clock.Now()
	updated := make(map[string]camp.Record, len(outcomes))
	results := make([]camp.RunResult, 0, len(outcomes))
	var errs []string
	fromCache := 0
	for _, oc := range outcomes {
		if !oc.done {
			continue
		}
		results = append(results, oc.result)
		updated[oc.record.ID] = oc.record
		if oc.result.FromCache {
			fromCache++
		}
		if oc.result.Error != "" {
			errs = append(errs, oc.result.EntityID+": "+oc.result.Error)
		}
	}
	snapshot := make([]camp.Record, 0, len(records))
	for _, rec := range records {
		if u, ok := updated[rec.ID]; ok {
			rec = u
		}
		snapshot = append(snapshot, rec)
	}

	var changes []camp.ChangeSet
	for _, res := range results {
		if res.Changes.HasChanges {
			changes = append(changes, res.Changes)
		}
	}
	weekly := report.Build(report.Input{
		RunID:         run.id,
		GeneratedAt:   finished,
		Entities:      report.FromResults(results),
		Changes:       changes,
		Effectiveness: o.deps.Log.Effectiveness(),
	})
	summary := weekly.Summary
	return Summary{
		Run: camp.PipelineRun{
			RunID:       run.id,
			StartedAt:   run.started,
			FinishedAt:  finished,
			DurationMs:  finished.Sub(run.started).Milliseconds(),
			Entities:    summary.TotalEntities,
			Successful:  summary.Successful,
			NeedsReview: summary.NeedsReview,
			Failed:      summary.Failed,
			FromCache:   fromCache,
			AvgQuality:  summary.AvgQuality,
			Strategies:  append([]camp.Strategy(nil), o.cfg.Strategies...),
			Force:       o.cfg.Force,
			Deadline:    deadlineHit,
			Errors:      errs,
		},
		Results: results,
		Records: snapshot,
		Report:  weekly,
	}
}

// shutdown persists what survives an interrupted run.
func (o *Orchestrator) shutdown(logger *zap.Logger) {
	if o.cfg.DryRun {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if o.deps.Cache != nil {
		if err := o.deps.Cache.Save(ctx); err != nil {
			logger.Error("failed to save cache during shutdown", zap.Error(err))
		}
	}
	if err := o.deps.Review.Save(ctx); err != nil {
		logger.Error("failed to save review queue during shutdown", zap.Error(err))
	}
}

func (o *Orchestrator) emit(evt progress.Event) {
	if o.deps.Progress == nil {
		return
	}
	if evt.TS.IsZero() {
		evt.TS = o.deps.Clock.Now()
	}
	o.deps.Progress.Emit(evt)
}

func (o *Orchestrator) emitRunDone(run runState, sum Summary, note string) {
	o.emit(progress.Event{
		RunID: run.eventID,
		Stage: progress.StageRunDone,
		Count: sum.Run.Entities,
		Dur:   time.Duration(sum.Run.DurationMs) * time.Millisecond,
		Note:  note,
	})
}

// IsPersistence reports whether err came from writing a data store.
func IsPersistence(err error) bool {
	return errors.Is(err, camp.ErrPersistence)
}
