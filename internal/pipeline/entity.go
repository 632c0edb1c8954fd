package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/camp-harvester/internal/camp"
	"github.com/JakeFAU/camp-harvester/internal/merge"
	"github.com/JakeFAU/camp-harvester/internal/metrics"
	"github.com/JakeFAU/camp-harvester/internal/progress"
	"github.com/JakeFAU/camp-harvester/internal/strategy"
)

// processEntity harvests one camp and returns its result together with the
// updated record. A panic aborts only this camp: the record is returned
// unchanged and the result carries the error.
func (o *Orchestrator) processEntity(ctx context.Context, run runState, rec camp.Record) (res camp.RunResult, updated camp.Record) {
	start := o.deps.Clock.Now()
	logger := o.logger.With(zap.String("camp_id", rec.ID))
	metrics.IncActiveTasks()
	defer metrics.DecActiveTasks()

	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("camp %s aborted: %v: %w", rec.ID, p, camp.ErrInvariant)
			logger.Error("camp task aborted", zap.Error(err))
			res = camp.RunResult{
				EntityID:   rec.ID,
				Name:       rec.Name,
				Changes:    camp.ChangeSet{EntityID: rec.ID, Name: rec.Name, Changes: []camp.Change{}},
				Error:      err.Error(),
				FinishedAt: o.deps.Clock.Now(),
			}
			updated = rec
			o.emit(progress.Event{
				RunID:    run.eventID,
				Stage:    progress.StageEntityError,
				EntityID: rec.ID,
				Name:     rec.Name,
				Dur:      o.deps.Clock.Now().Sub(start),
				Note:     err.Error(),
			})
		}
	}()

	o.emit(progress.Event{RunID: run.eventID, Stage: progress.StageEntityStart, EntityID: rec.ID, Name: rec.Name})

	if !o.cfg.Force {
		if cached, ok := o.cached(rec, logger); ok {
			res = cached
			updated = apply(rec, res)
			o.queueForReview(res, res.FinishedAt)
			o.finishEntity(run, res, start)
			return res, updated
		}
	}

	results := o.deps.Runner.RunAll(ctx, rec, o.cfg.Strategies)
	for _, sr := range results {
		o.emit(progress.Event{
			RunID:    run.eventID,
			Stage:    progress.StageStrategyDone,
			EntityID: rec.ID,
			Name:     rec.Name,
			Strategy: string(sr.Strategy),
			Quality:  sr.Quality,
			Success:  sr.Success,
			Dur:      durationMs(sr.DurationMs),
			Note:     sr.Error,
		})
	}

	merged, seed := merge.Merge(results)
	now := o.deps.Clock.Now()
	changes := o.deps.Detector.Detect(rec.ID, rec.Extracted, merged)
	changes.Name = rec.Name
	res = camp.RunResult{
		EntityID:   rec.ID,
		Name:       rec.Name,
		Quality:    o.deps.Scorer.Score(merged),
		Strategies: results,
		Merged:     merged,
		Validation: o.deps.Validator.Validate(merged),
		Changes:    changes,
		FinishedAt: now,
	}
	if best, ok := strategy.Best(results); ok {
		res.Success = true
		res.BestStrategy = best.Strategy
		res.URLs = best.URLs
		res.ContentHash = best.ContentHash
	}
	if seed != "" {
		res.BestStrategy = seed
	}
	if !res.Success {
		// Without a successful strategy the prior facts stand and no change
		// is reported.
		res.Changes = camp.ChangeSet{EntityID: rec.ID, Name: rec.Name, Changes: []camp.Change{}, DetectedAt: now}
		res.Error = failureSummary(results)
	}

	updated = apply(rec, res)
	if res.Success {
		o.deps.Log.SetBest(rec.ID, res.BestStrategy, res.Quality, now)
		if o.deps.Cache != nil {
			if err := o.deps.Cache.Put(rec.ID, res.ContentHash, res); err != nil {
				logger.Warn("failed to cache result", zap.Error(err))
			}
		}
	}
	o.queueForReview(res, now)
	o.finishEntity(run, res, start)
	return res, updated
}

// cached returns the stored result for rec when the cache holds a fresh one.
// Cached results never report changes.
func (o *Orchestrator) cached(rec camp.Record, logger *zap.Logger) (camp.RunResult, bool) {
	if o.deps.Cache == nil {
		return camp.RunResult{}, false
	}
	payload, ok := o.deps.Cache.Get(rec.ID)
	if !ok {
		return camp.RunResult{}, false
	}
	var res camp.RunResult
	if err := json.Unmarshal(payload, &res); err != nil {
		logger.Warn("discarding unreadable cache entry", zap.Error(err))
		o.deps.Cache.Invalidate(rec.ID)
		return camp.RunResult{}, false
	}
	res.EntityID = rec.ID
	res.Name = rec.Name
	res.FromCache = true
	res.Changes = camp.ChangeSet{EntityID: rec.ID, Name: rec.Name, Changes: []camp.Change{}, DetectedAt: res.FinishedAt}
	logger.Debug("using cached result", zap.Int("quality", res.Quality))
	return res, true
}

// queueForReview adds weak results to the review queue and drops camps
// that no longer need a look.
func (o *Orchestrator) queueForReview(res camp.RunResult, at time.Time) {
	if !o.deps.Review.Consider(res, o.deps.Scorer, at) {
		o.deps.Review.Remove(res.EntityID)
	}
}

func (o *Orchestrator) finishEntity(run runState, res camp.RunResult, start time.Time) {
	metrics.ObserveEntity(res.Quality)
	o.logger.Info("camp harvested",
		zap.String("camp_id", res.EntityID),
		zap.Int("quality", res.Quality),
		zap.String("strategy", string(res.BestStrategy)),
		zap.Bool("from_cache", res.FromCache),
		zap.Int("changes", len(res.Changes.Changes)))
	o.emit(progress.Event{
		RunID:     run.eventID,
		Stage:     progress.StageEntityDone,
		EntityID:  res.EntityID,
		Name:      res.Name,
		Strategy:  string(res.BestStrategy),
		Quality:   res.Quality,
		Success:   res.Success,
		FromCache: res.FromCache,
		Dur:       o.deps.Clock.Now().Sub(start),
		Note:      res.Error,
	})
}

func durationMs(ms int64) time.Duration {
	if ms < 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// apply copies the run outcome onto the camp record.
func apply(rec camp.Record, res camp.RunResult) camp.Record {
	rec.LastQuality = res.Quality
	rec.LastStrategy = res.BestStrategy
	rec.LastRunAt = res.FinishedAt
	if !res.Success {
		return rec
	}
	merged := res.Merged.Clone()
	rec.Extracted = &merged
	if res.ContentHash != "" {
		rec.ContentHash = res.ContentHash
	}
	if len(res.URLs) > 0 {
		rec.URLs = append([]string(nil), res.URLs...)
	}
	return rec
}

func failureSummary(results []camp.StrategyResult) string {
	if len(results) == 0 {
		return "no strategy ran"
	}
	last := results[len(results)-1]
	if last.Error == "" {
		return "no strategy succeeded"
	}
	return fmt.Sprintf("no strategy succeeded; last %s: %s", last.Strategy, last.Error)
}
