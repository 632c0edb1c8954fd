// Package strategy runs acquisition modes for one camp, retrying transient
// failures, and keeps the per-strategy effectiveness log.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/camp-harvester/internal/camp"
	"github.com/JakeFAU/camp-harvester/internal/hash/sha256"
	"github.com/JakeFAU/camp-harvester/internal/metrics"
)

// Retry defaults.
const (
	DefaultBackoff       = 2 * time.Second
	DefaultStaticRetries = 1
	DefaultRetries       = 2
)

// Extractor turns a bundle into facts.
type Extractor interface {
	Extract(bundle camp.PageBundle) camp.CanonicalFacts
}

// Scorer rates facts 0-100.
type Scorer interface {
	Score(f camp.CanonicalFacts) int
}

// Clock supplies time and sleeping between retries.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Config controls retries. A negative retry count disables retries for
// that class of strategy.
type Config struct {
	StaticRetries int
	Retries       int
	Backoff       time.Duration
}

// Deps are the runner's collaborators. Feedback and Log may be nil.
type Deps struct {
	Acquirer  camp.Acquirer
	Extractor Extractor
	Scorer    Scorer
	Feedback  camp.HostFeedback
	Clock     Clock
	Log       *Log
}

// Runner executes strategies sequentially for one entity at a time. It is
// safe for concurrent use across entities.
type Runner struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// NewRunner validates deps and applies defaults.
func NewRunner(cfg Config, deps Deps, logger *zap.Logger) (*Runner, error) {
	if deps.Acquirer == nil || deps.Extractor == nil || deps.Scorer == nil || deps.Clock == nil {
		return nil, fmt.Errorf("strategy runner requires acquirer, extractor, scorer and clock: %w", camp.ErrInvariant)
	}
	if cfg.StaticRetries == 0 {
		cfg.StaticRetries = DefaultStaticRetries
	}
	if cfg.Retries == 0 {
		cfg.Retries = DefaultRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, deps: deps, logger: logger}, nil
}

func (r *Runner) retriesFor(mode camp.Strategy) int {
	n := r.cfg.Retries
	if mode == camp.StrategyStatic {
		n = r.cfg.StaticRetries
	}
	if n < 0 {
		return 0
	}
	return n
}

// RunAll runs modes in order and returns one result per mode that started.
// The llm mode receives the richest bundle acquired so far. Modes not yet
// started when ctx ends are skipped.
func (r *Runner) RunAll(ctx context.Context, rec camp.Record, modes []camp.Strategy) []camp.StrategyResult {
	results := make([]camp.StrategyResult, 0, len(modes))
	var (
		prior       *camp.PageBundle
		bestQuality = -1
	)
	for _, mode := range modes {
		if ctx.Err() != nil {
			break
		}
		res, bundle := r.Run(ctx, rec, mode, prior)
		results = append(results, res)
		if res.Success && bundle.Text != "" && res.Quality > bestQuality {
			b := bundle
			prior = &b
			bestQuality = res.Quality
		}
	}
	return results
}

// Run executes one mode with retries. It never panics and never returns an
// error: failures are reported in the result.
func (r *Runner) Run(ctx context.Context, rec camp.Record, mode camp.Strategy, prior *camp.PageBundle) (res camp.StrategyResult, bundle camp.PageBundle) {
	start := r.deps.Clock.Now()
	res.Strategy = mode
	logger := r.logger.With(zap.String("camp_id", rec.ID), zap.String("strategy", string(mode)))

	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("strategy %s panicked: %v: %w", mode, p, camp.ErrInvariant)
			logger.Error("strategy aborted", zap.Error(err))
			res = camp.StrategyResult{Strategy: mode, Error: err.Error(), Attempts: res.Attempts}
			bundle = camp.PageBundle{}
		}
		end := r.deps.Clock.Now()
		elapsed := end.Sub(start)
		res.DurationMs = elapsed.Milliseconds()
		metrics.ObserveStrategy(string(mode), res.Success, res.Quality, elapsed)
		if r.deps.Log != nil {
			r.deps.Log.Record(res, end)
		}
	}()

	bundle, err := r.acquire(ctx, rec, mode, prior, &res, logger)
	if err != nil {
		res.Error = err.Error()
		if bundle.Facts == nil {
			return res, camp.PageBundle{}
		}
		// The llm mode hands back partial facts alongside a parse error.
		res.Extracted = bundle.Facts.Clone()
		return res, bundle
	}

	facts := r.deps.Extractor.Extract(bundle)
	res.Success = true
	res.Extracted = facts
	res.Quality = r.deps.Scorer.Score(facts)
	res.TextLength = len(bundle.Text)
	res.URLs = bundle.URLs()
	res.Artifacts = append([]string(nil), bundle.Artifacts...)
	res.NeedsRender = bundle.NeedsRender
	if bundle.Text != "" {
		res.ContentHash = sha256.Text(bundle.Text)
	}
	logger.Debug("strategy finished",
		zap.Int("quality", res.Quality),
		zap.Int("text_length", res.TextLength),
		zap.Int("attempt", res.Attempts))
	return res, bundle
}

func (r *Runner) acquire(
	ctx context.Context,
	rec camp.Record,
	mode camp.Strategy,
	prior *camp.PageBundle,
	res *camp.StrategyResult,
	logger *zap.Logger,
) (camp.PageBundle, error) {
	retries := r.retriesFor(mode)
	req := camp.AcquireRequest{Record: rec, Mode: mode, Prior: prior}
	for attempt := 0; ; attempt++ {
		res.Attempts = attempt + 1
		bundle, err := r.deps.Acquirer.Acquire(ctx, req)
		if err == nil {
			return bundle, nil
		}
		if !camp.IsRetryable(err) {
			if !errors.Is(err, camp.ErrStrategyUnavailable) {
				logger.Warn("strategy failed", zap.Int("attempt", res.Attempts), zap.Error(err))
			}
			return bundle, err
		}
		if r.deps.Feedback != nil {
			if u := failedURL(err, rec); u != "" {
				r.deps.Feedback.RecordFailure(u)
			}
		}
		if attempt >= retries || ctx.Err() != nil {
			logger.Warn("strategy failed after retries", zap.Int("attempt", res.Attempts), zap.Error(err))
			return camp.PageBundle{}, err
		}
		logger.Info("retrying strategy",
			zap.Int("attempt", res.Attempts),
			zap.Duration("backoff", r.cfg.Backoff),
			zap.Error(err))
		if serr := r.deps.Clock.Sleep(ctx, r.cfg.Backoff); serr != nil {
			return camp.PageBundle{}, fmt.Errorf("%w (retry canceled: %w)", err, serr)
		}
	}
}

// failedURL is the URL the error names, falling back to the camp's entry page.
func failedURL(err error, rec camp.Record) string {
	if u := camp.FailedURL(err); u != "" {
		return u
	}
	return rec.BaseURL
}

// Best returns the successful result with the highest quality, preferring
// the earlier one on ties.
func Best(results []camp.StrategyResult) (camp.StrategyResult, bool) {
	var (
		best  camp.StrategyResult
		found bool
	)
	for _, res := range results {
		if !res.Success {
			continue
		}
		if !found || res.Quality > best.Quality {
			best = res
			found = true
		}
	}
	return best, found
}
