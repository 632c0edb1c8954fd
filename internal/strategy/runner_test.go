package strategy

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/camp-harvester/internal/camp"
	"github.com/JakeFAU/camp-harvester/internal/extract"
	"github.com/JakeFAU/camp-harvester/internal/quality"
	"github.com/JakeFAU/camp-harvester/internal/storage/memory"
)

const zooText = "Zoo Camp\n$350/week, ages 5–12, 9am – 3pm, extended care available until 5pm, " +
	"Week 1: June 16–20, Week 2: June 23–27"

var zooCamp = camp.Record{ID: "zoo-camp", Name: "Zoo Camp", BaseURL: "https://zoo.example/"}

type step struct {
	bundle camp.PageBundle
	err    error
}

// scriptedAcquirer replays steps per mode and records requests.
type scriptedAcquirer struct {
	mu       sync.Mutex
	steps    map[camp.Strategy][]step
	requests []camp.AcquireRequest
	panicOn  camp.Strategy
}

func (a *scriptedAcquirer) Acquire(_ context.Context, req camp.AcquireRequest) (camp.PageBundle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, req)
	if req.Mode == a.panicOn {
		panic("boom")
	}
	queue := a.steps[req.Mode]
	if len(queue) == 0 {
		return camp.PageBundle{}, fmt.Errorf("no script for %s: %w", req.Mode, camp.ErrNetwork)
	}
	next := queue[0]
	if len(queue) > 1 {
		a.steps[req.Mode] = queue[1:]
	}
	return next.bundle, next.err
}

func (a *scriptedAcquirer) calls(mode camp.Strategy) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, r := range a.requests {
		if r.Mode == mode {
			n++
		}
	}
	return n
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(10 * time.Millisecond)
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

type countingFeedback struct {
	mu       sync.Mutex
	failures []string
}

func (f *countingFeedback) RecordSuccess(string) {}

func (f *countingFeedback) RecordFailure(rawURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, rawURL)
}

type fixture struct {
	runner   *Runner
	acq      *scriptedAcquirer
	clock    *fakeClock
	feedback *countingFeedback
	log      *Log
}

func newFixture(t *testing.T, steps map[camp.Strategy][]step) *fixture {
	t.Helper()
	f := &fixture{
		acq:      &scriptedAcquirer{steps: steps},
		clock:    &fakeClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)},
		feedback: &countingFeedback{},
		log:      NewLog(memory.NewBlobStore(), "", nil),
	}
	runner, err := NewRunner(Config{}, Deps{
		Acquirer:  f.acq,
		Extractor: extract.Extractor{},
		Scorer:    quality.Scorer{ExpectedYear: 2026},
		Feedback:  f.feedback,
		Clock:     f.clock,
		Log:       f.log,
	}, nil)
	require.NoError(t, err)
	f.runner = runner
	return f
}

func TestNewRunnerRequiresDeps(t *testing.T) {
	t.Parallel()

	_, err := NewRunner(Config{}, Deps{}, nil)
	require.ErrorIs(t, err, camp.ErrInvariant)
}

func TestRunExtractsAndScores(t *testing.T) {
	t.Parallel()

	f := newFixture(t, map[camp.Strategy][]step{
		camp.StrategyRendered: {{bundle: camp.PageBundle{
			URL:  zooCamp.BaseURL,
			Text: zooText,
			Pages: []camp.PageCapture{
				{URL: zooCamp.BaseURL},
				{URL: "https://zoo.example/pricing", Category: "pricing"},
			},
		}}},
	})

	res, bundle := f.runner.Run(context.Background(), zooCamp, camp.StrategyRendered, nil)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, zooText, bundle.Text)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 350, res.Extracted.Pricing[camp.TierWeekly])
	assert.Equal(t, camp.Ages{Min: 5, Max: 12}, res.Extracted.Ages)
	assert.Equal(t, "9AM – 3PM", res.Extracted.Hours.StandardRange)
	assert.Equal(t, camp.TriTrue, res.Extracted.ExtendedCare.Available)
	assert.Len(t, res.Extracted.Sessions, 2)
	assert.GreaterOrEqual(t, res.Quality, 70)
	assert.Equal(t, len(zooText), res.TextLength)
	assert.Equal(t, []string{zooCamp.BaseURL, "https://zoo.example/pricing"}, res.URLs)
	assert.Len(t, res.ContentHash, 64)
	assert.Positive(t, res.DurationMs)
	assert.Empty(t, f.feedback.failures)
}

func TestRunRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	f := newFixture(t, map[camp.Strategy][]step{
		camp.StrategyRendered: {
			{err: fmt.Errorf("render: %w", camp.ErrNetwork)},
			{err: fmt.Errorf("render: %w", camp.ErrTimeout)},
			{bundle: camp.PageBundle{URL: zooCamp.BaseURL, Text: zooText}},
		},
	})

	res, _ := f.runner.Run(context.Background(), zooCamp, camp.StrategyRendered, nil)
	require.True(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{DefaultBackoff, DefaultBackoff}, f.clock.sleeps)
	assert.Equal(t, []string{zooCamp.BaseURL, zooCamp.BaseURL}, f.feedback.failures)
}

func TestRunRecordsFailureAgainstFailingURL(t *testing.T) {
	t.Parallel()

	cdn := "https://cdn.zoo-assets.example/camps"
	f := newFixture(t, map[camp.Strategy][]step{
		camp.StrategyRendered: {
			{err: &camp.FetchError{URL: cdn, Err: camp.ErrTimeout}},
			{bundle: camp.PageBundle{URL: zooCamp.BaseURL, Text: zooText}},
		},
	})

	res, _ := f.runner.Run(context.Background(), zooCamp, camp.StrategyRendered, nil)
	require.True(t, res.Success)
	assert.Equal(t, []string{cdn}, f.feedback.failures)
}

func TestRunStaticRetriesOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, map[camp.Strategy][]step{
		camp.StrategyStatic: {{err: fmt.Errorf("fetch: %w", camp.ErrTimeout)}},
	})

	res, bundle := f.runner.Run(context.Background(), zooCamp, camp.StrategyStatic, nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "timeout")
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 2, f.acq.calls(camp.StrategyStatic))
	assert.Len(t, f.clock.sleeps, 1)
	assert.Len(t, f.feedback.failures, 2)
	assert.Empty(t, bundle.Text)
}

func TestRunDoesNotRetryPermanentErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{"unavailable", fmt.Errorf("llm: %w", camp.ErrStrategyUnavailable)},
		{"parse", fmt.Errorf("decode: %w", camp.ErrParse)},
		{"invariant", fmt.Errorf("mode: %w", camp.ErrInvariant)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, map[camp.Strategy][]step{camp.StrategyLLM: {{err: tc.err}}})
			res, _ := f.runner.Run(context.Background(), zooCamp, camp.StrategyLLM, nil)
			assert.False(t, res.Success)
			assert.Equal(t, 1, res.Attempts)
			assert.Empty(t, f.clock.sleeps)
			assert.Empty(t, f.feedback.failures)
		})
	}
}

func TestRunLLMParseErrorKeepsEmptyFacts(t *testing.T) {
	t.Parallel()

	facts := camp.CanonicalFacts{}
	f := newFixture(t, map[camp.Strategy][]step{
		camp.StrategyLLM: {{bundle: camp.PageBundle{Facts: &facts}, err: fmt.Errorf("llm: %w", camp.ErrParse)}},
	})

	res, _ := f.runner.Run(context.Background(), zooCamp, camp.StrategyLLM, nil)
	assert.False(t, res.Success)
	assert.True(t, res.Extracted.IsEmpty())
	assert.Zero(t, res.Quality)
}

func TestRunRecoversFromPanic(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.acq.panicOn = camp.StrategyScreenshot

	var res camp.StrategyResult
	require.NotPanics(t, func() {
		res, _ = f.runner.Run(context.Background(), zooCamp, camp.StrategyScreenshot, nil)
	})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, camp.ErrInvariant.Error())
	assert.Equal(t, 1, f.log.Stats()[camp.StrategyScreenshot].Failures)
}

func TestRunCanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	f := newFixture(t, map[camp.Strategy][]step{
		camp.StrategyRendered: {{err: fmt.Errorf("render: %w", camp.ErrNetwork)}},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, _ := f.runner.Run(ctx, zooCamp, camp.StrategyRendered, nil)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, f.clock.sleeps)
}

func TestRunAllPassesRichestBundleToLLM(t *testing.T) {
	t.Parallel()

	llmFacts := camp.CanonicalFacts{Pricing: camp.Pricing{camp.TierWeekly: 400}}
	f := newFixture(t, map[camp.Strategy][]step{
		camp.StrategyStatic:   {{bundle: camp.PageBundle{URL: zooCamp.BaseURL, Text: "Zoo Camp is fun"}}},
		camp.StrategyRendered: {{bundle: camp.PageBundle{URL: zooCamp.BaseURL, Text: zooText}}},
		camp.StrategyLLM:      {{bundle: camp.PageBundle{URL: zooCamp.BaseURL, Text: zooText, Facts: &llmFacts}}},
	})

	results := f.runner.RunAll(context.Background(), zooCamp,
		[]camp.Strategy{camp.StrategyStatic, camp.StrategyRendered, camp.StrategyLLM})
	require.Len(t, results, 3)
	for _, res := range results {
		assert.True(t, res.Success, res.Strategy)
	}
	assert.Equal(t, 400, results[2].Extracted.Pricing[camp.TierWeekly])

	require.Len(t, f.acq.requests, 3)
	assert.Nil(t, f.acq.requests[0].Prior)
	require.NotNil(t, f.acq.requests[2].Prior)
	assert.Equal(t, zooText, f.acq.requests[2].Prior.Text)

	best, ok := Best(results)
	require.True(t, ok)
	assert.Equal(t, camp.StrategyRendered, best.Strategy)

	stats := f.log.Stats()
	assert.Equal(t, 1, stats[camp.StrategyRendered].Successes)
	assert.Equal(t, results[1].Quality, stats[camp.StrategyRendered].TotalQuality)
}

func TestRunAllStopsWhenCanceled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := f.runner.RunAll(ctx, zooCamp, camp.AllStrategies())
	assert.Empty(t, results)
	assert.Empty(t, f.acq.requests)
}

func TestBest(t *testing.T) {
	t.Parallel()

	_, ok := Best(nil)
	assert.False(t, ok)

	best, ok := Best([]camp.StrategyResult{
		{Strategy: camp.StrategyStatic, Success: true, Quality: 40},
		{Strategy: camp.StrategyRendered, Success: true, Quality: 40},
		{Strategy: camp.StrategyLLM, Success: false, Quality: 90},
	})
	require.True(t, ok)
	assert.Equal(t, camp.StrategyStatic, best.Strategy)
}

func TestRetriesFor(t *testing.T) {
	t.Parallel()

	r, err := NewRunner(Config{StaticRetries: -1}, Deps{
		Acquirer:  &scriptedAcquirer{},
		Extractor: extract.Extractor{},
		Scorer:    quality.Scorer{},
		Clock:     &fakeClock{},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, r.retriesFor(camp.StrategyStatic))
	assert.Equal(t, DefaultRetries, r.retriesFor(camp.StrategyAccessibility))
}
