package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/camp-harvester/internal/progress"
)

// PrometheusSink turns the progress stream into run, camp and strategy
// collectors. Cached camps count as completed but do not feed the quality
// histogram.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted prometheus.Counter
	runsRunning   prometheus.Gauge
	runRuntime    prometheus.Histogram

	entitiesCompleted *prometheus.CounterVec
	entitiesRunning   prometheus.Gauge
	entityDuration    *prometheus.HistogramVec
	entityQuality     *prometheus.HistogramVec
	strategyResults   *prometheus.CounterVec

	runs     *tracker[[16]byte]
	entities *tracker[entityKey]
}

type entityKey struct {
	run    [16]byte
	entity string
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campharvest_progress_runs_started_total",
			Help: "Total pipeline runs that have started.",
		}),
		runsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campharvest_progress_runs_completed_total",
			Help: "Total pipeline runs that have finished.",
		}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "campharvest_progress_runs_running",
			Help: "Current number of running pipeline runs.",
		}),
		runRuntime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "campharvest_progress_run_runtime_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{10, 30, 60, 300, 600, 1200, 1800, 3600},
		}),
		entitiesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campharvest_progress_entities_completed_total",
			Help: "Entity tasks completed partitioned by result.",
		}, []string{"result"}),
		entitiesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "campharvest_progress_entities_running",
			Help: "Entity tasks currently in flight.",
		}),
		entityDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "campharvest_progress_entity_duration_seconds",
			Help:    "Wall time per entity task.",
			Buckets: []float64{0.1, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"result"}),
		entityQuality: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "campharvest_progress_entity_quality",
			Help:    "Merged quality score per harvested camp, by winning strategy.",
			Buckets: []float64{20, 40, 60, 80, 100},
		}, []string{"best_strategy"}),
		strategyResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campharvest_progress_strategy_results_total",
			Help: "Strategy completions partitioned by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		runs:     newTracker[[16]byte](),
		entities: newTracker[entityKey](),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.entitiesCompleted,
		s.entitiesRunning,
		s.entityDuration,
		s.entityQuality,
		s.strategyResults,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.runs.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageRunDone:
		s.runsCompleted.Inc()
		if evt.Dur > 0 {
			s.runRuntime.Observe(evt.Dur.Seconds())
		}
		if s.runs.complete(evt.RunID) {
			s.runsRunning.Dec()
		}
	case progress.StageEntityStart:
		if s.entities.start(entityKey{evt.RunID, evt.EntityID}) {
			s.entitiesRunning.Inc()
		}
	case progress.StageEntityDone, progress.StageEntityError:
		result := entityResult(evt)
		s.entitiesCompleted.WithLabelValues(result).Inc()
		if evt.Dur > 0 {
			s.entityDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
		}
		if evt.Stage == progress.StageEntityDone && !evt.FromCache {
			best := evt.Strategy
			if best == "" {
				best = "none"
			}
			s.entityQuality.WithLabelValues(best).Observe(float64(evt.Quality))
		}
		if s.entities.complete(entityKey{evt.RunID, evt.EntityID}) {
			s.entitiesRunning.Dec()
		}
	case progress.StageStrategyDone:
		outcome := "failure"
		if evt.Success {
			outcome = "success"
		}
		s.strategyResults.WithLabelValues(evt.Strategy, outcome).Inc()
	}
}

func entityResult(evt progress.Event) string {
	switch {
	case evt.Stage == progress.StageEntityError:
		return "error"
	case evt.FromCache:
		return "cached"
	default:
		return "done"
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type tracker[K comparable] struct {
	mu      sync.Mutex
	running map[K]struct{}
}

func newTracker[K comparable]() *tracker[K] {
	return &tracker[K]{running: make(map[K]struct{})}
}

func (t *tracker[K]) start(id K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *tracker[K]) complete(id K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
