package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/camp-harvester/internal/camp"
	"github.com/JakeFAU/camp-harvester/internal/storage"
)

// DefaultLogPath is the extraction log object name.
const DefaultLogPath = "extraction-log.json"

// Stats are the cumulative counters for one strategy.
type Stats struct {
	Attempts     int       `json:"attempts"`
	Successes    int       `json:"successes"`
	Failures     int       `json:"failures"`
	TotalQuality int       `json:"totalQuality"`
	LastRunAt    time.Time `json:"lastRunAt,omitempty"`
}

// AvgQuality is the mean quality over successful runs.
func (s Stats) AvgQuality() float64 {
	if s.Successes == 0 {
		return 0
	}
	return float64(s.TotalQuality) / float64(s.Successes)
}

// EntityBest remembers which strategy last won for an entity.
type EntityBest struct {
	Strategy camp.Strategy `json:"strategy"`
	Quality  int           `json:"quality"`
	At       time.Time     `json:"at"`
}

type logFile struct {
	Strategies map[camp.Strategy]Stats `json:"strategies"`
	Entities   map[string]EntityBest   `json:"entities"`
}

// Log is the persistent per-strategy effectiveness log. It is safe for
// concurrent use.
type Log struct {
	mu     sync.Mutex
	file   logFile
	store  storage.BlobStore
	path   string
	logger *zap.Logger
}

// NewLog creates an empty log persisted to path inside store.
func NewLog(store storage.BlobStore, path string, logger *zap.Logger) *Log {
	if path == "" {
		path = DefaultLogPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{file: emptyLogFile(), store: store, path: path, logger: logger}
}

func emptyLogFile() logFile {
	return logFile{
		Strategies: make(map[camp.Strategy]Stats),
		Entities:   make(map[string]EntityBest),
	}
}

// Record adds one strategy outcome.
func (l *Log) Record(res camp.StrategyResult, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.file.Strategies[res.Strategy]
	s.Attempts++
	if res.Success {
		s.Successes++
		s.TotalQuality += res.Quality
	} else {
		s.Failures++
	}
	s.LastRunAt = at
	l.file.Strategies[res.Strategy] = s
}

// SetBest records the winning strategy for an entity.
func (l *Log) SetBest(entityID string, strategy camp.Strategy, quality int, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.file.Entities[entityID] = EntityBest{Strategy: strategy, Quality: quality, At: at}
}

// Best returns the last winning strategy for an entity.
func (l *Log) Best(entityID string) (EntityBest, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.file.Entities[entityID]
	return b, ok
}

// Stats returns a copy of the per-strategy counters.
func (l *Log) Stats() map[camp.Strategy]Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[camp.Strategy]Stats, len(l.file.Strategies))
	for k, v := range l.file.Strategies {
		out[k] = v
	}
	return out
}

// Effectiveness summarizes the counters in report form.
func (l *Log) Effectiveness() map[camp.Strategy]camp.StrategyStats {
	stats := l.Stats()
	out := make(map[camp.Strategy]camp.StrategyStats, len(stats))
	for k, s := range stats {
		out[k] = camp.StrategyStats{Attempts: s.Attempts, Successes: s.Successes, AvgQuality: s.AvgQuality()}
	}
	return out
}

// Load replaces the in-memory log with the persisted one. A missing file is
// not an error; an unreadable one is logged and ignored.
func (l *Log) Load(ctx context.Context) error {
	data, err := l.store.GetObject(ctx, l.path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load extraction log: %w", err)
	}
	file := emptyLogFile()
	if err := json.Unmarshal(data, &file); err != nil {
		l.logger.Warn("discarding unreadable extraction log", zap.String("path", l.path), zap.Error(err))
		return nil
	}
	if file.Strategies == nil {
		file.Strategies = make(map[camp.Strategy]Stats)
	}
	if file.Entities == nil {
		file.Entities = make(map[string]EntityBest)
	}
	l.mu.Lock()
	l.file = file
	l.mu.Unlock()
	return nil
}

// Save writes the log as one JSON document.
func (l *Log) Save(ctx context.Context) error {
	l.mu.Lock()
	data, err := camp.MarshalIndent(l.file)
	l.mu.Unlock()
	if err != nil {
		return err
	}
	if _, err := l.store.PutObject(ctx, l.path, "application/json", bytes.NewReader(data)); err != nil {
		return fmt.Errorf("save extraction log: %w: %w", camp.ErrPersistence, err)
	}
	return nil
}
