// Package review maintains the persistent list of entities whose extraction
// needs a human look.
package review

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/camp-harvester/internal/camp"
	"github.com/JakeFAU/camp-harvester/internal/metrics"
	"github.com/JakeFAU/camp-harvester/internal/quality"
	"github.com/JakeFAU/camp-harvester/internal/storage"
)

// DefaultThreshold is the quality below which an entity is queued.
const DefaultThreshold = 60

// FieldConfidence names a weak field and how complete it is (0-100).
type FieldConfidence struct {
	Name       string `json:"name"`
	Confidence int    `json:"confidence"`
}

// Entry is one queued entity.
type Entry struct {
	EntityID  string              `json:"entityId"`
	Name      string              `json:"name,omitempty"`
	Quality   int                 `json:"quality"`
	Fields    []FieldConfidence   `json:"fields"`
	Extracted camp.CanonicalFacts `json:"extracted"`
	URLs      []string            `json:"urls"`
	AddedAt   time.Time           `json:"addedAt"`
}

// Config controls queue behavior.
type Config struct {
	Threshold int
	Path      string
}

// Queue is safe for concurrent use.
type Queue struct {
	mu        sync.Mutex
	entries   map[string]Entry
	threshold int
	path      string
	store     storage.BlobStore
	logger    *zap.Logger
}

// New creates an empty queue persisted to path inside store.
func New(cfg Config, store storage.BlobStore, logger *zap.Logger) *Queue {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Path == "" {
		cfg.Path = "review-queue.json"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		entries:   make(map[string]Entry),
		threshold: cfg.Threshold,
		path:      cfg.Path,
		store:     store,
		logger:    logger,
	}
}

// Threshold returns the configured quality threshold.
func (q *Queue) Threshold() int { return q.threshold }

// NeedsReview reports whether a result qualifies for the queue.
func (q *Queue) NeedsReview(res camp.RunResult) bool {
	if res.Quality < q.threshold {
		return true
	}
	for _, issue := range res.Validation.Issues {
		if issue.Severity == camp.SeverityError {
			return true
		}
	}
	return false
}

// Consider queues res when it qualifies, replacing any earlier entry for
// the same entity. It reports whether the entity was queued.
func (q *Queue) Consider(res camp.RunResult, scorer quality.Scorer, at time.Time) bool {
	if !q.NeedsReview(res) {
		return false
	}
	q.Add(Entry{
		EntityID:  res.EntityID,
		Name:      res.Name,
		Quality:   res.Quality,
		Fields:    WeakFields(res.Merged, res.Validation, scorer),
		Extracted: res.Merged,
		URLs:      append([]string{}, res.URLs...),
		AddedAt:   at,
	})
	return true
}

// Add stores e, replacing any prior entry for e.EntityID.
func (q *Queue) Add(e Entry) {
	q.mu.Lock()
	q.entries[e.EntityID] = e
	n := len(q.entries)
	q.mu.Unlock()
	metrics.SetReviewQueueSize(n)
}

// Remove drops an entity from the queue.
func (q *Queue) Remove(entityID string) {
	q.mu.Lock()
	delete(q.entries, entityID)
	n := len(q.entries)
	q.mu.Unlock()
	metrics.SetReviewQueueSize(n)
}

// Entries returns the queue ordered by entity id.
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// Len returns the number of queued entities.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Load reads the persisted queue. A missing file yields an empty queue.
func (q *Queue) Load(ctx context.Context) error {
	data, err := q.store.GetObject(ctx, q.path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load review queue: %w", err)
	}
	var list []Entry
	if err := json.Unmarshal(data, &list); err != nil {
		q.logger.Warn("discarding unreadable review queue", zap.String("path", q.path), zap.Error(err))
		return nil
	}
	q.mu.Lock()
	q.entries = make(map[string]Entry, len(list))
	for _, e := range list {
		q.entries[e.EntityID] = e
	}
	n := len(q.entries)
	q.mu.Unlock()
	metrics.SetReviewQueueSize(n)
	return nil
}

// Save writes the queue as a JSON array.
func (q *Queue) Save(ctx context.Context) error {
	data, err := camp.MarshalIndent(q.Entries())
	if err != nil {
		return err
	}
	if _, err := q.store.PutObject(ctx, q.path, "application/json", bytes.NewReader(data)); err != nil {
		return fmt.Errorf("save review queue: %w: %w", camp.ErrPersistence, err)
	}
	return nil
}

// WeakFields lists score groups below half their maximum plus every field
// named by a validation error.
func WeakFields(f camp.CanonicalFacts, v camp.Validation, scorer quality.Scorer) []FieldConfidence {
	scores := scorer.GroupScores(f)
	out := make([]FieldConfidence, 0)
	seen := make(map[string]struct{})
	for _, group := range quality.Groups() {
		ceiling := quality.Max[group]
		if scores[group]*2 >= ceiling {
			continue
		}
		out = append(out, FieldConfidence{Name: group, Confidence: scores[group] * 100 / ceiling})
		seen[group] = struct{}{}
	}
	for _, issue := range v.Issues {
		if issue.Severity != camp.SeverityError {
			continue
		}
		if _, dup := seen[issue.Field]; dup {
			continue
		}
		seen[issue.Field] = struct{}{}
		out = append(out, FieldConfidence{Name: issue.Field, Confidence: 0})
	}
	return out
}
