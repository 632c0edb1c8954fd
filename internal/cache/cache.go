// Package cache keeps per-entity extraction results keyed by content hash so
// unchanged pages skip re-extraction between runs.
package cache

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
	"github.com/JakeFAU/camp-harvester/internal/metrics"
	"github.com/JakeFAU/camp-harvester/internal/storage"
)

// DefaultTTL is the maximum entry age.
const DefaultTTL = 24 * time.Hour

// Entry is one cached payload.
type Entry struct {
	Hash        string          `json:"hash"`
	TimestampMs int64           `json:"timestamp"`
	Payload     json.RawMessage `json:"payload"`
}

// Cache is a content-hash keyed store of entity payloads. It is safe for
// concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration
	clock   camp.Clock
	store   storage.BlobStore
	path    string
	logger  *zap.Logger
}

// Config controls cache behavior.
type Config struct {
	TTL  time.Duration
	Path string
}

// New creates an empty cache persisted to path inside store.
func New(cfg Config, store storage.BlobStore, clock camp.Clock, logger *zap.Logger) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Path == "" {
		cfg.Path = "content-cache.json"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		entries: make(map[string]Entry),
		ttl:     cfg.TTL,
		clock:   clock,
		store:   store,
		path:    cfg.Path,
		logger:  logger,
	}
}

// Get returns the payload for id when it is younger than the TTL.
func (c *Cache) Get(id string) (json.RawMessage, bool) {
	c.mu.RLock()
	entry, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok || !c.fresh(entry) {
		metrics.ObserveCacheLookup(false)
		return nil, false
	}
	metrics.ObserveCacheLookup(true)
	return entry.Payload, true
}

// Lookup returns the payload for id when it is fresh and was stored for the
// same content hash. A hash mismatch evicts the entry.
func (c *Cache) Lookup(id, hash string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[id]
	if !ok || !c.fresh(entry) {
		metrics.ObserveCacheLookup(false)
		return nil, false
	}
	if entry.Hash != hash {
		delete(c.entries, id)
		metrics.ObserveCacheLookup(false)
		return nil, false
	}
	metrics.ObserveCacheLookup(true)
	return entry.Payload, true
}

// Hash returns the content hash stored for id.
func (c *Cache) Hash(id string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[id]
	return entry.Hash, ok
}

// Put stores a payload for id under hash, replacing any previous entry.
func (c *Cache) Put(id, hash string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal cache payload for %s: %w", id, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = Entry{
		Hash:        hash,
		TimestampMs: c.clock.Now().UnixMilli(),
		Payload:     data,
	}
	return nil
}

// Invalidate drops the entry for id.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// Len returns the number of entries, fresh or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Load replaces the in-memory entries with the persisted file. A missing,
// unreadable or corrupt file yields an empty cache.
func (c *Cache) Load(ctx context.Context) error {
	entries := make(map[string]Entry)
	data, err := c.store.GetObject(ctx, c.path)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		c.logger.Warn("content cache unreadable; starting empty", zap.String("path", c.path), zap.Error(err))
	default:
		if err := json.Unmarshal(data, &entries); err != nil {
			c.logger.Warn("discarding corrupt content cache", zap.String("path", c.path), zap.Error(err))
			entries = make(map[string]Entry)
		}
	}
	// A persisted "null" decodes to a nil map.
	if entries == nil {
		entries = make(map[string]Entry)
	}
	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	return nil
}

// Save writes fresh entries to the backing store and drops expired ones.
func (c *Cache) Save(ctx context.Context) error {
	c.mu.Lock()
	for id, entry := range c.entries {
		if !c.fresh(entry) {
			delete(c.entries, id)
		}
	}
	data, err := json.MarshalIndent(c.entries, "", "  ")
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}
	if _, err := c.store.PutObject(ctx, c.path, "application/json", bytes.NewReader(data)); err != nil {
		return fmt.Errorf("save cache: %w: %w", camp.ErrPersistence, err)
	}
	return nil
}

func (c *Cache) fresh(entry Entry) bool {
	age := c.clock.Now().Sub(time.UnixMilli(entry.TimestampMs))
	return age <= c.ttl
}
