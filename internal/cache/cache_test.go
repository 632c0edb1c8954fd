package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/camp-harvester/internal/storage"
	"github.com/JakeFAU/camp-harvester/internal/storage/memory"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestCache() (*Cache, *fakeClock, *memory.BlobStore) {
	clk := &fakeClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.NewBlobStore()
	return New(Config{}, store, clk, nil), clk, store
}

func TestCacheGetRespectsTTL(t *testing.T) {
	t.Parallel()

	c, clk, _ := newTestCache()
	require.NoError(t, c.Put("zoo-camp", "abc", map[string]int{"quality": 72}))

	payload, ok := c.Get("zoo-camp")
	require.True(t, ok)
	assert.JSONEq(t, `{"quality":72}`, string(payload))

	clk.now = clk.now.Add(DefaultTTL)
	_, ok = c.Get("zoo-camp")
	assert.True(t, ok, "entry exactly at TTL is still fresh")

	clk.now = clk.now.Add(time.Millisecond)
	_, ok = c.Get("zoo-camp")
	assert.False(t, ok)
}

func TestCacheLookupEvictsOnHashMismatch(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCache()
	require.NoError(t, c.Put("zoo-camp", "abc", "payload"))

	_, ok := c.Lookup("zoo-camp", "abc")
	assert.True(t, ok)

	_, ok = c.Lookup("zoo-camp", "def")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCacheSaveAndLoad(t *testing.T) {
	t.Parallel()

	c, clk, store := newTestCache()
	require.NoError(t, c.Put("fresh", "h1", "a"))
	clk.now = clk.now.Add(-8 * 24 * time.Hour)
	require.NoError(t, c.Put("stale", "h2", "b"))
	clk.now = clk.now.Add(8 * 24 * time.Hour)

	require.NoError(t, c.Save(context.Background()))

	raw, err := store.GetObject(context.Background(), "content-cache.json")
	require.NoError(t, err)
	var persisted map[string]Entry
	require.NoError(t, json.Unmarshal(raw, &persisted))
	assert.Contains(t, persisted, "fresh")
	assert.NotContains(t, persisted, "stale")

	reloaded := New(Config{}, store, clk, nil)
	require.NoError(t, reloaded.Load(context.Background()))
	hash, ok := reloaded.Hash("fresh")
	require.True(t, ok)
	assert.Equal(t, "h1", hash)
}

func TestCacheLoadMissingOrCorruptStartsEmpty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"null", "null"},
		{"array", "[]"},
		{"truncated", `{"zoo-camp":{"hash":"ab`},
		{"garbage", "{not json"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c, _, store := newTestCache()
			_, err := store.PutObject(context.Background(), "content-cache.json", "", bytes.NewReader([]byte(tc.body)))
			require.NoError(t, err)

			require.NoError(t, c.Load(context.Background()))
			assert.Equal(t, 0, c.Len())
			assert.NotPanics(t, func() {
				require.NoError(t, c.Put("zoo-camp", "abc", "payload"))
			})
			assert.Equal(t, 1, c.Len())
		})
	}
}

func TestCacheLoadMissingFile(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCache()
	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, 0, c.Len())
}

func TestCacheLoadReadFailureStartsEmpty(t *testing.T) {
	t.Parallel()

	blobs := new(storage.MockBlobStore)
	blobs.On("GetObject", mock.Anything, "content-cache.json").Return(nil, errors.New("permission denied"))
	clk := &fakeClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	c := New(Config{}, blobs, clk, nil)

	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, 0, c.Len())
	require.NoError(t, c.Put("zoo-camp", "abc", "payload"))
	blobs.AssertExpectations(t)
}
