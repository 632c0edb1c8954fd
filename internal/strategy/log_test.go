package strategy

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/camp-harvester/internal/camp"
	"github.com/JakeFAU/camp-harvester/internal/storage/memory"
)

func TestLogRecordAndEffectiveness(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	log := NewLog(memory.NewBlobStore(), "", nil)
	log.Record(camp.StrategyResult{Strategy: camp.StrategyStatic, Success: true, Quality: 40}, at)
	log.Record(camp.StrategyResult{Strategy: camp.StrategyStatic, Success: true, Quality: 60}, at)
	log.Record(camp.StrategyResult{Strategy: camp.StrategyStatic, Success: false}, at.Add(time.Minute))

	stats := log.Stats()[camp.StrategyStatic]
	assert.Equal(t, Stats{Attempts: 3, Successes: 2, Failures: 1, TotalQuality: 100, LastRunAt: at.Add(time.Minute)}, stats)
	assert.InDelta(t, 50.0, stats.AvgQuality(), 0.001)

	eff := log.Effectiveness()
	assert.Equal(t, camp.StrategyStats{Attempts: 3, Successes: 2, AvgQuality: 50}, eff[camp.StrategyStatic])
	_, ok := eff[camp.StrategyLLM]
	assert.False(t, ok)
	assert.Zero(t, Stats{}.AvgQuality())
}

func TestLogSaveLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewBlobStore()
	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	log := NewLog(store, "logs/extraction.json", nil)
	log.Record(camp.StrategyResult{Strategy: camp.StrategyRendered, Success: true, Quality: 75}, at)
	log.SetBest("zoo-camp", camp.StrategyRendered, 75, at)
	require.NoError(t, log.Save(ctx))

	reloaded := NewLog(store, "logs/extraction.json", nil)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, log.Stats(), reloaded.Stats())
	best, ok := reloaded.Best("zoo-camp")
	require.True(t, ok)
	assert.Equal(t, EntityBest{Strategy: camp.StrategyRendered, Quality: 75, At: at}, best)
}

func TestLogLoadMissingAndCorrupt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewBlobStore()
	log := NewLog(store, "", nil)
	require.NoError(t, log.Load(ctx))
	assert.Empty(t, log.Stats())

	_, err := store.PutObject(ctx, DefaultLogPath, "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	require.NoError(t, log.Load(ctx))
	assert.Empty(t, log.Stats())

	_, err = store.PutObject(ctx, DefaultLogPath, "application/json", bytes.NewReader([]byte(`{"strategies":null}`)))
	require.NoError(t, err)
	require.NoError(t, log.Load(ctx))
	log.SetBest("a", camp.StrategyStatic, 10, time.Time{})
	_, ok := log.Best("a")
	assert.True(t, ok)
}
