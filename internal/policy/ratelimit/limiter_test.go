package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/camp-harvester/internal/camp"
)

// scriptedClock only advances when Sleep is called or the test moves it.
type scriptedClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newScriptedClock() *scriptedClock {
	return &scriptedClock{now: time.Unix(1_750_000_000, 0)}
}

func (c *scriptedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *scriptedClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *scriptedClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *scriptedClock) slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func TestLimiterFirstRequestIsImmediate(t *testing.T) {
	t.Parallel()

	clk := newScriptedClock()
	l := New(Config{BaseDelay: 100 * time.Millisecond}, clk, nil)

	require.NoError(t, l.Acquire(context.Background(), "https://camp.example.com/"))
	assert.Empty(t, clk.slept())
}

func TestLimiterSpacesSameHost(t *testing.T) {
	t.Parallel()

	clk := newScriptedClock()
	l := New(Config{BaseDelay: 100 * time.Millisecond}, clk, nil)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "https://camp.example.com/a"))
	require.NoError(t, l.Acquire(ctx, "https://CAMP.example.com/b"))
	require.NoError(t, l.Acquire(ctx, "https://other.example.org/"))

	assert.Equal(t, []time.Duration{100 * time.Millisecond}, clk.slept())
}

func TestLimiterBacksOffAfterFailures(t *testing.T) {
	t.Parallel()

	clk := newScriptedClock()
	base := 100 * time.Millisecond
	l := New(Config{BaseDelay: base, MaxDelay: time.Minute}, clk, nil)
	ctx := context.Background()
	target := "https://flaky.example.com/camps"

	for i := 0; i < 4; i++ {
		require.NoError(t, l.Acquire(ctx, target))
		l.RecordFailure(target)
	}
	before := clk.Now()
	require.NoError(t, l.Acquire(ctx, target))
	waited := clk.Now().Sub(before)

	assert.GreaterOrEqual(t, waited, base*16)
	assert.Equal(t, 4, l.Failures(target))

	l.RecordSuccess(target)
	assert.Equal(t, 0, l.Failures(target))
	assert.Equal(t, base, l.Delay(target))
}

func TestLimiterDelayCaps(t *testing.T) {
	t.Parallel()

	l := New(Config{BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}, newScriptedClock(), nil)
	target := "https://down.example.com"
	for i := 0; i < 12; i++ {
		l.RecordFailure(target)
	}
	assert.Equal(t, maxFailures, l.Failures(target))
	assert.Equal(t, 30*time.Second, l.Delay(target))
}

func TestLimiterUnparseableURLFailsOpen(t *testing.T) {
	t.Parallel()

	clk := newScriptedClock()
	l := New(Config{}, clk, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(context.Background(), "::not a url"))
	}
	l.RecordFailure("::not a url")
	assert.Empty(t, clk.slept())
	assert.Equal(t, 0, l.Failures("::not a url"))
}

func TestLimiterClockBackwardsIsInvariantViolation(t *testing.T) {
	t.Parallel()

	clk := newScriptedClock()
	l := New(Config{}, clk, nil)
	start := clk.Now()

	require.NoError(t, l.Acquire(context.Background(), "https://a.example.com"))
	clk.set(start.Add(-time.Second))
	err := l.Acquire(context.Background(), "https://b.example.com")
	require.ErrorIs(t, err, camp.ErrInvariant)
}

func TestLimiterRespectsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{BaseDelay: time.Hour}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Acquire(ctx, "https://slow.example.com"))
	cancel()
	err := l.Acquire(ctx, "https://slow.example.com")
	require.ErrorIs(t, err, context.Canceled)
}

func TestLimiterSuccessRestoresBaseSpacing(t *testing.T) {
	t.Parallel()

	clk := newScriptedClock()
	l := New(Config{BaseDelay: 100 * time.Millisecond}, clk, nil)
	ctx := context.Background()
	target := "https://recovering.example.com/"

	require.NoError(t, l.Acquire(ctx, target))
	l.RecordFailure(target)
	assert.Equal(t, 200*time.Millisecond, l.Delay(target))
	l.RecordSuccess(target)
	require.NoError(t, l.Acquire(ctx, target))

	assert.Equal(t, []time.Duration{100 * time.Millisecond}, clk.slept())
}
