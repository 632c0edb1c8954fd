package headless

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/accessibility"
	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/camp-harvester/internal/camp"
)

func TestNewChromedpLimiterValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1}, nil)
	require.Error(t, err)

	f, err := NewChromedp(Config{MaxParallel: 2}, nil)
	require.NoError(t, err)
	t.Cleanup(f.Close)
	assert.Equal(t, 2, cap(f.limiter))
	assert.Equal(t, DefaultSettle, f.cfg.Settle)
	assert.Equal(t, DefaultScrolls, f.cfg.Scrolls)
	assert.Equal(t, DefaultUserAgent, f.cfg.UserAgent)
	assert.Equal(t, int64(DefaultViewportWidth), f.cfg.ViewportWidth)
	assert.Equal(t, int64(DefaultViewportHeight), f.cfg.ViewportHeight)
}

func TestNavigateScrollsInSteps(t *testing.T) {
	t.Parallel()

	f, err := NewChromedp(Config{Settle: -1, Scrolls: 3, UserAgent: "TestAgent/1.0"}, nil)
	require.NoError(t, err)
	t.Cleanup(f.Close)
	assert.Equal(t, "TestAgent/1.0", f.cfg.UserAgent)

	// navigate, wait for body, then one scroll and pause per step
	actions := (&tab{f: f}).navigate("https://zoo.example/")
	assert.Len(t, actions, 2+3*2)
	assert.Equal(t, "window.scrollBy(0, 500)", scrollScript)
}

func TestNegativeSettleDisablesWait(t *testing.T) {
	t.Parallel()

	f, err := NewChromedp(Config{Settle: -1}, nil)
	require.NoError(t, err)
	t.Cleanup(f.Close)
	assert.Zero(t, f.cfg.Settle)
}

func TestFetcherNavTimeoutDefault(t *testing.T) {
	t.Parallel()

	f := &Fetcher{}
	assert.Equal(t, 30*time.Second, f.navTimeout())
	f.cfg.NavigationTimeout = time.Second
	assert.Equal(t, time.Second, f.navTimeout())
}

func TestLimiterAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	f := &Fetcher{limiter: make(chan struct{}, 1)}
	require.NoError(t, f.acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := f.acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	f.release()
	require.NoError(t, f.acquire(context.Background()))
}

func TestResponseMetaCapture(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	assert.Equal(t, http.StatusOK, meta.statusOr(http.StatusOK))

	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 500},
	})
	assert.Equal(t, http.StatusOK, meta.statusOr(http.StatusOK))

	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 404, URL: "https://zoo.example/camps"},
	})
	assert.Equal(t, http.StatusNotFound, meta.statusOr(http.StatusOK))
}

func axNode(role, name string, ignored bool) *accessibility.Node {
	enc := func(s string) *accessibility.Value {
		raw, _ := json.Marshal(s)
		v := &accessibility.Value{Type: accessibility.ValueTypeString}
		v.Value = raw
		return v
	}
	return &accessibility.Node{Role: enc(role), Name: enc(name), Ignored: ignored}
}

func TestAXLines(t *testing.T) {
	t.Parallel()

	nodes := []*accessibility.Node{
		axNode("RootWebArea", "Zoo Camp", false),
		axNode("heading", "Zoo  Camp\nSummer 2026", false),
		axNode("StaticText", "$410 per week", false),
		axNode("StaticText", "$410 per week", false),
		axNode("generic", "wrapper", false),
		axNode("link", "Register", true),
		axNode("button", "", false),
		nil,
		axNode("link", "Register now", false),
	}
	assert.Equal(t, []string{
		"heading: Zoo Camp Summer 2026",
		"text: $410 per week",
		"link: Register now",
	}, axLines(nodes))
}

func TestNormalizeText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Zoo Camp\n$350 / week", normalizeText("  Zoo   Camp \n\n\t$350 /  week\n"))
}

func TestNoopBrowser(t *testing.T) {
	t.Parallel()

	var b Browser = NewNoop()
	_, err := b.Open(context.Background())
	require.ErrorIs(t, err, camp.ErrRendererDisabled)
	b.Close()
}
