package acquire

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/camp-harvester/internal/camp"
	"github.com/JakeFAU/camp-harvester/internal/discover"
	"github.com/JakeFAU/camp-harvester/internal/fetcher"
	"github.com/JakeFAU/camp-harvester/internal/fetcher/headless"
	"github.com/JakeFAU/camp-harvester/internal/hash/sha256"
	"github.com/JakeFAU/camp-harvester/internal/storage/memory"
)

var zooCamp = camp.Record{ID: "zoo-camp", Name: "Zoo Camp", BaseURL: "https://zoo.example/"}

var longText = strings.Repeat("Zoo Camp runs weekly sessions all summer long. ", 6)

type mockStatic struct{ mock.Mock }

func (m *mockStatic) Fetch(ctx context.Context, rawURL string) (fetcher.Page, error) {
	args := m.Called(ctx, rawURL)
	return args.Get(0).(fetcher.Page), args.Error(1)
}

type mockLLM struct{ mock.Mock }

func (m *mockLLM) Extract(ctx context.Context, rec camp.Record, bundle camp.PageBundle) (camp.CanonicalFacts, error) {
	args := m.Called(ctx, rec, bundle)
	return args.Get(0).(camp.CanonicalFacts), args.Error(1)
}

type recordingLimiter struct {
	mu        sync.Mutex
	acquired  []string
	succeeded []string
	failed    []string
}

func (l *recordingLimiter) Acquire(_ context.Context, rawURL string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquired = append(l.acquired, rawURL)
	return nil
}

func (l *recordingLimiter) RecordSuccess(rawURL string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.succeeded = append(l.succeeded, rawURL)
}

func (l *recordingLimiter) RecordFailure(rawURL string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed = append(l.failed, rawURL)
}

type fakeBrowser struct {
	pages   map[string]fetcher.Page
	fail    map[string]error
	png     []byte
	opened  int
	closed  int
	openErr error
}

func (b *fakeBrowser) Open(context.Context) (headless.Session, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.opened++
	return &fakeSession{b: b}, nil
}

func (b *fakeBrowser) Close() {}

type fakeSession struct{ b *fakeBrowser }

func (s *fakeSession) get(rawURL string) (fetcher.Page, error) {
	if err := s.b.fail[rawURL]; err != nil {
		return fetcher.Page{}, err
	}
	page, ok := s.b.pages[rawURL]
	if !ok {
		return fetcher.Page{}, camp.ErrNetwork
	}
	return page, nil
}

func (s *fakeSession) Render(_ context.Context, rawURL string) (fetcher.Page, error) {
	return s.get(rawURL)
}

func (s *fakeSession) Accessibility(_ context.Context, rawURL string) (fetcher.Page, error) {
	page, err := s.get(rawURL)
	if err != nil {
		return page, err
	}
	page.Structured.Accessibility = []string{"heading: Zoo Camp", "text: $350/week"}
	return page, nil
}

func (s *fakeSession) Screenshot(_ context.Context, rawURL string) (fetcher.Page, []byte, error) {
	page, err := s.get(rawURL)
	return page, s.b.png, err
}

func (s *fakeSession) Close() { s.b.closed++ }

func TestStaticMode(t *testing.T) {
	t.Parallel()

	static := &mockStatic{}
	static.On("Fetch", mock.Anything, zooCamp.BaseURL).Return(fetcher.Page{
		URL:   zooCamp.BaseURL,
		Title: "Zoo Camp",
		Text:  longText,
		HTML:  "<html><body><main>" + longText + "</main></body></html>",
	}, nil).Once()
	limiter := &recordingLimiter{}

	a := New(Config{}, Deps{Static: static, Limiter: limiter}, nil)
	bundle, err := a.Acquire(context.Background(), camp.AcquireRequest{Record: zooCamp, Mode: camp.StrategyStatic})
	require.NoError(t, err)
	assert.Equal(t, longText, bundle.Text)
	assert.Equal(t, []string{zooCamp.BaseURL}, bundle.URLs())
	assert.False(t, bundle.NeedsRender)
	assert.Equal(t, []string{zooCamp.BaseURL}, limiter.acquired)
	assert.Equal(t, []string{zooCamp.BaseURL}, limiter.succeeded)
	static.AssertExpectations(t)
}

func TestStaticModeFlagsScriptShell(t *testing.T) {
	t.Parallel()

	static := &mockStatic{}
	static.On("Fetch", mock.Anything, zooCamp.BaseURL).Return(fetcher.Page{
		URL:  zooCamp.BaseURL,
		Text: "Loading...",
		HTML: `<html><body><div id="root"></div></body></html>`,
	}, nil)

	bundle, err := New(Config{}, Deps{Static: static}, nil).
		Acquire(context.Background(), camp.AcquireRequest{Record: zooCamp, Mode: camp.StrategyStatic})
	require.NoError(t, err)
	assert.True(t, bundle.NeedsRender)
}

func TestStaticModeErrorSkipsSuccess(t *testing.T) {
	t.Parallel()

	static := &mockStatic{}
	static.On("Fetch", mock.Anything, zooCamp.BaseURL).Return(fetcher.Page{}, camp.ErrTimeout)
	limiter := &recordingLimiter{}

	_, err := New(Config{}, Deps{Static: static, Limiter: limiter}, nil).
		Acquire(context.Background(), camp.AcquireRequest{Record: zooCamp, Mode: camp.StrategyStatic})
	require.ErrorIs(t, err, camp.ErrTimeout)
	assert.Len(t, limiter.acquired, 1)
	assert.Empty(t, limiter.succeeded)
}

func TestRenderedModeFollowsDiscoveredPages(t *testing.T) {
	t.Parallel()

	browser := &fakeBrowser{
		pages: map[string]fetcher.Page{
			"https://zoo.example/": {
				URL:   "https://zoo.example/",
				Title: "Zoo Camp",
				Text:  "Zoo Camp Summer 2026",
				Anchors: []camp.Anchor{
					{Href: "https://zoo.example/pricing", Text: "Pricing"},
					{Href: "https://zoo.example/faq", Text: "FAQ"},
					{Href: "https://zoo.example/register", Text: "Register"},
					{Href: "https://zoo.example/handbook.pdf", Text: "Parent Handbook"},
				},
			},
			"https://zoo.example/pricing": {
				URL:        "https://zoo.example/pricing",
				Text:       "$350/week",
				Structured: camp.Structured{Tables: [][][]string{{{"Week 1", "June 16–20"}}}},
			},
			"https://zoo.example/faq": {URL: "https://zoo.example/faq", Text: "Ages 5–12"},
		},
		fail: map[string]error{"https://zoo.example/register": camp.ErrTimeout},
	}
	limiter := &recordingLimiter{}
	a := New(Config{}, Deps{
		Browser:    browser,
		Discoverer: discover.New(discover.Config{}, nil, nil),
		Limiter:    limiter,
	}, nil)

	bundle, err := a.Acquire(context.Background(), camp.AcquireRequest{Record: zooCamp, Mode: camp.StrategyRendered})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://zoo.example/", "https://zoo.example/pricing", "https://zoo.example/faq"}, bundle.URLs())
	assert.Equal(t, "pricing", bundle.Pages[1].Category)
	assert.Equal(t, "Zoo Camp Summer 2026"+
		PageMarker("https://zoo.example/pricing")+"$350/week"+
		PageMarker("https://zoo.example/faq")+"Ages 5–12", bundle.Text)
	assert.Len(t, bundle.Structured.Tables, 1)
	require.Len(t, bundle.Attachments, 1)
	assert.Equal(t, "handbook", bundle.Attachments[0].Kind)
	assert.Equal(t, 1, browser.opened)
	assert.Equal(t, 1, browser.closed)
	assert.Len(t, limiter.acquired, 4)
	assert.Len(t, limiter.succeeded, 3)
	assert.Equal(t, []string{"https://zoo.example/register"}, limiter.failed)
}

func TestRenderedModeCapsPages(t *testing.T) {
	t.Parallel()

	browser := &fakeBrowser{pages: map[string]fetcher.Page{
		"https://zoo.example/": {
			URL: "https://zoo.example/",
			Anchors: []camp.Anchor{
				{Href: "https://zoo.example/pricing", Text: "Pricing"},
				{Href: "https://zoo.example/camps", Text: "Camps"},
			},
		},
		"https://zoo.example/pricing": {URL: "https://zoo.example/pricing"},
		"https://zoo.example/camps":   {URL: "https://zoo.example/camps"},
	}}
	a := New(Config{MaxPages: 2}, Deps{Browser: browser, Discoverer: discover.New(discover.Config{}, nil, nil)}, nil)
	bundle, err := a.Acquire(context.Background(), camp.AcquireRequest{Record: zooCamp, Mode: camp.StrategyRendered})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://zoo.example/", "https://zoo.example/pricing"}, bundle.URLs())
}

func TestRenderedModeEntryFailure(t *testing.T) {
	t.Parallel()

	browser := &fakeBrowser{fail: map[string]error{zooCamp.BaseURL: camp.ErrTimeout}}
	_, err := New(Config{}, Deps{Browser: browser}, nil).
		Acquire(context.Background(), camp.AcquireRequest{Record: zooCamp, Mode: camp.StrategyRendered})
	require.ErrorIs(t, err, camp.ErrTimeout)
	assert.Equal(t, zooCamp.BaseURL, camp.FailedURL(err))
	assert.Equal(t, 1, browser.closed)
}

func TestAccessibilityMode(t *testing.T) {
	t.Parallel()

	browser := &fakeBrowser{pages: map[string]fetcher.Page{
		zooCamp.BaseURL: {URL: zooCamp.BaseURL, Text: "Zoo Camp"},
	}}
	bundle, err := New(Config{}, Deps{Browser: browser}, nil).
		Acquire(context.Background(), camp.AcquireRequest{Record: zooCamp, Mode: camp.StrategyAccessibility})
	require.NoError(t, err)
	assert.Equal(t, []string{"heading: Zoo Camp", "text: $350/week"}, bundle.Structured.Accessibility)
}

func TestScreenshotModeStoresArtifact(t *testing.T) {
	t.Parallel()

	png := []byte("\x89PNG fake")
	browser := &fakeBrowser{
		pages: map[string]fetcher.Page{zooCamp.BaseURL: {URL: zooCamp.BaseURL, Title: "Zoo Camp", Text: "ignored"}},
		png:   png,
	}
	store := memory.NewBlobStore()
	bundle, err := New(Config{}, Deps{Browser: browser, Artifacts: store}, nil).
		Acquire(context.Background(), camp.AcquireRequest{Record: zooCamp, Mode: camp.StrategyScreenshot})
	require.NoError(t, err)

	digest, err := sha256.New().Hash(png)
	require.NoError(t, err)
	name := "zoo-camp_" + digest[:16] + ".png"
	assert.Equal(t, []string{name}, store.Paths())
	assert.Equal(t, []string{"memory://" + name}, bundle.Artifacts)
	assert.Empty(t, bundle.Text)
}

func TestLLMModeUsesPriorBundle(t *testing.T) {
	t.Parallel()

	prior := &camp.PageBundle{URL: zooCamp.BaseURL, Text: "$400 per week"}
	facts := camp.CanonicalFacts{Pricing: camp.Pricing{camp.TierWeekly: 400}}
	llm := &mockLLM{}
	llm.On("Extract", mock.Anything, zooCamp, *prior).Return(facts, nil).Once()

	bundle, err := New(Config{}, Deps{LLM: llm}, nil).
		Acquire(context.Background(), camp.AcquireRequest{Record: zooCamp, Mode: camp.StrategyLLM, Prior: prior})
	require.NoError(t, err)
	require.NotNil(t, bundle.Facts)
	assert.Equal(t, 400, bundle.Facts.Pricing[camp.TierWeekly])
	llm.AssertExpectations(t)
}

func TestLLMModeFetchesWhenNoPrior(t *testing.T) {
	t.Parallel()

	static := &mockStatic{}
	static.On("Fetch", mock.Anything, zooCamp.BaseURL).Return(fetcher.Page{URL: zooCamp.BaseURL, Text: "camp"}, nil)
	llm := &mockLLM{}
	parseErr := errors.New("bad json: " + camp.ErrParse.Error())
	llm.On("Extract", mock.Anything, zooCamp, mock.AnythingOfType("camp.PageBundle")).Return(camp.CanonicalFacts{}, parseErr)

	bundle, err := New(Config{}, Deps{Static: static, LLM: llm}, nil).
		Acquire(context.Background(), camp.AcquireRequest{Record: zooCamp, Mode: camp.StrategyLLM})
	require.ErrorIs(t, err, parseErr)
	require.NotNil(t, bundle.Facts)
	assert.True(t, bundle.Facts.IsEmpty())
	static.AssertExpectations(t)
}

func TestUnavailableModes(t *testing.T) {
	t.Parallel()

	a := New(Config{}, Deps{}, nil)
	for _, mode := range camp.AllStrategies() {
		assert.False(t, a.Available(mode), mode)
		_, err := a.Acquire(context.Background(), camp.AcquireRequest{Record: zooCamp, Mode: mode})
		require.ErrorIs(t, err, camp.ErrStrategyUnavailable, mode)
	}

	_, err := a.Acquire(context.Background(), camp.AcquireRequest{Record: zooCamp, Mode: "carrier-pigeon"})
	require.ErrorIs(t, err, camp.ErrInvariant)
}

func TestBrowserOpenFailure(t *testing.T) {
	t.Parallel()

	a := New(Config{}, Deps{Browser: headless.NewNoop()}, nil)
	_, err := a.Acquire(context.Background(), camp.AcquireRequest{Record: zooCamp, Mode: camp.StrategyRendered})
	require.ErrorIs(t, err, camp.ErrRendererDisabled)
}

func TestRenderDetector(t *testing.T) {
	t.Parallel()

	d := newRenderDetector()
	cases := []struct {
		name string
		page fetcher.Page
		want bool
	}{
		{name: "short text", page: fetcher.Page{Text: "hi"}, want: true},
		{name: "keyword", page: fetcher.Page{Text: longText, HTML: "<noscript>Please enable JavaScript</noscript>"}, want: true},
		{name: "empty mount", page: fetcher.Page{Text: longText, HTML: `<div id="app"> </div><p>` + longText + `</p>`}, want: true},
		{name: "plain page", page: fetcher.Page{Text: longText, HTML: "<main>" + longText + "</main>"}, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, d.NeedsRender(tc.page))
		})
	}
	var nilDetector *renderDetector
	assert.False(t, nilDetector.NeedsRender(fetcher.Page{}))
}
