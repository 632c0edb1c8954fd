// Package headless renders pages in headless Chrome via chromedp. One
// Session is opened per entity task and reused for every page the task
// visits.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/camp-harvester/internal/camp"
	"github.com/JakeFAU/camp-harvester/internal/fetcher"
)

// Defaults for rendered captures.
const (
	DefaultNavigationTimeout = 30 * time.Second
	DefaultSettle            = 3 * time.Second
	DefaultScrolls           = 3
	DefaultViewportWidth     = 1280
	DefaultViewportHeight    = 800
	// ScrollStep is the distance in CSS pixels of each lazy-load scroll.
	ScrollStep = 500
	// DefaultUserAgent presents a desktop Chrome.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

var scrollScript = fmt.Sprintf(`window.scrollBy(0, %d)`, ScrollStep)

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	Settle            time.Duration
	Scrolls           int
	ViewportWidth     int64
	ViewportHeight    int64
}

// Browser opens rendering sessions.
type Browser interface {
	Open(ctx context.Context) (Session, error)
	Close()
}

// Session renders pages in one browser tab.
type Session interface {
	Render(ctx context.Context, url string) (fetcher.Page, error)
	Accessibility(ctx context.Context, url string) (fetcher.Page, error)
	Screenshot(ctx context.Context, url string) (fetcher.Page, []byte, error)
	Close()
}

// Fetcher implements Browser using chromedp and headless Chrome.
type Fetcher struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// NewChromedp creates a headless browser backed by chromedp. Chrome is only
// launched when the first session opens.
func NewChromedp(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = DefaultNavigationTimeout
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	} else if cfg.Settle == 0 {
		cfg.Settle = DefaultSettle
	}
	if cfg.Scrolls <= 0 {
		cfg.Scrolls = DefaultScrolls
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.ViewportWidth <= 0 {
		cfg.ViewportWidth = DefaultViewportWidth
	}
	if cfg.ViewportHeight <= 0 {
		cfg.ViewportHeight = DefaultViewportHeight
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(int(cfg.ViewportWidth), int(cfg.ViewportHeight)),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// Close shuts the browser down.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Open waits for a free slot and opens a new tab.
func (f *Fetcher) Open(ctx context.Context) (Session, error) {
	if err := f.acquire(ctx); err != nil {
		return nil, err
	}
	tabCtx, tabCancel := chromedp.NewContext(f.allocator)
	if err := chromedp.Run(tabCtx, f.setupAction()); err != nil {
		tabCancel()
		f.release()
		return nil, camp.Classify(fmt.Errorf("open tab: %w", err))
	}
	return &tab{f: f, ctx: tabCtx, cancel: tabCancel}, nil
}

func (f *Fetcher) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if err := emulation.SetDeviceMetricsOverride(f.cfg.ViewportWidth, f.cfg.ViewportHeight, 1, false).Do(ctx); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return DefaultNavigationTimeout
}

// visibleTextJS walks text nodes, skipping hidden subtrees and
// script/style/noscript elements.
const visibleTextJS = `(() => {
  const skip = new Set(["SCRIPT", "STYLE", "NOSCRIPT", "TEMPLATE"]);
  const out = [];
  const walker = document.createTreeWalker(document.body || document.documentElement, NodeFilter.SHOW_TEXT, {
    acceptNode(node) {
      for (let el = node.parentElement; el; el = el.parentElement) {
        if (skip.has(el.tagName) || el.hidden || el.getAttribute("aria-hidden") === "true") {
          return NodeFilter.FILTER_REJECT;
        }
        const style = window.getComputedStyle(el);
        if (style.display === "none" || style.visibility === "hidden") {
          return NodeFilter.FILTER_REJECT;
        }
      }
      return node.textContent.trim() ? NodeFilter.FILTER_ACCEPT : NodeFilter.FILTER_REJECT;
    }
  });
  while (walker.nextNode()) out.push(walker.currentNode.textContent.trim());
  return out.join("\n");
})()`

type tab struct {
	f      *Fetcher
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func (t *tab) Close() {
	t.once.Do(func() {
		t.cancel()
		t.f.release()
	})
}

// run executes actions bounded by the navigation timeout and the caller's
// context.
func (t *tab) run(ctx context.Context, url string, actions ...chromedp.Action) (int, error) {
	runCtx, cancel := context.WithTimeout(t.ctx, t.f.navTimeout())
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	meta := newResponseMeta()
	chromedp.ListenTarget(runCtx, meta.captureEvent)

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", ctx.Err(), err)
		}
		return 0, camp.Classify(fmt.Errorf("render %s: %w", url, err))
	}
	status := meta.statusOr(http.StatusOK)
	if status >= http.StatusBadRequest {
		return status, fmt.Errorf("render %s: status %d: %w", url, status, camp.ErrNetwork)
	}
	return status, nil
}

func (t *tab) navigate(url string) []chromedp.Action {
	actions := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if t.f.cfg.Settle > 0 {
		actions = append(actions, chromedp.Sleep(t.f.cfg.Settle))
	}
	for i := 0; i < t.f.cfg.Scrolls; i++ {
		actions = append(actions,
			chromedp.Evaluate(scrollScript, nil),
			chromedp.Sleep(400*time.Millisecond),
		)
	}
	return actions
}

func (t *tab) Render(ctx context.Context, url string) (fetcher.Page, error) {
	var (
		html, text, finalURL string
	)
	actions := append(t.navigate(url),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text),
	)
	status, err := t.run(ctx, url, actions...)
	if err != nil {
		return fetcher.Page{}, err
	}
	if finalURL == "" {
		finalURL = url
	}
	page, err := fetcher.ParseHTML(finalURL, []byte(html))
	if err != nil {
		return fetcher.Page{}, err
	}
	if text != "" {
		page.Text = normalizeText(text)
	}
	page.StatusCode = status
	return page, nil
}

func (t *tab) Accessibility(ctx context.Context, url string) (fetcher.Page, error) {
	var (
		html, text, finalURL string
		lines                []string
	)
	actions := append(t.navigate(url),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Evaluate(visibleTextJS, &text),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			if lines, err = fullAXTree(ctx); err != nil {
				t.f.logger.Debug("accessibility tree unavailable", zap.String("url", url), zap.Error(err))
			}
			return nil
		}),
	)
	status, err := t.run(ctx, url, actions...)
	if err != nil {
		return fetcher.Page{}, err
	}
	if finalURL == "" {
		finalURL = url
	}
	page, err := fetcher.ParseHTML(finalURL, []byte(html))
	if err != nil {
		return fetcher.Page{}, err
	}
	page.Text = normalizeText(text)
	page.Structured.Accessibility = lines
	page.StatusCode = status
	return page, nil
}

func (t *tab) Screenshot(ctx context.Context, url string) (fetcher.Page, []byte, error) {
	var (
		html, text, finalURL string
		png                  []byte
	)
	actions := append(t.navigate(url),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text),
		chromedp.FullScreenshot(&png, 100),
	)
	status, err := t.run(ctx, url, actions...)
	if err != nil {
		return fetcher.Page{}, nil, err
	}
	if finalURL == "" {
		finalURL = url
	}
	page, err := fetcher.ParseHTML(finalURL, []byte(html))
	if err != nil {
		return fetcher.Page{}, nil, err
	}
	if text != "" {
		page.Text = normalizeText(text)
	}
	page.StatusCode = status
	return page, png, nil
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) statusOr(fallback int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status == 0 {
		return fallback
	}
	return m.status
}
