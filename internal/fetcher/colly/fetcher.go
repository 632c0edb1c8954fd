// Package collyfetcher implements static page and sitemap fetching using
// gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/camp-harvester/internal/camp"
	"github.com/JakeFAU/camp-harvester/internal/fetcher"
)

// DefaultTimeout is the per-request timeout for static fetches.
const DefaultTimeout = 20 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// MaxSitemapURLs bounds how many <loc> entries Sitemap returns.
	MaxSitemapURLs int
}

// Fetcher performs plain HTTP GETs through a Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxSitemapURLs <= 0 {
		cfg.MaxSitemapURLs = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	transport := newRobotsGuard(newHTTPTransport(), logger)
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
		logger:        logger,
	}
}

// Fetch downloads rawURL and parses it into a Page. Failures are classified
// as network or timeout errors.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (fetcher.Page, error) {
	var (
		resp     *colly.Response
		fetchErr error
	)
	collector := f.buildCollector()
	f.configureCollectorHooks(collector, &resp, &fetchErr)

	if err := f.runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		return fetcher.Page{}, camp.Classify(err)
	}
	if resp == nil {
		return fetcher.Page{}, camp.Classify(fmt.Errorf("no response for %s", rawURL))
	}
	page, err := fetcher.ParseHTML(resp.Request.URL.String(), resp.Body)
	if err != nil {
		return fetcher.Page{}, err
	}
	page.StatusCode = resp.StatusCode
	return page, nil
}

// Sitemap returns up to MaxSitemapURLs page locations listed in
// <base>/sitemap.xml. A missing sitemap is not an error.
func (f *Fetcher) Sitemap(ctx context.Context, baseURL string) ([]string, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("sitemap base %q: %w", baseURL, camp.ErrParse)
	}
	sitemapURL := (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/sitemap.xml"}).String()

	var (
		locs     []string
		fetchErr error
		missing  bool
	)
	collector := f.buildCollector()
	collector.OnXML("//urlset/url/loc", func(e *colly.XMLElement) {
		if len(locs) >= f.cfg.MaxSitemapURLs {
			return
		}
		if loc := strings.TrimSpace(e.Text); loc != "" {
			locs = append(locs, loc)
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode == http.StatusNotFound {
			missing = true
			return
		}
		fetchErr = err
	})

	err = f.runCollector(ctx, collector, sitemapURL, &fetchErr)
	if missing {
		return nil, nil
	}
	if err != nil {
		f.logger.Debug("sitemap unavailable", zap.String("url", sitemapURL), zap.Error(err))
		return nil, camp.Classify(err)
	}
	return locs, nil
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.AllowURLRevisit = true
	collector.SetRequestTimeout(f.cfg.Timeout)
	transport := f.transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	collector.WithTransport(transport)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, resp **colly.Response, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*resp = r
	})
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			err = fmt.Errorf("status %d: %w", r.StatusCode, err)
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
