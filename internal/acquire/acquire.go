// Package acquire loads a camp's pages under one acquisition mode and
// normalizes them into a camp.PageBundle. Each mode has its own handler;
// Acquire only dispatches.
package acquire

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/camp-harvester/internal/camp"
	"github.com/JakeFAU/camp-harvester/internal/discover"
	"github.com/JakeFAU/camp-harvester/internal/fetcher"
	"github.com/JakeFAU/camp-harvester/internal/fetcher/headless"
	"github.com/JakeFAU/camp-harvester/internal/hash/sha256"
	"github.com/JakeFAU/camp-harvester/internal/storage"
)

// DefaultMaxPages bounds how many pages a rendered bundle may hold,
// including the entry page.
const DefaultMaxPages = 5

// StaticFetcher downloads a page without running scripts.
type StaticFetcher interface {
	Fetch(ctx context.Context, rawURL string) (fetcher.Page, error)
}

// Discoverer picks related pages from the entry page's links.
type Discoverer interface {
	Discover(ctx context.Context, entryURL string, anchors []camp.Anchor) discover.Result
}

// Limiter paces requests per host.
type Limiter interface {
	Acquire(ctx context.Context, rawURL string) error
	RecordSuccess(rawURL string)
	RecordFailure(rawURL string)
}

// SemanticExtractor turns an already acquired bundle into facts.
type SemanticExtractor interface {
	Extract(ctx context.Context, rec camp.Record, bundle camp.PageBundle) (camp.CanonicalFacts, error)
}

// Config tunes the acquirer.
type Config struct {
	MaxPages int
}

// Deps are the collaborators used by the mode handlers. Browser, LLM and
// Artifacts may be nil; the modes that need them then report
// camp.ErrStrategyUnavailable.
type Deps struct {
	Static     StaticFetcher
	Browser    headless.Browser
	Discoverer Discoverer
	Limiter    Limiter
	LLM        SemanticExtractor
	Artifacts  storage.BlobStore
}

type handler func(ctx context.Context, req camp.AcquireRequest) (camp.PageBundle, error)

// Acquirer implements camp.Acquirer.
type Acquirer struct {
	cfg      Config
	deps     Deps
	detector *renderDetector
	hasher   *sha256.Hasher
	logger   *zap.Logger
	handlers map[camp.Strategy]handler
}

var _ camp.Acquirer = (*Acquirer)(nil)

// New wires an Acquirer.
func New(cfg Config, deps Deps, logger *zap.Logger) *Acquirer {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Acquirer{
		cfg:      cfg,
		deps:     deps,
		detector: newRenderDetector(),
		hasher:   sha256.New(),
		logger:   logger,
	}
	a.handlers = map[camp.Strategy]handler{
		camp.StrategyStatic:        a.static,
		camp.StrategyRendered:      a.rendered,
		camp.StrategyAccessibility: a.accessibility,
		camp.StrategyScreenshot:    a.screenshot,
		camp.StrategyLLM:           a.llm,
	}
	return a
}

// Available reports whether mode can run with the configured collaborators.
func (a *Acquirer) Available(mode camp.Strategy) bool {
	switch mode {
	case camp.StrategyStatic:
		return a.deps.Static != nil
	case camp.StrategyRendered, camp.StrategyAccessibility:
		return a.deps.Browser != nil
	case camp.StrategyScreenshot:
		return a.deps.Browser != nil && a.deps.Artifacts != nil
	case camp.StrategyLLM:
		return a.deps.LLM != nil
	default:
		return false
	}
}

// Acquire loads req.Record under req.Mode.
func (a *Acquirer) Acquire(ctx context.Context, req camp.AcquireRequest) (camp.PageBundle, error) {
	h, ok := a.handlers[req.Mode]
	if !ok {
		return camp.PageBundle{}, fmt.Errorf("acquire mode %q: %w", req.Mode, camp.ErrInvariant)
	}
	if !a.Available(req.Mode) {
		return camp.PageBundle{}, fmt.Errorf("acquire mode %q: %w", req.Mode, camp.ErrStrategyUnavailable)
	}
	if req.Record.BaseURL == "" && req.Mode != camp.StrategyLLM {
		return camp.PageBundle{}, fmt.Errorf("camp %s has no url: %w", req.Record.ID, camp.ErrInvariant)
	}
	return h(ctx, req)
}

func (a *Acquirer) pace(ctx context.Context, rawURL string) error {
	if a.deps.Limiter == nil {
		return nil
	}
	if err := a.deps.Limiter.Acquire(ctx, rawURL); err != nil {
		return fmt.Errorf("rate limit %s: %w", rawURL, err)
	}
	return nil
}

func (a *Acquirer) succeeded(rawURL string) {
	if a.deps.Limiter != nil {
		a.deps.Limiter.RecordSuccess(rawURL)
	}
}

// failed records a skipped subpage's transient failure against its own host.
// Failures returned from Acquire are recorded by the caller.
func (a *Acquirer) failed(rawURL string, err error) {
	if a.deps.Limiter != nil && camp.IsRetryable(err) {
		a.deps.Limiter.RecordFailure(rawURL)
	}
}

func (a *Acquirer) fetchStatic(ctx context.Context, rawURL string) (fetcher.Page, error) {
	if err := a.pace(ctx, rawURL); err != nil {
		return fetcher.Page{}, err
	}
	page, err := a.deps.Static.Fetch(ctx, rawURL)
	if err != nil {
		return fetcher.Page{}, &camp.FetchError{URL: rawURL, Err: err}
	}
	a.succeeded(rawURL)
	return page, nil
}

func (a *Acquirer) static(ctx context.Context, req camp.AcquireRequest) (camp.PageBundle, error) {
	page, err := a.fetchStatic(ctx, req.Record.BaseURL)
	if err != nil {
		return camp.PageBundle{}, err
	}
	bundle := bundleFrom(page)
	if a.detector.NeedsRender(page) {
		bundle.NeedsRender = true
		a.logger.Debug("static page looks script-built",
			zap.String("camp_id", req.Record.ID), zap.String("url", page.URL))
	}
	return bundle, nil
}

func (a *Acquirer) rendered(ctx context.Context, req camp.AcquireRequest) (camp.PageBundle, error) {
	session, err := a.deps.Browser.Open(ctx)
	if err != nil {
		return camp.PageBundle{}, err
	}
	defer session.Close()

	entry, err := a.capture(ctx, req.Record.BaseURL, session.Render)
	if err != nil {
		return camp.PageBundle{}, err
	}
	bundle := bundleFrom(entry)
	if a.deps.Discoverer == nil {
		return bundle, nil
	}

	found := a.deps.Discoverer.Discover(ctx, entry.URL, entry.Anchors)
	for _, pdf := range found.PDFs {
		bundle.Attachments = append(bundle.Attachments, camp.Attachment{URL: pdf.URL, Text: pdf.Text, Kind: string(pdf.Kind)})
	}
	for _, link := range found.Links {
		if len(bundle.Pages) >= a.cfg.MaxPages {
			break
		}
		if ctx.Err() != nil {
			break
		}
		page, err := a.capture(ctx, link.URL, session.Render)
		if err != nil {
			a.failed(link.URL, err)
			a.logger.Warn("subpage skipped",
				zap.String("camp_id", req.Record.ID),
				zap.String("url", link.URL),
				zap.Error(err))
			continue
		}
		appendPage(&bundle, page, string(link.Category))
	}
	return bundle, nil
}

func (a *Acquirer) accessibility(ctx context.Context, req camp.AcquireRequest) (camp.PageBundle, error) {
	session, err := a.deps.Browser.Open(ctx)
	if err != nil {
		return camp.PageBundle{}, err
	}
	defer session.Close()

	page, err := a.capture(ctx, req.Record.BaseURL, session.Accessibility)
	if err != nil {
		return camp.PageBundle{}, err
	}
	return bundleFrom(page), nil
}

func (a *Acquirer) screenshot(ctx context.Context, req camp.AcquireRequest) (camp.PageBundle, error) {
	session, err := a.deps.Browser.Open(ctx)
	if err != nil {
		return camp.PageBundle{}, err
	}
	defer session.Close()

	rawURL := req.Record.BaseURL
	if err := a.pace(ctx, rawURL); err != nil {
		return camp.PageBundle{}, err
	}
	page, png, err := session.Screenshot(ctx, rawURL)
	if err != nil {
		return camp.PageBundle{}, &camp.FetchError{URL: rawURL, Err: err}
	}
	a.succeeded(rawURL)

	digest, err := a.hasher.Hash(png)
	if err != nil {
		return camp.PageBundle{}, fmt.Errorf("hash screenshot: %w", err)
	}
	name := ArtifactName(req.Record.ID, digest)
	location, err := a.deps.Artifacts.PutObject(ctx, name, "image/png", bytes.NewReader(png))
	if err != nil {
		return camp.PageBundle{}, fmt.Errorf("store screenshot %s: %w: %w", name, camp.ErrPersistence, err)
	}
	return camp.PageBundle{
		URL:       page.URL,
		Title:     page.Title,
		Pages:     []camp.PageCapture{{URL: page.URL, Title: page.Title, Category: "entry"}},
		Artifacts: []string{location},
	}, nil
}

func (a *Acquirer) llm(ctx context.Context, req camp.AcquireRequest) (camp.PageBundle, error) {
	var bundle camp.PageBundle
	switch {
	case req.Prior != nil && strings.TrimSpace(req.Prior.Text) != "":
		bundle = *req.Prior
	case a.deps.Static != nil && req.Record.BaseURL != "":
		page, err := a.fetchStatic(ctx, req.Record.BaseURL)
		if err != nil {
			return camp.PageBundle{}, err
		}
		bundle = bundleFrom(page)
	default:
		return camp.PageBundle{}, fmt.Errorf("llm mode needs page text for %s: %w", req.Record.ID, camp.ErrStrategyUnavailable)
	}

	facts, err := a.deps.LLM.Extract(ctx, req.Record, bundle)
	bundle.Facts = &facts
	return bundle, err
}

type captureFunc func(ctx context.Context, rawURL string) (fetcher.Page, error)

func (a *Acquirer) capture(ctx context.Context, rawURL string, fn captureFunc) (fetcher.Page, error) {
	if err := a.pace(ctx, rawURL); err != nil {
		return fetcher.Page{}, err
	}
	page, err := fn(ctx, rawURL)
	if err != nil {
		return fetcher.Page{}, &camp.FetchError{URL: rawURL, Err: err}
	}
	a.succeeded(rawURL)
	return page, nil
}

// ArtifactName names a screenshot file: <entityId>_<hash>.png.
func ArtifactName(entityID, digest string) string {
	return entityID + "_" + sha256.Short(digest) + ".png"
}

// PageMarker separates pages in a multi-page bundle's text.
func PageMarker(rawURL string) string {
	return "\n\n===== PAGE: " + rawURL + " =====\n\n"
}

func bundleFrom(page fetcher.Page) camp.PageBundle {
	return camp.PageBundle{
		URL:        page.URL,
		Title:      page.Title,
		Text:       page.Text,
		HTML:       page.HTML,
		Structured: page.Structured,
		Pages: []camp.PageCapture{{
			URL:      page.URL,
			Title:    page.Title,
			Category: "entry",
			Text:     page.Text,
			HTML:     page.HTML,
		}},
	}
}

func appendPage(bundle *camp.PageBundle, page fetcher.Page, category string) {
	bundle.Text += PageMarker(page.URL) + page.Text
	bundle.Structured.JSONLD = append(bundle.Structured.JSONLD, page.Structured.JSONLD...)
	bundle.Structured.Tables = append(bundle.Structured.Tables, page.Structured.Tables...)
	bundle.Structured.Accessibility = append(bundle.Structured.Accessibility, page.Structured.Accessibility...)
	bundle.Pages = append(bundle.Pages, camp.PageCapture{
		URL:      page.URL,
		Title:    page.Title,
		Category: category,
		Text:     page.Text,
		HTML:     page.HTML,
	})
}
