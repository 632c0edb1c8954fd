package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/camp-harvester/internal/camp"
)

// Defaults for the extractor.
const (
	DefaultModel             = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens         = 2048
	DefaultRequestsPerMinute = 30
	DefaultMaxPageBytes      = 6 * 1024
)

// Config tunes the extractor.
type Config struct {
	Model             string
	MaxTokens         int64
	RequestsPerMinute int
	MaxPageBytes      int
}

// Extractor asks the model for a camp's facts. It is safe for concurrent
// use; calls are paced to RequestsPerMinute.
type Extractor struct {
	client  Client
	cfg     Config
	limiter *rate.Limiter
	policy  *bluemonday.Policy
	md      *converter.Converter
	logger  *zap.Logger
}

// NewExtractor wires an Extractor around client.
func NewExtractor(client Client, cfg Config, logger *zap.Logger) *Extractor {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if cfg.MaxPageBytes <= 0 {
		cfg.MaxPageBytes = DefaultMaxPageBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
		policy:  bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		logger: logger,
	}
}

// Extract implements acquire.SemanticExtractor. A response that is not a
// JSON object yields empty facts and an error wrapping camp.ErrParse.
func (e *Extractor) Extract(ctx context.Context, rec camp.Record, bundle camp.PageBundle) (camp.CanonicalFacts, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return camp.CanonicalFacts{}, fmt.Errorf("llm pacing: %w", err)
	}
	prompt, err := e.Prompt(rec, bundle)
	if err != nil {
		return camp.CanonicalFacts{}, err
	}
	temp := 0.0
	resp, err := e.client.CreateMessage(ctx, MessageRequest{
		Model:       e.cfg.Model,
		MaxTokens:   e.cfg.MaxTokens,
		System:      systemPrompt,
		Prompt:      prompt,
		Temperature: &temp,
	})
	if err != nil {
		return camp.CanonicalFacts{}, camp.Classify(eris.Wrapf(err, "llm extract %s", rec.ID))
	}
	e.logger.Debug("llm response",
		zap.String("camp_id", rec.ID),
		zap.String("model", resp.Model),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens))

	parsed, err := ParseResponse(resp.Text, e.logger.With(zap.String("camp_id", rec.ID)))
	if err != nil {
		e.logger.Warn("llm response not parseable", zap.String("camp_id", rec.ID), zap.Error(err))
		return camp.CanonicalFacts{}, err
	}
	return parsed.Facts(), nil
}

const systemPrompt = `You extract facts about summer camps from website text. ` +
	`Answer with a single JSON object and nothing else.`

const promptTemplate = `Camp: %s
Website: %s

Known facts from our spreadsheet (may be stale or blank):
%s

Return a JSON object with exactly these top-level keys:
- "pricing": {"weekly_rate", "daily_rate", "session_rate", "half_day_rate", "full_day_rate", "early_bird_rate", "member_rate", "non_member_rate", "extended_care_rate"} in whole US dollars
- "schedule": [{"name", "dates", "theme"}] one entry per session, dates like "June 16–20, 2026"
- "hours": {"standard", "drop_off", "pick_up", "extended_before", "extended_after"} like "9am - 3pm"
- "age_groups": {"min_age", "max_age", "groups": [{"name", "min_age", "max_age"}]}
- "activities": [strings]
- "policies": {"extended_care": {"available": true|false|null, "details", "cost", "times"}}
- "registration": {"status", "opens_date", "waitlist"}
- "contact": {"email", "phone", "address"}
- "confidence": {"pricing", "schedule", "hours", "ages", "activities", "registration"} each 0-100
- "extraction_notes": string
Use null for anything the pages do not state. Do not guess.

Pages:
%s`

// Prompt renders the fixed extraction prompt for one camp.
func (e *Extractor) Prompt(rec camp.Record, bundle camp.PageBundle) (string, error) {
	baseline, err := json.MarshalIndent(rec.Baseline, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal baseline: %w", err)
	}
	var pages strings.Builder
	for _, section := range e.pageSections(bundle) {
		fmt.Fprintf(&pages, "\n### %s\n%s\n", section.category, section.text)
	}
	return fmt.Sprintf(promptTemplate, rec.Name, rec.BaseURL, baseline, pages.String()), nil
}

type section struct {
	category string
	text     string
}

// pageSections groups page content by page type, converting captured HTML
// to markdown where available, and caps each group at MaxPageBytes.
func (e *Extractor) pageSections(bundle camp.PageBundle) []section {
	pages := bundle.Pages
	if len(pages) == 0 {
		pages = []camp.PageCapture{{URL: bundle.URL, Category: "entry", Text: bundle.Text, HTML: bundle.HTML}}
	}
	var (
		order  []string
		groups = make(map[string]*strings.Builder)
	)
	for _, p := range pages {
		cat := p.Category
		if cat == "" {
			cat = "entry"
		}
		b, ok := groups[cat]
		if !ok {
			b = &strings.Builder{}
			groups[cat] = b
			order = append(order, cat)
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(e.pageText(p))
	}
	sort.SliceStable(order, func(i, j int) bool { return order[i] == "entry" && order[j] != "entry" })
	out := make([]section, 0, len(order))
	for _, cat := range order {
		out = append(out, section{category: cat, text: truncate(strings.TrimSpace(groups[cat].String()), e.cfg.MaxPageBytes)})
	}
	return out
}

func (e *Extractor) pageText(p camp.PageCapture) string {
	if strings.TrimSpace(p.HTML) == "" {
		return p.Text
	}
	clean := e.policy.Sanitize(p.HTML)
	md, err := e.md.ConvertString(clean, converter.WithDomain(p.URL))
	if err != nil || strings.TrimSpace(md) == "" {
		e.logger.Debug("markdown conversion failed; using text", zap.String("url", p.URL), zap.Error(err))
		return p.Text
	}
	return md
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
