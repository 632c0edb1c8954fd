// Package discover ranks the links found on a camp's entry page and picks
// the handful of related pages (pricing, camps, schedule, registration, FAQ)
// worth capturing. PDF attachments are collected and classified separately.
package discover

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/camp-harvester/internal/camp"
)

// Category is a page type the discoverer looks for.
type Category string

// Categories in priority order.
const (
	CategoryPricing  Category = "pricing"
	CategoryCamps    Category = "camps"
	CategorySchedule Category = "schedule"
	CategoryRegister Category = "register"
	CategoryFAQ      Category = "faq"
)

// Categories returns all categories in priority order.
func Categories() []Category {
	return []Category{CategoryPricing, CategoryCamps, CategorySchedule, CategoryRegister, CategoryFAQ}
}

var lexicons = map[Category][]string{
	CategoryPricing:  {"price", "pricing", "rates", "tuition", "fees", "cost"},
	CategoryCamps:    {"camp", "camps", "program", "programs", "summer", "kids"},
	CategorySchedule: {"schedule", "dates", "calendar", "sessions", "weeks", "hours"},
	CategoryRegister: {"register", "registration", "enroll", "enrollment", "sign up", "signup"},
	CategoryFAQ:      {"faq", "faqs", "questions", "parent info", "parents", "policies"},
}

// PDFKind classifies a PDF attachment.
type PDFKind string

// PDF kinds.
const (
	PDFHandbook     PDFKind = "handbook"
	PDFSchedule     PDFKind = "schedule"
	PDFRegistration PDFKind = "registration"
	PDFPolicy       PDFKind = "policy"
	PDFPackingList  PDFKind = "packing-list"
	PDFOther        PDFKind = "other"
)

var pdfRules = []struct {
	kind PDFKind
	re   *regexp.Regexp
}{
	{PDFHandbook, regexp.MustCompile(`handbook|parent[\s_-]*guide|family[\s_-]*guide`)},
	{PDFPackingList, regexp.MustCompile(`packing|what[\s_-]*to[\s_-]*bring|checklist`)},
	{PDFSchedule, regexp.MustCompile(`schedule|calendar|dates`)},
	{PDFRegistration, regexp.MustCompile(`registration|register|enroll|application|sign[\s_-]*up`)},
	{PDFPolicy, regexp.MustCompile(`polic(?:y|ies)|refund|cancellation|waiver|terms`)},
}

var pdfRe = regexp.MustCompile(`(?i)\.pdf(?:$|[?#])`)

// PDF is one attachment linked from the entry page.
type PDF struct {
	URL  string  `json:"url"`
	Text string  `json:"text,omitempty"`
	Kind PDFKind `json:"kind"`
}

// Link is one selected page.
type Link struct {
	URL      string   `json:"url"`
	Category Category `json:"category"`
	Score    int      `json:"score"`
}

// Result is the output of one discovery pass.
type Result struct {
	Links []Link
	PDFs  []PDF
	// Sitemap holds sitemap entries that matched the camp lexicon.
	Sitemap []string
}

// URLs returns the selected page URLs in priority order.
func (r Result) URLs() []string {
	out := make([]string, 0, len(r.Links))
	for _, l := range r.Links {
		out = append(out, l.URL)
	}
	return out
}

// SitemapSource lists URLs from a site's sitemap.xml.
type SitemapSource interface {
	Sitemap(ctx context.Context, baseURL string) ([]string, error)
}

// Config tunes the discoverer.
type Config struct {
	MaxLinks       int
	MaxSitemapURLs int
	BlockedHosts   []string
}

// Discoverer selects related pages from an entry page's anchors.
type Discoverer struct {
	cfg       Config
	blocklist *hostBlocklist
	sitemap   SitemapSource
	logger    *zap.Logger
}

// New builds a Discoverer. sitemap may be nil.
func New(cfg Config, sitemap SitemapSource, logger *zap.Logger) *Discoverer {
	if cfg.MaxLinks <= 0 {
		cfg.MaxLinks = 5
	}
	if cfg.MaxSitemapURLs <= 0 {
		cfg.MaxSitemapURLs = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	blocked := append(append([]string(nil), DefaultBlockedHosts...), cfg.BlockedHosts...)
	return &Discoverer{
		cfg:       cfg,
		blocklist: newHostBlocklist(blocked),
		sitemap:   sitemap,
		logger:    logger,
	}
}

type candidate struct {
	url    string
	text   string
	scores map[Category]int
}

// Discover ranks anchors from the page at entryURL. It never fails; a
// missing sitemap or malformed link just contributes nothing.
func (d *Discoverer) Discover(ctx context.Context, entryURL string, anchors []camp.Anchor) Result {
	var res Result
	entry, err := url.Parse(entryURL)
	if err != nil || entry.Host == "" {
		d.logger.Debug("discover: unusable entry url", zap.String("url", entryURL))
		return res
	}
	mainKey, _ := NormalizeURL(entryURL)

	var (
		cands   []candidate
		seen    = map[string]struct{}{mainKey: {}}
		seenPDF = map[string]struct{}{}
	)
	for _, a := range anchors {
		u, ok := d.eligible(entry, a.Href)
		if !ok {
			continue
		}
		key, err := NormalizeURL(u.String())
		if err != nil {
			continue
		}
		if pdfRe.MatchString(u.String()) {
			if _, dup := seenPDF[key]; dup {
				continue
			}
			seenPDF[key] = struct{}{}
			res.PDFs = append(res.PDFs, PDF{URL: key, Text: a.Text, Kind: ClassifyPDF(a.Text + " " + u.Path)})
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		haystack := strings.ToLower(strings.Join([]string{a.Text, a.Label, u.Path, u.RawQuery}, " "))
		cands = append(cands, candidate{url: key, text: a.Text, scores: scoreAll(haystack)})
	}

	for _, loc := range d.mineSitemap(ctx, entry) {
		key, err := NormalizeURL(loc)
		if err != nil {
			continue
		}
		res.Sitemap = append(res.Sitemap, key)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		u, _ := url.Parse(key)
		cands = append(cands, candidate{url: key, scores: scoreAll(strings.ToLower(u.Path))})
	}

	res.Links = pick(cands, d.cfg.MaxLinks)
	return res
}

func (d *Discoverer) eligible(entry *url.URL, href string) (*url.URL, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return nil, false
	}
	u := entry.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	if d.blocklist.IsBlocked(u.Hostname()) {
		return nil, false
	}
	if !sameSite(u.Hostname(), entry.Hostname()) {
		return nil, false
	}
	return u, true
}

func (d *Discoverer) mineSitemap(ctx context.Context, entry *url.URL) []string {
	if d.sitemap == nil {
		return nil
	}
	locs, err := d.sitemap.Sitemap(ctx, entry.String())
	if err != nil {
		d.logger.Debug("discover: sitemap skipped", zap.String("host", entry.Host), zap.Error(err))
		return nil
	}
	var out []string
	for _, loc := range locs {
		u, ok := d.eligible(entry, loc)
		if !ok || pdfRe.MatchString(loc) {
			continue
		}
		if countHits(strings.ToLower(u.Path), lexicons[CategoryCamps]) == 0 {
			continue
		}
		out = append(out, u.String())
		if len(out) >= d.cfg.MaxSitemapURLs {
			break
		}
	}
	return out
}

// pick chooses, for each category in priority order, the highest-scoring
// candidate not already taken. Ties go to the earlier candidate.
func pick(cands []candidate, limit int) []Link {
	var (
		out   []Link
		taken = make(map[string]struct{})
	)
	for _, cat := range Categories() {
		best := -1
		for i, c := range cands {
			if _, used := taken[c.url]; used || c.scores[cat] == 0 {
				continue
			}
			if best < 0 || c.scores[cat] > cands[best].scores[cat] {
				best = i
			}
		}
		if best < 0 {
			continue
		}
		taken[cands[best].url] = struct{}{}
		out = append(out, Link{URL: cands[best].url, Category: cat, Score: cands[best].scores[cat]})
		if len(out) >= limit {
			break
		}
	}
	return out
}

func scoreAll(haystack string) map[Category]int {
	scores := make(map[Category]int, len(lexicons))
	for cat, words := range lexicons {
		if n := countHits(haystack, words); n > 0 {
			scores[cat] = n
		}
	}
	return scores
}

func countHits(haystack string, words []string) int {
	n := 0
	for _, w := range words {
		n += strings.Count(haystack, w)
	}
	return n
}

// ClassifyPDF tags an attachment by its link text and path.
func ClassifyPDF(s string) PDFKind {
	s = strings.ToLower(s)
	for _, rule := range pdfRules {
		if rule.re.MatchString(s) {
			return rule.kind
		}
	}
	return PDFOther
}
