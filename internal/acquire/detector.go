package acquire

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/camp-harvester/internal/fetcher"
)

const minStaticTextChars = 200

var (
	shellKeywords = []string{
		"enable javascript",
		"requires javascript",
		"javascript is disabled",
		"data-reactroot",
		"ng-version",
		"__next_data__",
		"window.__nuxt__",
	}
	mountSelectors = []string{"#root", "#app", "#__next", "#__nuxt"}
)

// renderDetector flags static pages whose content is built by scripts.
type renderDetector struct {
	minTextChars int
	keywords     [][]byte
	mounts       []string
}

func newRenderDetector() *renderDetector {
	kws := make([][]byte, 0, len(shellKeywords))
	for _, kw := range shellKeywords {
		kws = append(kws, []byte(kw))
	}
	return &renderDetector{
		minTextChars: minStaticTextChars,
		keywords:     kws,
		mounts:       mountSelectors,
	}
}

// NeedsRender inspects a static page for signs that a headless render would
// see more.
func (d *renderDetector) NeedsRender(page fetcher.Page) bool {
	if d == nil {
		return false
	}
	switch {
	case d.textBelowThreshold(page.Text):
		return true
	case d.containsKeywords([]byte(page.HTML)):
		return true
	default:
		return d.emptyMountPoint(page.HTML)
	}
}

func (d *renderDetector) textBelowThreshold(text string) bool {
	return d.minTextChars > 0 && len(strings.TrimSpace(text)) < d.minTextChars
}

func (d *renderDetector) containsKeywords(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	lower := bytes.ToLower(body)
	for _, kw := range d.keywords {
		if bytes.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (d *renderDetector) emptyMountPoint(html string) bool {
	if html == "" {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	for _, sel := range d.mounts {
		node := doc.Find(sel).First()
		if node.Length() > 0 && strings.TrimSpace(node.Text()) == "" {
			return true
		}
	}
	return false
}
