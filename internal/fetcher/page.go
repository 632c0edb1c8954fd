// Package fetcher holds the page model shared by the static and headless
// fetchers along with the goquery based HTML parsing both of them use.
package fetcher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/camp-harvester/internal/camp"
)

// Page is one fetched document.
type Page struct {
	URL        string
	StatusCode int
	Title      string
	HTML       string
	Text       string
	Anchors    []camp.Anchor
	Structured camp.Structured
}

const maxTableRows = 50

// ParseHTML fills a Page from raw HTML. Relative anchors are resolved
// against pageURL.
func ParseHTML(pageURL string, body []byte) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Page{}, fmt.Errorf("parse html: %w: %w", camp.ErrParse, err)
	}
	page := Page{
		URL:   pageURL,
		HTML:  string(body),
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}
	if page.Title == "" {
		page.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	page.Structured.JSONLD = jsonLD(doc)
	page.Structured.Tables = tables(doc)
	page.Anchors = anchors(doc, pageURL)
	page.Text = VisibleText(doc)
	return page, nil
}

// VisibleText returns the document text with scripts and styles removed,
// one block element per line.
func VisibleText(doc *goquery.Document) string {
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	body = body.Clone()
	body.Find("script, style, noscript, template, svg, iframe").Remove()
	body.Find("br").ReplaceWithHtml("\n")
	body.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6, section, article, header, footer, table, ul, ol").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	var lines []string
	for _, line := range strings.Split(body.Text(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func jsonLD(doc *goquery.Document) []map[string]any {
	var out []map[string]any
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var v any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &v); err != nil {
			return
		}
		switch t := v.(type) {
		case map[string]any:
			out = append(out, t)
		case []any:
			for _, item := range t {
				if m, ok := item.(map[string]any); ok {
					out = append(out, m)
				}
			}
		}
	})
	return out
}

func tables(doc *goquery.Document) [][][]string {
	var out [][][]string
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		var rows [][]string
		table.Find("tr").EachWithBreak(func(i int, tr *goquery.Selection) bool {
			var cells []string
			tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, strings.Join(strings.Fields(cell.Text()), " "))
			})
			if len(cells) > 0 {
				rows = append(rows, cells)
			}
			return i < maxTableRows
		})
		if len(rows) > 0 {
			out = append(out, rows)
		}
	})
	return out
}

func anchors(doc *goquery.Document, pageURL string) []camp.Anchor {
	base, _ := url.Parse(pageURL)
	var out []camp.Anchor
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") {
			return
		}
		if base != nil {
			ref, err := url.Parse(href)
			if err != nil {
				return
			}
			href = base.ResolveReference(ref).String()
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}
		label, _ := a.Attr("aria-label")
		out = append(out, camp.Anchor{
			Href:  href,
			Text:  strings.Join(strings.Fields(a.Text()), " "),
			Label: strings.TrimSpace(label),
		})
	})
	return out
}
