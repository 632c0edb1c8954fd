package camp

import (
	"context"
	"time"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Hasher produces content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Anchor is a link discovered on a rendered page.
type Anchor struct {
	Href  string `json:"href"`
	Text  string `json:"text"`
	Label string `json:"label,omitempty"`
}

// Structured carries machine-readable page data found alongside the text.
type Structured struct {
	JSONLD        []map[string]any `json:"jsonLd,omitempty"`
	Tables        [][][]string     `json:"tables,omitempty"`
	Accessibility []string         `json:"accessibility,omitempty"`
}

// PageCapture describes one page visited while building a bundle.
type PageCapture struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Category string `json:"category,omitempty"`
	Text     string `json:"-"`
	HTML     string `json:"-"`
}

// Attachment is a linked document such as a PDF handbook.
type Attachment struct {
	URL  string `json:"url"`
	Text string `json:"text,omitempty"`
	Kind string `json:"kind"`
}

// PageBundle is the normalized output of a page acquisition.
type PageBundle struct {
	URL         string
	Title       string
	Text        string
	HTML        string
	Structured  Structured
	Pages       []PageCapture
	Attachments []Attachment
	Artifacts   []string
	// NeedsRender marks static pages that look like script-built shells.
	NeedsRender bool
	// Facts is set by modes that extract on their own (llm).
	Facts *CanonicalFacts
}

// URLs lists the pages that contributed to the bundle.
func (b PageBundle) URLs() []string {
	if len(b.Pages) == 0 {
		if b.URL == "" {
			return nil
		}
		return []string{b.URL}
	}
	out := make([]string, 0, len(b.Pages))
	for _, p := range b.Pages {
		out = append(out, p.URL)
	}
	return out
}

// AcquireRequest asks an Acquirer for one page bundle.
type AcquireRequest struct {
	Record Record
	Mode   Strategy
	// Prior is the best bundle already acquired for this entity, if any.
	Prior *PageBundle
}

// Acquirer turns an entity URL into a PageBundle using one mode.
type Acquirer interface {
	Acquire(ctx context.Context, req AcquireRequest) (PageBundle, error)
}

// HostFeedback is implemented by the rate limiter.
type HostFeedback interface {
	RecordSuccess(rawURL string)
	RecordFailure(rawURL string)
}

// Publisher fans out change sets to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
