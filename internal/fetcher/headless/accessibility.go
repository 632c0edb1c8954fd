package headless

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/accessibility"
)

const maxAXLines = 2000

// skippedRoles never carry useful names of their own.
var skippedRoles = map[string]struct{}{
	"none":          {},
	"generic":       {},
	"InlineTextBox": {},
	"LineBreak":     {},
	"RootWebArea":   {},
	"ignored":       {},
}

func fullAXTree(ctx context.Context) ([]string, error) {
	nodes, err := accessibility.GetFullAXTree().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("accessibility tree: %w", err)
	}
	return axLines(nodes), nil
}

// axLines flattens accessibility nodes into "role: name" lines in document
// order, dropping ignored and unnamed nodes and consecutive duplicates.
func axLines(nodes []*accessibility.Node) []string {
	var (
		out  []string
		last string
	)
	for _, n := range nodes {
		if n == nil || n.Ignored {
			continue
		}
		role := axValue(n.Role)
		if _, skip := skippedRoles[role]; skip || role == "" {
			continue
		}
		name := strings.Join(strings.Fields(axValue(n.Name)), " ")
		if name == "" {
			continue
		}
		if role == "StaticText" {
			role = "text"
		}
		line := role + ": " + name
		if line == last {
			continue
		}
		out = append(out, line)
		last = line
		if len(out) >= maxAXLines {
			break
		}
	}
	return out
}

func axValue(v *accessibility.Value) string {
	if v == nil || len(v.Value) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal([]byte(v.Value), &s); err != nil {
		return strings.Trim(string(v.Value), `"`)
	}
	return s
}

// normalizeText collapses whitespace on each line of innerText output and
// drops blank lines.
func normalizeText(raw string) string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
