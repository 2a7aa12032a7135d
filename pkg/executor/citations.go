package executor

import (
	"fmt"
	"regexp"

	"github.com/scopeworks/scout/pkg/evidence"
)

var inlineLinkRe = regexp.MustCompile(`\[([^\]\[]+)\]\((https?://[^)\s]+)\)`)

// Citation is one entry in the numbered citation registry.
type Citation struct {
	Number    int    `json:"number"`
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
	Publisher string `json:"publisher,omitempty"`
	Date      string `json:"date,omitempty"`
	Snippet   string `json:"snippet,omitempty"`
}

// AssembleCitations numbers sources and rewrites inline markdown links
// as text<sup>[N]</sup> tokens. Numbers are assigned in first-appearance
// order: links across sections first, then remaining evidence URLs in
// evidence order. Duplicate URLs share a number; sentinels are excluded.
// Returns the rewritten sections, the registry, and display strings
// shaped "{publisher} ({date}) {url}".
func AssembleCitations(sections []string, items []evidence.Evidence) ([]string, []Citation, []string) {
	byCanonical := make(map[string]*Citation)
	var ordered []*Citation

	assign := func(rawURL string) *Citation {
		key := evidence.CanonicalURL(rawURL)
		if c, ok := byCanonical[key]; ok {
			return c
		}
		c := &Citation{Number: len(ordered) + 1, URL: rawURL}
		byCanonical[key] = c
		ordered = append(ordered, c)
		return c
	}

	for _, section := range sections {
		for _, m := range inlineLinkRe.FindAllStringSubmatch(section, -1) {
			assign(m[2])
		}
	}
	for _, ev := range items {
		if ev.IsSentinel() {
			continue
		}
		c := assign(ev.URL)
		if c.Title == "" {
			c.Title = ev.Title
		}
		if c.Publisher == "" {
			c.Publisher = ev.Publisher
		}
		if c.Date == "" {
			c.Date = ev.Date
		}
		if c.Snippet == "" {
			c.Snippet = ev.Snippet
		}
	}

	rewritten := make([]string, len(sections))
	for i, section := range sections {
		rewritten[i] = inlineLinkRe.ReplaceAllStringFunc(section, func(link string) string {
			m := inlineLinkRe.FindStringSubmatch(link)
			c := byCanonical[evidence.CanonicalURL(m[2])]
			return fmt.Sprintf("%s<sup>[%d]</sup>", m[1], c.Number)
		})
	}

	registry := make([]Citation, len(ordered))
	display := make([]string, len(ordered))
	for i, c := range ordered {
		registry[i] = *c
		display[i] = displayString(c)
	}
	return rewritten, registry, display
}

func displayString(c *Citation) string {
	publisher := c.Publisher
	if publisher == "" {
		publisher = evidence.Domain(c.URL)
	}
	switch {
	case publisher != "" && c.Date != "":
		return fmt.Sprintf("%s (%s) %s", publisher, c.Date, c.URL)
	case publisher != "":
		return fmt.Sprintf("%s %s", publisher, c.URL)
	default:
		return c.URL
	}
}
