package briefing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/scopeworks/scout/pkg/executor"
)

var renderDate = time.Date(2026, 8, 24, 8, 0, 0, 0, time.UTC)

func TestRender(t *testing.T) {
	result := &executor.Result{
		Sections:    []string{"Lab A shipped<sup>[1]</sup>."},
		Citations:   []string{"a (2026-08-23) http://a/x"},
		Limitations: []string{"only 1 distinct source(s) cited; strategy requires at least 3"},
		Variables:   map[string]any{"topic": "AI lab news"},
	}

	b := Render(result, "", renderDate)

	assert.Equal(t, "AI lab news: Aug 24, 2026", b.Subject)
	assert.Contains(t, b.Markdown, "# AI lab news: Aug 24, 2026")
	assert.Contains(t, b.Markdown, "Lab A shipped<sup>[1]</sup>.")
	assert.Contains(t, b.Markdown, "## Sources\n\n1. a (2026-08-23) http://a/x")
	assert.Contains(t, b.Markdown, "## Limitations")
}

func TestRenderEmptyRun(t *testing.T) {
	b := Render(&executor.Result{}, "Quiet topic", renderDate)

	assert.Contains(t, b.Markdown, "No briefing content was produced")
	assert.NotContains(t, b.Markdown, "## Sources")
}
