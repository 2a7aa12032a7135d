package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scopeworks/scout/pkg/evidence"
)

func TestCollectorPhases(t *testing.T) {
	c := NewCollector()
	clock := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	c.StartPhase("research")
	clock = clock.Add(3 * time.Second)
	c.EndPhase("research", 120)

	c.SetStrategySlug("daily_news_briefing")
	c.RecordAPICall("sonar")
	c.RecordAPICall("sonar")
	c.RecordAPICall("exa")

	m := c.Build(nil)
	assert.Equal(t, "daily_news_briefing", m.StrategySlug)
	assert.Equal(t, 3*time.Second, m.Phases["research"].Duration)
	assert.Equal(t, 120, m.Phases["research"].Tokens)
	assert.Equal(t, 120, m.TotalTokens)
	assert.Equal(t, 2, m.APICalls["sonar"])
	assert.Equal(t, 1, m.APICalls["exa"])
}

func TestEndPhaseWithoutStart(t *testing.T) {
	c := NewCollector()
	c.EndPhase("finalize", 50)

	m := c.Build(nil)
	assert.Equal(t, time.Duration(0), m.Phases["finalize"].Duration)
	assert.Equal(t, 50, m.Phases["finalize"].Tokens)
}

func TestBuildDiversity(t *testing.T) {
	items := []evidence.Evidence{
		{URL: "https://a.com/1", Publisher: "a.com", Tool: "sonar"},
		{URL: "https://a.com/2", Publisher: "a.com", Tool: "sonar"},
		{URL: "https://b.org/1", Publisher: "b.org", Tool: "exa"},
		{URL: "https://c.net/1", Publisher: "c.net", Tool: "exa"},
		{URL: evidence.SentinelAnalysis, Tool: "llm_analyzer"},
	}

	m := NewCollector().Build(items)
	require.Equal(t, 4, m.ValidSources, "sentinel excluded")
	assert.Equal(t, 3, m.UniqueDomains)
	assert.Equal(t, 3, m.UniquePublishers)
	assert.Equal(t, []string{"exa", "sonar"}, m.ToolsUsed)

	// 0.5*(3/4) + 0.5*min(3/10, 1)
	assert.InDelta(t, 0.525, m.SourceDiversityScore, 1e-9)
}

func TestBuildEmptyEvidence(t *testing.T) {
	m := NewCollector().Build(nil)
	assert.Zero(t, m.SourceDiversityScore)
	assert.Empty(t, m.ToolsUsed)
}
