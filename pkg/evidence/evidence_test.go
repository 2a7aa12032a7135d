package evidence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "lowercases scheme and host",
			in:   "HTTPS://Example.COM/Path",
			want: "https://example.com/Path",
		},
		{
			name: "strips trailing slash",
			in:   "http://a/x/",
			want: "http://a/x",
		},
		{
			name: "drops query and fragment",
			in:   "http://a/x?utm_source=feed#section",
			want: "http://a/x",
		},
		{
			name: "sentinel passes through",
			in:   SentinelAnalysis,
			want: SentinelAnalysis,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalURL(tt.in))
		})
	}
}

func TestCanonicalURLIdempotent(t *testing.T) {
	urls := []string{
		"http://A/x/",
		"https://news.example.com/a/b/?q=1",
		"http://a/x",
	}
	for _, u := range urls {
		once := CanonicalURL(u)
		assert.Equal(t, once, CanonicalURL(once), "canonical must be idempotent for %q", u)
	}
}

func TestRescore(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	items := []Evidence{
		{URL: "http://a/x", Score: 0.8, Date: "2025-06-14"}, // 1 day old
		{URL: "http://b/y", Score: 0.8},                     // no date, neutral recency
	}
	Rescore(items, now)

	assert.InDelta(t, 0.8*0.5, items[0].Score, 1e-9)
	assert.InDelta(t, 0.8, items[1].Score, 1e-9)
}

func TestDedupKeepsHighestScore(t *testing.T) {
	items := []Evidence{
		{URL: "http://a/x/", Score: 0.3, Tool: "sonar"},
		{URL: "http://b/y", Score: 0.9, Tool: "sonar"},
		{URL: "http://a/x", Score: 0.7, Tool: "exa"},
	}

	out := Dedup(items)
	require.Len(t, out, 2)
	// First-appearance order preserved.
	assert.Equal(t, "http://a/x", out[0].URL)
	assert.Equal(t, "exa", out[0].Tool)
	assert.Equal(t, "http://b/y", out[1].URL)
}

func TestDedupTieGoesToLaterInsertion(t *testing.T) {
	items := []Evidence{
		{URL: "http://a/x", Score: 0.5, Tool: "first"},
		{URL: "http://a/x/", Score: 0.5, Tool: "second"},
	}
	out := Dedup(items)
	require.Len(t, out, 1)
	assert.Equal(t, "second", out[0].Tool)
}

func TestDedupIdempotent(t *testing.T) {
	items := []Evidence{
		{URL: "http://a/x/", Score: 0.3},
		{URL: "http://a/x", Score: 0.7},
		{URL: "http://b/y", Score: 0.5},
	}
	once := Dedup(items)
	twice := Dedup(once)
	assert.Equal(t, once, twice)
}

func TestTruncate(t *testing.T) {
	items := []Evidence{
		{URL: "http://a/1", Score: 0.2},
		{URL: "http://a/2", Score: 0.9},
		{URL: "http://a/3", Score: 0.5},
	}

	out := Truncate(items, 1)
	require.Len(t, out, 1)
	assert.Equal(t, "http://a/2", out[0].URL)

	assert.Len(t, Truncate(items, 0), 3, "zero limit means unlimited")
	assert.Len(t, Truncate(items, 10), 3)
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"2025-06-14", "2025-06-14T10:00:00Z", "Jan 2, 2025"} {
		_, ok := ParseDate(s)
		assert.True(t, ok, "expected %q to parse", s)
	}
	_, ok := ParseDate("yesterday-ish")
	assert.False(t, ok)
}

func TestDomain(t *testing.T) {
	assert.Equal(t, "example.com", Domain("https://Example.com/a"))
	assert.Equal(t, "", Domain(SentinelAnalysis))
}
