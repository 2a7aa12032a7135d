// Copyright 2025 The Scout Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package evidence defines the normalized source record produced by tool
// adapters and consumed by the executor, plus URL canonicalization, scoring
// and deduplication.
package evidence

import (
	"net/url"
	"strings"
	"time"
)

// SentinelAnalysis is the synthetic URL carried by LLM-synthesized evidence.
// Sentinel URLs are excluded from citation numbering and diversity scoring.
const SentinelAnalysis = "llm_analysis_result"

// Evidence is a normalized citation-bearing record. URL is never mutated
// once the record is part of an execution's evidence set; Score may be
// rewritten during dedup and ranking.
type Evidence struct {
	URL       string  `json:"url"`
	Title     string  `json:"title,omitempty"`
	Publisher string  `json:"publisher,omitempty"`
	Date      string  `json:"date,omitempty"`
	Snippet   string  `json:"snippet,omitempty"`
	Tool      string  `json:"tool"`
	Score     float64 `json:"score,omitempty"`
}

// IsSentinel reports whether the URL is a synthetic placeholder rather than
// a fetchable source.
func (e Evidence) IsSentinel() bool {
	return e.URL == SentinelAnalysis || !strings.Contains(e.URL, "://")
}

// CanonicalURL normalizes a URL for dedup: lowercase scheme and host,
// trailing slashes trimmed from the path, query and fragment dropped.
// Canonicalization is idempotent. Unparseable input is returned unchanged.
func CanonicalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	path := strings.TrimRight(u.Path, "/")
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + path
}

// Domain extracts the canonical host of the URL, or "" for sentinels and
// unparseable URLs.
func Domain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Host)
}

// Date layouts adapters are known to emit, most specific first.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

// ParseDate parses an ISO-ish date string. Returns the zero time and false
// when the string is empty or unrecognized.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
