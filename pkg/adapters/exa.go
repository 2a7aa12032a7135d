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

package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/scopeworks/scout/pkg/config"
	"github.com/scopeworks/scout/pkg/evidence"
	"github.com/scopeworks/scout/pkg/httpclient"
)

// ExaAdapter wraps the Exa neural search API. It exposes four
// capabilities: search, contents, find_similar and answer.
type ExaAdapter struct {
	config     config.ExaConfig
	httpClient *httpclient.Client
}

type exaResult struct {
	URL           string  `json:"url"`
	Title         string  `json:"title"`
	PublishedDate string  `json:"publishedDate"`
	Author        string  `json:"author"`
	Score         float64 `json:"score"`
	Text          string  `json:"text"`
}

type exaSearchResponse struct {
	Results []exaResult `json:"results"`
}

type exaAnswerResponse struct {
	Answer    string      `json:"answer"`
	Citations []exaResult `json:"citations"`
}

func NewExaAdapter(cfg config.ExaConfig) (*ExaAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("exa API key is required")
	}
	return &ExaAdapter{
		config: cfg,
		httpClient: httpclient.New(
			httpclient.WithTimeout(time.Duration(cfg.Timeout)*time.Second),
			httpclient.WithMaxRetries(cfg.MaxRetries),
		),
	}, nil
}

func (a *ExaAdapter) Name() string { return "exa" }

// Call is the bare-name form; it behaves as search.
func (a *ExaAdapter) Call(ctx context.Context, inputs map[string]any) ([]evidence.Evidence, error) {
	return a.Search(ctx, StringInput(inputs, "query", "prompt", "q"), inputs)
}

func (a *ExaAdapter) Search(ctx context.Context, query string, inputs map[string]any) ([]evidence.Evidence, error) {
	if query == "" {
		return nil, NewPermanentError(a.Name(), "query input is required", nil)
	}
	body := map[string]any{
		"query":    query,
		"type":     "auto",
		"contents": map[string]any{"text": true},
	}
	if n := IntInput(inputs, 0, "max_results", "num_results"); n > 0 {
		body["numResults"] = n
	}
	if domains := StringListInput(inputs, "domains", "include_domains"); len(domains) > 0 {
		body["includeDomains"] = domains
	}
	if excluded := StringListInput(inputs, "exclude_domains"); len(excluded) > 0 {
		body["excludeDomains"] = excluded
	}
	if start := StringInput(inputs, "start_published_date"); start != "" {
		body["startPublishedDate"] = start
	}
	if end := StringInput(inputs, "end_published_date"); end != "" {
		body["endPublishedDate"] = end
	}
	if category := StringInput(inputs, "category"); category != "" {
		body["category"] = category
	}
	if searchType := StringInput(inputs, "type", "search_type"); searchType != "" {
		body["type"] = searchType
	}
	if auto := BoolInput(inputs, "autoprompt", "use_autoprompt"); auto != nil {
		body["useAutoprompt"] = *auto
	}

	var parsed exaSearchResponse
	if err := a.post(ctx, "/search", body, &parsed); err != nil {
		return nil, err
	}
	return a.toEvidence(parsed.Results, inputs), nil
}

func (a *ExaAdapter) Contents(ctx context.Context, urls []string, inputs map[string]any) ([]evidence.Evidence, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	body := map[string]any{
		"urls": urls,
		"text": true,
	}

	var parsed exaSearchResponse
	if err := a.post(ctx, "/contents", body, &parsed); err != nil {
		return nil, err
	}
	return a.toEvidence(parsed.Results, inputs), nil
}

func (a *ExaAdapter) FindSimilar(ctx context.Context, url string, inputs map[string]any) ([]evidence.Evidence, error) {
	if url == "" {
		return nil, NewPermanentError(a.Name(), "url input is required", nil)
	}
	body := map[string]any{
		"url":      url,
		"contents": map[string]any{"text": true},
	}
	if n := IntInput(inputs, 0, "max_results", "num_results"); n > 0 {
		body["numResults"] = n
	}

	var parsed exaSearchResponse
	if err := a.post(ctx, "/findSimilar", body, &parsed); err != nil {
		return nil, err
	}
	return a.toEvidence(parsed.Results, inputs), nil
}

func (a *ExaAdapter) Answer(ctx context.Context, query string, inputs map[string]any) (string, []evidence.Evidence, error) {
	if query == "" {
		return "", nil, NewPermanentError(a.Name(), "query input is required", nil)
	}
	body := map[string]any{
		"query": query,
		"text":  true,
	}

	var parsed exaAnswerResponse
	if err := a.post(ctx, "/answer", body, &parsed); err != nil {
		return "", nil, err
	}
	return parsed.Answer, a.toEvidence(parsed.Citations, inputs), nil
}

func (a *ExaAdapter) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal exa request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.config.APIKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read exa response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return NewPermanentError(a.Name(), "authentication failed", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return NewPermanentError(a.Name(),
			fmt.Sprintf("unexpected status %d on %s: %s", resp.StatusCode, path, truncate(data)), nil)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return NewPermanentError(a.Name(), "malformed response", err)
	}
	return nil
}

func (a *ExaAdapter) toEvidence(results []exaResult, inputs map[string]any) []evidence.Evidence {
	items := make([]evidence.Evidence, 0, len(results))
	for _, r := range results {
		items = append(items, evidence.Evidence{
			URL:       r.URL,
			Title:     r.Title,
			Publisher: evidence.Domain(r.URL),
			Date:      r.PublishedDate,
			Snippet:   excerpt(r.Text, 400),
			Tool:      a.Name(),
			Score:     r.Score,
		})
	}
	if max := IntInput(inputs, 0, "max_results"); max > 0 && len(items) > max {
		items = items[:max]
	}
	return items
}
