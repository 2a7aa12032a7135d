package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/scopeworks/scout/pkg/config"
	"github.com/scopeworks/scout/pkg/evidence"
	"github.com/scopeworks/scout/pkg/httpclient"
)

// maxDomainFilter is the provider's cap on domain filter entries.
const maxDomainFilter = 20

// SonarAdapter wraps the Perplexity-style web search API: a prompt goes
// in, a grounded answer with cited search results comes out.
type SonarAdapter struct {
	config     config.SonarConfig
	httpClient *httpclient.Client
}

type sonarRequest struct {
	Model               string         `json:"model"`
	Messages            []sonarMessage `json:"messages"`
	MaxTokens           int            `json:"max_tokens,omitempty"`
	Temperature         *float64       `json:"temperature,omitempty"`
	SearchDomainFilter  []string       `json:"search_domain_filter,omitempty"`
	SearchRecencyFilter string         `json:"search_recency_filter,omitempty"`
}

type sonarMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type sonarResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	SearchResults []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
		Date  string `json:"date"`
	} `json:"search_results"`
	Citations []string `json:"citations"`
}

func NewSonarAdapter(cfg config.SonarConfig) (*SonarAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("sonar API key is required")
	}
	return &SonarAdapter{
		config: cfg,
		httpClient: httpclient.New(
			httpclient.WithTimeout(time.Duration(cfg.Timeout)*time.Second),
			httpclient.WithMaxRetries(cfg.MaxRetries),
		),
	}, nil
}

func (a *SonarAdapter) Name() string { return "sonar" }

// Call accepts: prompt (or query), system_prompt, recency, domains,
// max_results, temperature, max_tokens. Unknown inputs are ignored.
func (a *SonarAdapter) Call(ctx context.Context, inputs map[string]any) ([]evidence.Evidence, error) {
	prompt := StringInput(inputs, "prompt", "query")
	if prompt == "" {
		return nil, NewPermanentError(a.Name(), "prompt input is required", nil)
	}

	messages := []sonarMessage{}
	if system := StringInput(inputs, "system_prompt", "system"); system != "" {
		messages = append(messages, sonarMessage{Role: "system", Content: system})
	}
	messages = append(messages, sonarMessage{Role: "user", Content: prompt})

	domains := StringListInput(inputs, "domains", "search_domain_filter")
	if len(domains) > maxDomainFilter {
		domains = domains[:maxDomainFilter]
	}

	body := sonarRequest{
		Model:               a.config.Model,
		Messages:            messages,
		MaxTokens:           IntInput(inputs, 0, "max_tokens"),
		Temperature:         FloatInput(inputs, "temperature"),
		SearchDomainFilter:  domains,
		SearchRecencyFilter: StringInput(inputs, "recency", "search_recency_filter"),
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sonar request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.config.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.config.APIKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read sonar response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, NewPermanentError(a.Name(), "authentication failed", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewPermanentError(a.Name(),
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, truncate(data)), nil)
	}

	var parsed sonarResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, NewPermanentError(a.Name(), "malformed response", err)
	}

	var snippet string
	if len(parsed.Choices) > 0 {
		snippet = excerpt(parsed.Choices[0].Message.Content, 400)
	}

	items := make([]evidence.Evidence, 0, len(parsed.SearchResults))
	for _, r := range parsed.SearchResults {
		items = append(items, evidence.Evidence{
			URL:       r.URL,
			Title:     r.Title,
			Publisher: evidence.Domain(r.URL),
			Date:      r.Date,
			Snippet:   snippet,
			Tool:      a.Name(),
		})
	}
	// Older responses carry bare citation URLs only.
	if len(items) == 0 {
		for _, url := range parsed.Citations {
			items = append(items, evidence.Evidence{
				URL:       url,
				Publisher: evidence.Domain(url),
				Snippet:   snippet,
				Tool:      a.Name(),
			})
		}
	}

	if max := IntInput(inputs, 0, "max_results"); max > 0 && len(items) > max {
		items = items[:max]
	}
	return items, nil
}

// excerpt truncates s to at most n bytes without splitting a rune.
func excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func truncate(data []byte) string {
	return excerpt(string(data), 256)
}
