package adapters

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/scopeworks/scout/pkg/config"
	"github.com/scopeworks/scout/pkg/evidence"
	"github.com/scopeworks/scout/pkg/httpclient"
)

// FetchAdapter retrieves page content directly, without a search
// provider in the middle. HTML pages yield title plus extracted text;
// PDF responses yield extracted text. Bodies are capped at MaxBytes.
type FetchAdapter struct {
	config     config.FetchConfig
	httpClient *httpclient.Client
}

func NewFetchAdapter(cfg config.FetchConfig) *FetchAdapter {
	return &FetchAdapter{
		config: cfg,
		httpClient: httpclient.New(
			httpclient.WithTimeout(time.Duration(cfg.Timeout) * time.Second),
		),
	}
}

func (a *FetchAdapter) Name() string { return "fetch" }

// Call accepts url or urls; each URL yields one evidence record. A URL
// that fails is skipped rather than failing the step, unless every URL
// fails.
func (a *FetchAdapter) Call(ctx context.Context, inputs map[string]any) ([]evidence.Evidence, error) {
	urls := StringListInput(inputs, "urls", "url")
	if len(urls) == 0 {
		return nil, NewPermanentError(a.Name(), "url input is required", nil)
	}

	var items []evidence.Evidence
	var lastErr error
	for _, url := range urls {
		ev, err := a.fetchOne(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return items, ctx.Err()
			}
			lastErr = err
			continue
		}
		items = append(items, ev)
	}
	if len(items) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return items, nil
}

func (a *FetchAdapter) fetchOne(ctx context.Context, url string) (evidence.Evidence, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return evidence.Evidence{}, NewPermanentError(a.Name(), fmt.Sprintf("invalid url %q", url), err)
	}
	req.Header.Set("User-Agent", "scout/1.0")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return evidence.Evidence{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return evidence.Evidence{}, fmt.Errorf("[%s] %s returned status %d", a.Name(), url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, a.config.MaxBytes))
	if err != nil {
		return evidence.Evidence{}, fmt.Errorf("failed to read %s: %w", url, err)
	}

	contentType := resp.Header.Get("Content-Type")
	var title, text string
	if strings.Contains(contentType, "application/pdf") || bytes.HasPrefix(body, []byte("%PDF-")) {
		text, err = extractPDFText(body)
		if err != nil {
			return evidence.Evidence{}, fmt.Errorf("failed to extract pdf text from %s: %w", url, err)
		}
	} else {
		title, text = extractHTML(body)
	}

	return evidence.Evidence{
		URL:       url,
		Title:     title,
		Publisher: evidence.Domain(url),
		Snippet:   excerpt(text, 2000),
		Tool:      a.Name(),
	}, nil
}

func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String()), nil
}

var (
	titleRe  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	scriptRe = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]+>`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// extractHTML pulls the document title and a whitespace-normalized text
// rendering of the body. Good enough for evidence snippets; not a
// general HTML parser.
func extractHTML(body []byte) (title, text string) {
	if m := titleRe.FindSubmatch(body); m != nil {
		title = strings.TrimSpace(spaceRe.ReplaceAllString(string(m[1]), " "))
	}
	stripped := scriptRe.ReplaceAll(body, nil)
	stripped = tagRe.ReplaceAll(stripped, []byte(" "))
	text = strings.TrimSpace(spaceRe.ReplaceAllString(string(stripped), " "))
	text = unescapeEntities(text)
	return title, text
}

var entities = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&nbsp;", " ",
)

func unescapeEntities(s string) string {
	return entities.Replace(s)
}
