package llms

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/scopeworks/scout/pkg/config"
)

// GeminiProvider uses the official google.golang.org/genai SDK.
type GeminiProvider struct {
	name   string
	config *config.LLMProviderConfig
	client *genai.Client
}

func NewGeminiProvider(name string, cfg *config.LLMProviderConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{name: name, config: cfg, client: client}, nil
}

func (p *GeminiProvider) Name() string { return p.name }

func (p *GeminiProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = p.config.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.config.MaxTokens
	}
	temperature := req.Temperature
	if temperature == nil {
		temperature = p.config.Temperature
	}

	var contents []*genai.Content
	var system *genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = &genai.Content{Parts: []*genai.Part{{Text: m.Content}}}
		case "assistant":
			contents = append(contents, &genai.Content{
				Role:  "model",
				Parts: []*genai.Part{{Text: m.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: m.Content}},
			})
		}
	}

	genConfig := &genai.GenerateContentConfig{
		SystemInstruction: system,
		MaxOutputTokens:   int32(maxTokens),
	}
	if temperature != nil {
		genConfig.Temperature = genai.Ptr(float32(*temperature))
	}
	if req.JSONMode {
		genConfig.ResponseMIMEType = "application/json"
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, genConfig)
	if err != nil {
		return nil, fmt.Errorf("Gemini generation failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("Gemini returned no candidates")
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		text += part.Text
	}
	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	if tokens == 0 {
		tokens = EstimateTokens(model, text)
	}
	return &Response{Text: text, Tokens: tokens}, nil
}

func (p *GeminiProvider) Close() error { return nil }
