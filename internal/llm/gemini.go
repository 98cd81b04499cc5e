package llm

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

const GeminiModel = "gemini-2.0-flash"

// Gemini creates its client lazily on first use because the SDK constructor
// needs a context.
type Gemini struct {
	apiKey string
	model  string

	mu     sync.Mutex
	client *genai.Client
}

func NewGemini(apiKey, model string) *Gemini {
	if model == "" {
		model = GeminiModel
	}
	return &Gemini{apiKey: apiKey, model: model}
}

func (p *Gemini) Name() string { return "gemini" }

func (p *Gemini) getClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	p.client = client
	return client, nil
}

func (p *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return "", err
	}

	cfg := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		cfg.Temperature = &t
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}

	result, err := client.Models.GenerateContent(ctx, p.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if result == nil {
		return "", fmt.Errorf("gemini generate: empty response")
	}
	return result.Text(), nil
}
