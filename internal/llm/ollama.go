package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

const (
	OllamaBaseURL = "http://127.0.0.1:11434"
	OllamaModel   = "llama3.2:3b"
)

type Ollama struct {
	model  string
	client *api.Client
}

func NewOllama(baseURL, model string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = OllamaBaseURL
	}
	if model == "" {
		model = OllamaModel
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama url: %w", err)
	}
	return &Ollama{
		model:  model,
		client: api.NewClient(u, http.DefaultClient),
	}, nil
}

func (p *Ollama) Name() string { return "ollama" }

func (p *Ollama) Complete(ctx context.Context, req Request) (string, error) {
	var messages []api.Message
	if req.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, api.Message{Role: "user", Content: req.Prompt})

	stream := false
	options := map[string]any{}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	var content string
	err := p.client.Chat(ctx, &api.ChatRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}, func(resp api.ChatResponse) error {
		content += resp.Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return content, nil
}
