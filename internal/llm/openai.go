package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DeepSeekBaseURL = "https://api.deepseek.com/v1"
	DeepSeekModel   = "deepseek-chat"
	OpenAIModel     = "gpt-3.5-turbo"
)

// OpenAI speaks the Chat Completions API. DeepSeek exposes the same API, so
// it is served by this provider with a different base URL.
type OpenAI struct {
	name   string
	model  string
	client openai.Client
}

func NewOpenAI(name, apiKey, baseURL, model string, opts ...option.RequestOption) *OpenAI {
	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(baseURL))
	}
	clientOpts = append(clientOpts, opts...)
	if model == "" {
		model = OpenAIModel
	}
	return &OpenAI{
		name:   name,
		model:  model,
		client: openai.NewClient(clientOpts...),
	}
}

func NewDeepSeek(apiKey, baseURL, model string, opts ...option.RequestOption) *OpenAI {
	if baseURL == "" {
		baseURL = DeepSeekBaseURL
	}
	if model == "" {
		model = DeepSeekModel
	}
	return NewOpenAI("deepseek", apiKey, baseURL, model, opts...)
}

func (p *OpenAI) Name() string { return p.name }

func (p *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
