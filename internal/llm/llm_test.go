package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mtzanidakis/swarmchat/internal/config"
	"github.com/openai/openai-go/option"
)

type fakeProvider struct {
	name  string
	text  string
	err   error
	calls int
	last  Request
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(_ context.Context, req Request) (string, error) {
	f.calls++
	f.last = req
	return f.text, f.err
}

type panicProvider struct{}

func (panicProvider) Name() string { return "panicky" }
func (panicProvider) Complete(context.Context, Request) (string, error) {
	panic("boom")
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveCompletion(provider string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	status := "ok"
	if err != nil {
		status = "error"
	}
	o.calls = append(o.calls, provider+":"+status)
}

func TestChainPrimarySucceeds(t *testing.T) {
	primary := &fakeProvider{name: "deepseek", text: "hello"}
	fallback := &fakeProvider{name: "openai", text: "unused"}

	res, err := NewChain(primary, fallback).Complete(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "hello" || res.Provider != "deepseek" {
		t.Errorf("unexpected result: %+v", res)
	}
	if fallback.calls != 0 {
		t.Errorf("expected fallback untouched, got %d calls", fallback.calls)
	}
}

func TestChainFallsBack(t *testing.T) {
	primary := &fakeProvider{name: "deepseek", err: errors.New("503")}
	fallback := &fakeProvider{name: "openai", text: "  from fallback \n"}

	res, err := NewChain(primary, fallback).Complete(context.Background(), Request{Prompt: "hi", Temperature: 0.7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Provider != "openai" {
		t.Errorf("expected openai, got %s", res.Provider)
	}
	if res.Text != "from fallback" {
		t.Errorf("expected trimmed text, got %q", res.Text)
	}
	if fallback.last.Temperature != 0.7 {
		t.Errorf("expected request passed through, got %+v", fallback.last)
	}
}

func TestChainEmptyTextFallsBack(t *testing.T) {
	primary := &fakeProvider{name: "deepseek", text: "   "}
	fallback := &fakeProvider{name: "openai", text: "ok"}

	res, err := NewChain(primary, fallback).Complete(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Provider != "openai" {
		t.Errorf("expected empty primary to fall back, got %s", res.Provider)
	}
}

func TestChainAllFail(t *testing.T) {
	primary := &fakeProvider{name: "deepseek", err: errors.New("timeout")}
	fallback := &fakeProvider{name: "openai", text: ""}

	res, err := NewChain(primary, fallback).Complete(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Provider != "openai" {
		t.Errorf("expected last attempted provider openai, got %s", res.Provider)
	}
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("expected joined error to wrap ErrEmptyCompletion, got %v", err)
	}
	if !strings.Contains(err.Error(), "deepseek: timeout") {
		t.Errorf("expected primary failure in error, got %v", err)
	}
}

func TestChainNoProviders(t *testing.T) {
	_, err := NewChain().Complete(context.Background(), Request{})
	if !errors.Is(err, ErrNoProviders) {
		t.Errorf("expected ErrNoProviders, got %v", err)
	}
}

func TestChainRecoversPanic(t *testing.T) {
	fallback := &fakeProvider{name: "openai", text: "fine"}
	obs := &recordingObserver{}

	res, err := NewChain(panicProvider{}, fallback).WithObserver(obs).Complete(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "fine" {
		t.Errorf("expected fallback text, got %q", res.Text)
	}
	want := []string{"panicky:error", "openai:ok"}
	if len(obs.calls) != 2 || obs.calls[0] != want[0] || obs.calls[1] != want[1] {
		t.Errorf("expected observer calls %v, got %v", want, obs.calls)
	}
}

func TestChainStopsOnCanceledContext(t *testing.T) {
	primary := &fakeProvider{name: "deepseek", text: "x"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewChain(primary).Complete(ctx, Request{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if primary.calls != 0 {
		t.Errorf("expected no calls, got %d", primary.calls)
	}
}

func TestOpenAIProvider(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		Temperature float64 `json:"temperature"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("expected bearer test-key, got %q", auth)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"deepseek-chat",` +
			`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Greetings."}}]}`))
	}))
	defer srv.Close()

	p := NewDeepSeek("test-key", srv.URL, "", option.WithMaxRetries(0))
	text, err := p.Complete(context.Background(), Request{System: "sys", Prompt: "hello", Temperature: 0.7, MaxTokens: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Greetings." {
		t.Errorf("expected Greetings., got %q", text)
	}
	if p.Name() != "deepseek" {
		t.Errorf("expected name deepseek, got %s", p.Name())
	}
	if got.Model != DeepSeekModel {
		t.Errorf("expected model %s, got %s", DeepSeekModel, got.Model)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hello" {
		t.Errorf("unexpected messages: %+v", got.Messages)
	}
	if got.Temperature != 0.7 {
		t.Errorf("expected temperature 0.7, got %v", got.Temperature)
	}
}

func TestOpenAIProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewOpenAI("openai", "k", srv.URL, "", option.WithMaxRetries(0))
	if _, err := p.Complete(context.Background(), Request{Prompt: "x"}); err == nil {
		t.Fatal("expected error for 401 response")
	}
}

func TestOllamaProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != OllamaModel {
			t.Errorf("expected model %s, got %v", OllamaModel, req["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llama3.2:3b","message":{"role":"assistant","content":"local reply"},"done":true}`))
	}))
	defer srv.Close()

	p, err := NewOllama(srv.URL, "")
	if err != nil {
		t.Fatalf("new ollama: %v", err)
	}
	text, err := p.Complete(context.Background(), Request{Prompt: "hi", Temperature: 0.7, MaxTokens: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "local reply" {
		t.Errorf("expected local reply, got %q", text)
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		cfg     config.ProviderConfig
		name    string
		wantErr bool
	}{
		{config.ProviderConfig{Kind: "deepseek", APIKey: "k"}, "deepseek", false},
		{config.ProviderConfig{Kind: "openai", APIKey: "k"}, "openai", false},
		{config.ProviderConfig{Kind: "anthropic", APIKey: "k"}, "anthropic", false},
		{config.ProviderConfig{Kind: "gemini", APIKey: "k"}, "gemini", false},
		{config.ProviderConfig{Kind: "ollama"}, "ollama", false},
		{config.ProviderConfig{Kind: "openai"}, "", true},
		{config.ProviderConfig{Kind: "mystery", APIKey: "k"}, "", true},
		{config.ProviderConfig{}, "", true},
	}
	for _, tt := range tests {
		p, err := NewProvider(tt.cfg)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%+v: expected error", tt.cfg)
			}
			continue
		}
		if err != nil {
			t.Errorf("%+v: unexpected error: %v", tt.cfg, err)
			continue
		}
		if p.Name() != tt.name {
			t.Errorf("expected name %s, got %s", tt.name, p.Name())
		}
	}
}

func TestBuildChainSkipsUnusable(t *testing.T) {
	chain, errs := BuildChain(config.LLMConfig{
		Primary:   config.ProviderConfig{Kind: "deepseek"},
		Fallbacks: []config.ProviderConfig{{Kind: "openai", APIKey: "k"}, {Kind: "ollama"}},
	})
	if len(errs) != 1 {
		t.Errorf("expected 1 build error, got %v", errs)
	}
	names := chain.Names()
	if len(names) != 2 || names[0] != "openai" || names[1] != "ollama" {
		t.Errorf("expected [openai ollama], got %v", names)
	}
}

func TestTokenCounter(t *testing.T) {
	var nilCounter *TokenCounter
	if n := nilCounter.Count("abcdefgh"); n != 2 {
		t.Errorf("expected fallback estimate 2, got %d", n)
	}

	tc := NewTokenCounter()
	if n := tc.Count("hello world"); n <= 0 {
		t.Errorf("expected positive token count, got %d", n)
	}
	if n := tc.Count(""); n != 0 {
		t.Errorf("expected 0 tokens for empty text, got %d", n)
	}
}
