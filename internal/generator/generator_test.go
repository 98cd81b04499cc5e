package generator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mtzanidakis/swarmchat/internal/llm"
	"github.com/mtzanidakis/swarmchat/internal/registry"
)

type stubProvider struct {
	name string
	text string
	err  error
	reqs []llm.Request
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Complete(_ context.Context, req llm.Request) (string, error) {
	s.reqs = append(s.reqs, req)
	return s.text, s.err
}

var (
	keat = registry.Agent{
		ID:             "agent-keat",
		Name:           "Keat",
		Role:           "philosopher",
		Specialization: "ethics",
		Personality:    "dry wit",
	}
	fixedNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
)

func newTestGenerator(t *testing.T, coordinator llm.Provider, providers ...llm.Provider) *Generator {
	t.Helper()
	return New(llm.NewChain(providers...), coordinator, WithClock(func() time.Time { return fixedNow }))
}

func TestGeneratePrimary(t *testing.T) {
	primary := &stubProvider{name: "deepseek", text: "Life is a river."}
	fallback := &stubProvider{name: "openai", text: "unused"}
	g := newTestGenerator(t, nil, primary, fallback)

	resp, err := g.Generate(context.Background(), keat, "What is life?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Message != "Life is a river." {
		t.Errorf("unexpected message: %q", resp.Message)
	}
	if resp.AgentID != keat.ID || resp.UserID != SystemUserID {
		t.Errorf("unexpected ids: %+v", resp)
	}
	if resp.Context.UsedService != "deepseek" || resp.Context.AgentName != "Keat" {
		t.Errorf("unexpected context: %+v", resp.Context)
	}
	if resp.Context.RefinedPrompt != "What is life?" {
		t.Errorf("expected unrefined prompt without coordinator, got %q", resp.Context.RefinedPrompt)
	}
	if !resp.Timestamp.Equal(fixedNow) {
		t.Errorf("expected timestamp %v, got %v", fixedNow, resp.Timestamp)
	}

	req := primary.reqs[0]
	if req.Temperature != Temperature || req.MaxTokens != MaxTokens {
		t.Errorf("expected policy constants, got %+v", req)
	}
	if !strings.HasPrefix(req.Prompt, "You are Keat, an AI agent") || !strings.HasSuffix(req.Prompt, "What is life?") {
		t.Errorf("unexpected persona prompt: %q", req.Prompt)
	}
}

func TestGenerateFallback(t *testing.T) {
	primary := &stubProvider{name: "deepseek", err: errors.New("502 bad gateway")}
	fallback := &stubProvider{name: "openai", text: "Fallback wisdom."}
	g := newTestGenerator(t, nil, primary, fallback)

	resp, err := g.Generate(context.Background(), keat, "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Context.UsedService != "openai" {
		t.Errorf("expected openai, got %s", resp.Context.UsedService)
	}
	if resp.Message != "Fallback wisdom." {
		t.Errorf("expected fallback text, got %q", resp.Message)
	}
	if resp.Context.Error != "" {
		t.Errorf("expected no error, got %q", resp.Context.Error)
	}
}

func TestGenerateBothFail(t *testing.T) {
	primary := &stubProvider{name: "deepseek", err: errors.New("down")}
	fallback := &stubProvider{name: "openai", err: errors.New("quota")}
	g := newTestGenerator(t, nil, primary, fallback)

	resp, err := g.Generate(context.Background(), keat, "hi")
	if err != nil {
		t.Fatalf("backend failure must not surface as error: %v", err)
	}
	if resp.Message != ApologyMessage {
		t.Errorf("expected apology, got %q", resp.Message)
	}
	if resp.Context.Error == "" {
		t.Error("expected context error to be set")
	}
	if resp.Context.UsedService != "openai" {
		t.Errorf("expected last attempted openai, got %s", resp.Context.UsedService)
	}
}

func TestGenerateRefinement(t *testing.T) {
	coordinator := &stubProvider{name: "openai", text: "  Ponder the meaning of existence.  "}
	primary := &stubProvider{name: "deepseek", text: "ok"}
	g := newTestGenerator(t, coordinator, primary)

	resp, _ := g.Generate(context.Background(), keat, "what's up")
	if resp.Context.RefinedPrompt != "Ponder the meaning of existence." {
		t.Errorf("unexpected refined prompt: %q", resp.Context.RefinedPrompt)
	}
	if resp.Context.OriginalMessage != "what's up" {
		t.Errorf("unexpected original: %q", resp.Context.OriginalMessage)
	}
	if !strings.HasSuffix(primary.reqs[0].Prompt, "Ponder the meaning of existence.") {
		t.Errorf("expected refined text in persona prompt, got %q", primary.reqs[0].Prompt)
	}

	creq := coordinator.reqs[0]
	if creq.Prompt != "what's up" {
		t.Errorf("expected raw message to coordinator, got %q", creq.Prompt)
	}
	if !strings.Contains(creq.System, "refined prompt for Keat") || !strings.Contains(creq.System, "(philosopher)") {
		t.Errorf("unexpected coordinator system prompt: %q", creq.System)
	}
}

func TestGenerateRefinementDegrades(t *testing.T) {
	for _, coordinator := range []*stubProvider{
		{name: "openai", err: errors.New("network")},
		{name: "openai", text: "   "},
	} {
		primary := &stubProvider{name: "deepseek", text: "ok"}
		g := newTestGenerator(t, coordinator, primary)

		resp, err := g.Generate(context.Background(), keat, "original")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Context.RefinedPrompt != "original" {
			t.Errorf("expected original message, got %q", resp.Context.RefinedPrompt)
		}
	}
}

func TestGenerateCanceledContext(t *testing.T) {
	primary := &stubProvider{name: "deepseek", text: "ok"}
	g := newTestGenerator(t, nil, primary)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Generate(ctx, keat, "hi"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestGenerateCountsPromptTokens(t *testing.T) {
	primary := &stubProvider{name: "deepseek", text: "ok"}
	g := New(llm.NewChain(primary), nil, WithTokenCounter(llm.NewTokenCounter()))

	resp, _ := g.Generate(context.Background(), keat, "hello")
	if resp.Context.PromptTokens <= 0 {
		t.Errorf("expected positive prompt tokens, got %d", resp.Context.PromptTokens)
	}
}

func TestPersonaPromptVariants(t *testing.T) {
	direct := PersonaPrompt(keat, "msg", false)
	if !strings.Contains(direct, "4. Address the user's message directly") {
		t.Errorf("expected direct instruction, got %q", direct)
	}
	auto := PersonaPrompt(keat, "msg", true)
	if !strings.Contains(auto, "4. Engage with the ongoing conversation naturally") {
		t.Errorf("expected autonomous instruction, got %q", auto)
	}
	for _, want := range []string{"Role: philosopher\n", "Specialization: ethics\n", "Personality: dry wit\n", "1-5 sentences"} {
		if !strings.Contains(direct, want) {
			t.Errorf("expected %q in prompt", want)
		}
	}
}

func TestReactionPrompt(t *testing.T) {
	got := ReactionPrompt("hello", "Keat", "greetings")
	want := "The user said: \"hello\"\nKeat responded: \"greetings\"\n\nProvide a brief reaction or add to the conversation, staying true to your personality."
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestTranscriptPrompt(t *testing.T) {
	got := TranscriptPrompt([]Response{
		{Message: "first", Context: Context{AgentName: "Keat"}},
		{Message: "second", Context: Context{AgentName: "Devin"}},
	})
	want := "The conversation so far:\nKeat: first\nDevin: second\n\nAdd to this conversation, staying true to your personality."
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
