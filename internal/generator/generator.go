package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mtzanidakis/swarmchat/internal/llm"
	"github.com/mtzanidakis/swarmchat/internal/registry"
)

const (
	Temperature = 0.7
	MaxTokens   = 1000

	SystemUserID = "system"

	ApologyMessage = "I apologize, but I'm having trouble processing your request. Please try again later."
)

type Context struct {
	OriginalMessage string `json:"originalMessage"`
	RefinedPrompt   string `json:"refinedPrompt,omitempty"`
	UsedService     string `json:"usedService,omitempty"`
	AgentName       string `json:"agentName,omitempty"`
	Error           string `json:"error,omitempty"`
	PromptTokens    int    `json:"promptTokens,omitempty"`
}

type Response struct {
	AgentID   string    `json:"agentId"`
	UserID    string    `json:"userId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Context   Context   `json:"context"`
}

// Completer is satisfied by *llm.Chain.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (llm.Result, error)
}

type Option func(*Generator)

func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

func WithTokenCounter(tc *llm.TokenCounter) Option {
	return func(g *Generator) { g.tokens = tc }
}

// Generator turns an agent and a message into one persona reply. The
// coordinator may be nil, in which case refinement is skipped.
type Generator struct {
	chain       Completer
	coordinator llm.Provider
	tokens      *llm.TokenCounter
	now         func() time.Time
}

func New(chain Completer, coordinator llm.Provider, opts ...Option) *Generator {
	g := &Generator{
		chain:       chain,
		coordinator: coordinator,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate answers a user message. Backend failures never surface as errors:
// they produce the apology text with Context.Error set. The only error is a
// done context.
func (g *Generator) Generate(ctx context.Context, agent registry.Agent, message string) (Response, error) {
	return g.generate(ctx, agent, message, false)
}

// GenerateAutonomous answers as part of an agent-to-agent exchange.
func (g *Generator) GenerateAutonomous(ctx context.Context, agent registry.Agent, message string) (Response, error) {
	return g.generate(ctx, agent, message, true)
}

func (g *Generator) generate(ctx context.Context, agent registry.Agent, message string, autonomous bool) (Response, error) {
	refined := g.refine(ctx, agent, message)
	prompt := PersonaPrompt(agent, refined, autonomous)

	resp := Response{
		AgentID: agent.ID,
		UserID:  SystemUserID,
		Context: Context{
			OriginalMessage: message,
			RefinedPrompt:   refined,
			AgentName:       agent.Name,
		},
	}
	if g.tokens != nil {
		resp.Context.PromptTokens = g.tokens.Count(prompt)
	}

	res, err := g.chain.Complete(ctx, llm.Request{
		Prompt:      prompt,
		Temperature: Temperature,
		MaxTokens:   MaxTokens,
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Response{}, fmt.Errorf("generate for %s: %w", agent.Name, ctxErr)
	}

	resp.Context.UsedService = res.Provider
	resp.Timestamp = g.now()
	if err != nil {
		slog.Error("all completion providers failed", "agent", agent.Name, "error", err)
		resp.Message = ApologyMessage
		resp.Context.Error = err.Error()
		return resp, nil
	}
	resp.Message = res.Text
	return resp, nil
}

// refine asks the coordinator to tailor the message to the agent. Any failure
// yields the message unchanged.
func (g *Generator) refine(ctx context.Context, agent registry.Agent, message string) string {
	if g.coordinator == nil {
		return message
	}
	text, err := g.coordinator.Complete(ctx, llm.Request{
		System: RefinementPrompt(agent),
		Prompt: message,
	})
	if err != nil {
		slog.Warn("prompt refinement failed, using original message", "agent", agent.Name, "error", err)
		return message
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return message
	}
	return text
}

func RefinementPrompt(agent registry.Agent) string {
	return fmt.Sprintf("You are an AI coordinator. Analyze the message and create a refined prompt for %s, "+
		"considering their role (%s) and personality (%s). The agent must respond in 1-5 sentences only.",
		agent.Name, agent.Role, agent.Personality)
}

func PersonaPrompt(agent registry.Agent, message string, autonomous bool) string {
	focus := "Address the user's message directly"
	if autonomous {
		focus = "Engage with the ongoing conversation naturally"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, an AI agent with the following traits:\n", agent.Name)
	fmt.Fprintf(&sb, "Role: %s\n", agent.Role)
	fmt.Fprintf(&sb, "Specialization: %s\n", agent.Specialization)
	fmt.Fprintf(&sb, "Personality: %s\n\n", agent.Personality)
	sb.WriteString("IMPORTANT INSTRUCTIONS:\n")
	sb.WriteString("1. Maintain your unique personality and perspective in your response\n")
	sb.WriteString("2. Your response MUST be between 1-5 sentences only\n")
	sb.WriteString("3. Be concise but insightful\n")
	fmt.Fprintf(&sb, "4. %s\n\n", focus)
	sb.WriteString("Remember: Keep your response short - no more than 5 sentences!\n\n")
	sb.WriteString(message)
	return sb.String()
}

func ReactionPrompt(userMessage, primaryAgent, primaryText string) string {
	return fmt.Sprintf("The user said: \"%s\"\n%s responded: \"%s\"\n\nProvide a brief reaction or add to the conversation, staying true to your personality.",
		userMessage, primaryAgent, primaryText)
}

// TranscriptPrompt renders prior autonomous turns as "name: message" lines.
func TranscriptPrompt(turns []Response) string {
	lines := make([]string, len(turns))
	for i, r := range turns {
		lines[i] = r.Context.AgentName + ": " + r.Message
	}
	return "The conversation so far:\n" + strings.Join(lines, "\n") + "\n\nAdd to this conversation, staying true to your personality."
}
