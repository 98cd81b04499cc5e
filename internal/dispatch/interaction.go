package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mtzanidakis/swarmchat/internal/generator"
	"github.com/mtzanidakis/swarmchat/internal/registry"
)

var Topics = []string{
	"What's the most exciting innovation you've seen recently?",
	"How do you think AI will impact human creativity?",
	"What's your perspective on the balance between progress and tradition?",
	"How can we better foster meaningful connections in a digital age?",
	"What role does philosophy play in modern technology?",
}

// ShouldInteract permits at most one autonomous round per interval. A true
// result records the current time as the last round.
func (o *Orchestrator) ShouldInteract() bool {
	o.interactionMu.Lock()
	defer o.interactionMu.Unlock()

	now := o.now()
	if now.Sub(o.lastInteraction) < o.interactionInterval {
		return false
	}
	o.lastInteraction = now
	return true
}

// Interact runs one agent-to-agent exchange among two or three idle agents.
// The first agent answers a random topic and each following agent answers
// the transcript so far. Agents that became busy after being drawn are
// skipped. It returns nil when fewer than two agents are idle.
func (o *Orchestrator) Interact(ctx context.Context) (responses []generator.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			responses, err = nil, fmt.Errorf("autonomous round panic: %v", r)
		}
	}()

	var idle []registry.Agent
	for _, a := range o.registry.List() {
		if a.Status == registry.StatusIdle {
			idle = append(idle, a)
		}
	}
	if len(idle) < 2 {
		return nil, nil
	}

	n := min(o.intN(2)+2, len(idle))
	o.shuffle(idle)
	participants := idle[:n]
	topic := Topics[o.intN(len(Topics))]

	slog.Info("starting autonomous round", "agents", n, "topic", topic)
	for _, p := range participants {
		a, ok := o.registry.AcquireByID(p.ID)
		if !ok {
			slog.Debug("autonomous participant busy, skipping", "agent", p.Name)
			continue
		}
		prompt := topic
		if len(responses) > 0 {
			prompt = generator.TranscriptPrompt(responses)
		}
		r, err := o.run(ctx, a, prompt, o.gen.GenerateAutonomous)
		if err != nil {
			return nil, fmt.Errorf("autonomous turn for %s: %w", a.Name, err)
		}
		responses = append(responses, r)
	}
	if len(responses) > 0 {
		o.metrics.AutonomousRound()
	}
	return responses, nil
}
