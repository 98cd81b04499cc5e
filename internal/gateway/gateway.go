// Package gateway connects chat transports to the dispatch core. It owns the
// side effects around a request: rate limiting, persistence and broadcast.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mtzanidakis/swarmchat/internal/dispatch"
	"github.com/mtzanidakis/swarmchat/internal/events"
	"github.com/mtzanidakis/swarmchat/internal/generator"
	"github.com/mtzanidakis/swarmchat/internal/natsbus"
	"github.com/mtzanidakis/swarmchat/internal/ratelimit"
	"github.com/mtzanidakis/swarmchat/internal/registry"
	"github.com/mtzanidakis/swarmchat/internal/store"
)

// Conn is one connected chat participant. Send delivers an event to that
// participant only.
type Conn interface {
	ID() string
	Send(ev events.Event) error
}

// Publisher fans events out to every participant. *natsbus.Client satisfies it.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

type Metrics interface {
	RateLimited(reason string)
}

type Option func(*Gateway)

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

func WithMetrics(m Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

type participant struct {
	username string
	color    string
}

type Gateway struct {
	orch         *dispatch.Orchestrator
	store        *store.Store
	limiter      *ratelimit.Limiter
	pub          Publisher
	metrics      Metrics
	historyLimit int
	now          func() time.Time

	mu    sync.Mutex
	users map[string]participant
}

func New(orch *dispatch.Orchestrator, s *store.Store, limiter *ratelimit.Limiter, pub Publisher, historyLimit int, opts ...Option) *Gateway {
	g := &Gateway{
		orch:         orch,
		store:        s,
		limiter:      limiter,
		pub:          pub,
		historyLimit: historyLimit,
		now:          time.Now,
		users:        make(map[string]participant),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Orchestrator() *dispatch.Orchestrator { return g.orch }

// Handle routes one inbound event from conn.
func (g *Gateway) Handle(ctx context.Context, conn Conn, env events.Envelope) error {
	switch env.Type {
	case events.UserJoin:
		var p events.JoinPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		return g.Join(conn, p)
	case events.UserMessage:
		var p events.UserMessagePayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		return g.Post(conn, p)
	case events.AIMessage:
		var p events.AIMessagePayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		return g.AskAI(ctx, conn, p)
	case events.QueueQuery:
		var p events.QueueQueryPayload
		if len(env.Payload) > 0 {
			if err := env.Decode(&p); err != nil {
				return err
			}
		}
		return g.QueueStatus(conn, p)
	default:
		return fmt.Errorf("unknown event type: %s", env.Type)
	}
}

// Connect replays recent history to a newly connected participant.
func (g *Gateway) Connect(conn Conn) error {
	entries, err := g.store.RecentHistory(g.historyLimit)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	for _, e := range entries {
		line := events.ChatLine{
			Username:  e.Username,
			Text:      e.Text,
			Timestamp: events.Millis(e.CreatedAt),
			UserColor: e.UserColor,
		}
		if e.Kind == store.KindAI {
			line.Username, line.UserColor = g.agentLabelByName(e.AgentName)
		}
		if err := conn.Send(events.Chat(line)); err != nil {
			return fmt.Errorf("send history: %w", err)
		}
	}
	return nil
}

func (g *Gateway) Join(conn Conn, p events.JoinPayload) error {
	g.mu.Lock()
	g.users[conn.ID()] = participant{username: p.Username, color: p.Color}
	g.mu.Unlock()

	if err := g.store.SaveUser(&store.User{ID: conn.ID(), Username: p.Username, Color: p.Color}); err != nil {
		slog.Error("save user failed", "conn", conn.ID(), "error", err)
	}

	slog.Info("user joined", "conn", conn.ID(), "username", p.Username)
	return g.publish(events.System(p.Username+" has joined the chat", events.ColorAlert, g.now()))
}

// Post handles a plain chat message.
func (g *Gateway) Post(conn Conn, p events.UserMessagePayload) error {
	text := g.limiter.Truncate(p.Text)

	decision := g.limiter.Check(conn.ID(), text)
	if !decision.Allowed {
		slog.Warn("message rate limited", "conn", conn.ID(), "reason", decision.Reason)
		if g.metrics != nil {
			g.metrics.RateLimited(decision.Reason)
		}
		return conn.Send(events.System(decision.Reason, events.ColorAlert, g.now()))
	}
	if decision.Reason != "" {
		if err := conn.Send(events.System(decision.Reason, events.ColorAlert, g.now())); err != nil {
			return err
		}
	}

	username, color := p.Username, p.Color
	if username == "" {
		g.mu.Lock()
		known := g.users[conn.ID()]
		g.mu.Unlock()
		username, color = known.username, known.color
	}

	now := g.now()
	if err := g.store.SaveMessage(&store.Message{
		UserID:    conn.ID(),
		Username:  username,
		Content:   text,
		UserColor: color,
		CreatedAt: now,
	}); err != nil {
		slog.Error("save message failed", "conn", conn.ID(), "error", err)
	}

	return g.publish(events.Chat(events.ChatLine{
		Username:  username,
		Text:      text,
		Timestamp: events.Millis(now),
		UserColor: color,
	}))
}

// AskAI runs a request through the orchestrator. Responses are broadcast to the
// room; queued and rejected outcomes go back to conn only. Requests are keyed
// by connection, whatever userId the client claims, so Disconnect can cancel
// them and clients sharing a name never share a queue position.
func (g *Gateway) AskAI(ctx context.Context, conn Conn, p events.AIMessagePayload) error {
	out := g.Ask(ctx, dispatch.Request{UserID: conn.ID(), Text: p.Text, TargetAgent: p.TargetAgent})
	switch out.State {
	case dispatch.StateQueued:
		return conn.Send(events.Queued(out.Position))
	case dispatch.StateRejected:
		return conn.Send(events.Error(out.Reason))
	}
	return nil
}

// Ask dispatches req and, when it is served, persists and broadcasts the
// responses.
func (g *Gateway) Ask(ctx context.Context, req dispatch.Request) dispatch.Outcome {
	out := g.orch.HandleRequest(ctx, req)
	switch out.State {
	case dispatch.StateDispatched:
		slog.Info("request dispatched", "user", req.UserID, "agent", out.Agent.Name, "responses", len(out.Responses))
		g.deliver(req.UserID, req.Text, out.Responses, true)
	case dispatch.StateQueued:
		slog.Info("request queued", "user", req.UserID, "position", out.Position)
	case dispatch.StateRejected:
		slog.Warn("request rejected", "user", req.UserID, "reason", out.Reason)
	}
	return out
}

// PublishAutonomous persists and broadcasts the turns of an autonomous round.
func (g *Gateway) PublishAutonomous(responses []generator.Response) {
	for _, r := range responses {
		g.deliver(r.UserID, r.Context.OriginalMessage, []generator.Response{r}, false)
	}
}

func (g *Gateway) deliver(userID, userMessage string, responses []generator.Response, notice bool) {
	for i, r := range responses {
		if err := g.store.SaveInteraction(&store.Interaction{
			UserID:      userID,
			AgentID:     r.AgentID,
			AgentName:   r.Context.AgentName,
			UserMessage: userMessage,
			AIResponse:  r.Message,
			UsedService: r.Context.UsedService,
			Error:       r.Context.Error,
			CreatedAt:   r.Timestamp,
		}); err != nil {
			slog.Error("save interaction failed", "agent", r.Context.AgentName, "error", err)
		}

		username, color := g.agentLabel(r.AgentID)
		if notice && i == 0 {
			if err := g.publish(events.System(username+" is responding...", events.ColorNotice, g.now())); err != nil {
				slog.Error("publish responding notice failed", "error", err)
			}
		}
		if err := g.publish(events.Response(r, username, color)); err != nil {
			slog.Error("publish response failed", "agent", r.Context.AgentName, "error", err)
		}
	}
}

// QueueStatus reports the queue as seen by conn. Like AskAI it ignores the
// payload userId.
func (g *Gateway) QueueStatus(conn Conn, p events.QueueQueryPayload) error {
	st := g.orch.QueueStatus(conn.ID())
	return conn.Send(events.Event{Type: events.QueueUpdate, Payload: events.QueueUpdatePayload{
		QueueLength:     st.QueueLength,
		AvailableAgents: st.AvailableAgents,
		ActiveChats:     st.ActiveChats,
		Position:        st.Position,
	}})
}

// Disconnect forgets conn. A participant that has left can no longer be
// served, so its queued requests are dropped.
func (g *Gateway) Disconnect(conn Conn) {
	g.mu.Lock()
	_, joined := g.users[conn.ID()]
	delete(g.users, conn.ID())
	g.mu.Unlock()

	if joined {
		if err := g.store.TouchUser(conn.ID()); err != nil {
			slog.Error("update last seen failed", "conn", conn.ID(), "error", err)
		}
	}
	g.limiter.Forget(conn.ID())
	if n := g.orch.CancelQueued(conn.ID()); n > 0 {
		slog.Info("dropped queued requests", "conn", conn.ID(), "count", n)
	}
}

func (g *Gateway) publish(ev events.Event) error {
	if err := g.pub.PublishJSON(natsbus.TopicEvent(ev.Type), ev); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

func (g *Gateway) agentLabel(id string) (string, string) {
	a, ok := g.orch.Registry().Get(id)
	if !ok {
		return "AI", events.ColorDefault
	}
	return label(a)
}

func (g *Gateway) agentLabelByName(name string) (string, string) {
	a, ok := g.orch.Registry().FindByName(name, false)
	if !ok {
		return "AI", events.ColorDefault
	}
	return label(a)
}

func label(a registry.Agent) (string, string) {
	name := a.DisplayName
	if name == "" {
		name = a.Name
	}
	color := a.Color
	if color == "" {
		color = events.ColorDefault
	}
	return name, color
}
