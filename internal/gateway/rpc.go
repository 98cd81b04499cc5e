package gateway

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mtzanidakis/swarmchat/internal/dispatch"
	"github.com/mtzanidakis/swarmchat/internal/generator"
	"github.com/mtzanidakis/swarmchat/internal/natsbus"
	"github.com/nats-io/nats.go"
)

// Command is a control request received on natsbus.TopicRPC.
type Command struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	CmdQueueStatus = "queue_status"
	CmdListAgents  = "list_agents"
	CmdAsk         = "ask"
	CmdSweepQueue  = "sweep_queue"
)

type AskPayload struct {
	Text        string `json:"text"`
	UserID      string `json:"user_id"`
	TargetAgent string `json:"target_agent,omitempty"`
}

type QueueStatusPayload struct {
	UserID string `json:"user_id"`
}

// AskResult is the reply to an ask command.
type AskResult struct {
	State     dispatch.State       `json:"state"`
	Agent     string               `json:"agent,omitempty"`
	Position  int                  `json:"position,omitempty"`
	Reason    string               `json:"reason,omitempty"`
	Responses []generator.Response `json:"responses,omitempty"`
}

// ServeRPC answers control commands until ctx is done.
func (g *Gateway) ServeRPC(ctx context.Context, client *natsbus.Client) error {
	sub, err := client.Subscribe(natsbus.TopicRPC, func(msg *nats.Msg) {
		g.handleRPC(ctx, msg)
	})
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return nil
}

func (g *Gateway) handleRPC(ctx context.Context, msg *nats.Msg) {
	var cmd Command
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		slog.Warn("invalid control command", "error", err)
		respondRPC(msg, map[string]any{"error": "invalid command"})
		return
	}

	slog.Info("control command received", "type", cmd.Type)

	switch cmd.Type {
	case CmdQueueStatus:
		var req QueueStatusPayload
		if len(cmd.Payload) > 0 {
			if err := json.Unmarshal(cmd.Payload, &req); err != nil {
				respondRPC(msg, map[string]any{"error": "invalid payload"})
				return
			}
		}
		respondRPC(msg, map[string]any{"ok": true, "status": g.orch.QueueStatus(req.UserID)})
	case CmdListAgents:
		respondRPC(msg, map[string]any{"ok": true, "agents": g.orch.Registry().List()})
	case CmdAsk:
		g.rpcAsk(ctx, msg, cmd.Payload)
	case CmdSweepQueue:
		n := g.orch.SweepQueue()
		slog.Info("queue swept via control", "removed", n)
		respondRPC(msg, map[string]any{"ok": true, "removed": n})
	default:
		slog.Warn("unknown control command", "type", cmd.Type)
		respondRPC(msg, map[string]any{"error": "unknown command: " + cmd.Type})
	}
}

func (g *Gateway) rpcAsk(ctx context.Context, msg *nats.Msg, payload json.RawMessage) {
	var req AskPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		respondRPC(msg, map[string]any{"error": "invalid payload"})
		return
	}
	if req.Text == "" || req.UserID == "" {
		respondRPC(msg, map[string]any{"error": "text and user_id are required"})
		return
	}

	// Generation can take a while; keep the subscription free for other commands.
	go func() {
		out := g.Ask(ctx, dispatch.Request{UserID: req.UserID, Text: req.Text, TargetAgent: req.TargetAgent})
		respondRPC(msg, map[string]any{"ok": true, "result": AskResult{
			State:     out.State,
			Agent:     out.Agent.Name,
			Position:  out.Position,
			Reason:    out.Reason,
			Responses: out.Responses,
		}})
	}()
}

func respondRPC(msg *nats.Msg, data any) {
	resp, err := json.Marshal(data)
	if err != nil {
		slog.Error("failed to marshal control response", "error", err)
		return
	}
	if err := msg.Respond(resp); err != nil {
		slog.Error("failed to respond to control command", "error", err)
	}
}
