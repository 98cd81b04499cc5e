// Package events defines the chat wire protocol shared by the websocket
// gateway, the NATS bus and the terminal client.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mtzanidakis/swarmchat/internal/generator"
)

// Client to server.
const (
	UserJoin    = "user:join"
	UserMessage = "user:message"
	AIMessage   = "ai:message"
	QueueQuery  = "queue:status"
)

// Server to client.
const (
	ChatMessage   = "chat:message"
	SystemMessage = "system:message"
	AIResponse    = "ai:response"
	AIError       = "ai:error"
	AIQueued      = "ai:queued"
	QueueUpdate   = "queue:update"
)

const (
	SystemUsername = "System"
	ColorAlert     = "#FF0000"
	ColorNotice    = "#00FF00"
	ColorDefault   = "#718096"
)

type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Envelope is an Event whose payload has not been decoded yet.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("decode %s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s: %w", e.Type, err)
	}
	return nil
}

type JoinPayload struct {
	Username string `json:"username"`
	Color    string `json:"color"`
}

type UserMessagePayload struct {
	Text     string `json:"text"`
	Username string `json:"username"`
	Color    string `json:"color"`
}

type AIMessagePayload struct {
	Text        string `json:"text"`
	UserID      string `json:"userId"`
	TargetAgent string `json:"targetAgent,omitempty"`
}

type QueueQueryPayload struct {
	UserID string `json:"userId"`
}

// ChatLine is the payload of chat:message and system:message.
type ChatLine struct {
	Username  string `json:"username"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	UserColor string `json:"userColor,omitempty"`
}

type AIResponsePayload struct {
	AgentID   string            `json:"agentId"`
	UserID    string            `json:"userId"`
	Message   string            `json:"message"`
	Timestamp int64             `json:"timestamp"`
	Context   generator.Context `json:"context"`
	Username  string            `json:"username"`
	UserColor string            `json:"userColor,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type QueuedPayload struct {
	Position int `json:"position"`
}

type QueueUpdatePayload struct {
	QueueLength     int `json:"queueLength"`
	AvailableAgents int `json:"availableAgents"`
	ActiveChats     int `json:"activeChats"`
	Position        int `json:"position"`
}

func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

func System(text, color string, at time.Time) Event {
	return Event{Type: SystemMessage, Payload: ChatLine{
		Username:  SystemUsername,
		Text:      text,
		Timestamp: Millis(at),
		UserColor: color,
	}}
}

func Chat(line ChatLine) Event {
	return Event{Type: ChatMessage, Payload: line}
}

func Error(message string) Event {
	return Event{Type: AIError, Payload: ErrorPayload{Message: message}}
}

func Queued(position int) Event {
	return Event{Type: AIQueued, Payload: QueuedPayload{Position: position}}
}

// Response renders a generated reply under the agent's display name.
func Response(r generator.Response, username, color string) Event {
	if username == "" {
		username = "AI"
	}
	return Event{Type: AIResponse, Payload: AIResponsePayload{
		AgentID:   r.AgentID,
		UserID:    r.UserID,
		Message:   r.Message,
		Timestamp: Millis(r.Timestamp),
		Context:   r.Context,
		Username:  username,
		UserColor: color,
	}}
}
