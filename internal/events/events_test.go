package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mtzanidakis/swarmchat/internal/generator"
)

func TestEnvelopeDecode(t *testing.T) {
	raw := []byte(`{"type":"ai:message","payload":{"text":"hi","userId":"u1","targetAgent":"keat"}}`)

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != AIMessage {
		t.Errorf("expected %s, got %s", AIMessage, env.Type)
	}
	var p AIMessagePayload
	if err := env.Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Text != "hi" || p.UserID != "u1" || p.TargetAgent != "keat" {
		t.Errorf("unexpected payload: %+v", p)
	}
}

func TestEnvelopeDecodeEmpty(t *testing.T) {
	env := Envelope{Type: UserJoin}
	var p JoinPayload
	if err := env.Decode(&p); err == nil {
		t.Error("expected error for empty payload")
	}
}

func TestSystemEvent(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	ev := System("Alice has joined the chat", ColorAlert, at)

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"system:message","payload":{"username":"System","text":"Alice has joined the chat","timestamp":1700000000123,"userColor":"#FF0000"}}`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}
}

func TestResponseEvent(t *testing.T) {
	r := generator.Response{
		AgentID:   "agent-1",
		UserID:    "u1",
		Message:   "hello",
		Timestamp: time.UnixMilli(42),
		Context:   generator.Context{UsedService: "deepseek", AgentName: "Keat"},
	}
	ev := Response(r, "", "")
	p, ok := ev.Payload.(AIResponsePayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", ev.Payload)
	}
	if p.Username != "AI" {
		t.Errorf("expected fallback username AI, got %s", p.Username)
	}
	if p.Timestamp != 42 || p.Context.UsedService != "deepseek" {
		t.Errorf("unexpected payload: %+v", p)
	}
}
