package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mtzanidakis/swarmchat/internal/config"
	"github.com/mtzanidakis/swarmchat/internal/dispatch"
	"github.com/mtzanidakis/swarmchat/internal/gateway"
	"github.com/mtzanidakis/swarmchat/internal/generator"
	"github.com/mtzanidakis/swarmchat/internal/natsbus"
	"github.com/mtzanidakis/swarmchat/internal/registry"
	"github.com/nats-io/nats.go"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want map[string]string
	}{
		{
			name: "empty",
			args: nil,
			want: map[string]string{},
		},
		{
			name: "single pair",
			args: []string{"--user", "alice"},
			want: map[string]string{"user": "alice"},
		},
		{
			name: "multiple pairs",
			args: []string{"--text", "hello there", "--agent", "Devin"},
			want: map[string]string{"text": "hello there", "agent": "Devin"},
		},
		{
			name: "trailing flag without value",
			args: []string{"--user", "bob", "--agent"},
			want: map[string]string{"user": "bob"},
		},
		{
			name: "bare words ignored",
			args: []string{"stray", "--user", "carol"},
			want: map[string]string{"user": "carol"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseArgs(tt.args)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d args, got %d: %v", len(tt.want), len(got), got)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("expected %s=%q, got %q", k, v, got[k])
				}
			}
		})
	}
}

func startTestNATS(t *testing.T) *natsbus.Bus {
	t.Helper()
	bus, err := natsbus.New(config.NATSConfig{Port: -1})
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(func() { bus.Close() })
	return bus
}

// respondWith answers every control command with the reply built by fn.
func respondWith(t *testing.T, url string, fn func(cmd gateway.Command) any) {
	t.Helper()
	conn, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(conn.Close)

	_, err = conn.Subscribe(natsbus.TopicRPC, func(msg *nats.Msg) {
		var cmd gateway.Command
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			t.Errorf("unmarshal command: %v", err)
			return
		}
		data, _ := json.Marshal(fn(cmd))
		msg.Respond(data)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	conn.Flush()
}

func TestRunStatus(t *testing.T) {
	bus := startTestNATS(t)
	url := bus.ClientURL()

	respondWith(t, url, func(cmd gateway.Command) any {
		if cmd.Type != gateway.CmdQueueStatus {
			t.Errorf("expected %s, got %s", gateway.CmdQueueStatus, cmd.Type)
		}
		var p gateway.QueueStatusPayload
		json.Unmarshal(cmd.Payload, &p)
		if p.UserID != "alice" {
			t.Errorf("expected user alice, got %q", p.UserID)
		}
		return map[string]any{"ok": true, "status": dispatch.QueueStatus{
			QueueLength: 2, AvailableAgents: 1, ActiveChats: 3, Position: 2,
		}}
	})

	var out bytes.Buffer
	if err := run(url, "status", []string{"--user", "alice"}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, want := range []string{"Queue length:      2", "Active chats:      3", "Position:          2"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out.String())
		}
	}
}

func TestRunAgents(t *testing.T) {
	bus := startTestNATS(t)
	url := bus.ClientURL()

	respondWith(t, url, func(cmd gateway.Command) any {
		return map[string]any{"ok": true, "agents": []registry.Agent{
			{ID: "a", Name: "Keat", Role: "philosopher", Status: registry.StatusIdle},
			{ID: "b", Name: "Devin", Role: "tech_expert", Status: registry.StatusBusy},
		}}
	})

	var out bytes.Buffer
	if err := run(url, "agents", nil, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[1], "Devin") || !strings.Contains(lines[1], "busy") {
		t.Errorf("expected busy Devin line, got %q", lines[1])
	}
}

func TestRunAsk(t *testing.T) {
	bus := startTestNATS(t)
	url := bus.ClientURL()

	respondWith(t, url, func(cmd gateway.Command) any {
		var p gateway.AskPayload
		json.Unmarshal(cmd.Payload, &p)
		if p.Text != "hi" || p.UserID != "swarmctl" || p.TargetAgent != "devin" {
			t.Errorf("unexpected ask payload: %+v", p)
		}
		return map[string]any{"ok": true, "result": gateway.AskResult{
			State: dispatch.StateDispatched,
			Agent: "b",
			Responses: []generator.Response{
				{AgentID: "b", Message: "LFG", Context: generator.Context{AgentName: "Devin"}},
			},
		}}
	})

	var out bytes.Buffer
	if err := run(url, "ask", []string{"--text", "hi", "--agent", "Devin"}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "[Devin] LFG" {
		t.Errorf("expected [Devin] LFG, got %q", got)
	}
}

func TestRunAskRequiresText(t *testing.T) {
	if err := run("nats://127.0.0.1:1", "ask", nil, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error without --text")
	}
}

func TestRunPropagatesError(t *testing.T) {
	bus := startTestNATS(t)
	url := bus.ClientURL()

	respondWith(t, url, func(cmd gateway.Command) any {
		return map[string]any{"error": "unknown command: " + cmd.Type}
	})

	err := run(url, "sweep", nil, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("expected unknown command error, got %v", err)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	if err := run("nats://127.0.0.1:1", "bogus", nil, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestPrintAskQueued(t *testing.T) {
	var out bytes.Buffer
	printAsk(&out, gateway.AskResult{State: dispatch.StateQueued, Position: 3})
	if got := strings.TrimSpace(out.String()); got != "Queued at position 3." {
		t.Errorf("unexpected output %q", got)
	}
}
