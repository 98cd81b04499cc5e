package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mtzanidakis/swarmchat/internal/dispatch"
	"github.com/mtzanidakis/swarmchat/internal/gateway"
	"github.com/mtzanidakis/swarmchat/internal/natsbus"
	"github.com/mtzanidakis/swarmchat/internal/registry"
	"github.com/nats-io/nats.go"
)

type rpcResponse struct {
	OK      bool                 `json:"ok,omitempty"`
	Error   string               `json:"error,omitempty"`
	Status  dispatch.QueueStatus `json:"status"`
	Agents  []registry.Agent     `json:"agents,omitempty"`
	Removed int                  `json:"removed"`
	Result  gateway.AskResult    `json:"result"`
}

func sendCommand(natsURL, cmdType string, payload any, timeout time.Duration) (*rpcResponse, error) {
	client, err := natsbus.NewClientFromURL(natsURL, nats.Name("swarmctl"))
	if err != nil {
		return nil, err
	}
	defer client.Close()

	cmd := gateway.Command{Type: cmdType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		cmd.Payload = data
	}

	var resp rpcResponse
	if err := client.RequestJSON(natsbus.TopicRPC, cmd, &resp, timeout); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%s", resp.Error)
	}
	return &resp, nil
}

func parseArgs(args []string) map[string]string {
	result := make(map[string]string)
	for i := 0; i < len(args); i++ {
		if len(args[i]) > 2 && args[i][:2] == "--" && i+1 < len(args) {
			result[args[i][2:]] = args[i+1]
			i++
		}
	}
	return result
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, `  swarmctl status [--user "..."]`)
	fmt.Fprintln(os.Stderr, "  swarmctl agents")
	fmt.Fprintln(os.Stderr, `  swarmctl ask --text "..." [--user "..."] [--agent "..."]`)
	fmt.Fprintln(os.Stderr, "  swarmctl sweep")
	os.Exit(1)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}

	if len(os.Args) < 2 {
		usage()
	}

	if err := run(natsURL, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fatal("%v", err)
	}
}

func run(natsURL, command string, rest []string, w io.Writer) error {
	args := parseArgs(rest)

	switch command {
	case "status":
		resp, err := sendCommand(natsURL, gateway.CmdQueueStatus, gateway.QueueStatusPayload{UserID: args["user"]}, 10*time.Second)
		if err != nil {
			return err
		}
		printStatus(w, resp.Status, args["user"] != "")

	case "agents":
		resp, err := sendCommand(natsURL, gateway.CmdListAgents, nil, 10*time.Second)
		if err != nil {
			return err
		}
		printAgents(w, resp.Agents)

	case "ask":
		if args["text"] == "" {
			return fmt.Errorf("--text is required")
		}
		user := args["user"]
		if user == "" {
			user = "swarmctl"
		}
		resp, err := sendCommand(natsURL, gateway.CmdAsk, gateway.AskPayload{
			Text:        args["text"],
			UserID:      user,
			TargetAgent: strings.ToLower(args["agent"]),
		}, 2*time.Minute)
		if err != nil {
			return err
		}
		printAsk(w, resp.Result)

	case "sweep":
		resp, err := sendCommand(natsURL, gateway.CmdSweepQueue, nil, 10*time.Second)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Removed %d expired queue entries.\n", resp.Removed)

	default:
		return fmt.Errorf("unknown command: %s", command)
	}
	return nil
}

func printStatus(w io.Writer, st dispatch.QueueStatus, withPosition bool) {
	fmt.Fprintf(w, "Queue length:      %d\n", st.QueueLength)
	fmt.Fprintf(w, "Available agents:  %d\n", st.AvailableAgents)
	fmt.Fprintf(w, "Active chats:      %d\n", st.ActiveChats)
	if withPosition {
		if st.Position == 0 {
			fmt.Fprintln(w, "Position:          not queued")
		} else {
			fmt.Fprintf(w, "Position:          %d\n", st.Position)
		}
	}
}

func printAgents(w io.Writer, agents []registry.Agent) {
	if len(agents) == 0 {
		fmt.Fprintln(w, "No agents registered.")
		return
	}
	for _, a := range agents {
		fmt.Fprintf(w, "  %-8s %-5s %s\n", a.Name, a.Status, a.Role)
	}
}

func printAsk(w io.Writer, res gateway.AskResult) {
	switch res.State {
	case dispatch.StateQueued:
		fmt.Fprintf(w, "Queued at position %d.\n", res.Position)
	case dispatch.StateRejected:
		fmt.Fprintf(w, "Rejected: %s\n", res.Reason)
	default:
		for _, r := range res.Responses {
			name := r.Context.AgentName
			if name == "" {
				name = r.AgentID
			}
			fmt.Fprintf(w, "[%s] %s\n", name, r.Message)
		}
	}
}
