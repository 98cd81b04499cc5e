package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mtzanidakis/swarmchat/internal/events"
)

func main() {
	url := flag.String("url", envOr("SWARMCHAT_URL", "ws://localhost:3001/api/ws"), "gateway websocket URL")
	name := flag.String("name", envOr("USER", "guest"), "chat username")
	color := flag.String("color", "#4A9DFF", "username colour")
	flag.Parse()

	client, err := dial(*url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	join := events.Event{Type: events.UserJoin, Payload: events.JoinPayload{Username: *name, Color: *color}}
	if err := client.Send(join); err != nil {
		fmt.Fprintf(os.Stderr, "Error: join: %v\n", err)
		os.Exit(1)
	}

	inbound := make(chan tea.Msg, 256)
	go client.readEvents(inbound)

	p := tea.NewProgram(newModel(client, inbound, *name, *color), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
