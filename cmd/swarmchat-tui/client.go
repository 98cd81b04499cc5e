package main

import (
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/mtzanidakis/swarmchat/internal/events"
)

type sender interface {
	Send(ev events.Event) error
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func dial(url string) (*wsClient, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &wsClient{conn: conn}, nil
}

func (c *wsClient) Send(ev events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(ev)
}

func (c *wsClient) Close() error {
	return c.conn.Close()
}

type eventMsg struct {
	env events.Envelope
}

type connClosedMsg struct {
	err error
}

// readEvents forwards server events to out until the connection drops.
func (c *wsClient) readEvents(out chan<- tea.Msg) {
	defer close(out)
	for {
		var env events.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			out <- connClosedMsg{err: err}
			return
		}
		out <- eventMsg{env: env}
	}
}

func waitEvent(ch <-chan tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}
