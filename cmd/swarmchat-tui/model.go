package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mtzanidakis/swarmchat/internal/events"
)

const maxLines = 500

type uiTheme struct {
	header    lipgloss.Style
	panel     lipgloss.Style
	status    lipgloss.Style
	errStatus lipgloss.Style
	system    lipgloss.Style
	muted     lipgloss.Style
}

func newTheme() uiTheme {
	blue := lipgloss.Color("#4A9DFF")
	muted := lipgloss.Color("#718096")

	return uiTheme{
		header: lipgloss.NewStyle().
			Bold(true).
			Foreground(blue).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		status:    lipgloss.NewStyle().Foreground(blue),
		errStatus: lipgloss.NewStyle().Foreground(lipgloss.Color(events.ColorAlert)).Bold(true),
		system:    lipgloss.NewStyle().Italic(true),
		muted:     lipgloss.NewStyle().Foreground(muted),
	}
}

type model struct {
	conn     sender
	inbound  chan tea.Msg
	username string
	color    string

	lines      []string
	statusLine string
	queue      events.QueueUpdatePayload
	closed     bool
	lastErr    error

	width  int
	height int

	input    textinput.Model
	timeline viewport.Model
	theme    uiTheme
}

func newModel(conn sender, inbound chan tea.Msg, username, color string) model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 1000
	input.Placeholder = "Say something, or @keat ask a question"
	input.Focus()

	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true

	return model{
		conn:       conn,
		inbound:    inbound,
		username:   username,
		color:      color,
		statusLine: "connected as " + username,
		input:      input,
		timeline:   timeline,
		theme:      newTheme(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitEvent(m.inbound))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.timeline.Width = max(msg.Width-4, 10)
		m.timeline.Height = max(msg.Height-7, 3)
		m.input.Width = max(msg.Width-6, 10)
		m.renderTimeline()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.timeline, cmd = m.timeline.Update(msg)
			return m, cmd
		case tea.KeyEnter:
			return m.submit()
		}

	case eventMsg:
		m.handleEvent(msg.env)
		return m, waitEvent(m.inbound)

	case connClosedMsg:
		m.closed = true
		m.lastErr = msg.err
		m.statusLine = "disconnected"
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m model) submit() (tea.Model, tea.Cmd) {
	in := parseInput(m.input.Value())
	m.input.Reset()

	switch in.kind {
	case inputNone:
		return m, nil
	case inputQuit:
		return m, tea.Quit
	case inputHelp:
		m.appendLine(m.theme.muted.Render(helpText))
		return m, nil
	}

	if m.closed {
		m.statusLine = "not connected"
		return m, nil
	}
	ev, ok := in.toEvent(m.username, m.color)
	if !ok {
		return m, nil
	}
	if err := m.conn.Send(ev); err != nil {
		m.lastErr = err
		m.statusLine = "send failed"
		return m, nil
	}
	if in.kind == inputAsk {
		m.statusLine = "waiting for an agent..."
	}
	return m, nil
}

func (m *model) handleEvent(env events.Envelope) {
	if env.Type == events.QueueUpdate {
		var p events.QueueUpdatePayload
		if err := env.Decode(&p); err == nil {
			m.queue = p
			m.statusLine = formatQueue(p)
		}
		return
	}
	if env.Type == events.AIResponse || env.Type == events.AIError {
		m.statusLine = "connected as " + m.username
	}
	if line, ok := renderEvent(env); ok {
		m.appendLine(line)
	}
}

func (m *model) appendLine(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
	m.renderTimeline()
}

func (m *model) renderTimeline() {
	m.timeline.SetContent(strings.Join(m.lines, "\n"))
	m.timeline.GotoBottom()
}

func (m model) View() string {
	header := m.theme.header.Render("swarmchat")
	status := m.theme.status.Render(m.statusLine)
	if m.lastErr != nil {
		status = m.theme.errStatus.Render(m.statusLine + ": " + m.lastErr.Error())
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, header, " ", status),
		m.theme.panel.Render(m.timeline.View()),
		m.input.View(),
	)
}

// renderEvent turns a server event into one timeline line. Events without a
// visible representation return false.
func renderEvent(env events.Envelope) (string, bool) {
	switch env.Type {
	case events.ChatMessage, events.SystemMessage:
		var p events.ChatLine
		if err := env.Decode(&p); err != nil {
			return "", false
		}
		name := colored(p.Username, p.UserColor)
		if env.Type == events.SystemMessage {
			return fmt.Sprintf("%s %s", stamp(p.Timestamp), colored(p.Text, p.UserColor)), true
		}
		return fmt.Sprintf("%s %s: %s", stamp(p.Timestamp), name, p.Text), true

	case events.AIResponse:
		var p events.AIResponsePayload
		if err := env.Decode(&p); err != nil {
			return "", false
		}
		return fmt.Sprintf("%s %s: %s", stamp(p.Timestamp), colored(p.Username, p.UserColor), p.Message), true

	case events.AIError:
		var p events.ErrorPayload
		if err := env.Decode(&p); err != nil {
			return "", false
		}
		return colored("! "+p.Message, events.ColorAlert), true

	case events.AIQueued:
		var p events.QueuedPayload
		if err := env.Decode(&p); err != nil {
			return "", false
		}
		return colored(fmt.Sprintf("queued at position %d", p.Position), events.ColorDefault), true
	}
	return "", false
}

func formatQueue(p events.QueueUpdatePayload) string {
	s := fmt.Sprintf("queue %d · idle agents %d · active chats %d", p.QueueLength, p.AvailableAgents, p.ActiveChats)
	if p.Position > 0 {
		s += fmt.Sprintf(" · you are #%d", p.Position)
	}
	return s
}

func colored(s, color string) string {
	if color == "" {
		return s
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(s)
}

func stamp(ms int64) string {
	if ms == 0 {
		return "     "
	}
	return time.UnixMilli(ms).Format("15:04")
}
