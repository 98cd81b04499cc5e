package main

import (
	"strings"

	"github.com/mtzanidakis/swarmchat/internal/events"
)

type inputKind int

const (
	inputNone inputKind = iota
	inputChat
	inputAsk
	inputQueue
	inputHelp
	inputQuit
)

type parsedInput struct {
	kind   inputKind
	text   string
	target string
}

// parseInput maps a typed line to an action. "@name text" asks a specific
// agent, "/ai text" asks whoever is free.
func parseInput(line string) parsedInput {
	line = strings.TrimSpace(line)
	if line == "" {
		return parsedInput{kind: inputNone}
	}

	if strings.HasPrefix(line, "@") {
		name, rest, _ := strings.Cut(line[1:], " ")
		rest = strings.TrimSpace(rest)
		if name == "" || rest == "" {
			return parsedInput{kind: inputHelp}
		}
		return parsedInput{kind: inputAsk, text: rest, target: strings.ToLower(name)}
	}

	if !strings.HasPrefix(line, "/") {
		return parsedInput{kind: inputChat, text: line}
	}

	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch strings.ToLower(cmd) {
	case "/ai":
		if rest == "" {
			return parsedInput{kind: inputHelp}
		}
		return parsedInput{kind: inputAsk, text: rest}
	case "/queue":
		return parsedInput{kind: inputQueue}
	case "/quit", "/exit":
		return parsedInput{kind: inputQuit}
	case "/help":
		return parsedInput{kind: inputHelp}
	}
	return parsedInput{kind: inputChat, text: line}
}

// toEvent builds the outbound event for in. It returns false for inputs that
// never reach the server. Asks and queue queries carry no userId: the gateway
// keys them by connection.
func (in parsedInput) toEvent(username, color string) (events.Event, bool) {
	switch in.kind {
	case inputChat:
		return events.Event{Type: events.UserMessage, Payload: events.UserMessagePayload{
			Text:     in.text,
			Username: username,
			Color:    color,
		}}, true
	case inputAsk:
		return events.Event{Type: events.AIMessage, Payload: events.AIMessagePayload{
			Text:        in.text,
			TargetAgent: in.target,
		}}, true
	case inputQueue:
		return events.Event{Type: events.QueueQuery, Payload: events.QueueQueryPayload{}}, true
	}
	return events.Event{}, false
}

const helpText = "message: chat · @agent text: ask an agent · /ai text: ask anyone · /queue · /quit"
