package telegram

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mtzanidakis/swarmchat/internal/events"
)

var boldRe = regexp.MustCompile(`\*\*(.+?)\*\*`)

// toTelegramMarkdown rewrites CommonMark bold into Telegram's legacy Markdown.
func toTelegramMarkdown(s string) string {
	return boldRe.ReplaceAllString(s, "*$1*")
}

// parseCommand splits an AI request from plain chat. It reports the prompt,
// the lower-cased target agent (empty for any agent) and whether text was an
// AI request at all.
func parseCommand(text string) (prompt, target string, ok bool) {
	text = strings.TrimSpace(text)
	switch {
	case text == "/ai" || strings.HasPrefix(text, "/ai ") || strings.HasPrefix(text, "/ai@"):
		rest := strings.TrimPrefix(text, "/ai")
		// drop a "@botname" suffix on the command
		if strings.HasPrefix(rest, "@") {
			if i := strings.IndexByte(rest, ' '); i >= 0 {
				rest = rest[i:]
			} else {
				rest = ""
			}
		}
		return strings.TrimSpace(rest), "", true
	case strings.HasPrefix(text, "@") && len(text) > 1:
		name, rest, _ := strings.Cut(text[1:], " ")
		if name == "" {
			return "", "", false
		}
		return strings.TrimSpace(rest), strings.ToLower(name), true
	}
	return "", "", false
}

func formatLine(line events.ChatLine) string {
	return fmt.Sprintf("%s: %s", line.Username, line.Text)
}

func formatResponse(resp events.AIResponsePayload) string {
	return fmt.Sprintf("**%s**\n%s", resp.Username, resp.Message)
}

// formatEvent renders an event sent to a single participant.
func formatEvent(ev events.Event) string {
	switch p := ev.Payload.(type) {
	case events.ChatLine:
		if ev.Type == events.SystemMessage {
			return p.Text
		}
		return formatLine(p)
	case events.ErrorPayload:
		return p.Message
	case events.QueuedPayload:
		return fmt.Sprintf("All agents are busy. You are number %d in the queue.", p.Position)
	case events.QueueUpdatePayload:
		return fmt.Sprintf("Queue: %d waiting, %d agents available, %d active chats.", p.QueueLength, p.AvailableAgents, p.ActiveChats)
	case events.AIResponsePayload:
		return formatResponse(p)
	}
	return ""
}
