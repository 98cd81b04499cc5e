package telegram

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// maxMessageLen is Telegram's limit for one text message.
const maxMessageLen = 4096

// SendMessage sends text as Markdown, retrying a chunk as plain text when
// Telegram rejects the markup.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range chunkMessage(text, maxMessageLen) {
		msg := tu.Message(tu.ID(chatID), toTelegramMarkdown(chunk)).WithParseMode(telego.ModeMarkdown)
		if _, err := b.bot.SendMessage(ctx, msg); err == nil {
			continue
		}
		if _, err := b.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), chunk)); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

func (b *Bot) sendChatAction(ctx context.Context, chatID int64, action string) error {
	return b.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(chatID), action))
}

// chunkMessage splits text into pieces of at most maxLen bytes. A cut prefers
// the last line break, then the last space, in the second half of the window,
// and never splits a UTF-8 sequence.
func chunkMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > maxLen {
		cut := cutPoint(text, maxLen)
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// cutPoint expects len(text) > maxLen.
func cutPoint(text string, maxLen int) int {
	window := text[:maxLen]
	half := maxLen / 2
	if i := strings.LastIndexByte(window, '\n'); i > half {
		return i + 1
	}
	if i := strings.LastIndexByte(window, ' '); i > half {
		return i + 1
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if cut == 0 {
		return maxLen
	}
	return cut
}
