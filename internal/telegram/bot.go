package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/mtzanidakis/swarmchat/internal/config"
	"github.com/mtzanidakis/swarmchat/internal/events"
	"github.com/mtzanidakis/swarmchat/internal/gateway"
	"github.com/mtzanidakis/swarmchat/internal/natsbus"
	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	"github.com/nats-io/nats.go"
)

// Room is the chat room Telegram users take part in. *gateway.Gateway
// satisfies it.
type Room interface {
	Join(conn gateway.Conn, p events.JoinPayload) error
	Post(conn gateway.Conn, p events.UserMessagePayload) error
	AskAI(ctx context.Context, conn gateway.Conn, p events.AIMessagePayload) error
}

// Sender delivers text to a Telegram chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

type Bot struct {
	bot     *telego.Bot
	handler *th.BotHandler
	bridge  *Bridge
	bus     *natsbus.Bus
	cancel  context.CancelFunc
}

func NewBot(cfg config.TelegramConfig, room Room, bus *natsbus.Bus) (*Bot, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	b := &Bot{bot: bot, bus: bus}
	b.bridge = NewBridge(cfg, room, b)
	return b, nil
}

func (b *Bot) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	if b.bus != nil {
		client, err := natsbus.NewClient(b.bus)
		if err != nil {
			cancel()
			return fmt.Errorf("telegram nats client: %w", err)
		}
		defer client.Close()
		_, err = client.Subscribe(natsbus.TopicEventsAll, func(msg *nats.Msg) {
			var env events.Envelope
			if err := json.Unmarshal(msg.Data, &env); err != nil {
				slog.Warn("invalid NATS event payload", "error", err)
				return
			}
			b.bridge.Mirror(ctx, env)
		})
		if err != nil {
			cancel()
			return fmt.Errorf("subscribe events: %w", err)
		}
	}

	updates, err := b.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	handler, err := th.NewBotHandler(b.bot, updates)
	if err != nil {
		cancel()
		return fmt.Errorf("create handler: %w", err)
	}
	b.handler = handler

	handler.HandleMessage(func(hctx *th.Context, message telego.Message) error {
		if message.From == nil {
			return nil
		}
		text := message.Text
		if text == "" {
			text = message.Caption
		}
		if text == "" {
			return nil
		}
		_ = b.sendChatAction(ctx, message.Chat.ID, "typing")
		b.bridge.HandleText(ctx, message.Chat.ID, message.From.ID, displayName(message.From), text)
		return nil
	})

	go handler.Start()

	<-ctx.Done()
	_ = handler.Stop()
	return nil
}

func (b *Bot) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	if b.handler != nil {
		_ = b.handler.Stop()
	}
}

func displayName(u *telego.User) string {
	if u.Username != "" {
		return u.Username
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = "telegram-" + strconv.FormatInt(u.ID, 10)
	}
	return name
}

// nameSuffix marks room participants that write from Telegram.
const nameSuffix = " (telegram)"

// Bridge maps Telegram users onto chat participants and mirrors the room back
// to the main chat.
type Bridge struct {
	cfg    config.TelegramConfig
	room   Room
	sender Sender

	mu     sync.Mutex
	joined map[int64]bool
}

func NewBridge(cfg config.TelegramConfig, room Room, sender Sender) *Bridge {
	return &Bridge{
		cfg:    cfg,
		room:   room,
		sender: sender,
		joined: make(map[int64]bool),
	}
}

// HandleText routes one Telegram message: "/ai <text>" asks any agent,
// "@<agent> <text>" asks a named agent, anything else is plain chat.
func (br *Bridge) HandleText(ctx context.Context, chatID, userID int64, username, text string) {
	if len(br.cfg.AllowFrom) > 0 && !slices.Contains(br.cfg.AllowFrom, userID) {
		slog.Warn("unauthorized telegram user", "user_id", userID, "chat_id", chatID)
		return
	}

	conn := &participant{userID: userID, chatID: chatID, sender: br.sender}
	username += nameSuffix

	br.mu.Lock()
	first := !br.joined[userID]
	br.joined[userID] = true
	br.mu.Unlock()
	if first {
		if err := br.room.Join(conn, events.JoinPayload{Username: username}); err != nil {
			slog.Error("telegram join failed", "user_id", userID, "error", err)
		}
	}

	prompt, target, isAI := parseCommand(text)
	if isAI {
		if prompt == "" {
			_ = conn.Send(events.Error("Usage: /ai <message> or @<agent> <message>"))
			return
		}
		err := br.room.AskAI(ctx, conn, events.AIMessagePayload{Text: prompt, UserID: conn.ID(), TargetAgent: target})
		if err != nil {
			slog.Error("telegram ai request failed", "user_id", userID, "error", err)
		}
		return
	}

	if err := br.room.Post(conn, events.UserMessagePayload{Text: text, Username: username}); err != nil {
		slog.Error("telegram post failed", "user_id", userID, "error", err)
	}
}

// Mirror forwards room events to the main chat. Chat lines that came from
// Telegram are not echoed back.
func (br *Bridge) Mirror(ctx context.Context, env events.Envelope) {
	if br.cfg.MainChatID == 0 {
		return
	}

	var text string
	switch env.Type {
	case events.ChatMessage:
		var line events.ChatLine
		if err := env.Decode(&line); err != nil {
			return
		}
		if strings.HasSuffix(line.Username, nameSuffix) {
			return
		}
		text = formatLine(line)
	case events.SystemMessage:
		var line events.ChatLine
		if err := env.Decode(&line); err != nil {
			return
		}
		text = line.Text
	case events.AIResponse:
		var resp events.AIResponsePayload
		if err := env.Decode(&resp); err != nil {
			return
		}
		text = formatResponse(resp)
	default:
		return
	}

	if err := br.sender.SendMessage(ctx, br.cfg.MainChatID, text); err != nil {
		slog.Error("failed to mirror to telegram", "chat", br.cfg.MainChatID, "error", err)
	}
}

// participant is a Telegram user seen as a chat connection. Unicast events go
// to the chat the user last wrote from.
type participant struct {
	userID int64
	chatID int64
	sender Sender
}

func (p *participant) ID() string {
	return "telegram-" + strconv.FormatInt(p.userID, 10)
}

func (p *participant) Send(ev events.Event) error {
	text := formatEvent(ev)
	if text == "" {
		return nil
	}
	return p.sender.SendMessage(context.Background(), p.chatID, text)
}
