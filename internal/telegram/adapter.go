// Package telegram is a chat front end that routes Telegram messages through
// the conversation gateway.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/tickerchat/internal/conversation"
	"github.com/user/tickerchat/internal/gateway"
	"github.com/user/tickerchat/internal/models"
	"github.com/user/tickerchat/internal/quota"
	"github.com/user/tickerchat/internal/types"
)

const (
	maxTelegramMessage = 4096
	maxDocumentSize    = 20 << 20
)

// Adapter bridges Telegram to the gateway.
type Adapter struct {
	bot         *tgbotapi.BotAPI
	gateway     *gateway.Gateway
	gate        *quota.Gate
	registry    *models.Registry
	subscribers map[int64]bool
	client      *http.Client
}

// New creates a Telegram adapter. Users listed in subscribers are treated as
// premium subscribers.
func New(token string, gw *gateway.Gateway, gate *quota.Gate, registry *models.Registry, subscribers []int64) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	subs := make(map[int64]bool, len(subscribers))
	for _, id := range subscribers {
		subs[id] = true
	}
	return &Adapter{
		bot:         bot,
		gateway:     gw,
		gate:        gate,
		registry:    registry,
		subscribers: subs,
		client:      &http.Client{},
	}, nil
}

// Start begins long-polling for Telegram updates. Each message is handled on
// its own goroutine; the gateway serialises turns per chat.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if !handleable(update.Message) {
				continue
			}
			go a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

// handleable reports whether msg has a sender and something to submit.
// Channel posts carry no sender and are skipped.
func handleable(msg *tgbotapi.Message) bool {
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return false
	}
	return msg.Text != "" || msg.Document != nil
}

func (a *Adapter) user(msg *tgbotapi.Message) types.User {
	return types.User{
		ID:            types.UserID(strconv.FormatInt(msg.From.ID, 10)),
		Authenticated: true,
		Subscriber:    a.subscribers[msg.From.ID],
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		a.handleCommand(ctx, msg)
		return
	}

	chatID := msg.Chat.ID
	sub := conversation.Submission{Text: msg.Text}
	if msg.Document != nil {
		sub.Text = msg.Caption
		att, err := a.download(ctx, msg.Document)
		if err != nil {
			slog.Warn("download document failed", "chat_id", chatID, "error", err)
			a.sendResponse(chatID, "Sorry, I couldn't download that file.")
			return
		}
		sub.Attachment = att
	}

	if _, err := a.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		slog.Debug("send chat action failed", "error", err)
	}

	out, err := a.gateway.Submit(ctx, buildConversationKey(msg.From.ID, chatID), a.user(msg), sub)
	switch {
	case errors.Is(err, conversation.ErrTurnInProgress):
		a.sendResponse(chatID, "Still working on your previous question.")
		return
	case errors.Is(err, conversation.ErrEmptySubmission):
		return
	case err != nil:
		slog.Error("submit failed", "chat_id", chatID, "error", err)
		a.sendResponse(chatID, conversation.Apology)
		return
	}
	if out.Disposed {
		return
	}
	a.sendResponse(chatID, replyFor(out, a.gate.Limit()))
}

// download fetches a document through the Bot API file endpoint.
func (a *Adapter) download(ctx context.Context, doc *tgbotapi.Document) (*types.Attachment, error) {
	if doc.FileSize > maxDocumentSize {
		return nil, fmt.Errorf("document too large: %d bytes", doc.FileSize)
	}
	url, err := a.bot.GetFileDirectURL(doc.FileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return &types.Attachment{Name: doc.FileName, ContentType: doc.MimeType, Data: data}, nil
}

func (a *Adapter) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	key := buildConversationKey(msg.From.ID, chatID)
	user := a.user(msg)

	switch msg.Command() {
	case "start":
		a.sendResponse(chatID, "Hi! Ask me anything about a stock, e.g. \"What is AAPL's P/E?\". You can also send a filing or report as a document.")

	case "new":
		a.gateway.Reset(key)
		a.sendResponse(chatID, "Started a new conversation.")

	case "models":
		orch, err := a.gateway.Orchestrator(key)
		if err != nil {
			a.sendResponse(chatID, conversation.Apology)
			return
		}
		a.sendResponse(chatID, formatModels(a.registry.All(), orch.Model().Key))

	case "model":
		orch, err := a.gateway.Orchestrator(key)
		if err != nil {
			a.sendResponse(chatID, conversation.Apology)
			return
		}
		m, err := orch.SelectModel(ctx, user, strings.TrimSpace(msg.CommandArguments()))
		switch {
		case errors.Is(err, models.ErrUpgradeRequired):
			a.sendResponse(chatID, "That model is for subscribers. Upgrade to use premium models.")
		case err != nil:
			a.sendResponse(chatID, "Unknown model. Use /models to see the options.")
		default:
			a.sendResponse(chatID, fmt.Sprintf("Now using %s.", m.Name))
		}

	case "quota":
		if user.Subscriber {
			a.sendResponse(chatID, "You're a subscriber: no daily limit.")
			return
		}
		left, resetAt, err := a.gate.Remaining(ctx, user.ID)
		if err != nil {
			slog.Warn("read quota failed", "user_id", user.ID, "error", err)
			a.sendResponse(chatID, "Error fetching quota.")
			return
		}
		a.sendResponse(chatID, fmt.Sprintf("%d of %d questions left today. Resets %s.", left, a.gate.Limit(), resetAt.Format("Jan 2 15:04 MST")))

	default:
		a.sendResponse(chatID, "Unknown command. Available: /start, /new, /models, /model <key>, /quota")
	}
}

func (a *Adapter) sendResponse(chatID int64, text string) {
	parts := splitMessage(text)
	for _, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = "Markdown"
		if _, err := a.bot.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := a.bot.Send(msg); err != nil {
				slog.Error("send message failed", "chat_id", chatID, "error", err)
			}
		}
	}
}

// replyFor renders a finished turn as a chat reply.
func replyFor(out *conversation.Outcome, limit int) string {
	switch out.Rejected {
	case conversation.RejectUpgradeRequired:
		return fmt.Sprintf("You've used your %d free questions for today. Upgrade for unlimited questions.", limit)
	case conversation.RejectAuthRequired:
		return "Please sign in to ask questions."
	}

	msgs := out.Snapshot.Messages
	var answer []string
	for i := len(msgs) - 1; i >= 0 && msgs[i].Role == types.RoleAssistant; i-- {
		answer = append([]string{msgs[i].Content}, answer...)
	}
	if len(answer) == 0 {
		return conversation.Apology
	}
	return strings.Join(answer, "\n\n")
}

func formatModels(all []models.Model, current string) string {
	var b strings.Builder
	b.WriteString("Available models:\n")
	for _, m := range all {
		marker := "  "
		if m.Key == current {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%s (%s) [%s]\n", marker, m.Key, m.Name, m.Tier)
	}
	b.WriteString("Use /model <key> to switch.")
	return b.String()
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end > len(text) {
			end = len(text)
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}

func buildConversationKey(userID, chatID int64) types.ConversationKey {
	return types.NewConversationKey("telegram",
		strconv.FormatInt(userID, 10),
		strconv.FormatInt(chatID, 10),
	)
}
