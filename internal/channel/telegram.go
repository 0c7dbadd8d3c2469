package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"jarvis/internal/domain"
	"jarvis/internal/metrics"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
)

// botAPI is the part of *tgbotapi.BotAPI the channel sends through.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram accepts text intents from a Telegram bot chat.
type Telegram struct {
	token     string
	allowFrom []int64 // empty denies everyone

	responder *Responder
	limiter   *senderLimiter
	bot       botAPI
	username  string
	logger    *slog.Logger
	sleep     func(time.Duration)
}

type TelegramConfig struct {
	Token     string
	AllowFrom []string // user IDs as strings
	// Burst and RatePerMinute bound how many intents one user may send.
	Burst         int
	RatePerMinute int
	Responder     *Responder
	Logger        *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Telegram{
		token:     cfg.Token,
		allowFrom: allowed,
		responder: cfg.Responder,
		limiter:   newSenderLimiter(cfg.Burst, float64(cfg.RatePerMinute)),
		logger:    logger,
		sleep:     time.Sleep,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and handles updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.username = bot.Self.UserName
	t.logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)

	metrics.ActiveChannels.Inc()
	defer metrics.ActiveChannels.Dec()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}
	userID := msg.From.ID
	chatID := msg.Chat.ID

	if !t.isAllowed(userID) {
		t.logger.Warn("unauthorized telegram user", "user_id", userID, "username", msg.From.UserName)
		t.sendMessage(chatID, "Unauthorized. Your user ID is not in the allow list.")
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	if msg.IsCommand() {
		t.handleCommand(chatID, msg)
		return
	}

	if !t.limiter.Allow(strconv.FormatInt(userID, 10)) {
		t.logger.Warn("telegram user rate limited", "user_id", userID)
		t.sendMessage(chatID, "Slow down, I'm still working on your earlier requests.")
		return
	}

	t.logger.Info("telegram message received", "user_id", userID, "chat_id", chatID, "text_len", len(text))
	_, _ = t.bot.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))

	results, err := t.responder.Handle(ctx, t.Name(), text)
	if err != nil {
		t.sendMessage(chatID, ParseErrorMessage(err))
		return
	}
	if len(results) == 0 {
		return
	}
	t.sendMessage(chatID, renderPlain(results))
}

func (t *Telegram) handleCommand(chatID int64, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		t.sendMessage(chatID, "Hello! I'm Jarvis.\n\nSend me a command such as \"get_weather London\" and I'll run it.\n\n/help lists what I can do.")
	case "help":
		t.sendMessage(chatID, t.responder.Help())
	case "status":
		t.sendMessage(chatID, fmt.Sprintf("Jarvis is running.\n\nBot: @%s\nYour ID: %d\nChat ID: %d", t.username, msg.From.ID, chatID))
	default:
		t.sendMessage(chatID, "Unknown command. Type /help for available commands.")
	}
}

func (t *Telegram) isAllowed(userID int64) bool {
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

// renderPlain joins results one per line, marking the ones that failed.
func renderPlain(results []domain.Result) string {
	lines := make([]string, 0, len(results))
	for _, res := range results {
		if res.OK() {
			lines = append(lines, res.Message)
			continue
		}
		lines = append(lines, "⚠️ "+res.Message)
	}
	return strings.Join(lines, "\n\n")
}

// sendMessage splits text at Telegram's message size limit, preferring line
// breaks and never splitting a rune.
func (t *Telegram) sendMessage(chatID int64, text string) {
	const maxLen = telegramMaxMsgLen
	for len(text) > 0 {
		chunk := text
		if len(chunk) > maxLen {
			cutAt := strings.LastIndex(chunk[:maxLen], "\n")
			if cutAt < maxLen/2 {
				cutAt = maxLen
				for cutAt > 0 && !utf8.RuneStart(text[cutAt]) {
					cutAt--
				}
			}
			chunk = text[:cutAt]
			text = text[cutAt:]
		} else {
			text = ""
		}
		t.sendChunk(chatID, chunk)
	}
}

func (t *Telegram) sendChunk(chatID int64, text string) {
	const maxRetries = telegramMaxSendRetries

	for attempt := 0; attempt <= maxRetries; attempt++ {
		_, err := t.bot.Send(tgbotapi.NewMessage(chatID, text))
		if err == nil {
			return
		}
		if attempt == maxRetries {
			t.logger.Error("telegram send failed after retries", "err", err, "attempts", maxRetries+1)
			return
		}

		backoff := time.Duration(attempt+1) * time.Second
		if errStr := err.Error(); strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429") {
			backoff *= 3
			t.logger.Warn("telegram rate limited, backing off", "retry_after", backoff, "attempt", attempt+1)
		} else {
			t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
		}
		t.sleep(backoff)
	}
}
