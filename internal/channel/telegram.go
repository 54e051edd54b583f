package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"agribot/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
)

// Telegram implements domain.Channel for a Telegram bot. Photo messages are
// published as image requests with the file ID as the image reference.
type Telegram struct {
	token     string
	allowFrom []int64 // Allowed user IDs (empty = allow all)
	parseMode string

	bot    *tgbotapi.BotAPI
	bus    domain.RequestBus
	logger *slog.Logger

	// per-chat context set through /location and /crop
	profileMu sync.Mutex
	profiles  map[int64]*chatProfile
}

type chatProfile struct {
	Location string
	Crop     string
	Language string
}

type TelegramConfig struct {
	Token     string
	AllowFrom []string // User IDs as strings
	ParseMode string
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if cfg.ParseMode == "" {
		cfg.ParseMode = "Markdown"
	}
	return &Telegram{
		token:     cfg.Token,
		allowFrom: allowed,
		parseMode: cfg.ParseMode,
		logger:    cfg.Logger,
		profiles:  make(map[int64]*chatProfile),
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and begins polling for updates.
func (t *Telegram) Start(ctx context.Context, bus domain.RequestBus) error {
	t.bus = bus

	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	bus.OnOutbound("telegram", func(ans domain.OutboundAnswer) {
		chatID, err := strconv.ParseInt(ans.ChatID, 10, 64)
		if err != nil {
			t.logger.Error("invalid chat ID for telegram outbound", "chatID", ans.ChatID, "err", err)
			return
		}
		t.sendMessage(chatID, ans.Text)
	})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

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
			t.handleUpdate(update)
		}
	}
}

// Stop is a no-op: the bot stops when Start's context is cancelled, and
// calling StopReceivingUpdates twice panics.
func (t *Telegram) Stop() error { return nil }

func (t *Telegram) handleUpdate(update tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return
	}

	msg := update.Message
	userID := msg.From.ID
	chatID := msg.Chat.ID

	if !t.isAllowed(userID) {
		t.logger.Warn("unauthorized telegram user",
			"user_id", userID,
			"username", msg.From.UserName,
		)
		t.sendMessage(chatID, "Unauthorized. Your user ID is not in the allow list.")
		return
	}

	if msg.IsCommand() {
		t.handleCommand(chatID, msg)
		return
	}

	text := strings.TrimSpace(msg.Text)
	modality := domain.ModalityText
	imageRef := ""

	if len(msg.Photo) > 0 {
		// Last photo size is the largest.
		imageRef = msg.Photo[len(msg.Photo)-1].FileID
		text = strings.TrimSpace(msg.Caption)
		if text == "" {
			modality = domain.ModalityImage
		} else {
			modality = domain.ModalityTextImage
		}
	}
	if text == "" && imageRef == "" {
		return
	}

	t.logger.Info("telegram request received",
		"user_id", userID,
		"chat_id", chatID,
		"modality", modality,
	)

	typing := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	_, _ = t.bot.Send(typing)

	profile := t.profile(chatID)
	t.bus.Publish(domain.InboundRequest{
		Channel:  "telegram",
		ChatID:   strconv.FormatInt(chatID, 10),
		SenderID: strconv.FormatInt(userID, 10),
		Text:     text,
		Modality: modality,
		Language: profile.Language,
		ImageRef: imageRef,
		Location: profile.Location,
		Crop:     profile.Crop,
	})
}

func (t *Telegram) handleCommand(chatID int64, msg *tgbotapi.Message) {
	arg := strings.TrimSpace(msg.CommandArguments())
	switch msg.Command() {
	case "start":
		t.sendMessage(chatID, "Hello! I help farmers with weather, crop prices, pest problems and government schemes.\n\nSend a question, or a photo of a diseased plant.\n\nCommands:\n/location <place> - set your location\n/crop <crop> - set your main crop\n/lang en|hi - answer language\n/help - this message")
	case "help":
		t.sendMessage(chatID, "Ask me things like:\n• \"Will it rain this week?\"\n• \"Tomato price in Pune\"\n• \"Which loan can I get for seeds?\"\n• Send a photo of a sick plant for diagnosis.\n\n/location, /crop and /lang set your profile for better answers.")
	case "location":
		t.profile(chatID).Location = arg
		t.sendMessage(chatID, fmt.Sprintf("Location set to %q.", arg))
	case "crop":
		t.profile(chatID).Crop = arg
		t.sendMessage(chatID, fmt.Sprintf("Crop set to %q.", arg))
	case "lang":
		if arg == "en" || arg == "hi" {
			t.profile(chatID).Language = arg
			t.sendMessage(chatID, fmt.Sprintf("Language set to %q.", arg))
		} else {
			t.sendMessage(chatID, "Supported languages: en, hi.")
		}
	case "status":
		t.sendMessage(chatID, fmt.Sprintf("AgriBot online.\nBot: @%s\nYour ID: %d", t.bot.Self.UserName, msg.From.ID))
	default:
		t.sendMessage(chatID, "Unknown command. Type /help for available commands.")
	}
}

func (t *Telegram) profile(chatID int64) *chatProfile {
	t.profileMu.Lock()
	defer t.profileMu.Unlock()
	p, ok := t.profiles[chatID]
	if !ok {
		p = &chatProfile{Language: "en"}
		t.profiles[chatID] = p
	}
	return p
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true // Empty list = allow all
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

func (t *Telegram) sendMessage(chatID int64, text string) {
	// Telegram has a 4096 char limit per message
	const maxLen = telegramMaxMsgLen
	for len(text) > 0 {
		chunk := text
		if len(chunk) > maxLen {
			cutAt := strings.LastIndex(chunk[:maxLen], "\n")
			if cutAt < maxLen/2 {
				cutAt = maxLen
			}
			chunk = text[:cutAt]
			text = text[cutAt:]
		} else {
			text = ""
		}

		t.sendChunk(chatID, chunk)
	}
}

// sendChunk sends a single message chunk with retry and rate limit handling.
// Strategy: try the configured parse mode first, fall back to plain text on
// parse errors, back off on 429.
func (t *Telegram) sendChunk(chatID int64, text string) {
	const maxRetries = telegramMaxSendRetries

	for attempt := 0; attempt <= maxRetries; attempt++ {
		msg := tgbotapi.NewMessage(chatID, text)
		if attempt == 0 && t.parseMode != "" {
			msg.ParseMode = t.parseMode
		}

		_, err := t.bot.Send(msg)
		if err == nil {
			return
		}

		errStr := err.Error()

		if strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429") {
			retryAfter := time.Duration(attempt+1) * 3 * time.Second
			t.logger.Warn("telegram rate limited, backing off",
				"retry_after", retryAfter, "attempt", attempt+1,
			)
			time.Sleep(retryAfter)
			continue
		}

		if attempt == 0 && msg.ParseMode != "" &&
			strings.Contains(errStr, "can't parse entities") {
			t.logger.Warn("telegram markdown parse error, retrying as plain text",
				"err", err, "parseMode", t.parseMode,
			)
			plainMsg := tgbotapi.NewMessage(chatID, text)
			if _, err2 := t.bot.Send(plainMsg); err2 == nil {
				return
			}
		}

		if attempt < maxRetries {
			backoff := time.Duration(attempt+1) * time.Second
			t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
			time.Sleep(backoff)
			continue
		}

		t.logger.Error("telegram send failed after retries", "err", err, "attempts", maxRetries+1)
	}
}
