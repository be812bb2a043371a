package bot

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/keepmind9/pandabot/internal/logger"
	"github.com/keepmind9/pandabot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// TelegramBot implements BotAdapter interface for Telegram using long polling
type TelegramBot struct {
	mu             sync.RWMutex
	token          string
	bot            *tgbotapi.BotAPI
	messageHandler func(BotMessage)
	ctx            context.Context
	cancel         context.CancelFunc
}

// NewTelegramBot creates a new Telegram bot instance
func NewTelegramBot(token string) *TelegramBot {
	return &TelegramBot{
		token: token,
	}
}

// Start establishes long polling connection to Telegram and begins listening for messages
func (t *TelegramBot) Start(messageHandler func(BotMessage)) error {
	t.SetMessageHandler(messageHandler)
	t.ctx, t.cancel = context.WithCancel(context.Background())

	logger.WithFields(logrus.Fields{
		"token": maskSecret(t.token),
	}).Info("starting-telegram-bot-with-long-polling")

	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}

	t.mu.Lock()
	t.bot = bot
	t.mu.Unlock()

	logger.WithFields(logrus.Fields{
		"bot_username": bot.Self.UserName,
		"bot_id":       bot.Self.ID,
	}).Info("telegram-bot-initialized-successfully")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(constants.DefaultPollTimeout.Seconds())
	updates := bot.GetUpdatesChan(u)

	selfID := strconv.FormatInt(bot.Self.ID, 10)
	go func() {
		for {
			select {
			case <-t.ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					logger.Info("telegram-updates-channel-closed")
					return
				}
				if update.Message != nil {
					t.handleMessage(update.Message, selfID)
				}
			}
		}
	}()

	return nil
}

// handleMessage handles incoming message events from Telegram
func (t *TelegramBot) handleMessage(message *tgbotapi.Message, selfID string) {
	if message == nil || message.Text == "" {
		return
	}
	if message.From != nil && message.From.IsBot {
		return
	}

	var userID, userName, chatID, chatType string
	if message.From != nil {
		userID = strconv.FormatInt(message.From.ID, 10)
		userName = message.From.UserName
	}
	if message.Chat != nil {
		chatID = strconv.FormatInt(message.Chat.ID, 10)
		chatType = message.Chat.Type
	}

	logger.WithFields(logrus.Fields{
		"platform":   "telegram",
		"user_id":    userID,
		"username":   userName,
		"chat_id":    chatID,
		"chat_type":  chatType,
		"message_id": message.MessageID,
	}).Debug("received-telegram-message")

	handler := t.GetMessageHandler()
	if handler == nil {
		return
	}

	// Group chats stand in for guilds so role and permission gates apply there
	guildID := ""
	if chatType == "group" || chatType == "supergroup" {
		guildID = chatID
	}

	handler(BotMessage{
		Platform:  "telegram",
		MessageID: strconv.Itoa(message.MessageID),
		UserID:    userID,
		Username:  userName,
		Channel:   chatID,
		GuildID:   guildID,
		SelfID:    selfID,
		Content:   message.Text,
		Timestamp: time.Now(),
	})
}

func (t *TelegramBot) api() (*tgbotapi.BotAPI, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.bot == nil {
		return nil, fmt.Errorf("telegram bot %w", ErrNotInitialized)
	}
	return t.bot, nil
}

// SendMessage sends a message to a Telegram chat
func (t *TelegramBot) SendMessage(chatID, message string) error {
	return t.send(chatID, message, 0)
}

// Reply answers msg in its chat, quoting the original message
func (t *TelegramBot) Reply(msg BotMessage, message string) error {
	replyTo, _ := strconv.Atoi(msg.MessageID)
	return t.send(msg.Channel, message, replyTo)
}

// SendEmbed sends the embed flattened to Markdown text
func (t *TelegramBot) SendEmbed(chatID string, embed Embed) error {
	return t.send(chatID, flattenEmbed(embed), 0)
}

func (t *TelegramBot) send(chatID, message string, replyTo int) error {
	bot, err := t.api()
	if err != nil {
		return err
	}
	if chatID == "" {
		return fmt.Errorf("chat ID is required for Telegram")
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID format: %w", err)
	}

	msg := tgbotapi.NewMessage(chatIDInt, truncate(message, constants.MaxTelegramMessageLength))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyToMessageID = replyTo

	if _, err := bot.Send(msg); err != nil {
		logger.WithFields(logrus.Fields{
			"chat_id": chatID,
			"error":   err,
		}).Error("failed-to-send-message-to-telegram")
		return fmt.Errorf("failed to send message to chat %s: %w", chatID, err)
	}
	return nil
}

// UserPermissions maps chat administrators and creators to PermissionAdministrator
func (t *TelegramBot) UserPermissions(msg BotMessage) (int64, error) {
	bot, err := t.api()
	if err != nil {
		return 0, err
	}

	chatID, err := strconv.ParseInt(msg.Channel, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat ID format: %w", err)
	}
	userID, err := strconv.ParseInt(msg.UserID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user ID format: %w", err)
	}

	member, err := bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: chatID,
			UserID: userID,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch chat member %s: %w", msg.UserID, err)
	}

	if member.IsCreator() || member.IsAdministrator() {
		return PermissionAdministrator, nil
	}
	return 0, nil
}

// Stop closes the Telegram long polling connection and cleans up resources
func (t *TelegramBot) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}

	t.mu.Lock()
	bot := t.bot
	t.bot = nil
	t.mu.Unlock()

	if bot != nil {
		bot.StopReceivingUpdates()
		logger.Info("telegram-long-polling-stopped")
	}
	return nil
}

// SetMessageHandler sets the message handler in a thread-safe manner
func (t *TelegramBot) SetMessageHandler(handler func(BotMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

// GetMessageHandler gets the message handler in a thread-safe manner
func (t *TelegramBot) GetMessageHandler() func(BotMessage) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.messageHandler
}
