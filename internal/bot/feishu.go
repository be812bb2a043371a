package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/keepmind9/pandabot/internal/logger"
	"github.com/keepmind9/pandabot/pkg/constants"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/larksuite/oapi-sdk-go/v3/ws"
	"github.com/sirupsen/logrus"
)

// FeishuBot implements BotAdapter interface for Feishu (Lark) using WebSocket long connection
type FeishuBot struct {
	mu                sync.RWMutex
	appID             string
	appSecret         string
	EncryptKey        string // Optional, for encrypted events
	VerificationToken string // Optional, for event verification
	larkClient        *lark.Client
	wsClient          *ws.Client
	messageHandler    func(BotMessage)
	ctx               context.Context
	cancel            context.CancelFunc
}

// NewFeishuBot creates a new Feishu bot instance
func NewFeishuBot(appID, appSecret string) *FeishuBot {
	return &FeishuBot{
		appID:     appID,
		appSecret: appSecret,
	}
}

// Start establishes WebSocket long connection to Feishu and begins listening for messages
func (f *FeishuBot) Start(messageHandler func(BotMessage)) error {
	f.SetMessageHandler(messageHandler)
	f.ctx, f.cancel = context.WithCancel(context.Background())

	logger.WithFields(logrus.Fields{
		"app_id": maskSecret(f.appID),
	}).Info("starting-feishu-bot-with-websocket-long-connection")

	eventDispatcher := dispatcher.NewEventDispatcher(f.VerificationToken, f.EncryptKey)
	eventDispatcher.OnP2MessageReceiveV1(func(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
		return f.handleMessageReceive(ctx, event)
	})

	wsClient := ws.NewClient(f.appID, f.appSecret,
		ws.WithEventHandler(eventDispatcher),
		ws.WithLogLevel(larkcore.LogLevelInfo),
		ws.WithAutoReconnect(true),
	)

	f.mu.Lock()
	f.larkClient = lark.NewClient(f.appID, f.appSecret)
	f.wsClient = wsClient
	f.mu.Unlock()

	ctx := f.ctx
	go func() {
		if err := wsClient.Start(ctx); err != nil {
			logger.WithFields(logrus.Fields{
				"app_id": maskSecret(f.appID),
				"error":  err,
			}).Error("feishu-websocket-connection-failed")
		}
	}()

	time.Sleep(constants.ConnectionSettleDelay)
	return nil
}

// handleMessageReceive handles incoming message events from Feishu
func (f *FeishuBot) handleMessageReceive(_ context.Context, event *larkim.P2MessageReceiveV1) error {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		return nil
	}
	ev := event.Event

	var messageID, chatID, chatType, messageType, senderID, content string
	if ev.Message.MessageId != nil {
		messageID = *ev.Message.MessageId
	}
	if ev.Message.ChatId != nil {
		chatID = *ev.Message.ChatId
	}
	if ev.Message.ChatType != nil {
		chatType = *ev.Message.ChatType
	}
	if ev.Message.MessageType != nil {
		messageType = *ev.Message.MessageType
	}
	if ev.Message.Content != nil {
		content = extractTextContent(*ev.Message.Content)
	}
	if ev.Sender != nil && ev.Sender.SenderId != nil && ev.Sender.SenderId.UserId != nil {
		senderID = *ev.Sender.SenderId.UserId
	}

	logger.WithFields(logrus.Fields{
		"platform":     "feishu",
		"user_id":      senderID,
		"chat_id":      chatID,
		"chat_type":    chatType,
		"message_id":   messageID,
		"message_type": messageType,
	}).Debug("received-feishu-message")

	if messageType != "" && messageType != larkim.MsgTypeText {
		return nil
	}

	handler := f.GetMessageHandler()
	if handler == nil {
		return nil
	}

	guildID := ""
	if chatType == "group" {
		guildID = chatID
	}

	handler(BotMessage{
		Platform:  "feishu",
		MessageID: messageID,
		UserID:    senderID,
		Channel:   chatID,
		GuildID:   guildID,
		Content:   content,
		Timestamp: time.Now(),
	})
	return nil
}

// SendMessage sends a message to a Feishu chat
func (f *FeishuBot) SendMessage(chatID, message string) error {
	f.mu.RLock()
	client := f.larkClient
	ctx := f.ctx
	f.mu.RUnlock()

	if client == nil {
		return fmt.Errorf("feishu client %w", ErrNotInitialized)
	}
	if chatID == "" {
		return fmt.Errorf("chat ID is required for Feishu")
	}

	contentJSON, err := textContent(truncate(message, constants.MaxFeishuMessageLength))
	if err != nil {
		return err
	}

	body := larkim.NewCreateMessageReqBodyBuilder().
		ReceiveId(chatID).
		MsgType(larkim.MsgTypeText).
		Content(contentJSON).
		Build()

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(body).
		Build()

	resp, err := client.Im.Message.Create(ctx, req)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"chat_id": chatID,
			"error":   err,
		}).Error("failed-to-send-message-to-feishu")
		return fmt.Errorf("failed to send message to chat %s: %w", chatID, err)
	}
	if !resp.Success() {
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}
	return nil
}

// Reply posts into the chat msg came from
func (f *FeishuBot) Reply(msg BotMessage, message string) error {
	return f.SendMessage(msg.Channel, message)
}

// SendEmbed sends the embed flattened to text
func (f *FeishuBot) SendEmbed(chatID string, embed Embed) error {
	return f.SendMessage(chatID, flattenEmbed(embed))
}

// Stop cancels the long connection context
func (f *FeishuBot) Stop() error {
	if f.cancel != nil {
		f.cancel()
	}

	f.mu.Lock()
	f.wsClient = nil
	f.larkClient = nil
	f.mu.Unlock()

	logger.Info("feishu-bot-stopped")
	return nil
}

// SetMessageHandler sets the message handler in a thread-safe manner
func (f *FeishuBot) SetMessageHandler(handler func(BotMessage)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messageHandler = handler
}

// GetMessageHandler gets the message handler in a thread-safe manner
func (f *FeishuBot) GetMessageHandler() func(BotMessage) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.messageHandler
}

type feishuText struct {
	Text string `json:"text"`
}

// extractTextContent pulls the text out of a Feishu text payload: {"text":"..."}
func extractTextContent(content string) string {
	var payload feishuText
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return content
	}
	return payload.Text
}

func textContent(message string) (string, error) {
	data, err := json.Marshal(feishuText{Text: message})
	if err != nil {
		return "", fmt.Errorf("failed to encode feishu text: %w", err)
	}
	return string(data), nil
}
