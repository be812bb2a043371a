package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/keepmind9/pandabot/internal/logger"
	"github.com/keepmind9/pandabot/pkg/constants"
	"github.com/open-dingtalk/dingtalk-stream-sdk-go/chatbot"
	"github.com/open-dingtalk/dingtalk-stream-sdk-go/client"
	"github.com/sirupsen/logrus"
)

// dingTalkReplier is the part of chatbot.ChatbotReplier we use
type dingTalkReplier interface {
	SimpleReplyText(ctx context.Context, sessionWebhook string, content []byte) error
}

// DingTalkBot implements BotAdapter interface for DingTalk using WebSocket long connection.
// DingTalk only allows replies through the session webhook that came with the
// last message of a conversation, so those are remembered per conversation.
type DingTalkBot struct {
	mu             sync.RWMutex
	clientID       string
	clientSecret   string
	streamClient   *client.StreamClient
	replier        dingTalkReplier
	webhooks       map[string]string // conversation id -> session webhook
	admins         map[string]bool   // "conversation:staff" -> is admin
	messageHandler func(BotMessage)
	ctx            context.Context
	cancel         context.CancelFunc
}

// NewDingTalkBot creates a new DingTalk bot instance
func NewDingTalkBot(clientID, clientSecret string) *DingTalkBot {
	return &DingTalkBot{
		clientID:     clientID,
		clientSecret: clientSecret,
		replier:      chatbot.NewChatbotReplier(),
		webhooks:     make(map[string]string),
		admins:       make(map[string]bool),
		ctx:          context.Background(),
	}
}

// Start establishes WebSocket long connection to DingTalk and begins listening for messages
func (d *DingTalkBot) Start(messageHandler func(BotMessage)) error {
	d.SetMessageHandler(messageHandler)
	d.ctx, d.cancel = context.WithCancel(context.Background())

	logger.WithFields(logrus.Fields{
		"client_id": maskSecret(d.clientID),
	}).Info("starting-dingtalk-bot-with-websocket-long-connection")

	credential := client.NewAppCredentialConfig(d.clientID, d.clientSecret)
	streamClient := client.NewStreamClient(client.WithAppCredential(credential))
	streamClient.RegisterChatBotCallbackRouter(d.handleMessageReceive)

	d.mu.Lock()
	d.streamClient = streamClient
	d.mu.Unlock()

	ctx := d.ctx
	go func() {
		if err := streamClient.Start(ctx); err != nil {
			logger.WithFields(logrus.Fields{
				"client_id": maskSecret(d.clientID),
				"error":     err,
			}).Error("dingtalk-websocket-connection-failed")
		}
	}()

	time.Sleep(constants.ConnectionSettleDelay)
	return nil
}

// handleMessageReceive handles incoming message events from DingTalk
func (d *DingTalkBot) handleMessageReceive(_ context.Context, data *chatbot.BotCallbackDataModel) ([]byte, error) {
	if data == nil || data.Msgtype != "text" {
		return []byte(""), nil
	}

	d.mu.Lock()
	if data.SessionWebhook != "" {
		d.webhooks[data.ConversationId] = data.SessionWebhook
	}
	d.admins[data.ConversationId+":"+data.SenderStaffId] = data.IsAdmin
	d.mu.Unlock()

	logger.WithFields(logrus.Fields{
		"platform":          "dingtalk",
		"conversation_id":   data.ConversationId,
		"conversation_type": data.ConversationType,
		"sender_staff_id":   data.SenderStaffId,
		"msg_id":            data.MsgId,
	}).Debug("received-dingtalk-message")

	handler := d.GetMessageHandler()
	if handler == nil {
		return []byte(""), nil
	}

	// ConversationType "2" is a group chat
	guildID := ""
	if data.ConversationType == "2" {
		guildID = data.ConversationId
	}

	handler(BotMessage{
		Platform:  "dingtalk",
		MessageID: data.MsgId,
		UserID:    data.SenderStaffId,
		Username:  data.SenderNick,
		Channel:   data.ConversationId,
		GuildID:   guildID,
		SelfID:    data.ChatbotUserId,
		Content:   data.Text.Content,
		Timestamp: time.Now(),
	})

	return []byte(""), nil
}

// SendMessage replies into a conversation through its remembered session webhook
func (d *DingTalkBot) SendMessage(conversationID, message string) error {
	if conversationID == "" {
		return fmt.Errorf("conversation ID is required for DingTalk")
	}

	d.mu.RLock()
	webhook, ok := d.webhooks[conversationID]
	replier := d.replier
	ctx := d.ctx
	d.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no session webhook for conversation %s: %w", conversationID, ErrNotInitialized)
	}

	message = truncate(message, constants.MaxDingTalkMessageLength)
	if err := replier.SimpleReplyText(ctx, webhook, []byte(message)); err != nil {
		logger.WithFields(logrus.Fields{
			"conversation_id": conversationID,
			"error":           err,
		}).Error("failed-to-send-message-to-dingtalk")
		return fmt.Errorf("failed to send message to conversation %s: %w", conversationID, err)
	}
	return nil
}

// Reply posts into the conversation msg came from
func (d *DingTalkBot) Reply(msg BotMessage, message string) error {
	return d.SendMessage(msg.Channel, message)
}

// SendEmbed sends the embed flattened to text
func (d *DingTalkBot) SendEmbed(conversationID string, embed Embed) error {
	return d.SendMessage(conversationID, flattenEmbed(embed))
}

// UserPermissions reports group admins as administrators
func (d *DingTalkBot) UserPermissions(msg BotMessage) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.admins[msg.Channel+":"+msg.UserID] {
		return PermissionAdministrator, nil
	}
	return 0, nil
}

// Stop closes the DingTalk WebSocket connection and cleans up resources
func (d *DingTalkBot) Stop() error {
	if d.cancel != nil {
		d.cancel()
	}

	d.mu.Lock()
	streamClient := d.streamClient
	d.streamClient = nil
	d.mu.Unlock()

	if streamClient != nil {
		streamClient.Close()
	}

	logger.Info("dingtalk-bot-stopped")
	return nil
}

// SetMessageHandler sets the message handler in a thread-safe manner
func (d *DingTalkBot) SetMessageHandler(handler func(BotMessage)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messageHandler = handler
}

// GetMessageHandler gets the message handler in a thread-safe manner
func (d *DingTalkBot) GetMessageHandler() func(BotMessage) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.messageHandler
}
