package bot

import (
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keepmind9/pandabot/internal/logger"
	"github.com/keepmind9/pandabot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// DiscordSessionInterface defines the interface we need from discordgo.Session
// This allows us to mock it in tests without depending on concrete types
type DiscordSessionInterface interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID string, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	HeartbeatLatency() time.Duration
}

// DiscordSessionFactory opens nothing; it only builds the session for one shard
type DiscordSessionFactory func(token string, shardID, shardCount int) (DiscordSessionInterface, error)

// DiscordBot implements BotAdapter interface for Discord
type DiscordBot struct {
	mu             sync.RWMutex
	token          string
	channelID      string
	shardCount     int
	sessions       map[int]DiscordSessionInterface
	selfID         string
	shards         *ShardManager
	newSession     DiscordSessionFactory
	messageHandler func(BotMessage)
}

// NewDiscordBot creates a new Discord bot instance
func NewDiscordBot(token, channelID string, shardCount int) *DiscordBot {
	if shardCount < 1 {
		shardCount = 1
	}
	return &DiscordBot{
		token:      token,
		channelID:  channelID,
		shardCount: shardCount,
		sessions:   make(map[int]DiscordSessionInterface),
		shards:     NewShardManager(shardCount),
		newSession: newDiscordgoSession,
	}
}

func newDiscordgoSession(token string, shardID, shardCount int) (DiscordSessionInterface, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	session.ShardID = shardID
	session.ShardCount = shardCount
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	return session, nil
}

// Shards returns the shard manager populated by Start
func (d *DiscordBot) Shards() *ShardManager {
	return d.shards
}

// Start establishes one gateway connection per shard and begins listening for messages
func (d *DiscordBot) Start(messageHandler func(BotMessage)) error {
	d.SetMessageHandler(messageHandler)

	logger.WithFields(logrus.Fields{
		"token":  maskSecret(d.token),
		"shards": d.shardCount,
	}).Info("starting-discord-bot")

	opened := make([]int, 0, d.shardCount)
	for shardID := 0; shardID < d.shardCount; shardID++ {
		session, err := d.newSession(d.token, shardID, d.shardCount)
		if err != nil {
			d.closeShards(opened)
			return fmt.Errorf("failed to create discord session for shard %d: %w", shardID, err)
		}

		session.AddHandler(d.readyHandler(shardID))
		session.AddHandler(d.messageCreateHandler(shardID))

		if err := session.Open(); err != nil {
			d.closeShards(opened)
			return fmt.Errorf("failed to open discord connection for shard %d: %w", shardID, err)
		}

		d.mu.Lock()
		d.sessions[shardID] = session
		d.mu.Unlock()

		d.shards.Add(&ShardRunner{ID: shardID, Latency: session.HeartbeatLatency})
		opened = append(opened, shardID)
	}

	return nil
}

func (d *DiscordBot) readyHandler(shardID int) func(*discordgo.Session, *discordgo.Ready) {
	return func(_ *discordgo.Session, r *discordgo.Ready) {
		if r == nil || r.User == nil {
			return
		}
		d.mu.Lock()
		d.selfID = r.User.ID
		d.mu.Unlock()

		logger.WithFields(logrus.Fields{
			"shard":    shardID,
			"username": r.User.Username,
			"guilds":   len(r.Guilds),
		}).Info("discord-shard-connected")
	}
}

func (d *DiscordBot) messageCreateHandler(shardID int) func(*discordgo.Session, *discordgo.MessageCreate) {
	return func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m == nil || m.Message == nil || m.Author == nil {
			return
		}
		// Ignore messages from bots
		if m.Author.Bot {
			return
		}

		logger.WithFields(logrus.Fields{
			"platform": "discord",
			"shard":    shardID,
			"user_id":  m.Author.ID,
			"username": m.Author.Username,
			"channel":  m.ChannelID,
			"guild":    m.GuildID,
		}).Debug("received-discord-message")

		handler := d.GetMessageHandler()
		if handler == nil {
			return
		}

		d.mu.RLock()
		selfID := d.selfID
		d.mu.RUnlock()

		handler(BotMessage{
			Platform:  "discord",
			MessageID: m.ID,
			UserID:    m.Author.ID,
			Username:  m.Author.Username,
			Channel:   m.ChannelID,
			GuildID:   m.GuildID,
			SelfID:    selfID,
			ShardID:   shardID,
			Content:   m.Content,
			Timestamp: time.Now(),
		})
	}
}

// session returns the session for shardID, falling back to any open shard
func (d *DiscordBot) session(shardID int) DiscordSessionInterface {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if s, ok := d.sessions[shardID]; ok && s != nil {
		return s
	}
	for id := 0; id < d.shardCount; id++ {
		if s, ok := d.sessions[id]; ok && s != nil {
			return s
		}
	}
	return nil
}

// SendMessage sends a message to a Discord channel
func (d *DiscordBot) SendMessage(channel, message string) error {
	session := d.session(0)
	if session == nil {
		return fmt.Errorf("discord session %w", ErrNotInitialized)
	}

	// Use configured channel if not specified
	targetChannel := channel
	if targetChannel == "" {
		targetChannel = d.channelID
	}

	message = d.limit(message)
	if _, err := session.ChannelMessageSend(targetChannel, message); err != nil {
		logger.WithFields(logrus.Fields{
			"channel": targetChannel,
			"error":   err,
		}).Error("failed-to-send-message-to-discord")
		return fmt.Errorf("failed to send message to channel %s: %w", targetChannel, err)
	}

	logger.WithField("channel", targetChannel).Debug("message-sent-to-discord")
	return nil
}

// Reply answers msg with a message reference on the shard it arrived on
func (d *DiscordBot) Reply(msg BotMessage, message string) error {
	session := d.session(msg.ShardID)
	if session == nil {
		return fmt.Errorf("discord session %w", ErrNotInitialized)
	}

	ref := &discordgo.MessageReference{
		MessageID: msg.MessageID,
		ChannelID: msg.Channel,
		GuildID:   msg.GuildID,
	}
	if _, err := session.ChannelMessageSendReply(msg.Channel, d.limit(message), ref); err != nil {
		logger.WithFields(logrus.Fields{
			"channel": msg.Channel,
			"error":   err,
		}).Error("failed-to-reply-on-discord")
		return fmt.Errorf("failed to reply in channel %s: %w", msg.Channel, err)
	}
	return nil
}

// SendEmbed sends a native Discord embed
func (d *DiscordBot) SendEmbed(channel string, embed Embed) error {
	session := d.session(0)
	if session == nil {
		return fmt.Errorf("discord session %w", ErrNotInitialized)
	}
	if channel == "" {
		channel = d.channelID
	}

	if _, err := session.ChannelMessageSendEmbed(channel, toDiscordEmbed(embed)); err != nil {
		logger.WithFields(logrus.Fields{
			"channel": channel,
			"error":   err,
		}).Error("failed-to-send-embed-to-discord")
		return fmt.Errorf("failed to send embed to channel %s: %w", channel, err)
	}
	return nil
}

// UserPermissions returns the author's permission bits in the message channel
func (d *DiscordBot) UserPermissions(msg BotMessage) (int64, error) {
	session := d.session(msg.ShardID)
	if session == nil {
		return 0, fmt.Errorf("discord session %w", ErrNotInitialized)
	}
	perms, err := session.UserChannelPermissions(msg.UserID, msg.Channel)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve permissions for %s: %w", msg.UserID, err)
	}
	return perms, nil
}

// MemberRoles returns the guild roles held by the author
func (d *DiscordBot) MemberRoles(msg BotMessage) ([]Role, error) {
	if msg.GuildID == "" {
		return nil, nil
	}
	session := d.session(msg.ShardID)
	if session == nil {
		return nil, fmt.Errorf("discord session %w", ErrNotInitialized)
	}

	member, err := session.GuildMember(msg.GuildID, msg.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch member %s: %w", msg.UserID, err)
	}
	guildRoles, err := session.GuildRoles(msg.GuildID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles of guild %s: %w", msg.GuildID, err)
	}

	byID := make(map[string]string, len(guildRoles))
	for _, r := range guildRoles {
		byID[r.ID] = r.Name
	}

	roles := make([]Role, 0, len(member.Roles))
	for _, id := range member.Roles {
		if name, ok := byID[id]; ok {
			roles = append(roles, Role{ID: id, Name: name})
		}
	}
	return roles, nil
}

// RoleByName finds a role of guildID by its exact name
func (d *DiscordBot) RoleByName(guildID, name string) (Role, bool, error) {
	if guildID == "" {
		return Role{}, false, nil
	}
	session := d.session(0)
	if session == nil {
		return Role{}, false, fmt.Errorf("discord session %w", ErrNotInitialized)
	}

	roles, err := session.GuildRoles(guildID)
	if err != nil {
		return Role{}, false, fmt.Errorf("failed to fetch roles of guild %s: %w", guildID, err)
	}
	for _, r := range roles {
		if r.Name == name {
			return Role{ID: r.ID, Name: r.Name}, true, nil
		}
	}
	return Role{}, false, nil
}

// Stop closes every shard connection and cleans up resources
func (d *DiscordBot) Stop() error {
	d.mu.Lock()
	sessions := d.sessions
	d.sessions = make(map[int]DiscordSessionInterface)
	d.mu.Unlock()

	var firstErr error
	for id, session := range sessions {
		d.shards.Remove(id)
		if session == nil {
			continue
		}
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close discord session for shard %d: %w", id, err)
		}
	}
	return firstErr
}

func (d *DiscordBot) closeShards(ids []int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		if s := d.sessions[id]; s != nil {
			s.Close()
		}
		delete(d.sessions, id)
		d.shards.Remove(id)
	}
}

func (d *DiscordBot) limit(message string) string {
	if len(message) <= constants.MaxDiscordMessageLength {
		return message
	}
	logger.WithFields(logrus.Fields{
		"original_length": len(message),
		"max_length":      constants.MaxDiscordMessageLength,
	}).Info("truncating-message-for-discord-limit")
	return truncate(message, constants.MaxDiscordMessageLength)
}

// SetMessageHandler sets the message handler in a thread-safe manner
func (d *DiscordBot) SetMessageHandler(handler func(BotMessage)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messageHandler = handler
}

// GetMessageHandler gets the message handler in a thread-safe manner
func (d *DiscordBot) GetMessageHandler() func(BotMessage) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.messageHandler
}

func toDiscordEmbed(embed Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       embed.Title,
		Description: embed.Description,
		Color:       embed.Color,
	}
	for _, f := range embed.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	if embed.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: embed.Footer}
	}
	return out
}
