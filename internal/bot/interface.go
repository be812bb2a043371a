// Package bot provides bot adapters for various IM platforms.
//
// Each adapter owns the platform SDK connection and turns inbound messages into
// BotMessage values. Replies go back out through the same adapter. The command
// framework only sees the BotAdapter interface plus the optional capability
// interfaces below, so commands run unchanged on every platform.
//
// # Supported Platforms
//
//   - Discord: one gateway session per shard, permissions and roles from guild state
//   - Telegram: long polling, administrator lookup via getChatMember
//   - Feishu/Lark: WebSocket long connection
//   - DingTalk: stream connection, replies through the per-conversation session webhook
//
// # Thread Safety
//
// All bot adapters are thread-safe and use internal mutexes to protect
// shared state. The message handler callback may be called concurrently
// from multiple goroutines.
package bot

import (
	"errors"
	"time"

	"github.com/bwmarrin/discordgo"
)

// ErrNotInitialized is returned when an adapter is used before Start.
var ErrNotInitialized = errors.New("bot not initialized")

// ErrUnsupported is returned by capability methods a platform cannot serve.
var ErrUnsupported = errors.New("not supported on this platform")

// PermissionAdministrator is the permission bit that implies every other permission.
const PermissionAdministrator int64 = discordgo.PermissionAdministrator

// BotAdapter defines the interface for bot adapters
type BotAdapter interface {
	// Start connects to the platform and begins delivering messages to messageHandler
	Start(messageHandler func(BotMessage)) error

	// SendMessage sends a plain text message to a channel
	SendMessage(channel, message string) error

	// Reply answers msg, quoting it where the platform supports that
	Reply(msg BotMessage, message string) error

	// SendEmbed sends a rich message; platforms without embeds get flattened text
	SendEmbed(channel string, embed Embed) error

	// Stop stops the bot and cleans up resources
	Stop() error
}

// PermissionResolver is implemented by adapters that can report the permission
// bits the author of msg holds in its channel.
type PermissionResolver interface {
	UserPermissions(msg BotMessage) (int64, error)
}

// RoleResolver is implemented by adapters that know about guild roles.
type RoleResolver interface {
	// MemberRoles returns the roles held by the author of msg
	MemberRoles(msg BotMessage) ([]Role, error)
	// RoleByName finds a guild role by exact name
	RoleByName(guildID, name string) (Role, bool, error)
}

// BotMessage represents a bot message structure
type BotMessage struct {
	Platform  string // discord/telegram/feishu/dingtalk
	MessageID string
	UserID    string // Unique user identifier (for permission control)
	Username  string
	Channel   string // Channel/session ID
	GuildID   string // Empty for direct messages
	SelfID    string // The bot's own user id, used for mention prefixes
	ShardID   int
	Content   string
	Timestamp time.Time
}

// UserKey identifies the author across platforms
func (m BotMessage) UserKey() string {
	return m.Platform + ":" + m.UserID
}

// Role is a named guild role
type Role struct {
	ID   string
	Name string
}

// Embed is a platform-neutral rich message
type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []EmbedField
	Footer      string
}

// EmbedField is one titled section of an Embed
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}
