package framework

import (
	"context"

	"github.com/keepmind9/pandabot/internal/bot"
)

// Context is the per-invocation state handed to hooks, checks and handlers
type Context struct {
	context.Context
	Adapter bot.BotAdapter
	Message bot.BotMessage
	Command *Command
	// Prefix is the prefix or mention the message started with
	Prefix string
}

// Say sends text to the channel the message came from
func (c *Context) Say(text string) error {
	return c.Adapter.SendMessage(c.Message.Channel, text)
}

// Reply answers the message directly
func (c *Context) Reply(text string) error {
	return c.Adapter.Reply(c.Message, text)
}

// SendEmbed sends embed to the channel the message came from
func (c *Context) SendEmbed(embed bot.Embed) error {
	return c.Adapter.SendEmbed(c.Message.Channel, embed)
}

// Permissions returns the author's permission bits, zero when the adapter cannot tell
func (c *Context) Permissions() (int64, error) {
	resolver, ok := c.Adapter.(bot.PermissionResolver)
	if !ok {
		return 0, nil
	}
	return resolver.UserPermissions(c.Message)
}

// Roles returns the author's roles
func (c *Context) Roles() ([]bot.Role, error) {
	resolver, ok := c.Adapter.(bot.RoleResolver)
	if !ok {
		return nil, bot.ErrUnsupported
	}
	return resolver.MemberRoles(c.Message)
}

// RoleByName finds a role of the message's guild
func (c *Context) RoleByName(name string) (bot.Role, bool, error) {
	resolver, ok := c.Adapter.(bot.RoleResolver)
	if !ok {
		return bot.Role{}, false, bot.ErrUnsupported
	}
	return resolver.RoleByName(c.Message.GuildID, name)
}
