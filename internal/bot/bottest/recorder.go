// Package bottest provides an in-memory bot.BotAdapter for tests.
package bottest

import (
	"sync"

	"github.com/keepmind9/pandabot/internal/bot"
)

// Sent is one outbound message captured by a Recorder
type Sent struct {
	Channel string
	Text    string
	ReplyTo string // id of the message answered, empty for plain sends
	Embed   *bot.Embed
}

// Recorder is a bot.BotAdapter that records every outbound message.
// It also implements bot.PermissionResolver and bot.RoleResolver from the
// Permissions, Roles and GuildRoles fields.
type Recorder struct {
	mu sync.Mutex

	// Permissions maps user ids to their permission bits
	Permissions map[string]int64
	// Roles maps user ids to the roles they hold
	Roles map[string][]bot.Role
	// GuildRoles lists every role known per guild id
	GuildRoles map[string][]bot.Role
	// SendErr, when set, is returned by every send
	SendErr error

	handler func(bot.BotMessage)
	sent    []Sent
	started bool
	stopped bool
}

// NewRecorder returns an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{
		Permissions: make(map[string]int64),
		Roles:       make(map[string][]bot.Role),
		GuildRoles:  make(map[string][]bot.Role),
	}
}

func (r *Recorder) Start(handler func(bot.BotMessage)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = handler
	r.started = true
	return nil
}

// Deliver pushes msg into the handler registered by Start
func (r *Recorder) Deliver(msg bot.BotMessage) {
	r.mu.Lock()
	handler := r.handler
	r.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
}

func (r *Recorder) SendMessage(channel, message string) error {
	return r.record(Sent{Channel: channel, Text: message})
}

func (r *Recorder) Reply(msg bot.BotMessage, message string) error {
	return r.record(Sent{Channel: msg.Channel, Text: message, ReplyTo: msg.MessageID})
}

func (r *Recorder) SendEmbed(channel string, embed bot.Embed) error {
	return r.record(Sent{Channel: channel, Embed: &embed})
}

func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	return nil
}

func (r *Recorder) UserPermissions(msg bot.BotMessage) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Permissions[msg.UserID], nil
}

func (r *Recorder) MemberRoles(msg bot.BotMessage) ([]bot.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bot.Role(nil), r.Roles[msg.UserID]...), nil
}

func (r *Recorder) RoleByName(guildID, name string) (bot.Role, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, role := range r.GuildRoles[guildID] {
		if role.Name == name {
			return role, true, nil
		}
	}
	return bot.Role{}, false, nil
}

func (r *Recorder) record(s Sent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SendErr != nil {
		return r.SendErr
	}
	r.sent = append(r.sent, s)
	return nil
}

// Sent returns a copy of everything sent so far
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// Texts returns the text of every non-embed message sent so far
func (r *Recorder) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, s := range r.sent {
		if s.Embed == nil {
			out = append(out, s.Text)
		}
	}
	return out
}

// Last returns the most recent message, if any
func (r *Recorder) Last() (Sent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return Sent{}, false
	}
	return r.sent[len(r.sent)-1], true
}

// Reset forgets recorded messages
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

// Started reports whether Start was called
func (r *Recorder) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// Stopped reports whether Stop was called
func (r *Recorder) Stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}
