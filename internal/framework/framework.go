// Package framework implements prefix command dispatch for chat bots.
//
// A Framework owns a Registry of commands, a set of named rate-limit buckets
// and three hooks. Dispatch takes one inbound bot.BotMessage through:
//
//  1. prefix or mention stripping
//  2. tokenising against the registry (multi-word tokens such as "emoji cat")
//  3. gates: bucket, required permissions, allowed roles, checks
//  4. the Before hook, the handler and the After hook
//
// A rejected gate or an unknown command goes to the OnDispatchError hook instead.
package framework

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/keepmind9/pandabot/internal/bot"
	"github.com/keepmind9/pandabot/internal/logger"
	"github.com/keepmind9/pandabot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// Configuration controls how messages are recognised as commands
type Configuration struct {
	// Prefixes that start a command, e.g. "."
	Prefixes []string
	// OnMention also accepts "<@botid>" as a prefix
	OnMention bool
	// AllowWhitespace accepts ". ping" as well as ".ping"
	AllowWhitespace bool
	// Delimiters split the argument text; empty means whitespace
	Delimiters []string
}

// BeforeFunc runs after all gates pass; returning false skips the handler
type BeforeFunc func(ctx *Context, command string) bool

// AfterFunc runs after the handler with its result
type AfterFunc func(ctx *Context, command string, err error)

// DispatchErrorFunc receives every gate rejection
type DispatchErrorFunc func(ctx *Context, err *DispatchError)

// Framework dispatches messages to registered commands
type Framework struct {
	config   Configuration
	prefixes []string
	registry *Registry

	bucketsMu sync.RWMutex
	buckets   map[string]*bucketState

	hooksMu         sync.RWMutex
	before          BeforeFunc
	after           AfterFunc
	onDispatchError DispatchErrorFunc

	now func() time.Time
}

// New creates a Framework with an empty registry
func New(config Configuration) *Framework {
	prefixes := make([]string, 0, len(config.Prefixes))
	for _, p := range config.Prefixes {
		if p != "" {
			prefixes = append(prefixes, p)
		}
	}
	// Longest prefix first so "!!" wins over "!"
	sort.SliceStable(prefixes, func(i, j int) bool {
		return len(prefixes[i]) > len(prefixes[j])
	})

	return &Framework{
		config:   config,
		prefixes: prefixes,
		registry: NewRegistry(),
		buckets:  make(map[string]*bucketState),
		now:      time.Now,
	}
}

// Config returns the configuration the framework was built with
func (f *Framework) Config() Configuration {
	return f.config
}

// Registry returns the command registry
func (f *Framework) Registry() *Registry {
	return f.registry
}

// AddBucket declares a named rate-limit bucket
func (f *Framework) AddBucket(name string, b Bucket) error {
	if name == "" {
		return fmt.Errorf("bucket name is required")
	}
	if b.Delay < 0 || b.Window < 0 || b.Limit < 0 {
		return fmt.Errorf("bucket %q: negative delay, window or limit", name)
	}
	if b.Limit > 0 && b.Window == 0 {
		return fmt.Errorf("bucket %q: limit requires a window", name)
	}

	f.bucketsMu.Lock()
	defer f.bucketsMu.Unlock()
	f.buckets[name] = newBucketState(b)
	return nil
}

// Buckets returns the declared bucket names, sorted
func (f *Framework) Buckets() []string {
	f.bucketsMu.RLock()
	defer f.bucketsMu.RUnlock()
	names := make([]string, 0, len(f.buckets))
	for name := range f.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register adds an ungrouped command
func (f *Framework) Register(cmd *Command) error {
	if err := f.checkBuckets(cmd); err != nil {
		return err
	}
	return f.registry.Register(cmd)
}

// RegisterGroup adds a group of commands
func (f *Framework) RegisterGroup(g Group) error {
	if err := f.checkBuckets(g.Commands...); err != nil {
		return err
	}
	return f.registry.RegisterGroup(g)
}

// RegisterAll adds ungrouped commands and groups together; on error none are added
func (f *Framework) RegisterAll(cmds []*Command, groups ...Group) error {
	all := append([]*Command(nil), cmds...)
	for _, g := range groups {
		all = append(all, g.Commands...)
	}
	if err := f.checkBuckets(all...); err != nil {
		return err
	}
	return f.registry.RegisterAll(cmds, groups...)
}

func (f *Framework) checkBuckets(cmds ...*Command) error {
	f.bucketsMu.RLock()
	defer f.bucketsMu.RUnlock()
	for _, cmd := range cmds {
		if cmd == nil || cmd.Bucket == "" {
			continue
		}
		if _, ok := f.buckets[cmd.Bucket]; !ok {
			return fmt.Errorf("%w: %q used by %q", ErrUnknownBucket, cmd.Bucket, cmd.Name)
		}
	}
	return nil
}

// Before sets the hook run before every handler
func (f *Framework) Before(fn BeforeFunc) *Framework {
	f.hooksMu.Lock()
	defer f.hooksMu.Unlock()
	f.before = fn
	return f
}

// After sets the hook run after every handler
func (f *Framework) After(fn AfterFunc) *Framework {
	f.hooksMu.Lock()
	defer f.hooksMu.Unlock()
	f.after = fn
	return f
}

// OnDispatchError sets the hook run for every rejected message
func (f *Framework) OnDispatchError(fn DispatchErrorFunc) *Framework {
	f.hooksMu.Lock()
	defer f.hooksMu.Unlock()
	f.onDispatchError = fn
	return f
}

// PruneBuckets drops per-user bucket state that has fully recovered by now
func (f *Framework) PruneBuckets(now time.Time) int {
	f.bucketsMu.RLock()
	defer f.bucketsMu.RUnlock()
	removed := 0
	for _, b := range f.buckets {
		removed += b.prune(now)
	}
	return removed
}

// Dispatch runs msg through the pipeline. It reports whether msg was addressed
// to the bot, i.e. started with a prefix and named something.
func (f *Framework) Dispatch(ctx context.Context, adapter bot.BotAdapter, msg bot.BotMessage) bool {
	if len(msg.Content) > constants.MaxCommandInputLength {
		logger.WithFields(logrus.Fields{
			"platform": msg.Platform,
			"user_id":  msg.UserID,
			"length":   len(msg.Content),
		}).Warn("command-input-too-long")
		return false
	}

	prefix, rest, ok := f.stripPrefix(msg)
	if !ok {
		return false
	}

	token, cmd, argText := f.tokenize(rest)
	if token == "" {
		return false
	}

	dctx := &Context{
		Context: ctx,
		Adapter: adapter,
		Message: msg,
		Command: cmd,
		Prefix:  prefix,
	}

	if cmd == nil {
		f.dispatchError(dctx, &DispatchError{Kind: KindCommandNotFound, Token: token})
		return true
	}

	args := NewArgs(argText, f.config.Delimiters)
	if derr := f.gate(dctx, args); derr != nil {
		f.dispatchError(dctx, derr)
		return true
	}
	args.Rewind()

	f.hooksMu.RLock()
	before, after := f.before, f.after
	f.hooksMu.RUnlock()

	if before != nil && !before(dctx, cmd.Name) {
		return true
	}

	err := f.execute(dctx, args)

	if after != nil {
		after(dctx, cmd.Name, err)
	}
	return true
}

// stripPrefix removes a mention or configured prefix from the message
func (f *Framework) stripPrefix(msg bot.BotMessage) (prefix, rest string, ok bool) {
	content := msg.Content

	if f.config.OnMention && msg.SelfID != "" {
		for _, mention := range []string{"<@" + msg.SelfID + ">", "<@!" + msg.SelfID + ">"} {
			if strings.HasPrefix(content, mention) {
				return mention, strings.TrimLeftFunc(content[len(mention):], unicode.IsSpace), true
			}
		}
	}

	for _, p := range f.prefixes {
		if !strings.HasPrefix(content, p) {
			continue
		}
		rest = content[len(p):]
		if r, _ := utf8.DecodeRuneInString(rest); rest != "" && unicode.IsSpace(r) {
			if !f.config.AllowWhitespace {
				return "", "", false
			}
			rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		}
		return p, rest, true
	}
	return "", "", false
}

// tokenize matches the longest registered token at the start of rest.
// When nothing matches, token is the first word and cmd is nil.
func (f *Framework) tokenize(rest string) (token string, cmd *Command, argText string) {
	words, ends := splitWords(rest)
	if len(words) == 0 {
		return "", nil, ""
	}

	n := f.registry.MaxTokenWords()
	if n > len(words) {
		n = len(words)
	}
	for ; n > 0; n-- {
		candidate := strings.Join(words[:n], " ")
		if c, ok := f.registry.Resolve(candidate); ok {
			return candidate, c, rest[ends[n-1]:]
		}
	}
	return words[0], nil, rest[ends[0]:]
}

// splitWords splits s on whitespace and records the byte offset after each word
func splitWords(s string) (words []string, ends []int) {
	start := -1
	for i, r := range s {
		if unicode.IsSpace(r) {
			if start >= 0 {
				words = append(words, s[start:i])
				ends = append(ends, i)
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, s[start:])
		ends = append(ends, len(s))
	}
	return words, ends
}

// gate applies bucket, permission, role and check gates in that order
func (f *Framework) gate(ctx *Context, args *Args) *DispatchError {
	cmd := ctx.Command

	if cmd.Bucket != "" {
		f.bucketsMu.RLock()
		b, ok := f.buckets[cmd.Bucket]
		f.bucketsMu.RUnlock()
		if ok {
			if wait := b.take(ctx.Message.UserKey(), f.now()); wait > 0 {
				return &DispatchError{Kind: KindRateLimited, Command: cmd, RetryAfter: wait}
			}
		}
	}

	if cmd.RequiredPermissions != 0 {
		perms, err := ctx.Permissions()
		if err != nil {
			logger.WithFields(logrus.Fields{
				"command": cmd.Name,
				"user_id": ctx.Message.UserID,
				"error":   err,
			}).Warn("failed-to-resolve-permissions")
		}
		if missing := missingPermissions(perms, cmd.RequiredPermissions); missing != 0 {
			return &DispatchError{Kind: KindLackOfPermissions, Command: cmd, Permissions: missing}
		}
	}

	if len(cmd.AllowedRoles) > 0 && !f.hasAllowedRole(ctx) {
		return &DispatchError{Kind: KindLackingRole, Command: cmd}
	}

	for _, check := range cmd.Checks {
		args.Rewind()
		if !check(ctx, args) {
			return &DispatchError{Kind: KindCheckFailed, Command: cmd}
		}
	}
	return nil
}

// missingPermissions returns the bits of required that held lacks.
// Administrator implies every permission.
func missingPermissions(held, required int64) int64 {
	if held&bot.PermissionAdministrator != 0 {
		return 0
	}
	return required &^ held
}

func (f *Framework) hasAllowedRole(ctx *Context) bool {
	roles, err := ctx.Roles()
	if err != nil {
		logger.WithFields(logrus.Fields{
			"command": ctx.Command.Name,
			"user_id": ctx.Message.UserID,
			"error":   err,
		}).Warn("failed-to-resolve-roles")
		return false
	}
	for _, held := range roles {
		for _, allowed := range ctx.Command.AllowedRoles {
			if held.Name == allowed {
				return true
			}
		}
	}
	return false
}

// execute runs the handler and turns a panic into an error
func (f *Framework) execute(ctx *Context, args *Args) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{
				"command": ctx.Command.Name,
				"panic":   r,
				"stack":   string(debug.Stack()),
			}).Error("command-handler-panicked")
			err = fmt.Errorf("command %q panicked: %v", ctx.Command.Name, r)
		}
	}()
	return ctx.Command.Handler.Execute(ctx, args)
}

func (f *Framework) dispatchError(ctx *Context, derr *DispatchError) {
	logger.WithFields(logrus.Fields{
		"kind":     derr.Kind.String(),
		"platform": ctx.Message.Platform,
		"user_id":  ctx.Message.UserID,
		"error":    derr.Error(),
	}).Debug("dispatch-rejected")

	f.hooksMu.RLock()
	hook := f.onDispatchError
	f.hooksMu.RUnlock()
	if hook != nil {
		hook(ctx, derr)
	}
}
