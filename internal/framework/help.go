package framework

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/keepmind9/pandabot/internal/bot"
	"github.com/keepmind9/pandabot/internal/logger"
	"github.com/keepmind9/pandabot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// HelpBehaviour says how help lists a command the author cannot use
type HelpBehaviour int

const (
	// BehaviourNothing lists the command normally
	BehaviourNothing HelpBehaviour = iota
	// BehaviourStrike lists the command struck through
	BehaviourStrike
	// BehaviourHide leaves the command out
	BehaviourHide
)

// ParseHelpBehaviour parses "nothing", "strike" or "hide"
func ParseHelpBehaviour(s string) (HelpBehaviour, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nothing":
		return BehaviourNothing, nil
	case "strike":
		return BehaviourStrike, nil
	case "hide":
		return BehaviourHide, nil
	default:
		return BehaviourNothing, fmt.Errorf("unknown help behaviour %q (want nothing, strike or hide)", s)
	}
}

func (b HelpBehaviour) String() string {
	switch b {
	case BehaviourStrike:
		return "strike"
	case BehaviourHide:
		return "hide"
	default:
		return "nothing"
	}
}

// HelpOptions configures the help command. "{}" in the texts is replaced by
// the command name.
type HelpOptions struct {
	Name                 string
	Aliases              []string
	IndividualCommandTip string
	CommandNotFoundText  string
	SuggestionText       string
	LackingPermissions   HelpBehaviour
	LackingRole          HelpBehaviour
	Color                int
}

const ungroupedTitle = "Ungrouped"

// HelpCommand builds a help command that reads f's registry
func (f *Framework) HelpCommand(opts HelpOptions) *Command {
	if opts.Name == "" {
		opts.Name = "help"
	}
	h := &helpHandler{fw: f, opts: opts}
	return &Command{
		Name:        opts.Name,
		Aliases:     opts.Aliases,
		Description: "Lists commands, or describes the one given.",
		Usage:       "[command]",
		Handler:     h,
	}
}

type helpHandler struct {
	fw   *Framework
	opts HelpOptions
}

// access caches what the author may use for one help invocation
type access struct {
	perms int64
	roles map[string]struct{}
}

func (h *helpHandler) Execute(ctx *Context, args *Args) error {
	a := h.resolveAccess(ctx)
	if name := args.Full(); name != "" {
		return h.describe(ctx, a, name)
	}
	return ctx.SendEmbed(h.listing(ctx, a))
}

func (h *helpHandler) resolveAccess(ctx *Context) *access {
	a := &access{roles: make(map[string]struct{})}
	perms, err := ctx.Permissions()
	if err != nil {
		logger.WithFields(logrus.Fields{
			"user_id": ctx.Message.UserID,
			"error":   err,
		}).Debug("help-permissions-unavailable")
	}
	a.perms = perms
	if roles, err := ctx.Roles(); err == nil {
		for _, r := range roles {
			a.roles[r.Name] = struct{}{}
		}
	}
	return a
}

// behaviour decides how cmd is shown to the author
func (h *helpHandler) behaviour(cmd *Command, a *access) HelpBehaviour {
	if cmd.RequiredPermissions != 0 && missingPermissions(a.perms, cmd.RequiredPermissions) != 0 {
		if h.opts.LackingPermissions != BehaviourNothing {
			return h.opts.LackingPermissions
		}
	}
	if len(cmd.AllowedRoles) > 0 {
		held := false
		for _, r := range cmd.AllowedRoles {
			if _, ok := a.roles[r]; ok {
				held = true
				break
			}
		}
		if !held {
			return h.opts.LackingRole
		}
	}
	return BehaviourNothing
}

func (h *helpHandler) listing(ctx *Context, a *access) bot.Embed {
	registry := h.fw.Registry()
	byGroup := make(map[string][]string)
	order := []string{ungroupedTitle}
	order = append(order, registry.Groups()...)

	for _, cmd := range registry.Commands() {
		entry := "`" + registry.InvocationOf(cmd) + "`"
		switch h.behaviour(cmd, a) {
		case BehaviourHide:
			continue
		case BehaviourStrike:
			entry = "~~" + entry + "~~"
		}
		group := cmd.Group
		if group == "" {
			group = ungroupedTitle
		}
		byGroup[group] = append(byGroup[group], entry)
	}

	embed := bot.Embed{
		Title:       "Help",
		Description: h.opts.IndividualCommandTip,
		Color:       h.opts.Color,
	}
	for _, group := range order {
		entries := byGroup[group]
		if len(entries) == 0 {
			continue
		}
		embed.Fields = append(embed.Fields, bot.EmbedField{
			Name:  group,
			Value: strings.Join(entries, "\n"),
		})
	}
	if prefix := h.prefix(ctx); prefix != "" {
		embed.Footer = "Prefix: " + prefix
	}
	return embed
}

func (h *helpHandler) describe(ctx *Context, a *access, name string) error {
	registry := h.fw.Registry()
	cmd, ok := registry.Resolve(name)
	if !ok {
		cmd, ok = registry.Lookup(name)
	}
	if ok && h.behaviour(cmd, a) == BehaviourHide {
		ok = false
	}

	if !ok {
		if suggestion := h.suggest(name, a); suggestion != "" && h.opts.SuggestionText != "" {
			return ctx.Say(fill(h.opts.SuggestionText, suggestion))
		}
		if h.opts.CommandNotFoundText == "" {
			return nil
		}
		return ctx.Say(fill(h.opts.CommandNotFoundText, name))
	}

	invocation := registry.InvocationOf(cmd)
	embed := bot.Embed{
		Title:       cmd.Name,
		Description: cmd.Description,
		Color:       h.opts.Color,
	}
	usage := h.prefix(ctx) + invocation
	if cmd.Usage != "" {
		usage += " " + cmd.Usage
	}
	embed.Fields = append(embed.Fields, bot.EmbedField{Name: "Usage", Value: "`" + usage + "`"})
	if len(cmd.Aliases) > 0 {
		aliases := make([]string, len(cmd.Aliases))
		for i, alias := range cmd.Aliases {
			aliases[i] = "`" + alias + "`"
		}
		embed.Fields = append(embed.Fields, bot.EmbedField{Name: "Aliases", Value: strings.Join(aliases, ", "), Inline: true})
	}
	if cmd.Group != "" {
		embed.Fields = append(embed.Fields, bot.EmbedField{Name: "Group", Value: cmd.Group, Inline: true})
	}
	if h.behaviour(cmd, a) == BehaviourStrike {
		embed.Fields = append(embed.Fields, bot.EmbedField{Name: "Available", Value: "No", Inline: true})
	}
	return ctx.SendEmbed(embed)
}

// suggest returns the closest visible invocation token to name
func (h *helpHandler) suggest(name string, a *access) string {
	registry := h.fw.Registry()
	best, bestDist := "", constants.MaxSuggestionDistance+1
	for _, token := range registry.Tokens() {
		cmd, _ := registry.Resolve(token)
		if cmd == nil || h.behaviour(cmd, a) == BehaviourHide {
			continue
		}
		if d := levenshtein.ComputeDistance(name, token); d < bestDist {
			best, bestDist = token, d
		}
	}
	return best
}

// prefix is the prefix shown in usage lines; a mention is never shown
func (h *helpHandler) prefix(ctx *Context) string {
	if strings.HasPrefix(ctx.Prefix, "<@") && len(h.fw.prefixes) > 0 {
		return h.fw.prefixes[len(h.fw.prefixes)-1]
	}
	return ctx.Prefix
}

func fill(text, name string) string {
	return strings.ReplaceAll(text, "{}", name)
}
