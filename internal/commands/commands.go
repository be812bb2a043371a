// Package commands holds the bot's command handlers and the hooks that log and
// count every dispatch.
package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/keepmind9/pandabot/internal/bot"
	"github.com/keepmind9/pandabot/internal/framework"
	"github.com/keepmind9/pandabot/internal/usage"
)

// Bucket names the commands refer to. Both must be added to the framework
// before Register is called.
const (
	BucketEmoji       = "emoji"
	BucketComplicated = "complicated"
)

// ShardSource looks up a shard runner by id; *bot.ShardManager implements it
type ShardSource interface {
	Runner(id int) (*bot.ShardRunner, bool)
}

// Deps are the collaborators the handlers need
type Deps struct {
	Counter *usage.Counter
	// Shards maps a platform name to its shard manager
	Shards map[string]ShardSource
	// Owners are the user ids allowed to run owner-only commands
	Owners []string
	Help   framework.HelpOptions
}

// Register adds every command to fw and then installs the hooks.
// On error fw is left as it was.
func Register(fw *framework.Framework, deps Deps) error {
	if deps.Counter == nil {
		deps.Counter = usage.NewCounter()
	}

	cmds := []*framework.Command{
		aboutCommand(),
		fw.HelpCommand(deps.Help),
		commandsCommand(deps.Counter),
		multiplyCommand(),
		latencyCommand(deps.Shards),
		pingCommand(deps.Owners),
		roleCommand(),
		someLongCommand(),
	}
	if err := fw.RegisterAll(cmds, emojiGroup()); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	// Hooks last: a failed Register leaves fw untouched
	InstallHooks(fw, deps.Counter)
	return nil
}

func aboutCommand() *framework.Command {
	return &framework.Command{
		Name:        "about",
		Description: "Tells you what this bot is.",
		Handler: framework.HandlerFunc(func(ctx *framework.Context, _ *framework.Args) error {
			return ctx.Say("This is a small test-bot! : )")
		}),
	}
}

// commandsCommand reports how often each command was dispatched
func commandsCommand(counter *usage.Counter) *framework.Command {
	return &framework.Command{
		Name:        "commands",
		Description: "Lists how often each command was used.",
		Bucket:      BucketComplicated,
		Handler: framework.HandlerFunc(func(ctx *framework.Context, _ *framework.Args) error {
			return ctx.Say(formatUsage(counter.Snapshot()))
		}),
	}
}

func formatUsage(entries []usage.Entry) string {
	var sb strings.Builder
	sb.WriteString("Commands used:\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "- %s: %d\n", e.Name, e.Count)
	}
	return sb.String()
}

func multiplyCommand() *framework.Command {
	return &framework.Command{
		Name:        "multiply",
		Aliases:     []string{"*"},
		Description: "Multiplies two numbers.",
		Usage:       "<a>, <b>",
		Handler: framework.HandlerFunc(func(ctx *framework.Context, args *framework.Args) error {
			first, err := args.SingleFloat()
			if err == nil {
				var second float64
				second, err = args.SingleFloat()
				if err == nil {
					return ctx.Say(strconv.FormatFloat(first*second, 'f', -1, 64))
				}
			}
			if sayErr := ctx.Say("Please give me two numbers, e.g. `multiply 3, 4`."); sayErr != nil {
				return fmt.Errorf("%w (reply failed: %v)", err, sayErr)
			}
			return err
		}),
	}
}

func latencyCommand(shards map[string]ShardSource) *framework.Command {
	return &framework.Command{
		Name:        "latency",
		Description: "Shows the heartbeat latency of the shard you are on.",
		Handler: framework.HandlerFunc(func(ctx *framework.Context, _ *framework.Args) error {
			manager, ok := shards[ctx.Message.Platform]
			if !ok || manager == nil {
				return ctx.Reply("There was a problem getting the shard manager")
			}

			runner, ok := manager.Runner(ctx.Message.ShardID)
			if !ok || runner == nil {
				return ctx.Reply("No shard found")
			}

			latency := "unknown"
			if runner.Latency != nil {
				if d := runner.Latency(); d > 0 {
					latency = d.String()
				}
			}
			return ctx.Reply("The shard latency is " + latency)
		}),
	}
}

// ownerCheck passes only for the configured owner ids
func ownerCheck(owners []string) framework.Check {
	set := make(map[string]struct{}, len(owners))
	for _, id := range owners {
		set[id] = struct{}{}
	}
	return func(ctx *framework.Context, _ *framework.Args) bool {
		_, ok := set[ctx.Message.UserID]
		return ok
	}
}

func pingCommand(owners []string) *framework.Command {
	return &framework.Command{
		Name:        "ping",
		Description: "Checks that the bot is alive. Owners only.",
		Checks:      []framework.Check{ownerCheck(owners)},
		Handler: framework.HandlerFunc(func(ctx *framework.Context, _ *framework.Args) error {
			return ctx.Say("Pong! :panda_face:")
		}),
	}
}

func roleCommand() *framework.Command {
	return &framework.Command{
		Name:         "role",
		Description:  "Looks up the id of a role by its name.",
		Usage:        "<role name>",
		AllowedRoles: []string{"organizers", "altcoin god"},
		Handler: framework.HandlerFunc(func(ctx *framework.Context, args *framework.Args) error {
			name := args.Full()
			role, found, err := ctx.RoleByName(name)
			if err != nil {
				return err
			}
			if found {
				return ctx.Say("Role-ID: " + role.ID)
			}
			return ctx.Say(fmt.Sprintf("Could not find role named: %q", name))
		}),
	}
}

func someLongCommand() *framework.Command {
	return &framework.Command{
		Name:        "some long command",
		Description: "Echoes its arguments.",
		Usage:       "[args...]",
		Handler: framework.HandlerFunc(func(ctx *framework.Context, args *framework.Args) error {
			return ctx.Say(fmt.Sprintf("Arguments %v", args.Values()))
		}),
	}
}

func emojiGroup() framework.Group {
	say := func(text string) framework.Handler {
		return framework.HandlerFunc(func(ctx *framework.Context, _ *framework.Args) error {
			return ctx.Say(text)
		})
	}
	return framework.Group{
		Name:   "Emoji",
		Prefix: "emoji",
		Commands: []*framework.Command{
			{
				Name:                "cat",
				Aliases:             []string{"kitty", "neko"},
				Description:         "Sends an emoji with a cat.",
				Bucket:              BucketEmoji,
				RequiredPermissions: bot.PermissionAdministrator,
				Handler:             say(":cat:"),
			},
			{
				Name:        "dog",
				Description: "Sends an emoji with a dog.",
				Bucket:      BucketEmoji,
				Handler:     say(":dog:"),
			},
		},
	}
}
