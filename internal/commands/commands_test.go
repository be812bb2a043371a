package commands

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/keepmind9/pandabot/internal/bot"
	"github.com/keepmind9/pandabot/internal/bot/bottest"
	"github.com/keepmind9/pandabot/internal/framework"
	"github.com/keepmind9/pandabot/internal/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ownerID = "6712"

type fixture struct {
	fw      *framework.Framework
	counter *usage.Counter
	shards  *bot.ShardManager
	rec     *bottest.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fw := framework.New(framework.Configuration{
		Prefixes:        []string{"."},
		OnMention:       true,
		AllowWhitespace: true,
		Delimiters:      []string{", ", ","},
	})
	require.NoError(t, fw.AddBucket(BucketEmoji, framework.Bucket{Delay: 5 * time.Second}))
	require.NoError(t, fw.AddBucket(BucketComplicated, framework.Bucket{Delay: 5 * time.Second, Window: 30 * time.Second, Limit: 2}))

	f := &fixture{
		fw:      fw,
		counter: usage.NewCounter(),
		shards:  bot.NewShardManager(1),
		rec:     bottest.NewRecorder(),
	}
	require.NoError(t, Register(fw, Deps{
		Counter: f.counter,
		Shards:  map[string]ShardSource{"discord": f.shards},
		Owners:  []string{ownerID},
		Help: framework.HelpOptions{
			CommandNotFoundText: "Cound not find {} as a valid command. Sorry! :frowning:",
			LackingPermissions:  framework.BehaviourHide,
		},
	}))
	return f
}

func (f *fixture) send(content string) {
	f.sendAs("user-1", content)
}

func (f *fixture) sendAs(userID, content string) {
	f.fw.Dispatch(context.Background(), f.rec, bot.BotMessage{
		Platform:  "discord",
		MessageID: "msg",
		UserID:    userID,
		Username:  "tester",
		Channel:   "chan",
		GuildID:   "guild",
		Content:   content,
	})
}

func (f *fixture) lastText(t *testing.T) string {
	t.Helper()
	texts := f.rec.Texts()
	require.NotEmpty(t, texts)
	return texts[len(texts)-1]
}

func TestRegister_ResolvesNamesAndAliases(t *testing.T) {
	f := newFixture(t)
	registry := f.fw.Registry()

	ping, ok := registry.Resolve("ping")
	require.True(t, ok)
	assert.Equal(t, "ping", ping.Name)

	multiply, ok := registry.Resolve("*")
	require.True(t, ok)
	assert.Equal(t, "multiply", multiply.Name)

	for _, token := range []string{"emoji cat", "emoji kitty", "emoji neko", "emoji dog", "some long command", "help"} {
		_, ok := registry.Resolve(token)
		assert.True(t, ok, token)
	}

	_, ok = registry.Resolve("pong")
	assert.False(t, ok)
}

func TestRegister_FailsWithoutBuckets(t *testing.T) {
	fw := framework.New(framework.Configuration{Prefixes: []string{"."}})
	err := Register(fw, Deps{})
	assert.ErrorIs(t, err, framework.ErrUnknownBucket)
}

func TestRegister_Twice(t *testing.T) {
	f := newFixture(t)
	err := Register(f.fw, Deps{Counter: f.counter})
	assert.ErrorIs(t, err, framework.ErrDuplicateCommandName)
}

func TestRegister_FailureKeepsHooksAndCommands(t *testing.T) {
	f := newFixture(t)
	before := len(f.fw.Registry().Commands())

	rejected := usage.NewCounter()
	err := Register(f.fw, Deps{Counter: rejected})
	require.ErrorIs(t, err, framework.ErrDuplicateCommandName)
	assert.Len(t, f.fw.Registry().Commands(), before)

	f.send(".about")
	assert.Equal(t, uint64(1), f.counter.Count("about"))
	assert.Zero(t, rejected.Count("about"))
}

func TestRegister_UnknownBucketRegistersNothing(t *testing.T) {
	fw := framework.New(framework.Configuration{Prefixes: []string{"."}})
	require.NoError(t, fw.AddBucket(BucketComplicated, framework.Bucket{Delay: time.Second}))

	err := Register(fw, Deps{})
	require.ErrorIs(t, err, framework.ErrUnknownBucket)
	assert.Empty(t, fw.Registry().Commands())
}

func TestAbout(t *testing.T) {
	f := newFixture(t)
	f.send(".about")
	assert.Equal(t, "This is a small test-bot! : )", f.lastText(t))
}

func TestMultiply(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{".multiply 3, 4", "12"},
		{".* 3,4", "12"},
		{".multiply 1.5, 2", "3"},
		{".multiply -2.5, 0.5", "-1.25"},
	}

	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			f := newFixture(t)
			f.send(tt.content)
			assert.Equal(t, tt.want, f.lastText(t))
		})
	}
}

func TestMultiply_BadInput(t *testing.T) {
	f := newFixture(t)

	var results []error
	f.fw.After(func(_ *framework.Context, _ string, err error) {
		results = append(results, err)
	})

	require.NotPanics(t, func() {
		f.send(".multiply three, 4")
		f.send(".multiply 3")
	})

	require.Len(t, results, 2)
	for _, err := range results {
		assert.Error(t, err)
	}
	for _, text := range f.rec.Texts() {
		assert.Contains(t, text, "two numbers")
	}
}

func TestCommands_ReportsUsage(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		f.sendAs(ownerID, ".ping")
	}
	f.send(".about")
	f.send(".commands")

	report := f.lastText(t)
	assert.True(t, strings.HasPrefix(report, "Commands used:\n"))

	lines := strings.Split(strings.TrimSpace(report), "\n")
	assert.Contains(t, lines, "- ping: 3")
	assert.Contains(t, lines, "- about: 1")
	assert.Contains(t, lines, "- commands: 1")
}

func TestCommands_RateLimited(t *testing.T) {
	f := newFixture(t)

	f.send(".commands")
	f.send(".commands")

	assert.Regexp(t, `^Try this again in [1-5] seconds\.$`, f.lastText(t))
	assert.Equal(t, uint64(1), f.counter.Count("commands"))
}

func TestPing_OwnerOnly(t *testing.T) {
	f := newFixture(t)

	f.send(".ping")
	assert.Empty(t, f.rec.Sent())
	assert.Equal(t, uint64(0), f.counter.Count("ping"))

	f.sendAs(ownerID, ".ping")
	assert.Equal(t, []string{"Pong! :panda_face:"}, f.rec.Texts())
}

func TestEmoji(t *testing.T) {
	f := newFixture(t)

	f.send(".emoji dog")
	assert.Equal(t, ":dog:", f.lastText(t))

	// cat needs Administrator; lacking it is dropped silently
	f.rec.Reset()
	f.sendAs("user-2", ".emoji cat")
	assert.Empty(t, f.rec.Sent())

	f.rec.Permissions["admin"] = bot.PermissionAdministrator
	f.sendAs("admin", ".emoji neko")
	assert.Equal(t, []string{":cat:"}, f.rec.Texts())

	// The emoji bucket is shared by cat and dog
	f.sendAs("admin", ".emoji dog")
	assert.Regexp(t, `^Try this again in \d seconds\.$`, f.lastText(t))
}

func TestLatency(t *testing.T) {
	f := newFixture(t)

	f.send(".latency")
	last, ok := f.rec.Last()
	require.True(t, ok)
	assert.Equal(t, "No shard found", last.Text)
	assert.Equal(t, "msg", last.ReplyTo)

	f.shards.Add(&bot.ShardRunner{ID: 0, Latency: func() time.Duration { return 42 * time.Millisecond }})
	f.send(".latency")
	assert.Equal(t, "The shard latency is 42ms", f.lastText(t))

	f.fw.Dispatch(context.Background(), f.rec, bot.BotMessage{Platform: "telegram", UserID: "u", Channel: "c", Content: ".latency"})
	assert.Equal(t, "There was a problem getting the shard manager", f.lastText(t))
}

func TestRole(t *testing.T) {
	f := newFixture(t)
	f.rec.GuildRoles["guild"] = []bot.Role{{ID: "111", Name: "altcoin god"}}

	// Not holding an allowed role
	f.send(".role altcoin god")
	assert.Empty(t, f.rec.Sent())

	f.rec.Roles["user-1"] = []bot.Role{{ID: "222", Name: "organizers"}}
	f.send(".role altcoin god")
	assert.Equal(t, "Role-ID: 111", f.lastText(t))

	f.send(".role moderators")
	assert.Equal(t, `Could not find role named: "moderators"`, f.lastText(t))
}

func TestSomeLongCommand(t *testing.T) {
	f := newFixture(t)
	f.send(".some long command a, b")
	assert.Equal(t, "Arguments [a b]", f.lastText(t))
}

func TestHelp_NotFound(t *testing.T) {
	f := newFixture(t)
	f.send(".help qqqqqqq")
	assert.Equal(t, "Cound not find qqqqqqq as a valid command. Sorry! :frowning:", f.lastText(t))
}

func TestUnknownCommand_IsSilent(t *testing.T) {
	f := newFixture(t)
	f.send(".nope")
	assert.Empty(t, f.rec.Sent())
	assert.Zero(t, f.counter.Len())
}

func TestCounter_NoLostUpdatesUnderConcurrentDispatch(t *testing.T) {
	f := newFixture(t)

	const workers, perWorker = 16, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				f.send(".about")
				f.send(".multiply 2, 2")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(workers*perWorker), f.counter.Count("about"))
	assert.Equal(t, uint64(workers*perWorker), f.counter.Count("multiply"))
}

func TestFormatUsage(t *testing.T) {
	out := formatUsage([]usage.Entry{{Name: "ping", Count: 3}, {Name: "about", Count: 1}})
	assert.Equal(t, "Commands used:\n- ping: 3\n- about: 1\n", out)
	assert.Equal(t, "Commands used:\n", formatUsage(nil))
}
