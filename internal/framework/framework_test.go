package framework

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/keepmind9/pandabot/internal/bot"
	"github.com/keepmind9/pandabot/internal/bot/bottest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trace records hook calls in order
type trace struct {
	mu     sync.Mutex
	events []string
	errs   []*DispatchError
	after  []error
}

func (tr *trace) add(event string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.events = append(tr.events, event)
}

func newTestFramework(t *testing.T, config Configuration) (*Framework, *trace) {
	t.Helper()
	fw := New(config)
	tr := &trace{}
	fw.Before(func(ctx *Context, name string) bool {
		tr.add("before:" + name)
		return true
	})
	fw.After(func(ctx *Context, name string, err error) {
		tr.add("after:" + name)
		tr.mu.Lock()
		tr.after = append(tr.after, err)
		tr.mu.Unlock()
	})
	fw.OnDispatchError(func(ctx *Context, err *DispatchError) {
		tr.add("error:" + err.Kind.String())
		tr.mu.Lock()
		tr.errs = append(tr.errs, err)
		tr.mu.Unlock()
	})
	return fw, tr
}

func defaultConfig() Configuration {
	return Configuration{
		Prefixes:        []string{"."},
		OnMention:       true,
		AllowWhitespace: true,
		Delimiters:      []string{", ", ","},
	}
}

func message(content string) bot.BotMessage {
	return bot.BotMessage{
		Platform:  "discord",
		MessageID: "m1",
		UserID:    "u1",
		Channel:   "c1",
		GuildID:   "g1",
		SelfID:    "bot",
		Content:   content,
	}
}

func echo(prefix string) Handler {
	return HandlerFunc(func(ctx *Context, args *Args) error {
		return ctx.Say(prefix + args.Full())
	})
}

func TestDispatch_Prefixes(t *testing.T) {
	tests := []struct {
		name    string
		config  func(*Configuration)
		content string
		handled bool
	}{
		{"plain prefix", nil, ".about", true},
		{"whitespace after prefix", nil, ".  about", true},
		{"whitespace disallowed", func(c *Configuration) { c.AllowWhitespace = false }, ". about", false},
		{"no-break space after prefix", nil, ".\u00a0about", true},
		{"no-break space disallowed", func(c *Configuration) { c.AllowWhitespace = false }, ".\u00a0about", false},
		{"mention", nil, "<@bot> about", true},
		{"nickname mention", nil, "<@!bot>about", true},
		{"mention disabled", func(c *Configuration) { c.OnMention = false }, "<@bot> about", false},
		{"other mention", nil, "<@someone> about", false},
		{"no prefix", nil, "about", false},
		{"prefix only", nil, ".", false},
		{"second prefix", func(c *Configuration) { c.Prefixes = append(c.Prefixes, "!!") }, "!!about", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := defaultConfig()
			if tt.config != nil {
				tt.config(&config)
			}
			fw, tr := newTestFramework(t, config)
			require.NoError(t, fw.Register(&Command{Name: "about", Handler: echo("This is a small test-bot! : )")}))
			rec := bottest.NewRecorder()

			handled := fw.Dispatch(context.Background(), rec, message(tt.content))
			assert.Equal(t, tt.handled, handled)
			if tt.handled {
				assert.Equal(t, []string{"This is a small test-bot! : )"}, rec.Texts())
				assert.Equal(t, []string{"before:about", "after:about"}, tr.events)
			} else {
				assert.Empty(t, rec.Sent())
				assert.Empty(t, tr.events)
			}
		})
	}
}

func TestDispatch_ArgumentsAndLongestToken(t *testing.T) {
	fw, _ := newTestFramework(t, defaultConfig())
	var got []string
	capture := HandlerFunc(func(ctx *Context, args *Args) error {
		got = append(got, ctx.Command.Name+"|"+args.Full())
		return nil
	})
	require.NoError(t, fw.Register(&Command{Name: "some", Handler: capture}))
	require.NoError(t, fw.Register(&Command{Name: "some long command", Handler: capture}))
	require.NoError(t, fw.RegisterGroup(Group{
		Name:     "Emoji",
		Prefix:   "emoji",
		Commands: []*Command{{Name: "cat", Aliases: []string{"kitty"}, Handler: capture}},
	}))
	rec := bottest.NewRecorder()

	fw.Dispatch(context.Background(), rec, message(".some long command a, b"))
	fw.Dispatch(context.Background(), rec, message(".some thing"))
	fw.Dispatch(context.Background(), rec, message(".emoji   kitty"))

	assert.Equal(t, []string{
		"some long command|a, b",
		"some|thing",
		"cat|",
	}, got)
}

func TestDispatch_CommandNotFound(t *testing.T) {
	fw, tr := newTestFramework(t, defaultConfig())
	rec := bottest.NewRecorder()

	assert.True(t, fw.Dispatch(context.Background(), rec, message(".nope a b")))
	require.Len(t, tr.errs, 1)
	assert.Equal(t, KindCommandNotFound, tr.errs[0].Kind)
	assert.Equal(t, "nope", tr.errs[0].Token)
	assert.Nil(t, tr.errs[0].Command)
	assert.Equal(t, []string{"error:command-not-found"}, tr.events)
}

func TestDispatch_RateLimited(t *testing.T) {
	fw, tr := newTestFramework(t, defaultConfig())
	now := epoch
	fw.now = func() time.Time { return now }

	require.NoError(t, fw.AddBucket("emoji", Bucket{Delay: 5 * time.Second}))
	require.NoError(t, fw.Register(&Command{Name: "dog", Bucket: "emoji", Handler: echo(":dog:")}))
	rec := bottest.NewRecorder()

	fw.Dispatch(context.Background(), rec, message(".dog"))
	now = now.Add(1500 * time.Millisecond)
	fw.Dispatch(context.Background(), rec, message(".dog"))

	assert.Equal(t, []string{":dog:"}, rec.Texts())
	require.Len(t, tr.errs, 1)
	assert.Equal(t, KindRateLimited, tr.errs[0].Kind)
	assert.Equal(t, 3500*time.Millisecond, tr.errs[0].RetryAfter)
	assert.Equal(t, int64(4), tr.errs[0].RetrySeconds())

	// Another user is not affected
	other := message(".dog")
	other.UserID = "u2"
	fw.Dispatch(context.Background(), rec, other)
	assert.Len(t, rec.Texts(), 2)

	now = now.Add(time.Hour)
	assert.Equal(t, 2, fw.PruneBuckets(now))
}

func TestDispatch_Permissions(t *testing.T) {
	fw, tr := newTestFramework(t, defaultConfig())
	require.NoError(t, fw.Register(&Command{
		Name:                "cat",
		RequiredPermissions: bot.PermissionAdministrator,
		Handler:             echo(":cat:"),
	}))
	require.NoError(t, fw.Register(&Command{
		Name:                "kick",
		RequiredPermissions: 1 << 1,
		Handler:             echo("kicked"),
	}))

	rec := bottest.NewRecorder()
	fw.Dispatch(context.Background(), rec, message(".cat"))
	assert.Empty(t, rec.Sent())
	require.Len(t, tr.errs, 1)
	assert.Equal(t, KindLackOfPermissions, tr.errs[0].Kind)
	assert.Equal(t, bot.PermissionAdministrator, tr.errs[0].Permissions)

	rec.Permissions["u1"] = bot.PermissionAdministrator
	fw.Dispatch(context.Background(), rec, message(".cat"))
	// Administrator implies every other bit
	fw.Dispatch(context.Background(), rec, message(".kick"))
	assert.Equal(t, []string{":cat:", "kicked"}, rec.Texts())
}

func TestDispatch_AllowedRoles(t *testing.T) {
	fw, tr := newTestFramework(t, defaultConfig())
	require.NoError(t, fw.Register(&Command{
		Name:         "role",
		AllowedRoles: []string{"organizers", "altcoin god"},
		Handler:      echo("ok"),
	}))

	rec := bottest.NewRecorder()
	rec.Roles["u1"] = []bot.Role{{ID: "1", Name: "members"}}
	fw.Dispatch(context.Background(), rec, message(".role"))
	assert.Empty(t, rec.Sent())
	require.Len(t, tr.errs, 1)
	assert.Equal(t, KindLackingRole, tr.errs[0].Kind)

	rec.Roles["u1"] = append(rec.Roles["u1"], bot.Role{ID: "2", Name: "altcoin god"})
	fw.Dispatch(context.Background(), rec, message(".role"))
	assert.Equal(t, []string{"ok"}, rec.Texts())
}

func TestDispatch_ChecksRejectSilently(t *testing.T) {
	fw, tr := newTestFramework(t, defaultConfig())
	ownerOnly := func(ctx *Context, _ *Args) bool { return ctx.Message.UserID == "owner" }
	require.NoError(t, fw.Register(&Command{Name: "ping", Checks: []Check{ownerOnly}, Handler: echo("Pong!")}))

	rec := bottest.NewRecorder()
	fw.Dispatch(context.Background(), rec, message(".ping"))
	assert.Empty(t, rec.Sent())
	assert.Equal(t, []string{"error:check-failed"}, tr.events)

	owner := message(".ping")
	owner.UserID = "owner"
	fw.Dispatch(context.Background(), rec, owner)
	assert.Equal(t, []string{"Pong!"}, rec.Texts())
}

func TestDispatch_BeforeCanStop(t *testing.T) {
	fw := New(defaultConfig())
	afterCalled := false
	fw.Before(func(*Context, string) bool { return false })
	fw.After(func(*Context, string, error) { afterCalled = true })
	require.NoError(t, fw.Register(&Command{Name: "about", Handler: echo("x")}))

	rec := bottest.NewRecorder()
	assert.True(t, fw.Dispatch(context.Background(), rec, message(".about")))
	assert.Empty(t, rec.Sent())
	assert.False(t, afterCalled)
}

func TestDispatch_HandlerErrorsReachAfter(t *testing.T) {
	fw, tr := newTestFramework(t, defaultConfig())
	boom := errors.New("boom")
	require.NoError(t, fw.Register(&Command{Name: "fail", Handler: HandlerFunc(func(*Context, *Args) error { return boom })}))
	require.NoError(t, fw.Register(&Command{Name: "panic", Handler: HandlerFunc(func(*Context, *Args) error { panic("oops") })}))

	rec := bottest.NewRecorder()
	require.NotPanics(t, func() {
		fw.Dispatch(context.Background(), rec, message(".fail"))
		fw.Dispatch(context.Background(), rec, message(".panic"))
	})

	require.Len(t, tr.after, 2)
	assert.ErrorIs(t, tr.after[0], boom)
	require.Error(t, tr.after[1])
	assert.Contains(t, tr.after[1].Error(), "oops")
}

func TestDispatch_IgnoresOversizedInput(t *testing.T) {
	fw, tr := newTestFramework(t, defaultConfig())
	require.NoError(t, fw.Register(&Command{Name: "about", Handler: echo("x")}))

	big := make([]byte, 10001)
	for i := range big {
		big[i] = 'a'
	}
	assert.False(t, fw.Dispatch(context.Background(), bottest.NewRecorder(), message(".about "+string(big))))
	assert.Empty(t, tr.events)
}

func TestFramework_Buckets(t *testing.T) {
	fw := New(defaultConfig())

	assert.Error(t, fw.AddBucket("", Bucket{}))
	assert.Error(t, fw.AddBucket("bad", Bucket{Limit: 2}))
	assert.Error(t, fw.AddBucket("neg", Bucket{Delay: -time.Second}))
	require.NoError(t, fw.AddBucket("emoji", Bucket{Delay: 5 * time.Second}))
	require.NoError(t, fw.AddBucket("complicated", Bucket{Delay: 5 * time.Second, Window: 30 * time.Second, Limit: 2}))
	assert.Equal(t, []string{"complicated", "emoji"}, fw.Buckets())

	err := fw.Register(&Command{Name: "x", Bucket: "missing", Handler: echo("")})
	assert.ErrorIs(t, err, ErrUnknownBucket)
	_, ok := fw.Registry().Resolve("x")
	assert.False(t, ok)

	err = fw.RegisterGroup(Group{Name: "G", Commands: []*Command{{Name: "y", Bucket: "missing", Handler: echo("")}}})
	assert.ErrorIs(t, err, ErrUnknownBucket)
}

func TestDispatch_ConcurrentSafe(t *testing.T) {
	fw := New(defaultConfig())
	var mu sync.Mutex
	count := 0
	fw.Before(func(*Context, string) bool {
		mu.Lock()
		count++
		mu.Unlock()
		return true
	})
	require.NoError(t, fw.Register(&Command{Name: "about", Handler: echo("x")}))
	rec := bottest.NewRecorder()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fw.Dispatch(context.Background(), rec, message(".about"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, count)
	assert.Len(t, rec.Sent(), 50)
}
