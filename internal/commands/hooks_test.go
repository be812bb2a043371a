package commands

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/keepmind9/pandabot/internal/bot"
	"github.com/keepmind9/pandabot/internal/bot/bottest"
	"github.com/keepmind9/pandabot/internal/framework"
	"github.com/keepmind9/pandabot/internal/logger"
	"github.com/keepmind9/pandabot/internal/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, logger.InitLogger(logger.Config{Level: "info", Output: &buf}))
	t.Cleanup(func() {
		_ = logger.InitLogger(logger.Config{Level: "info"})
	})
	return &buf
}

func hookContext(rec *bottest.Recorder) *framework.Context {
	return &framework.Context{
		Context: context.Background(),
		Adapter: rec,
		Message: bot.BotMessage{Platform: "discord", UserID: "42", Username: "panda", Channel: "chan"},
	}
}

func TestBeforeHook_LogsAndCounts(t *testing.T) {
	logs := captureLogs(t)
	counter := usage.NewCounter()
	hook := BeforeHook(counter)

	assert.True(t, hook(hookContext(bottest.NewRecorder()), "about"))
	assert.True(t, hook(hookContext(bottest.NewRecorder()), "about"))

	assert.Equal(t, uint64(2), counter.Count("about"))
	assert.Contains(t, logs.String(), "got-command")
	assert.Contains(t, logs.String(), "panda")
}

func TestAfterHook_LogsOutcome(t *testing.T) {
	logs := captureLogs(t)
	ctx := hookContext(bottest.NewRecorder())

	AfterHook(ctx, "about", nil)
	assert.Contains(t, logs.String(), "processed-command")

	AfterHook(ctx, "multiply", errors.New("not a number"))
	assert.Contains(t, logs.String(), "command-returned-error")
	assert.Contains(t, logs.String(), "not a number")
}

func TestDispatchErrorHook(t *testing.T) {
	rec := bottest.NewRecorder()
	ctx := hookContext(rec)
	cmd := &framework.Command{Name: "dog"}

	DispatchErrorHook(ctx, &framework.DispatchError{Kind: framework.KindRateLimited, Command: cmd, RetryAfter: 2300 * time.Millisecond})
	assert.Equal(t, []string{"Try this again in 3 seconds."}, rec.Texts())

	rec.Reset()
	for _, kind := range []framework.DispatchErrorKind{
		framework.KindLackOfPermissions,
		framework.KindLackingRole,
		framework.KindCheckFailed,
	} {
		DispatchErrorHook(ctx, &framework.DispatchError{Kind: kind, Command: cmd})
	}
	DispatchErrorHook(ctx, &framework.DispatchError{Kind: framework.KindCommandNotFound, Token: "x"})
	assert.Empty(t, rec.Sent())
}

func TestDispatchErrorHook_SendFailureIsLogged(t *testing.T) {
	logs := captureLogs(t)
	rec := bottest.NewRecorder()
	rec.SendErr = errors.New("missing access")

	require.NotPanics(t, func() {
		DispatchErrorHook(hookContext(rec), &framework.DispatchError{
			Kind:       framework.KindRateLimited,
			Command:    &framework.Command{Name: "cat"},
			RetryAfter: time.Second,
		})
	})
	assert.Contains(t, logs.String(), "failed-to-send-rate-limit-notice")
}
