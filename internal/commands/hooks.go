package commands

import (
	"fmt"

	"github.com/keepmind9/pandabot/internal/framework"
	"github.com/keepmind9/pandabot/internal/logger"
	"github.com/keepmind9/pandabot/internal/usage"
	"github.com/sirupsen/logrus"
)

// InstallHooks wires the before, after and dispatch-error hooks into fw
func InstallHooks(fw *framework.Framework, counter *usage.Counter) {
	fw.Before(BeforeHook(counter)).
		After(AfterHook).
		OnDispatchError(DispatchErrorHook)
}

// BeforeHook logs the command and counts it under its canonical name
func BeforeHook(counter *usage.Counter) framework.BeforeFunc {
	return func(ctx *framework.Context, command string) bool {
		logger.WithFields(logrus.Fields{
			"command":  command,
			"platform": ctx.Message.Platform,
			"user":     ctx.Message.Username,
			"user_id":  ctx.Message.UserID,
		}).Info("got-command")

		counter.Increment(command)
		return true
	}
}

// AfterHook logs the handler result
func AfterHook(ctx *framework.Context, command string, err error) {
	fields := logrus.Fields{
		"command":  command,
		"platform": ctx.Message.Platform,
		"user_id":  ctx.Message.UserID,
	}
	if err != nil {
		fields["error"] = err
		logger.WithFields(fields).Warn("command-returned-error")
		return
	}
	logger.WithFields(fields).Info("processed-command")
}

// DispatchErrorHook tells rate-limited users when to retry and drops the rest
func DispatchErrorHook(ctx *framework.Context, derr *framework.DispatchError) {
	if derr.Kind != framework.KindRateLimited {
		return
	}

	text := fmt.Sprintf("Try this again in %d seconds.", derr.RetrySeconds())
	if err := ctx.Say(text); err != nil {
		logger.WithFields(logrus.Fields{
			"command": derr.Command.Name,
			"channel": ctx.Message.Channel,
			"error":   err,
		}).Error("failed-to-send-rate-limit-notice")
	}
}
