package core

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/keepmind9/pandabot/internal/bot"
	"github.com/keepmind9/pandabot/internal/commands"
	"github.com/keepmind9/pandabot/internal/framework"
	"github.com/keepmind9/pandabot/internal/logger"
	"github.com/keepmind9/pandabot/internal/usage"
	"github.com/keepmind9/pandabot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// shardedAdapter is implemented by adapters that run gateway shards
type shardedAdapter interface {
	Shards() *bot.ShardManager
}

// Engine connects bot adapters to the command framework
type Engine struct {
	config       *Config
	fw           *framework.Framework
	counter      *usage.Counter
	activeBots   map[string]bot.BotAdapter       // Bot type -> adapter
	shards       map[string]commands.ShardSource // Bot type -> shard manager
	messageChan  chan bot.BotMessage             // Inbound messages for the worker pool
	statusServer *http.Server                    // Optional HTTP status server
	startedAt    time.Time
	wg           sync.WaitGroup
	stopOnce     sync.Once
	ctx          context.Context    // Context for cancellation
	cancel       context.CancelFunc // Cancel function for graceful shutdown
}

// NewEngine builds the framework described by config and registers every command
func NewEngine(config *Config) (*Engine, error) {
	fw := framework.New(config.FrameworkConfiguration())

	buckets, err := config.BucketSpecs()
	if err != nil {
		return nil, err
	}
	for name, spec := range buckets {
		if err := fw.AddBucket(name, spec); err != nil {
			return nil, fmt.Errorf("failed to add bucket %s: %w", name, err)
		}
	}

	help, err := config.HelpOptions()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		config:      config,
		fw:          fw,
		counter:     usage.NewCounter(),
		activeBots:  make(map[string]bot.BotAdapter),
		shards:      make(map[string]commands.ShardSource),
		messageChan: make(chan bot.BotMessage, config.Dispatch.QueueSize),
		startedAt:   time.Now(),
		ctx:         ctx,
		cancel:      cancel,
	}

	err = commands.Register(fw, commands.Deps{
		Counter: e.counter,
		Shards:  e.shards,
		Owners:  config.Framework.Owners,
		Help:    help,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to register commands: %w", err)
	}

	return e, nil
}

// Framework returns the command framework
func (e *Engine) Framework() *framework.Framework {
	return e.fw
}

// Counter returns the usage counter shared with the commands
func (e *Engine) Counter() *usage.Counter {
	return e.counter
}

// RegisterBotAdapter registers a bot adapter. Call before Run.
func (e *Engine) RegisterBotAdapter(botType string, adapter bot.BotAdapter) {
	e.activeBots[botType] = adapter
	if sharded, ok := adapter.(shardedAdapter); ok {
		e.shards[botType] = sharded.Shards()
	}
}

// Run starts the workers and every registered bot, then blocks until ctx is
// cancelled or Stop is called. A bot that fails to start stops the engine.
func (e *Engine) Run(ctx context.Context) error {
	logger.WithFields(logrus.Fields{
		"workers":  e.config.Dispatch.Workers,
		"bots":     len(e.activeBots),
		"commands": len(e.fw.Registry().Commands()),
	}).Info("starting-pandabot-engine")

	if len(e.activeBots) == 0 {
		return fmt.Errorf("no bot adapters registered")
	}

	go func() {
		select {
		case <-ctx.Done():
			e.cancel()
		case <-e.ctx.Done():
		}
	}()

	for i := 0; i < e.config.Dispatch.Workers; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}

	e.wg.Add(1)
	go e.pruneBuckets()

	if e.config.StatusServer.Enabled {
		e.startStatusServer()
	}

	botTypes := make([]string, 0, len(e.activeBots))
	for botType := range e.activeBots {
		botTypes = append(botTypes, botType)
	}
	sort.Strings(botTypes)

	for _, botType := range botTypes {
		logger.WithField("bot_type", botType).Info("starting-bot")
		if err := e.activeBots[botType].Start(e.HandleBotMessage); err != nil {
			logger.WithFields(logrus.Fields{
				"bot_type": botType,
				"error":    err,
			}).Error("failed-to-start-bot")
			e.Stop()
			return fmt.Errorf("failed to start %s bot: %w", botType, err)
		}
	}

	<-e.ctx.Done()
	logger.Info("engine-context-done")
	return nil
}

// HandleBotMessage is the callback function for bots to deliver messages
func (e *Engine) HandleBotMessage(msg bot.BotMessage) {
	select {
	case e.messageChan <- msg:
	case <-e.ctx.Done():
	}
}

// worker drains the message channel until shutdown
func (e *Engine) worker(id int) {
	defer e.wg.Done()
	logger.WithField("worker", id).Debug("dispatch-worker-started")

	for {
		select {
		case <-e.ctx.Done():
			return
		case msg := <-e.messageChan:
			e.dispatch(msg)
		}
	}
}

func (e *Engine) dispatch(msg bot.BotMessage) {
	adapter, ok := e.activeBots[msg.Platform]
	if !ok {
		logger.WithField("platform", msg.Platform).Warn("message-from-unregistered-platform")
		return
	}
	e.fw.Dispatch(e.ctx, adapter, msg)
}

// pruneBuckets periodically forgets idle rate-limit state
func (e *Engine) pruneBuckets() {
	defer e.wg.Done()
	ticker := time.NewTicker(constants.BucketPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case now := <-ticker.C:
			if n := e.fw.PruneBuckets(now); n > 0 {
				logger.WithField("removed", n).Debug("pruned-bucket-state")
			}
		}
	}
}

// Stop gracefully stops the engine
func (e *Engine) Stop() error {
	e.stopOnce.Do(func() {
		logger.Info("stopping-pandabot-engine")

		// Cancel context to stop workers
		e.cancel()

		if e.statusServer != nil {
			logger.Info("stopping-status-server")
			ctx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			if err := e.statusServer.Shutdown(ctx); err != nil {
				logger.Errorf("failed-to-gracefully-stop-status-server: %v", err)
				e.statusServer.Close()
			}
		}

		e.wg.Wait()

		// Stop all bots
		for botType, botAdapter := range e.activeBots {
			logger.WithField("bot_type", botType).Info("stopping-bot")
			if err := botAdapter.Stop(); err != nil {
				logger.WithFields(logrus.Fields{
					"bot_type": botType,
					"error":    err,
				}).Error("failed-to-stop-bot")
			}
		}

		logger.Info("engine-stopped")
	})
	return nil
}

// NewBotAdapter builds the adapter for botType from its configuration
func NewBotAdapter(botType string, config BotConfig) (bot.BotAdapter, error) {
	switch botType {
	case "discord":
		return bot.NewDiscordBot(config.Token, config.ChannelID, config.ShardCount), nil
	case "telegram":
		return bot.NewTelegramBot(config.Token), nil
	case "feishu":
		feishuBot := bot.NewFeishuBot(config.AppID, config.AppSecret)
		feishuBot.EncryptKey = config.EncryptKey
		feishuBot.VerificationToken = config.VerificationToken
		return feishuBot, nil
	case "dingtalk":
		return bot.NewDingTalkBot(config.AppID, config.AppSecret), nil
	default:
		return nil, fmt.Errorf("unsupported bot type %q", botType)
	}
}
