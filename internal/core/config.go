// Package core wires configuration, platform adapters and the command
// framework into a running bot.
//
// It handles:
//
//   - Configuration loading and validation (from YAML files or compiled-in defaults)
//   - Building the command framework, its buckets and its help texts
//   - Starting every enabled bot adapter and feeding a dispatch worker pool
//   - An optional HTTP status server exposing health and usage counters
//   - Graceful shutdown and cleanup
//
// # Example Configuration
//
//	framework:
//	  prefixes: ["."]
//	  on_mention: true
//	  owners: ["6712"]
//	buckets:
//	  emoji:
//	    delay: 5s
//	bots:
//	  discord:
//	    enabled: true
//	    token: "${DISCORD_TOKEN}"
package core

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/keepmind9/pandabot/internal/framework"
	"github.com/keepmind9/pandabot/internal/logger"
	"github.com/keepmind9/pandabot/pkg/constants"
	"gopkg.in/yaml.v3"
)

const (
	DefaultStatusPort      = 8080
	DefaultLogLevel        = "info"
	DefaultLogMaxSize      = constants.DefaultLogMaxSize // MB
	DefaultLogMaxBackups   = 5
	DefaultLogMaxAge       = constants.DefaultLogMaxAge // days
	DefaultLogEnableStdout = true
	DefaultShardCount      = 1

	// TokenEnvVar supplies the Discord token when no config file is used
	TokenEnvVar = "DISCORD_TOKEN"
)

// supportedBots lists the bot types the engine can start
var supportedBots = map[string]struct{}{
	"discord":  {},
	"telegram": {},
	"feishu":   {},
	"dingtalk": {},
}

// DefaultConfig returns the compiled-in configuration. It has no bots;
// LoadDefaultConfig adds Discord from the environment.
func DefaultConfig() *Config {
	return &Config{
		Framework: FrameworkConfig{
			Prefixes:        []string{"."},
			OnMention:       true,
			AllowWhitespace: true,
			Delimiters:      []string{", ", ","},
		},
		Buckets: map[string]BucketConfig{
			"emoji":       {Delay: "5s"},
			"complicated": {Delay: "5s", Window: "30s", Limit: 2},
		},
		Help: HelpConfig{
			IndividualCommandTip: "Hello!\nIf you want more information about a specific command, just pass the command as an argument.",
			CommandNotFoundText:  "Cound not find {} as a valid command. Sorry! :frowning:",
			SuggestionText:       "How about this command: {}? It's so hot right now.",
			LackingPermissions:   "hide",
			LackingRole:          "nothing",
		},
		Bots: map[string]BotConfig{},
		Dispatch: DispatchConfig{
			Workers:   constants.DefaultDispatchWorkers,
			QueueSize: constants.MessageChannelBufferSize,
		},
		StatusServer: StatusServerConfig{
			Port: DefaultStatusPort,
		},
		Logging: LoggingConfig{
			Level:        DefaultLogLevel,
			MaxSize:      DefaultLogMaxSize,
			MaxBackups:   DefaultLogMaxBackups,
			MaxAge:       DefaultLogMaxAge,
			EnableStdout: DefaultLogEnableStdout,
		},
	}
}

// LoadDefaultConfig returns the compiled-in configuration with a Discord bot
// whose token comes from DISCORD_TOKEN. A missing token is an error.
func LoadDefaultConfig() (*Config, error) {
	token := os.Getenv(TokenEnvVar)
	if token == "" {
		return nil, fmt.Errorf("expected a token in the environment: %s is not set", TokenEnvVar)
	}

	config := DefaultConfig()
	config.Bots["discord"] = BotConfig{
		Enabled:    true,
		Token:      token,
		ShardCount: DefaultShardCount,
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// LoadConfig loads configuration from file and expands environment variables.
// Keys absent from the file keep their DefaultConfig values.
func LoadConfig(configPath string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables
	expandedData, err := expandEnv(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to expand environment variables: %w", err)
	}

	// Parse YAML on top of the defaults
	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expandedData), config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// expandEnv replaces ${VAR_NAME} patterns with environment variable values
func expandEnv(input string) (string, error) {
	var missingVars []string

	result := os.Expand(input, func(key string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		missingVars = append(missingVars, key)
		return ""
	})

	if len(missingVars) > 0 {
		return "", fmt.Errorf("missing required environment variables: %s",
			strings.Join(missingVars, ", "))
	}

	return result, nil
}

// validateConfig fills defaults and checks the configuration
func validateConfig(config *Config) error {
	// Set default logging configuration
	if config.Logging.Level == "" {
		config.Logging.Level = DefaultLogLevel
	}
	if config.Logging.MaxSize == 0 {
		config.Logging.MaxSize = DefaultLogMaxSize
	}
	if config.Logging.MaxBackups == 0 {
		config.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if config.Logging.MaxAge == 0 {
		config.Logging.MaxAge = DefaultLogMaxAge
	}

	// Dispatch pool
	if config.Dispatch.Workers == 0 {
		config.Dispatch.Workers = constants.DefaultDispatchWorkers
	}
	if config.Dispatch.QueueSize == 0 {
		config.Dispatch.QueueSize = constants.MessageChannelBufferSize
	}
	if config.Dispatch.Workers < 0 || config.Dispatch.QueueSize < 0 {
		return fmt.Errorf("dispatch.workers and dispatch.queue_size must be positive")
	}

	// Status server
	if config.StatusServer.Port == 0 {
		config.StatusServer.Port = DefaultStatusPort
	}
	if config.StatusServer.Port < 1 || config.StatusServer.Port > 65535 {
		return fmt.Errorf("status_server.port must be between 1 and 65535 (got %d)", config.StatusServer.Port)
	}

	// A command must be reachable somehow
	if len(config.Framework.Prefixes) == 0 && !config.Framework.OnMention {
		return fmt.Errorf("framework.prefixes cannot be empty when on_mention is disabled")
	}
	for _, p := range config.Framework.Prefixes {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("framework.prefixes cannot contain blank prefixes")
		}
	}

	if _, err := config.BucketSpecs(); err != nil {
		return err
	}
	if _, err := config.HelpOptions(); err != nil {
		return err
	}

	// Validate bots
	enabled := 0
	for botType, bot := range config.Bots {
		if _, ok := supportedBots[botType]; !ok {
			return fmt.Errorf("unsupported bot type %q", botType)
		}
		if !bot.Enabled {
			continue
		}
		enabled++

		switch botType {
		case "discord":
			if bot.ShardCount == 0 {
				bot.ShardCount = DefaultShardCount
			}
			if bot.ShardCount < 0 {
				return fmt.Errorf("bots.discord.shard_count must be positive (got %d)", bot.ShardCount)
			}
			fallthrough
		case "telegram":
			if bot.Token == "" {
				return fmt.Errorf("bots.%s.token is required", botType)
			}
		case "feishu", "dingtalk":
			if bot.AppID == "" || bot.AppSecret == "" {
				return fmt.Errorf("bots.%s.app_id and app_secret are required", botType)
			}
		}
		config.Bots[botType] = bot
	}

	// Validate at least one bot is configured
	if enabled == 0 {
		return fmt.Errorf("at least one bot must be enabled")
	}

	return nil
}

// GetBotConfig retrieves configuration for a specific bot
func (c *Config) GetBotConfig(botType string) (BotConfig, error) {
	bot, exists := c.Bots[botType]
	if !exists {
		return BotConfig{}, fmt.Errorf("bot type %s not found in configuration", botType)
	}

	if !bot.Enabled {
		return BotConfig{}, fmt.Errorf("bot type %s is disabled", botType)
	}

	return bot, nil
}

// FrameworkConfiguration converts the framework section
func (c *Config) FrameworkConfiguration() framework.Configuration {
	return framework.Configuration{
		Prefixes:        c.Framework.Prefixes,
		OnMention:       c.Framework.OnMention,
		AllowWhitespace: c.Framework.AllowWhitespace,
		Delimiters:      c.Framework.Delimiters,
	}
}

// BucketSpecs parses every bucket
func (c *Config) BucketSpecs() (map[string]framework.Bucket, error) {
	specs := make(map[string]framework.Bucket, len(c.Buckets))
	for name, b := range c.Buckets {
		var spec framework.Bucket
		var err error

		if b.Delay != "" {
			if spec.Delay, err = time.ParseDuration(b.Delay); err != nil {
				return nil, fmt.Errorf("invalid delay for bucket %s: %w", name, err)
			}
		}
		if b.Window != "" {
			if spec.Window, err = time.ParseDuration(b.Window); err != nil {
				return nil, fmt.Errorf("invalid window for bucket %s: %w", name, err)
			}
		}
		spec.Limit = b.Limit

		if spec.Delay < 0 || spec.Window < 0 || spec.Limit < 0 {
			return nil, fmt.Errorf("bucket %s: delay, window and limit cannot be negative", name)
		}
		if spec.Limit > 0 && spec.Window == 0 {
			return nil, fmt.Errorf("bucket %s: limit requires a window", name)
		}
		specs[name] = spec
	}
	return specs, nil
}

// HelpOptions converts the help section
func (c *Config) HelpOptions() (framework.HelpOptions, error) {
	lackingPermissions, err := framework.ParseHelpBehaviour(c.Help.LackingPermissions)
	if err != nil {
		return framework.HelpOptions{}, fmt.Errorf("help.lacking_permissions: %w", err)
	}
	lackingRole, err := framework.ParseHelpBehaviour(c.Help.LackingRole)
	if err != nil {
		return framework.HelpOptions{}, fmt.Errorf("help.lacking_role: %w", err)
	}

	return framework.HelpOptions{
		IndividualCommandTip: c.Help.IndividualCommandTip,
		CommandNotFoundText:  c.Help.CommandNotFoundText,
		SuggestionText:       c.Help.SuggestionText,
		LackingPermissions:   lackingPermissions,
		LackingRole:          lackingRole,
	}, nil
}

// LoggerConfig converts the logging section
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:        c.Logging.Level,
		File:         c.Logging.File,
		MaxSize:      c.Logging.MaxSize,
		MaxBackups:   c.Logging.MaxBackups,
		MaxAge:       c.Logging.MaxAge,
		Compress:     c.Logging.Compress,
		EnableStdout: c.Logging.EnableStdout,
	}
}

// EnabledBots returns the enabled bot types
func (c *Config) EnabledBots() []string {
	var out []string
	for _, name := range []string{"discord", "telegram", "feishu", "dingtalk"} {
		if b, ok := c.Bots[name]; ok && b.Enabled {
			out = append(out, name)
		}
	}
	return out
}
