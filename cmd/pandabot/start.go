package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/keepmind9/pandabot/internal/core"
	"github.com/keepmind9/pandabot/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const defaultEnvFile = ".env"

var (
	configFile string
	envFile    string

	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the pandabot main process",
		Long: `Start the pandabot main process and answer commands on every enabled bot.

Without --config the bot runs with the built-in command setup and takes its
Discord token from DISCORD_TOKEN (optionally read from a .env file).`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := loadEnvFile(envFile); err != nil {
				log.Fatalf("Failed to load env file: %v", err)
			}

			config, err := loadStartConfig(configFile)
			if err != nil {
				log.Fatalf("Failed to load config: %v", err)
			}

			if err := logger.InitLogger(config.LoggerConfig()); err != nil {
				log.Fatalf("Failed to initialize logger: %v", err)
			}

			logger.WithFields(logrus.Fields{
				"config_file": configFile,
				"log_level":   config.Logging.Level,
				"log_file":    config.Logging.File,
				"prefixes":    config.Framework.Prefixes,
			}).Info("logger-initialized")

			engine, err := core.NewEngine(config)
			if err != nil {
				log.Fatalf("Failed to create engine: %v", err)
			}

			for _, botType := range config.EnabledBots() {
				adapter, err := core.NewBotAdapter(botType, config.Bots[botType])
				if err != nil {
					log.Fatalf("Failed to create %s bot adapter: %v", botType, err)
				}
				engine.RegisterBotAdapter(botType, adapter)
				logger.WithField("bot_type", botType).Info("registered-bot-adapter")
			}

			// Setup signal handling for graceful shutdown
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Println("pandabot engine starting...")
			fmt.Println("Press Ctrl+C to stop")

			runErr := engine.Run(ctx)
			if err := engine.Stop(); err != nil {
				log.Printf("Error during shutdown: %v", err)
			}
			if runErr != nil {
				log.Fatalf("Engine error: %v", runErr)
			}

			log.Println("pandabot stopped")
		},
	}
)

// loadEnvFile loads KEY=VALUE pairs into the environment. Only the default
// file may be absent.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err != nil && errors.Is(err, os.ErrNotExist) && path == defaultEnvFile {
		return nil
	}
	return err
}

// loadStartConfig reads the config file, or builds the default configuration
// from the environment when no file is given
func loadStartConfig(path string) (*core.Config, error) {
	if path == "" {
		return core.LoadDefaultConfig()
	}
	return core.LoadConfig(path)
}

func init() {
	startCmd.Flags().StringVarP(&configFile, "config", "c", "", "Configuration file path (default: built-in setup from DISCORD_TOKEN)")
	startCmd.Flags().StringVar(&envFile, "env-file", defaultEnvFile, "Environment file loaded before the configuration")
}
