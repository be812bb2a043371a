package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pandabot",
	Short: "pandabot is a small command bot for Discord and other chat platforms",
	Long: `pandabot answers prefixed or mention-triggered commands on Discord,
Telegram, Feishu and DingTalk. Commands are rate limited per user through
named buckets and every successful dispatch is counted.`,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
}
