package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/keepmind9/pandabot/internal/core"
	"github.com/spf13/cobra"
)

var (
	validateConfigFile string
	validateShow       bool
	validateJSON       bool
)

// ValidationResult represents the validation result
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Config   string   `json:"config"`
	Commands int      `json:"commands"`
	Buckets  int      `json:"buckets"`
	Bots     int      `json:"bots"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate pandabot configuration file",
	Long: `Validate the pandabot configuration file without starting the bot.

This command checks:
  - YAML syntax
  - Prefixes and mention settings
  - Bucket durations and limits
  - Help behaviours
  - Bot credentials
  - That every command's bucket exists

Exit codes:
  0 - Configuration is valid
  1 - Configuration has errors`,
	Run: func(cmd *cobra.Command, args []string) {
		configFile := validateConfigFile
		if configFile == "" {
			configFile = findConfigFile()
		}

		if configFile == "" {
			fmt.Println("❌ No configuration file found")
			fmt.Println("\nSpecify a config file with --config or ensure one exists at:")
			for _, loc := range configLocations() {
				fmt.Printf("  - %s\n", loc)
			}
			os.Exit(1)
		}

		if !runValidate(cmd.OutOrStdout(), configFile, validateShow, validateJSON) {
			os.Exit(1)
		}
	},
}

func configLocations() []string {
	return []string{
		"config.yaml",
		filepath.Join(os.Getenv("HOME"), ".config/pandabot/config.yaml"),
		"/etc/pandabot/config.yaml",
	}
}

func findConfigFile() string {
	for _, loc := range configLocations() {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// runValidate loads configFile, builds the engine from it and reports the result
func runValidate(w io.Writer, configFile string, show, jsonFormat bool) bool {
	cfg, err := core.LoadConfig(configFile)
	if err != nil {
		result := ValidationResult{Config: configFile, Errors: []string{err.Error()}}
		outputValidationResult(w, result, jsonFormat)
		return false
	}

	// Building the engine registers every command against the configured buckets
	engine, err := core.NewEngine(cfg)
	if err != nil {
		result := ValidationResult{Config: configFile, Errors: []string{err.Error()}}
		outputValidationResult(w, result, jsonFormat)
		return false
	}

	result := ValidationResult{
		Valid:    true,
		Config:   configFile,
		Commands: len(engine.Framework().Registry().Commands()),
		Buckets:  len(cfg.Buckets),
		Bots:     len(cfg.EnabledBots()),
		Warnings: validateConfigDetails(cfg, engine),
	}

	if show && !jsonFormat {
		showConfig(w, cfg, configFile)
	}

	outputValidationResult(w, result, jsonFormat)
	return result.Valid
}

func showConfig(w io.Writer, cfg *core.Config, configFile string) {
	fmt.Fprintf(w, "✓ Configuration loaded: %s\n\n", configFile)
	fmt.Fprintf(w, "Prefixes: %q (on mention: %v)\n", cfg.Framework.Prefixes, cfg.Framework.OnMention)
	fmt.Fprintf(w, "Delimiters: %q\n", cfg.Framework.Delimiters)

	names := make([]string, 0, len(cfg.Buckets))
	for name := range cfg.Buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(w, "\nBuckets (%d):\n", len(names))
	for _, name := range names {
		b := cfg.Buckets[name]
		fmt.Fprintf(w, "  - %s: delay=%s window=%s limit=%d\n", name, orNone(b.Delay), orNone(b.Window), b.Limit)
	}

	fmt.Fprintf(w, "\nBots (%d):\n", len(cfg.Bots))
	for _, name := range []string{"discord", "telegram", "feishu", "dingtalk"} {
		bot, ok := cfg.Bots[name]
		if !ok {
			continue
		}
		status := "disabled"
		if bot.Enabled {
			status = "enabled"
		}
		fmt.Fprintf(w, "  - %s: %s\n", name, status)
	}
	fmt.Fprintln(w)
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func outputValidationResult(w io.Writer, result ValidationResult, jsonFormat bool) {
	if jsonFormat {
		output, err := json.Marshal(result)
		if err != nil {
			fmt.Fprintf(w, "{\"error\": \"failed to marshal json: %v\"}\n", err)
			return
		}
		fmt.Fprintln(w, string(output))
		return
	}

	if result.Valid {
		fmt.Fprintln(w, "✓ Configuration is valid")
		fmt.Fprintf(w, "  - Config: %s\n", result.Config)
		fmt.Fprintf(w, "  - Commands: %d\n", result.Commands)
		fmt.Fprintf(w, "  - Buckets: %d\n", result.Buckets)
		fmt.Fprintf(w, "  - Bots enabled: %d\n", result.Bots)
		if len(result.Warnings) > 0 {
			fmt.Fprintln(w, "\n⚠️  Warnings:")
			for _, warning := range result.Warnings {
				fmt.Fprintf(w, "  - %s\n", warning)
			}
		}
		return
	}

	fmt.Fprintln(w, "❌ Configuration validation failed:")
	if len(result.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, errMsg := range result.Errors {
			fmt.Fprintf(w, "  - %s\n", errMsg)
		}
	}
}

// validateConfigDetails reports settings that load fine but are probably mistakes
func validateConfigDetails(cfg *core.Config, engine *core.Engine) []string {
	var warnings []string

	if len(cfg.Framework.Owners) == 0 {
		warnings = append(warnings, "No owners configured - owner-only commands cannot be used")
	}

	used := make(map[string]bool)
	for _, cmd := range engine.Framework().Registry().Commands() {
		if cmd.Bucket != "" {
			used[cmd.Bucket] = true
		}
	}
	for _, name := range engine.Framework().Buckets() {
		if !used[name] {
			warnings = append(warnings, fmt.Sprintf("Bucket '%s' is not used by any command", name))
		}
	}

	if len(cfg.Framework.Delimiters) == 0 {
		warnings = append(warnings, "No delimiters configured - arguments are split on whitespace")
	}

	return warnings
}

func init() {
	validateCmd.Flags().StringVarP(&validateConfigFile, "config", "c", "", "Configuration file path")
	validateCmd.Flags().BoolVar(&validateShow, "show", false, "Show full configuration details")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Output in JSON format")
}
