package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/keepmind9/pandabot/internal/core"
	"github.com/keepmind9/pandabot/pkg/constants"
	"github.com/spf13/cobra"
)

var (
	statusAddr string
	statusJSON bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show command usage of a running pandabot",
	Long: `Query the status server of a running pandabot and print how often each
command has been used. The status server must be enabled in the configuration.`,
	Run: func(cmd *cobra.Command, args []string) {
		usage, err := fetchUsage(statusAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to query status server: %v\n", err)
			os.Exit(1)
		}
		if err := printUsage(cmd.OutOrStdout(), usage, statusJSON); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to print usage: %v\n", err)
			os.Exit(1)
		}
	},
}

// fetchUsage reads GET /usage from the status server at addr
func fetchUsage(addr string) (core.UsageResponse, error) {
	var usage core.UsageResponse

	client := &http.Client{Timeout: constants.StatusRequestTimeout}
	resp, err := client.Get(strings.TrimRight(addr, "/") + "/usage")
	if err != nil {
		return usage, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return usage, fmt.Errorf("unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&usage); err != nil {
		return usage, fmt.Errorf("failed to decode usage: %w", err)
	}
	return usage, nil
}

func printUsage(w io.Writer, usage core.UsageResponse, jsonFormat bool) error {
	if jsonFormat {
		output, err := json.MarshalIndent(usage, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(output))
		return err
	}

	fmt.Fprintln(w, "Commands used:")
	for _, entry := range usage.Commands {
		fmt.Fprintf(w, "- %s: %d\n", entry.Name, entry.Count)
	}
	_, err := fmt.Fprintf(w, "Total: %d\n", usage.Total)
	return err
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", fmt.Sprintf("http://localhost:%d", core.DefaultStatusPort), "Status server address")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format")
}
