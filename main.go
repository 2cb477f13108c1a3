package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "todoist-notion-sync",
	Short: "Mirror Todoist tasks into a Notion database",
	Long: `todoist-notion-sync creates, updates and archives Notion pages for Todoist tasks.

Todoist stays the source of truth. Each page carries the id of its task and a
Synced timestamp, and each task gets a link to its page in its description.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/todoist-notion-sync/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "also log to stderr when a log file is configured")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(metadataCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
