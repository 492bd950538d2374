// Package cmd defines and implements the CLI commands for the crawlkit executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/crawlkit/internal/config"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawlkit",
		Short: "A backpressure-aware web crawl scheduling engine.",
		Long: `crawlkit drives a web crawl through a single scheduling loop that
balances pending tasks, acquired client profiles, in-flight fetches and
harvested results, applying watermark-based backpressure at each stage.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./crawlkit.yaml)")

	cmd.AddCommand(newCrawlCmd())

	return cmd
}

// loadConfig resolves the --config flag into a validated Config.
func loadConfig() (config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("crawlkit.yaml"); err == nil {
			path = "crawlkit.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
