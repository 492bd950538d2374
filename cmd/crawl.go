package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlkit/internal/app"
)

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Starts the crawl engine",
		Long: `Runs the scheduling engine against the seed URLs and settings in the
configuration file. The engine ticks until every buffer drains or an
interrupt arrives, at which point it joins in-flight work and flushes
buffered output before exiting.`,

		RunE: runCrawlCommand,
	}
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}
	defer application.Close()

	logger := application.Logger()
	logger.Info("starting crawl")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run engine: %w", err)
	}

	logger.Info("crawl finished", zap.Any("snapshot", application.Engine().Snapshot()))
	return nil
}
