package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mikey/jobmail/internal/core"
	"github.com/mikey/jobmail/internal/di"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	service *core.IngestService,
	extractor core.Extractor,
	store core.Store,
) error {
	defer logger.Sync()

	// Handle graceful shutdown: a signal cancels the run at the next
	// message boundary rather than killing it mid-save.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Received signal, finishing current message", zap.String("signal", sig.String()))
		cancel()
	}()

	stats, runErr := service.Run(ctx)
	if stats != nil {
		fmt.Printf("Fetched %d messages: %d extracted (%d records), %d blacklisted, %d duplicates, %d failed\n",
			stats.Fetched, stats.Extracted, stats.Records,
			stats.SkippedBlacklisted, stats.SkippedDuplicate, stats.Failed)
	}

	// Close any resources that need closing
	if closer, ok := extractor.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close extraction client", zap.Error(err))
		}
	}
	if err := store.Close(); err != nil {
		logger.Error("Failed to close store", zap.Error(err))
	}

	return runErr
}
