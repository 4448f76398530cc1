package di

import (
	"context"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/jobmail/internal/adapters/gmailsource"
	"github.com/mikey/jobmail/internal/blacklist"
	"github.com/mikey/jobmail/internal/config"
	"github.com/mikey/jobmail/internal/core"
	"github.com/mikey/jobmail/internal/factory"
	"github.com/mikey/jobmail/internal/logging"
	"github.com/mikey/jobmail/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewLLMFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return nil, err
	}

	// Register mail source
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (core.MailSource, error) {
		gmailFactory := gmailsource.NewFactory(cfg, logger)
		return gmailFactory.CreateSource(context.Background())
	}); err != nil {
		return nil, err
	}

	// Register extraction client
	if err := container.Provide(func(f *factory.LLMFactory) (core.Extractor, error) {
		return f.CreateExtractor()
	}); err != nil {
		return nil, err
	}

	// Register store
	if err := container.Provide(func(f *factory.StoreFactory) (core.Store, error) {
		return f.CreateStore()
	}); err != nil {
		return nil, err
	}

	// Register blacklist filter
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (core.MessageFilter, error) {
		filter, err := blacklist.Load(cfg.GetString("blacklist.path"), logger)
		if err != nil {
			return nil, err
		}
		if terms := filter.Terms(); len(terms) > 0 {
			logger.Info("Loaded blacklist terms", zap.Int("count", len(terms)))
		}
		return filter, nil
	}); err != nil {
		return nil, err
	}

	// Register ingestion service
	if err := container.Provide(func(
		source core.MailSource,
		filter core.MessageFilter,
		extractor core.Extractor,
		store core.Store,
		cfg *config.Config,
		logger *zap.Logger,
	) *core.IngestService {
		ingestCfg := cfg.GetIngest()
		return core.NewIngestService(
			source,
			filter,
			extractor,
			store,
			logger,
			ingestCfg.MaxMessages,
			ingestCfg.MaxRetries,
			ingestCfg.RetryBackoff,
			ingestCfg.CallTimeout,
		)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
