package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/jobmail/internal/adapters/bedrock"
	"github.com/mikey/jobmail/internal/adapters/gemini"
	"github.com/mikey/jobmail/internal/adapters/openai"
	"github.com/mikey/jobmail/internal/config"
	"github.com/mikey/jobmail/internal/core"
	"github.com/mikey/jobmail/internal/utils"
)

// LLMFactory creates extraction clients
type LLMFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *LLMFactory {
	return &LLMFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateExtractor creates an extraction client based on the configuration
func (f *LLMFactory) CreateExtractor() (core.Extractor, error) {
	llmConfig := f.cfg.GetLLM()

	switch llmConfig.Provider {
	case "bedrock":
		factory := bedrock.NewFactory(f.cfg, f.logger, f.textProcessor)
		return factory.CreateClient()
	case "gemini":
		factory := gemini.NewFactory(f.cfg, f.logger, f.textProcessor)
		return factory.CreateClient()
	case "openai":
		factory := openai.NewFactory(f.cfg, f.logger, f.textProcessor)
		return factory.CreateClient()
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", llmConfig.Provider)
	}
}
