package llm

import (
	"fmt"

	"go.uber.org/zap"
)

// NewClient creates a new LLM client based on the provider
func NewClient(config *Config, logger *zap.Logger) (Client, error) {
	switch config.Provider {
	case "openai":
		logger.Debug("creating OpenAI client", zap.String("model", config.Model), zap.String("base_url", config.BaseURL))
		return NewOpenAIClient(config, logger), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", config.Provider)
	}
}
