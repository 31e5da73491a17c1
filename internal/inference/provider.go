package inference

import (
	"context"
	"fmt"

	"konto/internal/categorize"
	"konto/internal/config"
	"konto/internal/log"
)

// Provider names accepted in AI_PROVIDER.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

// New returns the configured provider, or nil when categorization is
// turned off.
func New(ctx context.Context, cfg *config.Config, logger *log.Logger) (categorize.Inferrer, error) {
	switch cfg.AIProvider {
	case ProviderGemini:
		g, err := NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.CategoryLanguage, logger)
		if err != nil {
			return nil, err
		}
		return g, nil
	case ProviderOpenAI:
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.CategoryLanguage, logger), nil
	case ProviderNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.AIProvider)
	}
}
