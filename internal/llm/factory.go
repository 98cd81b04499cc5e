package llm

import (
	"fmt"

	"github.com/mtzanidakis/swarmchat/internal/config"
)

// NewProvider builds a provider from its configuration. A provider whose
// backend needs an API key is rejected when the key is empty.
func NewProvider(cfg config.ProviderConfig) (Provider, error) {
	switch cfg.Kind {
	case "deepseek":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("deepseek: api key is required")
		}
		return NewDeepSeek(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai: api key is required")
		}
		return NewOpenAI("openai", cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic: api key is required")
		}
		return NewAnthropic(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case "gemini":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini: api key is required")
		}
		return NewGemini(cfg.APIKey, cfg.Model), nil
	case "ollama":
		return NewOllama(cfg.BaseURL, cfg.Model)
	case "":
		return nil, fmt.Errorf("provider kind is required")
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}
}

// BuildChain assembles the primary and fallback providers in order. Providers
// that cannot be built are skipped and reported in the returned errors.
func BuildChain(cfg config.LLMConfig) (*Chain, []error) {
	var (
		providers []Provider
		errs      []error
	)
	all := append([]config.ProviderConfig{cfg.Primary}, cfg.Fallbacks...)
	for i, pc := range all {
		p, err := NewProvider(pc)
		if err != nil {
			errs = append(errs, fmt.Errorf("provider %d (%s): %w", i, pc.Kind, err))
			continue
		}
		providers = append(providers, p)
	}
	return NewChain(providers...), errs
}
