package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/veloxpay/guestpay/api/schemas"
	"github.com/veloxpay/guestpay/internal/config"
)

// NewClient builds a tier-routing LLM client from the router configuration.
// The default fast and powerful model names are resolved against the Models
// map, so both tiers may share a single entry.
func NewClient(cfg config.LLMRouterConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	fastCfg, err := resolveModel(cfg, cfg.DefaultFastModel)
	if err != nil {
		return nil, fmt.Errorf("resolving fast tier model: %w", err)
	}
	powerfulCfg, err := resolveModel(cfg, cfg.DefaultPowerfulModel)
	if err != nil {
		return nil, fmt.Errorf("resolving powerful tier model: %w", err)
	}

	fastClient, err := newProviderClient(fastCfg, logger)
	if err != nil {
		return nil, err
	}
	powerfulClient, err := newProviderClient(powerfulCfg, logger)
	if err != nil {
		fastClient.Close()
		return nil, err
	}

	return NewLLMRouter(logger, fastClient, powerfulClient)
}

// resolveModel looks up a model entry by map key first, then by the
// configured model identifier.
func resolveModel(cfg config.LLMRouterConfig, name string) (config.LLMModelConfig, error) {
	if mc, ok := cfg.Models[name]; ok {
		if mc.Model == "" {
			mc.Model = name
		}
		return mc, nil
	}
	for _, mc := range cfg.Models {
		if mc.Model == name {
			return mc, nil
		}
	}
	return config.LLMModelConfig{}, fmt.Errorf("no model configuration found for %q", name)
}

func newProviderClient(cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini, "":
		return NewGeminiClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: %q. Supported: [%s]",
			cfg.Provider, config.ProviderGemini)
	}
}
