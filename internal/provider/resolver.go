package provider

import (
	"fmt"
	"strings"

	"github.com/FerryClaw/FerryClaw/internal/config"
)

// ParseModelString splits a "provider/model" string into provider ID and model name.
func ParseModelString(s string) (providerID, modelName string) {
	s = strings.TrimSpace(s)
	parts := strings.SplitN(s, "/", 2)
	if len(parts) < 2 {
		return "", s
	}
	providerID = strings.ToLower(parts[0])
	modelName = parts[1]
	return
}

// Resolve creates the LLMProvider for the given model string based on config.
// Model strings take the form "provider/model"; a bare model name picks
// whichever provider has an API key configured, preferring Anthropic.
func Resolve(cfg *config.Config, modelStr string) (LLMProvider, error) {
	if modelStr == "" {
		modelStr = cfg.Model.Name
	}
	provID, model := ParseModelString(modelStr)
	if provID == "" {
		if cfg.Providers.Anthropic.APIKey != "" {
			provID = "anthropic"
		} else {
			provID = "openai"
		}
	}
	return buildProvider(cfg, provID, model)
}

// buildProvider constructs a provider from its ID and model name.
func buildProvider(cfg *config.Config, providerID, model string) (LLMProvider, error) {
	switch providerID {
	case "anthropic", "claude":
		key := cfg.Providers.Anthropic.APIKey
		if key == "" {
			return nil, &ProviderError{Provider: "anthropic", Hint: "set providers.anthropic.apiKey in config or FERRYCLAW_ANTHROPIC_API_KEY"}
		}
		return NewAnthropicProvider(key, cfg.Providers.Anthropic.APIBase, model), nil

	case "openai", "openrouter":
		key := cfg.Providers.OpenAI.APIKey
		if key == "" {
			return nil, &ProviderError{Provider: providerID, Hint: "set providers.openai.apiKey in config or FERRYCLAW_OPENAI_API_KEY"}
		}
		base := cfg.Providers.OpenAI.APIBase
		if providerID == "openrouter" && base == "" {
			base = "https://openrouter.ai/api/v1"
		}
		return NewOpenAIProvider(key, base, model), nil

	default:
		return nil, &ProviderError{Provider: providerID, Hint: fmt.Sprintf("unknown provider ID %q (supported: anthropic, openai, openrouter)", providerID)}
	}
}

// ProviderError is returned when a provider cannot be constructed.
type ProviderError struct {
	Provider string
	Hint     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %q: %s", e.Provider, e.Hint)
}
