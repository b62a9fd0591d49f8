package llmadapter

import (
	"fmt"

	"github.com/loopline-ai/loopline/engine/core"
	"github.com/loopline-ai/loopline/pkg/config"
	"github.com/tmc/langchaingo/llms/openai"
)

const ErrCodeMissingCredential = "MISSING_PROVIDER_CREDENTIAL"

// NewClient builds an LLMClient for the configured provider. Any
// OpenAI-compatible endpoint is reachable through the base URL override.
// A missing API key is a configuration error: it fails the request before
// any model call, with a remediation hint in the details.
func NewClient(cfg *config.ProviderConfig) (LLMClient, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, core.NewError(
			fmt.Errorf("provider API key is not configured"),
			ErrCodeMissingCredential,
			map[string]any{"remediation": "set LOOPLINE_PROVIDER_API_KEY or options.api_key on the request"},
		)
	}
	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM model: %w", err)
	}
	return NewLangChainAdapter(model), nil
}
