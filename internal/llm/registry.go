package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/mistral"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"browserbridge/internal/config"
)

// Builder constructs a chat model client. Provider credentials come from the
// environment (OPENAI_API_KEY and friends) via each client's own defaults.
type Builder func(ctx context.Context) (llms.Model, error)

// Registry resolves a provider key to a langchaingo model. Unknown keys fall
// back to the configured default provider so a misspelled provider in a
// request degrades to the default instead of failing the task.
type Registry struct {
	builders map[string]Builder
	fallback string
	logger   *slog.Logger
}

func NewRegistry(cfg config.ProviderConfig, logger *slog.Logger) *Registry {
	r := &Registry{
		builders: make(map[string]Builder),
		fallback: cfg.Default,
		logger:   logger,
	}

	r.builders["openai"] = func(ctx context.Context) (llms.Model, error) {
		opts := []openai.Option{openai.WithModel(cfg.OpenAIModel)}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		return openai.New(opts...)
	}
	r.builders["anthropic"] = func(ctx context.Context) (llms.Model, error) {
		return anthropic.New(anthropic.WithModel(cfg.AnthropicModel))
	}
	r.builders["mistral"] = func(ctx context.Context) (llms.Model, error) {
		return mistral.New(mistral.WithModel(cfg.MistralModel))
	}
	r.builders["google"] = func(ctx context.Context) (llms.Model, error) {
		return googleai.New(ctx,
			googleai.WithAPIKey(cfg.GoogleAPIKey),
			googleai.WithDefaultModel(cfg.GoogleModel))
	}
	r.builders["ollama"] = func(ctx context.Context) (llms.Model, error) {
		return ollama.New(ollama.WithModel(cfg.OllamaModel))
	}
	r.builders["azure"] = func(ctx context.Context) (llms.Model, error) {
		if cfg.AzureEndpoint == "" || cfg.AzureDeployment == "" {
			return nil, fmt.Errorf("azure provider requires AZURE_ENDPOINT and AZURE_DEPLOYMENT_NAME")
		}
		return openai.New(
			openai.WithToken(cfg.AzureAPIKey),
			openai.WithAPIType(openai.APITypeAzure),
			openai.WithBaseURL(cfg.AzureEndpoint),
			openai.WithModel(cfg.AzureDeployment),
			openai.WithAPIVersion(cfg.AzureAPIVersion),
		)
	}

	if _, ok := r.builders[r.fallback]; !ok {
		r.fallback = "openai"
	}
	return r
}

// Resolve builds a model for the given provider key. An empty or unknown key
// resolves to the default provider.
func (r *Registry) Resolve(ctx context.Context, key string) (llms.Model, error) {
	if key == "" {
		key = r.fallback
	}
	builder, ok := r.builders[key]
	if !ok {
		r.logger.Warn("unknown provider, using default", "provider", key, "default", r.fallback)
		key = r.fallback
		builder = r.builders[key]
	}
	model, err := builder(ctx)
	if err != nil {
		return nil, fmt.Errorf("build %s client: %w", key, err)
	}
	return model, nil
}

// Providers returns the supported provider keys in sorted order.
func (r *Registry) Providers() []string {
	keys := make([]string, 0, len(r.builders))
	for k := range r.builders {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
