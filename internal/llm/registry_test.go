package llm

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browserbridge/internal/config"
)

func testConfig() config.ProviderConfig {
	return config.ProviderConfig{
		Default:        "openai",
		OpenAIModel:    "gpt-4o",
		AnthropicModel: "claude-3-opus-20240229",
		MistralModel:   "mistral-large-latest",
		GoogleModel:    "gemini-1.5-pro",
		OllamaModel:    "llama3",
	}
}

func newTestRegistry(cfg config.ProviderConfig) *Registry {
	return NewRegistry(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegistryProviders(t *testing.T) {
	r := newTestRegistry(testConfig())
	assert.Equal(t, []string{"anthropic", "azure", "google", "mistral", "ollama", "openai"}, r.Providers())
}

func TestRegistryResolveKnownProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	r := newTestRegistry(testConfig())

	model, err := r.Resolve(context.Background(), "openai")
	require.NoError(t, err)
	assert.NotNil(t, model)
}

func TestRegistryResolveEmptyKeyUsesDefault(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	r := newTestRegistry(testConfig())

	model, err := r.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, model)
}

func TestRegistryResolveUnknownKeyFallsBack(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	r := newTestRegistry(testConfig())

	model, err := r.Resolve(context.Background(), "definitely-not-a-provider")
	require.NoError(t, err)
	assert.NotNil(t, model)
}

func TestRegistryUnknownDefaultDegradesToOpenAI(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	cfg := testConfig()
	cfg.Default = "nonsense"
	r := newTestRegistry(cfg)

	model, err := r.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, model)
}

func TestRegistryAzureRequiresEndpoint(t *testing.T) {
	r := newTestRegistry(testConfig())

	_, err := r.Resolve(context.Background(), "azure")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AZURE_ENDPOINT")
	assert.Contains(t, err.Error(), "AZURE_DEPLOYMENT_NAME")
}
