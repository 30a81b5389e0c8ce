package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Addr      string
	AuthToken string
}

// BrowserConfig holds process-level browser defaults. ChromePath and
// ChromeUserData are sourced exclusively from the environment; task requests
// cannot override them.
type BrowserConfig struct {
	Headful        bool
	ChromePath     string
	ChromeUserData string
}

// ProviderConfig holds model selection for the LLM providers. API keys are
// read by the provider clients themselves from their conventional variables
// (OPENAI_API_KEY and friends), except where the client needs the key passed
// explicitly.
type ProviderConfig struct {
	Default         string
	OpenAIModel     string
	OpenAIBaseURL   string
	AnthropicModel  string
	MistralModel    string
	GoogleModel     string
	GoogleAPIKey    string
	OllamaModel     string
	AzureDeployment string
	AzureAPIVersion string
	AzureEndpoint   string
	AzureAPIKey     string
}

// BarkConfig holds Bark notification settings.
type BarkConfig struct {
	URL     string
	Enabled bool
}

// Config holds all runtime configuration options for the daemon.
type Config struct {
	Server   ServerConfig
	Browser  BrowserConfig
	Provider ProviderConfig
	Bark     BarkConfig

	Mode          string
	LogLevel      string
	MediaDir      string
	Storage       string
	StateDir      string
	ShutdownGrace time.Duration

	// Sensitive holds X_-prefixed environment pairs handed opaquely to the
	// automation engine. Values must never be logged.
	Sensitive map[string]string
}

const (
	defaultAddr          = "0.0.0.0:8000"
	defaultLogLevel      = "info"
	defaultMediaDir      = "media"
	defaultStorage       = "memory"
	defaultProvider      = "openai"
	defaultShutdownGrace = 5 * time.Second
)

// getEnvString returns the environment variable value or default
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvBool returns the environment variable as bool or default
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		lower := strings.ToLower(val)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultVal
}

// getEnvDuration returns the environment variable as duration or default
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// CollectSensitiveEnv gathers every non-empty X_-prefixed environment pair.
// These are passed to the automation engine as opaque placeholder values.
func CollectSensitiveEnv(environ []string) map[string]string {
	sensitive := make(map[string]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" {
			continue
		}
		if strings.HasPrefix(key, "X_") {
			sensitive[key] = value
		}
	}
	return sensitive
}

// Parse parses command line flags and environment variables into Config.
// Priority: CLI flags > Environment variables > .env file > defaults
func Parse() (*Config, error) {
	// Load .env file if exists (silent fail if not present)
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, "browserbridge", ".env"))
	}
	_ = godotenv.Load(envFiles...) // Ignore error - file is optional

	cfg := &Config{
		Server: ServerConfig{
			Addr:      getEnvString("BRIDGE_ADDR", defaultAddr),
			AuthToken: getEnvString("BRIDGE_AUTH_TOKEN", ""),
		},
		Browser: BrowserConfig{
			Headful:        getEnvBool("BROWSER_USE_HEADFUL", false),
			ChromePath:     getEnvString("CHROME_PATH", ""),
			ChromeUserData: getEnvString("CHROME_USER_DATA", ""),
		},
		Provider: ProviderConfig{
			Default:         getEnvString("DEFAULT_AI_PROVIDER", defaultProvider),
			OpenAIModel:     getEnvString("OPENAI_MODEL_ID", "gpt-4o"),
			OpenAIBaseURL:   getEnvString("OPENAI_BASE_URL", ""),
			AnthropicModel:  getEnvString("ANTHROPIC_MODEL_ID", "claude-3-opus-20240229"),
			MistralModel:    getEnvString("MISTRAL_MODEL_ID", "mistral-large-latest"),
			GoogleModel:     getEnvString("GOOGLE_MODEL_ID", "gemini-1.5-pro"),
			GoogleAPIKey:    getEnvString("GOOGLE_API_KEY", ""),
			OllamaModel:     getEnvString("OLLAMA_MODEL_ID", "llama3"),
			AzureDeployment: getEnvString("AZURE_DEPLOYMENT_NAME", ""),
			AzureAPIVersion: getEnvString("AZURE_API_VERSION", "2023-05-15"),
			AzureEndpoint:   getEnvString("AZURE_ENDPOINT", ""),
			AzureAPIKey:     getEnvString("AZURE_OPENAI_API_KEY", ""),
		},
		Bark: BarkConfig{
			URL:     getEnvString("BRIDGE_BARK_URL", ""),
			Enabled: getEnvBool("BRIDGE_BARK_ENABLED", false),
		},
		Mode:          getEnvString("BRIDGE_MODE", "http"),
		LogLevel:      getEnvString("BRIDGE_LOG_LEVEL", defaultLogLevel),
		MediaDir:      getEnvString("BRIDGE_MEDIA_DIR", defaultMediaDir),
		Storage:       getEnvString("BRIDGE_STORAGE", defaultStorage),
		StateDir:      getEnvString("BRIDGE_STATE_DIR", ""),
		ShutdownGrace: getEnvDuration("BRIDGE_SHUTDOWN_GRACE", defaultShutdownGrace),
		Sensitive:     CollectSensitiveEnv(os.Environ()),
	}

	// Legacy PORT variable from earlier deployments.
	if port := getEnvString("PORT", ""); port != "" {
		if _, err := strconv.Atoi(port); err == nil {
			cfg.Server.Addr = "0.0.0.0:" + port
		}
	}

	// Define CLI flags (these will override environment variables)
	var addr, mode, logLevel, mediaDir, storage, stateDir string
	var shutdownGrace time.Duration

	flag.StringVar(&addr, "addr", "", "HTTP listen address (overrides env)")
	flag.StringVar(&mode, "mode", "", "Serving mode: http, mcp, or both")
	flag.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&mediaDir, "media-dir", "", "Directory for captured task media")
	flag.StringVar(&storage, "storage", "", "Task storage backend: memory or sqlite")
	flag.StringVar(&stateDir, "state-dir", "", "Directory for the sqlite database")
	flag.DurationVar(&shutdownGrace, "shutdown-grace", 0, "Grace period when shutting down")

	flag.Parse()

	if addr != "" {
		cfg.Server.Addr = addr
	}
	if mode != "" {
		cfg.Mode = mode
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if mediaDir != "" {
		cfg.MediaDir = mediaDir
	}
	if storage != "" {
		cfg.Storage = storage
	}
	if stateDir != "" {
		cfg.StateDir = stateDir
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "shutdown-grace" {
			cfg.ShutdownGrace = shutdownGrace
		}
	})

	switch cfg.Storage {
	case "memory", "sqlite":
	default:
		return nil, fmt.Errorf("invalid storage backend %q (expected memory or sqlite)", cfg.Storage)
	}

	if cfg.Storage == "sqlite" && cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default state dir: %w", err)
		}
		cfg.StateDir = dir
	}

	return cfg, nil
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(baseDir, "browserbridge")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}
