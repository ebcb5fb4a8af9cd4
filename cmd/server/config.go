package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"github.com/MegaGrindStone/talkback/internal/services"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type llmConfig interface {
	llm(ctx context.Context, secrets envConfig, logger *slog.Logger) (services.LLM, error)
}

// BaseLLMConfig contains the common fields for all LLM configurations.
type BaseLLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type config struct {
	Port          string          `yaml:"port"`
	LogLevel      string          `yaml:"logLevel"`
	SystemPrompt  string          `yaml:"systemPrompt"`
	Timeout       time.Duration   `yaml:"timeout"`
	ContextTokens int             `yaml:"contextTokens"`
	LLM           llmConfig       `yaml:"llm"`
	Speech        speechConfig    `yaml:"speech"`
	Store         storeConfig     `yaml:"store"`
	RateLimit     rateLimitConfig `yaml:"rateLimit"`
}

// envConfig holds what may come from the process environment or a .env file. Secrets never need to be
// written into the YAML file.
type envConfig struct {
	ConfigPath       string `env:"TALKBACK_CONFIG"`
	Port             string `env:"PORT"`
	LogLevel         string `env:"LOG_LEVEL"`
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	OpenRouterAPIKey string `env:"OPENROUTER_API_KEY"`
	AnthropicAPIKey  string `env:"ANTHROPIC_API_KEY"`
	GeminiAPIKey     string `env:"GEMINI_API_KEY"`
	OllamaHost       string `env:"OLLAMA_HOST"`
	RedisURL         string `env:"REDIS_URL"`
}

type openAIConfig struct {
	BaseLLMConfig          `yaml:",inline"`
	services.LLMParameters `yaml:",inline"`
	APIKey                 string `yaml:"apiKey"`
	BaseURL                string `yaml:"baseURL"`
}

type ollamaConfig struct {
	BaseLLMConfig `yaml:",inline"`
	Host          string `yaml:"host"`
}

type anthropicConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	Endpoint      string `yaml:"endpoint"`
	MaxTokens     int    `yaml:"maxTokens"`
}

type geminiConfig struct {
	BaseLLMConfig          `yaml:",inline"`
	services.LLMParameters `yaml:",inline"`
	APIKey                 string `yaml:"apiKey"`
}

type speechConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	Format  string `yaml:"format"`
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
}

type storeConfig struct {
	Type string        `yaml:"type"`
	Path string        `yaml:"path"`
	URL  string        `yaml:"url"`
	TTL  time.Duration `yaml:"ttl"`
}

type rateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

const openRouterBaseURL = "https://openrouter.ai/api/v1"

func defaultConfig(cfgDir string) config {
	return config{
		Port:          "8080",
		LogLevel:      "info",
		Timeout:       20 * time.Second,
		ContextTokens: services.DefaultContextTokens,
		Speech:        speechConfig{Format: "wav"},
		Store: storeConfig{
			Type: "bolt",
			Path: filepath.Join(cfgDir, "store.db"),
			TTL:  7 * 24 * time.Hour,
		},
		RateLimit: rateLimitConfig{Requests: 30, Window: time.Minute},
	}
}

// loadConfig reads .env, the environment and the YAML file, in that order, and fills whatever is still
// unset with defaults.
func loadConfig() (config, envConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return config{}, envConfig{}, fmt.Errorf("error loading .env: %w", err)
	}

	var secrets envConfig
	if err := env.Parse(&secrets); err != nil {
		return config{}, envConfig{}, fmt.Errorf("error getting env configs: %w", err)
	}

	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return config{}, envConfig{}, fmt.Errorf("error getting user config dir: %w", err)
	}
	cfgDir = filepath.Join(cfgDir, "talkback")
	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return config{}, envConfig{}, fmt.Errorf("error creating config directory: %w", err)
	}

	cfgFilePath := secrets.ConfigPath
	if cfgFilePath == "" {
		cfgFilePath = filepath.Join(cfgDir, "config.yaml")
	}
	cfgFile, err := os.Open(cfgFilePath)
	if err != nil {
		return config{}, envConfig{}, fmt.Errorf("error opening config file: %w", err)
	}
	defer cfgFile.Close()

	cfg, err := parseConfig(cfgFile, secrets, defaultConfig(cfgDir))
	if err != nil {
		return config{}, envConfig{}, err
	}

	return cfg, secrets, nil
}

func parseConfig(r io.Reader, secrets envConfig, defaults config) (config, error) {
	cfg := config{}
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return config{}, fmt.Errorf("error decoding config file: %w", err)
	}

	fromEnv := config{
		Port:     secrets.Port,
		LogLevel: secrets.LogLevel,
		Store:    storeConfig{URL: secrets.RedisURL},
	}
	if err := mergo.Merge(&cfg, fromEnv, mergo.WithOverride); err != nil {
		return config{}, fmt.Errorf("error merging env config: %w", err)
	}
	if err := mergo.Merge(&cfg, defaults); err != nil {
		return config{}, fmt.Errorf("error merging default config: %w", err)
	}

	return cfg, cfg.validate()
}

func (c config) validate() error {
	if c.LLM == nil {
		return fmt.Errorf("llm is required")
	}
	switch c.Store.Type {
	case "bolt", "memory":
	case "redis":
		if c.Store.URL == "" {
			return fmt.Errorf("store url is required for redis")
		}
	default:
		return fmt.Errorf("unknown store type: %s", c.Store.Type)
	}
	if _, err := c.logLevel(); err != nil {
		return err
	}
	return nil
}

func (c config) logLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port          string          `yaml:"port"`
		LogLevel      string          `yaml:"logLevel"`
		SystemPrompt  string          `yaml:"systemPrompt"`
		Timeout       time.Duration   `yaml:"timeout"`
		ContextTokens int             `yaml:"contextTokens"`
		LLM           map[string]any  `yaml:"llm"`
		Speech        speechConfig    `yaml:"speech"`
		Store         storeConfig     `yaml:"store"`
		RateLimit     rateLimitConfig `yaml:"rateLimit"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	c.Port = rawConfig.Port
	c.LogLevel = rawConfig.LogLevel
	c.SystemPrompt = rawConfig.SystemPrompt
	c.Timeout = rawConfig.Timeout
	c.ContextTokens = rawConfig.ContextTokens
	c.Speech = rawConfig.Speech
	c.Store = rawConfig.Store
	c.RateLimit = rawConfig.RateLimit

	llmProvider, ok := rawConfig.LLM["provider"].(string)
	if !ok {
		return fmt.Errorf("llm provider is required")
	}

	llmRawYAML, err := yaml.Marshal(rawConfig.LLM)
	if err != nil {
		return err
	}

	var llm llmConfig
	switch llmProvider {
	case "openai", "openrouter":
		llm = &openAIConfig{}
	case "ollama":
		llm = &ollamaConfig{}
	case "anthropic":
		llm = &anthropicConfig{}
	case "gemini":
		llm = &geminiConfig{}
	default:
		return fmt.Errorf("unknown llm provider: %s", llmProvider)
	}

	if err := yaml.Unmarshal(llmRawYAML, llm); err != nil {
		return err
	}

	c.LLM = llm

	return nil
}

func (o openAIConfig) llm(_ context.Context, secrets envConfig, logger *slog.Logger) (services.LLM, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey, baseURL := o.APIKey, o.BaseURL
	if o.Provider == "openrouter" {
		if apiKey == "" {
			apiKey = secrets.OpenRouterAPIKey
		}
		if baseURL == "" {
			baseURL = openRouterBaseURL
		}
	}
	if apiKey == "" {
		apiKey = secrets.OpenAIAPIKey
	}
	return services.NewOpenAI(apiKey, baseURL, o.Model, o.LLMParameters, logger), nil
}

func (o ollamaConfig) llm(_ context.Context, secrets envConfig, _ *slog.Logger) (services.LLM, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	host := o.Host
	if host == "" {
		host = secrets.OllamaHost
	}
	return services.NewOllama(host, o.Model)
}

func (a anthropicConfig) llm(_ context.Context, secrets envConfig, _ *slog.Logger) (services.LLM, error) {
	if a.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if a.MaxTokens == 0 {
		return nil, fmt.Errorf("max_tokens is required")
	}

	apiKey := a.APIKey
	if apiKey == "" {
		apiKey = secrets.AnthropicAPIKey
	}
	return services.NewAnthropic(apiKey, a.Endpoint, a.Model, a.MaxTokens), nil
}

func (g geminiConfig) llm(ctx context.Context, secrets envConfig, _ *slog.Logger) (services.LLM, error) {
	if g.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := g.APIKey
	if apiKey == "" {
		apiKey = secrets.GeminiAPIKey
	}
	return services.NewGemini(ctx, apiKey, g.Model, g.LLMParameters)
}

func (s speechConfig) speaker(secrets envConfig, logger *slog.Logger) (*services.OpenAISpeech, error) {
	if !s.Enabled {
		return nil, nil
	}

	apiKey := s.APIKey
	if apiKey == "" {
		apiKey = secrets.OpenAIAPIKey
	}
	sp, err := services.NewOpenAISpeech(apiKey, s.BaseURL, s.Model, s.Format, logger)
	if err != nil {
		return nil, err
	}
	return &sp, nil
}
