package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Analysis providers.
const (
	ProviderHuggingFace = "huggingface"
	ProviderArk         = "ark"
)

// Config groups every section the interviewer service reads at startup.
type Config struct {
	Server   ServerConfig
	LLM      LLMConfig
	Analysis AnalysisConfig
	Session  SessionConfig
	Log      LogConfig
}

// ConfigurationError reports a credential the process cannot serve sessions without.
type ConfigurationError struct {
	Variable string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("missing required configuration %s", e.Variable)
	}
	return fmt.Sprintf("missing required configuration %s: %s", e.Variable, e.Reason)
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	llm, err := loadLLMConfig()
	if err != nil {
		return nil, err
	}

	analysis, err := loadAnalysisConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		LLM:      llm,
		Analysis: analysis,
		Session:  session,
		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}, nil
}

// Validate checks that the credentials needed to serve a call are present.
func (c *Config) Validate() error {
	if c.LLM.Model == "" {
		return &ConfigurationError{Variable: "ARK_MODEL", Reason: "conversation model is not set"}
	}
	if !c.LLM.Enabled() {
		return &ConfigurationError{Variable: "ARK_API_KEY", Reason: "provide ARK_API_KEY or ARK_ACCESS_KEY/ARK_SECRET_KEY"}
	}
	switch c.Analysis.Provider {
	case ProviderHuggingFace:
		if c.Analysis.Token == "" {
			return &ConfigurationError{Variable: "HF_TOKEN"}
		}
	case ProviderArk:
	default:
		return &ConfigurationError{Variable: "ANALYSIS_PROVIDER", Reason: fmt.Sprintf("unknown provider %q", c.Analysis.Provider)}
	}
	return nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// ":8080" and "127.0.0.1:8080" are taken as-is.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// LLMConfig describes the conversation model the interviewer persona talks through.
type LLMConfig struct {
	APIKey        string
	AccessKey     string
	SecretKey     string
	Model         string
	BaseURL       string
	Region        string
	Temperature   *float64
	TopP          *float64
	MaxTokens     *int
	MaxToolRounds int
}

// Enabled reports whether the Ark credentials and model are present.
func (c LLMConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds the Ark chat model from the configuration.
func (c LLMConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	return c.newArkModel(ctx, c.MaxTokens)
}

func (c LLMConfig) newArkModel(ctx context.Context, maxTokens *int) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, &ConfigurationError{Variable: "ARK_API_KEY", Reason: "ark credentials or model missing"}
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadLLMConfig() (LLMConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return LLMConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return LLMConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return LLMConfig{}, err
	}

	rounds, err := parseIntEnv("AGENT_MAX_TOOL_ROUNDS", 4)
	if err != nil {
		return LLMConfig{}, err
	}
	if rounds < 1 {
		rounds = 1
	}

	modelName := strings.TrimSpace(os.Getenv("ARK_MODEL"))
	if modelName == "" {
		modelName = strings.TrimSpace(os.Getenv("Model"))
	}

	return LLMConfig{
		APIKey:        strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:     strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:     strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:         modelName,
		BaseURL:       getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:        getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:   temperature,
		TopP:          topP,
		MaxTokens:     maxTokens,
		MaxToolRounds: rounds,
	}, nil
}

// AnalysisConfig describes the external code-analysis service.
type AnalysisConfig struct {
	Provider  string
	Token     string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	Workers   int
}

// NewArkAnalysisModel builds a chat model for the ark analysis provider, reusing the
// conversation credentials with the analysis output bound.
func (c AnalysisConfig) NewArkAnalysisModel(ctx context.Context, llm LLMConfig) (model.ChatModel, error) {
	maxTokens := c.MaxTokens
	return llm.newArkModel(ctx, &maxTokens)
}

func loadAnalysisConfig() (AnalysisConfig, error) {
	maxTokens, err := parseIntEnv("ANALYSIS_MAX_TOKENS", 500)
	if err != nil {
		return AnalysisConfig{}, err
	}

	timeoutSeconds, err := parseIntEnv("ANALYSIS_TIMEOUT", 30)
	if err != nil {
		return AnalysisConfig{}, err
	}

	workers, err := parseIntEnv("ANALYSIS_WORKERS", 4)
	if err != nil {
		return AnalysisConfig{}, err
	}
	if workers < 1 {
		workers = 1
	}

	return AnalysisConfig{
		Provider:  strings.ToLower(getEnvOrDefault("ANALYSIS_PROVIDER", ProviderHuggingFace)),
		Token:     strings.TrimSpace(os.Getenv("HF_TOKEN")),
		BaseURL:   getEnvOrDefault("ANALYSIS_BASE_URL", "https://router.huggingface.co/v1"),
		Model:     getEnvOrDefault("ANALYSIS_MODEL", "Qwen/Qwen2.5-Coder-32B-Instruct"),
		MaxTokens: maxTokens,
		Timeout:   time.Duration(timeoutSeconds) * time.Second,
		Workers:   workers,
	}, nil
}

// SessionConfig describes per-call behaviour.
type SessionConfig struct {
	Greeting    string
	PersonaFile string
	ReadTimeout time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	readTimeout, err := parseIntEnv("WS_READ_TIMEOUT", 60)
	if err != nil {
		return SessionConfig{}, err
	}

	return SessionConfig{
		Greeting:    getEnvOrDefault("SESSION_GREETING", "Hello, Are you ready for our interview?"),
		PersonaFile: strings.TrimSpace(os.Getenv("PERSONA_FILE")),
		ReadTimeout: time.Duration(readTimeout) * time.Second,
	}, nil
}

// LogConfig selects the logger level and encoding.
type LogConfig struct {
	Level  string
	Format string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	return *val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
