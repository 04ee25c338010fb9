package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// ErrMissingCredential is returned when the selected model provider has no credential.
var ErrMissingCredential = errors.New("missing model credential")

const (
	ProviderGemini = "gemini"
	ProviderArk    = "ark"
)

// Config aggregates everything the API server needs. It is built once at
// startup and passed to the components that need it.
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Session SessionConfig
	CORS    CORSConfig
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		AI:      ai,
		Session: session,
		CORS:    loadCORSConfig(),
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr             string
	Env              string
	MaxBodyBytes     int64
	MaxMessageLength int
}

// IsDevelopment reports whether human-readable logging should be used.
func (c ServerConfig) IsDevelopment() bool {
	return c.Env == "development"
}

func loadServerConfig() (ServerConfig, error) {
	addr, err := parseAddr(getEnvOrDefault("PORT", "3000"))
	if err != nil {
		return ServerConfig{}, err
	}

	maxBody, err := parseIntEnv("MAX_BODY_BYTES", 64*1024)
	if err != nil {
		return ServerConfig{}, err
	}

	maxMessage, err := parseIntEnv("MAX_MESSAGE_LENGTH", 8000)
	if err != nil {
		return ServerConfig{}, err
	}

	return ServerConfig{
		Addr:             addr,
		Env:              getEnvOrDefault("APP_ENV", "development"),
		MaxBodyBytes:     int64(maxBody),
		MaxMessageLength: maxMessage,
	}, nil
}

func parseAddr(port string) (string, error) {
	if strings.Contains(port, ":") {
		// ":3000" and "127.0.0.1:3000" are used as-is.
		return port, nil
	}
	if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}
	return ":" + port, nil
}

// AIConfig describes the generative model and its fixed sampling parameters.
type AIConfig struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
	TopP        float32
	Timeout     time.Duration

	Ark ArkConfig
}

// ArkConfig holds credentials for the Volcengine Ark provider.
type ArkConfig struct {
	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string
}

// Enabled reports whether the Ark credentials are complete.
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewArkChatModel creates an Ark-backed chat model.
func (c AIConfig) NewArkChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Ark.Enabled() {
		return nil, fmt.Errorf("%w: provide ARK_API_KEY or ARK_ACCESS_KEY/ARK_SECRET_KEY together with ARK_MODEL", ErrMissingCredential)
	}

	temperature := c.Temperature
	topP := c.TopP

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     c.Ark.BaseURL,
		Region:      c.Ark.Region,
		APIKey:      c.Ark.APIKey,
		AccessKey:   c.Ark.AccessKey,
		SecretKey:   c.Ark.SecretKey,
		Model:       c.Ark.Model,
		Temperature: &temperature,
		TopP:        &topP,
	})
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("MODEL_PROVIDER", ProviderGemini))

	temperature, err := parseFloat32Env("MODEL_TEMPERATURE", 0.7)
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseFloat32Env("MODEL_TOP_P", 1.0)
	if err != nil {
		return AIConfig{}, err
	}

	timeout, err := parseDurationEnv("MODEL_TIMEOUT", 30*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	cfg := AIConfig{
		Provider:    provider,
		APIKey:      strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		Model:       getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		BaseURL:     strings.TrimSpace(os.Getenv("GEMINI_BASE_URL")),
		Temperature: temperature,
		TopP:        topP,
		Timeout:     timeout,
		Ark: ArkConfig{
			APIKey:    strings.TrimSpace(os.Getenv("ARK_API_KEY")),
			AccessKey: strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
			SecretKey: strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
			Model:     strings.TrimSpace(os.Getenv("ARK_MODEL")),
			BaseURL:   getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
			Region:    getEnvOrDefault("ARK_REGION", "cn-beijing"),
		},
	}

	switch provider {
	case ProviderGemini:
		if cfg.APIKey == "" {
			return AIConfig{}, fmt.Errorf("%w: GEMINI_API_KEY is not set", ErrMissingCredential)
		}
	case ProviderArk:
		if !cfg.Ark.Enabled() {
			return AIConfig{}, fmt.Errorf("%w: Ark credentials or ARK_MODEL are not set", ErrMissingCredential)
		}
	default:
		return AIConfig{}, fmt.Errorf("invalid MODEL_PROVIDER value %q", provider)
	}

	return cfg, nil
}

// SessionConfig bounds the server-side context store.
type SessionConfig struct {
	Capacity      int
	TTL           time.Duration
	MaxMessages   int
	SweepInterval time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	capacity, err := parseIntEnv("SESSION_CAPACITY", 10000)
	if err != nil {
		return SessionConfig{}, err
	}

	ttl, err := parseDurationEnv("SESSION_TTL", 24*time.Hour)
	if err != nil {
		return SessionConfig{}, err
	}

	maxMessages, err := parseIntEnv("SESSION_MAX_MESSAGES", 100)
	if err != nil {
		return SessionConfig{}, err
	}

	sweep, err := parseDurationEnv("SESSION_SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}

	return SessionConfig{
		Capacity:      capacity,
		TTL:           ttl,
		MaxMessages:   maxMessages,
		SweepInterval: sweep,
	}, nil
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string
}

func loadCORSConfig() CORSConfig {
	raw := getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:5500,http://127.0.0.1:5500")
	return CORSConfig{AllowedOrigins: splitList(raw)}
}

// ClientConfig configures the terminal client.
type ClientConfig struct {
	ServerURL string
	DataDir   string
	Timeout   time.Duration
}

// LoadClient reads client configuration from the environment.
func LoadClient() (*ClientConfig, error) {
	timeout, err := parseDurationEnv("CHAT_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}

	dataDir := strings.TrimSpace(os.Getenv("CHAT_DATA_DIR"))
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".negi-chat")
	}

	return &ClientConfig{
		ServerURL: strings.TrimRight(getEnvOrDefault("CHAT_SERVER_URL", "http://localhost:3000"), "/"),
		DataDir:   dataDir,
		Timeout:   timeout,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
}

func parseFloat32Env(key string, defaultValue float32) (float32, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return float32(val), nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}
