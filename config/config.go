package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// writeTimeoutMargin is added to the chain budget when SERVER_WRITE_TIMEOUT is unset
const writeTimeoutMargin = 10 * time.Second

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Providers     ProvidersConfig
	Router        RouterConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// ProvidersConfig holds the backend provider configurations in fallback order
type ProvidersConfig struct {
	Friendli FriendliConfig
	Bedrock  BedrockConfig
}

// FriendliConfig holds the primary provider configuration
type FriendliConfig struct {
	Enabled bool
	Token   string
	BaseURL string
	Model   string
	// Team scopes requests to a Friendli team when the token spans several
	Team string
}

// BedrockConfig holds the AWS Bedrock provider configuration
type BedrockConfig struct {
	Enabled   bool
	Region    string
	Model     string
	AccessKey string
	SecretKey string
	// UseDefaultChain is set when the ambient AWS credential chain looks usable
	UseDefaultChain bool
}

// RouterConfig holds completion router timeouts
type RouterConfig struct {
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or text
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 0),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:8501", "http://localhost:5173"}),
		},
		Providers: ProvidersConfig{
			Friendli: FriendliConfig{
				Enabled: getEnvAsBool("USE_FRIENDLI", true),
				Token:   getEnv("FRIENDLI_API_KEY", getEnv("FRIENDLI_TOKEN", "")),
				BaseURL: getEnv("FRIENDLI_URL", "https://api.friendli.ai/v1"),
				Model:   getEnv("FRIENDLI_MODEL", "meta-llama-3.1-70b-instruct"),
				Team:    getEnv("FRIENDLI_TEAM", ""),
			},
			Bedrock: BedrockConfig{
				Enabled:         getEnvAsBool("USE_BEDROCK", true),
				Region:          getEnv("BEDROCK_REGION", getEnv("AWS_REGION", "us-east-1")),
				Model:           getEnv("BEDROCK_MODEL", "anthropic.claude-3-sonnet-20240229-v1:0"),
				AccessKey:       getEnv("BEDROCK_ACCESS_KEY", ""),
				SecretKey:       getEnv("BEDROCK_SECRET_KEY", ""),
				UseDefaultChain: os.Getenv("AWS_ACCESS_KEY_ID") != "" || os.Getenv("AWS_PROFILE") != "",
			},
		},
		Router: RouterConfig{
			DefaultTimeout: getEnvAsDuration("ROUTER_DEFAULT_TIMEOUT", 30*time.Second),
			MaxTimeout:     getEnvAsDuration("ROUTER_MAX_TIMEOUT", 120*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	// Leave room for the slowest possible fallback chain
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = cfg.ChainBudget() + writeTimeoutMargin
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is usable. Missing provider
// credentials are not an error: the router degrades to mock answers.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d is out of range", c.Server.Port)
	}

	// Router validation
	if c.Router.DefaultTimeout <= 0 {
		return fmt.Errorf("router default timeout must be positive")
	}
	if c.Router.MaxTimeout <= 0 {
		return fmt.Errorf("router max timeout must be positive")
	}
	if c.Router.DefaultTimeout > c.Router.MaxTimeout {
		return fmt.Errorf("router default timeout %s exceeds max timeout %s", c.Router.DefaultTimeout, c.Router.MaxTimeout)
	}

	// A write deadline inside the chain budget drops the connection before
	// the degraded answer is written
	if budget := c.ChainBudget(); c.Server.WriteTimeout > 0 && c.Server.WriteTimeout <= budget {
		return fmt.Errorf("server write timeout %s must exceed the fallback chain budget %s (router max timeout per enabled provider)", c.Server.WriteTimeout, budget)
	}

	// Provider validation
	if c.Providers.Bedrock.AccessKey != "" && c.Providers.Bedrock.SecretKey == "" {
		return fmt.Errorf("bedrock secret key is required when an access key is set")
	}

	// Observability validation
	switch strings.ToLower(c.Observability.LogLevel) {
	case "debug", "info", "warn", "error":
	case "":
		return fmt.Errorf("log level is required")
	default:
		return fmt.Errorf("unknown log level %q", c.Observability.LogLevel)
	}
	switch strings.ToLower(c.Observability.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Observability.LogFormat)
	}

	return nil
}

// ChainBudget is the longest one completion can spend in the fallback chain:
// the router max timeout for every enabled provider
func (c *Config) ChainBudget() time.Duration {
	enabled := 0
	if c.Providers.Friendli.Enabled {
		enabled++
	}
	if c.Providers.Bedrock.Enabled {
		enabled++
	}
	return c.Router.MaxTimeout * time.Duration(enabled)
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HasStaticCredentials reports whether explicit Bedrock keys are configured
func (c *BedrockConfig) HasStaticCredentials() bool {
	return c.AccessKey != "" && c.SecretKey != ""
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
