package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	RevenueCat  RevenueCatConfig  `yaml:"revenuecat"`
	AppsFlyer   AppsFlyerConfig   `yaml:"appsflyer"`
	LLM         LLMConfig         `yaml:"llm"`
	Bedrock     BedrockConfig     `yaml:"bedrock"`
	Polling     PollingConfig     `yaml:"polling"`
	Settings    SettingsConfig    `yaml:"settings"`
	Projects    []ProjectConfig   `yaml:"projects"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Redis       RedisConfig       `yaml:"redis"`
	Registry    RegistryConfig    `yaml:"registry"`
	Notify      NotifyConfig      `yaml:"notify"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Addr returns host:port for the listener
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RevenueCatConfig holds subscription metrics API configuration.
// APIKey is the global key used when a project has no key of its own.
type RevenueCatConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	ChartDays      int    `yaml:"chart_days"`
}

// Timeout returns the configured timeout as a duration
func (c RevenueCatConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AppsFlyerConfig holds attribution API configuration
type AppsFlyerConfig struct {
	BaseURL           string `yaml:"base_url"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// Timeout returns the configured timeout as a duration
func (c AppsFlyerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LLMConfig holds text-generation configuration for report writing
type LLMConfig struct {
	Provider       string `yaml:"provider"` // "openai" or "bedrock"
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BedrockConfig holds AWS Bedrock settings used when llm.provider is "bedrock".
// Empty keys use the default AWS credential chain.
type BedrockConfig struct {
	Region    string `yaml:"region"`
	ModelID   string `yaml:"model_id"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// PollingConfig holds refresh scheduling configuration
type PollingConfig struct {
	IntervalMinutes int `yaml:"interval_minutes"`
}

// Interval returns the polling interval as a duration
func (c PollingConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// SettingsConfig seeds the user-facing settings store
type SettingsConfig struct {
	Currency    string `yaml:"currency"`
	ReportDays  int    `yaml:"report_days"`
	SelectedTab string `yaml:"selected_tab"`
}

// ProjectConfig is a project seeded from the config file. The optional
// secrets are written to the credential store at startup.
type ProjectConfig struct {
	ID                    string   `yaml:"id"`
	Name                  string   `yaml:"name"`
	SubscriptionProjectID string   `yaml:"subscription_project_id"`
	Color                 string   `yaml:"color"`
	AttributionAppIDs     []string `yaml:"attribution_app_ids"`
	SubscriptionAPIKey    string   `yaml:"subscription_api_key"`
	AttributionToken      string   `yaml:"attribution_token"`
}

// CredentialsConfig selects where secrets are kept
type CredentialsConfig struct {
	Backend         string `yaml:"backend"` // "memory" or "redis"
	Prefix          string `yaml:"prefix"`
	CacheTTLMinutes int    `yaml:"cache_ttl_minutes"`
}

// CacheTTL returns the credential cache lifetime
func (c CredentialsConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled reports whether a Redis address is configured
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// RegistryConfig selects where the project list lives
type RegistryConfig struct {
	Backend     string `yaml:"backend"` // "config" or "postgres"
	DatabaseURL string `yaml:"database_url"`
}

// NotifyConfig toggles desktop notifications
type NotifyConfig struct {
	Enabled bool   `yaml:"enabled"`
	AppName string `yaml:"app_name"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.RevenueCat.BaseURL == "" {
		cfg.RevenueCat.BaseURL = "https://api.revenuecat.com/v2"
	}
	if cfg.RevenueCat.TimeoutSeconds == 0 {
		cfg.RevenueCat.TimeoutSeconds = 30
	}
	if cfg.RevenueCat.ChartDays == 0 {
		cfg.RevenueCat.ChartDays = 30
	}
	if cfg.AppsFlyer.BaseURL == "" {
		cfg.AppsFlyer.BaseURL = "https://hq1.appsflyer.com"
	}
	if cfg.AppsFlyer.TimeoutSeconds == 0 {
		cfg.AppsFlyer.TimeoutSeconds = 60
	}
	if cfg.AppsFlyer.RequestsPerMinute == 0 {
		cfg.AppsFlyer.RequestsPerMinute = 20
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o"
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com"
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = 60
	}
	if cfg.Bedrock.Region == "" {
		cfg.Bedrock.Region = "us-east-1"
	}
	if cfg.Bedrock.ModelID == "" {
		cfg.Bedrock.ModelID = "anthropic.claude-3-haiku-20240307-v1:0"
	}
	if cfg.Polling.IntervalMinutes == 0 {
		cfg.Polling.IntervalMinutes = 15
	}
	if cfg.Settings.Currency == "" {
		cfg.Settings.Currency = "USD"
	}
	cfg.Settings.Currency = strings.ToUpper(cfg.Settings.Currency)
	if cfg.Settings.ReportDays == 0 {
		cfg.Settings.ReportDays = 7
	}
	if cfg.Settings.SelectedTab == "" {
		cfg.Settings.SelectedTab = "overview"
	}
	if cfg.Credentials.Backend == "" {
		cfg.Credentials.Backend = "memory"
	}
	if cfg.Credentials.Prefix == "" {
		cfg.Credentials.Prefix = "pulse"
	}
	if cfg.Credentials.CacheTTLMinutes == 0 {
		cfg.Credentials.CacheTTLMinutes = 10
	}
	if cfg.Registry.Backend == "" {
		cfg.Registry.Backend = "config"
	}
	if cfg.Notify.AppName == "" {
		cfg.Notify.AppName = "Pulse"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars elsewhere.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if apiKey := os.Getenv("REVENUECAT_API_KEY"); apiKey != "" {
		cfg.RevenueCat.APIKey = apiKey
	}
	if baseURL := os.Getenv("REVENUECAT_BASE_URL"); baseURL != "" {
		cfg.RevenueCat.BaseURL = baseURL
	}
	if baseURL := os.Getenv("APPSFLYER_BASE_URL"); baseURL != "" {
		cfg.AppsFlyer.BaseURL = baseURL
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		cfg.LLM.BaseURL = baseURL
	}
	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		cfg.LLM.Provider = provider
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.Bedrock.Region = region
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Registry.DatabaseURL = dbURL
		cfg.Registry.Backend = "postgres"
	}
	if currency := os.Getenv("PULSE_CURRENCY"); currency != "" {
		cfg.Settings.Currency = strings.ToUpper(currency)
	}
	if minutes := os.Getenv("PULSE_REFRESH_MINUTES"); minutes != "" {
		if n, err := strconv.Atoi(minutes); err == nil && n > 0 {
			cfg.Polling.IntervalMinutes = n
		}
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	return cfg, nil
}
