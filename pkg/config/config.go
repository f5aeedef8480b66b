package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Server    ServerConfig
	Site      SiteConfig
	Instagram InstagramConfig
	TikTok    TikTokConfig
	Feed      FeedConfig
	Logging   LoggingConfig
	Telemetry TelemetryConfig
}

// DatabaseConfig holds settings-store database configuration.
// An empty URL switches the settings store to the in-memory backend.
type DatabaseConfig struct {
	URL string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL     string
	Enabled bool
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
	Host string
}

// SiteConfig identifies the embedding site; the URL seeds demo credential
// generation so two sites never synthesize the same identifiers.
type SiteConfig struct {
	URL string
}

// InstagramConfig holds Instagram upstream endpoints and app credentials
type InstagramConfig struct {
	GraphURL     string // graph.instagram.com — media listing, token probe/refresh
	WebURL       string // www.instagram.com — legacy JSON, GraphQL, profile HTML
	AppAPIURL    string // i.instagram.com — web_profile_info
	OAuthURL     string // api.instagram.com — code->token exchange
	PagesURL     string // graph.facebook.com — pages/accounts identity drill-down
	AppID        string // x-ig-app-id header value
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// TikTokConfig holds TikTok upstream endpoint and client credentials
type TikTokConfig struct {
	APIURL       string // open.tiktokapis.com
	ClientKey    string
	ClientSecret string
	RedirectURI  string
}

// FeedConfig holds fetch behavior shared by both platforms
type FeedConfig struct {
	CacheTTL        time.Duration
	UpstreamTimeout time.Duration
	DefaultLimit    int
	MaxLimit        int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled           bool
	JaegerURL         string
	PrometheusEnabled bool
	PrometheusPort    int
	ServiceName       string
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	// Set defaults
	setDefaults()

	// Load from environment
	viper.SetEnvPrefix("WHATSFEED")
	viper.AutomaticEnv()

	// Load from config file if exists
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.whatsfeed")
	viper.AddConfigPath("/etc/whatsfeed")

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found; this is OK if we have env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			URL: getString("database_url", ""),
		},
		Redis: RedisConfig{
			URL:     getString("redis_url", ""),
			Enabled: getString("redis_url", "") != "",
		},
		Server: ServerConfig{
			Port: getInt("http_server_port", 8080),
			Host: getString("http_server_host", "0.0.0.0"),
		},
		Site: SiteConfig{
			URL: getString("site_url", "http://localhost:8080"),
		},
		Instagram: InstagramConfig{
			GraphURL:     getString("instagram_graph_url", "https://graph.instagram.com"),
			WebURL:       getString("instagram_web_url", "https://www.instagram.com"),
			AppAPIURL:    getString("instagram_app_api_url", "https://i.instagram.com"),
			OAuthURL:     getString("instagram_oauth_url", "https://api.instagram.com"),
			PagesURL:     getString("instagram_pages_url", "https://graph.facebook.com"),
			AppID:        getString("instagram_app_id", "936619743392459"),
			ClientID:     getString("instagram_client_id", ""),
			ClientSecret: getString("instagram_client_secret", ""),
			RedirectURI:  getString("instagram_redirect_uri", ""),
		},
		TikTok: TikTokConfig{
			APIURL:       getString("tiktok_api_url", "https://open.tiktokapis.com"),
			ClientKey:    getString("tiktok_client_key", ""),
			ClientSecret: getString("tiktok_client_secret", ""),
			RedirectURI:  getString("tiktok_redirect_uri", ""),
		},
		Feed: FeedConfig{
			CacheTTL:        time.Duration(getInt("feed_cache_ttl", 3600)) * time.Second,
			UpstreamTimeout: time.Duration(getInt("upstream_timeout", 30)) * time.Second,
			DefaultLimit:    getInt("feed_default_limit", 6),
			MaxLimit:        getInt("feed_max_limit", 50),
		},
		Logging: LoggingConfig{
			Level:  getString("log_level", "INFO"),
			Format: getString("log_format", "json"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           getBool("telemetry_enabled", false),
			JaegerURL:         getString("jaeger_url", ""),
			PrometheusEnabled: getBool("prometheus_enabled", false),
			PrometheusPort:    getInt("prometheus_port", 9090),
			ServiceName:       getString("service_name", "whatsfeed"),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("http_server_port", 8080)
	viper.SetDefault("http_server_host", "0.0.0.0")
	viper.SetDefault("site_url", "http://localhost:8080")
	viper.SetDefault("log_level", "INFO")
	viper.SetDefault("log_format", "json")
	viper.SetDefault("feed_cache_ttl", 3600)
	viper.SetDefault("upstream_timeout", 30)
	viper.SetDefault("feed_default_limit", 6)
	viper.SetDefault("feed_max_limit", 50)
	viper.SetDefault("telemetry_enabled", false)
	viper.SetDefault("prometheus_enabled", false)
	viper.SetDefault("prometheus_port", 9090)
	viper.SetDefault("service_name", "whatsfeed")
}

func getString(key, defaultValue string) string {
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	// Also check environment variable directly
	if val := os.Getenv("WHATSFEED_" + toEnvKey(key)); val != "" {
		return val
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if viper.IsSet(key) {
		return viper.GetInt(key)
	}
	if val := os.Getenv("WHATSFEED_" + toEnvKey(key)); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if viper.IsSet(key) {
		return viper.GetBool(key)
	}
	if val := os.Getenv("WHATSFEED_" + toEnvKey(key)); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultValue
}

func toEnvKey(key string) string {
	// Convert snake_case to UPPER_SNAKE_CASE
	result := ""
	for i, r := range key {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result += "_"
		}
		if r == '-' || r == '_' {
			result += "_"
		} else {
			result += string(r)
		}
	}
	return result
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("http_server_port must be between 1 and 65535")
	}
	if c.Feed.MaxLimit <= 0 || c.Feed.MaxLimit > 50 {
		return fmt.Errorf("feed_max_limit must be between 1 and 50")
	}
	if c.Feed.DefaultLimit <= 0 || c.Feed.DefaultLimit > c.Feed.MaxLimit {
		return fmt.Errorf("feed_default_limit must be between 1 and feed_max_limit")
	}
	if c.Feed.UpstreamTimeout < time.Second || c.Feed.UpstreamTimeout > 2*time.Minute {
		return fmt.Errorf("upstream_timeout must be between 1s and 2m")
	}
	return nil
}

// GetDuration returns a duration from config key, with default
func GetDuration(key string, defaultValue time.Duration) time.Duration {
	if viper.IsSet(key) {
		return viper.GetDuration(key)
	}
	return defaultValue
}
