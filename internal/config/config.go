package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string
	Storage     string // STORAGE_DRIVER: postgres or memory
	Database    DatabaseConfig
	Security    SecurityConfig
	OAuth       OAuthConfig
	Shopee      ShopeeConfig
	TikTok      TikTokConfig
	Facebook    FacebookConfig
	DevTenant   DevTenantConfig
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type SecurityConfig struct {
	TokenEncryptionKey string // base64, 32 bytes; empty stores marketplace tokens unencrypted
}

// DevTenantConfig seeds one tenant when STORAGE_DRIVER=memory, which has no
// create-tenant tool
type DevTenantConfig struct {
	Name   string
	APIKey string
}

// OAuthConfig holds settings shared by every marketplace integration
type OAuthConfig struct {
	StateTTL         time.Duration
	RefreshWindow    time.Duration
	HTTPTimeout      time.Duration
	AllowedRedirects []string // first entry is the default post-auth path
	SuccessBaseURL   string   // prepended to redirect paths, e.g. https://admin.example.com
}

type ShopeeConfig struct {
	PartnerID   string
	PartnerKey  string
	RedirectURI string
	Region      string // global, cn, sandbox or a market code like vn
}

type TikTokConfig struct {
	AppKey      string
	AppSecret   string
	ServiceID   string
	RedirectURI string
}

type FacebookConfig struct {
	AppID        string
	AppSecret    string
	RedirectURI  string
	GraphVersion string
}

// Enabled reports whether credentials for the platform are present
func (c ShopeeConfig) Enabled() bool {
	return c.PartnerID != "" && c.PartnerKey != "" && c.RedirectURI != ""
}

func (c TikTokConfig) Enabled() bool {
	return c.AppKey != "" && c.AppSecret != "" && c.ServiceID != ""
}

func (c FacebookConfig) Enabled() bool {
	return c.AppID != "" && c.AppSecret != "" && c.RedirectURI != ""
}

func Load() (*Config, error) {
	viper.SetConfigType("env")
	viper.SetConfigName(".env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")

	// Set defaults
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("STORAGE_DRIVER", "postgres")
	viper.SetDefault("OAUTH_STATE_TTL", "10m")
	viper.SetDefault("TOKEN_REFRESH_WINDOW", "5m")
	viper.SetDefault("HTTP_CLIENT_TIMEOUT", "30s")
	viper.SetDefault("OAUTH_ALLOWED_REDIRECTS", "/integrations")
	viper.SetDefault("SHOPEE_REGION", "global")
	viper.SetDefault("FACEBOOK_GRAPH_VERSION", "v19.0")

	// Read from environment variables
	viper.AutomaticEnv()

	// Try to read .env file (optional)
	if err := viper.ReadInConfig(); err != nil {
		// It's okay if .env doesn't exist, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	stateTTL, err := getDurationOrViper("OAUTH_STATE_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	refreshWindow, err := getDurationOrViper("TOKEN_REFRESH_WINDOW", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	httpTimeout, err := getDurationOrViper("HTTP_CLIENT_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:        getEnvOrViper("PORT", "8080"),
		Environment: getEnvOrViper("ENVIRONMENT", "development"),
		LogLevel:    getEnvOrViper("LOG_LEVEL", "info"),
		Storage:     strings.ToLower(getEnvOrViper("STORAGE_DRIVER", "postgres")),
		Database: DatabaseConfig{
			Host:     getEnvOrViper("DB_HOST", "localhost"),
			Port:     getEnvOrViper("DB_PORT", "5432"),
			User:     getEnvOrViper("DB_USER", "postgres"),
			Password: getEnvOrViper("DB_PASSWORD", "postgres"),
			DBName:   getEnvOrViper("DB_NAME", "sellerhub"),
			SSLMode:  getEnvOrViper("DB_SSLMODE", "disable"),
		},
		Security: SecurityConfig{
			TokenEncryptionKey: strings.TrimSpace(getEnvOrViper("TOKEN_ENCRYPTION_KEY", "")),
		},
		OAuth: OAuthConfig{
			StateTTL:         stateTTL,
			RefreshWindow:    refreshWindow,
			HTTPTimeout:      httpTimeout,
			AllowedRedirects: splitList(getEnvOrViper("OAUTH_ALLOWED_REDIRECTS", "/integrations")),
			SuccessBaseURL:   strings.TrimRight(strings.TrimSpace(getEnvOrViper("OAUTH_REDIRECT_BASE_URL", "")), "/"),
		},
		Shopee: ShopeeConfig{
			PartnerID:   strings.TrimSpace(getEnvOrViper("SHOPEE_PARTNER_ID", "")),
			PartnerKey:  strings.TrimSpace(getEnvOrViper("SHOPEE_PARTNER_KEY", "")),
			RedirectURI: strings.TrimSpace(getEnvOrViper("SHOPEE_REDIRECT_URI", "")),
			Region:      strings.ToLower(strings.TrimSpace(getEnvOrViper("SHOPEE_REGION", "global"))),
		},
		TikTok: TikTokConfig{
			AppKey:      strings.TrimSpace(getEnvOrViper("TIKTOK_APP_KEY", "")),
			AppSecret:   strings.TrimSpace(getEnvOrViper("TIKTOK_APP_SECRET", "")),
			ServiceID:   strings.TrimSpace(getEnvOrViper("TIKTOK_SERVICE_ID", "")),
			RedirectURI: strings.TrimSpace(getEnvOrViper("TIKTOK_REDIRECT_URI", "")),
		},
		Facebook: FacebookConfig{
			AppID:        strings.TrimSpace(getEnvOrViper("FACEBOOK_APP_ID", "")),
			AppSecret:    strings.TrimSpace(getEnvOrViper("FACEBOOK_APP_SECRET", "")),
			RedirectURI:  strings.TrimSpace(getEnvOrViper("FACEBOOK_REDIRECT_URI", "")),
			GraphVersion: getEnvOrViper("FACEBOOK_GRAPH_VERSION", "v19.0"),
		},
		DevTenant: DevTenantConfig{
			Name:   strings.TrimSpace(getEnvOrViper("DEV_TENANT_NAME", "Dev Tenant")),
			APIKey: strings.TrimSpace(getEnvOrViper("DEV_TENANT_API_KEY", "")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if c.Storage != "postgres" && c.Storage != "memory" {
		return fmt.Errorf("STORAGE_DRIVER must be postgres or memory, got %q", c.Storage)
	}
	if c.OAuth.StateTTL <= 0 {
		return fmt.Errorf("OAUTH_STATE_TTL must be positive")
	}
	if c.OAuth.RefreshWindow < 0 {
		return fmt.Errorf("TOKEN_REFRESH_WINDOW must not be negative")
	}
	if c.OAuth.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_CLIENT_TIMEOUT must be positive")
	}
	if len(c.OAuth.AllowedRedirects) == 0 {
		return fmt.Errorf("OAUTH_ALLOWED_REDIRECTS must list at least one path")
	}
	for _, p := range c.OAuth.AllowedRedirects {
		if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
			return fmt.Errorf("OAUTH_ALLOWED_REDIRECTS entry %q must be a relative path", p)
		}
	}
	if c.DevTenant.APIKey != "" && c.Storage != "memory" {
		return fmt.Errorf("DEV_TENANT_API_KEY is only honoured with STORAGE_DRIVER=memory; use create-tenant")
	}
	if c.DevTenant.APIKey != "" && c.Environment == "production" {
		return fmt.Errorf("DEV_TENANT_API_KEY must not be set in production")
	}
	if c.Environment == "production" && c.Security.TokenEncryptionKey == "" {
		return fmt.Errorf("TOKEN_ENCRYPTION_KEY is required in production")
	}
	return nil
}

func getEnvOrViper(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return defaultValue
}

func getDurationOrViper(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(getEnvOrViper(key, ""))
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
