package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "Memory")
	t.Setenv("OAUTH_STATE_TTL", "15m")
	t.Setenv("OAUTH_ALLOWED_REDIRECTS", "/integrations, /settings/channels ,")
	t.Setenv("SHOPEE_PARTNER_ID", "2001")
	t.Setenv("SHOPEE_PARTNER_KEY", "key")
	t.Setenv("SHOPEE_REDIRECT_URI", "https://admin.example.com/cb")
	t.Setenv("SHOPEE_REGION", " VN ")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage)
	assert.Equal(t, 15*time.Minute, cfg.OAuth.StateTTL)
	assert.Equal(t, 5*time.Minute, cfg.OAuth.RefreshWindow)
	assert.Equal(t, []string{"/integrations", "/settings/channels"}, cfg.OAuth.AllowedRedirects)
	assert.Equal(t, "vn", cfg.Shopee.Region)
	assert.True(t, cfg.Shopee.Enabled())
	assert.False(t, cfg.TikTok.Enabled())
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("TOKEN_REFRESH_WINDOW", "five minutes")

	_, err := Load()
	assert.ErrorContains(t, err, "TOKEN_REFRESH_WINDOW")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Environment: "development",
			Storage:     "memory",
			OAuth: OAuthConfig{
				StateTTL:         time.Minute,
				RefreshWindow:    time.Minute,
				HTTPTimeout:      time.Second,
				AllowedRedirects: []string{"/integrations"},
			},
		}
	}

	require.NoError(t, base().Validate())

	c := base()
	c.Storage = "mysql"
	assert.Error(t, c.Validate())

	c = base()
	c.OAuth.AllowedRedirects = []string{"//evil.example.com"}
	assert.Error(t, c.Validate())

	c = base()
	c.OAuth.AllowedRedirects = []string{"https://evil.example.com"}
	assert.Error(t, c.Validate())

	c = base()
	c.Environment = "production"
	assert.ErrorContains(t, c.Validate(), "TOKEN_ENCRYPTION_KEY")

	c = base()
	c.DevTenant.APIKey = "sk_dev"
	assert.NoError(t, c.Validate())

	c.Storage = "postgres"
	assert.ErrorContains(t, c.Validate(), "DEV_TENANT_API_KEY")

	c = base()
	c.DevTenant.APIKey = "sk_dev"
	c.Environment = "production"
	c.Security.TokenEncryptionKey = "k"
	assert.ErrorContains(t, c.Validate(), "DEV_TENANT_API_KEY")
}

func TestLoadDevTenant(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("DEV_TENANT_API_KEY", " sk_dev_local ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk_dev_local", cfg.DevTenant.APIKey)
	assert.Equal(t, "Dev Tenant", cfg.DevTenant.Name)
}
