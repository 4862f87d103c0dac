package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileLayers(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
  public_url: "https://qr.example.com"
storage:
  redirects: memory
  scans: memory
auth:
  session_secret: "`+testSecret+`"
  users:
    - username: Jack
      password_hash: "$2a$10$abcdefghijklmnopqrstuuN2dP0m6zQyX0c1b8e3Q9pFh6f4m2K9e"
seed:
  - short_code: promo1
    destination: https://example.com/promo
    owner: Jack
`)
	t.Setenv("REDIS_URL", "redis://cache:6379/0")
	t.Setenv("GEO_TIMEOUT", "500ms")
	t.Setenv("OIDC_REQUIRED_SCOPES", "redirects:read redirects:write")
	t.Setenv("TRUST_PROXY", "true")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "https://qr.example.com", cfg.Server.PublicURL)
	assert.Equal(t, "memory", cfg.Storage.Redirects)
	assert.Equal(t, "redis://cache:6379/0", cfg.Redis.URL)
	assert.Equal(t, 500*time.Millisecond, cfg.Geo.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Redis.TTL, "default kept")
	assert.Equal(t, []string{"redirects:read", "redirects:write"}, cfg.Auth.OIDC.RequiredScopes)
	assert.True(t, cfg.Server.TrustProxy)
	assert.False(t, defaultConfig().Server.TrustProxy)
	require.Len(t, cfg.Auth.Users, 1)
	assert.Equal(t, "Jack", cfg.Auth.Users[0].Username)
	require.Len(t, cfg.Seed, 1)
	assert.Equal(t, "promo1", cfg.Seed[0].ShortCode)
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Auth.SessionSecret = testSecret
	cfg.Auth.Users = []UserConfig{{Username: "Jack", PasswordHash: "$2a$10$hash"}}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults with user", func(c *Config) {}, false},
		{"unknown redirect backend", func(c *Config) { c.Storage.Redirects = "mysql" }, true},
		{"scans cannot live in sheets", func(c *Config) { c.Storage.Scans = "sheets" }, true},
		{"short secret", func(c *Config) { c.Auth.SessionSecret = "short" }, true},
		{"auth without identities", func(c *Config) { c.Auth.Users = nil }, true},
		{"auth disabled needs nothing", func(c *Config) {
			c.Auth.Enabled = false
			c.Auth.Users = nil
			c.Auth.SessionSecret = ""
		}, false},
		{"sheets backend needs spreadsheet", func(c *Config) { c.Storage.Redirects = "sheets" }, true},
		{"sheets backend configured", func(c *Config) {
			c.Storage.Redirects = "sheets"
			c.Sheets.RedirectsSpreadsheetID = "abc"
		}, false},
		{"postgres needs url", func(c *Config) { c.Database.URL = "" }, true},
		{"memory needs no url", func(c *Config) {
			c.Database.URL = ""
			c.Storage.Redirects = "memory"
			c.Storage.Scans = "memory"
		}, false},
		{"bad password hash", func(c *Config) { c.Auth.Users[0].PasswordHash = "plaintext" }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, true},
		{"seed without destination", func(c *Config) { c.Seed = []SeedRedirect{{ShortCode: "a"}} }, true},
		{"seed with valid code", func(c *Config) {
			c.Seed = []SeedRedirect{{ShortCode: "promo_1", Destination: "https://example.com"}}
		}, false},
		{"seed with bad characters", func(c *Config) {
			c.Seed = []SeedRedirect{{ShortCode: "promo 1", Destination: "https://example.com"}}
		}, true},
		{"seed with reserved code", func(c *Config) {
			c.Seed = []SeedRedirect{{ShortCode: "track", Destination: "https://example.com"}}
		}, true},
		{"bad public url", func(c *Config) { c.Server.PublicURL = "not a url" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateRestore(t *testing.T) {
	cfg := validConfig()
	assert.Error(t, cfg.ValidateRestore(), "no archive")

	cfg.Sheets.ArchiveSpreadsheetID = "archive"
	assert.NoError(t, cfg.ValidateRestore())

	cfg.Storage.Scans = "memory"
	assert.Error(t, cfg.ValidateRestore())
}

func TestEnvTransformFunc(t *testing.T) {
	assert.Equal(t, "database.url", envTransformFunc("DATABASE_URL"))
	assert.Equal(t, "auth.oidc.issuer_url", envTransformFunc("OIDC_ISSUER"))
	assert.Equal(t, "", envTransformFunc("HOME"))

	key, value := envValueFunc("OIDC_REQUIRED_SCOPES", " a  b ")
	assert.Equal(t, "auth.oidc.required_scopes", key)
	assert.Equal(t, []string{"a", "b"}, value)
}
