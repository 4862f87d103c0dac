package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is not set.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/qr-tracker/config.yaml",
}

const ConfigPathEnvVar = "CONFIG_PATH"

var envMappings = map[string]string{
	"http_addr":                "server.addr",
	"public_url":               "server.public_url",
	"track_rate_limit":         "server.track_rate_limit",
	"database_url":             "database.url",
	"database_max_conns":       "database.max_conns",
	"redis_url":                "redis.url",
	"redis_ttl":                "redis.ttl",
	"redirect_store":           "storage.redirects",
	"scan_store":               "storage.scans",
	"google_credentials_file":  "sheets.credentials_file",
	"redirects_spreadsheet_id": "sheets.redirects_spreadsheet_id",
	"archive_spreadsheet_id":   "sheets.archive_spreadsheet_id",
	"restore_on_start":         "sheets.restore_on_start",
	"geo_enabled":              "geo.enabled",
	"geo_base_url":             "geo.base_url",
	"geo_timeout":              "geo.timeout",
	"auth_enabled":             "auth.enabled",
	"session_secret":           "auth.session_secret",
	"session_ttl":              "auth.session_ttl",
	"oidc_issuer":              "auth.oidc.issuer_url",
	"oidc_audience":            "auth.oidc.audience",
	"oidc_required_scopes":     "auth.oidc.required_scopes",
	"trust_proxy":              "server.trust_proxy",
	"log_level":                "log.level",
}

// Load builds the configuration from defaults, the optional config file
// and the environment, then validates it.
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is Load with an explicit config file path; empty skips the file layer.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envValueFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// listKeys hold space-separated lists in the environment.
var listKeys = map[string]bool{
	"auth.oidc.required_scopes": true,
}

func envValueFunc(key, value string) (string, interface{}) {
	mapped := envTransformFunc(key)
	if listKeys[mapped] {
		return mapped, strings.Fields(value)
	}
	return mapped, value
}

// envTransformFunc maps known environment variables to config paths and
// drops everything else.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
