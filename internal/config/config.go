// Package config loads the target and site inventory from a TOML file and
// resolves the WPScan API credential.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// TokenEnvVar names the environment variable holding the WPScan API token.
const TokenEnvVar = "WPSCAN_API_TOKEN"

// Site describes one hosted WordPress instance on the target.
type Site struct {
	Name   string `toml:"name"`
	Domain string `toml:"domain"`
	// Type selects the container layout: "frankenwp" or "wordpress" serve
	// from /var/www/html, "ols" from /var/www/vhosts/<domain>.
	Type string `toml:"type"`
}

// Config is the audit target inventory.
type Config struct {
	Host        string `toml:"host"`
	User        string `toml:"user"`
	Port        int    `toml:"port"`
	WPScanToken string `toml:"wpscan_api_token"`
	Sites       []Site `toml:"sites"`
}

// Load reads and validates a TOML inventory file.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("config %s: host is required", path)
	}
	if cfg.User == "" {
		cfg.User = "root"
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	for i, s := range cfg.Sites {
		if s.Name == "" {
			return nil, fmt.Errorf("config %s: sites[%d] has no name", path, i)
		}
		if s.Type == "" {
			cfg.Sites[i].Type = "wordpress"
		}
	}
	return &cfg, nil
}

// ResolveToken picks the WPScan API token: explicit flag first, then the
// environment (a .env file in the working directory is honored), then the
// inventory file. Empty means vulnerability lookups are skipped, which is a
// valid configuration, not an error.
func ResolveToken(flagValue string, cfg *Config) string {
	if flagValue != "" {
		return flagValue
	}
	// Ignore a missing .env; it is optional.
	_ = godotenv.Load()
	if tok := os.Getenv(TokenEnvVar); tok != "" {
		return tok
	}
	if cfg != nil {
		return cfg.WPScanToken
	}
	return ""
}
