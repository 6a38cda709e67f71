// Package config loads the service configuration from an optional YAML file
// with environment-variable overrides taking precedence.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	// PublicURL is the externally reachable base URL used to build the OAuth
	// redirect URIs, e.g. https://link.example.com
	PublicURL    string `yaml:"public_url"`
	CookieSecret string `yaml:"cookie_secret"`
}

type OAuthClientConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type Config struct {
	Server   ServerConfig      `yaml:"server"`
	Discord  OAuthClientConfig `yaml:"discord"`
	Nexus    OAuthClientConfig `yaml:"nexus"`
	Database DatabaseConfig    `yaml:"database"`
	LogLevel string            `yaml:"log_level"`
}

// Load reads the YAML file at path (missing file is not an error), applies
// environment overrides, fills defaults and validates required fields.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Config is optional; everything can come from the environment.
		default:
			return nil, err
		}
	}

	overlay(&cfg.Server.Host, "MODLINK_HOST")
	overlay(&cfg.Server.Port, "MODLINK_PORT")
	overlay(&cfg.Server.PublicURL, "MODLINK_PUBLIC_URL")
	overlay(&cfg.Server.CookieSecret, "MODLINK_COOKIE_SECRET")
	overlay(&cfg.Discord.ClientID, "DISCORD_CLIENT_ID")
	overlay(&cfg.Discord.ClientSecret, "DISCORD_CLIENT_SECRET")
	overlay(&cfg.Nexus.ClientID, "NEXUS_CLIENT_ID")
	overlay(&cfg.Nexus.ClientSecret, "NEXUS_CLIENT_SECRET")
	overlay(&cfg.Database.Path, "MODLINK_DB_PATH")
	overlay(&cfg.LogLevel, "MODLINK_LOG_LEVEL")

	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "3000"
	}
	if cfg.Server.PublicURL == "" {
		cfg.Server.PublicURL = fmt.Sprintf("http://%s:%s", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "modlink.db"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	missing := []string{}
	if c.Server.CookieSecret == "" {
		missing = append(missing, "server.cookie_secret / MODLINK_COOKIE_SECRET")
	}
	if c.Discord.ClientID == "" || c.Discord.ClientSecret == "" {
		missing = append(missing, "discord client credentials")
	}
	if c.Nexus.ClientID == "" || c.Nexus.ClientSecret == "" {
		missing = append(missing, "nexus client credentials")
	}
	if len(missing) > 0 {
		return fmt.Errorf("incomplete configuration: %v", missing)
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

func overlay(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
