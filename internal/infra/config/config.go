// Package config provides configuration loading from YAML files.
package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Spotify   SpotifyConfig   `yaml:"spotify"`
	Playlist  PlaylistConfig  `yaml:"playlist"`
	Assistant AssistantConfig `yaml:"assistant"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" default:":8000"`
	// StaticDir is served at / when set (built front-end).
	StaticDir string      `yaml:"static_dir"`
	Hooks     HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// SpotifyConfig represents Spotify application configuration.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" validate:"required"`
	ClientSecret string `yaml:"client_secret" validate:"required"`
	RedirectURL  string `yaml:"redirect_url" default:"http://127.0.0.1:8000/callback" validate:"url"`
	APIBaseURL   string `yaml:"api_base_url" default:"https://api.spotify.com/v1/" validate:"url"`
}

// PlaylistConfig represents how materialized playlists are created.
type PlaylistConfig struct {
	DescriptionPrefix string  `yaml:"description_prefix" default:"Playlist created with Tonaly"`
	Public            bool    `yaml:"public"`
	SearchRatePerSec  float64 `yaml:"search_rate_per_sec" validate:"gte=0,lte=50"`
}

// AssistantConfig represents the text-generation service configuration.
type AssistantConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url" default:"https://api.mistral.ai/v1" validate:"url"`
	Model       string  `yaml:"model" default:"mistral-small-latest"`
	Temperature float64 `yaml:"temperature" default:"0.7" validate:"gte=0,lte=2"`
	MaxTokens   int     `yaml:"max_tokens" default:"2048" validate:"gte=0"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	return Parse(data)
}

// Parse builds a configuration from YAML bytes, applying env overrides, defaults and validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REDIRECT_URL"); v != "" {
		c.Spotify.RedirectURL = v
	}
	if v := os.Getenv("MISTRAL_API_KEY"); v != "" {
		c.Assistant.APIKey = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}
