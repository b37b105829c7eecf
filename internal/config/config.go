// Package config provides YAML-based configuration loading for the bot.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/evalbot/evalbot/internal/paths"
)

// Config is the top-level bot configuration.
type Config struct {
	Telegram   TelegramConfig   `yaml:"telegram"`
	Playground PlaygroundConfig `yaml:"playground"`
	Database   DatabaseConfig   `yaml:"database"`
	Log        LogConfig        `yaml:"log"`
}

// TelegramConfig holds Bot API settings. The API key can also come from
// EVALBOT_TG_API_KEY, which takes precedence over the file.
type TelegramConfig struct {
	APIKey string `yaml:"api_key"`
	Env    string `yaml:"env"` // "prod" or "test"
}

type PlaygroundConfig struct {
	BaseURL string `yaml:"base_url"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"` // "debug", "info", "warn", "error"
}

// Load reads a YAML config file from path and returns a validated Config. A
// missing file is fine; defaults and environment variables still apply.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			data = nil
		} else {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if key := os.Getenv("EVALBOT_TG_API_KEY"); key != "" {
		c.Telegram.APIKey = key
	}
	if env := os.Getenv("EVALBOT_TG_ENV"); env != "" {
		c.Telegram.Env = env
	}
	if c.Telegram.Env == "" {
		c.Telegram.Env = "prod"
	}
	if c.Playground.BaseURL == "" {
		c.Playground.BaseURL = "https://play.rust-lang.org"
	}
	if c.Database.Path == "" {
		dir, err := paths.StateDir()
		if err != nil {
			return fmt.Errorf("config: resolving state directory: %w", err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: creating state directory: %w", err)
		}
		c.Database.Path = dir + "/evalbot.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	return nil
}

func (c *Config) validate() error {
	var errs []string
	if c.Telegram.APIKey == "" {
		errs = append(errs, "telegram.api_key is required (or set EVALBOT_TG_API_KEY)")
	}
	switch c.Telegram.Env {
	case "prod", "test":
	default:
		errs = append(errs, fmt.Sprintf("telegram.env must be prod or test, got %q", c.Telegram.Env))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level must be debug, info, warn, or error, got %q", c.Log.Level))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
