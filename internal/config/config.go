// Package config loads and validates the notifier configuration from a YAML
// file, with environment overrides for secrets.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dwilches/phabricator-slack-notifier/internal/types"
)

// Config is the full service configuration.
type Config struct {
	PhabricatorURL   string `yaml:"phabricator_url"`
	PhabricatorToken string `yaml:"phabricator_token"`
	SlackToken       string `yaml:"slack_token"`
	ListenAddr       string `yaml:"listen_addr"`
	LogLevel         string `yaml:"log_level"`
	// Channels maps repository names to Slack channels. The "__default__"
	// entry is mandatory; "__debug__" optionally enables the debug sink.
	Channels map[string]string `yaml:"channels"`
}

// Load reads the config file at path, applies env overrides, and validates.
// PHABRICATOR_TOKEN and SLACK_TOKEN env vars take precedence over the file,
// so tokens can be kept out of it. A .env file is honored if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if v := os.Getenv("PHABRICATOR_TOKEN"); v != "" {
		cfg.PhabricatorToken = v
	}
	if v := os.Getenv("SLACK_TOKEN"); v != "" {
		cfg.SlackToken = v
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.PhabricatorURL == "" {
		return fmt.Errorf("phabricator_url is required")
	}
	if c.PhabricatorToken == "" {
		return fmt.Errorf("phabricator_token is required (file or PHABRICATOR_TOKEN)")
	}
	if c.SlackToken == "" {
		return fmt.Errorf("slack_token is required (file or SLACK_TOKEN)")
	}
	if c.Channels[types.DefaultChannelKey] == "" {
		return fmt.Errorf("channels.%s is required", types.DefaultChannelKey)
	}
	return nil
}
