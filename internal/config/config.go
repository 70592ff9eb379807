// Package config loads the bot's YAML configuration: the channel to
// watch, polling cadence, and one opaque section per enabled plugin.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"diplomat/internal/plugin"
)

const (
	defaultPollSeconds    = 3
	defaultTimeoutSeconds = 10
	defaultLogDir         = "logs"
)

// Decidio holds the external decision-service connection settings.
// They are folded into the decidio plugin's section on load so the
// plugin factory sees one flat record.
type Decidio struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Config models the top-level YAML file.
type Config struct {
	Channel        string `yaml:"channel"`
	BotAuthorID    string `yaml:"bot_author_id"`
	PollSeconds    int    `yaml:"poll_interval_seconds"`
	TimeoutSeconds int    `yaml:"plugin_timeout_seconds"`

	// Observers are member ids excluded from participation counts.
	Observers []string `yaml:"observers"`
	LogDir    string   `yaml:"log_dir"`

	Decidio Decidio                  `yaml:"decidio"`
	Plugins map[string]plugin.Config `yaml:"plugins"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates raw YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// PollInterval returns the poll cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

// PluginTimeout returns the per-plugin evaluation budget.
func (c *Config) PluginTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// EnabledPlugins returns the configured plugin ids in no particular
// order.
func (c *Config) EnabledPlugins() []string {
	ids := make([]string, 0, len(c.Plugins))
	for id := range c.Plugins {
		ids = append(ids, id)
	}
	return ids
}

func (c *Config) applyDefaults() {
	if c.PollSeconds == 0 {
		c.PollSeconds = defaultPollSeconds
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.LogDir == "" {
		c.LogDir = defaultLogDir
	}
	if c.Plugins == nil {
		c.Plugins = map[string]plugin.Config{}
	}
}

func (c *Config) normalize() {
	c.Channel = strings.TrimSpace(c.Channel)
	c.BotAuthorID = strings.TrimSpace(c.BotAuthorID)
	c.LogDir = strings.TrimSpace(c.LogDir)
	for i := range c.Observers {
		c.Observers[i] = strings.TrimSpace(c.Observers[i])
	}

	// Fold the service block into the decidio plugin section so the
	// factory reads a single flat record. Explicit plugin keys win.
	if section, ok := c.Plugins["decidio"]; ok {
		if section == nil {
			section = plugin.Config{}
			c.Plugins["decidio"] = section
		}
		setIfMissing(section, "url", c.Decidio.URL)
		setIfMissing(section, "username", c.Decidio.Username)
		setIfMissing(section, "password", c.Decidio.Password)
	}
}

func (c *Config) validate() error {
	if c.Channel == "" {
		return fmt.Errorf("channel is required")
	}
	if c.BotAuthorID == "" {
		return fmt.Errorf("bot_author_id is required")
	}
	if c.PollSeconds < 1 {
		return fmt.Errorf("poll_interval_seconds must be >= 1")
	}
	if c.TimeoutSeconds < 1 {
		return fmt.Errorf("plugin_timeout_seconds must be >= 1")
	}
	return nil
}

func setIfMissing(section plugin.Config, key, value string) {
	if value == "" {
		return
	}
	if _, ok := section[key]; !ok {
		section[key] = value
	}
}
