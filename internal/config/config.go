// Package config provides YAML-based configuration loading for Parley.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Parley configuration, loaded from parley.yaml.
type Config struct {
	Platform  string          `yaml:"platform"` // "discord" or "slack"
	Discord   DiscordConfig   `yaml:"discord"`
	Slack     SlackConfig     `yaml:"slack"`
	Ollama    OllamaConfig    `yaml:"ollama"`
	Chat      ChatConfig      `yaml:"chat"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Digest    DigestConfig    `yaml:"digest"`
}

// DiscordConfig holds Discord bot credentials and targets.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	AppID     string `yaml:"app_id"`     // application ID, required for command deploy
	GuildID   string `yaml:"guild_id"`   // empty deploys commands globally
	ChannelID string `yaml:"channel_id"` // home channel for digests and status posts
}

// SlackConfig holds Slack Socket Mode credentials and targets.
type SlackConfig struct {
	AppToken  string `yaml:"app_token"` // xapp-... app-level token
	BotToken  string `yaml:"bot_token"` // xoxb-... bot token
	ChannelID string `yaml:"channel_id"`
}

// OllamaConfig points at the local generation endpoint.
type OllamaConfig struct {
	Host       string `yaml:"host"`
	Model      string `yaml:"model"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// ChatConfig tunes the conversational session behavior.
type ChatConfig struct {
	PromptsPath string `yaml:"prompts_path"` // prompt catalog YAML file
	WindowSec   int    `yaml:"window_sec"`   // collection window idle deadline
	BotName     string `yaml:"bot_name"`     // overrides the platform display name when set
}

// ArchiveConfig controls the local transcript archive. An empty path
// disables archiving entirely.
type ArchiveConfig struct {
	Path string `yaml:"path"`
}

// DashboardConfig controls the ops dashboard HTTP server.
type DashboardConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// DigestConfig controls the daily activity digest post.
type DigestConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"` // 5-field cron expression
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Ollama.Host == "" {
		c.Ollama.Host = "http://127.0.0.1:11434"
	}
	if c.Ollama.Model == "" {
		c.Ollama.Model = "gemma3:latest"
	}
	if c.Ollama.TimeoutSec == 0 {
		c.Ollama.TimeoutSec = 120
	}
	if c.Chat.PromptsPath == "" {
		c.Chat.PromptsPath = "prompts.yaml"
	}
	if c.Chat.WindowSec == 0 {
		c.Chat.WindowSec = 30
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
	if c.Digest.Cron == "" {
		c.Digest.Cron = "0 9 * * *"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Platform {
	case "discord":
		if c.Discord.BotToken == "" {
			errs = append(errs, "discord.bot_token is required")
		}
	case "slack":
		if c.Slack.AppToken == "" {
			errs = append(errs, "slack.app_token is required")
		}
		if c.Slack.BotToken == "" {
			errs = append(errs, "slack.bot_token is required")
		}
	case "":
		errs = append(errs, "platform is required")
	default:
		errs = append(errs, fmt.Sprintf("platform %q is not supported (discord, slack)", c.Platform))
	}
	if c.Chat.WindowSec < 0 {
		errs = append(errs, "chat.window_sec must not be negative")
	}
	if c.Digest.Enabled && c.homeChannel() == "" {
		errs = append(errs, "digest requires a channel_id for the selected platform")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// homeChannel returns the configured home channel for the active platform.
func (c *Config) homeChannel() string {
	switch c.Platform {
	case "discord":
		return c.Discord.ChannelID
	case "slack":
		return c.Slack.ChannelID
	}
	return ""
}

// HomeChannel returns the channel digests and status posts go to.
func (c *Config) HomeChannel() string { return c.homeChannel() }
