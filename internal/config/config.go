// Package config provides YAML-based configuration loading for Ticketyard.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Ticketyard configuration, loaded from config.yaml.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Export    ExportConfig    `yaml:"export"`
	Retention RetentionConfig `yaml:"retention"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// DatabaseConfig holds connection settings for the MySQL server.
type DatabaseConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// ExportConfig selects and configures the issue tracker target.
type ExportConfig struct {
	// Target is "jira" or "github".
	Target string       `yaml:"target"`
	Jira   JiraConfig   `yaml:"jira"`
	GitHub GitHubConfig `yaml:"github"`
}

// JiraConfig holds the Jira Cloud site and project settings.
type JiraConfig struct {
	BaseURL    string `yaml:"base_url"`
	ProjectKey string `yaml:"project_key"`
}

// GitHubConfig holds the GitHub Issues target repository.
type GitHubConfig struct {
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`
}

// RetentionConfig controls cleanup of stale incomplete sessions.
type RetentionConfig struct {
	Days int `yaml:"days"`
	// Schedule is a 5-field cron expression for the sweep.
	Schedule string `yaml:"schedule"`
}

// NotifyConfig holds the optional chat notification targets.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Slack bot credentials and the target channel.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DiscordConfig holds Discord bot credentials and the target channel.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
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
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Name == "" {
		c.Database.Name = "ticketyard"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Export.Target == "" {
		c.Export.Target = "jira"
	}
	if c.Retention.Days == 0 {
		c.Retention.Days = 30
	}
	if c.Retention.Schedule == "" {
		c.Retention.Schedule = "0 3 * * *"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Export.Target {
	case "jira":
		if c.Export.Jira.BaseURL == "" {
			errs = append(errs, "export.jira.base_url is required")
		}
		if c.Export.Jira.ProjectKey == "" {
			errs = append(errs, "export.jira.project_key is required")
		}
	case "github":
		if c.Export.GitHub.Owner == "" {
			errs = append(errs, "export.github.owner is required")
		}
		if c.Export.GitHub.Repo == "" {
			errs = append(errs, "export.github.repo is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("export.target must be jira or github, got %q", c.Export.Target))
	}
	if c.Retention.Days < 0 {
		errs = append(errs, "retention.days cannot be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
