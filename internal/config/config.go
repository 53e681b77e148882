// Package config provides configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	GitHub       GitHubConfig       `mapstructure:"github"`
	SuperProject SuperProjectConfig `mapstructure:"superproject"`
	Data         DataConfig         `mapstructure:"data"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Git          GitConfig          `mapstructure:"git"`
	Mirror       MirrorConfig       `mapstructure:"mirror"`
	Telegram     TelegramConfig     `mapstructure:"telegram"`
	Log          LogConfig          `mapstructure:"log"`
}

// GitHubConfig holds GitHub API configuration.
type GitHubConfig struct {
	Token   string `mapstructure:"token"`
	APIURL  string `mapstructure:"api_url" validate:"omitempty,url"` // empty means api.github.com
	Org     string `mapstructure:"org" validate:"required"`          // organisation whose event stream is read
	PerPage int    `mapstructure:"per_page" validate:"min=1,max=100"`
}

// SuperProjectConfig describes the superproject and the branches to keep in sync.
type SuperProjectConfig struct {
	Repo       string         `mapstructure:"repo" validate:"required,contains=/"`
	URL        string         `mapstructure:"url"`
	Branches   []BranchConfig `mapstructure:"branches" validate:"required,min=1,dive"`
	Push       bool           `mapstructure:"push"`
	Attempts   int            `mapstructure:"attempts" validate:"min=1,max=10"`
	RetryDelay time.Duration  `mapstructure:"retry_delay"`
}

// BranchConfig maps a superproject branch to the submodule branch it tracks.
type BranchConfig struct {
	Branch          string `mapstructure:"branch" validate:"required"`
	SubmoduleBranch string `mapstructure:"submodule_branch" validate:"required"`
}

// DataConfig holds the location of checkouts and other working data.
type DataConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// GitConfig holds settings for git subprocesses.
type GitConfig struct {
	Timeout   time.Duration `mapstructure:"timeout" validate:"min=1s"`
	UserName  string        `mapstructure:"user_name" validate:"required"`
	UserEmail string        `mapstructure:"user_email" validate:"required,email"`
}

// MirrorConfig controls dirty flagging of the local mirror.
type MirrorConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TelegramConfig holds the optional failure alert channel.
type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id" validate:"required_with=Token"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info"`
	File  string `mapstructure:"file"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("github.org", "boostorg")
	v.SetDefault("github.per_page", 100)
	v.SetDefault("superproject.repo", "boostorg/boost")
	v.SetDefault("superproject.push", false)
	v.SetDefault("superproject.attempts", 2)
	v.SetDefault("superproject.retry_delay", "2s")
	v.SetDefault("data.path", "./var/data")
	v.SetDefault("database.path", "./var/data/cache.db")
	v.SetDefault("git.timeout", "60s")
	v.SetDefault("git.user_name", "Automated Commit")
	v.SetDefault("git.user_email", "automated@localhost.localdomain")
	v.SetDefault("mirror.enabled", false)
	v.SetDefault("log.level", "info")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("SUBMODSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	seen := make(map[string]bool)
	for _, b := range c.SuperProject.Branches {
		if seen[b.Branch] {
			return fmt.Errorf("invalid configuration: branch %q listed twice", b.Branch)
		}
		seen[b.Branch] = true
	}
	return nil
}

// SuperProjectURL returns the clone URL of the superproject.
func (c *Config) SuperProjectURL() string {
	if c.SuperProject.URL != "" {
		return c.SuperProject.URL
	}
	return fmt.Sprintf("git@github.com:%s.git", c.SuperProject.Repo)
}

// CheckoutPath returns the working tree used for a superproject branch.
func (c *Config) CheckoutPath(branch string) string {
	return filepath.Join(c.Data.Path, "super", branch)
}

// QueueName returns the consumer name used for a superproject branch.
func QueueName(branch string) string {
	return "superproject:" + branch
}
