package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config root configuration
type Config struct {
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Approvals ApprovalsConfig `mapstructure:"approvals"`
	Channels  ChannelsConfig  `mapstructure:"channels"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Log       LogConfig       `mapstructure:"log"`
}

// WorkspaceConfig controls where durable state lives
type WorkspaceConfig struct {
	Path string `mapstructure:"path"`
	Mode string `mapstructure:"mode"`
}

// ApprovalsConfig approval lifecycle settings
type ApprovalsConfig struct {
	DefaultTimeoutMinutes int `mapstructure:"default_timeout_minutes"`
	CheckIntervalSeconds  int `mapstructure:"check_interval_seconds"`
	MaxConcurrentExpires  int `mapstructure:"max_concurrent_expires"`
}

// DefaultTimeout returns the deadline offset for new approvals.
func (a ApprovalsConfig) DefaultTimeout() time.Duration {
	return time.Duration(a.DefaultTimeoutMinutes) * time.Minute
}

// CheckInterval returns the expiry sweep tick interval.
func (a ApprovalsConfig) CheckInterval() time.Duration {
	return time.Duration(a.CheckIntervalSeconds) * time.Second
}

// ChannelsConfig channel settings
type ChannelsConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig telegram bot settings
type TelegramConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Token     string   `mapstructure:"token"`
	ChatID    string   `mapstructure:"chat_id"`
	AllowFrom []string `mapstructure:"allow_from"`
}

// GatewayConfig server settings
type GatewayConfig struct {
	Host  string `mapstructure:"host"`
	Port  int    `mapstructure:"port"`
	Token string `mapstructure:"token"`
}

// LogConfig application logging settings
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DefaultConfig returns config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Mode: "default",
		},
		Approvals: ApprovalsConfig{
			DefaultTimeoutMinutes: 30,
			CheckIntervalSeconds:  30,
			MaxConcurrentExpires:  10,
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				Enabled:   false,
				AllowFrom: []string{},
			},
		},
		Gateway: GatewayConfig{
			Host:  "0.0.0.0",
			Port:  18920,
			Token: "",
		},
		Log: LogConfig{
			Level: "info",
			File:  "",
		},
	}
}

// ConfigDir returns the conductor config directory
func ConfigDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".conductor")
}

// ConfigPath returns the config file path
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// Load loads config from file or returns defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := ConfigPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := Save(cfg); err != nil {
			return cfg, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix("CONDUCTOR")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return cfg, err
	}

	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.MatchName = func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		}
	}); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func normalizeKey(input string) string {
	input = strings.ReplaceAll(input, "_", "")
	input = strings.ReplaceAll(input, "-", "")
	return strings.ToLower(input)
}

// Save saves config to file
func Save(cfg *Config) error {
	configPath := ConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}

// Validate checks that the configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	a := &c.Approvals

	if a.DefaultTimeoutMinutes == 0 {
		a.DefaultTimeoutMinutes = 30
	}
	if a.DefaultTimeoutMinutes < 1 || a.DefaultTimeoutMinutes > 1440 {
		return fmt.Errorf("approvals.default_timeout_minutes must be between 1 and 1440, got %d", a.DefaultTimeoutMinutes)
	}

	if a.CheckIntervalSeconds == 0 {
		a.CheckIntervalSeconds = 30
	}
	if a.CheckIntervalSeconds < 10 || a.CheckIntervalSeconds > 300 {
		return fmt.Errorf("approvals.check_interval_seconds must be between 10 and 300, got %d", a.CheckIntervalSeconds)
	}

	if a.MaxConcurrentExpires == 0 {
		a.MaxConcurrentExpires = 10
	}
	if a.MaxConcurrentExpires < 1 || a.MaxConcurrentExpires > 100 {
		return fmt.Errorf("approvals.max_concurrent_expires must be between 1 and 100, got %d", a.MaxConcurrentExpires)
	}

	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port must be between 1 and 65535, got %d", c.Gateway.Port)
	}

	if c.Channels.Telegram.Enabled && strings.TrimSpace(c.Channels.Telegram.Token) == "" {
		return fmt.Errorf("channels.telegram.token is required when telegram is enabled")
	}

	mode := strings.TrimSpace(c.Workspace.Mode)
	if mode != "" {
		validModes := map[string]bool{"default": true, "cwd": true, "path": true}
		if !validModes[strings.ToLower(mode)] {
			return fmt.Errorf("workspace.mode must be one of: default, cwd, path; got %q", mode)
		}
		if strings.EqualFold(mode, "path") && strings.TrimSpace(c.Workspace.Path) == "" {
			return fmt.Errorf("workspace.path must be non-empty when workspace.mode is \"path\"")
		}
	}

	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	if level == "" {
		c.Log.Level = "info"
	} else {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[level] {
			return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
		}
		c.Log.Level = level
	}

	return nil
}

// WorkspacePath returns the expanded workspace path
func (c *Config) WorkspacePath() string {
	path, err := c.WorkspacePathChecked()
	if err != nil {
		return filepath.Join(ConfigDir(), "workspace")
	}
	return path
}

// WorkspacePathChecked returns the expanded workspace path or an error if invalid.
func (c *Config) WorkspacePathChecked() (string, error) {
	mode := strings.TrimSpace(c.Workspace.Mode)
	if mode == "" || strings.EqualFold(mode, "default") {
		return filepath.Join(ConfigDir(), "workspace"), nil
	}
	if strings.EqualFold(mode, "cwd") {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to resolve cwd: %w", err)
		}
		return wd, nil
	}
	if !strings.EqualFold(mode, "path") {
		return "", fmt.Errorf("unknown workspace mode: %s", mode)
	}
	if c.Workspace.Path == "" {
		return "", fmt.Errorf("workspace.path is required when workspace.mode=path")
	}
	if c.Workspace.Path[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory for workspace path: %w", err)
		}
		rest := c.Workspace.Path[1:]
		rest = strings.TrimPrefix(rest, string(filepath.Separator))
		rest = strings.TrimPrefix(rest, "/")
		return filepath.Join(homeDir, rest), nil
	}
	return c.Workspace.Path, nil
}
