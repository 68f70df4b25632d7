package config

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Approvals.DefaultTimeoutMinutes != 30 {
		t.Errorf("expected DefaultTimeoutMinutes=30, got %d", cfg.Approvals.DefaultTimeoutMinutes)
	}
	if cfg.Approvals.CheckIntervalSeconds != 30 {
		t.Errorf("expected CheckIntervalSeconds=30, got %d", cfg.Approvals.CheckIntervalSeconds)
	}
	if cfg.Approvals.MaxConcurrentExpires != 10 {
		t.Errorf("expected MaxConcurrentExpires=10, got %d", cfg.Approvals.MaxConcurrentExpires)
	}
	if cfg.Gateway.Port != 18920 {
		t.Errorf("expected Port=18920, got %d", cfg.Gateway.Port)
	}
	if cfg.Approvals.DefaultTimeout() != 30*time.Minute {
		t.Errorf("expected 30m default timeout, got %s", cfg.Approvals.DefaultTimeout())
	}
	if cfg.Approvals.CheckInterval() != 30*time.Second {
		t.Errorf("expected 30s check interval, got %s", cfg.Approvals.CheckInterval())
	}
}

func TestValidate_ApprovalRanges(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults pass", func(c *Config) {}, false},
		{"zero timeout normalized", func(c *Config) { c.Approvals.DefaultTimeoutMinutes = 0 }, false},
		{"timeout too small", func(c *Config) { c.Approvals.DefaultTimeoutMinutes = -1 }, true},
		{"timeout too large", func(c *Config) { c.Approvals.DefaultTimeoutMinutes = 1441 }, true},
		{"interval too small", func(c *Config) { c.Approvals.CheckIntervalSeconds = 5 }, true},
		{"interval too large", func(c *Config) { c.Approvals.CheckIntervalSeconds = 301 }, true},
		{"concurrency too large", func(c *Config) { c.Approvals.MaxConcurrentExpires = 101 }, true},
		{"bad gateway port", func(c *Config) { c.Gateway.Port = 70000 }, true},
		{"telegram enabled without token", func(c *Config) { c.Channels.Telegram.Enabled = true }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, true},
		{"bad workspace mode", func(c *Config) { c.Workspace.Mode = "remote" }, true},
		{"path mode without path", func(c *Config) { c.Workspace.Mode = "path" }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestValidate_NormalizesZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Approvals = ApprovalsConfig{}
	cfg.Log.Level = ""

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if cfg.Approvals.DefaultTimeoutMinutes != 30 {
		t.Errorf("expected default timeout 30, got %d", cfg.Approvals.DefaultTimeoutMinutes)
	}
	if cfg.Approvals.CheckIntervalSeconds != 30 {
		t.Errorf("expected default interval 30, got %d", cfg.Approvals.CheckIntervalSeconds)
	}
	if cfg.Approvals.MaxConcurrentExpires != 10 {
		t.Errorf("expected default concurrency 10, got %d", cfg.Approvals.MaxConcurrentExpires)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected log level info, got %q", cfg.Log.Level)
	}
}
