// Copyright 2026 The AI Moderator Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the moderator.
//
// Configuration is loaded from a single YAML file specified by:
//   - AIMODERATOR_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
//
// The loaded Config is read-only after Load returns. Components hold a
// pointer to it and consult it per event — privilege-sensitive values
// (admin list, thresholds) are never copied into component fields at
// startup, so a future config reload cannot leave stale permissions
// behind.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/williamkray/maubot-aimoderator/lib/ref"
)

// Config is the full configuration surface for the moderator.
type Config struct {
	// HomeserverURL is the base URL of the Matrix homeserver
	// (e.g., "https://matrix.example.org").
	HomeserverURL string `yaml:"homeserver_url"`

	// UserID is the moderator's fully-qualified Matrix user ID.
	UserID string `yaml:"user_id"`

	// AccessToken authenticates the moderator's Matrix session.
	AccessToken string `yaml:"access_token"`

	// Admins lists user IDs that are never filtered or scored.
	Admins []string `yaml:"admins"`

	// UncensorLevel is the minimum room power level that exempts a
	// sender from filtering and scoring.
	UncensorLevel int `yaml:"uncensor_level"`

	// ModerateFiles enables scoring of media messages. When false,
	// media messages are ignored entirely.
	ModerateFiles bool `yaml:"moderate_files"`

	// Threshold is the risk score (0-10) at or above which a message
	// is flagged for enforcement.
	Threshold int `yaml:"threshold"`

	// APIKey is the bearer token for the classification API.
	APIKey string `yaml:"api_key"`

	// APIEndpoint is the chat-completions URL of the classification
	// API (e.g., "https://api.openai.com/v1/chat/completions").
	APIEndpoint string `yaml:"api_endpoint"`

	// APIModel is the model name sent in classification requests.
	APIModel string `yaml:"api_model"`

	// EnableJoinNotice sends a privacy disclosure notice the first
	// time a user is seen joining a room.
	EnableJoinNotice bool `yaml:"enable_join_notice"`

	// CustomNoticeText overrides the default join notice HTML.
	CustomNoticeText string `yaml:"custom_notice_text"`

	// EnableMsgtypeFilter rejects messages whose type or media type is
	// not allow-listed, independent of scoring.
	EnableMsgtypeFilter bool `yaml:"enable_msgtype_filter"`

	// AllowedMsgtypes is the message type allow-list. Empty means the
	// default list (m.text, m.image).
	AllowedMsgtypes []string `yaml:"allowed_msgtypes"`

	// AllowedMimetypes is the media type allow-list applied to image
	// messages. Empty means the default list (jpeg, png, webp, gif).
	AllowedMimetypes []string `yaml:"allowed_mimetypes"`

	// MetricsListen is an optional "host:port" address for the
	// Prometheus /metrics endpoint. Empty disables the listener.
	MetricsListen string `yaml:"metrics_listen"`
}

// Default message type and media type allow-lists, applied when the
// config file leaves the lists empty.
var (
	defaultMsgtypes  = []string{"m.text", "m.image"}
	defaultMimetypes = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}
)

// Default returns the default configuration. These defaults are a base
// before loading the config file — the file itself is required.
func Default() *Config {
	return &Config{
		UncensorLevel: 50,
		Threshold:     8,
		ModerateFiles: false,
	}
}

// Load loads configuration from the AIMODERATOR_CONFIG environment
// variable. There are no fallbacks — if the variable is not set, this
// fails.
func Load() (*Config, error) {
	configPath := os.Getenv("AIMODERATOR_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("AIMODERATOR_CONFIG environment variable not set; " +
			"set it to the path of your config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merging the
// file's values over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.HomeserverURL == "" {
		errs = append(errs, fmt.Errorf("homeserver_url is required"))
	}
	if c.UserID == "" {
		errs = append(errs, fmt.Errorf("user_id is required"))
	} else if _, err := ref.ParseUserID(c.UserID); err != nil {
		errs = append(errs, fmt.Errorf("user_id: %w", err))
	}
	if c.AccessToken == "" {
		errs = append(errs, fmt.Errorf("access_token is required"))
	}
	if c.APIEndpoint == "" {
		errs = append(errs, fmt.Errorf("api_endpoint is required"))
	}
	if c.APIModel == "" {
		errs = append(errs, fmt.Errorf("api_model is required"))
	}
	if c.Threshold < 0 || c.Threshold > 10 {
		errs = append(errs, fmt.Errorf("threshold must be between 0 and 10, got %d", c.Threshold))
	}
	for _, admin := range c.Admins {
		if _, err := ref.ParseUserID(admin); err != nil {
			errs = append(errs, fmt.Errorf("admins: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// IsAdmin reports whether the given user is in the admin list.
func (c *Config) IsAdmin(userID ref.UserID) bool {
	for _, admin := range c.Admins {
		if admin == userID.String() {
			return true
		}
	}
	return false
}

// MsgtypeAllowlist returns the configured message type allow-list, or
// the default list when none is configured.
func (c *Config) MsgtypeAllowlist() []string {
	if len(c.AllowedMsgtypes) > 0 {
		return c.AllowedMsgtypes
	}
	return defaultMsgtypes
}

// MimetypeAllowlist returns the configured media type allow-list, or
// the default list when none is configured.
func (c *Config) MimetypeAllowlist() []string {
	if len(c.AllowedMimetypes) > 0 {
		return c.AllowedMimetypes
	}
	return defaultMimetypes
}
