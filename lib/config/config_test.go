// Copyright 2026 The AI Moderator Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/williamkray/maubot-aimoderator/lib/ref"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aimoderator.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

const validConfig = `
homeserver_url: https://matrix.example.org
user_id: "@moderator:example.org"
access_token: syt_mod_token
api_endpoint: https://api.example.com/v1/chat/completions
api_model: gpt-4o-mini
api_key: sk-test
admins:
  - "@alice:example.org"
threshold: 7
uncensor_level: 60
moderate_files: true
enable_msgtype_filter: true
`

func TestLoadFile(t *testing.T) {
	t.Run("valid file", func(t *testing.T) {
		cfg, err := LoadFile(writeConfig(t, validConfig))
		if err != nil {
			t.Fatalf("LoadFile failed: %v", err)
		}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if cfg.Threshold != 7 {
			t.Errorf("unexpected threshold: %d", cfg.Threshold)
		}
		if cfg.UncensorLevel != 60 {
			t.Errorf("unexpected uncensor level: %d", cfg.UncensorLevel)
		}
		if !cfg.ModerateFiles {
			t.Error("moderate_files should be true")
		}
	})

	t.Run("defaults survive partial file", func(t *testing.T) {
		cfg, err := LoadFile(writeConfig(t, "homeserver_url: https://matrix.example.org\n"))
		if err != nil {
			t.Fatalf("LoadFile failed: %v", err)
		}
		if cfg.Threshold != 8 {
			t.Errorf("default threshold not applied: %d", cfg.Threshold)
		}
		if cfg.UncensorLevel != 50 {
			t.Errorf("default uncensor level not applied: %d", cfg.UncensorLevel)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Fatal("expected error for missing file")
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		if _, err := LoadFile(writeConfig(t, "threshold: [not an int\n")); err == nil {
			t.Fatal("expected error for malformed yaml")
		}
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := LoadFile(writeConfig(t, validConfig))
		if err != nil {
			t.Fatalf("LoadFile failed: %v", err)
		}
		return cfg
	}

	t.Run("threshold out of range", func(t *testing.T) {
		cfg := valid()
		cfg.Threshold = 11
		if err := cfg.Validate(); err == nil {
			t.Error("threshold 11 should be rejected")
		}
		cfg.Threshold = -1
		if err := cfg.Validate(); err == nil {
			t.Error("threshold -1 should be rejected")
		}
	})

	t.Run("missing endpoint", func(t *testing.T) {
		cfg := valid()
		cfg.APIEndpoint = ""
		err := cfg.Validate()
		if err == nil {
			t.Fatal("missing api_endpoint should be rejected")
		}
		if !strings.Contains(err.Error(), "api_endpoint") {
			t.Errorf("error should name api_endpoint: %v", err)
		}
	})

	t.Run("invalid admin entry", func(t *testing.T) {
		cfg := valid()
		cfg.Admins = append(cfg.Admins, "not-a-user-id")
		if err := cfg.Validate(); err == nil {
			t.Error("malformed admin entry should be rejected")
		}
	})
}

func TestIsAdmin(t *testing.T) {
	cfg := &Config{Admins: []string{"@alice:example.org"}}
	if !cfg.IsAdmin(ref.MustParseUserID("@alice:example.org")) {
		t.Error("listed admin should match")
	}
	if cfg.IsAdmin(ref.MustParseUserID("@bob:example.org")) {
		t.Error("unlisted user should not match")
	}
}

func TestAllowlistDefaults(t *testing.T) {
	cfg := &Config{}

	msgtypes := cfg.MsgtypeAllowlist()
	if len(msgtypes) != 2 || msgtypes[0] != "m.text" || msgtypes[1] != "m.image" {
		t.Errorf("unexpected default msgtypes: %v", msgtypes)
	}

	mimes := cfg.MimetypeAllowlist()
	if len(mimes) != 4 || mimes[0] != "image/jpeg" {
		t.Errorf("unexpected default mimetypes: %v", mimes)
	}

	cfg.AllowedMsgtypes = []string{"m.text"}
	if got := cfg.MsgtypeAllowlist(); len(got) != 1 || got[0] != "m.text" {
		t.Errorf("configured msgtypes should win: %v", got)
	}
}
