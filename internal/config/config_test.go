// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// TestLoad_YAMLWithEnvExpansion verifies ${VAR} references are expanded.
func TestLoad_YAMLWithEnvExpansion(t *testing.T) {
	t.Setenv("TEST_POSTMARK_TOKEN", "pm-token")
	t.Setenv("CONFIG_PATH", writeConfig(t, `
server:
  port: 9000
  webhook_token: secret
email:
  transport: postmark
  from_address: prof@example.com
  postmark:
    server_token: ${TEST_POSTMARK_TOKEN}
redis:
  url: redis://localhost:6379/1
  dedup_ttl: 2h
poster:
  width: 1240
`))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.Email.PostmarkToken != "pm-token" {
		t.Errorf("PostmarkToken = %q, want pm-token", cfg.Email.PostmarkToken)
	}
	if cfg.DedupTTL != 2*time.Hour {
		t.Errorf("DedupTTL = %v, want 2h", cfg.DedupTTL)
	}
	if cfg.Poster.Width != 1240 || cfg.Poster.Height != 3508 {
		t.Errorf("poster = %dx%d, want 1240x3508", cfg.Poster.Width, cfg.Poster.Height)
	}
	if cfg.Geocoder.BaseURL != "https://nominatim.openstreetmap.org" {
		t.Errorf("Geocoder.BaseURL = %q", cfg.Geocoder.BaseURL)
	}
}

// TestLoad_EnvOnly verifies a missing config file falls back to the environment.
func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("WEBHOOK_SECRET_TOKEN", "env-secret")
	t.Setenv("FROM_EMAIL", "prof@example.com")
	t.Setenv("EMAIL_TRANSPORT", "SMTP")
	t.Setenv("SMTP_ADDR", "mail.example.com:587")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.WebhookToken != "env-secret" {
		t.Errorf("WebhookToken = %q", cfg.WebhookToken)
	}
	if cfg.Email.Transport != TransportSMTP {
		t.Errorf("Transport = %q, want smtp", cfg.Email.Transport)
	}
	if cfg.Port != 8000 {
		t.Errorf("Port = %d, want 8000", cfg.Port)
	}
}

// TestValidate covers the required settings.
func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			WebhookToken: "secret",
			Email: EmailConfig{
				Transport:     TransportPostmark,
				FromAddress:   "prof@example.com",
				PostmarkToken: "token",
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "no webhook token", mutate: func(c *Config) { c.WebhookToken = "" }, wantErr: true},
		{name: "no sender", mutate: func(c *Config) { c.Email.FromAddress = "" }, wantErr: true},
		{name: "postmark without token", mutate: func(c *Config) { c.Email.PostmarkToken = "" }, wantErr: true},
		{name: "smtp without addr", mutate: func(c *Config) { c.Email.Transport = TransportSMTP }, wantErr: true},
		{name: "unknown transport", mutate: func(c *Config) { c.Email.Transport = "carrier-pigeon" }, wantErr: true},
		{name: "assist without key", mutate: func(c *Config) { c.Assist.Enabled = true }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error, got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// TestRead_SkipsValidation verifies offline tools can load an incomplete config.
func TestRead_SkipsValidation(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("WEBHOOK_SECRET_TOKEN", "")
	t.Setenv("FROM_EMAIL", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load: expected validation error")
	}
	cfg, err := Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if cfg.Signature != "Prof. Warlock" {
		t.Errorf("Signature = %q", cfg.Signature)
	}
}
