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

// Package config loads configuration from config.yaml, an optional .env file
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Transport names accepted for email.transport.
const (
	TransportPostmark = "postmark"
	TransportSMTP     = "smtp"
)

// EmailConfig holds outbound mail settings.
type EmailConfig struct {
	Transport   string
	FromAddress string
	FromName    string

	PostmarkToken   string
	PostmarkBaseURL string
	PostmarkStream  string

	SMTPAddr     string
	SMTPUsername string
	SMTPPassword string
}

// GeocoderConfig holds the Nominatim-compatible geocoder settings.
type GeocoderConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// ChartConfig holds the chart computation service settings. When ClientID
// is set the client authenticates with OAuth2 client credentials.
type ChartConfig struct {
	BaseURL      string
	APIKey       string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
}

// AssistConfig enables the model-assisted field extraction.
type AssistConfig struct {
	Enabled bool
	APIKey  string
	Model   string
}

// PosterConfig controls the rendered poster.
type PosterConfig struct {
	Width   int
	Height  int
	Website string
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string
	Format string
}

// Config holds all configuration for the chart service.
type Config struct {
	Port         int
	WebhookToken string
	Signature    string

	Email    EmailConfig
	Geocoder GeocoderConfig
	Chart    ChartConfig
	Assist   AssistConfig
	Poster   PosterConfig
	Logging  LoggingConfig

	// Optional infrastructure; empty disables the feature.
	RedisURL    string
	DedupTTL    time.Duration
	DatabaseURL string
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Server struct {
		Port         int    `yaml:"port"`
		WebhookToken string `yaml:"webhook_token"`
		Signature    string `yaml:"signature"`
	} `yaml:"server"`
	Email struct {
		Transport   string `yaml:"transport"`
		FromAddress string `yaml:"from_address"`
		FromName    string `yaml:"from_name"`
		Postmark    struct {
			ServerToken string `yaml:"server_token"`
			BaseURL     string `yaml:"base_url"`
			Stream      string `yaml:"message_stream"`
		} `yaml:"postmark"`
		SMTP struct {
			Addr     string `yaml:"addr"`
			Username string `yaml:"username"`
			Password string `yaml:"password"`
		} `yaml:"smtp"`
	} `yaml:"email"`
	Geocoder struct {
		BaseURL   string `yaml:"base_url"`
		UserAgent string `yaml:"user_agent"`
		Timeout   string `yaml:"timeout"`
	} `yaml:"geocoder"`
	Chart struct {
		BaseURL      string   `yaml:"base_url"`
		APIKey       string   `yaml:"api_key"`
		TokenURL     string   `yaml:"token_url"`
		ClientID     string   `yaml:"client_id"`
		ClientSecret string   `yaml:"client_secret"`
		Scopes       []string `yaml:"scopes"`
		Timeout      string   `yaml:"timeout"`
	} `yaml:"chart"`
	Assist struct {
		Enabled bool   `yaml:"enabled"`
		APIKey  string `yaml:"api_key"`
		Model   string `yaml:"model"`
	} `yaml:"assist"`
	Poster struct {
		Width   int    `yaml:"width"`
		Height  int    `yaml:"height"`
		Website string `yaml:"website"`
	} `yaml:"poster"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	Redis struct {
		URL      string `yaml:"url"`
		DedupTTL string `yaml:"dedup_ttl"`
	} `yaml:"redis"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables, then validates it. A missing config file is not an
// error; every setting can also come from the environment.
func Load() (*Config, error) {
	cfg, err := Read()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read loads configuration like Load without validating it. Offline tools
// that never serve the webhook or send mail use it.
func Read() (*Config, error) {
	// .env is a development convenience; absence is fine.
	_ = godotenv.Load()

	configPath := envOrDefault("CONFIG_PATH", "config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	default:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	}

	return fromRaw(raw), nil
}

// fromRaw merges YAML values with environment fallbacks and defaults.
func fromRaw(raw rawConfig) *Config {
	cfg := &Config{
		Port:         firstPositive(raw.Server.Port, envOrDefaultInt("PORT", 8000)),
		WebhookToken: firstNonEmpty(raw.Server.WebhookToken, os.Getenv("WEBHOOK_SECRET_TOKEN")),
		Signature:    firstNonEmpty(raw.Server.Signature, envOrDefault("SIGNATURE", "Prof. Warlock")),
		Email: EmailConfig{
			Transport:       strings.ToLower(firstNonEmpty(raw.Email.Transport, envOrDefault("EMAIL_TRANSPORT", TransportPostmark))),
			FromAddress:     firstNonEmpty(raw.Email.FromAddress, os.Getenv("FROM_EMAIL")),
			FromName:        firstNonEmpty(raw.Email.FromName, envOrDefault("FROM_NAME", "Prof. Warlock")),
			PostmarkToken:   firstNonEmpty(raw.Email.Postmark.ServerToken, os.Getenv("POSTMARK_API_KEY")),
			PostmarkBaseURL: firstNonEmpty(raw.Email.Postmark.BaseURL, envOrDefault("POSTMARK_BASE_URL", "https://api.postmarkapp.com")),
			PostmarkStream:  firstNonEmpty(raw.Email.Postmark.Stream, envOrDefault("POSTMARK_MESSAGE_STREAM", "outbound")),
			SMTPAddr:        firstNonEmpty(raw.Email.SMTP.Addr, os.Getenv("SMTP_ADDR")),
			SMTPUsername:    firstNonEmpty(raw.Email.SMTP.Username, os.Getenv("SMTP_USERNAME")),
			SMTPPassword:    firstNonEmpty(raw.Email.SMTP.Password, os.Getenv("SMTP_PASSWORD")),
		},
		Geocoder: GeocoderConfig{
			BaseURL:   firstNonEmpty(raw.Geocoder.BaseURL, envOrDefault("GEOCODER_URL", "https://nominatim.openstreetmap.org")),
			UserAgent: firstNonEmpty(raw.Geocoder.UserAgent, envOrDefault("GEOCODER_USER_AGENT", "prof-warlock")),
			Timeout:   parseDurationOr(raw.Geocoder.Timeout, envOrDefaultDuration("GEOCODER_TIMEOUT", 10*time.Second)),
		},
		Chart: ChartConfig{
			BaseURL:      firstNonEmpty(raw.Chart.BaseURL, envOrDefault("CHART_URL", "http://localhost:8081")),
			APIKey:       firstNonEmpty(raw.Chart.APIKey, os.Getenv("CHART_API_KEY")),
			TokenURL:     firstNonEmpty(raw.Chart.TokenURL, os.Getenv("CHART_TOKEN_URL")),
			ClientID:     firstNonEmpty(raw.Chart.ClientID, os.Getenv("CHART_CLIENT_ID")),
			ClientSecret: firstNonEmpty(raw.Chart.ClientSecret, os.Getenv("CHART_CLIENT_SECRET")),
			Scopes:       raw.Chart.Scopes,
			Timeout:      parseDurationOr(raw.Chart.Timeout, envOrDefaultDuration("CHART_TIMEOUT", 30*time.Second)),
		},
		Assist: AssistConfig{
			Enabled: raw.Assist.Enabled || envBool("ASSIST_ENABLED"),
			APIKey:  firstNonEmpty(raw.Assist.APIKey, os.Getenv("GEMINI_API_KEY")),
			Model:   firstNonEmpty(raw.Assist.Model, envOrDefault("ASSIST_MODEL", "gemini-2.0-flash")),
		},
		Poster: PosterConfig{
			Width:   firstPositive(raw.Poster.Width, envOrDefaultInt("POSTER_WIDTH", 2480)),
			Height:  firstPositive(raw.Poster.Height, envOrDefaultInt("POSTER_HEIGHT", 3508)),
			Website: firstNonEmpty(raw.Poster.Website, os.Getenv("POSTER_WEBSITE")),
		},
		Logging: LoggingConfig{
			Level:  firstNonEmpty(raw.Logging.Level, envOrDefault("LOG_LEVEL", "info")),
			Format: firstNonEmpty(raw.Logging.Format, envOrDefault("LOG_FORMAT", "json")),
		},
		RedisURL:    firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		DedupTTL:    parseDurationOr(raw.Redis.DedupTTL, envOrDefaultDuration("DEDUP_TTL", 24*time.Hour)),
		DatabaseURL: firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
	}
	return cfg
}

// Validate checks the settings without which no request can be served.
func (c *Config) Validate() error {
	if c.WebhookToken == "" {
		return fmt.Errorf("webhook token is required (server.webhook_token or WEBHOOK_SECRET_TOKEN)")
	}
	if c.Email.FromAddress == "" {
		return fmt.Errorf("sender address is required (email.from_address or FROM_EMAIL)")
	}
	switch c.Email.Transport {
	case TransportPostmark:
		if c.Email.PostmarkToken == "" {
			return fmt.Errorf("postmark transport requires a server token (POSTMARK_API_KEY)")
		}
	case TransportSMTP:
		if c.Email.SMTPAddr == "" {
			return fmt.Errorf("smtp transport requires an address (SMTP_ADDR)")
		}
	default:
		return fmt.Errorf("unknown email transport %q", c.Email.Transport)
	}
	if c.Assist.Enabled && c.Assist.APIKey == "" {
		return fmt.Errorf("assisted extraction is enabled but GEMINI_API_KEY is empty")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(raw)); err == nil {
		return d
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
