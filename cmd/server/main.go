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

// Prof. Warlock natal chart service
//
// Entry point for the webhook service. It:
//  1. Loads configuration from config.yaml, .env and the environment
//  2. Builds the geocoder, chart, poster and mail clients
//  3. Connects to Redis and PostgreSQL when configured
//  4. Serves the inbound webhook and health endpoints
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/profwarlock/natalmail/internal/chart"
	"github.com/profwarlock/natalmail/internal/config"
	"github.com/profwarlock/natalmail/internal/dedup"
	"github.com/profwarlock/natalmail/internal/delivery"
	"github.com/profwarlock/natalmail/internal/extract"
	"github.com/profwarlock/natalmail/internal/geocode"
	"github.com/profwarlock/natalmail/internal/logging"
	"github.com/profwarlock/natalmail/internal/mailer"
	"github.com/profwarlock/natalmail/internal/poster"
	"github.com/profwarlock/natalmail/internal/reply"
	"github.com/profwarlock/natalmail/internal/webhook"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(logging.New(os.Stdout, cfg.Logging))
	slog.Info("starting natal chart service",
		"version", version,
		"transport", cfg.Email.Transport,
		"assisted_extraction", cfg.Assist.Enabled,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// --- External clients ---
	geocoder := geocode.NewClient(&http.Client{Timeout: cfg.Geocoder.Timeout}, cfg.Geocoder.BaseURL, cfg.Geocoder.UserAgent)
	charts := chart.NewClient(chart.NewHTTPClient(ctx, cfg.Chart), cfg.Chart.BaseURL, cfg.Chart.APIKey)

	renderer, err := poster.NewRenderer(cfg.Poster)
	if err != nil {
		slog.Error("failed to initialise poster renderer", "error", err)
		os.Exit(1)
	}

	sender, err := mailer.New(cfg.Email)
	if err != nil {
		slog.Error("failed to initialise mail transport", "error", err)
		os.Exit(1)
	}

	var extractor extract.Extractor = extract.NewLineScanner()
	if cfg.Assist.Enabled {
		assistant, err := extract.NewGenAIAssistant(ctx, cfg.Assist.APIKey, cfg.Assist.Model)
		if err != nil {
			slog.Warn("assisted extraction disabled", "error", err)
		} else {
			extractor = extract.NewAssisted(extractor, assistant)
		}
	}

	checks := []webhook.Check{
		{Name: "email", Probe: func(context.Context) error {
			if !sender.Configured() {
				return errors.New("transport not configured")
			}
			return nil
		}},
		{Name: "geocoder", Probe: geocoder.Ping},
		{Name: "chart", Probe: charts.Ping},
	}

	// --- Optional Redis dedup ---
	var checker dedup.Checker = dedup.Nop{}
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()

		filter := dedup.NewFilter(rdb, cfg.DedupTTL)
		if err := filter.Ping(ctx); err != nil {
			slog.Warn("redis unreachable, duplicate suppression degraded", "error", err)
		} else {
			slog.Info("connected to Redis")
		}
		checker = filter
		checks = append(checks, webhook.Check{Name: "redis", Probe: filter.Ping})
	}

	// --- Optional Postgres ledger ---
	var ledger delivery.Recorder = delivery.Nop{}
	if cfg.DatabaseURL != "" {
		pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to create Postgres pool", "error", err)
			os.Exit(1)
		}
		defer pgPool.Close()

		store, err := delivery.NewStore(ctx, pgPool)
		if err != nil {
			slog.Error("failed to initialise delivery ledger", "error", err)
			os.Exit(1)
		}
		ledger = store
		checks = append(checks, webhook.Check{Name: "postgres", Probe: store.Ping})
	}

	// --- Webhook ---
	pipeline := webhook.NewPipeline(webhook.PipelineConfig{
		Extractor: extractor,
		Geocoder:  geocoder,
		Charter:   charts,
		Renderer:  renderer,
		Composer:  reply.NewComposer(cfg),
		Sender:    sender,
	})
	handler := webhook.NewHandler(webhook.HandlerConfig{
		Token:    cfg.WebhookToken,
		Version:  version,
		Pipeline: pipeline,
		Dedup:    checker,
		Ledger:   ledger,
		Checks:   checks,
	})

	ready, done, err := webhook.Serve(ctx, cfg.Port, handler.Routes())
	if err != nil {
		slog.Error("failed to start http server", "error", err)
		os.Exit(1)
	}
	<-ready
	slog.Info("natal chart service ready", "port", cfg.Port)

	<-ctx.Done()
	slog.Info("received shutdown signal")
	<-done
	slog.Info("natal chart service stopped")
}
