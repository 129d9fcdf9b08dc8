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

// Package webhook serves the inbound-email webhook and drives each request
// through the chart pipeline.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/profwarlock/natalmail/internal/dedup"
	"github.com/profwarlock/natalmail/internal/delivery"
)

// maxBodyBytes bounds an inbound payload. Postmark caps inbound messages
// at 35MB including attachments.
const maxBodyBytes = 40 << 20

// pipelineTimeout bounds one pipeline run. It stays under the server's
// WriteTimeout so the response can still be written.
const pipelineTimeout = 100 * time.Second

// Response statuses.
const (
	StatusOK        = "ok"
	StatusIgnored   = "ignored"
	StatusDuplicate = "duplicate"
)

// Response is the JSON body returned to the inbound provider.
type Response struct {
	Status        string   `json:"status"`
	Outcome       string   `json:"outcome,omitempty"`
	ReplySent     bool     `json:"reply_sent"`
	MissingFields []string `json:"missing_fields,omitempty"`
}

// Check is a named health probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// HandlerConfig holds the dependencies of a Handler.
type HandlerConfig struct {
	Token    string
	Version  string
	Pipeline *Pipeline
	// Dedup and Ledger are optional.
	Dedup  dedup.Checker
	Ledger delivery.Recorder
	Checks []Check
}

// Handler serves the HTTP surface.
type Handler struct {
	token    string
	version  string
	pipeline *Pipeline
	dedup    dedup.Checker
	ledger   delivery.Recorder
	checks   []Check
}

// NewHandler creates a webhook handler.
func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		token:    cfg.Token,
		version:  cfg.Version,
		pipeline: cfg.Pipeline,
		dedup:    cfg.Dedup,
		ledger:   cfg.Ledger,
		checks:   cfg.Checks,
	}
	if h.dedup == nil {
		h.dedup = dedup.Nop{}
	}
	if h.ledger == nil {
		h.ledger = delivery.Nop{}
	}
	if h.version == "" {
		h.version = "dev"
	}
	return h
}

// Routes returns the router for all endpoints.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", h.ServeRoot)
	r.Get("/health", h.ServeHealth)
	r.Post("/webhook", h.ServeWebhook)
	return r
}

// requestID assigns a UUID request id when the caller did not send one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(middleware.RequestIDHeader) == "" {
			r.Header.Set(middleware.RequestIDHeader, uuid.NewString())
		}
		next.ServeHTTP(w, r)
	})
}

// ServeWebhook handles an inbound email.
//
// Only a bad token gets an error status. Every other request is answered
// 2xx so the provider does not retry and trigger a second reply.
func (h *Handler) ServeWebhook(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r.URL.Query().Get("token")) {
		slog.Warn("webhook token mismatch", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	reqID := middleware.GetReqID(r.Context())
	log := slog.With("request_id", reqID)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Warn("failed to read webhook body", "error", err)
		h.record(r.Context(), delivery.Record{RequestID: reqID, Outcome: StatusIgnored, Error: err.Error()})
		writeJSON(w, http.StatusAccepted, Response{Status: StatusIgnored})
		return
	}

	email, err := ParseInbound(body)
	if err != nil {
		log.Info("ignoring undeliverable webhook payload", "error", err, "body_len", len(body))
		h.record(r.Context(), delivery.Record{RequestID: reqID, Outcome: StatusIgnored, Error: err.Error()})
		writeJSON(w, http.StatusAccepted, Response{Status: StatusIgnored})
		return
	}
	log = log.With("message_id", email.MessageID)

	if email.MessageID != "" {
		isNew, err := h.dedup.IsNew(r.Context(), email.MessageID)
		if err != nil {
			log.Warn("dedup check failed, proceeding", "error", err)
		} else if !isNew {
			log.Info("skipping duplicate delivery")
			h.record(r.Context(), delivery.Record{RequestID: reqID, MessageID: email.MessageID, Outcome: StatusDuplicate})
			writeJSON(w, http.StatusOK, Response{Status: StatusDuplicate})
			return
		}
	}

	// The run is not tied to the client connection: once a delivery is
	// accepted it runs to completion and sends its one reply.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), pipelineTimeout)
	defer cancel()
	out := h.pipeline.Run(ctx, email, log)

	if !out.ReplySent && email.MessageID != "" {
		// Nothing reached the sender, so a redelivery may try again.
		if err := h.dedup.Release(ctx, email.MessageID); err != nil {
			log.Warn("failed to release dedup key", "error", err)
		}
	}

	rec := delivery.Record{
		RequestID: reqID,
		MessageID: email.MessageID,
		Outcome:   string(out.State),
		ReplySent: out.ReplySent,
	}
	if out.Err != nil {
		rec.Error = out.Err.Error()
	}
	h.record(r.Context(), rec)

	writeJSON(w, http.StatusOK, Response{
		Status:        StatusOK,
		Outcome:       string(out.State),
		ReplySent:     out.ReplySent,
		MissingFields: fieldNames(out.Missing),
	})
}

func (h *Handler) authorized(token string) bool {
	if h.token == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) == 1
}

func (h *Handler) record(ctx context.Context, rec delivery.Record) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := h.ledger.Record(ctx, rec); err != nil {
		slog.Warn("failed to record delivery", "error", err, "request_id", rec.RequestID)
	}
}

// ServeRoot is the liveness endpoint.
func (h *Handler) ServeRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Prof. Warlock natal chart service",
		"status":  "alive",
		"version": h.version,
	})
}

// ServeHealth runs every check concurrently and reports each result.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	results := make([]string, len(h.checks))
	var g errgroup.Group
	for i, c := range h.checks {
		g.Go(func() error {
			if err := c.Probe(ctx); err != nil {
				results[i] = err.Error()
				return err
			}
			results[i] = "ok"
			return nil
		})
	}
	err := g.Wait()

	checks := make(map[string]string, len(h.checks))
	for i, c := range h.checks {
		checks[c.Name] = results[i]
	}

	status, code := "healthy", http.StatusOK
	if err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": h.version,
		"checks":  checks,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

// Serve starts the HTTP server on the given port.
// It binds the port immediately and signals readiness via the first returned
// channel before starting to accept connections. Cancelling ctx shuts the
// server down; the second channel is closed once shutdown completes.
func Serve(ctx context.Context, port int, handler http.Handler) (<-chan struct{}, <-chan struct{}, error) {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Chart rendering and outbound mail run inside the request.
		WriteTimeout: 2 * time.Minute,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, nil, fmt.Errorf("bind port %d: %w", port, err)
	}

	ready := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		<-ctx.Done()
		slog.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	go func() {
		slog.Info("http server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	return ready, done, nil
}
