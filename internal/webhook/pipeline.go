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

package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/profwarlock/natalmail/internal/chart"
	"github.com/profwarlock/natalmail/internal/extract"
	"github.com/profwarlock/natalmail/internal/geocode"
	"github.com/profwarlock/natalmail/internal/models"
	"github.com/profwarlock/natalmail/internal/reply"
	"github.com/profwarlock/natalmail/internal/validate"
)

// State is a stage of one webhook invocation.
type State string

const (
	StateReceived     State = "received"
	StateParsed       State = "parsed"
	StateAcknowledged State = "acknowledged"
	StateRejected     State = "rejected"
	StateEnriched     State = "enriched"
	StateUnresolved   State = "unresolved"
	StateRendered     State = "rendered"
	StateRenderFailed State = "render_failed"
	StateReplied      State = "replied"
)

// PingToken is the body that triggers the health-check reply.
const PingToken = "ping"

// Geocoder resolves a place of birth.
type Geocoder interface {
	Geocode(ctx context.Context, place string) (models.Coordinates, error)
}

// Charter computes a natal chart.
type Charter interface {
	Compute(ctx context.Context, birth models.BirthData) (*chart.Chart, error)
}

// Renderer draws a chart poster.
type Renderer interface {
	Render(ctx context.Context, birth models.BirthData, c *chart.Chart) (models.ChartArtifact, error)
}

// Sender delivers a reply.
type Sender interface {
	Send(ctx context.Context, msg models.OutboundEmail) error
}

// PipelineConfig holds the collaborators of a Pipeline.
type PipelineConfig struct {
	Extractor extract.Extractor
	Geocoder  Geocoder
	Charter   Charter
	Renderer  Renderer
	Composer  *reply.Composer
	Sender    Sender
}

// Pipeline drives one inbound email through the state machine. It holds
// no per-request state and is safe for concurrent use.
type Pipeline struct {
	extractor extract.Extractor
	geocoder  Geocoder
	charter   Charter
	renderer  Renderer
	composer  *reply.Composer
	sender    Sender

	transitions map[State]func(context.Context, *run) State
}

// NewPipeline creates a pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	p := &Pipeline{
		extractor: cfg.Extractor,
		geocoder:  cfg.Geocoder,
		charter:   cfg.Charter,
		renderer:  cfg.Renderer,
		composer:  cfg.Composer,
		sender:    cfg.Sender,
	}
	if p.extractor == nil {
		p.extractor = extract.NewLineScanner()
	}
	p.transitions = map[State]func(context.Context, *run) State{
		StateReceived:     p.receive,
		StateParsed:       p.parse,
		StateEnriched:     p.enrich,
		StateAcknowledged: p.reply,
		StateRejected:     p.reply,
		StateUnresolved:   p.reply,
		StateRendered:     p.reply,
		StateRenderFailed: p.reply,
	}
	return p
}

// Outcome summarises a finished invocation.
type Outcome struct {
	// State is the branch taken before the reply was sent.
	State     State
	ReplySent bool
	Missing   []models.Field
	// Err is the failure that shaped the branch or stopped the reply.
	Err error
}

// run is the working state of one invocation.
type run struct {
	log      *slog.Logger
	email    models.InboundEmail
	fields   models.Fields
	missing  []models.Field
	birth    models.BirthData
	artifact models.ChartArtifact

	branch    State
	attempted bool
	replySent bool
	err       error
}

// Run processes email to completion. Every path ends in StateReplied with
// at most one outbound email sent.
func (p *Pipeline) Run(ctx context.Context, email models.InboundEmail, log *slog.Logger) (out Outcome) {
	if log == nil {
		log = slog.Default()
	}
	r := &run{log: log, email: email}

	defer func() {
		if rec := recover(); rec != nil {
			r.err = fmt.Errorf("pipeline panic: %v", rec)
			r.log.Error("pipeline panicked", "error", r.err, "state", r.branch)
			if !r.attempted {
				r.branch = StateRenderFailed
				p.reply(ctx, r)
			}
			out = r.outcome()
		}
	}()

	state := StateReceived
	for state != StateReplied {
		step, ok := p.transitions[state]
		if !ok {
			r.err = fmt.Errorf("no transition from state %q", state)
			r.log.Error("pipeline stuck", "error", r.err)
			break
		}
		next := step(ctx, r)
		r.log.Debug("state transition", "from", state, "to", next)
		if next != StateReplied {
			r.branch = next
		}
		state = next
	}

	return r.outcome()
}

func (r *run) outcome() Outcome {
	return Outcome{
		State:     r.branch,
		ReplySent: r.replySent,
		Missing:   r.missing,
		Err:       r.err,
	}
}

// IsPing reports whether the body is the bare ping token.
func IsPing(body string) bool {
	return strings.EqualFold(strings.TrimSpace(body), PingToken)
}

// receive: received -> acknowledged | parsed.
func (p *Pipeline) receive(ctx context.Context, r *run) State {
	if IsPing(r.email.TextBody) {
		r.log.Info("ping received")
		return StateAcknowledged
	}
	r.fields = p.extractor.Extract(ctx, r.email.Subject, extract.BodyText(r.email))
	return StateParsed
}

// parse: parsed -> rejected | enriched | unresolved.
func (p *Pipeline) parse(ctx context.Context, r *run) State {
	result := validate.Validate(r.fields)
	if !result.Valid {
		r.missing = result.Missing
		r.log.Info("request incomplete", "missing_fields", fieldNames(result.Missing))
		return StateRejected
	}
	r.birth = result.Birth

	coords, err := p.geocoder.Geocode(ctx, r.birth.Place)
	if err != nil {
		r.err = err
		if errors.Is(err, geocode.ErrNotFound) {
			r.log.Warn("place of birth not found", "error", err)
		} else {
			r.log.Warn("geocoding failed", "error", err)
		}
		return StateUnresolved
	}
	r.birth.Coordinates = &coords
	return StateEnriched
}

// enrich: enriched -> rendered | render_failed.
func (p *Pipeline) enrich(ctx context.Context, r *run) (next State) {
	defer func() {
		if rec := recover(); rec != nil {
			r.err = fmt.Errorf("chart generation panic: %v", rec)
			r.log.Error("chart generation failed", "error", r.err)
			next = StateRenderFailed
		}
	}()

	c, err := p.charter.Compute(ctx, r.birth)
	if err != nil {
		r.err = fmt.Errorf("compute chart: %w", err)
		r.log.Error("chart generation failed", "error", r.err)
		return StateRenderFailed
	}

	art, err := p.renderer.Render(ctx, r.birth, c)
	if err != nil {
		r.err = fmt.Errorf("render poster: %w", err)
		r.log.Error("chart generation failed", "error", r.err)
		return StateRenderFailed
	}

	r.artifact = art
	r.log.Info("chart rendered", "bytes", len(art.Content), "time_known", r.birth.TimeKnown)
	return StateRendered
}

// reply: any terminal branch -> replied. Exactly one email is composed and
// handed to the sender.
func (p *Pipeline) reply(ctx context.Context, r *run) State {
	if r.attempted {
		return StateReplied
	}

	var msg models.OutboundEmail
	switch r.branch {
	case StateAcknowledged:
		msg = p.composer.Pong(r.email)
	case StateRejected:
		msg = p.composer.MissingInfo(r.email, r.fields, r.missing)
	case StateUnresolved:
		msg = p.composer.LocationNotFound(r.email, r.birth.Place)
	case StateRendered:
		msg = p.composer.ChartReady(r.email, r.birth, r.artifact)
	default:
		msg = p.composer.ChartFailed(r.email)
	}

	r.attempted = true
	if err := p.sender.Send(ctx, msg); err != nil {
		r.err = fmt.Errorf("send reply: %w", err)
		r.log.Error("failed to send reply", "error", err, "branch", r.branch)
		return StateReplied
	}

	r.replySent = true
	r.log.Info("reply delivered", "branch", r.branch, "subject", msg.Subject)
	return StateReplied
}

func fieldNames(fields []models.Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return names
}
