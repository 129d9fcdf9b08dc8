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
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/profwarlock/natalmail/internal/chart"
	"github.com/profwarlock/natalmail/internal/config"
	"github.com/profwarlock/natalmail/internal/delivery"
	"github.com/profwarlock/natalmail/internal/geocode"
	"github.com/profwarlock/natalmail/internal/models"
	"github.com/profwarlock/natalmail/internal/reply"
)

const testToken = "s3cret"

type fakeGeocoder struct {
	calls  int
	coords models.Coordinates
	err    error
}

func (f *fakeGeocoder) Geocode(ctx context.Context, _ string) (models.Coordinates, error) {
	f.calls++
	if err := ctx.Err(); err != nil {
		return models.Coordinates{}, err
	}
	return f.coords, f.err
}

type fakeCharter struct {
	calls int
	err   error
	panic bool
}

func (f *fakeCharter) Compute(_ context.Context, _ models.BirthData) (*chart.Chart, error) {
	f.calls++
	if f.panic {
		panic("ephemeris exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	return &chart.Chart{Bodies: []chart.Body{{Name: "sun", Longitude: 280}}}, nil
}

type fakeRenderer struct {
	calls int
	err   error
}

func (f *fakeRenderer) Render(_ context.Context, _ models.BirthData, _ *chart.Chart) (models.ChartArtifact, error) {
	f.calls++
	if f.err != nil {
		return models.ChartArtifact{}, f.err
	}
	return models.ChartArtifact{Content: []byte("png"), ContentType: "image/png", Filename: "natal_chart.png"}, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []models.OutboundEmail
	err  error
}

func (f *fakeSender) Send(ctx context.Context, msg models.OutboundEmail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

type fakeDedup struct {
	seen     map[string]bool
	released []string
	err      error
}

func (f *fakeDedup) IsNew(_ context.Context, id string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen[id] {
		return false, nil
	}
	f.seen[id] = true
	return true, nil
}

func (f *fakeDedup) Release(_ context.Context, id string) error {
	delete(f.seen, id)
	f.released = append(f.released, id)
	return nil
}

type fakeLedger struct {
	records []delivery.Record
}

func (f *fakeLedger) Record(_ context.Context, r delivery.Record) error {
	f.records = append(f.records, r)
	return nil
}

type fixture struct {
	geo      *fakeGeocoder
	charter  *fakeCharter
	renderer *fakeRenderer
	sender   *fakeSender
	dedup    *fakeDedup
	ledger   *fakeLedger
	handler  http.Handler
}

func newFixture() *fixture {
	f := &fixture{
		geo:      &fakeGeocoder{coords: models.Coordinates{Lat: 48.8566, Lon: 2.3522}},
		charter:  &fakeCharter{},
		renderer: &fakeRenderer{},
		sender:   &fakeSender{},
		dedup:    &fakeDedup{seen: map[string]bool{}},
		ledger:   &fakeLedger{},
	}
	f.build()
	return f
}

func (f *fixture) build() {
	pipeline := NewPipeline(PipelineConfig{
		Geocoder: f.geo,
		Charter:  f.charter,
		Renderer: f.renderer,
		Composer: reply.NewComposer(&config.Config{Signature: "Prof. Warlock"}),
		Sender:   f.sender,
	})
	f.handler = NewHandler(HandlerConfig{
		Token:    testToken,
		Pipeline: pipeline,
		Dedup:    f.dedup,
		Ledger:   f.ledger,
	}).Routes()
}

func payload(messageID, body string) string {
	p := map[string]any{
		"From":      "ann@example.com",
		"FromName":  "Ann Lee",
		"Subject":   "Chart request",
		"TextBody":  body,
		"MessageID": messageID,
		"Headers":   []map[string]string{{"Name": "Message-ID", "Value": "<" + messageID + "@mail.example.com>"}},
	}
	b, _ := json.Marshal(p)
	return string(b)
}

func (f *fixture) post(t *testing.T, token, body string) (int, Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook?token="+token, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var resp Response
	if rec.Code != http.StatusUnauthorized {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec.Code, resp
}

const validBody = "First Name: Ann\nLast Name: Lee\nDate of Birth: 01-01-2000\nPlace of Birth: Paris, France"

func TestScenarioA_ValidRequest(t *testing.T) {
	f := newFixture()
	code, resp := f.post(t, testToken, payload("m-a", validBody))

	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	want := Response{Status: StatusOK, Outcome: string(StateRendered), ReplySent: true}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("response (-want +got):\n%s", diff)
	}
	if len(f.sender.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(f.sender.sent))
	}
	msg := f.sender.sent[0]
	if msg.Subject != reply.SubjectChartReady || len(msg.Attachments) != 1 {
		t.Errorf("reply = %q with %d attachments", msg.Subject, len(msg.Attachments))
	}
	if msg.To != "ann@example.com" || msg.InReplyTo != "<m-a@mail.example.com>" {
		t.Errorf("addressing = %q / %q", msg.To, msg.InReplyTo)
	}
	if f.geo.calls != 1 || f.charter.calls != 1 || f.renderer.calls != 1 {
		t.Errorf("calls geo=%d chart=%d render=%d", f.geo.calls, f.charter.calls, f.renderer.calls)
	}
}

func TestScenarioB_MissingFields(t *testing.T) {
	f := newFixture()
	body := "First Name: Ann\nDate of Birth: 01-01-2000"
	_, resp := f.post(t, testToken, payload("m-b", body))

	if resp.Outcome != string(StateRejected) || !resp.ReplySent {
		t.Errorf("response = %+v", resp)
	}
	if diff := cmp.Diff([]string{"last_name", "place_of_birth"}, resp.MissingFields); diff != "" {
		t.Errorf("missing (-want +got):\n%s", diff)
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0].Subject != reply.SubjectMissingInfo {
		t.Fatalf("sent = %+v", f.sender.sent)
	}
	text := f.sender.sent[0].TextBody
	for _, line := range []string{"First Name: Ann\n", "Date of Birth: 01-01-2000\n", "Last Name:\n", "Place of Birth:\n"} {
		if !strings.Contains(text, line) {
			t.Errorf("reply lacks %q:\n%s", line, text)
		}
	}
	if f.geo.calls != 0 {
		t.Errorf("geocoder called %d times for a rejected request", f.geo.calls)
	}
}

func TestMissingDateOnly(t *testing.T) {
	f := newFixture()
	body := "First Name: Ann\nLast Name: Lee\nPlace of Birth: Paris, France"
	_, resp := f.post(t, testToken, payload("m-b", body))

	if resp.Outcome != string(StateRejected) || !resp.ReplySent {
		t.Errorf("response = %+v", resp)
	}
	if diff := cmp.Diff([]string{"date_of_birth"}, resp.MissingFields); diff != "" {
		t.Errorf("missing (-want +got):\n%s", diff)
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0].Subject != reply.SubjectMissingInfo {
		t.Fatalf("sent = %+v", f.sender.sent)
	}
	if !strings.Contains(f.sender.sent[0].TextBody, "Date of Birth:\n") {
		t.Errorf("reply does not ask for date of birth:\n%s", f.sender.sent[0].TextBody)
	}
	if f.geo.calls != 0 || f.charter.calls != 0 {
		t.Error("rejected request reached geocoding or charting")
	}
}

func TestScenarioC_Ping(t *testing.T) {
	for _, body := range []string{"ping", "  PING \n", "Ping"} {
		f := newFixture()
		_, resp := f.post(t, testToken, payload("m-c", body))

		if resp.Outcome != string(StateAcknowledged) || !resp.ReplySent {
			t.Errorf("body %q: response = %+v", body, resp)
		}
		if len(f.sender.sent) != 1 || f.sender.sent[0].TextBody != reply.PongBody {
			t.Errorf("body %q: sent = %+v", body, f.sender.sent)
		}
		if f.geo.calls+f.charter.calls+f.renderer.calls != 0 {
			t.Errorf("body %q: ping invoked the pipeline", body)
		}
	}
}

func TestScenarioD_PlaceNotFound(t *testing.T) {
	for _, geoErr := range []error{geocode.ErrNotFound, errors.New("connection refused")} {
		f := newFixture()
		f.geo.err = geoErr
		_, resp := f.post(t, testToken, payload("m-d", validBody))

		if resp.Outcome != string(StateUnresolved) || !resp.ReplySent {
			t.Errorf("%v: response = %+v", geoErr, resp)
		}
		if len(f.sender.sent) != 1 || f.sender.sent[0].Subject != reply.SubjectLocationNotFound {
			t.Errorf("%v: sent = %+v", geoErr, f.sender.sent)
		}
		if f.charter.calls != 0 || f.renderer.calls != 0 {
			t.Errorf("%v: rendering attempted", geoErr)
		}
	}
}

func TestRenderFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fixture)
	}{
		{"chart error", func(f *fixture) { f.charter.err = errors.New("upstream 500") }},
		{"chart panic", func(f *fixture) { f.charter.panic = true }},
		{"render error", func(f *fixture) { f.renderer.err = errors.New("font missing") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.setup(f)
			code, resp := f.post(t, testToken, payload("m-f", validBody))

			if code != http.StatusOK {
				t.Errorf("status = %d", code)
			}
			if resp.Outcome != string(StateRenderFailed) || !resp.ReplySent {
				t.Errorf("response = %+v", resp)
			}
			if len(f.sender.sent) != 1 || f.sender.sent[0].Subject != reply.SubjectChartFailed {
				t.Errorf("sent = %+v", f.sender.sent)
			}
			if len(f.sender.sent[0].Attachments) != 0 {
				t.Error("failure reply carries an attachment")
			}
		})
	}
}

func TestClientDisconnectStillReplies(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodPost, "/webhook?token="+testToken,
		strings.NewReader(payload("m-gone", validBody))).WithContext(ctx)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	want := Response{Status: StatusOK, Outcome: string(StateRendered), ReplySent: true}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("response (-want +got):\n%s", diff)
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0].Subject != reply.SubjectChartReady {
		t.Errorf("sent = %+v, want one chart reply", f.sender.sent)
	}
}

func TestFailedReplyReleasesDedupKey(t *testing.T) {
	f := newFixture()
	f.sender.err = errors.New("postmark down")
	f.post(t, testToken, payload("m-retry", validBody))

	if diff := cmp.Diff([]string{"m-retry"}, f.dedup.released); diff != "" {
		t.Errorf("released (-want +got):\n%s", diff)
	}

	f.sender.err = nil
	_, resp := f.post(t, testToken, payload("m-retry", validBody))
	if resp.Status != StatusOK || !resp.ReplySent {
		t.Errorf("redelivery response = %+v", resp)
	}
	if len(f.sender.sent) != 2 {
		t.Errorf("send attempts = %d, want 2", len(f.sender.sent))
	}
}

func TestSendFailureStillAnswers200(t *testing.T) {
	f := newFixture()
	f.sender.err = errors.New("postmark down")
	code, resp := f.post(t, testToken, payload("m-s", validBody))

	if code != http.StatusOK {
		t.Errorf("status = %d", code)
	}
	if resp.ReplySent || resp.Outcome != string(StateRendered) {
		t.Errorf("response = %+v", resp)
	}
	if len(f.sender.sent) != 1 {
		t.Errorf("send attempted %d times, want 1", len(f.sender.sent))
	}
	if len(f.ledger.records) != 1 || f.ledger.records[0].Error == "" {
		t.Errorf("ledger = %+v", f.ledger.records)
	}
}

func TestUnauthorized(t *testing.T) {
	for _, token := range []string{"", "wrong", testToken + "x"} {
		f := newFixture()
		code, _ := f.post(t, token, payload("m-u", validBody))
		if code != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", token, code)
		}
		if len(f.sender.sent) != 0 || len(f.ledger.records) != 0 {
			t.Errorf("token %q: pipeline ran", token)
		}
	}
}

func TestIgnoredPayloads(t *testing.T) {
	for name, body := range map[string]string{
		"not json":  "{not json",
		"no sender": `{"Subject":"hi","TextBody":"ping"}`,
	} {
		f := newFixture()
		code, resp := f.post(t, testToken, body)
		if code != http.StatusAccepted || resp.Status != StatusIgnored {
			t.Errorf("%s: %d %+v", name, code, resp)
		}
		if len(f.sender.sent) != 0 {
			t.Errorf("%s: reply sent", name)
		}
	}
}

func TestDuplicateDelivery(t *testing.T) {
	f := newFixture()
	f.post(t, testToken, payload("m-dup", validBody))
	code, resp := f.post(t, testToken, payload("m-dup", validBody))

	if code != http.StatusOK || resp.Status != StatusDuplicate {
		t.Errorf("second delivery: %d %+v", code, resp)
	}
	if len(f.sender.sent) != 1 {
		t.Errorf("sent %d emails, want 1", len(f.sender.sent))
	}

	outcomes := make([]string, len(f.ledger.records))
	for i, r := range f.ledger.records {
		outcomes[i] = r.Outcome
	}
	if diff := cmp.Diff([]string{"rendered", "duplicate"}, outcomes); diff != "" {
		t.Errorf("ledger outcomes (-want +got):\n%s", diff)
	}
}

func TestDedupFailureFailsOpen(t *testing.T) {
	f := newFixture()
	f.dedup.err = errors.New("redis down")
	_, resp := f.post(t, testToken, payload("m-r", validBody))
	if resp.Status != StatusOK || !resp.ReplySent {
		t.Errorf("response = %+v", resp)
	}
}

func TestLedgerHoldsNoPersonalData(t *testing.T) {
	f := newFixture()
	f.post(t, testToken, payload("m-p", validBody))
	if len(f.ledger.records) != 1 {
		t.Fatalf("ledger = %+v", f.ledger.records)
	}
	b, _ := json.Marshal(f.ledger.records[0])
	for _, secret := range []string{"ann@example.com", "Ann", "Paris", "01-01-2000"} {
		if strings.Contains(string(b), secret) {
			t.Errorf("ledger record contains %q: %s", secret, b)
		}
	}
}

func TestRootAndHealth(t *testing.T) {
	pipeline := NewPipeline(PipelineConfig{Sender: &fakeSender{}})
	h := NewHandler(HandlerConfig{
		Token:    testToken,
		Version:  "1.2.3",
		Pipeline: pipeline,
		Checks: []Check{
			{Name: "email", Probe: func(context.Context) error { return nil }},
			{Name: "geocoder", Probe: func(context.Context) error { return errors.New("timeout") }},
		},
	}).Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	var root map[string]string
	json.Unmarshal(rec.Body.Bytes(), &root)
	if rec.Code != http.StatusOK || root["status"] != "alive" || root["version"] != "1.2.3" {
		t.Errorf("root = %d %v", rec.Code, root)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var health struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	json.Unmarshal(rec.Body.Bytes(), &health)
	if rec.Code != http.StatusServiceUnavailable || health.Status != "degraded" {
		t.Errorf("health = %d %+v", rec.Code, health)
	}
	want := map[string]string{"email": "ok", "geocoder": "timeout"}
	if diff := cmp.Diff(want, health.Checks); diff != "" {
		t.Errorf("checks (-want +got):\n%s", diff)
	}
}

func TestParseInbound(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantFrom string
		wantName string
		wantErr  bool
	}{
		{"from full", `{"FromFull":{"Email":"a@x.com","Name":"Ann"},"From":"ignored@x.com"}`, "a@x.com", "Ann", false},
		{"display name in from", `{"From":"\"Bo Diddley\" <bo@x.com>"}`, "bo@x.com", "Bo Diddley", false},
		{"from name wins", `{"From":"c@x.com","FromName":"Cy"}`, "c@x.com", "Cy", false},
		{"no sender", `{"Subject":"x"}`, "", "", true},
		{"bad json", `[`, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email, err := ParseInbound([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if email.From != tt.wantFrom || email.FromName != tt.wantName {
				t.Errorf("got %q %q, want %q %q", email.From, email.FromName, tt.wantFrom, tt.wantName)
			}
		})
	}
}
