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

package chart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/profwarlock/natalmail/internal/config"
	"github.com/profwarlock/natalmail/internal/models"
)

func TestSignOf(t *testing.T) {
	tests := []struct {
		lon  float64
		want string
	}{
		{0, "aries"},
		{29.999, "aries"},
		{30, "taurus"},
		{145.5, "leo"},
		{359.9, "pisces"},
		{360, "aries"},
		{-10, "pisces"},
		{725, "aries"},
	}
	for _, tt := range tests {
		if got := SignOf(tt.lon); got != tt.want {
			t.Errorf("SignOf(%v) = %q, want %q", tt.lon, got, tt.want)
		}
	}
	if got := DegreeInSign(145.5); got != 25.5 {
		t.Errorf("DegreeInSign(145.5) = %v, want 25.5", got)
	}
}

func TestSignQualities(t *testing.T) {
	tests := []struct {
		sign, element, modality, polarity string
	}{
		{"aries", "fire", "cardinal", "positive"},
		{"taurus", "earth", "fixed", "negative"},
		{"gemini", "air", "mutable", "positive"},
		{"cancer", "water", "cardinal", "negative"},
		{"scorpio", "water", "fixed", "negative"},
		{"pisces", "water", "mutable", "negative"},
	}
	for _, tt := range tests {
		if got := ElementOf(tt.sign); got != tt.element {
			t.Errorf("ElementOf(%s) = %s, want %s", tt.sign, got, tt.element)
		}
		if got := ModalityOf(tt.sign); got != tt.modality {
			t.Errorf("ModalityOf(%s) = %s, want %s", tt.sign, got, tt.modality)
		}
		if got := PolarityOf(tt.sign); got != tt.polarity {
			t.Errorf("PolarityOf(%s) = %s, want %s", tt.sign, got, tt.polarity)
		}
	}
}

func TestDistribute(t *testing.T) {
	c := &Chart{
		Ascendant: 0,   // horizon along 0°-180°
		Midheaven: 270, // meridian along 270°-90°
		Bodies: []Body{
			{Name: "sun", Longitude: 10},    // aries: below horizon, east of meridian
			{Name: "moon", Longitude: 200},  // libra: above, west
			{Name: "venus", Longitude: 100}, // cancer: below, west
		},
	}

	got := Distribute(c)
	want := Distribution{
		Element: []Group{
			{Name: "fire", Bodies: []string{"sun"}},
			{Name: "earth"},
			{Name: "air", Bodies: []string{"moon"}},
			{Name: "water", Bodies: []string{"venus"}},
		},
		Modality: []Group{
			{Name: "cardinal", Bodies: []string{"sun", "moon", "venus"}},
			{Name: "fixed"},
			{Name: "mutable"},
		},
		Polarity: []Group{
			{Name: "positive", Bodies: []string{"sun", "moon"}},
			{Name: "negative", Bodies: []string{"venus"}},
		},
		Hemisphere: []Group{
			{Name: "left", Bodies: []string{"sun"}},
			{Name: "right", Bodies: []string{"moon", "venus"}},
			{Name: "above", Bodies: []string{"moon"}},
			{Name: "below", Bodies: []string{"sun", "venus"}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestBigThree(t *testing.T) {
	c := &Chart{
		Ascendant: 95,
		Bodies:    []Body{{Name: "Sun", Longitude: 280}, {Name: "moon", Longitude: 45}},
	}
	want := BigThree{Sun: "capricorn", Moon: "taurus", Ascendant: "cancer"}
	if got := c.BigThree(); got != want {
		t.Errorf("BigThree() = %+v, want %+v", got, want)
	}
}

func geocodedBirth() models.BirthData {
	return models.BirthData{
		FirstName:   "Ann",
		LastName:    "Lee",
		Date:        time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC),
		Place:       "Paris, France",
		Coordinates: &models.Coordinates{Lat: 48.85, Lon: 2.35},
	}
}

func TestCompute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/natal" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if key := r.Header.Get("X-API-Key"); key != "k" {
			t.Errorf("X-API-Key = %q, want k", key)
		}
		var req natalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		want := natalRequest{Name: "Ann Lee", Date: "2000-01-01", Time: "12:00", Lat: 48.85, Lon: 2.35}
		if diff := cmp.Diff(want, req); diff != "" {
			t.Errorf("request mismatch (-want +got):\n%s", diff)
		}
		w.Write([]byte(`{"bodies":[{"name":"sun","longitude":280.4}],"ascendant":12.5,"midheaven":280,"aspects":[{"a":"sun","b":"moon","kind":"trine","orb":1.2}]}`))
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, "k")
	got, err := c.Compute(context.Background(), geocodedBirth())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Bodies) != 1 || got.Bodies[0].Sign() != "capricorn" {
		t.Errorf("bodies = %+v", got.Bodies)
	}
	if asp, ok := got.AspectBetween("moon", "sun"); !ok || asp.Kind != "trine" {
		t.Errorf("AspectBetween(moon, sun) = %+v, %v", asp, ok)
	}
}

func TestCompute_Errors(t *testing.T) {
	c := NewClient(nil, "http://unused", "")
	birth := geocodedBirth()
	birth.Coordinates = nil
	if _, err := c.Compute(context.Background(), birth); err == nil {
		t.Error("expected error without coordinates")
	}

	for name, body := range map[string]string{
		"no bodies": `{"bodies":[]}`,
		"bad json":  `{`,
	} {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer server.Close()

			if _, err := NewClient(server.Client(), server.URL, "").Compute(context.Background(), geocodedBirth()); err == nil {
				t.Error("expected error, got none")
			}
		})
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "ephemeris unavailable", http.StatusBadGateway)
	}))
	defer server.Close()
	if _, err := NewClient(server.Client(), server.URL, "").Compute(context.Background(), geocodedBirth()); err == nil {
		t.Error("expected error for HTTP 502")
	}
}

// TestNewHTTPClient_ClientCredentials verifies the OAuth2 client attaches a
// bearer token obtained from the token endpoint.
func TestNewHTTPClient_ClientCredentials(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if gt := r.Form.Get("grant_type"); gt != "client_credentials" {
			t.Errorf("grant_type = %q", gt)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-123","token_type":"bearer","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	chartServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok-123" {
			t.Errorf("Authorization = %q, want Bearer tok-123", auth)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer chartServer.Close()

	httpClient := NewHTTPClient(context.Background(), config.ChartConfig{
		TokenURL:     tokenServer.URL,
		ClientID:     "id",
		ClientSecret: "secret",
		Timeout:      5 * time.Second,
	})
	if err := NewClient(httpClient, chartServer.URL, "").Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
