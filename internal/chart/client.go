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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/profwarlock/natalmail/internal/config"
	"github.com/profwarlock/natalmail/internal/models"
)

// NewHTTPClient builds the HTTP client used to reach the chart service.
// With client credentials configured it returns an OAuth2 client that
// fetches and refreshes tokens automatically.
func NewHTTPClient(ctx context.Context, cfg config.ChartConfig) *http.Client {
	if cfg.ClientID == "" || cfg.TokenURL == "" {
		return &http.Client{Timeout: cfg.Timeout}
	}

	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	client := creds.Client(ctx)
	client.Timeout = cfg.Timeout
	return client
}

// Client computes natal charts through the chart service API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient creates a chart service client. apiKey is optional and sent as
// X-API-Key when set.
func NewClient(httpClient *http.Client, baseURL, apiKey string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// natalRequest is the chart service request body.
type natalRequest struct {
	Name      string  `json:"name"`
	Date      string  `json:"date"`
	Time      string  `json:"time"`
	TimeKnown bool    `json:"time_known"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}

// Compute requests the natal chart for geocoded birth data.
func (c *Client) Compute(ctx context.Context, birth models.BirthData) (*Chart, error) {
	if birth.Coordinates == nil {
		return nil, fmt.Errorf("birth data has no coordinates")
	}

	body, err := json.Marshal(natalRequest{
		Name:      birth.FullName(),
		Date:      birth.Date.Format("2006-01-02"),
		Time:      birth.Date.Format("15:04"),
		TimeKnown: birth.TimeKnown,
		Lat:       birth.Coordinates.Lat,
		Lon:       birth.Coordinates.Lon,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chart request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/natal", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("compute chart: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("chart service returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var chart Chart
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return nil, fmt.Errorf("decode chart: %w", err)
	}
	if len(chart.Bodies) == 0 {
		return nil, fmt.Errorf("chart service returned no bodies")
	}

	return &chart, nil
}

// Ping checks that the chart service is reachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chart service health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chart service health returned HTTP %d", resp.StatusCode)
	}
	return nil
}
