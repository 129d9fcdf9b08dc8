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

package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/profwarlock/natalmail/internal/models"
)

const defaultPostmarkURL = "https://api.postmarkapp.com"

// Postmark sends through the Postmark email API.
type Postmark struct {
	httpClient *http.Client
	baseURL    string
	token      string
	stream     string
	from       mail.Address
}

// NewPostmark creates a Postmark sender. A nil httpClient gets a client
// with a 30s timeout.
func NewPostmark(httpClient *http.Client, baseURL, token, stream string, from mail.Address) *Postmark {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if baseURL == "" {
		baseURL = defaultPostmarkURL
	}
	if stream == "" {
		stream = "outbound"
	}
	return &Postmark{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		stream:     stream,
		from:       from,
	}
}

// Configured reports whether a server token and sender address are set.
func (p *Postmark) Configured() bool {
	return p.token != "" && p.from.Address != ""
}

type postmarkHeader struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

type postmarkAttachment struct {
	Name        string `json:"Name"`
	Content     string `json:"Content"`
	ContentType string `json:"ContentType"`
}

type postmarkMessage struct {
	From          string               `json:"From"`
	To            string               `json:"To"`
	Subject       string               `json:"Subject"`
	TextBody      string               `json:"TextBody,omitempty"`
	HTMLBody      string               `json:"HtmlBody,omitempty"`
	Headers       []postmarkHeader     `json:"Headers,omitempty"`
	Attachments   []postmarkAttachment `json:"Attachments,omitempty"`
	MessageStream string               `json:"MessageStream"`
}

type postmarkResponse struct {
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
	MessageID string `json:"MessageID"`
}

// Send posts msg to /email.
func (p *Postmark) Send(ctx context.Context, msg models.OutboundEmail) error {
	if !p.Configured() {
		return fmt.Errorf("postmark sender not configured")
	}

	body := postmarkMessage{
		From:          p.from.String(),
		To:            recipient(msg),
		Subject:       msg.Subject,
		TextBody:      msg.TextBody,
		HTMLBody:      msg.HTMLBody,
		MessageStream: p.stream,
	}
	if ref := references(msg.InReplyTo); ref != "" {
		body.Headers = []postmarkHeader{
			{Name: "In-Reply-To", Value: ref},
			{Name: "References", Value: ref},
		}
	}
	for _, a := range msg.Attachments {
		body.Attachments = append(body.Attachments, postmarkAttachment{
			Name:        a.Name,
			Content:     base64.StdEncoding.EncodeToString(a.Content),
			ContentType: a.ContentType,
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal postmark message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/email", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Postmark-Server-Token", p.token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("postmark request: %w", err)
	}
	defer resp.Body.Close()

	var result postmarkResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil && resp.StatusCode == http.StatusOK {
			return fmt.Errorf("decode postmark response: %w", err)
		}
	}

	if resp.StatusCode != http.StatusOK || result.ErrorCode != 0 {
		return fmt.Errorf("postmark returned HTTP %d (code %d): %s", resp.StatusCode, result.ErrorCode, result.Message)
	}

	slog.Info("reply sent",
		"transport", "postmark",
		"postmark_id", result.MessageID,
		"attachments", len(msg.Attachments),
	)
	return nil
}
