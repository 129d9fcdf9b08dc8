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
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/profwarlock/natalmail/internal/models"
)

// ErrNoSender is returned for payloads without a reply address.
var ErrNoSender = errors.New("payload has no sender address")

// inboundPayload is the subset of the Postmark inbound webhook we use.
type inboundPayload struct {
	From     string `json:"From"`
	FromName string `json:"FromName"`
	FromFull struct {
		Email string `json:"Email"`
		Name  string `json:"Name"`
	} `json:"FromFull"`
	Subject   string `json:"Subject"`
	TextBody  string `json:"TextBody"`
	HTMLBody  string `json:"HtmlBody"`
	MessageID string `json:"MessageID"`
	Date      string `json:"Date"`
	Headers   []struct {
		Name  string `json:"Name"`
		Value string `json:"Value"`
	} `json:"Headers"`
}

// ParseInbound converts a Postmark inbound payload into an InboundEmail.
// The reply address prefers FromFull, then From, which may carry a display
// name.
func ParseInbound(body []byte) (models.InboundEmail, error) {
	var p inboundPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return models.InboundEmail{}, fmt.Errorf("decode inbound payload: %w", err)
	}

	from := strings.TrimSpace(p.FromFull.Email)
	name := strings.TrimSpace(firstNonEmpty(p.FromName, p.FromFull.Name))
	if from == "" && strings.TrimSpace(p.From) != "" {
		if addr, err := mail.ParseAddress(p.From); err == nil {
			from = addr.Address
			name = firstNonEmpty(name, addr.Name)
		} else {
			from = strings.TrimSpace(p.From)
		}
	}
	if from == "" {
		return models.InboundEmail{}, ErrNoSender
	}

	headers := make(map[string]string, len(p.Headers))
	for _, h := range p.Headers {
		headers[h.Name] = h.Value
	}

	received := time.Now().UTC()
	if t, err := mail.ParseDate(p.Date); err == nil {
		received = t.UTC()
	}

	return models.InboundEmail{
		From:       from,
		FromName:   name,
		Subject:    p.Subject,
		TextBody:   p.TextBody,
		HTMLBody:   p.HTMLBody,
		MessageID:  p.MessageID,
		Headers:    headers,
		ReceivedAt: received,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
