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

// Package mailer delivers outbound replies through Postmark or SMTP.
package mailer

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"github.com/profwarlock/natalmail/internal/config"
	"github.com/profwarlock/natalmail/internal/models"
)

// Sender delivers a single outbound email.
type Sender interface {
	Send(ctx context.Context, msg models.OutboundEmail) error
	// Configured reports whether the transport has the credentials it
	// needs to send.
	Configured() bool
}

// New builds the sender selected by cfg.Transport.
func New(cfg config.EmailConfig) (Sender, error) {
	from := mail.Address{Name: cfg.FromName, Address: cfg.FromAddress}

	switch cfg.Transport {
	case config.TransportPostmark, "":
		return NewPostmark(nil, cfg.PostmarkBaseURL, cfg.PostmarkToken, cfg.PostmarkStream, from), nil
	case config.TransportSMTP:
		return NewSMTP(cfg.SMTPAddr, cfg.SMTPUsername, cfg.SMTPPassword, from), nil
	default:
		return nil, fmt.Errorf("unknown email transport %q", cfg.Transport)
	}
}

func recipient(msg models.OutboundEmail) string {
	if strings.TrimSpace(msg.ToName) == "" {
		return msg.To
	}
	return (&mail.Address{Name: msg.ToName, Address: msg.To}).String()
}

// references builds the threading header value for a reply. Whitespace
// and control characters are dropped so the id cannot break out of its
// header line.
func references(id string) string {
	id = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, id)
	if id == "" {
		return ""
	}
	if !strings.HasPrefix(id, "<") {
		id = "<" + id + ">"
	}
	return id
}
