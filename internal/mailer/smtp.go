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
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/mail"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/profwarlock/natalmail/internal/models"
)

// smtpTimeout bounds a submission when ctx carries no deadline.
const smtpTimeout = 30 * time.Second

// SMTP submits messages to a relay.
type SMTP struct {
	addr     string
	username string
	password string
	from     mail.Address
}

// NewSMTP creates an SMTP sender. PLAIN authentication is used when a
// username is set.
func NewSMTP(addr, username, password string, from mail.Address) *SMTP {
	return &SMTP{addr: addr, username: username, password: password, from: from}
}

// Configured reports whether a relay and sender address are set.
func (s *SMTP) Configured() bool {
	return s.addr != "" && s.from.Address != ""
}

// Send builds the MIME message and submits it.
func (s *SMTP) Send(ctx context.Context, msg models.OutboundEmail) error {
	if !s.Configured() {
		return fmt.Errorf("smtp sender not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := buildMessage(s.from, msg)
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}

	var auth sasl.Client
	if s.username != "" {
		auth = sasl.NewPlainClient("", s.username, s.password)
	}

	if err := s.submit(ctx, auth, msg.To, raw); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	slog.Info("reply sent",
		"transport", "smtp",
		"relay", s.addr,
		"attachments", len(msg.Attachments),
	)
	return nil
}

// submit runs one SMTP session. The connection deadline follows ctx, and
// cancelling ctx closes the connection.
func (s *SMTP) submit(ctx context.Context, auth sasl.Client, to string, raw []byte) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(smtpTimeout)
	}

	dialer := net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.addr, err)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("set deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c := smtp.NewClient(conn)
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		host, _, _ := net.SplitHostPort(s.addr)
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := c.SendMail(s.from.Address, []string{to}, bytes.NewReader(raw)); err != nil {
		return err
	}
	return c.Quit()
}
