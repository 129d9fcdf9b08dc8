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

// Package reply composes the outbound messages sent back to requesters.
// Every composed message answers the original sender and threads onto the
// inbound message.
package reply

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/profwarlock/natalmail/internal/config"
	"github.com/profwarlock/natalmail/internal/models"
)

const subjectPrefix = "[Prof. Warlock] "

// Subjects of the fixed replies.
const (
	SubjectMissingInfo      = subjectPrefix + "Missing Information"
	SubjectLocationNotFound = subjectPrefix + "Place of Birth Not Found"
	SubjectChartReady       = subjectPrefix + "Your Natal Chart"
	SubjectChartFailed      = subjectPrefix + "Chart Generation Failed"
)

// PongBody is the acknowledgment sent for a ping.
const PongBody = "PONG"

// Composer builds replies.
type Composer struct {
	signature string
	website   string
	md        goldmark.Markdown
}

// NewComposer creates a composer from the service configuration.
func NewComposer(cfg *config.Config) *Composer {
	signature := cfg.Signature
	if signature == "" {
		signature = cfg.Email.FromName
	}
	if signature == "" {
		signature = "Prof. Warlock"
	}
	return &Composer{
		signature: signature,
		website:   cfg.Poster.Website,
		md:        goldmark.New(goldmark.WithRendererOptions(html.WithHardWraps())),
	}
}

// Pong answers a ping. The body is the bare acknowledgment token.
func (c *Composer) Pong(in models.InboundEmail) models.OutboundEmail {
	return models.OutboundEmail{
		To:        in.From,
		ToName:    in.FromName,
		Subject:   replySubject(in.Subject),
		TextBody:  PongBody,
		InReplyTo: in.ThreadID(),
	}
}

// MissingInfo lists the fields that must be resent. The body repeats every
// usable value the sender gave and leaves an empty "Label:" line for each
// missing one, so a reply that only fills the blanks is complete.
func (c *Composer) MissingInfo(in models.InboundEmail, fields models.Fields, missing []models.Field) models.OutboundEmail {
	var b strings.Builder
	c.greet(&b, in)
	b.WriteString("Some information is missing or could not be read. ")
	b.WriteString("Please reply with the lines below completed.\n\n")

	names := make([]string, 0, len(missing))
	for _, f := range missing {
		names = append(names, f.Label())
	}
	fmt.Fprintf(&b, "Still needed (%s)\n\n", strings.Join(names, ", "))

	for _, f := range models.AllFields {
		v, _ := fields.Get(f)
		if v == "" {
			fmt.Fprintf(&b, "%s:\n", f.Label())
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", f.Label(), v)
	}

	b.WriteString("\nWrite dates as DD-MM-YYYY and the time of birth as HH MM in 24-hour form, ")
	b.WriteString("separated by a colon. The time of birth is optional; without it the chart is cast for noon.\n")
	c.signOff(&b)

	return c.message(in, SubjectMissingInfo, b.String(), nil)
}

// LocationNotFound explains that the place of birth could not be resolved.
func (c *Composer) LocationNotFound(in models.InboundEmail, place string) models.OutboundEmail {
	var b strings.Builder
	c.greet(&b, in)
	fmt.Fprintf(&b, "I could not find the place of birth you gave (%q) on the map. ", place)
	b.WriteString("Please reply with a more specific place, for example a city followed by its country.\n")
	c.signOff(&b)
	return c.message(in, SubjectLocationNotFound, b.String(), nil)
}

// ChartReady delivers the rendered poster.
func (c *Composer) ChartReady(in models.InboundEmail, birth models.BirthData, art models.ChartArtifact) models.OutboundEmail {
	var b strings.Builder
	if birth.FirstName != "" {
		fmt.Fprintf(&b, "Dear %s,\n\n", birth.FirstName)
	} else {
		c.greet(&b, in)
	}
	b.WriteString("Your natal chart is ready. The poster is attached.\n")
	if !birth.TimeKnown {
		b.WriteString("\nNo time of birth was given, so the chart is cast for noon. ")
		b.WriteString("The ascendant and houses depend on the exact time.\n")
	}
	c.signOff(&b)

	attachments := []models.Attachment{{
		Name:        art.Filename,
		ContentType: art.ContentType,
		Content:     art.Content,
	}}
	return c.message(in, SubjectChartReady, b.String(), attachments)
}

// ChartFailed reports that computation or rendering failed.
func (c *Composer) ChartFailed(in models.InboundEmail) models.OutboundEmail {
	var b strings.Builder
	c.greet(&b, in)
	b.WriteString("Your details were received, but something went wrong while drawing your chart. ")
	b.WriteString("Please try again later by replying to this message.\n")
	c.signOff(&b)
	return c.message(in, SubjectChartFailed, b.String(), nil)
}

func (c *Composer) message(in models.InboundEmail, subject, text string, attachments []models.Attachment) models.OutboundEmail {
	return models.OutboundEmail{
		To:          in.From,
		ToName:      in.FromName,
		Subject:     subject,
		TextBody:    text,
		HTMLBody:    c.html(text),
		InReplyTo:   in.ThreadID(),
		Attachments: attachments,
	}
}

// html renders the text body as the HTML alternative. A conversion error
// leaves the message text-only.
func (c *Composer) html(text string) string {
	var buf bytes.Buffer
	if err := c.md.Convert([]byte(text), &buf); err != nil {
		slog.Warn("markdown conversion failed", "error", err)
		return ""
	}
	return buf.String()
}

func (c *Composer) greet(b *strings.Builder, in models.InboundEmail) {
	name := firstName(in)
	if name == "" {
		b.WriteString("Hello,\n\n")
		return
	}
	fmt.Fprintf(b, "Dear %s,\n\n", name)
}

func (c *Composer) signOff(b *strings.Builder) {
	b.WriteString("\nBest regards,\n")
	b.WriteString(c.signature)
	b.WriteString("\n")
	if c.website != "" {
		b.WriteString(c.website)
		b.WriteString("\n")
	}
}

func replySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "Re: " + PongBody
	}
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

// firstName picks a salutation name from the display name, then from the
// address local part. It returns "" when neither looks like a name.
func firstName(in models.InboundEmail) string {
	if parts := strings.Fields(in.FromName); len(parts) > 0 && isName(parts[0]) {
		return capitalize(parts[0])
	}
	local, _, _ := strings.Cut(in.From, "@")
	local, _, _ = strings.Cut(local, "+")
	if first := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	}); len(first) > 0 && isName(first[0]) {
		return capitalize(first[0])
	}
	return ""
}

func isName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && r != '\'' {
			return false
		}
	}
	return true
}

func capitalize(s string) string {
	r := []rune(strings.ToLower(s))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
