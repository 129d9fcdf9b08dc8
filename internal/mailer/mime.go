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
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/profwarlock/natalmail/internal/models"
)

// buildMessage renders msg as an RFC 5322 message. Text and HTML bodies
// form a multipart/alternative part; attachments wrap it in
// multipart/mixed.
func buildMessage(from mail.Address, msg models.OutboundEmail) ([]byte, error) {
	var buf bytes.Buffer

	domain := "localhost"
	if _, d, ok := strings.Cut(from.Address, "@"); ok && d != "" {
		domain = d
	}

	h := make(textproto.MIMEHeader)
	h.Set("From", from.String())
	h.Set("To", recipient(msg))
	h.Set("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	h.Set("Date", time.Now().UTC().Format(time.RFC1123Z))
	h.Set("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), domain))
	h.Set("MIME-Version", "1.0")
	if ref := references(msg.InReplyTo); ref != "" {
		h.Set("In-Reply-To", ref)
		h.Set("References", ref)
	}

	switch {
	case len(msg.Attachments) > 0:
		mixed := multipart.NewWriter(&buf)
		h.Set("Content-Type", "multipart/mixed; boundary="+mixed.Boundary())
		writeHeader(&buf, h)

		if err := writeBody(mixed, msg); err != nil {
			return nil, err
		}
		for _, a := range msg.Attachments {
			if err := writeAttachment(mixed, a); err != nil {
				return nil, err
			}
		}
		if err := mixed.Close(); err != nil {
			return nil, err
		}

	case msg.HTMLBody != "":
		alt := multipart.NewWriter(&buf)
		h.Set("Content-Type", "multipart/alternative; boundary="+alt.Boundary())
		writeHeader(&buf, h)
		if err := writeAlternatives(alt, msg); err != nil {
			return nil, err
		}

	default:
		h.Set("Content-Type", "text/plain; charset=utf-8")
		h.Set("Content-Transfer-Encoding", "quoted-printable")
		writeHeader(&buf, h)
		if err := writeQP(&buf, msg.TextBody); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func writeHeader(w io.Writer, h textproto.MIMEHeader) {
	// Fixed order keeps the output stable for tests and diffs.
	for _, k := range []string{"From", "To", "Subject", "Date", "Message-ID", "In-Reply-To", "References", "MIME-Version", "Content-Type", "Content-Transfer-Encoding"} {
		if v := h.Get(k); v != "" {
			fmt.Fprintf(w, "%s: %s\r\n", k, v)
		}
	}
	io.WriteString(w, "\r\n")
}

// writeBody adds the text bodies to a mixed message as a nested
// alternative part.
func writeBody(mixed *multipart.Writer, msg models.OutboundEmail) error {
	if msg.HTMLBody == "" {
		return writeTextPart(mixed, "text/plain", msg.TextBody)
	}

	var nested bytes.Buffer
	alt := multipart.NewWriter(&nested)
	if err := writeAlternatives(alt, msg); err != nil {
		return err
	}

	part, err := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"multipart/alternative; boundary=" + alt.Boundary()},
	})
	if err != nil {
		return err
	}
	_, err = part.Write(nested.Bytes())
	return err
}

func writeAlternatives(alt *multipart.Writer, msg models.OutboundEmail) error {
	if err := writeTextPart(alt, "text/plain", msg.TextBody); err != nil {
		return err
	}
	if err := writeTextPart(alt, "text/html", msg.HTMLBody); err != nil {
		return err
	}
	return alt.Close()
}

func writeTextPart(w *multipart.Writer, contentType, body string) error {
	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType + "; charset=utf-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return err
	}
	return writeQP(part, body)
}

func writeQP(w io.Writer, body string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := io.WriteString(qp, body); err != nil {
		return err
	}
	return qp.Close()
}

func writeAttachment(w *multipart.Writer, a models.Attachment) error {
	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {mime.FormatMediaType(contentType, map[string]string{"name": a.Name})},
		"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": a.Name})},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return err
	}

	encoded := base64.StdEncoding.EncodeToString(a.Content)
	for len(encoded) > 76 {
		if _, err := io.WriteString(part, encoded[:76]+"\r\n"); err != nil {
			return err
		}
		encoded = encoded[76:]
	}
	_, err = io.WriteString(part, encoded+"\r\n")
	return err
}
