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

// Package models defines the data structures shared across the chart service.
package models

import (
	"strings"
	"time"
)

// InboundEmail is a received message as delivered by the inbound webhook.
// It is built once at the HTTP boundary and never modified afterwards.
type InboundEmail struct {
	From       string            `json:"from"`
	FromName   string            `json:"from_name"`
	Subject    string            `json:"subject"`
	TextBody   string            `json:"text_body"`
	HTMLBody   string            `json:"html_body,omitempty"`
	MessageID  string            `json:"message_id"`
	Headers    map[string]string `json:"headers,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
}

// ThreadID returns the identifier a reply should reference. The RFC 5322
// Message-ID header is preferred over the provider's own message id.
func (e InboundEmail) ThreadID() string {
	for name, value := range e.Headers {
		if strings.EqualFold(name, "Message-ID") && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return e.MessageID
}

// Field names one of the values extracted from a request body.
type Field string

const (
	FieldFirstName    Field = "first_name"
	FieldLastName     Field = "last_name"
	FieldDateOfBirth  Field = "date_of_birth"
	FieldTimeOfBirth  Field = "time_of_birth"
	FieldPlaceOfBirth Field = "place_of_birth"
)

// AllFields lists every extractable field in canonical order.
var AllFields = []Field{
	FieldFirstName,
	FieldLastName,
	FieldDateOfBirth,
	FieldTimeOfBirth,
	FieldPlaceOfBirth,
}

// RequiredFields lists the fields a complete request must carry.
var RequiredFields = []Field{
	FieldFirstName,
	FieldLastName,
	FieldDateOfBirth,
	FieldPlaceOfBirth,
}

// Label returns the human label used in the accepted input format.
func (f Field) Label() string {
	switch f {
	case FieldFirstName:
		return "First Name"
	case FieldLastName:
		return "Last Name"
	case FieldDateOfBirth:
		return "Date of Birth"
	case FieldTimeOfBirth:
		return "Time of Birth"
	case FieldPlaceOfBirth:
		return "Place of Birth"
	}
	return string(f)
}

// Fields maps extracted field names to their trimmed values. An absent
// field has no key; a present key never holds an empty string.
type Fields map[Field]string

// Get returns the value for f and whether it is present.
func (fs Fields) Get(f Field) (string, bool) {
	v, ok := fs[f]
	return v, ok && v != ""
}

// Coordinates is a resolved geographic location.
type Coordinates struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DisplayName string  `json:"display_name,omitempty"`
}

// BirthData is the validated request. Coordinates are filled in by the
// geocoding step.
type BirthData struct {
	FirstName string
	LastName  string
	// Date carries the birth date and, when TimeKnown is false, the
	// default birth time chosen by the validator.
	Date        time.Time
	TimeKnown   bool
	Place       string
	Coordinates *Coordinates
}

// FullName joins first and last name.
func (b BirthData) FullName() string {
	return strings.TrimSpace(b.FirstName + " " + b.LastName)
}

// Complete reports whether all required values are present.
func (b BirthData) Complete() bool {
	return b.FirstName != "" && b.LastName != "" && !b.Date.IsZero() && b.Place != ""
}

// ValidationResult is the all-or-nothing outcome of validating Fields.
type ValidationResult struct {
	Valid   bool
	Missing []Field
	Birth   BirthData
}

// ChartArtifact is a rendered poster held in memory until the reply is sent.
type ChartArtifact struct {
	Content     []byte
	ContentType string
	Filename    string
}

// Attachment is a file attached to an outbound email.
type Attachment struct {
	Name        string
	ContentType string
	Content     []byte
}

// OutboundEmail is a single reply handed to the mail transport.
type OutboundEmail struct {
	To          string
	ToName      string
	Subject     string
	TextBody    string
	HTMLBody    string
	InReplyTo   string
	Attachments []Attachment
}
