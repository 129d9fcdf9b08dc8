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

// Package extract turns free-text email bodies into the fixed set of birth
// data fields. Two strategies share the Extractor interface: a deterministic
// line scan and an assisted scan that fills gaps from a language model.
package extract

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/profwarlock/natalmail/internal/models"
)

// Extractor produces candidate field values from an email. Implementations
// never fail: a field that cannot be found is simply absent.
type Extractor interface {
	Extract(ctx context.Context, subject, body string) models.Fields
}

// labelLine matches "<label><sep><value>" at the start of a line. Labels are
// letters with spaces and light punctuation; the separator is ':' or '='.
var labelLine = regexp.MustCompile(`^[ \t]*([A-Za-z][A-Za-z ._\-]{0,40}?)[ \t]*[:=][ \t]*(.*)$`)

// synonyms maps normalised labels to fields.
var synonyms = map[string]models.Field{
	"first name":  models.FieldFirstName,
	"firstname":   models.FieldFirstName,
	"given name":  models.FieldFirstName,
	"forename":    models.FieldFirstName,
	"last name":   models.FieldLastName,
	"lastname":    models.FieldLastName,
	"surname":     models.FieldLastName,
	"family name": models.FieldLastName,

	"date of birth": models.FieldDateOfBirth,
	"dob":           models.FieldDateOfBirth,
	"birth date":    models.FieldDateOfBirth,
	"birthdate":     models.FieldDateOfBirth,
	"birthday":      models.FieldDateOfBirth,

	"time of birth": models.FieldTimeOfBirth,
	"tob":           models.FieldTimeOfBirth,
	"birth time":    models.FieldTimeOfBirth,
	"birthtime":     models.FieldTimeOfBirth,

	"place of birth": models.FieldPlaceOfBirth,
	"pob":            models.FieldPlaceOfBirth,
	"birth place":    models.FieldPlaceOfBirth,
	"birthplace":     models.FieldPlaceOfBirth,
	"city of birth":  models.FieldPlaceOfBirth,
}

// inlineLabel finds known labels anywhere in a line, for bodies a mail
// client has flattened onto one line. Group 1 is the label; the match ends
// after the separator.
var inlineLabel = buildInlineLabel()

func buildInlineLabel() *regexp.Regexp {
	labels := make([]string, 0, len(synonyms))
	for label := range synonyms {
		labels = append(labels, label)
	}
	// Longest first so "birth date" is not cut short by a shorter label.
	sort.Slice(labels, func(i, j int) bool {
		if len(labels[i]) != len(labels[j]) {
			return len(labels[i]) > len(labels[j])
		}
		return labels[i] < labels[j]
	})
	alts := make([]string, len(labels))
	for i, label := range labels {
		words := strings.Fields(label)
		for j, w := range words {
			words[j] = regexp.QuoteMeta(w)
		}
		alts[i] = strings.Join(words, `[ \t_\-]+`)
	}
	return regexp.MustCompile(`(?i)(?:^|[^A-Za-z])(` + strings.Join(alts, "|") + `)[ \t]*[:=]`)
}

// LineScanner is the deterministic extraction strategy.
type LineScanner struct{}

// NewLineScanner creates a line scanner.
func NewLineScanner() *LineScanner {
	return &LineScanner{}
}

// Extract scans the subject and then the body line by line. The last
// non-empty occurrence of a label wins; empty values are ignored.
//
// When a required field is still missing, a second pass splits lines that
// carry several labels and fills only the fields that are absent.
func (s *LineScanner) Extract(_ context.Context, subject, body string) models.Fields {
	fields := make(models.Fields)
	scanInto(fields, subject)
	scanInto(fields, body)
	if missingRequired(fields) {
		scanFlattened(fields, subject)
		scanFlattened(fields, body)
	}
	return fields
}

func missingRequired(fields models.Fields) bool {
	for _, f := range models.RequiredFields {
		if _, ok := fields.Get(f); !ok {
			return true
		}
	}
	return false
}

// scanFlattened splits each line holding two or more labels into
// label/value segments. A value the line scan took from the whole line is
// dropped first, since it swallowed the labels after it.
func scanFlattened(fields models.Fields, text string) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, line := range strings.Split(text, "\n") {
		segs := SplitInline(line)
		if len(segs) < 2 {
			continue
		}
		if field, value, ok := ParseLine(line); ok && fields[field] == value {
			delete(fields, field)
		}
		for _, seg := range segs {
			if _, ok := fields.Get(seg.Field); ok {
				continue
			}
			if seg.Value != "" {
				fields[seg.Field] = seg.Value
			}
		}
	}
}

// Segment is one label/value pair found inside a line.
type Segment struct {
	Field models.Field
	Value string
}

// SplitInline cuts a line at every known label followed by ':' or '='.
// Text before the first label is discarded. Values are trimmed of spaces
// and trailing list separators and may be empty.
func SplitInline(line string) []Segment {
	locs := inlineLabel.FindAllStringSubmatchIndex(line, -1)
	if len(locs) == 0 {
		return nil
	}
	segs := make([]Segment, 0, len(locs))
	for i, loc := range locs {
		end := len(line)
		if i+1 < len(locs) {
			end = locs[i+1][2]
		}
		value := strings.TrimSpace(line[loc[1]:end])
		value = strings.TrimSpace(strings.TrimRight(value, ",;|"))
		segs = append(segs, Segment{
			Field: synonyms[normaliseLabel(line[loc[2]:loc[3]])],
			Value: value,
		})
	}
	return segs
}

func scanInto(fields models.Fields, text string) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, line := range strings.Split(text, "\n") {
		field, value, ok := ParseLine(line)
		if !ok {
			continue
		}
		fields[field] = value
	}
}

// ParseLine recognises a single "Label: value" line. It reports false for
// lines without a known label or with an empty value.
func ParseLine(line string) (models.Field, string, bool) {
	m := labelLine.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	field, ok := synonyms[normaliseLabel(m[1])]
	if !ok {
		return "", "", false
	}
	value := strings.TrimSpace(m[2])
	if value == "" {
		return "", "", false
	}
	return field, value, true
}

// normaliseLabel case-folds a label, drops dots (D.O.B.) and collapses
// underscores, hyphens and repeated spaces.
func normaliseLabel(label string) string {
	label = strings.ToLower(label)
	label = strings.ReplaceAll(label, ".", "")
	label = strings.NewReplacer("_", " ", "-", " ").Replace(label)
	return strings.Join(strings.Fields(label), " ")
}
