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

// Package validate checks extracted fields and builds the birth data record.
package validate

import (
	"strings"
	"time"

	"github.com/profwarlock/natalmail/internal/models"
)

// DefaultBirthHour and DefaultBirthMinute are used when a request carries no
// time of birth. The resulting BirthData has TimeKnown set to false.
const (
	DefaultBirthHour   = 12
	DefaultBirthMinute = 0
)

// dateLayouts are the accepted date-of-birth formats (day first).
var dateLayouts = []string{"2-1-2006", "2/1/2006", "2.1.2006"}

const timeLayout = "15:04"

// Validate checks presence and shape of the required fields. The result is
// all-or-nothing: Birth is only populated when Valid is true.
func Validate(fields models.Fields) models.ValidationResult {
	var missing []models.Field
	present := func(f models.Field) string {
		v, ok := fields.Get(f)
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			missing = append(missing, f)
			return ""
		}
		return v
	}

	first := present(models.FieldFirstName)
	last := present(models.FieldLastName)

	var (
		date     time.Time
		hasClock bool
	)
	if raw := present(models.FieldDateOfBirth); raw != "" {
		var ok bool
		date, hasClock, ok = ParseDate(raw)
		if !ok {
			// An unparsable date is reported exactly like an absent one.
			missing = append(missing, models.FieldDateOfBirth)
		}
	}

	// Time of birth is optional, but a malformed value is rejected.
	var (
		clock     time.Time
		clockOK   bool
		rawTime   string
		timeGiven bool
	)
	if rawTime, timeGiven = fields.Get(models.FieldTimeOfBirth); timeGiven && !hasClock {
		clock, clockOK = ParseTime(rawTime)
		if !clockOK {
			missing = append(missing, models.FieldTimeOfBirth)
		}
	}

	place := present(models.FieldPlaceOfBirth)

	if len(missing) > 0 {
		return models.ValidationResult{Missing: canonicalOrder(missing)}
	}

	birth := models.BirthData{
		FirstName: first,
		LastName:  last,
		Place:     place,
	}
	switch {
	case hasClock:
		birth.Date = date
		birth.TimeKnown = true
	case clockOK:
		birth.Date = time.Date(date.Year(), date.Month(), date.Day(), clock.Hour(), clock.Minute(), 0, 0, time.UTC)
		birth.TimeKnown = true
	default:
		birth.Date = time.Date(date.Year(), date.Month(), date.Day(), DefaultBirthHour, DefaultBirthMinute, 0, 0, time.UTC)
	}

	return models.ValidationResult{Valid: true, Birth: birth}
}

// ParseDate parses a day-month-year date with an optional " HH:MM" suffix.
// It reports whether a clock time was present.
func ParseDate(raw string) (t time.Time, hasClock bool, ok bool) {
	raw = strings.Join(strings.Fields(raw), " ")
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout+" "+timeLayout, raw); err == nil {
			return t, true, true
		}
		if t, err := time.Parse(layout, raw); err == nil {
			return t, false, true
		}
	}
	return time.Time{}, false, false
}

// ParseTime parses a 24h HH:MM time.
func ParseTime(raw string) (time.Time, bool) {
	t, err := time.Parse(timeLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// canonicalOrder sorts fields into models.AllFields order without duplicates.
func canonicalOrder(fields []models.Field) []models.Field {
	seen := make(map[models.Field]bool, len(fields))
	for _, f := range fields {
		seen[f] = true
	}
	out := make([]models.Field, 0, len(seen))
	for _, f := range models.AllFields {
		if seen[f] {
			out = append(out, f)
		}
	}
	return out
}
