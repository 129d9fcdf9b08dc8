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

package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/profwarlock/natalmail/internal/models"
)

// Assistant suggests field values for free-form text the line scan could
// not fully understand.
type Assistant interface {
	Suggest(ctx context.Context, body string) (models.Fields, error)
}

// Assisted runs a base extractor and asks an Assistant only for the required
// fields the base left absent. Suggestions never overwrite base values.
type Assisted struct {
	base      Extractor
	assistant Assistant
}

// NewAssisted wraps base with an assistant.
func NewAssisted(base Extractor, assistant Assistant) *Assisted {
	return &Assisted{base: base, assistant: assistant}
}

// Extract implements Extractor.
func (a *Assisted) Extract(ctx context.Context, subject, body string) models.Fields {
	fields := a.base.Extract(ctx, subject, body)
	if !missingRequired(fields) {
		return fields
	}

	suggested, err := a.suggest(ctx, body)
	if err != nil {
		slog.Warn("assisted extraction failed, using line scan only", "error", err)
		return fields
	}

	for _, f := range models.AllFields {
		if _, ok := fields.Get(f); ok {
			continue
		}
		if v := strings.TrimSpace(suggested[f]); v != "" {
			fields[f] = v
		}
	}
	return fields
}

func (a *Assisted) suggest(ctx context.Context, body string) (fields models.Fields, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("assistant panic: %v", r)
		}
	}()
	return a.assistant.Suggest(ctx, body)
}
