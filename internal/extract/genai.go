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
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/profwarlock/natalmail/internal/models"
)

// maxPromptBody bounds how much of an email body is sent to the model.
const maxPromptBody = 8000

const assistPrompt = `Extract birth details from the email below.
Answer with a single JSON object with exactly these string keys:
"first_name", "last_name", "date_of_birth", "time_of_birth", "place_of_birth".
Use "" for anything the email does not state. Write dates as DD-MM-YYYY and
times as HH:MM (24h). Do not guess.

Email:
`

// GenAIAssistant suggests fields using Google's Gemini API.
type GenAIAssistant struct {
	client *genai.Client
	model  string
}

// NewGenAIAssistant creates a Gemini-backed Assistant.
func NewGenAIAssistant(ctx context.Context, apiKey, model string) (*GenAIAssistant, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create GenAI client: %w", err)
	}

	return &GenAIAssistant{client: client, model: model}, nil
}

// Suggest implements Assistant.
func (g *GenAIAssistant) Suggest(ctx context.Context, body string) (models.Fields, error) {
	if len(body) > maxPromptBody {
		body = body[:maxPromptBody]
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(assistPrompt+body),
		&genai.GenerateContentConfig{
			Temperature:      genai.Ptr[float32](0),
			ResponseMIMEType: "application/json",
		},
	)
	if err != nil {
		return nil, fmt.Errorf("GenAI generate: %w", err)
	}

	return parseSuggestion(resp.Text())
}

// parseSuggestion decodes the model's JSON answer, keeping only known
// fields with non-empty string values.
func parseSuggestion(raw string) (models.Fields, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var answer map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &answer); err != nil {
		return nil, fmt.Errorf("decode suggestion: %w", err)
	}

	fields := make(models.Fields)
	for _, f := range models.AllFields {
		s, ok := answer[string(f)].(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			fields[f] = s
		}
	}
	return fields, nil
}
