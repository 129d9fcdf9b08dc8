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

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/profwarlock/natalmail/internal/chart"
	"github.com/profwarlock/natalmail/internal/config"
	"github.com/profwarlock/natalmail/internal/geocode"
	"github.com/profwarlock/natalmail/internal/models"
	"github.com/profwarlock/natalmail/internal/poster"
	"github.com/profwarlock/natalmail/internal/reply"
	"github.com/profwarlock/natalmail/internal/webhook"
)

var previewCmd = &cobra.Command{
	Use:   "preview [file]",
	Short: "Print the reply the service would send for a request body",
	Long: `Runs the full webhook pipeline for a request body and prints the composed
reply instead of sending it. Geocoding and chart computation use the
configured services.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPreview,
}

func init() {
	previewCmd.Flags().String("from", "someone@example.com", "sender address")
	previewCmd.Flags().String("name", "", "sender display name")
	previewCmd.Flags().String("subject", "Natal chart request", "subject line")
}

// printSender writes replies to a writer instead of delivering them.
type printSender struct {
	w io.Writer
}

func (p printSender) Send(_ context.Context, msg models.OutboundEmail) error {
	fmt.Fprintf(p.w, "To: %s\nSubject: %s\n", msg.To, msg.Subject)
	if msg.InReplyTo != "" {
		fmt.Fprintf(p.w, "In-Reply-To: %s\n", msg.InReplyTo)
	}
	for _, a := range msg.Attachments {
		fmt.Fprintf(p.w, "Attachment: %s (%s, %d bytes)\n", a.Name, a.ContentType, len(a.Content))
	}
	fmt.Fprintf(p.w, "\n%s\n", msg.TextBody)
	return nil
}

func runPreview(cmd *cobra.Command, args []string) error {
	body, err := readBody(cmd, args)
	if err != nil {
		return err
	}
	from, _ := cmd.Flags().GetString("from")
	name, _ := cmd.Flags().GetString("name")
	subject, _ := cmd.Flags().GetString("subject")

	cfg, err := config.Read()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	renderer, err := poster.NewRenderer(cfg.Poster)
	if err != nil {
		return err
	}

	pipeline := webhook.NewPipeline(webhook.PipelineConfig{
		Geocoder: geocode.NewClient(&http.Client{Timeout: cfg.Geocoder.Timeout}, cfg.Geocoder.BaseURL, cfg.Geocoder.UserAgent),
		Charter:  chart.NewClient(chart.NewHTTPClient(ctx, cfg.Chart), cfg.Chart.BaseURL, cfg.Chart.APIKey),
		Renderer: renderer,
		Composer: reply.NewComposer(cfg),
		Sender:   printSender{w: cmd.OutOrStdout()},
	})

	out := pipeline.Run(ctx, models.InboundEmail{
		From:       from,
		FromName:   name,
		Subject:    subject,
		TextBody:   body,
		MessageID:  "preview",
		ReceivedAt: time.Now().UTC(),
	}, nil)

	fmt.Fprintf(cmd.ErrOrStderr(), "outcome: %s\n", out.State)
	return nil
}
