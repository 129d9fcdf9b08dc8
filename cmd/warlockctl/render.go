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
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/profwarlock/natalmail/internal/chart"
	"github.com/profwarlock/natalmail/internal/config"
	"github.com/profwarlock/natalmail/internal/extract"
	"github.com/profwarlock/natalmail/internal/geocode"
	"github.com/profwarlock/natalmail/internal/poster"
	"github.com/profwarlock/natalmail/internal/validate"
)

var renderCmd = &cobra.Command{
	Use:   "render [file]",
	Short: "Render the poster for a request body",
	Long: `Validates a request body, geocodes the place of birth, computes the chart
through the configured chart service and writes the poster PNG.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringP("out", "o", poster.Filename, "output PNG path")
}

func runRender(cmd *cobra.Command, args []string) error {
	body, err := readBody(cmd, args)
	if err != nil {
		return err
	}
	out, _ := cmd.Flags().GetString("out")

	cfg, err := config.Read()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	result := validate.Validate(extract.NewLineScanner().Extract(ctx, "", body))
	if !result.Valid {
		names := make([]string, len(result.Missing))
		for i, f := range result.Missing {
			names[i] = f.Label()
		}
		return fmt.Errorf("request incomplete, missing: %s", strings.Join(names, ", "))
	}
	birth := result.Birth

	geocoder := geocode.NewClient(&http.Client{Timeout: cfg.Geocoder.Timeout}, cfg.Geocoder.BaseURL, cfg.Geocoder.UserAgent)
	coords, err := geocoder.Geocode(ctx, birth.Place)
	if err != nil {
		return fmt.Errorf("geocode %q: %w", birth.Place, err)
	}
	birth.Coordinates = &coords

	c, err := chart.NewClient(chart.NewHTTPClient(ctx, cfg.Chart), cfg.Chart.BaseURL, cfg.Chart.APIKey).Compute(ctx, birth)
	if err != nil {
		return err
	}

	renderer, err := poster.NewRenderer(cfg.Poster)
	if err != nil {
		return err
	}
	art, err := renderer.Render(ctx, birth, c)
	if err != nil {
		return err
	}

	if err := os.WriteFile(out, art.Content, 0o644); err != nil {
		return fmt.Errorf("write poster: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes) for %s, %s\n", out, len(art.Content), birth.FullName(), coords.DisplayName)
	return nil
}
