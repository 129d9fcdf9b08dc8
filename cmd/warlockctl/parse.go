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
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/profwarlock/natalmail/internal/extract"
	"github.com/profwarlock/natalmail/internal/models"
	"github.com/profwarlock/natalmail/internal/validate"
)

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Extract and validate birth data from a request body",
	Long: `Runs the line scanner and validator over a request body and prints the
extracted fields and the validation result as JSON. Reads stdin when no
file is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runParse,
}

func init() {
	parseCmd.Flags().String("subject", "", "subject line scanned before the body")
}

type parseReport struct {
	Fields    models.Fields  `json:"fields"`
	Valid     bool           `json:"valid"`
	Missing   []models.Field `json:"missing,omitempty"`
	FullName  string         `json:"full_name,omitempty"`
	Date      string         `json:"date,omitempty"`
	TimeKnown bool           `json:"time_known"`
	Place     string         `json:"place,omitempty"`
}

func runParse(cmd *cobra.Command, args []string) error {
	body, err := readBody(cmd, args)
	if err != nil {
		return err
	}
	subject, _ := cmd.Flags().GetString("subject")

	fields := extract.NewLineScanner().Extract(cmd.Context(), subject, body)
	result := validate.Validate(fields)

	report := parseReport{
		Fields:  fields,
		Valid:   result.Valid,
		Missing: result.Missing,
	}
	if result.Valid {
		report.FullName = result.Birth.FullName()
		report.Date = result.Birth.Date.Format("2006-01-02 15:04")
		report.TimeKnown = result.Birth.TimeKnown
		report.Place = result.Birth.Place
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
