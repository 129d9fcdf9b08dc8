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

// Package poster renders a natal chart onto a fixed-size printable poster.
package poster

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/profwarlock/natalmail/internal/chart"
	"github.com/profwarlock/natalmail/internal/config"
	"github.com/profwarlock/natalmail/internal/models"
)

// Reference layout is A3 portrait at 300dpi; every coordinate below is
// expressed in that space and scaled to the configured width.
const (
	refWidth  = 2480.0
	refHeight = 3508.0

	Filename    = "natal_chart.png"
	ContentType = "image/png"
)

const (
	inkColor   = "#393939"
	paperColor = "#fcf2de"
	faintColor = "#8a8a8a"
)

// Renderer draws posters. It is safe for concurrent use; each Render call
// works on its own canvas.
type Renderer struct {
	width   int
	height  int
	website string
	regular *truetype.Font
	bold    *truetype.Font
}

// NewRenderer creates a poster renderer.
func NewRenderer(cfg config.PosterConfig) (*Renderer, error) {
	regular, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse regular font: %w", err)
	}
	bold, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse bold font: %w", err)
	}

	w, h := cfg.Width, cfg.Height
	if w <= 0 || h <= 0 {
		w, h = int(refWidth), int(refHeight)
	}

	return &Renderer{
		width:   w,
		height:  h,
		website: cfg.Website,
		regular: regular,
		bold:    bold,
	}, nil
}

// Render draws the poster for birth and c and encodes it as PNG.
func (r *Renderer) Render(ctx context.Context, birth models.BirthData, c *chart.Chart) (art models.ChartArtifact, err error) {
	if err := ctx.Err(); err != nil {
		return models.ChartArtifact{}, err
	}
	if c == nil {
		return models.ChartArtifact{}, fmt.Errorf("no chart to render")
	}

	defer func() {
		if rec := recover(); rec != nil {
			art = models.ChartArtifact{}
			err = fmt.Errorf("poster rendering panic: %v", rec)
		}
	}()

	p := &page{
		Renderer: r,
		dc:       gg.NewContext(r.width, r.height),
		scale:    float64(r.width) / refWidth,
	}

	p.background()
	p.header(birth, c)
	p.wheel(c)
	p.aspectMatrix(c)
	p.distributions(chart.Distribute(c))
	p.footer(birth)

	var buf bytes.Buffer
	if err := p.dc.EncodePNG(&buf); err != nil {
		return models.ChartArtifact{}, fmt.Errorf("encode poster: %w", err)
	}

	return models.ChartArtifact{
		Content:     buf.Bytes(),
		ContentType: ContentType,
		Filename:    Filename,
	}, nil
}

// page is the drawing state of one poster.
type page struct {
	*Renderer
	dc    *gg.Context
	scale float64
}

func (p *page) s(v float64) float64 { return v * p.scale }

func (p *page) face(f *truetype.Font, size float64) font.Face {
	return truetype.NewFace(f, &truetype.Options{Size: math.Max(1, p.s(size)), Hinting: font.HintingFull})
}

func (p *page) text(s string, f *truetype.Font, size, x, y, ax, ay float64, color string) {
	p.dc.SetFontFace(p.face(f, size))
	p.dc.SetHexColor(color)
	p.dc.DrawStringAnchored(s, p.s(x), p.s(y), ax, ay)
}

func (p *page) background() {
	p.dc.SetHexColor("#ffffff")
	p.dc.Clear()
}

func (p *page) header(birth models.BirthData, c *chart.Chart) {
	p.text(birth.FullName(), p.bold, 140, refWidth/2, 200, 0.5, 0.5, "#0a0a0a")

	if birth.Coordinates != nil {
		latlon := fmt.Sprintf("%.4f, %.4f", birth.Coordinates.Lat, birth.Coordinates.Lon)
		p.text(latlon, p.regular, 54, refWidth/2, 340, 0.5, 0.5, "#282828")
	}

	bt := c.BigThree()
	var parts []string
	if bt.Sun != "" {
		parts = append(parts, "Sun in "+title(bt.Sun))
	}
	if bt.Moon != "" {
		parts = append(parts, "Moon in "+title(bt.Moon))
	}
	parts = append(parts, title(bt.Ascendant)+" Rising")
	p.text(strings.Join(parts, "   ·   "), p.regular, 48, refWidth/2, 430, 0.5, 0.5, inkColor)
}

func (p *page) footer(birth models.BirthData) {
	when := birth.Date.Format("02-01-2006")
	if birth.TimeKnown {
		when += " " + birth.Date.Format("15:04")
	} else {
		when += "  (time unknown)"
	}
	bottom := float64(p.height) / p.scale

	p.text(when, p.regular, 54, 80, bottom-200, 0, 0.5, "#1e1e1e")
	p.text(birth.Place, p.regular, 54, refWidth-80, bottom-200, 1, 0.5, "#1e1e1e")
	if p.website != "" {
		p.text(p.website, p.regular, 36, refWidth-80, bottom-70, 1, 0.5, "#3c3c3c")
	}
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
