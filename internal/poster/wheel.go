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

package poster

import (
	"math"
	"strings"

	"github.com/profwarlock/natalmail/internal/chart"
)

// Wheel geometry in reference coordinates.
const (
	wheelCX     = refWidth / 2
	wheelCY     = 1350.0
	wheelRadius = 800.0
)

var bodyGlyphs = map[string]string{
	"sun": "Su", "moon": "Mo", "mercury": "Me", "venus": "Ve", "mars": "Ma",
	"jupiter": "Ju", "saturn": "Sa", "uranus": "Ur", "neptune": "Ne", "pluto": "Pl",
	"asc_node": "No", "chiron": "Ch",
}

var aspectGlyphs = map[string]string{
	"conjunction": "Cnj", "opposition": "Opp", "trine": "Tri", "square": "Sqr",
	"sextile": "Sxt", "quincunx": "Qnx", "semisextile": "SSx",
	"semisquare": "SSq", "sesquiquadrate": "Ses",
}

func glyph(body string) string {
	if g, ok := bodyGlyphs[strings.ToLower(body)]; ok {
		return g
	}
	if len(body) > 2 {
		return title(strings.ToLower(body[:2]))
	}
	return title(body)
}

func hardAspect(kind string) bool {
	switch strings.ToLower(kind) {
	case "opposition", "square", "semisquare", "sesquiquadrate":
		return true
	}
	return false
}

// point returns the reference-space position of a longitude at radius r,
// with the ascendant on the left and longitude increasing counterclockwise.
func point(asc, longitude, r float64) (float64, float64) {
	a := math.Pi + (longitude-asc)*math.Pi/180
	return wheelCX + r*math.Cos(a), wheelCY - r*math.Sin(a)
}

func (p *page) line(x1, y1, x2, y2 float64) {
	p.dc.DrawLine(p.s(x1), p.s(y1), p.s(x2), p.s(y2))
	p.dc.Stroke()
}

func (p *page) wheel(c *chart.Chart) {
	dc := p.dc
	outer, inner, bodyR, aspectR := wheelRadius, wheelRadius*0.85, wheelRadius*0.72, wheelRadius*0.5

	dc.SetHexColor(inkColor)
	dc.SetLineWidth(p.s(4))
	for _, r := range []float64{outer, inner, aspectR} {
		dc.DrawCircle(p.s(wheelCX), p.s(wheelCY), p.s(r))
		dc.Stroke()
	}

	// Sign ring.
	dc.SetLineWidth(p.s(2))
	for i, sign := range chart.Signs {
		start := float64(i * 30)
		x1, y1 := point(c.Ascendant, start, inner)
		x2, y2 := point(c.Ascendant, start, outer)
		p.dc.SetHexColor(inkColor)
		p.line(x1, y1, x2, y2)

		lx, ly := point(c.Ascendant, start+15, (inner+outer)/2)
		p.text(title(sign[:3]), p.regular, 40, lx, ly, 0.5, 0.5, inkColor)
	}

	// Horizon and meridian.
	dc.SetHexColor(faintColor)
	dc.SetLineWidth(p.s(2))
	x1, y1 := point(c.Ascendant, c.Ascendant, inner)
	x2, y2 := point(c.Ascendant, c.Ascendant+180, inner)
	p.line(x1, y1, x2, y2)
	x1, y1 = point(c.Ascendant, c.Midheaven, inner)
	x2, y2 = point(c.Ascendant, c.Midheaven+180, inner)
	p.line(x1, y1, x2, y2)
	ax, ay := point(c.Ascendant, c.Ascendant, outer+60)
	p.text("ASC", p.bold, 36, ax, ay, 0.5, 0.5, inkColor)
	mx, my := point(c.Ascendant, c.Midheaven, outer+60)
	p.text("MC", p.bold, 36, mx, my, 0.5, 0.5, inkColor)

	// Aspect chords.
	for _, asp := range c.Aspects {
		a, okA := c.Body(asp.A)
		b, okB := c.Body(asp.B)
		if !okA || !okB || strings.EqualFold(asp.Kind, "conjunction") {
			continue
		}
		dc.SetHexColor(inkColor)
		dc.SetLineWidth(p.s(3))
		if hardAspect(asp.Kind) {
			dc.SetDash()
		} else {
			dc.SetDash(p.s(14), p.s(10))
		}
		x1, y1 := point(c.Ascendant, a.Longitude, aspectR)
		x2, y2 := point(c.Ascendant, b.Longitude, aspectR)
		p.line(x1, y1, x2, y2)
	}
	dc.SetDash()

	// Bodies.
	for _, b := range c.Bodies {
		x, y := point(c.Ascendant, b.Longitude, inner)
		dc.SetHexColor(inkColor)
		dc.DrawCircle(p.s(x), p.s(y), p.s(9))
		dc.Fill()

		label := glyph(b.Name)
		if b.Retrograde {
			label += "r"
		}
		lx, ly := point(c.Ascendant, b.Longitude, bodyR)
		p.text(label, p.bold, 42, lx, ly, 0.5, 0.5, inkColor)
	}
}

// Aspect matrix geometry in reference coordinates.
const (
	matrixX    = 120.0
	matrixY    = 2300.0
	matrixCell = 75.0
)

// aspectMatrix draws the lower triangle of the aspect grid: one row per
// body, one column per earlier body, labels along the diagonal.
func (p *page) aspectMatrix(c *chart.Chart) {
	bodies := c.Bodies
	if len(bodies) > 12 {
		bodies = bodies[:12]
	}
	p.text("Aspects", p.bold, 48, matrixX, matrixY-60, 0, 0.5, inkColor)

	p.dc.SetLineWidth(p.s(2))
	for i, row := range bodies {
		y := matrixY + float64(i)*matrixCell
		for j := 0; j < i; j++ {
			x := matrixX + float64(j)*matrixCell
			p.dc.SetHexColor(inkColor)
			p.dc.DrawRectangle(p.s(x), p.s(y), p.s(matrixCell), p.s(matrixCell))
			p.dc.Stroke()

			if asp, ok := c.AspectBetween(row.Name, bodies[j].Name); ok {
				g, known := aspectGlyphs[strings.ToLower(asp.Kind)]
				if !known {
					g = title(strings.ToLower(asp.Kind))
					if len(g) > 3 {
						g = g[:3]
					}
				}
				p.text(g, p.regular, 26, x+matrixCell/2, y+matrixCell/2, 0.5, 0.5, inkColor)
			}
		}
		lx := matrixX + float64(i)*matrixCell
		p.text(glyph(row.Name), p.bold, 32, lx+matrixCell/2, y+matrixCell/2, 0.5, 0.5, inkColor)
	}
}

// Distribution panel geometry in reference coordinates.
const (
	panelX      = 1260.0
	panelY      = 2240.0
	panelWidth  = 1100.0
	panelRow    = 64.0
	panelHeader = 70.0
	panelGap    = 30.0
)

func (p *page) distributions(d chart.Distribution) {
	y := panelY
	for _, section := range []struct {
		title  string
		groups []chart.Group
	}{
		{"Elements", d.Element},
		{"Modalities", d.Modality},
		{"Polarities", d.Polarity},
		{"Hemispheres", d.Hemisphere},
	} {
		y = p.panel(section.title, section.groups, y) + panelGap
	}
}

// panel draws one titled distribution panel and returns its bottom edge.
func (p *page) panel(name string, groups []chart.Group, top float64) float64 {
	height := panelHeader + float64(len(groups))*panelRow
	p.dc.SetHexColor(inkColor)
	p.dc.DrawRectangle(p.s(panelX), p.s(top), p.s(panelWidth), p.s(height))
	p.dc.Fill()

	p.text(name, p.bold, 40, panelX+30, top+panelHeader/2, 0, 0.5, paperColor)

	for i, g := range groups {
		y := top + panelHeader + float64(i)*panelRow + panelRow/2
		p.text(title(g.Name), p.regular, 34, panelX+30, y, 0, 0.5, paperColor)

		glyphs := make([]string, 0, len(g.Bodies))
		for _, b := range g.Bodies {
			glyphs = append(glyphs, glyph(b))
		}
		p.text(strings.Join(glyphs, " "), p.regular, 34, panelX+320, y, 0, 0.5, paperColor)
	}
	return top + height
}
