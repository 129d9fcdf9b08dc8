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

// Package chart talks to the natal chart computation service and derives
// the summary statistics drawn on the poster.
package chart

import (
	"math"
	"strings"
)

// Signs lists the zodiac signs in ecliptic order starting at 0° Aries.
var Signs = []string{
	"aries", "taurus", "gemini", "cancer", "leo", "virgo",
	"libra", "scorpio", "sagittarius", "capricorn", "aquarius", "pisces",
}

// Body is a celestial body position.
type Body struct {
	Name       string  `json:"name"`
	Longitude  float64 `json:"longitude"`
	House      int     `json:"house,omitempty"`
	Retrograde bool    `json:"retrograde,omitempty"`
}

// Sign returns the body's zodiac sign.
func (b Body) Sign() string {
	return SignOf(b.Longitude)
}

// Aspect is an angular relationship between two bodies.
type Aspect struct {
	A    string  `json:"a"`
	B    string  `json:"b"`
	Kind string  `json:"kind"` // conjunction, opposition, trine, square, sextile, quincunx, ...
	Orb  float64 `json:"orb"`
}

// Chart is the computed natal chart.
type Chart struct {
	Bodies    []Body    `json:"bodies"`
	Ascendant float64   `json:"ascendant"`
	Midheaven float64   `json:"midheaven"`
	Houses    []float64 `json:"houses,omitempty"`
	Aspects   []Aspect  `json:"aspects"`
}

// Body returns the named body, if present.
func (c *Chart) Body(name string) (Body, bool) {
	for _, b := range c.Bodies {
		if strings.EqualFold(b.Name, name) {
			return b, true
		}
	}
	return Body{}, false
}

// AspectBetween returns the aspect between two bodies in either order.
func (c *Chart) AspectBetween(a, b string) (Aspect, bool) {
	for _, asp := range c.Aspects {
		if (strings.EqualFold(asp.A, a) && strings.EqualFold(asp.B, b)) ||
			(strings.EqualFold(asp.A, b) && strings.EqualFold(asp.B, a)) {
			return asp, true
		}
	}
	return Aspect{}, false
}

// BigThree holds the sun, moon and ascendant signs.
type BigThree struct {
	Sun       string
	Moon      string
	Ascendant string
}

// BigThree returns the sun, moon and ascendant signs. Missing bodies give
// an empty sign.
func (c *Chart) BigThree() BigThree {
	var bt BigThree
	if b, ok := c.Body("sun"); ok {
		bt.Sun = b.Sign()
	}
	if b, ok := c.Body("moon"); ok {
		bt.Moon = b.Sign()
	}
	bt.Ascendant = SignOf(c.Ascendant)
	return bt
}

// Normalize maps a longitude into [0, 360).
func Normalize(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// SignOf returns the zodiac sign containing longitude.
func SignOf(longitude float64) string {
	idx := int(Normalize(longitude) / 30)
	if idx >= len(Signs) {
		idx = len(Signs) - 1
	}
	return Signs[idx]
}

// DegreeInSign returns the position within the sign, in degrees.
func DegreeInSign(longitude float64) float64 {
	return math.Mod(Normalize(longitude), 30)
}
