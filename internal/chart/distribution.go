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

package chart

// Group is one category of a distribution with the bodies that fall in it.
type Group struct {
	Name   string
	Bodies []string
}

// Distribution groups bodies by element, modality, polarity and hemisphere.
type Distribution struct {
	Element    []Group
	Modality   []Group
	Polarity   []Group
	Hemisphere []Group
}

var (
	elementOrder    = []string{"fire", "earth", "air", "water"}
	modalityOrder   = []string{"cardinal", "fixed", "mutable"}
	polarityOrder   = []string{"positive", "negative"}
	hemisphereOrder = []string{"left", "right", "above", "below"}
)

// ElementOf returns the element of a sign.
func ElementOf(sign string) string {
	return elementOrder[signIndex(sign)%4]
}

// ModalityOf returns the modality of a sign.
func ModalityOf(sign string) string {
	return modalityOrder[signIndex(sign)%3]
}

// PolarityOf returns the polarity of a sign; fire and air are positive.
func PolarityOf(sign string) string {
	return polarityOrder[signIndex(sign)%2]
}

func signIndex(sign string) int {
	for i, s := range Signs {
		if s == sign {
			return i
		}
	}
	return 0
}

// Distribute computes the distribution of the chart's bodies. Hemispheres
// are measured against the horizon (ascendant) and meridian (midheaven):
// "left" is the eastern half, "above" the half above the horizon.
func Distribute(c *Chart) Distribution {
	element := newGroups(elementOrder)
	modality := newGroups(modalityOrder)
	polarity := newGroups(polarityOrder)
	hemisphere := newGroups(hemisphereOrder)

	for _, b := range c.Bodies {
		sign := b.Sign()
		element.add(ElementOf(sign), b.Name)
		modality.add(ModalityOf(sign), b.Name)
		polarity.add(PolarityOf(sign), b.Name)

		if Normalize(b.Longitude-c.Midheaven) < 180 {
			hemisphere.add("left", b.Name)
		} else {
			hemisphere.add("right", b.Name)
		}
		if Normalize(b.Longitude-c.Ascendant) < 180 {
			hemisphere.add("below", b.Name)
		} else {
			hemisphere.add("above", b.Name)
		}
	}

	return Distribution{
		Element:    element.list(),
		Modality:   modality.list(),
		Polarity:   polarity.list(),
		Hemisphere: hemisphere.list(),
	}
}

type groupSet struct {
	order  []string
	bodies map[string][]string
}

func newGroups(order []string) *groupSet {
	return &groupSet{order: order, bodies: make(map[string][]string, len(order))}
}

func (g *groupSet) add(name, body string) {
	g.bodies[name] = append(g.bodies[name], body)
}

func (g *groupSet) list() []Group {
	out := make([]Group, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, Group{Name: name, Bodies: g.bodies[name]})
	}
	return out
}
