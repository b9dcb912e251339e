/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// This file defines the value types shared by the stroke core and its host-side
// collaborators. All of them are plain data: created per call, never shared.

import (
	"errors"
	"fmt"
	"math"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Image is an RGBA pixel buffer: 4 bytes per pixel (R,G,B,A), row-major, no padding,
// non-premultiplied alpha. len(Pix) must equal Width*Height*4.
type Image struct {
	Pix    []byte
	Width  int
	Height int
}

// NewImage allocates a fully transparent image.
func NewImage(width, height int) Image {
	if width < 0 || height < 0 {
		width, height = 0, 0
	}
	return Image{Pix: make([]byte, width*height*4), Width: width, Height: height}
}

// ErrDimensionMismatch reports a buffer whose length does not match its dimensions.
var ErrDimensionMismatch = errors.New("pixel buffer length does not match dimensions")

// Validate checks the buffer/dimension contract.
func (im Image) Validate() error {
	if im.Width < 0 || im.Height < 0 {
		return fmt.Errorf("%w: negative size %dx%d", ErrDimensionMismatch, im.Width, im.Height)
	}
	if want := im.Width * im.Height * 4; len(im.Pix) != want {
		return fmt.Errorf("%w: got %d bytes, want %d for %dx%d", ErrDimensionMismatch, len(im.Pix), want, im.Width, im.Height)
	}
	return nil
}

// Alpha returns the alpha byte of pixel (x, y).
func (im Image) Alpha(x, y int) uint8 { return im.Pix[(y*im.Width+x)*4+3] }

// Clone returns a deep copy of the image.
func (im Image) Clone() Image {
	return Image{Pix: append([]byte(nil), im.Pix...), Width: im.Width, Height: im.Height}
}

// Point is an integer pixel coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Dist returns the Euclidean distance between two points.
func (p Point) Dist(o Point) float64 {
	return math.Hypot(float64(p.X-o.X), float64(p.Y-o.Y))
}

// Bounds is an inclusive pixel bounding box. When HasContent is false the
// box is all zero and must not be used for geometry.
type Bounds struct {
	MinX       int  `json:"minX"`
	MinY       int  `json:"minY"`
	MaxX       int  `json:"maxX"`
	MaxY       int  `json:"maxY"`
	HasContent bool `json:"hasContent"`
}

// Width is the inclusive pixel width, 0 for empty bounds.
func (b Bounds) Width() int {
	if !b.HasContent {
		return 0
	}
	return b.MaxX - b.MinX + 1
}

// Height is the inclusive pixel height, 0 for empty bounds.
func (b Bounds) Height() int {
	if !b.HasContent {
		return 0
	}
	return b.MaxY - b.MinY + 1
}

// Area is Width*Height.
func (b Bounds) Area() int { return b.Width() * b.Height() }

// Contains reports whether p lies inside the box.
func (b Bounds) Contains(p Point) bool {
	return b.HasContent && p.X >= b.MinX && p.X <= b.MaxX && p.Y >= b.MinY && p.Y <= b.MaxY
}

func (b Bounds) String() string {
	if !b.HasContent {
		return "empty"
	}
	return fmt.Sprintf("(%d,%d)-(%d,%d)", b.MinX, b.MinY, b.MaxX, b.MaxY)
}

// Color is an RGB stroke color with channels in [0,1].
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// Black is the default stroke color.
var Black = Color{}

// RGBA8 converts to opaque 8-bit channels, rounding and clamping.
func (c Color) RGBA8() [4]uint8 {
	return [4]uint8{to8(c.R), to8(c.G), to8(c.B), 255}
}

func to8(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(v * 255))
}

// Hex renders the color as #rrggbb.
func (c Color) Hex() string {
	return colorful.Color{R: clamp01(c.R), G: clamp01(c.G), B: clamp01(c.B)}.Hex()
}

// ParseColor accepts #rgb / #rrggbb hex strings (leading # optional).
func ParseColor(s string) (Color, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Color{}, errors.New("empty color")
	}
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return Color{}, fmt.Errorf("parse color %q: %w", s, err)
	}
	return Color{R: c.R, G: c.G, B: c.B}, nil
}

func clamp01(v float64) float64 { return math.Max(0, math.Min(1, v)) }

// Side selects which band of pixels a raster stroke paints.
type Side string

const (
	// SideInside paints foreground pixels close to the silhouette edge.
	SideInside Side = "inside"
	// SideOutside paints transparent pixels close to the silhouette.
	SideOutside Side = "outside"
)

// ParseSide maps user input to a Side; empty means inside.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case "", SideInside:
		return SideInside, nil
	case SideOutside:
		return SideOutside, nil
	}
	return "", fmt.Errorf("unknown stroke side %q", s)
}

// Params are the caller-supplied stroke parameters.
type Params struct {
	StrokeWidth float64 `json:"strokeWidth"`
	StrokeColor Color   `json:"strokeColor"`
	Side        Side    `json:"side,omitempty"`
}

// DefaultParams mirrors the CLI defaults.
func DefaultParams() Params {
	return Params{StrokeWidth: 4, StrokeColor: Black, Side: SideInside}
}
