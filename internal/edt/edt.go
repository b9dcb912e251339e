/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package edt computes exact Euclidean distance transforms of binary masks
// with Meijster's two-phase algorithm: a per-column vertical scan followed by
// a per-row lower envelope of parabolas f(x,i) = (x-i)^2 + g(i)^2.
package edt

import (
	"math"

	"imagestroke/internal/mask"
)

// Map holds floor(Euclidean distance) per pixel, row-major. The exact squared
// distances are kept alongside for Edge.
type Map struct {
	D      []int
	Width  int
	Height int

	sq []int
}

// Compute returns, for every pixel, the floored distance to the nearest
// background (mask == 0) pixel. Background pixels are 0, foreground pixels >= 1.
// Pixels outside the image are never considered background. A mask without
// any background yields values >= Width+Height everywhere.
func Compute(m *mask.Mask) *Map { return transform(m, 0) }

// ComputeOutside is the complementary transform: the floored distance from
// every pixel to the nearest foreground pixel. Foreground pixels are 0.
func ComputeOutside(m *mask.Mask) *Map { return transform(m, 1) }

// At returns the distance at (x, y).
func (d *Map) At(x, y int) int { return d.D[y*d.Width+x] }

// Max returns the largest distance in the map.
func (d *Map) Max() int {
	best := 0
	for _, v := range d.D {
		best = max(best, v)
	}
	return best
}

// Ring selects the pixels whose floored distance equals level. Ring(1) also
// holds the pixels at sqrt(2) and sqrt(3), so it is two pixels thick on
// diagonal edges.
func (d *Map) Ring(level int) *mask.Mask {
	r := mask.New(d.Width, d.Height)
	for i, v := range d.D {
		if v == level {
			r.Bits[i] = 1
		}
	}
	return r
}

// Edge selects the pixels whose distance is exactly 1: foreground pixels with
// a 4-connected background neighbour. It is one pixel thin in 8-connectivity,
// so a Moore trace of a convex blob's edge consumes it in a single loop.
func (d *Map) Edge() *mask.Mask {
	r := mask.New(d.Width, d.Height)
	for i, v := range d.sq {
		if v == 1 {
			r.Bits[i] = 1
		}
	}
	return r
}

// transform measures distances to the pixels whose mask bit equals feature.
func transform(m *mask.Mask, feature uint8) *Map {
	w, h := m.Width, m.Height
	out := &Map{D: make([]int, w*h), Width: w, Height: h, sq: make([]int, w*h)}
	if w == 0 || h == 0 {
		return out
	}
	b := m.Bits
	// Larger than any in-image distance, so a column without features never wins.
	inf := w + h
	g := make([]int, w*h)

	// Phase 1: vertical distance to the nearest feature in the same column.
	for x := 0; x < w; x++ {
		if b[x] == feature {
			g[x] = 0
		} else {
			g[x] = inf
		}
		for y := 1; y < h; y++ {
			i := y*w + x
			if b[i] == feature {
				g[i] = 0
			} else {
				g[i] = 1 + g[i-w]
			}
		}
		for y := h - 2; y >= 0; y-- {
			i := y*w + x
			if g[i+w] < g[i] {
				g[i] = 1 + g[i+w]
			}
		}
	}

	// Phase 2: lower envelope per row.
	s := make([]int, w) // candidate columns
	t := make([]int, w) // first x where s[q] is the minimiser
	for y := 0; y < h; y++ {
		row := g[y*w : (y+1)*w]
		q := 0
		s[0], t[0] = 0, 0

		for u := 1; u < w; u++ {
			for q >= 0 && edtF(t[q], s[q], row[s[q]]) > edtF(t[q], u, row[u]) {
				q--
			}
			if q < 0 {
				q = 0
				s[0] = u
				continue
			}
			sep := 1 + edtSep(s[q], u, row[s[q]], row[u])
			if sep < w {
				q++
				s[q] = u
				t[q] = sep
			}
		}

		dst := out.D[y*w : (y+1)*w]
		sq := out.sq[y*w : (y+1)*w]
		for u := w - 1; u >= 0; u-- {
			sq[u] = edtF(u, s[q], row[s[q]])
			dst[u] = isqrt(sq[u])
			if u == t[q] {
				q--
			}
		}
	}
	return out
}

func edtF(x, i, gi int) int { return (x-i)*(x-i) + gi*gi }

// edtSep is the abscissa after which column u beats column i (i < u).
func edtSep(i, u, gi, gu int) int {
	return floorDiv(u*u-i*i+gu*gu-gi*gi, 2*(u-i))
}

// floorDiv rounds towards negative infinity; b must be positive.
func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && a < 0 {
		q--
	}
	return q
}

func isqrt(v int) int {
	r := int(math.Sqrt(float64(v)))
	for r*r > v {
		r--
	}
	for (r+1)*(r+1) <= v {
		r++
	}
	return r
}
