/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package contour extracts boundary polylines from binary masks using Moore
// neighbour tracing with 8-connectivity.
//
// Two variants exist. TraceOuter follows the single outer boundary of a mask
// inside a content box; the returned points end with the start point when the
// trace closes. TraceAll repeatedly traces from the first unconsumed
// foreground pixel until the mask is exhausted; each pixel belongs to at most
// one contour and closure is implicit (the start point is not repeated).
package contour

import (
	"log/slog"

	"imagestroke/internal/domain"
	applog "imagestroke/internal/log"
	"imagestroke/internal/mask"
)

// Moore neighbourhood in clockwise order: E, SE, S, SW, W, NW, N, NE.
var (
	mooreDX = [8]int{1, 1, 0, -1, -1, -1, 0, 1}
	mooreDY = [8]int{0, 1, 1, 1, 0, -1, -1, -1}
)

// Status tells how a trace ended.
type Status uint8

const (
	// Closed means the walk returned to its start pixel.
	Closed Status = iota
	// Stuck means no eligible neighbour was found; the points are still usable.
	Stuck
	// CapReached means the iteration limit stopped the walk.
	CapReached
)

func (s Status) String() string {
	switch s {
	case Closed:
		return "closed"
	case Stuck:
		return "stuck"
	case CapReached:
		return "cap_reached"
	default:
		return "unknown"
	}
}

// Contour is an ordered boundary polyline.
type Contour struct {
	Points []domain.Point
	Status Status
}

// Closed reports whether the trace returned to its start.
func (c Contour) Closed() bool { return c.Status == Closed }

// entryDir returns the index of the direction pointing from cur back to prev.
// Non-adjacent prev defaults to east.
func entryDir(cur, prev domain.Point) int {
	for k := 0; k < 8; k++ {
		if cur.X+mooreDX[k] == prev.X && cur.Y+mooreDY[k] == prev.Y {
			return k
		}
	}
	return 0
}

// nextNeighbour scans clockwise starting one step past the entry direction and
// returns the first neighbour accepted by ok.
func nextNeighbour(cur, prev domain.Point, ok func(domain.Point) bool) (domain.Point, bool) {
	entry := entryDir(cur, prev)
	for i := 0; i < 8; i++ {
		k := (entry + 1 + i) % 8
		n := domain.Point{X: cur.X + mooreDX[k], Y: cur.Y + mooreDY[k]}
		if ok(n) {
			return n, true
		}
	}
	return domain.Point{}, false
}

// TraceOuter traces the outer boundary of m starting at the first foreground
// pixel of b in row-major order. Empty bounds or a box without foreground give
// an empty contour. The walk is capped at 4x the box area.
func TraceOuter(m *mask.Mask, b domain.Bounds) Contour {
	l := applog.WithOperation(applog.WithComponent("contour"), "trace_outer")
	if !b.HasContent {
		l.Debug("no content")
		return Contour{}
	}
	start, found := firstInBounds(m, b)
	if !found {
		l.Debug("no start pixel within bounds", slog.String("bounds", b.String()))
		return Contour{}
	}

	pts := []domain.Point{start}
	cur, prev := start, domain.Point{X: start.X - 1, Y: start.Y}
	limit := b.Area() * 4
	inside := func(p domain.Point) bool { return m.At(p.X, p.Y) }

	for iterations := 1; ; iterations++ {
		next, ok := nextNeighbour(cur, prev, inside)
		if !ok {
			l.Warn("trace stuck", slog.Int("x", cur.X), slog.Int("y", cur.Y), slog.Int("points", len(pts)))
			return Contour{Points: pts, Status: Stuck}
		}
		prev, cur = cur, next
		pts = append(pts, cur)
		if cur == start {
			l.Debug("trace closed", slog.Int("points", len(pts)))
			return Contour{Points: pts, Status: Closed}
		}
		if iterations >= limit {
			l.Warn("iteration cap reached", slog.Int("cap", limit), slog.Int("points", len(pts)))
			return Contour{Points: pts, Status: CapReached}
		}
	}
}

func firstInBounds(m *mask.Mask, b domain.Bounds) (domain.Point, bool) {
	for y := b.MinY; y <= b.MaxY; y++ {
		for x := b.MinX; x <= b.MaxX; x++ {
			if m.At(x, y) {
				return domain.Point{X: x, Y: y}, true
			}
		}
	}
	return domain.Point{}, false
}

// Pixel states used by TraceAll.
const (
	background = 0
	unvisited  = 1
	consumed   = 2
)

// TraceAll extracts every contour of m. The mask itself is not modified.
// Each trace is capped at 2x the mask area.
func TraceAll(m *mask.Mask) []Contour {
	l := applog.WithOperation(applog.WithComponent("contour"), "trace_all")
	w, h := m.Width, m.Height
	state := append([]uint8(nil), m.Bits...)
	limit := w * h * 2

	var out []Contour
	open := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if state[y*w+x] != unvisited {
				continue
			}
			c := traceFrom(state, w, h, domain.Point{X: x, Y: y}, limit)
			if c.Status == CapReached {
				l.Warn("iteration cap reached", slog.Int("x", x), slog.Int("y", y), slog.Int("cap", limit))
			}
			if c.Status != Closed {
				open++
				l.Debug("contour did not close",
					slog.Int("x", x), slog.Int("y", y),
					slog.Int("points", len(c.Points)), slog.String("status", c.Status.String()))
			}
			out = append(out, c)
		}
	}
	if open > 0 {
		l.Warn("open contours traced", slog.Int("open", open), slog.Int("total", len(out)))
	}
	l.Debug("contours traced", slog.Int("count", len(out)))
	return out
}

func traceFrom(state []uint8, w, h int, start domain.Point, limit int) Contour {
	state[start.Y*w+start.X] = consumed
	pts := []domain.Point{start}
	cur, prev := start, domain.Point{X: start.X - 1, Y: start.Y}

	eligible := func(p domain.Point) bool {
		if p == start {
			return len(pts) >= 2
		}
		return p.X >= 0 && p.Y >= 0 && p.X < w && p.Y < h && state[p.Y*w+p.X] == unvisited
	}

	for iterations := 1; ; iterations++ {
		next, ok := nextNeighbour(cur, prev, eligible)
		if !ok {
			return Contour{Points: pts, Status: Stuck}
		}
		prev, cur = cur, next
		if cur == start {
			return Contour{Points: pts, Status: Closed}
		}
		state[cur.Y*w+cur.X] = consumed
		pts = append(pts, cur)
		if iterations >= limit {
			return Contour{Points: pts, Status: CapReached}
		}
	}
}
