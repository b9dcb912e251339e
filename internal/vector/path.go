/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

// Path model and the textual move/line/close form exchanged with hosts.

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"imagestroke/internal/domain"
)

type PathOp uint8

const (
	MoveTo PathOp = iota
	LineTo
	QuadTo  // quadratic bezier (cx, cy, x, y)
	CubicTo // cubic bezier (cx1, cy1, cx2, cy2, x, y)
	Close
)

// letter is the path-data command for each op.
var letter = [...]byte{MoveTo: 'M', LineTo: 'L', QuadTo: 'Q', CubicTo: 'C', Close: 'Z'}

// arity is the number of coordinates each op carries.
var arity = [...]int{MoveTo: 2, LineTo: 2, QuadTo: 4, CubicTo: 6, Close: 0}

type PathCmd struct {
	Op   PathOp
	Data [6]float32 // enough for cubic; unused slots are zero
}

type Path struct{ Cmds []PathCmd }

// ErrSyntax is returned by Parse for malformed path data.
var ErrSyntax = errors.New("path syntax error")

func (p *Path) MoveTo(x, y float32) {
	p.Cmds = append(p.Cmds, PathCmd{Op: MoveTo, Data: [6]float32{x, y}})
}
func (p *Path) LineTo(x, y float32) {
	p.Cmds = append(p.Cmds, PathCmd{Op: LineTo, Data: [6]float32{x, y}})
}
func (p *Path) QuadTo(cx, cy, x, y float32) {
	p.Cmds = append(p.Cmds, PathCmd{Op: QuadTo, Data: [6]float32{cx, cy, x, y}})
}
func (p *Path) CubicTo(cx1, cy1, cx2, cy2, x, y float32) {
	p.Cmds = append(p.Cmds, PathCmd{Op: CubicTo, Data: [6]float32{cx1, cy1, cx2, cy2, x, y}})
}
func (p *Path) Close() { p.Cmds = append(p.Cmds, PathCmd{Op: Close}) }

// Empty reports whether the path draws nothing.
func (p Path) Empty() bool { return len(p.Cmds) == 0 }

// AddPolyline appends a move to the first point and a line to each following
// point, plus a close command when closed is set. Nothing is appended for an
// empty slice.
func (p *Path) AddPolyline(pts []domain.Point, closed bool) {
	if len(pts) == 0 {
		return
	}
	p.MoveTo(float32(pts[0].X), float32(pts[0].Y))
	for _, q := range pts[1:] {
		p.LineTo(float32(q.X), float32(q.Y))
	}
	if closed {
		p.Close()
	}
}

// FromPoints builds a single-subpath polyline.
func FromPoints(pts []domain.Point, closed bool) Path {
	var p Path
	p.AddPolyline(pts, closed)
	return p
}

// String renders the path as space separated commands and coordinates,
// e.g. "M 5 5 L 14 5 Z". Coordinates use the shortest exact decimal form.
func (p Path) String() string {
	var b strings.Builder
	for i, c := range p.Cmds {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteByte(letter[c.Op])
		for k := 0; k < arity[c.Op]; k++ {
			b.WriteByte(' ')
			b.WriteString(strconv.FormatFloat(float64(c.Data[k]), 'f', -1, 32))
		}
	}
	return b.String()
}

// Parse reads path data made of M, L, Q, C and Z commands separated by
// whitespace or commas. Implicit command repetition is accepted after the
// first coordinate group. Relative (lower-case) commands are not supported.
func Parse(s string) (Path, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n' || r == '\r'
	})
	var p Path
	op, have := PathOp(0), false
	for i := 0; i < len(fields); {
		f := fields[i]
		if next, ok := opFor(f); ok {
			op, have = next, true
			i++
			if op == Close {
				p.Close()
				have = false
				continue
			}
		} else if !have {
			return Path{}, fmt.Errorf("%w: unexpected %q at token %d", ErrSyntax, f, i)
		}
		n := arity[op]
		if i+n > len(fields) {
			return Path{}, fmt.Errorf("%w: %c needs %d numbers", ErrSyntax, letter[op], n)
		}
		cmd := PathCmd{Op: op}
		for k := 0; k < n; k++ {
			v, err := strconv.ParseFloat(fields[i+k], 32)
			if err != nil {
				return Path{}, fmt.Errorf("%w: bad number %q", ErrSyntax, fields[i+k])
			}
			cmd.Data[k] = float32(v)
		}
		if len(p.Cmds) == 0 && op != MoveTo {
			return Path{}, fmt.Errorf("%w: path must start with M", ErrSyntax)
		}
		p.Cmds = append(p.Cmds, cmd)
		i += n
		// Extra coordinate pairs after a move are implicit line-tos.
		if op == MoveTo {
			op = LineTo
		}
	}
	return p, nil
}

func opFor(tok string) (PathOp, bool) {
	if len(tok) != 1 {
		return 0, false
	}
	for op, l := range letter {
		if tok[0] == l {
			return PathOp(op), true
		}
	}
	return 0, false
}

// Transform returns a copy of p with every coordinate mapped through m.
func (p Path) Transform(m Affine2D) Path {
	out := Path{Cmds: make([]PathCmd, len(p.Cmds))}
	for i, c := range p.Cmds {
		for k := 0; k+1 < arity[c.Op]; k += 2 {
			q := m.Apply(Pt{c.Data[k], c.Data[k+1]})
			c.Data[k], c.Data[k+1] = q.X, q.Y
		}
		out.Cmds[i] = c
	}
	return out
}

// Subpath is a flattened run of points starting at a move command.
type Subpath struct {
	Pts    []Pt
	Closed bool
}

// Subpaths flattens p into polylines. Curves contribute their end point only,
// which is exact for the polylines produced by stroke extraction.
func (p Path) Subpaths() []Subpath {
	var out []Subpath
	var cur *Subpath
	for _, c := range p.Cmds {
		switch c.Op {
		case MoveTo:
			out = append(out, Subpath{Pts: []Pt{{c.Data[0], c.Data[1]}}})
			cur = &out[len(out)-1]
		case LineTo, QuadTo, CubicTo:
			if cur == nil {
				continue
			}
			n := arity[c.Op]
			cur.Pts = append(cur.Pts, Pt{c.Data[n-2], c.Data[n-1]})
		case Close:
			if cur != nil {
				cur.Closed = true
				cur = nil
			}
		}
	}
	return out
}

// Bounds returns an axis-aligned bounding box of the path using a simple
// approximation by considering control points.
func (p Path) Bounds() Rect {
	minX, minY := float32(+1e9), float32(+1e9)
	maxX, maxY := float32(-1e9), float32(-1e9)
	for _, c := range p.Cmds {
		for k := 0; k+1 < arity[c.Op]; k += 2 {
			x, y := c.Data[k], c.Data[k+1]
			minX, minY = min(minX, x), min(minY, y)
			maxX, maxY = max(maxX, x), max(maxY, y)
		}
	}
	if minX > maxX || minY > maxY {
		return Rect{}
	}
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}
