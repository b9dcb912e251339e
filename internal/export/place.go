/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"

	"imagestroke/internal/domain"
	"imagestroke/internal/vector"
)

// Placement positions a vector stroke over a host frame that displays the
// source image scaled to Target.
type Placement struct {
	Target         vector.Rect
	ScaleX, ScaleY float32
	// Frame of the stroke content in target space.
	X, Y, W, H float32
}

// Place maps content bounds of an origW x origH image into target. The
// content extent is MaxX-MinX by MaxY-MinY, matching the path extent of a
// traced outline.
func Place(b domain.Bounds, origW, origH int, target vector.Rect) (Placement, error) {
	if !b.HasContent {
		return Placement{}, fmt.Errorf("%w: content bounds are missing", ErrInvalidPlacement)
	}
	if origW <= 0 || origH <= 0 {
		return Placement{}, fmt.Errorf("%w: original size %dx%d", ErrInvalidPlacement, origW, origH)
	}
	sx := target.W / float32(origW)
	sy := target.H / float32(origH)
	p := Placement{
		Target: target,
		ScaleX: sx,
		ScaleY: sy,
		X:      target.X + float32(b.MinX)*sx,
		Y:      target.Y + float32(b.MinY)*sy,
		W:      float32(b.MaxX-b.MinX) * sx,
		H:      float32(b.MaxY-b.MinY) * sy,
	}
	if p.Frame().Empty() {
		return Placement{}, fmt.Errorf("%w: stroke size %gx%g", ErrInvalidPlacement, p.W, p.H)
	}
	return p, nil
}

// Transform maps original pixel coordinates into target space.
func (p Placement) Transform() vector.Affine2D {
	return vector.Translate(p.Target.X, p.Target.Y).Mul(vector.Scale(p.ScaleX, p.ScaleY))
}

// Frame is the stroke content rectangle in target space.
func (p Placement) Frame() vector.Rect { return vector.R(p.X, p.Y, p.W, p.H) }
