/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package mask turns an RGBA buffer into a binary opacity mask and finds the
// bounding box of its opaque content. Both use the same predicate:
// a pixel is foreground iff alpha >= threshold.
package mask

import (
	"imagestroke/internal/domain"
)

// Mask is a row-major grid of 0/1 flags.
type Mask struct {
	Bits   []uint8
	Width  int
	Height int
}

// New allocates an all-background mask.
func New(width, height int) *Mask {
	return &Mask{Bits: make([]uint8, width*height), Width: width, Height: height}
}

// FromImage classifies every pixel of img against threshold.
// The buffer/dimension contract is the caller's responsibility.
func FromImage(img domain.Image, threshold uint8) *Mask {
	m := New(img.Width, img.Height)
	for i := range m.Bits {
		if img.Pix[i*4+3] >= threshold {
			m.Bits[i] = 1
		}
	}
	return m
}

// At reports whether (x, y) is foreground. Out-of-range coordinates are background.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Bits[y*m.Width+x] == 1
}

// Set marks (x, y) as foreground.
func (m *Mask) Set(x, y int) { m.Bits[y*m.Width+x] = 1 }

// Count returns the number of foreground pixels.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b == 1 {
			n++
		}
	}
	return n
}

// Bounds returns the tight inclusive box around foreground pixels.
func (m *Mask) Bounds() domain.Bounds {
	return scan(m.Width, m.Height, func(i int) bool { return m.Bits[i] == 1 })
}

// DetectBounds finds the content box of img without building a mask.
// It uses the same alpha >= threshold predicate as FromImage.
func DetectBounds(img domain.Image, threshold uint8) domain.Bounds {
	return scan(img.Width, img.Height, func(i int) bool { return img.Pix[i*4+3] >= threshold })
}

func scan(w, h int, opaque func(i int) bool) domain.Bounds {
	minX, minY := w, h
	maxX, maxY := 0, 0
	found := false
	for y := 0; y < h; y++ {
		row := y * w
		for x := 0; x < w; x++ {
			if !opaque(row + x) {
				continue
			}
			found = true
			minX = min(minX, x)
			minY = min(minY, y)
			maxX = max(maxX, x)
			maxY = max(maxY, y)
		}
	}
	if !found {
		return domain.Bounds{}
	}
	return domain.Bounds{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY, HasContent: true}
}
