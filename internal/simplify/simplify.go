/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package simplify reduces polylines with the Ramer-Douglas-Peucker algorithm.
// The implementation uses an explicit work stack so very long contours cannot
// exhaust the goroutine stack; the output matches the classic recursive form.
package simplify

import (
	"math"

	"imagestroke/internal/domain"
)

type span struct{ first, last int }

// Simplify returns the subsequence of pts kept for tolerance epsilon.
// Inputs with fewer than 3 points are returned unchanged. A negative epsilon
// behaves like zero, which still removes exactly collinear interior points.
func Simplify(pts []domain.Point, epsilon float64) []domain.Point {
	if len(pts) < 3 {
		return append([]domain.Point(nil), pts...)
	}
	idx := SimplifyIndices(pts, epsilon)
	out := make([]domain.Point, len(idx))
	for i, k := range idx {
		out[i] = pts[k]
	}
	return out
}

// SimplifyIndices returns the ascending indices of the retained points.
func SimplifyIndices(pts []domain.Point, epsilon float64) []int {
	n := len(pts)
	if n < 3 {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	if epsilon < 0 {
		epsilon = 0
	}

	keep := make([]bool, n)
	keep[0], keep[n-1] = true, true
	stack := []span{{0, n - 1}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if s.last-s.first < 2 {
			continue
		}
		dmax, index := 0.0, 0
		for i := s.first + 1; i < s.last; i++ {
			// Strict comparison keeps the first point at the maximum.
			if d := PerpendicularDistance(pts[i], pts[s.first], pts[s.last]); d > dmax {
				dmax, index = d, i
			}
		}
		if dmax > epsilon && index > 0 {
			keep[index] = true
			stack = append(stack, span{s.first, index}, span{index, s.last})
		}
	}

	idx := make([]int, 0, n)
	for i, k := range keep {
		if k {
			idx = append(idx, i)
		}
	}
	return idx
}

// PerpendicularDistance is the distance from p to the infinite line through
// a and b, or to a when the two coincide.
func PerpendicularDistance(p, a, b domain.Point) float64 {
	dx, dy := float64(b.X-a.X), float64(b.Y-a.Y)
	if dx == 0 && dy == 0 {
		return p.Dist(a)
	}
	num := math.Abs(dy*float64(p.X) - dx*float64(p.Y) + float64(b.X*a.Y) - float64(b.Y*a.X))
	return num / math.Hypot(dx, dy)
}
