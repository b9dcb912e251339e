/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package stroke

import (
	"log/slog"

	"imagestroke/internal/contour"
	"imagestroke/internal/domain"
	"imagestroke/internal/edt"
	applog "imagestroke/internal/log"
	"imagestroke/internal/mask"
	"imagestroke/internal/simplify"
	"imagestroke/internal/vector"
)

const (
	contourEpsilon = 1.5
	// A single outline is closed when its ends are this near, or when it is
	// long enough that it must have walked around the silhouette.
	closeDistance  = 5
	closeMinPoints = 50

	distanceEpsilon  = 1
	minContourPoints = 10
)

// CreateContour traces the outer boundary of the silhouette. A fully
// transparent image gives an empty vector result.
func CreateContour(img domain.Image) Result {
	l := applog.WithOperation(applog.WithComponent("stroke"), "contour")
	m := mask.FromImage(img, InternalAlphaThreshold)
	b := m.Bounds()
	if !b.HasContent {
		l.Debug("no content")
		return Result{Kind: KindVector, Bounds: b}
	}

	pts := contour.TraceOuter(m, b).Points
	raw := len(pts)
	if len(pts) > 2 {
		pts = simplify.Simplify(pts, contourEpsilon)
	}
	path := outlinePath(pts)
	l.Debug("outline traced", slog.Int("points", raw), slog.Int("simplified", len(pts)))

	res := Result{Kind: KindVector, Path: path, Bounds: b}
	if path != "" {
		res.Contours = 1
	}
	return res
}

// outlinePath serializes a single outline, closing it when the ends meet.
func outlinePath(pts []domain.Point) string {
	if len(pts) < 2 {
		return ""
	}
	closed := pts[0].Dist(pts[len(pts)-1]) < closeDistance || len(pts) > closeMinPoints
	return vector.FromPoints(pts, closed).String()
}

// CreateDistance traces every loop of the pixels at distance exactly 1 from
// the background. Loops shorter than minContourPoints are dropped; the
// remaining ones are always closed.
func CreateDistance(img domain.Image) (Result, error) {
	l := applog.WithOperation(applog.WithComponent("stroke"), "distance")
	m := mask.FromImage(img, InternalAlphaThreshold)
	b := m.Bounds()
	ring := edt.Compute(m).Edge()

	var p vector.Path
	n, dropped := 0, 0
	for _, c := range contour.TraceAll(ring) {
		if len(c.Points) < minContourPoints {
			dropped++
			continue
		}
		pts := simplify.Simplify(c.Points, distanceEpsilon)
		if len(pts) < 2 {
			dropped++
			continue
		}
		l.Debug("contour kept", slog.Int("points", len(c.Points)), slog.Int("simplified", len(pts)))
		p.AddPolyline(pts, true)
		n++
	}
	if n == 0 {
		l.Warn("no contour survived", slog.Int("dropped", dropped), slog.String("bounds", b.String()))
		return Result{}, ErrPathGenerationFailed
	}
	l.Debug("ring traced", slog.Int("kept", n), slog.Int("dropped", dropped))
	return Result{Kind: KindVector, Path: p.String(), Bounds: b, Contours: n}, nil
}
