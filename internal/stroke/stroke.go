/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package stroke turns an RGBA image into a stroke outline.
//
// Three algorithms are available. "contour" traces the single outer boundary
// of the opaque silhouette and returns a vector path. "distance" traces every
// loop of the one-pixel ring found by an exact Euclidean distance transform
// and returns them as one multi-subpath vector path. "raster" paints the band
// of pixels within the stroke width of the silhouette edge into a copy of the
// image. All coordinates are in original pixel space.
package stroke

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"imagestroke/internal/domain"
	applog "imagestroke/internal/log"
)

// Algorithm selects how a stroke is produced.
type Algorithm string

const (
	Contour  Algorithm = "contour"
	Distance Algorithm = "distance"
	Raster   Algorithm = "raster"
)

// Algorithms lists the accepted selectors.
var Algorithms = []Algorithm{Contour, Distance, Raster}

// InternalAlphaThreshold is the fixed opacity cut-off used by every
// algorithm: pixels with alpha >= 10 belong to the silhouette.
const InternalAlphaThreshold uint8 = 10

var (
	ErrUnknownAlgorithm     = errors.New("unknown algorithm")
	ErrPathGenerationFailed = errors.New("failed to generate vector path")
	ErrInvalidImage         = errors.New("invalid image")
)

// ParseAlgorithm validates a selector. The comparison is exact.
func ParseAlgorithm(s string) (Algorithm, error) {
	for _, a := range Algorithms {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
}

// Kind tags a Result.
type Kind uint8

const (
	KindVector Kind = iota
	KindRaster
)

func (k Kind) String() string {
	if k == KindRaster {
		return "raster"
	}
	return "vector"
}

// Result is either a vector path with the silhouette bounds, or a raster copy
// of the input with the stroke painted in.
type Result struct {
	Kind Kind
	// Path is move/line/close path data; empty for a vector result when the
	// image has no usable silhouette.
	Path   string
	Bounds domain.Bounds
	// Contours is the number of subpaths in Path.
	Contours int
	Pixels   domain.Image
}

// Empty reports whether a vector result carries no path.
func (r Result) Empty() bool { return r.Kind == KindVector && r.Path == "" }

// Create runs the selected algorithm on img. The image is never modified.
func Create(algorithm string, img domain.Image, params domain.Params) (Result, error) {
	l := applog.WithOperation(applog.WithComponent("stroke"), "create").With(
		slog.String("algorithm", algorithm),
		slog.Int("w", img.Width), slog.Int("h", img.Height),
	)
	alg, err := ParseAlgorithm(algorithm)
	if err != nil {
		l.Error("unknown algorithm")
		return Result{}, err
	}
	if err := img.Validate(); err != nil {
		l.Error("invalid image", slog.Any("err", err))
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}

	start := time.Now()
	var res Result
	switch alg {
	case Contour:
		res = CreateContour(img)
	case Distance:
		res, err = CreateDistance(img)
	case Raster:
		res = CreateRaster(img, params)
	}
	if err != nil {
		l.Error("stroke failed", slog.Any("err", err))
		return Result{}, err
	}
	l.Debug("stroke created",
		slog.String("kind", res.Kind.String()),
		slog.Int("contours", res.Contours),
		slog.Int("path_len", len(res.Path)),
		slog.Duration("took", time.Since(start)),
	)
	return res, nil
}

// Notification renders err as the message shown to users.
func Notification(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPathGenerationFailed):
		return "Failed to generate vector path"
	default:
		msg := err.Error()
		if msg != "" {
			msg = strings.ToUpper(msg[:1]) + msg[1:]
		}
		return "Error creating stroke: " + msg
	}
}
