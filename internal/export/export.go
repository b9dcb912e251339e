/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export writes stroke results as SVG, PDF or PNG files and computes
// the placement of a vector stroke inside a host frame.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"imagestroke/internal/domain"
	"imagestroke/internal/stroke"
	"imagestroke/internal/vector"
)

var (
	ErrEmptyPath         = errors.New("stroke has no path")
	ErrInvalidPlacement  = errors.New("invalid placement")
	ErrUnsupportedOutput = errors.New("unsupported output format")
)

// Format is an output encoding.
type Format string

const (
	SVG Format = "svg"
	PDF Format = "pdf"
	PNG Format = "png"
)

// FormatFor infers the output format from a file name.
func FormatFor(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "svg":
		return SVG, nil
	case "pdf":
		return PDF, nil
	case "png":
		return PNG, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedOutput, filepath.Ext(name))
}

// Options controls how a stroke is drawn.
//
//nolint:revive // clarity is preferred
type Options struct {
	StrokeWidth float64
	Color       domain.Color
	// Transform maps path coordinates to output coordinates. The zero value
	// means identity.
	Transform vector.Affine2D
	// Canvas size in pixels (points for PDF). Zero uses the source image size.
	Width, Height int
}

// OptionsFor derives drawing options from stroke params and the source size.
func OptionsFor(p domain.Params, src domain.Image) Options {
	return Options{StrokeWidth: p.StrokeWidth, Color: p.StrokeColor, Width: src.Width, Height: src.Height}
}

func (o Options) transform() vector.Affine2D {
	if o.Transform == (vector.Affine2D{}) {
		return vector.Identity
	}
	return o.Transform
}

func (o Options) strokeWidth() float64 {
	if o.StrokeWidth <= 0 {
		return 1
	}
	return o.StrokeWidth
}

// canvas returns the output size, falling back to the raster size or the
// transformed path extent.
func (o Options) canvas(res stroke.Result, p vector.Path) (int, int) {
	if o.Width > 0 && o.Height > 0 {
		return o.Width, o.Height
	}
	if res.Kind == stroke.KindRaster {
		return res.Pixels.Width, res.Pixels.Height
	}
	b := p.Bounds()
	pad := float32(o.strokeWidth())
	return int(b.X+b.W+pad) + 1, int(b.Y+b.H+pad) + 1
}

// outputPath parses and transforms a vector result.
func outputPath(res stroke.Result, o Options) (vector.Path, error) {
	if res.Kind != stroke.KindVector {
		return vector.Path{}, nil
	}
	if res.Path == "" {
		return vector.Path{}, ErrEmptyPath
	}
	p, err := vector.Parse(res.Path)
	if err != nil {
		return vector.Path{}, fmt.Errorf("parse stroke path: %w", err)
	}
	if t := o.transform(); !t.IsIdentity() {
		p = p.Transform(t)
	}
	return p, nil
}

// WriteFile writes res to name in the format given by its extension,
// creating parent directories. src is the stroked image, used as canvas size
// and PNG backdrop. The file is replaced atomically: output is written to a
// temp file in the same directory and renamed over name.
func WriteFile(name string, res stroke.Result, src domain.Image, o Options) error {
	f, err := FormatFor(name)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	switch f {
	case SVG:
		err = WriteSVG(&buf, res, o)
	case PDF:
		err = WritePDF(&buf, res, o)
	case PNG:
		err = WritePNG(&buf, res, src, o)
	}
	if err != nil {
		return err
	}
	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", filepath.Base(name), os.Getpid(), rand.Int()))
	if err := writeFileSync(temp, buf.Bytes()); err != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("write temp %s: %w", f, err)
	}
	// On Windows, replace by removing destination first if needed
	if _, err := os.Stat(name); err == nil {
		_ = os.Remove(name)
	}
	if err := os.Rename(temp, name); err != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

// writeFileSync writes data to a file, ensures it is flushed to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}
