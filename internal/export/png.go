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
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	xvector "golang.org/x/image/vector"

	"imagestroke/internal/domain"
	"imagestroke/internal/imageio"
	"imagestroke/internal/stroke"
	"imagestroke/internal/vector"
)

// WritePNG encodes raster results as-is. Vector results are rendered as a
// stroke preview over src.
func WritePNG(w io.Writer, res stroke.Result, src domain.Image, o Options) error {
	if res.Kind == stroke.KindRaster {
		return imageio.EncodePNG(w, res.Pixels)
	}
	p, err := outputPath(res, o)
	if err != nil {
		return err
	}
	if o.Width <= 0 || o.Height <= 0 {
		o.Width, o.Height = src.Width, src.Height
	}
	img := Preview(p, src, o)
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// Preview draws p with the stroke style over a copy of src. Each segment is
// rasterized as a quad of the stroke width with a square cap at every vertex.
func Preview(p vector.Path, src domain.Image, o Options) *image.RGBA {
	w, h := o.Width, o.Height
	if w <= 0 || h <= 0 {
		w, h = src.Width, src.Height
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if src.Validate() == nil && src.Width > 0 {
		draw.Draw(dst, dst.Bounds(), imageio.ToNRGBA(src), image.Point{}, draw.Src)
	}

	z := xvector.NewRasterizer(w, h)
	half := float32(o.strokeWidth() / 2)
	for _, sp := range p.Subpaths() {
		pts := sp.Pts
		if sp.Closed && len(pts) > 1 {
			pts = append(pts[:len(pts):len(pts)], pts[0])
		}
		for i, q := range pts {
			square(z, q, half)
			if i > 0 {
				segment(z, pts[i-1], q, half)
			}
		}
	}
	rgba := o.Color.RGBA8()
	z.Draw(dst, dst.Bounds(), image.NewUniform(color.RGBA{R: rgba[0], G: rgba[1], B: rgba[2], A: rgba[3]}), image.Point{})
	return dst
}

func segment(z *xvector.Rasterizer, a, b vector.Pt, half float32) {
	dx, dy := b.X-a.X, b.Y-a.Y
	l := float32(math.Hypot(float64(dx), float64(dy)))
	if l == 0 {
		return
	}
	nx, ny := -dy/l*half, dx/l*half
	z.MoveTo(a.X+nx, a.Y+ny)
	z.LineTo(b.X+nx, b.Y+ny)
	z.LineTo(b.X-nx, b.Y-ny)
	z.LineTo(a.X-nx, a.Y-ny)
	z.ClosePath()
}

// square winds the same way as segment quads so overlapping coverage adds up
// instead of cancelling.
func square(z *xvector.Rasterizer, c vector.Pt, half float32) {
	z.MoveTo(c.X-half, c.Y+half)
	z.LineTo(c.X+half, c.Y+half)
	z.LineTo(c.X+half, c.Y-half)
	z.LineTo(c.X-half, c.Y-half)
	z.ClosePath()
}
