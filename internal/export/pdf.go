/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"

	"imagestroke/internal/domain"
	"imagestroke/internal/imageio"
	"imagestroke/internal/stroke"
	"imagestroke/internal/version"
)

// WritePDF writes a one-page PDF sized to the canvas, one point per pixel.
// Page origin is top-left, matching image coordinates.
func WritePDF(w io.Writer, res stroke.Result, o Options) error {
	p, err := outputPath(res, o)
	if err != nil {
		return err
	}
	cw, ch := o.canvas(res, p)

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: float64(cw), Ht: float64(ch)},
	})
	pdf.SetTitle("Image stroke", false)
	pdf.SetCreator("imagestroke "+version.String(), false)
	pdf.AddPage()

	switch res.Kind {
	case stroke.KindVector:
		setDrawColor(pdf, o.Color)
		pdf.SetLineWidth(o.strokeWidth())
		pdf.SetLineCapStyle("round")
		pdf.SetLineJoinStyle("round")
		for _, sp := range p.Subpaths() {
			pdf.MoveTo(float64(sp.Pts[0].X), float64(sp.Pts[0].Y))
			for _, q := range sp.Pts[1:] {
				pdf.LineTo(float64(q.X), float64(q.Y))
			}
			if sp.Closed {
				pdf.ClosePath()
			}
			pdf.DrawPath("D")
		}
	case stroke.KindRaster:
		var png bytes.Buffer
		if err := imageio.EncodePNG(&png, res.Pixels); err != nil {
			return err
		}
		opt := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("stroke", opt, &png)
		pdf.ImageOptions("stroke", 0, 0, float64(res.Pixels.Width), float64(res.Pixels.Height), false, opt, 0, "")
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("build pdf: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func setDrawColor(pdf *gofpdf.Fpdf, c domain.Color) {
	rgba := c.RGBA8()
	pdf.SetDrawColor(int(rgba[0]), int(rgba[1]), int(rgba[2]))
}
