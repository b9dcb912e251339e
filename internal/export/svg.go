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
	"encoding/base64"
	"fmt"
	"io"

	"imagestroke/internal/imageio"
	"imagestroke/internal/stroke"
)

// WriteSVG writes a standalone SVG document. Vector results become a single
// unfilled path with round caps and joins; raster results are embedded as a
// PNG image.
func WriteSVG(w io.Writer, res stroke.Result, o Options) error {
	p, err := outputPath(res, o)
	if err != nil {
		return err
	}
	cw, ch := o.canvas(res, p)

	var buf bytes.Buffer
	var werr error
	wf := func(format string, args ...any) {
		if werr != nil {
			return
		}
		_, werr = fmt.Fprintf(&buf, format, args...)
	}

	wf("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	wf("<svg xmlns=\"http://www.w3.org/2000/svg\" version=\"1.1\" width=\"%dpx\" height=\"%dpx\" viewBox=\"0 0 %d %d\">\n", cw, ch, cw, ch)
	switch res.Kind {
	case stroke.KindVector:
		wf("  <path d=\"%s\" fill=\"none\" fill-rule=\"nonzero\" stroke=\"%s\" stroke-width=\"%g\" stroke-linecap=\"round\" stroke-linejoin=\"round\"/>\n",
			p.String(), o.Color.Hex(), o.strokeWidth())
	case stroke.KindRaster:
		var png bytes.Buffer
		if err := imageio.EncodePNG(&png, res.Pixels); err != nil {
			return err
		}
		wf("  <image x=\"0\" y=\"0\" width=\"%d\" height=\"%d\" href=\"data:image/png;base64,%s\"/>\n",
			res.Pixels.Width, res.Pixels.Height, base64.StdEncoding.EncodeToString(png.Bytes()))
	}
	wf("</svg>\n")
	if werr != nil {
		return fmt.Errorf("build svg: %w", werr)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write svg: %w", err)
	}
	return nil
}
