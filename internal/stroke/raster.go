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

	"imagestroke/internal/domain"
	"imagestroke/internal/edt"
	applog "imagestroke/internal/log"
	"imagestroke/internal/mask"
)

// CreateRaster paints every pixel whose distance d to the silhouette edge
// satisfies 0 < d < StrokeWidth with the stroke color at full opacity.
// SideInside measures foreground pixels against the background, SideOutside
// measures background pixels against the silhouette.
func CreateRaster(img domain.Image, params domain.Params) Result {
	l := applog.WithOperation(applog.WithComponent("stroke"), "raster")
	m := mask.FromImage(img, InternalAlphaThreshold)

	var dm *edt.Map
	if params.Side == domain.SideOutside {
		dm = edt.ComputeOutside(m)
	} else {
		dm = edt.Compute(m)
	}

	out := img.Clone()
	rgba := params.StrokeColor.RGBA8()
	painted := 0
	for i, d := range dm.D {
		if d > 0 && float64(d) < params.StrokeWidth {
			copy(out.Pix[i*4:i*4+4], rgba[:])
			painted++
		}
	}
	l.Debug("band painted", slog.Int("pixels", painted), slog.String("side", string(params.Side)))
	return Result{Kind: KindRaster, Pixels: out, Bounds: m.Bounds()}
}
