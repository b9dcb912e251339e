/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package imageio converts between encoded image files and the flat RGBA
// buffers the stroke core works on.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"imagestroke/internal/domain"
)

// Format is a supported input encoding.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
	GIF  Format = "gif"
	BMP  Format = "bmp"
	TIFF Format = "tiff"
	WebP Format = "webp"
)

// ErrUnsupportedFormat is returned for data that is not a supported image.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Sniff detects the encoding from the leading magic bytes.
func Sniff(b []byte) (Format, error) {
	kind, err := filetype.Match(b)
	if err != nil || kind == filetype.Unknown {
		return "", ErrUnsupportedFormat
	}
	switch kind.Extension {
	case "png":
		return PNG, nil
	case "jpg":
		return JPEG, nil
	case "gif":
		return GIF, nil
	case "bmp":
		return BMP, nil
	case "tif":
		return TIFF, nil
	case "webp":
		return WebP, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, kind.MIME.Value)
}

// ExtToFormat maps a file name extension (with or without dot) to a Format.
func ExtToFormat(ext string) (Format, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	switch ext {
	case "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPEG, nil
	case "gif":
		return GIF, nil
	case "bmp":
		return BMP, nil
	case "tif", "tiff":
		return TIFF, nil
	case "webp":
		return WebP, nil
	}
	return "", fmt.Errorf("%w: extension %q", ErrUnsupportedFormat, ext)
}

// IsImageFile reports whether the name has a supported image extension.
func IsImageFile(name string) bool {
	_, err := ExtToFormat(filepath.Ext(name))
	return err == nil
}

// Decode decodes b into a non-premultiplied 8-bit RGBA buffer with its origin
// at (0,0).
func Decode(b []byte) (domain.Image, error) {
	f, err := Sniff(b)
	if err != nil {
		return domain.Image{}, err
	}
	src, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return domain.Image{}, fmt.Errorf("decode %s: %w", f, err)
	}
	return FromImage(src), nil
}

// FromImage copies any image.Image into a domain buffer.
func FromImage(src image.Image) domain.Image {
	r := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	if n, ok := src.(*image.NRGBA); ok {
		// Row copy keeps non-premultiplied values exact.
		for y := 0; y < r.Dy(); y++ {
			off := n.PixOffset(r.Min.X, r.Min.Y+y)
			copy(dst.Pix[y*dst.Stride:(y+1)*dst.Stride], n.Pix[off:off+r.Dx()*4])
		}
		return domain.Image{Pix: dst.Pix, Width: r.Dx(), Height: r.Dy()}
	}
	draw.Draw(dst, dst.Bounds(), src, r.Min, draw.Src)
	return domain.Image{Pix: dst.Pix, Width: r.Dx(), Height: r.Dy()}
}

// ToNRGBA wraps img without copying.
func ToNRGBA(img domain.Image) *image.NRGBA {
	return &image.NRGBA{Pix: img.Pix, Stride: img.Width * 4, Rect: image.Rect(0, 0, img.Width, img.Height)}
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img domain.Image) error {
	if err := img.Validate(); err != nil {
		return err
	}
	if err := png.Encode(w, ToNRGBA(img)); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}
