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
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"imagestroke/internal/domain"
	"imagestroke/internal/stroke"
	"imagestroke/internal/vector"
)

func squareImage() domain.Image {
	img := domain.NewImage(20, 20)
	for y := 5; y < 15; y++ {
		for x := 5; x < 15; x++ {
			copy(img.Pix[(y*20+x)*4:], []byte{10, 20, 30, 255})
		}
	}
	return img
}

func vectorResult(t *testing.T) stroke.Result {
	t.Helper()
	res, err := stroke.Create("distance", squareImage(), domain.DefaultParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return res
}

func TestPlace(t *testing.T) {
	b := domain.Bounds{MinX: 5, MinY: 5, MaxX: 14, MaxY: 14, HasContent: true}
	p, err := Place(b, 20, 20, vector.R(100, 50, 40, 80))
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if p.ScaleX != 2 || p.ScaleY != 4 {
		t.Fatalf("unexpected scale: %+v", p)
	}
	if f := p.Frame(); f != vector.R(110, 70, 18, 36) {
		t.Fatalf("unexpected frame: %+v", f)
	}
	// The path extent lands exactly on the frame.
	got := vector.Pt{X: 14, Y: 14}
	got = p.Transform().Apply(got)
	if got.X != 128 || got.Y != 106 {
		t.Fatalf("unexpected mapped corner: %+v", got)
	}
}

func TestPlaceInvalid(t *testing.T) {
	ok := domain.Bounds{MinX: 1, MinY: 1, MaxX: 4, MaxY: 4, HasContent: true}
	cases := []struct {
		name string
		b    domain.Bounds
		w, h int
	}{
		{"no content", domain.Bounds{}, 10, 10},
		{"zero width", ok, 0, 10},
		{"single column", domain.Bounds{MinX: 3, MinY: 1, MaxX: 3, MaxY: 4, HasContent: true}, 10, 10},
	}
	for _, c := range cases {
		if _, err := Place(c.b, c.w, c.h, vector.R(0, 0, 10, 10)); !errors.Is(err, ErrInvalidPlacement) {
			t.Fatalf("%s: expected ErrInvalidPlacement, got %v", c.name, err)
		}
	}
}

func TestWriteSVG(t *testing.T) {
	res := vectorResult(t)
	var buf bytes.Buffer
	opt := Options{StrokeWidth: 2, Color: domain.Color{R: 1}, Width: 20, Height: 20}
	if err := WriteSVG(&buf, res, opt); err != nil {
		t.Fatalf("svg: %v", err)
	}
	s := buf.String()
	for _, want := range []string{
		"<svg ", "viewBox=\"0 0 20 20\"", "d=\"" + res.Path + "\"",
		"fill=\"none\"", "stroke=\"#ff0000\"", "stroke-width=\"2\"", "stroke-linejoin=\"round\"",
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("svg missing %q:\n%s", want, s)
		}
	}
}

func TestWriteSVGTransformed(t *testing.T) {
	res := stroke.Result{Kind: stroke.KindVector, Path: "M 1 1 L 3 1 Z"}
	var buf bytes.Buffer
	if err := WriteSVG(&buf, res, Options{Transform: vector.Scale(2, 2)}); err != nil {
		t.Fatalf("svg: %v", err)
	}
	if !strings.Contains(buf.String(), "d=\"M 2 2 L 6 2 Z\"") {
		t.Fatalf("transform not applied:\n%s", buf.String())
	}
}

func TestWriteSVGRaster(t *testing.T) {
	res, err := stroke.Create("raster", squareImage(), domain.DefaultParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteSVG(&buf, res, Options{}); err != nil {
		t.Fatalf("svg: %v", err)
	}
	if !strings.Contains(buf.String(), "data:image/png;base64,") {
		t.Fatalf("expected embedded png")
	}
}

func TestEmptyPathRejected(t *testing.T) {
	empty := stroke.Result{Kind: stroke.KindVector}
	if err := WriteSVG(&bytes.Buffer{}, empty, Options{}); !errors.Is(err, ErrEmptyPath) {
		t.Fatalf("svg: expected ErrEmptyPath, got %v", err)
	}
	if err := WritePDF(&bytes.Buffer{}, empty, Options{}); !errors.Is(err, ErrEmptyPath) {
		t.Fatalf("pdf: expected ErrEmptyPath, got %v", err)
	}
	if err := WritePNG(&bytes.Buffer{}, empty, squareImage(), Options{}); !errors.Is(err, ErrEmptyPath) {
		t.Fatalf("png: expected ErrEmptyPath, got %v", err)
	}
}

func TestWritePDF(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePDF(&buf, vectorResult(t), Options{StrokeWidth: 3, Width: 20, Height: 20}); err != nil {
		t.Fatalf("pdf: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("not a pdf")
	}

	res, err := stroke.Create("raster", squareImage(), domain.DefaultParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	buf.Reset()
	if err := WritePDF(&buf, res, Options{}); err != nil {
		t.Fatalf("raster pdf: %v", err)
	}
}

func TestWritePNGPreview(t *testing.T) {
	src := squareImage()
	var buf bytes.Buffer
	opt := Options{StrokeWidth: 2, Color: domain.Color{G: 1}}
	if err := WritePNG(&buf, vectorResult(t), src, opt); err != nil {
		t.Fatalf("png: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 20 || b.Dy() != 20 {
		t.Fatalf("unexpected size: %v", b)
	}
	// A pixel on the outline is painted green, the far corner stays clear.
	r, g, _, a := img.At(9, 5).RGBA()
	if g < 0xf000 || r > 0x1000 || a < 0xf000 {
		t.Fatalf("outline pixel not stroked: %v %v %v", r, g, a)
	}
	if _, _, _, a := img.At(0, 19).RGBA(); a != 0 {
		t.Fatalf("background pixel painted")
	}
}

func TestWriteFileByExtension(t *testing.T) {
	dir := t.TempDir()
	res := vectorResult(t)
	src := squareImage()
	for _, name := range []string{"out.svg", "sub/out.pdf", "out.png"} {
		path := filepath.Join(dir, name)
		if err := WriteFile(path, res, src, OptionsFor(domain.DefaultParams(), src)); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		st, err := os.Stat(path)
		if err != nil || st.Size() == 0 {
			t.Fatalf("%s: missing output (%v)", name, err)
		}
	}
	if err := WriteFile(filepath.Join(dir, "out.gif"), res, src, Options{}); !errors.Is(err, ErrUnsupportedOutput) {
		t.Fatalf("expected ErrUnsupportedOutput, got %v", err)
	}
	// A failed write leaves no partial file behind.
	if err := WriteFile(filepath.Join(dir, "empty.svg"), stroke.Result{}, src, Options{}); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := os.Stat(filepath.Join(dir, "empty.svg")); !os.IsNotExist(err) {
		t.Fatalf("partial file left behind")
	}
}

func TestWriteFileReplacesWithoutTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	src := squareImage()
	path := filepath.Join(dir, "out.svg")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteFile(path, vectorResult(t), src, OptionsFor(domain.DefaultParams(), src)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil || !strings.HasPrefix(string(b), "<?xml") {
		t.Fatalf("file not replaced: %q (%v)", b, err)
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}
