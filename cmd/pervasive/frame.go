// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

// loadFrame returns the plane to show for path: a raw plane for .bin files,
// else a PNG or JPEG image centered on a white frame. An empty path returns a
// test card.
func loadFrame(path string, w, h int, caption string) ([]byte, error) {
	if path == "" {
		return pack(testCard(w, h, caption), w, h), nil
	}
	if strings.EqualFold(filepath.Ext(path), ".bin") {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if len(b) != w/8*h {
			return nil, fmt.Errorf("%s: %d bytes, want %d for %dx%d", path, len(b), w/8*h, w, h)
		}
		return b, nil
	}
	img, err := gg.LoadImage(path)
	if err != nil {
		return nil, err
	}
	dc := gg.NewContext(w, h)
	dc.SetColor(color.White)
	dc.Clear()
	dc.DrawImageAnchored(img, w/2, h/2, 0.5, 0.5)
	return pack(dc.Image(), w, h), nil
}

// testCard draws a frame with a border, a checker strip and a caption.
func testCard(w, h int, caption string) image.Image {
	dc := gg.NewContext(w, h)
	dc.SetColor(color.White)
	dc.Clear()
	dc.SetColor(color.Black)
	dc.SetLineWidth(2)
	dc.DrawRectangle(1, 1, float64(w-2), float64(h-2))
	dc.Stroke()

	const cell = 16
	for x := 0; x+cell <= w-8; x += cell {
		if (x/cell)%2 == 0 {
			dc.DrawRectangle(float64(4+x), float64(h-4-cell), cell, cell)
		}
	}
	dc.Fill()

	dc.DrawCircle(float64(w)/2, float64(h)/2-10, float64(min(w, h))/6)
	dc.Stroke()

	dc.SetFontFace(basicfont.Face7x13)
	dc.DrawStringAnchored(caption, float64(w)/2, 12, 0.5, 0.5)
	dc.DrawStringAnchored(time.Now().Format("2006-01-02 15:04"), float64(w)/2, 28, 0.5, 0.5)
	return dc.Image()
}

// pack converts img to a 1 bit per pixel plane, rows first, most significant
// bit first. Dark pixels are set; transparent ones are left clear.
func pack(img image.Image, w, h int) []byte {
	stride := w / 8
	out := make([]byte, stride*h)
	b := img.Bounds()
	for y := 0; y < h && b.Min.Y+y < b.Max.Y; y++ {
		for x := 0; x < w && b.Min.X+x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			if c.A < 128 {
				continue
			}
			if luma := (299*int(c.R) + 587*int(c.G) + 114*int(c.B)) / 1000; luma < 128 {
				out[y*stride+x/8] |= 0x80 >> uint(x%8)
			}
		}
	}
	return out
}
