package services

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// PassRenderer normalizes an uploaded pass image into a bounded-width JPEG
type PassRenderer struct {
	maxWidth int
	quality  int
}

// NewPassRenderer creates a renderer; non-positive values fall back to 1200px and quality 80
func NewPassRenderer(maxWidth, quality int) *PassRenderer {
	if maxWidth <= 0 {
		maxWidth = 1200
	}
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	return &PassRenderer{maxWidth: maxWidth, quality: quality}
}

// Render decodes data (JPEG, PNG or WebP), scales it down to the maximum
// width keeping the aspect ratio and re-encodes it as JPEG.
func (r *PassRenderer) Render(data []byte) ([]byte, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode pass image: %w", err)
	}
	if src.Bounds().Dx() == 0 || src.Bounds().Dy() == 0 {
		return nil, fmt.Errorf("decode pass image: empty %s image", format)
	}

	out := flattenToFit(src, r.maxWidth)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: r.quality}); err != nil {
		return nil, fmt.Errorf("encode pass image: %w", err)
	}
	return buf.Bytes(), nil
}

// flattenToFit scales src down to maxW (never up) onto an opaque white
// canvas, since JPEG cannot carry transparency.
func flattenToFit(src image.Image, maxW int) image.Image {
	bw := src.Bounds().Dx()
	bh := src.Bounds().Dy()

	w, h := bw, bh
	if bw > maxW {
		scale := float64(maxW) / float64(bw)
		w = maxW
		h = int(math.Max(1, math.Round(float64(bh)*scale)))
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if w == bw && h == bh {
		draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Over)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}
