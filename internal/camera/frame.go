// Package camera holds the stereo frame pair type and image helpers.
package camera

import (
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"

	xdraw "golang.org/x/image/draw"
)

// FramePair is a synchronized stereo capture. Images are owned by the pair
// once enqueued and must not be mutated afterwards.
type FramePair struct {
	TimestampNs int64 // nanoseconds since dataset epoch
	Left        *image.Gray
	Right       *image.Gray
}

// Seconds returns the capture timestamp in seconds.
func (p FramePair) Seconds() float64 {
	return float64(p.TimestampNs) / 1e9
}

// ToGray returns img as 8-bit grayscale, converting when needed.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}

// DecodePNG decodes a PNG stream into a grayscale image.
func DecodePNG(r io.Reader) (*image.Gray, error) {
	img, err := png.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	return ToGray(img), nil
}

// Downsample halves both image dimensions with bilinear filtering.
func Downsample(img *image.Gray) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx()/2, b.Dy()/2
	if w == 0 || h == 0 {
		return img
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// Preprocess applies the configured per-image transforms.
func Preprocess(img *image.Gray, downsample bool) *image.Gray {
	if downsample {
		return Downsample(img)
	}
	return img
}
