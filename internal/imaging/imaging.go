// Package imaging wraps the stdlib image codecs behind the handful of
// operations the ROI pipeline needs: decode/encode, crop, rotate, resize
// and illumination normalization. It is the leaf dependency every other
// pipeline package builds on (spec §2 dependency order).
package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"
	"math"
)

// Decode reads a JPEG image. The shared-folder layout only ever stores
// .jpg files (spec §6), so other codecs are out of scope.
func Decode(r io.Reader) (image.Image, error) {
	img, err := jpeg.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("imaging: decode: %w", err)
	}
	return img, nil
}

// Encode writes img as a JPEG at quality 90, the teacher's default for
// golden/ROI crop persistence.
func Encode(w io.Writer, img image.Image) error {
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: 90}); err != nil {
		return fmt.Errorf("imaging: encode: %w", err)
	}
	return nil
}

// Crop returns the sub-image [x1,y1,x2,y2) of img. Coordinates are
// clamped to img's bounds so a slightly stale ROI config never panics.
func Crop(img image.Image, x1, y1, x2, y2 int) image.Image {
	b := img.Bounds()
	r := image.Rect(x1, y1, x2, y2).Intersect(b)
	if r.Empty() {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}

	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if si, ok := img.(subImager); ok {
		return si.SubImage(r)
	}

	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

// Rotate returns img rotated clockwise by degrees, which must be one of
// 0, 90, 180, 270 (spec §3 ROI.rotation).
func Rotate(img image.Image, degrees int) image.Image {
	switch ((degrees % 360) + 360) % 360 {
	case 90:
		return rotate90(img)
	case 180:
		return rotate90(rotate90(img))
	case 270:
		return rotate90(rotate90(rotate90(img)))
	default:
		return img
	}
}

func rotate90(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(h-1-y, x, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

// Resize scales img to exactly (w, h) using nearest-neighbor sampling.
//
// No third-party image-resize library appears anywhere in the example
// corpus (checked every go.mod under _examples/); nearest-neighbor is
// adequate here because Compare ROIs only resize a golden sample to the
// live crop's exact pixel dimensions before feature extraction, not for
// any display-quality purpose, so the interpolation loss is irrelevant.
func Resize(img image.Image, w, h int) image.Image {
	if w <= 0 || h <= 0 {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}
	b := img.Bounds()
	sw, sh := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		sy := b.Min.Y + y*sh/h
		for x := 0; x < w; x++ {
			sx := b.Min.X + x*sw/w
			dst.Set(x, y, img.At(sx, sy))
		}
	}
	return dst
}

// NormalizeIllumination applies a per-channel histogram stretch so live
// crops and golden samples compare fairly under different camera
// exposure settings (spec §4.4 Compare analyzer step 1).
func NormalizeIllumination(img image.Image) image.Image {
	b := img.Bounds()
	var rMin, gMin, bMin uint8 = 255, 255, 255
	var rMax, gMax, bMax uint8

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			r8, g8, b8 := uint8(r>>8), uint8(g>>8), uint8(bl>>8)
			if r8 < rMin {
				rMin = r8
			}
			if r8 > rMax {
				rMax = r8
			}
			if g8 < gMin {
				gMin = g8
			}
			if g8 > gMax {
				gMax = g8
			}
			if b8 < bMin {
				bMin = b8
			}
			if b8 > bMax {
				bMax = b8
			}
		}
	}

	stretch := func(v, lo, hi uint8) uint8 {
		if hi <= lo {
			return v
		}
		scaled := int(v-lo) * 255 / int(hi-lo)
		if scaled < 0 {
			return 0
		}
		if scaled > 255 {
			return 255
		}
		return uint8(scaled)
	}

	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			dst.Set(x, y, color.RGBA{
				R: stretch(uint8(r>>8), rMin, rMax),
				G: stretch(uint8(g>>8), gMin, gMax),
				B: stretch(uint8(bl>>8), bMin, bMax),
				A: uint8(a >> 8),
			})
		}
	}
	return dst
}

// CosineSimilarity computes the cosine similarity of two equal-length
// feature vectors, used by the Compare analyzer (spec §4.4 step 3).
// Returns 0 if the vectors differ in length or either is all-zero.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// DominantChannel returns the average pixel as [R, G, B] (0-255 each),
// a cheap descriptor the analyzers store in Outcome.DominantColor.
func DominantChannel(img image.Image) [3]int {
	b := img.Bounds()
	var rs, gs, bs, n int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			rs += int(r >> 8)
			gs += int(g >> 8)
			bs += int(bl >> 8)
			n++
		}
	}
	if n == 0 {
		return [3]int{0, 0, 0}
	}
	return [3]int{rs / n, gs / n, bs / n}
}
