package processor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	// Pages smaller than this on their longer side are upscaled to it.
	minPageDimension = 1600
	// Contrast factor applied around the page mean.
	contrastFactor = 1.15
)

// ErrUnsupportedFormat is returned for bytes that are not a known image format.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Preprocess decodes image bytes and prepares the page for segmentation:
// EXIF orientation is applied, the page is converted to grayscale,
// upscaled to the minimum resolution and given a mild contrast boost.
func Preprocess(data []byte) (*image.Gray, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	gray := imaging.Grayscale(img)

	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	if longest := max(w, h); longest > 0 && longest < minPageDimension {
		scale := float64(minPageDimension) / float64(longest)
		gray = imaging.Resize(gray, int(float64(w)*scale), int(float64(h)*scale), imaging.CatmullRom)
	}

	mean := meanLuma(gray)
	gray = imaging.AdjustFunc(gray, func(c color.NRGBA) color.NRGBA {
		v := clampByte(mean + contrastFactor*(float64(c.R)-mean))
		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	})

	return toGray(gray), nil
}

func meanLuma(img *image.NRGBA) float64 {
	if len(img.Pix) == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < len(img.Pix); i += 4 {
		sum += float64(img.Pix[i])
	}
	return float64(int(sum/float64(len(img.Pix)/4) + 0.5))
}

func clampByte(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}

// toGray copies the red channel of an already grayscale NRGBA image.
func toGray(img *image.NRGBA) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := img.Pix[y*img.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < b.Dx(); x++ {
			dst[x] = src[x*4]
		}
	}
	return out
}

// detectImageType identifies common image formats from magic bytes.
func detectImageType(data []byte) string {
	switch {
	case len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return "image/png"
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")):
		return "image/gif"
	case len(data) > 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP":
		return "image/webp"
	case bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}) || bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}):
		return "image/tiff"
	case bytes.HasPrefix(data, []byte("BM")):
		return "image/bmp"
	}
	return ""
}
