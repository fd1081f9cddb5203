// Package transformation derives PBR texture maps from a single photo.
package transformation

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/mahirjain10/texture-workers/internal/types"
)

// MapKind names one generated texture map.
type MapKind string

const (
	Diffuse   MapKind = "diffuse"
	Normal    MapKind = "normal"
	Roughness MapKind = "roughness"
	AO        MapKind = "ao"
)

// MapsFor returns the maps generated for a working mode.
func MapsFor(mode string) ([]MapKind, error) {
	switch mode {
	case types.TextureModeAI, "":
		return []MapKind{Diffuse, Normal, Roughness, AO}, nil
	case types.TextureModeManual:
		return []MapKind{Diffuse, Normal}, nil
	default:
		return nil, fmt.Errorf("unsupported texture mode: %s", mode)
	}
}

// Decode reads a photo and applies its EXIF orientation.
func Decode(buffer []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(buffer), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Base crops the photo to a centred square of size x size, the common input of every map.
func Base(img image.Image, size int) (*image.NRGBA, error) {
	if size <= 0 {
		return nil, fmt.Errorf("texture size must be positive, got %d", size)
	}
	return imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos), nil
}

// Generate builds one map from the square base image.
func Generate(kind MapKind, base image.Image) (image.Image, error) {
	switch kind {
	case Diffuse:
		return imaging.AdjustContrast(base, -10), nil
	case Normal:
		return NormalMap(imaging.Grayscale(base), 2.0), nil
	case Roughness:
		return imaging.AdjustContrast(imaging.Invert(imaging.Grayscale(base)), 20), nil
	case AO:
		return imaging.AdjustGamma(imaging.Blur(imaging.Grayscale(base), 3), 0.8), nil
	default:
		return nil, fmt.Errorf("unsupported map kind: %s", kind)
	}
}

// NormalMap derives a tangent-space normal map from a height map using a Sobel
// operator. Edges are clamped.
func NormalMap(height *image.NRGBA, strength float64) *image.NRGBA {
	b := height.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))

	at := func(x, y int) float64 {
		x = min(max(x, 0), w-1)
		y = min(max(y, 0), h-1)
		return float64(height.NRGBAAt(b.Min.X+x, b.Min.Y+y).R) / 255
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := (at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)) - (at(x-1, y-1) + 2*at(x-1, y) + at(x-1, y+1))
			dy := (at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)) - (at(x-1, y-1) + 2*at(x, y-1) + at(x+1, y-1))
			nx, ny, nz := -dx*strength, -dy*strength, 1.0
			l := math.Sqrt(nx*nx + ny*ny + nz*nz)
			out.SetNRGBA(x, y, color.NRGBA{
				R: encodeUnit(nx / l),
				G: encodeUnit(ny / l),
				B: encodeUnit(nz / l),
				A: 255,
			})
		}
	}
	return out
}

func encodeUnit(v float64) uint8 {
	return uint8(math.Round((v*0.5 + 0.5) * 255))
}

// Encode writes img as PNG.
func Encode(img image.Image) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("error while encoding map: %w", err)
	}
	return buf.Bytes(), nil
}
