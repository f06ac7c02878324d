// Package imaging turns an uploaded photo into the planar float tensor the
// classifier expects: decode, rotate upright from EXIF, centre-crop to a
// square, resize and normalize.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/evanoberholster/imagemeta"
	"github.com/nfnt/resize"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedImage is returned when the upload cannot be decoded.
var ErrUnsupportedImage = errors.New("unsupported image format")

// MaxPixels bounds width×height of an accepted image. The header is checked
// before any pixel buffer is allocated.
const MaxPixels = 50_000_000

// Frame is a decoded photo, already rotated upright.
type Frame struct {
	Image       image.Image
	Format      string
	Orientation Orientation
}

// Decode decodes JPEG, PNG, GIF, BMP or WebP data. Images larger than
// MaxPixels are rejected from their header alone.
func Decode(r io.ReadSeeker) (image.Image, string, error) {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	switch {
	case cfg.Width <= 0 || cfg.Height <= 0:
		return nil, "", fmt.Errorf("%w: empty image %dx%d", ErrUnsupportedImage, cfg.Width, cfg.Height)
	case int64(cfg.Width)*int64(cfg.Height) > MaxPixels:
		return nil, "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrUnsupportedImage, cfg.Width, cfg.Height, MaxPixels)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, "", fmt.Errorf("failed to rewind image: %w", err)
	}

	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	return img, format, nil
}

// ReadOrientation returns the EXIF orientation of the image in r. Images
// without EXIF (PNG, screenshots) report OrientationUp.
func ReadOrientation(r io.ReadSeeker) Orientation {
	exif, err := imagemeta.Decode(r)
	if err != nil {
		log.Debug().Err(err).Msg("No EXIF orientation, assuming upright")
		return OrientationUp
	}
	o := Orientation(exif.Orientation)
	if !o.Valid() {
		return OrientationUp
	}
	return o
}

// Load decodes data and applies its EXIF orientation.
func Load(data []byte) (*Frame, error) {
	img, format, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	orientation := ReadOrientation(bytes.NewReader(data))
	upright := Orient(img, orientation)

	log.Debug().
		Str("format", format).
		Int("width", upright.Bounds().Dx()).
		Int("height", upright.Bounds().Dy()).
		Stringer("orientation", orientation).
		Msg("Image decoded")

	return &Frame{Image: upright, Format: format, Orientation: orientation}, nil
}

// CenterCrop returns the largest square centred in img.
func CenterCrop(img image.Image) image.Image {
	b := img.Bounds()
	side := min(b.Dx(), b.Dy())
	if b.Dx() == b.Dy() {
		return img
	}

	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	src := image.Rect(x0, y0, x0+side, y0+side)

	dst := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Copy(dst, image.Point{}, img, src, draw.Src, nil)
	return dst
}

// ToTensor resizes img to size×size and lays it out as planar CHW float32
// values in [0, 1]: all red values, then green, then blue.
func ToTensor(img image.Image, size int) []float32 {
	target := uint(size)
	resized := resize.Resize(target, target, img, resize.Lanczos3)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height

	inputData := make([]float32, 3*plane)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			pixelIndex := y*width + x
			inputData[pixelIndex] = float32(r) / 65535.0
			inputData[plane+pixelIndex] = float32(g) / 65535.0
			inputData[2*plane+pixelIndex] = float32(b) / 65535.0
		}
	}
	return inputData
}

// Prepare runs the whole pipeline on an encoded photo.
func Prepare(data []byte, size int) ([]float32, *Frame, error) {
	if size <= 0 {
		return nil, nil, fmt.Errorf("invalid target size %d", size)
	}

	frame, err := Load(data)
	if err != nil {
		return nil, nil, err
	}

	return ToTensor(CenterCrop(frame.Image), size), frame, nil
}
