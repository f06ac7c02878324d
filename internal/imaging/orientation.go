package imaging

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Orientation is the EXIF orientation tag (1-8).
type Orientation uint8

const (
	OrientationUp Orientation = iota + 1
	OrientationUpMirrored
	OrientationDown
	OrientationDownMirrored
	OrientationLeftMirrored
	OrientationRight
	OrientationRightMirrored
	OrientationLeft
)

var orientationNames = map[Orientation]string{
	OrientationUp:            "up",
	OrientationUpMirrored:    "upMirrored",
	OrientationDown:          "down",
	OrientationDownMirrored:  "downMirrored",
	OrientationLeftMirrored:  "leftMirrored",
	OrientationRight:         "right",
	OrientationRightMirrored: "rightMirrored",
	OrientationLeft:          "left",
}

func (o Orientation) Valid() bool {
	return o >= OrientationUp && o <= OrientationLeft
}

func (o Orientation) String() string {
	if name, ok := orientationNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Orientation(%d)", uint8(o))
}

// Orient returns img transformed so that it displays upright. Orientations
// 5-8 swap width and height.
func Orient(img image.Image, o Orientation) image.Image {
	if !o.Valid() || o == OrientationUp {
		return img
	}

	src := toRGBA(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()

	dw, dh := w, h
	if o >= OrientationLeftMirrored {
		dw, dh = h, w
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))

	var remap func(x, y int) (int, int)
	switch o {
	case OrientationUpMirrored:
		remap = func(x, y int) (int, int) { return w - 1 - x, y }
	case OrientationDown:
		remap = func(x, y int) (int, int) { return w - 1 - x, h - 1 - y }
	case OrientationDownMirrored:
		remap = func(x, y int) (int, int) { return x, h - 1 - y }
	case OrientationLeftMirrored:
		remap = func(x, y int) (int, int) { return y, x }
	case OrientationRight:
		remap = func(x, y int) (int, int) { return h - 1 - y, x }
	case OrientationRightMirrored:
		remap = func(x, y int) (int, int) { return h - 1 - y, w - 1 - x }
	case OrientationLeft:
		remap = func(x, y int) (int, int) { return y, w - 1 - x }
	}

	for y := 0; y < h; y++ {
		so := src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y+y)
		for x := 0; x < w; x, so = x+1, so+4 {
			dx, dy := remap(x, y)
			do := dst.PixOffset(dx, dy)
			copy(dst.Pix[do:do+4], src.Pix[so:so+4])
		}
	}
	return dst
}

// toRGBA returns img as *image.RGBA, converting other models in one draw.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Rect, img, b.Min, draw.Src)
	return rgba
}
