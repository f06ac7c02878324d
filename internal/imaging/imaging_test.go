package imaging

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"testing"
)

var (
	red   = color.RGBA{R: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
	blue  = color.RGBA{B: 255, A: 255}
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func sameColor(a, b color.Color) bool {
	r1, g1, b1, a1 := a.RGBA()
	r2, g2, b2, a2 := b.RGBA()
	return r1 == r2 && g1 == g2 && b1 == b2 && a1 == a2
}

// strip is a 3x1 image: red, green, blue from left to right.
func strip() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 3, 1))
	img.Set(0, 0, red)
	img.Set(1, 0, green)
	img.Set(2, 0, blue)
	return img
}

func TestOrient(t *testing.T) {
	tests := []struct {
		o    Orientation
		w, h int
		// colour expected at (0,0) and at the far corner
		first, last color.Color
	}{
		{OrientationUp, 3, 1, red, blue},
		{OrientationUpMirrored, 3, 1, blue, red},
		{OrientationDown, 3, 1, blue, red},
		{OrientationDownMirrored, 3, 1, red, blue},
		{OrientationLeftMirrored, 1, 3, red, blue},
		{OrientationRight, 1, 3, red, blue},
		{OrientationRightMirrored, 1, 3, blue, red},
		{OrientationLeft, 1, 3, blue, red},
	}

	for _, tt := range tests {
		t.Run(tt.o.String(), func(t *testing.T) {
			got := Orient(strip(), tt.o)
			b := got.Bounds()
			if b.Dx() != tt.w || b.Dy() != tt.h {
				t.Fatalf("bounds = %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.w, tt.h)
			}
			if !sameColor(got.At(0, 0), tt.first) {
				t.Errorf("At(0,0) = %v, want %v", got.At(0, 0), tt.first)
			}
			if !sameColor(got.At(b.Max.X-1, b.Max.Y-1), tt.last) {
				t.Errorf("far corner = %v, want %v", got.At(b.Max.X-1, b.Max.Y-1), tt.last)
			}
		})
	}
}

func TestOrientInvalidIsIdentity(t *testing.T) {
	img := strip()
	if got := Orient(img, Orientation(0)); got != image.Image(img) {
		t.Error("Orient(0) did not return the input")
	}
	if got := Orient(img, Orientation(9)); got != image.Image(img) {
		t.Error("Orient(9) did not return the input")
	}
	if Orientation(9).Valid() {
		t.Error("Orientation(9).Valid() = true")
	}
	if got := Orientation(9).String(); got != "Orientation(9)" {
		t.Errorf("String() = %q", got)
	}
}

func TestCenterCrop(t *testing.T) {
	img := solid(6, 4, white)
	img.Set(1, 0, red)  // inside the crop window
	img.Set(0, 0, blue) // outside it

	got := CenterCrop(img)
	b := got.Bounds()
	if b.Dx() != 4 || b.Dy() != 4 {
		t.Fatalf("bounds = %v, want 4x4", b)
	}
	if !sameColor(got.At(0, 0), red) {
		t.Errorf("At(0,0) = %v, want red", got.At(0, 0))
	}

	square := solid(5, 5, white)
	if CenterCrop(square) != image.Image(square) {
		t.Error("square input should be returned as is")
	}

	tall := CenterCrop(solid(2, 8, white))
	if tall.Bounds().Dx() != 2 || tall.Bounds().Dy() != 2 {
		t.Errorf("tall crop bounds = %v, want 2x2", tall.Bounds())
	}
}

func TestToTensorLayout(t *testing.T) {
	const size = 4
	data := ToTensor(solid(10, 10, red), size)

	plane := size * size
	if len(data) != 3*plane {
		t.Fatalf("len = %d, want %d", len(data), 3*plane)
	}
	for i := 0; i < plane; i++ {
		if math.Abs(float64(data[i])-1) > 1e-3 {
			t.Fatalf("red[%d] = %v, want 1", i, data[i])
		}
		if data[plane+i] > 1e-3 || data[2*plane+i] > 1e-3 {
			t.Fatalf("green/blue[%d] = %v/%v, want 0", i, data[plane+i], data[2*plane+i])
		}
	}
}

func TestPrepare(t *testing.T) {
	data := encodePNG(t, solid(40, 20, green))

	tensor, frame, err := Prepare(data, 8)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if frame.Format != "png" {
		t.Errorf("Format = %q, want png", frame.Format)
	}
	if frame.Orientation != OrientationUp {
		t.Errorf("Orientation = %v, want up", frame.Orientation)
	}
	if len(tensor) != 3*8*8 {
		t.Errorf("len(tensor) = %d, want %d", len(tensor), 3*8*8)
	}
	if math.Abs(float64(tensor[64])-1) > 1e-3 {
		t.Errorf("green plane = %v, want 1", tensor[64])
	}
}

func TestPrepareRejectsGarbage(t *testing.T) {
	_, _, err := Prepare([]byte("definitely not an image"), 8)
	if !errors.Is(err, ErrUnsupportedImage) {
		t.Errorf("err = %v, want ErrUnsupportedImage", err)
	}

	if _, _, err := Prepare(encodePNG(t, solid(2, 2, red)), 0); err == nil {
		t.Error("size 0 accepted")
	}
}

func TestReadOrientationWithoutEXIF(t *testing.T) {
	data := encodePNG(t, solid(2, 2, red))
	if got := ReadOrientation(bytes.NewReader(data)); got != OrientationUp {
		t.Errorf("ReadOrientation = %v, want up", got)
	}
}

func pngChunk(typ string, data []byte) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(len(data)))
	buf.WriteString(typ)
	buf.Write(data)
	crc := crc32.NewIEEE()
	crc.Write([]byte(typ))
	crc.Write(data)
	binary.Write(&buf, binary.BigEndian, crc.Sum32())
	return buf.Bytes()
}

// oversizedPNG is a few dozen bytes whose header claims width×height pixels.
func oversizedPNG(width, height uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], width)
	binary.BigEndian.PutUint32(ihdr[4:], height)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	buf.Write(pngChunk("IHDR", ihdr))
	buf.Write(pngChunk("IDAT", []byte{0x78, 0x9c, 0x03, 0x00, 0x00, 0x00, 0x00, 0x01}))
	buf.Write(pngChunk("IEND", nil))
	return buf.Bytes()
}

func TestPrepareRejectsOversizedImage(t *testing.T) {
	data := oversizedPNG(40000, 40000)

	_, _, err := Prepare(data, 8)
	if !errors.Is(err, ErrUnsupportedImage) {
		t.Fatalf("err = %v, want ErrUnsupportedImage", err)
	}

	if _, _, err := Decode(bytes.NewReader(oversizedPNG(MaxPixels+1, 1))); !errors.Is(err, ErrUnsupportedImage) {
		t.Errorf("one pixel over the cap: err = %v, want ErrUnsupportedImage", err)
	}
}

// withOrientation inserts an EXIF APP1 segment carrying tag 0x0112 right
// after the JPEG SOI marker.
func withOrientation(t *testing.T, jpg []byte, o Orientation) []byte {
	t.Helper()
	if len(jpg) < 2 || jpg[0] != 0xFF || jpg[1] != 0xD8 {
		t.Fatal("not a JPEG")
	}

	var tiff bytes.Buffer
	tiff.WriteString("MM")
	binary.Write(&tiff, binary.BigEndian, uint16(42))
	binary.Write(&tiff, binary.BigEndian, uint32(8)) // IFD0 offset
	binary.Write(&tiff, binary.BigEndian, uint16(1)) // entry count
	binary.Write(&tiff, binary.BigEndian, uint16(0x0112))
	binary.Write(&tiff, binary.BigEndian, uint16(3)) // SHORT
	binary.Write(&tiff, binary.BigEndian, uint32(1))
	binary.Write(&tiff, binary.BigEndian, uint16(o))
	binary.Write(&tiff, binary.BigEndian, uint16(0))
	binary.Write(&tiff, binary.BigEndian, uint32(0)) // no next IFD

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)

	var out bytes.Buffer
	out.Write(jpg[:2])
	out.Write([]byte{0xFF, 0xE1})
	binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(jpg[2:])
	return out.Bytes()
}

func TestLoadAppliesEXIFOrientation(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, solid(40, 20, white), nil); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	data := withOrientation(t, buf.Bytes(), OrientationRight)

	if got := ReadOrientation(bytes.NewReader(data)); got != OrientationRight {
		t.Fatalf("ReadOrientation = %v, want right", got)
	}

	frame, err := Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if frame.Format != "jpeg" {
		t.Errorf("Format = %q, want jpeg", frame.Format)
	}
	if frame.Orientation != OrientationRight {
		t.Errorf("Orientation = %v, want right", frame.Orientation)
	}
	if b := frame.Image.Bounds(); b.Dx() != 20 || b.Dy() != 40 {
		t.Errorf("bounds = %v, want 20x40", b)
	}
}

func TestOrientNonRGBASource(t *testing.T) {
	// strip() placed at an offset origin and held as NRGBA
	src := image.NewNRGBA(image.Rect(5, 7, 8, 8))
	src.Set(5, 7, red)
	src.Set(6, 7, green)
	src.Set(7, 7, blue)

	got := Orient(src, OrientationRight)
	if b := got.Bounds(); b.Dx() != 1 || b.Dy() != 3 || b.Min != (image.Point{}) {
		t.Fatalf("bounds = %v, want (0,0)-(1,3)", b)
	}
	for y, want := range []color.Color{red, green, blue} {
		if !sameColor(got.At(0, y), want) {
			t.Errorf("At(0,%d) = %v, want %v", y, got.At(0, y), want)
		}
	}

	sub := strip().SubImage(image.Rect(1, 0, 3, 1))
	flipped := Orient(sub, OrientationUpMirrored)
	if !sameColor(flipped.At(0, 0), blue) || !sameColor(flipped.At(1, 0), green) {
		t.Errorf("mirrored sub-image = %v, %v", flipped.At(0, 0), flipped.At(1, 0))
	}
}
