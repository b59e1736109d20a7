package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Layout defaults for comparison images.
const (
	DefaultHeight = 800
	DefaultGap    = 20
	JPEGQuality   = 90
)

var background = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// SideBySide scales left and right to the same height and places them next
// to each other, left first, separated by gap pixels of white.
func SideBySide(left, right image.Image, height, gap int) (*image.RGBA, error) {
	if left == nil || right == nil {
		return nil, errors.New("imaging: both images are required")
	}
	if height <= 0 {
		height = DefaultHeight
	}
	if gap < 0 {
		gap = 0
	}
	lw := scaledWidth(left.Bounds(), height)
	rw := scaledWidth(right.Bounds(), height)
	if lw == 0 || rw == 0 {
		return nil, errors.New("imaging: empty image")
	}

	canvas := image.NewRGBA(image.Rect(0, 0, lw+gap+rw, height))
	xdraw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: background}, image.Point{}, xdraw.Src)
	xdraw.CatmullRom.Scale(canvas, image.Rect(0, 0, lw, height), left, left.Bounds(), xdraw.Over, nil)
	xdraw.CatmullRom.Scale(canvas, image.Rect(lw+gap, 0, lw+gap+rw, height), right, right.Bounds(), xdraw.Over, nil)
	return canvas, nil
}

func scaledWidth(b image.Rectangle, height int) int {
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return 0
	}
	w := (b.Dx()*height + b.Dy()/2) / b.Dy()
	if w < 1 {
		w = 1
	}
	return w
}

// Decode reads any of jpeg, png, gif or webp.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("imaging: decode: %w", err)
	}
	return img, format, nil
}

// DecodeFile opens and decodes the image at path.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("imaging: open %s: %w", path, err)
	}
	defer f.Close()
	img, _, err := Decode(f)
	return img, err
}

// DecodeConfig returns the dimensions of an encoded image without decoding
// the pixels.
func DecodeConfig(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("imaging: decode config: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// EncodeJPEG writes img as a JPEG.
func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	if quality <= 0 || quality > 100 {
		quality = JPEGQuality
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}

// ComparisonJPEG builds the side-by-side image for two files and returns it
// JPEG encoded.
func ComparisonJPEG(leftPath, rightPath string, height, gap int) ([]byte, error) {
	left, err := DecodeFile(leftPath)
	if err != nil {
		return nil, err
	}
	right, err := DecodeFile(rightPath)
	if err != nil {
		return nil, err
	}
	canvas, err := SideBySide(left, right, height, gap)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := EncodeJPEG(&buf, canvas, JPEGQuality); err != nil {
		return nil, fmt.Errorf("imaging: encode comparison: %w", err)
	}
	return buf.Bytes(), nil
}
