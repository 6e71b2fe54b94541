package media

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/disintegration/imaging"
)

// Codec reads and writes frames, choosing the format from the file extension
type Codec struct {
	jpegQuality int
}

// NewCodec creates a codec. jpegQuality outside [1, 100] falls back to 95.
func NewCodec(jpegQuality int) *Codec {
	if jpegQuality < 1 || jpegQuality > 100 {
		jpegQuality = 95
	}
	return &Codec{jpegQuality: jpegQuality}
}

// Decode loads an image honoring its EXIF orientation
func (c *Codec) Decode(path string) (*image.RGBA, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return toRGBA(img), nil
}

// Encode writes frame to path
func (c *Codec) Encode(frame *image.RGBA, path string) error {
	if err := imaging.Save(frame, path, imaging.JPEGQuality(c.jpegQuality)); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
