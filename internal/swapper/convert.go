package swapper

import (
	"fmt"
	"image"
	"image/draw"

	"gocv.io/x/gocv"
)

// MatFromRGBA converts a frame into an 8-bit BGR Mat. The caller owns the Mat.
func MatFromRGBA(img *image.RGBA) (gocv.Mat, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to convert frame to mat: %w", err)
	}
	return mat, nil
}

// RGBAFromMat converts a BGR Mat back into a frame
func RGBAFromMat(mat gocv.Mat) (*image.RGBA, error) {
	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert mat to frame: %w", err)
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}

	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba, nil
}
