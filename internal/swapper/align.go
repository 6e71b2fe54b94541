package swapper

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/dudu/swapface/internal/detector"
)

const (
	arcfaceSize   = 112
	inswapperSize = 128
)

// AlignResult contains alignment results
type AlignResult struct {
	AlignedFace gocv.Mat        // the aligned face crop
	Transform   detector.Affine // frame -> crop
}

// Close releases the aligned crop
func (r *AlignResult) Close() {
	r.AlignedFace.Close()
}

// AlignForArcFace aligns a face to 112x112 for ArcFace embedding
func AlignForArcFace(img gocv.Mat, landmarks detector.Landmarks) *AlignResult {
	return alignFace(img, landmarks, arcfaceSize)
}

// AlignForInswapper aligns a face to 128x128 for Inswapper
func AlignForInswapper(img gocv.Mat, landmarks detector.Landmarks) *AlignResult {
	return alignFace(img, landmarks, inswapperSize)
}

func alignFace(img gocv.Mat, landmarks detector.Landmarks, size int) *AlignResult {
	transform := detector.EstimateSimilarity(landmarks.Points(), detector.AlignmentTemplate(size))

	m := affineToMat(transform)
	defer m.Close()

	aligned := gocv.NewMat()
	gocv.WarpAffineWithParams(img, &aligned, m, image.Pt(size, size),
		gocv.InterpolationLinear, gocv.BorderConstant, gocv.NewScalar(0, 0, 0, 0))

	return &AlignResult{
		AlignedFace: aligned,
		Transform:   transform,
	}
}

func affineToMat(a detector.Affine) gocv.Mat {
	m := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	for r := range 2 {
		for c := range 3 {
			m.SetDoubleAt(r, c, a[r][c])
		}
	}
	return m
}
