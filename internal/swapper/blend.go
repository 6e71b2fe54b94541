package swapper

import (
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/dudu/swapface/internal/detector"
)

// PasteBack warps the swapped crop back into frame and feather-blends it over the original pixels.
// frame is modified in place.
func PasteBack(frame *gocv.Mat, swapped gocv.Mat, transform detector.Affine) {
	inverse := transform.Invert()
	invMat := affineToMat(inverse)
	defer invMat.Close()

	frameSize := image.Pt(frame.Cols(), frame.Rows())

	warpedFace := gocv.NewMat()
	defer warpedFace.Close()
	gocv.WarpAffineWithParams(swapped, &warpedFace, invMat, frameSize,
		gocv.InterpolationLinear, gocv.BorderConstant, gocv.NewScalar(0, 0, 0, 0))

	white := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 0, 0, 0), swapped.Rows(), swapped.Cols(), gocv.MatTypeCV8U)
	defer white.Close()

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.WarpAffineWithParams(white, &mask, invMat, frameSize,
		gocv.InterpolationLinear, gocv.BorderConstant, gocv.NewScalar(0, 0, 0, 0))
	gocv.Threshold(mask, &mask, 20, 255, gocv.ThresholdBinary)

	soft := featherMask(mask, cropExtent(inverse, swapped.Cols()))
	defer soft.Close()

	blend(frame, warpedFace, soft)
}

// cropExtent estimates the pasted face size from the crop corners mapped into the frame
func cropExtent(inverse detector.Affine, size int) float64 {
	s := float32(size)
	corners := [4]detector.Point{{X: 0, Y: 0}, {X: s, Y: 0}, {X: 0, Y: s}, {X: s, Y: s}}

	minX, minY := float32(math.MaxFloat32), float32(math.MaxFloat32)
	maxX, maxY := float32(-math.MaxFloat32), float32(-math.MaxFloat32)
	for _, c := range corners {
		p := inverse.Apply(c)
		minX, maxX = min(minX, p.X), max(maxX, p.X)
		minY, maxY = min(minY, p.Y), max(maxY, p.Y)
	}

	return math.Sqrt(float64(maxX-minX) * float64(maxY-minY))
}

// featherMask erodes the hard mask and blurs its edge proportionally to the face size
func featherMask(mask gocv.Mat, extent float64) gocv.Mat {
	erodeSize := max(int(extent)/10, 10)
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(erodeSize, erodeSize))
	defer kernel.Close()

	eroded := gocv.NewMat()
	defer eroded.Close()
	gocv.Erode(mask, &eroded, kernel)

	blurSize := 2*max(int(extent)/20, 5) + 1
	blurred := gocv.NewMat()
	gocv.GaussianBlur(eroded, &blurred, image.Pt(blurSize, blurSize), 0, 0, gocv.BorderDefault)

	return blurred
}

// blend computes frame = face*alpha + frame*(1-alpha) with alpha = mask/255
func blend(frame *gocv.Mat, face gocv.Mat, mask gocv.Mat) {
	alpha := gocv.NewMat()
	defer alpha.Close()
	mask.ConvertToWithParams(&alpha, gocv.MatTypeCV32F, 1.0/255.0, 0)

	alpha3 := gocv.NewMat()
	defer alpha3.Close()
	gocv.Merge([]gocv.Mat{alpha, alpha, alpha}, &alpha3)

	ones := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(1, 1, 1, 0), frame.Rows(), frame.Cols(), gocv.MatTypeCV32FC3)
	defer ones.Close()
	inverse := gocv.NewMat()
	defer inverse.Close()
	gocv.Subtract(ones, alpha3, &inverse)

	faceF := gocv.NewMat()
	defer faceF.Close()
	face.ConvertTo(&faceF, gocv.MatTypeCV32FC3)

	frameF := gocv.NewMat()
	defer frameF.Close()
	frame.ConvertTo(&frameF, gocv.MatTypeCV32FC3)

	gocv.Multiply(faceF, alpha3, &faceF)
	gocv.Multiply(frameF, inverse, &frameF)

	sum := gocv.NewMat()
	defer sum.Close()
	gocv.Add(faceF, frameF, &sum)

	sum.ConvertTo(frame, gocv.MatTypeCV8UC3)
}
