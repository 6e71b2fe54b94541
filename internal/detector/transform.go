package detector

// ArcFace reference landmarks for a 112x112 aligned face
var arcfaceTemplate = [5]Point{
	{X: 38.2946, Y: 51.6963}, // left eye
	{X: 73.5318, Y: 51.5014}, // right eye
	{X: 56.0252, Y: 71.7366}, // nose
	{X: 41.5493, Y: 92.3655}, // left mouth
	{X: 70.7299, Y: 92.2041}, // right mouth
}

// AlignmentTemplate returns the reference landmarks for a square crop of the given size.
// Sizes divisible by 112 scale the ArcFace template, sizes divisible by 128 also shift it right.
func AlignmentTemplate(size int) [5]Point {
	var ratio, shift float32
	if size%112 == 0 {
		ratio = float32(size) / 112
	} else {
		ratio = float32(size) / 128
		shift = 8 * ratio
	}

	var dst [5]Point
	for i, p := range arcfaceTemplate {
		dst[i] = Point{X: p.X*ratio + shift, Y: p.Y * ratio}
	}
	return dst
}

// Affine is a 2x3 affine transform in row-major order
type Affine [2][3]float64

// Apply maps a point through the transform
func (m Affine) Apply(p Point) Point {
	x, y := float64(p.X), float64(p.Y)
	return Point{
		X: float32(m[0][0]*x + m[0][1]*y + m[0][2]),
		Y: float32(m[1][0]*x + m[1][1]*y + m[1][2]),
	}
}

// Invert returns the inverse transform. A singular transform yields the zero Affine.
func (m Affine) Invert() Affine {
	det := m[0][0]*m[1][1] - m[0][1]*m[1][0]
	if det == 0 {
		return Affine{}
	}
	a := m[1][1] / det
	b := -m[0][1] / det
	c := -m[1][0] / det
	d := m[0][0] / det
	return Affine{
		{a, b, -(a*m[0][2] + b*m[1][2])},
		{c, d, -(c*m[0][2] + d*m[1][2])},
	}
}

// EstimateSimilarity computes the least-squares similarity transform
// (rotation, uniform scale, translation) mapping src onto dst.
func EstimateSimilarity(src, dst [5]Point) Affine {
	n := float64(len(src))

	var scx, scy, dcx, dcy float64
	for i := range src {
		scx += float64(src[i].X)
		scy += float64(src[i].Y)
		dcx += float64(dst[i].X)
		dcy += float64(dst[i].Y)
	}
	scx, scy, dcx, dcy = scx/n, scy/n, dcx/n, dcy/n

	var dot, cross, variance float64
	for i := range src {
		px, py := float64(src[i].X)-scx, float64(src[i].Y)-scy
		qx, qy := float64(dst[i].X)-dcx, float64(dst[i].Y)-dcy
		dot += px*qx + py*qy
		cross += px*qy - py*qx
		variance += px*px + py*py
	}
	if variance < 1e-12 {
		return Affine{{1, 0, dcx - scx}, {0, 1, dcy - scy}}
	}

	// scale*cos and scale*sin
	c := dot / variance
	s := cross / variance

	return Affine{
		{c, -s, dcx - (c*scx - s*scy)},
		{s, c, dcy - (s*scx + c*scy)},
	}
}
