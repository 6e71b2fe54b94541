package detector

import "math"

// EmbeddingSize is the length of an ArcFace identity embedding
const EmbeddingSize = 512

// Point represents a 2D point
type Point struct {
	X, Y float32
}

// BoundingBox represents a face bounding box
type BoundingBox struct {
	X1, Y1 float32 // top-left
	X2, Y2 float32 // bottom-right
}

// Width returns box width
func (b BoundingBox) Width() float32 {
	return b.X2 - b.X1
}

// Height returns box height
func (b BoundingBox) Height() float32 {
	return b.Y2 - b.Y1
}

// Area returns box area
func (b BoundingBox) Area() float32 {
	if b.X2 <= b.X1 || b.Y2 <= b.Y1 {
		return 0
	}
	return b.Width() * b.Height()
}

// Landmarks represents 5 facial landmark points
type Landmarks struct {
	LeftEye    Point // index 0
	RightEye   Point // index 1
	Nose       Point // index 2
	LeftMouth  Point // index 3
	RightMouth Point // index 4
}

// Points returns the landmarks in model order
func (l Landmarks) Points() [5]Point {
	return [5]Point{l.LeftEye, l.RightEye, l.Nose, l.LeftMouth, l.RightMouth}
}

// Embedding is an identity embedding. Values produced by the recognizer are L2-normalized.
type Embedding [EmbeddingSize]float32

// Normalize returns a unit-length copy of e. A zero vector is returned unchanged.
func (e *Embedding) Normalize() *Embedding {
	var norm float64
	for _, v := range e {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)

	out := *e
	if norm < 1e-10 {
		return &out
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / norm)
	}
	return &out
}

// Distance returns the squared euclidean distance between two normed embeddings.
// It ranges from 0 (same identity) to 4 (opposite vectors).
func (e *Embedding) Distance(other *Embedding) float32 {
	var sum float32
	for i := range e {
		d := e[i] - other[i]
		sum += d * d
	}
	return sum
}

// Face represents a detected face
type Face struct {
	BoundingBox BoundingBox
	Landmarks   Landmarks // 5-point from SCRFD
	Score       float32
	Embedding   *Embedding // nil until the recognizer ran
}
