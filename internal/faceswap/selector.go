package faceswap

import (
	"fmt"
	"image"
	"slices"

	"github.com/dudu/swapface/internal/detector"
)

// DefaultSimilarFaceDistance is the largest embedding distance still treated as the same identity
const DefaultSimilarFaceDistance = 0.85

// Mode selects which detected faces of a frame are replaced
type Mode int

const (
	// ModeSingleReference replaces only the face matching the reference face
	ModeSingleReference Mode = iota
	// ModeAllFaces replaces every detected face
	ModeAllFaces
)

func (m Mode) String() string {
	switch m {
	case ModeSingleReference:
		return "single-reference"
	case ModeAllFaces:
		return "all-faces"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Selector picks the faces of a frame to operate on
type Selector struct {
	analyser    Analyser
	maxDistance float32
}

// NewSelector creates a selector. A non-positive maxDistance uses DefaultSimilarFaceDistance.
func NewSelector(analyser Analyser, maxDistance float32) *Selector {
	if maxDistance <= 0 {
		maxDistance = DefaultSimilarFaceDistance
	}
	return &Selector{analyser: analyser, maxDistance: maxDistance}
}

// Select returns the faces of frame to swap.
// In ModeAllFaces it returns every detected face. In ModeSingleReference it returns at most
// the one face closest to reference, and nothing when no face is close enough.
func (s *Selector) Select(frame *image.RGBA, mode Mode, reference *detector.Face) ([]detector.Face, error) {
	if mode == ModeSingleReference {
		if reference == nil {
			return nil, ErrNoReference
		}
		if reference.Embedding == nil {
			return nil, fmt.Errorf("%w: reference face has no embedding", ErrNoReference)
		}
	}

	faces, err := s.analyser.Detect(frame)
	if err != nil {
		return nil, err
	}

	if mode == ModeAllFaces {
		return faces, nil
	}

	face, ok := FindSimilar(faces, *reference, s.maxDistance)
	if !ok {
		return nil, nil
	}
	return []detector.Face{face}, nil
}

// FindSimilar returns the face with the smallest embedding distance to reference,
// provided the distance is below maxDistance. Equal distances go to the leftmost face.
func FindSimilar(faces []detector.Face, reference detector.Face, maxDistance float32) (detector.Face, bool) {
	if reference.Embedding == nil {
		return detector.Face{}, false
	}

	var (
		best     detector.Face
		bestDist float32
		found    bool
	)
	for _, face := range faces {
		if face.Embedding == nil {
			continue
		}
		dist := face.Embedding.Distance(reference.Embedding)
		if dist >= maxDistance {
			continue
		}
		if !found || dist < bestDist || (dist == bestDist && leftOf(face, best)) {
			best, bestDist, found = face, dist, true
		}
	}
	return best, found
}

func leftOf(a, b detector.Face) bool {
	if a.BoundingBox.X1 != b.BoundingBox.X1 {
		return a.BoundingBox.X1 < b.BoundingBox.X1
	}
	return a.BoundingBox.Y1 < b.BoundingBox.Y1
}

// FaceAt orders faces left to right and returns the one at position.
// Positions past the end yield the rightmost face; ok is false only when there are no faces.
func FaceAt(faces []detector.Face, position int) (detector.Face, bool) {
	if len(faces) == 0 {
		return detector.Face{}, false
	}

	sorted := slices.Clone(faces)
	slices.SortStableFunc(sorted, func(a, b detector.Face) int {
		switch {
		case a.BoundingBox.X1 < b.BoundingBox.X1:
			return -1
		case a.BoundingBox.X1 > b.BoundingBox.X1:
			return 1
		default:
			return 0
		}
	})

	position = max(position, 0)
	if position >= len(sorted) {
		position = len(sorted) - 1
	}
	return sorted[position], true
}
