package faceswap

import "errors"

var (
	// ErrNoSourceFace is returned when the source image contains no detectable face
	ErrNoSourceFace = errors.New("no face in source image")
	// ErrNoReference is returned when single-reference selection runs before a reference face is set
	ErrNoReference = errors.New("reference face not set")
	// ErrNoReferenceFace is returned when the sampled reference frame has no face
	ErrNoReferenceFace = errors.New("no face in reference frame")
	// ErrReferenceFrame is returned when the reference frame number is outside the frame sequence
	ErrReferenceFrame = errors.New("reference frame number out of range")
	// ErrUnsupportedTarget is returned when the target is neither an image nor a video
	ErrUnsupportedTarget = errors.New("unsupported target")
	// ErrValidation matches every *ValidationError
	ErrValidation = errors.New("validation failed")
)

// ValidationError reports why inputs were rejected before processing started.
// Reason is meant to be shown to the user as is.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Is makes errors.Is(err, ErrValidation) hold for any validation error
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
