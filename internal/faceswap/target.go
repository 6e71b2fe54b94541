package faceswap

import "fmt"

// TargetKind tells how a target is processed
type TargetKind int

const (
	// TargetImage is a still image, swapped in one pass
	TargetImage TargetKind = iota + 1
	// TargetVideo is a video, swapped frame by frame after extraction
	TargetVideo
)

func (k TargetKind) String() string {
	switch k {
	case TargetImage:
		return "image"
	case TargetVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Target is a target path classified once at the boundary of a run
type Target struct {
	Kind TargetKind
	Path string
}

// ResolveTarget sniffs path and classifies it as an image or a video
func ResolveTarget(sniffer Sniffer, path string) (Target, error) {
	switch {
	case sniffer.IsImage(path):
		return Target{Kind: TargetImage, Path: path}, nil
	case sniffer.IsVideo(path):
		return Target{Kind: TargetVideo, Path: path}, nil
	default:
		return Target{}, fmt.Errorf("%w: %s", ErrUnsupportedTarget, path)
	}
}
