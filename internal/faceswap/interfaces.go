package faceswap

import (
	"context"
	"image"

	"github.com/dudu/swapface/internal/detector"
)

// Analyser detects faces and their identity embeddings
type Analyser interface {
	Detect(frame *image.RGBA) ([]detector.Face, error)
}

// Swapper renders the source identity over the target face of a frame
type Swapper interface {
	Swap(frame *image.RGBA, target, source detector.Face) (*image.RGBA, error)
}

// Codec reads and writes frames on disk
type Codec interface {
	Decode(path string) (*image.RGBA, error)
	Encode(frame *image.RGBA, path string) error
}

// Sniffer classifies files by content
type Sniffer interface {
	IsImage(path string) bool
	IsVideo(path string) bool
}

// FramesFunc processes a shard of frame files, calling onFaceSwapped once per swapped face
type FramesFunc = func(sourcePath string, framePaths []string, onFaceSwapped func()) error

// FrameDriver dispatches frame shards to process and reports progress
type FrameDriver interface {
	Run(ctx context.Context, sourcePath string, framePaths []string, process FramesFunc) error
}

// WeightsFetcher makes sure model weights are available locally
type WeightsFetcher interface {
	Ensure(ctx context.Context) error
}
