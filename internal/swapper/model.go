package swapper

import (
	"errors"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/dudu/swapface/internal/detector"
	"github.com/dudu/swapface/internal/inference"
)

// Config locates the swap model weights
type Config struct {
	ModelPath string // inswapper_128.onnx
	EmapPath  string // emap.bin extracted from the inswapper initializers
	Providers []inference.Provider
}

// FaceSwapper replaces a target face in a frame with the identity of a source face.
// It is safe for concurrent use: the ORT session is shared, all Mats are per call.
type FaceSwapper struct {
	log       *zap.Logger
	generator *Inswapper
	emap      *Emap
}

// NewFaceSwapper loads the inswapper generator and its emap
func NewFaceSwapper(log *zap.Logger, cfg Config) (*FaceSwapper, error) {
	emap, err := LoadEmap(cfg.EmapPath)
	if err != nil {
		return nil, err
	}

	generator, err := NewInswapper(log, cfg.ModelPath, cfg.Providers)
	if err != nil {
		return nil, err
	}

	log.Info("face swapper loaded",
		zap.String("model", cfg.ModelPath),
		zap.String("provider", string(generator.Provider())))

	return &FaceSwapper{log: log, generator: generator, emap: emap}, nil
}

// Swap renders source onto target and returns a new frame of the same size
func (s *FaceSwapper) Swap(frame *image.RGBA, target, source detector.Face) (*image.RGBA, error) {
	if source.Embedding == nil {
		return nil, errors.New("source face has no embedding")
	}

	mat, err := MatFromRGBA(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	aligned := AlignForInswapper(mat, target.Landmarks)
	defer aligned.Close()

	latent := s.emap.Latent(source.Embedding)

	swapped, err := s.generator.Generate(aligned.AlignedFace, latent)
	if err != nil {
		return nil, fmt.Errorf("failed to generate face: %w", err)
	}
	defer swapped.Close()

	PasteBack(&mat, swapped, aligned.Transform)

	return RGBAFromMat(mat)
}

// Close releases the generator session
func (s *FaceSwapper) Close() error {
	return s.generator.Close()
}
