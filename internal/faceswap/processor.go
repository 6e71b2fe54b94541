package faceswap

import (
	"context"
	"fmt"
	"image"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dudu/swapface/internal/detector"
)

// Options are the per-run settings the pipeline reads
type Options struct {
	ManyFaces             bool    // swap every face instead of tracking a reference face
	ReferenceFacePosition int     // which face (left to right) of the reference frame to track
	ReferenceFrameNumber  int     // which frame of a video to sample the reference face from
	SimilarFaceDistance   float32 // max embedding distance for a reference match
}

// Mode returns the selection mode implied by the options
func (o Options) Mode() Mode {
	if o.ManyFaces {
		return ModeAllFaces
	}
	return ModeSingleReference
}

// Deps are the collaborators of a Processor. Model is required,
// a nil Reference gets a fresh store.
type Deps struct {
	Analyser  Analyser
	Model     *Handle[Swapper]
	Reference *ReferenceStore
	Codec     Codec
	Sniffer   Sniffer
	Driver    FrameDriver
	Weights   WeightsFetcher
}

// Processor runs face swaps over images and frame sequences
type Processor struct {
	log       *zap.Logger
	opts      Options
	analyser  Analyser
	selector  *Selector
	model     *Handle[Swapper]
	reference *ReferenceStore
	codec     Codec
	sniffer   Sniffer
	driver    FrameDriver
	weights   WeightsFetcher
	swapped   atomic.Int64
}

// NewProcessor wires a processor from its collaborators
func NewProcessor(log *zap.Logger, opts Options, deps Deps) *Processor {
	reference := deps.Reference
	if reference == nil {
		reference = NewReferenceStore()
	}

	return &Processor{
		log:       log.Named("FACE-SWAPPER"),
		opts:      opts,
		analyser:  deps.Analyser,
		selector:  NewSelector(deps.Analyser, opts.SimilarFaceDistance),
		model:     deps.Model,
		reference: reference,
		codec:     deps.Codec,
		sniffer:   deps.Sniffer,
		driver:    deps.Driver,
		weights:   deps.Weights,
	}
}

// Reference exposes the reference face store of this processor
func (p *Processor) Reference() *ReferenceStore {
	return p.reference
}

// Swapped returns the number of faces swapped so far
func (p *Processor) Swapped() int64 {
	return p.swapped.Load()
}

// SwapFace replaces target in frame with the identity of source
func (p *Processor) SwapFace(source, target detector.Face, frame *image.RGBA) (*image.RGBA, error) {
	model, err := p.model.Acquire()
	if err != nil {
		return nil, fmt.Errorf("failed to load swap model: %w", err)
	}
	return model.Swap(frame, target, source)
}

// ProcessFrame swaps every selected face of frame. A frame without selected faces is returned as is.
func (p *Processor) ProcessFrame(source detector.Face, reference *detector.Face, frame *image.RGBA, mode Mode, onFaceSwapped func()) (*image.RGBA, error) {
	targets, err := p.selector.Select(frame, mode, reference)
	if err != nil {
		return nil, err
	}
	return p.swapFaces(source, targets, frame, onFaceSwapped)
}

func (p *Processor) swapFaces(source detector.Face, targets []detector.Face, frame *image.RGBA, onFaceSwapped func()) (*image.RGBA, error) {
	var err error
	for _, target := range targets {
		frame, err = p.SwapFace(source, target, frame)
		if err != nil {
			return nil, err
		}
		p.swapped.Add(1)
		if onFaceSwapped != nil {
			onFaceSwapped()
		}
	}
	return frame, nil
}

// ProcessImage swaps the source face into a still target image and writes the result to outputPath
func (p *Processor) ProcessImage(sourcePath, targetPath, outputPath string) error {
	source, err := p.sourceFace(sourcePath)
	if err != nil {
		return err
	}

	target, err := p.codec.Decode(targetPath)
	if err != nil {
		return fmt.Errorf("failed to decode target: %w", err)
	}

	mode := p.opts.Mode()
	if mode == ModeAllFaces {
		result, err := p.ProcessFrame(source, nil, target, mode, nil)
		if err != nil {
			return err
		}
		return p.codec.Encode(result, outputPath)
	}

	// the image is its own reference frame, one detection pass serves both
	faces, err := p.analyser.Detect(target)
	if err != nil {
		return fmt.Errorf("failed to detect target faces: %w", err)
	}
	reference, ok := FaceAt(faces, p.opts.ReferenceFacePosition)
	if !ok {
		p.log.Warn("no face in target image", zap.String("target", targetPath))
		return p.codec.Encode(target, outputPath)
	}

	var targets []detector.Face
	if face, ok := FindSimilar(faces, reference, p.selector.maxDistance); ok {
		targets = append(targets, face)
	}

	result, err := p.swapFaces(source, targets, target, nil)
	if err != nil {
		return err
	}
	return p.codec.Encode(result, outputPath)
}

// ProcessFrames swaps faces in each frame file and overwrites it in place.
// The first decode, detection, swap or encode failure aborts the remaining frames.
func (p *Processor) ProcessFrames(sourcePath string, framePaths []string, onFaceSwapped func()) error {
	source, err := p.sourceFace(sourcePath)
	if err != nil {
		return err
	}

	mode := p.opts.Mode()
	var reference *detector.Face
	if mode == ModeSingleReference {
		face, ok := p.reference.Get()
		if !ok {
			return ErrNoReference
		}
		reference = &face
	}

	for _, path := range framePaths {
		frame, err := p.codec.Decode(path)
		if err != nil {
			return fmt.Errorf("failed to decode frame %s: %w", path, err)
		}

		result, err := p.ProcessFrame(source, reference, frame, mode, onFaceSwapped)
		if err != nil {
			return fmt.Errorf("failed to process frame %s: %w", path, err)
		}

		if err := p.codec.Encode(result, path); err != nil {
			return fmt.Errorf("failed to write frame %s: %w", path, err)
		}
	}
	return nil
}

// ProcessVideo establishes the reference face if needed, then hands the frames to the driver
func (p *Processor) ProcessVideo(ctx context.Context, sourcePath string, framePaths []string) error {
	if p.opts.Mode() == ModeSingleReference {
		if _, ok := p.reference.Get(); !ok {
			if err := p.establishReference(framePaths); err != nil {
				return err
			}
		}
	}

	return p.driver.Run(ctx, sourcePath, framePaths, p.ProcessFrames)
}

func (p *Processor) establishReference(framePaths []string) error {
	n := p.opts.ReferenceFrameNumber
	if n < 0 || n >= len(framePaths) {
		return fmt.Errorf("%w: frame %d of %d", ErrReferenceFrame, n, len(framePaths))
	}

	frame, err := p.codec.Decode(framePaths[n])
	if err != nil {
		return fmt.Errorf("failed to decode reference frame: %w", err)
	}

	faces, err := p.analyser.Detect(frame)
	if err != nil {
		return fmt.Errorf("failed to detect reference faces: %w", err)
	}

	face, ok := FaceAt(faces, p.opts.ReferenceFacePosition)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoReferenceFace, framePaths[n])
	}

	p.reference.Set(face)
	p.log.Info("reference face set",
		zap.Int("frame", n),
		zap.Int("position", p.opts.ReferenceFacePosition))
	return nil
}

// sourceFace returns the leftmost face of the source image
func (p *Processor) sourceFace(path string) (detector.Face, error) {
	frame, err := p.codec.Decode(path)
	if err != nil {
		return detector.Face{}, fmt.Errorf("failed to decode source: %w", err)
	}

	faces, err := p.analyser.Detect(frame)
	if err != nil {
		return detector.Face{}, fmt.Errorf("failed to detect source faces: %w", err)
	}

	face, ok := FaceAt(faces, 0)
	if !ok {
		return detector.Face{}, ErrNoSourceFace
	}
	return face, nil
}

