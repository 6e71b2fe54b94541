package faceswap

import (
	"context"
	"errors"
	"fmt"
)

// PreCheck makes sure the model weights are present, downloading them when missing
func (p *Processor) PreCheck(ctx context.Context) error {
	if p.weights == nil {
		return nil
	}
	if err := p.weights.Ensure(ctx); err != nil {
		return fmt.Errorf("failed to prepare model weights: %w", err)
	}
	return nil
}

// PreStart validates the run inputs. Rejections are returned as *ValidationError.
func (p *Processor) PreStart(sourcePath, targetPath string) error {
	if !p.sniffer.IsImage(sourcePath) {
		return p.reject("Select an image for source path.")
	}

	if _, err := p.sourceFace(sourcePath); err != nil {
		if errors.Is(err, ErrNoSourceFace) {
			return p.reject("No face in source path detected.")
		}
		return err
	}

	if !p.sniffer.IsImage(targetPath) && !p.sniffer.IsVideo(targetPath) {
		return p.reject("Select an image or video for target path.")
	}
	return nil
}

// PostProcess releases the swap model, forgets the reference face and resets the swap count.
// It runs at the end of every run, successful or not.
func (p *Processor) PostProcess() error {
	p.reference.Clear()
	p.swapped.Store(0)
	if err := p.model.Invalidate(); err != nil {
		return fmt.Errorf("failed to release swap model: %w", err)
	}
	return nil
}

func (p *Processor) reject(reason string) error {
	p.log.Warn(reason)
	return &ValidationError{Reason: reason}
}
