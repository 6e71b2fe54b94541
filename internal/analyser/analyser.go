package analyser

import (
	"errors"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/dudu/swapface/internal/detector"
	"github.com/dudu/swapface/internal/inference"
	"github.com/dudu/swapface/internal/swapper"
)

// Config holds face analyser settings
type Config struct {
	DetectorPath   string // SCRFD-10G with 5-point landmarks
	RecognizerPath string // ArcFace w600k_r50
	InputSize      int
	ConfThreshold  float32
	NMSThreshold   float32
	Providers      []inference.Provider
}

// Analyser detects faces and attaches a normed identity embedding to each of them
type Analyser struct {
	log        *zap.Logger
	detector   *SCRFD
	recognizer *swapper.ArcFaceEncoder
}

// New loads the detector and recognizer sessions
func New(log *zap.Logger, cfg Config) (*Analyser, error) {
	det, err := NewSCRFD(log, SCRFDConfig{
		ModelPath:     cfg.DetectorPath,
		InputSize:     cfg.InputSize,
		ConfThreshold: cfg.ConfThreshold,
		NMSThreshold:  cfg.NMSThreshold,
		Providers:     cfg.Providers,
	})
	if err != nil {
		return nil, err
	}

	rec, err := swapper.NewArcFaceEncoder(log, cfg.RecognizerPath, cfg.Providers)
	if err != nil {
		det.Close()
		return nil, err
	}

	return &Analyser{log: log, detector: det, recognizer: rec}, nil
}

// Detect returns every face in the frame in detector order, highest score first
func (a *Analyser) Detect(frame *image.RGBA) ([]detector.Face, error) {
	mat, err := swapper.MatFromRGBA(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	faces, err := a.detector.Detect(mat)
	if err != nil {
		return nil, fmt.Errorf("failed to detect faces: %w", err)
	}

	for i := range faces {
		aligned := swapper.AlignForArcFace(mat, faces[i].Landmarks)
		embedding, err := a.recognizer.Extract(aligned.AlignedFace)
		aligned.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to extract embedding: %w", err)
		}
		faces[i].Embedding = embedding
	}

	a.log.Debug("faces detected", zap.Int("count", len(faces)))
	return faces, nil
}

// Close releases both sessions
func (a *Analyser) Close() error {
	return errors.Join(a.detector.Close(), a.recognizer.Close())
}
