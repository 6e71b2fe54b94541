package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"

	"github.com/dudu/swapface/internal/inference"
)

// Model file names inside the models directory
const (
	DetectorModel   = "det_10g.onnx"
	RecognizerModel = "w600k_r50.onnx"
	SwapperModel    = "inswapper_128.onnx"
	EmapFile        = "emap.bin"
)

// Environment variables read as fallbacks for unset options
const (
	EnvModelsDir         = "SWAPFACE_MODELS_DIR"
	EnvORTLibrary        = "SWAPFACE_ORT_LIB"
	EnvDatabaseURL       = "SWAPFACE_DB_URL"
	EnvExecutionProvider = "SWAPFACE_EXECUTION_PROVIDER"
)

var (
	frameFormats  = []string{"png", "jpg"}
	videoEncoders = []string{"libx264", "libx265", "libvpx-vp9", "h264_nvenc", "hevc_nvenc"}
)

// Options holds the settings of one run
type Options struct {
	SourcePath string
	TargetPath string
	OutputPath string

	ManyFaces             bool
	ReferenceFacePosition int
	ReferenceFrameNumber  int
	SimilarFaceDistance   float64

	TempFrameFormat    string
	TempFrameQuality   int
	OutputVideoEncoder string
	OutputVideoQuality int
	KeepFPS            bool
	KeepAudio          bool
	KeepFrames         bool

	ExecutionProviders []string
	ExecutionThreads   int

	ModelsDir     string
	ORTLibrary    string
	DetectionSize int
	DetectionConf float64
	NMSThreshold  float64

	DatabaseURL string
}

// Default returns the options used when no flag overrides them
func Default() Options {
	return Options{
		ReferenceFacePosition: 0,
		ReferenceFrameNumber:  0,
		SimilarFaceDistance:   0.85,
		TempFrameFormat:       "png",
		TempFrameQuality:      0,
		OutputVideoEncoder:    "libx264",
		OutputVideoQuality:    35,
		KeepAudio:             true,
		ExecutionProviders:    []string{string(inference.ProviderCPU)},
		ExecutionThreads:      1,
		ModelsDir:             "models",
		DetectionSize:         640,
		DetectionConf:         0.5,
		NMSThreshold:          0.4,
	}
}

// LoadEnv reads an optional .env file from the working directory into the process environment
func LoadEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// ApplyEnv fills options that were left at their defaults from the environment
func (o *Options) ApplyEnv() {
	if v := os.Getenv(EnvModelsDir); v != "" && o.ModelsDir == Default().ModelsDir {
		o.ModelsDir = v
	}
	if v := os.Getenv(EnvORTLibrary); v != "" && o.ORTLibrary == "" {
		o.ORTLibrary = v
	}
	if v := os.Getenv(EnvDatabaseURL); v != "" && o.DatabaseURL == "" {
		o.DatabaseURL = v
	}
	if v := os.Getenv(EnvExecutionProvider); v != "" && slices.Equal(o.ExecutionProviders, Default().ExecutionProviders) {
		o.ExecutionProviders = strings.Split(v, ",")
	}
}

// Providers parses the execution provider names
func (o Options) Providers() ([]inference.Provider, error) {
	return inference.ParseProviders(o.ExecutionProviders)
}

// ModelPath resolves a model file inside the models directory
func (o Options) ModelPath(name string) string {
	return filepath.Join(o.ModelsDir, name)
}

// Validate checks option ranges. Every problem found is reported.
func (o Options) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(o.SourcePath != "", "source path is required")
	check(o.TargetPath != "", "target path is required")
	check(o.OutputPath != "", "output path is required")
	check(o.ReferenceFacePosition >= 0, "reference face position must not be negative, got %d", o.ReferenceFacePosition)
	check(o.ReferenceFrameNumber >= 0, "reference frame number must not be negative, got %d", o.ReferenceFrameNumber)
	check(o.SimilarFaceDistance > 0, "similar face distance must be positive, got %g", o.SimilarFaceDistance)
	check(slices.Contains(frameFormats, o.TempFrameFormat), "temp frame format must be one of %v, got %q", frameFormats, o.TempFrameFormat)
	check(o.TempFrameQuality >= 0 && o.TempFrameQuality <= 100, "temp frame quality must be in [0, 100], got %d", o.TempFrameQuality)
	check(slices.Contains(videoEncoders, o.OutputVideoEncoder), "output video encoder must be one of %v, got %q", videoEncoders, o.OutputVideoEncoder)
	check(o.OutputVideoQuality >= 0 && o.OutputVideoQuality <= 100, "output video quality must be in [0, 100], got %d", o.OutputVideoQuality)
	check(o.ExecutionThreads >= 1, "execution threads must be at least 1, got %d", o.ExecutionThreads)
	check(o.DetectionSize > 0 && o.DetectionSize%32 == 0, "detection size must be a positive multiple of 32, got %d", o.DetectionSize)
	check(o.DetectionConf > 0 && o.DetectionConf < 1, "detection threshold must be in (0, 1), got %g", o.DetectionConf)
	check(o.NMSThreshold > 0 && o.NMSThreshold < 1, "nms threshold must be in (0, 1), got %g", o.NMSThreshold)

	if _, err := o.Providers(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SuggestThreads returns the default worker count for the chosen providers
func SuggestThreads(providers []inference.Provider) int {
	if slices.Contains(providers, inference.ProviderCUDA) {
		return 8
	}
	return 1
}

// ResolveOutputPath turns an output directory into <dir>/<source>-<target><target ext>.
// Any other output path is returned unchanged.
func ResolveOutputPath(sourcePath, targetPath, outputPath string) string {
	if sourcePath == "" || targetPath == "" || outputPath == "" {
		return outputPath
	}
	info, err := os.Stat(outputPath)
	if err != nil || !info.IsDir() {
		return outputPath
	}

	sourceName := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	targetExt := filepath.Ext(targetPath)
	targetName := strings.TrimSuffix(filepath.Base(targetPath), targetExt)
	return filepath.Join(outputPath, sourceName+"-"+targetName+targetExt)
}
