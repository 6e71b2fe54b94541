package main

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dudu/swapface/internal/analyser"
	"github.com/dudu/swapface/internal/config"
	"github.com/dudu/swapface/internal/detector"
	"github.com/dudu/swapface/internal/download"
	"github.com/dudu/swapface/internal/driver"
	"github.com/dudu/swapface/internal/faceswap"
	"github.com/dudu/swapface/internal/inference"
	"github.com/dudu/swapface/internal/media"
	"github.com/dudu/swapface/internal/runner"
	"github.com/dudu/swapface/internal/store"
	"github.com/dudu/swapface/internal/swapper"
)

func newRunCmd(c *cli) *cobra.Command {
	opts := config.Default()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Swap the source face into a target image or video",
		Example: `  swapface run -s me.jpg -t party.mp4 -o out/
  swapface run -s me.jpg -t group.jpg -o swapped.jpg --many-faces`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSwap(cmd.Context(), c.log, opts, cmd.Flags().Changed("execution-threads"))
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.SourcePath, "source", "s", "", "Source image holding the face to use")
	f.StringVarP(&opts.TargetPath, "target", "t", "", "Target image or video")
	f.StringVarP(&opts.OutputPath, "output", "o", "", "Output file or directory")
	f.BoolVar(&opts.ManyFaces, "many-faces", opts.ManyFaces, "Swap every face instead of tracking one")
	f.IntVar(&opts.ReferenceFacePosition, "reference-face-position", opts.ReferenceFacePosition, "Position (left to right) of the face to track")
	f.IntVar(&opts.ReferenceFrameNumber, "reference-frame-number", opts.ReferenceFrameNumber, "Video frame to pick the tracked face from")
	f.Float64Var(&opts.SimilarFaceDistance, "similar-face-distance", opts.SimilarFaceDistance, "Max embedding distance for a face to count as the tracked one")
	f.StringVar(&opts.TempFrameFormat, "temp-frame-format", opts.TempFrameFormat, "Image format for extracted frames (png, jpg)")
	f.IntVar(&opts.TempFrameQuality, "temp-frame-quality", opts.TempFrameQuality, "Extracted frame quality, 0 is best")
	f.StringVar(&opts.OutputVideoEncoder, "output-video-encoder", opts.OutputVideoEncoder, "Encoder for the output video")
	f.IntVar(&opts.OutputVideoQuality, "output-video-quality", opts.OutputVideoQuality, "Output video quality, 0 is best")
	f.BoolVar(&opts.KeepFPS, "keep-fps", opts.KeepFPS, "Keep the target frame rate")
	f.BoolVar(&opts.KeepAudio, "keep-audio", opts.KeepAudio, "Keep the target audio")
	f.BoolVar(&opts.KeepFrames, "keep-frames", opts.KeepFrames, "Keep extracted frames after the run")
	f.StringSliceVar(&opts.ExecutionProviders, "execution-provider", opts.ExecutionProviders, "Execution providers in preference order (cpu, cuda, coreml)")
	f.IntVar(&opts.ExecutionThreads, "execution-threads", opts.ExecutionThreads, "Number of frame workers")
	f.StringVar(&opts.ModelsDir, "models-dir", opts.ModelsDir, "Directory holding the model files")
	f.StringVar(&opts.ORTLibrary, "ort-lib", opts.ORTLibrary, "Path to the onnxruntime shared library")
	f.IntVar(&opts.DetectionSize, "detection-size", opts.DetectionSize, "Face detector input size")
	f.Float64Var(&opts.DetectionConf, "detection-threshold", opts.DetectionConf, "Face detector confidence threshold")
	f.Float64Var(&opts.NMSThreshold, "nms-threshold", opts.NMSThreshold, "Face detector NMS threshold")
	f.StringVar(&opts.DatabaseURL, "db", opts.DatabaseURL, "PostgreSQL connection string for the run journal (disabled when empty)")

	return cmd
}

func runSwap(ctx context.Context, log *zap.Logger, opts config.Options, threadsSet bool) error {
	opts.ApplyEnv()
	if !threadsSet {
		if providers, err := opts.Providers(); err == nil {
			opts.ExecutionThreads = config.SuggestThreads(providers)
		}
	}
	opts.OutputPath = config.ResolveOutputPath(opts.SourcePath, opts.TargetPath, opts.OutputPath)
	if err := opts.Validate(); err != nil {
		return err
	}

	providers, err := opts.Providers()
	if err != nil {
		return err
	}

	sniffer := media.Sniffer{}
	if sniffer.IsVideo(opts.TargetPath) {
		if err := media.Available(); err != nil {
			return err
		}
	}

	if err := inference.Initialize(opts.ORTLibrary); err != nil {
		return err
	}
	defer inference.Shutdown()

	faces := newLazyAnalyser(log, opts, providers)
	defer faces.Close()

	model := faceswap.NewHandle(func() (faceswap.Swapper, error) {
		s, err := swapper.NewFaceSwapper(log, swapper.Config{
			ModelPath: opts.ModelPath(config.SwapperModel),
			EmapPath:  opts.ModelPath(config.EmapFile),
			Providers: providers,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	})

	var journal runner.Journal
	if opts.DatabaseURL != "" {
		s, err := store.New(ctx, opts.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		// the run context may be cancelled by then
		defer s.Close(context.Background())
		journal = s
	}

	processor := faceswap.NewProcessor(log, faceswap.Options{
		ManyFaces:             opts.ManyFaces,
		ReferenceFacePosition: opts.ReferenceFacePosition,
		ReferenceFrameNumber:  opts.ReferenceFrameNumber,
		SimilarFaceDistance:   float32(opts.SimilarFaceDistance),
	}, faceswap.Deps{
		Analyser: faces,
		Model:    model,
		Codec:    media.NewCodec(100 - opts.TempFrameQuality),
		Sniffer:  sniffer,
		Driver:   driver.New(log, opts.ExecutionThreads, os.Stderr),
		Weights:  download.New(log, opts.ModelsDir, modelAssets(), os.Stderr),
	})

	r := runner.New(log, runner.Options{
		TempFrameFormat: opts.TempFrameFormat,
		KeepFPS:         opts.KeepFPS,
		KeepAudio:       opts.KeepAudio,
		KeepFrames:      opts.KeepFrames,
	}, runner.Deps{
		Pipeline: processor,
		Sniffer:  sniffer,
		Video: media.NewFFmpeg(log, media.FFmpegConfig{
			TempFrameFormat:  opts.TempFrameFormat,
			TempFrameQuality: opts.TempFrameQuality,
			VideoEncoder:     opts.OutputVideoEncoder,
			VideoQuality:     opts.OutputVideoQuality,
		}),
		Journal: journal,
	})

	res, err := r.Run(ctx, runner.Job{
		SourcePath: opts.SourcePath,
		TargetPath: opts.TargetPath,
		OutputPath: opts.OutputPath,
		ManyFaces:  opts.ManyFaces,
	})
	if err != nil {
		return err
	}

	log.Info("done",
		zap.Stringer("target", res.Target.Kind),
		zap.String("output", res.OutputPath),
		zap.Int("frames", res.Frames),
		zap.Int64("faces", res.FacesSwapped))
	return nil
}

// modelAssets lists the model files a run needs. Only the swap model has a public download.
func modelAssets() []download.Asset {
	return []download.Asset{
		{Name: config.DetectorModel},
		{Name: config.RecognizerModel},
		{Name: config.SwapperModel, URL: download.InswapperURL},
		{Name: config.EmapFile},
	}
}

// lazyAnalyser loads the detector and recognizer on first use, after the model files were checked
type lazyAnalyser struct {
	handle *faceswap.Handle[*analyser.Analyser]
}

func newLazyAnalyser(log *zap.Logger, opts config.Options, providers []inference.Provider) *lazyAnalyser {
	return &lazyAnalyser{
		handle: faceswap.NewHandle(func() (*analyser.Analyser, error) {
			return analyser.New(log, analyser.Config{
				DetectorPath:   opts.ModelPath(config.DetectorModel),
				RecognizerPath: opts.ModelPath(config.RecognizerModel),
				InputSize:      opts.DetectionSize,
				ConfThreshold:  float32(opts.DetectionConf),
				NMSThreshold:   float32(opts.NMSThreshold),
				Providers:      providers,
			})
		}),
	}
}

func (a *lazyAnalyser) Detect(frame *image.RGBA) ([]detector.Face, error) {
	an, err := a.handle.Acquire()
	if err != nil {
		return nil, fmt.Errorf("failed to load face analyser: %w", err)
	}
	return an.Detect(frame)
}

func (a *lazyAnalyser) Close() error {
	return a.handle.Invalidate()
}
