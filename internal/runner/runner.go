package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/dudu/swapface/internal/faceswap"
	"github.com/dudu/swapface/internal/media"
	"github.com/dudu/swapface/internal/store"
)

// fallbackFPS is used when the target frame rate is not kept or cannot be read
const fallbackFPS = 30

// Pipeline is the face swap processor driven by a run
type Pipeline interface {
	PreCheck(ctx context.Context) error
	PreStart(sourcePath, targetPath string) error
	ProcessImage(sourcePath, targetPath, outputPath string) error
	ProcessVideo(ctx context.Context, sourcePath string, framePaths []string) error
	PostProcess() error
	Swapped() int64
}

// VideoTools splits a video into frames and puts it back together
type VideoTools interface {
	DetectFPS(ctx context.Context, path string) (float64, error)
	ExtractFrames(ctx context.Context, targetPath, dir string, fps float64) error
	CreateVideo(ctx context.Context, dir string, fps float64, outputPath string) error
	RestoreAudio(ctx context.Context, targetPath, videoPath, outputPath string) error
}

// Journal records runs. It is optional.
type Journal interface {
	Start(ctx context.Context, run store.Run) (int64, error)
	Finish(ctx context.Context, id int64, out store.Outcome) error
}

// Options control the video path of a run
type Options struct {
	TempFrameFormat string
	KeepFPS         bool
	KeepAudio       bool
	KeepFrames      bool
}

// Deps are the collaborators of a Runner. Journal may be nil.
type Deps struct {
	Pipeline Pipeline
	Sniffer  faceswap.Sniffer
	Video    VideoTools
	Journal  Journal
}

// Job is one swap request
type Job struct {
	SourcePath string
	TargetPath string
	OutputPath string
	ManyFaces  bool
}

// Result describes a finished run
type Result struct {
	Target       faceswap.Target
	OutputPath   string
	Frames       int
	FacesSwapped int64
}

// Runner executes swap jobs end to end
type Runner struct {
	log  *zap.Logger
	opts Options
	deps Deps
}

// New creates a runner
func New(log *zap.Logger, opts Options, deps Deps) *Runner {
	return &Runner{log: log.Named("CORE"), opts: opts, deps: deps}
}

// Run validates the job, swaps faces into the target and writes the output.
// Shared pipeline state is released whatever the outcome.
func (r *Runner) Run(ctx context.Context, job Job) (res Result, err error) {
	id := r.journalStart(ctx, job)
	defer func() {
		// PostProcess resets the count
		res.FacesSwapped = r.deps.Pipeline.Swapped()
		if perr := r.deps.Pipeline.PostProcess(); perr != nil {
			r.log.Warn("failed to release pipeline state", zap.Error(perr))
		}
		r.journalFinish(id, res, err)
	}()

	if err := r.deps.Pipeline.PreCheck(ctx); err != nil {
		return res, err
	}
	if err := r.deps.Pipeline.PreStart(job.SourcePath, job.TargetPath); err != nil {
		return res, err
	}

	target, err := faceswap.ResolveTarget(r.deps.Sniffer, job.TargetPath)
	if err != nil {
		return res, err
	}
	res.Target = target
	res.OutputPath = job.OutputPath

	switch target.Kind {
	case faceswap.TargetImage:
		res.Frames = 1
		err = r.runImage(job)
	case faceswap.TargetVideo:
		res.Frames, err = r.runVideo(ctx, job)
	}
	return res, err
}

func (r *Runner) runImage(job Job) error {
	r.log.Info("processing image", zap.String("target", job.TargetPath))

	if err := r.deps.Pipeline.ProcessImage(job.SourcePath, job.TargetPath, job.OutputPath); err != nil {
		return err
	}
	if !r.deps.Sniffer.IsImage(job.OutputPath) {
		return fmt.Errorf("processing to image failed: %s is not an image", job.OutputPath)
	}

	r.log.Info("processing to image succeed", zap.String("output", job.OutputPath))
	return nil
}

func (r *Runner) runVideo(ctx context.Context, job Job) (int, error) {
	tempDir := TempDir(job.TargetPath)
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create temp directory: %w", err)
	}
	if !r.opts.KeepFrames {
		defer r.cleanTemp(tempDir)
	}

	fps := float64(fallbackFPS)
	if r.opts.KeepFPS {
		detected, err := r.deps.Video.DetectFPS(ctx, job.TargetPath)
		if err != nil {
			r.log.Warn("failed to detect fps, using fallback", zap.Error(err), zap.Int("fps", fallbackFPS))
		} else {
			fps = detected
		}
	}

	r.log.Info("extracting frames", zap.Float64("fps", fps))
	if err := r.deps.Video.ExtractFrames(ctx, job.TargetPath, tempDir, fps); err != nil {
		return 0, fmt.Errorf("failed to extract frames: %w", err)
	}

	framePaths, err := media.FramePaths(tempDir, r.opts.TempFrameFormat)
	if err != nil {
		return 0, fmt.Errorf("failed to list frames: %w", err)
	}
	if len(framePaths) == 0 {
		return 0, errors.New("frames not found")
	}

	r.log.Info("processing video", zap.Int("frames", len(framePaths)))
	if err := r.deps.Pipeline.ProcessVideo(ctx, job.SourcePath, framePaths); err != nil {
		return len(framePaths), err
	}

	tempVideo := filepath.Join(tempDir, "temp.mp4")
	r.log.Info("creating video", zap.Float64("fps", fps))
	if err := r.deps.Video.CreateVideo(ctx, tempDir, fps, tempVideo); err != nil {
		return len(framePaths), fmt.Errorf("failed to create video: %w", err)
	}

	if err := r.finishVideo(ctx, job, tempVideo); err != nil {
		return len(framePaths), err
	}

	r.log.Info("processing to video succeed", zap.String("output", job.OutputPath))
	return len(framePaths), nil
}

// finishVideo moves the reassembled video to the output, restoring the target audio when asked
func (r *Runner) finishVideo(ctx context.Context, job Job, tempVideo string) error {
	if r.opts.KeepAudio {
		r.log.Info("restoring audio")
		err := r.deps.Video.RestoreAudio(ctx, job.TargetPath, tempVideo, job.OutputPath)
		if err == nil {
			return nil
		}
		r.log.Warn("restoring audio might cause issues, output is silent", zap.Error(err))
	}

	if err := media.MoveFile(tempVideo, job.OutputPath); err != nil {
		return fmt.Errorf("failed to move video to output: %w", err)
	}
	return nil
}

func (r *Runner) cleanTemp(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		r.log.Warn("failed to remove temp directory", zap.String("dir", dir), zap.Error(err))
		return
	}
	// drop the shared temp parent once it is empty
	_ = os.Remove(filepath.Dir(dir))
}

// TempDir returns the frame directory for a video target: <target dir>/temp/<target name>
func TempDir(targetPath string) string {
	name := strings.TrimSuffix(filepath.Base(targetPath), filepath.Ext(targetPath))
	return filepath.Join(filepath.Dir(targetPath), "temp", name)
}

func (r *Runner) journalStart(ctx context.Context, job Job) int64 {
	if r.deps.Journal == nil {
		return 0
	}
	id, err := r.deps.Journal.Start(ctx, store.Run{
		SourcePath: job.SourcePath,
		TargetPath: job.TargetPath,
		OutputPath: job.OutputPath,
		ManyFaces:  job.ManyFaces,
	})
	if err != nil {
		r.log.Warn("failed to journal run", zap.Error(err))
		return 0
	}
	return id
}

func (r *Runner) journalFinish(id int64, res Result, runErr error) {
	if r.deps.Journal == nil || id == 0 {
		return
	}

	out := store.Outcome{
		Status:       store.StatusComplete,
		Frames:       res.Frames,
		FacesSwapped: res.FacesSwapped,
		Err:          runErr,
	}
	if res.Target.Kind != 0 {
		out.TargetKind = res.Target.Kind.String()
	}
	if runErr != nil {
		out.Status = store.StatusFailed
	}

	// the run context may already be cancelled
	if err := r.deps.Journal.Finish(context.Background(), id, out); err != nil {
		r.log.Warn("failed to journal run outcome", zap.Error(err))
	}
}
