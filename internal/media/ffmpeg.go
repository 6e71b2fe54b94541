package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// FFmpegConfig controls temp frames and the reassembled video
type FFmpegConfig struct {
	TempFrameFormat  string // png or jpg
	TempFrameQuality int    // 0 (best) to 100
	VideoEncoder     string
	VideoQuality     int // 0 (best) to 100
}

// FFmpeg drives the ffmpeg and ffprobe binaries
type FFmpeg struct {
	log *zap.Logger
	cfg FFmpegConfig
}

// NewFFmpeg creates a wrapper around the ffmpeg binaries found in PATH
func NewFFmpeg(log *zap.Logger, cfg FFmpegConfig) *FFmpeg {
	return &FFmpeg{log: log.Named("FFMPEG"), cfg: cfg}
}

// Available reports whether ffmpeg and ffprobe are installed
func Available() error {
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%s not found in PATH: %w", bin, err)
		}
	}
	return nil
}

// DetectFPS returns the frame rate of the first video stream
func (f *FFmpeg) DetectFPS(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe", "-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=r_frame_rate", "-of", "default=noprint_wrappers=1:nokey=1", path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseFrameRate(string(out))
}

// ExtractFrames writes every frame of target into dir as %04d.<format>
func (f *FFmpeg) ExtractFrames(ctx context.Context, targetPath, dir string, fps float64) error {
	return f.run(ctx, f.extractArgs(targetPath, dir, fps)...)
}

// CreateVideo encodes the frames in dir into outputPath without audio
func (f *FFmpeg) CreateVideo(ctx context.Context, dir string, fps float64, outputPath string) error {
	return f.run(ctx, f.createArgs(dir, fps, outputPath)...)
}

// RestoreAudio muxes the audio of targetPath with the video stream of videoPath into outputPath
func (f *FFmpeg) RestoreAudio(ctx context.Context, targetPath, videoPath, outputPath string) error {
	return f.run(ctx,
		"-i", videoPath,
		"-i", targetPath,
		"-c:v", "copy",
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-y", outputPath,
	)
}

// FramePaths lists the extracted frames of dir in playback order
func FramePaths(dir, format string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*."+format))
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)
	return paths, nil
}

// MoveFile renames src to dst, copying across filesystems when needed
func MoveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return err
	}
	return os.Remove(src)
}

func (f *FFmpeg) extractArgs(targetPath, dir string, fps float64) []string {
	return []string{
		"-i", targetPath,
		"-q:v", strconv.Itoa(f.cfg.TempFrameQuality * 31 / 100),
		"-pix_fmt", "rgb24",
		"-vf", "fps=" + formatFPS(fps),
		filepath.Join(dir, "%04d."+f.cfg.TempFrameFormat),
	}
}

func (f *FFmpeg) createArgs(dir string, fps float64, outputPath string) []string {
	args := []string{
		"-r", formatFPS(fps),
		"-i", filepath.Join(dir, "%04d."+f.cfg.TempFrameFormat),
		"-c:v", f.cfg.VideoEncoder,
	}

	switch f.cfg.VideoEncoder {
	case "libx264", "libx265":
		args = append(args, "-crf", strconv.Itoa((f.cfg.VideoQuality+1)*51/100))
	case "libvpx-vp9":
		args = append(args, "-crf", strconv.Itoa((f.cfg.VideoQuality+1)*63/100))
	case "h264_nvenc", "hevc_nvenc":
		args = append(args, "-cq", strconv.Itoa((f.cfg.VideoQuality+1)*51/100))
	}

	return append(args,
		"-pix_fmt", "yuv420p",
		"-vf", "colorspace=bt709:iall=bt601-6-625:fast=1",
		"-y", outputPath,
	)
}

func (f *FFmpeg) run(ctx context.Context, args ...string) error {
	full := append([]string{"-hide_banner", "-hwaccel", "auto", "-loglevel", "error"}, args...)
	f.log.Debug("running ffmpeg", zap.Strings("args", full))

	cmd := exec.CommandContext(ctx, "ffmpeg", full...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// parseFrameRate parses ffprobe rates such as "30000/1001" or "25"
func parseFrameRate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	num, den, found := strings.Cut(s, "/")

	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q: %w", s, err)
	}
	if !found {
		return n, nil
	}

	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0, fmt.Errorf("invalid frame rate %q", s)
	}
	return n / d, nil
}

func formatFPS(fps float64) string {
	return strconv.FormatFloat(fps, 'f', -1, 64)
}
