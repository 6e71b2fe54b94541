package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dudu/swapface/internal/faceswap"
	"github.com/dudu/swapface/internal/store"
)

type mockPipeline struct {
	mock.Mock
}

func (m *mockPipeline) PreCheck(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockPipeline) PreStart(sourcePath, targetPath string) error {
	return m.Called(sourcePath, targetPath).Error(0)
}

func (m *mockPipeline) ProcessImage(sourcePath, targetPath, outputPath string) error {
	return m.Called(sourcePath, targetPath, outputPath).Error(0)
}

func (m *mockPipeline) ProcessVideo(ctx context.Context, sourcePath string, framePaths []string) error {
	return m.Called(ctx, sourcePath, framePaths).Error(0)
}

func (m *mockPipeline) PostProcess() error {
	return m.Called().Error(0)
}

func (m *mockPipeline) Swapped() int64 {
	return m.Called().Get(0).(int64)
}

type mockVideo struct {
	mock.Mock
}

func (m *mockVideo) DetectFPS(ctx context.Context, path string) (float64, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockVideo) ExtractFrames(ctx context.Context, targetPath, dir string, fps float64) error {
	return m.Called(ctx, targetPath, dir, fps).Error(0)
}

func (m *mockVideo) CreateVideo(ctx context.Context, dir string, fps float64, outputPath string) error {
	return m.Called(ctx, dir, fps, outputPath).Error(0)
}

func (m *mockVideo) RestoreAudio(ctx context.Context, targetPath, videoPath, outputPath string) error {
	return m.Called(ctx, targetPath, videoPath, outputPath).Error(0)
}

type mockJournal struct {
	mock.Mock
}

func (m *mockJournal) Start(ctx context.Context, run store.Run) (int64, error) {
	args := m.Called(ctx, run)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockJournal) Finish(ctx context.Context, id int64, out store.Outcome) error {
	return m.Called(ctx, id, out).Error(0)
}

type extSniffer struct{}

func (extSniffer) IsImage(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".jpg" || ext == ".png"
}

func (extSniffer) IsVideo(path string) bool {
	return filepath.Ext(path) == ".mp4"
}

func newPipeline(swapped int64) *mockPipeline {
	p := &mockPipeline{}
	p.On("PreCheck", mock.Anything).Return(nil)
	p.On("PostProcess").Return(nil).Once()
	p.On("Swapped").Return(swapped)
	return p
}

// writeFrames fakes ffmpeg frame extraction
func writeFrames(n int) func(mock.Arguments) {
	return func(args mock.Arguments) {
		dir := args.String(2)
		for i := range n {
			name := filepath.Join(dir, []string{"0001.png", "0002.png", "0003.png", "0004.png"}[i])
			_ = os.WriteFile(name, []byte("frame"), 0o644)
		}
	}
}

// writeVideo fakes ffmpeg video creation
func writeVideo(args mock.Arguments) {
	_ = os.WriteFile(args.String(3), []byte("video"), 0o644)
}

func TestRunImage(t *testing.T) {
	p := newPipeline(1)
	p.On("PreStart", "me.jpg", "photo.jpg").Return(nil)
	p.On("ProcessImage", "me.jpg", "photo.jpg", "out.jpg").Return(nil).Once()

	journal := &mockJournal{}
	journal.On("Start", mock.Anything, store.Run{SourcePath: "me.jpg", TargetPath: "photo.jpg", OutputPath: "out.jpg"}).Return(int64(7), nil)
	journal.On("Finish", mock.Anything, int64(7), store.Outcome{
		Status: store.StatusComplete, TargetKind: "image", Frames: 1, FacesSwapped: 1,
	}).Return(nil).Once()

	r := New(zap.NewNop(), Options{}, Deps{Pipeline: p, Sniffer: extSniffer{}, Journal: journal})
	res, err := r.Run(context.Background(), Job{SourcePath: "me.jpg", TargetPath: "photo.jpg", OutputPath: "out.jpg"})

	require.NoError(t, err)
	assert.Equal(t, faceswap.TargetImage, res.Target.Kind)
	assert.Equal(t, int64(1), res.FacesSwapped)
	p.AssertExpectations(t)
	journal.AssertExpectations(t)
}

func TestRunReadsSwapCountBeforeTeardown(t *testing.T) {
	p := newPipeline(2)
	p.On("PreStart", "me.jpg", "photo.jpg").Return(nil)
	p.On("ProcessImage", "me.jpg", "photo.jpg", "out.jpg").Return(nil)

	r := New(zap.NewNop(), Options{}, Deps{Pipeline: p, Sniffer: extSniffer{}})
	res, err := r.Run(context.Background(), Job{SourcePath: "me.jpg", TargetPath: "photo.jpg", OutputPath: "out.jpg"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.FacesSwapped)

	var order []string
	for _, call := range p.Calls {
		if call.Method == "Swapped" || call.Method == "PostProcess" {
			order = append(order, call.Method)
		}
	}
	assert.Equal(t, []string{"Swapped", "PostProcess"}, order)
}

func TestRunValidationFailure(t *testing.T) {
	reject := &faceswap.ValidationError{Reason: "No face in source path detected."}
	p := newPipeline(0)
	p.On("PreStart", "blank.jpg", "photo.jpg").Return(reject)

	journal := &mockJournal{}
	journal.On("Start", mock.Anything, mock.Anything).Return(int64(3), nil)
	journal.On("Finish", mock.Anything, int64(3), mock.MatchedBy(func(out store.Outcome) bool {
		return out.Status == store.StatusFailed && errors.Is(out.Err, faceswap.ErrValidation)
	})).Return(nil).Once()

	r := New(zap.NewNop(), Options{}, Deps{Pipeline: p, Sniffer: extSniffer{}, Journal: journal})
	_, err := r.Run(context.Background(), Job{SourcePath: "blank.jpg", TargetPath: "photo.jpg", OutputPath: "out.jpg"})

	assert.ErrorIs(t, err, faceswap.ErrValidation)
	p.AssertNotCalled(t, "ProcessImage", mock.Anything, mock.Anything, mock.Anything)
	p.AssertCalled(t, "PostProcess")
	journal.AssertExpectations(t)
}

func TestRunPreCheckFailure(t *testing.T) {
	p := &mockPipeline{}
	p.On("PreCheck", mock.Anything).Return(errors.New("model w600k_r50.onnx not found"))
	p.On("PostProcess").Return(nil).Once()
	p.On("Swapped").Return(int64(0))

	r := New(zap.NewNop(), Options{}, Deps{Pipeline: p, Sniffer: extSniffer{}})
	_, err := r.Run(context.Background(), Job{SourcePath: "me.jpg", TargetPath: "photo.jpg", OutputPath: "out.jpg"})

	assert.ErrorContains(t, err, "w600k_r50.onnx")
	p.AssertNotCalled(t, "PreStart", mock.Anything, mock.Anything)
	p.AssertExpectations(t)
}

func TestRunUnsupportedTarget(t *testing.T) {
	p := newPipeline(0)
	p.On("PreStart", mock.Anything, mock.Anything).Return(nil)

	r := New(zap.NewNop(), Options{}, Deps{Pipeline: p, Sniffer: extSniffer{}})
	_, err := r.Run(context.Background(), Job{SourcePath: "me.jpg", TargetPath: "notes.txt", OutputPath: "out.txt"})

	assert.ErrorIs(t, err, faceswap.ErrUnsupportedTarget)
}

func videoJob(t *testing.T) Job {
	dir := t.TempDir()
	return Job{
		SourcePath: filepath.Join(dir, "me.jpg"),
		TargetPath: filepath.Join(dir, "clip.mp4"),
		OutputPath: filepath.Join(dir, "out.mp4"),
	}
}

func TestRunVideo(t *testing.T) {
	job := videoJob(t)
	tempDir := TempDir(job.TargetPath)
	frames := []string{filepath.Join(tempDir, "0001.png"), filepath.Join(tempDir, "0002.png"), filepath.Join(tempDir, "0003.png")}

	p := newPipeline(3)
	p.On("PreStart", job.SourcePath, job.TargetPath).Return(nil)
	p.On("ProcessVideo", mock.Anything, job.SourcePath, frames).Return(nil).Once()

	video := &mockVideo{}
	video.On("DetectFPS", mock.Anything, job.TargetPath).Return(25.0, nil)
	video.On("ExtractFrames", mock.Anything, job.TargetPath, tempDir, 25.0).Return(nil).Run(writeFrames(3))
	video.On("CreateVideo", mock.Anything, tempDir, 25.0, filepath.Join(tempDir, "temp.mp4")).Return(nil).Run(writeVideo)
	video.On("RestoreAudio", mock.Anything, job.TargetPath, filepath.Join(tempDir, "temp.mp4"), job.OutputPath).Return(nil).Run(func(args mock.Arguments) {
		_ = os.WriteFile(args.String(3), []byte("video+audio"), 0o644)
	})

	r := New(zap.NewNop(), Options{TempFrameFormat: "png", KeepFPS: true, KeepAudio: true}, Deps{Pipeline: p, Sniffer: extSniffer{}, Video: video})
	res, err := r.Run(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, faceswap.TargetVideo, res.Target.Kind)
	assert.Equal(t, 3, res.Frames)
	assert.Equal(t, int64(3), res.FacesSwapped)
	assert.FileExists(t, job.OutputPath)
	assert.NoDirExists(t, filepath.Dir(tempDir), "temp frames must be removed")
	p.AssertExpectations(t)
	video.AssertExpectations(t)
}

func TestRunVideoWithoutAudio(t *testing.T) {
	job := videoJob(t)
	tempDir := TempDir(job.TargetPath)

	p := newPipeline(2)
	p.On("PreStart", mock.Anything, mock.Anything).Return(nil)
	p.On("ProcessVideo", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	video := &mockVideo{}
	video.On("ExtractFrames", mock.Anything, job.TargetPath, tempDir, float64(fallbackFPS)).Return(nil).Run(writeFrames(2))
	video.On("CreateVideo", mock.Anything, tempDir, float64(fallbackFPS), mock.Anything).Return(nil).Run(writeVideo)
	video.On("RestoreAudio", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("no audio stream"))

	r := New(zap.NewNop(), Options{TempFrameFormat: "png", KeepAudio: true}, Deps{Pipeline: p, Sniffer: extSniffer{}, Video: video})
	_, err := r.Run(context.Background(), job)

	require.NoError(t, err)
	data, err := os.ReadFile(job.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "video", string(data), "the silent video is used when audio cannot be restored")
	video.AssertNotCalled(t, "DetectFPS", mock.Anything, mock.Anything)
}

func TestRunVideoFailureSkipsReassembly(t *testing.T) {
	job := videoJob(t)
	tempDir := TempDir(job.TargetPath)

	p := newPipeline(0)
	p.On("PreStart", mock.Anything, mock.Anything).Return(nil)
	p.On("ProcessVideo", mock.Anything, mock.Anything, mock.Anything).Return(faceswap.ErrNoReferenceFace)

	video := &mockVideo{}
	video.On("ExtractFrames", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Run(writeFrames(2))

	r := New(zap.NewNop(), Options{TempFrameFormat: "png", KeepFrames: true}, Deps{Pipeline: p, Sniffer: extSniffer{}, Video: video})
	res, err := r.Run(context.Background(), job)

	assert.ErrorIs(t, err, faceswap.ErrNoReferenceFace)
	assert.Equal(t, 2, res.Frames)
	video.AssertNotCalled(t, "CreateVideo", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.NoFileExists(t, job.OutputPath)
	assert.FileExists(t, filepath.Join(tempDir, "0001.png"), "frames are kept on request")
	p.AssertCalled(t, "PostProcess")
}

func TestRunVideoWithoutFrames(t *testing.T) {
	job := videoJob(t)

	p := newPipeline(0)
	p.On("PreStart", mock.Anything, mock.Anything).Return(nil)

	video := &mockVideo{}
	video.On("ExtractFrames", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	r := New(zap.NewNop(), Options{TempFrameFormat: "png"}, Deps{Pipeline: p, Sniffer: extSniffer{}, Video: video})
	_, err := r.Run(context.Background(), job)

	assert.EqualError(t, err, "frames not found")
	p.AssertNotCalled(t, "ProcessVideo", mock.Anything, mock.Anything, mock.Anything)
}

func TestTempDir(t *testing.T) {
	assert.Equal(t, filepath.Join("videos", "temp", "party"), TempDir(filepath.Join("videos", "party.mp4")))
}
