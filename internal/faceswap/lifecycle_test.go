package faceswap

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dudu/swapface/internal/detector"
)

func TestPreCheck(t *testing.T) {
	f := newFixture()
	fetcher := &mockFetcher{}
	fetcher.On("Ensure", mock.Anything).Return(nil).Once()
	f.deps.Weights = fetcher

	require.NoError(t, f.processor(Options{}).PreCheck(context.Background()))
	fetcher.AssertExpectations(t)

	failing := &mockFetcher{}
	failing.On("Ensure", mock.Anything).Return(errors.New("404 Not Found"))
	f.deps.Weights = failing

	err := f.processor(Options{}).PreCheck(context.Background())
	assert.ErrorContains(t, err, "404 Not Found")
}

func TestPreCheckWithoutFetcher(t *testing.T) {
	assert.NoError(t, newFixture().processor(Options{}).PreCheck(context.Background()))
}

func TestPreStart(t *testing.T) {
	tests := []struct {
		name   string
		source string
		target string
		reason string
	}{
		{name: "image target", source: "face.jpg", target: "photo.png"},
		{name: "video target", source: "face.jpg", target: "clip.mp4"},
		{name: "source is a video", source: "clip.mp4", target: "photo.png", reason: "Select an image for source path."},
		{name: "source without face", source: "empty.jpg", target: "photo.png", reason: "No face in source path detected."},
		{name: "unsupported target", source: "face.jpg", target: "notes.txt", reason: "Select an image or video for target path."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.analyser.faces[tagSource] = []detector.Face{faceAt(0, axis(0))}
			f.codec.put("face.jpg", newFrame(tagSource))
			f.codec.put("empty.jpg", newFrame(tagEmpty))

			err := f.processor(Options{}).PreStart(tt.source, tt.target)

			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.reason, verr.Reason)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestPreStartDecodeFailure(t *testing.T) {
	f := newFixture()

	err := f.processor(Options{}).PreStart("missing.jpg", "photo.png")

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrValidation)
}

type closingSwapper struct {
	closed bool
}

func (s *closingSwapper) Swap(frame *image.RGBA, _, _ detector.Face) (*image.RGBA, error) {
	return frame, nil
}

func (s *closingSwapper) Close() error {
	s.closed = true
	return nil
}

func TestPostProcessResetsState(t *testing.T) {
	var models []*closingSwapper
	reference := NewReferenceStore()
	p := NewProcessor(zap.NewNop(), Options{}, Deps{
		Model: NewHandle(func() (Swapper, error) {
			m := &closingSwapper{}
			models = append(models, m)
			return m, nil
		}),
		Reference: reference,
	})

	reference.Set(faceAt(0, axis(0)))
	_, err := p.SwapFace(faceAt(0, axis(1)), faceAt(0, axis(2)), newFrame(1))
	require.NoError(t, err)
	require.Len(t, models, 1)

	require.NoError(t, p.PostProcess())

	_, ok := reference.Get()
	assert.False(t, ok)
	assert.True(t, models[0].closed)

	_, err = p.SwapFace(faceAt(0, axis(1)), faceAt(0, axis(2)), newFrame(1))
	require.NoError(t, err)
	assert.Len(t, models, 2, "model must be constructed again after teardown")
}

func TestPostProcessResetsSwapCount(t *testing.T) {
	f := newFixture()
	f.analyser.faces[tagTarget] = []detector.Face{faceAt(10, axis(0)), faceAt(50, axis(1))}
	f.swapper.On("Swap", mock.Anything, mock.Anything, mock.Anything).Return(newFrame(tagTarget), nil)

	p := f.processor(Options{ManyFaces: true})
	_, err := p.ProcessFrame(faceAt(0, axis(2)), nil, newFrame(tagTarget), ModeAllFaces, nil)
	require.NoError(t, err)
	require.Equal(t, int64(2), p.Swapped())

	require.NoError(t, p.PostProcess())
	assert.Zero(t, p.Swapped())

	_, err = p.ProcessFrame(faceAt(0, axis(2)), nil, newFrame(tagTarget), ModeAllFaces, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.Swapped(), "a reused processor counts from zero")
}

func TestSwapFaceLoadError(t *testing.T) {
	p := NewProcessor(zap.NewNop(), Options{}, Deps{
		Model: NewHandle(func() (Swapper, error) {
			return nil, errors.New("no such file")
		}),
	})

	_, err := p.SwapFace(detector.Face{}, detector.Face{}, newFrame(1))
	assert.ErrorContains(t, err, "failed to load swap model")
}
