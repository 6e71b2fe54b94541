package faceswap

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"slices"
	"sync"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/dudu/swapface/internal/detector"
)

// frames are told apart by their first pixel
func newFrame(tag uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Pix[0] = tag
	return img
}

func axis(i int) *detector.Embedding {
	var e detector.Embedding
	e[i] = 1
	return &e
}

// near returns a unit embedding close to axis(i)
func near(i, j int) *detector.Embedding {
	var e detector.Embedding
	e[i] = 1
	e[j] = 0.1
	return e.Normalize()
}

func faceAt(x1 float32, embedding *detector.Embedding) detector.Face {
	return detector.Face{
		BoundingBox: detector.BoundingBox{X1: x1, Y1: 10, X2: x1 + 20, Y2: 30},
		Score:       0.9,
		Embedding:   embedding,
	}
}

type fakeAnalyser struct {
	mu    sync.Mutex
	faces map[uint8][]detector.Face
	calls int
	err   error
}

func newFakeAnalyser() *fakeAnalyser {
	return &fakeAnalyser{faces: make(map[uint8][]detector.Face)}
}

func (a *fakeAnalyser) Detect(frame *image.RGBA) ([]detector.Face, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return slices.Clone(a.faces[frame.Pix[0]]), nil
}

func (a *fakeAnalyser) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type memCodec struct {
	mu     sync.Mutex
	frames map[string]*image.RGBA
	writes map[string]int
}

func newMemCodec() *memCodec {
	return &memCodec{frames: make(map[string]*image.RGBA), writes: make(map[string]int)}
}

func (c *memCodec) put(path string, frame *image.RGBA) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames[path] = frame
}

func (c *memCodec) Decode(path string) (*image.RGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	frame, ok := c.frames[path]
	if !ok {
		return nil, fmt.Errorf("open %s: no such file", path)
	}
	return frame, nil
}

func (c *memCodec) Encode(frame *image.RGBA, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames[path] = frame
	c.writes[path]++
	return nil
}

func (c *memCodec) written(path string) (*image.RGBA, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames[path], c.writes[path]
}

type extSniffer struct{}

func (extSniffer) IsImage(path string) bool {
	switch filepath.Ext(path) {
	case ".png", ".jpg":
		return true
	}
	return false
}

func (extSniffer) IsVideo(path string) bool {
	return filepath.Ext(path) == ".mp4"
}

type mockSwapper struct {
	mock.Mock
}

func (m *mockSwapper) Swap(frame *image.RGBA, target, source detector.Face) (*image.RGBA, error) {
	args := m.Called(frame, target, source)
	out, _ := args.Get(0).(*image.RGBA)
	return out, args.Error(1)
}

type mockDriver struct {
	mock.Mock
}

func (m *mockDriver) Run(ctx context.Context, sourcePath string, framePaths []string, process FramesFunc) error {
	return m.Called(ctx, sourcePath, framePaths, process).Error(0)
}

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Ensure(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// syncDriver processes all frames as one shard and counts progress
type syncDriver struct {
	mu       sync.Mutex
	progress int
}

func (d *syncDriver) Run(_ context.Context, sourcePath string, framePaths []string, process FramesFunc) error {
	return process(sourcePath, framePaths, func() {
		d.mu.Lock()
		d.progress++
		d.mu.Unlock()
	})
}

type fixture struct {
	analyser *fakeAnalyser
	codec    *memCodec
	swapper  *mockSwapper
	loads    int
	deps     Deps
}

func newFixture() *fixture {
	f := &fixture{
		analyser: newFakeAnalyser(),
		codec:    newMemCodec(),
		swapper:  &mockSwapper{},
	}
	f.deps = Deps{
		Analyser: f.analyser,
		Model: NewHandle(func() (Swapper, error) {
			f.loads++
			return f.swapper, nil
		}),
		Codec:   f.codec,
		Sniffer: extSniffer{},
		Driver:  &syncDriver{},
	}
	return f
}

func (f *fixture) processor(opts Options) *Processor {
	return NewProcessor(zap.NewNop(), opts, f.deps)
}
