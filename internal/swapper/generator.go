package swapper

import (
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/dudu/swapface/internal/detector"
	"github.com/dudu/swapface/internal/inference"
)

// Inswapper runs the inswapper_128 generator
type Inswapper struct {
	session *inference.Session
}

// NewInswapper creates a new generator session
func NewInswapper(log *zap.Logger, modelPath string, providers []inference.Provider) (*Inswapper, error) {
	// target face and source latent in, swapped face out
	inputNames := []string{"target", "source"}
	outputNames := []string{"output"}

	session, err := inference.NewSession(log, modelPath, inputNames, outputNames, providers)
	if err != nil {
		return nil, fmt.Errorf("failed to create Inswapper session: %w", err)
	}

	return &Inswapper{session: session}, nil
}

// Provider reports the execution provider the generator runs on
func (s *Inswapper) Provider() inference.Provider {
	return s.session.Provider()
}

// Generate renders the source identity onto a 128x128 aligned BGR target face
func (s *Inswapper) Generate(targetFace gocv.Mat, latent *detector.Embedding) (gocv.Mat, error) {
	if targetFace.Rows() != inswapperSize || targetFace.Cols() != inswapperSize {
		return gocv.NewMat(), fmt.Errorf("expected %dx%d target, got %dx%d", inswapperSize, inswapperSize, targetFace.Cols(), targetFace.Rows())
	}

	// blobFromImage(aimg, 1/255, size, (0,0,0), swapRB=True)
	blob := gocv.BlobFromImage(targetFace, 1.0/255.0, image.Pt(inswapperSize, inswapperSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	targetTensor, err := ort.NewTensor(
		ort.NewShape(1, 3, inswapperSize, inswapperSize),
		bytesToFloat32Slice(blob.ToBytes()),
	)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create target tensor: %w", err)
	}
	defer targetTensor.Destroy()

	sourceTensor, err := ort.NewTensor(ort.NewShape(1, detector.EmbeddingSize), latent[:])
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create source tensor: %w", err)
	}
	defer sourceTensor.Destroy()

	outputTensor, err := inference.CreateEmptyTensor[float32]([]int64{1, 3, inswapperSize, inswapperSize})
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	err = s.session.Run(
		[]ort.Value{targetTensor, sourceTensor},
		[]ort.Value{outputTensor},
	)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("inference failed: %w", err)
	}

	return planarRGBToBGR(outputTensor.GetData(), inswapperSize), nil
}

// Close releases generator resources
func (s *Inswapper) Close() error {
	return s.session.Destroy()
}

// planarRGBToBGR converts a [3,size,size] tensor in [0,1] to an interleaved BGR Mat
func planarRGBToBGR(data []float32, size int) gocv.Mat {
	plane := size * size
	pixels := make([]byte, plane*3)
	for i := range plane {
		pixels[i*3+0] = clampByte(data[2*plane+i] * 255.0)
		pixels[i*3+1] = clampByte(data[plane+i] * 255.0)
		pixels[i*3+2] = clampByte(data[i] * 255.0)
	}

	mat, err := gocv.NewMatFromBytes(size, size, gocv.MatTypeCV8UC3, pixels)
	if err != nil {
		return gocv.NewMat()
	}
	return mat
}

func clampByte(v float32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
