package swapper

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/dudu/swapface/internal/detector"
	"github.com/dudu/swapface/internal/inference"
)

// ArcFaceEncoder extracts face embeddings using ArcFace
type ArcFaceEncoder struct {
	session *inference.Session
}

// NewArcFaceEncoder creates a new ArcFace encoder
func NewArcFaceEncoder(log *zap.Logger, modelPath string, providers []inference.Provider) (*ArcFaceEncoder, error) {
	inputNames := []string{"input.1"}
	outputNames := []string{"683"} // output node name from model

	session, err := inference.NewSession(log, modelPath, inputNames, outputNames, providers)
	if err != nil {
		return nil, fmt.Errorf("failed to create ArcFace session: %w", err)
	}

	return &ArcFaceEncoder{session: session}, nil
}

// Extract computes the normed embedding from an aligned 112x112 BGR face
func (e *ArcFaceEncoder) Extract(alignedFace gocv.Mat) (*detector.Embedding, error) {
	if alignedFace.Rows() != arcfaceSize || alignedFace.Cols() != arcfaceSize {
		return nil, fmt.Errorf("expected %dx%d input, got %dx%d", arcfaceSize, arcfaceSize, alignedFace.Cols(), alignedFace.Rows())
	}

	// (x - 127.5) / 127.5, BGR -> RGB
	blob := gocv.BlobFromImage(alignedFace, 1.0/127.5, image.Pt(arcfaceSize, arcfaceSize),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	inputTensor, err := ort.NewTensor(
		ort.NewShape(1, 3, arcfaceSize, arcfaceSize),
		bytesToFloat32Slice(blob.ToBytes()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := inference.CreateEmptyTensor[float32]([]int64{1, detector.EmbeddingSize})
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := e.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	var raw detector.Embedding
	copy(raw[:], outputTensor.GetData())
	return raw.Normalize(), nil
}

// Close releases encoder resources
func (e *ArcFaceEncoder) Close() error {
	return e.session.Destroy()
}

func bytesToFloat32Slice(data []byte) []float32 {
	result := make([]float32, len(data)/4)
	for i := range result {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		result[i] = math.Float32frombits(bits)
	}
	return result
}
