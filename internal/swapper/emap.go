package swapper

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/dudu/swapface/internal/detector"
)

const emapDim = detector.EmbeddingSize

// Emap is the 512x512 matrix projecting ArcFace embeddings into the inswapper latent space
type Emap [emapDim][emapDim]float32

// LoadEmap loads a little-endian float32 emap matrix from a binary file
func LoadEmap(path string) (*Emap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read emap file: %w", err)
	}
	return ParseEmap(data)
}

// ParseEmap decodes a row-major little-endian float32 emap
func ParseEmap(data []byte) (*Emap, error) {
	expectedSize := emapDim * emapDim * 4
	if len(data) != expectedSize {
		return nil, fmt.Errorf("emap size mismatch: expected %d bytes, got %d", expectedSize, len(data))
	}

	emap := new(Emap)
	for i := range emapDim {
		for j := range emapDim {
			offset := (i*emapDim + j) * 4
			emap[i][j] = math.Float32frombits(binary.LittleEndian.Uint32(data[offset : offset+4]))
		}
	}
	return emap, nil
}

// Latent computes normalize(embedding @ emap), the source input of inswapper
func (e *Emap) Latent(embedding *detector.Embedding) *detector.Embedding {
	var latent detector.Embedding
	for j := range emapDim {
		var sum float32
		for i := range emapDim {
			sum += embedding[i] * e[i][j]
		}
		latent[j] = sum
	}
	return latent.Normalize()
}
