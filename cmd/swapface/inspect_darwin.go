//go:build darwin

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tsawler/go-metal/checkpoints"
	"go.uber.org/zap"
)

// inspectMetal reports whether go-metal can import the model and lists its layers
func inspectMetal(log *zap.Logger, cmd *cobra.Command, modelPath string) {
	out := cmd.OutOrStdout()

	checkpoint, err := checkpoints.NewONNXImporter().ImportFromONNX(modelPath)
	if err != nil {
		log.Warn("go-metal import failed, the model likely uses unsupported operations", zap.Error(err))
		return
	}

	fmt.Fprintf(out, "Metal: %d layers, %d weight tensors\n", len(checkpoint.ModelSpec.Layers), len(checkpoint.Weights))
	for i, layer := range checkpoint.ModelSpec.Layers {
		fmt.Fprintf(out, "  %d: %s (%v)\n", i+1, layer.Name, layer.Type)
	}
}
