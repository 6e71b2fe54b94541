package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dudu/swapface/internal/config"
	"github.com/dudu/swapface/internal/download"
	"github.com/dudu/swapface/internal/inference"
)

func newModelsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage model files",
	}
	cmd.AddCommand(newModelsDownloadCmd(c), newModelsInspectCmd(c))
	return cmd
}

func newModelsDownloadCmd(c *cli) *cobra.Command {
	opts := config.Default()

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download missing model files into the models directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ApplyEnv()
			if err := os.MkdirAll(opts.ModelsDir, 0o755); err != nil {
				return fmt.Errorf("failed to create models dir: %w", err)
			}
			fetcher := download.New(c.log, opts.ModelsDir, modelAssets(), os.Stderr)
			if err := fetcher.Ensure(cmd.Context()); err != nil {
				return err
			}
			c.log.Info("models ready", zap.String("dir", opts.ModelsDir))
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.ModelsDir, "models-dir", opts.ModelsDir, "Directory holding the model files")
	return cmd
}

func newModelsInspectCmd(c *cli) *cobra.Command {
	opts := config.Default()
	var metal bool

	cmd := &cobra.Command{
		Use:   "inspect <model.onnx>",
		Short: "Print the inputs and outputs of an ONNX model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ApplyEnv()
			modelPath := args[0]
			if _, err := os.Stat(modelPath); err != nil {
				return fmt.Errorf("model not found: %w", err)
			}

			if err := inference.Initialize(opts.ORTLibrary); err != nil {
				return err
			}
			defer inference.Shutdown()

			info, err := inference.Inspect(modelPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Model: %s\n", modelPath)
			if info.Producer != "" {
				fmt.Fprintf(out, "  Producer: %s (version %d)\n", info.Producer, info.Version)
			}
			fmt.Fprintln(out, "Inputs:")
			for _, t := range info.Inputs {
				fmt.Fprintf(out, "  %s %s %s\n", t.Name, t.DataType, formatDims(t.Dimensions))
			}
			fmt.Fprintln(out, "Outputs:")
			for _, t := range info.Outputs {
				fmt.Fprintf(out, "  %s %s %s\n", t.Name, t.DataType, formatDims(t.Dimensions))
			}

			if metal {
				inspectMetal(c.log, cmd, modelPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.ORTLibrary, "ort-lib", opts.ORTLibrary, "Path to the onnxruntime shared library")
	cmd.Flags().BoolVar(&metal, "metal", false, "Also try importing the model into go-metal")
	return cmd
}

// formatDims renders a shape, -1 marks a dynamic axis
func formatDims(dims []int64) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		if d < 0 {
			parts[i] = "?"
		} else {
			parts[i] = fmt.Sprint(d)
		}
	}
	return "[" + strings.Join(parts, "x") + "]"
}
