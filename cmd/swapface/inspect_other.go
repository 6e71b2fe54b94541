//go:build !darwin

package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func inspectMetal(log *zap.Logger, _ *cobra.Command, _ string) {
	log.Warn("go-metal import is only available on macOS")
}
