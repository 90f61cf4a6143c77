package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"tpucast/logx"
)

var rootCmd = &cobra.Command{
	Use:   "tpucast",
	Short: "Solana TPU transaction sender CLI",
	Long:  "Command line interface for sending signed transactions straight to slot leaders over UDP or QUIC.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", "Command execution failed:", err)
		os.Exit(1)
	}
}
