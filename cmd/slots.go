package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tpucast/logx"
)

type SlotsConfig struct {
	Watch    bool
	Interval time.Duration
}

var slotsConfig SlotsConfig

// slotsCmd represents the slots command
var slotsCmd = &cobra.Command{
	Use:   "slots [flags]",
	Short: "Print the estimated current slot",
	Long: `Prints the slot the client believes the cluster is on. With --watch the
estimate is reprinted as slot updates stream in, until interrupted.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSlots(); err != nil {
			logx.Error("SLOTS CLI", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(slotsCmd)
	bindSenderFlags(slotsCmd)

	slotsCmd.Flags().BoolVarP(&slotsConfig.Watch, "watch", "w", false, "keep printing the estimate")
	slotsCmd.Flags().DurationVar(&slotsConfig.Interval, "interval", time.Second, "print interval in watch mode")
}

func runSlots() error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	client, err := buildClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build tpu client: %w", err)
	}
	defer client.Close()

	estimate, err := client.EstimatedSlot()
	if err != nil {
		return err
	}
	fmt.Println("Estimated current slot:", estimate)

	if !slotsConfig.Watch {
		return nil
	}

	// Wait for interrupt signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(slotsConfig.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-sig:
			return nil
		case <-ticker.C:
			estimate, err := client.EstimatedSlot()
			if err != nil {
				continue
			}
			fmt.Println("Estimated current slot:", estimate)
		}
	}
}
