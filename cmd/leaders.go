package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tpucast/logx"
)

type LeadersConfig struct {
	Count uint64
}

var leadersConfig LeadersConfig

// leadersCmd represents the leaders command
var leadersCmd = &cobra.Command{
	Use:   "leaders [flags]",
	Short: "Show the upcoming slot leaders and their ingest addresses",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runLeaders(); err != nil {
			logx.Error("LEADERS CLI", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(leadersCmd)
	bindSenderFlags(leadersCmd)

	leadersCmd.Flags().Uint64VarP(&leadersConfig.Count, "count", "n", 12, "upcoming slots to list")
}

func runLeaders() error {
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

	contacts, err := client.UpcomingLeaders(leadersConfig.Count)
	if err != nil {
		return err
	}
	for _, contact := range contacts {
		addr := contact.Address
		if addr == "" {
			addr = "(no ingest address)"
		}
		fmt.Printf("slot %d  %s  %s\n", contact.Slot, contact.Identity.String(), addr)
	}
	return nil
}
