package cmd

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/system"
	"github.com/blocto/solana-go-sdk/types"
	"github.com/mr-tron/base58"
	"github.com/spf13/cobra"

	"tpucast/config"
	"tpucast/logx"
	"tpucast/tpu"
)

type SendConfig struct {
	KeypairFile string
	To          string
	Amount      uint64
	Raw         string
	RawFile     string
}

var sendConfig SendConfig

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send [flags]",
	Short: "Send a transaction straight to the upcoming slot leaders",
	Long: `Builds a transfer (or takes an already signed transaction) and fans it out
to the ingest ports of the current and upcoming slot leaders.

Examples:
  # Send 5000 lamports using a local keypair
  tpucast send -u https://api.devnet.solana.com -k ~/.config/solana/id.json -t <recipient> -a 5000

  # Fan out an already signed transaction, base64 encoded
  tpucast send -u https://api.devnet.solana.com --raw "AXj4..."`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSend(); err != nil {
			logx.Error("SEND CLI", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	bindSenderFlags(sendCmd)

	sendCmd.Flags().StringVarP(&sendConfig.KeypairFile, "keypair", "k", "", "fee payer keypair file")
	sendCmd.Flags().StringVarP(&sendConfig.To, "to", "t", "", "recipient address")
	sendCmd.Flags().Uint64VarP(&sendConfig.Amount, "amount", "a", 0, "lamports to transfer")
	sendCmd.Flags().StringVar(&sendConfig.Raw, "raw", "", "base64 serialized signed transaction")
	sendCmd.Flags().StringVar(&sendConfig.RawFile, "raw-file", "", "file holding a base64 serialized signed transaction")
}

func runSend() error {
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

	if sendConfig.Raw != "" || sendConfig.RawFile != "" {
		return sendRawTransaction(ctx, client)
	}
	return sendTransfer(ctx, client, cfg)
}

func sendRawTransaction(ctx context.Context, client *tpu.Client) error {
	encoded := sendConfig.Raw
	if encoded == "" {
		data, err := os.ReadFile(sendConfig.RawFile)
		if err != nil {
			return err
		}
		encoded = strings.TrimSpace(string(data))
	}
	serializedTx, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("decode raw transaction: %w", err)
	}

	signature, err := client.SendRaw(ctx, serializedTx)
	if err != nil {
		return err
	}
	fmt.Println("Signature:", signature)
	return nil
}

func sendTransfer(ctx context.Context, client *tpu.Client, cfg *config.SenderConfig) error {
	keypairPath := sendConfig.KeypairFile
	if keypairPath == "" {
		keypairPath = cfg.KeypairPath
	}
	if keypairPath == "" {
		return fmt.Errorf("a fee payer keypair is required, pass --keypair or set keypair_path")
	}
	if sendConfig.To == "" {
		return fmt.Errorf("a recipient is required, pass --to")
	}
	if toBytes, err := base58.Decode(sendConfig.To); err != nil || len(toBytes) != 32 {
		return fmt.Errorf("invalid recipient address %q", sendConfig.To)
	}

	feePayer, err := config.LoadKeypair(keypairPath)
	if err != nil {
		return fmt.Errorf("failed to load keypair: %w", err)
	}

	// The blockhash is filled in and the transaction signed on send.
	tx := types.Transaction{
		Message: types.NewMessage(types.NewMessageParam{
			FeePayer: feePayer.PublicKey,
			Instructions: []types.Instruction{
				system.Transfer(system.TransferParam{
					From:   feePayer.PublicKey,
					To:     common.PublicKeyFromString(sendConfig.To),
					Amount: sendConfig.Amount,
				}),
			},
		}),
	}

	signature, err := client.Send(ctx, &tx, feePayer)
	if err != nil {
		return err
	}
	fmt.Println("Signature:", signature)
	return nil
}
