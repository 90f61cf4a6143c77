package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"tpucast/config"
	"tpucast/exception"
	"tpucast/logx"
	"tpucast/monitoring"
	"tpucast/quic"
	"tpucast/rpcx"
	"tpucast/tpu"
)

// SenderOptions are the flags shared by every command that talks to a
// cluster. Flag values override whatever the config file says.
type SenderOptions struct {
	ConfigFile    string
	RPCURL        string
	WSURL         string
	Commitment    string
	FanoutSlots   int
	Transport     string
	StakedOnly    bool
	SkipPreflight bool
	MetricsAddr   string
	TuningFile    string
}

var senderOpts SenderOptions

func bindSenderFlags(c *cobra.Command) {
	c.PersistentFlags().StringVarP(&senderOpts.ConfigFile, "config", "c", "", "sender config file (yaml)")
	c.PersistentFlags().StringVarP(&senderOpts.RPCURL, "rpc-url", "u", "", "cluster RPC endpoint")
	c.PersistentFlags().StringVar(&senderOpts.WSURL, "ws-url", "", "cluster websocket endpoint for slot updates")
	c.PersistentFlags().StringVar(&senderOpts.Commitment, "commitment", "", "commitment level (processed|confirmed|finalized)")
	c.PersistentFlags().IntVar(&senderOpts.FanoutSlots, "fanout-slots", 0, "upcoming slots to fan out to (default 12, max 100)")
	c.PersistentFlags().StringVar(&senderOpts.Transport, "transport", "", "leader ingest transport (udp|quic)")
	c.PersistentFlags().BoolVar(&senderOpts.StakedOnly, "staked-only", false, "only target leaders with active stake")
	c.PersistentFlags().BoolVar(&senderOpts.SkipPreflight, "skip-preflight", false, "skip simulating the transaction before fanout")
	c.PersistentFlags().StringVar(&senderOpts.MetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	c.PersistentFlags().StringVar(&senderOpts.TuningFile, "tuning", "", "refresh tuning file (ini)")
}

// resolveConfig merges the optional config file with flag overrides.
func resolveConfig() (*config.SenderConfig, error) {
	cfg := &config.SenderConfig{}
	if senderOpts.ConfigFile != "" {
		loaded, err := config.LoadSenderConfig(senderOpts.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if senderOpts.RPCURL != "" {
		cfg.RPCURL = senderOpts.RPCURL
	}
	if senderOpts.WSURL != "" {
		cfg.WSURL = senderOpts.WSURL
	}
	if senderOpts.Commitment != "" {
		cfg.Commitment = senderOpts.Commitment
	}
	if senderOpts.FanoutSlots != 0 {
		cfg.FanoutSlots = senderOpts.FanoutSlots
	}
	if senderOpts.Transport != "" {
		cfg.Transport = senderOpts.Transport
	}
	if senderOpts.StakedOnly {
		cfg.StakedOnly = true
	}
	if senderOpts.SkipPreflight {
		cfg.SkipPreflight = true
	}
	if senderOpts.MetricsAddr != "" {
		cfg.MetricsAddr = senderOpts.MetricsAddr
	}
	if cfg.RPCURL == "" {
		cfg.RPCURL = config.DefaultRPCURL
	}
	if cfg.Transport == "" {
		cfg.Transport = config.TransportUDP
	}
	return cfg, nil
}

// buildClient assembles the TPU client the resolved config describes.
func buildClient(ctx context.Context, cfg *config.SenderConfig) (*tpu.Client, error) {
	clientCfg := tpu.ClientConfig{
		WebsocketURL:  cfg.WSURL,
		FanoutSlots:   cfg.FanoutSlots,
		Commitment:    rpcx.Commitment(cfg.Commitment),
		UseQUIC:       cfg.Transport == config.TransportQUIC,
		StakedOnly:    cfg.StakedOnly,
		SkipPreflight: cfg.SkipPreflight,
	}

	if cfg.Transport == config.TransportQUIC {
		transport, err := quic.NewTransport()
		if err != nil {
			return nil, err
		}
		clientCfg.Transport = transport
	}

	if senderOpts.TuningFile != "" {
		tuning, err := config.LoadRefreshConfig(senderOpts.TuningFile)
		if err != nil {
			return nil, err
		}
		clientCfg.LoopInterval = time.Duration(tuning.LoopIntervalMs) * time.Millisecond
		clientCfg.ContactInterval = time.Duration(tuning.ContactRefreshMinutes) * time.Minute
	}

	if cfg.MetricsAddr != "" {
		serveMetrics(cfg.MetricsAddr)
	}

	return tpu.New(ctx, rpcx.New(cfg.RPCURL), clientCfg)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	monitoring.RegisterMetrics(mux)
	exception.SafeGo("metricsServer", func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logx.Error("METRICS", "metrics server stopped: ", err)
		}
	})
}
