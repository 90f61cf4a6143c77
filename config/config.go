package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/blocto/solana-go-sdk/types"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"tpucast/jsonx"
)

// LoadSenderConfig reads and parses the sender.yml file
func LoadSenderConfig(path string) (*SenderConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		log.Printf("[config] Failed to open file: %v", err)
		return nil, err
	}
	defer file.Close()

	var cfgFile ConfigFile
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfgFile); err != nil {
		log.Printf("[config] Failed to decode YAML: %v", err)
		return nil, err
	}

	cfg := &cfgFile.Config
	if cfg.RPCURL == "" {
		cfg.RPCURL = DefaultRPCURL
	}
	if cfg.Transport == "" {
		cfg.Transport = TransportUDP
	}
	if cfg.Transport != TransportUDP && cfg.Transport != TransportQUIC {
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	log.Printf("[config] Loaded sender config: rpc=%s transport=%s fanout=%d", cfg.RPCURL, cfg.Transport, cfg.FanoutSlots)
	return cfg, nil
}

// LoadKeypair reads a fee payer keypair, accepting both the JSON byte-array
// layout of solana-keygen and a bare base58 seed.
func LoadKeypair(path string) (types.Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Account{}, err
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var raw []int
		if err := jsonx.Unmarshal([]byte(trimmed), &raw); err != nil {
			return types.Account{}, fmt.Errorf("parse keypair file: %w", err)
		}
		key := make([]byte, len(raw))
		for i, v := range raw {
			key[i] = byte(v)
		}
		return types.AccountFromBytes(key)
	}
	return types.AccountFromBase58(trimmed)
}

type RefreshConfig struct {
	LoopIntervalMs        int `ini:"loop_interval_ms"`
	ContactRefreshMinutes int `ini:"contact_refresh_minutes"`
}

// LoadRefreshConfig reads refresh loop tuning from an .ini file
func LoadRefreshConfig(path string) (*RefreshConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	refreshSection := cfg.Section("refresh")
	refreshCfg := &RefreshConfig{}
	err = refreshSection.MapTo(refreshCfg)
	if err != nil {
		return nil, err
	}
	return refreshCfg, nil
}
