package config

// SenderConfig holds everything needed to reach a cluster and fan
// transactions out to its leaders.
type SenderConfig struct {
	RPCURL        string `yaml:"rpc_url"`
	WSURL         string `yaml:"ws_url"`
	KeypairPath   string `yaml:"keypair_path"`
	Commitment    string `yaml:"commitment"`
	FanoutSlots   int    `yaml:"fanout_slots"`
	Transport     string `yaml:"transport"`
	StakedOnly    bool   `yaml:"staked_only"`
	SkipPreflight bool   `yaml:"skip_preflight"`
	MetricsAddr   string `yaml:"metrics_addr"`
}

// ConfigFile is the top-level structure for sender.yml
type ConfigFile struct {
	Config SenderConfig `yaml:"config"`
}
