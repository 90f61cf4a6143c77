package config

const (
	TransportUDP  = "udp"
	TransportQUIC = "quic"

	DefaultRPCURL = "https://api.devnet.solana.com"
	DefaultWSURL  = "wss://api.devnet.solana.com"
)
