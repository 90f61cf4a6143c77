package quic

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/quic-go/quic-go"
)

// ALPN_TPU_PROTOCOL_ID is the protocol the leader's QUIC ingest port
// negotiates.
const ALPN_TPU_PROTOCOL_ID = "solana-tpu"

const dialIdleTimeout = 30 * time.Second

// Transport opens one short-lived QUIC connection per send and writes the
// payload on a unidirectional stream. The ingest port treats each stream as
// one transaction.
type Transport struct {
	tlsConfig *tls.Config
}

func NewTransport() (*Transport, error) {
	tlsConfig, err := clientTLSConfig()
	if err != nil {
		return nil, err
	}
	return &Transport{tlsConfig: tlsConfig}, nil
}

func (t *Transport) Name() string {
	return "quic"
}

func (t *Transport) Send(ctx context.Context, addr string, payload []byte) error {
	conn, err := quic.DialAddr(ctx, addr, t.tlsConfig, &quic.Config{
		MaxIdleTimeout: dialIdleTimeout,
	})
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.CloseWithError(0, "done")

	stream, err := conn.OpenUniStreamSync(ctx)
	if err != nil {
		return err
	}
	if _, err := stream.Write(payload); err != nil {
		return err
	}
	return stream.Close()
}

func (t *Transport) Close() error {
	return nil
}

func clientTLSConfig() (*tls.Config, error) {
	certPEM, keyPEM, err := newSelfSignedCertificate()
	if err != nil {
		return nil, err
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	// Leader certificates are self-signed.
	return &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{ALPN_TPU_PROTOCOL_ID},
		Certificates:       []tls.Certificate{cert},
		MinVersion:         tls.VersionTLS13,
		ServerName:         "server",
	}, nil
}
