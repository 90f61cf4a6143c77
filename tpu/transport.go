package tpu

import (
	"context"
	"net"
)

// Transport delivers one serialized transaction to a leader ingest address.
type Transport interface {
	Name() string
	Send(ctx context.Context, addr string, payload []byte) error
	Close() error
}

// UDPTransport fires datagrams from a single unconnected socket. Sends do
// not block and never wait for acknowledgement.
type UDPTransport struct {
	conn *net.UDPConn
}

func NewUDPTransport() (*UDPTransport, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, err
	}
	return &UDPTransport{conn: conn}, nil
}

func (t *UDPTransport) Name() string {
	return "udp"
}

func (t *UDPTransport) Send(_ context.Context, addr string, payload []byte) error {
	dst, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	_, err = t.conn.WriteToUDP(payload, dst)
	return err
}

func (t *UDPTransport) Close() error {
	return t.conn.Close()
}
