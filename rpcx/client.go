package rpcx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"tpucast/jsonx"
)

// Commitment selects how settled a view of the cluster a query reflects.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

func (c Commitment) Valid() bool {
	switch c {
	case CommitmentProcessed, CommitmentConfirmed, CommitmentFinalized:
		return true
	default:
		return false
	}
}

const defaultRequestTimeout = 10 * time.Second

// Client is a lite JSON-RPC client carrying only the queries the sender
// needs. The http.Client timeout is the only deadline applied to upstream
// queries; callers do not layer their own on top.
type Client struct {
	endpoint string
	hc       *http.Client
}

func New(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		hc: &http.Client{
			Timeout: defaultRequestTimeout,
		},
	}
}

type jsonRPCResponse struct {
	JsonRPC string           `json:"jsonrpc"`
	ID      int              `json:"id"`
	Result  jsonx.RawMessage `json:"result"`
	Error   *RPCError        `json:"error,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	payload, err := jsonx.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("rpc %s status=%d", method, resp.StatusCode)
	}

	var rpcResp jsonRPCResponse
	if err := jsonx.Unmarshal(body, &rpcResp); err != nil {
		return err
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result == nil {
		return nil
	}
	return jsonx.Unmarshal(rpcResp.Result, result)
}
