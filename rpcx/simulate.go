package rpcx

import (
	"context"
	"encoding/base64"
	"fmt"
)

type simulateTransactionValue struct {
	Err  interface{} `json:"err,omitempty"`
	Logs []string    `json:"logs,omitempty"`
}

type simulateTransactionResult struct {
	Value *simulateTransactionValue `json:"value"`
}

// SimulateRawTransaction runs the serialized transaction through the
// cluster's simulator without broadcasting it. A non-nil simulation err is
// returned as an error so callers can refuse to fan the transaction out.
func (c *Client) SimulateRawTransaction(ctx context.Context, serializedTx []byte, commitment Commitment) error {
	encoded := base64.StdEncoding.EncodeToString(serializedTx)
	params := []interface{}{
		encoded,
		map[string]interface{}{
			"encoding":   "base64",
			"commitment": string(commitment),
			"sigVerify":  false,
		},
	}
	var response simulateTransactionResult
	if err := c.call(ctx, "simulateTransaction", params, &response); err != nil {
		return err
	}
	if response.Value != nil && response.Value.Err != nil {
		return fmt.Errorf("simulation failed: %v, logs: %v", response.Value.Err, response.Value.Logs)
	}
	return nil
}
