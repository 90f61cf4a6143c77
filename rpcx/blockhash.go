package rpcx

import "context"

type latestBlockhashValue struct {
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

type latestBlockhashResult struct {
	Value latestBlockhashValue `json:"value"`
}

// GetLatestBlockhash returns a recent blockhash suitable for signing a new
// transaction against.
func (c *Client) GetLatestBlockhash(ctx context.Context, commitment Commitment) (string, error) {
	params := []interface{}{
		map[string]string{"commitment": string(commitment)},
	}
	var response latestBlockhashResult
	if err := c.call(ctx, "getLatestBlockhash", params, &response); err != nil {
		return "", err
	}
	return response.Value.Blockhash, nil
}
