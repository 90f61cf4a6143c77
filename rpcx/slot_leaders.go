package rpcx

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// GetSlotLeaders returns the leader identity for each of limit consecutive
// slots starting at start.
func (c *Client) GetSlotLeaders(ctx context.Context, start, limit uint64) ([]solana.PublicKey, error) {
	params := []interface{}{start, limit}
	var response []string
	if err := c.call(ctx, "getSlotLeaders", params, &response); err != nil {
		return nil, err
	}
	leaders := make([]solana.PublicKey, 0, len(response))
	for _, raw := range response {
		pk, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			return nil, fmt.Errorf("bad leader identity %q: %w", raw, err)
		}
		leaders = append(leaders, pk)
	}
	return leaders, nil
}
