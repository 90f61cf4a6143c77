package rpcx

import "context"

func (c *Client) GetSlot(ctx context.Context, commitment Commitment) (uint64, error) {
	params := []interface{}{
		map[string]string{"commitment": string(commitment)},
	}
	var response uint64
	if err := c.call(ctx, "getSlot", params, &response); err != nil {
		return 0, err
	}
	return response, nil
}
