package rpcx

import "context"

// EpochInfo describes where the cluster currently sits in its epoch.
type EpochInfo struct {
	AbsoluteSlot uint64 `json:"absoluteSlot"`
	BlockHeight  uint64 `json:"blockHeight"`
	Epoch        uint64 `json:"epoch"`
	SlotIndex    uint64 `json:"slotIndex"`
	SlotsInEpoch uint64 `json:"slotsInEpoch"`
}

func (c *Client) GetEpochInfo(ctx context.Context, commitment Commitment) (EpochInfo, error) {
	params := []interface{}{
		map[string]string{"commitment": string(commitment)},
	}
	var response EpochInfo
	if err := c.call(ctx, "getEpochInfo", params, &response); err != nil {
		return EpochInfo{}, err
	}
	return response, nil
}
