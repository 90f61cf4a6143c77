package rpcx

import "context"

type VoteAccount struct {
	NodePubkey     string `json:"nodePubkey"`
	ActivatedStake uint64 `json:"activatedStake"`
}

// VoteAccounts splits the cluster's vote accounts by liveness. Only the
// current set matters for deciding which leaders carry stake.
type VoteAccounts struct {
	Current    []VoteAccount `json:"current"`
	Delinquent []VoteAccount `json:"delinquent"`
}

func (c *Client) GetVoteAccounts(ctx context.Context) (VoteAccounts, error) {
	var response VoteAccounts
	if err := c.call(ctx, "getVoteAccounts", nil, &response); err != nil {
		return VoteAccounts{}, err
	}
	return response, nil
}
