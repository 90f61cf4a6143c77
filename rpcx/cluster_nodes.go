package rpcx

import "context"

// ClusterNode is one gossip participant as reported by getClusterNodes.
// Port fields are null for nodes that do not expose the service, so they
// stay pointers here and the caller decides what absence means.
type ClusterNode struct {
	Pubkey  string  `json:"pubkey"`
	Gossip  *string `json:"gossip,omitempty"`
	TPU     *string `json:"tpu,omitempty"`
	TPUQUIC *string `json:"tpuQuic,omitempty"`
	RPC     *string `json:"rpc,omitempty"`
	Version *string `json:"version,omitempty"`
}

func (c *Client) GetClusterNodes(ctx context.Context) ([]ClusterNode, error) {
	var response []ClusterNode
	if err := c.call(ctx, "getClusterNodes", nil, &response); err != nil {
		return nil, err
	}
	return response, nil
}
