package rpcx

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tpucast/jsonx"
)

type rpcRequest struct {
	JsonRPC string           `json:"jsonrpc"`
	ID      int              `json:"id"`
	Method  string           `json:"method"`
	Params  jsonx.RawMessage `json:"params"`
}

// newRPCServer serves canned JSON-RPC results per method and records every
// request it saw.
func newRPCServer(t *testing.T, results map[string]string) (*Client, *[]rpcRequest) {
	t.Helper()
	var seen []rpcRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, jsonx.NewDecoder(r.Body).Decode(&req))
		seen = append(seen, req)

		result, ok := results[req.Method]
		if !ok {
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"Method not found"}}`))
			return
		}
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + result + `}`))
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL), &seen
}

func TestClient_GetEpochInfo(t *testing.T) {
	client, seen := newRPCServer(t, map[string]string{
		"getEpochInfo": `{"absoluteSlot":166598,"blockHeight":166500,"epoch":27,"slotIndex":2790,"slotsInEpoch":8192}`,
	})

	info, err := client.GetEpochInfo(context.Background(), CommitmentFinalized)
	require.NoError(t, err)
	assert.Equal(t, uint64(166598), info.AbsoluteSlot)
	assert.Equal(t, uint64(8192), info.SlotsInEpoch)

	require.Len(t, *seen, 1)
	assert.Equal(t, "2.0", (*seen)[0].JsonRPC)
	assert.Contains(t, string((*seen)[0].Params), "finalized")
}

func TestClient_GetSlot(t *testing.T) {
	client, _ := newRPCServer(t, map[string]string{"getSlot": `1234567`})

	slot, err := client.GetSlot(context.Background(), CommitmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, uint64(1234567), slot)
}

func TestClient_GetSlotLeaders(t *testing.T) {
	client, seen := newRPCServer(t, map[string]string{
		"getSlotLeaders": `["ChorusmmK7i1AxXeiTtQgQZhQNiXYU84ULeaYF1EH15n","ChorusmmK7i1AxXeiTtQgQZhQNiXYU84ULeaYF1EH15n","Awes4Tr6TX8JDzEhCZY2QVNimT6iD1zWHzf1vNyGvpLM"]`,
	})

	leaders, err := client.GetSlotLeaders(context.Background(), 100, 3)
	require.NoError(t, err)
	require.Len(t, leaders, 3)
	assert.Equal(t, leaders[0], leaders[1])
	assert.NotEqual(t, leaders[0], leaders[2])
	assert.Equal(t, "Awes4Tr6TX8JDzEhCZY2QVNimT6iD1zWHzf1vNyGvpLM", leaders[2].String())

	require.Len(t, *seen, 1)
	assert.Equal(t, `[100,3]`, string((*seen)[0].Params))
}

func TestClient_GetSlotLeaders_BadIdentity(t *testing.T) {
	client, _ := newRPCServer(t, map[string]string{
		"getSlotLeaders": `["this is not base58!!"]`,
	})

	_, err := client.GetSlotLeaders(context.Background(), 0, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad leader identity")
}

func TestClient_GetClusterNodes(t *testing.T) {
	client, _ := newRPCServer(t, map[string]string{
		"getClusterNodes": `[
			{"pubkey":"9QzsJf7LPLj8GkXbYT3LFDKqsj2hHG7TA3xinJHu8epQ","gossip":"10.239.6.48:8001","tpu":"10.239.6.48:8856","tpuQuic":"10.239.6.48:8862","rpc":"10.239.6.48:8899","version":"1.0.0"},
			{"pubkey":"Awes4Tr6TX8JDzEhCZY2QVNimT6iD1zWHzf1vNyGvpLM","gossip":"10.239.6.49:8001","tpu":null,"rpc":null}
		]`,
	})

	nodes, err := client.GetClusterNodes(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	require.NotNil(t, nodes[0].TPU)
	assert.Equal(t, "10.239.6.48:8856", *nodes[0].TPU)
	require.NotNil(t, nodes[0].TPUQUIC)
	assert.Equal(t, "10.239.6.48:8862", *nodes[0].TPUQUIC)

	// Absent ports decode as nil, they are not an error.
	assert.Nil(t, nodes[1].TPU)
	assert.Nil(t, nodes[1].TPUQUIC)
}

func TestClient_GetLatestBlockhash(t *testing.T) {
	client, _ := newRPCServer(t, map[string]string{
		"getLatestBlockhash": `{"context":{"slot":2792},"value":{"blockhash":"EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N","lastValidBlockHeight":3090}}`,
	})

	blockhash, err := client.GetLatestBlockhash(context.Background(), CommitmentProcessed)
	require.NoError(t, err)
	assert.Equal(t, "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N", blockhash)
}

func TestClient_SimulateRawTransaction(t *testing.T) {
	raw := []byte{1, 2, 3, 4}

	t.Run("clean simulation", func(t *testing.T) {
		client, seen := newRPCServer(t, map[string]string{
			"simulateTransaction": `{"context":{"slot":218},"value":{"err":null,"logs":[]}}`,
		})
		require.NoError(t, client.SimulateRawTransaction(context.Background(), raw, CommitmentConfirmed))

		// The transaction travels base64 encoded.
		require.Len(t, *seen, 1)
		assert.Contains(t, string((*seen)[0].Params), base64.StdEncoding.EncodeToString(raw))
	})

	t.Run("failed simulation", func(t *testing.T) {
		client, _ := newRPCServer(t, map[string]string{
			"simulateTransaction": `{"context":{"slot":218},"value":{"err":"AccountNotFound","logs":["log entry"]}}`,
		})
		err := client.SimulateRawTransaction(context.Background(), raw, CommitmentConfirmed)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "AccountNotFound")
	})
}

func TestClient_GetVoteAccounts(t *testing.T) {
	client, _ := newRPCServer(t, map[string]string{
		"getVoteAccounts": `{"current":[{"nodePubkey":"B97CCUW3AEZFGy6uUg6zUdnNYvnVq5VG8PUtb2HayTDD","activatedStake":42}],"delinquent":[]}`,
	})

	va, err := client.GetVoteAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, va.Current, 1)
	assert.Equal(t, uint64(42), va.Current[0].ActivatedStake)
	assert.Empty(t, va.Delinquent)
}

func TestClient_RPCErrorMapping(t *testing.T) {
	client, _ := newRPCServer(t, nil)

	_, err := client.GetSlot(context.Background(), CommitmentConfirmed)
	require.Error(t, err)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32601, rpcErr.Code)
	assert.Equal(t, "Method not found", rpcErr.Message)
}

func TestClient_HTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.URL).GetSlot(context.Background(), CommitmentConfirmed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=503")
}

func TestCommitment_Valid(t *testing.T) {
	assert.True(t, CommitmentProcessed.Valid())
	assert.True(t, CommitmentConfirmed.Valid())
	assert.True(t, CommitmentFinalized.Valid())
	assert.False(t, Commitment("recent").Valid())
	assert.False(t, Commitment("").Valid())
}
