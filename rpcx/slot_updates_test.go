package rpcx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tpucast/jsonx"
)

// subscribeRequest is the shape the stream sends on connect.
type subscribeRequest struct {
	JsonRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
}

// slotUpdateServer accepts websocket subscribers, acks the subscription and
// hands the connection to frames. Handlers run off the test goroutine, so
// they report problems with assert and bail out instead of require.
func slotUpdateServer(t *testing.T, frames func(ctx context.Context, conn *websocket.Conn)) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var conns atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		conns.Add(1)

		ctx := r.Context()
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var req subscribeRequest
		if !assert.NoError(t, jsonx.Unmarshal(data, &req)) {
			return
		}
		if !assert.Equal(t, "slotsUpdatesSubscribe", req.Method) {
			return
		}

		// Subscription ack, consumers must not mistake it for an update.
		if conn.Write(ctx, websocket.MessageText, []byte(`{"jsonrpc":"2.0","result":1,"id":1}`)) != nil {
			return
		}

		frames(ctx, conn)
	}))
	t.Cleanup(srv.Close)
	return srv, &conns
}

// holdConn keeps the server side open until the subscriber goes away.
func holdConn(ctx context.Context, conn *websocket.Conn) {
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func notificationFrame(slot uint64, updateType string) []byte {
	payload, _ := jsonx.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "slotsUpdatesNotification",
		"params": map[string]interface{}{
			"result": map[string]interface{}{
				"slot":      slot,
				"timestamp": 1625081266243,
				"type":      updateType,
			},
			"subscription": 1,
		},
	})
	return payload
}

func TestSlotUpdateStream_DeliversNotifications(t *testing.T) {
	srv, _ := slotUpdateServer(t, func(ctx context.Context, conn *websocket.Conn) {
		conn.Write(ctx, websocket.MessageText, notificationFrame(1000, "firstShredReceived"))
		// A frame the parser cannot read is skipped, not fatal.
		conn.Write(ctx, websocket.MessageText, []byte(`{{{`))
		conn.Write(ctx, websocket.MessageText, notificationFrame(1001, "completed"))
		holdConn(ctx, conn)
	})

	stream, err := DialSlotUpdates(context.Background(), srv.URL)
	require.NoError(t, err)
	defer stream.Close()

	var got []SlotUpdate
	for len(got) < 2 {
		select {
		case update := <-stream.Updates():
			got = append(got, update)
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out, got %v", got)
		}
	}

	assert.Equal(t, uint64(1000), got[0].Slot)
	assert.Equal(t, SlotUpdateFirstShredReceived, got[0].Type)
	assert.Equal(t, uint64(1001), got[1].Slot)
	assert.Equal(t, SlotUpdateCompleted, got[1].Type)
}

func TestSlotUpdateStream_RedialsAfterDrop(t *testing.T) {
	var srv *httptest.Server
	var conns *atomic.Int64
	srv, conns = slotUpdateServer(t, func(ctx context.Context, conn *websocket.Conn) {
		conn.Write(ctx, websocket.MessageText, notificationFrame(500, "root"))
		if conns.Load() == 1 {
			// First connection dies right away; the stream must
			// resubscribe on its own.
			conn.Close(websocket.StatusGoingAway, "restarting")
			return
		}
		holdConn(ctx, conn)
	})

	stream, err := DialSlotUpdates(context.Background(), srv.URL)
	require.NoError(t, err)
	defer stream.Close()

	deadline := time.After(5 * time.Second)
	received := 0
	for received < 2 {
		select {
		case <-stream.Updates():
			received++
		case <-deadline:
			t.Fatalf("timed out after %d updates, %d connections", received, conns.Load())
		}
	}
	assert.GreaterOrEqual(t, conns.Load(), int64(2))
}

func TestSlotUpdateStream_CloseEndsUpdates(t *testing.T) {
	srv, _ := slotUpdateServer(t, holdConn)

	stream, err := DialSlotUpdates(context.Background(), srv.URL)
	require.NoError(t, err)
	stream.Close()

	select {
	case _, ok := <-stream.Updates():
		assert.False(t, ok, "channel should be closed without updates")
	case <-time.After(3 * time.Second):
		t.Fatal("updates channel never closed")
	}
}

func TestSlotUpdateStream_DialFailure(t *testing.T) {
	_, err := DialSlotUpdates(context.Background(), "ws://127.0.0.1:1")
	require.Error(t, err)
}
