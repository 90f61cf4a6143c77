package rpcx

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"

	"tpucast/exception"
	"tpucast/jsonx"
	"tpucast/logx"
	"tpucast/monitoring"
)

// SlotUpdateType mirrors the type field of slotsUpdates notifications.
type SlotUpdateType string

const (
	SlotUpdateFirstShredReceived     SlotUpdateType = "firstShredReceived"
	SlotUpdateCompleted              SlotUpdateType = "completed"
	SlotUpdateCreatedBank            SlotUpdateType = "createdBank"
	SlotUpdateFrozen                 SlotUpdateType = "frozen"
	SlotUpdateDead                   SlotUpdateType = "dead"
	SlotUpdateOptimisticConfirmation SlotUpdateType = "optimisticConfirmation"
	SlotUpdateRoot                   SlotUpdateType = "root"
)

// SlotUpdate is one progress notification for a slot.
type SlotUpdate struct {
	Slot      uint64         `json:"slot"`
	Parent    uint64         `json:"parent,omitempty"`
	Timestamp int64          `json:"timestamp,omitempty"`
	Type      SlotUpdateType `json:"type"`
}

type slotUpdateMessage struct {
	Method string `json:"method,omitempty"`
	Params struct {
		Result       SlotUpdate `json:"result"`
		Subscription uint64     `json:"subscription"`
	} `json:"params"`
}

const (
	updateBufferSize = 128
	redialDelay      = time.Second
)

// SlotUpdateStream follows the cluster's slotsUpdates subscription and fans
// the notifications into a channel. It redials until closed. Updates arriving
// while the consumer is behind are dropped rather than queued without bound,
// the consumer only needs a fresh view, not history.
type SlotUpdateStream struct {
	endpoint  string
	updates   chan SlotUpdate
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// DialSlotUpdates connects to the push endpoint, subscribes, and starts the
// read loop. The passed context bounds only the initial dial; the stream
// itself lives until Close.
func DialSlotUpdates(ctx context.Context, endpoint string) (*SlotUpdateStream, error) {
	streamCtx, cancel := context.WithCancel(context.Background())
	s := &SlotUpdateStream{
		endpoint: endpoint,
		updates:  make(chan SlotUpdate, updateBufferSize),
		ctx:      streamCtx,
		cancel:   cancel,
	}
	conn, err := s.dial(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	exception.SafeGo("slotUpdateStream", func() {
		s.run(conn)
	})
	return s, nil
}

// Updates is closed once the stream shuts down.
func (s *SlotUpdateStream) Updates() <-chan SlotUpdate {
	return s.updates
}

func (s *SlotUpdateStream) Close() {
	s.closeOnce.Do(s.cancel)
}

func (s *SlotUpdateStream) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, s.endpoint, nil)
	if err != nil {
		return nil, err
	}
	sub, err := jsonx.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "slotsUpdatesSubscribe",
	})
	if err != nil {
		conn.Close(websocket.StatusInternalError, "subscribe encode failed")
		return nil, err
	}
	if err := conn.Write(ctx, websocket.MessageText, sub); err != nil {
		conn.Close(websocket.StatusInternalError, "subscribe failed")
		return nil, err
	}
	return conn, nil
}

func (s *SlotUpdateStream) run(conn *websocket.Conn) {
	defer close(s.updates)
	for {
		if conn == nil {
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(redialDelay):
			}
			next, err := s.dial(s.ctx)
			if err != nil {
				if s.ctx.Err() != nil {
					return
				}
				logx.Warn("SLOT_STREAM", "redial failed: ", err)
				continue
			}
			conn = next
			logx.Info("SLOT_STREAM", "resubscribed to slot updates")
		}

		_, data, err := conn.Read(s.ctx)
		if err != nil {
			conn.Close(websocket.StatusNormalClosure, "")
			if s.ctx.Err() != nil {
				return
			}
			logx.Warn("SLOT_STREAM", "read failed: ", err)
			conn = nil
			continue
		}

		var msg slotUpdateMessage
		if err := jsonx.Unmarshal(data, &msg); err != nil {
			logx.Debug("SLOT_STREAM", "skipping malformed frame: ", err)
			continue
		}
		if msg.Method != "slotsUpdatesNotification" {
			// Subscription ack and other control frames.
			continue
		}
		monitoring.IncreaseSlotUpdateCount()
		select {
		case s.updates <- msg.Params.Result:
		default:
			monitoring.IncreaseDroppedSlotUpdateCount()
		}
	}
}
