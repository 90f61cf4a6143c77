package tpu

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"tpucast/rpcx"
)

func loadedCache(t *testing.T, query *fakeQuery, startSlot uint64) *LeaderCache {
	t.Helper()
	cache := NewLeaderCache(query, CacheOptions{})
	if err := cache.Load(context.Background(), startSlot); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return cache
}

// Test 1: the schedule is refetched once the estimate closes in on the tail
func TestRefreshService_ScheduleTrigger(t *testing.T) {
	fetchStarts := []uint64{}
	query := &fakeQuery{
		slotLeaders: func(start, limit uint64) ([]solana.PublicKey, error) {
			fetchStarts = append(fetchStarts, start)
			return repeatLeaders(leaderKey(1), 200), nil
		},
	}
	cache := loadedCache(t, query, 0)

	// Last cached slot is 199; an estimate of 50 leaves plenty of runway.
	slots := NewRecentSlots(50)
	svc := NewRefreshService(cache, slots, nil, ServiceOptions{})
	svc.refreshOnce(context.Background())
	if len(fetchStarts) != 1 {
		t.Fatalf("unexpected schedule refetch, starts=%v", fetchStarts)
	}

	// An estimate within 100 slots of the tail forces a refetch from the
	// estimate.
	slots.Record(150)
	for i := 0; i < RECENT_SLOT_WINDOW; i++ {
		slots.Record(150)
	}
	svc.refreshOnce(context.Background())
	if len(fetchStarts) != 2 || fetchStarts[1] != 150 {
		t.Fatalf("expected refetch from 150, starts=%v", fetchStarts)
	}
}

// Test 2: crossing an epoch of progress refetches the epoch info
func TestRefreshService_EpochTrigger(t *testing.T) {
	epochCalls := 0
	query := &fakeQuery{
		epochInfo: func() (rpcx.EpochInfo, error) {
			epochCalls++
			return rpcx.EpochInfo{Epoch: 3, AbsoluteSlot: 1000, SlotsInEpoch: 100}, nil
		},
		slotLeaders: func(start, limit uint64) ([]solana.PublicKey, error) {
			return repeatLeaders(leaderKey(1), 2000), nil
		},
	}
	cache := loadedCache(t, query, 1000)
	if epochCalls != 1 {
		t.Fatalf("expected one epoch fetch on load, got %d", epochCalls)
	}

	// Estimate 1050 is still inside the epoch window starting at 1000.
	slots := NewRecentSlots(1050)
	svc := NewRefreshService(cache, slots, nil, ServiceOptions{})
	svc.refreshOnce(context.Background())
	if epochCalls != 1 {
		t.Fatalf("premature epoch refetch, calls=%d", epochCalls)
	}

	// Estimate 1100 crossed lastEpochInfoSlot + slotsInEpoch.
	for i := 0; i < RECENT_SLOT_WINDOW; i++ {
		slots.Record(1100)
	}
	svc.refreshOnce(context.Background())
	if epochCalls != 2 {
		t.Fatalf("expected epoch refetch, calls=%d", epochCalls)
	}
	if got := cache.LastEpochInfoSlot(); got != 1100 {
		t.Fatalf("lastEpochInfoSlot = %d, want 1100", got)
	}
}

// Test 3: the contact book refreshes on its own cadence
func TestRefreshService_ContactCadence(t *testing.T) {
	nodeCalls := 0
	query := &fakeQuery{
		slotLeaders: func(start, limit uint64) ([]solana.PublicKey, error) {
			return repeatLeaders(leaderKey(1), 2000), nil
		},
		clusterNodes: func() ([]rpcx.ClusterNode, error) {
			nodeCalls++
			return nil, nil
		},
	}
	cache := loadedCache(t, query, 0)
	if nodeCalls != 1 {
		t.Fatalf("expected one contact fetch on load, got %d", nodeCalls)
	}

	slots := NewRecentSlots(0)

	// A long cadence means refreshOnce leaves the contact book alone.
	svc := NewRefreshService(cache, slots, nil, ServiceOptions{ContactInterval: time.Hour})
	svc.lastContactRefresh = time.Now()
	svc.refreshOnce(context.Background())
	if nodeCalls != 1 {
		t.Fatalf("unexpected contact refetch, calls=%d", nodeCalls)
	}

	// An elapsed cadence triggers one.
	svc.lastContactRefresh = time.Now().Add(-2 * time.Hour)
	svc.refreshOnce(context.Background())
	if nodeCalls != 2 {
		t.Fatalf("expected contact refetch, calls=%d", nodeCalls)
	}
}

// Test 4: refresh failures keep the previous schedule serving
func TestRefreshService_FailureKeepsSchedule(t *testing.T) {
	query := &fakeQuery{
		slotLeaders: func(start, limit uint64) ([]solana.PublicKey, error) {
			return repeatLeaders(leaderKey(1), 100), nil
		},
		clusterNodes: func() ([]rpcx.ClusterNode, error) {
			return []rpcx.ClusterNode{{Pubkey: leaderKey(1).String(), TPU: strPtr("1.1.1.1:8001")}}, nil
		},
	}
	cache := loadedCache(t, query, 0)

	query.slotLeaders = func(start, limit uint64) ([]solana.PublicKey, error) {
		return nil, errors.New("rpc down")
	}

	// Estimate 50 forces a schedule refetch, which fails.
	slots := NewRecentSlots(50)
	svc := NewRefreshService(cache, slots, nil, ServiceOptions{})
	svc.refreshOnce(context.Background())

	lastSlot, ok := cache.LastSlot()
	if !ok || lastSlot != 99 {
		t.Fatalf("schedule lost after failed refresh: last=%d ok=%v", lastSlot, ok)
	}
	if sockets := svc.LeaderSockets(4); len(sockets) != 1 {
		t.Fatalf("sockets = %v, want one", sockets)
	}
}

// Test 5: notifications advance the estimator, completed slots by one extra
func TestRefreshService_UpdateConsumption(t *testing.T) {
	slots := &RecentSlots{}
	svc := NewRefreshService(nil, slots, nil, ServiceOptions{})

	svc.consumeUpdate(rpcx.SlotUpdate{Slot: 10, Type: rpcx.SlotUpdateCompleted})
	got, err := slots.EstimateCurrent()
	if err != nil {
		t.Fatalf("EstimateCurrent failed: %v", err)
	}
	if got != 11 {
		t.Fatalf("estimate after completed(10) = %d, want 11", got)
	}

	svc.consumeUpdate(rpcx.SlotUpdate{Slot: 12, Type: rpcx.SlotUpdateFirstShredReceived})
	got, err = slots.EstimateCurrent()
	if err != nil {
		t.Fatalf("EstimateCurrent failed: %v", err)
	}
	if got != 12 {
		t.Fatalf("estimate after firstShredReceived(12) = %d, want 12", got)
	}
}

// Test 6: the service loop starts, consumes updates, and stops cleanly
func TestRefreshService_StartStop(t *testing.T) {
	query := &fakeQuery{
		slotLeaders: func(start, limit uint64) ([]solana.PublicKey, error) {
			return repeatLeaders(leaderKey(1), 2000), nil
		},
	}
	cache := loadedCache(t, query, 0)

	updates := make(chan rpcx.SlotUpdate, 4)
	slots := NewRecentSlots(0)
	svc := NewRefreshService(cache, slots, updates, ServiceOptions{LoopInterval: 10 * time.Millisecond})
	svc.Start()

	updates <- rpcx.SlotUpdate{Slot: 5, Type: rpcx.SlotUpdateRoot}
	time.Sleep(50 * time.Millisecond)
	svc.Stop()

	got, err := svc.EstimatedSlot()
	if err != nil {
		t.Fatalf("EstimatedSlot failed: %v", err)
	}
	if got != 5 {
		t.Fatalf("estimate = %d, want 5", got)
	}
}
