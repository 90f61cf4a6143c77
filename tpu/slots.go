package tpu

import (
	"sort"
	"sync"
)

const (
	// RECENT_SLOT_WINDOW bounds how many recordings feed the estimate.
	RECENT_SLOT_WINDOW = 12
	// MAX_SLOT_SKIP_DISTANCE caps how far past the cluster median an
	// outlier recording may pull the estimate.
	MAX_SLOT_SKIP_DISTANCE = 48
)

// RecentSlots keeps the last few slots the cluster reported and turns them
// into a single current-slot estimate that tolerates stale connections and
// runaway outliers. The zero value is usable and starts empty.
type RecentSlots struct {
	mu    sync.RWMutex
	slots []uint64
}

// NewRecentSlots seeds the window with a first recording so estimates are
// available immediately.
func NewRecentSlots(current uint64) *RecentSlots {
	rs := &RecentSlots{}
	rs.Record(current)
	return rs
}

// Record appends a recording, evicting the oldest once the window is full.
func (rs *RecentSlots) Record(slot uint64) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.slots = append(rs.slots, slot)
	if len(rs.slots) > RECENT_SLOT_WINDOW {
		rs.slots = rs.slots[1:]
	}
}

// EstimateCurrent returns the most plausible current slot in the window.
// The window is sorted and each entry is taken as a sample of where the tip
// was when it arrived; the expected tip is the median advanced by the number
// of entries above it, and the newest recording within MAX_SLOT_SKIP_DISTANCE
// of that expectation wins.
func (rs *RecentSlots) EstimateCurrent() (uint64, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	if len(rs.slots) == 0 {
		return 0, ErrNoRecentSlots
	}

	sorted := make([]uint64, len(rs.slots))
	copy(sorted, rs.slots)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	maxIndex := len(sorted) - 1
	medianIndex := maxIndex / 2
	expected := sorted[medianIndex] + uint64(maxIndex-medianIndex)
	upperBound := expected + MAX_SLOT_SKIP_DISTANCE

	for i := maxIndex; i > 0; i-- {
		if sorted[i] <= upperBound {
			return sorted[i], nil
		}
	}
	// Everything at or below the median sits within the bound.
	return sorted[0], nil
}
