package tpu

import (
	"context"
	"sync"
	"time"

	"tpucast/exception"
	"tpucast/logx"
	"tpucast/monitoring"
	"tpucast/rpcx"
)

const (
	defaultLoopInterval    = time.Second
	defaultContactInterval = 5 * time.Minute
)

type ServiceOptions struct {
	// LoopInterval is how often refresh conditions are evaluated.
	LoopInterval time.Duration
	// ContactInterval is how often the contact book is refetched.
	ContactInterval time.Duration
}

// RefreshService keeps a LeaderCache current and feeds slot progress
// notifications into the estimator. Updates may be nil when no push endpoint
// is available; the estimator then advances only on what was seeded.
type RefreshService struct {
	cache   *LeaderCache
	slots   *RecentSlots
	updates <-chan rpcx.SlotUpdate

	loopInterval    time.Duration
	contactInterval time.Duration

	lastContactRefresh time.Time

	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewRefreshService(cache *LeaderCache, slots *RecentSlots, updates <-chan rpcx.SlotUpdate, opts ServiceOptions) *RefreshService {
	loop := opts.LoopInterval
	if loop <= 0 {
		loop = defaultLoopInterval
	}
	contact := opts.ContactInterval
	if contact <= 0 {
		contact = defaultContactInterval
	}
	return &RefreshService{
		cache:           cache,
		slots:           slots,
		updates:         updates,
		loopInterval:    loop,
		contactInterval: contact,
		stopCh:          make(chan struct{}),
	}
}

func (s *RefreshService) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	exception.SafeGo("leaderRefreshLoop", func() {
		defer s.wg.Done()
		s.run(ctx)
	})
	logx.Info("REFRESH", "leader refresh service started")
}

func (s *RefreshService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.cancel != nil {
			s.cancel()
		}
	})
	s.wg.Wait()
	logx.Info("REFRESH", "leader refresh service stopped")
}

func (s *RefreshService) run(ctx context.Context) {
	ticker := time.NewTicker(s.loopInterval)
	defer ticker.Stop()
	s.lastContactRefresh = time.Now()
	for {
		select {
		case <-s.stopCh:
			return
		case update, ok := <-s.updates:
			if !ok {
				// Stream closed; keep refreshing off the seeded window.
				s.updates = nil
				continue
			}
			s.consumeUpdate(update)
		case <-ticker.C:
			s.refreshOnce(ctx)
		}
	}
}

// consumeUpdate records the slot a notification refers to. A completed slot
// means the cluster moved on, so the next slot is what is current.
func (s *RefreshService) consumeUpdate(update rpcx.SlotUpdate) {
	slot := update.Slot
	if update.Type == rpcx.SlotUpdateCompleted {
		slot++
	}
	s.slots.Record(slot)
}

// refreshOnce evaluates the refresh conditions against the current estimate.
// Each step logs and carries on when the cluster cannot be reached, leaving
// the previous state in place.
func (s *RefreshService) refreshOnce(ctx context.Context) {
	if time.Since(s.lastContactRefresh) >= s.contactInterval {
		if err := s.cache.RefreshContacts(ctx); err != nil {
			logx.Warn("REFRESH", "contact refresh failed: ", err)
		} else {
			s.lastContactRefresh = time.Now()
		}
	}

	estimate, err := s.slots.EstimateCurrent()
	if err != nil {
		return
	}
	monitoring.SetEstimatedSlot(estimate)

	if sie := s.cache.SlotsInEpoch(); sie > 0 && estimate >= s.cache.LastEpochInfoSlot()+sie {
		if err := s.cache.RefreshEpochInfo(ctx, estimate); err != nil {
			logx.Warn("REFRESH", "epoch info refresh failed: ", err)
		}
	}

	lastSlot, ok := s.cache.LastSlot()
	if !ok || lastSlot <= estimate+MAX_FANOUT_SLOTS {
		if err := s.cache.RefreshSchedule(ctx, estimate); err != nil {
			logx.Warn("REFRESH", "schedule refresh failed: ", err)
		}
	}
}

// LeaderSockets resolves the ingest addresses for the upcoming fanout
// window, a pass-through to the cache.
func (s *RefreshService) LeaderSockets(fanout uint64) []string {
	return s.cache.LeaderSockets(fanout)
}

// EstimatedSlot exposes the estimator's current view.
func (s *RefreshService) EstimatedSlot() (uint64, error) {
	return s.slots.EstimateCurrent()
}
