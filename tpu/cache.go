package tpu

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"

	"tpucast/logx"
	"tpucast/monitoring"
	"tpucast/rpcx"
)

// ClusterQuery is the slice of the RPC surface the leader cache needs.
type ClusterQuery interface {
	GetEpochInfo(ctx context.Context, commitment rpcx.Commitment) (rpcx.EpochInfo, error)
	GetSlotLeaders(ctx context.Context, start, limit uint64) ([]solana.PublicKey, error)
	GetClusterNodes(ctx context.Context) ([]rpcx.ClusterNode, error)
	GetVoteAccounts(ctx context.Context) (rpcx.VoteAccounts, error)
}

// leaderView is an immutable snapshot of the schedule and contact book.
// Refreshes build a new view and swap it in whole so lookups on the send
// path never take a lock.
type leaderView struct {
	firstSlot uint64
	leaders   []solana.PublicKey
	// contacts maps leader identity to ingest address. An entry with an
	// empty address records a leader that publishes no ingest port, which
	// is different from a leader we have never heard of.
	contacts map[solana.PublicKey]string
}

type CacheOptions struct {
	Commitment rpcx.Commitment
	UseQUIC    bool
	StakedOnly bool
}

// LeaderCache tracks the upcoming leader schedule and each leader's ingest
// address.
type LeaderCache struct {
	query      ClusterQuery
	commitment rpcx.Commitment
	useQUIC    bool
	stakedOnly bool

	view          atomic.Pointer[leaderView]
	slotsInEpoch  atomic.Uint64
	lastEpochSlot atomic.Uint64
}

func NewLeaderCache(query ClusterQuery, opts CacheOptions) *LeaderCache {
	commitment := opts.Commitment
	if commitment == "" {
		commitment = rpcx.CommitmentConfirmed
	}
	return &LeaderCache{
		query:      query,
		commitment: commitment,
		useQUIC:    opts.UseQUIC,
		stakedOnly: opts.StakedOnly,
	}
}

// Load performs the initial fill: epoch info first, then the schedule and
// contact book in parallel.
func (c *LeaderCache) Load(ctx context.Context, startSlot uint64) error {
	info, err := c.query.GetEpochInfo(ctx, c.commitment)
	if err != nil {
		monitoring.RecordFetchFailure(monitoring.FetchEpochInfo)
		return fmt.Errorf("load epoch info: %w", err)
	}
	c.slotsInEpoch.Store(info.SlotsInEpoch)
	c.lastEpochSlot.Store(info.AbsoluteSlot)

	var (
		leaders  []solana.PublicKey
		contacts map[solana.PublicKey]string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		leaders, err = c.fetchLeaders(gctx, startSlot)
		return err
	})
	g.Go(func() error {
		var err error
		contacts, err = c.fetchContacts(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	c.view.Store(&leaderView{firstSlot: startSlot, leaders: leaders, contacts: contacts})
	monitoring.SetCachedLeaderCount(len(leaders))
	return nil
}

// RefreshSchedule refetches the schedule starting at startSlot, keeping the
// current contact book.
func (c *LeaderCache) RefreshSchedule(ctx context.Context, startSlot uint64) error {
	leaders, err := c.fetchLeaders(ctx, startSlot)
	if err != nil {
		return err
	}
	next := &leaderView{firstSlot: startSlot, leaders: leaders}
	if prev := c.view.Load(); prev != nil {
		next.contacts = prev.contacts
	}
	c.view.Store(next)
	monitoring.SetCachedLeaderCount(len(leaders))
	return nil
}

// RefreshContacts refetches the contact book, keeping the current schedule.
func (c *LeaderCache) RefreshContacts(ctx context.Context) error {
	contacts, err := c.fetchContacts(ctx)
	if err != nil {
		return err
	}
	next := &leaderView{contacts: contacts}
	if prev := c.view.Load(); prev != nil {
		next.firstSlot = prev.firstSlot
		next.leaders = prev.leaders
	}
	c.view.Store(next)
	return nil
}

// RefreshEpochInfo refetches the epoch width and marks estimate as the slot
// the epoch info was current at.
func (c *LeaderCache) RefreshEpochInfo(ctx context.Context, estimate uint64) error {
	info, err := c.query.GetEpochInfo(ctx, c.commitment)
	if err != nil {
		monitoring.RecordFetchFailure(monitoring.FetchEpochInfo)
		return fmt.Errorf("refresh epoch info: %w", err)
	}
	c.slotsInEpoch.Store(info.SlotsInEpoch)
	c.lastEpochSlot.Store(estimate)
	return nil
}

func (c *LeaderCache) fetchLeaders(ctx context.Context, startSlot uint64) ([]solana.PublicKey, error) {
	width := uint64(2 * MAX_FANOUT_SLOTS)
	if sie := c.slotsInEpoch.Load(); sie > 0 && sie < width {
		width = sie
	}
	leaders, err := c.query.GetSlotLeaders(ctx, startSlot, width)
	if err != nil {
		monitoring.RecordFetchFailure(monitoring.FetchSlotLeaders)
		return nil, fmt.Errorf("fetch slot leaders: %w", err)
	}
	if len(leaders) == 0 {
		monitoring.RecordFetchFailure(monitoring.FetchSlotLeaders)
		return nil, ErrEmptySchedule
	}
	return leaders, nil
}

func (c *LeaderCache) fetchContacts(ctx context.Context) (map[solana.PublicKey]string, error) {
	nodes, err := c.query.GetClusterNodes(ctx)
	if err != nil {
		monitoring.RecordFetchFailure(monitoring.FetchClusterNodes)
		return nil, fmt.Errorf("fetch cluster nodes: %w", err)
	}

	var staked map[string]bool
	if c.stakedOnly {
		va, err := c.query.GetVoteAccounts(ctx)
		if err != nil {
			monitoring.RecordFetchFailure(monitoring.FetchVoteAccounts)
			return nil, fmt.Errorf("fetch vote accounts: %w", err)
		}
		staked = make(map[string]bool, len(va.Current))
		for _, v := range va.Current {
			if v.ActivatedStake > 0 {
				staked[v.NodePubkey] = true
			}
		}
	}

	contacts := make(map[solana.PublicKey]string, len(nodes))
	for _, node := range nodes {
		pk, err := solana.PublicKeyFromBase58(node.Pubkey)
		if err != nil {
			logx.Warn("LEADER_CACHE", "skipping node with bad identity: ", node.Pubkey)
			continue
		}
		if staked != nil && !staked[node.Pubkey] {
			continue
		}
		field := node.TPU
		if c.useQUIC {
			field = node.TPUQUIC
		}
		addr := ""
		if field != nil {
			addr = *field
		}
		contacts[pk] = addr
	}
	return contacts, nil
}

func (c *LeaderCache) SlotsInEpoch() uint64 {
	return c.slotsInEpoch.Load()
}

func (c *LeaderCache) LastEpochInfoSlot() uint64 {
	return c.lastEpochSlot.Load()
}

// LastSlot reports the highest slot the cached schedule covers.
func (c *LeaderCache) LastSlot() (uint64, bool) {
	v := c.view.Load()
	if v == nil || len(v.leaders) == 0 {
		return 0, false
	}
	return v.firstSlot + uint64(len(v.leaders)) - 1, true
}

// SlotLeader returns the scheduled leader for slot when the cache covers it.
func (c *LeaderCache) SlotLeader(slot uint64) (solana.PublicKey, bool) {
	v := c.view.Load()
	if v == nil || slot < v.firstSlot {
		return solana.PublicKey{}, false
	}
	idx := slot - v.firstSlot
	if idx >= uint64(len(v.leaders)) {
		return solana.PublicKey{}, false
	}
	return v.leaders[idx], true
}

// LeaderSockets returns the distinct ingest addresses for the leaders of
// the first fanout cached slots, ordered by first appearance in the
// schedule. The refresh service keeps the schedule anchored near the
// estimated current slot, so the front of the cache is the upcoming window.
// Leaders without a published address are skipped.
func (c *LeaderCache) LeaderSockets(fanout uint64) []string {
	v := c.view.Load()
	if v == nil {
		return nil
	}
	seen := make(map[solana.PublicKey]bool)
	var sockets []string
	for i, leader := range v.leaders {
		if uint64(i) >= fanout {
			break
		}
		if seen[leader] {
			continue
		}
		seen[leader] = true
		addr, ok := v.contacts[leader]
		if !ok {
			logx.Debug("LEADER_CACHE", "no contact info for leader ", leader.String())
			continue
		}
		if addr == "" {
			logx.Debug("LEADER_CACHE", "leader ", leader.String(), " publishes no ingest address")
			continue
		}
		sockets = append(sockets, addr)
	}
	return sockets
}

// LeaderContact pairs a scheduled slot with its leader and, when published,
// the leader's ingest address.
type LeaderContact struct {
	Slot     uint64
	Identity solana.PublicKey
	Address  string
}

// UpcomingLeaders returns one entry per slot in the window, duplicates
// included, for display purposes.
func (c *LeaderCache) UpcomingLeaders(startSlot, count uint64) []LeaderContact {
	v := c.view.Load()
	if v == nil {
		return nil
	}
	var out []LeaderContact
	for slot := startSlot; slot < startSlot+count; slot++ {
		if slot < v.firstSlot {
			continue
		}
		idx := slot - v.firstSlot
		if idx >= uint64(len(v.leaders)) {
			break
		}
		leader := v.leaders[idx]
		out = append(out, LeaderContact{
			Slot:     slot,
			Identity: leader,
			Address:  v.contacts[leader],
		})
	}
	return out
}
