package tpu

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/types"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"tpucast/exception"
	"tpucast/logx"
	"tpucast/monitoring"
	"tpucast/rpcx"
)

const (
	// MAX_FANOUT_SLOTS caps how many upcoming slots a send may target.
	MAX_FANOUT_SLOTS = 100

	// DEFAULT_FANOUT_SLOTS is the window width when the caller picks none.
	DEFAULT_FANOUT_SLOTS = 12

	// MAX_TX_SIZE is the largest serialized transaction one datagram can
	// carry.
	MAX_TX_SIZE = 1232
)

// advanceNonceInstruction is the system program discriminator for
// AdvanceNonceAccount.
const advanceNonceInstruction = 4

// RPCQuery adds the send-path queries to ClusterQuery. *rpcx.Client
// satisfies it.
type RPCQuery interface {
	ClusterQuery
	GetSlot(ctx context.Context, commitment rpcx.Commitment) (uint64, error)
	GetLatestBlockhash(ctx context.Context, commitment rpcx.Commitment) (string, error)
	SimulateRawTransaction(ctx context.Context, serializedTx []byte, commitment rpcx.Commitment) error
}

type ClientConfig struct {
	// WebsocketURL, when set, feeds cluster slot progress into the
	// estimator.
	WebsocketURL string

	// FanoutSlots is the width of the upcoming-slot window transactions
	// are fanned out to (default 12, max 100).
	FanoutSlots int

	// Commitment applies to every cluster query (default confirmed).
	Commitment rpcx.Commitment

	// UseQUIC selects each leader's QUIC ingest address instead of UDP.
	UseQUIC bool

	// StakedOnly drops leaders without active stake from the contact book.
	StakedOnly bool

	// SkipPreflight sends without simulating the transaction first.
	SkipPreflight bool

	// Transport overrides the default UDP transport.
	Transport Transport

	// LoopInterval and ContactInterval tune the refresh service.
	LoopInterval    time.Duration
	ContactInterval time.Duration
}

// Client submits signed transactions straight to the ingest ports of
// current and upcoming slot leaders instead of relaying them through a
// full node.
type Client struct {
	rpc           RPCQuery
	transport     Transport
	cache         *LeaderCache
	service       *RefreshService
	slots         *RecentSlots
	stream        *rpcx.SlotUpdateStream
	fanout        uint64
	commitment    rpcx.Commitment
	skipPreflight bool
}

// New seeds the slot estimator, loads the leader cache, and starts the
// background refresh. The returned client is ready to send.
func New(ctx context.Context, rpc RPCQuery, cfg ClientConfig) (*Client, error) {
	commitment := cfg.Commitment
	if commitment == "" {
		commitment = rpcx.CommitmentConfirmed
	}
	if !commitment.Valid() {
		return nil, ErrInvalidCommitment
	}

	transport := cfg.Transport
	if transport == nil {
		udp, err := NewUDPTransport()
		if err != nil {
			return nil, err
		}
		transport = udp
	}

	start, err := rpc.GetSlot(ctx, commitment)
	if err != nil {
		monitoring.RecordFetchFailure(monitoring.FetchSlot)
		return nil, fmt.Errorf("seed current slot: %w", err)
	}
	slots := NewRecentSlots(start)

	cache := NewLeaderCache(rpc, CacheOptions{
		Commitment: commitment,
		UseQUIC:    cfg.UseQUIC,
		StakedOnly: cfg.StakedOnly,
	})
	if err := cache.Load(ctx, start); err != nil {
		return nil, err
	}

	var (
		stream  *rpcx.SlotUpdateStream
		updates <-chan rpcx.SlotUpdate
	)
	if cfg.WebsocketURL != "" {
		stream, err = rpcx.DialSlotUpdates(ctx, cfg.WebsocketURL)
		if err != nil {
			return nil, fmt.Errorf("dial slot updates: %w", err)
		}
		updates = stream.Updates()
	}

	service := NewRefreshService(cache, slots, updates, ServiceOptions{
		LoopInterval:    cfg.LoopInterval,
		ContactInterval: cfg.ContactInterval,
	})
	service.Start()

	return &Client{
		rpc:           rpc,
		transport:     transport,
		cache:         cache,
		service:       service,
		slots:         slots,
		stream:        stream,
		fanout:        clampFanout(cfg.FanoutSlots),
		commitment:    commitment,
		skipPreflight: cfg.SkipPreflight,
	}, nil
}

func clampFanout(requested int) uint64 {
	if requested == 0 {
		return DEFAULT_FANOUT_SLOTS
	}
	if requested < 1 {
		return 1
	}
	if requested > MAX_FANOUT_SLOTS {
		return MAX_FANOUT_SLOTS
	}
	return uint64(requested)
}

// Send serializes the transaction, fans it out to the upcoming leaders and
// returns the base58 fee payer signature. A legacy transaction that carries
// no signature yet is signed first with signers, against a fresh blockhash
// unless its message rides a durable nonce. Versioned transactions must
// arrive fully signed.
func (c *Client) Send(ctx context.Context, tx any, signers ...types.Account) (string, error) {
	switch v := tx.(type) {
	case *types.Transaction:
		return c.sendLegacy(ctx, v, signers)
	case types.Transaction:
		return c.sendLegacy(ctx, &v, signers)
	case *solana.Transaction:
		return c.sendVersioned(ctx, v, signers)
	case solana.Transaction:
		return c.sendVersioned(ctx, &v, signers)
	default:
		return "", ErrUnsupportedTransaction
	}
}

func (c *Client) sendLegacy(ctx context.Context, tx *types.Transaction, signers []types.Account) (string, error) {
	if legacySigned(tx) {
		if len(signers) > 0 {
			return "", ErrUnexpectedSigners
		}
	} else {
		if len(signers) == 0 {
			return "", ErrMissingSigners
		}
		if !hasDurableNonce(tx) {
			blockhash, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
			if err != nil {
				return "", fmt.Errorf("fetch blockhash: %w", err)
			}
			tx.Message.RecentBlockHash = blockhash
		}
		signed, err := types.NewTransaction(types.NewTransactionParam{
			Message: tx.Message,
			Signers: signers,
		})
		if err != nil {
			return "", fmt.Errorf("sign transaction: %w", err)
		}
		*tx = signed
	}

	serializedTx, err := tx.Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize transaction: %w", err)
	}
	return c.SendRaw(ctx, serializedTx)
}

func (c *Client) sendVersioned(ctx context.Context, tx *solana.Transaction, signers []types.Account) (string, error) {
	if len(signers) > 0 {
		return "", ErrUnexpectedSigners
	}
	if len(tx.Signatures) == 0 || tx.Signatures[0] == (solana.Signature{}) {
		return "", ErrMissingSigners
	}
	serializedTx, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("serialize transaction: %w", err)
	}
	return c.SendRaw(ctx, serializedTx)
}

// SendRaw fans a fully signed serialized transaction out to the leaders of
// the upcoming window and returns its base58 fee payer signature. Delivery
// succeeds if at least one leader accepted the datagram.
func (c *Client) SendRaw(ctx context.Context, serializedTx []byte) (string, error) {
	if len(serializedTx) > MAX_TX_SIZE {
		return "", ErrTxTooLarge
	}
	signature, err := ExtractSignature(serializedTx)
	if err != nil {
		return "", err
	}

	if !c.skipPreflight {
		if err := c.rpc.SimulateRawTransaction(ctx, serializedTx, c.commitment); err != nil {
			return "", err
		}
	}

	addrs := c.service.LeaderSockets(c.fanout)
	if len(addrs) == 0 {
		return "", ErrNoLeadersFound
	}

	var wg sync.WaitGroup
	var delivered atomic.Uint64
	for _, addr := range addrs {
		wg.Add(1)
		exception.SafeGo("fanoutSend", func() {
			defer wg.Done()
			if err := c.transport.Send(ctx, addr, serializedTx); err != nil {
				monitoring.RecordFanoutDatagram(c.transport.Name(), false)
				logx.Warn("TPU_CLIENT", "send to ", addr, " failed: ", err)
				return
			}
			delivered.Add(1)
			monitoring.RecordFanoutDatagram(c.transport.Name(), true)
			logx.Debug("TPU_CLIENT", "sent ", signature, " to ", addr)
		})
	}
	wg.Wait()

	if delivered.Load() == 0 {
		return "", fmt.Errorf("%w: %d leaders", ErrAllSendsFailed, len(addrs))
	}
	monitoring.IncreaseSentTxCount()
	logx.Info("TPU_CLIENT", "fanned out ", signature, " to ", delivered.Load(), "/", len(addrs), " leaders")
	return signature, nil
}

// ExtractSignature returns the base58 fee payer signature of a serialized
// transaction, understanding both legacy and versioned envelopes.
func ExtractSignature(serializedTx []byte) (string, error) {
	if tx, err := types.TransactionDeserialize(serializedTx); err == nil && len(tx.Signatures) > 0 {
		return base58.Encode(tx.Signatures[0]), nil
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(serializedTx))
	if err != nil {
		return "", fmt.Errorf("parse transaction: %w", err)
	}
	if len(tx.Signatures) == 0 {
		return "", fmt.Errorf("transaction carries no signature")
	}
	return tx.Signatures[0].String(), nil
}

func legacySigned(tx *types.Transaction) bool {
	for _, sig := range tx.Signatures {
		for _, b := range sig {
			if b != 0 {
				return true
			}
		}
	}
	return false
}

// hasDurableNonce reports whether the message leads with a system
// AdvanceNonceAccount instruction, in which case the recorded blockhash is
// a durable nonce and must not be replaced.
func hasDurableNonce(tx *types.Transaction) bool {
	if len(tx.Message.Instructions) == 0 {
		return false
	}
	ix := tx.Message.Instructions[0]
	if ix.ProgramIDIndex < 0 || ix.ProgramIDIndex >= len(tx.Message.Accounts) {
		return false
	}
	if tx.Message.Accounts[ix.ProgramIDIndex] != common.SystemProgramID {
		return false
	}
	return len(ix.Data) >= 4 && binary.LittleEndian.Uint32(ix.Data[:4]) == advanceNonceInstruction
}

// EstimatedSlot exposes the estimator's current view.
func (c *Client) EstimatedSlot() (uint64, error) {
	return c.slots.EstimateCurrent()
}

// UpcomingLeaders lists the scheduled leader of each of the next count
// slots with its published ingest address.
func (c *Client) UpcomingLeaders(count uint64) ([]LeaderContact, error) {
	estimate, err := c.slots.EstimateCurrent()
	if err != nil {
		return nil, err
	}
	return c.cache.UpcomingLeaders(estimate, count), nil
}

// FanoutSockets resolves the distinct ingest addresses the next send would
// target.
func (c *Client) FanoutSockets() []string {
	return c.service.LeaderSockets(c.fanout)
}

// Close stops the refresh machinery and releases the transport socket.
func (c *Client) Close() error {
	c.service.Stop()
	if c.stream != nil {
		c.stream.Close()
	}
	return c.transport.Close()
}
