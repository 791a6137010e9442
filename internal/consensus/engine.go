package consensus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/liftedinit/powchain/internal/models"
)

const (
	// GenesisPreviousHash is the placeholder previous hash of the genesis block.
	GenesisPreviousHash = "1"
	// GenesisProof is the fixed proof of the genesis block. It is never searched for.
	GenesisProof uint64 = 100
	// MiningRewardSender marks reward transactions.
	MiningRewardSender = "mined"
	// MiningReward is the amount credited to the miner of a block.
	MiningReward = 100
)

// ChainFetcher retrieves a peer's chain.
type ChainFetcher interface {
	FetchChain(ctx context.Context, peer string) (*models.ChainResponse, error)
}

// Stats are cumulative engine counters.
type Stats struct {
	BlocksMined       uint64
	ChainReplacements uint64
	PeersRejected     uint64
	PeersUnreachable  uint64
}

// Engine owns the local chain and the pending transaction pool.
//
// The chain is published as an immutable snapshot behind an atomic pointer:
// readers never lock, and appends and replacements swap the whole snapshot.
// mu serializes writers and guards the pending pool, the peers and the set of
// in-flight mining searches.
type Engine struct {
	cfg     Config
	fetcher ChainFetcher

	chain atomic.Pointer[models.Chain]

	mu             sync.Mutex
	pending        []models.Transaction
	peers          []string
	miners         map[uint64]context.CancelCauseFunc
	nextMiner      uint64
	lastResolution []PeerResult

	blocksMined       atomic.Uint64
	chainReplacements atomic.Uint64
	peersRejected     atomic.Uint64
	peersUnreachable  atomic.Uint64
}

// New creates an engine seeded with a genesis block. fetcher is used to reach
// peers during conflict resolution.
func New(cfg Config, fetcher ChainFetcher) (*Engine, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		fetcher: fetcher,
		miners:  make(map[uint64]context.CancelCauseFunc),
	}
	empty := models.Chain{}
	e.chain.Store(&empty)

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.addBlock(GenesisProof, nil); err != nil {
		return nil, fmt.Errorf("failed to create genesis block: %w", err)
	}

	return e, nil
}

// NodeID returns the identity credited with mining rewards.
func (e *Engine) NodeID() string {
	return e.cfg.NodeID
}

// Difficulty returns the configured proof-of-work difficulty.
func (e *Engine) Difficulty() int {
	return e.cfg.Difficulty
}

// Chain returns the current chain snapshot. Callers must not mutate it.
func (e *Engine) Chain() models.Chain {
	return *e.chain.Load()
}

// LastBlock returns the tip of the chain.
func (e *Engine) LastBlock() *models.Block {
	return e.Chain().Last()
}

// PendingTransactions returns a copy of the pending pool.
func (e *Engine) PendingTransactions() []models.Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.pending)
}

// Peers returns a copy of the known peer addresses.
func (e *Engine) Peers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.peers)
}

// Stats returns the cumulative engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		BlocksMined:       e.blocksMined.Load(),
		ChainReplacements: e.chainReplacements.Load(),
		PeersRejected:     e.peersRejected.Load(),
		PeersUnreachable:  e.peersUnreachable.Load(),
	}
}

// AddPeer registers a peer by host:port. A scheme and path are stripped;
// duplicates are ignored.
func (e *Engine) AddPeer(address string) error {
	peer, err := NormalizePeer(address)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if slices.Contains(e.peers, peer) {
		return nil
	}
	e.peers = append(e.peers, peer)
	slog.Debug("Peer added", "peer", peer)
	return nil
}

// NormalizePeer reduces an address to host:port.
func NormalizePeer(address string) (string, error) {
	address = strings.TrimSpace(address)
	if strings.Contains(address, "://") {
		u, err := url.Parse(address)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidPeer, err)
		}
		address = u.Host
	}
	address = strings.TrimSuffix(address, "/")
	if address == "" || strings.ContainsAny(address, "/ ") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPeer, address)
	}
	return address, nil
}

// AddTransaction queues tx for the next block and returns the index of that
// block. The index is advisory: more transactions may join before mining.
func (e *Engine) AddTransaction(tx models.Transaction) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append(e.pending, tx)
	return e.Chain().Last().Index + 1
}

// CheckProofOfWork applies the proof-of-work predicate at the engine difficulty.
func (e *Engine) CheckProofOfWork(lastProof, proof uint64, lastHash string) bool {
	return CheckProofOfWork(e.cfg.Difficulty, lastProof, proof, lastHash)
}

// GenerateProofOfWork searches a proof for lastBlock at the engine difficulty.
func (e *Engine) GenerateProofOfWork(ctx context.Context, lastBlock *models.Block) (uint64, error) {
	return GenerateProofOfWork(ctx, e.cfg.Difficulty, lastBlock)
}

// CheckChainValidity validates chain, or the local chain when chain is nil.
func (e *Engine) CheckChainValidity(chain models.Chain) bool {
	if chain == nil {
		chain = e.Chain()
	}
	return CheckChainValidity(e.cfg.Difficulty, chain)
}

// Mine searches a proof for the current tip, credits the mining reward and
// appends the new block with every pending transaction.
//
// The search runs without holding the engine lock. If the tip changes in the
// meantime, the work is discarded and ErrStaleTip is returned; the pending
// pool is kept for the next attempt.
func (e *Engine) Mine(ctx context.Context) (*models.Block, error) {
	ctx, done := e.trackMiner(ctx)
	defer done()

	last := e.LastBlock()
	start := time.Now()
	proof, err := e.GenerateProofOfWork(ctx, last)
	if err != nil {
		if errors.Is(context.Cause(ctx), ErrStaleTip) {
			slog.Info("Mining superseded by chain replacement", "index", last.Index+1)
			return nil, ErrStaleTip
		}
		return nil, fmt.Errorf("proof of work search aborted: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if tip := e.Chain().Last(); tip.Index != last.Index || tip.Hash != last.Hash {
		slog.Info("Discarding proof for stale tip", "index", last.Index+1, "tip", tip.Index)
		return nil, ErrStaleTip
	}

	txs := make([]models.Transaction, 0, len(e.pending)+1)
	txs = append(txs, e.pending...)
	txs = append(txs, models.Transaction{
		Sender:    MiningRewardSender,
		Recipient: e.cfg.NodeID,
		Amount:    MiningReward,
	})

	block, err := e.addBlock(proof, txs)
	if err != nil {
		return nil, err
	}

	e.blocksMined.Add(1)
	slog.Info("Mined block",
		"index", block.Index,
		"proof", block.Proof,
		"transactions", len(block.Transactions),
		"duration", time.Since(start).String())

	return block.Clone(), nil
}

// addBlock seals a block on top of the current tip, re-checks it and
// publishes the extended chain. The caller must hold mu.
func (e *Engine) addBlock(proof uint64, txs []models.Transaction) (*models.Block, error) {
	chain := e.Chain()

	previousHash := GenesisPreviousHash
	prev := chain.Last()
	if prev != nil {
		previousHash = prev.Hash
	}

	block := models.NewBlock(uint64(len(chain)), e.cfg.Now(), txs, previousHash, proof)
	block.Seal()

	if !block.CheckSeal() {
		err := fmt.Errorf("%w: %w at index %d", ErrInvariantViolation, ErrSealCheckFailed, block.Index)
		slog.Error("Refusing to append block", "index", block.Index, "error", err)
		return nil, err
	}
	if prev != nil && !e.CheckProofOfWork(prev.Proof, block.Proof, prev.Hash) {
		err := fmt.Errorf("%w: %w at index %d", ErrInvariantViolation, ErrProofCheckFailed, block.Index)
		slog.Error("Refusing to append block", "index", block.Index, "error", err)
		return nil, err
	}

	next := chain.Append(block)
	e.chain.Store(&next)
	e.pending = nil

	return block, nil
}

// trackMiner registers a cancelable mining context so a chain replacement can
// abort searches against the old tip.
func (e *Engine) trackMiner(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)

	e.mu.Lock()
	id := e.nextMiner
	e.nextMiner++
	e.miners[id] = cancel
	e.mu.Unlock()

	return ctx, func() {
		e.mu.Lock()
		delete(e.miners, id)
		e.mu.Unlock()
		cancel(nil)
	}
}

// replaceChain swaps in chain if it is still strictly longer than the local
// one and aborts in-flight mining. The caller must hold mu.
func (e *Engine) replaceChain(chain models.Chain) bool {
	if len(chain) <= len(e.Chain()) {
		return false
	}

	e.chain.Store(&chain)
	for _, cancel := range e.miners {
		cancel(ErrStaleTip)
	}
	e.chainReplacements.Add(1)
	return true
}
