// Package ledger owns a node's chain, its pending transaction pool and its peer
// registry. All chain and pool mutations are serialized by one lock; proof
// search runs outside it.
package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/VeltarosLabs/mythcoin/internal/blockchain"
	"github.com/VeltarosLabs/mythcoin/internal/consensus"
	"github.com/VeltarosLabs/mythcoin/internal/p2p"
	"github.com/VeltarosLabs/mythcoin/internal/replication"
)

var ErrEmptyChain = errors.New("chain is empty")

// Reward is credited in every block this node mines.
type Reward struct {
	Sender   string
	Receiver string
	Amount   float64
}

type Ledger struct {
	mu sync.RWMutex

	chain   []blockchain.Block
	pending []blockchain.Transaction

	peers      *p2p.Registry
	pow        *consensus.PoW
	reconciler *replication.Reconciler
	reward     *Reward

	now func() time.Time
	log *slog.Logger
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}

// WithReward enables the mining reward; a non-positive amount disables it.
func WithReward(r Reward) Option {
	return func(l *Ledger) {
		if r.Amount > 0 {
			l.reward = &r
		}
	}
}

func WithFetchConcurrency(n int) Option {
	return func(l *Ledger) {
		l.reconciler.Concurrency = n
	}
}

// New creates a ledger whose chain holds only the genesis block.
func New(pow *consensus.PoW, opts ...Option) *Ledger {
	if pow == nil {
		pow = consensus.NewPoW(consensus.DefaultDifficulty)
	}
	l := &Ledger{
		pending: []blockchain.Transaction{},
		peers:   p2p.NewRegistry(),
		pow:     pow,
		now:     time.Now,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	l.reconciler = &replication.Reconciler{
		Validate: func(c []blockchain.Block) error { return blockchain.ValidateChain(c, pow) },
	}
	for _, o := range opts {
		o(l)
	}
	l.log = l.log.With("component", "ledger")
	l.reconciler.Log = l.log.With("component", "replication")

	l.chain = []blockchain.Block{blockchain.NewGenesisBlock(l.now())}
	return l
}

func (l *Ledger) PoW() *consensus.PoW { return l.pow }

// CreateBlock appends a block with the given proof and previous hash. The whole
// pending pool moves into it and the pool is reset.
func (l *Ledger) CreateBlock(proof int64, previousHash string) blockchain.Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.createBlockLocked(proof, previousHash)
}

func (l *Ledger) createBlockLocked(proof int64, previousHash string) blockchain.Block {
	txs := l.pending
	l.pending = []blockchain.Transaction{}

	b := blockchain.NewBlock(int64(len(l.chain)+1), l.now(), proof, previousHash, txs)
	l.chain = append(l.chain, b)
	return b
}

func (l *Ledger) PreviousBlock() (blockchain.Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.chain) == 0 {
		return blockchain.Block{}, ErrEmptyChain
	}
	return l.chain[len(l.chain)-1], nil
}

// AddTransaction queues a transaction and returns the index of the block it is
// expected to land in.
func (l *Ledger) AddTransaction(sender, receiver string, amount float64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pending = append(l.pending, blockchain.Transaction{
		Sender:   sender,
		Receiver: receiver,
		Amount:   amount,
	})
	return l.nextIndexLocked()
}

func (l *Ledger) nextIndexLocked() int64 {
	if len(l.chain) == 0 {
		return 1
	}
	return l.chain[len(l.chain)-1].Index + 1
}

// AddNode registers a peer given as a URL or host:port.
func (l *Ledger) AddNode(address string) (string, error) {
	return l.peers.Add(address, p2p.SourceManual)
}

func (l *Ledger) AddBootstrapNode(address string) (string, error) {
	return l.peers.Add(address, p2p.SourceBootstrap)
}

// Nodes returns the registered peer addresses, sorted.
func (l *Ledger) Nodes() []string { return l.peers.Addrs() }

func (l *Ledger) Peers() []p2p.StoredPeer { return l.peers.List() }

// Chain returns a snapshot copy of the chain.
func (l *Ledger) Chain() []blockchain.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return blockchain.CloneChain(l.chain)
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.chain)
}

func (l *Ledger) Pending() []blockchain.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]blockchain.Transaction{}, l.pending...)
}

func (l *Ledger) IsValid() bool {
	return blockchain.IsValid(l.Chain(), l.pow)
}

// MineBlock finds a proof for the current tip and appends a new block. The
// search runs without holding the lock. If the tip changed by the time a proof
// is found, the work is discarded and mining restarts on the new tip.
func (l *Ledger) MineBlock(ctx context.Context) (blockchain.Block, error) {
	for attempt := 1; ; attempt++ {
		prev, err := l.PreviousBlock()
		if err != nil {
			return blockchain.Block{}, err
		}

		started := time.Now()
		proof, err := l.pow.FindProof(ctx, prev.Proof)
		if err != nil {
			return blockchain.Block{}, err
		}
		prevHash := blockchain.Hash(prev)

		l.mu.Lock()
		if len(l.chain) == 0 {
			l.mu.Unlock()
			return blockchain.Block{}, ErrEmptyChain
		}
		if tip := l.chain[len(l.chain)-1]; tip.Index != prev.Index || blockchain.Hash(tip) != prevHash {
			l.mu.Unlock()
			l.log.Debug("tip moved while mining, retrying", "attempt", attempt, "staleIndex", prev.Index)
			continue
		}
		if l.reward != nil {
			l.pending = append(l.pending, blockchain.Transaction{
				Sender:   l.reward.Sender,
				Receiver: l.reward.Receiver,
				Amount:   l.reward.Amount,
			})
		}
		b := l.createBlockLocked(proof, prevHash)
		l.mu.Unlock()

		l.log.Info("block mined",
			"index", b.Index,
			"proof", proof,
			"txs", len(b.Transactions),
			"took", time.Since(started).String(),
		)
		return b, nil
	}
}

// ReplaceChain reconciles against every registered peer and adopts the longest
// valid chain strictly longer than the local one. The swap is skipped if the
// local chain grew past the candidate while peers were being fetched.
func (l *Ledger) ReplaceChain(ctx context.Context, fetcher replication.ChainFetcher) (bool, error) {
	local := l.Chain()
	peers := l.peers.Addrs()

	res := l.reconciler.Reconcile(ctx, local, peers, fetcher)

	now := l.now()
	for _, o := range res.Outcomes {
		if o.Err != nil {
			l.peers.MarkFailed(o.Addr, o.Err)
			continue
		}
		l.peers.MarkSeen(o.Addr, now)
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !res.Replaced {
		return false, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(res.Chain) <= len(l.chain) {
		l.log.Info("candidate chain no longer longer than local", "candidate", len(res.Chain), "local", len(l.chain))
		return false, nil
	}
	l.chain = blockchain.CloneChain(res.Chain)
	l.log.Info("chain replaced", "source", res.Source, "length", len(l.chain))
	return true, nil
}
