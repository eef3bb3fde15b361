package replication

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/VeltarosLabs/mythcoin/internal/blockchain"
	"github.com/VeltarosLabs/mythcoin/internal/consensus"
)

func buildChain(t *testing.T, pow *consensus.PoW, start time.Time, n int) []blockchain.Block {
	t.Helper()
	chain := []blockchain.Block{blockchain.NewGenesisBlock(start)}
	for len(chain) < n {
		prev := chain[len(chain)-1]
		proof, err := pow.FindProof(context.Background(), prev.Proof)
		if err != nil {
			t.Fatalf("FindProof: %v", err)
		}
		chain = append(chain, blockchain.NewBlock(int64(len(chain)+1), start.Add(time.Minute), proof, blockchain.Hash(prev), nil))
	}
	return chain
}

func newReconciler(pow *consensus.PoW) *Reconciler {
	return &Reconciler{
		Validate: func(c []blockchain.Block) error { return blockchain.ValidateChain(c, pow) },
	}
}

// staticFetcher serves fixed chains or errors per address.
type staticFetcher struct {
	chains map[string][]blockchain.Block
	errs   map[string]error
	calls  atomic.Int32
}

func (f *staticFetcher) FetchChain(_ context.Context, addr string) ([]blockchain.Block, error) {
	f.calls.Add(1)
	if err, ok := f.errs[addr]; ok {
		return nil, err
	}
	c, ok := f.chains[addr]
	if !ok {
		return nil, ErrPeerUnreachable
	}
	return blockchain.CloneChain(c), nil
}

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func TestReconcileAdoptsLongerValidChain(t *testing.T) {
	pow := consensus.NewPoW(consensus.DefaultDifficulty)
	local := buildChain(t, pow, t0, 3)
	peer := buildChain(t, pow, t0.Add(time.Hour), 5)

	f := &staticFetcher{chains: map[string][]blockchain.Block{"y:5000": peer}}
	res := newReconciler(pow).Reconcile(context.Background(), local, []string{"y:5000"}, f)

	if !res.Replaced {
		t.Fatal("expected replacement")
	}
	if len(res.Chain) != 5 {
		t.Fatalf("len(chain) = %d, want 5", len(res.Chain))
	}
	if res.Source != "y:5000" {
		t.Fatalf("Source = %q", res.Source)
	}
}

func TestReconcileRejectsInvalidLongerChain(t *testing.T) {
	pow := consensus.NewPoW(consensus.DefaultDifficulty)
	local := buildChain(t, pow, t0, 3)
	peer := buildChain(t, pow, t0.Add(time.Hour), 5)
	peer[3].PreviousHash = "forged"

	f := &staticFetcher{chains: map[string][]blockchain.Block{"y:5000": peer}}
	res := newReconciler(pow).Reconcile(context.Background(), local, []string{"y:5000"}, f)

	if res.Replaced {
		t.Fatal("invalid chain must not be adopted")
	}
	if len(res.Chain) != 3 {
		t.Fatalf("len(chain) = %d, want 3", len(res.Chain))
	}
	if len(res.Outcomes) != 1 || !errors.Is(res.Outcomes[0].Err, ErrInvalidChain) {
		t.Fatalf("Outcomes = %+v, want one ErrInvalidChain", res.Outcomes)
	}
}

func TestReconcileTieKeepsLocal(t *testing.T) {
	pow := consensus.NewPoW(2)
	local := buildChain(t, pow, t0, 4)
	peer := buildChain(t, pow, t0.Add(time.Hour), 4)

	f := &staticFetcher{chains: map[string][]blockchain.Block{"y:5000": peer}}
	res := newReconciler(pow).Reconcile(context.Background(), local, []string{"y:5000"}, f)

	if res.Replaced {
		t.Fatal("equal-length chain must not replace local")
	}
	if blockchain.Hash(res.Chain[3]) != blockchain.Hash(local[3]) {
		t.Fatal("result chain is not the local chain")
	}
}

func TestReconcileSkipsUnreachablePeers(t *testing.T) {
	pow := consensus.NewPoW(2)
	local := buildChain(t, pow, t0, 2)
	good := buildChain(t, pow, t0.Add(time.Hour), 4)

	f := &staticFetcher{
		chains: map[string][]blockchain.Block{"c:1": good},
		errs:   map[string]error{"a:1": ErrPeerUnreachable, "b:1": errors.New("boom")},
	}
	res := newReconciler(pow).Reconcile(context.Background(), local, []string{"a:1", "b:1", "c:1"}, f)

	if !res.Replaced || res.Source != "c:1" {
		t.Fatalf("expected replacement from c:1, got %+v", res)
	}
	if got := f.calls.Load(); got != 3 {
		t.Fatalf("fetch calls = %d, want 3", got)
	}
	failures := 0
	for _, o := range res.Outcomes {
		if o.Err != nil {
			failures++
		}
	}
	if failures != 2 {
		t.Fatalf("failures = %d, want 2", failures)
	}
}

func TestReconcilePicksLongestAmongPeers(t *testing.T) {
	pow := consensus.NewPoW(2)
	local := buildChain(t, pow, t0, 2)
	p4 := buildChain(t, pow, t0.Add(time.Hour), 4)
	p6 := buildChain(t, pow, t0.Add(2*time.Hour), 6)
	p5 := buildChain(t, pow, t0.Add(3*time.Hour), 5)

	f := &staticFetcher{chains: map[string][]blockchain.Block{"a:1": p4, "b:1": p6, "c:1": p5}}
	res := newReconciler(pow).Reconcile(context.Background(), local, []string{"a:1", "b:1", "c:1"}, f)

	if !res.Replaced || res.Source != "b:1" || len(res.Chain) != 6 {
		t.Fatalf("expected 6-block chain from b:1, got source=%q len=%d", res.Source, len(res.Chain))
	}
}

func TestReconcileFirstPeerWinsEqualLengths(t *testing.T) {
	pow := consensus.NewPoW(2)
	local := buildChain(t, pow, t0, 2)
	a := buildChain(t, pow, t0.Add(time.Hour), 4)
	b := buildChain(t, pow, t0.Add(2*time.Hour), 4)

	f := &staticFetcher{chains: map[string][]blockchain.Block{"a:1": a, "b:1": b}}
	res := newReconciler(pow).Reconcile(context.Background(), local, []string{"a:1", "b:1"}, f)

	if res.Source != "a:1" {
		t.Fatalf("Source = %q, want a:1", res.Source)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	pow := consensus.NewPoW(2)
	local := buildChain(t, pow, t0, 2)
	peer := buildChain(t, pow, t0.Add(time.Hour), 3)
	f := &staticFetcher{chains: map[string][]blockchain.Block{"y:1": peer}}
	r := newReconciler(pow)

	first := r.Reconcile(context.Background(), local, []string{"y:1"}, f)
	if !first.Replaced {
		t.Fatal("first reconcile should replace")
	}
	second := r.Reconcile(context.Background(), first.Chain, []string{"y:1"}, f)
	if second.Replaced {
		t.Fatal("second reconcile should be a no-op")
	}
}

func TestReconcileNoPeers(t *testing.T) {
	pow := consensus.NewPoW(2)
	local := buildChain(t, pow, t0, 1)
	res := newReconciler(pow).Reconcile(context.Background(), local, nil, FetchFunc(func(context.Context, string) ([]blockchain.Block, error) {
		t.Fatal("fetcher called without peers")
		return nil, nil
	}))
	if res.Replaced || len(res.Outcomes) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestReconcileFetchesConcurrently(t *testing.T) {
	pow := consensus.NewPoW(2)
	local := buildChain(t, pow, t0, 1)

	var inflight, peak atomic.Int32
	fetch := FetchFunc(func(ctx context.Context, _ string) ([]blockchain.Block, error) {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inflight.Add(-1)
		return nil, ErrPeerUnreachable
	})

	r := newReconciler(pow)
	r.Concurrency = 2
	_ = r.Reconcile(context.Background(), local, []string{"a:1", "b:1", "c:1", "d:1"}, fetch)

	if p := peak.Load(); p > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", p)
	}
}
