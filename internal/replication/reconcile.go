// Package replication reconciles the local chain against peers under the
// longest-valid-chain rule. It never talks to the network itself; peer chains
// come from a ChainFetcher.
package replication

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/VeltarosLabs/mythcoin/internal/blockchain"
)

const DefaultConcurrency = 8

var (
	ErrPeerUnreachable = errors.New("peer unreachable")
	ErrInvalidChain    = errors.New("invalid peer chain")
)

type ChainFetcher interface {
	FetchChain(ctx context.Context, addr string) ([]blockchain.Block, error)
}

// FetchFunc adapts a plain function to ChainFetcher.
type FetchFunc func(ctx context.Context, addr string) ([]blockchain.Block, error)

func (f FetchFunc) FetchChain(ctx context.Context, addr string) ([]blockchain.Block, error) {
	return f(ctx, addr)
}

// Validator returns nil when chain is acceptable.
type Validator func(chain []blockchain.Block) error

type Outcome struct {
	Addr   string
	Length int
	Err    error
}

type Result struct {
	Chain    []blockchain.Block
	Replaced bool
	Source   string
	Outcomes []Outcome
}

type Reconciler struct {
	Validate    Validator
	Concurrency int
	Log         *slog.Logger
}

type fetched struct {
	chain []blockchain.Block
	err   error
}

// Reconcile fetches every peer's chain and picks the first, in peers order, that
// is strictly longer than the best seen so far and passes Validate. Fetch and
// validation failures are recorded in Outcomes and skipped. When nothing beats
// local, Result.Chain is local and Replaced is false.
func (r *Reconciler) Reconcile(ctx context.Context, local []blockchain.Block, peers []string, fetcher ChainFetcher) Result {
	log := r.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	results := make([]fetched, len(peers))

	limit := r.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, addr := range peers {
		i, addr := i, addr
		g.Go(func() error {
			chain, err := fetcher.FetchChain(ctx, addr)
			results[i] = fetched{chain: chain, err: err}
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Chain: local, Outcomes: make([]Outcome, 0, len(peers))}
	best := len(local)

	for i, addr := range peers {
		f := results[i]
		out := Outcome{Addr: addr, Length: len(f.chain)}

		switch {
		case f.err != nil:
			out.Err = f.err
			log.Warn("peer fetch failed", "peer", addr, "err", f.err)
		case len(f.chain) > best:
			if err := r.validate(f.chain); err != nil {
				out.Err = fmt.Errorf("%w: %s: %v", ErrInvalidChain, addr, err)
				log.Warn("peer chain rejected", "peer", addr, "length", len(f.chain), "err", err)
				break
			}
			best = len(f.chain)
			res.Chain = f.chain
			res.Replaced = true
			res.Source = addr
			log.Debug("peer chain is new best", "peer", addr, "length", best)
		default:
			log.Debug("peer chain not longer", "peer", addr, "length", len(f.chain), "best", best)
		}
		res.Outcomes = append(res.Outcomes, out)
	}

	return res
}

func (r *Reconciler) validate(chain []blockchain.Block) error {
	if r.Validate == nil {
		return errors.New("no validator configured")
	}
	return r.Validate(chain)
}
