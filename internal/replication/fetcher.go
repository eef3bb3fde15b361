package replication

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/VeltarosLabs/mythcoin/internal/blockchain"
	"github.com/VeltarosLabs/mythcoin/pkg/api"
)

// HTTPFetcher reads a peer's chain from its /get_chain endpoint, retrying
// transient failures with exponential backoff.
type HTTPFetcher struct {
	HTTP            *http.Client
	Retries         uint64
	InitialInterval time.Duration
	MaxElapsed      time.Duration
}

func NewHTTPFetcher(timeout time.Duration, retries uint64) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFetcher{
		HTTP:            &http.Client{Timeout: timeout},
		Retries:         retries,
		InitialInterval: 200 * time.Millisecond,
		MaxElapsed:      30 * time.Second,
	}
}

func (f *HTTPFetcher) FetchChain(ctx context.Context, addr string) ([]blockchain.Block, error) {
	cl, err := api.New("http://"+addr, api.WithHTTPClient(f.HTTP))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPeerUnreachable, addr, err)
	}

	var resp api.ChainResponse
	op := func() error {
		var err error
		resp, err = cl.Chain(ctx)
		return err
	}

	eb := backoff.NewExponentialBackOff()
	if f.InitialInterval > 0 {
		eb.InitialInterval = f.InitialInterval
	}
	if f.MaxElapsed > 0 {
		eb.MaxElapsedTime = f.MaxElapsed
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, f.Retries), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPeerUnreachable, addr, err)
	}

	if resp.Length != len(resp.Chain) {
		return nil, fmt.Errorf("%w: %s: reported length %d, got %d blocks", ErrInvalidChain, addr, resp.Length, len(resp.Chain))
	}
	return resp.Chain, nil
}
