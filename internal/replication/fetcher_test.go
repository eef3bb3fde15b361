package replication

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/VeltarosLabs/mythcoin/internal/blockchain"
	"github.com/VeltarosLabs/mythcoin/pkg/api"
)

func chainServer(t *testing.T, resp api.ChainResponse, failFirst int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/get_chain" {
			http.NotFound(w, r)
			return
		}
		if hits.Add(1) <= failFirst {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func addrOf(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func fastFetcher(retries uint64) *HTTPFetcher {
	f := NewHTTPFetcher(2*time.Second, retries)
	f.InitialInterval = time.Millisecond
	return f
}

func TestHTTPFetcherFetchesChain(t *testing.T) {
	chain := []blockchain.Block{blockchain.NewGenesisBlock(t0)}
	srv, _ := chainServer(t, api.ChainResponse{Chain: chain, Length: 1}, 0)

	got, err := fastFetcher(0).FetchChain(context.Background(), addrOf(srv))
	if err != nil {
		t.Fatalf("FetchChain: %v", err)
	}
	if len(got) != 1 || blockchain.Hash(got[0]) != blockchain.Hash(chain[0]) {
		t.Fatalf("fetched chain differs: %+v", got)
	}
}

func TestHTTPFetcherRetries(t *testing.T) {
	chain := []blockchain.Block{blockchain.NewGenesisBlock(t0)}
	srv, hits := chainServer(t, api.ChainResponse{Chain: chain, Length: 1}, 2)

	if _, err := fastFetcher(3).FetchChain(context.Background(), addrOf(srv)); err != nil {
		t.Fatalf("FetchChain: %v", err)
	}
	if got := hits.Load(); got != 3 {
		t.Fatalf("hits = %d, want 3", got)
	}
}

func TestHTTPFetcherUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := addrOf(srv)
	srv.Close()

	_, err := fastFetcher(1).FetchChain(context.Background(), addr)
	if !errors.Is(err, ErrPeerUnreachable) {
		t.Fatalf("expected ErrPeerUnreachable, got %v", err)
	}
}

func TestHTTPFetcherLengthMismatch(t *testing.T) {
	chain := []blockchain.Block{blockchain.NewGenesisBlock(t0)}
	srv, _ := chainServer(t, api.ChainResponse{Chain: chain, Length: 7}, 0)

	_, err := fastFetcher(0).FetchChain(context.Background(), addrOf(srv))
	if !errors.Is(err, ErrInvalidChain) {
		t.Fatalf("expected ErrInvalidChain, got %v", err)
	}
}
