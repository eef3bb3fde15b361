package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/VeltarosLabs/mythcoin/internal/blockchain"
	"github.com/VeltarosLabs/mythcoin/internal/consensus"
	"github.com/VeltarosLabs/mythcoin/internal/ledger"
	"github.com/VeltarosLabs/mythcoin/internal/p2p"
	"github.com/VeltarosLabs/mythcoin/internal/replication"
	papi "github.com/VeltarosLabs/mythcoin/pkg/api"
	"github.com/VeltarosLabs/mythcoin/pkg/version"
)

const maxBodyBytes = 1 << 20

var (
	ErrMissingField     = errors.New("missing transaction field")
	ErrNoNodesProvided  = errors.New("no nodes provided")
	errRequestTooLarge  = errors.New("request too large")
	errMethodNotAllowed = errors.New("method not allowed")
)

type Config struct {
	NodeAddress    string
	AllowedOrigins []string
	APIKey         string
	RateLimit      float64
	RateBurst      float64
}

// Server exposes a Ledger over HTTP/JSON.
type Server struct {
	ledger    *ledger.Ledger
	fetcher   replication.ChainFetcher
	log       *slog.Logger
	cfg       Config
	startedAt time.Time
	limiter   *Limiter
}

func NewServer(l *ledger.Ledger, fetcher replication.ChainFetcher, log *slog.Logger, cfg Config) *Server {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 1
	}
	if cfg.RateBurst < 1 {
		cfg.RateBurst = 5
	}
	return &Server{
		ledger:    l,
		fetcher:   fetcher,
		log:       log.With("component", "api"),
		cfg:       cfg,
		startedAt: time.Now().UTC(),
		limiter:   NewLimiter(cfg.RateLimit, cfg.RateBurst, 1),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", only(http.MethodGet, s.handleHealth))
	mux.HandleFunc("/version", only(http.MethodGet, s.handleVersion))
	mux.HandleFunc("/status", only(http.MethodGet, s.handleStatus))
	mux.HandleFunc("/peers", only(http.MethodGet, s.handlePeers))

	mux.HandleFunc("/mine_block", only(http.MethodGet, s.limiter.Limit(s.handleMine)))
	mux.HandleFunc("/get_chain", only(http.MethodGet, s.handleChain))
	mux.HandleFunc("/get_validity_check", only(http.MethodGet, s.handleValidity))
	mux.HandleFunc("/add_transaction", only(http.MethodPost, s.handleAddTransaction))
	mux.HandleFunc("/connect_node", only(http.MethodPost, s.handleConnectNode))
	mux.HandleFunc("/replace_chain", only(http.MethodGet, s.limiter.Limit(s.handleReplaceChain)))

	return SecurityMiddleware(SecurityConfig{
		AllowedOrigins: s.cfg.AllowedOrigins,
		APIKey:         s.cfg.APIKey,
		RequireKeyFor: map[string]bool{
			"/mine_block":      true,
			"/add_transaction": true,
			"/connect_node":    true,
			"/replace_chain":   true,
		},
	}, mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, papi.Health{OK: true, Time: time.Now().UTC().Format(time.RFC3339Nano)})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	v := version.Get()
	writeJSON(w, http.StatusOK, papi.VersionInfo{
		Version:   v.Version,
		Commit:    v.Commit,
		GoVersion: v.GoVersion,
		Platform:  v.Platform,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, papi.NodeStatus{
		NodeAddress: s.cfg.NodeAddress,
		StartedAt:   s.startedAt.Format(time.RFC3339Nano),
		UptimeSec:   int64(time.Since(s.startedAt).Seconds()),
		Height:      s.ledger.Len(),
		Pending:     len(s.ledger.Pending()),
		KnownPeers:  len(s.ledger.Nodes()),
		Difficulty:  s.ledger.PoW().Difficulty,
	})
}

func (s *Server) handlePeers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, peerList(s.ledger.Peers()))
}

func (s *Server) handleMine(w http.ResponseWriter, r *http.Request) {
	b, err := s.ledger.MineBlock(r.Context())
	if err != nil {
		if errors.Is(err, consensus.ErrMiningCancelled) {
			s.log.Info("mining cancelled by client", "err", err)
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		s.log.Error("mining failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, papi.MineResponse{
		Message:      "Congratulations, you just mined a block!",
		Index:        b.Index,
		Timestamp:    b.Timestamp,
		Proof:        b.Proof,
		PreviousHash: b.PreviousHash,
		Transactions: b.Transactions,
	})
}

func (s *Server) handleChain(w http.ResponseWriter, _ *http.Request) {
	chain := s.ledger.Chain()
	writeJSON(w, http.StatusOK, papi.ChainResponse{Chain: chain, Length: len(chain)})
}

func (s *Server) handleValidity(w http.ResponseWriter, _ *http.Request) {
	chain := s.ledger.Chain()
	writeJSON(w, http.StatusOK, papi.ValidityResponse{
		Chain:         chain,
		ValidityCheck: blockchain.IsValid(chain, s.ledger.PoW()),
	})
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var req papi.TransactionRequest
	if err := decodeBody(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := checkTransaction(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	idx := s.ledger.AddTransaction(*req.Sender, *req.Receiver, *req.Amount)
	s.log.Debug("transaction queued", "sender", *req.Sender, "receiver", *req.Receiver, "amount", *req.Amount, "block", idx)

	writeJSON(w, http.StatusCreated, papi.TransactionResponse{
		Message: fmt.Sprintf("This transaction will be added to Block %d", idx),
		Index:   idx,
	})
}

func checkTransaction(req papi.TransactionRequest) error {
	switch {
	case req.Sender == nil:
		return fmt.Errorf("%w: sender", ErrMissingField)
	case req.Receiver == nil:
		return fmt.Errorf("%w: receiver", ErrMissingField)
	case req.Amount == nil:
		return fmt.Errorf("%w: amount", ErrMissingField)
	}
	return nil
}

func (s *Server) handleConnectNode(w http.ResponseWriter, r *http.Request) {
	var req papi.ConnectRequest
	if err := decodeBody(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if len(req.Nodes) == 0 {
		writeError(w, http.StatusBadRequest, ErrNoNodesProvided.Error())
		return
	}

	// Reject the whole request before touching the registry.
	for _, n := range req.Nodes {
		if _, err := p2p.ParseAddress(n); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	for _, n := range req.Nodes {
		addr, err := s.ledger.AddNode(n)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Info("node connected", "peer", addr)
	}

	writeJSON(w, http.StatusCreated, papi.ConnectResponse{
		Message:    "All the nodes are now connected. The blockchain now contains the following nodes:",
		TotalNodes: s.ledger.Nodes(),
	})
}

func (s *Server) handleReplaceChain(w http.ResponseWriter, r *http.Request) {
	replaced, err := s.ledger.ReplaceChain(r.Context(), s.fetcher)
	if err != nil {
		s.log.Warn("reconciliation aborted", "err", err)
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	resp := papi.ReplaceResponse{Replaced: replaced, Chain: s.ledger.Chain()}
	if replaced {
		resp.Message = "The nodes had different chains so the chain was replaced by the longest one."
	} else {
		resp.Message = "All good. The chain is the largest one."
	}
	writeJSON(w, http.StatusOK, resp)
}

func peerList(peers []p2p.StoredPeer) papi.PeerList {
	out := papi.PeerList{Count: len(peers), Peers: make([]papi.PeerInfo, 0, len(peers))}
	for _, p := range peers {
		info := papi.PeerInfo{Addr: p.Addr, Source: p.Source, LastError: p.LastError}
		if !p.SeenAt.IsZero() {
			info.SeenAt = p.SeenAt.Format(time.RFC3339Nano)
		}
		out.Peers = append(out.Peers, info)
	}
	return out
}

func only(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed.Error())
			return
		}
		next(w, r)
	}
}

func decodeBody(r *http.Request, out any) error {
	b, err := readBodyLimited(r.Body, maxBodyBytes)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func readBodyLimited(r io.Reader, limit int64) ([]byte, error) {
	lr := io.LimitReader(r, limit)
	b, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(b)) >= limit {
		return nil, errRequestTooLarge
	}
	return b, nil
}

func writeDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errRequestTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, papi.ErrorResponse{Error: msg})
}
