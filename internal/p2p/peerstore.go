package p2p

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	SourceBootstrap = "bootstrap"
	SourceManual    = "manual"
)

var ErrInvalidAddress = errors.New("invalid node address")

type StoredPeer struct {
	Addr      string    `json:"addr"`
	SeenAt    time.Time `json:"seenAt"`
	Source    string    `json:"source"` // bootstrap|manual
	LastError string    `json:"lastError,omitempty"`
}

// Registry is the set of known peer addresses, keyed by host:port.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]StoredPeer
}

func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]StoredPeer)}
}

// ParseAddress reduces a node URL ("http://10.0.0.2:5001/") or a bare
// "host:port" to its network location.
func ParseAddress(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidAddress, raw, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidAddress, raw)
	}
	return u.Host, nil
}

// Add inserts raw under source. Adding a known address is a no-op; the
// normalized address is returned either way.
func (r *Registry) Add(raw string, source string) (string, error) {
	addr, err := ParseAddress(raw)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[addr]; !ok {
		r.peers[addr] = StoredPeer{Addr: addr, Source: source}
	}
	return addr, nil
}

func (r *Registry) Has(addr string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.peers[addr]
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Addrs returns the known addresses in stable (sorted) order.
func (r *Registry) Addrs() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.peers))
	for a := range r.peers {
		out = append(out, a)
	}
	r.mu.RUnlock()

	sort.Strings(out)
	return out
}

func (r *Registry) List() []StoredPeer {
	r.mu.RLock()
	out := make([]StoredPeer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// MarkSeen records a successful exchange with addr and clears its last error.
func (r *Registry) MarkSeen(addr string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[addr]
	if !ok {
		return
	}
	p.SeenAt = at.UTC()
	p.LastError = ""
	r.peers[addr] = p
}

func (r *Registry) MarkFailed(addr string, err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[addr]
	if !ok {
		return
	}
	p.LastError = err.Error()
	r.peers[addr] = p
}
