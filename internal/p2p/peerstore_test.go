package p2p

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "http://127.0.0.1:5001", want: "127.0.0.1:5001"},
		{in: "http://127.0.0.1:5001/", want: "127.0.0.1:5001"},
		{in: "https://node.example.com:8443/get_chain", want: "node.example.com:8443"},
		{in: "127.0.0.1:5002", want: "127.0.0.1:5002"},
		{in: "  localhost:5003 ", want: "localhost:5003"},
		{in: "node.example.com", want: "node.example.com"},
		{in: "", wantErr: true},
		{in: "http://", wantErr: true},
		{in: "http://:5000", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseAddress(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidAddress) {
				t.Errorf("ParseAddress(%q) error = %v, want ErrInvalidAddress", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAddress(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRegistrySetSemantics(t *testing.T) {
	r := NewRegistry()
	for _, a := range []string{"http://127.0.0.1:5002", "127.0.0.1:5001", "http://127.0.0.1:5001/"} {
		if _, err := r.Add(a, SourceManual); err != nil {
			t.Fatalf("Add(%q): %v", a, err)
		}
	}

	want := []string{"127.0.0.1:5001", "127.0.0.1:5002"}
	if got := r.Addrs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Addrs() = %v, want %v", got, want)
	}
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	if _, err := r.Add("http://", SourceManual); err == nil {
		t.Fatal("expected error for invalid address")
	}
	if r.Len() != 2 {
		t.Fatal("invalid address changed the registry")
	}
}

func TestRegistryKeepsFirstSource(t *testing.T) {
	r := NewRegistry()
	_, _ = r.Add("10.0.0.1:5000", SourceBootstrap)
	_, _ = r.Add("http://10.0.0.1:5000", SourceManual)

	peers := r.List()
	if len(peers) != 1 || peers[0].Source != SourceBootstrap {
		t.Fatalf("List() = %+v, want one bootstrap peer", peers)
	}
}

func TestRegistryOutcomes(t *testing.T) {
	r := NewRegistry()
	addr, _ := r.Add("10.0.0.1:5000", SourceManual)

	r.MarkFailed(addr, errors.New("connection refused"))
	if got := r.List()[0].LastError; got != "connection refused" {
		t.Fatalf("LastError = %q", got)
	}

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.MarkSeen(addr, now)
	p := r.List()[0]
	if p.LastError != "" || !p.SeenAt.Equal(now) {
		t.Fatalf("after MarkSeen: %+v", p)
	}

	// Unknown addresses are ignored.
	r.MarkSeen("10.9.9.9:1", now)
	r.MarkFailed("10.9.9.9:1", errors.New("x"))
	if r.Has("10.9.9.9:1") {
		t.Fatal("MarkSeen/MarkFailed must not insert peers")
	}
}
