package consensus

import (
	"context"
	"errors"
	"strings"
	"testing"

	mcrypto "github.com/VeltarosLabs/mythcoin/internal/crypto"
)

func TestFindProofIsMinimal(t *testing.T) {
	pow := NewPoW(DefaultDifficulty)

	for _, prev := range []int64{1, 533, 45293} {
		proof, err := pow.FindProof(context.Background(), prev)
		if err != nil {
			t.Fatalf("FindProof(%d): %v", prev, err)
		}
		if !strings.HasPrefix(Digest(proof, prev), "0000") {
			t.Fatalf("FindProof(%d) = %d, digest %s lacks 0000 prefix", prev, proof, Digest(proof, prev))
		}
		for c := int64(1); c < proof; c++ {
			if pow.Satisfies(c, prev) {
				t.Fatalf("FindProof(%d) = %d, but smaller candidate %d also satisfies", prev, proof, c)
			}
		}
	}
}

func TestFindProofDeterministic(t *testing.T) {
	pow := NewPoW(3)
	a, err := pow.FindProof(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	b, err := pow.FindProof(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("FindProof not deterministic: %d != %d", a, b)
	}
}

func TestFindProofCancelled(t *testing.T) {
	// Difficulty 16 is never reached in practice, so only cancellation ends the search.
	pow := NewPoW(MaxDifficulty)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pow.FindProof(ctx, 1)
	if !errors.Is(err, ErrMiningCancelled) {
		t.Fatalf("expected ErrMiningCancelled, got %v", err)
	}
}

func TestValidateProof(t *testing.T) {
	pow := NewPoW(DefaultDifficulty)
	proof, err := pow.FindProof(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := pow.ValidateProof(1, proof); err != nil {
		t.Fatalf("ValidateProof on found proof: %v", err)
	}
	if err := pow.ValidateProof(1, proof+1); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof for proof+1, got %v", err)
	}
}

func TestDigestUsesExactArithmetic(t *testing.T) {
	// 3037000500^2 overflows int64; the digest must hash the exact decimal text.
	want := mcrypto.Sha256Hex([]byte("9223372037000250000"))
	if got := Digest(3037000500, 0); got != want {
		t.Fatalf("Digest(3037000500, 0) = %s, want %s", got, want)
	}
	if Digest(1, 1) != mcrypto.Sha256Hex([]byte("0")) {
		t.Fatal("Digest(1, 1) should hash \"0\"")
	}
}

func TestNewPoWClampsDifficulty(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultDifficulty},
		{-3, DefaultDifficulty},
		{2, 2},
		{99, MaxDifficulty},
	}
	for _, tt := range tests {
		if got := NewPoW(tt.in).Difficulty; got != tt.want {
			t.Errorf("NewPoW(%d).Difficulty = %d, want %d", tt.in, got, tt.want)
		}
	}
}
