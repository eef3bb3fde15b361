package consensus

import (
	"context"
	"fmt"
	"math/big"

	mcrypto "github.com/VeltarosLabs/mythcoin/internal/crypto"
)

const (
	DefaultDifficulty = 4
	MaxDifficulty     = 16

	// ctx is polled once per this many candidates.
	cancelCheckEvery = 1024
)

// PoW is the toy proof-of-work scheme: a proof q is valid against the previous
// proof p when sha256(decimal(q*q - p*p)) starts with Difficulty hex zeros.
type PoW struct {
	Difficulty int
}

func NewPoW(difficulty int) *PoW {
	if difficulty <= 0 {
		difficulty = DefaultDifficulty
	}
	if difficulty > MaxDifficulty {
		difficulty = MaxDifficulty
	}
	return &PoW{Difficulty: difficulty}
}

// Digest returns the hex digest the predicate is evaluated on.
func Digest(candidate, previousProof int64) string {
	c := big.NewInt(candidate)
	p := big.NewInt(previousProof)
	c.Mul(c, c)
	p.Mul(p, p)
	c.Sub(c, p)
	return mcrypto.Sha256Hex([]byte(c.String()))
}

func (w *PoW) Satisfies(candidate, previousProof int64) bool {
	return mcrypto.HasZeroPrefix(Digest(candidate, previousProof), w.Difficulty)
}

func (w *PoW) ValidateProof(previousProof, proof int64) error {
	if !w.Satisfies(proof, previousProof) {
		return fmt.Errorf("%w: proof %d against previous %d", ErrInvalidProof, proof, previousProof)
	}
	return nil
}

// FindProof searches candidates 1, 2, 3, ... and returns the first one that
// satisfies the predicate. The search is unbounded; it stops early only when ctx
// is done, returning ErrMiningCancelled.
func (w *PoW) FindProof(ctx context.Context, previousProof int64) (int64, error) {
	for candidate := int64(1); ; candidate++ {
		if candidate%cancelCheckEvery == 0 {
			select {
			case <-ctx.Done():
				return 0, fmt.Errorf("%w: %v", ErrMiningCancelled, ctx.Err())
			default:
			}
		}
		if w.Satisfies(candidate, previousProof) {
			return candidate, nil
		}
	}
}
