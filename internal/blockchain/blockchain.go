package blockchain

import (
	"errors"
	"fmt"

	"github.com/VeltarosLabs/mythcoin/internal/consensus"
)

var ErrPrevHashMismatch = errors.New("previous hash mismatch")

// ValidateChain checks every block after the first: its previous_hash must be
// the hash of its predecessor and its proof must satisfy the engine against the
// predecessor's proof. It stops at the first failure. Chains of length <= 1 are
// valid.
func ValidateChain(chain []Block, engine consensus.Engine) error {
	for i := 1; i < len(chain); i++ {
		prev := chain[i-1]
		cur := chain[i]

		if cur.PreviousHash != Hash(prev) {
			return fmt.Errorf("block %d: %w", cur.Index, ErrPrevHashMismatch)
		}
		if err := engine.ValidateProof(prev.Proof, cur.Proof); err != nil {
			return fmt.Errorf("block %d: %w", cur.Index, err)
		}
	}
	return nil
}

func IsValid(chain []Block, engine consensus.Engine) bool {
	return ValidateChain(chain, engine) == nil
}
