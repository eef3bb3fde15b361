package consensus

import "errors"

// Engine validates the work linking a block's proof to its predecessor's.
type Engine interface {
	ValidateProof(previousProof, proof int64) error
}

var (
	ErrInvalidProof    = errors.New("invalid proof of work")
	ErrMiningCancelled = errors.New("mining cancelled")
)
