package blockchain

import (
	"bytes"
	"encoding/json"
	"time"

	mcrypto "github.com/VeltarosLabs/mythcoin/internal/crypto"
	"github.com/VeltarosLabs/mythcoin/pkg/types"
)

type (
	Block       = types.Block
	Transaction = types.Transaction
)

const (
	GenesisProof        int64 = 1
	GenesisPreviousHash       = "0"

	TimestampLayout = time.RFC3339Nano
)

func NewGenesisBlock(now time.Time) Block {
	return NewBlock(1, now, GenesisProof, GenesisPreviousHash, nil)
}

// NewBlock builds a block owning txs. A nil slice becomes an empty one so the
// block serializes "transactions": [] rather than null.
func NewBlock(index int64, now time.Time, proof int64, previousHash string, txs []Transaction) Block {
	if txs == nil {
		txs = []Transaction{}
	}
	return Block{
		Index:        index,
		Timestamp:    now.UTC().Format(TimestampLayout),
		Proof:        proof,
		PreviousHash: previousHash,
		Transactions: txs,
	}
}

// CanonicalBytes encodes b as JSON with object keys sorted at every level, so
// structurally equal blocks encode identically no matter how they were built.
func CanonicalBytes(b Block) ([]byte, error) {
	if b.Transactions == nil {
		b.Transactions = []Transaction{}
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	// encoding/json writes map keys in sorted order.
	return json.Marshal(generic)
}

// Hash returns the lowercase hex SHA-256 of the block's canonical form.
func Hash(b Block) string {
	data, err := CanonicalBytes(b)
	if err != nil {
		// Block holds only strings and finite numbers; Marshal cannot fail for
		// anything but a NaN/Inf amount, which no valid transaction carries.
		return ""
	}
	return mcrypto.Sha256Hex(data)
}

// CloneChain returns a deep copy of blocks, transactions included.
func CloneChain(blocks []Block) []Block {
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		out[i] = b
		out[i].Transactions = append([]Transaction(nil), b.Transactions...)
		if out[i].Transactions == nil {
			out[i].Transactions = []Transaction{}
		}
	}
	return out
}
