// Package types holds the wire records exchanged between nodes. Field names are
// part of the protocol: peers recompute previous_hash from them.
package types

type Transaction struct {
	Sender   string  `json:"sender"`
	Receiver string  `json:"receiver"`
	Amount   float64 `json:"amount"`
}

type Block struct {
	Index        int64         `json:"index"`
	Timestamp    string        `json:"timestamp"`
	Proof        int64         `json:"proof"`
	PreviousHash string        `json:"previous_hash"`
	Transactions []Transaction `json:"transactions"`
}
