package api

import "github.com/VeltarosLabs/mythcoin/pkg/types"

type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

type Health struct {
	OK   bool   `json:"ok"`
	Time string `json:"time"`
}

type NodeStatus struct {
	NodeAddress string `json:"nodeAddress"`
	StartedAt   string `json:"startedAt"`
	UptimeSec   int64  `json:"uptimeSec"`
	Height      int    `json:"height"`
	Pending     int    `json:"pending"`
	KnownPeers  int    `json:"knownPeers"`
	Difficulty  int    `json:"difficulty"`
}

type PeerInfo struct {
	Addr      string `json:"addr"`
	Source    string `json:"source"`
	SeenAt    string `json:"seenAt,omitempty"`
	LastError string `json:"lastError,omitempty"`
}

type PeerList struct {
	Count int        `json:"count"`
	Peers []PeerInfo `json:"peers"`
}

type MineResponse struct {
	Message      string              `json:"message"`
	Index        int64               `json:"index"`
	Timestamp    string              `json:"timestamp"`
	Proof        int64               `json:"proof"`
	PreviousHash string              `json:"previous_hash"`
	Transactions []types.Transaction `json:"transactions"`
}

type ChainResponse struct {
	Chain  []types.Block `json:"chain"`
	Length int           `json:"length"`
}

type ValidityResponse struct {
	Chain         []types.Block `json:"chain"`
	ValidityCheck bool          `json:"validity_check"`
}

// TransactionRequest uses pointers so absent fields can be told apart from
// zero values.
type TransactionRequest struct {
	Sender   *string  `json:"sender"`
	Receiver *string  `json:"receiver"`
	Amount   *float64 `json:"amount"`
}

type TransactionResponse struct {
	Message string `json:"message"`
	Index   int64  `json:"index"`
}

type ConnectRequest struct {
	Nodes []string `json:"nodes"`
}

type ConnectResponse struct {
	Message    string   `json:"message"`
	TotalNodes []string `json:"total_nodes"`
}

type ReplaceResponse struct {
	Message  string        `json:"message"`
	Replaced bool          `json:"replaced"`
	Chain    []types.Block `json:"chain"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
