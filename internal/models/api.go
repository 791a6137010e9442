package models

// Wire types of the node HTTP API shared by the server and the client.

// TransactionResponse reports the block index a submitted transaction is expected to land in.
type TransactionResponse struct {
	Index uint64 `json:"index"`
}

// PendingResponse lists the transactions waiting for the next block.
type PendingResponse struct {
	Transactions []Transaction `json:"transactions"`
}

// PeersRequest registers new peers.
type PeersRequest struct {
	Peers []string `json:"peers"`
}

// PeersResponse lists the known peers.
type PeersResponse struct {
	Peers []string `json:"peers"`
}

// PeerReport is the outcome of polling one peer during conflict resolution.
type PeerReport struct {
	Peer        string `json:"peer"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
	ChainLength int    `json:"chainLength,omitempty"`
}

// ResolveResponse is the outcome of a conflict resolution pass.
type ResolveResponse struct {
	Replaced    bool         `json:"replaced"`
	ChainLength int          `json:"chainLength"`
	Results     []PeerReport `json:"results"`
}

// ValidateResponse reports whether the local chain is valid.
type ValidateResponse struct {
	Valid bool `json:"valid"`
}

// NodeResponse identifies a node.
type NodeResponse struct {
	NodeID string `json:"nodeId"`
}

// ErrorResponse carries an API error message.
type ErrorResponse struct {
	Error string `json:"error"`
}
