package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// TimestampLayout is the ISO-8601 form used for block timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Transaction represents a value transfer waiting for, or included in, a block.
type Transaction struct {
	Sender    string  `json:"sender"`
	Recipient string  `json:"recipient"`
	Amount    float64 `json:"amount"`
}

// Block represents a sealed (or not yet sealed) block of the chain.
type Block struct {
	Index        uint64        `json:"index"`
	Timestamp    string        `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
	PreviousHash string        `json:"previousHash"`
	Proof        uint64        `json:"proof"`
	Hash         string        `json:"hash"`
}

// sealPayload fixes the field order of the hashed content. Hash is excluded.
type sealPayload struct {
	Index        uint64        `json:"index"`
	Timestamp    string        `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
	PreviousHash string        `json:"previousHash"`
	Proof        uint64        `json:"proof"`
}

// NewBlock returns an unsealed block. A nil transaction list is stored as empty.
func NewBlock(index uint64, timestamp time.Time, transactions []Transaction, previousHash string, proof uint64) *Block {
	txs := make([]Transaction, len(transactions))
	copy(txs, transactions)
	return &Block{
		Index:        index,
		Timestamp:    FormatTimestamp(timestamp),
		Transactions: txs,
		PreviousHash: previousHash,
		Proof:        proof,
	}
}

// FormatTimestamp renders t as a UTC ISO-8601 string with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ComputeHash returns the hex-encoded SHA-256 digest of the block content.
func (b *Block) ComputeHash() string {
	txs := b.Transactions
	if txs == nil {
		txs = []Transaction{}
	}
	// Marshalling a struct of strings, integers and floats cannot fail.
	data, _ := json.Marshal(sealPayload{
		Index:        b.Index,
		Timestamp:    b.Timestamp,
		Transactions: txs,
		PreviousHash: b.PreviousHash,
		Proof:        b.Proof,
	})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Seal computes and stores the block hash.
func (b *Block) Seal() {
	b.Hash = b.ComputeHash()
}

// CheckSeal reports whether the stored hash matches the block content.
func (b *Block) CheckSeal() bool {
	return b.Hash != "" && b.Hash == b.ComputeHash()
}

// IsSealed reports whether Seal has been called.
func (b *Block) IsSealed() bool {
	return b.Hash != ""
}

// Clone returns a deep copy of the block.
func (b *Block) Clone() *Block {
	c := *b
	c.Transactions = make([]Transaction, len(b.Transactions))
	copy(c.Transactions, b.Transactions)
	return &c
}

// Chain is an immutable snapshot of sealed blocks, index 0 being the genesis block.
// Appending produces a new Chain; the blocks of a published Chain are never mutated.
type Chain []*Block

// Len returns the number of blocks.
func (c Chain) Len() int {
	return len(c)
}

// Last returns the tip of the chain, or nil for an empty chain.
func (c Chain) Last() *Block {
	if len(c) == 0 {
		return nil
	}
	return c[len(c)-1]
}

// Append returns a new chain with b added at the end, leaving c untouched.
func (c Chain) Append(b *Block) Chain {
	out := make(Chain, len(c), len(c)+1)
	copy(out, c)
	return append(out, b)
}

// ChainResponse is the payload served on, and fetched from, a peer's /chain endpoint.
type ChainResponse struct {
	Chain       []*Block `json:"chain"`
	ChainLength int      `json:"chainLength"`
}

// NewChainResponse wraps a chain for serving.
func NewChainResponse(chain Chain) ChainResponse {
	blocks := []*Block(chain)
	if blocks == nil {
		blocks = []*Block{}
	}
	return ChainResponse{Chain: blocks, ChainLength: len(blocks)}
}
