package consensus

import (
	"fmt"

	"github.com/liftedinit/powchain/internal/models"
)

// ValidateChain applies the chain invariants in order and returns the first
// violation, wrapped in ErrInvalidChain. It is the only gate for chains
// received from peers.
func ValidateChain(difficulty int, chain models.Chain) error {
	if len(chain) == 0 {
		return fmt.Errorf("%w: empty chain", ErrInvalidChain)
	}

	genesis := chain[0]
	if genesis == nil {
		return fmt.Errorf("%w: missing genesis block", ErrInvalidChain)
	}
	if genesis.Index != 0 {
		return fmt.Errorf("%w: genesis block has index %d", ErrInvalidChain, genesis.Index)
	}
	if !genesis.CheckSeal() {
		return fmt.Errorf("%w: genesis block seal mismatch", ErrInvalidChain)
	}
	if len(genesis.Transactions) != 0 {
		return fmt.Errorf("%w: genesis block has %d transactions", ErrInvalidChain, len(genesis.Transactions))
	}

	for i := 1; i < len(chain); i++ {
		prev, cur := chain[i-1], chain[i]
		if cur == nil {
			return fmt.Errorf("%w: missing block %d", ErrInvalidChain, i)
		}
		if cur.PreviousHash != prev.Hash {
			return fmt.Errorf("%w: block %d does not link to block %d", ErrInvalidChain, i, i-1)
		}
		if cur.Index != uint64(i) {
			return fmt.Errorf("%w: block at position %d has index %d", ErrInvalidChain, i, cur.Index)
		}
		if !cur.CheckSeal() {
			return fmt.Errorf("%w: block %d seal mismatch", ErrInvalidChain, i)
		}
		if !CheckProofOfWork(difficulty, prev.Proof, cur.Proof, prev.Hash) {
			return fmt.Errorf("%w: block %d proof of work rejected", ErrInvalidChain, i)
		}
	}

	return nil
}

// CheckChainValidity reports whether chain satisfies every chain invariant.
func CheckChainValidity(difficulty int, chain models.Chain) bool {
	return ValidateChain(difficulty, chain) == nil
}
