package consensus

import "errors"

// Local invariant violations. These indicate the sealing or proof-of-work
// implementation disagrees with itself and must never be swallowed.
var (
	ErrInvariantViolation = errors.New("local invariant violation")
	ErrSealCheckFailed    = errors.New("block seal check failed")
	ErrProofCheckFailed   = errors.New("block proof check failed")
)

// Routine outcomes.
var (
	ErrStaleTip       = errors.New("chain tip changed while mining")
	ErrInvalidChain   = errors.New("invalid chain")
	ErrChainNotLonger = errors.New("remote chain is not longer than the local or best candidate chain")
	ErrInvalidPeer    = errors.New("invalid peer address")
	ErrInvalidConfig  = errors.New("invalid engine configuration")
)
