package output

import (
	"context"

	"github.com/liftedinit/powchain/internal/models"
)

// OutputHandler receives the blocks of an exported chain, in index order.
type OutputHandler interface {
	// WriteBlockWithTransactions stores a block together with its transactions.
	WriteBlockWithTransactions(ctx context.Context, block *models.Block) error
	// GetLatestBlock returns the highest exported block, or nil if nothing was exported.
	GetLatestBlock(ctx context.Context) (*models.Block, error)
	// ResetChain drops every exported block, used when the source chain was replaced.
	ResetChain(ctx context.Context) error
	Close() error
}
