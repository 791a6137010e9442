package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/liftedinit/powchain/internal/config"
	"github.com/liftedinit/powchain/internal/consensus"
	"github.com/liftedinit/powchain/internal/models"
	"github.com/liftedinit/powchain/internal/output"
)

// Extract exports the validated chain of the node at address to outputHandler.
// In live mode it keeps polling the node until ctx is done.
func Extract(ctx context.Context, fetcher consensus.ChainFetcher, address string, outputHandler output.OutputHandler, cfg config.ExportConfig) error {
	if cfg.ReIndex {
		slog.Info("Reindexing entire export...")
		if err := outputHandler.ResetChain(ctx); err != nil {
			return fmt.Errorf("failed to reset export: %w", err)
		}
	}

	if !cfg.LiveMonitoring {
		slog.Info("Starting extraction", "address", address)
		_, err := extractOnce(ctx, fetcher, address, outputHandler, cfg.Difficulty, true)
		return err
	}

	slog.Info("Starting live extraction", "address", address, "poll_interval", cfg.PollInterval.String())
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := extractOnce(ctx, fetcher, address, outputHandler, cfg.Difficulty, false); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			// A node that is briefly away or mid-replacement should not end live mode.
			slog.Warn("Live extraction round failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// extractOnce fetches the chain once and writes the blocks the handler does
// not have yet. It returns the number of blocks written.
func extractOnce(ctx context.Context, fetcher consensus.ChainFetcher, address string, outputHandler output.OutputHandler, difficulty int, showProgress bool) (int, error) {
	resp, err := fetcher.FetchChain(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch chain: %w", err)
	}

	chain := models.Chain(resp.Chain)
	if err := consensus.ValidateChain(difficulty, chain); err != nil {
		return 0, fmt.Errorf("refusing to export chain from %s: %w", address, err)
	}

	start, err := exportStart(ctx, outputHandler, chain)
	if err != nil {
		return 0, err
	}
	if start >= len(chain) {
		slog.Debug("Export up to date", "length", len(chain))
		return 0, nil
	}

	if err := extractBlocks(ctx, chain[start:], outputHandler, showProgress); err != nil {
		return 0, err
	}
	return len(chain) - start, nil
}

// exportStart returns the first chain index to export. An export whose latest
// block does not belong to chain was made from a chain since replaced by
// conflict resolution; it is dropped and the export restarts at genesis.
func exportStart(ctx context.Context, outputHandler output.OutputHandler, chain models.Chain) (int, error) {
	latest, err := outputHandler.GetLatestBlock(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get the latest block: %w", err)
	}
	if latest == nil {
		return 0, nil
	}

	if latest.Index < uint64(len(chain)) && chain[latest.Index].Hash == latest.Hash {
		slog.Info("Resuming from block", "index", latest.Index+1)
		return int(latest.Index) + 1, nil
	}

	slog.Warn("Exported chain diverges from node chain, re-exporting", "exported_index", latest.Index, "length", len(chain))
	if err := outputHandler.ResetChain(ctx); err != nil {
		return 0, fmt.Errorf("failed to reset export: %w", err)
	}
	return 0, nil
}
