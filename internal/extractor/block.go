package extractor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/schollz/progressbar/v3"

	"github.com/liftedinit/powchain/internal/models"
	"github.com/liftedinit/powchain/internal/output"
)

// extractBlocks writes blocks in order, optionally rendering a progress bar.
func extractBlocks(ctx context.Context, blocks models.Chain, outputHandler output.OutputHandler, showProgress bool) error {
	first, last := blocks[0].Index, blocks.Last().Index
	if first != last {
		slog.Info("Extracting blocks", "range", fmt.Sprintf("[%d, %d]", first, last))
	} else {
		slog.Info("Extracting block", "index", first)
	}

	var bar *progressbar.ProgressBar
	if showProgress && len(blocks) > 1 {
		bar = progressbar.NewOptions64(
			int64(len(blocks)),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetDescription("Exporting blocks..."),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
		if err := bar.RenderBlank(); err != nil {
			return fmt.Errorf("failed to render progress bar: %w", err)
		}
	}

	for _, block := range blocks {
		if err := ctx.Err(); err != nil {
			slog.Info("Extraction cancelled by user")
			return err
		}
		if err := outputHandler.WriteBlockWithTransactions(ctx, block); err != nil {
			return fmt.Errorf("failed to write block %d: %w", block.Index, err)
		}
		if bar != nil {
			if err := bar.Add(1); err != nil {
				slog.Warn("Failed to update progress bar", "error", err)
			}
		}
	}

	if bar != nil {
		if err := bar.Finish(); err != nil {
			return fmt.Errorf("failed to finish progress bar: %w", err)
		}
	}

	return nil
}
