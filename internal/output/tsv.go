package output

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/liftedinit/powchain/internal/models"
)

const (
	blocksTSVHeader       = "index\thash\tprevious_hash\ttimestamp\tproof\ttransaction_count\n"
	transactionsTSVHeader = "block_index\tposition\tsender\trecipient\tamount\n"
)

// TSVOutputHandler writes blocks.tsv and transactions.tsv. Files are
// recreated on open, so every export starts from genesis.
type TSVOutputHandler struct {
	blockFile   *os.File
	txFile      *os.File
	blockWriter *bufio.Writer
	txWriter    *bufio.Writer
	latest      *models.Block
}

func NewTSVOutputHandler(outDir string) (*TSVOutputHandler, error) {
	err := os.MkdirAll(outDir, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	blockFile, err := os.Create(filepath.Join(outDir, "blocks.tsv"))
	if err != nil {
		return nil, fmt.Errorf("failed to create blocks TSV file: %w", err)
	}

	txFile, err := os.Create(filepath.Join(outDir, "transactions.tsv"))
	if err != nil {
		blockFile.Close()
		return nil, fmt.Errorf("failed to create transactions TSV file: %w", err)
	}

	h := &TSVOutputHandler{
		blockFile:   blockFile,
		txFile:      txFile,
		blockWriter: bufio.NewWriter(blockFile),
		txWriter:    bufio.NewWriter(txFile),
	}
	if err := h.writeHeaders(); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

func (h *TSVOutputHandler) writeHeaders() error {
	if _, err := h.blockWriter.WriteString(blocksTSVHeader); err != nil {
		return fmt.Errorf("failed to write blocks header: %w", err)
	}
	if _, err := h.txWriter.WriteString(transactionsTSVHeader); err != nil {
		return fmt.Errorf("failed to write transactions header: %w", err)
	}
	return nil
}

func (h *TSVOutputHandler) WriteBlockWithTransactions(_ context.Context, block *models.Block) error {
	line := fmt.Sprintf("%d\t%s\t%s\t%s\t%d\t%d\n",
		block.Index, block.Hash, block.PreviousHash, block.Timestamp, block.Proof, len(block.Transactions))
	if _, err := h.blockWriter.WriteString(line); err != nil {
		return fmt.Errorf("failed to write block %d: %w", block.Index, err)
	}

	for i, tx := range block.Transactions {
		line := fmt.Sprintf("%d\t%d\t%s\t%s\t%s\n",
			block.Index, i, tsvField(tx.Sender), tsvField(tx.Recipient), strconv.FormatFloat(tx.Amount, 'f', -1, 64))
		if _, err := h.txWriter.WriteString(line); err != nil {
			return fmt.Errorf("failed to write transaction %d of block %d: %w", i, block.Index, err)
		}
	}

	h.latest = block
	return nil
}

// tsvField quotes values containing separators as JSON strings.
func tsvField(s string) string {
	for _, r := range s {
		if r == '\t' || r == '\n' || r == '\r' {
			quoted, _ := json.Marshal(s)
			return string(quoted)
		}
	}
	return s
}

func (h *TSVOutputHandler) GetLatestBlock(_ context.Context) (*models.Block, error) {
	return h.latest, nil
}

func (h *TSVOutputHandler) ResetChain(_ context.Context) error {
	for _, f := range []*os.File{h.blockFile, h.txFile} {
		if err := f.Truncate(0); err != nil {
			return fmt.Errorf("failed to truncate %s: %w", f.Name(), err)
		}
		if _, err := f.Seek(0, 0); err != nil {
			return fmt.Errorf("failed to rewind %s: %w", f.Name(), err)
		}
	}
	h.blockWriter.Reset(h.blockFile)
	h.txWriter.Reset(h.txFile)
	h.latest = nil
	return h.writeHeaders()
}

func (h *TSVOutputHandler) Close() error {
	if err := h.blockWriter.Flush(); err != nil {
		return err
	}
	if err := h.txWriter.Flush(); err != nil {
		return err
	}
	if err := h.blockFile.Close(); err != nil {
		return err
	}
	if err := h.txFile.Close(); err != nil {
		return err
	}
	return nil
}
