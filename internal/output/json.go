package output

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/liftedinit/powchain/internal/models"
)

const (
	blockFilePrefix = "block_"
	blockFileSuffix = ".json"
)

// JSONOutputHandler writes one JSON file per block.
type JSONOutputHandler struct {
	blockDir string
}

func NewJSONOutputHandler(outDir string) (*JSONOutputHandler, error) {
	blockDir := filepath.Join(outDir, "block")

	err := os.MkdirAll(blockDir, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create blocks directory: %w", err)
	}

	return &JSONOutputHandler{
		blockDir: blockDir,
	}, nil
}

func blockFileName(index uint64) string {
	return fmt.Sprintf("%s%010d%s", blockFilePrefix, index, blockFileSuffix)
}

func (h *JSONOutputHandler) WriteBlockWithTransactions(_ context.Context, block *models.Block) error {
	data, err := json.MarshalIndent(block, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal block %d: %w", block.Index, err)
	}

	filePath := filepath.Join(h.blockDir, blockFileName(block.Index))
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write block %d: %w", block.Index, err)
	}
	return nil
}

func (h *JSONOutputHandler) GetLatestBlock(_ context.Context) (*models.Block, error) {
	names, err := h.blockFiles()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}

	// Zero padded names sort by index.
	latest := names[len(names)-1]
	data, err := os.ReadFile(filepath.Join(h.blockDir, latest))
	if err != nil {
		return nil, fmt.Errorf("failed to read block file '%s': %w", latest, err)
	}

	var block models.Block
	if err := json.Unmarshal(data, &block); err != nil {
		return nil, fmt.Errorf("failed to unmarshal block file '%s': %w", latest, err)
	}
	return &block, nil
}

func (h *JSONOutputHandler) ResetChain(_ context.Context) error {
	names, err := h.blockFiles()
	if err != nil {
		return err
	}
	var errs []error
	for _, name := range names {
		if err := os.Remove(filepath.Join(h.blockDir, name)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *JSONOutputHandler) blockFiles() ([]string, error) {
	entries, err := os.ReadDir(h.blockDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read blocks directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, blockFilePrefix) || !strings.HasSuffix(name, blockFileSuffix) {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func (h *JSONOutputHandler) Close() error {
	// No resources to close for file output
	return nil
}
