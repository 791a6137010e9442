package powchain_test

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liftedinit/powchain/cmd/powchain"
	"github.com/liftedinit/powchain/internal/testutil"
)

var testDifficulty = strconv.Itoa(testutil.TestDifficulty)

func executeExportCommand(t *testing.T, format, addr string, args ...string) (string, error) {
	t.Helper()
	baseArgs := []string{"export", format, addr, "--logLevel", "info", "--difficulty", testDifficulty, "--reindex=false", "--live=false"}
	return testutil.Execute(t, powchain.RootCmd, append(baseArgs, args...)...)
}

func countLines(t *testing.T, path string) int {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
	}
	require.NoError(t, scanner.Err())
	return n
}

func TestExportCmd(t *testing.T) {
	// Show help
	output, err := executeCommand(powchain.RootCmd, "export", "--help")
	assert.NoError(t, err)
	assert.Contains(t, output, "Export the validated chain of a running node")

	_, err = executeCommand(powchain.RootCmd, "export", "json", "localhost:5000", "--difficulty", "65")
	assert.ErrorContains(t, err, "invalid export configuration")
}

func TestExportJSON(t *testing.T) {
	engine, addr := startNode(t, "node-1")
	mine(t, engine, 2)
	dir := t.TempDir()

	out, err := executeExportCommand(t, "json", addr, "-o", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Starting extraction")
	assert.Contains(t, out, "Export done")

	files, err := filepath.Glob(filepath.Join(dir, "block", "block_*.json"))
	require.NoError(t, err)
	assert.Len(t, files, 3)

	// Resume after the last exported block
	mine(t, engine, 1)
	out, err = executeExportCommand(t, "json", addr, "-o", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Resuming from block")

	files, err = filepath.Glob(filepath.Join(dir, "block", "block_*.json"))
	require.NoError(t, err)
	assert.Len(t, files, 4)

	out, err = executeExportCommand(t, "json", addr, "-o", dir, "--reindex")
	require.NoError(t, err)
	assert.Contains(t, out, "Reindexing entire export...")
}

func TestExportTSV(t *testing.T) {
	engine, addr := startNode(t, "node-1")
	mine(t, engine, 2)
	dir := t.TempDir()

	out, err := executeExportCommand(t, "tsv", addr, "-o", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Export done")

	// header plus one row per block, and per reward transaction
	assert.Equal(t, 4, countLines(t, filepath.Join(dir, "blocks.tsv")))
	assert.Equal(t, 3, countLines(t, filepath.Join(dir, "transactions.tsv")))
}

func TestExportUnreachableNode(t *testing.T) {
	_, err := executeExportCommand(t, "json", testutil.DeadPeer(t), "-o", t.TempDir(), "--max-retries", "0")
	assert.ErrorContains(t, err, "failed to fetch chain")
}
