package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/liftedinit/powchain/internal/consensus"
	"github.com/liftedinit/powchain/internal/models"
)

// TestDifficulty keeps proof searches short in tests.
const TestDifficulty = 2

// NewEngine returns an engine at TestDifficulty using fetcher for peers.
func NewEngine(t *testing.T, nodeID string, fetcher consensus.ChainFetcher) *consensus.Engine {
	t.Helper()

	cfg := consensus.DefaultConfig(nodeID)
	cfg.Difficulty = TestDifficulty
	e, err := consensus.New(cfg, fetcher)
	require.NoError(t, err)
	return e
}

// MineChain returns a valid chain of length blocks mined at TestDifficulty.
func MineChain(t *testing.T, nodeID string, length int) models.Chain {
	t.Helper()

	e := NewEngine(t, nodeID, nil)
	for e.Chain().Len() < length {
		e.AddTransaction(models.Transaction{Sender: "alice", Recipient: "bob", Amount: float64(e.Chain().Len())})
		_, err := e.Mine(context.Background())
		require.NoError(t, err)
	}
	return e.Chain()
}

// ServePeer starts a peer serving body as JSON on /chain and returns its host:port.
func ServePeer(t *testing.T, body any) string {
	t.Helper()

	return ServePeerFunc(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})
}

// ServeChain starts a peer serving chain with a correct chainLength.
func ServeChain(t *testing.T, chain models.Chain) string {
	t.Helper()
	return ServePeer(t, models.NewChainResponse(chain))
}

// ServePeerFunc starts a peer whose /chain endpoint is handled by h.
func ServePeerFunc(t *testing.T, h http.HandlerFunc) string {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /chain", h)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

// DeadPeer returns the address of a peer that refuses connections.
func DeadPeer(t *testing.T) string {
	t.Helper()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()
	return addr
}
