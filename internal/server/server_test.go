package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liftedinit/powchain/internal/client"
	"github.com/liftedinit/powchain/internal/consensus"
	"github.com/liftedinit/powchain/internal/models"
	"github.com/liftedinit/powchain/internal/server"
	"github.com/liftedinit/powchain/internal/testutil"
)

func startNode(t *testing.T, nodeID string) (*consensus.Engine, string) {
	t.Helper()

	e := testutil.NewEngine(t, nodeID, client.NewClient(2*time.Second, 0))
	srv := httptest.NewServer(server.New(e))
	t.Cleanup(srv.Close)
	return e, strings.TrimPrefix(srv.URL, "http://")
}

func TestChainEndpoint(t *testing.T) {
	e, addr := startNode(t, "node-1")
	_, err := e.Mine(context.Background())
	require.NoError(t, err)

	resp, err := client.NewClient(time.Second, 0).FetchChain(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.ChainLength)
	assert.True(t, consensus.CheckChainValidity(e.Difficulty(), resp.Chain))
	assert.Equal(t, e.LastBlock().Hash, resp.Chain[1].Hash)
}

func TestTransactionAndMineFlow(t *testing.T) {
	e, addr := startNode(t, "node-1")
	c := client.NewClient(5*time.Second, 0)
	ctx := context.Background()

	tx := models.Transaction{Sender: "alice", Recipient: "bob", Amount: 3.5}
	out, err := c.SubmitTransaction(ctx, addr, tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), out.Index)

	var pending models.PendingResponse
	resp, err := resty.New().R().SetResult(&pending).Get("http://" + addr + "/transactions/pending")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, []models.Transaction{tx}, pending.Transactions)

	block, err := c.Mine(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), block.Index)
	require.Len(t, block.Transactions, 2)
	assert.Equal(t, tx, block.Transactions[0])
	assert.Equal(t, "node-1", block.Transactions[1].Recipient)
	assert.True(t, block.CheckSeal())

	assert.Empty(t, e.PendingTransactions())
}

func TestAddTransactionValidation(t *testing.T) {
	_, addr := startNode(t, "node-1")

	tests := []struct {
		name string
		body string
	}{
		{"missing recipient", `{"sender":"alice","amount":1}`},
		{"not json", `hello`},
		{"unknown field", `{"sender":"a","recipient":"b","amount":1,"fee":2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := resty.New().R().
				SetHeader("Content-Type", "application/json").
				SetBody(tt.body).
				SetError(&models.ErrorResponse{}).
				Post("http://" + addr + "/transactions")
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
			assert.NotEmpty(t, resp.Error().(*models.ErrorResponse).Error)
		})
	}
}

func TestPeersAndResolve(t *testing.T) {
	_, remoteAddr := startNode(t, "remote")
	e, addr := startNode(t, "local")
	c := client.NewClient(5*time.Second, 0)
	ctx := context.Background()

	for range 3 {
		_, err := c.Mine(ctx, remoteAddr)
		require.NoError(t, err)
	}

	peers, err := c.RegisterPeers(ctx, addr, []string{"http://" + remoteAddr, testutil.DeadPeer(t)})
	require.NoError(t, err)
	assert.Len(t, peers.Peers, 2)

	out, err := c.Resolve(ctx, addr)
	require.NoError(t, err)
	assert.True(t, out.Replaced)
	assert.Equal(t, 4, out.ChainLength)
	require.Len(t, out.Results, 2)
	assert.Equal(t, "accepted", out.Results[0].Status)
	assert.Equal(t, "unreachable", out.Results[1].Status)
	assert.NotEmpty(t, out.Results[1].Reason)
	assert.Equal(t, 4, e.Chain().Len())

	out, err = c.Resolve(ctx, addr)
	require.NoError(t, err)
	assert.False(t, out.Replaced)
	assert.Equal(t, "rejected", out.Results[0].Status)
}

func TestAddPeersValidation(t *testing.T) {
	_, addr := startNode(t, "node-1")
	c := client.NewClient(time.Second, 0)

	_, err := c.RegisterPeers(context.Background(), addr, nil)
	assert.ErrorIs(t, err, client.ErrUnexpectedStatus)
	assert.ErrorContains(t, err, "no peers given")

	_, err = c.RegisterPeers(context.Background(), addr, []string{"  "})
	assert.ErrorIs(t, err, client.ErrUnexpectedStatus)
}

func TestAddPeersRegistersNothingOnInvalidEntry(t *testing.T) {
	e, addr := startNode(t, "node-1")
	c := client.NewClient(time.Second, 0)

	_, err := c.RegisterPeers(context.Background(), addr, []string{"localhost:5001", "not a peer"})
	assert.ErrorIs(t, err, client.ErrUnexpectedStatus)
	assert.ErrorContains(t, err, "invalid peer")
	assert.Empty(t, e.Peers())
}

func TestValidateAndNodeEndpoints(t *testing.T) {
	_, addr := startNode(t, "node-42")

	var valid models.ValidateResponse
	resp, err := resty.New().R().SetResult(&valid).Get("http://" + addr + "/validate")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	assert.True(t, valid.Valid)

	var node models.NodeResponse
	resp, err = resty.New().R().SetResult(&node).Get("http://" + addr + "/node")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, "node-42", node.NodeID)

	var peers models.PeersResponse
	_, err = resty.New().R().SetResult(&peers).Get("http://" + addr + "/peers")
	require.NoError(t, err)
	assert.NotNil(t, peers.Peers)
	assert.Empty(t, peers.Peers)
}

func TestUnknownRoute(t *testing.T) {
	_, addr := startNode(t, "node-1")
	resp, err := resty.New().R().Get("http://" + addr + "/nope")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())

	resp, err = resty.New().R().Delete("http://" + addr + "/chain")
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode())
}
