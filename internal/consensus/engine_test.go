package consensus_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liftedinit/powchain/internal/consensus"
	"github.com/liftedinit/powchain/internal/models"
	"github.com/liftedinit/powchain/internal/testutil"
)

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *consensus.Config)
	}{
		{"missing node id", func(c *consensus.Config) { c.NodeID = "" }},
		{"negative difficulty", func(c *consensus.Config) { c.Difficulty = -1 }},
		{"difficulty too high", func(c *consensus.Config) { c.Difficulty = consensus.MaxDifficulty + 1 }},
		{"zero concurrency", func(c *consensus.Config) { c.MaxConcurrency = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := consensus.DefaultConfig("node")
			tt.mutate(&cfg)
			_, err := consensus.New(cfg, nil)
			assert.ErrorIs(t, err, consensus.ErrInvalidConfig)
		})
	}
}

func TestAddTransactionReturnsNextIndex(t *testing.T) {
	e := testutil.NewEngine(t, "node-1", nil)

	tx := models.Transaction{Sender: "alice", Recipient: "bob", Amount: 5}
	assert.Equal(t, uint64(1), e.AddTransaction(tx))
	assert.Equal(t, uint64(1), e.AddTransaction(tx))
	assert.Len(t, e.PendingTransactions(), 2)

	_, err := e.Mine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), e.AddTransaction(tx))
}

func TestMineAppendsPendingAndReward(t *testing.T) {
	e := testutil.NewEngine(t, "node-1", nil)
	genesis := e.LastBlock()

	tx := models.Transaction{Sender: "alice", Recipient: "bob", Amount: 42}
	e.AddTransaction(tx)

	block, err := e.Mine(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, e.Chain().Len())
	last := e.LastBlock()
	assert.Equal(t, block, last)
	assert.Equal(t, uint64(1), last.Index)
	assert.Equal(t, genesis.Hash, last.PreviousHash)
	assert.True(t, last.CheckSeal())
	assert.True(t, e.CheckProofOfWork(genesis.Proof, last.Proof, genesis.Hash))

	require.Len(t, last.Transactions, 2)
	assert.Equal(t, tx, last.Transactions[0])
	assert.Equal(t, models.Transaction{
		Sender:    consensus.MiningRewardSender,
		Recipient: "node-1",
		Amount:    consensus.MiningReward,
	}, last.Transactions[1])

	assert.Empty(t, e.PendingTransactions())
	assert.True(t, e.CheckChainValidity(nil))
	assert.Equal(t, uint64(1), e.Stats().BlocksMined)
}

func TestMineReturnsCopy(t *testing.T) {
	e := testutil.NewEngine(t, "node-1", nil)
	block, err := e.Mine(context.Background())
	require.NoError(t, err)

	block.Transactions[0].Amount = 1e9
	block.Proof++
	assert.True(t, e.CheckChainValidity(nil))
}

func TestMineWithEmptyPoolCreditsRewardOnly(t *testing.T) {
	e := testutil.NewEngine(t, "node-1", nil)
	for range 3 {
		_, err := e.Mine(context.Background())
		require.NoError(t, err)
	}

	chain := e.Chain()
	require.Equal(t, 4, chain.Len())
	for _, b := range chain[1:] {
		require.Len(t, b.Transactions, 1)
		assert.Equal(t, consensus.MiningRewardSender, b.Transactions[0].Sender)
	}
	assert.True(t, e.CheckChainValidity(nil))
}

func TestMineCanceledKeepsPool(t *testing.T) {
	cfg := consensus.DefaultConfig("node-1")
	cfg.Difficulty = consensus.MaxDifficulty
	e, err := consensus.New(cfg, nil)
	require.NoError(t, err)

	e.AddTransaction(models.Transaction{Sender: "alice", Recipient: "bob", Amount: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Mine(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, e.PendingTransactions(), 1)
	assert.Equal(t, 1, e.Chain().Len())
}

func TestConcurrentMiningKeepsChainValid(t *testing.T) {
	e := testutil.NewEngine(t, "node-1", nil)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.AddTransaction(models.Transaction{Sender: "alice", Recipient: "bob", Amount: float64(i)})
			_, err := e.Mine(context.Background())
			if err != nil {
				assert.ErrorIs(t, err, consensus.ErrStaleTip)
			}
		}()
	}
	wg.Wait()

	assert.True(t, e.CheckChainValidity(nil))
	assert.GreaterOrEqual(t, e.Chain().Len(), 2)
	assert.Equal(t, uint64(e.Chain().Len()-1), e.Stats().BlocksMined)
}

func TestChainSnapshotIsStable(t *testing.T) {
	e := testutil.NewEngine(t, "node-1", nil)
	before := e.Chain()

	_, err := e.Mine(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, before.Len())
	assert.Equal(t, 2, e.Chain().Len())
}

func TestAddPeer(t *testing.T) {
	e := testutil.NewEngine(t, "node-1", nil)

	require.NoError(t, e.AddPeer("127.0.0.1:5000"))
	require.NoError(t, e.AddPeer("http://127.0.0.1:5001/"))
	require.NoError(t, e.AddPeer("http://127.0.0.1:5001/chain"))
	require.NoError(t, e.AddPeer("127.0.0.1:5000"))

	assert.ErrorIs(t, e.AddPeer(""), consensus.ErrInvalidPeer)
	assert.ErrorIs(t, e.AddPeer("   "), consensus.ErrInvalidPeer)
	assert.ErrorIs(t, e.AddPeer("http://"), consensus.ErrInvalidPeer)

	assert.Equal(t, []string{"127.0.0.1:5000", "127.0.0.1:5001"}, e.Peers())

	peers := e.Peers()
	peers[0] = "changed"
	assert.Equal(t, "127.0.0.1:5000", e.Peers()[0])
}

func TestNodeID(t *testing.T) {
	e := testutil.NewEngine(t, "node-xyz", nil)
	assert.Equal(t, "node-xyz", e.NodeID())
	assert.Equal(t, testutil.TestDifficulty, e.Difficulty())
}
