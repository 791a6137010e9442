package client_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liftedinit/powchain/internal/client"
	"github.com/liftedinit/powchain/internal/testutil"
)

func TestDecodeChainResponse(t *testing.T) {
	resp, err := client.DecodeChainResponse([]byte(`{"chain":[{"index":0,"timestamp":"t","transactions":[],"previousHash":"1","proof":100,"hash":"h"}],"chainLength":1}`))
	require.NoError(t, err)
	assert.Equal(t, 1, resp.ChainLength)
	require.Len(t, resp.Chain, 1)
	assert.Equal(t, uint64(100), resp.Chain[0].Proof)
	assert.Equal(t, "1", resp.Chain[0].PreviousHash)

	malformed := map[string]string{
		"missing chain":       `{"chainLength":1}`,
		"missing chainLength": `{"chain":[]}`,
		"null chain":          `{"chain":null,"chainLength":0}`,
		"length mismatch":     `{"chain":[],"chainLength":2}`,
		"wrong type":          `{"chain":"abc","chainLength":3}`,
		"not json":            `<html></html>`,
		"array":               `[]`,
	}
	for name, body := range malformed {
		t.Run(name, func(t *testing.T) {
			_, err := client.DecodeChainResponse([]byte(body))
			assert.ErrorIs(t, err, client.ErrMalformedResponse)
		})
	}
}

func TestFetchChain(t *testing.T) {
	chain := testutil.MineChain(t, "remote", 3)
	addr := testutil.ServeChain(t, chain)
	c := client.NewClient(time.Second, 0)

	resp, err := c.FetchChain(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, 3, resp.ChainLength)
	assert.Equal(t, chain.Last().Hash, resp.Chain[2].Hash)

	resp, err = c.FetchChain(context.Background(), "http://"+addr+"/")
	require.NoError(t, err)
	assert.Equal(t, 3, resp.ChainLength)
}

func TestFetchChainErrors(t *testing.T) {
	c := client.NewClient(200*time.Millisecond, 0)

	failing := testutil.ServePeerFunc(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := c.FetchChain(context.Background(), failing)
	assert.ErrorIs(t, err, client.ErrUnexpectedStatus)
	assert.NotErrorIs(t, err, client.ErrMalformedResponse)

	_, err = c.FetchChain(context.Background(), testutil.DeadPeer(t))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, client.ErrMalformedResponse)

	slow := testutil.ServePeerFunc(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	start := time.Now()
	_, err = c.FetchChain(context.Background(), slow)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestURLs(t *testing.T) {
	assert.Equal(t, "http://localhost:5000", client.BaseURL("localhost:5000"))
	assert.Equal(t, "http://localhost:5000", client.BaseURL(" localhost:5000/ "))
	assert.Equal(t, "https://node.example", client.BaseURL("https://node.example/"))
	assert.Equal(t, "http://localhost:5000/chain", client.ChainURL("localhost:5000"))
}
