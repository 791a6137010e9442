package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	pkgerrors "github.com/pkg/errors"

	"github.com/liftedinit/powchain/internal/models"
)

var (
	// ErrMalformedResponse is returned when a peer answers with a payload that is not a chain response.
	ErrMalformedResponse = errors.New("malformed chain response")
	// ErrUnexpectedStatus is returned when a node answers with a non-success status code.
	ErrUnexpectedStatus = errors.New("unexpected status code")
)

// Client talks to powchain nodes over their HTTP API.
type Client struct {
	http *resty.Client
}

// NewClient creates a client. Every request is bounded by timeout and failed
// transport attempts are retried up to maxRetries times.
func NewClient(timeout time.Duration, maxRetries uint) *Client {
	httpClient := resty.New().
		SetTimeout(timeout).
		SetRetryCount(int(maxRetries)).
		SetRetryWaitTime(250 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json")

	return &Client{http: httpClient}
}

// BaseURL turns a peer address (host:port, optionally with a scheme) into a base URL.
func BaseURL(address string) string {
	address = strings.TrimSuffix(strings.TrimSpace(address), "/")
	if strings.Contains(address, "://") {
		return address
	}
	return "http://" + address
}

// ChainURL returns the chain endpoint of a peer.
func ChainURL(address string) string {
	return BaseURL(address) + "/chain"
}

// FetchChain retrieves and structurally checks a peer's chain. Transport
// failures are returned as is; payload problems wrap ErrMalformedResponse.
func (c *Client) FetchChain(ctx context.Context, address string) (*models.ChainResponse, error) {
	resp, err := c.http.R().SetContext(ctx).Get(ChainURL(address))
	if err != nil {
		return nil, pkgerrors.WithMessage(err, fmt.Sprintf("failed to fetch chain from %s", address))
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: %d from %s", ErrUnexpectedStatus, resp.StatusCode(), address)
	}

	return DecodeChainResponse(resp.Body())
}

// DecodeChainResponse parses a chain response, requiring both fields and a
// chainLength that matches the number of blocks.
func DecodeChainResponse(data []byte) (*models.ChainResponse, error) {
	var raw struct {
		Chain       *[]*models.Block `json:"chain"`
		ChainLength *int             `json:"chainLength"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if raw.Chain == nil {
		return nil, fmt.Errorf("%w: missing chain field", ErrMalformedResponse)
	}
	if raw.ChainLength == nil {
		return nil, fmt.Errorf("%w: missing chainLength field", ErrMalformedResponse)
	}
	if *raw.ChainLength != len(*raw.Chain) {
		return nil, fmt.Errorf("%w: chainLength %d does not match %d blocks", ErrMalformedResponse, *raw.ChainLength, len(*raw.Chain))
	}

	return &models.ChainResponse{Chain: *raw.Chain, ChainLength: *raw.ChainLength}, nil
}

// Mine asks a node to mine a block.
func (c *Client) Mine(ctx context.Context, address string) (*models.Block, error) {
	var block models.Block
	if err := c.do(ctx, http.MethodPost, BaseURL(address)+"/mine", nil, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

// SubmitTransaction queues a transaction on a node.
func (c *Client) SubmitTransaction(ctx context.Context, address string, tx models.Transaction) (*models.TransactionResponse, error) {
	var out models.TransactionResponse
	if err := c.do(ctx, http.MethodPost, BaseURL(address)+"/transactions", tx, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RegisterPeers adds peers to a node.
func (c *Client) RegisterPeers(ctx context.Context, address string, peers []string) (*models.PeersResponse, error) {
	var out models.PeersResponse
	if err := c.do(ctx, http.MethodPost, BaseURL(address)+"/peers", models.PeersRequest{Peers: peers}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Resolve triggers a conflict resolution pass on a node.
func (c *Client) Resolve(ctx context.Context, address string) (*models.ResolveResponse, error) {
	var out models.ResolveResponse
	if err := c.do(ctx, http.MethodPost, BaseURL(address)+"/resolve", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, url string, body, result any) error {
	req := c.http.R().SetContext(ctx).SetResult(result).SetError(&models.ErrorResponse{})
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		return pkgerrors.WithMessage(err, fmt.Sprintf("request %s %s failed", method, url))
	}
	if resp.IsError() {
		if apiErr, ok := resp.Error().(*models.ErrorResponse); ok && apiErr.Error != "" {
			return fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, resp.StatusCode(), apiErr.Error)
		}
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode())
	}
	return nil
}
