package walletrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Client is the narrow wallet-facing interface process_payments depends
// on.
type Client interface {
	Transfer(ctx context.Context, destinations []Destination, mixin int) (*TransferResult, error)
}

// RPCClient implements Client over HTTP JSON-RPC 2.0, grounded on
// internal/daemon.RPCClient's transport structure (same atomic request
// ID, same timeout-bounded http.Client, same unmarshal-then-check-Error
// pattern) since both talk to a monerod-family JSON-RPC 2.0 surface.
type RPCClient struct {
	url    string
	client *http.Client
	idSeq  atomic.Int64
}

// NewRPCClient creates a wallet RPC client with the given request
// timeout; a non-positive timeout defaults to 30 seconds.
func NewRPCClient(url string, timeout time.Duration) *RPCClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RPCClient{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *RPCClient) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	id := c.idSeq.Add(1)

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("wallet RPC request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w (body: %s)", err, string(respBody))
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

// Transfer calls transfer{destinations, mixin}, paying out the given
// destinations in one wallet transaction (spec §6).
func (c *RPCClient) Transfer(ctx context.Context, destinations []Destination, mixin int) (*TransferResult, error) {
	params := transferParams{Destinations: destinations, Mixin: mixin}
	result, err := c.call(ctx, "transfer", params)
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	var out TransferResult
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("unmarshal transfer result: %w", err)
	}
	return &out, nil
}
