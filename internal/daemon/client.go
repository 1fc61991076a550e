// Package daemon implements the CryptoNote daemon JSON-RPC 2.0 client
// (spec §6): getblocktemplate, get_block_header, submitblock. Grounded on
// the teacher's internal/bitcoin.RPCClient (HTTP transport, atomic request
// ID, typed RPC error), adapted from Bitcoin's JSON-RPC 1.0
// positional-array params to JSON-RPC 2.0 named-object params; submitblock
// is the exception and still sends its blob as a one-element array.
package daemon

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

// Client is the narrow daemon-facing interface the rest of the pool
// depends on.
type Client interface {
	GetBlockTemplate(ctx context.Context, walletAddress string, reserveSize int) (*BlockTemplateResponse, error)
	GetBlockHeader(ctx context.Context, blockID string) (*BlockHeaderResponse, error)
	SubmitBlock(ctx context.Context, blobHex string) error
}

// RPCClient implements Client over HTTP JSON-RPC 2.0.
type RPCClient struct {
	url    string
	client *http.Client
	idSeq  atomic.Int64
}

// NewRPCClient creates a daemon RPC client with the given request timeout
// (spec §5: daemon RPCs have a bounded timeout, default 10s).
func NewRPCClient(url string, timeout time.Duration) *RPCClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
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
		return nil, fmt.Errorf("daemon RPC request failed: %w", err)
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

// GetBlockTemplate calls getblocktemplate{wallet_address, reserve_size}.
func (c *RPCClient) GetBlockTemplate(ctx context.Context, walletAddress string, reserveSize int) (*BlockTemplateResponse, error) {
	params := map[string]interface{}{
		"wallet_address": walletAddress,
		"reserve_size":   reserveSize,
	}
	result, err := c.call(ctx, "getblocktemplate", params)
	if err != nil {
		return nil, fmt.Errorf("getblocktemplate: %w", err)
	}
	var tmpl BlockTemplateResponse
	if err := json.Unmarshal(result, &tmpl); err != nil {
		return nil, fmt.Errorf("unmarshal block template: %w", err)
	}
	return &tmpl, nil
}

// GetBlockHeader calls get_block_header(block_id).
func (c *RPCClient) GetBlockHeader(ctx context.Context, blockID string) (*BlockHeaderResponse, error) {
	params := map[string]interface{}{"block_id": blockID}
	result, err := c.call(ctx, "get_block_header", params)
	if err != nil {
		return nil, fmt.Errorf("get_block_header: %w", err)
	}
	var hdr BlockHeaderResponse
	if err := json.Unmarshal(result, &hdr); err != nil {
		return nil, fmt.Errorf("unmarshal block header: %w", err)
	}
	return &hdr, nil
}

// SubmitBlock calls submitblock(blob). A non-empty rejection reason in
// the result is surfaced as a BlockRejectedError rather than a plain RPC
// error, mirroring the teacher's distinction between transport failures
// and the daemon explicitly rejecting a block.
func (c *RPCClient) SubmitBlock(ctx context.Context, blobHex string) error {
	result, err := c.call(ctx, "submitblock", []string{blobHex})
	if err != nil {
		return fmt.Errorf("submitblock: %w", err)
	}
	var reason string
	if err := json.Unmarshal(result, &reason); err == nil && reason != "" && reason != "OK" {
		return &BlockRejectedError{Reason: reason}
	}
	return nil
}
