package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMockDaemon_GetBlockTemplate(t *testing.T) {
	mock := NewMockDaemon()
	ctx := context.Background()

	tmpl, err := mock.GetBlockTemplate(ctx, "4Axxxxwallet", 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tmpl.Height != 1000 {
		t.Errorf("height = %d, want 1000", tmpl.Height)
	}
	if tmpl.Difficulty != 500000 {
		t.Errorf("difficulty = %d, want 500000", tmpl.Difficulty)
	}
}

func TestMockDaemon_GetBlockTemplate_Error(t *testing.T) {
	mock := NewMockDaemon()
	mock.GetBlockTemplateErr = fmt.Errorf("connection refused")
	ctx := context.Background()

	_, err := mock.GetBlockTemplate(ctx, "4Axxxxwallet", 8)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestMockDaemon_SubmitBlock(t *testing.T) {
	mock := NewMockDaemon()
	ctx := context.Background()

	err := mock.SubmitBlock(ctx, "deadbeef")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.SubmittedBlobs) != 1 || mock.SubmittedBlobs[0] != "deadbeef" {
		t.Error("block not recorded")
	}
}

func TestMockDaemon_GetBlockHeader(t *testing.T) {
	mock := NewMockDaemon()
	ctx := context.Background()

	hdr, err := mock.GetBlockHeader(ctx, "def456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hdr.Hash != mock.Header.Hash {
		t.Errorf("hash mismatch")
	}
}

func TestRPCError(t *testing.T) {
	err := &RPCError{Code: -1, Message: "test error"}
	if err.Error() != "daemon RPC error -1: test error" {
		t.Errorf("unexpected error string: %s", err.Error())
	}
}

func TestBlockRejectedError(t *testing.T) {
	err := &BlockRejectedError{Reason: "orphan"}
	if err.Error() != "block rejected: orphan" {
		t.Errorf("unexpected error string: %s", err.Error())
	}
}

// newTestServer returns an httptest server that validates the JSON-RPC
// 2.0 envelope and dispatches on method, emulating the daemon.
func newTestServer(t *testing.T, handle func(method string, params json.RawMessage) (interface{}, *RPCError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.JSONRPC != "2.0" {
			t.Errorf("jsonrpc = %q, want 2.0", req.JSONRPC)
		}
		paramsBytes, _ := json.Marshal(req.Params)
		result, rpcErr := handle(req.Method, paramsBytes)
		resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
		if rpcErr == nil {
			resultBytes, _ := json.Marshal(result)
			resp.Result = resultBytes
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestRPCClient_GetBlockTemplate(t *testing.T) {
	srv := newTestServer(t, func(method string, params json.RawMessage) (interface{}, *RPCError) {
		if method != "getblocktemplate" {
			t.Errorf("method = %q, want getblocktemplate", method)
		}
		var decoded map[string]interface{}
		json.Unmarshal(params, &decoded)
		if decoded["wallet_address"] != "4Axxxxwallet" {
			t.Errorf("wallet_address = %v", decoded["wallet_address"])
		}
		if decoded["reserve_size"] != float64(8) {
			t.Errorf("reserve_size = %v, want 8", decoded["reserve_size"])
		}
		return BlockTemplateResponse{
			BlockhashingBlob: "0707dcba",
			Difficulty:       500000,
			Height:           1000,
			Status:           "OK",
		}, nil
	})
	defer srv.Close()

	client := NewRPCClient(srv.URL, time.Second)
	tmpl, err := client.GetBlockTemplate(context.Background(), "4Axxxxwallet", 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tmpl.Height != 1000 || tmpl.Difficulty != 500000 {
		t.Errorf("unexpected template: %+v", tmpl)
	}
}

func TestRPCClient_GetBlockTemplate_RPCError(t *testing.T) {
	srv := newTestServer(t, func(method string, params json.RawMessage) (interface{}, *RPCError) {
		return nil, &RPCError{Code: -2, Message: "core is busy"}
	})
	defer srv.Close()

	client := NewRPCClient(srv.URL, time.Second)
	_, err := client.GetBlockTemplate(context.Background(), "4Axxxxwallet", 8)
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestRPCClient_SubmitBlock(t *testing.T) {
	var gotParams json.RawMessage
	srv := newTestServer(t, func(method string, params json.RawMessage) (interface{}, *RPCError) {
		gotParams = params
		return "OK", nil
	})
	defer srv.Close()

	client := NewRPCClient(srv.URL, time.Second)
	if err := client.SubmitBlock(context.Background(), "deadbeef"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var arr []string
	json.Unmarshal(gotParams, &arr)
	if len(arr) != 1 || arr[0] != "deadbeef" {
		t.Errorf("unexpected submitted params: %v", arr)
	}
}

func TestRPCClient_SubmitBlock_Rejected(t *testing.T) {
	srv := newTestServer(t, func(method string, params json.RawMessage) (interface{}, *RPCError) {
		return "Block not accepted", nil
	})
	defer srv.Close()

	client := NewRPCClient(srv.URL, time.Second)
	err := client.SubmitBlock(context.Background(), "deadbeef")
	if err == nil {
		t.Fatal("expected a rejection error")
	}
	var rejected *BlockRejectedError
	if !asBlockRejected(err, &rejected) {
		t.Fatalf("expected *BlockRejectedError, got %T: %v", err, err)
	}
}

func TestRPCClient_GetBlockHeader(t *testing.T) {
	srv := newTestServer(t, func(method string, params json.RawMessage) (interface{}, *RPCError) {
		if method != "get_block_header" {
			t.Errorf("method = %q, want get_block_header", method)
		}
		return BlockHeaderResponse{Hash: "def456", Reward: 17590000000000}, nil
	})
	defer srv.Close()

	client := NewRPCClient(srv.URL, time.Second)
	hdr, err := client.GetBlockHeader(context.Background(), "def456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hdr.Hash != "def456" {
		t.Errorf("hash = %q, want def456", hdr.Hash)
	}
}

func asBlockRejected(err error, target **BlockRejectedError) bool {
	rejected, ok := err.(*BlockRejectedError)
	if ok {
		*target = rejected
	}
	return ok
}
