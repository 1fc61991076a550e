package walletrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMockWallet_Transfer(t *testing.T) {
	mock := NewMockWallet()
	ctx := context.Background()

	dests := []Destination{{Address: "4Aminer1", Amount: 1000000}}
	result, err := mock.Transfer(ctx, dests, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TxHash != "feedface00000000" {
		t.Errorf("tx hash = %q", result.TxHash)
	}
	if result.Fee != nil {
		t.Errorf("fee = %v, want nil (fallback path)", result.Fee)
	}
	if len(mock.Calls) != 1 || mock.Calls[0].Mixin != 4 {
		t.Errorf("call not recorded correctly: %+v", mock.Calls)
	}
}

func TestMockWallet_Transfer_Error(t *testing.T) {
	mock := NewMockWallet()
	mock.TransferErr = fmt.Errorf("insufficient unlocked funds")
	ctx := context.Background()

	_, err := mock.Transfer(ctx, []Destination{{Address: "4Aminer1", Amount: 1}}, 4)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestRPCError(t *testing.T) {
	err := &RPCError{Code: -4, Message: "not enough money"}
	if err.Error() != "wallet RPC error -4: not enough money" {
		t.Errorf("unexpected error string: %s", err.Error())
	}
}

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

func TestRPCClient_Transfer(t *testing.T) {
	srv := newTestServer(t, func(method string, params json.RawMessage) (interface{}, *RPCError) {
		if method != "transfer" {
			t.Errorf("method = %q, want transfer", method)
		}
		var decoded transferParams
		json.Unmarshal(params, &decoded)
		if len(decoded.Destinations) != 2 {
			t.Errorf("destinations = %d, want 2", len(decoded.Destinations))
		}
		if decoded.Mixin != 4 {
			t.Errorf("mixin = %d, want 4", decoded.Mixin)
		}
		fee := uint64(7500000000)
		return TransferResult{TxHash: "abc123", Fee: &fee}, nil
	})
	defer srv.Close()

	client := NewRPCClient(srv.URL, time.Second)
	dests := []Destination{
		{Address: "4Aminer1", Amount: 1000000},
		{Address: "4Aminer2", Amount: 2000000},
	}
	result, err := client.Transfer(context.Background(), dests, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TxHash != "abc123" {
		t.Errorf("tx hash = %q, want abc123", result.TxHash)
	}
	if result.Fee == nil || *result.Fee != 7500000000 {
		t.Errorf("fee = %v, want 7500000000", result.Fee)
	}
}

func TestRPCClient_Transfer_RPCError(t *testing.T) {
	srv := newTestServer(t, func(method string, params json.RawMessage) (interface{}, *RPCError) {
		return nil, &RPCError{Code: -4, Message: "not enough money"}
	})
	defer srv.Close()

	client := NewRPCClient(srv.URL, time.Second)
	_, err := client.Transfer(context.Background(), []Destination{{Address: "4Aminer1", Amount: 1}}, 4)
	if err == nil {
		t.Fatal("expected an error")
	}
}
