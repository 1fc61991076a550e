package walletrpc

import (
	"context"
	"sync"
)

// MockWallet implements Client for testing, in the same
// configurable-fields-plus-error-override shape as internal/daemon.MockDaemon.
type MockWallet struct {
	mu sync.Mutex

	TxHash string
	Fee    *uint64

	Calls []MockTransferCall

	TransferErr error
}

// MockTransferCall records one invocation of Transfer for assertions.
type MockTransferCall struct {
	Destinations []Destination
	Mixin        int
}

// NewMockWallet creates a mock wallet client with a fixed tx hash and no
// daemon-reported fee (exercising the cfg.network_transaction_fee
// fallback path in process_payments).
func NewMockWallet() *MockWallet {
	return &MockWallet{TxHash: "feedface00000000"}
}

func (m *MockWallet) Transfer(_ context.Context, destinations []Destination, mixin int) (*TransferResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockTransferCall{Destinations: destinations, Mixin: mixin})
	if m.TransferErr != nil {
		return nil, m.TransferErr
	}
	return &TransferResult{TxHash: m.TxHash, Fee: m.Fee}, nil
}
