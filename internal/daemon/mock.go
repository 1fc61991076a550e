package daemon

import (
	"context"
	"sync"
)

// MockDaemon implements Client for testing. Grounded on the teacher's
// bitcoin.MockRPC: public configurable fields plus per-method error
// overrides, guarded by a single mutex.
type MockDaemon struct {
	mu sync.Mutex

	Template       *BlockTemplateResponse
	Header         *BlockHeaderResponse
	SubmittedBlobs []string

	GetBlockTemplateErr error
	GetBlockHeaderErr   error
	SubmitBlockErr      error
}

// NewMockDaemon creates a mock daemon client with sensible CryptoNote
// defaults.
func NewMockDaemon() *MockDaemon {
	return &MockDaemon{
		Template: &BlockTemplateResponse{
			BlockhashingBlob:  "0707dcba9af6050000000000000000000000000000000000000000000000000000000000000000000000000000",
			BlocktemplateBlob: "0707dcba9af6050000000000000000000000000000000000000000000000000000000000000000000000000000",
			Difficulty:        500000,
			Height:            1000,
			PrevHash:          "abc123",
			ReservedOffset:    43,
			Status:            "OK",
		},
		Header: &BlockHeaderResponse{
			Hash:         "def456",
			Depth:        0,
			Reward:       17590000000000,
			OrphanStatus: false,
		},
	}
}

func (m *MockDaemon) GetBlockTemplate(_ context.Context, _ string, _ int) (*BlockTemplateResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetBlockTemplateErr != nil {
		return nil, m.GetBlockTemplateErr
	}
	return m.Template, nil
}

func (m *MockDaemon) GetBlockHeader(_ context.Context, _ string) (*BlockHeaderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetBlockHeaderErr != nil {
		return nil, m.GetBlockHeaderErr
	}
	return m.Header, nil
}

func (m *MockDaemon) SubmitBlock(_ context.Context, blobHex string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubmitBlockErr != nil {
		return m.SubmitBlockErr
	}
	m.SubmittedBlobs = append(m.SubmittedBlobs, blobHex)
	return nil
}
