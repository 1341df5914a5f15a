package executor

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// NonceSource returns the chain's pending nonce for the account it signs for.
type NonceSource interface {
	Address() common.Address
	PendingNonce(ctx context.Context) (uint64, error)
}

// NonceManager hands out sequential nonces per account. The chain is asked
// once per account and again after Reset.
type NonceManager struct {
	mu   sync.Mutex
	next map[common.Address]uint64
}

// NewNonceManager creates an empty manager
func NewNonceManager() *NonceManager {
	return &NonceManager{next: make(map[common.Address]uint64)}
}

// Next returns the nonce to use and reserves it.
func (m *NonceManager) Next(ctx context.Context, src NonceSource) (uint64, error) {
	addr := src.Address()

	m.mu.Lock()
	if n, ok := m.next[addr]; ok {
		m.next[addr] = n + 1
		m.mu.Unlock()
		return n, nil
	}
	m.mu.Unlock()

	pending, err := src.PendingNonce(ctx)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// another caller may have initialised while we were fetching
	if n, ok := m.next[addr]; ok {
		m.next[addr] = n + 1
		return n, nil
	}
	m.next[addr] = pending + 1
	return pending, nil
}

// Reset forgets addr so the next call resyncs from the chain.
func (m *NonceManager) Reset(addr common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.next, addr)
}
